package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCmd(tag string) pending {
	return pending{cmd: DeleteRecords{Store: tag}}
}

func TestCommandQueue_FIFO(t *testing.T) {
	q := newCommandQueue(0)

	for _, tag := range []string{"A", "B", "C"} {
		require.NoError(t, q.Enqueue(readCmd(tag)))
	}

	for _, want := range []string{"A", "B", "C"} {
		p, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, p.cmd.(DeleteRecords).Store)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestCommandQueue_Close(t *testing.T) {
	q := newCommandQueue(0)
	require.NoError(t, q.Enqueue(readCmd("A")))
	q.Close()
	q.Close() // idempotent

	assert.True(t, IsStopped(q.Enqueue(readCmd("B"))))

	// The signal buffered by the first Enqueue is still delivered, then the
	// channel reads as closed.
	_, open := <-q.Wait()
	assert.True(t, open)
	_, open = <-q.Wait()
	assert.False(t, open)

	assert.Len(t, q.Drain(), 1)
	assert.Equal(t, 0, q.Len())
}

func TestCommandQueue_CloseWakesIdleWaiter(t *testing.T) {
	q := newCommandQueue(0)
	q.Close()

	_, open := <-q.Wait()
	assert.False(t, open)
	assert.Empty(t, q.Drain())
}

func TestCommandQueue_Capacity(t *testing.T) {
	q := newCommandQueue(2)
	require.NoError(t, q.Enqueue(readCmd("A")))
	require.NoError(t, q.Enqueue(readCmd("B")))
	assert.Error(t, q.Enqueue(readCmd("C")))

	q.TryDequeue()
	assert.NoError(t, q.Enqueue(readCmd("C")))
}

func TestCommandQueue_ThreadSafe(t *testing.T) {
	q := newCommandQueue(0)

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Enqueue(readCmd("x")))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
}
