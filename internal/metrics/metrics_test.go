package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOr(t *testing.T) {
	assert.Equal(t, Noop{}, Or(nil))

	b := &Basic{}
	assert.Same(t, b, Or(b))
}

func TestBasic(t *testing.T) {
	b := &Basic{}
	b.RecordMutation("user", OpCreate, 3)
	b.RecordMutation("user", OpDelete, 1)
	b.RecordEmission("user", "created", 3)
	b.RecordViewSize("adults", 2)
	b.RecordViewSize("adults", 5)
	b.RecordJoinState("friendship", 4, 1)
	b.RecordSubscriberPanic("user")

	assert.Equal(t, Stats{Mutations: 2, MutatedEntities: 4, Emissions: 1, Panics: 1}, b.Stats())

	n, ok := b.ViewSize("adults")
	require.True(t, ok)
	assert.Equal(t, 5, n)

	_, ok = b.ViewSize("missing")
	assert.False(t, ok)

	js, ok := b.Join("friendship")
	require.True(t, ok)
	assert.Equal(t, JoinState{Complete: 4, Partial: 1}, js)
}

func TestMulti(t *testing.T) {
	a, b := &Basic{}, &Basic{}
	m := Multi{a, b}
	m.RecordMutation("s", OpUpdate, 2)
	m.RecordEmission("s", "updated", 2)
	m.RecordViewSize("v", 1)
	m.RecordJoinState("j", 1, 0)
	m.RecordSubscriberPanic("s")

	for _, c := range []*Basic{a, b} {
		assert.Equal(t, Stats{Mutations: 1, MutatedEntities: 2, Emissions: 1, Panics: 1}, c.Stats())
	}
}

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	p.RecordMutation("user", OpCreate, 3)
	p.RecordMutation("user", OpCreate, 2)
	p.RecordEmission("adults", "changed", 2)
	p.RecordViewSize("adults", 7)
	p.RecordJoinState("friendship", 4, 2)
	p.RecordSubscriberPanic("user")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.mutations.WithLabelValues("user", OpCreate)))
	assert.Equal(t, 5.0, testutil.ToFloat64(p.entities.WithLabelValues("user", OpCreate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.emissions.WithLabelValues("adults", "changed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.viewSize.WithLabelValues("adults")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.joinState.WithLabelValues("friendship", "complete")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.joinState.WithLabelValues("friendship", "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.panics.WithLabelValues("user")))
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg)
	require.NoError(t, err)

	_, err = NewPrometheus(reg)
	assert.Error(t, err)
}

func TestPrometheus_EmissionSizeHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	p.RecordEmission("user", "created", 1)
	p.RecordEmission("user", "created", 3)
	p.RecordEmission("user", "created", 20)

	families, err := reg.Gather()
	require.NoError(t, err)
	family := findFamily(families, "livestore_emission_size")
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 1)

	h := family.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(3), h.GetSampleCount())
	assert.Equal(t, 24.0, h.GetSampleSum())
	// Buckets: 1, 4, 16, 64, ...
	assert.Equal(t, uint64(1), h.GetBucket()[0].GetCumulativeCount())
	assert.Equal(t, uint64(2), h.GetBucket()[1].GetCumulativeCount())
	assert.Equal(t, uint64(2), h.GetBucket()[2].GetCumulativeCount())
	assert.Equal(t, uint64(3), h.GetBucket()[3].GetCumulativeCount())
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}
