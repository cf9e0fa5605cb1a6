package request

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		params   map[string]string
		want     string
		wantErr  bool
	}{
		{"no params", "/users", nil, "/users", false},
		{"one param", "/users/:id", map[string]string{"id": "7"}, "/users/7", false},
		{"two params", "/users/:user/friends/:friend", map[string]string{"user": "1", "friend": "2"}, "/users/1/friends/2", false},
		{"escaped", "/users/:id", map[string]string{"id": "a b/c"}, "/users/a%20b%2Fc", false},
		{"query kept", "/users/:id?expand=:x", map[string]string{"id": "1"}, "/users/1?expand=:x", false},
		{"missing", "/users/:id", nil, "", true},
		{"empty value", "/users/:id", map[string]string{"id": ""}, "", true},
		{"colon mid segment", "/a:b", nil, "/a:b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.template, tt.params)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMissingParam)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCall_GetDecodesResponse(t *testing.T) {
	var gotPath, gotCorrelation, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCorrelation = r.Header.Get(CorrelationHeader)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(user{ID: "1", Name: "user1"})
	}))
	defer srv.Close()

	req := New[user](http.MethodGet, "/users/:id", http.StatusOK,
		WithBaseURL(srv.URL+"/"),
		WithHeader("Authorization", "Bearer t"),
	)
	got, err := req.Call(context.Background(), Params{URL: map[string]string{"id": "1"}})
	require.NoError(t, err)

	assert.Equal(t, user{ID: "1", Name: "user1"}, got)
	assert.Equal(t, "/users/1", gotPath)
	assert.Equal(t, "Bearer t", gotAuth)

	id, err := uuid.Parse(gotCorrelation)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestCall_PostSendsJSONBody(t *testing.T) {
	var body user
	var contentType, extra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		extra = r.Header.Get("X-Extra")
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	req := New[user]("post", "/users", http.StatusCreated, WithBaseURL(srv.URL))
	got, err := req.Call(context.Background(), Params{
		Body:    user{ID: "9", Name: "new"},
		Headers: map[string]string{"X-Extra": "yes"},
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "yes", extra)
	assert.Equal(t, user{ID: "9", Name: "new"}, body)
	assert.Equal(t, user{ID: "9", Name: "new"}, got)
}

func TestCall_GetIgnoresBody(t *testing.T) {
	var n int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		n = len(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req := New[[]user](http.MethodGet, "/users", http.StatusOK, WithBaseURL(srv.URL))
	got, err := req.Call(context.Background(), Params{Body: map[string]string{"x": "y"}})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, got)
}

func TestCall_StatusMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"duplicate","message":"user exists"}`))
	}))
	defer srv.Close()

	// 200 is a success status in HTTP but not for this request.
	req := New[user](http.MethodPost, "/users", http.StatusCreated, WithBaseURL(srv.URL))
	_, err := req.Call(context.Background(), Params{Body: user{ID: "1"}})
	require.Error(t, err)

	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusConflict, status.Code)
	assert.Equal(t, "duplicate", status.Reason)
	assert.Equal(t, "user exists", status.Message)
	assert.Contains(t, err.Error(), "status 409")
}

func TestCall_NonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	req := New[user](http.MethodGet, "/users/1", http.StatusOK, WithBaseURL(srv.URL))
	_, err := req.Call(context.Background(), Params{})

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, "nope", status.Message)
	assert.Empty(t, status.Reason)
}

func TestCall_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	req := New[user](http.MethodGet, "/users/1", http.StatusOK, WithBaseURL(srv.URL))
	_, err := req.Call(context.Background(), Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestCall_MissingParamMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	req := New[user](http.MethodGet, "/users/:id", http.StatusOK, WithBaseURL(srv.URL))
	_, err := req.Call(context.Background(), Params{})
	require.ErrorIs(t, err, ErrMissingParam)
	assert.Zero(t, hits.Load())
}

func TestCall_NoRetryByDefault(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	req := New[user](http.MethodGet, "/users/1", http.StatusOK, WithBaseURL(srv.URL))
	_, err := req.Call(context.Background(), Params{})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCall_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	correlations := make(chan string, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlations <- r.Header.Get(CorrelationHeader)
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(user{ID: "1"})
	}))
	defer srv.Close()

	req := New[user](http.MethodGet, "/users/1", http.StatusOK,
		WithBaseURL(srv.URL),
		WithRetry(3, time.Millisecond, 5*time.Millisecond),
	)
	got, err := req.Call(context.Background(), Params{})
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, int32(3), hits.Load())

	first := <-correlations
	assert.Equal(t, first, <-correlations, "retries reuse the correlation id")
	assert.Equal(t, first, <-correlations)
}

func TestCall_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	req := New[user](http.MethodGet, "/users/1", http.StatusOK,
		WithBaseURL(srv.URL),
		WithRetry(2, time.Millisecond, time.Millisecond),
	)
	_, err := req.Call(context.Background(), Params{})

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusBadGateway, status.Code)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCall_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req := New[user](http.MethodGet, "/users/1", http.StatusOK,
		WithBaseURL(srv.URL),
		WithRetry(5, time.Hour, time.Hour),
	)
	_, err := req.Call(ctx, Params{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryDelay(t *testing.T) {
	c := newConfig([]Option{WithRetry(5, 100*time.Millisecond, time.Second)})

	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1, ""))
	assert.Equal(t, 200*time.Millisecond, c.retryDelay(2, ""))
	assert.Equal(t, 400*time.Millisecond, c.retryDelay(3, ""))
	assert.Equal(t, time.Second, c.retryDelay(6, ""))
	assert.Equal(t, time.Second, c.retryDelay(1, "30"), "Retry-After is capped")
	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1, "soon"))
}
