// Package server exposes a running engine over HTTP.
//
// Every read and write is submitted to the engine's command loop, so HTTP
// handlers never touch the runtime directly. Errors are JSON objects of the
// form {"code": ..., "message": ..., "correlationId": ...}.
//
// Routes:
//
//	GET    /health
//	GET    /metrics                     (when a gatherer is configured)
//	GET    /v1/catalog
//	GET    /v1/stores/{store}
//	PUT    /v1/stores/{store}           body: [record, ...]
//	GET    /v1/stores/{store}/{id}
//	DELETE /v1/stores/{store}/{id}
//	GET    /v1/views/{view}
//	GET    /v1/joins/{join}             ?state=all lists every entry
//	                                    ?slot=s&id=x lists complete entries naming x in s
//	PUT    /v1/joins/{join}             body: [{key, payload}, ...]
//	DELETE /v1/joins/{join}             body: [key, ...]
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/join"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultTimeout      = 10 * time.Second
)

// Config tunes a Server. Zero values select defaults.
type Config struct {
	// MaxBodyBytes limits request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// Timeout bounds how long a handler waits for the command loop.
	Timeout time.Duration

	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server is an http.Handler over an engine.
type Server struct {
	engine *engine.Engine
	cfg    Config
	mux    *http.ServeMux
}

// New returns a Server submitting to eng. The caller runs eng's loop.
func New(eng *engine.Engine, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{engine: eng, cfg: cfg, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	s.mux.HandleFunc("GET /v1/catalog", s.handleCatalog)
	s.mux.HandleFunc("GET /v1/stores/{store}", s.handleListStore)
	s.mux.HandleFunc("PUT /v1/stores/{store}", s.handleUpdateStore)
	s.mux.HandleFunc("GET /v1/stores/{store}/{id}", s.handleGetRecord)
	s.mux.HandleFunc("DELETE /v1/stores/{store}/{id}", s.handleDeleteRecord)
	s.mux.HandleFunc("GET /v1/views/{view}", s.handleView)
	s.mux.HandleFunc("GET /v1/joins/{join}", s.handleListJoin)
	s.mux.HandleFunc("PUT /v1/joins/{join}", s.handleLinkJoin)
	s.mux.HandleFunc("DELETE /v1/joins/{join}", s.handleUnlinkJoin)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.cfg.Logger.Debug("http request",
		"method", r.Method,
		"path", r.URL.Path,
		"correlation_id", getCorrelationID(r),
		"duration", time.Since(start),
	)
}

// CatalogInfo is the body of GET /v1/catalog.
type CatalogInfo struct {
	Hash   string   `json:"hash"`
	Stores []string `json:"stores"`
	Views  []string `json:"views"`
	Joins  []string `json:"joins"`
}

// JoinEntry is one element of a PUT /v1/joins/{join} body.
type JoinEntry struct {
	Key     join.Key       `json:"key"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EntryInfo describes a join entry in any state.
type EntryInfo struct {
	ID      string         `json:"id"`
	Key     join.Key       `json:"key"`
	State   string         `json:"state"`
	Filled  []string       `json:"filled"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	var info CatalogInfo
	s.read(w, r, func(rt *engine.Runtime) error {
		info = CatalogInfo{
			Hash:   rt.Hash(),
			Stores: rt.StoreNames(),
			Views:  rt.ViewNames(),
			Joins:  rt.JoinNames(),
		}
		return nil
	}, func() any { return info })
}

func (s *Server) handleListStore(w http.ResponseWriter, r *http.Request) {
	var records []entity.Record
	s.read(w, r, func(rt *engine.Runtime) error {
		st, err := rt.Store(r.PathValue("store"))
		if err != nil {
			return err
		}
		records = st.Snapshot()
		return nil
	}, func() any { return nonNil(records) })
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	var (
		rec   entity.Record
		found bool
	)
	ok := s.submit(w, r, engine.Read{Fn: func(rt *engine.Runtime) error {
		st, err := rt.Store(r.PathValue("store"))
		if err != nil {
			return err
		}
		rec, found = st.Get(r.PathValue("id"))
		return nil
	}})
	if !ok {
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "record not found", getCorrelationID(r))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateStore(w http.ResponseWriter, r *http.Request) {
	var records []entity.Record
	if !s.decodeBody(w, r, &records) {
		return
	}
	cmd := engine.UpdateRecords{Store: r.PathValue("store"), Records: records}
	if s.submit(w, r, cmd) {
		writeJSON(w, http.StatusOK, map[string]int{"updated": len(records)})
	}
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	cmd := engine.DeleteRecords{Store: r.PathValue("store"), IDs: []string{r.PathValue("id")}}
	if s.submit(w, r, cmd) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var records []entity.Record
	s.read(w, r, func(rt *engine.Runtime) error {
		v, err := rt.View(r.PathValue("view"))
		if err != nil {
			return err
		}
		records = v.Value()
		return nil
	}, func() any { return nonNil(records) })
}

func (s *Server) handleListJoin(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("state") == "all"
	var out any
	s.read(w, r, func(rt *engine.Runtime) error {
		j, err := rt.Join(r.PathValue("join"))
		if err != nil {
			return err
		}
		if slot := r.URL.Query().Get("slot"); slot != "" {
			related, err := rt.Related(j.Name(), slot, r.URL.Query().Get("id"))
			if err != nil {
				return err
			}
			defer related.Dispose()
			out = nonNil(related.Value())
			return nil
		}
		if !all {
			out = j.Complete()
			return nil
		}
		entries := j.Entries()
		infos := make([]EntryInfo, len(entries))
		for i, e := range entries {
			infos[i] = EntryInfo{ID: e.ID, Key: e.Key, State: e.State.String(), Filled: nonNil(e.Filled)}
			if e.Payload != nil {
				infos[i].Payload = *e.Payload
			}
		}
		out = infos
		return nil
	}, func() any { return out })
}

func (s *Server) handleLinkJoin(w http.ResponseWriter, r *http.Request) {
	var body []JoinEntry
	if !s.decodeBody(w, r, &body) {
		return
	}
	entries := make([]join.Entry[engine.Payload], len(body))
	for i, e := range body {
		entries[i] = join.Entry[engine.Payload]{Key: e.Key}
		if e.Payload != nil {
			p := engine.Payload(e.Payload)
			entries[i].Payload = &p
		}
	}
	if s.submit(w, r, engine.JoinUpdate{Join: r.PathValue("join"), Entries: entries}) {
		writeJSON(w, http.StatusOK, map[string]int{"linked": len(entries)})
	}
}

func (s *Server) handleUnlinkJoin(w http.ResponseWriter, r *http.Request) {
	var keys []join.Key
	if !s.decodeBody(w, r, &keys) {
		return
	}
	if s.submit(w, r, engine.JoinRemove{Join: r.PathValue("join"), Keys: keys}) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// read runs fn on the command loop and writes result() on success.
func (s *Server) read(w http.ResponseWriter, r *http.Request, fn func(*engine.Runtime) error, result func() any) {
	if s.submit(w, r, engine.Read{Fn: fn}) {
		writeJSON(w, http.StatusOK, result())
	}
}

// submit applies cmd through the engine. On failure it writes the error
// response and reports false.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, cmd engine.Command) bool {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	err := s.engine.Submit(ctx, cmd)
	if err == nil {
		return true
	}
	correlationID := getCorrelationID(r)
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.cfg.Logger.Warn("command failed", "path", r.URL.Path, "correlation_id", correlationID, "error", err)
	}
	writeError(w, status, code, err.Error(), correlationID)
	return false
}

func classify(err error) (int, string) {
	var re *engine.RuntimeError
	switch {
	case engine.IsUnknown(err):
		return http.StatusNotFound, "not_found"
	case engine.IsInvalid(err):
		return http.StatusBadRequest, "invalid_record"
	case engine.IsStopped(err):
		return http.StatusServiceUnavailable, "engine_stopped"
	case errors.As(err, &re) && re.Code == engine.ErrCodeQueueFull:
		return http.StatusTooManyRequests, "queue_full"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", getCorrelationID(r))
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", getCorrelationID(r))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body: "+err.Error(), getCorrelationID(r))
		return false
	}
	return true
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
