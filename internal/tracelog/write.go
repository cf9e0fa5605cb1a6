package tracelog

import (
	"context"
	"fmt"

	"github.com/roach88/livestore/internal/canon"
	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/ir"
)

// Run describes one traced session.
type Run struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	CatalogHash    string `json:"catalog_hash"`
	CatalogVersion string `json:"catalog_version"`
	EngineVersion  string `json:"engine_version"`
	Events         int    `json:"events"`
}

// NewRun describes a run of the catalog with the given hash under the
// current versions.
func NewRun(id, name, catalogHash string) Run {
	return Run{
		ID:             id,
		Name:           name,
		CatalogHash:    catalogHash,
		CatalogVersion: ir.CatalogVersion,
		EngineVersion:  ir.EngineVersion,
	}
}

// StartRun registers a run. Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (l *Log) StartRun(ctx context.Context, run Run) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, catalog_hash, catalog_version, engine_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Name, run.CatalogHash, run.CatalogVersion, run.EngineVersion)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// Record appends one event to a run. The event id is derived from its
// content, so recording the same event twice is a no-op.
//
// Note: The run must exist (foreign key constraint).
func (l *Log) Record(ctx context.Context, runID string, ev engine.TraceEvent) error {
	id, err := ir.EventID(runID, ev.Seq, ev.Source, ev.Channel, ev.IDs)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	ids, err := canon.Marshal(nonNil(ev.IDs))
	if err != nil {
		return fmt.Errorf("record event: marshal ids: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO events (id, run_id, seq, source, kind, channel, ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, runID, ev.Seq, ev.Source, ev.Kind, ev.Channel, string(ids))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Sink returns an engine.Sink appending to runID.
func (l *Log) Sink(ctx context.Context, runID string) engine.Sink {
	return engine.SinkFunc(func(ev engine.TraceEvent) error {
		return l.Record(ctx, runID, ev)
	})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
