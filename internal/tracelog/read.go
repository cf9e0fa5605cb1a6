package tracelog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/livestore/internal/engine"
)

// Event is a recorded trace event.
type Event struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`
	engine.TraceEvent
}

// Events returns the events of a run in seq order.
//
// Returns an empty slice (not nil) if the run has no events.
func (l *Log) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, seq, source, kind, channel, ids
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		var ids string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Seq, &ev.Source, &ev.Kind, &ev.Channel, &ids); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &ev.IDs); err != nil {
			return nil, fmt.Errorf("unmarshal ids of event %s: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Runs returns every run with its event count, ordered by id. UUIDv7 run ids
// therefore list oldest first.
func (l *Log) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.catalog_hash, r.catalog_version, r.engine_version, COUNT(e.id)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.id
		ORDER BY r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Name, &r.CatalogHash, &r.CatalogVersion, &r.EngineVersion, &r.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
