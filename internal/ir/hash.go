package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/livestore/internal/canon"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCatalog = "livestore/catalog/v1"
	DomainEvent   = "livestore/event/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CatalogHash identifies a catalog by content. Two catalogs that declare the
// same stores, views and joins hash the same regardless of source layout.
func CatalogHash(c *Catalog) (string, error) {
	stores := make([]any, len(c.Stores))
	for i, s := range c.Stores {
		fields := make(map[string]any, len(s.Fields))
		for name, kind := range s.Fields {
			fields[name] = string(kind)
		}
		stores[i] = map[string]any{"name": s.Name, "fields": fields}
	}
	views := make([]any, len(c.Views))
	for i, v := range c.Views {
		where := make([]any, len(v.Where))
		for k, cl := range v.Where {
			where[k] = map[string]any{"field": cl.Field, "op": cl.Op, "value": cl.Value}
		}
		views[i] = map[string]any{"name": v.Name, "store": v.Store, "where": where}
	}
	joins := make([]any, len(c.Joins))
	for i, j := range c.Joins {
		joins[i] = map[string]any{"name": j.Name, "slots": j.Slots, "payload": j.Payload}
	}

	data, err := canon.Marshal(map[string]any{
		"version": CatalogVersion,
		"stores":  stores,
		"views":   views,
		"joins":   joins,
	})
	if err != nil {
		return "", fmt.Errorf("CatalogHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCatalog, data), nil
}

// EventID computes the content-addressed id of one traced event.
func EventID(runID string, seq int64, source, channel string, ids []string) (string, error) {
	data, err := canon.Marshal(map[string]any{
		"run_id":  runID,
		"seq":     seq,
		"source":  source,
		"channel": channel,
		"ids":     slices.Clone(ids),
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, data), nil
}

// MustCatalogHash is like CatalogHash but panics on error.
// Use only in tests or when the catalog came from the compiler.
func MustCatalogHash(c *Catalog) string {
	h, err := CatalogHash(c)
	if err != nil {
		panic(err)
	}
	return h
}

// SortedSlotNames returns the join's slot names in order.
func (j JoinDef) SortedSlotNames() []string {
	return slices.Sorted(maps.Keys(j.Slots))
}
