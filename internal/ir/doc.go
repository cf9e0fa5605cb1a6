// Package ir holds the compiled form of a livestore catalog: which stores
// exist and what fields their records carry, which views are declared over
// them, and which joins connect them.
//
// This package contains definitions only. The compiler produces them from
// CUE and the engine turns them into live stores, views and joins.
//
// Key constraints:
//   - NO float field kinds; numbers are int64
//   - Every slice in a Catalog is sorted by name
//   - Hashes are domain-separated SHA-256 over canonical JSON
package ir
