// Package canon provides the canonical, injective encoding used for identity
// tokens throughout livestore.
//
// View queries are memoized by the token of their descriptor and join entries
// are addressed by the token of their foreign-key tuple. Both go through the
// same algorithm:
//
//   - Output is JSON with object keys sorted by UTF-16 code units (RFC 8785).
//   - No HTML escaping. Only '"', '\\' and control characters are escaped.
//   - Strings are emitted byte-for-byte. They are NOT Unicode-normalized:
//     two ids that differ only in normalization form are different ids.
//   - Floats with a fractional part and null are rejected. Integral floats
//     (as produced by encoding/json) collapse to integers.
//
// The JSON syntax of each value doubles as its type tag, so the string "1",
// the integer 1 and the boolean true never share a token.
package canon
