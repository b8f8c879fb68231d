// Package ir provides the canonical value layer for qinfer.
//
// Literal values carried by queries are IRValues; every content-addressed
// identity in the module (join-tree step keys, stored query ids, model
// hashes, resolution snapshots) is computed from RFC 8785 canonical JSON
// produced here. ir imports nothing internal.
//
// Key constraints:
//   - No float types. Non-integral numbers are exact apd decimals.
//   - Canonical strings are NFC normalized.
//   - Hashes are domain separated and versioned.
package ir
