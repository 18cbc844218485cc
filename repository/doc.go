// Package repository implements the keyword-indexed content store the
// overlay publishes into and searches: ResourceRecords (track metadata
// plus the peer endpoints serving it) and the KeywordIndex that inverts
// track metadata into searchable keyword keys.
//
// # Persistence
//
// Store is backed by go.etcd.io/bbolt, an embedded, transactional,
// single-file key/value store — the same family of engine the storj
// example in the reference corpus uses for its node table. Four top-level
// buckets hold the state named in the peer's configuration surface:
//
//   - resources  — resourceID -> JSON-encoded ResourceRecord
//   - keywords   — "keyword/"+normalized -> JSON-encoded KeywordEntry
//   - keysByTag  — resourceID -> JSON array of keyword IDs that reference it
//   - emptyKeys  — keyword IDs with an empty Tags set, pending GC
//
// keysByTag lets DeleteTag remove a resource from every keyword that
// references it without a full keyword-bucket scan; emptyKeys lets the
// garbage collector find prunable entries without scanning every keyword
// for an empty Tags set.
//
// # Search semantics
//
// SearchFor performs substring containment on normalized keyword ids (see
// keywords.go) rather than prefix or exact-token matching — a deliberate,
// documented choice (see the package's design notes) that trades some
// false positives for the ability to match partial queries.
package repository
