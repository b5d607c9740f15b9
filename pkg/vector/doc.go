/*
Package vector implements vector collections (spec.md §3.4, §4.6):
vectors are stored at (collection, vector_id), vector_id a per-collection
monotone u64 that is never reused even after the vector it names is
deleted; a secondary (collection, key) mapping resolves user-facing keys
to their current vector_id. Collection dimension and distance metric are
fixed at creation and immutable thereafter (invariants S1-S2).

Allocating a fresh vector_id can only happen once the commit lock is
held, the same constraint pkg/event's sequence allocation runs into, so
a first-time upsert uses pkg/txn's dynamic-write path. An upsert that
overwrites an existing live key reuses its already-known id and is a
plain static write — only the first insert of a new key needs dynamic
allocation, matching invariant S3 (a vector_id is stable for the life of
its key).

The free-slot storage reuse spec.md describes for a raw vector heap does
not apply here: Strata's storage is MVCC version chains keyed by typed
address, not a flat array of fixed-size slots, so a deleted vector's
space is reclaimed by the same chain-retention mechanism every other
primitive uses, not a separate free-list.
*/
package vector
