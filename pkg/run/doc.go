/*
Package run implements the run index (spec.md §4.7, §6.2): every run's
metadata — status, tags, parent, retention policy, timestamps — stored
as a single JSON document at a well-known key with no local segment,
the same one-document-per-entity pattern pkg/jsondoc uses for its own
documents, reusing encoding/json rather than inventing a binary format
since the run index is small, infrequently written, and never hits the
path-overlap or partial-update machinery a multi-field JSON document
primitive needs.

Status transitions form a DAG: create -> active <-> paused -> one of
{completed, failed, cancelled} -> archived. Archived accepts no further
transition. A run that reaches completed/failed/cancelled can still
only move to archived — any other transition attempted from one of
those three, or from archived, is rejected.

Orphan detection (open-question default, spec.md §9): at database open,
every run left in Active or Paused status is assumed to belong to a
process that is no longer running and is marked Orphaned. An orphaned
run behaves like Paused for further transitions (it can be resumed,
completed, failed, or cancelled) rather than being a dead end, since
the orphan marker reflects process history, not a deliberate decision
by whatever eventually re-opens the run.

Delete is a cascading delete (spec.md §6.2): it tombstones the run's
own metadata document plus every typed key stored under that run
across all seven primitive kinds, in one transaction, following the
same scan-the-partition-then-tombstone-each-entry shape pkg/vector's
DropCollection uses for a single collection, generalized here to scan
every primitive kind's partition for the run instead of one collection.
*/
package run
