/*
Package jsondoc implements JSON document storage (spec.md §3.4, §4.6):
local key = doc_id, the full document stored as raw JSON bytes. Every
path-based operation — set, merge, array_push, array_pop, increment —
reads the current document, rewrites it in full, and stages the whole
new document as one write; there is no partial on-disk patching. Within
one transaction, two path writes to the same document conflict if the
paths are equal or either is an ancestor or descendant of the other (pkg/txn's
MarkPathWrite); across transactions, the usual OCC rule applies to the
whole document.

Path traversal and rewriting is done with gjson/sjson rather than
encoding/json's generic map[string]interface{} round-trip, so an
operation that only touches one path does not have to re-marshal
unrelated parts of a large document.
*/
package jsondoc
