/*
Package state implements CAS state cells (spec.md §3.4, §4.6): a named
cell per run whose version is a Counter, not a TxnId — incremented by
one on every successful write to the cell regardless of how many
commits happen elsewhere. The counter is embedded in the stored value
bytes (8-byte big-endian prefix) since the MVCC chain's own Version is
always TxnId-tagged (see pkg/mvcc's StoredValue doc).

No retry-on-conflict helper (Transition, spec.md §4.4.4) is provided in
this module: this package only exposes the one-shot
Init/Set/Get/CAS/Delete primitives a retry loop is built from.
*/
package state
