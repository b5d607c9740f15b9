/*
Package kv implements the key/value primitive (spec.md §3.4, §6.1): the
simplest projection over the typed-key substrate — local key is the
user's string, stored value is opaque bytes, and the chain's TxnId
version is the only version a caller ever sees (no domain-specific
counter, unlike event sequences or state counters).

Every operation stages its work on a *txn.Txn and lets the caller
decide when to commit; pkg/strata's facade wraps single-call
convenience methods with an implicit begin/commit.
*/
package kv
