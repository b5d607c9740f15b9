/*
Package event implements append-only event streams (spec.md §3.4,
§4.6): local key = (stream, sequence), sequences contiguous from 0 per
stream per run, each stored value chained to the prior one by
prev_hash. Sequence allocation can only happen once the commit lock is
held — two concurrent appenders to the same stream must not both
compute sequence N — so Append uses pkg/txn's dynamic-write path
instead of a caller-resolved key: the final (stream, sequence) key and
the chained hash are both resolved inside the commit itself, against
whatever the stream's true head is at that moment. This is why append
never conflicts on OCC: concurrent appends are serialized by the commit
lock, not by a stale read-set (spec.md §4.4.2, §4.6).
*/
package event
