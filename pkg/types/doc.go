/*
Package types defines the contract types shared by every layer of
Strata: the typed identity of an entity, the versioning scheme every
read and write moves through, and the closed error taxonomy callers
inspect to decide whether to retry, surface, or abort.

# Architecture

The types package is the foundation of Strata's data model. It defines:

  - Run identity (RunId) and the sum-type entity locator (EntityRef)
  - The tagged version space (Version: TxnId | Sequence | Counter)
  - The read/write envelope (Versioned[T], Timestamp)
  - Primitive kind enumeration (PrimitiveType)
  - The closed error taxonomy (Error, Kind)

# Core Types

Identity:
  - RunId: 16-byte opaque id (backed by uuid.UUID) plus optional name
  - EntityRef: sum type over the 7 primitive kinds, each variant
    carrying RunId plus that kind's natural locator
  - PrimitiveType: stable short id per primitive kind

Versioning:
  - Version: tagged {TxnId, Sequence, Counter}, monotone within its tag
  - Timestamp: microseconds since epoch, read from the wall clock at
    commit; not clamped, so not guaranteed monotonic
  - Versioned[T]: { Value T, Version Version, Timestamp Timestamp }

Errors:
  - Error: { Kind, Ref *EntityRef, Message, Expected/Actual *Version, cause error }
  - Kind: NotFound, AlreadyExists, WrongType, InvalidInput,
    VersionConflict, Conflict, RunClosed, DimensionMismatch,
    ConstraintViolation, TransactionError, IoError, InternalError

# Usage

Building an EntityRef for a KV key:

	ref := types.NewKVRef(runID, "config/retries")

Wrapping a storage fault:

	return types.Wrap(types.KindIoError, &ref, fmt.Errorf("fsync: %w", err))

Comparing versions:

	if !a.Less(b) { ... }

# Design Patterns

Enumeration Pattern: every enum is a typed string or small int constant,
mirroring the teacher's TaskState / NodeStatus pattern, not raw
strings scattered through call sites.

Tagged Union Pattern: EntityRef and Version are Go structs with a
Kind/Tag discriminant field plus variant-specific fields left zero for
inactive variants — idiomatic Go's answer to a Rust enum, since there is
no native sum type.

Immutability: Version and EntityRef are passed by value; Versioned[T]
is returned by value with T left to the caller's discretion (value or
pointer).

# Thread Safety

All types in this package are plain data: read-safe for concurrent use,
write-unsafe (callers must not mutate a Versioned[T] received from a
read). Construction helpers (NewRunID, NewKVRef, ...) are safe to call
concurrently.

# See Also

  - pkg/keyspace for the TypedKey encoding EntityRef addresses map to
  - pkg/mvcc for the version chain semantics Version governs
  - pkg/txn for where VersionConflict and Conflict actually surface
*/
package types
