package types

import (
	"fmt"

	"github.com/google/uuid"
)

// RunId opaquely identifies a run: the logical execution context every
// Strata entity is scoped to. It carries an optional human-readable
// name used for lookups and display but never for identity comparison.
type RunId struct {
	ID   uuid.UUID
	Name string
}

// NewRunID generates a fresh random run identity with the given name.
func NewRunID(name string) RunId {
	return RunId{ID: uuid.New(), Name: name}
}

// DefaultRunID is the well-known run used when a command omits one.
var DefaultRunID = RunId{ID: uuid.Nil, Name: "default"}

// NamedDefaultRun returns the well-known default run (identity
// uuid.Nil, same as DefaultRunID) under a caller-chosen display name —
// used when a database is configured with a custom default run name:
// the identity must stay fixed at uuid.Nil for every process that
// opens the same database to agree on it, so only the Name varies.
func NamedDefaultRun(name string) RunId {
	return RunId{ID: uuid.Nil, Name: name}
}

func (r RunId) String() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID.String()
}

func (r RunId) Equal(o RunId) bool { return r.ID == o.ID }

// PrimitiveType enumerates the seven primitive kinds with the stable
// short id used in EntityRef and the typed keyspace. For kv..trace the
// id equals the high nibble of that primitive's WAL type tags; vector
// (0x70) and run (0x60) records do not follow it (see pkg/wal).
type PrimitiveType uint8

const (
	PrimitiveKV PrimitiveType = iota + 1
	PrimitiveJSON
	PrimitiveEvent
	PrimitiveState
	PrimitiveTrace
	PrimitiveVector
	PrimitiveRun
)

func (p PrimitiveType) String() string {
	switch p {
	case PrimitiveKV:
		return "kv"
	case PrimitiveJSON:
		return "json"
	case PrimitiveEvent:
		return "event"
	case PrimitiveState:
		return "state"
	case PrimitiveTrace:
		return "trace"
	case PrimitiveVector:
		return "vector"
	case PrimitiveRun:
		return "run"
	default:
		return "unknown"
	}
}

// EntityRef is a sum type over the seven primitive kinds. Exactly one
// of the locator fields is meaningful, selected by Kind.
type EntityRef struct {
	Kind PrimitiveType
	Run  RunId

	// KV, State, JSON(doc id), Trace id
	Key string

	// Event stream name + sequence
	Stream   string
	Sequence uint64
	HasSeq   bool

	// JSON path (dot-delimited segments), meaningful alongside Key
	Path string

	// Vector collection + key
	Collection string
}

func NewKVRef(run RunId, key string) EntityRef {
	return EntityRef{Kind: PrimitiveKV, Run: run, Key: key}
}

func NewJSONRef(run RunId, docID, path string) EntityRef {
	return EntityRef{Kind: PrimitiveJSON, Run: run, Key: docID, Path: path}
}

func NewEventRef(run RunId, stream string, seq uint64) EntityRef {
	return EntityRef{Kind: PrimitiveEvent, Run: run, Stream: stream, Sequence: seq, HasSeq: true}
}

func NewStateRef(run RunId, cell string) EntityRef {
	return EntityRef{Kind: PrimitiveState, Run: run, Key: cell}
}

func NewVectorRef(run RunId, collection, key string) EntityRef {
	return EntityRef{Kind: PrimitiveVector, Run: run, Collection: collection, Key: key}
}

func NewRunRef(run RunId) EntityRef {
	return EntityRef{Kind: PrimitiveRun, Run: run}
}

func (e EntityRef) String() string {
	switch e.Kind {
	case PrimitiveEvent:
		return fmt.Sprintf("%s/%s/%s@%d", e.Kind, e.Run, e.Stream, e.Sequence)
	case PrimitiveVector:
		return fmt.Sprintf("%s/%s/%s/%s", e.Kind, e.Run, e.Collection, e.Key)
	case PrimitiveJSON:
		if e.Path != "" {
			return fmt.Sprintf("%s/%s/%s#%s", e.Kind, e.Run, e.Key, e.Path)
		}
		return fmt.Sprintf("%s/%s/%s", e.Kind, e.Run, e.Key)
	case PrimitiveRun:
		return fmt.Sprintf("%s/%s", e.Kind, e.Run)
	default:
		return fmt.Sprintf("%s/%s/%s", e.Kind, e.Run, e.Key)
	}
}

// VersionTag discriminates the three Version variants. Values of
// different tags are never considered equal even if their numeric
// components match (spec.md §3.2).
type VersionTag uint8

const (
	TagTxnId VersionTag = iota + 1
	TagSequence
	TagCounter
)

// Version is a tagged monotonically increasing integer. Each tag's
// sequence is independently monotone; cross-tag ordering is defined
// (by numeric value) for storage ordering purposes only — it is never
// used to assert business-level precedence between different kinds of
// versions.
type Version struct {
	Tag VersionTag
	N   uint64
}

func TxnId(n uint64) Version    { return Version{Tag: TagTxnId, N: n} }
func Sequence(n uint64) Version { return Version{Tag: TagSequence, N: n} }
func Counter(n uint64) Version  { return Version{Tag: TagCounter, N: n} }

// Equal reports tag-and-value equality. Different tags are never equal.
func (v Version) Equal(o Version) bool { return v.Tag == o.Tag && v.N == o.N }

// Less orders by numeric value; used only for chain/storage ordering
// (version chains within one typed key always share a tag).
func (v Version) Less(o Version) bool { return v.N < o.N }

func (v Version) String() string {
	switch v.Tag {
	case TagTxnId:
		return fmt.Sprintf("txn:%d", v.N)
	case TagSequence:
		return fmt.Sprintf("seq:%d", v.N)
	case TagCounter:
		return fmt.Sprintf("ctr:%d", v.N)
	default:
		return fmt.Sprintf("v:%d", v.N)
	}
}

// Timestamp is microseconds since the Unix epoch. Commit timestamps come
// from txn.Coordinator's clock, which reads the wall clock and does not
// clamp it, so they can go backwards if the system clock is stepped.
type Timestamp uint64

// Versioned wraps a value with the version and timestamp it was
// written or observed at. Every primitive read returns (Versioned[T],
// bool) in place of Rust's Option<Versioned<T>>; every write returns a
// bare Version.
type Versioned[T any] struct {
	Value     T
	Version   Version
	Timestamp Timestamp
}
