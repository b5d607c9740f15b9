package run

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

const primitiveName = "run"

// Status is a run's position in its lifecycle (spec.md §4.7).
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusArchived  Status = "archived"
	StatusOrphaned  Status = "orphaned"
)

// RetentionKind selects one of the four retention policy shapes
// spec.md §4.7 names.
type RetentionKind string

const (
	KeepAll      RetentionKind = "keep_all"
	KeepLast     RetentionKind = "keep_last"
	KeepSince    RetentionKind = "keep_since"
	KeepVersions RetentionKind = "keep_versions"
)

// RetentionPolicy governs how much of a run's version history the
// background retention task (pkg/retention) may trim, never below the
// snapshot low-water mark regardless of policy (spec.md §4.4.4).
type RetentionPolicy struct {
	Kind RetentionKind `json:"kind"`
	// N is the operand for KeepLast (most recent N versions per key) and
	// KeepVersions (retain N versions per key); unused otherwise.
	N uint64 `json:"n,omitempty"`
	// Since is the operand for KeepSince: retain versions at or after
	// this timestamp.
	Since types.Timestamp `json:"since,omitempty"`
}

// Meta is a run's metadata document: status, tags, parent, retention,
// and timestamps (spec.md §4.1 "Run index").
type Meta struct {
	Status    Status          `json:"status"`
	Tags      []string        `json:"tags,omitempty"`
	Parent    string          `json:"parent,omitempty"`
	Retention RetentionPolicy `json:"retention"`
	CreatedAt types.Timestamp `json:"created_at"`
	UpdatedAt types.Timestamp `json:"updated_at"`
}

func encodeKey(run types.RunId) []byte {
	return keyspace.Encode(types.PrimitiveRun, run)
}

func encodeMeta(m Meta) []byte {
	b, _ := json.Marshal(m)
	return b
}

func decodeMeta(b []byte) (Meta, error) {
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func notFound(run types.RunId) error {
	ref := types.NewRunRef(run)
	return types.New(types.KindNotFound, &ref, "run not found")
}

func invalidTransition(run types.RunId, from, to Status) error {
	ref := types.NewRunRef(run)
	return types.New(types.KindInvalidInput, &ref, "invalid run status transition from "+string(from)+" to "+string(to))
}

// canTransition enforces the DAG create -> active <-> paused -> one of
// {completed, failed, cancelled} -> archived. Orphaned behaves like
// paused: it accepts resume, complete, fail, and cancel.
func canTransition(from, to Status) bool {
	switch from {
	case StatusActive:
		switch to {
		case StatusPaused, StatusCompleted, StatusFailed, StatusCancelled, StatusOrphaned:
			return true
		}
	case StatusPaused, StatusOrphaned:
		switch to {
		case StatusActive, StatusCompleted, StatusFailed, StatusCancelled:
			return true
		}
	case StatusCompleted, StatusFailed, StatusCancelled:
		return to == StatusArchived
	}
	return false
}

func getMeta(tx *txn.Txn, runID types.RunId) (Meta, bool, error) {
	sv, found, err := tx.Get(encodeKey(runID))
	if err != nil || !found {
		return Meta{}, found, err
	}
	m, err := decodeMeta(sv.ValueBytes)
	if err != nil {
		return Meta{}, false, err
	}
	return m, true, nil
}

func stageMeta(tx *txn.Txn, runID types.RunId, m Meta) error {
	value := encodeMeta(m)
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return value, types.TxnId(assignedTxnID), false, nil
	}
	return tx.StageWrite(encodeKey(runID), wal.TagRunPut, value, false, nil, assign)
}

// Create stages a new run's metadata document with status Active.
// It fails with KindAlreadyExists if the run already has metadata.
func Create(tx *txn.Txn, runID types.RunId, parent string, tags []string, retention RetentionPolicy, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "create", time.Now())
	encKey := encodeKey(runID)
	m := Meta{
		Status:    StatusActive,
		Tags:      tags,
		Parent:    parent,
		Retention: retention,
		CreatedAt: now,
		UpdatedAt: now,
	}
	value := encodeMeta(m)
	cas := func(head mvcc.StoredValue, exists bool) error {
		if exists {
			ref := types.NewRunRef(runID)
			return types.New(types.KindAlreadyExists, &ref, "run already exists")
		}
		return nil
	}
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return value, types.TxnId(assignedTxnID), false, nil
	}
	return tx.StageWrite(encKey, wal.TagRunPut, value, false, cas, assign)
}

// Get resolves runID's current metadata.
func Get(tx *txn.Txn, runID types.RunId) (Meta, bool, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "get", time.Now())
	return getMeta(tx, runID)
}

// List returns the ids of every run the database knows about,
// regardless of status — a global listing, not scoped to one run
// (spec.md §4.1's run index spans the whole database).
func List(tx *txn.Txn, limit int) ([]types.RunId, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "list", time.Now())
	lo, hi := keyspace.KindRange(types.PrimitiveRun)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), limit, nil)
	out := make([]types.RunId, 0, len(items))
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil {
			continue
		}
		out = append(out, tk.Run)
	}
	return out, nil
}

func transition(tx *txn.Txn, runID types.RunId, to Status, now types.Timestamp) error {
	m, found, err := getMeta(tx, runID)
	if err != nil {
		return err
	}
	if !found {
		return notFound(runID)
	}
	if !canTransition(m.Status, to) {
		return invalidTransition(runID, m.Status, to)
	}
	m.Status = to
	m.UpdatedAt = now
	return stageMeta(tx, runID, m)
}

// Pause moves an Active run to Paused.
func Pause(tx *txn.Txn, runID types.RunId, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "pause", time.Now())
	return transition(tx, runID, StatusPaused, now)
}

// Resume moves a Paused or Orphaned run back to Active.
func Resume(tx *txn.Txn, runID types.RunId, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "resume", time.Now())
	return transition(tx, runID, StatusActive, now)
}

// Complete moves an Active or Paused run to Completed. Close is an
// alias matching spec.md's operation table.
func Complete(tx *txn.Txn, runID types.RunId, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "complete", time.Now())
	return transition(tx, runID, StatusCompleted, now)
}

// Close finalizes a run successfully; equivalent to Complete.
func Close(tx *txn.Txn, runID types.RunId, now types.Timestamp) error {
	return Complete(tx, runID, now)
}

// Fail moves an Active or Paused run to Failed.
func Fail(tx *txn.Txn, runID types.RunId, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "fail", time.Now())
	return transition(tx, runID, StatusFailed, now)
}

// Cancel moves an Active or Paused run to Cancelled.
func Cancel(tx *txn.Txn, runID types.RunId, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "cancel", time.Now())
	return transition(tx, runID, StatusCancelled, now)
}

// Archive moves a Completed, Failed, or Cancelled run to the terminal
// Archived status.
func Archive(tx *txn.Txn, runID types.RunId, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "archive", time.Now())
	return transition(tx, runID, StatusArchived, now)
}

// MarkOrphaned moves an Active or Paused run to Orphaned. Called by
// pkg/strata at database open for every run left non-terminal by a
// prior process (spec.md §9's stated default, since no heartbeat
// mechanism is specified).
func MarkOrphaned(tx *txn.Txn, runID types.RunId, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "mark_orphaned", time.Now())
	m, found, err := getMeta(tx, runID)
	if err != nil {
		return err
	}
	if !found {
		return notFound(runID)
	}
	if m.Status != StatusActive && m.Status != StatusPaused {
		return nil
	}
	m.Status = StatusOrphaned
	m.UpdatedAt = now
	return stageMeta(tx, runID, m)
}

// Tags returns runID's current tag set.
func Tags(tx *txn.Txn, runID types.RunId) ([]string, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "tags", time.Now())
	m, found, err := getMeta(tx, runID)
	if err != nil || !found {
		return nil, err
	}
	return m.Tags, nil
}

// SetTags overwrites runID's tag set.
func SetTags(tx *txn.Txn, runID types.RunId, tags []string, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "set_tags", time.Now())
	m, found, err := getMeta(tx, runID)
	if err != nil {
		return err
	}
	if !found {
		return notFound(runID)
	}
	m.Tags = tags
	m.UpdatedAt = now
	return stageMeta(tx, runID, m)
}

// Retention returns runID's current retention policy.
func Retention(tx *txn.Txn, runID types.RunId) (RetentionPolicy, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "retention", time.Now())
	m, found, err := getMeta(tx, runID)
	if err != nil || !found {
		return RetentionPolicy{}, err
	}
	return m.Retention, nil
}

// SetRetention updates runID's retention policy.
func SetRetention(tx *txn.Txn, runID types.RunId, policy RetentionPolicy, now types.Timestamp) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "set_retention", time.Now())
	m, found, err := getMeta(tx, runID)
	if err != nil {
		return err
	}
	if !found {
		return notFound(runID)
	}
	m.Retention = policy
	m.UpdatedAt = now
	return stageMeta(tx, runID, m)
}

// Query lists the ids of every run matching both filters: status (if
// non-empty) and tag (if non-empty, a run must carry it). Either filter
// left zero-valued is unconstrained.
func Query(tx *txn.Txn, status Status, tag string, limit int) ([]types.RunId, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "query", time.Now())
	ids, err := List(tx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]types.RunId, 0, len(ids))
	for _, id := range ids {
		m, found, err := getMeta(tx, id)
		if err != nil || !found {
			continue
		}
		if status != "" && m.Status != status {
			continue
		}
		if tag != "" && !hasTag(m.Tags, tag) {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Children returns the ids of every run whose Parent equals parentID's
// string form.
func Children(tx *txn.Txn, parentID types.RunId, limit int) ([]types.RunId, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "children", time.Now())
	ids, err := List(tx, 0)
	if err != nil {
		return nil, err
	}
	parent := parentID.ID.String()
	out := make([]types.RunId, 0, len(ids))
	for _, id := range ids {
		m, found, err := getMeta(tx, id)
		if err != nil || !found {
			continue
		}
		if m.Parent != parent {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// everyPrimitive lists every primitive kind a run's data can live
// under, including run itself (its own metadata document).
var everyPrimitive = []types.PrimitiveType{
	types.PrimitiveKV,
	types.PrimitiveJSON,
	types.PrimitiveEvent,
	types.PrimitiveState,
	types.PrimitiveTrace,
	types.PrimitiveVector,
	types.PrimitiveRun,
}

// Delete cascades: it tombstones every typed key stored under runID
// across all seven primitive kinds, including the run's own metadata
// document, in one transaction (spec.md §6.2). It does not distinguish
// which primitive a key came from when staging the tombstone — a
// uniform delete tag is enough, since replay only needs the key itself
// to know what to republish as a tombstone.
//
// The default run can never be deleted (spec.md §6.2): its identity is
// fixed (uuid.Nil) and shared by every caller that names no run, so
// cascading a tombstone across it would wipe state out from under
// unrelated callers with no way to recreate it under the same identity.
func Delete(tx *txn.Txn, runID types.RunId) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "delete", time.Now())
	if runID.ID == uuid.Nil {
		ref := types.NewRunRef(runID)
		return types.New(types.KindConstraintViolation, &ref, "cannot delete the default run")
	}
	for _, kind := range everyPrimitive {
		lo, hi := keyspace.Range(kind, runID)
		items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), 0, nil)
		for _, it := range items {
			if !it.Found {
				continue
			}
			key := append([]byte(nil), it.Key...)
			assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
				return nil, types.TxnId(assignedTxnID), true, nil
			}
			if err := tx.StageWrite(key, wal.TagRunDelete, nil, true, nil, assign); err != nil {
				return err
			}
		}
	}
	return nil
}
