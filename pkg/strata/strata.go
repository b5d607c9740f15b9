package strata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratadb-labs/strata-core/pkg/config"
	"github.com/stratadb-labs/strata-core/pkg/log"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/run"
	"github.com/stratadb-labs/strata-core/pkg/snapshot"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

const (
	walSegmentName = "000001.log"
	manifestName   = "manifest"
	defaultShards  = 16
)

// Config configures Open.
type Config struct {
	// DataDir is the on-disk directory (spec.md §6.3). Ignored when
	// Ephemeral or Temp is set.
	DataDir string

	// Ephemeral databases keep no WAL and no snapshots; all state is
	// lost on Close.
	Ephemeral bool

	// Temp databases use the same on-disk layout as a persistent
	// database, but inside a process-local scratch directory that
	// Close removes.
	Temp bool

	// ShardCount sizes the MVCC store; defaults to 16.
	ShardCount int

	// WAL configures the write-ahead log's durability mode. Ignored
	// when Ephemeral is set.
	WAL wal.Config
}

// DB is one open Strata database: the MVCC store, the commit
// coordinator, and (unless ephemeral) the WAL writer and snapshot
// directory backing them.
type DB struct {
	cfg Config

	dataDir      string
	snapshotsDir string
	walPath      string
	tempDir      string

	store *mvcc.Store
	coord *txn.Coordinator
	wal   *wal.Writer

	defaultRunName string
	log            zerolog.Logger
}

// memoryAppender is the Appender used for ephemeral databases: it
// accepts every record and persists nothing.
type memoryAppender struct{}

func (memoryAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) {
	return 0, nil
}

// DefaultRunName is the run used by callers that do not name one
// explicitly (spec.md §6.1's "Default run").
const DefaultRunName = "default"

// DefaultRun returns the well-known run commands fall back to when no
// RunId is given — the same fixed identity (types.DefaultRunID) every
// process that opens this database agrees on.
func DefaultRun() types.RunId {
	return types.DefaultRunID
}

// Open opens (creating if absent) a database at cfg.DataDir, replaying
// its WAL against the newest valid snapshot to reach the same state it
// was in at its last fsynced commit (spec.md §4.5). Every non-terminal
// run is marked Orphaned once recovery completes (spec.md §4.7).
func Open(cfg Config) (*DB, error) {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = defaultShards
	}
	logger := log.WithComponent("strata")

	db := &DB{cfg: cfg, log: logger, defaultRunName: DefaultRunName}

	if cfg.Ephemeral {
		db.store = mvcc.New(cfg.ShardCount)
		db.coord = txn.New(db.store, memoryAppender{})
		return db, nil
	}

	dataDir := cfg.DataDir
	if cfg.Temp {
		tmp, err := os.MkdirTemp("", "strata-temp-*")
		if err != nil {
			return nil, fmt.Errorf("strata: create temp data dir: %w", err)
		}
		dataDir = tmp
		db.tempDir = tmp
	}
	if dataDir == "" {
		return nil, fmt.Errorf("strata: DataDir required unless Ephemeral or Temp")
	}

	db.dataDir = dataDir
	db.snapshotsDir = filepath.Join(dataDir, "snapshots")
	walDir := filepath.Join(dataDir, "wal")
	db.walPath = filepath.Join(walDir, walSegmentName)

	for _, dir := range []string{dataDir, walDir, db.snapshotsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("strata: create %s: %w", dir, err)
		}
	}

	loaded, found, err := snapshot.Discover(db.snapshotsDir)
	if err != nil {
		return nil, fmt.Errorf("strata: discover snapshot: %w", err)
	}

	db.store = mvcc.New(cfg.ShardCount)

	walWriter, err := wal.Open(db.walPath, cfg.WAL)
	if err != nil {
		return nil, fmt.Errorf("strata: open wal: %w", err)
	}
	db.wal = walWriter
	db.coord = txn.New(db.store, walWriter)

	var walOffsetEnd int64
	if found {
		snapshot.Install(db.store, db.coord, loaded)
		walOffsetEnd = loaded.WALOffsetEnd
		logger.Info().Int64("wal_offset_end", walOffsetEnd).Msg("installed snapshot")
	}

	records, err := readWALTail(db.walPath, walOffsetEnd)
	if err != nil {
		_ = walWriter.Close()
		return nil, fmt.Errorf("strata: read wal tail: %w", err)
	}
	snapshot.Replay(db.store, db.coord, records)
	logger.Info().Int("records", len(records)).Msg("replayed wal tail")

	if err := db.markOrphanedRuns(); err != nil {
		_ = walWriter.Close()
		return nil, fmt.Errorf("strata: mark orphaned runs: %w", err)
	}

	if err := db.writeManifest(walOffsetEnd); err != nil {
		logger.Warn().Err(err).Msg("failed to write manifest")
	}

	return db, nil
}

// OpenFromConfig adapts a pkg/config.Config (as loaded from YAML or
// built with its Option functions) into the Config Open expects, so
// cmd/stratadb and embedding applications share one configuration
// surface rather than duplicating field-mapping logic at each call
// site.
func OpenFromConfig(cfg config.Config) (*DB, error) {
	db, err := Open(Config{
		DataDir:    cfg.Path,
		Ephemeral:  cfg.Ephemeral,
		Temp:       cfg.Temp,
		ShardCount: cfg.ShardCount,
		WAL:        cfg.WALConfig(),
	})
	if err != nil {
		return nil, err
	}
	if cfg.DefaultRun != "" {
		db.defaultRunName = cfg.DefaultRun
	}
	return db, nil
}

// readWALTail reads every record starting at byte offset skip in the
// WAL segment at path. A missing file (a brand-new database) is not an
// error: there is simply nothing to replay.
func readWALTail(path string, skip int64) ([]wal.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	if skip > 0 {
		if _, err := f.Seek(skip, 0); err != nil {
			return nil, fmt.Errorf("seek past snapshot offset: %w", err)
		}
	}
	records, _, err := wal.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// markOrphanedRuns implements the orphan-detection half of spec.md
// §4.7: at open, any run left Active or Paused by a process that never
// reached a terminal status is marked Orphaned.
func (db *DB) markOrphanedRuns() error {
	tx := db.coord.Begin(false)
	ids, err := run.List(tx, 0)
	if err != nil {
		tx.Rollback()
		return err
	}
	now := types.Timestamp(time.Now().UnixMicro())
	for _, id := range ids {
		meta, ok, err := run.Get(tx, id)
		if err != nil {
			tx.Rollback()
			return err
		}
		if !ok {
			continue
		}
		if meta.Status == run.StatusActive || meta.Status == run.StatusPaused {
			if err := run.MarkOrphaned(tx, id, now); err != nil {
				tx.Rollback()
				return err
			}
			log.WithRunID(id.String()).Warn().Str("previous_status", string(meta.Status)).Msg("marked orphaned on open")
		}
	}
	if len(ids) == 0 {
		tx.Rollback()
		return nil
	}
	_, err = tx.Commit()
	return err
}

// Checkpoint takes a new snapshot at the WAL's current offset and
// records it in the manifest. It is safe to call concurrently with
// commits: a snapshot taken mid-write reflects some consistent prefix
// of the WAL no later than Offset() at the instant it is read, and
// recovery always replays forward from exactly that offset.
func (db *DB) Checkpoint() error {
	if db.wal == nil {
		return fmt.Errorf("strata: checkpoint has no effect on an ephemeral database")
	}
	if err := db.wal.Flush(); err != nil {
		return fmt.Errorf("strata: flush wal before checkpoint: %w", err)
	}
	offset := db.wal.Offset()
	path := filepath.Join(db.snapshotsDir, fmt.Sprintf("%d.snap", offset))
	if err := snapshot.Write(path, db.store, db.coord, offset); err != nil {
		return fmt.Errorf("strata: write snapshot: %w", err)
	}
	if err := db.writeManifest(offset); err != nil {
		return fmt.Errorf("strata: write manifest: %w", err)
	}
	db.log.Info().Str("path", path).Msg("checkpoint complete")
	return nil
}

// Begin starts a new transaction. Every primitive operation takes the
// resulting *txn.Txn as its first argument.
func (db *DB) Begin(readOnly bool) *txn.Txn {
	return db.coord.Begin(readOnly)
}

// DefaultRun returns the run this database falls back to when a
// caller names none, honoring config.Config.DefaultRun when opened via
// OpenFromConfig.
func (db *DB) DefaultRun() types.RunId {
	return types.NamedDefaultRun(db.defaultRunName)
}

// Coordinator exposes the underlying commit coordinator, for callers
// that need LowWaterMark (pkg/retention) or counter introspection.
func (db *DB) Coordinator() *txn.Coordinator { return db.coord }

// Store exposes the underlying MVCC store, for read paths (scan,
// history) that only need a snapshot token, not a full transaction.
func (db *DB) Store() *mvcc.Store { return db.store }

// RunCounts returns the number of runs in each lifecycle status, for
// pkg/metrics.RunsTotal. It satisfies pkg/metrics.Source structurally
// rather than metrics importing this package, which would cycle back
// through pkg/txn (coordinator.go already imports pkg/metrics).
func (db *DB) RunCounts() (map[string]int, error) {
	tx := db.Begin(true)
	defer tx.Rollback()
	ids, err := run.List(tx, 0)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, id := range ids {
		meta, ok, err := run.Get(tx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		counts[string(meta.Status)]++
	}
	return counts, nil
}

// WALBytesWritten returns the lifetime count of bytes appended to the
// WAL, for pkg/metrics. Always 0 for an ephemeral database.
func (db *DB) WALBytesWritten() int64 {
	if db.wal == nil {
		return 0
	}
	return db.wal.BytesWritten()
}

// ShardCount returns the MVCC store's shard count, for pkg/metrics.
func (db *DB) ShardCount() int {
	return db.store.ShardCount()
}

// ChainCount returns the MVCC store's total version-chain count, for
// pkg/metrics.
func (db *DB) ChainCount() int {
	return db.store.ChainCount()
}

// Close flushes and closes the WAL writer. Temp databases also remove
// their scratch directory; ephemeral databases have nothing to close.
func (db *DB) Close() error {
	var closeErr error
	if db.wal != nil {
		closeErr = db.wal.Close()
	}
	if db.tempDir != "" {
		if err := os.RemoveAll(db.tempDir); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("strata: remove temp data dir: %w", err)
		}
	}
	return closeErr
}

// manifest pins the on-disk format version and the offset of the most
// recent snapshot, so a future open (or an external backup tool) does
// not need to list the snapshots directory to find it.
type manifest struct {
	FormatVersion       uint8 `json:"format_version"`
	LatestSnapshotOffset int64 `json:"latest_snapshot_offset"`
}

func (db *DB) writeManifest(offset int64) error {
	m := manifest{FormatVersion: snapshot.FormatVersion, LatestSnapshotOffset: offset}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := filepath.Join(db.dataDir, manifestName+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(db.dataDir, manifestName))
}
