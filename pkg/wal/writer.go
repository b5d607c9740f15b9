package wal

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratadb-labs/strata-core/pkg/log"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
)

// Durability selects how aggressively the WAL fsyncs committed data.
type Durability int

const (
	// DurabilityNone never fsyncs; data loss on crash is permitted up
	// to "last published" (spec.md §4.3.3).
	DurabilityNone Durability = iota
	// DurabilityStrict fsyncs the TxCommit record before the commit
	// returns — every Append with fsyncRequired=true blocks.
	DurabilityStrict
	// DurabilityBatched fsyncs on a background timer or batch-size
	// threshold, whichever comes first.
	DurabilityBatched
)

// Config configures a Writer's durability behavior.
type Config struct {
	Mode Durability

	// IntervalMs and BatchSize apply only to DurabilityBatched.
	IntervalMs int
	BatchSize  int
}

// Writer appends records to a single active WAL segment.
//
// Resolved open question (spec.md §9): in DurabilityBatched mode, a
// commit's Append call returns as soon as bytes are written to the
// OS — it does NOT block waiting for the next fsync. Only two things
// block on an fsync: a DurabilityStrict Append, and an explicit call
// to Flush. This keeps the common case (batched, async) cheap while
// giving callers that need the guarantee (checkpoints, shutdown) an
// explicit, synchronous way to get it.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	cfg Config
	log zerolog.Logger

	offset      int64
	pending     int
	flushTrig   chan struct{}
	shutdown    chan struct{}
	done        chan struct{}
	flushErrMu  sync.Mutex
	lastFlushAt time.Time

	bytesWritten atomic.Int64
}

// Open opens (creating if absent) the segment file at path for
// appending and starts the background flusher if cfg.Mode is
// DurabilityBatched.
func Open(path string, cfg Config) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("wal: stat %s: %w", path, err)
	}
	if cfg.IntervalMs <= 0 {
		cfg.IntervalMs = 50
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	w := &Writer{
		f:        f,
		cfg:      cfg,
		log:      log.WithComponent("wal"),
		offset:   info.Size(),
		flushTrig: make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cfg.Mode == DurabilityBatched {
		go w.runFlusher()
	} else {
		close(w.done)
	}
	return w, nil
}

// Append writes records serially and returns the offset immediately
// following the appended bytes (the "wal_offset_end" snapshots key
// against). If fsyncRequired is true, the durability mode governs
// whether this call blocks: Strict always blocks; Batched and None
// never do (Batched instead schedules/accelerates the background
// flush; see Writer's doc comment).
func (w *Writer) Append(records []Record, fsyncRequired bool) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range records {
		buf, err := r.Encode()
		if err != nil {
			return w.offset, fmt.Errorf("wal: encode record: %w", err)
		}
		n, err := w.f.Write(buf)
		if err != nil {
			return w.offset, fmt.Errorf("wal: write: %w", err)
		}
		w.offset += int64(n)
		w.bytesWritten.Add(int64(n))
	}
	w.pending += len(records)

	metrics.WALSegmentBytes.Set(float64(w.offset))

	switch w.cfg.Mode {
	case DurabilityStrict:
		if fsyncRequired {
			if err := w.syncLocked(); err != nil {
				return w.offset, fmt.Errorf("wal: fsync: %w", err)
			}
			w.pending = 0
		}
	case DurabilityBatched:
		if fsyncRequired && w.pending >= w.cfg.BatchSize {
			select {
			case w.flushTrig <- struct{}{}:
			default:
			}
		}
	case DurabilityNone:
		// never fsyncs
	}
	return w.offset, nil
}

// Flush forces an fsync now and blocks until it completes, regardless
// of durability mode (a no-op under DurabilityNone beyond the syscall
// itself, since there is nothing meaningful to guarantee there).
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.syncLocked(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	w.pending = 0
	w.lastFlushAt = time.Now()
	return nil
}

// syncLocked fsyncs the segment file, recording the call under the
// writer's configured durability mode. Callers must hold w.mu.
func (w *Writer) syncLocked() error {
	timer := metrics.NewTimer()
	err := w.f.Sync()
	timer.ObserveDurationVec(metrics.WALFsyncDuration, w.modeLabel())
	return err
}

func (w *Writer) modeLabel() string {
	switch w.cfg.Mode {
	case DurabilityStrict:
		return "strict"
	case DurabilityBatched:
		return "batched"
	default:
		return "none"
	}
}

// Offset returns the current write offset (== wal_offset_end if this
// is the active segment).
func (w *Writer) Offset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

// BytesWritten returns the lifetime count of bytes appended, for
// pkg/metrics.
func (w *Writer) BytesWritten() int64 { return w.bytesWritten.Load() }

func (w *Writer) runFlusher() {
	defer close(w.done)
	ticker := time.NewTicker(time.Duration(w.cfg.IntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.log.Error().Err(err).Msg("batched wal flush failed")
			}
		case <-w.flushTrig:
			if err := w.Flush(); err != nil {
				w.log.Error().Err(err).Msg("batch-size-triggered wal flush failed")
			}
		case <-w.shutdown:
			return
		}
	}
}

// Close flushes any pending batched writes, stops the background
// flusher, and closes the underlying file handle.
func (w *Writer) Close() error {
	if w.cfg.Mode == DurabilityBatched {
		close(w.shutdown)
		<-w.done
	}
	if err := w.Flush(); err != nil {
		w.log.Warn().Err(err).Msg("flush on close failed")
	}
	return w.f.Close()
}
