package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
)

// Write captures store's current chain heads and coord's counters into
// a new snapshot file at path, keyed by walOffsetEnd — the WAL
// position whose committed prefix this snapshot reflects (spec.md
// §4.5.1). The file is written at path+".tmp" and renamed into place
// only once fully flushed, so a crash mid-write leaves only the tmp
// file, which Discover ignores.
func Write(path string, store *mvcc.Store, coord *txn.Coordinator, walOffsetEnd int64) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotDuration)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", tmp, err)
	}

	var body bytes.Buffer
	body.Write(magic[:])
	body.WriteByte(FormatVersion)
	_ = binary.Write(&body, binary.BigEndian, uint64(walOffsetEnd))

	for _, kind := range everyPrimitive {
		lo, hi := keyspace.KindRange(kind)
		var entries []headEntry
		for _, key := range store.ChainKeys(lo, hi) {
			head, ok := store.RawHead(key)
			if !ok {
				continue
			}
			entries = append(entries, headEntry{
				Key:       key,
				Value:     head.ValueBytes,
				Version:   head.Version.N,
				Timestamp: uint64(head.Timestamp),
				Tombstone: head.Tombstone,
			})
		}
		writeBlob(&body, blob{tag: uint8(kind), payload: encodeEntries(entries)})
	}

	nextTxnID, seq, vector := coord.CounterSnapshot()
	writeBlob(&body, blob{tag: metaTag, payload: encodeCounters(counters{
		NextTxnID: nextTxnID,
		Sequence:  seq,
		Vector:    vector,
	})})

	footerCRC := crc32.ChecksumIEEE(body.Bytes())

	if _, err := f.Write(body.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("snapshot: write body: %w", err)
	}
	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], footerCRC)
	if _, err := f.Write(footer[:]); err != nil {
		_ = f.Close()
		return fmt.Errorf("snapshot: write footer: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("snapshot: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	metrics.SnapshotAgeSeconds.Set(0)
	return nil
}
