package wal_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/wal"
)

func TestRecordRoundTrip(t *testing.T) {
	r := wal.Record{TypeTag: wal.TagKVPut, TxnID: 42, TimestampUs: 12345, Payload: []byte("hello")}
	enc, err := r.Encode()
	require.NoError(t, err)

	got, err := wal.ReadRecord(bytes.NewReader(enc))
	require.NoError(t, err)
	assert.Equal(t, r.TypeTag, got.TypeTag)
	assert.Equal(t, r.TxnID, got.TxnID)
	assert.Equal(t, r.TimestampUs, got.TimestampUs)
	assert.Equal(t, r.Payload, got.Payload)
}

func TestReadAllTruncatesPartialTail(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		r := wal.Record{TypeTag: wal.TagKVPut, TxnID: uint64(i), Payload: []byte("x")}
		enc, err := r.Encode()
		require.NoError(t, err)
		buf.Write(enc)
	}
	full := buf.Bytes()
	// Corrupt last byte of the final record's CRC.
	partial := append([]byte(nil), full...)
	partial[len(partial)-1] ^= 0xFF

	records, validBytes, err := wal.ReadAll(bytes.NewReader(partial))
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Less(t, validBytes, int64(len(full)))
}

func TestReadAllStopsAtTruncatedLengthPrefix(t *testing.T) {
	r := wal.Record{TypeTag: wal.TagKVPut, TxnID: 1, Payload: []byte("x")}
	enc, err := r.Encode()
	require.NoError(t, err)
	truncated := append(enc, 0x00, 0x00) // dangling partial length prefix

	records, _, err := wal.ReadAll(bytes.NewReader(truncated))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestWriterStrictModeFsyncsAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")
	w, err := wal.Open(path, wal.Config{Mode: wal.DurabilityStrict})
	require.NoError(t, err)

	rec := wal.Record{TypeTag: wal.TagTxCommit, TxnID: 1}
	off, err := w.Append([]wal.Record{rec}, true)
	require.NoError(t, err)
	require.Greater(t, off, int64(0))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, validBytes, err := wal.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.EqualValues(t, len(data), validBytes)
}

func TestWriterBatchedModeFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")
	w, err := wal.Open(path, wal.Config{Mode: wal.DurabilityBatched, IntervalMs: 1000, BatchSize: 1000})
	require.NoError(t, err)

	rec := wal.Record{TypeTag: wal.TagKVPut, TxnID: 7, Payload: []byte("v")}
	_, err = w.Append([]wal.Record{rec}, true)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, _, err := wal.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 1)
}
