package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/stratadb-labs/strata-core/pkg/types"
)

var magic = [8]byte{'I', 'N', 'M', 'E', 'M', 'S', 'N', 'P'}

// FormatVersion identifies the snapshot file layout this package
// writes and is willing to read.
const FormatVersion uint8 = 1

// metaTag marks the trailing counters blob. It deliberately falls
// outside types.PrimitiveType's range (1-7) so a reader can always
// tell a primitive blob from the meta blob by its tag alone.
const metaTag uint8 = 0xFE

// everyPrimitive is the fixed order primitive blobs are written and
// read back in.
var everyPrimitive = []types.PrimitiveType{
	types.PrimitiveKV,
	types.PrimitiveJSON,
	types.PrimitiveEvent,
	types.PrimitiveState,
	types.PrimitiveTrace,
	types.PrimitiveVector,
	types.PrimitiveRun,
}

// headEntry is one MVCC chain head captured into a snapshot blob.
type headEntry struct {
	Key       []byte
	Value     []byte
	Version   uint64
	Timestamp uint64
	Tombstone bool
}

func encodeEntries(entries []headEntry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(e.Key)))
		buf.Write(e.Key)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(e.Value)))
		buf.Write(e.Value)
		_ = binary.Write(&buf, binary.BigEndian, e.Version)
		_ = binary.Write(&buf, binary.BigEndian, e.Timestamp)
		if e.Tombstone {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

func decodeEntries(b []byte) ([]headEntry, error) {
	r := bytes.NewReader(b)
	var out []headEntry
	for r.Len() > 0 {
		var klen, vlen uint32
		if err := binary.Read(r, binary.BigEndian, &klen); err != nil {
			return nil, fmt.Errorf("snapshot: reading key length: %w", err)
		}
		key := make([]byte, klen)
		if _, err := readFull(r, key); err != nil {
			return nil, fmt.Errorf("snapshot: reading key: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &vlen); err != nil {
			return nil, fmt.Errorf("snapshot: reading value length: %w", err)
		}
		val := make([]byte, vlen)
		if _, err := readFull(r, val); err != nil {
			return nil, fmt.Errorf("snapshot: reading value: %w", err)
		}
		var version, ts uint64
		if err := binary.Read(r, binary.BigEndian, &version); err != nil {
			return nil, fmt.Errorf("snapshot: reading version: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
			return nil, fmt.Errorf("snapshot: reading timestamp: %w", err)
		}
		tb, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("snapshot: reading tombstone flag: %w", err)
		}
		out = append(out, headEntry{Key: key, Value: val, Version: version, Timestamp: ts, Tombstone: tb == 1})
	}
	return out, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := r.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// counters is the JSON-encoded meta blob: every monotone counter the
// coordinator owns that cannot be re-derived from a chain head alone,
// without which S4 (event/vector monotonicity across a restart) cannot
// hold (spec.md §4.5.1). A state cell's counter needs no entry here —
// see txn.Coordinator's seqCounters field comment.
type counters struct {
	NextTxnID uint64            `json:"next_txn_id"`
	Sequence  map[string]uint64 `json:"sequence"`
	Vector    map[string]uint64 `json:"vector"`
}

func encodeCounters(c counters) []byte {
	b, _ := json.Marshal(c)
	return b
}

func decodeCounters(b []byte) (counters, error) {
	var c counters
	if err := json.Unmarshal(b, &c); err != nil {
		return counters{}, err
	}
	return c, nil
}

// blob is one length-prefixed, CRC-checked section of a snapshot file.
type blob struct {
	tag     uint8
	payload []byte
}

func writeBlob(buf *bytes.Buffer, b blob) {
	buf.WriteByte(b.tag)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(b.payload)))
	buf.Write(b.payload)
	crc := crc32.ChecksumIEEE(append([]byte{b.tag}, b.payload...))
	_ = binary.Write(buf, binary.BigEndian, crc)
}

func readBlob(r *bytes.Reader) (blob, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return blob{}, err
	}
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return blob{}, fmt.Errorf("snapshot: reading blob length: %w", err)
	}
	payload := make([]byte, length)
	if _, err := readFull(r, payload); err != nil {
		return blob{}, fmt.Errorf("snapshot: reading blob payload: %w", err)
	}
	var wantCRC uint32
	if err := binary.Read(r, binary.BigEndian, &wantCRC); err != nil {
		return blob{}, fmt.Errorf("snapshot: reading blob crc: %w", err)
	}
	gotCRC := crc32.ChecksumIEEE(append([]byte{tag}, payload...))
	if wantCRC != gotCRC {
		return blob{}, fmt.Errorf("snapshot: blob crc mismatch (tag %d)", tag)
	}
	return blob{tag: tag, payload: payload}, nil
}
