package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stratadb-labs/strata-core/pkg/metrics"
)

// Loaded is one successfully validated snapshot's contents, ready to
// be installed into a fresh MVCC store and coordinator.
type Loaded struct {
	WALOffsetEnd int64
	Blobs        map[uint8][]headEntry
	Counters     counters
}

// candidates returns every "*.snap" file in dir, ordered by the
// wal_offset_end encoded in its filename descending — Discover tries
// them newest first (spec.md §4.5.2). Malformed filenames are skipped
// rather than erroring the whole listing.
func candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: read dir %s: %w", dir, err)
	}
	type cand struct {
		path   string
		offset int64
	}
	var out []cand
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap") {
			continue
		}
		offsetStr := strings.TrimSuffix(name, ".snap")
		offset, err := strconv.ParseInt(offsetStr, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, cand{path: filepath.Join(dir, name), offset: offset})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].offset > out[j].offset })
	paths := make([]string, len(out))
	for i, c := range out {
		paths[i] = c.path
	}
	return paths, nil
}

// Discover finds the newest valid snapshot in dir, validating CRCs
// (footer, then every blob) before accepting one. found is false if
// dir has no ".snap" files or none of them validate — the caller then
// starts from empty state and replays the entire WAL.
func Discover(dir string) (loaded *Loaded, found bool, err error) {
	paths, err := candidates(dir)
	if err != nil {
		return nil, false, err
	}
	for _, path := range paths {
		timer := metrics.NewTimer()
		l, err := Load(path)
		timer.ObserveDuration(metrics.SnapshotDuration)
		if err != nil {
			continue
		}
		if info, statErr := os.Stat(path); statErr == nil {
			metrics.SnapshotAgeSeconds.Set(time.Since(info.ModTime()).Seconds())
		}
		return l, true, nil
	}
	return nil, false, nil
}

// Load reads and validates the snapshot file at path, returning its
// fully decoded contents. A CRC mismatch anywhere — footer or any
// individual blob — is reported as an error rather than a partial
// result; a caller discovering multiple candidates should fall back to
// the next-newest one.
func Load(path string) (*Loaded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	if len(raw) < len(magic)+1+8+4 {
		return nil, fmt.Errorf("snapshot: %s too short", path)
	}
	footerOffset := len(raw) - 4
	wantCRC := binary.BigEndian.Uint32(raw[footerOffset:])
	body := raw[:footerOffset]
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, fmt.Errorf("snapshot: %s footer crc mismatch", path)
	}

	r := bytes.NewReader(body)
	var gotMagic [8]byte
	if _, err := readFull(r, gotMagic[:]); err != nil || gotMagic != magic {
		return nil, fmt.Errorf("snapshot: %s bad magic", path)
	}
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %s reading format version: %w", path, err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("snapshot: %s unsupported format version %d", path, version)
	}
	var walOffsetEnd uint64
	if err := binary.Read(r, binary.BigEndian, &walOffsetEnd); err != nil {
		return nil, fmt.Errorf("snapshot: %s reading wal offset: %w", path, err)
	}

	loaded := &Loaded{WALOffsetEnd: int64(walOffsetEnd), Blobs: make(map[uint8][]headEntry)}
	for r.Len() > 0 {
		b, err := readBlob(r)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %s: %w", path, err)
		}
		if b.tag == metaTag {
			c, err := decodeCounters(b.payload)
			if err != nil {
				return nil, fmt.Errorf("snapshot: %s decoding counters: %w", path, err)
			}
			loaded.Counters = c
			continue
		}
		entries, err := decodeEntries(b.payload)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %s decoding blob %d: %w", path, b.tag, err)
		}
		loaded.Blobs[b.tag] = entries
	}
	return loaded, nil
}
