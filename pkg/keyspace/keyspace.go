package keyspace

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/stratadb-labs/strata-core/pkg/types"
)

// TypedKey is the decoded form of an encoded address: the triple
// (PrimitiveKind, RunId, LocalKey) spec.md §3.3 defines as the domain
// of the storage keyspace.
type TypedKey struct {
	Kind  types.PrimitiveType
	Run   types.RunId
	Local []string // ordered local-key segments, e.g. [stream, seq] for events
}

const (
	segEscape = 0x00
	segLiteralFollow = 0xFF
	segTerminator = 0x00
)

// escapeSegment appends seg to buf using the null-escape scheme: every
// literal 0x00 byte becomes 0x00 0xFF, and the segment is terminated by
// a bare 0x00 0x00. This is the standard trick (used by key-ordered
// stores such as CockroachDB and etcd's mvcc keyspace) for making
// concatenated variable-length segments sort the same as the tuple of
// segments would under lexicographic order.
func escapeSegment(buf *bytes.Buffer, seg []byte) {
	for _, b := range seg {
		if b == segEscape {
			buf.WriteByte(segEscape)
			buf.WriteByte(segLiteralFollow)
		} else {
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(segEscape)
	buf.WriteByte(segTerminator)
}

func unescapeSegment(b []byte) (seg []byte, rest []byte, err error) {
	out := make([]byte, 0, len(b))
	i := 0
	for i < len(b) {
		if b[i] == segEscape {
			if i+1 >= len(b) {
				return nil, nil, fmt.Errorf("keyspace: truncated escape sequence")
			}
			switch b[i+1] {
			case segLiteralFollow:
				out = append(out, segEscape)
				i += 2
			case segTerminator:
				return out, b[i+2:], nil
			default:
				return nil, nil, fmt.Errorf("keyspace: invalid escape byte 0x%02x", b[i+1])
			}
		} else {
			out = append(out, b[i])
			i++
		}
	}
	return nil, nil, fmt.Errorf("keyspace: unterminated segment")
}

// Encode produces the injective, order-preserving byte key for a typed
// key. Local segments are encoded in the order given.
func Encode(kind types.PrimitiveType, run types.RunId, local ...string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(kind))
	runBytes, _ := run.ID.MarshalBinary()
	buf.Write(runBytes)
	for _, seg := range local {
		escapeSegment(&buf, []byte(seg))
	}
	return buf.Bytes()
}

// EncodeKey is a convenience wrapper taking a TypedKey value.
func EncodeKey(k TypedKey) []byte {
	return Encode(k.Kind, k.Run, k.Local...)
}

// Decode reverses Encode, recovering kind, run, and local segments.
func Decode(b []byte) (TypedKey, error) {
	if len(b) < 1+16 {
		return TypedKey{}, fmt.Errorf("keyspace: key too short (%d bytes)", len(b))
	}
	kind := types.PrimitiveType(b[0])
	var runID uuid.UUID
	copy(runID[:], b[1:17])
	run := types.RunId{ID: runID}

	rest := b[17:]
	var segs []string
	for len(rest) > 0 {
		seg, tail, err := unescapeSegment(rest)
		if err != nil {
			return TypedKey{}, err
		}
		segs = append(segs, string(seg))
		rest = tail
	}
	return TypedKey{Kind: kind, Run: run, Local: segs}, nil
}

// Range returns the inclusive-lower/exclusive-upper bound encompassing
// every key under (kind, run) whose local segments begin with prefix.
// Passing no prefix segments ranges over the entire (kind, run)
// partition.
func Range(kind types.PrimitiveType, run types.RunId, prefix ...string) (lo, hi []byte) {
	var buf bytes.Buffer
	buf.WriteByte(byte(kind))
	runBytes, _ := run.ID.MarshalBinary()
	buf.Write(runBytes)
	for _, seg := range prefix {
		escapeSegment(&buf, []byte(seg))
	}
	lo = buf.Bytes()
	hi = upperBound(lo)
	return lo, hi
}

// KindRange returns the bound encompassing every key under kind across
// every run — used by the run index, the one primitive whose listing
// operation (every run the database knows about) is not itself scoped
// to a single run.
func KindRange(kind types.PrimitiveType) (lo, hi []byte) {
	lo = []byte{byte(kind)}
	hi = upperBound(lo)
	return lo, hi
}

// upperBound returns the smallest byte string that sorts strictly
// after every string with prefix p — i.e. p incremented at its last
// non-0xFF byte, with trailing 0xFF bytes dropped. An all-0xFF prefix
// has no finite upper bound; callers treat a nil return as "no limit".
func upperBound(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}
