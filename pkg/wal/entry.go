package wal

import (
	"encoding/binary"
	"fmt"
)

// EncodeEntry frames a record's Payload so that replay can reconstruct
// exactly the store.Put the original commit performed, without the
// WAL needing any primitive-specific decoding logic: a one-byte
// tombstone flag, the full encoded typed key (so replay never has to
// reconstruct it from run/primitive/local segments embedded
// separately), and the value bytes (empty for a tombstone).
//
// Every primitive's assign/dynamicAssign closure resolves its own
// typed key and value; the coordinator calls EncodeEntry once per
// applied write after that resolution, so no primitive package frames
// its own WAL payload.
func EncodeEntry(key []byte, tombstone bool, value []byte) []byte {
	out := make([]byte, 0, 1+4+len(key)+len(value))
	if tombstone {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	var klen [4]byte
	binary.BigEndian.PutUint32(klen[:], uint32(len(key)))
	out = append(out, klen[:]...)
	out = append(out, key...)
	out = append(out, value...)
	return out
}

// DecodeEntry reverses EncodeEntry.
func DecodeEntry(payload []byte) (key []byte, tombstone bool, value []byte, err error) {
	if len(payload) < 5 {
		return nil, false, nil, fmt.Errorf("wal: entry payload too short")
	}
	tombstone = payload[0] == 1
	klen := binary.BigEndian.Uint32(payload[1:5])
	if uint32(len(payload)-5) < klen {
		return nil, false, nil, fmt.Errorf("wal: entry payload truncated key")
	}
	key = payload[5 : 5+klen]
	value = payload[5+klen:]
	return key, tombstone, value, nil
}
