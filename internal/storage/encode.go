package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/chronodb/oplogd/apply"
)

// encodeEntry serializes an OpLogEntry as: 16-byte OpTime, 1-byte OpKind,
// 4-byte NS length, NS bytes, Payload bytes (remainder). The OpTime is also
// the bucket key; it is repeated in the value so Iterate can reconstruct a
// full entry from the value alone.
func encodeEntry(e apply.OpLogEntry) []byte {
	buf := make([]byte, 0, 16+1+4+len(e.NS)+len(e.Payload))
	buf = append(buf, e.Ts.Bytes()...)
	buf = append(buf, byte(e.Op))
	var nsLen [4]byte
	binary.BigEndian.PutUint32(nsLen[:], uint32(len(e.NS)))
	buf = append(buf, nsLen[:]...)
	buf = append(buf, e.NS...)
	buf = append(buf, e.Payload...)
	return buf
}

func decodeEntry(b []byte) (apply.OpLogEntry, error) {
	if len(b) < 16+1+4 {
		return apply.OpLogEntry{}, fmt.Errorf("storage: truncated oplog record, %d bytes", len(b))
	}
	ts := apply.OpTimeFromBytes(b[0:16])
	op := apply.OpKind(b[16])
	nsLen := binary.BigEndian.Uint32(b[17:21])
	if uint32(len(b)-21) < nsLen {
		return apply.OpLogEntry{}, fmt.Errorf("storage: truncated oplog record, ns length %d exceeds remaining %d", nsLen, len(b)-21)
	}
	ns := string(b[21 : 21+nsLen])
	payload := append([]byte(nil), b[21+nsLen:]...)
	return apply.OpLogEntry{Ts: ts, Op: op, NS: ns, Payload: payload}, nil
}
