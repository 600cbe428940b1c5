package apply

import (
	"encoding/binary"
	"fmt"
)

// OpTime is the (seconds, counter) pair that totally orders oplog entries
// produced by the same source. The zero value is the null OpTime.
type OpTime struct {
	Seconds int64
	Counter int64
}

// NullOpTime is the zero OpTime, used as a sentinel meaning "nothing applied yet".
var NullOpTime = OpTime{}

// IsNull reports whether t is the zero OpTime.
func (t OpTime) IsNull() bool {
	return t == NullOpTime
}

// Less reports whether t sorts strictly before o.
func (t OpTime) Less(o OpTime) bool {
	if t.Seconds != o.Seconds {
		return t.Seconds < o.Seconds
	}
	return t.Counter < o.Counter
}

// LessEq reports whether t sorts before or equal to o.
func (t OpTime) LessEq(o OpTime) bool {
	return t == o || t.Less(o)
}

func (t OpTime) String() string {
	return fmt.Sprintf("{%d,%d}", t.Seconds, t.Counter)
}

// Bytes encodes t as a 16-byte big-endian key, suitable for use as a bbolt
// key so that lexicographic byte order matches OpTime order.
func (t OpTime) Bytes() []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(t.Seconds))
	binary.BigEndian.PutUint64(buf[8:16], uint64(t.Counter))
	return buf[:]
}

// OpTimeFromBytes decodes the encoding produced by OpTime.Bytes.
func OpTimeFromBytes(b []byte) OpTime {
	if len(b) != 16 {
		return NullOpTime
	}
	return OpTime{
		Seconds: int64(binary.BigEndian.Uint64(b[0:8])),
		Counter: int64(binary.BigEndian.Uint64(b[8:16])),
	}
}
