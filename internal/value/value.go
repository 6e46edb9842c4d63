// Package value implements the wire encoding of stored values.
//
// Every value written to the store binds its payload to the writer that
// produced it and the step at which it was produced:
//
//	[writer identity: 8 bytes LE][step: 8 bytes LE][payload: remaining bytes]
//
// The header is what lets an independent verifier decide, from a single
// read, which writer wrote the value and how far along its deterministic
// stream it was.
package value

import (
	"encoding/binary"
	"fmt"
)

// headerLen is the fixed size of the writer-identity and step fields.
// A valid encoded value is always strictly longer than this.
const headerLen = 16

// Value is a decoded stored value.
type Value struct {
	WriterID uint64
	Step     uint64
	Payload  []byte
}

// CorruptError reports a stored-value buffer too short to carry the fixed
// header. It indicates data corruption, never a transient condition, and is
// never retried.
type CorruptError struct {
	Len int
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("stored value of %d bytes is too short to carry the %d-byte header", e.Len, headerLen)
}

// Encode serializes a stored value.
func Encode(writerID, step uint64, payload []byte) []byte {
	buf := make([]byte, headerLen+len(payload))
	binary.LittleEndian.PutUint64(buf[0:8], writerID)
	binary.LittleEndian.PutUint64(buf[8:16], step)
	copy(buf[headerLen:], payload)
	return buf
}

// Decode parses an encoded stored value. Buffers of headerLen bytes or
// fewer fail with a CorruptError.
func Decode(buf []byte) (Value, error) {
	if len(buf) <= headerLen {
		return Value{}, &CorruptError{Len: len(buf)}
	}
	return Value{
		WriterID: binary.LittleEndian.Uint64(buf[0:8]),
		Step:     binary.LittleEndian.Uint64(buf[8:16]),
		Payload:  buf[headerLen:],
	}, nil
}
