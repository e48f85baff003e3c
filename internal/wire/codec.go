package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the number of bytes a lower-layer transport reserves
// at the front of every buffer before the msg_type field begins
// (spec.md §6). This package never interprets those bytes; it only
// knows where its own framing starts.
const HeaderSize = 8

// Envelope is one decoded wire message: the header bytes (opaque,
// round-tripped verbatim), the msg_type, and the raw payload bytes.
type Envelope struct {
	Header  [HeaderSize]byte
	Type    MsgType
	Payload []byte
}

// Encode serializes an envelope to its wire form: header, then a
// little-endian uint32 msg_type, then the raw payload.
func Encode(e Envelope) []byte {
	buf := make([]byte, HeaderSize+4+len(e.Payload))
	copy(buf, e.Header[:])
	binary.LittleEndian.PutUint32(buf[HeaderSize:], uint32(e.Type))
	copy(buf[HeaderSize+4:], e.Payload)
	return buf
}

// Decode parses a buffer produced by Encode.
func Decode(buf []byte) (Envelope, error) {
	if len(buf) < HeaderSize+4 {
		return Envelope{}, fmt.Errorf("wire: buffer too short for envelope: %d bytes", len(buf))
	}
	var e Envelope
	copy(e.Header[:], buf[:HeaderSize])
	e.Type = MsgType(binary.LittleEndian.Uint32(buf[HeaderSize:]))
	e.Payload = append([]byte(nil), buf[HeaderSize+4:]...)
	return e, nil
}

// writer accumulates a length-prefixed, little-endian payload. Every
// writer method is append-only and never fails; errors in this
// protocol only arise on the read side, from truncated input.
type writer struct {
	buf []byte
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) i64(v int64) {
	w.u64(uint64(v))
}

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) str(s string) {
	w.bytes([]byte(s))
}

func (w *writer) u64slice(s []uint64) {
	w.u32(uint32(len(s)))
	for _, v := range s {
		w.u64(v)
	}
}

func (w *writer) bool(b bool) {
	if b {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// reader consumes a buffer written by writer, tracking a cursor and
// the first error encountered so call sites can chain reads without
// checking every intermediate error.
type reader struct {
	buf []byte
	pos int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.fail("wire: need %d bytes at offset %d, have %d", n, r.pos, len(r.buf))
		return false
	}
	return true
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) bytes() []byte {
	n := int(r.u32())
	if n < 0 || !r.need(n) {
		return nil
	}
	out := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return out
}

func (r *reader) str() string {
	return string(r.bytes())
}

func (r *reader) u64slice() []uint64 {
	n := int(r.u32())
	if n < 0 || !r.need(n*8) {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = r.u64()
	}
	return out
}

func (r *reader) boolean() bool {
	if !r.need(1) {
		return false
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v
}
