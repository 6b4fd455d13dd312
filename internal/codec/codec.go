// Package codec implements the low-level canonical encoding primitives
// shared by the action wire format and the state snapshot format: both
// are length-prefixed, little-endian byte layouts, and both must be
// byte-identical across engines with equal logical state or equal
// decoded values. Factoring the primitives once keeps that guarantee in
// a single, well-tested place instead of two independent encoders.
package codec

import (
	"encoding/binary"

	"github.com/zkspot/matchcore/internal/errs"
)

// Writer accumulates a canonical byte encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// PutUint8 appends a single byte.
func (w *Writer) PutUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// PutUint32 appends a little-endian u32.
func (w *Writer) PutUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutUint64 appends a little-endian u64.
func (w *Writer) PutUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutString appends a u32 length prefix followed by the UTF-8 bytes.
func (w *Writer) PutString(s string) {
	w.PutUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// PutBytes appends a u32 length prefix followed by raw bytes — used for
// the fixed 32-byte balance amounts in the snapshot format.
func (w *Writer) PutBytes(b []byte) {
	w.PutUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// PutOptionalUint32 appends the Option<u32> tag (0 = none, 1 = some)
// followed by the value when present.
func (w *Writer) PutOptionalUint32(v *uint32) {
	if v == nil {
		w.PutUint8(0)
		return
	}
	w.PutUint8(1)
	w.PutUint32(*v)
}

// Reader consumes a canonical byte encoding, failing closed on any
// truncated or malformed input.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps a byte slice for sequential canonical decoding.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining reports how many bytes are left unconsumed.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return errs.Newf(errs.MalformedAction, "truncated input: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadUint32 reads a little-endian u32.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

// ReadUint64 reads a little-endian u64.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// ReadString reads a u32 length prefix followed by that many UTF-8
// bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadBytes reads a u32 length prefix followed by that many raw bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

// ReadOptionalUint32 reads an Option<u32>: a 0/1 tag followed by the
// value when the tag is 1.
func (r *Reader) ReadOptionalUint32() (*uint32, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return nil, nil
	case 1:
		v, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, errs.Newf(errs.MalformedAction, "invalid Option tag %d", tag)
	}
}

// RequireExhausted fails if the reader has trailing bytes left over —
// a canonical encoding never has padding.
func (r *Reader) RequireExhausted() error {
	if r.Remaining() != 0 {
		return errs.Newf(errs.MalformedAction, "%d trailing bytes after decode", r.Remaining())
	}
	return nil
}
