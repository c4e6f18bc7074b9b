// Package codec implements the canonical binary encoding shared by every
// validator. All persisted values and the transaction wire format pass
// through this package; any divergence here splits consensus, so the
// encoding is fixed: integers little-endian, strings and byte slices
// length-prefixed with u32, optional fields preceded by a presence bool,
// every persisted value tagged with a single discriminator byte.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/ordsys/sequencer/types"
)

// Writer accumulates a canonical encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 128)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

func (w *Writer) U32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) U64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// U128 writes lo then hi, little-endian, per the wire contract.
func (w *Writer) U128(v types.Uint128) {
	w.U64(v.Lo)
	w.U64(v.Hi)
}

func (w *Writer) String(s string) {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// LenBytes writes a length-prefixed byte slice.
func (w *Writer) LenBytes(b []byte) {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Raw appends b without a length prefix. Used for fixed-width fields.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Reader decodes a canonical encoding, failing with a DecodeError-kind
// error when a length header overruns the buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps bz.
func NewReader(bz []byte) *Reader {
	return &Reader{buf: bz}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Done fails unless the buffer was consumed exactly.
func (r *Reader) Done() error {
	if r.Remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", types.ErrDecode, r.Remaining())
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", types.ErrDecode, n, r.Remaining())
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.U8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: invalid bool byte %d", types.ErrDecode, b)
	}
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) U128() (types.Uint128, error) {
	lo, err := r.U64()
	if err != nil {
		return types.Uint128{}, err
	}
	hi, err := r.U64()
	if err != nil {
		return types.Uint128{}, err
	}
	return types.Uint128{Lo: lo, Hi: hi}, nil
}

func (r *Reader) String() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) LenBytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Fixed reads exactly n bytes.
func (r *Reader) Fixed(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
