// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package wire implements the canonical, deterministic byte encoding that
// every signature in the engine is computed over. JSON or Go's gob are not
// used here because map iteration order and struct evolution both break
// "signature covers exactly the canonical serialization" (spec §6); this
// package instead writes a fixed field order with explicit length prefixes.
package wire

import (
	"encoding/binary"
)

// Writer accumulates a canonical encoding. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// Uint64 appends v as 8 big-endian bytes.
func (w *Writer) Uint64(v uint64) *Writer {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// Bool appends a single byte, 1 for true and 0 for false.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w
}

// BytesField appends a length-prefixed byte string.
func (w *Writer) BytesField(v []byte) *Writer {
	w.Uint64(uint64(len(v)))
	w.buf = append(w.buf, v...)
	return w
}

// String appends a length-prefixed UTF-8 string.
func (w *Writer) String(v string) *Writer {
	return w.BytesField([]byte(v))
}

// Reader consumes a canonical encoding produced by Writer, in the same
// field order the writer emitted it.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Uint64 reads 8 big-endian bytes.
func (r *Reader) Uint64() uint64 {
	if r.err != nil {
		return 0
	}
	if r.pos+8 > len(r.buf) {
		r.fail(errShortBuffer)
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v
}

// Bool reads a single boolean byte.
func (r *Reader) Bool() bool {
	if r.err != nil {
		return false
	}
	if r.pos+1 > len(r.buf) {
		r.fail(errShortBuffer)
		return false
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v
}

// BytesField reads a length-prefixed byte string.
func (r *Reader) BytesField() []byte {
	n := r.Uint64()
	if r.err != nil {
		return nil
	}
	if r.pos+int(n) > len(r.buf) {
		r.fail(errShortBuffer)
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() string {
	return string(r.BytesField())
}

// Remaining reports whether unread bytes are left.
func (r *Reader) Remaining() bool { return r.err == nil && r.pos < len(r.buf) }

var errShortBuffer = shortBufferError{}

type shortBufferError struct{}

func (shortBufferError) Error() string { return "wire: unexpected end of buffer" }
