// Package binformat implements the compact little-endian binary codec
// the sharded cache is built on: length-prefixed strings and the
// FileEntry records those caches hold, assembled over encoding/binary,
// plus a SHA256 Checksum helper. The cache shards themselves carry no
// checksum.
package binformat

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer accumulates little-endian binary output. It wraps a plain
// io.Writer so callers can target a bytes.Buffer during tests or a
// bufio.Writer over a file during a real save.
type Writer struct {
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) u(v any) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(w.w, binary.LittleEndian, v)
}

func (w *Writer) WriteU8(v uint8) { w.u(v) }

func (w *Writer) WriteU32(v uint32) { w.u(v) }

func (w *Writer) WriteU64(v uint64) { w.u(v) }

func (w *Writer) WriteI64(v int64) { w.u(v) }

func (w *Writer) WriteF64(v float64) { w.u(v) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

// WriteString writes a uint32 byte-length prefix followed by the raw
// UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)))
	if w.err != nil {
		return
	}
	if _, err := io.WriteString(w.w, s); err != nil {
		w.err = err
	}
}

// WriteBytes writes a uint32 byte-length prefix followed by raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = err
	}
}

// Reader consumes little-endian binary input produced by Writer.
type Reader struct {
	r   io.Reader
	err error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) read(v any) {
	if r.err != nil {
		return
	}
	r.err = binary.Read(r.r, binary.LittleEndian, v)
}

func (r *Reader) ReadU8() uint8 {
	var v uint8
	r.read(&v)
	return v
}

func (r *Reader) ReadU32() uint32 {
	var v uint32
	r.read(&v)
	return v
}

func (r *Reader) ReadU64() uint64 {
	var v uint64
	r.read(&v)
	return v
}

func (r *Reader) ReadI64() int64 {
	var v int64
	r.read(&v)
	return v
}

func (r *Reader) ReadF64() float64 {
	var v float64
	r.read(&v)
	return v
}

func (r *Reader) ReadBool() bool {
	return r.ReadU8() != 0
}

func (r *Reader) ReadString() string {
	n := r.ReadU32()
	if r.err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.err = err
		return ""
	}
	return string(buf)
}

func (r *Reader) ReadBytes() []byte {
	n := r.ReadU32()
	if r.err != nil || n == 0 {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.err = err
		return nil
	}
	return buf
}

// Checksum returns the SHA256 digest of data. internal/cachefile does
// not call it: shards are neither written with nor checked against a
// digest.
func Checksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// BufferedReader wraps r in a bufio.Reader sized generously enough
// that a whole cache shard is typically read in one syscall; callers
// should still read the entire file into memory before deserializing,
// this just keeps the underlying read calls cheap while the buffer
// fills.
func BufferedReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 1<<20)
}

// ErrTruncated describes a shard whose declared length prefix runs
// past the available bytes. Nothing in this package returns it; a
// short read surfaces through Reader.Err as the underlying read error.
type ErrTruncated struct {
	Field string
}

func (e *ErrTruncated) Error() string {
	return fmt.Sprintf("binformat: truncated reading field %q", e.Field)
}
