package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// PayloadWriter builds an operation payload out of the three primitive
// encodings the protocol uses: 2-byte length-prefixed UTF-8 strings, 4-byte
// big-endian signed integers, and 8-byte big-endian IEEE-754 doubles.
type PayloadWriter struct {
	buf bytes.Buffer
}

func NewPayloadWriter() *PayloadWriter { return &PayloadWriter{} }

func (w *PayloadWriter) UTF(s string) *PayloadWriter {
	b := []byte(s)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	w.buf.Write(lenBuf[:])
	w.buf.Write(b)
	return w
}

func (w *PayloadWriter) Int(v int32) *PayloadWriter {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
	return w
}

func (w *PayloadWriter) Double(v float64) *PayloadWriter {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
	return w
}

func (w *PayloadWriter) Byte(v byte) *PayloadWriter {
	w.buf.WriteByte(v)
	return w
}

func (w *PayloadWriter) Raw(b []byte) *PayloadWriter {
	w.buf.Write(b)
	return w
}

func (w *PayloadWriter) Bytes() []byte { return w.buf.Bytes() }

// PayloadReader decodes a payload in the order its fields were written.
// Each accessor reports an error rather than panicking on a truncated
// payload, since payloads ultimately come from the network.
type PayloadReader struct {
	b   []byte
	off int
}

func NewPayloadReader(b []byte) *PayloadReader { return &PayloadReader{b: b} }

func (r *PayloadReader) need(n int) error {
	if len(r.b)-r.off < n {
		return fmt.Errorf("wire: truncated payload, need %d more bytes", n-(len(r.b)-r.off))
	}
	return nil
}

func (r *PayloadReader) UTF() (string, error) {
	if err := r.need(2); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(r.b[r.off : r.off+2]))
	r.off += 2
	if err := r.need(n); err != nil {
		return "", err
	}
	s := string(r.b[r.off : r.off+n])
	r.off += n
	return s, nil
}

func (r *PayloadReader) Int() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.b[r.off : r.off+4]))
	r.off += 4
	return v, nil
}

func (r *PayloadReader) Double() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.b[r.off : r.off+8]))
	r.off += 8
	return v, nil
}

func (r *PayloadReader) Byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.off]
	r.off += 1
	return v, nil
}

// Remaining returns the unread tail of the payload.
func (r *PayloadReader) Remaining() []byte { return r.b[r.off:] }

// Done reports whether every byte of the payload has been consumed. Callers
// that expect an empty-after-fields payload can use this to reject a frame
// carrying trailing garbage.
func (r *PayloadReader) Done() bool { return r.off == len(r.b) }
