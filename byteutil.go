package persist

import (
	"encoding/binary"
	"io"
	"math"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

type bytesBuilder struct {
	Buf []byte
}

var _ io.StringWriter = (*bytesBuilder)(nil)
var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Len() int {
	return len(bb.Buf)
}

func (bb *bytesBuilder) Grow(n int) (off int) {
	off, bb.Buf = grow(bb.Buf, n)
	return
}

func (bb *bytesBuilder) Write(p []byte) (int, error) {
	bb.Buf = append(bb.Buf, p...)
	return len(p), nil
}

func (bb *bytesBuilder) WriteString(s string) (int, error) {
	bb.Buf = append(bb.Buf, s...)
	return len(s), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	bb.AppendByte(v)
	return nil
}

func (bb *bytesBuilder) AppendByte(v byte) {
	off := bb.Grow(1)
	bb.Buf[off] = v
}

func (bb *bytesBuilder) AppendUint32(v uint32) {
	off := bb.Grow(4)
	binary.LittleEndian.PutUint32(bb.Buf[off:], v)
}

func (bb *bytesBuilder) PutUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(bb.Buf[off:], v)
}

func (bb *bytesBuilder) AppendUint64(v uint64) {
	off := bb.Grow(8)
	binary.LittleEndian.PutUint64(bb.Buf[off:], v)
}

func (bb *bytesBuilder) AppendString(s string) {
	bb.AppendUint64(uint64(len(s)))
	bb.Buf = append(bb.Buf, s...)
}

// Bytes returns a copy of the built bytes, so the builder's buffer can go
// back to a pool.
func (bb *bytesBuilder) Bytes() []byte {
	return append([]byte(nil), bb.Buf...)
}

type byteDecoder struct {
	Orig []byte
	Buf  []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{buf, buf}
}

func (d *byteDecoder) Off() int {
	return len(d.Orig) - len(d.Buf)
}

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if n < 0 || len(d.Buf) < n {
		return nil, dataErrf(d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, %d wanted", len(d.Buf), n)
	}
	v := d.Buf[:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *byteDecoder) Byte() (byte, error) {
	b, err := d.Raw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *byteDecoder) Uint32() (uint32, error) {
	b, err := d.Raw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *byteDecoder) Uint64() (uint64, error) {
	b, err := d.Raw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *byteDecoder) String() (string, error) {
	n, err := d.Uint64()
	if err != nil {
		return "", err
	}
	if n > math.MaxInt32 {
		return "", dataErrf(d.Orig, d.Off()-8, nil, "string length %d out of range", n)
	}
	b, err := d.Raw(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SkipTo moves the decoder to absolute offset off, which must not be behind
// the current one.
func (d *byteDecoder) SkipTo(off int) error {
	if off < d.Off() || off > len(d.Orig) {
		return dataErrf(d.Orig, d.Off(), nil, "cannot skip to offset %d", off)
	}
	d.Buf = d.Orig[off:]
	return nil
}
