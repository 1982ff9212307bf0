package persist

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestBytesBuilder_Basics(t *testing.T) {
	var bb bytesBuilder
	off := bb.Grow(3)
	copy(bb.Buf[off:], []byte{1, 2, 3})
	bb.AppendByte(4)
	bb.AppendUint32(0x0A0B0C0D)
	bb.AppendUint64(0x0102030405060708)

	want := []byte{1, 2, 3, 4, 0x0D, 0x0C, 0x0B, 0x0A, 8, 7, 6, 5, 4, 3, 2, 1}
	if !reflect.DeepEqual(bb.Buf, want) {
		t.Fatalf("bb.Buf = %x, wanted %x", bb.Buf, want)
	}

	bb.PutUint32(0, 0xFFFFFFFF)
	if !reflect.DeepEqual(bb.Buf[:4], []byte{0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Fatalf("after PutUint32: bb.Buf = %x", bb.Buf)
	}

	bb.Buf = bb.Buf[:2]
	_ = bb.WriteByte(7)
	_, _ = bb.WriteString("A")
	if !reflect.DeepEqual(bb.Buf, []byte{0xFF, 0xFF, 7, 'A'}) {
		t.Fatalf("after WriteString: bb.Buf = %x", bb.Buf)
	}

	b := bb.Bytes()
	b[0] = 0
	if bb.Buf[0] != 0xFF {
		t.Fatalf("Bytes() shares the builder's buffer")
	}
}

func TestByteUtil_EnsureCapacity(t *testing.T) {
	buf := ensureCapacity([]byte{1}, 100)
	if cap(buf) < 100 || len(buf) != 1 || buf[0] != 1 {
		t.Fatalf("ensureCapacity = len %d cap %d %x", len(buf), cap(buf), buf)
	}
	same := ensureCapacity(buf, 10)
	if &same[0] != &buf[0] {
		t.Fatalf("ensureCapacity reallocated a large enough buffer")
	}
	off, buf := grow(buf, 4)
	if off != 1 || len(buf) != 5 {
		t.Fatalf("grow = %d, len %d", off, len(buf))
	}
}

func TestByteDecoder(t *testing.T) {
	var bb bytesBuilder
	bb.AppendByte(0x7F)
	bb.AppendUint32(42)
	bb.AppendUint64(math.MaxUint64)
	bb.AppendString("hello")
	bb.AppendString("")

	d := makeByteDecoder(bb.Buf)
	deepEqual(t, must(d.Byte()), byte(0x7F))
	deepEqual(t, must(d.Uint32()), uint32(42))
	deepEqual(t, must(d.Uint64()), uint64(math.MaxUint64))
	deepEqual(t, d.Off(), 13)
	deepEqual(t, must(d.String()), "hello")
	deepEqual(t, must(d.String()), "")
	deepEqual(t, len(d.Buf), 0)

	_, err := d.Byte()
	var de *DataError
	if !errors.As(err, &de) || de.Off != len(bb.Buf) {
		t.Fatalf("Byte() at end = %v, wanted DataError at %d", err, len(bb.Buf))
	}
}

func TestByteDecoder_Errors(t *testing.T) {
	var bb bytesBuilder
	bb.AppendUint64(1000)
	bb.WriteString("short")
	d := makeByteDecoder(bb.Buf)
	if _, err := d.String(); err == nil {
		t.Fatalf("String() with truncated payload succeeded")
	}

	d = makeByteDecoder([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := d.String(); err == nil {
		t.Fatalf("String() with huge length succeeded")
	}

	d = makeByteDecoder([]byte{1, 2, 3, 4})
	if err := d.SkipTo(3); err != nil {
		t.Fatal(err)
	}
	deepEqual(t, must(d.Byte()), byte(4))
	if err := d.SkipTo(1); err == nil {
		t.Fatalf("SkipTo backwards succeeded")
	}
	if err := d.SkipTo(5); err == nil {
		t.Fatalf("SkipTo past the end succeeded")
	}
	if _, err := d.Raw(-1); err == nil {
		t.Fatalf("Raw(-1) succeeded")
	}
}

func TestBuilderPool(t *testing.T) {
	bb := getBuilder()
	if bb.Len() != 0 || cap(bb.Buf) == 0 {
		t.Fatalf("getBuilder = len %d cap %d", bb.Len(), cap(bb.Buf))
	}
	bb.WriteString("data")
	releaseBuilder(bb)
	if bb.Buf != nil {
		t.Fatalf("releaseBuilder kept the buffer")
	}
	if bb := getBuilder(); bb.Len() != 0 {
		t.Fatalf("pooled builder not reset: %q", bb.Buf)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
