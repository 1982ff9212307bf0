package persist

import (
	"math"
)

// binaryMagic starts every binary archive.
const binaryMagic = "PRST"

// nilObjectSize is the size word of a null object: just the zero address.
const nilObjectSize = 8

// binaryWriter writes objects as [uint32 size][uint64 address][fields...],
// size counting the bytes after the size word. Scalars carry no tags.
type binaryWriter struct {
	bb    *bytesBuilder
	sizes []int
}

func newBinaryWriter() *binaryWriter {
	w := &binaryWriter{bb: getBuilder()}
	w.bb.WriteString(binaryMagic)
	return w
}

func (w *binaryWriter) finish() []byte {
	data := w.bb.Bytes()
	releaseBuilder(w.bb)
	return data
}

func (w *binaryWriter) release() {
	releaseBuilder(w.bb)
}

func (w *binaryWriter) scalar(a Attribute) {
	switch a.kind {
	case AttributeBool:
		w.bb.AppendByte(byte(a.u))
	case AttributeInt:
		w.bb.AppendUint64(uint64(a.i))
	case AttributeUint, AttributeAddress:
		w.bb.AppendUint64(a.u)
	case AttributeReal:
		w.bb.AppendUint64(math.Float64bits(a.f))
	default:
		w.bb.AppendString(a.String())
	}
}

func (w *binaryWriter) beginObject(name string, addr Address) {
	w.sizes = append(w.sizes, w.bb.Grow(4))
	w.bb.AppendUint64(uint64(addr))
}

func (w *binaryWriter) endObject() {
	n := len(w.sizes) - 1
	off := w.sizes[n]
	w.sizes = w.sizes[:n]
	w.bb.PutUint32(off, uint32(w.bb.Len()-off-4))
}

func (w *binaryWriter) nilObject(name string, item bool) {
	w.bb.AppendUint32(nilObjectSize)
	w.bb.AppendUint64(0)
}

func (w *binaryWriter) enter(format string, version int) {
	w.bb.AppendString(format)
	w.bb.AppendUint32(uint32(int32(version)))
}

func (w *binaryWriter) beginSequence(name string, n int) {
	w.bb.AppendUint64(uint64(int64(n)))
}

func (w *binaryWriter) nilSequence(name string) {
	w.bb.AppendUint64(math.MaxUint64)
}

func (w *binaryWriter) endSequence()          {}
func (w *binaryWriter) beginItem(name string) {}
func (w *binaryWriter) endItem()              {}

func (w *binaryWriter) reference(name string, addr Address, item bool) {
	w.bb.AppendUint64(uint64(addr))
}

// binaryReader reads what binaryWriter writes. Fields past the end of an
// object read as absent, and fields the reader does not ask for are skipped
// when the object ends, so older and newer field lists interoperate.
type binaryReader struct {
	d    byteDecoder
	ends []int
}

func newBinaryReader(path string, data []byte) (*binaryReader, error) {
	if len(data) < len(binaryMagic) || string(data[:len(binaryMagic)]) != binaryMagic {
		return nil, &ParsingFileFailedError{Path: path, Msg: "not a binary archive", Err: dataErrf(data, 0, nil, "missing %q header", binaryMagic)}
	}
	r := &binaryReader{d: makeByteDecoder(data)}
	r.d.Buf = data[len(binaryMagic):]
	return r, nil
}

func (r *binaryReader) atEnd() bool {
	end := len(r.d.Orig)
	if n := len(r.ends); n > 0 {
		end = r.ends[n-1]
	}
	return r.d.Off() >= end
}

func (r *binaryReader) check(err error) {
	if err != nil {
		fail(err)
	}
}

func (r *binaryReader) scalar(name string, kind AttributeKind) (Attribute, bool) {
	if r.atEnd() {
		return Attribute{}, false
	}
	switch kind {
	case AttributeBool:
		b, err := r.d.Byte()
		r.check(err)
		return BoolAttribute(name, b != 0), true
	case AttributeInt:
		v, err := r.d.Uint64()
		r.check(err)
		return IntAttribute(name, int64(v)), true
	case AttributeUint, AttributeAddress:
		v, err := r.d.Uint64()
		r.check(err)
		return UintAttribute(name, v), true
	case AttributeReal:
		v, err := r.d.Uint64()
		r.check(err)
		return RealAttribute(name, math.Float64frombits(v)), true
	default:
		s, err := r.d.String()
		r.check(err)
		return StringAttribute(name, s), true
	}
}

func (r *binaryReader) beginObject(name string) (Address, bool) {
	if r.atEnd() {
		return 0, false
	}
	start := r.d.Off()
	size, err := r.d.Uint32()
	r.check(err)
	addr, err := r.d.Uint64()
	r.check(err)
	end := start + 4 + int(size)
	if size < nilObjectSize || end > len(r.d.Orig) {
		fail(dataErrf(r.d.Orig, start, nil, "invalid object size %d", size))
	}
	if n := len(r.ends); n > 0 && end > r.ends[n-1] {
		fail(dataErrf(r.d.Orig, start, nil, "object of size %d overruns its parent", size))
	}
	if size == nilObjectSize && addr == 0 {
		return 0, false
	}
	r.ends = append(r.ends, end)
	return Address(addr), true
}

func (r *binaryReader) endObject() {
	n := len(r.ends) - 1
	end := r.ends[n]
	r.ends = r.ends[:n]
	r.check(r.d.SkipTo(end))
}

func (r *binaryReader) enter() (string, int, bool) {
	if r.atEnd() {
		return "", 0, false
	}
	format, err := r.d.String()
	r.check(err)
	version, err := r.d.Uint32()
	r.check(err)
	return format, int(int32(version)), true
}

func (r *binaryReader) beginSequence(name, child string) (int, bool) {
	if r.atEnd() {
		return 0, false
	}
	off := r.d.Off()
	v, err := r.d.Uint64()
	r.check(err)
	n := int64(v)
	if n < 0 {
		return 0, false
	}
	// every item takes at least one byte
	if n > int64(len(r.d.Buf)) {
		fail(dataErrf(r.d.Orig, off, nil, "invalid item count %d", n))
	}
	return int(n), true
}

func (r *binaryReader) endSequence()          {}
func (r *binaryReader) beginItem(name string) {}
func (r *binaryReader) endItem()              {}

func (r *binaryReader) reference(name string, item bool) Address {
	if r.atEnd() {
		return 0
	}
	v, err := r.d.Uint64()
	r.check(err)
	return Address(v)
}

func (r *binaryReader) line() int {
	return 0
}
