package boltstore

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cwbaker/persist"
)

type recordFlags uint64

const (
	rfVerBit0 = recordFlags(1 << iota)
	rfVerBit1
	rfVerBit2
	rfVerBit3
	rfCompressionBit0

	rfVerMask       = (rfVerBit0 | rfVerBit1 | rfVerBit2 | rfVerBit3)
	rfVer1          = rfVerBit0
	rfGzip          = rfCompressionBit0
	rfSupportedMask = (rfVer1 | rfGzip)
	rfDefault       = rfVer1

	minRecordSize    = 6
	maxRecordVersion = 1 << 20 // sanity bound only
	maxFormatLen     = 1024
)

func (rf recordFlags) ver() recordFlags {
	return rf & rfVerMask
}

// record is one stored archive: a uvarint header followed by the archive
// bytes exactly as a persist.Writer produced them (gzipped if rfGzip).
//
//	flags encoding version modCount len(format) format len(data) data
type record struct {
	Flags    recordFlags
	Encoding persist.Encoding
	Version  uint64
	ModCount uint64
	Format   string
	Data     []byte
}

func (rec *record) compressed() bool {
	return rec.Flags&rfGzip != 0
}

func (rec *record) encode() []byte {
	if (rec.Flags &^ rfSupportedMask) != 0 {
		panic(fmt.Errorf("invalid flags %x", rec.Flags))
	}
	buf := make([]byte, 0, binary.MaxVarintLen64*6+len(rec.Format)+len(rec.Data))
	buf = binary.AppendUvarint(buf, uint64(rec.Flags))
	buf = binary.AppendUvarint(buf, uint64(rec.Encoding))
	buf = binary.AppendUvarint(buf, rec.Version)
	buf = binary.AppendUvarint(buf, rec.ModCount)
	buf = binary.AppendUvarint(buf, uint64(len(rec.Format)))
	buf = append(buf, rec.Format...)
	buf = binary.AppendUvarint(buf, uint64(len(rec.Data)))
	buf = append(buf, rec.Data...)
	return buf
}

// decode parses data into rec. rec.Data aliases data, which for bbolt is
// only valid for the life of the transaction.
func (rec *record) decode(data []byte) error {
	orig := data
	off := func() int { return len(orig) - len(data) }
	if len(data) < minRecordSize {
		return dataErrf(orig, off(), nil, "invalid record: at least %d bytes required", minRecordSize)
	}

	v, n := binary.Uvarint(data)
	if n <= 0 {
		return dataErrf(orig, off(), nil, "invalid record: bad flags")
	}
	if (v &^ uint64(rfSupportedMask)) != 0 {
		return dataErrf(orig, off(), nil, "invalid record: unsupported flags %x", v)
	}
	if recordFlags(v).ver() != rfVer1 {
		return dataErrf(orig, off(), nil, "invalid record: unsupported record format %d", recordFlags(v).ver())
	}
	rec.Flags, data = recordFlags(v), data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 || v > uint64(persist.MsgPack) {
		return dataErrf(orig, off(), nil, "invalid record: bad encoding")
	}
	rec.Encoding, data = persist.Encoding(v), data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 || v > maxRecordVersion {
		return dataErrf(orig, off(), nil, "invalid record: bad version")
	}
	rec.Version, data = v, data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 {
		return dataErrf(orig, off(), nil, "invalid record: bad mod count")
	}
	rec.ModCount, data = v, data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 || v > maxFormatLen || v > uint64(len(data)-n) {
		return dataErrf(orig, off(), nil, "invalid record: bad format length")
	}
	data = data[n:]
	rec.Format, data = string(data[:v]), data[v:]

	size, n := binary.Uvarint(data)
	if n <= 0 {
		return dataErrf(orig, off(), nil, "invalid record: bad data size")
	}
	data = data[n:]
	if uint64(len(data)) != size {
		return dataErrf(orig, off(), nil, "invalid record: got %d bytes of data, expected %d bytes", len(data), size)
	}
	rec.Data = data
	return nil
}

// archive returns the archive bytes, inflating them if needed.
func (rec *record) archive() ([]byte, error) {
	if !rec.compressed() {
		return rec.Data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(rec.Data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func gzipBytes(data []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	// writes to a bytes.Buffer cannot fail
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	// data may point into a bbolt page
	return &persist.DataError{Data: bytes.Clone(data), Off: off, Err: err, Msg: fmt.Sprintf(format, args...)}
}
