package persist

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Reader reads object graphs in one encoding. A Reader may be reused for
// any number of sequential reads but must not be used concurrently.
type Reader struct {
	enc   Encoding
	types *Registry
	opt   Options
}

func NewReader(enc Encoding, types *Registry, opt Options) *Reader {
	if types == nil {
		types = NewRegistry()
	}
	return &Reader{enc: enc, types: types, opt: opt.withDefaults()}
}

func (r *Reader) Encoding() Encoding {
	return r.enc
}

func (r *Reader) Types() *Registry {
	return r.types
}

func (r *Reader) Options() Options {
	return r.opt
}

// Read reads the root object called name from the file at path into obj, a
// pointer to a struct. Fields missing from the archive keep their values.
func (r *Reader) Read(path, name string, obj any) error {
	f, err := os.Open(path)
	if err != nil {
		return &OpeningFileFailedError{Path: path, Err: err}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return &ReadingFileFailedError{Path: path, Err: err}
	}
	return r.decode(path, data, name, obj)
}

// ReadFrom is Read from an arbitrary io.Reader; path only serves as the
// archive's location for PathFilter and error messages.
func (r *Reader) ReadFrom(in io.Reader, path, name string, obj any) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return &ReadingFileFailedError{Path: path, Err: err}
	}
	return r.decode(path, data, name, obj)
}

// Unmarshal reads obj from an encoded archive.
func (r *Reader) Unmarshal(data []byte, name string, obj any) error {
	return r.decode("", data, name, obj)
}

func (r *Reader) decode(path string, data []byte, name string, obj any) error {
	ar := newArchive(ModeReading, path, r.types, r.opt)
	if r.enc.IsTree() {
		doc, err := ParseTree(r.enc, path, data)
		if err != nil {
			return err
		}
		if doc.Element(name) == nil {
			return parseErrf(path, 0, nil, "no root element %q", name)
		}
		ar.r = newTreeReader(path, doc, ar.kw)
	} else {
		br, err := newBinaryReader(path, data)
		if err != nil {
			return err
		}
		ar.r = br
	}
	ar.rec = newRecorder()

	err := safelyCall(func() {
		ar.readRoot(name, obj)
	})
	if err != nil {
		var de *DataError
		if errors.As(err, &de) {
			ar.logger.Debug("persist: malformed binary archive", slog.String("path", path), slog.Int("offset", de.Off), hexAttr("head", headOf(data, 64)))
		}
		return err
	}

	ar.mode = ModeResolving
	ar.version = r.opt.Version
	ar.format = r.opt.Format
	ar.res = newResolver(ar.rec.root, ar.logger)
	err = safelyCall(func() {
		ar.resolveRoot(name, obj)
		ar.res.finish()
	})
	if err != nil {
		return err
	}
	if refs := ar.res.unresolved(); len(refs) > 0 {
		return &UnresolvedReferencesError{Path: path, References: refs}
	}
	ar.logger.Debug("persist: read archive", slog.String("path", path), slog.String("root", name), slog.String("encoding", r.enc.String()), slog.Int("objects", len(ar.res.tracked)), slog.Int("references", ar.res.resolved))
	return nil
}

func headOf(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}
