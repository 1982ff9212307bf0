package persist

import (
	"io"
	"log/slog"
	"os"
)

// Writer writes object graphs in one encoding. A Writer may be reused for
// any number of sequential writes but must not be used concurrently.
type Writer struct {
	enc   Encoding
	types *Registry
	opt   Options
}

func NewWriter(enc Encoding, types *Registry, opt Options) *Writer {
	if types == nil {
		types = NewRegistry()
	}
	return &Writer{enc: enc, types: types, opt: opt.withDefaults()}
}

func (w *Writer) Encoding() Encoding {
	return w.enc
}

func (w *Writer) Types() *Registry {
	return w.types
}

func (w *Writer) Options() Options {
	return w.opt
}

// Write writes obj, a pointer to a struct, to the file at path as the root
// object called name. The file is created or truncated.
func (w *Writer) Write(path, name string, obj any) error {
	data, err := w.encode(path, name, obj)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &WritingFileFailedError{Path: path, Err: err}
	}
	return nil
}

// WriteTo is Write to an arbitrary io.Writer; path only serves as the
// archive's location for PathFilter and error messages.
func (w *Writer) WriteTo(out io.Writer, path, name string, obj any) error {
	data, err := w.encode(path, name, obj)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return &WritingFileFailedError{Path: path, Err: err}
	}
	return nil
}

// Marshal returns the encoded archive of obj.
func (w *Writer) Marshal(name string, obj any) ([]byte, error) {
	return w.encode("", name, obj)
}

func (w *Writer) encode(path, name string, obj any) ([]byte, error) {
	ar := newArchive(ModeWriting, path, w.types, w.opt)
	var tw *treeWriter
	var bw *binaryWriter
	if w.enc.IsTree() {
		tw = newTreeWriter(ar.kw)
		ar.w = tw
	} else {
		bw = newBinaryWriter()
		ar.w = bw
	}

	err := safelyCall(func() {
		ar.writeRoot(name, obj)
	})
	if err != nil {
		if bw != nil {
			bw.release()
		}
		return nil, err
	}

	var data []byte
	if tw != nil {
		data, err = PrintTree(w.enc, tw.doc)
		if err != nil {
			return nil, &WritingFileFailedError{Path: path, Err: err}
		}
	} else {
		data = bw.finish()
	}
	ar.logger.Debug("persist: wrote archive", slog.String("path", path), slog.String("root", name), slog.String("encoding", w.enc.String()), slog.Int("objects", len(ar.written)), slog.Int("bytes", len(data)))
	return data, nil
}
