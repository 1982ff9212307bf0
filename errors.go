package persist

import (
	"fmt"
	"reflect"
	"strings"
)

// DataError reports malformed binary archive data.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

type OpeningFileFailedError struct {
	Path string
	Err  error
}

func (e *OpeningFileFailedError) Unwrap() error { return e.Err }

func (e *OpeningFileFailedError) Error() string {
	return fmt.Sprintf("opening %s failed: %v", e.Path, e.Err)
}

type ReadingFileFailedError struct {
	Path string
	Err  error
}

func (e *ReadingFileFailedError) Unwrap() error { return e.Err }

func (e *ReadingFileFailedError) Error() string {
	return fmt.Sprintf("reading %s failed: %v", e.Path, e.Err)
}

type WritingFileFailedError struct {
	Path string
	Err  error
}

func (e *WritingFileFailedError) Unwrap() error { return e.Err }

func (e *WritingFileFailedError) Error() string {
	return fmt.Sprintf("writing %s failed: %v", e.Path, e.Err)
}

// ParsingFileFailedError reports malformed archive text. Line is 1-based and
// zero when the position is unknown.
type ParsingFileFailedError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

func parseErrf(path string, line int, err error, format string, args ...any) error {
	return &ParsingFileFailedError{path, line, fmt.Sprintf(format, args...), err}
}

func (e *ParsingFileFailedError) Unwrap() error { return e.Err }

func (e *ParsingFileFailedError) Error() string {
	var buf strings.Builder
	if e.Path != "" {
		buf.WriteString(e.Path)
	} else {
		buf.WriteString("<archive>")
	}
	if e.Line > 0 {
		fmt.Fprintf(&buf, ":%d", e.Line)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// InvalidTypeError reports a type that cannot be persisted: an unregistered
// class name found while reading, an undeclared runtime type found while
// writing, or a resolved reference whose target does not fit its slot.
type InvalidTypeError struct {
	Name string
	Type reflect.Type
	Msg  string
}

func (e *InvalidTypeError) Error() string {
	var buf strings.Builder
	buf.WriteString("invalid type")
	if e.Name != "" {
		fmt.Fprintf(&buf, " %q", e.Name)
	}
	if e.Type != nil {
		fmt.Fprintf(&buf, " (%v)", e.Type)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	return buf.String()
}

type InvalidVersionError struct {
	Path      string
	Version   int
	Supported int
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("%s: archive version %d is newer than supported version %d", orArchive(e.Path), e.Version, e.Supported)
}

type InvalidFormatError struct {
	Path     string
	Format   string
	Expected string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("%s: archive format %q, expected %q", orArchive(e.Path), e.Format, e.Expected)
}

// InvalidIdentifierError is returned by enum and mask filters for a symbolic
// name they do not know.
type InvalidIdentifierError struct {
	Identifier string
	Known      []string
}

func (e *InvalidIdentifierError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("invalid identifier %q", e.Identifier)
	}
	return fmt.Sprintf("invalid identifier %q (known: %s)", e.Identifier, strings.Join(e.Known, ", "))
}

// UnresolvedReference describes one pointer slot left dangling after the
// resolve pass.
type UnresolvedReference struct {
	Address Address
	Field   string
}

type UnresolvedReferencesError struct {
	Path       string
	References []UnresolvedReference
}

func (e *UnresolvedReferencesError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s: %d unresolved references", orArchive(e.Path), len(e.References))
	for i, ref := range e.References {
		if i == 8 {
			fmt.Fprintf(&buf, ", ... (%d more)", len(e.References)-i)
			break
		}
		if i == 0 {
			buf.WriteString(": ")
		} else {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s -> %d", ref.Field, ref.Address)
	}
	return buf.String()
}

func orArchive(path string) string {
	if path == "" {
		return "<archive>"
	}
	return path
}
