package persist

import (
	"errors"
	"io/fs"
	"reflect"
	"strings"
	"testing"
)

func TestDataError(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := dataErrf([]byte("PRST"), 3, cause, "truncated %s", "object")
	var de *DataError
	if !errors.As(err, &de) || de.Off != 3 {
		t.Fatalf("got %T %v, wanted *DataError at 3", err, err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause lost: %v", err)
	}
	deepEqual(t, err.Error(), "truncated object at 3: unexpected EOF: (4) 50525354")
	deepEqual(t, dataErrf(nil, 0, nil, "empty").Error(), "empty at 0: (0) ")

	long := []byte(strings.Repeat("a", 64) + strings.Repeat("-", 40) + strings.Repeat("z", 32))
	msg := dataErrf(long, 100, nil, "bad size").Error()
	prefix := "bad size at 100: (136) " + strings.Repeat("61", 64) + "..." + strings.Repeat("7a", 32)
	deepEqual(t, msg, prefix)
}

func TestParsingFileFailedError(t *testing.T) {
	inner := errors.New("inner")
	err := parseErrf("a/b.xml", 12, inner, "bad %s", "thing")
	deepEqual(t, err.Error(), "a/b.xml:12: bad thing: inner")
	if !errors.Is(err, inner) {
		t.Fatalf("errors.Is(err, inner) = false, wanted true")
	}
	deepEqual(t, parseErrf("", 0, nil, "oops").Error(), "<archive>: oops")
}

func TestFileErrors(t *testing.T) {
	var out Scene
	err := NewReader(XML, sceneTypes(), Options{}).Read("/nonexistent/dir/scene.xml", "scene", &out)
	var oe *OpeningFileFailedError
	if !errors.As(err, &oe) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %T %v, wanted *OpeningFileFailedError wrapping ErrNotExist", err, err)
	}

	err = NewWriter(XML, sceneTypes(), Options{}).Write("/nonexistent/dir/scene.xml", "scene", &Scene{})
	var we *WritingFileFailedError
	if !errors.As(err, &we) || we.Path != "/nonexistent/dir/scene.xml" {
		t.Fatalf("err = %T %v, wanted *WritingFileFailedError", err, err)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&InvalidTypeError{Name: "shape", Type: reflect.TypeOf(0), Msg: "not declared"}, `invalid type "shape" (int): not declared`},
		{&InvalidVersionError{Path: "g.xml", Version: 3, Supported: 2}, "g.xml: archive version 3 is newer than supported version 2"},
		{&InvalidFormatError{Format: "x", Expected: "y"}, `<archive>: archive format "x", expected "y"`},
		{&InvalidIdentifierError{Identifier: "Huge", Known: []string{"Small", "Large"}}, `invalid identifier "Huge" (known: Small, Large)`},
		{&UnresolvedReferencesError{References: []UnresolvedReference{{4, "graph.root"}, {9, "graph.targets.target.parent"}}}, "<archive>: 2 unresolved references: graph.root -> 4, graph.targets.target.parent -> 9"},
	}
	for _, tt := range tests {
		deepEqual(t, tt.err.Error(), tt.want)
	}

	var refs []UnresolvedReference
	for i := 1; i <= 10; i++ {
		refs = append(refs, UnresolvedReference{Address(i), "f"})
	}
	s := (&UnresolvedReferencesError{References: refs}).Error()
	if !strings.HasSuffix(s, ", ... (2 more)") {
		t.Fatalf("long UnresolvedReferencesError = %q", s)
	}
}
