package persist

import (
	"fmt"
	"log/slog"
	"reflect"
)

type Mode int

const (
	ModeWriting Mode = iota
	ModeReading
	ModeResolving
)

func (m Mode) String() string {
	switch m {
	case ModeWriting:
		return "writing"
	case ModeReading:
		return "reading"
	case ModeResolving:
		return "resolving"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Keywords are the reserved attribute names an archive uses for its own
// bookkeeping. They must not collide with field names.
type Keywords struct {
	Format  string
	Version string
	Class   string
	Address string
}

var DefaultKeywords = Keywords{
	Format:  "format",
	Version: "version",
	Class:   "class",
	Address: "address",
}

func (kw Keywords) withDefaults() Keywords {
	if kw.Format == "" {
		kw.Format = DefaultKeywords.Format
	}
	if kw.Version == "" {
		kw.Version = DefaultKeywords.Version
	}
	if kw.Class == "" {
		kw.Class = DefaultKeywords.Class
	}
	if kw.Address == "" {
		kw.Address = DefaultKeywords.Address
	}
	return kw
}

type Options struct {
	// Format and Version are entered on the root object. Readers reject
	// archives of another format or of a newer version.
	Format  string
	Version int

	Keywords Keywords
	Logger   *slog.Logger

	// Contexts are made available to Persist methods via Context.
	Contexts []any
}

func (opt Options) withDefaults() Options {
	opt.Keywords = opt.Keywords.withDefaults()
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return opt
}

// Archive is the session state of one Write or Read call. Persist methods
// receive it and describe their fields through it; the same calls write,
// read or resolve depending on Mode.
type Archive struct {
	mode     Mode
	path     string
	format   string
	version  int
	opt      Options
	kw       Keywords
	types    *Registry
	contexts map[reflect.Type]any
	logger   *slog.Logger
	frames   []frame

	// writing
	w       writerImpl
	addrs   map[addrKey]Address
	written map[Address]bool
	pinned  []reflect.Value

	// reading
	r      readerImpl
	rec    *recorder
	bodies map[Address]reflect.Value

	// resolving
	res *resolver
}

type frame struct {
	format  string
	version int
	entered bool
}

func newArchive(mode Mode, path string, types *Registry, opt Options) *Archive {
	ar := &Archive{
		mode:     mode,
		path:     path,
		format:   opt.Format,
		version:  opt.Version,
		opt:      opt,
		kw:       opt.Keywords,
		types:    types,
		contexts: make(map[reflect.Type]any),
		logger:   opt.Logger,
	}
	for _, c := range opt.Contexts {
		ar.contexts[reflect.TypeOf(c)] = c
	}
	return ar
}

func (ar *Archive) Mode() Mode {
	return ar.mode
}

func (ar *Archive) IsWriting() bool {
	return ar.mode == ModeWriting
}

func (ar *Archive) IsReading() bool {
	return ar.mode == ModeReading
}

func (ar *Archive) IsResolving() bool {
	return ar.mode == ModeResolving
}

// Path is the file the archive is read from or written to; empty for
// in-memory archives.
func (ar *Archive) Path() string {
	return ar.path
}

// Version is the version entered by the innermost object that called
// Enter, or the root version.
func (ar *Archive) Version() int {
	return ar.version
}

func (ar *Archive) Format() string {
	return ar.format
}

func (ar *Archive) Keywords() Keywords {
	return ar.kw
}

func (ar *Archive) Types() *Registry {
	return ar.types
}

func (ar *Archive) Logger() *slog.Logger {
	return ar.logger
}

// SetContext makes v available to Persist methods through Context[T]. A later
// value of the same type replaces an earlier one.
func SetContext[T any](ar *Archive, v T) {
	ar.contexts[reflect.TypeFor[T]()] = v
}

// Context returns the value of type T set on the archive, or the zero T.
func Context[T any](ar *Archive) T {
	v, _ := ar.contexts[reflect.TypeFor[T]()].(T)
	return v
}

func (ar *Archive) pushFrame() {
	ar.frames = append(ar.frames, frame{format: ar.format, version: ar.version})
}

func (ar *Archive) popFrame() {
	n := len(ar.frames) - 1
	ar.format, ar.version = ar.frames[n].format, ar.frames[n].version
	ar.frames = ar.frames[:n]
}

func (ar *Archive) isRoot() bool {
	return len(ar.frames) == 1
}

// Value persists the field *ptr by value: scalars, text marshalers, byte
// slices, structs, owned pointers, polymorphic interfaces, and containers of
// those, whose items are named "item".
func (ar *Archive) Value(name string, ptr any) {
	ar.Values(name, "item", ptr)
}

// Values persists a container field *ptr by value with items named child.
func (ar *Archive) Values(name, child string, ptr any) {
	v := ar.slot(name, ptr)
	switch ar.mode {
	case ModeWriting:
		ar.writeValue(name, child, v, false)
	case ModeReading:
		ar.readValue(name, child, v)
	case ModeResolving:
		ar.resolveValue(name, child, v)
	}
}

// Refer persists a non-owning pointer or interface field. The target must
// be written by value somewhere else in the same archive.
func (ar *Archive) Refer(name string, ptr any) {
	v := ar.slot(name, ptr)
	if !isReferenceSlot(v.Type()) {
		fail(&InvalidTypeError{Name: name, Type: v.Type(), Msg: "references must be pointers to structs or interfaces"})
	}
	switch ar.mode {
	case ModeWriting:
		ar.w.reference(name, ar.referenceAddress(v), false)
	case ModeReading:
		ar.rec.addReference(ar.r.reference(name, false))
	case ModeResolving:
		ar.resolveReference(name, v)
	}
}

// References persists a container of non-owning pointers with items named
// child.
func (ar *Archive) References(name, child string, ptr any) {
	v := ar.slot(name, ptr)
	info := kindOf(name, v.Type())
	if !info.kind.isContainer() || !isReferenceSlot(v.Type().Elem()) {
		fail(&InvalidTypeError{Name: name, Type: v.Type(), Msg: "expected a slice, array or map of pointers or interfaces"})
	}
	switch ar.mode {
	case ModeWriting:
		ar.writeContainer(name, child, v, info, true)
	case ModeReading:
		ar.readContainer(name, child, v, info, true)
	case ModeResolving:
		ar.resolveContainer(name, child, v, info, true)
	}
}

// Filtered persists the scalar field *ptr as the text produced by f.
func (ar *Archive) Filtered(name string, ptr any, f Filter) {
	v := ar.slot(name, ptr)
	switch ar.mode {
	case ModeWriting:
		text, err := f.ToArchive(ar, v.Interface())
		if err != nil {
			failf("%s: %w", name, err)
		}
		ar.w.scalar(StringAttribute(name, text))
	case ModeReading:
		a, ok := ar.r.scalar(name, AttributeString)
		if !ok || a.IsVoid() {
			return
		}
		if err := f.FromArchive(ar, a.String(), ptr); err != nil {
			fail(ar.annotate(name, err))
		}
	}
}

// Enter records format and version on the current object. While writing
// they are stored with it; while reading an archive of another format fails
// with InvalidFormatError, and one newer than version fails with
// InvalidVersionError. Version reports the archived version until the
// object ends.
func (ar *Archive) Enter(format string, version int) {
	top := &ar.frames[len(ar.frames)-1]
	switch ar.mode {
	case ModeWriting:
		if !top.entered {
			top.entered = true
			ar.w.enter(format, version)
		}
		ar.format, ar.version = format, version
	case ModeReading:
		if top.entered {
			return
		}
		top.entered = true
		got, gotVersion, ok := ar.r.enter()
		if got != "" && format != "" && got != format {
			fail(&InvalidFormatError{Path: ar.path, Format: got, Expected: format})
		}
		if ok {
			if version > 0 && gotVersion > version {
				fail(&InvalidVersionError{Path: ar.path, Version: gotVersion, Supported: version})
			}
			ar.version = gotVersion
		}
		if got != "" {
			ar.format = got
		}
		ar.rec.enter(ar.version)
	case ModeResolving:
		if node := ar.res.current(); node != nil && node.entered {
			ar.version = node.version
		}
	}
}

// MoveReferenceAddressesBackward is for Persist methods that store the items
// they read in a different order than they were archived: it moves the
// bookkeeping of the most recently read object n positions earlier so that
// the resolve pass, which walks the objects in their in-memory order, still
// lines up with the archive.
func (ar *Archive) MoveReferenceAddressesBackward(n int) {
	if ar.mode == ModeReading {
		ar.rec.moveBackward(n)
	}
}

func (ar *Archive) slot(name string, ptr any) reflect.Value {
	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() {
		fail(&InvalidTypeError{Name: name, Type: reflect.TypeOf(ptr), Msg: "expected a non-nil pointer to the field"})
	}
	return pv.Elem()
}

func (ar *Archive) persistObject(name string, v reflect.Value) {
	fn := ar.types.persistFunc(v.Type())
	if fn == nil {
		fail(&InvalidTypeError{Name: name, Type: v.Type(), Msg: "no Persist method and no declared persist function"})
	}
	if ar.isRoot() && (ar.opt.Format != "" || ar.opt.Version != 0) {
		ar.Enter(ar.opt.Format, ar.opt.Version)
	}
	fn(ar, v)
}

// annotate attaches the current position to a read error.
func (ar *Archive) annotate(name string, err error) error {
	switch err.(type) {
	case *InvalidIdentifierError, *InvalidTypeError, *InvalidFormatError, *InvalidVersionError, *ParsingFileFailedError, *DataError:
		return err
	}
	return parseErrf(ar.path, ar.r.line(), err, "bad value for %s", name)
}
