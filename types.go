package persist

import (
	"fmt"
	"reflect"
	"sort"
)

// Persistent is implemented by pointers to every struct the engine walks.
// Persist is called once per pass (writing, reading, resolving) and must
// make the same sequence of archive calls each time for the same object.
type Persistent interface {
	Persist(ar *Archive)
}

var persistentType = reflect.TypeOf((*Persistent)(nil)).Elem()

type TypeFlags uint32

const (
	// Polymorphic types may be stored behind interface-typed fields; their
	// name is written in the class attribute.
	Polymorphic = TypeFlags(1 << iota)
)

func (f TypeFlags) Contains(v TypeFlags) bool {
	return (f & v) == v
}

// Type is the per-registry record of a declared struct type.
type Type struct {
	name    string
	typ     reflect.Type
	flags   TypeFlags
	create  func() reflect.Value
	persist func(ar *Archive, obj reflect.Value)
}

func (t *Type) Name() string {
	return t.name
}

func (t *Type) Type() reflect.Type {
	return t.typ
}

func (t *Type) Flags() TypeFlags {
	return t.flags
}

func (t *Type) String() string {
	return fmt.Sprintf("%s(%v)", t.name, t.typ)
}

// Registry holds the types a Writer or Reader can create and dispatch on.
// Registries are never shared implicitly: each Writer and Reader is handed
// one explicitly.
type Registry struct {
	types       []*Type
	typesByName map[string]*Type
	typesByType map[reflect.Type]*Type
}

func NewRegistry() *Registry {
	return &Registry{
		typesByName: make(map[string]*Type),
		typesByType: make(map[reflect.Type]*Type),
	}
}

// Declare registers struct type T, whose pointer implements Persistent,
// under name. Declaring the same type under the same name again is a no-op.
func Declare[T any](reg *Registry, name string, flags TypeFlags) *Type {
	ptrType := reflect.TypeOf((*T)(nil))
	if !ptrType.Implements(persistentType) {
		panic(fmt.Errorf("%s: %v does not implement Persistent", name, ptrType))
	}
	return reg.declare(&Type{
		name:  name,
		typ:   ptrType.Elem(),
		flags: flags,
		create: func() reflect.Value {
			return reflect.ValueOf(new(T))
		},
		persist: func(ar *Archive, obj reflect.Value) {
			obj.Addr().Interface().(Persistent).Persist(ar)
		},
	})
}

// DeclareFunc registers struct type T with an external persist function, for
// types that cannot carry a Persist method.
func DeclareFunc[T any](reg *Registry, name string, flags TypeFlags, fn func(ar *Archive, obj *T)) *Type {
	if fn == nil {
		panic(fmt.Errorf("%s: nil persist function", name))
	}
	ptrType := reflect.TypeOf((*T)(nil))
	return reg.declare(&Type{
		name:  name,
		typ:   ptrType.Elem(),
		flags: flags,
		create: func() reflect.Value {
			return reflect.ValueOf(new(T))
		},
		persist: func(ar *Archive, obj reflect.Value) {
			fn(ar, obj.Addr().Interface().(*T))
		},
	})
}

func (reg *Registry) declare(t *Type) *Type {
	if t.name == "" {
		panic(fmt.Errorf("empty type name for %v", t.typ))
	}
	if t.typ.Kind() != reflect.Struct {
		panic(fmt.Errorf("%s: %v is not a struct", t.name, t.typ))
	}
	byName, byType := reg.typesByName[t.name], reg.typesByType[t.typ]
	if byName != nil && byName == byType {
		return byName
	}
	if byName != nil {
		panic(fmt.Errorf("type name %q already declared for %v, cannot declare %v", t.name, byName.typ, t.typ))
	}
	if byType != nil {
		panic(fmt.Errorf("%v already declared as %q, cannot redeclare as %q", t.typ, byType.name, t.name))
	}
	reg.types = append(reg.types, t)
	reg.typesByName[t.name] = t
	reg.typesByType[t.typ] = t
	return t
}

// TypeNamed returns the type declared as name, or nil.
func (reg *Registry) TypeNamed(name string) *Type {
	return reg.typesByName[name]
}

// TypeOf returns the type declared for the given struct type, or nil.
func (reg *Registry) TypeOf(typ reflect.Type) *Type {
	return reg.typesByType[typ]
}

// Types returns the declared types sorted by name.
func (reg *Registry) Types() []*Type {
	types := append([]*Type(nil), reg.types...)
	sort.Slice(types, func(i, j int) bool {
		return types[i].name < types[j].name
	})
	return types
}

func (reg *Registry) persistFunc(typ reflect.Type) func(ar *Archive, obj reflect.Value) {
	if t := reg.typesByType[typ]; t != nil {
		return t.persist
	}
	if reflect.PointerTo(typ).Implements(persistentType) {
		return persistViaMethod
	}
	return nil
}

func persistViaMethod(ar *Archive, obj reflect.Value) {
	obj.Addr().Interface().(Persistent).Persist(ar)
}
