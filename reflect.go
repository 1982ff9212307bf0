package persist

import (
	"encoding"
	"encoding/base64"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

type valueKind int

const (
	kindInvalid valueKind = iota
	kindScalar
	kindText
	kindBytes
	kindObject
	kindPointer
	kindInterface
	kindSequence
	kindMap
)

func (k valueKind) isObject() bool {
	return k == kindObject || k == kindPointer || k == kindInterface
}

func (k valueKind) isContainer() bool {
	return k == kindSequence || k == kindMap
}

func (k valueKind) isScalar() bool {
	return k == kindScalar || k == kindText || k == kindBytes
}

type typeInfo struct {
	kind valueKind
	elem *typeInfo // sequence items, map values
	key  *typeInfo // map keys
	err  string
}

var typeInfoCache sync.Map

func reflectType(typ reflect.Type) *typeInfo {
	if v, ok := typeInfoCache.Load(typ); ok {
		return v.(*typeInfo)
	}
	info := reflectTypeWithoutCache(typ)
	actual, _ := typeInfoCache.LoadOrStore(typ, info)
	return actual.(*typeInfo)
}

func reflectTypeWithoutCache(typ reflect.Type) *typeInfo {
	ptrType := reflect.PointerTo(typ)
	if typ.Kind() == reflect.Struct && ptrType.Implements(persistentType) {
		return &typeInfo{kind: kindObject}
	}
	if ptrType.Implements(textUnmarshalerType) && (typ.Implements(textMarshalerType) || ptrType.Implements(textMarshalerType)) {
		return &typeInfo{kind: kindText}
	}
	switch typ.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return &typeInfo{kind: kindScalar}
	case reflect.Struct:
		// persisted through a DeclareFunc registration, checked at use
		return &typeInfo{kind: kindObject}
	case reflect.Pointer:
		if typ.Elem().Kind() != reflect.Struct {
			return &typeInfo{err: "only pointers to structs can be persisted"}
		}
		return &typeInfo{kind: kindPointer}
	case reflect.Interface:
		return &typeInfo{kind: kindInterface}
	case reflect.Slice:
		if typ.Elem().Kind() == reflect.Uint8 {
			return &typeInfo{kind: kindBytes}
		}
		return &typeInfo{kind: kindSequence, elem: reflectType(typ.Elem())}
	case reflect.Array:
		return &typeInfo{kind: kindSequence, elem: reflectType(typ.Elem())}
	case reflect.Map:
		key := reflectType(typ.Key())
		if key.kind != kindScalar && key.kind != kindText {
			return &typeInfo{err: fmt.Sprintf("map key %v is not a scalar", typ.Key())}
		}
		return &typeInfo{kind: kindMap, key: key, elem: reflectType(typ.Elem())}
	default:
		return &typeInfo{err: fmt.Sprintf("%v values cannot be persisted", typ.Kind())}
	}
}

// kindOf classifies typ or fails with an InvalidTypeError naming the field.
func kindOf(name string, typ reflect.Type) *typeInfo {
	info := reflectType(typ)
	if info.kind == kindInvalid {
		fail(&InvalidTypeError{Name: name, Type: typ, Msg: info.err})
	}
	return info
}

// isReferenceSlot reports whether typ can hold a non-owning reference.
func isReferenceSlot(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Pointer:
		return typ.Elem().Kind() == reflect.Struct
	case reflect.Interface:
		return true
	default:
		return false
	}
}

func scalarAttributeKind(typ reflect.Type) AttributeKind {
	switch typ.Kind() {
	case reflect.Bool:
		return AttributeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return AttributeInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return AttributeUint
	case reflect.Float32, reflect.Float64:
		return AttributeReal
	default:
		return AttributeString
	}
}

// encodeScalar turns a scalar, text or bytes value into an attribute.
func encodeScalar(name string, kind valueKind, v reflect.Value) Attribute {
	switch kind {
	case kindText:
		var m encoding.TextMarshaler
		if v.Type().Implements(textMarshalerType) {
			m = v.Interface().(encoding.TextMarshaler)
		} else {
			if !v.CanAddr() {
				v = copyOf(v)
			}
			m = v.Addr().Interface().(encoding.TextMarshaler)
		}
		text, err := m.MarshalText()
		if err != nil {
			failf("%s: %w", name, err)
		}
		return StringAttribute(name, string(text))
	case kindBytes:
		return StringAttribute(name, base64.StdEncoding.EncodeToString(v.Bytes()))
	}
	switch v.Kind() {
	case reflect.Bool:
		return BoolAttribute(name, v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntAttribute(name, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return UintAttribute(name, v.Uint())
	case reflect.Float32, reflect.Float64:
		return RealAttribute(name, v.Float())
	case reflect.String:
		return StringAttribute(name, v.String())
	default:
		panic(fmt.Errorf("%s: unexpected scalar kind %v", name, v.Kind()))
	}
}

// decodeScalar assigns a to v, coercing between attribute kinds.
func decodeScalar(kind valueKind, a Attribute, v reflect.Value) error {
	switch kind {
	case kindText:
		return v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(a.String()))
	case kindBytes:
		s := a.String()
		if s == "" {
			v.SetBytes(nil)
			return nil
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return err
		}
		v.SetBytes(b)
		return nil
	}
	switch v.Kind() {
	case reflect.Bool:
		b, err := a.Bool()
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := a.Int()
		if err != nil {
			return err
		}
		if v.OverflowInt(i) {
			return fmt.Errorf("value %d overflows %v", i, v.Type())
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := a.Uint()
		if err != nil {
			return err
		}
		if v.OverflowUint(u) {
			return fmt.Errorf("value %d overflows %v", u, v.Type())
		}
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := a.Real()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.String:
		v.SetString(a.String())
	default:
		return fmt.Errorf("unexpected scalar kind %v", v.Kind())
	}
	return nil
}

// keyLess orders map keys. Writers and the resolver iterate maps in this
// order; readers use it to line recorded entries up with that iteration.
func keyLess(kind valueKind, a, b reflect.Value) bool {
	if kind == kindText {
		return encodeScalar("", kind, a).String() < encodeScalar("", kind, b).String()
	}
	switch a.Kind() {
	case reflect.Bool:
		return !a.Bool() && b.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() < b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() < b.Uint()
	case reflect.Float32, reflect.Float64:
		return a.Float() < b.Float()
	default:
		return a.String() < b.String()
	}
}

func sortedKeys(info *typeInfo, m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return keyLess(info.key.kind, keys[i], keys[j])
	})
	return keys
}

// copyOf returns an addressable copy of v, used for map keys and values.
func copyOf(v reflect.Value) reflect.Value {
	tmp := reflect.New(v.Type()).Elem()
	tmp.Set(v)
	return tmp
}
