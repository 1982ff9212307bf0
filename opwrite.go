package persist

import (
	"log/slog"
	"reflect"
	"sort"
)

type addrKey struct {
	ptr uintptr
	typ reflect.Type
}

// addressOf returns the address of the struct at ptr, assigning the next
// one on first sight. Both value and reference sites go through here, so a
// reference seen before its target gets the address the target is later
// written with.
func (ar *Archive) addressOf(ptr reflect.Value) Address {
	key := addrKey{ptr.Pointer(), ptr.Type().Elem()}
	if addr, ok := ar.addrs[key]; ok {
		return addr
	}
	addr := Address(len(ar.addrs) + 1)
	ar.addrs[key] = addr
	return addr
}

// pin keeps a temporary copy alive until the write ends so that its
// address cannot be reused by a later temporary.
func (ar *Archive) pin(v reflect.Value) reflect.Value {
	ar.pinned = append(ar.pinned, v)
	return v
}

func (ar *Archive) referenceAddress(v reflect.Value) Address {
	if v.IsNil() {
		return 0
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
		if v.Kind() != reflect.Pointer || v.Type().Elem().Kind() != reflect.Struct {
			fail(&InvalidTypeError{Type: v.Type(), Msg: "references must point to structs"})
		}
		if v.IsNil() {
			return 0
		}
	}
	return ar.addressOf(v)
}

func (ar *Archive) writeRoot(name string, obj any) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		fail(&InvalidTypeError{Name: name, Type: reflect.TypeOf(obj), Msg: "expected a non-nil pointer to a struct"})
	}
	ar.addrs = make(map[addrKey]Address)
	ar.written = make(map[Address]bool)
	ar.writeObject(name, v.Elem(), "")

	var dangling []Address
	for _, addr := range ar.addrs {
		if !ar.written[addr] {
			dangling = append(dangling, addr)
		}
	}
	sort.Slice(dangling, func(i, j int) bool { return dangling[i] < dangling[j] })
	for _, addr := range dangling {
		ar.logger.Warn("persist: referenced object never written by value", slog.String("path", ar.path), slog.Uint64("address", uint64(addr)))
	}
}

func (ar *Archive) writeValue(name, child string, v reflect.Value, item bool) {
	info := kindOf(name, v.Type())
	switch info.kind {
	case kindScalar, kindText, kindBytes:
		ar.w.scalar(encodeScalar(name, info.kind, v))
	case kindObject:
		ar.writeObject(name, v, "")
	case kindPointer:
		if v.IsNil() {
			ar.w.nilObject(name, item)
			return
		}
		if ar.writeShared(name, v) {
			return
		}
		ar.writeObject(name, v.Elem(), "")
	case kindInterface:
		if v.IsNil() {
			ar.w.nilObject(name, item)
			return
		}
		dyn := v.Elem()
		if dyn.Kind() != reflect.Pointer || dyn.Type().Elem().Kind() != reflect.Struct {
			fail(&InvalidTypeError{Name: name, Type: dyn.Type(), Msg: "polymorphic values must be pointers to structs"})
		}
		if dyn.IsNil() {
			ar.w.nilObject(name, item)
			return
		}
		typ := ar.types.TypeOf(dyn.Type().Elem())
		if typ == nil || !typ.flags.Contains(Polymorphic) {
			fail(&InvalidTypeError{Name: name, Type: dyn.Type().Elem(), Msg: "not declared as polymorphic"})
		}
		if ar.writeShared(name, dyn) {
			return
		}
		ar.writeObject(name, dyn.Elem(), typ.name)
	case kindSequence, kindMap:
		ar.writeContainer(name, child, v, info, false)
	}
}

// writeShared writes an owned pointer to an object already written by value
// as a bodiless object carrying just its address. The reader then points the
// field at the object read the first time.
func (ar *Archive) writeShared(name string, ptr reflect.Value) bool {
	addr := ar.addressOf(ptr)
	if !ar.written[addr] {
		return false
	}
	ar.w.beginObject(name, addr)
	ar.w.endObject()
	return true
}

func (ar *Archive) writeObject(name string, v reflect.Value, class string) {
	if !v.CanAddr() {
		v = ar.pin(copyOf(v))
	}
	addr := ar.addressOf(v.Addr())
	if ar.written[addr] {
		ar.logger.Warn("persist: object written by value more than once", slog.String("field", name), slog.Uint64("address", uint64(addr)))
	}
	ar.written[addr] = true

	ar.w.beginObject(name, addr)
	defer ar.w.endObject()
	if class != "" {
		ar.w.scalar(StringAttribute(ar.kw.Class, class))
	}
	ar.pushFrame()
	defer ar.popFrame()
	ar.persistObject(name, v)
}

func (ar *Archive) writeContainer(name, child string, v reflect.Value, info *typeInfo, refs bool) {
	if (v.Kind() == reflect.Slice || v.Kind() == reflect.Map) && v.IsNil() {
		ar.w.nilSequence(name)
		return
	}
	ar.w.beginSequence(name, v.Len())
	defer ar.w.endSequence()

	if info.kind == kindMap {
		for _, k := range sortedKeys(info, v) {
			ar.writeEntry(child, k, v.MapIndex(k), info, refs)
		}
		return
	}
	for i, n := 0, v.Len(); i < n; i++ {
		ar.writeItem(child, v.Index(i), info.elem, refs)
	}
}

func (ar *Archive) writeItem(child string, v reflect.Value, info *typeInfo, refs bool) {
	switch {
	case refs:
		ar.w.reference(child, ar.referenceAddress(v), true)
	case info.kind.isObject():
		ar.writeValue(child, "item", v, true)
	default:
		ar.w.beginItem(child)
		defer ar.w.endItem()
		ar.writeValue("value", "item", v, false)
	}
}

func (ar *Archive) writeEntry(child string, k, v reflect.Value, info *typeInfo, refs bool) {
	ar.w.beginItem(child)
	defer ar.w.endItem()
	ar.w.scalar(encodeScalar("key", info.key.kind, k))
	if refs {
		ar.w.reference("value", ar.referenceAddress(v), false)
	} else {
		ar.writeValue("value", "item", ar.pin(copyOf(v)), false)
	}
}
