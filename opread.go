package persist

import (
	"reflect"
	"sort"
)

func (ar *Archive) readRoot(name string, obj any) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		fail(&InvalidTypeError{Name: name, Type: reflect.TypeOf(obj), Msg: "expected a non-nil pointer to a struct"})
	}
	ar.bodies = make(map[Address]reflect.Value)
	ar.readObject(name, v.Elem())
}

func (ar *Archive) readValue(name, child string, v reflect.Value) {
	info := kindOf(name, v.Type())
	switch info.kind {
	case kindScalar, kindText, kindBytes:
		ar.readScalar(name, info.kind, v)
	case kindObject:
		ar.readObject(name, v)
	case kindPointer:
		ar.readPointer(name, v)
	case kindInterface:
		ar.readInterface(name, v)
	case kindSequence, kindMap:
		ar.readContainer(name, child, v, info, false)
	}
}

func (ar *Archive) readScalar(name string, kind valueKind, v reflect.Value) {
	want := AttributeString
	if kind == kindScalar {
		want = scalarAttributeKind(v.Type())
	}
	a, ok := ar.r.scalar(name, want)
	if !ok || a.IsVoid() {
		return
	}
	if err := decodeScalar(kind, a, v); err != nil {
		fail(ar.annotate(name, err))
	}
}

func (ar *Archive) readObject(name string, v reflect.Value) {
	addr, ok := ar.r.beginObject(name)
	if !ok {
		ar.rec.absent()
		return
	}
	defer ar.r.endObject()
	ar.rec.begin(addr)
	defer ar.rec.end()
	ar.readBody(addr, v.Addr())
	ar.pushFrame()
	defer ar.popFrame()
	ar.persistObject(name, v)
}

// readBody remembers ptr as the object read under addr. Owned pointers met
// again under the same address share it.
func (ar *Archive) readBody(addr Address, ptr reflect.Value) {
	if addr == 0 {
		return
	}
	if _, ok := ar.bodies[addr]; !ok {
		ar.bodies[addr] = ptr
	}
}

// readShared points v at the object already read under addr, if any.
func (ar *Archive) readShared(name string, addr Address, v reflect.Value) bool {
	ptr, ok := ar.bodies[addr]
	if addr == 0 || !ok {
		return false
	}
	if !ptr.Type().AssignableTo(v.Type()) {
		fail(&InvalidTypeError{Name: name, Type: ptr.Type(), Msg: "cannot be shared with a " + v.Type().String() + " field"})
	}
	v.Set(ptr)
	ar.rec.share()
	return true
}

func (ar *Archive) readPointer(name string, v reflect.Value) {
	addr, ok := ar.r.beginObject(name)
	if !ok {
		ar.rec.absent()
		return
	}
	defer ar.r.endObject()
	ar.rec.begin(addr)
	defer ar.rec.end()
	if ar.readShared(name, addr, v) {
		return
	}

	if v.IsNil() {
		if t := ar.types.TypeOf(v.Type().Elem()); t != nil {
			v.Set(t.create())
		} else {
			v.Set(reflect.New(v.Type().Elem()))
		}
	}
	ar.readBody(addr, v.Elem().Addr())
	ar.pushFrame()
	defer ar.popFrame()
	ar.persistObject(name, v.Elem())
}

func (ar *Archive) readInterface(name string, v reflect.Value) {
	addr, ok := ar.r.beginObject(name)
	if !ok {
		ar.rec.absent()
		return
	}
	defer ar.r.endObject()
	ar.rec.begin(addr)
	defer ar.rec.end()
	if ar.readShared(name, addr, v) {
		return
	}

	a, _ := ar.r.scalar(ar.kw.Class, AttributeString)
	class := a.String()
	if class == "" {
		return
	}
	t := ar.types.TypeNamed(class)
	if t == nil {
		fail(&InvalidTypeError{Name: class, Msg: "not declared"})
	}
	obj := t.create()
	if !obj.Type().AssignableTo(v.Type()) {
		fail(&InvalidTypeError{Name: class, Type: obj.Type(), Msg: "cannot be stored in a " + v.Type().String() + " field"})
	}
	v.Set(obj)
	ar.readBody(addr, obj)
	ar.pushFrame()
	defer ar.popFrame()
	ar.persistObject(name, obj.Elem())
}

func (ar *Archive) readContainer(name, child string, v reflect.Value, info *typeInfo, refs bool) {
	n, ok := ar.r.beginSequence(name, child)
	if !ok {
		ar.rec.absent()
		return
	}
	defer ar.r.endSequence()
	ar.rec.begin(0)
	defer ar.rec.end()

	switch v.Kind() {
	case reflect.Map:
		ar.readEntries(child, n, v, info, refs)
	case reflect.Slice:
		s := reflect.MakeSlice(v.Type(), n, n)
		for i := 0; i < n; i++ {
			ar.readItem(child, s.Index(i), info.elem, refs)
		}
		v.Set(s)
	case reflect.Array:
		for i := 0; i < n; i++ {
			if i < v.Len() {
				ar.readItem(child, v.Index(i), info.elem, refs)
			} else {
				// archived array was longer; read and discard the rest
				ar.readItem(child, reflect.New(v.Type().Elem()).Elem(), info.elem, refs)
			}
		}
	}
}

func (ar *Archive) readItem(child string, v reflect.Value, info *typeInfo, refs bool) {
	switch {
	case refs:
		ar.rec.addReference(ar.r.reference(child, true))
	case info.kind.isObject():
		ar.readValue(child, "item", v)
	default:
		ar.r.beginItem(child)
		defer ar.r.endItem()
		ar.readValue("value", "item", v)
	}
}

// readEntries reads map entries in archive order. The resolve pass visits
// them in key order, so each entry's node is moved to its sorted position
// as soon as it is read, and a repeated key replaces the earlier entry.
func (ar *Archive) readEntries(child string, n int, m reflect.Value, info *typeInfo, refs bool) {
	typ := m.Type()
	result := reflect.MakeMapWithSize(typ, n)
	var keys []reflect.Value
	for i := 0; i < n; i++ {
		k := reflect.New(typ.Key()).Elem()
		e := reflect.New(typ.Elem()).Elem()
		ar.readEntry(child, k, e, info, refs)
		result.SetMapIndex(k, e)

		pos := sort.Search(len(keys), func(j int) bool {
			return !keyLess(info.key.kind, keys[j], k)
		})
		if pos < len(keys) && !keyLess(info.key.kind, k, keys[pos]) {
			ar.rec.supersede(pos)
			continue
		}
		ar.rec.moveBackward(len(keys) - pos)
		keys = append(keys, reflect.Value{})
		copy(keys[pos+1:], keys[pos:])
		keys[pos] = k
	}
	m.Set(result)
}

func (ar *Archive) readEntry(child string, k, e reflect.Value, info *typeInfo, refs bool) {
	ar.r.beginItem(child)
	defer ar.r.endItem()
	ar.rec.begin(0)
	defer ar.rec.end()
	ar.readScalar("key", info.key.kind, k)
	if refs {
		ar.rec.addReference(ar.r.reference("value", false))
	} else {
		ar.readValue("value", "item", e)
	}
}
