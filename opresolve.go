package persist

import (
	"reflect"
)

func (ar *Archive) resolveRoot(name string, obj any) {
	ar.resolveObject(name, reflect.ValueOf(obj).Elem())
}

func (ar *Archive) resolveValue(name, child string, v reflect.Value) {
	info := kindOf(name, v.Type())
	switch info.kind {
	case kindObject:
		ar.resolveObject(name, v)
	case kindPointer:
		ar.resolvePointer(name, v, v)
	case kindInterface:
		ar.resolvePointer(name, v, v.Elem())
	case kindSequence, kindMap:
		ar.resolveContainer(name, child, v, info, false)
	}
}

func (ar *Archive) resolveObject(name string, v reflect.Value) {
	node, ok := ar.res.begin(name)
	if !ok {
		return
	}
	defer ar.res.end()
	ar.res.track(node.address, v.Addr())
	ar.pushFrame()
	defer ar.popFrame()
	ar.persistObject(name, v)
}

// resolvePointer handles owned pointers and interfaces; ptr is the pointer
// held by the field.
func (ar *Archive) resolvePointer(name string, v, ptr reflect.Value) {
	node, ok := ar.res.begin(name)
	if !ok {
		return
	}
	defer ar.res.end()
	if node.shared || !ptr.IsValid() || ptr.Kind() != reflect.Pointer || ptr.IsNil() {
		return
	}
	ar.res.track(node.address, ptr)
	ar.pushFrame()
	defer ar.popFrame()
	ar.persistObject(name, ptr.Elem())
}

func (ar *Archive) resolveReference(name string, v reflect.Value) {
	ar.res.reference(name, v)
}

func (ar *Archive) resolveContainer(name, child string, v reflect.Value, info *typeInfo, refs bool) {
	if _, ok := ar.res.begin(name); !ok {
		return
	}
	defer ar.res.end()

	if info.kind == kindMap {
		for _, k := range sortedKeys(info, v) {
			ar.resolveEntry(child, v, k, info, refs)
		}
		return
	}
	for i, n := 0, v.Len(); i < n; i++ {
		ar.resolveItem(child, v.Index(i), info.elem, refs)
	}
}

func (ar *Archive) resolveItem(child string, v reflect.Value, info *typeInfo, refs bool) {
	switch {
	case refs:
		ar.resolveReference(child, v)
	case info.kind.isObject():
		ar.resolveValue(child, "item", v)
	case info.kind.isContainer():
		ar.resolveValue("value", "item", v)
	}
}

// resolveEntry resolves a map value through an addressable copy and stores
// the copy back once every reference has had its chance to resolve.
func (ar *Archive) resolveEntry(child string, m, k reflect.Value, info *typeInfo, refs bool) {
	if _, ok := ar.res.begin(child); !ok {
		return
	}
	defer ar.res.end()
	if !refs && info.elem.kind.isScalar() {
		return
	}
	e := copyOf(m.MapIndex(k))
	if refs {
		ar.resolveReference("value", e)
	} else {
		ar.resolveValue("value", "item", e)
	}
	ar.res.fixups = append(ar.res.fixups, func() {
		m.SetMapIndex(k, e)
	})
}
