package persist

// treeWriter builds the Element tree the XML, JSON, Lua and MsgPack
// printers consume. The document root is anonymous; the named root object
// is its only child.
type treeWriter struct {
	kw    Keywords
	doc   *Element
	stack []*Element
}

func newTreeWriter(kw Keywords) *treeWriter {
	doc := newDocument()
	return &treeWriter{kw: kw, doc: doc, stack: []*Element{doc}}
}

func (w *treeWriter) top() *Element {
	return w.stack[len(w.stack)-1]
}

func (w *treeWriter) push(name string, flags ElementFlags) *Element {
	el := w.top().AddElement(&Element{Name: name, Flags: flags})
	w.stack = append(w.stack, el)
	return el
}

func (w *treeWriter) pop() {
	w.stack = w.stack[:len(w.stack)-1]
}

func (w *treeWriter) scalar(a Attribute) {
	w.top().AddAttribute(a)
}

func (w *treeWriter) beginObject(name string, addr Address) {
	el := w.push(name, 0)
	el.Address = addr
	el.AddAttribute(AddressAttribute(w.kw.Address, addr))
}

func (w *treeWriter) endObject() {
	w.pop()
}

func (w *treeWriter) nilObject(name string, item bool) {
	if item {
		w.top().AddElement(&Element{Name: name, Flags: ElementPreserveEmpty})
	}
}

func (w *treeWriter) enter(format string, version int) {
	el := w.top()
	el.AddAttribute(StringAttribute(w.kw.Format, format))
	el.AddAttribute(IntAttribute(w.kw.Version, int64(version)))
}

func (w *treeWriter) beginSequence(name string, n int) {
	w.push(name, ElementPreserveEmpty)
}

func (w *treeWriter) nilSequence(name string) {}

func (w *treeWriter) endSequence() {
	w.pop()
}

func (w *treeWriter) beginItem(name string) {
	w.push(name, ElementPreserveEmpty)
}

func (w *treeWriter) endItem() {
	w.pop()
}

func (w *treeWriter) reference(name string, addr Address, item bool) {
	if addr == 0 {
		w.nilObject(name, item)
		return
	}
	el := w.top().AddElement(&Element{Name: name, Address: addr})
	el.AddAttribute(AddressAttribute(w.kw.Address, addr))
}

// treeFrame is an element being read plus, for every child name, the
// number of same-named children already consumed.
type treeFrame struct {
	el      *Element
	cursors map[string]int
}

// treeReader walks a parsed Element tree. Scalars are looked up by name;
// objects, containers and items are taken from same-named children in
// order.
type treeReader struct {
	path  string
	kw    Keywords
	stack []treeFrame
}

func newTreeReader(path string, doc *Element, kw Keywords) *treeReader {
	return &treeReader{path: path, kw: kw, stack: []treeFrame{{el: doc}}}
}

func (r *treeReader) top() *treeFrame {
	return &r.stack[len(r.stack)-1]
}

func (r *treeReader) push(el *Element) {
	r.stack = append(r.stack, treeFrame{el: el})
}

func (r *treeReader) pop() {
	r.stack = r.stack[:len(r.stack)-1]
}

// findNextObject returns the next child called name not yet consumed in the
// current frame, or nil.
func (r *treeReader) findNextObject(name string) *Element {
	f := r.top()
	if f.el == nil {
		return nil
	}
	skip := f.cursors[name]
	for _, c := range f.el.Elements {
		if c.Name != name {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if f.cursors == nil {
			f.cursors = make(map[string]int)
		}
		f.cursors[name]++
		return c
	}
	return nil
}

func (r *treeReader) scalar(name string, kind AttributeKind) (Attribute, bool) {
	el := r.top().el
	if el == nil {
		return Attribute{}, false
	}
	return el.Attribute(name)
}

func (r *treeReader) beginObject(name string) (Address, bool) {
	el := r.findNextObject(name)
	if el == nil || el.IsEmpty() {
		return 0, false
	}
	var addr Address
	if a, ok := el.Attribute(r.kw.Address); ok {
		v, err := a.Address()
		if err != nil {
			fail(parseErrf(r.path, el.Line, err, "bad %s of %s", r.kw.Address, name))
		}
		addr = v
	}
	r.push(el)
	return addr, true
}

func (r *treeReader) endObject() {
	r.pop()
}

func (r *treeReader) enter() (string, int, bool) {
	el := r.top().el
	var format string
	if a, ok := el.Attribute(r.kw.Format); ok {
		format = a.String()
	}
	a, ok := el.Attribute(r.kw.Version)
	if !ok || a.IsVoid() {
		return format, 0, false
	}
	v, err := a.Int()
	if err != nil {
		fail(parseErrf(r.path, el.Line, err, "bad %s", r.kw.Version))
	}
	return format, int(v), true
}

func (r *treeReader) beginSequence(name, child string) (int, bool) {
	el := r.findNextObject(name)
	if el == nil {
		return 0, false
	}
	r.push(el)
	return el.Count(child), true
}

func (r *treeReader) endSequence() {
	r.pop()
}

func (r *treeReader) beginItem(name string) {
	r.push(r.findNextObject(name))
}

func (r *treeReader) endItem() {
	r.pop()
}

func (r *treeReader) reference(name string, item bool) Address {
	el := r.findNextObject(name)
	if el == nil || el.IsEmpty() {
		return 0
	}
	if !el.IsReference(r.kw.Address) {
		fail(parseErrf(r.path, el.Line, nil, "%s must only carry the %s attribute", name, r.kw.Address))
	}
	a, _ := el.Attribute(r.kw.Address)
	addr, err := a.Address()
	if err != nil {
		fail(parseErrf(r.path, el.Line, err, "bad %s of %s", r.kw.Address, name))
	}
	return addr
}

func (r *treeReader) line() int {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if el := r.stack[i].el; el != nil && el.Line > 0 {
			return el.Line
		}
	}
	return 0
}
