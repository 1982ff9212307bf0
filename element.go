package persist

type ElementFlags uint8

const (
	// ElementPreserveEmpty marks an element that must survive printing even
	// when it has no attributes and no children (an empty container or a
	// null item placeholder).
	ElementPreserveEmpty = ElementFlags(1 << iota)

	// ElementAnonymous marks the document root, which has no name of its own
	// and prints as its children.
	ElementAnonymous
)

func (f ElementFlags) Contains(v ElementFlags) bool {
	return (f & v) == v
}

// Element is a node of the format-agnostic tree shared by the XML, JSON, Lua
// and MsgPack encodings. Child order is significant: sequences are encoded
// as runs of same-named children.
type Element struct {
	Name       string
	Address    Address
	Flags      ElementFlags
	Line       int
	Attributes []Attribute
	Elements   []*Element
}

func newDocument() *Element {
	return &Element{Flags: ElementAnonymous}
}

func (e *Element) AddAttribute(a Attribute) {
	e.Attributes = append(e.Attributes, a)
}

func (e *Element) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

func (e *Element) AddElement(child *Element) *Element {
	e.Elements = append(e.Elements, child)
	return child
}

// Element returns the first child called name, or nil.
func (e *Element) Element(name string) *Element {
	for _, c := range e.Elements {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Count returns the number of children called name.
func (e *Element) Count(name string) int {
	var n int
	for _, c := range e.Elements {
		if c.Name == name {
			n++
		}
	}
	return n
}

func (e *Element) IsEmpty() bool {
	return len(e.Attributes) == 0 && len(e.Elements) == 0
}

// IsReference reports whether e is a pure identity element: no children and
// a single attribute named addressKeyword.
func (e *Element) IsReference(addressKeyword string) bool {
	return len(e.Elements) == 0 && len(e.Attributes) == 1 && e.Attributes[0].Name == addressKeyword
}

// printable reports whether a printer should emit e at all.
func (e *Element) printable() bool {
	return !e.IsEmpty() || e.Flags.Contains(ElementPreserveEmpty)
}

// childGroups groups children by name in first-occurrence order, the shape
// JSON, Lua and MsgPack print.
func (e *Element) childGroups() [][]*Element {
	var groups [][]*Element
	index := make(map[string]int)
	for _, c := range e.Elements {
		if !c.printable() {
			continue
		}
		if i, ok := index[c.Name]; ok {
			groups[i] = append(groups[i], c)
		} else {
			index[c.Name] = len(groups)
			groups = append(groups, []*Element{c})
		}
	}
	return groups
}
