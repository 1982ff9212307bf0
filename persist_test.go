package persist

import (
	"errors"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

type (
	Point struct {
		X, Y int
	}

	Shape interface {
		Area() float64
	}

	Circle struct {
		Center Point
		Radius float64
	}

	Rect struct {
		Min, Max Point
		Label    string
	}

	Node struct {
		Name     string
		Parent   *Node
		Next     *Node
		Children []*Node
	}

	Scene struct {
		Title    string
		Count    int
		Small    int8
		Unsigned uint64
		Ratio    float64
		Enabled  bool
		Blob     []byte
		When     time.Time
		Tags     []string
		Weights  map[string]float64
		Grid     [][]int
		Origin   Point
		Corners  [2]Point
		Shapes   []Shape
		Favorite Shape
		Nodes    []*Node
		Root     *Node
		Lookup   map[string]*Node
		Colors   []Color
		Empty    []string
		Missing  []string
	}

	// Color has no Persist method and goes through DeclareFunc.
	Color struct {
		R, G, B uint8
	}
)

func (c *Circle) Area() float64 { return math.Pi * c.Radius * c.Radius }

func (r *Rect) Area() float64 {
	return float64((r.Max.X - r.Min.X) * (r.Max.Y - r.Min.Y))
}

func (p *Point) Persist(ar *Archive) {
	ar.Value("x", &p.X)
	ar.Value("y", &p.Y)
}

func (c *Circle) Persist(ar *Archive) {
	ar.Value("center", &c.Center)
	ar.Value("radius", &c.Radius)
}

func (r *Rect) Persist(ar *Archive) {
	ar.Value("min", &r.Min)
	ar.Value("max", &r.Max)
	ar.Value("label", &r.Label)
}

func (n *Node) Persist(ar *Archive) {
	ar.Value("name", &n.Name)
	ar.Refer("parent", &n.Parent)
	ar.Refer("next", &n.Next)
	ar.Values("children", "node", &n.Children)
}

func (s *Scene) Persist(ar *Archive) {
	ar.Value("title", &s.Title)
	ar.Value("count", &s.Count)
	ar.Value("small", &s.Small)
	ar.Value("unsigned", &s.Unsigned)
	ar.Value("ratio", &s.Ratio)
	ar.Value("enabled", &s.Enabled)
	ar.Value("blob", &s.Blob)
	ar.Value("when", &s.When)
	ar.Values("tags", "tag", &s.Tags)
	ar.Values("weights", "weight", &s.Weights)
	ar.Values("grid", "row", &s.Grid)
	ar.Value("origin", &s.Origin)
	ar.Values("corners", "corner", &s.Corners)
	ar.Values("shapes", "shape", &s.Shapes)
	ar.Refer("favorite", &s.Favorite)
	ar.Values("nodes", "node", &s.Nodes)
	ar.Refer("root", &s.Root)
	ar.References("lookup", "entry", &s.Lookup)
	ar.Values("colors", "color", &s.Colors)
	ar.Values("empty", "item", &s.Empty)
	ar.Values("missing", "item", &s.Missing)
}

func persistColor(ar *Archive, c *Color) {
	ar.Value("r", &c.R)
	ar.Value("g", &c.G)
	ar.Value("b", &c.B)
}

var allEncodings = []Encoding{Binary, XML, JSON, Lua, MsgPack}

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func sceneTypes() *Registry {
	reg := NewRegistry()
	Declare[Scene](reg, "scene", 0)
	Declare[Circle](reg, "circle", Polymorphic)
	Declare[Rect](reg, "rect", Polymorphic)
	DeclareFunc(reg, "color", 0, persistColor)
	return reg
}

func sampleScene() *Scene {
	a := &Node{Name: "a"}
	b := &Node{Name: "b"}
	c := &Node{Name: "c", Parent: a}
	a.Children = []*Node{c}
	a.Next = b // forward reference
	b.Next = c // reference into a subtree written earlier
	c.Next = a // cycle

	circle := &Circle{Center: Point{1, 2}, Radius: 1.5}
	rect := &Rect{Min: Point{0, 0}, Max: Point{3, 4}, Label: `<"quoted" & 'odd'>` + "\n\ttabbed"}

	return &Scene{
		Title:    "Demo scene",
		Count:    -42,
		Small:    -8,
		Unsigned: math.MaxUint64,
		Ratio:    0.125,
		Enabled:  true,
		Blob:     []byte{0, 1, 2, 0xFF},
		When:     time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC),
		Tags:     []string{"x", "", "z"},
		Weights:  map[string]float64{"b": 2, "a": 1, "c": -0.5},
		Grid:     [][]int{{1, 2}, {}, nil, {3}},
		Origin:   Point{5, -6},
		Corners:  [2]Point{{1, 1}, {2, 2}},
		Shapes:   []Shape{circle, nil, rect},
		Favorite: rect,
		Nodes:    []*Node{a, b},
		Root:     c,
		Lookup:   map[string]*Node{"first": a, "second": b, "third": c, "none": nil},
		Colors:   []Color{{255, 0, 0}, {0, 128, 255}},
		Empty:    []string{},
	}
}

func roundTrip[T any](t testing.TB, enc Encoding, reg *Registry, opt Options, name string, in, out *T) []byte {
	t.Helper()
	data, err := NewWriter(enc, reg, opt).Marshal(name, in)
	if err != nil {
		t.Fatalf("%v: Marshal failed: %v", enc, err)
	}
	err = NewReader(enc, reg, opt).Unmarshal(data, name, out)
	if err != nil {
		t.Fatalf("%v: Unmarshal failed: %v\n%s", enc, err, data)
	}
	return data
}

func checkScene(t testing.TB, enc Encoding, got, want *Scene) {
	t.Helper()
	if !got.When.Equal(want.When) {
		t.Errorf("%v: When = %v, wanted %v", enc, got.When, want.When)
	}
	g, w := *got, *want
	g.When, w.When = time.Time{}, time.Time{}
	if g.Grid[2] != nil {
		t.Errorf("%v: Grid[2] = %v, wanted nil", enc, g.Grid[2])
	}
	if !reflect.DeepEqual(&g, &w) {
		t.Errorf("%v: ** got %+v, wanted %+v", enc, g, w)
	}

	a, b, c := got.Nodes[0], got.Nodes[1], got.Nodes[0].Children[0]
	if a.Next != b || b.Next != c || c.Next != a || c.Parent != a {
		t.Errorf("%v: node links not restored by identity", enc)
	}
	if got.Root != c {
		t.Errorf("%v: Root = %p, wanted %p", enc, got.Root, c)
	}
	if got.Favorite != got.Shapes[2] {
		t.Errorf("%v: Favorite does not point at Shapes[2]", enc)
	}
	if got.Lookup["first"] != a || got.Lookup["second"] != b || got.Lookup["third"] != c {
		t.Errorf("%v: Lookup = %v, wanted references to nodes", enc, got.Lookup)
	}
	if v, ok := got.Lookup["none"]; !ok || v != nil {
		t.Errorf("%v: Lookup[none] = (%v, %v), wanted (nil, true)", enc, v, ok)
	}
	if got.Empty == nil {
		t.Errorf("%v: Empty = nil, wanted empty non-nil slice", enc)
	}
	if got.Missing != nil {
		t.Errorf("%v: Missing = %v, wanted nil", enc, got.Missing)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, enc := range allEncodings {
		t.Run(enc.String(), func(t *testing.T) {
			reg := sceneTypes()
			in := sampleScene()
			var out Scene
			roundTrip(t, enc, reg, Options{Format: "scene", Version: 1}, "scene", in, &out)
			checkScene(t, enc, &out, in)

			if _, ok := out.Shapes[0].(*Circle); !ok {
				t.Errorf("Shapes[0] = %T, wanted *Circle", out.Shapes[0])
			}
			if out.Shapes[1] != nil {
				t.Errorf("Shapes[1] = %v, wanted nil", out.Shapes[1])
			}
			if _, ok := out.Shapes[2].(*Rect); !ok {
				t.Errorf("Shapes[2] = %T, wanted *Rect", out.Shapes[2])
			}
		})
	}
}

func TestRoundTrip_Stable(t *testing.T) {
	for _, enc := range allEncodings {
		t.Run(enc.String(), func(t *testing.T) {
			reg := sceneTypes()
			var out Scene
			first := roundTrip(t, enc, reg, Options{}, "scene", sampleScene(), &out)
			second, err := NewWriter(enc, reg, Options{}).Marshal("scene", &out)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(first) != string(second) {
				t.Errorf("re-serialized archive differs:\n%s\n---\n%s", first, second)
			}
		})
	}
}

func TestRoundTrip_TreeConversion(t *testing.T) {
	reg := sceneTypes()
	in := sampleScene()
	xmlData, err := NewWriter(XML, reg, Options{}).Marshal("scene", in)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseTree(XML, "", xmlData)
	if err != nil {
		t.Fatal(err)
	}
	for _, enc := range []Encoding{JSON, Lua, MsgPack} {
		data, err := PrintTree(enc, doc)
		if err != nil {
			t.Fatalf("%v: PrintTree: %v", enc, err)
		}
		var out Scene
		if err := NewReader(enc, reg, Options{}).Unmarshal(data, "scene", &out); err != nil {
			t.Fatalf("%v: Unmarshal of converted XML: %v\n%s", enc, err, data)
		}
		checkScene(t, enc, &out, in)
	}
}

func TestUnregisteredClass(t *testing.T) {
	const data = `<?xml version="1.0"?>
<scene address="1">
	<shapes>
		<shape address="2" class="triangle"/>
	</shapes>
</scene>
`
	var out Scene
	err := NewReader(XML, sceneTypes(), Options{}).Unmarshal([]byte(data), "scene", &out)
	var ite *InvalidTypeError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %T %v, wanted *InvalidTypeError", err, err)
	}
	if ite.Name != "triangle" {
		t.Errorf("InvalidTypeError.Name = %q, wanted %q", ite.Name, "triangle")
	}
}

func TestUndeclaredPolymorphicWrite(t *testing.T) {
	reg := NewRegistry()
	Declare[Scene](reg, "scene", 0)
	in := &Scene{Shapes: []Shape{&Circle{}}}
	_, err := NewWriter(JSON, reg, Options{}).Marshal("scene", in)
	var ite *InvalidTypeError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %T %v, wanted *InvalidTypeError", err, err)
	}
}

func TestEmptyClassLeavesFieldAlone(t *testing.T) {
	const data = `{"scene": {"address": 1, "favorite_shape": {"address": 2}}}`
	type holder struct{ Shape Shape }
	reg := sceneTypes()
	DeclareFunc(reg, "holder", 0, func(ar *Archive, h *holder) {
		ar.Value("favorite_shape", &h.Shape)
	})
	existing := &Circle{Radius: 7}
	out := holder{Shape: existing}
	if err := NewReader(JSON, reg, Options{}).Unmarshal([]byte(data), "scene", &out); err != nil {
		t.Fatal(err)
	}
	if out.Shape != Shape(existing) {
		t.Errorf("Shape = %v, wanted the existing circle", out.Shape)
	}
}

func TestMissingElementsKeepDefaults(t *testing.T) {
	const data = `<?xml version="1.0"?>
<scene address="1" count="7">
	<origin address="2" x="9"/>
</scene>
`
	out := Scene{Title: "default title", Origin: Point{1, 2}, Tags: []string{"keep"}}
	if err := NewReader(XML, sceneTypes(), Options{}).Unmarshal([]byte(data), "scene", &out); err != nil {
		t.Fatal(err)
	}
	deepEqual(t, out.Title, "default title")
	deepEqual(t, out.Count, 7)
	deepEqual(t, out.Origin, Point{9, 2})
	deepEqual(t, out.Tags, []string{"keep"})
}

func TestUnresolvedReferences(t *testing.T) {
	const data = `<?xml version="1.0"?>
<scene address="1">
	<nodes>
		<node address="2" name="a">
			<next address="99"/>
		</node>
	</nodes>
	<root address="98"/>
</scene>
`
	var out Scene
	err := NewReader(XML, sceneTypes(), Options{}).Unmarshal([]byte(data), "scene", &out)
	var ure *UnresolvedReferencesError
	if !errors.As(err, &ure) {
		t.Fatalf("err = %T %v, wanted *UnresolvedReferencesError", err, err)
	}
	deepEqual(t, ure.References, []UnresolvedReference{
		{Address: 98, Field: "scene.root"},
		{Address: 99, Field: "scene.nodes.node.next"},
	})
}

func TestReferenceTypeMismatch(t *testing.T) {
	const data = `<?xml version="1.0"?>
<scene address="1">
	<origin address="2"/>
	<shapes>
		<shape address="3" class="circle"/>
	</shapes>
	<root address="3"/>
</scene>
`
	var out Scene
	err := NewReader(XML, sceneTypes(), Options{}).Unmarshal([]byte(data), "scene", &out)
	var ite *InvalidTypeError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %T %v, wanted *InvalidTypeError", err, err)
	}
	if !strings.Contains(ite.Error(), "scene.root") {
		t.Errorf("err = %q, wanted mention of scene.root", ite.Error())
	}
}

func TestForwardReference(t *testing.T) {
	for _, enc := range allEncodings {
		a, b := &Node{Name: "a"}, &Node{Name: "b"}
		a.Next = b
		in := &Scene{Root: b, Nodes: []*Node{a, b}}
		var out Scene
		roundTrip(t, enc, sceneTypes(), Options{}, "scene", in, &out)
		if len(out.Nodes) != 2 || out.Nodes[0].Next != out.Nodes[1] || out.Root != out.Nodes[1] {
			t.Errorf("%v: forward reference not resolved: %+v", enc, out.Nodes)
		}
	}
}

func TestSharedOwnedPointer(t *testing.T) {
	for _, enc := range allEncodings {
		a := &Node{Name: "a"}
		circle := &Circle{Radius: 2}
		in := &Scene{Nodes: []*Node{a, a}, Root: a, Shapes: []Shape{circle, circle}}
		var out Scene
		roundTrip(t, enc, sceneTypes(), Options{}, "scene", in, &out)
		if len(out.Nodes) != 2 || out.Nodes[0] == nil || out.Nodes[0] != out.Nodes[1] {
			t.Errorf("%v: Nodes = %v, wanted one shared node", enc, out.Nodes)
			continue
		}
		if out.Nodes[0].Name != "a" || out.Root != out.Nodes[0] {
			t.Errorf("%v: shared node = %+v, Root = %p", enc, out.Nodes[0], out.Root)
		}
		if len(out.Shapes) != 2 || out.Shapes[0] == nil || out.Shapes[0] != out.Shapes[1] {
			t.Errorf("%v: Shapes = %v, wanted one shared circle", enc, out.Shapes)
		}
	}
}

func TestXMLControlCharacters(t *testing.T) {
	in := &Scene{Title: "a\x01b"}
	_, err := NewWriter(XML, sceneTypes(), Options{}).Marshal("scene", in)
	var we *WritingFileFailedError
	if !errors.As(err, &we) {
		t.Fatalf("Marshal err = %v, wanted WritingFileFailedError", err)
	}
	if !strings.Contains(err.Error(), "U+0001") {
		t.Errorf("err = %v, wanted the offending character", err)
	}
	for _, enc := range []Encoding{Binary, JSON, Lua, MsgPack} {
		var out Scene
		roundTrip(t, enc, sceneTypes(), Options{}, "scene", in, &out)
		deepEqual(t, out.Title, in.Title)
	}
}

func TestBinaryTruncated(t *testing.T) {
	data, err := NewWriter(Binary, sceneTypes(), Options{}).Marshal("scene", sampleScene())
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{len(data) - 1, len(data) / 2, 9} {
		var out Scene
		err := NewReader(Binary, sceneTypes(), Options{}).Unmarshal(data[:n], "scene", &out)
		var de *DataError
		if !errors.As(err, &de) {
			t.Errorf("truncated to %d: err = %T %v, wanted *DataError", n, err, err)
		}
	}
}

func TestBinaryBadMagic(t *testing.T) {
	var out Scene
	err := NewReader(Binary, sceneTypes(), Options{}).Unmarshal([]byte("NOPE...."), "scene", &out)
	var pe *ParsingFileFailedError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T %v, wanted *ParsingFileFailedError", err, err)
	}
}

func TestMissingRoot(t *testing.T) {
	var out Scene
	err := NewReader(JSON, sceneTypes(), Options{}).Unmarshal([]byte(`{"other": {}}`), "scene", &out)
	var pe *ParsingFileFailedError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T %v, wanted *ParsingFileFailedError", err, err)
	}
}

func TestRootMustBeStructPointer(t *testing.T) {
	var n int
	_, err := NewWriter(JSON, nil, Options{}).Marshal("root", &n)
	var ite *InvalidTypeError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %T %v, wanted *InvalidTypeError", err, err)
	}
}

type counter struct {
	n int
}

type counted struct {
	Name string
}

func (c *counted) Persist(ar *Archive) {
	if cnt := Context[*counter](ar); cnt != nil {
		cnt.n++
	}
	ar.Value("name", &c.Name)
}

type countedList struct {
	Items []counted
}

func (l *countedList) Persist(ar *Archive) {
	ar.Values("items", "item", &l.Items)
}

func TestContext(t *testing.T) {
	cnt := &counter{}
	opt := Options{Contexts: []any{&counter{n: 100}, cnt}}
	in := &countedList{Items: []counted{{"a"}, {"b"}}}
	var out countedList
	roundTrip(t, JSON, nil, opt, "list", in, &out)
	// one call per item per pass: write, read and resolve
	deepEqual(t, cnt.n, 6)
	deepEqual(t, out, *in)
}

func TestSetContextLastWins(t *testing.T) {
	ar := newArchive(ModeWriting, "", NewRegistry(), Options{}.withDefaults())
	SetContext(ar, &counter{n: 1})
	SetContext(ar, &counter{n: 2})
	deepEqual(t, Context[*counter](ar).n, 2)
	if Context[*Node](ar) != nil {
		t.Errorf("Context[*Node] = non-nil, wanted nil")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	c1 := Declare[Circle](reg, "circle", Polymorphic)
	c2 := Declare[Circle](reg, "circle", Polymorphic)
	if c1 != c2 {
		t.Errorf("redeclaration returned a new type")
	}
	deepEqual(t, reg.TypeNamed("circle"), c1)
	deepEqual(t, reg.TypeOf(reflect.TypeOf(Circle{})), c1)
	if reg.TypeNamed("rect") != nil {
		t.Errorf("TypeNamed(rect) = non-nil, wanted nil")
	}

	expectPanic(t, func() { Declare[Rect](reg, "circle", 0) })
	expectPanic(t, func() { Declare[Circle](reg, "round", 0) })
	expectPanic(t, func() { DeclareFunc[Color](reg, "color", 0, nil) })
}

func expectPanic(t testing.TB, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic")
		}
	}()
	fn()
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}
