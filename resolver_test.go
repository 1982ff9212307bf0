package persist

import (
	"testing"
)

func recordedAddresses(rc *recorder) []Address {
	var result []Address
	for _, o := range rc.top().objects {
		result = append(result, o.address)
	}
	return result
}

func TestRecorder_MoveBackward(t *testing.T) {
	rc := newRecorder()
	for _, addr := range []Address{1, 2, 3, 4} {
		rc.begin(addr)
		rc.end()
	}
	rc.moveBackward(2)
	deepEqual(t, recordedAddresses(rc), []Address{1, 4, 2, 3})
	rc.moveBackward(10)
	deepEqual(t, recordedAddresses(rc), []Address{3, 1, 4, 2})
	rc.moveBackward(0)
	deepEqual(t, recordedAddresses(rc), []Address{3, 1, 4, 2})
}

func TestRecorder_Supersede(t *testing.T) {
	rc := newRecorder()
	for _, addr := range []Address{1, 2, 3} {
		rc.begin(addr)
		rc.end()
	}
	rc.supersede(0)
	deepEqual(t, recordedAddresses(rc), []Address{3, 2})
	rc.supersede(1)
	deepEqual(t, recordedAddresses(rc), []Address{3, 2})
}

func TestRecorder_AbsentKeepsPositions(t *testing.T) {
	rc := newRecorder()
	rc.begin(5)
	rc.addReference(7)
	rc.addReference(0)
	rc.end()
	rc.absent()
	rc.begin(6)
	rc.end()

	rs := newResolver(rc.root, nil)
	node, ok := rs.begin("a")
	if !ok || node.address != 5 {
		t.Fatalf("first = %v %v, wanted address 5", node, ok)
	}
	deepEqual(t, rs.nextReference(), Address(7))
	deepEqual(t, rs.nextReference(), Address(0))
	deepEqual(t, rs.nextReference(), Address(0))
	rs.end()
	if _, ok := rs.begin("b"); ok {
		t.Errorf("absent site opened")
	}
	node, ok = rs.begin("c")
	if !ok || node.address != 6 {
		t.Fatalf("third = %v %v, wanted address 6", node, ok)
	}
	rs.end()
	if _, ok := rs.begin("d"); ok {
		t.Errorf("site past the recording opened")
	}
}

// Swapped reads its nodes in the order a, b but resolves them b, a.
type Swapped struct {
	A, B *Node
}

func (s *Swapped) Persist(ar *Archive) {
	if ar.IsResolving() {
		ar.Value("b", &s.B)
		ar.Value("a", &s.A)
		return
	}
	ar.Value("a", &s.A)
	ar.Value("b", &s.B)
	ar.MoveReferenceAddressesBackward(1)
}

func TestMoveReferenceAddressesBackward(t *testing.T) {
	for _, enc := range allEncodings {
		a, b := &Node{Name: "a"}, &Node{Name: "b"}
		a.Next, b.Next = b, a
		b.Parent = b
		var out Swapped
		roundTrip(t, enc, nil, Options{}, "swapped", &Swapped{A: a, B: b}, &out)
		if out.A == nil || out.B == nil {
			t.Fatalf("%v: nodes not read: %+v", enc, out)
		}
		if out.A.Next != out.B || out.B.Next != out.A || out.B.Parent != out.B || out.A.Parent != nil {
			t.Errorf("%v: references crossed: a.next=%p b.next=%p b.parent=%p (a=%p b=%p)", enc, out.A.Next, out.B.Next, out.B.Parent, out.A, out.B)
		}
	}
}

// Reordered map entries must still resolve against the right values.
func TestMapEntriesOutOfOrder(t *testing.T) {
	const data = `<?xml version="1.0"?>
<scene address="1">
	<nodes>
		<node address="2" name="a"/>
		<node address="3" name="b"/>
		<node address="4" name="c"/>
	</nodes>
	<lookup>
		<entry key="zulu" value="2"/>
		<entry key="alpha">
			<value address="3"/>
		</entry>
		<entry key="mike">
			<value address="4"/>
		</entry>
		<entry key="alpha">
			<value address="4"/>
		</entry>
	</lookup>
</scene>
`
	var out Scene
	err := NewReader(XML, sceneTypes(), Options{}).Unmarshal([]byte(data), "scene", &out)
	if err != nil {
		t.Fatal(err)
	}
	c := out.Nodes[2]
	deepEqual(t, len(out.Lookup), 3)
	if out.Lookup["alpha"] != c || out.Lookup["mike"] != c {
		t.Errorf("alpha=%v mike=%v, wanted node c for both", out.Lookup["alpha"], out.Lookup["mike"])
	}
	// a reference carried as an attribute is not an identity element
	if out.Lookup["zulu"] != nil {
		t.Errorf("zulu = %v, wanted nil", out.Lookup["zulu"])
	}
}

// Maps of owned values keep working when hand-edited out of key order.
type Directory struct {
	Nodes map[string]*Node
	Order map[int]*Node
}

func (r *Directory) Persist(ar *Archive) {
	ar.Values("nodes", "entry", &r.Nodes)
	ar.References("order", "entry", &r.Order)
}

func TestMapValuesOutOfOrder(t *testing.T) {
	const data = `{
	"directory": {
		"address": 1,
		"nodes": {
			"entry": [
				{"key": "c", "value": {"address": 4, "name": "c", "next": {"address": 2}}},
				{"key": "a", "value": {"address": 2, "name": "a", "next": {"address": 3}}},
				{"key": "b", "value": {"address": 3, "name": "b"}}
			]
		},
		"order": {
			"entry": [
				{"key": 2, "value": {"address": 3}},
				{"key": 1, "value": {"address": 2}},
				{"key": 3, "value": {"address": 4}}
			]
		}
	}
}`
	var out Directory
	if err := NewReader(JSON, nil, Options{}).Unmarshal([]byte(data), "directory", &out); err != nil {
		t.Fatal(err)
	}
	a, b, c := out.Nodes["a"], out.Nodes["b"], out.Nodes["c"]
	if a == nil || b == nil || c == nil {
		t.Fatalf("nodes = %v", out.Nodes)
	}
	deepEqual(t, []string{a.Name, b.Name, c.Name}, []string{"a", "b", "c"})
	if a.Next != b || c.Next != a || b.Next != nil {
		t.Errorf("next links crossed: a.next=%v b.next=%v c.next=%v", a.Next, b.Next, c.Next)
	}
	if out.Order[1] != a || out.Order[2] != b || out.Order[3] != c {
		t.Errorf("order = %v", out.Order)
	}
}

func TestUnresolvedSorted(t *testing.T) {
	rs := newResolver(&object{}, nil)
	rs.pending[9] = []pendingReference{{field: "z"}, {field: "a"}}
	rs.pending[3] = []pendingReference{{field: "m"}}
	deepEqual(t, rs.unresolved(), []UnresolvedReference{
		{Address: 3, Field: "m"},
		{Address: 9, Field: "a"},
		{Address: 9, Field: "z"},
	})
}
