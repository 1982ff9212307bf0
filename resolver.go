package persist

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

// object mirrors one value-mode site of the archive: an object, a
// container or a map entry. Reading records the tree; resolving replays it
// positionally against the in-memory graph.
type object struct {
	address    Address
	absent     bool
	shared     bool
	entered    bool
	version    int
	references []Address
	objects    []*object
}

// recorder builds the object tree during the read pass.
type recorder struct {
	root  *object
	stack []*object
}

func newRecorder() *recorder {
	root := &object{}
	return &recorder{root: root, stack: []*object{root}}
}

func (rc *recorder) top() *object {
	return rc.stack[len(rc.stack)-1]
}

func (rc *recorder) begin(addr Address) {
	node := &object{address: addr}
	top := rc.top()
	top.objects = append(top.objects, node)
	rc.stack = append(rc.stack, node)
}

// absent records a site missing from the archive so that the sites after it
// keep their positions.
func (rc *recorder) absent() {
	top := rc.top()
	top.objects = append(top.objects, &object{absent: true})
}

// share marks the current node as another owner of an object recorded
// earlier under the same address.
func (rc *recorder) share() {
	rc.top().shared = true
}

func (rc *recorder) end() {
	rc.stack = rc.stack[:len(rc.stack)-1]
}

func (rc *recorder) enter(version int) {
	node := rc.top()
	node.entered = true
	node.version = version
}

func (rc *recorder) addReference(addr Address) {
	top := rc.top()
	top.references = append(top.references, addr)
}

// moveBackward moves the last child of the current node n positions
// earlier, clamped to the first position.
func (rc *recorder) moveBackward(n int) {
	objects := rc.top().objects
	last := len(objects) - 1
	if n <= 0 || last <= 0 {
		return
	}
	pos := last - n
	if pos < 0 {
		pos = 0
	}
	node := objects[last]
	copy(objects[pos+1:], objects[pos:last])
	objects[pos] = node
}

// supersede replaces the child at pos with the last child.
func (rc *recorder) supersede(pos int) {
	top := rc.top()
	last := len(top.objects) - 1
	if pos < 0 || pos >= last {
		return
	}
	top.objects[pos] = top.objects[last]
	top.objects = top.objects[:last]
}

type cursor struct {
	node       *object
	objects    int
	references int
}

type pendingReference struct {
	slot  reflect.Value
	field string
}

// resolver replays the recorded object tree while the resolve pass walks
// the in-memory graph, tracking objects and patching references.
type resolver struct {
	stack    []cursor
	path     []string
	tracked  map[Address]reflect.Value
	pending  map[Address][]pendingReference
	fixups   []func()
	logger   *slog.Logger
	resolved int
}

func newResolver(root *object, logger *slog.Logger) *resolver {
	return &resolver{
		stack:   []cursor{{node: root}},
		tracked: make(map[Address]reflect.Value),
		pending: make(map[Address][]pendingReference),
		logger:  logger,
	}
}

// current is the node of the innermost open site.
func (rs *resolver) current() *object {
	return rs.stack[len(rs.stack)-1].node
}

// begin consumes the next child node of the current one. It returns false,
// opening nothing, when the site was absent from the archive or the
// recording ran out.
func (rs *resolver) begin(name string) (*object, bool) {
	top := &rs.stack[len(rs.stack)-1]
	if top.objects >= len(top.node.objects) {
		return nil, false
	}
	node := top.node.objects[top.objects]
	top.objects++
	if node.absent {
		return nil, false
	}
	rs.stack = append(rs.stack, cursor{node: node})
	rs.path = append(rs.path, name)
	return node, true
}

func (rs *resolver) end() {
	rs.stack = rs.stack[:len(rs.stack)-1]
	rs.path = rs.path[:len(rs.path)-1]
}

func (rs *resolver) nextReference() Address {
	top := &rs.stack[len(rs.stack)-1]
	if top.references >= len(top.node.references) {
		return 0
	}
	addr := top.node.references[top.references]
	top.references++
	return addr
}

func (rs *resolver) field(name string) string {
	if len(rs.path) == 0 {
		return name
	}
	return strings.Join(rs.path, ".") + "." + name
}

// track registers the object at ptr under addr and resolves every reference
// waiting for it.
func (rs *resolver) track(addr Address, ptr reflect.Value) {
	if addr == 0 {
		return
	}
	if _, ok := rs.tracked[addr]; ok {
		rs.logger.Warn("persist: duplicate address", slog.Uint64("address", uint64(addr)), slog.String("field", strings.Join(rs.path, ".")))
		return
	}
	rs.tracked[addr] = ptr
	if refs := rs.pending[addr]; refs != nil {
		delete(rs.pending, addr)
		for _, ref := range refs {
			rs.assign(ref.slot, ptr, ref.field)
		}
	}
}

func (rs *resolver) reference(name string, slot reflect.Value) {
	addr := rs.nextReference()
	if addr == 0 {
		return
	}
	field := rs.field(name)
	if ptr, ok := rs.tracked[addr]; ok {
		rs.assign(slot, ptr, field)
		return
	}
	rs.pending[addr] = append(rs.pending[addr], pendingReference{slot, field})
}

func (rs *resolver) assign(slot, ptr reflect.Value, field string) {
	if !ptr.Type().AssignableTo(slot.Type()) {
		fail(&InvalidTypeError{Name: field, Type: ptr.Type(), Msg: fmt.Sprintf("cannot be referenced from a %v field", slot.Type())})
	}
	slot.Set(ptr)
	rs.resolved++
}

func (rs *resolver) finish() {
	for _, fn := range rs.fixups {
		fn()
	}
	rs.fixups = nil
}

func (rs *resolver) unresolved() []UnresolvedReference {
	var result []UnresolvedReference
	for addr, refs := range rs.pending {
		for _, ref := range refs {
			result = append(result, UnresolvedReference{Address: addr, Field: ref.field})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Address != result[j].Address {
			return result[i].Address < result[j].Address
		}
		return result[i].Field < result[j].Field
	})
	return result
}
