package value

// Heap is an arena of Objects. Handles are stable slice indices; nothing is
// ever freed or compacted, matching the explicit no-GC non-goal.
type Heap struct {
	objects []Object
}

func NewHeap() *Heap {
	return &Heap{objects: make([]Object, 0, 256)}
}

// Insert allocates o and returns a Handle that remains valid for the life
// of the heap.
func (h *Heap) Insert(o Object) Handle {
	h.objects = append(h.objects, o)
	return Handle(len(h.objects) - 1)
}

// Get dereferences a Handle. A Handle from this heap is always valid: it is
// a programming error (not a runtime error path) to pass a Handle from a
// different heap.
func (h *Heap) Get(handle Handle) Object {
	return h.objects[handle]
}

// InternString allocates a new String object and returns its Slot. The
// teacher's VM interns nothing (every string concat allocates fresh), and
// per spec.md's invariant list strings aren't deduplicated either — this
// just wraps the common Insert+Obj(...) pair.
func (h *Heap) InternString(s string) Slot {
	return Obj(h.Insert(&StringObject{Text: s}))
}

func (h *Heap) GetString(handle Handle) (string, bool) {
	return AsString(h.Get(handle))
}
