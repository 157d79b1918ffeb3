package value

// Object is a heap-allocated variant reached through a Handle stored in a
// Slot. The set is closed: String, Array, Class, Function, ExternalFunction,
// Instance — exactly the variants spec.md's data model names.
type Object interface {
	object()
}

// StringObject backs both string literals and runtime-concatenated strings.
type StringObject struct {
	Text string
}

func (*StringObject) object() {}

// ArrayObject is a heap-backed, homogeneously (or not — the emitter never
// enforces it) typed slice of Slots.
type ArrayObject struct {
	Elements    []Slot
	ElementType string // informational; empty when unknown
}

func (*ArrayObject) object() {}

// ClassObject carries a class name and a method table (method name ->
// Slot, always a Function object in practice). It holds no property list;
// property values live on each InstanceObject.
type ClassObject struct {
	Name    string
	Methods map[string]Slot
}

func (*ClassObject) object() {}

// FunctionObject is a compiled, frozen function: name + arity + chunk.
// The chunk type lives in pkg/bytecode; it's referenced here as an opaque
// interface to avoid an import cycle (pkg/bytecode does not need to know
// about pkg/value's Object variants, only the other way around).
type FunctionObject struct {
	Name  string
	Arity uint8
	Chunk Chunk
}

func (*FunctionObject) object() {}

// Chunk is the minimal surface pkg/value needs from pkg/bytecode.Chunk.
type Chunk interface {
	Disassemble() string
}

// ExternalFunctionObject describes a package function dispatched through
// the Executor rather than executed by the VM itself.
type ExternalFunctionObject struct {
	Name       string
	Package    string
	Version    string
	Kind       string
	Detached   bool
	Parameters []string // declared parameter names, in declared order
	ReturnType string   // declared return type tag, checked against the Executor's result (empty: unchecked)
}

func (*ExternalFunctionObject) object() {}

// InstanceObject is a live instance of a ClassObject.
type InstanceObject struct {
	Class      Handle
	Properties map[string]Slot
}

func (*InstanceObject) object() {}

// AsString returns the backing text if o is a *StringObject.
func AsString(o Object) (string, bool) {
	s, ok := o.(*StringObject)
	if !ok {
		return "", false
	}
	return s.Text, true
}
