package value

// Value is the heap-free, fully self-contained form a Slot is re-serialized
// into when it needs to cross a heap boundary: child-VM global snapshots for
// `parallel` (§4.7/§9 "State capture for parallel") and Executor call
// arguments/results (§4.8, §6 Executor ABI). Unlike Slot, a Value owns its
// entire object graph by copy, so it carries no Handle.
type Value struct {
	Kind ValueKind

	Bool    bool
	Int     int64
	Real    float64
	Str     string
	BuiltIn BuiltInCode

	Elements    []Value // Array
	ElementType string  // Array

	ClassName string           // Instance
	Props     map[string]Value // Instance / Class-as-struct export

	Methods map[string]Value // Class (values are Function)

	FuncName  string // Function
	FuncArity uint8  // Function
	FuncCode  []byte // Function: serialized chunk code
	FuncConst []Value

	ExtName       string // ExternalFunction
	ExtPackage    string
	ExtVersion    string
	ExtKind       string
	ExtDetached   bool
	ExtParameters []string
	ExtReturnType string
}

type ValueKind uint8

const (
	ValueUnit ValueKind = iota
	ValueBool
	ValueInteger
	ValueReal
	ValueString
	ValueArray
	ValueInstance
	ValueClass
	ValueFunction
	ValueExternalFunction
	ValueBuiltIn
)

func (k ValueKind) String() string {
	switch k {
	case ValueUnit:
		return "unit"
	case ValueBool:
		return "bool"
	case ValueInteger:
		return "int"
	case ValueReal:
		return "real"
	case ValueString:
		return "string"
	case ValueArray:
		return "array"
	case ValueInstance:
		return "instance"
	case ValueClass:
		return "class"
	case ValueFunction:
		return "function"
	case ValueExternalFunction:
		return "external-function"
	case ValueBuiltIn:
		return "builtin"
	default:
		return "?"
	}
}

func UnitValue() Value           { return Value{Kind: ValueUnit} }
func BoolValue(b bool) Value     { return Value{Kind: ValueBool, Bool: b} }
func IntegerValue(i int64) Value { return Value{Kind: ValueInteger, Int: i} }
func RealValue(r float64) Value  { return Value{Kind: ValueReal, Real: r} }
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// ChunkCodec lets pkg/bytecode plug its Chunk encode/decode into the
// abstract-value round trip without pkg/value importing pkg/bytecode.
var ChunkCodec interface {
	Encode(c Chunk) (code []byte, constants []Slot)
	Decode(code []byte, constants []Slot) Chunk
}

// ToValue walks a Slot's full object graph out of heap h into a standalone
// Value. Used for both Executor argument marshaling and parallel-branch
// global snapshots.
func ToValue(h *Heap, s Slot) Value {
	switch s.Kind {
	case KindUnit:
		return UnitValue()
	case KindBool:
		return BoolValue(s.Bool)
	case KindInteger:
		return IntegerValue(s.Int)
	case KindReal:
		return RealValue(s.Real)
	case KindBuiltIn:
		return Value{Kind: ValueBuiltIn, BuiltIn: s.BuiltIn}
	case KindObject:
		return objectToValue(h, h.Get(s.Object))
	default:
		panic("value: unknown slot kind")
	}
}

func objectToValue(h *Heap, o Object) Value {
	switch obj := o.(type) {
	case *StringObject:
		return StringValue(obj.Text)
	case *ArrayObject:
		elems := make([]Value, len(obj.Elements))
		for i, e := range obj.Elements {
			elems[i] = ToValue(h, e)
		}
		return Value{Kind: ValueArray, Elements: elems, ElementType: obj.ElementType}
	case *ClassObject:
		methods := make(map[string]Value, len(obj.Methods))
		for name, slot := range obj.Methods {
			methods[name] = ToValue(h, slot)
		}
		return Value{Kind: ValueClass, ClassName: obj.Name, Methods: methods}
	case *FunctionObject:
		code, constants := ChunkCodec.Encode(obj.Chunk)
		vconst := make([]Value, len(constants))
		for i, c := range constants {
			vconst[i] = ToValue(h, c)
		}
		return Value{Kind: ValueFunction, FuncName: obj.Name, FuncArity: obj.Arity, FuncCode: code, FuncConst: vconst}
	case *ExternalFunctionObject:
		return Value{
			Kind: ValueExternalFunction, ExtName: obj.Name, ExtPackage: obj.Package,
			ExtVersion: obj.Version, ExtKind: obj.Kind, ExtDetached: obj.Detached,
			ExtParameters: append([]string(nil), obj.Parameters...),
			ExtReturnType: obj.ReturnType,
		}
	case *InstanceObject:
		props := make(map[string]Value, len(obj.Properties))
		for name, slot := range obj.Properties {
			props[name] = ToValue(h, slot)
		}
		className := ""
		if cls, ok := h.Get(obj.Class).(*ClassObject); ok {
			className = cls.Name
		}
		return Value{Kind: ValueInstance, ClassName: className, Props: props}
	default:
		panic("value: unknown object variant")
	}
}

// FromValue re-inserts a Value's full object graph into heap h, returning a
// fresh Slot valid within that heap. Instances lose their methods in the
// round trip: a Value carries only the class name, so the instance is
// re-pointed at a freshly inserted ClassObject of that name with an empty
// Methods map, and OP_GET_METHOD on it finds no method.
func FromValue(h *Heap, v Value) Slot {
	switch v.Kind {
	case ValueUnit:
		return Unit()
	case ValueBool:
		return Bool(v.Bool)
	case ValueInteger:
		return Integer(v.Int)
	case ValueReal:
		return Real(v.Real)
	case ValueBuiltIn:
		return BuiltInSlot(v.BuiltIn)
	case ValueString:
		return h.InternString(v.Str)
	case ValueArray:
		elems := make([]Slot, len(v.Elements))
		for i, e := range v.Elements {
			elems[i] = FromValue(h, e)
		}
		return Obj(h.Insert(&ArrayObject{Elements: elems, ElementType: v.ElementType}))
	case ValueClass:
		methods := make(map[string]Slot, len(v.Methods))
		for name, mv := range v.Methods {
			methods[name] = FromValue(h, mv)
		}
		return Obj(h.Insert(&ClassObject{Name: v.ClassName, Methods: methods}))
	case ValueFunction:
		vconst := make([]Slot, len(v.FuncConst))
		for i, c := range v.FuncConst {
			vconst[i] = FromValue(h, c)
		}
		chunk := ChunkCodec.Decode(v.FuncCode, vconst)
		return Obj(h.Insert(&FunctionObject{Name: v.FuncName, Arity: v.FuncArity, Chunk: chunk}))
	case ValueExternalFunction:
		return Obj(h.Insert(&ExternalFunctionObject{
			Name: v.ExtName, Package: v.ExtPackage, Version: v.ExtVersion,
			Kind: v.ExtKind, Detached: v.ExtDetached, Parameters: append([]string(nil), v.ExtParameters...),
			ReturnType: v.ExtReturnType,
		}))
	case ValueInstance:
		props := make(map[string]Slot, len(v.Props))
		for name, pv := range v.Props {
			props[name] = FromValue(h, pv)
		}
		class := h.Insert(&ClassObject{Name: v.ClassName, Methods: map[string]Slot{}})
		return Obj(h.Insert(&InstanceObject{Class: class, Properties: props}))
	default:
		panic("value: unknown value kind")
	}
}
