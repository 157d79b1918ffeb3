// Package value implements the tagged Slot/Object/Handle data model the
// virtual machine operates on: a fixed-size Slot on the stack and in
// constant pools, and heap Objects reached indirectly through a Handle.
//
// There is no garbage collector. The heap only ever grows for the
// lifetime of a VM; a Handle, once issued, stays valid forever.
package value

import "fmt"

// Kind tags the variant a Slot currently holds.
type Kind uint8

const (
	KindUnit Kind = iota
	KindBool
	KindInteger
	KindReal
	KindObject
	KindBuiltIn
)

// BuiltInCode identifies a built-in callable: print is registered as a
// global, and waitUntilStarted/waitUntilDone are methods of the Service
// class (see pkg/builtins). Built-ins never touch the heap.
type BuiltInCode uint8

const (
	BuiltInPrint BuiltInCode = iota
	BuiltInWaitUntilStarted
	BuiltInWaitUntilDone
)

// Handle is a stable index into a Heap's object arena.
type Handle int

// Slot is the fixed-size value used on the VM stack and in constant pools.
// True and False share KindBool and differ only in the Bool field; Unit
// has its own kind, KindUnit, which is the zero Kind, so the zero value of
// a Slot is Unit, matching the teacher's "uninitialized means absent" locals.
type Slot struct {
	Kind    Kind
	Bool    bool
	Int     int64
	Real    float64
	Object  Handle
	BuiltIn BuiltInCode
}

func Unit() Slot                 { return Slot{Kind: KindUnit} }
func Bool(b bool) Slot           { return Slot{Kind: KindBool, Bool: b} }
func Integer(i int64) Slot       { return Slot{Kind: KindInteger, Int: i} }
func Real(r float64) Slot        { return Slot{Kind: KindReal, Real: r} }
func Obj(h Handle) Slot          { return Slot{Kind: KindObject, Object: h} }
func BuiltInSlot(c BuiltInCode) Slot { return Slot{Kind: KindBuiltIn, BuiltIn: c} }

func (s Slot) IsUnit() bool   { return s.Kind == KindUnit }
func (s Slot) IsObject() bool { return s.Kind == KindObject }

func (s Slot) AsBool() (bool, bool) {
	if s.Kind != KindBool {
		return false, false
	}
	return s.Bool, true
}

func (s Slot) AsInteger() (int64, bool) {
	if s.Kind != KindInteger {
		return 0, false
	}
	return s.Int, true
}

func (s Slot) AsReal() (float64, bool) {
	if s.Kind != KindReal {
		return 0, false
	}
	return s.Real, true
}

func (s Slot) AsHandle() (Handle, bool) {
	if s.Kind != KindObject {
		return 0, false
	}
	return s.Object, true
}

// Equal implements per-variant equality with numeric cross-compare, as
// required by the data model: Integer(2) == Real(2.0).
func (s Slot) Equal(other Slot) bool {
	switch {
	case s.Kind == KindUnit && other.Kind == KindUnit:
		return true
	case s.Kind == KindBool && other.Kind == KindBool:
		return s.Bool == other.Bool
	case isNumeric(s.Kind) && isNumeric(other.Kind):
		return s.numeric() == other.numeric()
	case s.Kind == KindObject && other.Kind == KindObject:
		return s.Object == other.Object
	case s.Kind == KindBuiltIn && other.Kind == KindBuiltIn:
		return s.BuiltIn == other.BuiltIn
	default:
		return false
	}
}

// Less implements the ordering defined only between numerics.
func (s Slot) Less(other Slot) bool {
	if !isNumeric(s.Kind) || !isNumeric(other.Kind) {
		panic(fmt.Sprintf("cannot order %v and %v", s.Kind, other.Kind))
	}
	return s.numeric() < other.numeric()
}

// Greater implements the ordering defined only between numerics.
func (s Slot) Greater(other Slot) bool {
	if !isNumeric(s.Kind) || !isNumeric(other.Kind) {
		panic(fmt.Sprintf("cannot order %v and %v", s.Kind, other.Kind))
	}
	return s.numeric() > other.numeric()
}

func isNumeric(k Kind) bool { return k == KindInteger || k == KindReal }

func (s Slot) numeric() float64 {
	if s.Kind == KindInteger {
		return float64(s.Int)
	}
	return s.Real
}

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindBool:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindObject:
		return "object"
	case KindBuiltIn:
		return "builtin"
	default:
		return "unknown"
	}
}

func (s Slot) String() string {
	switch s.Kind {
	case KindUnit:
		return "unit"
	case KindBool:
		return fmt.Sprintf("%t", s.Bool)
	case KindInteger:
		return fmt.Sprintf("%d", s.Int)
	case KindReal:
		return fmt.Sprintf("%g", s.Real)
	case KindObject:
		return fmt.Sprintf("object#%d", s.Object)
	case KindBuiltIn:
		return fmt.Sprintf("builtin#%d", s.BuiltIn)
	default:
		return "?"
	}
}
