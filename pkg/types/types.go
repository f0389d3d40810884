package types

import (
	"fmt"
	"strings"
)

// Type is the interface implemented by all type representations.
type Type interface {
	// String returns a human-readable spelling, suitable for debugging or printing.
	String() string
	// Descriptor returns the JVM-style type descriptor (e.g. "I", "J", "Lfoo/Bar;").
	Descriptor() string
	// Equals checks if this type is structurally equivalent to another type.
	Equals(other Type) bool

	// typeNode() is a marker method to ensure only types defined in this package
	// can be assigned to the Type interface. This keeps the type system closed.
	typeNode()
}

// --- Primitive Types ---

// Primitive represents a fundamental, non-composite type.
type Primitive struct {
	Name string
	desc string
	wide bool
	rank int // numeric promotion rank; 0 for non-numeric
}

func (p *Primitive) String() string     { return p.Name }
func (p *Primitive) Descriptor() string { return p.desc }
func (p *Primitive) typeNode()          {}
func (p *Primitive) Equals(other Type) bool {
	// Primitives are singletons, so pointer equality is sufficient.
	return p == other
}

// Pre-defined instances for the primitive types. Long and Double are the
// wide types: two operand-stack slots, two local-variable slots.
var (
	Byte    = &Primitive{Name: "byte", desc: "B", rank: 1}
	Boolean = &Primitive{Name: "boolean", desc: "Z"}
	Short   = &Primitive{Name: "short", desc: "S", rank: 1}
	Char    = &Primitive{Name: "char", desc: "C", rank: 1}
	Int     = &Primitive{Name: "int", desc: "I", rank: 1}
	Float   = &Primitive{Name: "float", desc: "F", rank: 3}
	Double  = &Primitive{Name: "double", desc: "D", wide: true, rank: 4}
	Long    = &Primitive{Name: "long", desc: "J", wide: true, rank: 2}
	Void    = &Primitive{Name: "void", desc: "V"}
)

// --- String Type ---

// StringType is the built-in string type. It is kept as its own tag in the
// model but is reference-category and formats as java/lang/String.
type StringType struct{}

func (s *StringType) String() string     { return "string" }
func (s *StringType) Descriptor() string { return "Ljava/lang/String;" }
func (s *StringType) typeNode()          {}
func (s *StringType) Equals(other Type) bool {
	_, ok := other.(*StringType)
	return ok
}

var String = &StringType{}

// --- Reference Types ---

// ReferenceType is a class or interface type, named by its internal name
// (slash-separated, e.g. "java/lang/Object").
type ReferenceType struct {
	Name string
}

func Reference(name string) *ReferenceType {
	return &ReferenceType{Name: name}
}

func (r *ReferenceType) String() string     { return strings.ReplaceAll(r.Name, "/", ".") }
func (r *ReferenceType) Descriptor() string { return "L" + r.Name + ";" }
func (r *ReferenceType) typeNode()          {}
func (r *ReferenceType) Equals(other Type) bool {
	o, ok := other.(*ReferenceType)
	return ok && o.Name == r.Name
}

var Object = Reference("java/lang/Object")

// --- Array Types ---

// ArrayType is an array of some element type.
type ArrayType struct {
	Elem Type
}

func Array(elem Type) *ArrayType {
	return &ArrayType{Elem: elem}
}

func (a *ArrayType) String() string     { return a.Elem.String() + "[]" }
func (a *ArrayType) Descriptor() string { return "[" + a.Elem.Descriptor() }
func (a *ArrayType) typeNode()          {}
func (a *ArrayType) Equals(other Type) bool {
	o, ok := other.(*ArrayType)
	return ok && o.Elem.Equals(a.Elem)
}

// --- Category Predicates ---

// IsWide reports whether t occupies two stack slots and two local slots.
func IsWide(t Type) bool {
	p, ok := t.(*Primitive)
	return ok && p.wide
}

// SlotWidth returns the number of slots a value of type t occupies (1 or 2).
func SlotWidth(t Type) int {
	if IsWide(t) {
		return 2
	}
	return 1
}

// IsReference reports whether t is reference-category (nullable, one slot).
func IsReference(t Type) bool {
	switch t.(type) {
	case *ReferenceType, *ArrayType, *StringType:
		return true
	}
	return false
}

// IsNumeric reports whether t participates in arithmetic promotion.
func IsNumeric(t Type) bool {
	p, ok := t.(*Primitive)
	return ok && p.rank > 0
}

// IsIntegral reports whether t is an integral primitive (byte..long).
func IsIntegral(t Type) bool {
	p, ok := t.(*Primitive)
	return ok && (p.rank == 1 || p.rank == 2)
}

// StackType maps a type to its operand-stack representation: the small
// integral types (and boolean) live on the stack as int.
func StackType(t Type) Type {
	switch t {
	case Byte, Boolean, Short, Char:
		return Int
	}
	return t
}

// Promote computes the binary numeric promotion of a and b, following the
// fixed table: byte/short/char widen to int, then int < long < float < double.
// The second result is false if either operand is non-numeric.
func Promote(a, b Type) (Type, bool) {
	pa, aok := a.(*Primitive)
	pb, bok := b.(*Primitive)
	if !aok || !bok || pa.rank == 0 || pb.rank == 0 {
		return nil, false
	}
	hi := pa
	if pb.rank > pa.rank {
		hi = pb
	}
	if hi.rank == 1 {
		return Int, true
	}
	return hi, true
}

// --- Method and Constructor Signatures ---

// ConstructorName is the internal name of all constructors.
const ConstructorName = "<init>"

// Signature describes a method or constructor: name, return type, and the
// parameter types in call-site (and slot) order.
type Signature struct {
	Name   string
	Return Type
	Params []Type
}

// MethodSig builds an ordinary method signature.
func MethodSig(ret Type, name string, params ...Type) Signature {
	return Signature{Name: name, Return: ret, Params: params}
}

// ConstructorSig builds a constructor signature: implicit void return,
// implicit name "<init>".
func ConstructorSig(params ...Type) Signature {
	return Signature{Name: ConstructorName, Return: Void, Params: params}
}

// IsConstructor reports whether s names a constructor.
func (s Signature) IsConstructor() bool { return s.Name == ConstructorName }

// Descriptor returns the JVM method descriptor, e.g. "(IJ)V".
func (s Signature) Descriptor() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range s.Params {
		b.WriteString(p.Descriptor())
	}
	b.WriteByte(')')
	b.WriteString(s.Return.Descriptor())
	return b.String()
}

func (s Signature) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s %s(%s)", s.Return, s.Name, strings.Join(parts, ", "))
}

// Equals checks structural equality of two signatures.
func (s Signature) Equals(o Signature) bool {
	if s.Name != o.Name || !s.Return.Equals(o.Return) || len(s.Params) != len(o.Params) {
		return false
	}
	for i, p := range s.Params {
		if !p.Equals(o.Params[i]) {
			return false
		}
	}
	return true
}
