// Package ast defines the closed, statically-typed input tree the compiler
// lowers: classes, fields, methods, statements and expressions. The tree is
// the stable contract with the AST producer; it is assumed type-correct and
// is consumed in memory, never parsed from text.
package ast

import (
	"github.com/bys1/flybytes/pkg/types"
)

// Exp is the interface implemented by all expression variants.
type Exp interface {
	// expNode() is a marker method keeping the expression vocabulary closed
	// to this package, so lowering can match exhaustively.
	expNode()
}

// --- Literals ---

// Null is the null reference literal.
type Null struct{}

// True and False are the boolean literals.
type True struct{}
type False struct{}

// Const is a typed compile-time constant: a numeric value, a char code or a
// string. Value holds the Go representation (int, int64, float32, float64,
// string or bool).
type Const struct {
	Type  types.Type
	Value any
}

// --- Variables ---

// Local reads a local variable by name.
type Local struct {
	Name string
}

// This reads the receiver of an instance method (slot 0).
type This struct{}

// --- Fields ---

// GetField reads an instance field of Recv.
type GetField struct {
	Owner *types.ReferenceType
	Recv  Exp
	Type  types.Type
	Name  string
}

// GetStatic reads a static field.
type GetStatic struct {
	Owner *types.ReferenceType
	Type  types.Type
	Name  string
}

// --- Arrays ---

// ALoad reads Array[Index].
type ALoad struct {
	Array Exp
	Index Exp
}

// ALength reads the length of an array.
type ALength struct {
	Array Exp
}

// NewArray allocates an array of the given array type with a computed size.
type NewArray struct {
	Type *types.ArrayType
	Size Exp
}

// NewInitArray allocates an array and stores the given elements in order.
type NewInitArray struct {
	Type  *types.ArrayType
	Elems []Exp
}

// --- Arithmetic, bitwise and shifts ---

// BinaryOp enumerates the strict two-operand operators.
type BinaryOp int

const (
	AddOp BinaryOp = iota
	SubOp
	MulOp
	DivOp
	RemOp
	AndOp // bitwise
	OrOp  // bitwise
	XorOp
	ShlOp
	ShrOp
	UshrOp
)

func (op BinaryOp) String() string {
	return [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr", "ushr"}[op]
}

// Binary applies a strict arithmetic/bitwise/shift operator. Both operands
// are evaluated, left first; the result has the promoted operand type.
type Binary struct {
	Op  BinaryOp
	Lhs Exp
	Rhs Exp
}

// Neg is arithmetic negation.
type Neg struct {
	Arg Exp
}

// --- Comparisons ---

// CompareOp enumerates the six relational operators.
type CompareOp int

const (
	EqOp CompareOp = iota
	NeOp
	LtOp
	LeOp
	GtOp
	GeOp
)

func (op CompareOp) String() string {
	return [...]string{"eq", "ne", "lt", "le", "gt", "ge"}[op]
}

// Negate returns the complementary comparison.
func (op CompareOp) Negate() CompareOp {
	return [...]CompareOp{NeOp, EqOp, GeOp, GtOp, LeOp, LtOp}[op]
}

// Compare applies a relational operator. In condition position it lowers to
// a branch; in value position it materializes a boolean.
type Compare struct {
	Op  CompareOp
	Lhs Exp
	Rhs Exp
}

// --- Short-circuit logic ---

// And evaluates Rhs only if Lhs is true.
type And struct {
	Lhs Exp
	Rhs Exp
}

// Or evaluates Rhs only if Lhs is false.
type Or struct {
	Lhs Exp
	Rhs Exp
}

// Not is logical negation of a boolean.
type Not struct {
	Arg Exp
}

// --- Casts and conversions ---

// CheckCast narrows a reference to Type, trapping at runtime on mismatch.
type CheckCast struct {
	Type types.Type
	Arg  Exp
}

// Coerce converts between primitive value domains, e.g. int->byte
// narrowing or float->double widening. From/To are declared by the producer.
type Coerce struct {
	From types.Type
	To   types.Type
	Arg  Exp
}

// InstanceOf tests whether Arg is an instance of Type, producing a boolean.
type InstanceOf struct {
	Type types.Type
	Arg  Exp
}

// --- Invocations ---

// InvokeKind selects the dispatch flavor of an Invoke expression.
type InvokeKind int

const (
	VirtualInvoke InvokeKind = iota
	InterfaceInvoke
	SpecialInvoke
	StaticInvoke
)

func (k InvokeKind) String() string {
	return [...]string{"virtual", "interface", "special", "static"}[k]
}

// Invoke calls a method. Receiver (absent for static) is evaluated before
// the arguments; arguments are evaluated left to right.
type Invoke struct {
	Kind  InvokeKind
	Owner *types.ReferenceType
	Recv  Exp // nil for StaticInvoke
	Sig   types.Signature
	Args  []Exp
}

// InvokeDynamic calls through a dynamically-resolved call site. The call
// site descriptor is resolved by the linker before emission.
type InvokeDynamic struct {
	CallSite *CallSite
	Sig      types.Signature
	Args     []Exp
}

// New constructs an instance of Owner via the given constructor.
type New struct {
	Owner *types.ReferenceType
	Sig   types.Signature // constructor signature
	Args  []Exp
}

// --- Sequencing ---

// Sblock runs a statement block for effect, then evaluates Result as the
// expression's value.
type Sblock struct {
	Stats  []Stat
	Result Exp
}

func (*Null) expNode()          {}
func (*True) expNode()          {}
func (*False) expNode()         {}
func (*Const) expNode()         {}
func (*Local) expNode()         {}
func (*This) expNode()          {}
func (*GetField) expNode()      {}
func (*GetStatic) expNode()     {}
func (*ALoad) expNode()         {}
func (*ALength) expNode()       {}
func (*NewArray) expNode()      {}
func (*NewInitArray) expNode()  {}
func (*Binary) expNode()        {}
func (*Neg) expNode()           {}
func (*Compare) expNode()       {}
func (*And) expNode()           {}
func (*Or) expNode()            {}
func (*Not) expNode()           {}
func (*CheckCast) expNode()     {}
func (*Coerce) expNode()        {}
func (*InstanceOf) expNode()    {}
func (*Invoke) expNode()        {}
func (*InvokeDynamic) expNode() {}
func (*New) expNode()           {}
func (*Sblock) expNode()        {}
