package ast

import (
	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/types"
)

// Modifier is the access/behavior flag set of classes, fields and methods.
type Modifier uint16

const (
	Public Modifier = 1 << iota
	Private
	Protected
	Static
	Final
	Abstract
	Synchronized
)

func (m Modifier) Has(f Modifier) bool { return m&f != 0 }

// ClassKind distinguishes class and interface declarations.
type ClassKind int

const (
	ClassDecl ClassKind = iota
	InterfaceDecl
)

// Class is a whole compilation unit: one class or interface with its fields
// and methods. Interfaces carry no constructors and no instance fields with
// non-constant initializers.
type Class struct {
	Kind       ClassKind
	Type       *types.ReferenceType
	Modifiers  Modifier
	Super      *types.ReferenceType   // nil means java/lang/Object; class kind only
	Interfaces []*types.ReferenceType // class kind only
	Fields     []Field
	Methods    []Method
}

// Field is a class member variable. If the field is static+final the
// initializer must be a compile-time constant; otherwise it is evaluated as
// a static or instance initializer.
type Field struct {
	Type      types.Type
	Name      string
	Modifiers Modifier
	Init      Exp // may be nil
}

// Formal is a name-annotated method parameter, enabling debug-slot metadata.
type Formal struct {
	Type types.Type
	Name string
}

// RawBody is the escape hatch: a pre-lowered instruction list with
// author-declared frame metadata, passed through unchanged.
type RawBody struct {
	Instrs    []bytecode.Instruction
	MaxStack  int
	MaxLocals int
}

// Method is a class member function. Exactly one of Body/Raw is set for a
// concrete method; both nil means abstract.
type Method struct {
	Sig       types.Signature
	Modifiers Modifier
	Params    []Formal
	Body      []Stat
	Raw       *RawBody
}

// IsAbstract reports whether m has no implementation.
func (m Method) IsAbstract() bool { return m.Body == nil && m.Raw == nil }

// IsStatic reports whether m dispatches without a receiver (no slot-0 this).
func (m Method) IsStatic() bool { return m.Modifiers.Has(Static) }

// --- Dynamic call-site metadata (input side) ---

// CallSite declares the linkage of an InvokeDynamic expression: the
// bootstrap host and name, the invoked name, and the ordered constant extra
// arguments. The full bootstrap signature is inferred from these by the
// linker.
type CallSite struct {
	BootstrapOwner *types.ReferenceType
	BootstrapName  string
	Name           string
	Extra          []ConstArg
}

// ConstArg is one constant extra argument of a dynamic call site.
type ConstArg interface {
	// ArgType returns the bootstrap parameter type this argument implies.
	ArgType() types.Type
	constArg()
}

// StringArg passes a string constant.
type StringArg struct{ Value string }

// ClassArg passes a class constant.
type ClassArg struct{ Value types.Type }

// IntArg, LongArg, FloatArg and DoubleArg pass numeric constants.
type IntArg struct{ Value int }
type LongArg struct{ Value int64 }
type FloatArg struct{ Value float32 }
type DoubleArg struct{ Value float64 }

// MethodTypeArg passes a method-type constant.
type MethodTypeArg struct{ Sig types.Signature }

// HandleArg passes a pre-resolved method-handle reference.
type HandleArg struct {
	Kind  HandleKind
	Owner *types.ReferenceType
	Sig   types.Signature
}

// HandleKind is the resolution flavor of a method handle.
type HandleKind int

const (
	HandleInvokeVirtual HandleKind = iota
	HandleInvokeStatic
	HandleInvokeSpecial
	HandleInvokeInterface
	HandleNewInvokeSpecial
	HandleGetField
	HandlePutField
	HandleGetStatic
	HandlePutStatic
)

func (a StringArg) ArgType() types.Type { return types.String }
func (a ClassArg) ArgType() types.Type  { return types.Reference("java/lang/Class") }
func (a IntArg) ArgType() types.Type    { return types.Int }
func (a LongArg) ArgType() types.Type   { return types.Long }
func (a FloatArg) ArgType() types.Type  { return types.Float }
func (a DoubleArg) ArgType() types.Type { return types.Double }
func (a MethodTypeArg) ArgType() types.Type {
	return types.Reference("java/lang/invoke/MethodType")
}
func (a HandleArg) ArgType() types.Type {
	return types.Reference("java/lang/invoke/MethodHandle")
}

func (StringArg) constArg()     {}
func (ClassArg) constArg()      {}
func (IntArg) constArg()        {}
func (LongArg) constArg()       {}
func (FloatArg) constArg()      {}
func (DoubleArg) constArg()     {}
func (MethodTypeArg) constArg() {}
func (HandleArg) constArg()     {}
