package ast

import (
	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/types"
)

// Stat is the interface implemented by all statement variants.
type Stat interface {
	// statNode() keeps the statement vocabulary closed to this package.
	statNode()
	// SrcLine returns the producer-supplied source line, or 0 if absent.
	SrcLine() int
}

// Src carries an optional source line for error reporting and debug info.
// Statement variants embed it; the zero value means "no location".
type Src struct {
	Line int
}

func (s Src) SrcLine() int { return s.Line }

// Decl declares a local variable, optionally with an initial value.
type Decl struct {
	Src
	Type types.Type
	Name string
	Init Exp // may be nil
}

// Store assigns a value to a declared local.
type Store struct {
	Src
	Name  string
	Value Exp
}

// PutField writes an instance field.
type PutField struct {
	Src
	Owner *types.ReferenceType
	Recv  Exp
	Type  types.Type
	Name  string
	Value Exp
}

// PutStatic writes a static field.
type PutStatic struct {
	Src
	Owner *types.ReferenceType
	Type  types.Type
	Name  string
	Value Exp
}

// AStore writes Array[Index] = Value.
type AStore struct {
	Src
	Array Exp
	Index Exp
	Value Exp
}

// Do evaluates an expression for its effect and discards the result.
type Do struct {
	Src
	Exp Exp
}

// Block groups statements in a nested lexical scope. A labeled block may be
// broken out of by name.
type Block struct {
	Src
	Label string // "" if unlabeled
	Body  []Stat
}

// If runs Then when Cond is true.
type If struct {
	Src
	Cond Exp
	Then []Stat
}

// IfElse runs Then when Cond is true, Else otherwise.
type IfElse struct {
	Src
	Cond Exp
	Then []Stat
	Else []Stat
}

// While is a front-testing loop.
type While struct {
	Src
	Label string
	Cond  Exp
	Body  []Stat
}

// DoWhile is a back-testing loop: the body runs at least once.
type DoWhile struct {
	Src
	Label string
	Body  []Stat
	Cond  Exp
}

// For runs Init once, then loops while Cond holds, running Next after each
// iteration. Continue transfers to Next.
type For struct {
	Src
	Label string
	Init  []Stat
	Cond  Exp // may be nil (always true)
	Next  []Stat
	Body  []Stat
}

// SwitchOption overrides or defers the dispatch-encoding choice.
type SwitchOption int

const (
	AutoSwitch SwitchOption = iota
	ForceTable
	ForceLookup
)

func (o SwitchOption) String() string {
	return [...]string{"auto", "table", "lookup"}[o]
}

// Case is one switch arm. Arms fall through to the next unless the body
// ends in break/return/throw.
type Case struct {
	Key  int
	Body []Stat
}

// Switch dispatches on an int condition. A nil Default is synthesized as
// "do nothing" so dispatch is always total.
type Switch struct {
	Src
	Option  SwitchOption
	Label   string
	Cond    Exp
	Cases   []Case
	Default []Stat // nil means no source default
}

// Break exits the innermost (or named) enclosing loop, switch or block.
type Break struct {
	Src
	Label string
}

// Continue transfers to the continue target of the innermost (or named)
// enclosing loop.
type Continue struct {
	Src
	Label string
}

// Return exits the method. Value is nil for void methods.
type Return struct {
	Src
	Value Exp
}

// Throw raises a throwable.
type Throw struct {
	Src
	Value Exp
}

// Catch is one handler clause of a TryCatch, binding the caught value to a
// fresh local. Clause order is match order and is preserved exactly.
type Catch struct {
	Type *types.ReferenceType
	Name string
	Body []Stat
}

// TryCatch protects Body with the given handlers. A non-nil Finally runs on
// every exit path: normal fall-through, each catch's normal exit, any
// break/continue/return escaping the region, and the exceptional path via a
// synthesized catch-all that re-raises.
type TryCatch struct {
	Src
	Body    []Stat
	Catches []Catch
	Finally []Stat // nil if absent
}

// Monitor acquires Lock, runs Body, and releases the lock on every exit
// path: normal, exceptional, and any break/continue/return leaving Body.
type Monitor struct {
	Src
	Lock Exp
	Body []Stat
}

// InvokeSuperCtor chains to a superclass constructor. Legal only as one of
// the first statements of a constructor body.
type InvokeSuperCtor struct {
	Src
	Super *types.ReferenceType
	Sig   types.Signature // constructor signature
	Args  []Exp
}

// Asm inlines a raw low-level instruction span verbatim. The span's net
// stack effect is author-declared: Pops values are consumed from the
// surrounding abstract stack, then Pushes are produced, in order.
type Asm struct {
	Src
	Instrs []bytecode.Instruction
	Pops   int
	Pushes []types.Type
}

func (*Decl) statNode()            {}
func (*Store) statNode()           {}
func (*PutField) statNode()        {}
func (*PutStatic) statNode()       {}
func (*AStore) statNode()          {}
func (*Do) statNode()              {}
func (*Block) statNode()           {}
func (*If) statNode()              {}
func (*IfElse) statNode()          {}
func (*While) statNode()           {}
func (*DoWhile) statNode()         {}
func (*For) statNode()             {}
func (*Switch) statNode()          {}
func (*Break) statNode()           {}
func (*Continue) statNode()        {}
func (*Return) statNode()          {}
func (*Throw) statNode()           {}
func (*TryCatch) statNode()        {}
func (*Monitor) statNode()         {}
func (*InvokeSuperCtor) statNode() {}
func (*Asm) statNode()             {}
