package compiler

import (
	"fmt"

	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/types"
)

// LocalSym is an entry in the symbol table: a named local bound to a slot.
type LocalSym struct {
	Name  string
	Slot  int
	Type  types.Type
	start bytecode.LabelID // debug range start, bound at declaration
}

// scope is one lexical block: the locals declared in it, in declaration
// order, and the slot watermark to restore on exit.
type scope struct {
	base   int
	locals []*LocalSym
	byName map[string]*LocalSym
}

// SymbolTable allocates local-variable slots for a single method. Wide
// types occupy two consecutive slots. Slots declared in a scope are
// released on ExitScope and reused by later disjoint scopes, minimizing
// frame size; MaxSlots tracks the high-water mark for maxLocals.
type SymbolTable struct {
	scopes   []*scope
	nextSlot int
	maxSlots int
}

func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{}
	st.EnterScope()
	return st
}

// EnterScope opens a nested lexical block.
func (st *SymbolTable) EnterScope() {
	st.scopes = append(st.scopes, &scope{
		base:   st.nextSlot,
		byName: make(map[string]*LocalSym),
	})
}

// ExitScope closes the innermost block, releasing its slots for reuse, and
// returns its locals in declaration order so the caller can close their
// debug ranges.
func (st *SymbolTable) ExitScope() []*LocalSym {
	top := st.scopes[len(st.scopes)-1]
	st.scopes = st.scopes[:len(st.scopes)-1]
	st.nextSlot = top.base
	return top.locals
}

// Declare binds name to a fresh slot in the innermost scope. It fails if
// the name is already live in any enclosing scope.
func (st *SymbolTable) Declare(name string, t types.Type) (*LocalSym, error) {
	for _, sc := range st.scopes {
		if _, ok := sc.byName[name]; ok {
			return nil, fmt.Errorf("duplicate declaration of '%s'", name)
		}
	}
	sym := &LocalSym{Name: name, Slot: st.nextSlot, Type: t, start: bytecode.NoLabel}
	st.grow(types.SlotWidth(t))
	top := st.scopes[len(st.scopes)-1]
	top.locals = append(top.locals, sym)
	top.byName[name] = sym
	return sym, nil
}

// Resolve looks name up from the innermost scope outward.
func (st *SymbolTable) Resolve(name string) (*LocalSym, error) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if sym, ok := st.scopes[i].byName[name]; ok {
			return sym, nil
		}
	}
	return nil, fmt.Errorf("unknown variable '%s'", name)
}

// AllocTemp reserves an anonymous slot (compiler-synthesized temporaries:
// saved return values, monitor locks). The returned release function gives
// the slot back; temps are stack-disciplined within a lowering.
func (st *SymbolTable) AllocTemp(t types.Type) (slot int, release func()) {
	slot = st.nextSlot
	prev := st.nextSlot
	st.grow(types.SlotWidth(t))
	return slot, func() { st.nextSlot = prev }
}

// MaxSlots returns the high-water slot count (the method's maxLocals).
func (st *SymbolTable) MaxSlots() int { return st.maxSlots }

func (st *SymbolTable) grow(width int) {
	st.nextSlot += width
	if st.nextSlot > st.maxSlots {
		st.maxSlots = st.nextSlot
	}
}
