package compiler

import (
	"fmt"

	"github.com/bys1/flybytes/pkg/types"
)

// operandStack is the abstract operand stack tracked during lowering. It
// records the stack representation type of every value (small integrals
// live as int), counts depth in slots, and keeps the high-water mark that
// becomes maxStack.
type operandStack struct {
	vals  []types.Type
	depth int
	max   int
}

func newOperandStack() *operandStack {
	return &operandStack{vals: make([]types.Type, 0, 8)}
}

// push records a value of declared type t (converted to its stack
// representation).
func (s *operandStack) push(t types.Type) {
	st := types.StackType(t)
	s.vals = append(s.vals, st)
	s.depth += types.SlotWidth(st)
	if s.depth > s.max {
		s.max = s.depth
	}
}

// pop removes and returns the top value.
func (s *operandStack) pop() (types.Type, error) {
	if len(s.vals) == 0 {
		return nil, fmt.Errorf("operand stack underflow")
	}
	t := s.vals[len(s.vals)-1]
	s.vals = s.vals[:len(s.vals)-1]
	s.depth -= types.SlotWidth(t)
	return t, nil
}

// peek returns the top value without removing it.
func (s *operandStack) peek() (types.Type, error) {
	if len(s.vals) == 0 {
		return nil, fmt.Errorf("operand stack underflow")
	}
	return s.vals[len(s.vals)-1], nil
}

// size returns the value count (not slot depth).
func (s *operandStack) size() int { return len(s.vals) }

// slots returns the current depth in slots.
func (s *operandStack) slots() int { return s.depth }

// snapshot copies the current stack contents, for branch-target recording.
func (s *operandStack) snapshot() []types.Type {
	snap := make([]types.Type, len(s.vals))
	copy(snap, s.vals)
	return snap
}

// restore replaces the stack contents with a snapshot. The high-water mark
// is kept.
func (s *operandStack) restore(snap []types.Type) {
	s.vals = s.vals[:0]
	s.depth = 0
	for _, t := range snap {
		s.vals = append(s.vals, t)
		s.depth += types.SlotWidth(t)
	}
	if s.depth > s.max {
		s.max = s.depth
	}
}

func slotDepth(snap []types.Type) int {
	d := 0
	for _, t := range snap {
		d += types.SlotWidth(t)
	}
	return d
}

// sameCategory reports whether a value of stack type have may serve where
// a value of type want is required: equal stack representations, or any
// reference where a reference is wanted.
func sameCategory(have, want types.Type) bool {
	hw := types.StackType(have)
	ww := types.StackType(want)
	if types.IsReference(ww) {
		return types.IsReference(hw)
	}
	return hw.Equals(ww)
}
