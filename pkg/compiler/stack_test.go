package compiler

import (
	"testing"

	"github.com/bys1/flybytes/pkg/types"
)

func TestStackDepthAndMax(t *testing.T) {
	s := newOperandStack()
	s.push(types.Int)
	s.push(types.Long)
	if s.slots() != 3 {
		t.Errorf("slots = %d, want 3", s.slots())
	}
	if s.size() != 2 {
		t.Errorf("size = %d, want 2", s.size())
	}
	s.pop()
	s.pop()
	if s.slots() != 0 {
		t.Errorf("slots after draining = %d, want 0", s.slots())
	}
	if s.max != 3 {
		t.Errorf("max = %d, want 3", s.max)
	}
}

func TestStackSmallIntegralsCollapse(t *testing.T) {
	s := newOperandStack()
	s.push(types.Boolean)
	top, err := s.pop()
	if err != nil {
		t.Fatal(err)
	}
	if !top.Equals(types.Int) {
		t.Errorf("boolean on stack = %s, want int", top)
	}
}

func TestStackUnderflow(t *testing.T) {
	s := newOperandStack()
	if _, err := s.pop(); err == nil {
		t.Fatal("pop of empty stack succeeded")
	}
	if _, err := s.peek(); err == nil {
		t.Fatal("peek of empty stack succeeded")
	}
}

func TestSnapshotRestoreKeepsMax(t *testing.T) {
	s := newOperandStack()
	s.push(types.Double)
	snap := s.snapshot()
	s.push(types.Int)
	s.restore(nil)
	if s.slots() != 0 {
		t.Errorf("slots after restore(nil) = %d, want 0", s.slots())
	}
	if s.max != 3 {
		t.Errorf("max after restore = %d, want 3", s.max)
	}
	s.restore(snap)
	if s.slots() != 2 {
		t.Errorf("slots after restore(snap) = %d, want 2", s.slots())
	}
}

func TestSameCategory(t *testing.T) {
	if !sameCategory(types.Boolean, types.Int) {
		t.Error("boolean should serve where int is wanted")
	}
	if !sameCategory(types.String, types.Object) {
		t.Error("references should be interchangeable")
	}
	if sameCategory(types.Int, types.Long) {
		t.Error("int must not serve as long")
	}
	if sameCategory(types.Object, types.Int) {
		t.Error("reference must not serve as int")
	}
}
