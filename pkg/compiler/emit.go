package compiler

import (
	"github.com/bys1/flybytes/pkg/ast"
	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/errors"
	"github.com/bys1/flybytes/pkg/types"
)

// --- Emission Helpers ---
//
// Every helper both appends the instruction and keeps the abstract stack
// honest, so maxStack and underflow checking hold on all paths, including
// compiler-synthesized ones (monitor releases, finally copies).

func (c *Compiler) emit(ins bytecode.Instruction) {
	ins.Line = c.line
	c.code.Emit(ins)
}

func (c *Compiler) emitConst(t types.Type, v any) {
	c.emit(bytecode.Instruction{Op: bytecode.OpConst, Type: t, Value: v})
	c.stack.push(t)
}

func (c *Compiler) emitNull() {
	c.emit(bytecode.Instruction{Op: bytecode.OpAConstNull})
	c.stack.push(types.Object)
}

func (c *Compiler) emitLoad(t types.Type, slot int) {
	c.emit(bytecode.Instruction{Op: bytecode.OpLoad, Type: t, Slot: slot})
	c.stack.push(t)
}

// emitStore pops the top value into a slot, checking its category against
// the slot's declared type.
func (c *Compiler) emitStore(t types.Type, slot int) errors.FlybytesError {
	if _, err := c.popExpect(t); err != nil {
		return err
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpStore, Type: t, Slot: slot})
	return nil
}

// emitPopValue discards the top value with POP or POP2 depending on width.
func (c *Compiler) emitPopValue() errors.FlybytesError {
	t, err := c.pop()
	if err != nil {
		return err
	}
	op := bytecode.OpPop
	if types.IsWide(t) {
		op = bytecode.OpPop2
	}
	c.emit(bytecode.Instruction{Op: op})
	return nil
}

// emitDup duplicates the top slot. Only used on single-slot values.
func (c *Compiler) emitDup() errors.FlybytesError {
	t, err := c.stack.peek()
	if err != nil {
		return c.stackErrorf(0, "%v", err)
	}
	if types.IsWide(t) {
		return c.stackErrorf(0, "cannot DUP a wide value")
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpDup})
	c.stack.push(t)
	return nil
}

func (c *Compiler) emitReturnVoid() {
	c.emit(bytecode.Instruction{Op: bytecode.OpReturn, Type: types.Void})
	c.setUnreachable()
}

func (c *Compiler) emitReturnValue(t types.Type) errors.FlybytesError {
	if _, err := c.popExpect(t); err != nil {
		return err
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpReturn, Type: t})
	c.setUnreachable()
	return nil
}

func (c *Compiler) emitThrow() errors.FlybytesError {
	if _, err := c.popRef(); err != nil {
		return err
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpAThrow})
	c.setUnreachable()
	return nil
}

func (c *Compiler) emitMonitorEnter() errors.FlybytesError {
	if _, err := c.popRef(); err != nil {
		return err
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpMonitorEnter})
	return nil
}

func (c *Compiler) emitMonitorExit() errors.FlybytesError {
	if _, err := c.popRef(); err != nil {
		return err
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpMonitorExit})
	return nil
}

// --- Branches ---

// branchPops maps a branch opcode to its consumed operands.
func branchPops(op bytecode.Opcode) int {
	switch op {
	case bytecode.OpGoto:
		return 0
	case bytecode.OpIfICmpEq, bytecode.OpIfICmpNe, bytecode.OpIfICmpLt,
		bytecode.OpIfICmpGe, bytecode.OpIfICmpGt, bytecode.OpIfICmpLe,
		bytecode.OpIfACmpEq, bytecode.OpIfACmpNe:
		return 2
	default:
		return 1
	}
}

// emitBranch emits a conditional or unconditional jump, popping its
// operands and recording the target's expected stack.
func (c *Compiler) emitBranch(op bytecode.Opcode, target bytecode.LabelID) errors.FlybytesError {
	for i := 0; i < branchPops(op); i++ {
		if _, err := c.pop(); err != nil {
			return err
		}
	}
	if err := c.recordLabelState(target); err != nil {
		return err
	}
	c.emit(bytecode.Instruction{Op: op, Label: target})
	if op == bytecode.OpGoto {
		c.setUnreachable()
	}
	return nil
}

func (c *Compiler) emitGoto(target bytecode.LabelID) errors.FlybytesError {
	return c.emitBranch(bytecode.OpGoto, target)
}

// --- Arithmetic ---

var binaryOpcodes = map[ast.BinaryOp]bytecode.Opcode{
	ast.AddOp:  bytecode.OpAdd,
	ast.SubOp:  bytecode.OpSub,
	ast.MulOp:  bytecode.OpMul,
	ast.DivOp:  bytecode.OpDiv,
	ast.RemOp:  bytecode.OpRem,
	ast.AndOp:  bytecode.OpAnd,
	ast.OrOp:   bytecode.OpOr,
	ast.XorOp:  bytecode.OpXor,
	ast.ShlOp:  bytecode.OpShl,
	ast.ShrOp:  bytecode.OpShr,
	ast.UshrOp: bytecode.OpUshr,
}

func (c *Compiler) emitBinary(op ast.BinaryOp, t types.Type) {
	c.emit(bytecode.Instruction{Op: binaryOpcodes[op], Type: t})
	c.stack.push(t)
}

// --- Invocations and symbols ---

func fieldRef(owner *types.ReferenceType, name string, t types.Type) *bytecode.SymbolRef {
	return &bytecode.SymbolRef{Owner: owner.Name, Name: name, Desc: t.Descriptor()}
}

func methodRef(owner *types.ReferenceType, sig types.Signature) *bytecode.SymbolRef {
	return &bytecode.SymbolRef{Owner: owner.Name, Name: sig.Name, Desc: sig.Descriptor()}
}

// emitInvoke pops the arguments (and receiver, if any) and pushes the
// return value unless the method is void.
func (c *Compiler) emitInvoke(op bytecode.Opcode, sym *bytecode.SymbolRef, sig types.Signature, hasRecv bool) errors.FlybytesError {
	for i := len(sig.Params) - 1; i >= 0; i-- {
		if _, err := c.popExpect(sig.Params[i]); err != nil {
			return err
		}
	}
	if hasRecv {
		if _, err := c.popRef(); err != nil {
			return err
		}
	}
	c.emit(bytecode.Instruction{Op: op, Sym: sym})
	if sig.Return != types.Void {
		c.stack.push(sig.Return)
	}
	return nil
}

// --- Stack discipline ---

func (c *Compiler) setUnreachable() {
	c.reachable = false
	c.stack.restore(nil)
}

func (c *Compiler) pop() (types.Type, errors.FlybytesError) {
	t, err := c.stack.pop()
	if err != nil {
		return nil, c.stackErrorf(0, "%v", err)
	}
	return t, nil
}

// popExpect pops the top value and checks it against the required operand
// category. This is the primary defense against malformed input.
func (c *Compiler) popExpect(want types.Type) (types.Type, errors.FlybytesError) {
	t, err := c.pop()
	if err != nil {
		return nil, err
	}
	if !sameCategory(t, want) {
		return nil, c.stackErrorf(0, "operand type mismatch: have %s, want %s", t, want)
	}
	return t, nil
}

// popRef pops the top value, requiring reference category.
func (c *Compiler) popRef() (types.Type, errors.FlybytesError) {
	t, err := c.pop()
	if err != nil {
		return nil, err
	}
	if !types.IsReference(t) {
		return nil, c.stackErrorf(0, "operand type mismatch: have %s, want a reference", t)
	}
	return t, nil
}

// popNumeric pops the top value, requiring a numeric primitive.
func (c *Compiler) popNumeric() (types.Type, errors.FlybytesError) {
	t, err := c.pop()
	if err != nil {
		return nil, err
	}
	if !types.IsNumeric(t) {
		return nil, c.stackErrorf(0, "operand type mismatch: have %s, want a numeric type", t)
	}
	return t, nil
}
