package compiler

import (
	"github.com/bys1/flybytes/pkg/ast"
	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/errors"
	"github.com/bys1/flybytes/pkg/linker"
	"github.com/bys1/flybytes/pkg/types"
)

// --- Expression Lowering ---
//
// compileExp lowers an expression in value position and returns the
// declared type it leaves on the stack (types.Void for a void invocation).
// Comparisons and short-circuit logic know their calling context: in
// condition position compileBranch lowers them to branches without
// materializing a boolean.

func (c *Compiler) compileExp(e ast.Exp) (types.Type, errors.FlybytesError) {
	switch e := e.(type) {
	case *ast.Null:
		c.emitNull()
		return types.Object, nil

	case *ast.True:
		c.emitConst(types.Boolean, true)
		return types.Boolean, nil

	case *ast.False:
		c.emitConst(types.Boolean, false)
		return types.Boolean, nil

	case *ast.Const:
		c.emitConst(e.Type, e.Value)
		return e.Type, nil

	case *ast.Local:
		sym, err := c.symbols.Resolve(e.Name)
		if err != nil {
			return nil, c.scopeErrorf(0, "%v", err)
		}
		c.emitLoad(sym.Type, sym.Slot)
		return sym.Type, nil

	case *ast.This:
		sym, err := c.symbols.Resolve("this")
		if err != nil {
			return nil, c.scopeErrorf(0, "'this' used in a static context")
		}
		c.emitLoad(sym.Type, sym.Slot)
		return sym.Type, nil

	case *ast.GetField:
		if _, err := c.compileExp(e.Recv); err != nil {
			return nil, err
		}
		if _, err := c.popRef(); err != nil {
			return nil, err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpGetField, Sym: fieldRef(e.Owner, e.Name, e.Type)})
		c.stack.push(e.Type)
		return e.Type, nil

	case *ast.GetStatic:
		c.emit(bytecode.Instruction{Op: bytecode.OpGetStatic, Sym: fieldRef(e.Owner, e.Name, e.Type)})
		c.stack.push(e.Type)
		return e.Type, nil

	case *ast.ALoad:
		at, err := c.compileExp(e.Array)
		if err != nil {
			return nil, err
		}
		arr, ok := at.(*types.ArrayType)
		if !ok {
			return nil, c.stackErrorf(0, "array load from non-array type %s", at)
		}
		if _, err := c.compileExp(e.Index); err != nil {
			return nil, err
		}
		if _, err := c.popExpect(types.Int); err != nil {
			return nil, err
		}
		if _, err := c.popRef(); err != nil {
			return nil, err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpALoadElem, Type: arr.Elem})
		c.stack.push(arr.Elem)
		return arr.Elem, nil

	case *ast.ALength:
		at, err := c.compileExp(e.Array)
		if err != nil {
			return nil, err
		}
		if _, ok := at.(*types.ArrayType); !ok {
			return nil, c.stackErrorf(0, "array length of non-array type %s", at)
		}
		if _, err := c.popRef(); err != nil {
			return nil, err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpArrayLength})
		c.stack.push(types.Int)
		return types.Int, nil

	case *ast.NewArray:
		if _, err := c.compileExp(e.Size); err != nil {
			return nil, err
		}
		if _, err := c.popExpect(types.Int); err != nil {
			return nil, err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpNewArray, Type: e.Type})
		c.stack.push(e.Type)
		return e.Type, nil

	case *ast.NewInitArray:
		c.emitConst(types.Int, len(e.Elems))
		if _, err := c.popExpect(types.Int); err != nil {
			return nil, err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpNewArray, Type: e.Type})
		c.stack.push(e.Type)
		for i, elem := range e.Elems {
			if err := c.emitDup(); err != nil {
				return nil, err
			}
			c.emitConst(types.Int, i)
			if _, err := c.compileExp(elem); err != nil {
				return nil, err
			}
			if err := c.emitAStoreElem(e.Type.Elem); err != nil {
				return nil, err
			}
		}
		return e.Type, nil

	case *ast.Binary:
		return c.compileBinary(e)

	case *ast.Neg:
		if _, err := c.compileExp(e.Arg); err != nil {
			return nil, err
		}
		nt, err := c.popNumeric()
		if err != nil {
			return nil, err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpNeg, Type: nt})
		c.stack.push(nt)
		return nt, nil

	case *ast.Compare, *ast.And, *ast.Or, *ast.Not:
		// Value position: materialize the boolean through branches.
		if err := c.compileBoolValue(e); err != nil {
			return nil, err
		}
		return types.Boolean, nil

	case *ast.CheckCast:
		if _, err := c.compileExp(e.Arg); err != nil {
			return nil, err
		}
		if _, err := c.popRef(); err != nil {
			return nil, err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpCheckCast, Type: e.Type})
		c.stack.push(e.Type)
		return e.Type, nil

	case *ast.Coerce:
		if _, err := c.compileExp(e.Arg); err != nil {
			return nil, err
		}
		return c.emitCoerce(e.From, e.To)

	case *ast.InstanceOf:
		if _, err := c.compileExp(e.Arg); err != nil {
			return nil, err
		}
		if _, err := c.popRef(); err != nil {
			return nil, err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpInstanceOf, Type: e.Type})
		c.stack.push(types.Boolean)
		return types.Boolean, nil

	case *ast.Invoke:
		return c.compileInvoke(e)

	case *ast.InvokeDynamic:
		return c.compileInvokeDynamic(e)

	case *ast.New:
		c.emit(bytecode.Instruction{Op: bytecode.OpNew, Sym: &bytecode.SymbolRef{Owner: e.Owner.Name}})
		c.stack.push(e.Owner)
		if err := c.emitDup(); err != nil {
			return nil, err
		}
		for _, a := range e.Args {
			if _, err := c.compileExp(a); err != nil {
				return nil, err
			}
		}
		if err := c.emitInvoke(bytecode.OpInvokeSpecial, methodRef(e.Owner, e.Sig), e.Sig, true); err != nil {
			return nil, err
		}
		return e.Owner, nil

	case *ast.Sblock:
		c.symbols.EnterScope()
		for _, s := range e.Stats {
			if err := c.compileStat(s); err != nil {
				c.closeScope(c.symbols.ExitScope())
				return nil, err
			}
		}
		var t types.Type = types.Void
		if e.Result != nil {
			var err errors.FlybytesError
			if t, err = c.compileExp(e.Result); err != nil {
				c.closeScope(c.symbols.ExitScope())
				return nil, err
			}
		}
		c.closeScope(c.symbols.ExitScope())
		return t, nil

	default:
		// The Exp vocabulary is closed; a new variant must get a case here.
		panic("compiler: unhandled expression variant")
	}
}

// compileBinary lowers a strict two-operand operator. Both operands are
// evaluated left to right; the operand categories must match and the
// result carries the promoted type.
func (c *Compiler) compileBinary(e *ast.Binary) (types.Type, errors.FlybytesError) {
	lt, err := c.compileExp(e.Lhs)
	if err != nil {
		return nil, err
	}
	rt, err := c.compileExp(e.Rhs)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case ast.ShlOp, ast.ShrOp, ast.UshrOp:
		// Shift distance is always int; the result keeps the lhs type.
		if _, err := c.popExpect(types.Int); err != nil {
			return nil, err
		}
		st := types.StackType(lt)
		if st != types.Int && st != types.Long {
			return nil, c.stackErrorf(0, "shift of non-integral type %s", lt)
		}
		if _, err := c.popExpect(st); err != nil {
			return nil, err
		}
		c.emitBinary(e.Op, st)
		return st, nil

	case ast.AndOp, ast.OrOp, ast.XorOp:
		st := types.StackType(lt)
		if st != types.Int && st != types.Long {
			return nil, c.stackErrorf(0, "bitwise %s of non-integral type %s", e.Op, lt)
		}
		if !types.StackType(rt).Equals(st) {
			return nil, c.stackErrorf(0, "operand category mismatch: %s %s %s", lt, e.Op, rt)
		}
		if _, err := c.popExpect(st); err != nil {
			return nil, err
		}
		if _, err := c.popExpect(st); err != nil {
			return nil, err
		}
		c.emitBinary(e.Op, st)
		return st, nil

	default:
		promoted, ok := types.Promote(lt, rt)
		if !ok || !types.StackType(lt).Equals(types.StackType(rt)) {
			return nil, c.stackErrorf(0, "operand category mismatch: %s %s %s", lt, e.Op, rt)
		}
		if _, err := c.popExpect(promoted); err != nil {
			return nil, err
		}
		if _, err := c.popExpect(promoted); err != nil {
			return nil, err
		}
		c.emitBinary(e.Op, promoted)
		return promoted, nil
	}
}

func (c *Compiler) compileInvoke(e *ast.Invoke) (types.Type, errors.FlybytesError) {
	var op bytecode.Opcode
	switch e.Kind {
	case ast.VirtualInvoke:
		op = bytecode.OpInvokeVirtual
	case ast.InterfaceInvoke:
		op = bytecode.OpInvokeInterface
	case ast.SpecialInvoke:
		op = bytecode.OpInvokeSpecial
	case ast.StaticInvoke:
		op = bytecode.OpInvokeStatic
	}
	hasRecv := e.Kind != ast.StaticInvoke
	if hasRecv {
		if e.Recv == nil {
			return nil, c.scopeErrorf(0, "%s invocation of %s without a receiver", e.Kind, e.Sig.Name)
		}
		if _, err := c.compileExp(e.Recv); err != nil {
			return nil, err
		}
	}
	for _, a := range e.Args {
		if _, err := c.compileExp(a); err != nil {
			return nil, err
		}
	}
	if err := c.emitInvoke(op, methodRef(e.Owner, e.Sig), e.Sig, hasRecv); err != nil {
		return nil, err
	}
	return e.Sig.Return, nil
}

func (c *Compiler) compileInvokeDynamic(e *ast.InvokeDynamic) (types.Type, errors.FlybytesError) {
	ref, lerr := linker.Resolve(e.CallSite, e.Sig)
	if lerr != nil {
		return nil, lerr
	}
	for _, a := range e.Args {
		if _, err := c.compileExp(a); err != nil {
			return nil, err
		}
	}
	for i := len(e.Sig.Params) - 1; i >= 0; i-- {
		if _, err := c.popExpect(e.Sig.Params[i]); err != nil {
			return nil, err
		}
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpInvokeDynamic, CallSite: ref})
	if e.Sig.Return != types.Void {
		c.stack.push(e.Sig.Return)
	}
	return e.Sig.Return, nil
}

// emitAStoreElem pops value, index and array for a typed element store.
func (c *Compiler) emitAStoreElem(elem types.Type) errors.FlybytesError {
	if _, err := c.popExpect(elem); err != nil {
		return err
	}
	if _, err := c.popExpect(types.Int); err != nil {
		return err
	}
	if _, err := c.popRef(); err != nil {
		return err
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpAStoreElem, Type: elem})
	return nil
}

// --- Coercions ---

type convKey struct{ from, to types.Type }

var convertOpcodes = map[convKey]bytecode.Opcode{
	{types.Int, types.Long}:     bytecode.OpI2L,
	{types.Int, types.Float}:    bytecode.OpI2F,
	{types.Int, types.Double}:   bytecode.OpI2D,
	{types.Long, types.Int}:     bytecode.OpL2I,
	{types.Long, types.Float}:   bytecode.OpL2F,
	{types.Long, types.Double}:  bytecode.OpL2D,
	{types.Float, types.Int}:    bytecode.OpF2I,
	{types.Float, types.Long}:   bytecode.OpF2L,
	{types.Float, types.Double}: bytecode.OpF2D,
	{types.Double, types.Int}:   bytecode.OpD2I,
	{types.Double, types.Long}:  bytecode.OpD2L,
	{types.Double, types.Float}: bytecode.OpD2F,
}

// emitCoerce converts the stack top from one primitive domain to another:
// a cross-category conversion first, then an explicit narrowing for the
// small integral targets.
func (c *Compiler) emitCoerce(from, to types.Type) (types.Type, errors.FlybytesError) {
	if types.IsReference(from) || types.IsReference(to) || from == types.Void || to == types.Void {
		return nil, c.stackErrorf(0, "cannot coerce %s to %s", from, to)
	}
	if _, err := c.popExpect(from); err != nil {
		return nil, err
	}
	src := types.StackType(from)
	dst := types.StackType(to)
	if !src.Equals(dst) {
		op, ok := convertOpcodes[convKey{src, dst}]
		if !ok {
			return nil, c.stackErrorf(0, "cannot coerce %s to %s", from, to)
		}
		c.emit(bytecode.Instruction{Op: op})
	}
	if !from.Equals(to) {
		switch to {
		case types.Byte:
			c.emit(bytecode.Instruction{Op: bytecode.OpI2B})
		case types.Char:
			c.emit(bytecode.Instruction{Op: bytecode.OpI2C})
		case types.Short:
			c.emit(bytecode.Instruction{Op: bytecode.OpI2S})
		}
	}
	c.stack.push(to)
	return to, nil
}

// --- Condition Position ---

var intCmpOpcodes = map[ast.CompareOp]bytecode.Opcode{
	ast.EqOp: bytecode.OpIfICmpEq,
	ast.NeOp: bytecode.OpIfICmpNe,
	ast.LtOp: bytecode.OpIfICmpLt,
	ast.LeOp: bytecode.OpIfICmpLe,
	ast.GtOp: bytecode.OpIfICmpGt,
	ast.GeOp: bytecode.OpIfICmpGe,
}

var zeroCmpOpcodes = map[ast.CompareOp]bytecode.Opcode{
	ast.EqOp: bytecode.OpIfEq,
	ast.NeOp: bytecode.OpIfNe,
	ast.LtOp: bytecode.OpIfLt,
	ast.LeOp: bytecode.OpIfLe,
	ast.GtOp: bytecode.OpIfGt,
	ast.GeOp: bytecode.OpIfGe,
}

// compileBranch lowers e in condition position: control transfers to
// target when e evaluates to whenTrue, and falls through otherwise. No
// boolean is materialized; short-circuit operands are evaluated lazily.
func (c *Compiler) compileBranch(e ast.Exp, target bytecode.LabelID, whenTrue bool) errors.FlybytesError {
	switch e := e.(type) {
	case *ast.True:
		if whenTrue {
			return c.emitGoto(target)
		}
		return nil

	case *ast.False:
		if !whenTrue {
			return c.emitGoto(target)
		}
		return nil

	case *ast.Not:
		return c.compileBranch(e.Arg, target, !whenTrue)

	case *ast.And:
		if !whenTrue {
			// Either operand false decides the conjunction.
			if err := c.compileBranch(e.Lhs, target, false); err != nil {
				return err
			}
			return c.compileBranch(e.Rhs, target, false)
		}
		fall := c.code.NewLabel()
		if err := c.compileBranch(e.Lhs, fall, false); err != nil {
			return err
		}
		if err := c.compileBranch(e.Rhs, target, true); err != nil {
			return err
		}
		return c.bindLabel(fall)

	case *ast.Or:
		if whenTrue {
			if err := c.compileBranch(e.Lhs, target, true); err != nil {
				return err
			}
			return c.compileBranch(e.Rhs, target, true)
		}
		fall := c.code.NewLabel()
		if err := c.compileBranch(e.Lhs, fall, true); err != nil {
			return err
		}
		if err := c.compileBranch(e.Rhs, target, false); err != nil {
			return err
		}
		return c.bindLabel(fall)

	case *ast.Compare:
		return c.compileCompareBranch(e, target, whenTrue)

	default:
		// A boolean-valued expression: test it against zero.
		t, err := c.compileExp(e)
		if err != nil {
			return err
		}
		if !types.StackType(t).Equals(types.Int) {
			return c.stackErrorf(0, "condition of type %s is not boolean", t)
		}
		op := bytecode.OpIfNe
		if !whenTrue {
			op = bytecode.OpIfEq
		}
		return c.emitBranch(op, target)
	}
}

func (c *Compiler) compileCompareBranch(e *ast.Compare, target bytecode.LabelID, whenTrue bool) errors.FlybytesError {
	op := e.Op
	if !whenTrue {
		op = op.Negate()
	}

	// Null comparisons get the dedicated null branches.
	if _, ok := e.Rhs.(*ast.Null); ok && (op == ast.EqOp || op == ast.NeOp) {
		return c.compileNullBranch(e.Lhs, op, target)
	}
	if _, ok := e.Lhs.(*ast.Null); ok && (op == ast.EqOp || op == ast.NeOp) {
		return c.compileNullBranch(e.Rhs, op, target)
	}

	lt, err := c.compileExp(e.Lhs)
	if err != nil {
		return err
	}
	rt, err := c.compileExp(e.Rhs)
	if err != nil {
		return err
	}

	if types.IsReference(lt) || types.IsReference(rt) {
		if !types.IsReference(lt) || !types.IsReference(rt) {
			return c.stackErrorf(0, "comparison category mismatch: %s %s %s", lt, e.Op, rt)
		}
		switch op {
		case ast.EqOp:
			return c.emitBranch(bytecode.OpIfACmpEq, target)
		case ast.NeOp:
			return c.emitBranch(bytecode.OpIfACmpNe, target)
		default:
			return c.stackErrorf(0, "ordered comparison of references")
		}
	}

	st := types.StackType(lt)
	if !types.StackType(rt).Equals(st) || !types.IsNumeric(st) {
		return c.stackErrorf(0, "comparison category mismatch: %s %s %s", lt, e.Op, rt)
	}
	if st.Equals(types.Int) {
		return c.emitBranch(intCmpOpcodes[op], target)
	}
	// Wide and floating operands compare through CMP, then branch on the
	// signum it leaves behind.
	if err := c.emitCmp(st, e.Op); err != nil {
		return err
	}
	return c.emitBranch(zeroCmpOpcodes[op], target)
}

func (c *Compiler) compileNullBranch(e ast.Exp, op ast.CompareOp, target bytecode.LabelID) errors.FlybytesError {
	t, err := c.compileExp(e)
	if err != nil {
		return err
	}
	if !types.IsReference(t) {
		return c.stackErrorf(0, "null comparison with non-reference type %s", t)
	}
	bop := bytecode.OpIfNull
	if op == ast.NeOp {
		bop = bytecode.OpIfNonNull
	}
	return c.emitBranch(bop, target)
}

// emitCmp pops two wide/floating operands and pushes their signum as int.
// For float and double the NaN bias follows the source comparison: lt/le
// pair with the NaN-high variant and gt/ge with the NaN-low one, so an
// unordered operand drops out of the relation under either branch polarity
// (the fcmpg/iflt, fcmpl/ifgt pairing).
func (c *Compiler) emitCmp(t types.Type, op ast.CompareOp) errors.FlybytesError {
	if _, err := c.popExpect(t); err != nil {
		return err
	}
	if _, err := c.popExpect(t); err != nil {
		return err
	}
	cmpOp := bytecode.OpCmp
	if !t.Equals(types.Long) && (op == ast.LtOp || op == ast.LeOp) {
		cmpOp = bytecode.OpCmpG
	}
	c.emit(bytecode.Instruction{Op: cmpOp, Type: t})
	c.stack.push(types.Int)
	return nil
}

// compileBoolValue materializes a condition as 1/0 when it is used in
// value position.
func (c *Compiler) compileBoolValue(e ast.Exp) errors.FlybytesError {
	falseL := c.code.NewLabel()
	endL := c.code.NewLabel()
	if err := c.compileBranch(e, falseL, false); err != nil {
		return err
	}
	c.emitConst(types.Boolean, true)
	if err := c.emitGoto(endL); err != nil {
		return err
	}
	if err := c.bindLabel(falseL); err != nil {
		return err
	}
	c.emitConst(types.Boolean, false)
	return c.bindLabel(endL)
}
