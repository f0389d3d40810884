package mirror

import (
	"fmt"
	"math"

	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/driver"
	"github.com/bys1/flybytes/pkg/types"
)

// run executes one method frame. It returns the method result, or the
// throwable that escaped it, or a mirror-level error (unsupported opcode,
// unresolved symbol). Frame discipline is trusted: the compiler already
// verified stack balance, so a malformed bundle surfaces as a recovered
// panic rather than per-instruction checks.
func (u *Universe) run(cm *driver.CompiledMethod, recv any, args []any) (result any, exc any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mirror: %s: %v", cm.Method.Sig.Name, r)
		}
	}()

	code := cm.Code
	locals := make([]any, code.MaxLocals+2)
	slot := 0
	if !cm.Method.IsStatic() {
		locals[0] = recv
		slot = 1
	}
	for i, p := range cm.Method.Sig.Params {
		locals[slot] = args[i]
		slot += types.SlotWidth(p)
	}

	var stack []any
	push := func(v any) { stack = append(stack, v) }
	pop := func() any {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	popI := func() int32 { return pop().(int32) }

	// raise transfers to the innermost matching handler covering pc, or
	// reports the throwable to the caller.
	for pc := 0; pc < len(code.Instrs); pc++ {
		ins := code.Instrs[pc]
		var thrown any

		switch ins.Op {
		case bytecode.OpNop:

		case bytecode.OpConst:
			v, nerr := normalize(ins.Type, ins.Value)
			if nerr != nil {
				return nil, nil, nerr
			}
			push(v)

		case bytecode.OpAConstNull:
			push(nil)

		case bytecode.OpLoad:
			push(locals[ins.Slot])

		case bytecode.OpStore:
			locals[ins.Slot] = pop()

		case bytecode.OpIinc:
			d, nerr := toInt32(ins.Value)
			if nerr != nil {
				return nil, nil, nerr
			}
			locals[ins.Slot] = locals[ins.Slot].(int32) + d

		// Wide values are single entries here, so POP2 (emitted only for
		// wide operands) and POP both discard one entry.
		case bytecode.OpPop, bytecode.OpPop2:
			pop()

		case bytecode.OpDup:
			push(stack[len(stack)-1])

		case bytecode.OpDupX1:
			a, b := pop(), pop()
			push(a)
			push(b)
			push(a)

		case bytecode.OpDupX2:
			a, b, c := pop(), pop(), pop()
			push(a)
			push(c)
			push(b)
			push(a)

		case bytecode.OpSwap:
			a, b := pop(), pop()
			push(a)
			push(b)

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
			bytecode.OpRem, bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor:
			b, a := pop(), pop()
			v, throwClass := arith(ins.Op, ins.Type, a, b)
			if throwClass != "" {
				thrown = newObject(throwClass)
				break
			}
			push(v)

		case bytecode.OpShl, bytecode.OpShr, bytecode.OpUshr:
			n := popI()
			push(shift(ins.Op, pop(), n))

		case bytecode.OpNeg:
			switch v := pop().(type) {
			case int32:
				push(-v)
			case int64:
				push(-v)
			case float32:
				push(-v)
			case float64:
				push(-v)
			}

		case bytecode.OpCmp:
			b, a := pop(), pop()
			push(compare(a, b, -1))

		case bytecode.OpCmpG:
			b, a := pop(), pop()
			push(compare(a, b, 1))

		case bytecode.OpI2L:
			push(int64(popI()))
		case bytecode.OpI2F:
			push(float32(popI()))
		case bytecode.OpI2D:
			push(float64(popI()))
		case bytecode.OpL2I:
			push(int32(pop().(int64)))
		case bytecode.OpL2F:
			push(float32(pop().(int64)))
		case bytecode.OpL2D:
			push(float64(pop().(int64)))
		case bytecode.OpF2I:
			push(int32(pop().(float32)))
		case bytecode.OpF2L:
			push(int64(pop().(float32)))
		case bytecode.OpF2D:
			push(float64(pop().(float32)))
		case bytecode.OpD2I:
			push(int32(pop().(float64)))
		case bytecode.OpD2L:
			push(int64(pop().(float64)))
		case bytecode.OpD2F:
			push(float32(pop().(float64)))
		case bytecode.OpI2B:
			push(int32(int8(popI())))
		case bytecode.OpI2C:
			push(int32(uint16(popI())))
		case bytecode.OpI2S:
			push(int32(int16(popI())))

		case bytecode.OpIfEq, bytecode.OpIfNe, bytecode.OpIfLt,
			bytecode.OpIfGe, bytecode.OpIfGt, bytecode.OpIfLe:
			if intBranch(ins.Op, popI(), 0) {
				pc = code.Labels[ins.Label] - 1
			}

		case bytecode.OpIfICmpEq, bytecode.OpIfICmpNe, bytecode.OpIfICmpLt,
			bytecode.OpIfICmpGe, bytecode.OpIfICmpGt, bytecode.OpIfICmpLe:
			b, a := popI(), popI()
			if intBranch(ins.Op, a, b) {
				pc = code.Labels[ins.Label] - 1
			}

		case bytecode.OpIfACmpEq:
			b, a := pop(), pop()
			if a == b {
				pc = code.Labels[ins.Label] - 1
			}
		case bytecode.OpIfACmpNe:
			b, a := pop(), pop()
			if a != b {
				pc = code.Labels[ins.Label] - 1
			}

		case bytecode.OpIfNull:
			if pop() == nil {
				pc = code.Labels[ins.Label] - 1
			}
		case bytecode.OpIfNonNull:
			if pop() != nil {
				pc = code.Labels[ins.Label] - 1
			}

		case bytecode.OpGoto:
			pc = code.Labels[ins.Label] - 1

		case bytecode.OpTableSwitch:
			k := int(popI())
			t := ins.Table
			target := t.Default
			if k >= t.Low && k <= t.High {
				target = t.Targets[k-t.Low]
			}
			pc = code.Labels[target] - 1

		case bytecode.OpLookupSwitch:
			k := int(popI())
			t := ins.Table
			target := t.Default
			for i, key := range t.Keys {
				if key == k {
					target = t.KeyTargets[i]
					break
				}
			}
			pc = code.Labels[target] - 1

		case bytecode.OpReturn:
			if ins.Type == types.Void {
				return nil, nil, nil
			}
			return pop(), nil, nil

		case bytecode.OpGetStatic:
			statics, ok := u.statics[ins.Sym.Owner]
			if !ok {
				return nil, nil, fmt.Errorf("mirror: unresolved static %s", ins.Sym)
			}
			push(statics[ins.Sym.Name])

		case bytecode.OpPutStatic:
			statics, ok := u.statics[ins.Sym.Owner]
			if !ok {
				return nil, nil, fmt.Errorf("mirror: unresolved static %s", ins.Sym)
			}
			statics[ins.Sym.Name] = pop()

		case bytecode.OpGetField:
			obj, npe := popObject(pop())
			if npe != nil {
				thrown = npe
				break
			}
			v, ok := obj.Fields[ins.Sym.Name]
			if !ok {
				return nil, nil, fmt.Errorf("mirror: unresolved field %s", ins.Sym)
			}
			push(v)

		case bytecode.OpPutField:
			v := pop()
			obj, npe := popObject(pop())
			if npe != nil {
				thrown = npe
				break
			}
			obj.Fields[ins.Sym.Name] = v

		case bytecode.OpInvokeVirtual, bytecode.OpInvokeSpecial,
			bytecode.OpInvokeStatic, bytecode.OpInvokeInterface:
			res, retVoid, callExc, callErr := u.call(ins, pop, push)
			if callErr != nil {
				return nil, nil, callErr
			}
			if callExc != nil {
				thrown = callExc
				break
			}
			if !retVoid {
				push(res)
			}

		case bytecode.OpInvokeDynamic:
			return nil, nil, fmt.Errorf("mirror: invokedynamic call site %s is not executable",
				ins.CallSite.Name)

		case bytecode.OpNew:
			push(u.allocate(ins.Sym.Owner))

		case bytecode.OpNewArray:
			n := popI()
			if n < 0 {
				thrown = newObject("java/lang/NegativeArraySizeException")
				break
			}
			at := ins.Type.(*types.ArrayType)
			elems := make([]any, n)
			for i := range elems {
				elems[i] = zeroValue(at.Elem)
			}
			push(&Array{Elem: at.Elem, Elems: elems})

		case bytecode.OpArrayLength:
			arr, npe := popArray(pop())
			if npe != nil {
				thrown = npe
				break
			}
			push(int32(len(arr.Elems)))

		case bytecode.OpALoadElem:
			idx := popI()
			arr, fault := arrayAt(pop(), idx)
			if fault != nil {
				thrown = fault
				break
			}
			push(arr.Elems[idx])

		case bytecode.OpAStoreElem:
			v := pop()
			idx := popI()
			arr, fault := arrayAt(pop(), idx)
			if fault != nil {
				thrown = fault
				break
			}
			arr.Elems[idx] = v

		case bytecode.OpAThrow:
			v := pop()
			if v == nil {
				v = newObject("java/lang/NullPointerException")
			}
			thrown = v

		// The mirror carries no class hierarchy, so checkcast passes
		// references through unchanged and instanceof matches exact names.
		case bytecode.OpCheckCast:

		case bytecode.OpInstanceOf:
			v := pop()
			if v != nil && referenceIs(v, ins.Type) {
				push(int32(1))
			} else {
				push(int32(0))
			}

		case bytecode.OpMonitorEnter:
			obj, npe := popObject(pop())
			if npe != nil {
				thrown = npe
				break
			}
			obj.locks++

		case bytecode.OpMonitorExit:
			obj, npe := popObject(pop())
			if npe != nil {
				thrown = npe
				break
			}
			obj.locks--
			if obj.locks < 0 {
				thrown = newObject("java/lang/IllegalMonitorStateException")
			}

		default:
			return nil, nil, fmt.Errorf("mirror: unsupported opcode %s", ins.Op)
		}

		if thrown != nil {
			handler, ok := findHandler(code, pc, thrown)
			if !ok {
				return nil, thrown, nil
			}
			stack = stack[:0]
			push(thrown)
			pc = handler - 1
		}
	}
	return nil, nil, fmt.Errorf("mirror: %s: control ran off the end", cm.Method.Sig.Name)
}

// call resolves and runs a non-dynamic invocation. Constructors of classes
// outside the universe (library throwables in tests) are intrinsic no-ops.
func (u *Universe) call(ins bytecode.Instruction, pop func() any, push func(any)) (res any, retVoid bool, exc any, err error) {
	nParams, retVoid := descriptorShape(ins.Sym.Desc)
	args := make([]any, nParams)
	for i := nParams - 1; i >= 0; i-- {
		args[i] = pop()
	}
	var recv any
	if ins.Op != bytecode.OpInvokeStatic {
		recv = pop()
		if recv == nil {
			return nil, retVoid, newObject("java/lang/NullPointerException"), nil
		}
	}

	cc, ok := u.classes[ins.Sym.Owner]
	if !ok {
		if ins.Sym.Name == types.ConstructorName {
			return nil, true, nil, nil
		}
		return nil, retVoid, nil, fmt.Errorf("mirror: unresolved method %s", ins.Sym)
	}
	cm, ok := cc.Methods[ins.Sym.Name+ins.Sym.Desc]
	if !ok {
		return nil, retVoid, nil, fmt.Errorf("mirror: unresolved method %s", ins.Sym)
	}
	res, exc, err = u.run(cm, recv, args)
	return res, retVoid, exc, err
}

// findHandler scans the exception table in declared order for the first
// region covering pc whose catch type matches the throwable.
func findHandler(code *bytecode.Code, pc int, exc any) (int, bool) {
	cls := valueClass(exc)
	for _, r := range code.ExceptionTable {
		if pc < code.Labels[r.Start] || pc >= code.Labels[r.End] {
			continue
		}
		if r.CatchType != nil && r.CatchType.Owner != cls {
			continue
		}
		return code.Labels[r.Handler], true
	}
	return 0, false
}

// --- Operand helpers ---

func arith(op bytecode.Opcode, t types.Type, a, b any) (any, string) {
	switch types.StackType(t) {
	case types.Long:
		x, y := a.(int64), b.(int64)
		if (op == bytecode.OpDiv || op == bytecode.OpRem) && y == 0 {
			return nil, "java/lang/ArithmeticException"
		}
		switch op {
		case bytecode.OpAdd:
			return x + y, ""
		case bytecode.OpSub:
			return x - y, ""
		case bytecode.OpMul:
			return x * y, ""
		case bytecode.OpDiv:
			return x / y, ""
		case bytecode.OpRem:
			return x % y, ""
		case bytecode.OpAnd:
			return x & y, ""
		case bytecode.OpOr:
			return x | y, ""
		case bytecode.OpXor:
			return x ^ y, ""
		}
	case types.Float:
		x, y := a.(float32), b.(float32)
		switch op {
		case bytecode.OpAdd:
			return x + y, ""
		case bytecode.OpSub:
			return x - y, ""
		case bytecode.OpMul:
			return x * y, ""
		case bytecode.OpDiv:
			return x / y, ""
		case bytecode.OpRem:
			return float32(math.Mod(float64(x), float64(y))), ""
		}
	case types.Double:
		x, y := a.(float64), b.(float64)
		switch op {
		case bytecode.OpAdd:
			return x + y, ""
		case bytecode.OpSub:
			return x - y, ""
		case bytecode.OpMul:
			return x * y, ""
		case bytecode.OpDiv:
			return x / y, ""
		case bytecode.OpRem:
			return math.Mod(x, y), ""
		}
	default:
		x, y := a.(int32), b.(int32)
		if (op == bytecode.OpDiv || op == bytecode.OpRem) && y == 0 {
			return nil, "java/lang/ArithmeticException"
		}
		switch op {
		case bytecode.OpAdd:
			return x + y, ""
		case bytecode.OpSub:
			return x - y, ""
		case bytecode.OpMul:
			return x * y, ""
		case bytecode.OpDiv:
			return x / y, ""
		case bytecode.OpRem:
			return x % y, ""
		case bytecode.OpAnd:
			return x & y, ""
		case bytecode.OpOr:
			return x | y, ""
		case bytecode.OpXor:
			return x ^ y, ""
		}
	}
	panic(fmt.Sprintf("arith: %s on %s", op, t))
}

func shift(op bytecode.Opcode, a any, n int32) any {
	switch a := a.(type) {
	case int32:
		s := uint(n & 31)
		switch op {
		case bytecode.OpShl:
			return a << s
		case bytecode.OpShr:
			return a >> s
		case bytecode.OpUshr:
			return int32(uint32(a) >> s)
		}
	case int64:
		s := uint(n & 63)
		switch op {
		case bytecode.OpShl:
			return a << s
		case bytecode.OpShr:
			return a >> s
		case bytecode.OpUshr:
			return int64(uint64(a) >> s)
		}
	}
	panic(fmt.Sprintf("shift: %s on %T", op, a))
}

// compare implements the CMP/CMPG opcodes: -1, 0 or 1, answering nan when
// a float/double operand is unordered.
func compare(a, b any, nan int32) int32 {
	switch a := a.(type) {
	case int64:
		b := b.(int64)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case float32:
		return compareFloat(float64(a), float64(b.(float32)), nan)
	case float64:
		return compareFloat(a, b.(float64), nan)
	}
	panic(fmt.Sprintf("compare: %T", a))
}

func compareFloat(a, b float64, nan int32) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	return nan // at least one operand is NaN
}

func intBranch(op bytecode.Opcode, a, b int32) bool {
	switch op {
	case bytecode.OpIfEq, bytecode.OpIfICmpEq:
		return a == b
	case bytecode.OpIfNe, bytecode.OpIfICmpNe:
		return a != b
	case bytecode.OpIfLt, bytecode.OpIfICmpLt:
		return a < b
	case bytecode.OpIfGe, bytecode.OpIfICmpGe:
		return a >= b
	case bytecode.OpIfGt, bytecode.OpIfICmpGt:
		return a > b
	case bytecode.OpIfLe, bytecode.OpIfICmpLe:
		return a <= b
	}
	panic(fmt.Sprintf("intBranch: %s", op))
}

func popObject(v any) (*Object, any) {
	if v == nil {
		return nil, newObject("java/lang/NullPointerException")
	}
	obj, ok := v.(*Object)
	if !ok {
		panic(fmt.Sprintf("expected an object, got %T", v))
	}
	return obj, nil
}

func popArray(v any) (*Array, any) {
	if v == nil {
		return nil, newObject("java/lang/NullPointerException")
	}
	arr, ok := v.(*Array)
	if !ok {
		panic(fmt.Sprintf("expected an array, got %T", v))
	}
	return arr, nil
}

func arrayAt(v any, idx int32) (*Array, any) {
	arr, npe := popArray(v)
	if npe != nil {
		return nil, npe
	}
	if idx < 0 || int(idx) >= len(arr.Elems) {
		return nil, newObject("java/lang/ArrayIndexOutOfBoundsException")
	}
	return arr, nil
}

func referenceIs(v any, t types.Type) bool {
	switch t := t.(type) {
	case *types.ReferenceType:
		return valueClass(v) == t.Name
	case *types.ArrayType:
		_, ok := v.(*Array)
		return ok
	}
	if t.Equals(types.String) {
		_, ok := v.(string)
		return ok
	}
	return false
}

// descriptorShape returns the parameter count and void-ness of a method
// descriptor like "(I[Ljava/lang/String;)V".
func descriptorShape(desc string) (params int, retVoid bool) {
	i := 1
	for desc[i] != ')' {
		params++
		for desc[i] == '[' {
			i++
		}
		if desc[i] == 'L' {
			for desc[i] != ';' {
				i++
			}
		}
		i++
	}
	return params, desc[i+1] == 'V'
}
