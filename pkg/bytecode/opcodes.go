package bytecode

import "fmt"

// Opcode defines the symbolic instruction vocabulary handed to the binary
// emitter. Instructions are fully resolved: operands are types, slots,
// labels and symbol references, never raw constant-pool indices.
type Opcode uint8

const (
	OpNop Opcode = iota

	// Constants and locals
	OpConst      // Type Value: push a constant of Type
	OpAConstNull // push the null reference
	OpLoad       // Type Slot: push local variable
	OpStore      // Type Slot: pop into local variable
	OpIinc       // Slot Value(int): increment int local in place

	// Stack ops
	OpPop   // pop one slot
	OpPop2  // pop two slots (one wide value or two narrow)
	OpDup   // duplicate top slot
	OpDupX1 // duplicate top slot below the next one
	OpDupX2 // duplicate top slot below the next two
	OpSwap  // swap the two top slots

	// Arithmetic and bitwise (typed)
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNeg
	OpShl
	OpShr
	OpUshr
	OpAnd
	OpOr
	OpXor

	// Comparison of wide/floating operands, pushes an int (-1, 0, 1).
	// The variants differ only on an unordered float/double operand:
	// OpCmp answers -1 (lcmp, fcmpl, dcmpl), OpCmpG answers 1 (fcmpg,
	// dcmpg).
	OpCmp  // Type: long, float or double
	OpCmpG // Type: float or double

	// Primitive conversions
	OpI2L
	OpI2F
	OpI2D
	OpL2I
	OpL2F
	OpL2D
	OpF2I
	OpF2L
	OpF2D
	OpD2I
	OpD2L
	OpD2F
	OpI2B
	OpI2C
	OpI2S

	// Branches (int against zero)
	OpIfEq
	OpIfNe
	OpIfLt
	OpIfGe
	OpIfGt
	OpIfLe

	// Branches (int against int)
	OpIfICmpEq
	OpIfICmpNe
	OpIfICmpLt
	OpIfICmpGe
	OpIfICmpGt
	OpIfICmpLe

	// Branches (references)
	OpIfACmpEq
	OpIfACmpNe
	OpIfNull
	OpIfNonNull

	OpGoto

	// Multi-way dispatch
	OpTableSwitch  // Table: dense jump table
	OpLookupSwitch // Table: sparse key/target pairs

	OpReturn // Type (Void for no value)

	// Fields
	OpGetStatic // Sym
	OpPutStatic // Sym
	OpGetField  // Sym
	OpPutField  // Sym

	// Invocations
	OpInvokeVirtual   // Sym
	OpInvokeSpecial   // Sym
	OpInvokeStatic    // Sym
	OpInvokeInterface // Sym
	OpInvokeDynamic   // CallSite

	// Objects and arrays
	OpNew         // Sym (class)
	OpNewArray    // Type: element type
	OpArrayLength // pop array, push int
	OpALoadElem   // Type: pop index, array; push element
	OpAStoreElem  // Type: pop value, index, array

	OpAThrow
	OpCheckCast  // Type
	OpInstanceOf // Type
	OpMonitorEnter
	OpMonitorExit
)

func (op Opcode) String() string {
	switch op {
	case OpNop:
		return "NOP"
	case OpConst:
		return "CONST"
	case OpAConstNull:
		return "ACONST_NULL"
	case OpLoad:
		return "LOAD"
	case OpStore:
		return "STORE"
	case OpIinc:
		return "IINC"
	case OpPop:
		return "POP"
	case OpPop2:
		return "POP2"
	case OpDup:
		return "DUP"
	case OpDupX1:
		return "DUP_X1"
	case OpDupX2:
		return "DUP_X2"
	case OpSwap:
		return "SWAP"
	case OpAdd:
		return "ADD"
	case OpSub:
		return "SUB"
	case OpMul:
		return "MUL"
	case OpDiv:
		return "DIV"
	case OpRem:
		return "REM"
	case OpNeg:
		return "NEG"
	case OpShl:
		return "SHL"
	case OpShr:
		return "SHR"
	case OpUshr:
		return "USHR"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpXor:
		return "XOR"
	case OpCmp:
		return "CMP"
	case OpCmpG:
		return "CMPG"
	case OpI2L:
		return "I2L"
	case OpI2F:
		return "I2F"
	case OpI2D:
		return "I2D"
	case OpL2I:
		return "L2I"
	case OpL2F:
		return "L2F"
	case OpL2D:
		return "L2D"
	case OpF2I:
		return "F2I"
	case OpF2L:
		return "F2L"
	case OpF2D:
		return "F2D"
	case OpD2I:
		return "D2I"
	case OpD2L:
		return "D2L"
	case OpD2F:
		return "D2F"
	case OpI2B:
		return "I2B"
	case OpI2C:
		return "I2C"
	case OpI2S:
		return "I2S"
	case OpIfEq:
		return "IFEQ"
	case OpIfNe:
		return "IFNE"
	case OpIfLt:
		return "IFLT"
	case OpIfGe:
		return "IFGE"
	case OpIfGt:
		return "IFGT"
	case OpIfLe:
		return "IFLE"
	case OpIfICmpEq:
		return "IF_ICMPEQ"
	case OpIfICmpNe:
		return "IF_ICMPNE"
	case OpIfICmpLt:
		return "IF_ICMPLT"
	case OpIfICmpGe:
		return "IF_ICMPGE"
	case OpIfICmpGt:
		return "IF_ICMPGT"
	case OpIfICmpLe:
		return "IF_ICMPLE"
	case OpIfACmpEq:
		return "IF_ACMPEQ"
	case OpIfACmpNe:
		return "IF_ACMPNE"
	case OpIfNull:
		return "IFNULL"
	case OpIfNonNull:
		return "IFNONNULL"
	case OpGoto:
		return "GOTO"
	case OpTableSwitch:
		return "TABLESWITCH"
	case OpLookupSwitch:
		return "LOOKUPSWITCH"
	case OpReturn:
		return "RETURN"
	case OpGetStatic:
		return "GETSTATIC"
	case OpPutStatic:
		return "PUTSTATIC"
	case OpGetField:
		return "GETFIELD"
	case OpPutField:
		return "PUTFIELD"
	case OpInvokeVirtual:
		return "INVOKEVIRTUAL"
	case OpInvokeSpecial:
		return "INVOKESPECIAL"
	case OpInvokeStatic:
		return "INVOKESTATIC"
	case OpInvokeInterface:
		return "INVOKEINTERFACE"
	case OpInvokeDynamic:
		return "INVOKEDYNAMIC"
	case OpNew:
		return "NEW"
	case OpNewArray:
		return "NEWARRAY"
	case OpArrayLength:
		return "ARRAYLENGTH"
	case OpALoadElem:
		return "ALOADELEM"
	case OpAStoreElem:
		return "ASTOREELEM"
	case OpAThrow:
		return "ATHROW"
	case OpCheckCast:
		return "CHECKCAST"
	case OpInstanceOf:
		return "INSTANCEOF"
	case OpMonitorEnter:
		return "MONITORENTER"
	case OpMonitorExit:
		return "MONITOREXIT"
	default:
		return fmt.Sprintf("UnknownOpcode(%d)", op)
	}
}

// IsBranch reports whether op carries a Label operand.
func (op Opcode) IsBranch() bool {
	return op >= OpIfEq && op <= OpGoto
}

// IsTerminator reports whether control never falls through op.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpGoto, OpReturn, OpAThrow, OpTableSwitch, OpLookupSwitch:
		return true
	}
	return false
}
