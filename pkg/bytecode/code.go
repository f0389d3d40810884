package bytecode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bys1/flybytes/pkg/types"
)

// LabelID is a method-locally-unique jump target. Labels are indices into
// the owning Code's label arena; a jump stores the LabelID and is resolved
// to an instruction position in a single finalization pass.
type LabelID int

// NoLabel marks an absent label operand.
const NoLabel LabelID = -1

const unbound = -1

var (
	ErrLabelAlreadyBound = errors.New("label already bound")
	ErrUnboundLabel      = errors.New("unbound label")
)

// SymbolRef names a field, method or class symbolically: owner internal
// name, member name, and type/method descriptor.
type SymbolRef struct {
	Owner string
	Name  string
	Desc  string
}

func (s SymbolRef) String() string {
	if s.Name == "" {
		return s.Owner
	}
	return s.Owner + "." + s.Name + s.Desc
}

// SwitchTable is the dispatch operand of OpTableSwitch/OpLookupSwitch.
// A table switch fills Low..High contiguously via Targets (absent keys are
// mapped to Default by the compiler); a lookup switch uses Keys/KeyTargets
// pairs sorted by key.
type SwitchTable struct {
	Low, High  int       // table form
	Targets    []LabelID // table form, len == High-Low+1
	Keys       []int     // lookup form, ascending
	KeyTargets []LabelID // lookup form, parallel to Keys
	Default    LabelID
}

// CallSiteRef is the resolved dynamic call-site descriptor attached to an
// OpInvokeDynamic instruction: bootstrap method reference, invoked name and
// descriptor, plus the ordered constant extra arguments.
type CallSiteRef struct {
	Bootstrap SymbolRef
	Name      string
	Desc      string
	Extra     []any // string, int32, int64, float32, float64, SymbolRef (class or handle)
}

// Instruction is one symbolic stack-machine instruction. Only the fields
// the opcode calls for are set; the rest stay zero.
type Instruction struct {
	Op       Opcode
	Type     types.Type
	Slot     int
	Value    any
	Label    LabelID
	Sym      *SymbolRef
	Table    *SwitchTable
	CallSite *CallSiteRef
	Line     int
}

// ExceptionRegion is one entry of a method's exception table:
// [Start, End) protected, control transfers to Handler when a throwable
// matching CatchType (nil = catch-all) escapes the region. Entry order is
// match order and must be preserved exactly as lowered.
type ExceptionRegion struct {
	Start     LabelID
	End       LabelID
	Handler   LabelID
	CatchType *SymbolRef
}

// LocalVar is one local-variable debug table entry.
type LocalVar struct {
	Name  string
	Slot  int
	Type  types.Type
	Start LabelID
	End   LabelID
}

// Code is the per-method output bundle handed to the binary emitter: the
// linear instruction sequence plus operand-stack/local-slot metadata,
// exception regions and the debug slot table.
type Code struct {
	Instrs         []Instruction
	Labels         []int // LabelID -> instruction index, unbound until bound
	MaxStack       int
	MaxLocals      int
	ExceptionTable []ExceptionRegion
	LocalDebug     []LocalVar
}

func NewCode() *Code {
	return &Code{
		Instrs: make([]Instruction, 0, 16),
		Labels: make([]int, 0, 8),
	}
}

// Emit appends an instruction and returns its position.
func (c *Code) Emit(ins Instruction) int {
	pos := len(c.Instrs)
	c.Instrs = append(c.Instrs, ins)
	return pos
}

// NewLabel allocates a fresh, unbound jump target.
func (c *Code) NewLabel() LabelID {
	c.Labels = append(c.Labels, unbound)
	return LabelID(len(c.Labels) - 1)
}

// BindLabel fixes l to the current end of the instruction stream. A label
// may be bound exactly once.
func (c *Code) BindLabel(l LabelID) error {
	if l < 0 || int(l) >= len(c.Labels) {
		return fmt.Errorf("label L%d does not exist", l)
	}
	if c.Labels[l] != unbound {
		return fmt.Errorf("L%d: %w", l, ErrLabelAlreadyBound)
	}
	c.Labels[l] = len(c.Instrs)
	return nil
}

// LabelPos returns the bound position of l.
func (c *Code) LabelPos(l LabelID) (int, bool) {
	if l < 0 || int(l) >= len(c.Labels) || c.Labels[l] == unbound {
		return 0, false
	}
	return c.Labels[l], true
}

// Bound reports whether l has been bound.
func (c *Code) Bound(l LabelID) bool {
	_, ok := c.LabelPos(l)
	return ok
}

// Finalize verifies label closure: every label referenced by a branch, a
// switch table, an exception region or a debug entry must be bound to a
// position inside this method. This is the hard barrier before a Code may
// be handed to the emitter.
func (c *Code) Finalize() error {
	check := func(l LabelID, what string) error {
		if l == NoLabel {
			return nil
		}
		if !c.Bound(l) {
			return fmt.Errorf("%s references L%d: %w", what, l, ErrUnboundLabel)
		}
		return nil
	}
	for i, ins := range c.Instrs {
		if ins.Op.IsBranch() {
			if err := check(ins.Label, fmt.Sprintf("instruction %d (%s)", i, ins.Op)); err != nil {
				return err
			}
		}
		if ins.Table != nil {
			for _, t := range ins.Table.Targets {
				if err := check(t, fmt.Sprintf("switch at %d", i)); err != nil {
					return err
				}
			}
			for _, t := range ins.Table.KeyTargets {
				if err := check(t, fmt.Sprintf("switch at %d", i)); err != nil {
					return err
				}
			}
			if err := check(ins.Table.Default, fmt.Sprintf("switch at %d", i)); err != nil {
				return err
			}
		}
	}
	for i, r := range c.ExceptionTable {
		for _, l := range []LabelID{r.Start, r.End, r.Handler} {
			if err := check(l, fmt.Sprintf("exception region %d", i)); err != nil {
				return err
			}
		}
	}
	for _, lv := range c.LocalDebug {
		if err := check(lv.Start, "local "+lv.Name); err != nil {
			return err
		}
		if err := check(lv.End, "local "+lv.Name); err != nil {
			return err
		}
	}
	return nil
}

// --- Disassembly ---

// Disassemble returns a human-readable dump of the code bundle, including
// label positions, the exception table and the debug slot table.
func (c *Code) Disassemble(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	fmt.Fprintf(&b, "maxStack=%d maxLocals=%d\n", c.MaxStack, c.MaxLocals)

	// Invert the label arena so labels print at their positions.
	at := make(map[int][]LabelID)
	for l, pos := range c.Labels {
		if pos != unbound {
			at[pos] = append(at[pos], LabelID(l))
		}
	}
	for i, ins := range c.Instrs {
		for _, l := range at[i] {
			fmt.Fprintf(&b, "L%d:\n", l)
		}
		fmt.Fprintf(&b, "%4d  %s", i, disassembleInstruction(ins))
		b.WriteByte('\n')
	}
	for _, l := range at[len(c.Instrs)] {
		fmt.Fprintf(&b, "L%d:\n", l)
	}

	if len(c.ExceptionTable) > 0 {
		b.WriteString("exception table:\n")
		for _, r := range c.ExceptionTable {
			catch := "any"
			if r.CatchType != nil {
				catch = r.CatchType.Owner
			}
			fmt.Fprintf(&b, "  [L%d, L%d) -> L%d catch %s\n", r.Start, r.End, r.Handler, catch)
		}
	}
	if len(c.LocalDebug) > 0 {
		b.WriteString("locals:\n")
		for _, lv := range c.LocalDebug {
			fmt.Fprintf(&b, "  slot %d  %s %s  [L%d, L%d)\n", lv.Slot, lv.Type, lv.Name, lv.Start, lv.End)
		}
	}
	return b.String()
}

func disassembleInstruction(ins Instruction) string {
	var b strings.Builder
	b.WriteString(ins.Op.String())
	if ins.Type != nil {
		fmt.Fprintf(&b, " %s", ins.Type)
	}
	switch ins.Op {
	case OpLoad, OpStore:
		fmt.Fprintf(&b, " slot=%d", ins.Slot)
	case OpIinc:
		fmt.Fprintf(&b, " slot=%d by %v", ins.Slot, ins.Value)
	case OpConst:
		fmt.Fprintf(&b, " %#v", ins.Value)
	}
	if ins.Op.IsBranch() {
		fmt.Fprintf(&b, " -> L%d", ins.Label)
	}
	if ins.Sym != nil {
		fmt.Fprintf(&b, " %s", ins.Sym)
	}
	if ins.CallSite != nil {
		fmt.Fprintf(&b, " %s%s bsm=%s", ins.CallSite.Name, ins.CallSite.Desc, ins.CallSite.Bootstrap)
	}
	if ins.Table != nil {
		t := ins.Table
		if len(t.Targets) > 0 {
			fmt.Fprintf(&b, " [%d..%d]", t.Low, t.High)
			for i, tgt := range t.Targets {
				fmt.Fprintf(&b, " %d:L%d", t.Low+i, tgt)
			}
		} else {
			for i, k := range t.Keys {
				fmt.Fprintf(&b, " %d:L%d", k, t.KeyTargets[i])
			}
		}
		fmt.Fprintf(&b, " default:L%d", t.Default)
	}
	return b.String()
}
