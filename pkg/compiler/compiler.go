// Package compiler lowers the structured AST of one method into a flat,
// verifier-compatible stack-machine instruction sequence plus its frame
// metadata: operand-stack bookkeeping, local slot assignment, exception and
// monitor regions, and switch dispatch tables.
//
// Each Compiler instance is scoped to a single method and owns its own
// symbol table, label space and abstract stack, so methods of one class may
// be compiled in parallel with no shared mutable state.
package compiler

import (
	"fmt"

	"github.com/bys1/flybytes/pkg/ast"
	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/errors"
	"github.com/bys1/flybytes/pkg/types"
)

const debugCompiler = false

func debugPrintf(format string, args ...interface{}) {
	if debugCompiler {
		fmt.Printf(format, args...)
	}
}

// Options carries the compiler tunables. The zero value is usable.
type Options struct {
	// DensityThreshold is the table-vs-lookup switch heuristic cutoff;
	// 0 selects DefaultDensityThreshold.
	DensityThreshold float64
}

// flowContext is one enclosing breakable construct (loop, switch or labeled
// block). Loops additionally carry a continue target.
type flowContext struct {
	label         string
	breakLabel    bytecode.LabelID
	continueLabel bytecode.LabelID // NoLabel when the construct is not continuable
	cleanupDepth  int              // cleanups live when the construct was entered
}

// cleanup is a pending action that must run before control leaves its
// region early: a monitor release or a finally body. break/continue/return
// replay cleanups innermost-first down to the transfer target.
type cleanup interface {
	run(c *Compiler) errors.FlybytesError
}

// monitorRelease reloads the saved lock and releases it.
type monitorRelease struct {
	lockSlot int
}

func (m *monitorRelease) run(c *Compiler) errors.FlybytesError {
	c.emitLoad(types.Object, m.lockSlot)
	return c.emitMonitorExit()
}

// finallyRun re-lowers the finally body at the escape site. The replay is
// carved out of its owner's protected segments, so a throw from the
// replayed body unwinds past the owning construct instead of re-entering
// its own catch-all and running the finally twice.
type finallyRun struct {
	body  []ast.Stat
	spans *regionTracker
}

func (f *finallyRun) run(c *Compiler) errors.FlybytesError {
	f.spans.suspend(c)
	if err := c.compileScopedStats(f.body); err != nil {
		return err
	}
	f.spans.resume(c)
	return nil
}

// Compiler lowers one method. Create a fresh instance per method.
type Compiler struct {
	className  string
	method     *ast.Method
	code       *bytecode.Code
	symbols    *SymbolTable
	stack      *operandStack
	contexts   []*flowContext
	cleanups   []cleanup
	labelState map[bytecode.LabelID][]types.Type
	reachable  bool
	atCtorHead bool
	line       int
	opts       Options
}

// NewCompiler creates a compiler for one method of the given class.
func NewCompiler(className string, method *ast.Method, opts Options) *Compiler {
	return &Compiler{
		className:  className,
		method:     method,
		code:       bytecode.NewCode(),
		symbols:    NewSymbolTable(),
		stack:      newOperandStack(),
		labelState: make(map[bytecode.LabelID][]types.Type),
		reachable:  true,
		opts:       opts,
	}
}

// Compile runs the whole per-method pipeline: declare this/formals, lower
// the body, resolve labels, finalize metadata. A method that fails produces
// no instruction bundle at all.
func (c *Compiler) Compile() (*bytecode.Code, errors.FlybytesError) {
	m := c.method
	if m.IsAbstract() {
		return nil, c.scopeErrorf(0, "cannot lower abstract method '%s'", m.Sig.Name)
	}
	if m.Raw != nil {
		return c.compileRawBody()
	}

	// Slot 0 holds the receiver of instance methods; formals follow in
	// declaration order. Their debug ranges all open at entry.
	entry := c.code.NewLabel()
	c.mustBind(entry)
	if !m.IsStatic() {
		sym, err := c.symbols.Declare("this", types.Reference(c.className))
		if err != nil {
			return nil, c.scopeErrorf(0, "%v", err)
		}
		sym.start = entry
	}
	for _, p := range m.Params {
		sym, err := c.symbols.Declare(p.Name, p.Type)
		if err != nil {
			return nil, c.scopeErrorf(0, "%v", err)
		}
		sym.start = entry
	}

	c.atCtorHead = m.Sig.IsConstructor()
	if err := c.compileBodyStats(m.Body); err != nil {
		return nil, err
	}

	// Implicit return for void methods; a non-void method must not fall
	// off the end on any reachable path.
	if c.reachable {
		if m.Sig.Return == types.Void {
			c.emitReturnVoid()
		} else {
			return nil, c.stackErrorf(0, "control falls off the end of non-void method '%s'", m.Sig.Name)
		}
	}

	// Close the debug ranges of the outermost scope (this + formals).
	c.closeScope(c.symbols.ExitScope())

	c.code.MaxStack = c.stack.max
	c.code.MaxLocals = c.symbols.MaxSlots()

	// Hard barrier: no unbound label may survive lowering.
	if err := c.code.Finalize(); err != nil {
		return nil, c.scopeErrorf(0, "%v", err)
	}
	debugPrintf("%s", c.code.Disassemble(c.className+"."+m.Sig.Name))
	return c.code, nil
}

// compileRawBody passes an author-supplied low-level instruction list
// through unchanged, trusting its declared frame metadata.
func (c *Compiler) compileRawBody() (*bytecode.Code, errors.FlybytesError) {
	raw := c.method.Raw
	c.code.Instrs = append(c.code.Instrs, raw.Instrs...)
	c.code.MaxStack = raw.MaxStack
	c.code.MaxLocals = raw.MaxLocals
	if err := c.code.Finalize(); err != nil {
		return nil, c.scopeErrorf(0, "%v", err)
	}
	return c.code, nil
}

// compileBodyStats lowers the top-level statement list of a method body,
// tracking the constructor-head window for super-constructor calls.
func (c *Compiler) compileBodyStats(stats []ast.Stat) errors.FlybytesError {
	for _, s := range stats {
		if _, ok := s.(*ast.InvokeSuperCtor); !ok {
			c.atCtorHead = false
		}
		if err := c.compileStat(s); err != nil {
			return err
		}
	}
	return nil
}

// --- Scopes ---

func (c *Compiler) compileScopedStats(stats []ast.Stat) errors.FlybytesError {
	c.symbols.EnterScope()
	var err errors.FlybytesError
	for _, s := range stats {
		if err = c.compileStat(s); err != nil {
			break
		}
	}
	c.closeScope(c.symbols.ExitScope())
	return err
}

// closeScope binds one end label for the scope and appends the debug-table
// entries of its locals.
func (c *Compiler) closeScope(locals []*LocalSym) {
	if len(locals) == 0 {
		return
	}
	end := c.code.NewLabel()
	c.mustBind(end)
	for _, sym := range locals {
		if sym.start == bytecode.NoLabel {
			continue
		}
		c.code.LocalDebug = append(c.code.LocalDebug, bytecode.LocalVar{
			Name:  sym.Name,
			Slot:  sym.Slot,
			Type:  sym.Type,
			Start: sym.start,
			End:   end,
		})
	}
}

// declareLocal declares a named local and opens its debug range.
func (c *Compiler) declareLocal(name string, t types.Type) (*LocalSym, errors.FlybytesError) {
	sym, err := c.symbols.Declare(name, t)
	if err != nil {
		return nil, c.scopeErrorf(c.line, "%v", err)
	}
	sym.start = c.code.NewLabel()
	c.mustBind(sym.start)
	return sym, nil
}

// --- Labels and reachability ---

// recordLabelState notes the abstract stack expected at a branch target.
// The first recording wins; later ones (and a later bind) must agree on
// slot depth, which is what makes dead-branch reconciliation safe.
func (c *Compiler) recordLabelState(l bytecode.LabelID) errors.FlybytesError {
	if prev, ok := c.labelState[l]; ok {
		if slotDepth(prev) != c.stack.slots() {
			return c.stackErrorf(c.line, "inconsistent stack depth at L%d: %d vs %d slots",
				l, slotDepth(prev), c.stack.slots())
		}
		return nil
	}
	c.labelState[l] = c.stack.snapshot()
	return nil
}

// bindLabel fixes l at the current position and reconciles the abstract
// stack: on dead code it adopts the state recorded at the jumps targeting
// l; on live fall-through it checks consistency. A label bound in dead code
// that no branch ever targeted stays dead, so reachability analysis (and
// fall-off-the-end detection) remains exact.
func (c *Compiler) bindLabel(l bytecode.LabelID) errors.FlybytesError {
	if err := c.code.BindLabel(l); err != nil {
		return c.scopeErrorf(c.line, "%v", err)
	}
	state, recorded := c.labelState[l]
	if !c.reachable {
		if recorded {
			c.stack.restore(state)
			c.reachable = true
		}
		return nil
	}
	if recorded && slotDepth(state) != c.stack.slots() {
		return c.stackErrorf(c.line, "inconsistent stack depth at L%d: %d vs %d slots",
			l, slotDepth(state), c.stack.slots())
	}
	if !recorded {
		c.labelState[l] = c.stack.snapshot()
	}
	return nil
}

// bindHandler fixes l as an exception-handler entry: the abstract stack
// there is exactly one throwable reference, whatever preceded it.
func (c *Compiler) bindHandler(l bytecode.LabelID, caught types.Type) errors.FlybytesError {
	if err := c.code.BindLabel(l); err != nil {
		return c.scopeErrorf(c.line, "%v", err)
	}
	c.stack.restore([]types.Type{caught})
	c.reachable = true
	return nil
}

// mustBind binds a label the compiler just created; by construction it
// cannot already be bound.
func (c *Compiler) mustBind(l bytecode.LabelID) {
	if err := c.code.BindLabel(l); err != nil {
		panic(fmt.Sprintf("compiler internal error: %v", err))
	}
}

// --- Error helpers ---

func (c *Compiler) pos(line int) errors.Position {
	if line == 0 {
		line = c.line
	}
	return errors.Position{Method: c.methodName(), Line: line}
}

func (c *Compiler) methodName() string {
	return c.className + "." + c.method.Sig.Name
}

func (c *Compiler) scopeErrorf(line int, format string, args ...interface{}) errors.FlybytesError {
	return &errors.ScopeError{Position: c.pos(line), Msg: fmt.Sprintf(format, args...)}
}

func (c *Compiler) stackErrorf(line int, format string, args ...interface{}) errors.FlybytesError {
	return &errors.StackError{Position: c.pos(line), Msg: fmt.Sprintf(format, args...)}
}
