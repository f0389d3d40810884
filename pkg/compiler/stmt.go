package compiler

import (
	"sort"

	"github.com/bys1/flybytes/pkg/ast"
	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/errors"
	"github.com/bys1/flybytes/pkg/types"
)

// --- Statement & Control-Flow Lowering ---

func (c *Compiler) compileStat(s ast.Stat) errors.FlybytesError {
	if line := s.SrcLine(); line > 0 {
		c.line = line
	}

	switch s := s.(type) {
	case *ast.Decl:
		return c.compileDecl(s)

	case *ast.Store:
		sym, err := c.symbols.Resolve(s.Name)
		if err != nil {
			return c.scopeErrorf(0, "%v", err)
		}
		if _, err2 := c.compileExp(s.Value); err2 != nil {
			return err2
		}
		return c.emitStore(sym.Type, sym.Slot)

	case *ast.PutField:
		if _, err := c.compileExp(s.Recv); err != nil {
			return err
		}
		if _, err := c.compileExp(s.Value); err != nil {
			return err
		}
		if _, err := c.popExpect(s.Type); err != nil {
			return err
		}
		if _, err := c.popRef(); err != nil {
			return err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpPutField, Sym: fieldRef(s.Owner, s.Name, s.Type)})
		return nil

	case *ast.PutStatic:
		if _, err := c.compileExp(s.Value); err != nil {
			return err
		}
		if _, err := c.popExpect(s.Type); err != nil {
			return err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpPutStatic, Sym: fieldRef(s.Owner, s.Name, s.Type)})
		return nil

	case *ast.AStore:
		at, err := c.compileExp(s.Array)
		if err != nil {
			return err
		}
		arr, ok := at.(*types.ArrayType)
		if !ok {
			return c.stackErrorf(0, "array store into non-array type %s", at)
		}
		if _, err := c.compileExp(s.Index); err != nil {
			return err
		}
		if _, err := c.compileExp(s.Value); err != nil {
			return err
		}
		return c.emitAStoreElem(arr.Elem)

	case *ast.Do:
		t, err := c.compileExp(s.Exp)
		if err != nil {
			return err
		}
		if t != types.Void {
			return c.emitPopValue()
		}
		return nil

	case *ast.Block:
		brk := c.code.NewLabel()
		c.pushContext(s.Label, brk, bytecode.NoLabel)
		err := c.compileScopedStats(s.Body)
		c.popContext()
		if err != nil {
			return err
		}
		return c.bindLabel(brk)

	case *ast.If:
		end := c.code.NewLabel()
		if err := c.compileBranch(s.Cond, end, false); err != nil {
			return err
		}
		if err := c.compileScopedStats(s.Then); err != nil {
			return err
		}
		return c.bindLabel(end)

	case *ast.IfElse:
		elseL := c.code.NewLabel()
		endL := c.code.NewLabel()
		if err := c.compileBranch(s.Cond, elseL, false); err != nil {
			return err
		}
		if err := c.compileScopedStats(s.Then); err != nil {
			return err
		}
		if c.reachable {
			if err := c.emitGoto(endL); err != nil {
				return err
			}
		}
		if err := c.bindLabel(elseL); err != nil {
			return err
		}
		if err := c.compileScopedStats(s.Else); err != nil {
			return err
		}
		return c.bindLabel(endL)

	case *ast.While:
		return c.compileWhile(s)

	case *ast.DoWhile:
		return c.compileDoWhile(s)

	case *ast.For:
		return c.compileFor(s)

	case *ast.Switch:
		return c.compileSwitch(s)

	case *ast.Break:
		ctx, err := c.findBreak(s.Label)
		if err != nil {
			return err
		}
		if err := c.runCleanups(ctx.cleanupDepth); err != nil {
			return err
		}
		return c.emitGoto(ctx.breakLabel)

	case *ast.Continue:
		ctx, err := c.findContinue(s.Label)
		if err != nil {
			return err
		}
		if err := c.runCleanups(ctx.cleanupDepth); err != nil {
			return err
		}
		return c.emitGoto(ctx.continueLabel)

	case *ast.Return:
		return c.compileReturn(s)

	case *ast.Throw:
		if _, err := c.compileExp(s.Value); err != nil {
			return err
		}
		return c.emitThrow()

	case *ast.TryCatch:
		return c.compileTryCatch(s)

	case *ast.Monitor:
		return c.compileMonitor(s)

	case *ast.InvokeSuperCtor:
		return c.compileSuperCtor(s)

	case *ast.Asm:
		return c.compileAsm(s)

	default:
		// The Stat vocabulary is closed; a new variant must get a case here.
		panic("compiler: unhandled statement variant")
	}
}

func (c *Compiler) compileDecl(s *ast.Decl) errors.FlybytesError {
	if s.Init != nil {
		if _, err := c.compileExp(s.Init); err != nil {
			return err
		}
	}
	sym, err := c.declareLocal(s.Name, s.Type)
	if err != nil {
		return err
	}
	if s.Init != nil {
		return c.emitStore(sym.Type, sym.Slot)
	}
	return nil
}

// --- Loops ---

func (c *Compiler) compileWhile(s *ast.While) errors.FlybytesError {
	condL := c.code.NewLabel()
	breakL := c.code.NewLabel()
	if err := c.bindLabel(condL); err != nil {
		return err
	}
	if err := c.compileBranch(s.Cond, breakL, false); err != nil {
		return err
	}
	c.pushContext(s.Label, breakL, condL)
	err := c.compileScopedStats(s.Body)
	c.popContext()
	if err != nil {
		return err
	}
	if c.reachable {
		if err := c.emitGoto(condL); err != nil {
			return err
		}
	}
	return c.bindLabel(breakL)
}

func (c *Compiler) compileDoWhile(s *ast.DoWhile) errors.FlybytesError {
	topL := c.code.NewLabel()
	condL := c.code.NewLabel()
	breakL := c.code.NewLabel()
	if err := c.bindLabel(topL); err != nil {
		return err
	}
	c.pushContext(s.Label, breakL, condL)
	err := c.compileScopedStats(s.Body)
	c.popContext()
	if err != nil {
		return err
	}
	if err := c.bindLabel(condL); err != nil {
		return err
	}
	if err := c.compileBranch(s.Cond, topL, true); err != nil {
		return err
	}
	return c.bindLabel(breakL)
}

func (c *Compiler) compileFor(s *ast.For) errors.FlybytesError {
	c.symbols.EnterScope()
	defer func() { c.closeScope(c.symbols.ExitScope()) }()

	for _, init := range s.Init {
		if err := c.compileStat(init); err != nil {
			return err
		}
	}
	condL := c.code.NewLabel()
	nextL := c.code.NewLabel()
	breakL := c.code.NewLabel()
	if err := c.bindLabel(condL); err != nil {
		return err
	}
	if s.Cond != nil {
		if err := c.compileBranch(s.Cond, breakL, false); err != nil {
			return err
		}
	}
	c.pushContext(s.Label, breakL, nextL)
	err := c.compileScopedStats(s.Body)
	c.popContext()
	if err != nil {
		return err
	}
	if err := c.bindLabel(nextL); err != nil {
		return err
	}
	for _, next := range s.Next {
		if err := c.compileStat(next); err != nil {
			return err
		}
	}
	if c.reachable {
		if err := c.emitGoto(condL); err != nil {
			return err
		}
	}
	return c.bindLabel(breakL)
}

// --- Switch ---

func (c *Compiler) compileSwitch(s *ast.Switch) errors.FlybytesError {
	t, err := c.compileExp(s.Cond)
	if err != nil {
		return err
	}
	if !types.StackType(t).Equals(types.Int) {
		return c.stackErrorf(0, "switch condition of type %s is not int", t)
	}

	keys := make([]int, 0, len(s.Cases))
	caseLabels := make(map[int]bytecode.LabelID, len(s.Cases))
	for _, cs := range s.Cases {
		if _, dup := caseLabels[cs.Key]; dup {
			return c.scopeErrorf(0, "duplicate case key %d", cs.Key)
		}
		caseLabels[cs.Key] = c.code.NewLabel()
		keys = append(keys, cs.Key)
	}
	// Default is always a branch target, synthesized as "do nothing" when
	// the source omits it, so dispatch is total.
	defaultL := c.code.NewLabel()
	endL := c.code.NewLabel()

	table := &bytecode.SwitchTable{Default: defaultL}
	op := bytecode.OpLookupSwitch
	if len(keys) > 0 && chooseStrategy(s.Option, keys, c.opts.DensityThreshold) == useTable {
		op = bytecode.OpTableSwitch
		low, high := keyRange(keys)
		table.Low, table.High = low, high
		table.Targets = make([]bytecode.LabelID, high-low+1)
		for i := range table.Targets {
			// Absent keys dispatch to default.
			table.Targets[i] = defaultL
		}
		for k, l := range caseLabels {
			table.Targets[k-low] = l
		}
	} else {
		sorted := append([]int(nil), keys...)
		sort.Ints(sorted)
		table.Keys = sorted
		table.KeyTargets = make([]bytecode.LabelID, len(sorted))
		for i, k := range sorted {
			table.KeyTargets[i] = caseLabels[k]
		}
	}

	if _, err := c.popExpect(types.Int); err != nil {
		return err
	}
	for _, l := range caseLabels {
		if err := c.recordLabelState(l); err != nil {
			return err
		}
	}
	if err := c.recordLabelState(defaultL); err != nil {
		return err
	}
	c.emit(bytecode.Instruction{Op: op, Table: table})
	c.setUnreachable()

	// Case bodies share one scope and fall through in declaration order;
	// the default body (or its synthesized empty stand-in) comes last.
	c.pushContext(s.Label, endL, bytecode.NoLabel)
	c.symbols.EnterScope()
	lower := func() errors.FlybytesError {
		for _, cs := range s.Cases {
			if err := c.bindLabel(caseLabels[cs.Key]); err != nil {
				return err
			}
			for _, stat := range cs.Body {
				if err := c.compileStat(stat); err != nil {
					return err
				}
			}
		}
		if err := c.bindLabel(defaultL); err != nil {
			return err
		}
		for _, stat := range s.Default {
			if err := c.compileStat(stat); err != nil {
				return err
			}
		}
		return nil
	}
	err = lower()
	c.closeScope(c.symbols.ExitScope())
	c.popContext()
	if err != nil {
		return err
	}
	return c.bindLabel(endL)
}

// --- Return ---

func (c *Compiler) compileReturn(s *ast.Return) errors.FlybytesError {
	ret := c.method.Sig.Return
	if s.Value == nil {
		if ret != types.Void {
			return c.stackErrorf(0, "missing return value in non-void method")
		}
		if err := c.runCleanups(0); err != nil {
			return err
		}
		c.emitReturnVoid()
		return nil
	}
	if ret == types.Void {
		return c.stackErrorf(0, "returning a value from a void method")
	}
	if _, err := c.compileExp(s.Value); err != nil {
		return err
	}
	if len(c.cleanups) > 0 {
		// Park the return value in a temp while monitor releases and
		// finally bodies run on the way out.
		slot, release := c.symbols.AllocTemp(ret)
		if err := c.emitStore(ret, slot); err != nil {
			return err
		}
		if err := c.runCleanups(0); err != nil {
			return err
		}
		c.emitLoad(ret, slot)
		release()
	}
	return c.emitReturnValue(ret)
}

// --- Exceptions ---

// catchSpan is one protected segment of lowered code.
type catchSpan struct {
	start, end bytecode.LabelID
}

// regionTracker accumulates the protected segments of one lowered span.
// Escape-site finally replays suspend it around the replayed instructions,
// so no region derived from the span covers them: a finally body that
// throws on a break/continue/return path runs exactly once and its
// throwable unwinds past the owning construct.
type regionTracker struct {
	open  bytecode.LabelID
	spans []catchSpan
}

func newRegionTracker(start bytecode.LabelID) *regionTracker {
	return &regionTracker{open: start}
}

func (r *regionTracker) suspend(c *Compiler) {
	end := c.code.NewLabel()
	c.mustBind(end)
	r.close(c, end)
}

func (r *regionTracker) resume(c *Compiler) {
	l := c.code.NewLabel()
	c.mustBind(l)
	r.open = l
}

// close seals the currently open segment at end, dropping it when empty.
func (r *regionTracker) close(c *Compiler, end bytecode.LabelID) {
	if r.open == bytecode.NoLabel {
		return
	}
	s, _ := c.code.LabelPos(r.open)
	e, _ := c.code.LabelPos(end)
	if e > s {
		r.spans = append(r.spans, catchSpan{start: r.open, end: end})
	}
	r.open = bytecode.NoLabel
}

func (c *Compiler) compileTryCatch(s *ast.TryCatch) errors.FlybytesError {
	startL := c.code.NewLabel()
	endL := c.code.NewLabel()
	afterL := c.code.NewLabel()

	if err := c.bindLabel(startL); err != nil {
		return err
	}
	bodySpans := newRegionTracker(startL)
	if s.Finally != nil {
		c.pushCleanup(&finallyRun{body: s.Finally, spans: bodySpans})
	}
	bodyErr := c.compileScopedStats(s.Body)
	if s.Finally != nil {
		c.popCleanup()
	}
	if bodyErr != nil {
		return bodyErr
	}
	if err := c.bindLabel(endL); err != nil {
		return err
	}
	bodySpans.close(c, endL)

	// Normal fall-through copy of the finally body.
	if s.Finally != nil && c.reachable {
		if err := c.compileScopedStats(s.Finally); err != nil {
			return err
		}
	}
	if c.reachable {
		if err := c.emitGoto(afterL); err != nil {
			return err
		}
	}

	// One handler per catch clause, in declared order: the first matching
	// type at runtime wins, so the order is never rearranged. Each clause
	// protects every body segment.
	catchSpans := make([]catchSpan, 0, len(s.Catches))
	for _, clause := range s.Catches {
		handlerL := c.code.NewLabel()
		for _, sp := range bodySpans.spans {
			c.code.ExceptionTable = append(c.code.ExceptionTable, bytecode.ExceptionRegion{
				Start:     sp.start,
				End:       sp.end,
				Handler:   handlerL,
				CatchType: &bytecode.SymbolRef{Owner: clause.Type.Name},
			})
		}
		if err := c.bindHandler(handlerL, clause.Type); err != nil {
			return err
		}
		clauseSpans := newRegionTracker(handlerL)
		c.symbols.EnterScope()
		clauseErr := c.compileCatchClause(clause, s.Finally, clauseSpans)
		c.closeScope(c.symbols.ExitScope())
		if clauseErr != nil {
			return clauseErr
		}
		spanEnd := c.code.NewLabel()
		if err := c.bindLabel(spanEnd); err != nil {
			return err
		}
		clauseSpans.close(c, spanEnd)
		catchSpans = append(catchSpans, clauseSpans.spans...)
		// Normal exit of the catch runs the finally body too.
		if s.Finally != nil && c.reachable {
			if err := c.compileScopedStats(s.Finally); err != nil {
				return err
			}
		}
		if c.reachable {
			if err := c.emitGoto(afterL); err != nil {
				return err
			}
		}
	}

	// Exceptional path: a catch-all that runs the finally body and
	// re-raises. It protects the try body and every catch body, but none
	// of the inline or escape-site finally copies.
	if s.Finally != nil {
		catchAllL := c.code.NewLabel()
		for _, sp := range bodySpans.spans {
			c.code.ExceptionTable = append(c.code.ExceptionTable, bytecode.ExceptionRegion{
				Start: sp.start, End: sp.end, Handler: catchAllL,
			})
		}
		for _, sp := range catchSpans {
			c.code.ExceptionTable = append(c.code.ExceptionTable, bytecode.ExceptionRegion{
				Start: sp.start, End: sp.end, Handler: catchAllL,
			})
		}
		if err := c.bindHandler(catchAllL, types.Reference("java/lang/Throwable")); err != nil {
			return err
		}
		slot, release := c.symbols.AllocTemp(types.Object)
		if err := c.emitStore(types.Object, slot); err != nil {
			return err
		}
		if err := c.compileScopedStats(s.Finally); err != nil {
			return err
		}
		c.emitLoad(types.Object, slot)
		release()
		if err := c.emitThrow(); err != nil {
			return err
		}
	}

	return c.bindLabel(afterL)
}

func (c *Compiler) compileCatchClause(clause ast.Catch, finally []ast.Stat, spans *regionTracker) errors.FlybytesError {
	sym, err := c.declareLocal(clause.Name, clause.Type)
	if err != nil {
		return err
	}
	if err := c.emitStore(sym.Type, sym.Slot); err != nil {
		return err
	}
	if finally != nil {
		c.pushCleanup(&finallyRun{body: finally, spans: spans})
		defer c.popCleanup()
	}
	for _, stat := range clause.Body {
		if err := c.compileStat(stat); err != nil {
			return err
		}
	}
	return nil
}

// --- Monitors ---

// compileMonitor lowers monitor(lock){body}. The lock is released on all
// four exit kinds: normal fall-through, the exceptional path via a
// catch-all handler that re-raises, and any break/continue (or return)
// transferring control out of the body.
func (c *Compiler) compileMonitor(s *ast.Monitor) errors.FlybytesError {
	t, err := c.compileExp(s.Lock)
	if err != nil {
		return err
	}
	if !types.IsReference(t) {
		return c.stackErrorf(0, "monitor lock of non-reference type %s", t)
	}
	if err := c.emitDup(); err != nil {
		return err
	}
	slot, release := c.symbols.AllocTemp(types.Object)
	defer release()
	if err := c.emitStore(types.Object, slot); err != nil {
		return err
	}
	if err := c.emitMonitorEnter(); err != nil {
		return err
	}

	startL := c.code.NewLabel()
	endL := c.code.NewLabel()
	afterL := c.code.NewLabel()
	if err := c.bindLabel(startL); err != nil {
		return err
	}
	c.pushCleanup(&monitorRelease{lockSlot: slot})
	bodyErr := c.compileScopedStats(s.Body)
	c.popCleanup()
	if bodyErr != nil {
		return bodyErr
	}
	if err := c.bindLabel(endL); err != nil {
		return err
	}
	if c.reachable {
		c.emitLoad(types.Object, slot)
		if err := c.emitMonitorExit(); err != nil {
			return err
		}
		if err := c.emitGoto(afterL); err != nil {
			return err
		}
	}

	handlerL := c.code.NewLabel()
	c.code.ExceptionTable = append(c.code.ExceptionTable, bytecode.ExceptionRegion{
		Start: startL, End: endL, Handler: handlerL,
	})
	if err := c.bindHandler(handlerL, types.Reference("java/lang/Throwable")); err != nil {
		return err
	}
	c.emitLoad(types.Object, slot)
	if err := c.emitMonitorExit(); err != nil {
		return err
	}
	if err := c.emitThrow(); err != nil {
		return err
	}

	return c.bindLabel(afterL)
}

// --- Constructors ---

func (c *Compiler) compileSuperCtor(s *ast.InvokeSuperCtor) errors.FlybytesError {
	if !c.method.Sig.IsConstructor() {
		return c.scopeErrorf(0, "super constructor call outside a constructor")
	}
	if !c.atCtorHead {
		return c.scopeErrorf(0, "super constructor call must be one of the first statements of the constructor")
	}
	sym, err := c.symbols.Resolve("this")
	if err != nil {
		return c.scopeErrorf(0, "%v", err)
	}
	c.emitLoad(sym.Type, sym.Slot)
	for _, a := range s.Args {
		if _, err := c.compileExp(a); err != nil {
			return err
		}
	}
	super := s.Super
	if super == nil {
		super = types.Object
	}
	return c.emitInvoke(bytecode.OpInvokeSpecial, methodRef(super, s.Sig), s.Sig, true)
}

// --- Raw spans ---

// compileAsm inlines a raw instruction span verbatim, merging its declared
// net stack effect into the surrounding tracking.
func (c *Compiler) compileAsm(s *ast.Asm) errors.FlybytesError {
	for _, ins := range s.Instrs {
		c.emit(ins)
	}
	for i := 0; i < s.Pops; i++ {
		if _, err := c.pop(); err != nil {
			return c.stackErrorf(0, "raw instruction span underflows the surrounding stack")
		}
	}
	for _, t := range s.Pushes {
		c.stack.push(t)
	}
	return nil
}

// --- Flow contexts and cleanups ---

func (c *Compiler) pushContext(label string, brk, cont bytecode.LabelID) {
	c.contexts = append(c.contexts, &flowContext{
		label:         label,
		breakLabel:    brk,
		continueLabel: cont,
		cleanupDepth:  len(c.cleanups),
	})
}

func (c *Compiler) popContext() {
	c.contexts = c.contexts[:len(c.contexts)-1]
}

// findBreak resolves a break target by walking the enclosing construct
// stack from innermost outward.
func (c *Compiler) findBreak(label string) (*flowContext, errors.FlybytesError) {
	for i := len(c.contexts) - 1; i >= 0; i-- {
		ctx := c.contexts[i]
		if label == "" || ctx.label == label {
			return ctx, nil
		}
	}
	if label == "" {
		return nil, c.scopeErrorf(0, "break outside of a breakable construct")
	}
	return nil, c.scopeErrorf(0, "unresolved label '%s'", label)
}

func (c *Compiler) findContinue(label string) (*flowContext, errors.FlybytesError) {
	for i := len(c.contexts) - 1; i >= 0; i-- {
		ctx := c.contexts[i]
		if ctx.continueLabel == bytecode.NoLabel {
			if label != "" && ctx.label == label {
				return nil, c.scopeErrorf(0, "label '%s' does not name a loop", label)
			}
			continue
		}
		if label == "" || ctx.label == label {
			return ctx, nil
		}
	}
	if label == "" {
		return nil, c.scopeErrorf(0, "continue outside of a loop")
	}
	return nil, c.scopeErrorf(0, "unresolved label '%s'", label)
}

func (c *Compiler) pushCleanup(cl cleanup) {
	c.cleanups = append(c.cleanups, cl)
}

func (c *Compiler) popCleanup() {
	c.cleanups = c.cleanups[:len(c.cleanups)-1]
}

// runCleanups replays the pending cleanups innermost-first, down to (and
// excluding) depth. While a finally body runs, the cleanups above it are
// already done and the list is truncated so its own transfers cannot
// re-enter them.
func (c *Compiler) runCleanups(depth int) errors.FlybytesError {
	saved := c.cleanups
	defer func() { c.cleanups = saved }()
	for i := len(saved) - 1; i >= depth; i-- {
		c.cleanups = saved[:i]
		if err := saved[i].run(c); err != nil {
			return err
		}
	}
	return nil
}
