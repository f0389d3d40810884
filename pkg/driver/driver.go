// Package driver compiles whole classes: it validates class-level
// invariants, places field initializers (constant pool, <clinit>, or
// constructor prologues), synthesizes the members a complete class needs,
// and lowers every concrete method through the per-method compiler.
package driver

import (
	"sync"

	"github.com/bys1/flybytes/pkg/ast"
	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/compiler"
	"github.com/bys1/flybytes/pkg/errors"
	"github.com/bys1/flybytes/pkg/types"
)

// CompiledMethod pairs a (possibly synthesized or rewritten) method with its
// lowered instruction bundle.
type CompiledMethod struct {
	Method *ast.Method
	Code   *bytecode.Code
}

// CompiledClass is the output of compiling one class: the lowered methods
// keyed by name+descriptor, plus the static final constants that bypass
// <clinit> entirely.
type CompiledClass struct {
	Class     *ast.Class
	Methods   map[string]*CompiledMethod
	Constants map[string]any
}

// MethodKey is the lookup key of a method within its class.
func MethodKey(sig types.Signature) string {
	return sig.Name + sig.Descriptor()
}

// Method returns the compiled method with the given signature, or nil.
func (cc *CompiledClass) Method(sig types.Signature) *CompiledMethod {
	return cc.Methods[MethodKey(sig)]
}

// Compile lowers every concrete method of class. Methods fail independently:
// one broken body does not stop its siblings, so all errors of a class
// surface in a single run. The returned class omits the methods that failed.
func Compile(class *ast.Class, opts compiler.Options) (*CompiledClass, []errors.FlybytesError) {
	errs := validate(class)
	if len(errs) > 0 {
		return nil, errs
	}

	cc := &CompiledClass{
		Class:     class,
		Methods:   make(map[string]*CompiledMethod),
		Constants: make(map[string]any),
	}

	methods, ctorInits := prepare(class, cc.Constants)
	for i := range methods {
		m := &methods[i]
		if m.IsAbstract() {
			continue
		}
		if m.Sig.IsConstructor() && len(ctorInits) > 0 {
			m = injectFieldInits(m, ctorInits)
		}
		code, err := compiler.NewCompiler(class.Type.Name, m, opts).Compile()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cc.Methods[MethodKey(m.Sig)] = &CompiledMethod{Method: m, Code: code}
	}
	return cc, errs
}

// CompileParallel compiles a batch of classes concurrently, one goroutine
// per class. Per-method compilers share no mutable state, so the only
// synchronization needed is collecting the results.
func CompileParallel(classes []*ast.Class, opts compiler.Options) ([]*CompiledClass, []errors.FlybytesError) {
	out := make([]*CompiledClass, len(classes))
	errLists := make([][]errors.FlybytesError, len(classes))
	var wg sync.WaitGroup
	for i, class := range classes {
		wg.Add(1)
		go func(i int, class *ast.Class) {
			defer wg.Done()
			out[i], errLists[i] = Compile(class, opts)
		}(i, class)
	}
	wg.Wait()

	var errs []errors.FlybytesError
	for _, l := range errLists {
		errs = append(errs, l...)
	}
	return out, errs
}

// --- Class invariants ---

func validate(class *ast.Class) []errors.FlybytesError {
	var errs []errors.FlybytesError
	report := func(format string, args ...any) {
		errs = append(errs, errors.Scopef(errors.Position{Method: class.Type.Name}, format, args...))
	}

	seen := make(map[string]bool)
	for _, m := range class.Methods {
		key := MethodKey(m.Sig)
		if seen[key] {
			report("duplicate method '%s'", m.Sig)
		}
		seen[key] = true
		if class.Kind == ast.InterfaceDecl && m.Sig.IsConstructor() {
			report("interface cannot declare a constructor")
		}
	}

	fields := make(map[string]bool)
	for _, f := range class.Fields {
		if fields[f.Name] {
			report("duplicate field '%s'", f.Name)
		}
		fields[f.Name] = true
		if class.Kind == ast.InterfaceDecl {
			if !f.Modifiers.Has(ast.Static) || !f.Modifiers.Has(ast.Final) {
				report("interface field '%s' must be static final", f.Name)
			}
			if !isConstInit(f) {
				report("interface field '%s' requires a constant initializer", f.Name)
			}
		}
	}
	return errs
}

func isConstInit(f ast.Field) bool {
	switch f.Init.(type) {
	case *ast.Const, *ast.True, *ast.False, *ast.Null:
		return true
	}
	return false
}

// --- Member placement and synthesis ---

// prepare sorts field initializers into their homes (the constant map, a
// synthesized <clinit>, or constructor prologues) and fills in the members
// a class is entitled to: a default constructor when none is declared, and
// <clinit> when a static initializer needs code.
func prepare(class *ast.Class, constants map[string]any) (methods []ast.Method, ctorInits []ast.Stat) {
	var clinitBody []ast.Stat
	for _, f := range class.Fields {
		if f.Init == nil {
			continue
		}
		if f.Modifiers.Has(ast.Static) {
			// static final with a constant initializer is pure data.
			if f.Modifiers.Has(ast.Final) && isConstInit(f) {
				constants[f.Name] = constValue(f.Init)
				continue
			}
			clinitBody = append(clinitBody, &ast.PutStatic{
				Owner: class.Type,
				Type:  f.Type,
				Name:  f.Name,
				Value: f.Init,
			})
			continue
		}
		ctorInits = append(ctorInits, &ast.PutField{
			Owner: class.Type,
			Recv:  &ast.This{},
			Type:  f.Type,
			Name:  f.Name,
			Value: f.Init,
		})
	}

	methods = append(methods, class.Methods...)
	if class.Kind == ast.ClassDecl && !hasConstructor(methods) {
		methods = append(methods, defaultConstructor(class))
	}
	if len(clinitBody) > 0 {
		methods = append(methods, ast.Method{
			Sig:       types.MethodSig(types.Void, "<clinit>"),
			Modifiers: ast.Static,
			Body:      append(clinitBody, &ast.Return{}),
		})
	}
	return methods, ctorInits
}

func constValue(e ast.Exp) any {
	switch e := e.(type) {
	case *ast.Const:
		return e.Value
	case *ast.True:
		return true
	case *ast.False:
		return false
	case *ast.Null:
		return nil
	}
	panic("driver: non-constant initializer")
}

func hasConstructor(methods []ast.Method) bool {
	for _, m := range methods {
		if m.Sig.IsConstructor() {
			return true
		}
	}
	return false
}

func defaultConstructor(class *ast.Class) ast.Method {
	return ast.Method{
		Sig:       types.ConstructorSig(),
		Modifiers: ast.Public,
		Body: []ast.Stat{
			&ast.InvokeSuperCtor{Super: class.Super, Sig: types.ConstructorSig()},
			&ast.Return{},
		},
	}
}

// injectFieldInits rewrites a constructor so instance field initializers run
// right after the leading super-constructor chain and before the rest of the
// body.
func injectFieldInits(m *ast.Method, inits []ast.Stat) *ast.Method {
	head := 0
	for head < len(m.Body) {
		if _, ok := m.Body[head].(*ast.InvokeSuperCtor); !ok {
			break
		}
		head++
	}
	body := make([]ast.Stat, 0, len(m.Body)+len(inits))
	body = append(body, m.Body[:head]...)
	body = append(body, inits...)
	body = append(body, m.Body[head:]...)

	rewritten := *m
	rewritten.Body = body
	return &rewritten
}
