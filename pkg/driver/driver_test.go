package driver_test

import (
	"strings"
	"testing"

	"github.com/bys1/flybytes/pkg/ast"
	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/compiler"
	"github.com/bys1/flybytes/pkg/driver"
	"github.com/bys1/flybytes/pkg/mirror"
	"github.com/bys1/flybytes/pkg/types"
)

func iconst(v int) ast.Exp { return &ast.Const{Type: types.Int, Value: v} }

func mustCompile(t *testing.T, class *ast.Class) *driver.CompiledClass {
	t.Helper()
	cc, errs := driver.Compile(class, compiler.Options{})
	if len(errs) > 0 {
		t.Fatalf("compile: %v", errs[0])
	}
	return cc
}

func TestDefaultConstructorSynthesized(t *testing.T) {
	cc := mustCompile(t, &ast.Class{
		Kind: ast.ClassDecl,
		Type: types.Reference("test/Plain"),
	})
	if cc.Method(types.ConstructorSig()) == nil {
		t.Fatal("no default constructor")
	}
	u, err := mirror.NewUniverse(cc)
	if err != nil {
		t.Fatal(err)
	}
	cm, _ := u.Class("test/Plain")
	if _, err := cm.NewInstance(); err != nil {
		t.Fatalf("default constructor: %v", err)
	}
}

func TestInstanceFieldInitializersRunInConstructors(t *testing.T) {
	counter := types.Reference("test/Counter")
	cc := mustCompile(t, &ast.Class{
		Kind: ast.ClassDecl,
		Type: counter,
		Fields: []ast.Field{
			{Type: types.Int, Name: "count", Init: iconst(5)},
		},
		Methods: []ast.Method{
			{
				Sig:       types.ConstructorSig(types.Int),
				Modifiers: ast.Public,
				Params:    []ast.Formal{{Type: types.Int, Name: "extra"}},
				Body: []ast.Stat{
					&ast.InvokeSuperCtor{Sig: types.ConstructorSig()},
					// Runs after the injected initializer, so it sees count=5.
					&ast.PutField{Owner: counter, Recv: &ast.This{}, Type: types.Int, Name: "count",
						Value: &ast.Binary{Op: ast.AddOp,
							Lhs: &ast.GetField{Owner: counter, Recv: &ast.This{}, Type: types.Int, Name: "count"},
							Rhs: &ast.Local{Name: "extra"}}},
					&ast.Return{},
				},
			},
		},
	})
	u, err := mirror.NewUniverse(cc)
	if err != nil {
		t.Fatal(err)
	}
	cm, _ := u.Class("test/Counter")
	obj, err := cm.NewInstance(int32(3))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := obj.GetField("count"); got != int32(8) {
		t.Errorf("count = %v, want 8", got)
	}
}

func TestStaticInitializerSynthesized(t *testing.T) {
	cc := mustCompile(t, &ast.Class{
		Kind: ast.ClassDecl,
		Type: types.Reference("test/Init"),
		Fields: []ast.Field{
			// Non-constant static initializer needs <clinit>.
			{Type: types.Int, Name: "computed", Modifiers: ast.Static,
				Init: &ast.Binary{Op: ast.MulOp, Lhs: iconst(6), Rhs: iconst(7)}},
		},
	})
	if cc.Method(types.MethodSig(types.Void, "<clinit>")) == nil {
		t.Fatal("no <clinit> synthesized")
	}
	u, err := mirror.NewUniverse(cc)
	if err != nil {
		t.Fatal(err)
	}
	cm, _ := u.Class("test/Init")
	if got, _ := cm.GetStatic("computed"); got != int32(42) {
		t.Errorf("computed = %v, want 42", got)
	}
}

func TestConstantFieldsBypassClinit(t *testing.T) {
	cc := mustCompile(t, &ast.Class{
		Kind: ast.ClassDecl,
		Type: types.Reference("test/Consts"),
		Fields: []ast.Field{
			{Type: types.Int, Name: "LIMIT", Modifiers: ast.Static | ast.Final, Init: iconst(100)},
			{Type: types.String, Name: "NAME", Modifiers: ast.Static | ast.Final,
				Init: &ast.Const{Type: types.String, Value: "flybytes"}},
		},
	})
	if cc.Method(types.MethodSig(types.Void, "<clinit>")) != nil {
		t.Error("constant-only statics must not synthesize <clinit>")
	}
	if cc.Constants["LIMIT"] != 100 {
		t.Errorf("LIMIT = %v, want 100", cc.Constants["LIMIT"])
	}
	if cc.Constants["NAME"] != "flybytes" {
		t.Errorf("NAME = %v, want flybytes", cc.Constants["NAME"])
	}
}

func TestInterfaceInvariants(t *testing.T) {
	_, errs := driver.Compile(&ast.Class{
		Kind: ast.InterfaceDecl,
		Type: types.Reference("test/Bad"),
		Fields: []ast.Field{
			// Not static final, and not a constant initializer.
			{Type: types.Int, Name: "x",
				Init: &ast.Binary{Op: ast.AddOp, Lhs: iconst(1), Rhs: iconst(2)}},
		},
		Methods: []ast.Method{
			{Sig: types.ConstructorSig(), Modifiers: ast.Public,
				Body: []ast.Stat{&ast.Return{}}},
		},
	}, compiler.Options{})
	if len(errs) != 3 {
		t.Fatalf("errors = %d (%v), want 3", len(errs), errs)
	}
	var msgs []string
	for _, e := range errs {
		if e.Kind() != "Scope" {
			t.Errorf("kind = %s, want Scope", e.Kind())
		}
		msgs = append(msgs, e.Message())
	}
	all := strings.Join(msgs, "; ")
	for _, want := range []string{"constructor", "static final", "constant initializer"} {
		if !strings.Contains(all, want) {
			t.Errorf("errors %q missing %q", all, want)
		}
	}
}

func TestAbstractMethodsSkipped(t *testing.T) {
	cc := mustCompile(t, &ast.Class{
		Kind: ast.InterfaceDecl,
		Type: types.Reference("test/Iface"),
		Methods: []ast.Method{
			{Sig: types.MethodSig(types.Int, "size"), Modifiers: ast.Public | ast.Abstract},
		},
	})
	if cc.Method(types.MethodSig(types.Int, "size")) != nil {
		t.Error("abstract method got code")
	}
}

func TestSiblingMethodsSurviveFailure(t *testing.T) {
	cc, errs := driver.Compile(&ast.Class{
		Kind: ast.ClassDecl,
		Type: types.Reference("test/Partial"),
		Methods: []ast.Method{
			{Sig: types.MethodSig(types.Int, "broken"), Modifiers: ast.Static,
				Body: []ast.Stat{}}, // falls off the end
			{Sig: types.MethodSig(types.Int, "fine"), Modifiers: ast.Static,
				Body: []ast.Stat{&ast.Return{Value: iconst(1)}}},
		},
	}, compiler.Options{})
	if len(errs) != 1 {
		t.Fatalf("errors = %d, want 1", len(errs))
	}
	if cc.Method(types.MethodSig(types.Int, "broken")) != nil {
		t.Error("failed method produced code")
	}
	if cc.Method(types.MethodSig(types.Int, "fine")) == nil {
		t.Error("sibling method missing")
	}
}

func TestDuplicateMembersRejected(t *testing.T) {
	_, errs := driver.Compile(&ast.Class{
		Kind: ast.ClassDecl,
		Type: types.Reference("test/Dup"),
		Fields: []ast.Field{
			{Type: types.Int, Name: "x"},
			{Type: types.Long, Name: "x"},
		},
		Methods: []ast.Method{
			{Sig: types.MethodSig(types.Void, "f"), Modifiers: ast.Static,
				Body: []ast.Stat{&ast.Return{}}},
			{Sig: types.MethodSig(types.Void, "f"), Modifiers: ast.Static,
				Body: []ast.Stat{&ast.Return{}}},
		},
	}, compiler.Options{})
	if len(errs) != 2 {
		t.Fatalf("errors = %d (%v), want 2", len(errs), errs)
	}
}

func TestRawBodyPassthrough(t *testing.T) {
	cc := mustCompile(t, &ast.Class{
		Kind: ast.ClassDecl,
		Type: types.Reference("test/Raw"),
		Methods: []ast.Method{
			{
				Sig:       types.MethodSig(types.Int, "seven"),
				Modifiers: ast.Public | ast.Static,
				Raw: &ast.RawBody{
					Instrs: []bytecode.Instruction{
						{Op: bytecode.OpConst, Type: types.Int, Value: 7},
						{Op: bytecode.OpReturn, Type: types.Int},
					},
					MaxStack: 1,
				},
			},
		},
	})
	u, err := mirror.NewUniverse(cc)
	if err != nil {
		t.Fatal(err)
	}
	cm, _ := u.Class("test/Raw")
	if got, _ := cm.InvokeStatic("seven"); got != int32(7) {
		t.Errorf("seven() = %v, want 7", got)
	}
}

func TestCompileParallel(t *testing.T) {
	classes := make([]*ast.Class, 8)
	for i := range classes {
		classes[i] = &ast.Class{
			Kind: ast.ClassDecl,
			Type: types.Reference("test/P" + string(rune('0'+i))),
			Methods: []ast.Method{
				{Sig: types.MethodSig(types.Int, "id"), Modifiers: ast.Static,
					Body: []ast.Stat{&ast.Return{Value: iconst(i)}}},
			},
		}
	}
	compiled, errs := driver.CompileParallel(classes, compiler.Options{})
	if len(errs) > 0 {
		t.Fatalf("errors: %v", errs)
	}
	for i, cc := range compiled {
		if cc == nil || cc.Method(types.MethodSig(types.Int, "id")) == nil {
			t.Fatalf("class %d missing", i)
		}
	}
}
