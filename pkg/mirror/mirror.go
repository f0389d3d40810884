// Package mirror executes compiled classes directly on their symbolic
// instruction bundles. It exists for tests: end-to-end assertions on
// observable behavior (return values, field contents, exception and monitor
// paths) instead of golden instruction dumps, so encoding choices can change
// without rewriting the suite.
package mirror

import (
	"fmt"

	"github.com/bys1/flybytes/pkg/ast"
	"github.com/bys1/flybytes/pkg/driver"
	"github.com/bys1/flybytes/pkg/types"
)

// Universe is a set of compiled classes that can call into each other, plus
// their static state. Static initializers run when the universe is built, in
// the order the classes were given.
type Universe struct {
	classes map[string]*driver.CompiledClass
	statics map[string]map[string]any
}

// NewUniverse registers the given classes, seeds their static fields with
// constants and zero values, and runs each <clinit> in order.
func NewUniverse(classes ...*driver.CompiledClass) (*Universe, error) {
	u := &Universe{
		classes: make(map[string]*driver.CompiledClass),
		statics: make(map[string]map[string]any),
	}
	for _, cc := range classes {
		name := cc.Class.Type.Name
		u.classes[name] = cc
		statics := make(map[string]any)
		for _, f := range cc.Class.Fields {
			if !f.Modifiers.Has(ast.Static) {
				continue
			}
			if c, ok := cc.Constants[f.Name]; ok {
				v, err := normalize(f.Type, c)
				if err != nil {
					return nil, err
				}
				statics[f.Name] = v
				continue
			}
			statics[f.Name] = zeroValue(f.Type)
		}
		u.statics[name] = statics
	}
	for _, cc := range classes {
		cm := cc.Methods[driver.MethodKey(types.MethodSig(types.Void, "<clinit>"))]
		if cm == nil {
			continue
		}
		if _, exc, err := u.run(cm, nil, nil); err != nil {
			return nil, err
		} else if exc != nil {
			return nil, fmt.Errorf("mirror: exception in static initializer of %s: %s",
				cc.Class.Type.Name, valueClass(exc))
		}
	}
	return u, nil
}

// Class returns a mirror on the named class.
func (u *Universe) Class(name string) (*ClassMirror, error) {
	cc, ok := u.classes[name]
	if !ok {
		return nil, fmt.Errorf("mirror: unknown class %s", name)
	}
	return &ClassMirror{u: u, cc: cc}, nil
}

// ClassMirror exposes the static surface of one compiled class.
type ClassMirror struct {
	u  *Universe
	cc *driver.CompiledClass
}

// InvokeStatic runs the static method with the given name and arity.
// A throwable escaping the method is reported as an error.
func (m *ClassMirror) InvokeStatic(name string, args ...any) (any, error) {
	cm, err := m.findMethod(name, len(args), true)
	if err != nil {
		return nil, err
	}
	return m.u.invoke(cm, nil, args)
}

// GetStatic reads a static field.
func (m *ClassMirror) GetStatic(name string) (any, error) {
	statics := m.u.statics[m.cc.Class.Type.Name]
	v, ok := statics[name]
	if !ok {
		return nil, fmt.Errorf("mirror: %s has no static field %s", m.cc.Class.Type.Name, name)
	}
	return v, nil
}

// NewInstance allocates an instance and runs the constructor matching the
// argument count.
func (m *ClassMirror) NewInstance(args ...any) (*ObjectMirror, error) {
	cm, err := m.findMethod(types.ConstructorName, len(args), false)
	if err != nil {
		return nil, err
	}
	obj := m.u.allocate(m.cc.Class.Type.Name)
	if _, err := m.u.invoke(cm, obj, args); err != nil {
		return nil, err
	}
	return &ObjectMirror{u: m.u, obj: obj}, nil
}

func (m *ClassMirror) findMethod(name string, arity int, static bool) (*driver.CompiledMethod, error) {
	for _, cm := range m.cc.Methods {
		if cm.Method.Sig.Name == name &&
			len(cm.Method.Sig.Params) == arity &&
			cm.Method.IsStatic() == static {
			return cm, nil
		}
	}
	return nil, fmt.Errorf("mirror: %s has no method %s/%d", m.cc.Class.Type.Name, name, arity)
}

// ObjectMirror exposes one mirrored instance.
type ObjectMirror struct {
	u   *Universe
	obj *Object
}

// Invoke runs the instance method with the given name and arity.
func (o *ObjectMirror) Invoke(name string, args ...any) (any, error) {
	cc, ok := o.u.classes[o.obj.Class]
	if !ok {
		return nil, fmt.Errorf("mirror: unknown class %s", o.obj.Class)
	}
	m := &ClassMirror{u: o.u, cc: cc}
	cm, err := m.findMethod(name, len(args), false)
	if err != nil {
		return nil, err
	}
	return o.u.invoke(cm, o.obj, args)
}

// GetField reads an instance field.
func (o *ObjectMirror) GetField(name string) (any, error) {
	v, ok := o.obj.Fields[name]
	if !ok {
		return nil, fmt.Errorf("mirror: %s has no field %s", o.obj.Class, name)
	}
	return v, nil
}

// Unwrap returns the raw mirrored object, usable as an argument value.
func (o *ObjectMirror) Unwrap() *Object { return o.obj }

// AsArray wraps an array value returned by an invocation or read from a
// field.
func AsArray(v any) (*ArrayMirror, error) {
	arr, ok := v.(*Array)
	if !ok {
		return nil, fmt.Errorf("mirror: %T is not an array", v)
	}
	return &ArrayMirror{arr: arr}, nil
}

// ArrayMirror exposes one mirrored array.
type ArrayMirror struct {
	arr *Array
}

// Length returns the array length.
func (a *ArrayMirror) Length() int { return len(a.arr.Elems) }

// Load reads the element at index i.
func (a *ArrayMirror) Load(i int) (any, error) {
	if i < 0 || i >= len(a.arr.Elems) {
		return nil, fmt.Errorf("mirror: index %d out of bounds for length %d", i, len(a.arr.Elems))
	}
	return a.arr.Elems[i], nil
}

// Locks returns the current monitor entry count, for lock-balance checks.
func (o *ObjectMirror) Locks() int { return o.obj.locks }

// allocate builds an instance with all declared fields zeroed. Classes
// outside the universe (library throwables in tests) get an empty field map.
func (u *Universe) allocate(class string) *Object {
	obj := newObject(class)
	if cc, ok := u.classes[class]; ok {
		for _, f := range cc.Class.Fields {
			if !f.Modifiers.Has(ast.Static) {
				obj.Fields[f.Name] = zeroValue(f.Type)
			}
		}
	}
	return obj
}

// invoke lays out the frame and runs the method, translating an escaping
// throwable into an error.
func (u *Universe) invoke(cm *driver.CompiledMethod, recv *Object, args []any) (any, error) {
	if len(args) != len(cm.Method.Sig.Params) {
		return nil, fmt.Errorf("mirror: %s expects %d arguments, got %d",
			cm.Method.Sig.Name, len(cm.Method.Sig.Params), len(args))
	}
	var r any
	if recv != nil {
		r = recv
	}
	res, exc, err := u.run(cm, r, args)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, fmt.Errorf("mirror: unhandled exception %s", valueClass(exc))
	}
	return res, nil
}
