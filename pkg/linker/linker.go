// Package linker resolves dynamic call sites: it infers the full bootstrap
// method signature implied by a call site's constant arguments, checks
// independently-declared bootstrap methods against that inference, and
// produces the resolved descriptor attached to INVOKEDYNAMIC instructions.
package linker

import (
	"fmt"

	"github.com/bys1/flybytes/pkg/ast"
	"github.com/bys1/flybytes/pkg/bytecode"
	"github.com/bys1/flybytes/pkg/errors"
	"github.com/bys1/flybytes/pkg/types"
)

// The three mandatory leading parameters of every bootstrap method.
var (
	lookupType     = types.Reference("java/lang/invoke/MethodHandles$Lookup")
	methodTypeType = types.Reference("java/lang/invoke/MethodType")
	callSiteType   = types.Reference("java/lang/invoke/CallSite")
)

// InferBootstrapSignature computes the full bootstrap method signature for
// a call site: (lookup, invokedName, invokedType) followed by exactly the
// types implied by the constant extra arguments, in declaration order.
func InferBootstrapSignature(cs *ast.CallSite) types.Signature {
	params := make([]types.Type, 0, 3+len(cs.Extra))
	params = append(params, lookupType, types.String, methodTypeType)
	for _, arg := range cs.Extra {
		params = append(params, arg.ArgType())
	}
	return types.MethodSig(callSiteType, cs.BootstrapName, params...)
}

// StubBootstrapMethod generates a bootstrap method whose formal parameters
// match the inferred signature exactly, so a hand-written or generated body
// is guaranteed shape-compatible with the call sites that name it. The stub
// body returns null; the caller fills it in.
func StubBootstrapMethod(cs *ast.CallSite) ast.Method {
	sig := InferBootstrapSignature(cs)
	params := make([]ast.Formal, len(sig.Params))
	for i, t := range sig.Params {
		name := fmt.Sprintf("arg%d", i-3)
		switch i {
		case 0:
			name = "lookup"
		case 1:
			name = "name"
		case 2:
			name = "type"
		}
		params[i] = ast.Formal{Type: t, Name: name}
	}
	return ast.Method{
		Sig:       sig,
		Modifiers: ast.Public | ast.Static,
		Params:    params,
		Body: []ast.Stat{
			&ast.Return{Value: &ast.Null{}},
		},
	}
}

// CheckBootstrap verifies an independently supplied bootstrap method
// signature against the signature inferred from the call site. Mismatches
// are linkage errors, detected eagerly rather than at dynamic-call time.
func CheckBootstrap(cs *ast.CallSite, declared types.Signature) errors.FlybytesError {
	inferred := InferBootstrapSignature(cs)
	if !inferred.Equals(declared) {
		return &errors.LinkError{
			Position: errors.Position{Method: cs.BootstrapName},
			Msg: fmt.Sprintf("bootstrap signature mismatch: call site implies %s, declared %s",
				inferred, declared),
		}
	}
	return nil
}

// Resolve validates a call site and builds the resolved descriptor an
// INVOKEDYNAMIC instruction carries: bootstrap reference, invoked name and
// descriptor, and the flattened constant extra arguments.
func Resolve(cs *ast.CallSite, invoked types.Signature) (*bytecode.CallSiteRef, errors.FlybytesError) {
	if cs == nil {
		return nil, &errors.LinkError{Msg: "invokedynamic without a call-site descriptor"}
	}
	if cs.BootstrapOwner == nil || cs.BootstrapName == "" {
		return nil, &errors.LinkError{
			Position: errors.Position{Method: cs.Name},
			Msg:      "call site lacks a bootstrap method reference",
		}
	}
	bsm := InferBootstrapSignature(cs)
	extra := make([]any, len(cs.Extra))
	for i, arg := range cs.Extra {
		extra[i] = flatten(arg)
	}
	return &bytecode.CallSiteRef{
		Bootstrap: bytecode.SymbolRef{
			Owner: cs.BootstrapOwner.Name,
			Name:  cs.BootstrapName,
			Desc:  bsm.Descriptor(),
		},
		Name:  cs.Name,
		Desc:  invoked.Descriptor(),
		Extra: extra,
	}, nil
}

// flatten maps a constant argument to the emitter-facing representation.
func flatten(arg ast.ConstArg) any {
	switch a := arg.(type) {
	case ast.StringArg:
		return a.Value
	case ast.IntArg:
		return int32(a.Value)
	case ast.LongArg:
		return a.Value
	case ast.FloatArg:
		return a.Value
	case ast.DoubleArg:
		return a.Value
	case ast.ClassArg:
		return bytecode.SymbolRef{Owner: a.Value.Descriptor()}
	case ast.MethodTypeArg:
		return bytecode.SymbolRef{Owner: a.Sig.Descriptor()}
	case ast.HandleArg:
		return bytecode.SymbolRef{Owner: a.Owner.Name, Name: a.Sig.Name, Desc: a.Sig.Descriptor()}
	default:
		// The ConstArg vocabulary is closed; a new variant must be handled here.
		panic(fmt.Sprintf("linker: unhandled constant argument %T", arg))
	}
}
