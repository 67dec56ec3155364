// Implements a static analysis tool that checks for network calls which
// cannot be bounded by a timeout:
// 1. http.Get/Head/Post/PostForm and any use of http.DefaultClient
// 2. http.Client literals without a Timeout field
// 3. net.Dial
package main

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

const (
	httpPkg = "net/http"
	netPkg  = "net"
)

// Analyzer reports network calls without a deadline.
var Analyzer = &analysis.Analyzer{
	Name: "boundedio",
	Doc:  "reports http and net calls that cannot carry a timeout",
	Run:  run,
	Requires: []*analysis.Analyzer{
		inspect.Analyzer,
	},
}

// unbounded lists package level functions that always use a client or
// dialer without a timeout.
var unbounded = map[string]map[string]bool{
	httpPkg: {"Get": true, "Head": true, "Post": true, "PostForm": true},
	netPkg:  {"Dial": true},
}

func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.CallExpr)(nil),
		(*ast.SelectorExpr)(nil),
		(*ast.CompositeLit)(nil),
	}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		switch node := n.(type) {
		case *ast.CallExpr:
			fn, ok := typeutil.Callee(pass.TypesInfo, node).(*types.Func)
			if !ok || fn.Pkg() == nil {
				return
			}
			if sig, ok := fn.Type().(*types.Signature); !ok || sig.Recv() != nil {
				return
			}
			if unbounded[fn.Pkg().Path()][fn.Name()] {
				pass.Reportf(node.Pos(), "%s.%s has no timeout, use a client or dialer with one", fn.Pkg().Name(), fn.Name())
			}
		case *ast.SelectorExpr:
			v, ok := pass.TypesInfo.Uses[node.Sel].(*types.Var)
			if ok && v.Pkg() != nil && v.Pkg().Path() == httpPkg && v.Name() == "DefaultClient" {
				pass.Reportf(node.Pos(), "http.DefaultClient has no timeout")
			}
		case *ast.CompositeLit:
			if isHTTPClient(pass.TypesInfo.TypeOf(node)) && !hasField(node, "Timeout") {
				pass.Reportf(node.Pos(), "http.Client without Timeout")
			}
		}
	})

	return nil, nil
}

func isHTTPClient(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == httpPkg && obj.Name() == "Client"
}

func hasField(lit *ast.CompositeLit, name string) bool {
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		if ident, ok := kv.Key.(*ast.Ident); ok && ident.Name == name {
			return true
		}
	}
	return false
}
