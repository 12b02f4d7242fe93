package starlark

import "go.starlark.net/syntax"

// FileOptions are the dialect options used for every compiled document.
func FileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
}

// TopLevelBindings returns the identifiers bound at module level by
// assignments, definitions and top-level control flow, in source order.
// The first binding of each name wins. Function bodies and load
// statements are not included.
func TopLevelBindings(stmts []syntax.Stmt) []*syntax.Ident {
	var out []*syntax.Ident
	seen := make(map[string]bool)
	add := func(id *syntax.Ident) {
		if !seen[id.Name] {
			seen[id.Name] = true
			out = append(out, id)
		}
	}

	var visit func(stmts []syntax.Stmt)
	visit = func(stmts []syntax.Stmt) {
		for _, stmt := range stmts {
			switch s := stmt.(type) {
			case *syntax.DefStmt:
				add(s.Name)
			case *syntax.AssignStmt:
				bindTargets(s.LHS, add)
			case *syntax.ForStmt:
				bindTargets(s.Vars, add)
				visit(s.Body)
			case *syntax.WhileStmt:
				visit(s.Body)
			case *syntax.IfStmt:
				visit(s.True)
				visit(s.False)
			}
		}
	}
	visit(stmts)
	return out
}

func bindTargets(e syntax.Expr, add func(*syntax.Ident)) {
	switch x := e.(type) {
	case *syntax.Ident:
		add(x)
	case *syntax.TupleExpr:
		for _, elem := range x.List {
			bindTargets(elem, add)
		}
	case *syntax.ListExpr:
		for _, elem := range x.List {
			bindTargets(elem, add)
		}
	case *syntax.ParenExpr:
		bindTargets(x.X, add)
	}
}
