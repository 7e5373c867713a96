package ast

// Walk traverses the tree rooted at n in depth-first order, calling f for
// each node. If f returns false the node's children are skipped.
func Walk(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Program:
		for _, s := range n.Body {
			Walk(s, f)
		}
	case *VarDecl:
		for _, d := range n.Decls {
			Walk(d.Target, f)
			if d.Init != nil {
				Walk(d.Init, f)
			}
		}
	case *ExprStmt:
		Walk(n.X, f)
	case *BlockStmt:
		for _, s := range n.Body {
			Walk(s, f)
		}
	case *IfStmt:
		Walk(n.Cond, f)
		Walk(n.Then, f)
		if n.Else != nil {
			Walk(n.Else, f)
		}
	case *ForOfStmt:
		Walk(n.Target, f)
		Walk(n.Iterable, f)
		Walk(n.Body, f)
	case *ForStmt:
		if n.Init != nil {
			Walk(n.Init, f)
		}
		if n.Cond != nil {
			Walk(n.Cond, f)
		}
		if n.Post != nil {
			Walk(n.Post, f)
		}
		Walk(n.Body, f)
	case *WhileStmt:
		Walk(n.Cond, f)
		Walk(n.Body, f)
	case *DoWhileStmt:
		Walk(n.Body, f)
		Walk(n.Cond, f)
	case *ReturnStmt:
		if n.Value != nil {
			Walk(n.Value, f)
		}
	case *ThrowStmt:
		Walk(n.Value, f)
	case *FuncDecl:
		Walk(n.Fn, f)
	case *ArrayLit:
		for _, el := range n.Elems {
			Walk(el, f)
		}
	case *ObjectLit:
		for _, p := range n.Props {
			Walk(p.Value, f)
		}
	case *FunctionLit:
		for _, p := range n.Params {
			Walk(p, f)
		}
		if n.Body != nil {
			Walk(n.Body, f)
		}
		if n.ExprBody != nil {
			Walk(n.ExprBody, f)
		}
	case *CallExpr:
		Walk(n.Callee, f)
		for _, a := range n.Args {
			Walk(a, f)
		}
	case *MemberExpr:
		Walk(n.Obj, f)
	case *IndexExpr:
		Walk(n.Obj, f)
		Walk(n.Index, f)
	case *UnaryExpr:
		Walk(n.X, f)
	case *BinaryExpr:
		Walk(n.L, f)
		Walk(n.R, f)
	case *AssignExpr:
		Walk(n.Target, f)
		Walk(n.Value, f)
	case *CondExpr:
		Walk(n.Cond, f)
		Walk(n.Then, f)
		Walk(n.Else, f)
	case *AwaitExpr:
		Walk(n.X, f)
	case *AssignPattern:
		Walk(n.Target, f)
		Walk(n.Default, f)
	case *ObjectPattern:
		for _, p := range n.Props {
			Walk(p.Value, f)
			if p.Default != nil {
				Walk(p.Default, f)
			}
		}
		if n.Rest != nil {
			Walk(n.Rest, f)
		}
	case *ArrayPattern:
		for _, el := range n.Elems {
			if el != nil {
				Walk(el, f)
			}
		}
		if n.Rest != nil {
			Walk(n.Rest, f)
		}
	}
}
