package compiler

// CheckUnreachable walks a parsed statement list and warns about any
// statement that follows an unconditional return/break/continue within
// the same block — a lighter-weight, non-destructive descendant of a
// whole-function dead-code pass: rather than deleting anything from the
// program, it only ever adds a diagnostic, since removing code the
// programmer wrote is never the compiler's call to make.
func CheckUnreachable(stmts []Stmt, diag *Diagnostics) {
	walkBlock(stmts, diag)
}

func walkBlock(stmts []Stmt, diag *Diagnostics) {
	terminated := false
	for _, s := range stmts {
		if terminated {
			diag.Warning(StageCodegen, 0, 0, "unreachable statement")
		}
		walkStmt(s, diag)
		if terminates(s) {
			terminated = true
		}
	}
}

func walkStmt(s Stmt, diag *Diagnostics) {
	switch n := s.(type) {
	case *BlockStmt:
		walkBlock(n.Stmts, diag)
	case *IfStmt:
		walkStmt(n.Body, diag)
		if n.ElseBody != nil {
			walkStmt(n.ElseBody, diag)
		}
	case *WhileStmt:
		walkStmt(n.Body, diag)
	case *ForStmt:
		walkStmt(n.Body, diag)
	case *SwitchStmt:
		for _, cc := range n.Cases {
			walkBlock(cc.Body, diag)
		}
		walkBlock(n.Default, diag)
	case *FunctionDecl:
		if n.Body != nil {
			walkBlock(n.Body.Stmts, diag)
		}
	case *ClassDecl:
		for i := range n.Methods {
			if n.Methods[i].Body != nil {
				walkBlock(n.Methods[i].Body.Stmts, diag)
			}
		}
	}
}

// terminates reports whether s unconditionally leaves its enclosing
// block: a return/break/continue, or an if/else whose every branch
// terminates. Loops are never treated as terminating since a break can
// always resume control after them.
func terminates(s Stmt) bool {
	switch n := s.(type) {
	case *ReturnStmt, *BreakStmt, *ContinueStmt:
		return true
	case *BlockStmt:
		return len(n.Stmts) > 0 && terminates(n.Stmts[len(n.Stmts)-1])
	case *IfStmt:
		return n.ElseBody != nil && terminates(n.Body) && terminates(n.ElseBody)
	default:
		return false
	}
}
