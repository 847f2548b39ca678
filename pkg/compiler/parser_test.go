package compiler

import (
	"reflect"
	"testing"
)

func parseOk(t *testing.T, input string) []Stmt {
	t.Helper()
	diag := NewDiagnostics(input)
	stmts := Parse(Lex(input, diag), diag)
	if diag.HasErrors() {
		t.Fatalf("Parse(%q) reported errors: %v", input, diag.All())
	}
	return stmts
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Stmt
	}{
		{
			name:  "Variable declaration",
			input: "int x = 10;",
			expected: []Stmt{
				&VariableDecl{Name: "x", Type: TypeName{Kind: INT}, Init: &Literal{Value: 10}, Line: 1, Col: 5},
			},
		},
		{
			name:  "Unsigned variable declaration",
			input: "unsigned int x = 10u;",
			expected: []Stmt{
				&VariableDecl{Name: "x", Type: TypeName{Kind: INT, IsUnsigned: true}, Init: &Literal{Value: 10, IsUnsigned: true}, Line: 1, Col: 14},
			},
		},
		{
			name:  "Array declaration with explicit size",
			input: "byte a[4];",
			expected: []Stmt{
				&VariableDecl{Name: "a", Type: TypeName{Kind: BYTE}, IsArray: true, ArraySize: 4, Line: 1, Col: 6},
			},
		},
		{
			name:  "Array declaration with inferred size from initializer",
			input: "int a[] = {1, 2, 3};",
			expected: []Stmt{
				&VariableDecl{Name: "a", Type: TypeName{Kind: INT}, IsArray: true, ArraySize: 3,
					Init: &InitializerList{Elements: []Expr{&Literal{Value: 1}, &Literal{Value: 2}, &Literal{Value: 3}}}, Line: 1, Col: 5},
			},
		},
		{
			name:  "Assignment",
			input: "int main() { x = 20; }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &Literal{Value: 20}},
				}}},
			},
		},
		{
			name:  "Compound assignment",
			input: "int main() { x += 1; }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&Assignment{Op: PLUS_ASSIGN, Left: &VarRef{Name: "x"}, Value: &Literal{Value: 1}},
				}}},
			},
		},
		{
			name:  "Function call with arguments",
			input: "int main() { foo(1, x); }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&ExprStmt{Expr: &FunctionCall{Name: "foo", Args: []Expr{&Literal{Value: 1}, &VarRef{Name: "x"}}}},
				}}},
			},
		},
		{
			name:  "If statement",
			input: "int main() { if (x == 1) { x = 2; } }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&IfStmt{
						Condition: &BinaryExpr{Op: EQUALS, Left: &VarRef{Name: "x"}, Right: &Literal{Value: 1}},
						Body:      &BlockStmt{Stmts: []Stmt{&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &Literal{Value: 2}}}},
					},
				}}},
			},
		},
		{
			name:  "If-else statement",
			input: "int main() { if (x == 1) { x = 2; } else { x = 3; } }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&IfStmt{
						Condition: &BinaryExpr{Op: EQUALS, Left: &VarRef{Name: "x"}, Right: &Literal{Value: 1}},
						Body:      &BlockStmt{Stmts: []Stmt{&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &Literal{Value: 2}}}},
						ElseBody:  &BlockStmt{Stmts: []Stmt{&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &Literal{Value: 3}}}},
					},
				}}},
			},
		},
		{
			name:  "While statement",
			input: "int main() { while (x < 10) { x = x + 1; } }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&WhileStmt{
						Condition: &BinaryExpr{Op: LESS, Left: &VarRef{Name: "x"}, Right: &Literal{Value: 10}},
						Body: &BlockStmt{Stmts: []Stmt{
							&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &BinaryExpr{Op: PLUS, Left: &VarRef{Name: "x"}, Right: &Literal{Value: 1}}},
						}},
					},
				}}},
			},
		},
		{
			name:  "For statement",
			input: "int main() { for (int i = 0; i < 5; ++i) { x = i; } }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&ForStmt{
						Init: &VariableDecl{Name: "i", Type: TypeName{Kind: INT}, Init: &Literal{Value: 0}, Line: 1, Col: 23},
						Cond: &BinaryExpr{Op: LESS, Left: &VarRef{Name: "i"}, Right: &Literal{Value: 5}},
						Post: &ExprStmt{Expr: &PrefixExpr{Op: PLUS_PLUS, Left: &VarRef{Name: "i"}}},
						Body: &BlockStmt{Stmts: []Stmt{&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &VarRef{Name: "i"}}}},
					},
				}}},
			},
		},
		{
			name:  "Break and continue",
			input: "int main() { while (true) { break; continue; } }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&WhileStmt{
						Condition: &BoolLiteral{Value: true},
						Body:      &BlockStmt{Stmts: []Stmt{&BreakStmt{}, &ContinueStmt{}}},
					},
				}}},
			},
		},
		{
			name:  "Switch statement",
			input: "int main() { switch (x) { case 1: y = 1; break; default: y = 0; } }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&SwitchStmt{
						Target: &VarRef{Name: "x"},
						Cases: []CaseClause{
							{Value: 1, Body: []Stmt{&Assignment{Op: ASSIGN, Left: &VarRef{Name: "y"}, Value: &Literal{Value: 1}}, &BreakStmt{}}},
						},
						Default: []Stmt{&Assignment{Op: ASSIGN, Left: &VarRef{Name: "y"}, Value: &Literal{Value: 0}}},
					},
				}}},
			},
		},
		{
			name:  "Return with value",
			input: "int f() { return 1 + 2; }",
			expected: []Stmt{
				&FunctionDecl{Name: "f", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&ReturnStmt{Expr: &BinaryExpr{Op: PLUS, Left: &Literal{Value: 1}, Right: &Literal{Value: 2}}, Line: 1, Col: 11},
				}}},
			},
		},
		{
			name:  "Void return with no value",
			input: "void f() { return; }",
			expected: []Stmt{
				&FunctionDecl{Name: "f", ReturnType: TypeName{Kind: VOID}, Line: 1, Col: 6, Body: &BlockStmt{Stmts: []Stmt{&ReturnStmt{Line: 1, Col: 12}}}},
			},
		},
		{
			name:  "Function with parameters",
			input: "int add(int a, int b) { return a + b; }",
			expected: []Stmt{
				&FunctionDecl{
					Name:       "add",
					ReturnType: TypeName{Kind: INT},
					Params: []VariableDecl{
						{Name: "a", Type: TypeName{Kind: INT}, Line: 1, Col: 13},
						{Name: "b", Type: TypeName{Kind: INT}, Line: 1, Col: 20},
					},
					Body: &BlockStmt{Stmts: []Stmt{
						&ReturnStmt{Expr: &BinaryExpr{Op: PLUS, Left: &VarRef{Name: "a"}, Right: &VarRef{Name: "b"}}, Line: 1, Col: 25},
					}},
					Line: 1, Col: 5,
				},
			},
		},
		{
			name:  "Class declaration with field, constructor, and method",
			input: "class P { int a; P(int v) { this.a = v; } int get() { return this.a; } }",
			expected: []Stmt{
				&ClassDecl{
					Name:   "P",
					Line:   1, Col: 1,
					Fields: []FieldDecl{{Name: "a", Type: TypeName{Kind: INT}}},
					Methods: []MethodDecl{
						{
							Name: "P", IsConstructor: true, ReturnType: TypeName{Kind: VOID}, Line: 1, Col: 18,
							Params: []VariableDecl{{Name: "v", Type: TypeName{Kind: INT}, Line: 1, Col: 24}},
							Body: &BlockStmt{Stmts: []Stmt{
								&Assignment{Op: ASSIGN, Left: &MemberExpr{Left: &VarRef{Name: "this"}, Member: "a"}, Value: &VarRef{Name: "v"}},
							}},
						},
						{
							Name: "get", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 47,
							Body: &BlockStmt{Stmts: []Stmt{
								&ReturnStmt{Expr: &MemberExpr{Left: &VarRef{Name: "this"}, Member: "a"}, Line: 1, Col: 55},
							}},
						},
					},
				},
			},
		},
		{
			name:  "Class instance declaration with constructor args",
			input: "P p(7);",
			expected: []Stmt{
				&ClassInstanceDecl{ClassName: "P", Name: "p", HasCtor: true, Args: []Expr{&Literal{Value: 7}}, Line: 1, Col: 1},
			},
		},
		{
			name:  "Class instance declaration without constructor call",
			input: "P p;",
			expected: []Stmt{
				&ClassInstanceDecl{ClassName: "P", Name: "p", Line: 1, Col: 1},
			},
		},
		{
			name:  "Method call and member access chain",
			input: "int main() { y = p.get(); }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&Assignment{Op: ASSIGN, Left: &VarRef{Name: "y"}, Value: &MethodCall{Left: &VarRef{Name: "p"}, Name: "get"}},
				}}},
			},
		},
		{
			name:  "Index expression",
			input: "int main() { x = a[2]; }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &IndexExpr{Left: &VarRef{Name: "a"}, Index: &Literal{Value: 2}}},
				}}},
			},
		},
		{
			name:  "Cast expression",
			input: "int main() { x = (float) y; }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &CastExpr{Type: TypeName{Kind: FLOAT}, Expr: &VarRef{Name: "y"}}},
				}}},
			},
		},
		{
			name:  "Ternary expression",
			input: "int main() { x = y > 0 ? 1 : -1; }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &TernaryExpr{
						Cond: &BinaryExpr{Op: GREATER, Left: &VarRef{Name: "y"}, Right: &Literal{Value: 0}},
						Then: &Literal{Value: 1},
						Else: &UnaryExpr{Op: MINUS, Right: &Literal{Value: 1}},
					}},
				}}},
			},
		},
		{
			name:  "Operator precedence: multiplication before addition",
			input: "int main() { x = 2 + 3 * 4; }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &BinaryExpr{
						Op: PLUS, Left: &Literal{Value: 2},
						Right: &BinaryExpr{Op: STAR, Left: &Literal{Value: 3}, Right: &Literal{Value: 4}},
					}},
				}}},
			},
		},
		{
			name:  "Logical and/or kept distinct from bitwise",
			input: "int main() { x = a && b || c; }",
			expected: []Stmt{
				&FunctionDecl{Name: "main", ReturnType: TypeName{Kind: INT}, Line: 1, Col: 5, Body: &BlockStmt{Stmts: []Stmt{
					&Assignment{Op: ASSIGN, Left: &VarRef{Name: "x"}, Value: &LogicalExpr{
						Op:   OR_LOGICAL,
						Left: &LogicalExpr{Op: AND_LOGICAL, Left: &VarRef{Name: "a"}, Right: &VarRef{Name: "b"}},
						Right: &VarRef{Name: "c"},
					}},
				}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOk(t, tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Parse(%q) =\n%#v\nwant\n%#v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing semicolon", "int x = 10"},
		{"unclosed block", "int main() { x = 1;"},
		{"case label not a constant", "int main() { switch (x) { case y: break; } }"},
		{"duplicate default", "int main() { switch (x) { default: break; default: break; } }"},
		{"bad token in class body", "class P { if }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag := NewDiagnostics(tt.input)
			Parse(Lex(tt.input, diag), diag)
			if !diag.HasErrors() {
				t.Errorf("Parse(%q) reported no errors, want at least one", tt.input)
			}
		})
	}
}

func TestParse_ClassWithNoFieldsWarns(t *testing.T) {
	input := "class Empty { int f() { return 0; } }"
	diag := NewDiagnostics(input)
	Parse(Lex(input, diag), diag)
	if len(diag.All()) == 0 {
		t.Error("expected a warning for a class body with no fields")
	}
}
