package compiler

import (
	"strconv"
	"strings"
)

// Parser is a recursive-descent, Pratt-style precedence parser. On a
// syntax error it records a diagnostic and enters panic mode,
// synchronizing on the next statement-boundary keyword instead of
// aborting, so a single malformed statement doesn't hide every other
// diagnostic in the file.
type Parser struct {
	tokens    []Token
	pos       int
	diag      *Diagnostics
	panicMode bool
}

func NewParser(tokens []Token, diag *Diagnostics) *Parser {
	return &Parser{tokens: tokens, diag: diag}
}

func (p *Parser) current() Token { return p.tokens[p.pos] }

func (p *Parser) peekAt(offset int) Token {
	i := p.pos + offset
	if i < 0 || i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) check(tt TokenType) bool { return p.current().Type == tt }

func (p *Parser) atEnd() bool { return p.current().Type == EOF }

func (p *Parser) advance() Token {
	t := p.current()
	if !p.atEnd() {
		p.pos++
	}
	return t
}

func (p *Parser) match(tt TokenType) bool {
	if p.check(tt) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(tt TokenType, msg string) Token {
	if p.check(tt) {
		return p.advance()
	}
	p.errorAt(p.current(), msg)
	return p.current()
}

func (p *Parser) errorAt(t Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.diag.Error(StageParser, t.Line, t.Column, msg)
}

func (p *Parser) warnAt(t Token, msg string) {
	p.diag.Warning(StageParser, t.Line, t.Column, msg)
}

// synchronize discards tokens until a statement boundary keyword, a
// semicolon, a closing brace, or EOF, then clears panic mode.
func (p *Parser) synchronize() {
	for !p.atEnd() {
		if p.pos > 0 && p.tokens[p.pos-1].Type == SEMICOLON {
			break
		}
		if isStatementBoundary(p.current().Type) || p.check(RBRACE) {
			break
		}
		p.advance()
	}
	p.panicMode = false
}

// Parse consumes every token and returns the top-level statement list:
// a mix of VariableDecl/FunctionDecl/ClassDecl/ClassInstanceDecl/other
// statements, the set the script-top function is synthesized from in
// codegen.
func Parse(tokens []Token, diag *Diagnostics) []Stmt {
	var filtered []Token
	for _, t := range tokens {
		if t.Type != PREPROCESSOR {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 || filtered[len(filtered)-1].Type != EOF {
		filtered = append(filtered, Token{Type: EOF})
	}
	p := NewParser(filtered, diag)
	var stmts []Stmt
	for !p.atEnd() {
		s := p.declaration()
		if s != nil {
			stmts = append(stmts, s)
		}
		if p.panicMode {
			p.synchronize()
		}
	}
	return stmts
}

//  Declarations

func (p *Parser) declaration() Stmt {
	switch {
	case p.check(CLASS):
		return p.classDeclaration()
	case p.isTypeKeyword(p.current().Type):
		return p.typedDeclaration()
	case p.check(IDENTIFIER) && p.looksLikeClassInstance():
		return p.classInstanceDeclaration()
	default:
		return p.statement()
	}
}

func (p *Parser) isTypeKeyword(tt TokenType) bool {
	switch tt {
	case INT, CHAR, BYTE, UNSIGNED, FLOAT, BOOL, VOID:
		return true
	default:
		return false
	}
}

// looksLikeClassInstance performs a cheap one-token lookahead: an
// identifier followed by another identifier is a class-instance decl
// (ClassName varName ...). Full class-name resolution happens later in
// codegen; here we only need to not confuse it with an expression
// statement starting with a bare identifier.
func (p *Parser) looksLikeClassInstance() bool {
	return p.peekAt(1).Type == IDENTIFIER
}

func (p *Parser) classInstanceDeclaration() Stmt {
	classTok := p.advance()
	nameTok := p.expect(IDENTIFIER, "expected instance name after class type")
	decl := &ClassInstanceDecl{ClassName: classTok.Lexeme, Name: nameTok.Lexeme, Line: classTok.Line, Col: classTok.Column}
	if p.match(LPAREN) {
		decl.HasCtor = true
		if !p.check(RPAREN) {
			decl.Args = append(decl.Args, p.expression())
			for p.match(COMMA) {
				decl.Args = append(decl.Args, p.expression())
			}
		}
		p.expect(RPAREN, "expected ')' after constructor arguments")
	}
	p.expect(SEMICOLON, "expected ';' after class instance declaration")
	return decl
}

func (p *Parser) parseTypeName() TypeName {
	unsigned := false
	if p.match(UNSIGNED) {
		unsigned = true
	}
	tt := p.current().Type
	switch tt {
	case INT, CHAR, BYTE, FLOAT, BOOL, VOID:
		p.advance()
		return TypeName{Kind: tt, IsUnsigned: unsigned}
	default:
		p.errorAt(p.current(), "expected a type")
		return TypeName{Kind: INT}
	}
}

// typedDeclaration parses a variable, array, or function declaration that
// starts with a primitive type keyword.
func (p *Parser) typedDeclaration() Stmt {
	typ := p.parseTypeName()
	nameTok := p.expect(IDENTIFIER, "expected a name after type")

	if p.check(LPAREN) {
		return p.functionDeclaration(typ, nameTok)
	}

	if p.match(LBRACKET) {
		return p.arrayDeclaration(typ, nameTok)
	}

	decl := &VariableDecl{Name: nameTok.Lexeme, Type: typ, Line: nameTok.Line, Col: nameTok.Column}
	if p.match(ASSIGN) {
		decl.Init = p.expression()
	}
	p.expect(SEMICOLON, "expected ';' after variable declaration")
	return decl
}

func (p *Parser) arrayDeclaration(typ TypeName, nameTok Token) Stmt {
	decl := &VariableDecl{Name: nameTok.Lexeme, Type: typ, IsArray: true, Line: nameTok.Line, Col: nameTok.Column}
	if !p.check(RBRACKET) {
		sizeTok := p.expect(INTEGER, "expected array size")
		n, _ := strconv.ParseInt(sizeTok.Lexeme, 0, 64)
		decl.ArraySize = int(n)
	}
	p.expect(RBRACKET, "expected ']' after array size")
	if p.match(ASSIGN) {
		decl.Init = p.expression()
		if decl.ArraySize == 0 {
			if lit, ok := decl.Init.(*InitializerList); ok {
				decl.ArraySize = len(lit.Elements)
			}
		}
	}
	p.expect(SEMICOLON, "expected ';' after array declaration")
	return decl
}

func (p *Parser) functionDeclaration(returnType TypeName, nameTok Token) Stmt {
	p.expect(LPAREN, "expected '(' after function name")
	params := p.parseParamList()
	p.expect(RPAREN, "expected ')' after parameters")
	body := p.blockStatement()
	return &FunctionDecl{Name: nameTok.Lexeme, Params: params, Body: body, ReturnType: returnType, Line: nameTok.Line, Col: nameTok.Column}
}

func (p *Parser) parseParamList() []VariableDecl {
	var params []VariableDecl
	if p.check(RPAREN) {
		return params
	}
	for {
		typ := p.parseTypeName()
		nameTok := p.expect(IDENTIFIER, "expected parameter name")
		decl := VariableDecl{Name: nameTok.Lexeme, Type: typ, Line: nameTok.Line, Col: nameTok.Column}
		if p.match(LBRACKET) {
			decl.IsArray = true
			p.expect(RBRACKET, "expected ']' after array parameter")
		}
		params = append(params, decl)
		if !p.match(COMMA) {
			break
		}
	}
	return params
}

func (p *Parser) classDeclaration() Stmt {
	classTok := p.advance() // consume 'class'
	nameTok := p.expect(IDENTIFIER, "expected class name")
	decl := &ClassDecl{Name: nameTok.Lexeme, Line: classTok.Line, Col: classTok.Column}
	p.expect(LBRACE, "expected '{' before class body")

	for !p.check(RBRACE) && !p.atEnd() {
		if p.check(TILDE) {
			p.advance()
			dtorTok := p.expect(IDENTIFIER, "expected class name after '~'")
			p.expect(LPAREN, "expected '(' in destructor declaration")
			p.expect(RPAREN, "expected ')' in destructor declaration")
			body := p.blockStatement()
			decl.Methods = append(decl.Methods, MethodDecl{
				Name: dtorTok.Lexeme, IsDestructor: true, ReturnType: TypeName{Kind: VOID},
				Body: body, Line: dtorTok.Line, Col: dtorTok.Column,
			})
			continue
		}

		if p.check(IDENTIFIER) && p.current().Lexeme == decl.Name && p.peekAt(1).Type == LPAREN {
			ctorTok := p.advance()
			p.expect(LPAREN, "expected '(' in constructor declaration")
			params := p.parseParamList()
			p.expect(RPAREN, "expected ')' after constructor parameters")
			body := p.blockStatement()
			decl.Methods = append(decl.Methods, MethodDecl{
				Name: ctorTok.Lexeme, IsConstructor: true, Params: params, ReturnType: TypeName{Kind: VOID},
				Body: body, Line: ctorTok.Line, Col: ctorTok.Column,
			})
			continue
		}

		if p.isTypeKeyword(p.current().Type) {
			typ := p.parseTypeName()
			memberTok := p.expect(IDENTIFIER, "expected field or method name")
			if p.check(LPAREN) {
				p.advance()
				params := p.parseParamList()
				p.expect(RPAREN, "expected ')' after method parameters")
				body := p.blockStatement()
				decl.Methods = append(decl.Methods, MethodDecl{
					Name: memberTok.Lexeme, Params: params, ReturnType: typ,
					Body: body, Line: memberTok.Line, Col: memberTok.Column,
				})
				continue
			}
			field := FieldDecl{Name: memberTok.Lexeme, Type: typ}
			if p.match(LBRACKET) {
				field.IsArray = true
				if !p.check(RBRACKET) {
					sizeTok := p.expect(INTEGER, "expected array size")
					n, _ := strconv.ParseInt(sizeTok.Lexeme, 0, 64)
					field.ArraySize = int(n)
				}
				p.expect(RBRACKET, "expected ']' after field array size")
			}
			p.expect(SEMICOLON, "expected ';' after field declaration")
			decl.Fields = append(decl.Fields, field)
			continue
		}

		p.errorAt(p.current(), "invalid token inside class declaration")
		p.advance()
	}

	p.expect(RBRACE, "expected '}' after class body")
	if len(decl.Fields) == 0 {
		p.warnAt(classTok, "class body contains no fields")
	}
	return decl
}

//  Statements

func (p *Parser) statement() Stmt {
	switch {
	case p.check(LBRACE):
		return p.blockStatement()
	case p.check(IF):
		return p.ifStatement()
	case p.check(WHILE):
		return p.whileStatement()
	case p.check(FOR):
		return p.forStatement()
	case p.check(SWITCH):
		return p.switchStatement()
	case p.check(RETURN):
		return p.returnStatement()
	case p.check(BREAK):
		p.advance()
		p.expect(SEMICOLON, "expected ';' after 'break'")
		return &BreakStmt{}
	case p.check(CONTINUE):
		p.advance()
		p.expect(SEMICOLON, "expected ';' after 'continue'")
		return &ContinueStmt{}
	default:
		return p.expressionOrAssignmentStatement()
	}
}

func (p *Parser) blockStatement() *BlockStmt {
	p.expect(LBRACE, "expected '{'")
	b := &BlockStmt{}
	for !p.check(RBRACE) && !p.atEnd() {
		s := p.declaration()
		if s != nil {
			b.Stmts = append(b.Stmts, s)
		}
		if p.panicMode {
			p.synchronize()
		}
	}
	p.expect(RBRACE, "expected '}'")
	return b
}

func (p *Parser) ifStatement() Stmt {
	p.advance()
	p.expect(LPAREN, "expected '(' after 'if'")
	cond := p.expression()
	p.expect(RPAREN, "expected ')' after condition")
	body := p.statement()
	var elseBody Stmt
	if p.match(ELSE) {
		elseBody = p.statement()
	}
	return &IfStmt{Condition: cond, Body: body, ElseBody: elseBody}
}

func (p *Parser) whileStatement() Stmt {
	p.advance()
	p.expect(LPAREN, "expected '(' after 'while'")
	cond := p.expression()
	p.expect(RPAREN, "expected ')' after condition")
	body := p.statement()
	return &WhileStmt{Condition: cond, Body: body}
}

func (p *Parser) forStatement() Stmt {
	p.advance()
	p.expect(LPAREN, "expected '(' after 'for'")

	var init Stmt
	if !p.check(SEMICOLON) {
		if p.isTypeKeyword(p.current().Type) {
			init = p.typedDeclaration()
		} else {
			init = p.expressionOrAssignmentStatement()
		}
	} else {
		p.advance()
	}

	var cond Expr
	if !p.check(SEMICOLON) {
		cond = p.expression()
	}
	p.expect(SEMICOLON, "expected ';' after loop condition")

	var post Stmt
	if !p.check(RPAREN) {
		post = p.assignmentOrExpressionStmtNoSemicolon()
	}
	p.expect(RPAREN, "expected ')' after for clauses")

	body := p.statement()
	return &ForStmt{Init: init, Cond: cond, Post: post, Body: body}
}

func (p *Parser) switchStatement() Stmt {
	p.advance()
	p.expect(LPAREN, "expected '(' after 'switch'")
	target := p.expression()
	p.expect(RPAREN, "expected ')' after switch target")
	p.expect(LBRACE, "expected '{' before switch body")

	sw := &SwitchStmt{Target: target}
	sawDefault := false
	for !p.check(RBRACE) && !p.atEnd() {
		switch {
		case p.match(CASE):
			valTok := p.current()
			valExpr := p.expression()
			lit, ok := valExpr.(*Literal)
			if !ok {
				p.errorAt(valTok, "case label must be a constant integer")
			}
			p.expect(COLON, "expected ':' after case label")
			var body []Stmt
			for !p.check(CASE) && !p.check(DEFAULT) && !p.check(RBRACE) && !p.atEnd() {
				body = append(body, p.declaration())
			}
			var v int64
			if lit != nil {
				v = lit.Value
			}
			sw.Cases = append(sw.Cases, CaseClause{Value: v, Body: body})
		case p.match(DEFAULT):
			if sawDefault {
				p.errorAt(p.current(), "switch already has a default case")
			}
			sawDefault = true
			p.expect(COLON, "expected ':' after 'default'")
			for !p.check(CASE) && !p.check(DEFAULT) && !p.check(RBRACE) && !p.atEnd() {
				sw.Default = append(sw.Default, p.declaration())
			}
		default:
			p.errorAt(p.current(), "expected 'case' or 'default' inside switch body")
			p.advance()
		}
	}
	p.expect(RBRACE, "expected '}' after switch body")
	return sw
}

func (p *Parser) returnStatement() Stmt {
	tok := p.advance()
	r := &ReturnStmt{Line: tok.Line, Col: tok.Column}
	if !p.check(SEMICOLON) {
		r.Expr = p.expression()
	}
	p.expect(SEMICOLON, "expected ';' after return value")
	return r
}

var assignOps = map[TokenType]bool{
	ASSIGN: true, PLUS_ASSIGN: true, MINUS_ASSIGN: true, STAR_ASSIGN: true, SLASH_ASSIGN: true,
}

func (p *Parser) expressionOrAssignmentStatement() Stmt {
	s := p.assignmentOrExpressionStmtNoSemicolon()
	p.expect(SEMICOLON, "expected ';' after statement")
	return s
}

// assignmentOrExpressionStmtNoSemicolon parses either an assignment or a
// bare expression statement, without consuming the trailing ';' — used
// directly by for-loop post-clauses, which have no semicolon of their own.
func (p *Parser) assignmentOrExpressionStmtNoSemicolon() Stmt {
	expr := p.expression()
	if assignOps[p.current().Type] {
		op := p.advance().Type
		value := p.expression()
		return &Assignment{Left: expr, Op: op, Value: value}
	}
	return &ExprStmt{Expr: expr}
}

//  Expressions, precedence low -> high:
//  ternary, logical-or, logical-and, bitwise-or, bitwise-xor, bitwise-and,
//  equality, relational, shift, additive, multiplicative, unary, postfix, primary

func (p *Parser) expression() Expr { return p.ternary() }

func (p *Parser) ternary() Expr {
	cond := p.logicalOr()
	if p.match(QUESTION) {
		then := p.expression()
		p.expect(COLON, "expected ':' in ternary expression")
		els := p.ternary()
		return &TernaryExpr{Cond: cond, Then: then, Else: els}
	}
	return cond
}

func (p *Parser) logicalOr() Expr {
	left := p.logicalAnd()
	for p.check(OR_LOGICAL) {
		op := p.advance().Type
		right := p.logicalAnd()
		left = &LogicalExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) logicalAnd() Expr {
	left := p.bitwiseOr()
	for p.check(AND_LOGICAL) {
		op := p.advance().Type
		right := p.bitwiseOr()
		left = &LogicalExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) bitwiseOr() Expr {
	left := p.bitwiseXor()
	for p.check(PIPE) {
		op := p.advance().Type
		right := p.bitwiseXor()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) bitwiseXor() Expr {
	left := p.bitwiseAnd()
	for p.check(CARET) {
		op := p.advance().Type
		right := p.bitwiseAnd()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) bitwiseAnd() Expr {
	left := p.equality()
	for p.check(AND) {
		op := p.advance().Type
		right := p.equality()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) equality() Expr {
	left := p.relational()
	for p.check(EQUALS) || p.check(NOT_EQ) {
		op := p.advance().Type
		right := p.relational()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) relational() Expr {
	left := p.shift()
	for p.check(LESS) || p.check(LESS_EQ) || p.check(GREATER) || p.check(GREATER_EQ) {
		op := p.advance().Type
		right := p.shift()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) shift() Expr {
	left := p.additive()
	for p.check(SHL_OP) || p.check(SHR_OP) {
		op := p.advance().Type
		right := p.additive()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) additive() Expr {
	left := p.multiplicative()
	for p.check(PLUS) || p.check(MINUS) {
		op := p.advance().Type
		right := p.multiplicative()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) multiplicative() Expr {
	left := p.unary()
	for p.check(STAR) || p.check(SLASH) || p.check(PERCENT) {
		op := p.advance().Type
		right := p.unary()
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) unary() Expr {
	if p.check(MINUS) || p.check(NOT) || p.check(TILDE) {
		op := p.advance().Type
		right := p.unary()
		return &UnaryExpr{Op: op, Right: right}
	}
	if p.check(PLUS_PLUS) || p.check(MINUS_MINUS) {
		op := p.advance().Type
		right := p.unary()
		return &PrefixExpr{Op: op, Left: right}
	}
	if p.check(LPAREN) && p.isCastAhead() {
		p.advance()
		typ := p.parseTypeName()
		p.expect(RPAREN, "expected ')' after cast type")
		expr := p.unary()
		return &CastExpr{Type: typ, Expr: expr}
	}
	return p.postfix()
}

// isCastAhead performs a bounded lookahead to distinguish "(Type) expr"
// from a parenthesized expression: the token after '(' must be a type
// keyword and the matching close-paren must immediately follow it.
func (p *Parser) isCastAhead() bool {
	return p.isTypeKeyword(p.peekAt(1).Type) && p.peekAt(2).Type == RPAREN
}

func (p *Parser) postfix() Expr {
	expr := p.primary()
	for {
		switch {
		case p.check(LBRACKET):
			p.advance()
			idx := p.expression()
			p.expect(RBRACKET, "expected ']' after index expression")
			expr = &IndexExpr{Left: expr, Index: idx}
		case p.check(DOT):
			p.advance()
			nameTok := p.expect(IDENTIFIER, "expected member name after '.'")
			if p.check(LPAREN) {
				p.advance()
				args := p.parseArgList()
				p.expect(RPAREN, "expected ')' after method arguments")
				expr = &MethodCall{Left: expr, Name: nameTok.Lexeme, Args: args}
			} else {
				expr = &MemberExpr{Left: expr, Member: nameTok.Lexeme}
			}
		case p.check(PLUS_PLUS) || p.check(MINUS_MINUS):
			op := p.advance().Type
			expr = &PostfixExpr{Op: op, Left: expr}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgList() []Expr {
	var args []Expr
	if p.check(RPAREN) {
		return args
	}
	args = append(args, p.expression())
	for p.match(COMMA) {
		args = append(args, p.expression())
	}
	return args
}

func (p *Parser) primary() Expr {
	tok := p.current()
	switch tok.Type {
	case INTEGER:
		p.advance()
		n, _ := strconv.ParseInt(tok.Lexeme, 0, 64)
		return &Literal{Value: n}
	case UNSIGNED_LIT:
		p.advance()
		n, _ := strconv.ParseInt(strings.TrimRight(tok.Lexeme, "uU"), 0, 64)
		return &Literal{Value: n, IsUnsigned: true}
	case FLOAT_LIT:
		p.advance()
		f, _ := strconv.ParseFloat(tok.Lexeme, 64)
		return &Literal{IsFloat: true, FloatValue: f}
	case TRUE_LIT:
		p.advance()
		return &BoolLiteral{Value: true}
	case FALSE_LIT:
		p.advance()
		return &BoolLiteral{Value: false}
	case STRING:
		p.advance()
		return &StringLiteral{Value: tok.Lexeme}
	case LBRACE:
		return p.initializerList()
	case IDENTIFIER:
		p.advance()
		if p.check(LPAREN) {
			p.advance()
			args := p.parseArgList()
			p.expect(RPAREN, "expected ')' after arguments")
			return &FunctionCall{Name: tok.Lexeme, Args: args}
		}
		return &VarRef{Name: tok.Lexeme}
	case LPAREN:
		p.advance()
		expr := p.expression()
		p.expect(RPAREN, "expected ')' after expression")
		return expr
	default:
		p.errorAt(tok, "expected an expression, got "+strings.ToLower(tok.Type.String()))
		p.advance()
		return &Literal{Value: 0}
	}
}

func (p *Parser) initializerList() Expr {
	p.expect(LBRACE, "expected '{'")
	list := &InitializerList{}
	if !p.check(RBRACE) {
		list.Elements = append(list.Elements, p.expression())
		for p.match(COMMA) {
			list.Elements = append(list.Elements, p.expression())
		}
	}
	p.expect(RBRACE, "expected '}' after initializer list")
	return list
}
