package compiler

import (
	"fmt"

	"mec/pkg/opcode"
	"mec/pkg/value"
)

// Program is the output of a successful (or partially successful, for
// diagnostics purposes) codegen pass: every function's bytecode plus the
// shared constant/string pools the binary writer serializes.
type Program struct {
	Functions     []*ScriptFunction
	Script        *ScriptFunction
	Constants     []value.Value
	ConstantTypes []value.DataType
	Strings       []byte
	FuncConstRefs []FuncConstRef
	Globals       *SymbolTable
	Diagnostics   *Diagnostics
}

// FuncConstRef records a constant-pool slot that holds a placeholder
// function reference; the binary writer patches it to the function's
// final byte offset once every function's code has been laid out.
type FuncConstRef struct {
	ConstIndex int
	Key        string
}

type constKey struct {
	v value.Value
	t value.DataType
}

// pendingFunc is a registered function-table entry whose body hasn't been
// compiled yet — codegen registers every top-level function and class
// member signature first (so forward references resolve), then compiles
// bodies in a second pass.
type pendingFunc struct {
	Fn        *ScriptFunction
	Params    []VariableDecl
	Body      *BlockStmt
	ClassName string
}

// breakable is one entry in the break/continue resolution stack: a loop or
// a switch, the scope depth it was entered at (for locals cleanup), and
// the as-yet-unpatched forward/backward jump sites it owns.
type breakable struct {
	isLoop          bool
	symDepth        int
	breakPatches    []int
	continuePatches []int
}

// Codegen walks a parsed statement list and emits bytecode per function
// in two passes (see Compile), targeting opcode bytes directly against a
// SymbolTable and FunctionTable instead of text mnemonics.
type Codegen struct {
	diag  *Diagnostics
	sym   *SymbolTable
	funcs *FunctionTable

	constants  []value.Value
	constTypes []value.DataType
	constIndex map[constKey]int

	strings []byte

	funcConstByKey map[string]int
	funcConstRefs  []FuncConstRef

	pending []*pendingFunc

	curFunc            *ScriptFunction
	currentClass       *ClassInfo
	compilingScriptTop bool

	breakables []*breakable
}

func NewCodegen(diag *Diagnostics, funcs *FunctionTable) *Codegen {
	return &Codegen{
		diag:           diag,
		sym:            NewSymbolTable(),
		funcs:          funcs,
		constIndex:     make(map[constKey]int),
		funcConstByKey: make(map[string]int),
	}
}

// Compile drives the two-pass compilation: register every top-level
// function/class signature (permitting forward references, a deliberate
// generalization of the strict single-pass grammar), compile every
// function/method body, then compile the leftover top-level statements
// into the implicit script-top function.
func (c *Codegen) Compile(stmts []Stmt) *Program {
	var runnable []Stmt
	for _, s := range stmts {
		switch st := s.(type) {
		case *FunctionDecl:
			c.registerFunction(st)
		case *ClassDecl:
			c.registerClass(st)
		default:
			runnable = append(runnable, s)
		}
	}

	for _, pf := range c.pending {
		c.compileFunctionBody(pf)
	}

	c.curFunc = c.funcs.Script
	c.compilingScriptTop = true
	for _, s := range runnable {
		c.compileStmt(s)
	}
	c.emitOp(opcode.END)
	c.compilingScriptTop = false

	c.checkUnused()

	return &Program{
		Functions:     c.funcs.All(),
		Script:        c.funcs.Script,
		Constants:     c.constants,
		ConstantTypes: c.constTypes,
		Strings:       c.strings,
		FuncConstRefs: c.funcConstRefs,
		Globals:       c.sym,
		Diagnostics:   c.diag,
	}
}

func (c *Codegen) checkUnused() {
	for _, v := range c.sym.globals {
		if !v.Written && v.Type != value.DtClass {
			c.diag.Warning(StageCodegen, v.Line, v.Col, fmt.Sprintf("global '%s' is never assigned", v.Name))
		}
	}
	for _, fn := range c.funcs.All() {
		if fn.Kind == FuncFunction && fn.CalledCount == 0 {
			c.diag.Warning(StageCodegen, 0, 0, fmt.Sprintf("function '%s' is never called", fn.Name))
		}
	}
}

//  Registration pass

func (c *Codegen) resolveTypeName(t TypeName) value.DataType {
	switch t.Kind {
	case INT:
		if t.IsUnsigned {
			return value.DtUint32
		}
		return value.DtInt32
	case CHAR, BYTE:
		if t.IsUnsigned {
			return value.DtUint8
		}
		return value.DtInt8
	case BOOL:
		return value.DtBool
	case FLOAT:
		return value.DtFloat
	case VOID:
		return value.DtVoid
	case CLASS:
		return value.DtClass
	default:
		return value.DtInt32
	}
}

func (c *Codegen) registerFunction(fd *FunctionDecl) {
	args := make([]value.DataType, 0, len(fd.Params))
	for _, p := range fd.Params {
		args = append(args, c.resolveTypeName(p.Type))
	}
	info := FunctionInfo{Name: fd.Name, Kind: FuncFunction, ReturnType: c.resolveTypeName(fd.ReturnType), Args: args}
	fn, exists := c.funcs.Declare(info)
	if exists {
		c.diag.Error(StageCodegen, fd.Line, fd.Col, fmt.Sprintf("function '%s' is already declared", fd.Name))
		return
	}
	c.pending = append(c.pending, &pendingFunc{Fn: fn, Params: fd.Params, Body: fd.Body})
}

func (c *Codegen) registerClass(cd *ClassDecl) {
	class := c.sym.DeclareClass(cd.Name)
	if class == nil {
		c.diag.Error(StageCodegen, cd.Line, cd.Col, fmt.Sprintf("class '%s' is already declared", cd.Name))
		return
	}
	for _, f := range cd.Fields {
		t := c.resolveTypeName(f.Type)
		class.AddField(f.Name, t, f.IsArray, f.ArraySize)
	}

	initInfo := FunctionInfo{
		Name: fmt.Sprintf("__%s__Init", cd.Name), ParentClass: cd.Name, Kind: FuncClassInit,
		ReturnType: value.DtVoid, Args: []value.DataType{value.DtPointer}, IsParameterless: true,
	}
	initFn, _ := c.funcs.Declare(initInfo)
	class.InitFuncId = initFn.Id
	c.pending = append(c.pending, &pendingFunc{Fn: initFn, Body: &BlockStmt{}, ClassName: cd.Name})

	for i := range cd.Methods {
		m := &cd.Methods[i]
		var name string
		switch {
		case m.IsConstructor:
			name = fmt.Sprintf("__%s__Constructor", cd.Name)
		case m.IsDestructor:
			name = fmt.Sprintf("__%s__Destructor", cd.Name)
		default:
			name = fmt.Sprintf("__%s__%s", cd.Name, m.Name)
		}
		args := []value.DataType{value.DtPointer}
		for _, p := range m.Params {
			args = append(args, c.resolveTypeName(p.Type))
		}
		info := FunctionInfo{Name: name, ParentClass: cd.Name, Kind: FuncClassMethod, ReturnType: c.resolveTypeName(m.ReturnType), Args: args}
		fn, exists := c.funcs.Declare(info)
		if exists {
			c.diag.Error(StageCodegen, m.Line, m.Col, fmt.Sprintf("'%s' is already declared on class '%s'", m.Name, cd.Name))
			continue
		}
		if m.IsConstructor {
			class.CtorFuncId = fn.Id
		}
		if m.IsDestructor {
			class.DtorFuncId = fn.Id
		}
		c.pending = append(c.pending, &pendingFunc{Fn: fn, Params: m.Params, Body: m.Body, ClassName: cd.Name})
	}
}

func (c *Codegen) compileFunctionBody(pf *pendingFunc) {
	prevFunc, prevClass, prevTop := c.curFunc, c.currentClass, c.compilingScriptTop
	c.curFunc = pf.Fn
	c.compilingScriptTop = false
	if pf.ClassName != "" {
		class, _ := c.sym.ResolveClass(pf.ClassName)
		c.currentClass = class
	} else {
		c.currentClass = nil
	}

	c.sym.EnterFunction()
	if pf.Fn.Kind == FuncClassInit || pf.Fn.Kind == FuncClassMethod {
		c.sym.DeclareLocal("this", value.DtPointer, false, 0, 0, 0)
	}
	for _, p := range pf.Params {
		t := c.resolveTypeName(p.Type)
		c.sym.DeclareLocal(p.Name, t, p.IsArray, p.ArraySize, p.Line, p.Col)
	}

	if pf.Body != nil {
		for _, s := range pf.Body.Stmts {
			c.compileStmt(s)
		}
	}

	if !pf.Fn.ReturnSupplied {
		if pf.Fn.ReturnType != value.DtVoid {
			c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("function '%s' does not return a value on every path", pf.Fn.Name))
		}
		c.emitOp(opcode.NIL)
		c.emitOp(opcode.RETURN)
	}

	c.sym.ExitFunction()
	c.curFunc, c.currentClass, c.compilingScriptTop = prevFunc, prevClass, prevTop
}

//  Byte-level emission helpers

func (c *Codegen) emitOp(op opcode.Op) int {
	pos := len(c.curFunc.Code)
	c.curFunc.Code = append(c.curFunc.Code, byte(op))
	return pos
}

func (c *Codegen) emitByte(b byte) { c.curFunc.Code = append(c.curFunc.Code, b) }

func (c *Codegen) emitU16(v uint16) {
	c.emitByte(byte(v))
	c.emitByte(byte(v >> 8))
}

func (c *Codegen) emitU24(v uint32) {
	c.emitByte(byte(v))
	c.emitByte(byte(v >> 8))
	c.emitByte(byte(v >> 16))
}

func (c *Codegen) emitU32(v uint32) {
	c.emitByte(byte(v))
	c.emitByte(byte(v >> 8))
	c.emitByte(byte(v >> 16))
	c.emitByte(byte(v >> 24))
}

func (c *Codegen) patchU16(pos int, v uint16) {
	c.curFunc.Code[pos] = byte(v)
	c.curFunc.Code[pos+1] = byte(v >> 8)
}

func (c *Codegen) patchU32(pos int, v uint32) {
	for i := 0; i < 4; i++ {
		c.curFunc.Code[pos+i] = byte(v >> (8 * i))
	}
}

// patchForward resolves a placeholder u16 operand at pos for a forward
// jump whose effective ip (after reading the 2-byte operand) lands at
// target.
func (c *Codegen) patchForward(pos, target int) {
	ipAfter := pos + 2
	c.patchU16(pos, uint16(target-ipAfter))
}

// patchBackward is patchForward's mirror for LOOP/CONTINUE, whose offset
// is subtracted from ip instead of added.
func (c *Codegen) patchBackward(pos, target int) {
	ipAfter := pos + 2
	c.patchU16(pos, uint16(ipAfter-target))
}

//  Constant / string pools

func (c *Codegen) addConstant(v value.Value, t value.DataType) int {
	key := constKey{v, t}
	if idx, ok := c.constIndex[key]; ok {
		return idx
	}
	idx := len(c.constants)
	c.constants = append(c.constants, v)
	c.constTypes = append(c.constTypes, t)
	c.constIndex[key] = idx
	return idx
}

func (c *Codegen) addFunctionConstant(key string) int {
	if idx, ok := c.funcConstByKey[key]; ok {
		return idx
	}
	idx := len(c.constants)
	c.constants = append(c.constants, value.FunctionVal(0))
	c.constTypes = append(c.constTypes, value.DtFunction)
	c.funcConstByKey[key] = idx
	c.funcConstRefs = append(c.funcConstRefs, FuncConstRef{ConstIndex: idx, Key: key})
	return idx
}

func (c *Codegen) emitConstantFetch(idx int) {
	switch {
	case idx < 256:
		c.emitOp(opcode.CONSTANT)
		c.emitByte(byte(idx))
	case idx < 65536:
		c.emitOp(opcode.CONSTANT_16)
		c.emitU16(uint16(idx))
	default:
		c.emitOp(opcode.CONSTANT_24)
		c.emitU24(uint32(idx))
	}
}

func (c *Codegen) pushPointerConst(p value.VmPointer) {
	idx := c.addConstant(value.PointerVal(p), value.DtPointer)
	c.emitConstantFetch(idx)
}

// addString appends s (NUL-terminated, zero-padded to a 4-byte boundary)
// to the string pool and returns its byte offset.
func (c *Codegen) addString(s string) int {
	offset := len(c.strings)
	c.strings = append(c.strings, []byte(s)...)
	c.strings = append(c.strings, 0)
	for len(c.strings)%4 != 0 {
		c.strings = append(c.strings, 0)
	}
	return offset
}

// EmbedFileName reserves name as the very first entry in the string pool,
// at offset 0, so the binary writer can set the embeddedFileName header
// flag without disturbing any other string offset already baked into
// emitted bytecode. Call it before Compile.
func (c *Codegen) EmbedFileName(name string) {
	c.addString(name)
}

func (c *Codegen) emitStringFetch(offset int) {
	switch {
	case offset < 256:
		c.emitOp(opcode.STRING)
		c.emitByte(byte(offset))
	case offset < 65536:
		c.emitOp(opcode.STRING_16)
		c.emitU16(uint16(offset))
	default:
		c.emitOp(opcode.STRING_24)
		c.emitU24(uint32(offset))
	}
}

//  Type inference

func (c *Codegen) inferType(e Expr) value.DataType {
	switch n := e.(type) {
	case *Literal:
		if n.IsFloat {
			return value.DtFloat
		}
		if n.IsUnsigned {
			return value.DtUint32
		}
		return value.DtInt32
	case *BoolLiteral:
		return value.DtBool
	case *StringLiteral:
		return value.DtString
	case *InitializerList:
		return value.DtNone
	case *VarRef:
		_, t, ok := c.resolveVarForRead(n.Name, false)
		if !ok {
			return value.DtInt32
		}
		return t
	case *BinaryExpr:
		switch n.Op {
		case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
			return value.DtBool
		case AND, PIPE, CARET, SHL_OP, SHR_OP, PERCENT:
			return value.DtInt32
		default:
			return PromotedBinaryType(c.inferType(n.Left), c.inferType(n.Right))
		}
	case *LogicalExpr:
		return value.DtBool
	case *TernaryExpr:
		return PromotedBinaryType(c.inferType(n.Then), c.inferType(n.Else))
	case *UnaryExpr:
		if n.Op == NOT {
			return value.DtBool
		}
		return c.inferType(n.Right)
	case *PrefixExpr:
		return c.inferType(n.Left)
	case *PostfixExpr:
		return c.inferType(n.Left)
	case *CastExpr:
		return c.resolveTypeName(n.Type)
	case *FunctionCall:
		if fn, ok := c.funcs.Lookup(n.Name); ok {
			return fn.ReturnType
		}
		if nf, ok := c.funcs.LookupNative(n.Name); ok {
			return nf.ReturnType
		}
		return value.DtInt32
	case *MethodCall:
		if fn, ok := c.resolveMethod(n.Left, n.Name); ok {
			return fn.ReturnType
		}
		return value.DtInt32
	case *IndexExpr:
		if ref, ok := n.Left.(*VarRef); ok {
			if v, ok := c.sym.Lookup(ref.Name); ok {
				return v.Type
			}
		}
		return value.DtInt32
	case *MemberExpr:
		if _, t, ok := c.resolveField(n.Left, n.Member); ok {
			return t
		}
		return value.DtInt32
	default:
		return value.DtInt32
	}
}

//  Name / field / method resolution

func (c *Codegen) resolveVarForRead(name string, countRead bool) (value.VmPointer, value.DataType, bool) {
	if c.currentClass != nil {
		if name != "this" {
			if field, ok := c.currentClass.LookupField(name); ok {
				ptr := value.VmPointer{Address: field.Offset, PointeeType: field.Type, Scope: value.ScopeField}
				return ptr, field.Type, true
			}
		}
	}
	if v, ok := c.sym.Lookup(name); ok {
		if countRead {
			v.Reads++
		}
		return v.Pointer, v.Type, true
	}
	return value.NullPointer, value.DtNone, false
}

// resolveField resolves Left.Member to a pointer descriptor. Left must be
// `this` or a plain VarRef naming a declared class instance; more general
// base expressions (chained member access, indexed instances) aren't
// supported by this compiler.
func (c *Codegen) resolveField(left Expr, member string) (value.VmPointer, value.DataType, bool) {
	ref, ok := left.(*VarRef)
	if !ok {
		return value.NullPointer, value.DtNone, false
	}
	if ref.Name == "this" {
		if c.currentClass == nil {
			return value.NullPointer, value.DtNone, false
		}
		field, ok := c.currentClass.LookupField(member)
		if !ok {
			return value.NullPointer, value.DtNone, false
		}
		return value.VmPointer{Address: field.Offset, PointeeType: field.Type, Scope: value.ScopeField}, field.Type, true
	}
	v, ok := c.sym.Lookup(ref.Name)
	if !ok || v.Type != value.DtClass {
		return value.NullPointer, value.DtNone, false
	}
	class, ok := c.sym.ResolveClass(v.ClassName)
	if !ok {
		return value.NullPointer, value.DtNone, false
	}
	field, ok := class.LookupField(member)
	if !ok {
		return value.NullPointer, value.DtNone, false
	}
	ptr := value.VmPointer{Address: v.Pointer.Address + field.Offset, PointeeType: field.Type, Scope: v.Pointer.Scope}
	return ptr, field.Type, true
}

func (c *Codegen) resolveMethod(left Expr, name string) (*ScriptFunction, bool) {
	className := ""
	if ref, ok := left.(*VarRef); ok {
		if ref.Name == "this" {
			if c.currentClass == nil {
				return nil, false
			}
			className = c.currentClass.Name
		} else if v, ok := c.sym.Lookup(ref.Name); ok && v.Type == value.DtClass {
			className = v.ClassName
		}
	}
	if className == "" {
		return nil, false
	}
	return c.funcs.Lookup(fmt.Sprintf("__%s__%s", className, name))
}

// pushThisValue pushes a stack-absolute `this` pointer for a method call
// on left: if left is `this`, the current frame's slot-0 value (already
// absolute) is reused; otherwise left's own base pointer is converted via
// OP_ABSOLUTE_POINTER.
func (c *Codegen) pushThisValue(left Expr) bool {
	if ref, ok := left.(*VarRef); ok && ref.Name == "this" {
		c.pushPointerConst(value.VmPointer{Address: 0, PointeeType: value.DtPointer, Scope: value.ScopeLocal})
		c.emitOp(opcode.GET_VARIABLE)
		return true
	}
	ref, ok := left.(*VarRef)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, "unsupported method receiver expression")
		return false
	}
	v, ok := c.sym.Lookup(ref.Name)
	if !ok || v.Type != value.DtClass {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("'%s' is not a class instance", ref.Name))
		return false
	}
	c.pushPointerConst(value.VmPointer{Address: v.Pointer.Address, PointeeType: value.DtPointer, Scope: v.Pointer.Scope})
	c.emitOp(opcode.ABSOLUTE_POINTER)
	return true
}

//  Casting

func (c *Codegen) castTo(natural, expected value.DataType) {
	if expected == value.DtNone || expected == natural {
		return
	}
	switch CheckCompatibility(expected, natural) {
	case Match, NotApplicable, CastSignedToUnsigned, CastUnsignedToSigned:
		return
	case CastSignedToFloat, CastUnsignedToFloat:
		c.diag.Warning(StageCodegen, 0, 0, "implicit cast from integer to float")
		c.emitOp(opcode.CAST_INT_TO_FLOAT)
	case CastFloatToSigned, CastFloatToUnsigned:
		c.diag.Warning(StageCodegen, 0, 0, "implicit cast from float to integer")
		c.emitOp(opcode.CAST_FLOAT_TO_INT)
	default:
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("cannot use a value of type '%s' where '%s' is expected", natural, expected))
	}
}

//  Statements

func (c *Codegen) compileStmt(s Stmt) {
	switch n := s.(type) {
	case *VariableDecl:
		c.compileVariableDecl(n)
	case *ClassInstanceDecl:
		c.compileClassInstanceDecl(n)
	case *Assignment:
		c.compileAssignment(n)
	case *ReturnStmt:
		c.compileReturn(n)
	case *BlockStmt:
		c.sym.ScopeBegin()
		for _, st := range n.Stmts {
			c.compileStmt(st)
		}
		c.compileScopeEnd()
	case *IfStmt:
		c.compileIf(n)
	case *WhileStmt:
		c.compileWhile(n)
	case *ForStmt:
		c.compileFor(n)
	case *SwitchStmt:
		c.compileSwitch(n)
	case *BreakStmt:
		c.compileBreak()
	case *ContinueStmt:
		c.compileContinue()
	case *ExprStmt:
		c.compileExpr(n.Expr, value.DtNone)
		c.emitOp(opcode.POP)
	case *FunctionDecl, *ClassDecl:
		c.diag.Error(StageCodegen, 0, 0, "nested function/class declarations are not supported")
	default:
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("unhandled statement %T", n))
	}
}

func (c *Codegen) compileScopeEnd() {
	popped := c.sym.ScopeEnd()
	var total uint16
	for i := len(popped) - 1; i >= 0; i-- {
		v := popped[i]
		if v.Reads == 0 {
			c.diag.Warning(StageCodegen, v.Line, v.Col, fmt.Sprintf("unused variable '%s'", v.Name))
		}
		if v.Type == value.DtClass {
			c.emitDestructorCall(v)
		}
		total += v.SlotSize
	}
	if total > 0 {
		c.emitPopN(total)
	}
}

func (c *Codegen) emitPopN(n uint16) {
	for n > 255 {
		c.emitOp(opcode.POP_N)
		c.emitByte(255)
		n -= 255
	}
	if n == 1 {
		c.emitOp(opcode.POP)
		return
	}
	c.emitOp(opcode.POP_N)
	c.emitByte(byte(n))
}

func (c *Codegen) emitDestructorCall(v *Variable) {
	class, ok := c.sym.ResolveClass(v.ClassName)
	if !ok || class.DtorFuncId < 0 {
		return
	}
	dtor := c.funcByID(class.DtorFuncId)
	if dtor == nil {
		return
	}
	c.emitOp(opcode.FRAME)
	idx := c.addFunctionConstant(dtor.Key())
	c.emitConstantFetch(idx)
	c.pushPointerConst(value.VmPointer{Address: v.Pointer.Address, PointeeType: value.DtPointer, Scope: v.Pointer.Scope})
	c.emitOp(opcode.ABSOLUTE_POINTER)
	c.emitOp(opcode.CALL)
	c.emitByte(1)
	c.emitOp(opcode.POP)
}

func (c *Codegen) funcByID(id int) *ScriptFunction {
	for _, fn := range c.funcs.All() {
		if fn.Id == id {
			return fn
		}
	}
	return nil
}

func setIndexedOp(t value.DataType) opcode.Op {
	switch t {
	case value.DtInt8, value.DtBool:
		return opcode.SET_INDEXED_S8
	case value.DtUint8:
		return opcode.SET_INDEXED_U8
	case value.DtInt16:
		return opcode.SET_INDEXED_S16
	case value.DtUint16:
		return opcode.SET_INDEXED_U16
	case value.DtFloat:
		return opcode.SET_INDEXED_FLOAT
	case value.DtUint32:
		return opcode.SET_INDEXED_U32
	default:
		return opcode.SET_INDEXED_S32
	}
}

func getIndexedOp(t value.DataType) opcode.Op {
	switch t {
	case value.DtInt8, value.DtBool:
		return opcode.GET_INDEXED_S8
	case value.DtUint8:
		return opcode.GET_INDEXED_U8
	case value.DtInt16:
		return opcode.GET_INDEXED_S16
	case value.DtUint16:
		return opcode.GET_INDEXED_U16
	case value.DtFloat:
		return opcode.GET_INDEXED_FLOAT
	case value.DtUint32:
		return opcode.GET_INDEXED_U32
	default:
		return opcode.GET_INDEXED_S32
	}
}

func (c *Codegen) compileVariableDecl(vd *VariableDecl) {
	t := c.resolveTypeName(vd.Type)
	isGlobal := c.compilingScriptTop && c.sym.CurrentDepth() == 0

	if vd.IsArray {
		var v *Variable
		if isGlobal {
			v, _ = c.sym.DeclareGlobal(vd.Name, t, true, vd.ArraySize, vd.Line, vd.Col)
		} else {
			v = c.sym.DeclareLocal(vd.Name, t, true, vd.ArraySize, vd.Line, vd.Col)
			if v.SlotSize > 255 {
				c.diag.Error(StageCodegen, vd.Line, vd.Col, fmt.Sprintf("array '%s' is too large", vd.Name))
			}
			c.emitOp(opcode.ARRAY)
			c.emitByte(byte(v.SlotSize))
		}
		c.compileArrayInit(v, vd.Init)
		return
	}

	if isGlobal {
		v, _ := c.sym.DeclareGlobal(vd.Name, t, false, 0, vd.Line, vd.Col)
		if vd.Init != nil {
			c.compileExpr(vd.Init, t)
			c.pushPointerConst(v.Pointer)
			c.emitOp(opcode.SET_VARIABLE)
			c.emitOp(opcode.POP)
			v.Written = true
		}
		return
	}

	v := c.sym.DeclareLocal(vd.Name, t, false, 0, vd.Line, vd.Col)
	c.emitOp(opcode.PUSH)
	if vd.Init != nil {
		c.compileExpr(vd.Init, t)
		c.pushPointerConst(v.Pointer)
		c.emitOp(opcode.SET_VARIABLE)
		c.emitOp(opcode.POP)
		v.Written = true
	}
}

func (c *Codegen) compileArrayInit(v *Variable, init Expr) {
	if init == nil {
		return
	}
	list, ok := init.(*InitializerList)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("array '%s' must be initialized with {...}", v.Name))
		return
	}
	if len(list.Elements) > v.ArraySize {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("too many initializers for array '%s'", v.Name))
	}
	basePtr := value.VmPointer{Address: v.Pointer.Address, PointeeType: v.Type, Scope: v.Pointer.Scope}
	for i, elem := range list.Elements {
		c.compileExpr(elem, v.Type)
		c.pushPointerConst(basePtr)
		idx := c.addConstant(value.Int32Val(int32(i)), value.DtInt32)
		c.emitConstantFetch(idx)
		c.emitOp(setIndexedOp(v.Type))
		c.emitOp(opcode.POP)
	}
	v.Written = true
}

func (c *Codegen) compileClassInstanceDecl(cid *ClassInstanceDecl) {
	class, ok := c.sym.ResolveClass(cid.ClassName)
	if !ok {
		c.diag.Error(StageCodegen, cid.Line, cid.Col, fmt.Sprintf("unknown class '%s'", cid.ClassName))
		return
	}
	size := class.Size()
	isGlobal := c.compilingScriptTop && c.sym.CurrentDepth() == 0

	var v *Variable
	if isGlobal {
		v, _ = c.sym.DeclareGlobalClassInstance(cid.Name, cid.ClassName, size, cid.Line, cid.Col)
	} else {
		v = c.sym.DeclareLocalClassInstance(cid.Name, cid.ClassName, size, cid.Line, cid.Col)
		if size > 255 {
			c.diag.Error(StageCodegen, cid.Line, cid.Col, fmt.Sprintf("class '%s' instance is too large", cid.ClassName))
		}
		c.emitOp(opcode.PUSH_N)
		c.emitByte(byte(size))
	}

	c.emitOp(opcode.FRAME)
	idx := c.addFunctionConstant(fmt.Sprintf("__%s__Init", cid.ClassName))
	c.emitConstantFetch(idx)
	c.pushPointerConst(value.VmPointer{Address: v.Pointer.Address, PointeeType: value.DtPointer, Scope: v.Pointer.Scope})
	c.emitOp(opcode.ABSOLUTE_POINTER)
	c.emitOp(opcode.CALL)
	c.emitByte(1)
	c.emitOp(opcode.POP)

	switch {
	case class.HasConstructor() && cid.HasCtor:
		ctorKey := fmt.Sprintf("__%s__Constructor", cid.ClassName)
		ctor, _ := c.funcs.Lookup(ctorKey)
		c.emitOp(opcode.FRAME)
		idx2 := c.addFunctionConstant(ctorKey)
		c.emitConstantFetch(idx2)
		c.pushPointerConst(value.VmPointer{Address: v.Pointer.Address, PointeeType: value.DtPointer, Scope: v.Pointer.Scope})
		c.emitOp(opcode.ABSOLUTE_POINTER)
		for i, a := range cid.Args {
			paramType := value.DtInt32
			if ctor != nil && i+1 < len(ctor.Args) {
				paramType = ctor.Args[i+1]
			}
			c.compileExpr(a, paramType)
		}
		c.emitOp(opcode.CALL)
		c.emitByte(byte(1 + len(cid.Args)))
		c.emitOp(opcode.POP)
	case class.HasConstructor() && !cid.HasCtor:
		c.diag.Warning(StageCodegen, cid.Line, cid.Col, fmt.Sprintf("class '%s' has a constructor but instance '%s' was declared without one", cid.ClassName, cid.Name))
	case !class.HasConstructor() && cid.HasCtor:
		c.diag.Error(StageCodegen, cid.Line, cid.Col, fmt.Sprintf("class '%s' has no constructor", cid.ClassName))
	}
}

func (c *Codegen) compileReturn(r *ReturnStmt) {
	if c.curFunc.ReturnType == value.DtVoid {
		if r.Expr != nil {
			c.diag.Error(StageCodegen, r.Line, r.Col, "void function cannot return a value")
		}
		c.emitOp(opcode.NIL)
	} else if r.Expr == nil {
		c.diag.Error(StageCodegen, r.Line, r.Col, fmt.Sprintf("function '%s' must return a value", c.curFunc.Name))
		c.emitOp(opcode.NIL)
	} else {
		c.compileExpr(r.Expr, c.curFunc.ReturnType)
	}
	c.emitOp(opcode.RETURN)
	if c.curFunc.ConditionalDepth == 0 {
		c.curFunc.ReturnSupplied = true
	}
}

func (c *Codegen) compileIf(n *IfStmt) {
	c.compileExpr(n.Condition, value.DtNone)
	pos1 := c.emitOp(opcode.JUMP_IF_FALSE)
	c.emitU16(0)
	c.emitOp(opcode.POP)
	c.curFunc.EnterConditional()
	c.compileStmt(n.Body)
	if n.ElseBody != nil {
		pos2 := c.emitOp(opcode.JUMP)
		c.emitU16(0)
		c.patchForward(pos1+1, len(c.curFunc.Code))
		c.emitOp(opcode.POP)
		c.compileStmt(n.ElseBody)
		c.patchForward(pos2+1, len(c.curFunc.Code))
	} else {
		c.patchForward(pos1+1, len(c.curFunc.Code))
		c.emitOp(opcode.POP)
	}
	c.curFunc.ExitConditional()
}

func (c *Codegen) pushBreakable(isLoop bool) *breakable {
	b := &breakable{isLoop: isLoop, symDepth: c.sym.CurrentDepth()}
	c.breakables = append(c.breakables, b)
	return b
}

func (c *Codegen) popBreakable() {
	c.breakables = c.breakables[:len(c.breakables)-1]
}

func (c *Codegen) compileWhile(n *WhileStmt) {
	condStart := len(c.curFunc.Code)
	c.compileExpr(n.Condition, value.DtNone)
	exitPos := c.emitOp(opcode.JUMP_IF_FALSE)
	c.emitU16(0)
	c.emitOp(opcode.POP)

	b := c.pushBreakable(true)
	c.curFunc.EnterConditional()
	c.compileStmt(n.Body)
	c.curFunc.ExitConditional()

	for _, p := range b.continuePatches {
		c.patchBackward(p, condStart)
	}
	loopPos := c.emitOp(opcode.LOOP)
	c.emitU16(0)
	c.patchBackward(loopPos+1, condStart)

	c.patchForward(exitPos+1, len(c.curFunc.Code))
	c.emitOp(opcode.POP)
	for _, p := range b.breakPatches {
		c.patchForward(p, len(c.curFunc.Code))
	}
	c.popBreakable()
}

func (c *Codegen) compileFor(n *ForStmt) {
	c.sym.ScopeBegin()
	if n.Init != nil {
		c.compileStmt(n.Init)
	}

	condStart := len(c.curFunc.Code)
	var exitPos int
	hasCond := n.Cond != nil
	if hasCond {
		c.compileExpr(n.Cond, value.DtNone)
		exitPos = c.emitOp(opcode.JUMP_IF_FALSE)
		c.emitU16(0)
		c.emitOp(opcode.POP)
	}

	b := c.pushBreakable(true)
	c.curFunc.EnterConditional()
	c.compileStmt(n.Body)
	c.curFunc.ExitConditional()

	continueTarget := len(c.curFunc.Code)
	for _, p := range b.continuePatches {
		c.patchBackward(p, continueTarget)
	}
	if n.Post != nil {
		c.compileStmt(n.Post)
	}
	loopPos := c.emitOp(opcode.LOOP)
	c.emitU16(0)
	c.patchBackward(loopPos+1, condStart)

	if hasCond {
		c.patchForward(exitPos+1, len(c.curFunc.Code))
		c.emitOp(opcode.POP)
	}
	for _, p := range b.breakPatches {
		c.patchForward(p, len(c.curFunc.Code))
	}
	c.popBreakable()
	c.compileScopeEnd()
}

func (c *Codegen) compileBreak() {
	if len(c.breakables) == 0 {
		c.diag.Error(StageCodegen, 0, 0, "break outside of a loop or switch")
		return
	}
	b := c.breakables[len(c.breakables)-1]
	if n := c.sym.LocalsSlotCountAboveDepth(b.symDepth); n > 0 {
		c.emitPopN(n)
	}
	pos := c.emitOp(opcode.BREAK)
	c.emitU16(0)
	b.breakPatches = append(b.breakPatches, pos+1)
}

func (c *Codegen) compileContinue() {
	for i := len(c.breakables) - 1; i >= 0; i-- {
		if !c.breakables[i].isLoop {
			continue
		}
		b := c.breakables[i]
		if n := c.sym.LocalsSlotCountAboveDepth(b.symDepth); n > 0 {
			c.emitPopN(n)
		}
		pos := c.emitOp(opcode.CONTINUE)
		c.emitU16(0)
		b.continuePatches = append(b.continuePatches, pos+1)
		return
	}
	c.diag.Error(StageCodegen, 0, 0, "continue outside of a loop")
}

func (c *Codegen) compileSwitch(sw *SwitchStmt) {
	c.compileExpr(sw.Target, value.DtInt32)
	c.emitOp(opcode.SWITCH)
	tableEndPos := len(c.curFunc.Code)
	c.emitU16(0)
	minPos := len(c.curFunc.Code)
	c.emitU32(0)
	maxPos := len(c.curFunc.Code)
	c.emitU32(0)

	b := c.pushBreakable(false)
	bodyPos := make(map[int64]int)
	var min, max int64
	if len(sw.Cases) > 0 {
		min, max = sw.Cases[0].Value, sw.Cases[0].Value
	}
	for _, cc := range sw.Cases {
		if cc.Value < min {
			min = cc.Value
		}
		if cc.Value > max {
			max = cc.Value
		}
	}
	for _, cc := range sw.Cases {
		bodyPos[cc.Value] = len(c.curFunc.Code)
		for _, st := range cc.Body {
			c.compileStmt(st)
		}
	}
	defaultPos := -1
	if sw.Default != nil {
		defaultPos = len(c.curFunc.Code)
		for _, st := range sw.Default {
			c.compileStmt(st)
		}
	}
	c.popBreakable()

	tableStart := len(c.curFunc.Code)
	n := max - min + 2
	if len(sw.Cases) > 0 && n > int64(2*len(sw.Cases)+2) {
		c.diag.Warning(StageCodegen, 0, 0, "switch case range is sparse relative to its case count")
	}
	afterTable := tableStart + int(n)*2
	defaultTarget := afterTable
	if defaultPos >= 0 {
		defaultTarget = defaultPos
	}

	// Every table entry is a backward offset measured from afterTable, the
	// address immediately following the full table — not from the entry's
	// own position — so the VM can apply one shared base to whichever slot
	// the case index selects.
	writeEntry := func(target int) {
		c.emitU16(uint16(afterTable - target))
	}
	writeEntry(defaultTarget)
	for val := min; val <= max; val++ {
		if pos, ok := bodyPos[val]; ok {
			writeEntry(pos)
		} else {
			writeEntry(defaultTarget)
		}
	}

	c.patchForward(tableEndPos, afterTable)
	c.patchU32(minPos, uint32(int32(min)))
	c.patchU32(maxPos, uint32(int32(max)))

	for _, p := range b.breakPatches {
		c.patchForward(p, afterTable)
	}
}

//  Assignment / lvalues

func arithOpFamily(tok TokenType, t value.DataType) opcode.Op {
	fam := func(s, u, f opcode.Op) opcode.Op {
		if t == value.DtFloat {
			return f
		}
		if t == value.DtUint32 {
			return u
		}
		return s
	}
	switch tok {
	case PLUS, PLUS_ASSIGN:
		return fam(opcode.ADD_S, opcode.ADD_U, opcode.ADD_F)
	case MINUS, MINUS_ASSIGN:
		return fam(opcode.SUB_S, opcode.SUB_U, opcode.SUB_F)
	case STAR, STAR_ASSIGN:
		return fam(opcode.MULT_S, opcode.MULT_U, opcode.MULT_F)
	case SLASH, SLASH_ASSIGN:
		return fam(opcode.DIV_S, opcode.DIV_U, opcode.DIV_F)
	case EQUALS:
		return fam(opcode.EQUAL_S, opcode.EQUAL_U, opcode.EQUAL_F)
	case NOT_EQ:
		return fam(opcode.NOT_EQUAL_S, opcode.NOT_EQUAL_U, opcode.NOT_EQUAL_F)
	case LESS:
		return fam(opcode.LESS_S, opcode.LESS_U, opcode.LESS_F)
	case LESS_EQ:
		return fam(opcode.LESS_OR_EQUAL_S, opcode.LESS_OR_EQUAL_U, opcode.LESS_OR_EQUAL_F)
	case GREATER:
		return fam(opcode.GREATER_S, opcode.GREATER_U, opcode.GREATER_F)
	case GREATER_EQ:
		return fam(opcode.GREATER_OR_EQUAL_S, opcode.GREATER_OR_EQUAL_U, opcode.GREATER_OR_EQUAL_F)
	}
	return opcode.NOP
}

func isComparisonOp(tok TokenType) bool {
	switch tok {
	case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		return true
	}
	return false
}

func (c *Codegen) compileAssignment(a *Assignment) {
	switch left := a.Left.(type) {
	case *VarRef:
		c.compileSimpleAssign(left.Name, a.Op, a.Value)
	case *IndexExpr:
		c.compileIndexedAssign(left, a.Op, a.Value)
	case *MemberExpr:
		c.compileMemberAssign(left, a.Op, a.Value)
	default:
		c.diag.Error(StageCodegen, 0, 0, "invalid assignment target")
	}
}

func (c *Codegen) compileSimpleAssign(name string, op TokenType, rhs Expr) {
	ptr, t, ok := c.resolveVarForRead(name, op != ASSIGN)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("undefined variable '%s'", name))
		return
	}
	if v, ok2 := c.sym.Lookup(name); ok2 {
		v.Written = true
	}
	if op == ASSIGN {
		c.compileExpr(rhs, t)
		c.pushPointerConst(ptr)
		c.emitOp(opcode.SET_VARIABLE)
		c.emitOp(opcode.POP)
		return
	}
	promoted := PromotedBinaryType(t, c.inferType(rhs))
	c.pushPointerConst(ptr)
	c.emitOp(opcode.GET_VARIABLE)
	c.castTo(t, promoted)
	c.compileExpr(rhs, promoted)
	c.emitOp(arithOpFamily(op, promoted))
	c.castTo(promoted, t)
	c.pushPointerConst(ptr)
	c.emitOp(opcode.SET_VARIABLE)
	c.emitOp(opcode.POP)
}

func (c *Codegen) compileIndexedAssign(left *IndexExpr, op TokenType, rhs Expr) {
	ref, ok := left.Left.(*VarRef)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, "unsupported indexed-assignment target")
		return
	}
	v, ok := c.sym.Lookup(ref.Name)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("undefined variable '%s'", ref.Name))
		return
	}
	v.Written = true
	basePtr := value.VmPointer{Address: v.Pointer.Address, PointeeType: v.Type, Scope: v.Pointer.Scope}

	if op == ASSIGN {
		c.compileExpr(rhs, v.Type)
		c.pushPointerConst(basePtr)
		c.compileExpr(left.Index, value.DtInt32)
		c.emitOp(setIndexedOp(v.Type))
		c.emitOp(opcode.POP)
		return
	}

	c.pushPointerConst(basePtr)
	c.compileExpr(left.Index, value.DtInt32)
	c.emitOp(getIndexedOp(v.Type))
	promoted := PromotedBinaryType(v.Type, c.inferType(rhs))
	c.castTo(v.Type, promoted)
	c.compileExpr(rhs, promoted)
	c.emitOp(arithOpFamily(op, promoted))
	c.castTo(promoted, v.Type)
	c.pushPointerConst(basePtr)
	c.compileExpr(left.Index, value.DtInt32)
	c.emitOp(setIndexedOp(v.Type))
	c.emitOp(opcode.POP)
}

func (c *Codegen) compileMemberAssign(left *MemberExpr, op TokenType, rhs Expr) {
	ptr, t, ok := c.resolveField(left.Left, left.Member)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("unknown field '%s'", left.Member))
		return
	}
	if op == ASSIGN {
		c.compileExpr(rhs, t)
		c.pushPointerConst(ptr)
		c.emitOp(opcode.SET_VARIABLE)
		c.emitOp(opcode.POP)
		return
	}
	promoted := PromotedBinaryType(t, c.inferType(rhs))
	c.pushPointerConst(ptr)
	c.emitOp(opcode.GET_VARIABLE)
	c.castTo(t, promoted)
	c.compileExpr(rhs, promoted)
	c.emitOp(arithOpFamily(op, promoted))
	c.castTo(promoted, t)
	c.pushPointerConst(ptr)
	c.emitOp(opcode.SET_VARIABLE)
	c.emitOp(opcode.POP)
}

//  Expressions

// compileExpr evaluates e, leaving its value on the stack as type
// `expected` (casting from its natural type if needed), and returns the
// type actually left on the stack. Pass DtNone when the caller doesn't
// need a specific type.
func (c *Codegen) compileExpr(e Expr, expected value.DataType) value.DataType {
	natural := c.compileExprNatural(e)
	if expected != value.DtNone {
		c.castTo(natural, expected)
		return expected
	}
	return natural
}

func (c *Codegen) compileExprNatural(e Expr) value.DataType {
	switch n := e.(type) {
	case *Literal:
		if n.IsFloat {
			idx := c.addConstant(value.FloatVal(float32(n.FloatValue)), value.DtFloat)
			c.emitConstantFetch(idx)
			return value.DtFloat
		}
		if n.IsUnsigned {
			idx := c.addConstant(value.Uint32Val(uint32(n.Value)), value.DtUint32)
			c.emitConstantFetch(idx)
			return value.DtUint32
		}
		idx := c.addConstant(value.Int32Val(int32(n.Value)), value.DtInt32)
		c.emitConstantFetch(idx)
		return value.DtInt32

	case *BoolLiteral:
		if n.Value {
			c.emitOp(opcode.TRUE)
		} else {
			c.emitOp(opcode.FALSE)
		}
		return value.DtBool

	case *StringLiteral:
		c.emitStringFetch(c.addString(n.Value))
		return value.DtString

	case *VarRef:
		ptr, t, ok := c.resolveVarForRead(n.Name, true)
		if !ok {
			c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("undefined variable '%s'", n.Name))
			c.emitConstantFetch(c.addConstant(value.Int32Val(0), value.DtInt32))
			return value.DtInt32
		}
		c.pushPointerConst(ptr)
		c.emitOp(opcode.GET_VARIABLE)
		return t

	case *BinaryExpr:
		return c.compileBinary(n)

	case *LogicalExpr:
		return c.compileLogical(n)

	case *TernaryExpr:
		return c.compileTernary(n)

	case *UnaryExpr:
		return c.compileUnary(n)

	case *PrefixExpr:
		return c.compileIncDec(n.Left, n.Op, true)

	case *PostfixExpr:
		return c.compileIncDec(n.Left, n.Op, false)

	case *CastExpr:
		target := c.resolveTypeName(n.Type)
		c.compileExpr(n.Expr, target)
		return target

	case *FunctionCall:
		return c.compileFunctionCall(n)

	case *MethodCall:
		return c.compileMethodCall(n)

	case *IndexExpr:
		return c.compileIndex(n)

	case *MemberExpr:
		ptr, t, ok := c.resolveField(n.Left, n.Member)
		if !ok {
			c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("unknown field '%s'", n.Member))
			c.emitConstantFetch(c.addConstant(value.Int32Val(0), value.DtInt32))
			return value.DtInt32
		}
		c.pushPointerConst(ptr)
		c.emitOp(opcode.GET_VARIABLE)
		return t

	case *InitializerList:
		c.diag.Error(StageCodegen, 0, 0, "initializer list used outside of a declaration")
		return value.DtNone

	default:
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("unhandled expression %T", n))
		return value.DtNone
	}
}

func (c *Codegen) compileBinary(e *BinaryExpr) value.DataType {
	switch e.Op {
	case AND, PIPE, CARET, SHL_OP, SHR_OP:
		lt, rt := c.inferType(e.Left), c.inferType(e.Right)
		if lt == value.DtFloat || rt == value.DtFloat {
			c.diag.Error(StageCodegen, 0, 0, "bitwise operator requires integer operands")
		}
		c.compileExpr(e.Left, value.DtInt32)
		c.compileExpr(e.Right, value.DtInt32)
		var op opcode.Op
		switch e.Op {
		case AND:
			op = opcode.BIT_AND
		case PIPE:
			op = opcode.BIT_OR
		case CARET:
			op = opcode.BIT_XOR
		case SHL_OP:
			op = opcode.BIT_SHIFT_L
		case SHR_OP:
			op = opcode.BIT_SHIFT_R
		}
		c.emitOp(op)
		return value.DtInt32

	case PERCENT:
		lt, rt := c.inferType(e.Left), c.inferType(e.Right)
		if lt == value.DtFloat || rt == value.DtFloat {
			c.diag.Warning(StageCodegen, 0, 0, "% used with a float operand")
		}
		c.compileExpr(e.Left, value.DtInt32)
		c.compileExpr(e.Right, value.DtInt32)
		c.emitOp(opcode.MODULUS)
		return value.DtInt32

	default:
		promoted := PromotedBinaryType(c.inferType(e.Left), c.inferType(e.Right))
		c.compileExpr(e.Left, promoted)
		c.compileExpr(e.Right, promoted)
		c.emitOp(arithOpFamily(e.Op, promoted))
		if isComparisonOp(e.Op) {
			return value.DtBool
		}
		return promoted
	}
}

func (c *Codegen) compileLogical(e *LogicalExpr) value.DataType {
	c.compileExpr(e.Left, value.DtNone)
	var pos int
	if e.Op == AND_LOGICAL {
		pos = c.emitOp(opcode.JUMP_IF_FALSE)
	} else {
		pos = c.emitOp(opcode.JUMP_IF_TRUE)
	}
	c.emitU16(0)
	c.emitOp(opcode.POP)
	c.compileExpr(e.Right, value.DtNone)
	c.patchForward(pos+1, len(c.curFunc.Code))
	return value.DtBool
}

func (c *Codegen) compileTernary(t *TernaryExpr) value.DataType {
	promoted := PromotedBinaryType(c.inferType(t.Then), c.inferType(t.Else))
	c.compileExpr(t.Cond, value.DtNone)
	pos1 := c.emitOp(opcode.JUMP_IF_FALSE)
	c.emitU16(0)
	c.emitOp(opcode.POP)
	c.compileExpr(t.Then, promoted)
	pos2 := c.emitOp(opcode.JUMP)
	c.emitU16(0)
	c.patchForward(pos1+1, len(c.curFunc.Code))
	c.emitOp(opcode.POP)
	c.compileExpr(t.Else, promoted)
	c.patchForward(pos2+1, len(c.curFunc.Code))
	return promoted
}

func (c *Codegen) compileUnary(u *UnaryExpr) value.DataType {
	switch u.Op {
	case MINUS:
		t := c.compileExpr(u.Right, value.DtNone)
		if t == value.DtFloat {
			c.emitOp(opcode.NEGATE_F)
		} else {
			c.emitOp(opcode.NEGATE_I)
		}
		return t
	case NOT:
		c.compileExpr(u.Right, value.DtInt32)
		c.emitOp(opcode.NOT)
		return value.DtBool
	case TILDE:
		c.compileExpr(u.Right, value.DtInt32)
		c.emitOp(opcode.BIT_NOT)
		return value.DtInt32
	default:
		c.diag.Error(StageCodegen, 0, 0, "unsupported unary operator")
		return value.DtInt32
	}
}

// compileIncDec handles ++x/--x (prefix) and x++/x-- (postfix) on a
// VarRef or MemberExpr target; indexed targets aren't supported since the
// instruction set has no indexed increment opcode.
func (c *Codegen) compileIncDec(target Expr, op TokenType, prefix bool) value.DataType {
	var ptr value.VmPointer
	var t value.DataType
	var ok bool
	switch tg := target.(type) {
	case *VarRef:
		ptr, t, ok = c.resolveVarForRead(tg.Name, true)
		if v, ok2 := c.sym.Lookup(tg.Name); ok2 {
			v.Written = true
		}
	case *MemberExpr:
		ptr, t, ok = c.resolveField(tg.Left, tg.Member)
	default:
		c.diag.Error(StageCodegen, 0, 0, "cannot increment or decrement this expression")
		return value.DtInt32
	}
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, "undefined increment/decrement target")
		return value.DtInt32
	}

	incOp, decOp := opcode.PLUS_PLUS, opcode.MINUS_MINUS
	if prefix {
		incOp, decOp = opcode.PREFIX_INCREASE, opcode.PREFIX_DECREASE
	}
	var mutate opcode.Op
	if op == PLUS_PLUS {
		mutate = incOp
	} else {
		mutate = decOp
	}

	if prefix {
		c.pushPointerConst(ptr)
		c.emitOp(mutate)
		return t
	}
	c.pushPointerConst(ptr)
	c.emitOp(opcode.GET_VARIABLE)
	c.pushPointerConst(ptr)
	c.emitOp(mutate)
	return t
}

func (c *Codegen) compileFunctionCall(n *FunctionCall) value.DataType {
	if nf, ok := c.funcs.LookupNative(n.Name); ok {
		idx := c.addConstant(value.NativeVal(uint32(nf.Id)), value.DtNativeFunc)
		c.emitConstantFetch(idx)
		if len(n.Args) != nf.TotalArgCount() {
			c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("'%s' expects %d argument(s), got %d", n.Name, nf.TotalArgCount(), len(n.Args)))
		}
		for i, a := range n.Args {
			pt := value.DtInt32
			if i < len(nf.Args) {
				pt = nf.Args[i]
			}
			c.compileExpr(a, pt)
		}
		c.emitOp(opcode.CALL_NATIVE)
		c.emitByte(byte(len(n.Args)))
		return nf.ReturnType
	}

	fn, ok := c.funcs.Lookup(n.Name)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("undefined function '%s'", n.Name))
		c.emitConstantFetch(c.addConstant(value.Int32Val(0), value.DtInt32))
		return value.DtInt32
	}
	if len(n.Args) != fn.TotalArgCount() {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("'%s' expects %d argument(s), got %d", n.Name, fn.TotalArgCount(), len(n.Args)))
	}
	c.emitOp(opcode.FRAME)
	idx := c.addFunctionConstant(fn.Key())
	c.emitConstantFetch(idx)
	for i, a := range n.Args {
		pt := value.DtInt32
		if i < len(fn.Args) {
			pt = fn.Args[i]
		}
		c.compileExpr(a, pt)
	}
	c.emitOp(opcode.CALL)
	c.emitByte(byte(fn.TotalArgCount()))
	fn.CalledCount++
	return fn.ReturnType
}

func (c *Codegen) compileMethodCall(n *MethodCall) value.DataType {
	fn, ok := c.resolveMethod(n.Left, n.Name)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("undefined method '%s'", n.Name))
		c.emitConstantFetch(c.addConstant(value.Int32Val(0), value.DtInt32))
		return value.DtInt32
	}
	if len(n.Args) != fn.ArgCount() {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("'%s' expects %d argument(s), got %d", n.Name, fn.ArgCount(), len(n.Args)))
	}
	c.emitOp(opcode.FRAME)
	idx := c.addFunctionConstant(fn.Key())
	c.emitConstantFetch(idx)
	if !c.pushThisValue(n.Left) {
		return fn.ReturnType
	}
	for i, a := range n.Args {
		pt := value.DtInt32
		if i+1 < len(fn.Args) {
			pt = fn.Args[i+1]
		}
		c.compileExpr(a, pt)
	}
	c.emitOp(opcode.CALL)
	c.emitByte(byte(fn.TotalArgCount()))
	fn.CalledCount++
	return fn.ReturnType
}

func (c *Codegen) compileIndex(n *IndexExpr) value.DataType {
	ref, ok := n.Left.(*VarRef)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, "unsupported indexing target")
		c.emitConstantFetch(c.addConstant(value.Int32Val(0), value.DtInt32))
		return value.DtInt32
	}
	v, ok := c.sym.Lookup(ref.Name)
	if !ok {
		c.diag.Error(StageCodegen, 0, 0, fmt.Sprintf("undefined variable '%s'", ref.Name))
		c.emitConstantFetch(c.addConstant(value.Int32Val(0), value.DtInt32))
		return value.DtInt32
	}
	v.Reads++
	basePtr := value.VmPointer{Address: v.Pointer.Address, PointeeType: v.Type, Scope: v.Pointer.Scope}
	c.pushPointerConst(basePtr)
	c.compileExpr(n.Index, value.DtInt32)
	c.emitOp(getIndexedOp(v.Type))
	return v.Type
}
