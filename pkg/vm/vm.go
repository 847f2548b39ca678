package vm

import (
	"mec/pkg/opcode"
	"mec/pkg/value"
)

// Status is the VM's run-state, checked by the host between dispatches
// instead of the interpreter raising exceptions.
type Status int

const (
	StatusOk Status = iota
	StatusStop
	StatusEnd
	StatusUnknownInstruction
	StatusStackUnderflow
	StatusStackOverflow
	StatusUnknownFieldScope
	StatusCallArgCountError
	StatusCallNotAFunction
	StatusCallFrameOverflow
	StatusNativeNotResolved
	StatusNoProgramLoaded
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusStop:
		return "stop"
	case StatusEnd:
		return "end"
	case StatusUnknownInstruction:
		return "unknown-instruction"
	case StatusStackUnderflow:
		return "stack-underflow"
	case StatusStackOverflow:
		return "stack-overflow"
	case StatusUnknownFieldScope:
		return "unknown-field-scope"
	case StatusCallArgCountError:
		return "call-arg-count-error"
	case StatusCallNotAFunction:
		return "call-not-a-function"
	case StatusCallFrameOverflow:
		return "call-frame-overflow"
	case StatusNativeNotResolved:
		return "native-not-resolved"
	case StatusNoProgramLoaded:
		return "no-program-loaded"
	default:
		return "unknown-status"
	}
}

// frameRecordWords is the fixed size, in Value words, of the snapshot
// OP_FRAME reserves and OP_CALL later fills in and OP_RETURN consumes:
// {enclosing record address, return ip, caller slots base}.
const frameRecordWords = 3

const maxCallDepth = 1024

// NativeFunc is the host-supplied implementation of one native function
// id: it reads its arguments directly out of the VM's stack starting at
// argsAddr and returns the Value the calling script receives.
type NativeFunc func(vm *VM, sysParam any, argc int, argsAddr uint32) value.Value

// Resolver looks up the native implementation for funcId, returning
// ok=false if the host has no such function — the VM then halts with
// StatusNativeNotResolved.
type Resolver func(funcId int, argc int) (NativeFunc, bool)

// frame is the VM's single in-register call frame.
type frame struct {
	enclosing uint32 // absolute word address of the enclosing frame's saved record; sentinel noEnclosing at the script's outermost frame
	slots     uint32 // absolute word address of this frame's argument 0
}

const noEnclosing = ^uint32(0)

// VM executes a decoded Program against a caller-provided stack buffer
// laid out as globals followed by the working stack. The VM owns no
// memory beyond that buffer: the program image is read-only and the
// stack is the only mutable state.
type VM struct {
	Program *Program
	Stack   []value.Value

	ip uint32
	sp uint32
	fr frame

	callDepth int

	Status   Status
	Resolver Resolver
	SysParam any

	Verbose bool
}

// New allocates a VM over program with a stack buffer sized stackWords
// beyond the globals region. Globals occupy [0, globalsWords); the
// working stack begins immediately after.
func New(program *Program, stackWords uint32, resolver Resolver, sysParam any) *VM {
	globalsWords := program.Header.GlobalsSize / 4
	buf := make([]value.Value, globalsWords+stackWords)
	return &VM{
		Program:  program,
		Stack:    buf,
		ip:       0,
		sp:       globalsWords,
		fr:       frame{enclosing: noEnclosing, slots: globalsWords},
		Resolver: resolver,
		SysParam: sysParam,
	}
}

func (m *VM) fail(s Status) { m.Status = s }

func (m *VM) push(v value.Value) {
	if m.sp >= uint32(len(m.Stack)) {
		m.fail(StatusStackOverflow)
		return
	}
	m.Stack[m.sp] = v
	m.sp++
}

func (m *VM) pop() value.Value {
	if m.sp == 0 {
		m.fail(StatusStackUnderflow)
		return 0
	}
	m.sp--
	return m.Stack[m.sp]
}

func (m *VM) peek() value.Value {
	if m.sp == 0 {
		m.fail(StatusStackUnderflow)
		return 0
	}
	return m.Stack[m.sp-1]
}

func (m *VM) fetchByte() byte {
	if m.ip >= uint32(len(m.Program.Code)) {
		m.fail(StatusUnknownInstruction)
		return 0
	}
	b := m.Program.Code[m.ip]
	m.ip++
	return b
}

func (m *VM) fetchU16() uint16 {
	lo := m.fetchByte()
	hi := m.fetchByte()
	return uint16(lo) | uint16(hi)<<8
}

func (m *VM) fetchU32() uint32 {
	b0 := m.fetchByte()
	b1 := m.fetchByte()
	b2 := m.fetchByte()
	b3 := m.fetchByte()
	return uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16 | uint32(b3)<<24
}

// ResolveAddress exposes resolveAddress to native functions, which
// receive raw VmPointer arguments and need the same scope resolution
// the interpreter applies to GET_VARIABLE/SET_VARIABLE.
func (m *VM) ResolveAddress(p value.VmPointer) uint32 { return m.resolveAddress(p) }

// resolveAddress turns a VmPointer into an absolute word index into
// m.Stack, according to its scope.
func (m *VM) resolveAddress(p value.VmPointer) uint32 {
	switch p.Scope {
	case value.ScopeStackAbsolute, value.ScopeGlobal:
		return uint32(p.Address)
	case value.ScopeLocal:
		return m.fr.slots + uint32(p.Address)
	case value.ScopeField:
		this := m.Stack[m.fr.slots].AsPointer()
		return uint32(this.Address) + uint32(p.Address)
	default:
		m.fail(StatusUnknownFieldScope)
		return 0
	}
}

// Run executes opcodes until Status leaves StatusOk.
func (m *VM) Run() Status {
	if m.Program == nil {
		m.fail(StatusNoProgramLoaded)
		return m.Status
	}
	for m.Status == StatusOk {
		m.step()
	}
	return m.Status
}

func (m *VM) step() {
	op := opcode.Op(m.fetchByte())
	if m.Status != StatusOk {
		return
	}

	switch op {
	case opcode.NOP:

	case opcode.PUSH:
		m.push(0)
	case opcode.PUSH_N:
		n := m.fetchByte()
		for i := byte(0); i < n; i++ {
			m.push(0)
		}
	case opcode.POP:
		m.pop()
	case opcode.POP_N:
		n := m.fetchByte()
		for i := byte(0); i < n; i++ {
			m.pop()
		}

	case opcode.DUPLICATE:
		v := m.peek()
		m.push(v)
	case opcode.DUPLICATE_2:
		if m.sp < 2 {
			m.fail(StatusStackUnderflow)
			return
		}
		a, b := m.Stack[m.sp-2], m.Stack[m.sp-1]
		m.push(a)
		m.push(b)

	case opcode.NIL:
		m.push(value.Int32Val(0))
	case opcode.FALSE:
		m.push(value.BoolVal(false))
	case opcode.TRUE:
		m.push(value.BoolVal(true))

	case opcode.CONSTANT:
		m.pushConstant(uint32(m.fetchByte()))
	case opcode.CONSTANT_16:
		m.pushConstant(uint32(m.fetchU16()))
	case opcode.CONSTANT_24:
		b0 := m.fetchByte()
		b1 := m.fetchByte()
		b2 := m.fetchByte()
		m.pushConstant(uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16)

	case opcode.STRING:
		m.push(value.Uint32Val(uint32(m.fetchByte())))
	case opcode.STRING_16:
		m.push(value.Uint32Val(uint32(m.fetchU16())))
	case opcode.STRING_24:
		b0 := m.fetchByte()
		b1 := m.fetchByte()
		b2 := m.fetchByte()
		m.push(value.Uint32Val(uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16))

	case opcode.GET_VARIABLE:
		p := m.pop().AsPointer()
		addr := m.resolveAddress(p)
		if m.Status != StatusOk {
			return
		}
		m.push(m.Stack[addr])
	case opcode.SET_VARIABLE:
		p := m.pop().AsPointer()
		v := m.peek()
		addr := m.resolveAddress(p)
		if m.Status != StatusOk {
			return
		}
		m.Stack[addr] = v

	case opcode.ABSOLUTE_POINTER:
		p := m.pop().AsPointer()
		addr := m.resolveAddress(p)
		if m.Status != StatusOk {
			return
		}
		m.push(value.PointerVal(value.VmPointer{Address: uint16(addr), PointeeType: p.PointeeType, Scope: value.ScopeStackAbsolute}))

	case opcode.ARRAY:
		n := m.fetchByte()
		for i := byte(0); i < n; i++ {
			m.push(0)
		}

	case opcode.GET_INDEXED_S8, opcode.GET_INDEXED_U8, opcode.GET_INDEXED_S16, opcode.GET_INDEXED_U16,
		opcode.GET_INDEXED_S32, opcode.GET_INDEXED_U32, opcode.GET_INDEXED_FLOAT:
		m.execGetIndexed(op)
	case opcode.SET_INDEXED_S8, opcode.SET_INDEXED_U8, opcode.SET_INDEXED_S16, opcode.SET_INDEXED_U16,
		opcode.SET_INDEXED_S32, opcode.SET_INDEXED_U32, opcode.SET_INDEXED_FLOAT:
		m.execSetIndexed(op)

	case opcode.CAST_INT_TO_FLOAT:
		v := m.pop()
		m.push(value.FloatVal(float32(v.AsInt32())))
	case opcode.CAST_PREV_INT_TO_FLOAT:
		if m.sp < 2 {
			m.fail(StatusStackUnderflow)
			return
		}
		m.Stack[m.sp-2] = value.FloatVal(float32(m.Stack[m.sp-2].AsInt32()))
	case opcode.CAST_FLOAT_TO_INT:
		v := m.pop()
		m.push(value.Int32Val(int32(v.AsFloat())))
	case opcode.CAST_PREV_FLOAT_TO_INT:
		if m.sp < 2 {
			m.fail(StatusStackUnderflow)
			return
		}
		m.Stack[m.sp-2] = value.Int32Val(int32(m.Stack[m.sp-2].AsFloat()))

	case opcode.MODULUS:
		b, a := m.pop().AsInt32(), m.pop().AsInt32()
		m.push(value.Int32Val(a % b))
	case opcode.NEGATE_I:
		m.push(value.Int32Val(-m.pop().AsInt32()))
	case opcode.NEGATE_F:
		m.push(value.FloatVal(-m.pop().AsFloat()))

	case opcode.ADD_S, opcode.SUB_S, opcode.MULT_S, opcode.DIV_S,
		opcode.ADD_U, opcode.SUB_U, opcode.MULT_U, opcode.DIV_U,
		opcode.ADD_F, opcode.SUB_F, opcode.MULT_F, opcode.DIV_F:
		m.execArith(op)

	case opcode.PREFIX_DECREASE, opcode.PREFIX_INCREASE:
		m.execPrefixIncDec(op)
	case opcode.PLUS_PLUS, opcode.MINUS_MINUS:
		m.execPostfixIncDec(op)

	case opcode.ASSIGN:
		p := m.pop().AsPointer()
		v := m.peek()
		addr := m.resolveAddress(p)
		if m.Status != StatusOk {
			return
		}
		m.Stack[addr] = v

	case opcode.NOT:
		m.push(value.BoolVal(m.pop().AsInt32() == 0))

	case opcode.EQUAL_S, opcode.NOT_EQUAL_S, opcode.LESS_S, opcode.LESS_OR_EQUAL_S, opcode.GREATER_S, opcode.GREATER_OR_EQUAL_S,
		opcode.EQUAL_U, opcode.NOT_EQUAL_U, opcode.LESS_U, opcode.LESS_OR_EQUAL_U, opcode.GREATER_U, opcode.GREATER_OR_EQUAL_U,
		opcode.EQUAL_F, opcode.NOT_EQUAL_F, opcode.LESS_F, opcode.LESS_OR_EQUAL_F, opcode.GREATER_F, opcode.GREATER_OR_EQUAL_F:
		m.execCompare(op)

	case opcode.BIT_NOT:
		m.push(value.Int32Val(^m.pop().AsInt32()))
	case opcode.BIT_AND:
		b, a := m.pop().AsInt32(), m.pop().AsInt32()
		m.push(value.Int32Val(a & b))
	case opcode.BIT_OR:
		b, a := m.pop().AsInt32(), m.pop().AsInt32()
		m.push(value.Int32Val(a | b))
	case opcode.BIT_XOR:
		b, a := m.pop().AsInt32(), m.pop().AsInt32()
		m.push(value.Int32Val(a ^ b))
	case opcode.BIT_SHIFT_L:
		b, a := m.pop().AsInt32(), m.pop().AsInt32()
		m.push(value.Int32Val(a << uint32(b)))
	case opcode.BIT_SHIFT_R:
		b, a := m.pop().AsInt32(), m.pop().AsInt32()
		m.push(value.Int32Val(a >> uint32(b)))

	case opcode.JUMP:
		off := m.fetchU16()
		m.ip += uint32(off)
	case opcode.JUMP_IF_FALSE:
		off := m.fetchU16()
		if !m.peek().AsBool() {
			m.ip += uint32(off)
		}
	case opcode.JUMP_IF_TRUE:
		off := m.fetchU16()
		if m.peek().AsBool() {
			m.ip += uint32(off)
		}
	case opcode.JUMP_IF_EQUAL:
		off := m.fetchU16()
		b, a := m.pop(), m.pop()
		if a == b {
			m.ip += uint32(off)
		}
	case opcode.LOOP:
		off := m.fetchU16()
		m.ip -= uint32(off)
	case opcode.BREAK:
		off := m.fetchU16()
		m.ip += uint32(off)
	case opcode.CONTINUE:
		off := m.fetchU16()
		m.ip -= uint32(off)

	case opcode.SWITCH:
		m.execSwitch()

	case opcode.FRAME:
		m.execFrame()
	case opcode.CALL:
		argc := m.fetchByte()
		m.execCall(int(argc))
	case opcode.CALL_NATIVE:
		argc := m.fetchByte()
		m.execCallNative(int(argc))
	case opcode.RETURN:
		m.execReturn()

	case opcode.END:
		m.fail(StatusEnd)

	default:
		m.fail(StatusUnknownInstruction)
	}
}

func (m *VM) pushConstant(idx uint32) {
	if idx >= uint32(len(m.Program.Constants)) {
		m.fail(StatusUnknownInstruction)
		return
	}
	m.push(m.Program.Constants[idx])
}

func elementType(op opcode.Op) value.DataType {
	switch op {
	case opcode.GET_INDEXED_S8, opcode.SET_INDEXED_S8:
		return value.DtInt8
	case opcode.GET_INDEXED_U8, opcode.SET_INDEXED_U8:
		return value.DtUint8
	case opcode.GET_INDEXED_S16, opcode.SET_INDEXED_S16:
		return value.DtInt16
	case opcode.GET_INDEXED_U16, opcode.SET_INDEXED_U16:
		return value.DtUint16
	case opcode.GET_INDEXED_FLOAT, opcode.SET_INDEXED_FLOAT:
		return value.DtFloat
	case opcode.GET_INDEXED_U32, opcode.SET_INDEXED_U32:
		return value.DtUint32
	default:
		return value.DtInt32
	}
}

// indexedSlot computes the slot/subfield addressing for packed-array
// indexing: S8/U8 pack 4 per slot, S16/U16 pack 2, everything else is
// one element per slot.
func indexedSlot(t value.DataType, base uint32, index int32) (slot uint32, subfield uint32) {
	switch t {
	case value.DtInt8, value.DtUint8:
		return base + uint32(index>>2), uint32(index) & 3
	case value.DtInt16, value.DtUint16:
		return base + uint32(index>>1), uint32(index) & 1
	default:
		return base + uint32(index), 0
	}
}

func (m *VM) execGetIndexed(op opcode.Op) {
	index := m.pop().AsInt32()
	base := m.pop().AsPointer()
	addr := m.resolveAddress(base)
	if m.Status != StatusOk {
		return
	}
	t := elementType(op)
	slot, sub := indexedSlot(t, addr, index)
	word := m.Stack[slot]

	switch t {
	case value.DtInt8:
		m.push(value.Int8Val(int8(byte(word >> (sub * 8)))))
	case value.DtUint8:
		m.push(value.Uint8Val(byte(word >> (sub * 8))))
	case value.DtInt16:
		m.push(value.Int16Val(int16(uint16(word >> (sub * 16)))))
	case value.DtUint16:
		m.push(value.Uint16Val(uint16(word >> (sub * 16))))
	case value.DtFloat:
		m.push(value.FloatVal(word.AsFloat()))
	case value.DtUint32:
		m.push(value.Uint32Val(word.AsUint32()))
	default:
		m.push(value.Int32Val(word.AsInt32()))
	}
}

func (m *VM) execSetIndexed(op opcode.Op) {
	index := m.pop().AsInt32()
	base := m.pop().AsPointer()
	v := m.peek()
	addr := m.resolveAddress(base)
	if m.Status != StatusOk {
		return
	}
	t := elementType(op)
	slot, sub := indexedSlot(t, addr, index)

	switch t {
	case value.DtInt8, value.DtUint8:
		shift := sub * 8
		mask := value.Value(0xFF) << shift
		byteVal := value.Value(v.AsUint8()) << shift
		m.Stack[slot] = (m.Stack[slot] &^ mask) | byteVal
	case value.DtInt16, value.DtUint16:
		shift := sub * 16
		mask := value.Value(0xFFFF) << shift
		wordVal := value.Value(v.AsUint16()) << shift
		m.Stack[slot] = (m.Stack[slot] &^ mask) | wordVal
	default:
		m.Stack[slot] = v
	}
}

func (m *VM) execArith(op opcode.Op) {
	b, a := m.pop(), m.pop()
	switch op {
	case opcode.ADD_S:
		m.push(value.Int32Val(a.AsInt32() + b.AsInt32()))
	case opcode.SUB_S:
		m.push(value.Int32Val(a.AsInt32() - b.AsInt32()))
	case opcode.MULT_S:
		m.push(value.Int32Val(a.AsInt32() * b.AsInt32()))
	case opcode.DIV_S:
		m.push(value.Int32Val(a.AsInt32() / b.AsInt32()))
	case opcode.ADD_U:
		m.push(value.Uint32Val(a.AsUint32() + b.AsUint32()))
	case opcode.SUB_U:
		m.push(value.Uint32Val(a.AsUint32() - b.AsUint32()))
	case opcode.MULT_U:
		m.push(value.Uint32Val(a.AsUint32() * b.AsUint32()))
	case opcode.DIV_U:
		m.push(value.Uint32Val(a.AsUint32() / b.AsUint32()))
	case opcode.ADD_F:
		m.push(value.FloatVal(a.AsFloat() + b.AsFloat()))
	case opcode.SUB_F:
		m.push(value.FloatVal(a.AsFloat() - b.AsFloat()))
	case opcode.MULT_F:
		m.push(value.FloatVal(a.AsFloat() * b.AsFloat()))
	case opcode.DIV_F:
		m.push(value.FloatVal(a.AsFloat() / b.AsFloat()))
	}
}

func (m *VM) execCompare(op opcode.Op) {
	b, a := m.pop(), m.pop()
	var r bool
	switch op {
	case opcode.EQUAL_S, opcode.EQUAL_U, opcode.EQUAL_F:
		r = a == b
		if op == opcode.EQUAL_F {
			r = a.AsFloat() == b.AsFloat()
		}
	case opcode.NOT_EQUAL_S, opcode.NOT_EQUAL_U, opcode.NOT_EQUAL_F:
		r = a != b
		if op == opcode.NOT_EQUAL_F {
			r = a.AsFloat() != b.AsFloat()
		}
	case opcode.LESS_S:
		r = a.AsInt32() < b.AsInt32()
	case opcode.LESS_U:
		r = a.AsUint32() < b.AsUint32()
	case opcode.LESS_F:
		r = a.AsFloat() < b.AsFloat()
	case opcode.LESS_OR_EQUAL_S:
		r = a.AsInt32() <= b.AsInt32()
	case opcode.LESS_OR_EQUAL_U:
		r = a.AsUint32() <= b.AsUint32()
	case opcode.LESS_OR_EQUAL_F:
		r = a.AsFloat() <= b.AsFloat()
	case opcode.GREATER_S:
		r = a.AsInt32() > b.AsInt32()
	case opcode.GREATER_U:
		r = a.AsUint32() > b.AsUint32()
	case opcode.GREATER_F:
		r = a.AsFloat() > b.AsFloat()
	case opcode.GREATER_OR_EQUAL_S:
		r = a.AsInt32() >= b.AsInt32()
	case opcode.GREATER_OR_EQUAL_U:
		r = a.AsUint32() >= b.AsUint32()
	case opcode.GREATER_OR_EQUAL_F:
		r = a.AsFloat() >= b.AsFloat()
	}
	m.push(value.BoolVal(r))
}

func (m *VM) execPrefixIncDec(op opcode.Op) {
	p := m.pop().AsPointer()
	addr := m.resolveAddress(p)
	if m.Status != StatusOk {
		return
	}
	v := m.Stack[addr]
	nv := mutateByOne(v, p.PointeeType, op == opcode.PREFIX_INCREASE)
	m.Stack[addr] = nv
	m.push(nv)
}

func (m *VM) execPostfixIncDec(op opcode.Op) {
	p := m.pop().AsPointer()
	addr := m.resolveAddress(p)
	if m.Status != StatusOk {
		return
	}
	v := m.Stack[addr]
	m.Stack[addr] = mutateByOne(v, p.PointeeType, op == opcode.PLUS_PLUS)
}

func mutateByOne(v value.Value, t value.DataType, increase bool) value.Value {
	delta := int32(1)
	if !increase {
		delta = -1
	}
	if t == value.DtFloat {
		f := v.AsFloat() + float32(delta)
		return value.FloatVal(f)
	}
	if value.IsUnsigned(t) {
		return value.FromUnsigned(t, v.AsUnsigned(t)+uint32(delta))
	}
	return value.FromSigned(t, v.AsSigned(t)+delta)
}

// execSwitch mirrors Codegen.compileSwitch's table layout exactly: after
// the SWITCH opcode comes a forward offset, counted from the byte after
// it, to the position immediately following the table (tableEnd), then
// the case range [min, max]. The case bodies come next and the table
// itself ends at tableEnd — one default slot followed by one slot per
// value in the range, each holding a backward offset measured from
// tableEnd.
func (m *VM) execSwitch() {
	tableEndOff := uint32(m.fetchU16())
	tableEnd := m.ip + tableEndOff
	min := int32(m.fetchU32())
	max := int32(m.fetchU32())
	target := m.pop().AsInt32()

	tableStart := tableEnd - uint32(max-min+2)*2
	var slot uint32
	if target < min || target > max {
		slot = 0
	} else {
		slot = uint32(1 + (target - min))
	}
	entryPos := tableStart + slot*2
	if entryPos+2 > uint32(len(m.Program.Code)) {
		m.fail(StatusUnknownInstruction)
		return
	}
	backOff := uint16(m.Program.Code[entryPos]) | uint16(m.Program.Code[entryPos+1])<<8
	m.ip = tableEnd - uint32(backOff)
}

func (m *VM) execFrame() {
	if m.sp+frameRecordWords > uint32(len(m.Stack)) {
		m.fail(StatusStackOverflow)
		return
	}
	m.sp += frameRecordWords
}

func (m *VM) execCall(argc int) {
	if m.sp < uint32(argc+1) {
		m.fail(StatusStackUnderflow)
		return
	}
	fnAddr := m.sp - uint32(argc) - 1
	fnVal := m.Stack[fnAddr]
	funcOffset := fnVal.AsFunction()

	if funcOffset < 3 || funcOffset >= uint32(len(m.Program.Code)) || m.Program.Code[funcOffset-3] != FunctionStartMarker {
		m.fail(StatusCallNotAFunction)
		return
	}
	declaredArgc := int(m.Program.Code[funcOffset-1])
	if declaredArgc != argc {
		m.fail(StatusCallArgCountError)
		return
	}
	if m.callDepth >= maxCallDepth {
		m.fail(StatusCallFrameOverflow)
		return
	}

	// The record OP_FRAME reserved sits immediately below the function
	// value on the stack — derived directly from this call's own fnAddr
	// rather than a remembered field, so a call nested inside this one's
	// argument list (which reserves and fills its own record in between)
	// can never clobber it.
	recordAddr := fnAddr - frameRecordWords
	m.Stack[recordAddr] = value.Uint32Val(m.fr.enclosing)
	m.Stack[recordAddr+1] = value.Uint32Val(m.ip)
	m.Stack[recordAddr+2] = value.Uint32Val(m.fr.slots)

	m.fr = frame{enclosing: recordAddr, slots: m.sp - uint32(argc)}
	m.ip = funcOffset
	m.callDepth++
}

func (m *VM) execReturn() {
	retVal := m.pop()
	if m.Status != StatusOk {
		return
	}
	rec := m.fr.enclosing
	enclosing := m.Stack[rec].AsUint32()
	retIP := m.Stack[rec+1].AsUint32()
	callerSlots := m.Stack[rec+2].AsUint32()

	if m.fr.slots < 1+frameRecordWords {
		m.fail(StatusStackUnderflow)
		return
	}
	m.sp = m.fr.slots - 1 - frameRecordWords
	m.ip = retIP
	m.fr = frame{enclosing: enclosing, slots: callerSlots}
	m.callDepth--
	m.push(retVal)
}

func (m *VM) execCallNative(argc int) {
	if m.sp < uint32(argc+1) {
		m.fail(StatusStackUnderflow)
		return
	}
	idAddr := m.sp - uint32(argc) - 1
	id := int(m.Stack[idAddr].AsNative())
	argsAddr := idAddr + 1

	if m.Resolver == nil {
		m.fail(StatusNativeNotResolved)
		return
	}
	fn, ok := m.Resolver(id, argc)
	if !ok {
		m.fail(StatusNativeNotResolved)
		return
	}

	result := fn(m, m.SysParam, argc, argsAddr)
	m.sp = idAddr
	m.push(result)
}
