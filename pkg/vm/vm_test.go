package vm

import (
	"testing"

	"mec/pkg/opcode"
	"mec/pkg/value"
)

// buildImage assembles a minimal single-section program image by hand
// (no globals, one function's worth of code, no constants/strings) so
// the interpreter can be exercised without depending on pkg/compiler.
func buildImage(t *testing.T, code []byte) []byte {
	t.Helper()
	for len(code)%4 != 0 {
		code = append(code, 0)
	}
	const headerSize = 32
	codePos := uint32(headerSize)
	constantsPos := codePos + uint32(len(code))
	stringsPos := constantsPos
	totalSize := stringsPos

	buf := make([]byte, totalSize)
	buf[0] = headerSize
	putU32 := func(off int, v uint32) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	}
	putU32(8, codePos)
	putU32(12, constantsPos)
	putU32(16, stringsPos)
	putU32(20, 0)
	putU32(24, totalSize)
	copy(buf[codePos:], code)

	length := totalSize - codePos
	checksum := computeChecksum(buf[codePos:], length)
	putU32(28, checksum)
	return buf
}

func TestDecode_RoundTrip(t *testing.T) {
	code := []byte{byte(opcode.NIL), byte(opcode.END)}
	image := buildImage(t, code)

	p, err := Decode(image)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// buildImage pads the 2-byte code to a 4-byte boundary, and Decode
	// returns the code section as stored, padding included.
	wantLen := 4
	if len(p.Code) != wantLen {
		t.Fatalf("code length = %d, want %d", len(p.Code), wantLen)
	}
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	image := buildImage(t, []byte{byte(opcode.END)})
	image[len(image)-1] ^= 0xFF
	if _, err := Decode(image); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func runProgram(t *testing.T, code []byte) *VM {
	t.Helper()
	image := buildImage(t, code)
	p, err := Decode(image)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m := New(p, 64, nil, nil)
	m.Run()
	return m
}

func TestArithmetic_AddS(t *testing.T) {
	// Driving ADD_S through the constant pool would need a full compiled
	// program; seed the stack directly instead and run from ADD_S.
	m := &VM{
		Program: &Program{Code: []byte{byte(opcode.ADD_S), byte(opcode.END)}},
		Stack:   make([]value.Value, 8),
		sp:      2,
	}
	m.Stack[0] = value.Int32Val(3)
	m.Stack[1] = value.Int32Val(4)
	m.Run()

	if m.Status != StatusEnd {
		t.Fatalf("status = %v, want StatusEnd", m.Status)
	}
	if got := m.Stack[0].AsInt32(); got != 7 {
		t.Fatalf("result = %d, want 7", got)
	}
}

func TestStackUnderflow(t *testing.T) {
	m := runProgram(t, []byte{byte(opcode.POP), byte(opcode.END)})
	if m.Status != StatusStackUnderflow {
		t.Fatalf("status = %v, want StatusStackUnderflow", m.Status)
	}
}

func TestCallNotAFunction(t *testing.T) {
	code := []byte{
		byte(opcode.FRAME),
		byte(opcode.NIL), // pushes a non-function value as the callee
		byte(opcode.CALL), 0,
		byte(opcode.END),
	}
	m := runProgram(t, code)
	if m.Status != StatusCallNotAFunction {
		t.Fatalf("status = %v, want StatusCallNotAFunction", m.Status)
	}
}

// TestCall_NestedArgumentCallDoesNotCorruptOuterFrame drives f(g(7)):
// f's OP_FRAME reserves its call record, then while compiling f's own
// argument the compiler emits a second OP_FRAME/OP_CALL pair for g
// before f's OP_CALL runs. This regression-tests that f's call record
// address is derived from f's own function slot rather than from
// whichever OP_FRAME ran most recently, so g's OP_FRAME/OP_CALL can't
// clobber the stack slot that ends up holding f's argument.
func TestCall_NestedArgumentCallDoesNotCorruptOuterFrame(t *testing.T) {
	// g ignores its argument and returns the constant 42.
	gBody := []byte{byte(opcode.CONSTANT), 1, byte(opcode.RETURN)}
	// f returns its own argument 0, i.e. whatever g returned.
	fBody := []byte{byte(opcode.CONSTANT), 0, byte(opcode.GET_VARIABLE), byte(opcode.RETURN)}

	script := []byte{
		byte(opcode.FRAME),
		byte(opcode.CONSTANT), 3, // push f
		byte(opcode.FRAME),
		byte(opcode.CONSTANT), 4, // push g
		byte(opcode.CONSTANT), 2, // push g's argument (unused by g)
		byte(opcode.CALL), 1, // g(7)
		byte(opcode.CALL), 1, // f(<g's result>)
		byte(opcode.END),
	}

	funcHeader := func(argc byte) []byte { return []byte{FunctionStartMarker, byte(value.DtInt32), argc} }

	fOffset := uint32(len(script) + len(funcHeader(1)))
	code := append(append([]byte{}, script...), funcHeader(1)...)
	code = append(code, fBody...)
	gOffset := uint32(len(code) + len(funcHeader(1)))
	code = append(code, funcHeader(1)...)
	code = append(code, gBody...)

	constants := []value.Value{
		value.PointerVal(value.VmPointer{Address: 0, PointeeType: value.DtInt32, Scope: value.ScopeLocal}),
		value.Int32Val(42),
		value.Int32Val(7),
		value.FunctionVal(fOffset),
		value.FunctionVal(gOffset),
	}

	m := &VM{
		Program: &Program{Code: code, Constants: constants},
		Stack:   make([]value.Value, 32),
		fr:      frame{enclosing: noEnclosing, slots: 0},
	}
	m.Run()

	if m.Status != StatusEnd {
		t.Fatalf("status = %v, want StatusEnd", m.Status)
	}
	if got := m.Stack[0].AsInt32(); got != 42 {
		t.Fatalf("f(g(7)) = %d, want 42 (g's own return value, proving f's frame record wasn't clobbered)", got)
	}
	if m.sp != 1 {
		t.Fatalf("sp = %d, want 1", m.sp)
	}
}

func TestIndexedU8RoundTrip(t *testing.T) {
	m := &VM{
		Program: &Program{Code: []byte{byte(opcode.END)}},
		Stack:   make([]value.Value, 8),
		sp:      1, // slot 0 holds the packed array; the operand stack starts above it
	}
	base := value.VmPointer{Address: 0, PointeeType: value.DtUint8, Scope: value.ScopeStackAbsolute}

	// SET_INDEXED expects the value below the base pointer and the index.
	m.push(value.Uint8Val(0xAB))
	m.push(value.PointerVal(base))
	m.push(value.Int32Val(2)) // index 2 -> subfield 2 of slot 0
	m.execSetIndexed(opcode.SET_INDEXED_U8)
	m.pop()

	m.push(value.PointerVal(base))
	m.push(value.Int32Val(2))
	m.execGetIndexed(opcode.GET_INDEXED_U8)
	got := m.pop()
	if got.AsUint8() != 0xAB {
		t.Fatalf("got %#x, want 0xab", got.AsUint8())
	}
}
