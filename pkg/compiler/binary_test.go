package compiler

import (
	"encoding/binary"
	"testing"

	"mec/pkg/opcode"
	"mec/pkg/value"
)

func TestWriteBinary_HeaderAndSections(t *testing.T) {
	script := NewScriptFunction(FuncScript, 0)
	script.Name = "__script__"
	script.Code = []byte{byte(opcode.END)}

	fn := NewScriptFunction(FuncFunction, 1)
	fn.Name = "add"
	fn.ReturnType = value.DtInt32
	fn.Args = []value.DataType{value.DtInt32, value.DtInt32}
	fn.Code = []byte{byte(opcode.ADD_S), byte(opcode.RETURN)}

	p := &Program{
		Script:    script,
		Functions: []*ScriptFunction{fn},
		Constants: []value.Value{value.FunctionVal(0), value.Int32Val(42)},
		Strings:   []byte("hi\x00"),
		FuncConstRefs: []FuncConstRef{
			{ConstIndex: 0, Key: fn.Key()},
		},
		Globals: NewSymbolTable(),
	}

	buf := WriteBinary(p, BinaryOptions{LangMajor: 1, LangMinor: 0}, "")

	if len(buf) < headerSize {
		t.Fatalf("buffer too small: %d bytes", len(buf))
	}
	if buf[0] != headerSize {
		t.Fatalf("headerSize field = %d, want %d", buf[0], headerSize)
	}
	if buf[1]&flagEmbeddedFileName != 0 {
		t.Fatalf("flagEmbeddedFileName set without an embedded filename")
	}

	codePos := binary.LittleEndian.Uint32(buf[8:])
	constantsPos := binary.LittleEndian.Uint32(buf[12:])
	stringsPos := binary.LittleEndian.Uint32(buf[16:])
	totalSize := binary.LittleEndian.Uint32(buf[24:])

	if codePos != headerSize {
		t.Fatalf("codePos = %d, want %d", codePos, headerSize)
	}
	if constantsPos%4 != 0 || stringsPos%4 != 0 || totalSize%4 != 0 {
		t.Fatalf("section boundaries not 4-byte aligned: %d %d %d", constantsPos, stringsPos, totalSize)
	}
	if uint32(len(buf)) != totalSize {
		t.Fatalf("len(buf) = %d, want totalSize %d", len(buf), totalSize)
	}

	// the script's own END-only body, followed by add's 0xFE marker, return
	// type, arg count, then its two-opcode body.
	code := buf[codePos:constantsPos]
	wantCode := []byte{byte(opcode.END), 0xFE, byte(value.DtInt32), 2, byte(opcode.ADD_S), byte(opcode.RETURN)}
	for len(wantCode)%4 != 0 {
		wantCode = append(wantCode, 0)
	}
	if string(code) != string(wantCode) {
		t.Fatalf("code section = %v, want %v", code, wantCode)
	}

	// the function-reference constant must have been patched to the offset
	// of add's body within the code section (after the script's END and
	// add's 3-byte marker).
	firstConst := binary.LittleEndian.Uint32(buf[constantsPos:])
	wantOffset := uint32(4) // len(script.Code) + 3
	if firstConst != wantOffset {
		t.Fatalf("patched function constant = %d, want %d", firstConst, wantOffset)
	}

	checksum := binary.LittleEndian.Uint32(buf[28:])
	want := computeChecksum(buf[codePos:], totalSize-codePos)
	if checksum != want {
		t.Fatalf("checksum = %#x, want %#x", checksum, want)
	}
}

func TestWriteBinary_EmbeddedFileNameFlag(t *testing.T) {
	script := NewScriptFunction(FuncScript, 0)
	script.Code = []byte{byte(opcode.END)}
	p := &Program{Script: script, Globals: NewSymbolTable()}

	buf := WriteBinary(p, BinaryOptions{}, "main.mc")
	if buf[1]&flagEmbeddedFileName == 0 {
		t.Fatal("expected flagEmbeddedFileName to be set")
	}
}

func TestDaysSince2000(t *testing.T) {
	const day0 = 946684800 // 2000-01-01T00:00:00Z
	if got := DaysSince2000(day0); got != 0 {
		t.Fatalf("DaysSince2000(epoch) = %d, want 0", got)
	}
	if got := DaysSince2000(day0 + 86400*10); got != 10 {
		t.Fatalf("DaysSince2000(+10d) = %d, want 10", got)
	}
	if got := DaysSince2000(0); got != 0 {
		t.Fatalf("DaysSince2000(before epoch) = %d, want 0 (clamped)", got)
	}
}

func TestHalfSecondsSinceMidnight(t *testing.T) {
	const day0 = 946684800
	if got := HalfSecondsSinceMidnight(day0); got != 0 {
		t.Fatalf("HalfSecondsSinceMidnight(midnight) = %d, want 0", got)
	}
	if got := HalfSecondsSinceMidnight(day0 + 3600); got != 1800 {
		t.Fatalf("HalfSecondsSinceMidnight(+1h) = %d, want 1800", got)
	}
}

func TestPad4(t *testing.T) {
	for n := 0; n <= 6; n++ {
		b := pad4(make([]byte, n))
		if len(b)%4 != 0 {
			t.Fatalf("pad4(%d bytes) has length %d, not a multiple of 4", n, len(b))
		}
	}
}

func TestComputeChecksum_SensitiveToTrailingByte(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	a := computeChecksum(data, uint32(len(data)))
	data[4] ^= 0xFF
	b := computeChecksum(data, uint32(len(data)))
	if a == b {
		t.Fatal("checksum did not change after flipping a trailing byte")
	}
}
