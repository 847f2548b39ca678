package compiler

import (
	"testing"

	"mec/pkg/opcode"
	"mec/pkg/value"
)

func TestArithOpFamily(t *testing.T) {
	tests := []struct {
		name string
		tok  TokenType
		t    value.DataType
		want opcode.Op
	}{
		{"signed add", PLUS, value.DtInt32, opcode.ADD_S},
		{"unsigned add", PLUS, value.DtUint32, opcode.ADD_U},
		{"float add", PLUS, value.DtFloat, opcode.ADD_F},
		{"compound assign uses the same family as its operator", PLUS_ASSIGN, value.DtInt32, opcode.ADD_S},
		{"signed less-than", LESS, value.DtInt32, opcode.LESS_S},
		{"float greater-or-equal", GREATER_EQ, value.DtFloat, opcode.GREATER_OR_EQUAL_F},
		{"unrecognized operator yields NOP", SEMICOLON, value.DtInt32, opcode.NOP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := arithOpFamily(tt.tok, tt.t); got != tt.want {
				t.Errorf("arithOpFamily(%v, %v) = %v, want %v", tt.tok, tt.t, got, tt.want)
			}
		})
	}
}

func TestIsComparisonOp(t *testing.T) {
	tests := []struct {
		tok  TokenType
		want bool
	}{
		{EQUALS, true}, {NOT_EQ, true}, {LESS, true}, {LESS_EQ, true},
		{GREATER, true}, {GREATER_EQ, true},
		{PLUS, false}, {ASSIGN, false},
	}
	for _, tt := range tests {
		if got := isComparisonOp(tt.tok); got != tt.want {
			t.Errorf("isComparisonOp(%v) = %v, want %v", tt.tok, got, tt.want)
		}
	}
}

func TestCodegen_AddConstantDeduplicatesByValueAndType(t *testing.T) {
	c := NewCodegen(NewDiagnostics(""), NewFunctionTable())
	i1 := c.addConstant(value.Int32Val(7), value.DtInt32)
	i2 := c.addConstant(value.Int32Val(7), value.DtInt32)
	if i1 != i2 {
		t.Errorf("addConstant returned different indices for an identical (value, type) pair: %d vs %d", i1, i2)
	}
	i3 := c.addConstant(value.Int32Val(7), value.DtFloat)
	if i3 == i1 {
		t.Error("addConstant should treat the same bit pattern under a different declared type as a distinct entry")
	}
	if len(c.constants) != 2 {
		t.Errorf("len(constants) = %d, want 2", len(c.constants))
	}
}

func TestCodegen_AddFunctionConstantIsKeyedAndRecordsAPatchSite(t *testing.T) {
	c := NewCodegen(NewDiagnostics(""), NewFunctionTable())
	i1 := c.addFunctionConstant("foo")
	i2 := c.addFunctionConstant("foo")
	if i1 != i2 {
		t.Errorf("addFunctionConstant(\"foo\") returned different indices on repeat calls: %d vs %d", i1, i2)
	}
	if len(c.funcConstRefs) != 1 {
		t.Fatalf("len(funcConstRefs) = %d, want 1 (one placeholder per distinct key)", len(c.funcConstRefs))
	}
	if c.funcConstRefs[0].Key != "foo" || c.funcConstRefs[0].ConstIndex != i1 {
		t.Errorf("funcConstRefs[0] = %+v, want Key=foo ConstIndex=%d", c.funcConstRefs[0], i1)
	}
}

func TestCodegen_AddStringNulTerminatesAndPadsToWordBoundary(t *testing.T) {
	c := NewCodegen(NewDiagnostics(""), NewFunctionTable())
	off := c.addString("hi")
	if off != 0 {
		t.Fatalf("first addString offset = %d, want 0", off)
	}
	if len(c.strings)%4 != 0 {
		t.Errorf("len(strings) = %d, not 4-byte aligned", len(c.strings))
	}
	if c.strings[2] != 0 {
		t.Errorf("strings[2] = %d, want a NUL terminator right after \"hi\"", c.strings[2])
	}
}

func TestCodegen_ResolveTypeNamePropagatesUnsignedness(t *testing.T) {
	c := NewCodegen(NewDiagnostics(""), NewFunctionTable())
	tests := []struct {
		name string
		in   TypeName
		want value.DataType
	}{
		{"plain int", TypeName{Kind: INT}, value.DtInt32},
		{"unsigned int", TypeName{Kind: INT, IsUnsigned: true}, value.DtUint32},
		{"byte defaults to signed like char", TypeName{Kind: BYTE}, value.DtInt8},
		{"unsigned byte", TypeName{Kind: BYTE, IsUnsigned: true}, value.DtUint8},
		{"char defaults to signed", TypeName{Kind: CHAR}, value.DtInt8},
		{"float ignores the unsigned flag", TypeName{Kind: FLOAT, IsUnsigned: true}, value.DtFloat},
		{"bool", TypeName{Kind: BOOL}, value.DtBool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.resolveTypeName(tt.in); got != tt.want {
				t.Errorf("resolveTypeName(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// Regression coverage for the compiled-program level: the same integer
// literal used twice in a program collapses to one constant-pool entry.
func TestCompile_DuplicateLiteralsShareAConstantSlot(t *testing.T) {
	result := Compile(`int a = 7; int b = 7;`, Options{})
	if result.Diagnostics.HasErrors() {
		t.Fatalf("compile errors: %v", result.Diagnostics.All())
	}
	count := 0
	for _, v := range result.Program.Constants {
		if v.AsInt32() == 7 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("constant pool has %d entries equal to 7, want 1", count)
	}
}
