package compiler

import (
	"testing"

	"mec/pkg/value"
)

func TestFunctionInfo_ArgCount(t *testing.T) {
	tests := []struct {
		name string
		info FunctionInfo
		want int
	}{
		{"plain function", FunctionInfo{Kind: FuncFunction, Args: []value.DataType{value.DtInt32, value.DtFloat}}, 2},
		{"method drops implicit this", FunctionInfo{Kind: FuncClassMethod, Args: []value.DataType{value.DtPointer, value.DtInt32}}, 1},
		{"class-init drops implicit this", FunctionInfo{Kind: FuncClassInit, Args: []value.DataType{value.DtPointer}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.ArgCount(); got != tt.want {
				t.Errorf("ArgCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFunctionTable_DeclareIsIdempotent(t *testing.T) {
	ft := NewFunctionTable()
	fn1, existed1 := ft.Declare(FunctionInfo{Name: "add", Kind: FuncFunction})
	if existed1 {
		t.Fatal("first Declare reported an existing entry")
	}
	fn2, existed2 := ft.Declare(FunctionInfo{Name: "add", Kind: FuncFunction})
	if !existed2 {
		t.Fatal("second Declare with the same key should report existed=true")
	}
	if fn1 != fn2 {
		t.Fatal("second Declare returned a different *ScriptFunction for the same key")
	}
}

func TestFunctionTable_DeclareAssignsDistinctIds(t *testing.T) {
	ft := NewFunctionTable()
	add, _ := ft.Declare(FunctionInfo{Name: "add", Kind: FuncFunction})
	sub, _ := ft.Declare(FunctionInfo{Name: "sub", Kind: FuncFunction})
	if add.Id == 0 || sub.Id == 0 || add.Id == sub.Id {
		t.Errorf("add.Id=%d sub.Id=%d, want distinct nonzero ids (0 is reserved for the script)", add.Id, sub.Id)
	}
	if ft.Script.Id != 0 {
		t.Errorf("Script.Id = %d, want 0", ft.Script.Id)
	}
}

func TestFunctionTable_LookupMissing(t *testing.T) {
	ft := NewFunctionTable()
	if _, ok := ft.Lookup("nope"); ok {
		t.Error("Lookup of an undeclared function returned ok=true")
	}
}

func TestFunctionTable_NativeByNameAndID(t *testing.T) {
	ft := NewFunctionTable()
	ft.DeclareNative(FunctionInfo{Name: "printi", Kind: FuncNative, Args: []value.DataType{value.DtInt32}}, 3)

	n, ok := ft.LookupNative("printi")
	if !ok {
		t.Fatal("LookupNative(\"printi\") not found")
	}
	if n.Id != 3 {
		t.Errorf("native id = %d, want 3", n.Id)
	}
	if _, ok := ft.LookupNative("nope"); ok {
		t.Error("LookupNative of an undeclared name returned ok=true")
	}
}

func TestScriptFunction_ConditionalDepthGatesReturnSupplied(t *testing.T) {
	fn := NewScriptFunction(FuncFunction, 1)
	if fn.ConditionalDepth != 0 {
		t.Fatalf("new function's ConditionalDepth = %d, want 0", fn.ConditionalDepth)
	}
	fn.EnterConditional()
	fn.EnterConditional()
	if fn.ConditionalDepth != 2 {
		t.Fatalf("ConditionalDepth after two EnterConditional = %d, want 2", fn.ConditionalDepth)
	}
	fn.ExitConditional()
	if fn.ConditionalDepth != 1 {
		t.Fatalf("ConditionalDepth after one ExitConditional = %d, want 1", fn.ConditionalDepth)
	}
}
