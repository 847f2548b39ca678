package compiler

// Result is everything a successful (or partially successful, for
// diagnostics inspection) compilation produces.
type Result struct {
	Program     *Program
	Binary      []byte
	Diagnostics *Diagnostics
}

// Options configures one compilation: the native-function declarations
// to seed the function table with, and the binary-writer header fields
// that aren't derivable from the source itself.
type Options struct {
	NativeDecls      []NativeFuncDecl
	EmbedFileName    string // non-empty to embed as the binary's first string
	Binary           BinaryOptions
}

// Compile runs the full pipeline: preprocess, lex, parse, an unreachable-
// code sweep, codegen, and binary emission. It never returns an error;
// callers inspect result.Diagnostics.HasErrors() and skip using
// result.Binary (nil) when it reports true, mirroring the VM/compiler's
// status-code discipline instead of Go error returns at this boundary.
func Compile(src string, opts Options) *Result {
	processed := Preprocess(src)

	diag := NewDiagnostics(processed)

	tokens := Lex(processed, diag)
	stmts := Parse(tokens, diag)

	CheckUnreachable(stmts, diag)

	funcs := NewFunctionTable()
	for _, nd := range opts.NativeDecls {
		funcs.DeclareNative(FunctionInfo{
			Name:       nd.Name,
			Kind:       FuncNative,
			ReturnType: nd.ReturnType,
			Args:       nd.Args,
		}, nd.Id)
	}

	cg := NewCodegen(diag, funcs)
	if opts.EmbedFileName != "" {
		cg.EmbedFileName(opts.EmbedFileName)
	}
	program := cg.Compile(stmts)

	if diag.HasErrors() {
		return &Result{Program: program, Diagnostics: diag}
	}

	bin := WriteBinary(program, opts.Binary, opts.EmbedFileName)
	return &Result{Program: program, Binary: bin, Diagnostics: diag}
}
