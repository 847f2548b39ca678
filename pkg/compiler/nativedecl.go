package compiler

import (
	"strconv"
	"strings"
	"unicode"

	"mec/pkg/value"
)

// NativeFuncDecl is one entry parsed from a native-function declaration
// file: `[native <id>] <return-type> <name>(<param-type> [name], …);`.
// When the entry omits the explicit `native <id>` prefix, Id is one more
// than the previous entry's id (0 for the first entry).
type NativeFuncDecl struct {
	Name       string
	Id         int
	ReturnType value.DataType
	Args       []value.DataType
}

type declToken struct {
	text string
	line int
}

// declLex splits src into identifier/integer words and single-character
// punctuation tokens ( ) , ;  — enough structure for the declaration
// grammar, which has no expressions, strings, or operators.
func declLex(src string) []declToken {
	var toks []declToken
	runes := []rune(src)
	line := 1
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == '\n':
			line++
			i++
		case unicode.IsSpace(r):
			i++
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				if runes[i] == '\n' {
					line++
				}
				i++
			}
			i += 2
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			toks = append(toks, declToken{string(runes[start:i]), line})
		case unicode.IsDigit(r):
			start := i
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			toks = append(toks, declToken{string(runes[start:i]), line})
		case strings.ContainsRune("(),;[]", r):
			toks = append(toks, declToken{string(r), line})
			i++
		default:
			i++
		}
	}
	return toks
}

var declTypeWords = map[string]value.DataType{
	"void":  value.DtVoid,
	"bool":  value.DtBool,
	"int":   value.DtInt32,
	"char":  value.DtInt8,
	"byte":  value.DtUint8,
	"float": value.DtFloat,
}

func declUnsigned(t value.DataType) value.DataType {
	switch t {
	case value.DtInt32:
		return value.DtUint32
	case value.DtInt8:
		return value.DtUint8
	default:
		return t
	}
}

// ParseNativeDecls parses a native-function declaration file into a
// list of declarations. Parse errors are recorded on diag and the
// offending entry is skipped; parsing continues with the next `;`.
func ParseNativeDecls(src string, diag *Diagnostics) []NativeFuncDecl {
	toks := declLex(src)
	var decls []NativeFuncDecl
	autoId := 0
	pos := 0

	peek := func() string {
		if pos >= len(toks) {
			return ""
		}
		return toks[pos].text
	}
	line := func() int {
		if pos >= len(toks) {
			return 0
		}
		return toks[pos].line
	}
	next := func() string {
		t := peek()
		pos++
		return t
	}
	skipToSemicolon := func() {
		for pos < len(toks) && toks[pos].text != ";" {
			pos++
		}
		if pos < len(toks) {
			pos++
		}
	}

	parseType := func() (value.DataType, bool) {
		w := next()
		unsigned := false
		if w == "unsigned" {
			unsigned = true
			w = next()
		}
		t, ok := declTypeWords[w]
		if !ok {
			return value.DtNone, false
		}
		if unsigned {
			t = declUnsigned(t)
		}
		return t, true
	}

	for pos < len(toks) {
		id := -1
		if peek() == "native" {
			next()
			idTok := next()
			n, err := strconv.Atoi(idTok)
			if err != nil {
				diag.Error(StageParser, line(), 0, "expected an integer id after 'native'")
				skipToSemicolon()
				continue
			}
			id = n
		}

		retType, ok := parseType()
		if !ok {
			diag.Error(StageParser, line(), 0, "expected a return type in native declaration")
			skipToSemicolon()
			continue
		}

		name := next()
		if name == "" {
			diag.Error(StageParser, line(), 0, "expected a function name in native declaration")
			skipToSemicolon()
			continue
		}

		if next() != "(" {
			diag.Error(StageParser, line(), 0, "expected '(' after native function name")
			skipToSemicolon()
			continue
		}

		var args []value.DataType
		bad := false
		for peek() != ")" && peek() != "" {
			t, ok := parseType()
			if !ok {
				diag.Error(StageParser, line(), 0, "expected a parameter type in native declaration")
				bad = true
				break
			}
			args = append(args, t)
			// an optional, ignored parameter name
			if peek() != "," && peek() != ")" {
				next()
			}
			if peek() == "," {
				next()
			}
		}
		if bad {
			skipToSemicolon()
			continue
		}
		if next() != ")" {
			diag.Error(StageParser, line(), 0, "expected ')' to close native function parameters")
			skipToSemicolon()
			continue
		}
		if next() != ";" {
			diag.Error(StageParser, line(), 0, "expected ';' after native function declaration")
			continue
		}

		if id < 0 {
			id = autoId
		}
		autoId = id + 1
		decls = append(decls, NativeFuncDecl{Name: name, Id: id, ReturnType: retType, Args: args})
	}

	return decls
}
