// Package disasm is a read-only consumer of the program binary format:
// it decodes a program image's header and sections and renders a
// mnemonic listing, exercising the format the same way a third-party
// tool would.
package disasm

import (
	"fmt"
	"io"
	"strings"

	"mec/pkg/opcode"
	"mec/pkg/vm"
)

// Listing renders program's header fields and a full instruction listing
// to w. It never mutates program.
func Listing(w io.Writer, program *vm.Program) error {
	h := program.Header
	fmt.Fprintf(w, "header: size=%d flags=%#02x lang=%d.%d buildDay=%d buildTime=%d\n",
		h.HeaderSize, h.Flags, h.LangMajor, h.LangMinor, h.BuildDay, h.BuildTime)
	fmt.Fprintf(w, "sections: code=%#x constants=%#x strings=%#x total=%#x globalsSize=%d checksum=%#08x\n",
		h.CodePos, h.ConstantsPos, h.StringsPos, h.TotalSize, h.GlobalsSize, h.Checksum)
	fmt.Fprintf(w, "flags: embeddedFileName=%v shortAddressing=%v decompileHint=%v\n",
		h.EmbeddedFileName(), h.ShortAddressing(), h.DecompileHint())

	fmt.Fprintf(w, "\nconstants (%d):\n", len(program.Constants))
	for i, v := range program.Constants {
		fmt.Fprintf(w, "  [%4d] %#08x\n", i, uint32(v))
	}

	fmt.Fprintf(w, "\nstrings (%d bytes):\n", len(program.Strings))
	for _, s := range splitStrings(program.Strings) {
		fmt.Fprintf(w, "  %q\n", s)
	}

	fmt.Fprintf(w, "\ncode (%d bytes):\n", len(program.Code))
	return disassembleCode(w, program.Code)
}

// splitStrings carves the NUL-delimited string pool into its entries,
// skipping the zero-padding WriteBinary appends for 4-byte alignment.
func splitStrings(pool []byte) []string {
	var out []string
	start := 0
	for i, b := range pool {
		if b == 0 {
			if i > start {
				out = append(out, string(pool[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func disassembleCode(w io.Writer, code []byte) error {
	ip := 0
	for ip < len(code) {
		if code[ip] == vm.FunctionStartMarker {
			if ip+3 > len(code) {
				return fmt.Errorf("truncated function-start marker at %#x", ip)
			}
			fmt.Fprintf(w, "%#06x  FUNCTION_START returnType=%d argc=%d\n", ip, code[ip+1], code[ip+2])
			ip += 3
			continue
		}

		op := opcode.Op(code[ip])
		width := operandWidth(op, code, ip)
		operandStart := ip + 1
		operandEnd := operandStart + width
		if operandEnd > len(code) {
			fmt.Fprintf(w, "%#06x  %-24s <truncated>\n", ip, op)
			return nil
		}
		fmt.Fprintf(w, "%#06x  %-24s%s\n", ip, op, operandString(op, code[operandStart:operandEnd]))
		ip = operandEnd
	}
	return nil
}

// operandWidth special-cases SWITCH, whose trailing jump table is sized
// dynamically from the caseMin/caseMax operands opcode.OperandWidth
// can't see, and the three variable-width constant/string opcodes,
// which opcode.OperandWidth already reports correctly by name.
func operandWidth(op opcode.Op, code []byte, ip int) int {
	fixed := opcode.OperandWidth(op)
	if op != opcode.SWITCH {
		return fixed
	}
	if ip+11 > len(code) {
		return fixed
	}
	min := int32(leU32(code[ip+3:]))
	max := int32(leU32(code[ip+7:]))
	entries := 1 + (max - min + 1)
	if entries < 1 {
		return fixed
	}
	return fixed + int(entries)*2
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func operandString(op opcode.Op, operand []byte) string {
	switch len(operand) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%d", operand[0])
	case 2:
		return fmt.Sprintf("%d", leU16(operand))
	case 3:
		return fmt.Sprintf("%d", uint32(operand[0])|uint32(operand[1])<<8|uint32(operand[2])<<16)
	case 4:
		return fmt.Sprintf("%d", leU32(operand))
	default:
		if op == opcode.SWITCH {
			return switchOperandString(operand)
		}
		return fmt.Sprintf("% x", operand)
	}
}

func switchOperandString(operand []byte) string {
	tableEnd := leU16(operand)
	min := int32(leU32(operand[2:]))
	max := int32(leU32(operand[6:]))
	var b strings.Builder
	fmt.Fprintf(&b, "tableEnd=%#x range=[%d,%d] table=[", tableEnd, min, max)
	table := operand[10:]
	for i := 0; i*2+2 <= len(table); i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%d", leU16(table[i*2:i*2+2]))
	}
	b.WriteString("]")
	return b.String()
}
