package compiler

import (
	"encoding/binary"

	"mec/pkg/value"
)

const headerSize = 32

const (
	flagEmbeddedFileName = 1 << 0
	flagShortAddressing  = 1 << 1
	flagDecompileHint    = 1 << 2
)

// BinaryOptions controls the header fields the writer can't derive from
// the Program alone.
type BinaryOptions struct {
	ShortAddressing bool
	DecompileHint   bool
	LangMajor       byte
	LangMinor       byte
	BuildDay        uint16 // days since 2000-01-01
	BuildTime       uint16 // seconds since midnight, halved
}

// DaysSince2000 converts a Unix timestamp to the header's buildDay field.
func DaysSince2000(unixSeconds int64) uint16 {
	const epoch2000 = 946684800 // 2000-01-01T00:00:00Z in Unix time
	days := (unixSeconds - epoch2000) / 86400
	if days < 0 {
		return 0
	}
	return uint16(days)
}

// HalfSecondsSinceMidnight converts a Unix timestamp to the header's
// buildTime field: seconds-since-midnight divided by two, so a u16 can
// span the full day.
func HalfSecondsSinceMidnight(unixSeconds int64) uint16 {
	secondsToday := ((unixSeconds % 86400) + 86400) % 86400
	return uint16(secondsToday / 2)
}

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// WriteBinary serializes a compiled Program into the fixed self-describing
// image format: a 32-byte header, then code/constants/strings sections
// each padded to a 4-byte boundary. If embeddedFileName is
// non-empty the caller must have already reserved it as string offset 0
// via Codegen.EmbedFileName before compiling, so the flag and the pool
// contents agree.
func WriteBinary(p *Program, opts BinaryOptions, embeddedFileName string) []byte {
	code, funcOffsets := layoutCode(p)
	code = pad4(code)

	constants := layoutConstants(p, funcOffsets)
	constants = pad4(constants)

	strings := pad4(append([]byte(nil), p.Strings...))

	codePos := uint32(headerSize)
	constantsPos := codePos + uint32(len(code))
	stringsPos := constantsPos + uint32(len(constants))
	totalSize := stringsPos + uint32(len(strings))

	buf := make([]byte, totalSize)

	var flags byte
	if embeddedFileName != "" {
		flags |= flagEmbeddedFileName
	}
	if opts.ShortAddressing {
		flags |= flagShortAddressing
	}
	if opts.DecompileHint {
		flags |= flagDecompileHint
	}

	buf[0] = headerSize
	buf[1] = flags
	buf[2] = opts.LangMajor
	buf[3] = opts.LangMinor
	binary.LittleEndian.PutUint16(buf[4:], opts.BuildDay)
	binary.LittleEndian.PutUint16(buf[6:], opts.BuildTime)
	binary.LittleEndian.PutUint32(buf[8:], codePos)
	binary.LittleEndian.PutUint32(buf[12:], constantsPos)
	binary.LittleEndian.PutUint32(buf[16:], stringsPos)
	binary.LittleEndian.PutUint32(buf[20:], uint32(p.Globals.GlobalsSizeSlots())*4)
	binary.LittleEndian.PutUint32(buf[24:], totalSize)

	copy(buf[codePos:], code)
	copy(buf[constantsPos:], constants)
	copy(buf[stringsPos:], strings)

	checksum := computeChecksum(buf[codePos:], totalSize-codePos)
	binary.LittleEndian.PutUint32(buf[28:], checksum)

	return buf
}

// layoutCode lays out the top-level script first (no prefix, terminated
// by OP_END, already present in p.Script.Code), then every other
// function prefixed by the 3-byte function-start marker: 0xFE,
// return-type, total-argument-count. It returns the function-key ->
// byte-offset map the constant pool patching pass needs; each offset is
// the start of the function's body, just past its 3-byte marker.
func layoutCode(p *Program) ([]byte, map[string]uint32) {
	var code []byte
	offsets := make(map[string]uint32)

	code = append(code, p.Script.Code...)

	for _, fn := range p.Functions {
		if fn.Kind == FuncScript {
			continue
		}
		code = append(code, 0xFE, byte(fn.ReturnType), byte(fn.TotalArgCount()))
		offsets[fn.Key()] = uint32(len(code))
		code = append(code, fn.Code...)
	}

	return code, offsets
}

// layoutConstants serializes the constant pool to raw 4-byte Values,
// patching every function-reference placeholder to its final code-section
// byte offset (a function-id patching pass). The top-level script's
// own constant, if any ever existed, would be left untouched since it is
// never the target of a call — in practice the script has no constant
// entry at all, since nothing calls it by reference.
func layoutConstants(p *Program, funcOffsets map[string]uint32) []byte {
	patched := make(map[int]uint32, len(p.FuncConstRefs))
	for _, ref := range p.FuncConstRefs {
		if off, ok := funcOffsets[ref.Key]; ok {
			patched[ref.ConstIndex] = off
		}
	}

	buf := make([]byte, 0, len(p.Constants)*4)
	for i, v := range p.Constants {
		if off, ok := patched[i]; ok {
			v = value.FunctionVal(off)
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		buf = append(buf, b[:]...)
	}
	return buf
}

// computeChecksum XORs length into the running value, then XORs every
// full 4-byte word in data, then XORs any trailing bytes individually.
func computeChecksum(data []byte, length uint32) uint32 {
	sum := length
	n := len(data)
	i := 0
	for ; i+4 <= n; i += 4 {
		sum ^= binary.LittleEndian.Uint32(data[i : i+4])
	}
	for ; i < n; i++ {
		sum ^= uint32(data[i])
	}
	return sum
}
