// Package vm decodes and executes the binary program image produced by
// pkg/compiler: a self-describing header plus code/constants/strings
// sections, run by a stack machine over 32-bit Value words.
package vm

import (
	"encoding/binary"
	"fmt"

	"mec/pkg/value"
)

const headerSize = 32

const (
	flagEmbeddedFileName = 1 << 0
	flagShortAddressing  = 1 << 1
	flagDecompileHint    = 1 << 2
)

// FunctionStartMarker is the byte prefixing every non-top function's code,
// immediately followed by its return type and total argument count.
const FunctionStartMarker = 0xFE

// Header mirrors the fixed 32-byte program header.
type Header struct {
	HeaderSize   byte
	Flags        byte
	LangMajor    byte
	LangMinor    byte
	BuildDay     uint16
	BuildTime    uint16
	CodePos      uint32
	ConstantsPos uint32
	StringsPos   uint32
	GlobalsSize  uint32
	TotalSize    uint32
	Checksum     uint32
}

func (h Header) EmbeddedFileName() bool { return h.Flags&flagEmbeddedFileName != 0 }
func (h Header) ShortAddressing() bool  { return h.Flags&flagShortAddressing != 0 }
func (h Header) DecompileHint() bool    { return h.Flags&flagDecompileHint != 0 }

// Program is a decoded, validated program image: the header plus
// read-only views onto its three sections.
type Program struct {
	Header    Header
	Image     []byte
	Code      []byte
	Constants []value.Value
	Strings   []byte
}

// Decode validates image's header and checksum and derives its section
// views. It never mutates image; the VM treats the program as read-only.
func Decode(image []byte) (*Program, error) {
	if len(image) < headerSize {
		return nil, fmt.Errorf("image is smaller than the %d-byte header", headerSize)
	}

	h := Header{
		HeaderSize:   image[0],
		Flags:        image[1],
		LangMajor:    image[2],
		LangMinor:    image[3],
		BuildDay:     binary.LittleEndian.Uint16(image[4:]),
		BuildTime:    binary.LittleEndian.Uint16(image[6:]),
		CodePos:      binary.LittleEndian.Uint32(image[8:]),
		ConstantsPos: binary.LittleEndian.Uint32(image[12:]),
		StringsPos:   binary.LittleEndian.Uint32(image[16:]),
		GlobalsSize:  binary.LittleEndian.Uint32(image[20:]),
		TotalSize:    binary.LittleEndian.Uint32(image[24:]),
		Checksum:     binary.LittleEndian.Uint32(image[28:]),
	}

	if h.HeaderSize != headerSize {
		return nil, fmt.Errorf("unexpected header size %d", h.HeaderSize)
	}
	if uint32(len(image)) != h.TotalSize {
		return nil, fmt.Errorf("image length %d does not match header totalSize %d", len(image), h.TotalSize)
	}
	if h.CodePos != headerSize || h.CodePos > h.ConstantsPos || h.ConstantsPos > h.StringsPos || h.StringsPos > h.TotalSize {
		return nil, fmt.Errorf("section offsets are out of order")
	}

	length := h.TotalSize - h.CodePos
	checksum := computeChecksum(image[h.CodePos:], length)
	if checksum != h.Checksum {
		return nil, fmt.Errorf("checksum mismatch: image=%#08x computed=%#08x", h.Checksum, checksum)
	}

	code := image[h.CodePos:h.ConstantsPos]
	rawConstants := image[h.ConstantsPos:h.StringsPos]
	strings := image[h.StringsPos:h.TotalSize]

	if len(rawConstants)%4 != 0 {
		return nil, fmt.Errorf("constants section length %d is not a multiple of 4", len(rawConstants))
	}
	constants := make([]value.Value, len(rawConstants)/4)
	for i := range constants {
		constants[i] = value.Value(binary.LittleEndian.Uint32(rawConstants[i*4:]))
	}

	return &Program{Header: h, Image: image, Code: code, Constants: constants, Strings: strings}, nil
}

// computeChecksum mirrors the compiler's binary writer exactly: XOR length
// into the running value, then XOR every full 4-byte word in data, then
// XOR any trailing bytes individually.
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
