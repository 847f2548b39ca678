// Package value defines the 32-bit Value word and the DataType/VmPointer
// model shared by the compiler and the virtual machine.
package value

import "math"

// DataType is the closed set of types the language and VM recognise.
// A Value itself carries no runtime tag; the opcode dispatching it always
// knows which DataType it is operating on.
type DataType uint8

const (
	DtNone DataType = iota
	DtVoid
	DtBool
	DtInt8
	DtUint8
	DtInt16
	DtUint16
	DtInt32
	DtUint32
	DtFloat
	DtPointer
	DtFunction
	DtNativeFunc
	DtClass
	DtString
	DtUserStruct
)

func (d DataType) String() string {
	switch d {
	case DtNone:
		return "none"
	case DtVoid:
		return "void"
	case DtBool:
		return "bool"
	case DtInt8:
		return "i8"
	case DtUint8:
		return "u8"
	case DtInt16:
		return "i16"
	case DtUint16:
		return "u16"
	case DtInt32:
		return "i32"
	case DtUint32:
		return "u32"
	case DtFloat:
		return "f32"
	case DtPointer:
		return "pointer"
	case DtFunction:
		return "function"
	case DtNativeFunc:
		return "native-function"
	case DtClass:
		return "class"
	case DtString:
		return "string"
	case DtUserStruct:
		return "user-struct"
	default:
		return "unknown"
	}
}

// ByteSize returns the storage size of a DataType in bytes.
func ByteSize(d DataType) int {
	switch d {
	case DtBool, DtInt8, DtUint8:
		return 1
	case DtInt16, DtUint16:
		return 2
	default:
		return 4
	}
}

// PackedCount is how many values of DataType d share one 4-byte Value slot.
func PackedCount(d DataType) int {
	return 4 / ByteSize(d)
}

// IsSigned reports whether d participates in the signed integer opcode family.
func IsSigned(d DataType) bool {
	switch d {
	case DtBool, DtInt8, DtInt16, DtInt32:
		return true
	default:
		return false
	}
}

// IsUnsigned reports whether d participates in the unsigned opcode family.
func IsUnsigned(d DataType) bool {
	switch d {
	case DtUint8, DtUint16, DtUint32:
		return true
	default:
		return false
	}
}

// IsFloat reports whether d is the float type.
func IsFloat(d DataType) bool { return d == DtFloat }

// VarScope names the addressing base a VmPointer resolves against.
type VarScope uint8

const (
	ScopeStackAbsolute VarScope = iota
	ScopeGlobal
	ScopeLocal
	ScopeField
)

func (s VarScope) String() string {
	switch s {
	case ScopeStackAbsolute:
		return "stack-absolute"
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	case ScopeField:
		return "field"
	default:
		return "unknown-scope"
	}
}

// VmPointer is a three-field descriptor: a 16-bit address measured in Value
// words, the pointee's DataType, and the addressing scope it resolves
// against. It is itself encoded into one 32-bit Value.
type VmPointer struct {
	Address     uint16
	PointeeType DataType
	Scope       VarScope
}

// NullPointer is the zero-valued VmPointer, used as a sentinel.
var NullPointer = VmPointer{}

// Value is an untagged 32-bit word. Every accessor here reinterprets the
// same four bytes; callers (the compiler's type checker, the VM's opcode
// dispatch) are responsible for using the accessor that matches the
// static/declared type in play.
type Value uint32

func BoolVal(b bool) Value {
	if b {
		return Value(1)
	}
	return Value(0)
}

func Int8Val(i int8) Value   { return Value(uint32(uint8(i))) }
func Uint8Val(u uint8) Value { return Value(uint32(u)) }

func Int16Val(i int16) Value   { return Value(uint32(uint16(i))) }
func Uint16Val(u uint16) Value { return Value(uint32(u)) }

func Int32Val(i int32) Value   { return Value(uint32(i)) }
func Uint32Val(u uint32) Value { return Value(u) }

func FloatVal(f float32) Value { return Value(math.Float32bits(f)) }

func FunctionVal(id uint32) Value { return Value(id) }
func NativeVal(id uint32) Value   { return Value(id) }

// PointerVal encodes a VmPointer into a Value: address in the low 16 bits,
// pointee type in bits 16-23, scope in bits 24-31 — mirroring the packed
// layout of the source union's VmPointer member (Address uint16, Type u8,
// Scope u8).
func PointerVal(p VmPointer) Value {
	return Value(uint32(p.Address) | uint32(p.PointeeType)<<16 | uint32(p.Scope)<<24)
}

func (v Value) AsBool() bool       { return v != 0 }
func (v Value) AsInt8() int8       { return int8(uint8(v)) }
func (v Value) AsUint8() uint8     { return uint8(v) }
func (v Value) AsInt16() int16     { return int16(uint16(v)) }
func (v Value) AsUint16() uint16   { return uint16(v) }
func (v Value) AsInt32() int32     { return int32(v) }
func (v Value) AsUint32() uint32   { return uint32(v) }
func (v Value) AsFloat() float32   { return math.Float32frombits(uint32(v)) }
func (v Value) AsFunction() uint32 { return uint32(v) }
func (v Value) AsNative() uint32   { return uint32(v) }

func (v Value) AsPointer() VmPointer {
	return VmPointer{
		Address:     uint16(uint32(v) & 0xFFFF),
		PointeeType: DataType(uint32(v)>>16) & 0xFF,
		Scope:       VarScope(uint32(v)>>24) & 0xFF,
	}
}

// AsSigned widens any signed-family Value to an int32 for the _S opcode
// family, based on the declared pointee/element type t.
func (v Value) AsSigned(t DataType) int32 {
	switch t {
	case DtInt8, DtBool:
		return int32(v.AsInt8())
	case DtInt16:
		return int32(v.AsInt16())
	default:
		return v.AsInt32()
	}
}

// AsUnsigned widens any unsigned-family Value to a uint32 for the _U
// opcode family, based on the declared pointee/element type t.
func (v Value) AsUnsigned(t DataType) uint32 {
	switch t {
	case DtUint8:
		return uint32(v.AsUint8())
	case DtUint16:
		return uint32(v.AsUint16())
	default:
		return v.AsUint32()
	}
}

// FromSigned narrows a promoted int32 back down to the storage width of t.
func FromSigned(t DataType, n int32) Value {
	switch t {
	case DtInt8, DtBool:
		return Int8Val(int8(n))
	case DtInt16:
		return Int16Val(int16(n))
	default:
		return Int32Val(n)
	}
}

// FromUnsigned narrows a promoted uint32 back down to the storage width of t.
func FromUnsigned(t DataType, n uint32) Value {
	switch t {
	case DtUint8:
		return Uint8Val(uint8(n))
	case DtUint16:
		return Uint16Val(uint16(n))
	default:
		return Uint32Val(n)
	}
}
