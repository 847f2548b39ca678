package compiler

import "mec/pkg/value"

// Compatibility is the result of checking an input DataType against an
// expected DataType: either a match, a required cast direction, or an
// incompatible/not-applicable pairing.
type Compatibility int

const (
	Incompatible Compatibility = iota
	CastSignedToUnsigned
	CastSignedToFloat
	CastUnsignedToSigned
	CastUnsignedToFloat
	CastFloatToUnsigned
	CastFloatToSigned
	Match
	NotApplicable
)

// CheckCompatibility implements the assignability lattice between a
// declared or expected type and an incoming value's type.
func CheckCompatibility(expecting, input value.DataType) Compatibility {
	if expecting == input {
		return Match
	}

	switch expecting {
	case value.DtBool, value.DtInt8, value.DtUint8, value.DtInt16, value.DtUint16, value.DtInt32:
		switch {
		case input == value.DtUint32:
			return CastUnsignedToSigned
		case value.IsSigned(input), value.IsUnsigned(input):
			return Match
		case input == value.DtFloat:
			return CastFloatToSigned
		}
	case value.DtUint32:
		switch {
		case input == value.DtFloat:
			return CastFloatToUnsigned
		case value.IsSigned(input), value.IsUnsigned(input):
			return CastSignedToUnsigned
		}
	case value.DtFloat:
		switch {
		case value.IsSigned(input):
			return CastSignedToFloat
		case value.IsUnsigned(input):
			return CastUnsignedToFloat
		}
	case value.DtPointer:
		switch {
		case value.IsSigned(input), value.IsUnsigned(input):
			return Match
		case input == value.DtFloat:
			return CastFloatToSigned
		}
	}

	return Incompatible
}

// PromotedBinaryType computes the result type of a binary arithmetic
// operation between two operand types: float dominates, then unsigned
// dominates, otherwise signed 32-bit.
func PromotedBinaryType(lhs, rhs value.DataType) value.DataType {
	if lhs == value.DtFloat || rhs == value.DtFloat {
		return value.DtFloat
	}
	if lhs == value.DtUint32 || rhs == value.DtUint32 || value.IsUnsigned(lhs) && value.IsUnsigned(rhs) {
		return value.DtUint32
	}
	return value.DtInt32
}
