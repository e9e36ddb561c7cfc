package abicodec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"contractkit/internal/chainerr"
)

// Kind is the semantic family of a wire type
type Kind uint8

const (
	KindUint Kind = iota + 1
	KindInt
	KindBool
	KindString
	KindAddress
	KindEnum
	KindBytes
	KindFixedBytes
)

// Tag identifies a supported wire type.
// Size is the bit width for integers and the byte length for fixed bytes.
type Tag struct {
	Kind Kind
	Size int
}

func Uint(bits int) Tag { return Tag{Kind: KindUint, Size: bits} }
func Int(bits int) Tag { return Tag{Kind: KindInt, Size: bits} }
func Bool() Tag { return Tag{Kind: KindBool} }
func String() Tag { return Tag{Kind: KindString} }
func Address() Tag { return Tag{Kind: KindAddress} }
func Enum() Tag { return Tag{Kind: KindEnum, Size: 8} }
func Bytes() Tag { return Tag{Kind: KindBytes} }
func FixedBytes(size int) Tag { return Tag{Kind: KindFixedBytes, Size: size} }

// String returns the ABI spelling of the tag ("enum" for enumerations)
func (t Tag) String() string {
	switch t.Kind {
	case KindUint:
		return "uint" + strconv.Itoa(t.Size)
	case KindInt:
		return "int" + strconv.Itoa(t.Size)
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindAddress:
		return "address"
	case KindEnum:
		return "enum"
	case KindBytes:
		return "bytes"
	case KindFixedBytes:
		return "bytes" + strconv.Itoa(t.Size)
	default:
		return fmt.Sprintf("unknown(%d)", t.Kind)
	}
}

// Validate checks that the tag describes a type the codec supports
func (t Tag) Validate() error {
	switch t.Kind {
	case KindUint, KindInt:
		if t.Size < 8 || t.Size > 256 || t.Size%8 != 0 {
			return fmt.Errorf("invalid integer width %d", t.Size)
		}
	case KindFixedBytes:
		if t.Size < 1 || t.Size > 32 {
			return fmt.Errorf("invalid fixed bytes size %d", t.Size)
		}
	case KindEnum:
		if t.Size != 8 {
			return fmt.Errorf("invalid enum width %d", t.Size)
		}
	case KindBool, KindString, KindAddress, KindBytes:
	default:
		return fmt.Errorf("unknown tag kind %d", t.Kind)
	}
	return nil
}

// Dynamic reports whether values of this tag are length-prefixed
func (t Tag) Dynamic() bool {
	return t.Kind == KindString || t.Kind == KindBytes
}

// Accepts reports whether a value tagged v may be passed where t is declared.
// Enumerations travel as uint8.
func (t Tag) Accepts(v Tag) bool {
	if t == v {
		return true
	}
	isByte := func(x Tag) bool { return x == Uint(8) || x.Kind == KindEnum }
	return isByte(t) && isByte(v)
}

// ABIType returns the go-ethereum ABI type for the tag
func (t Tag) ABIType() (abi.Type, error) {
	if err := t.Validate(); err != nil {
		return abi.Type{}, err
	}
	name := t.String()
	if t.Kind == KindEnum {
		name = "uint8"
	}
	return abi.NewType(name, "", nil)
}

// ParseTag reads a tag from its ABI spelling. "uint" and "int" mean 256 bits.
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	var tag Tag
	switch {
	case s == "bool":
		tag = Bool()
	case s == "string":
		tag = String()
	case s == "address":
		tag = Address()
	case s == "bytes":
		tag = Bytes()
	case s == "enum" || strings.HasPrefix(s, "enum "):
		tag = Enum()
	case strings.HasPrefix(s, "uint"):
		bits, err := parseWidth(s[len("uint"):], 256)
		if err != nil {
			return Tag{}, fmt.Errorf("invalid tag %q: %w", s, err)
		}
		tag = Uint(bits)
	case strings.HasPrefix(s, "int"):
		bits, err := parseWidth(s[len("int"):], 256)
		if err != nil {
			return Tag{}, fmt.Errorf("invalid tag %q: %w", s, err)
		}
		tag = Int(bits)
	case strings.HasPrefix(s, "bytes"):
		size, err := strconv.Atoi(s[len("bytes"):])
		if err != nil {
			return Tag{}, fmt.Errorf("invalid tag %q: %w", s, err)
		}
		tag = FixedBytes(size)
	default:
		return Tag{}, fmt.Errorf("unsupported tag %q", s)
	}
	if err := tag.Validate(); err != nil {
		return Tag{}, fmt.Errorf("invalid tag %q: %w", s, err)
	}
	return tag, nil
}

func parseWidth(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// TagOf maps a go-ethereum ABI type to a tag.
// Arrays, tuples, fixed point and function types are not supported.
func TagOf(t abi.Type) (Tag, error) {
	var tag Tag
	switch t.T {
	case abi.UintTy:
		tag = Uint(t.Size)
	case abi.IntTy:
		tag = Int(t.Size)
	case abi.BoolTy:
		tag = Bool()
	case abi.StringTy:
		tag = String()
	case abi.AddressTy:
		tag = Address()
	case abi.BytesTy:
		tag = Bytes()
	case abi.FixedBytesTy:
		tag = FixedBytes(t.Size)
	default:
		return Tag{}, fmt.Errorf("%w: unsupported abi type %s", chainerr.ErrArgumentTypeMismatch, t.String())
	}
	return tag, tag.Validate()
}
