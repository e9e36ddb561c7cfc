package abicodec

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const wordSize = 32

// ErrInvalidEncoding is returned when bytes do not hold a canonical encoding
// of the requested tag
var ErrInvalidEncoding = errors.New("invalid abi encoding")

// Encode returns the ABI encoding of v as a one-element tuple.
// Static values take one 32-byte word; strings and bytes take an offset word,
// a length word and the right-padded payload.
func Encode(v TypedValue) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	t, err := v.Tag.ABIType()
	if err != nil {
		return nil, err
	}
	goValue, err := ToABI(v, t)
	if err != nil {
		return nil, err
	}
	out, err := abi.Arguments{{Type: t}}.Pack(goValue)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", v.Tag, err)
	}
	return out, nil
}

// Decode reads a value of the given tag from its one-element tuple encoding.
// The input must be exactly as long as the encoding and carry canonical padding.
func Decode(data []byte, tag Tag) (TypedValue, error) {
	if err := tag.Validate(); err != nil {
		return TypedValue{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if tag.Dynamic() {
		return decodeDynamic(data, tag)
	}
	if len(data) != wordSize {
		return TypedValue{}, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidEncoding, tag, wordSize, len(data))
	}
	return decodeWord(data, tag)
}

func decodeWord(word []byte, tag Tag) (TypedValue, error) {
	w := new(uint256.Int).SetBytes32(word)

	switch tag.Kind {
	case KindUint:
		if w.BitLen() > tag.Size {
			return TypedValue{}, fmt.Errorf("%w: value exceeds %s", ErrInvalidEncoding, tag)
		}
		return TypedValue{Tag: tag, Value: w.ToBig()}, nil

	case KindInt:
		n := w.ToBig()
		if w.Sign() < 0 {
			n = new(uint256.Int).Neg(w).ToBig()
			n.Neg(n)
		}
		if !fitsSigned(n, tag.Size) {
			return TypedValue{}, fmt.Errorf("%w: value exceeds %s", ErrInvalidEncoding, tag)
		}
		return TypedValue{Tag: tag, Value: n}, nil

	case KindEnum:
		if w.BitLen() > 8 {
			return TypedValue{}, fmt.Errorf("%w: value exceeds enum range", ErrInvalidEncoding)
		}
		return TypedValue{Tag: tag, Value: uint8(w.Uint64())}, nil

	case KindBool:
		if !w.IsUint64() || w.Uint64() > 1 {
			return TypedValue{}, fmt.Errorf("%w: bool must be 0 or 1", ErrInvalidEncoding)
		}
		return TypedValue{Tag: tag, Value: w.Uint64() == 1}, nil

	case KindAddress:
		if w.BitLen() > 160 {
			return TypedValue{}, fmt.Errorf("%w: address has non-zero high bytes", ErrInvalidEncoding)
		}
		return TypedValue{Tag: tag, Value: common.BytesToAddress(word[12:])}, nil

	case KindFixedBytes:
		if !allZero(word[tag.Size:]) {
			return TypedValue{}, fmt.Errorf("%w: %s has non-zero padding", ErrInvalidEncoding, tag)
		}
		return TypedValue{Tag: tag, Value: common.CopyBytes(word[:tag.Size])}, nil
	}
	return TypedValue{}, fmt.Errorf("%w: unsupported tag %s", ErrInvalidEncoding, tag)
}

func decodeDynamic(data []byte, tag Tag) (TypedValue, error) {
	if len(data) < 2*wordSize {
		return TypedValue{}, fmt.Errorf("%w: %s needs at least %d bytes, got %d", ErrInvalidEncoding, tag, 2*wordSize, len(data))
	}
	offset := new(uint256.Int).SetBytes32(data[:wordSize])
	if !offset.IsUint64() || offset.Uint64() != wordSize {
		return TypedValue{}, fmt.Errorf("%w: unexpected offset %s", ErrInvalidEncoding, offset.Dec())
	}
	length := new(uint256.Int).SetBytes32(data[wordSize : 2*wordSize])
	if !length.IsUint64() || length.Uint64() > uint64(len(data)) {
		return TypedValue{}, fmt.Errorf("%w: length %s out of bounds", ErrInvalidEncoding, length.Dec())
	}
	n := int(length.Uint64())
	padded := (n + wordSize - 1) / wordSize * wordSize
	if len(data) != 2*wordSize+padded {
		return TypedValue{}, fmt.Errorf("%w: %s of length %d needs %d bytes, got %d",
			ErrInvalidEncoding, tag, n, 2*wordSize+padded, len(data))
	}
	payload := data[2*wordSize : 2*wordSize+n]
	if !allZero(data[2*wordSize+n:]) {
		return TypedValue{}, fmt.Errorf("%w: %s has non-zero padding", ErrInvalidEncoding, tag)
	}

	if tag.Kind == KindString {
		if !utf8.Valid(payload) {
			return TypedValue{}, fmt.Errorf("%w: string is not valid utf-8", ErrInvalidEncoding)
		}
		return TypedValue{Tag: tag, Value: string(payload)}, nil
	}
	return TypedValue{Tag: tag, Value: common.CopyBytes(payload)}, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// ToABI converts v to the Go value go-ethereum expects when packing type t
func ToABI(v TypedValue, t abi.Type) (any, error) {
	switch v.Tag.Kind {
	case KindUint, KindInt, KindEnum:
		n, _ := v.BigInt()
		if n == nil {
			return nil, mismatch(v.Tag, fmt.Sprintf("value of type %T", v.Value))
		}
		target := t.GetType()
		if target == reflect.TypeOf((*big.Int)(nil)) {
			return n, nil
		}
		out := reflect.New(target).Elem()
		switch target.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out.SetUint(n.Uint64())
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out.SetInt(n.Int64())
		default:
			return nil, mismatch(v.Tag, "abi type "+t.String())
		}
		return out.Interface(), nil

	case KindFixedBytes:
		b, _ := v.Value.([]byte)
		arr := reflect.New(t.GetType()).Elem()
		if arr.Kind() != reflect.Array || arr.Len() != len(b) {
			return nil, mismatch(v.Tag, "abi type "+t.String())
		}
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	}
	return v.Value, nil
}

// FromABI converts a value unpacked by go-ethereum into a TypedValue of tag
func FromABI(raw any, tag Tag) (TypedValue, error) {
	switch tag.Kind {
	case KindUint, KindInt, KindEnum:
		var n *big.Int
		rv := reflect.ValueOf(raw)
		switch x := raw.(type) {
		case *big.Int:
			n = new(big.Int).Set(x)
		default:
			switch rv.Kind() {
			case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				n = new(big.Int).SetUint64(rv.Uint())
			case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				n = big.NewInt(rv.Int())
			default:
				return TypedValue{}, mismatch(tag, fmt.Sprintf("value of type %T", raw))
			}
		}
		if tag.Kind == KindEnum {
			if n.Sign() < 0 || n.BitLen() > 8 {
				return TypedValue{}, mismatch(tag, "value "+n.String()+" out of range")
			}
			return NewEnum(uint8(n.Uint64())), nil
		}
		out := TypedValue{Tag: tag, Value: n}
		return out, out.Validate()

	case KindFixedBytes:
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Array || rv.Len() != tag.Size {
			return TypedValue{}, mismatch(tag, fmt.Sprintf("value of type %T", raw))
		}
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return TypedValue{Tag: tag, Value: b}, nil

	case KindBytes:
		b, ok := raw.([]byte)
		if !ok {
			return TypedValue{}, mismatch(tag, fmt.Sprintf("value of type %T", raw))
		}
		return NewBytes(b), nil
	}

	out := TypedValue{Tag: tag, Value: raw}
	return out, out.Validate()
}

// DecodeOutputs unpacks a return payload into one TypedValue per output tag
func DecodeOutputs(args abi.Arguments, tags []Tag, data []byte) ([]TypedValue, error) {
	if len(args) != len(tags) {
		return nil, fmt.Errorf("%w: %d outputs declared, %d tags", ErrInvalidEncoding, len(args), len(tags))
	}
	if len(args) == 0 {
		return nil, nil
	}
	raw, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	out := make([]TypedValue, len(raw))
	for i, r := range raw {
		v, err := FromABI(r, tags[i])
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
