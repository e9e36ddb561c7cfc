package abicodec

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"contractkit/internal/chainerr"
)

// TypedValue is a value together with its wire type.
//
// Canonical Go representations per kind:
//
//	uint, int    *big.Int
//	enum         uint8
//	bool         bool
//	string       string
//	address      common.Address
//	bytes, bytesN []byte
type TypedValue struct {
	Tag   Tag
	Value any
}

func NewUint(bits int, v *big.Int) TypedValue {
	return TypedValue{Tag: Uint(bits), Value: new(big.Int).Set(v)}
}

func NewUint64(bits int, v uint64) TypedValue {
	return TypedValue{Tag: Uint(bits), Value: new(big.Int).SetUint64(v)}
}

func NewInt(bits int, v *big.Int) TypedValue {
	return TypedValue{Tag: Int(bits), Value: new(big.Int).Set(v)}
}

func NewInt64(bits int, v int64) TypedValue {
	return TypedValue{Tag: Int(bits), Value: big.NewInt(v)}
}

func NewBool(v bool) TypedValue { return TypedValue{Tag: Bool(), Value: v} }

func NewString(v string) TypedValue { return TypedValue{Tag: String(), Value: v} }

func NewAddress(v common.Address) TypedValue { return TypedValue{Tag: Address(), Value: v} }

func NewEnum(v uint8) TypedValue { return TypedValue{Tag: Enum(), Value: v} }

func NewBytes(v []byte) TypedValue {
	return TypedValue{Tag: Bytes(), Value: common.CopyBytes(v)}
}

func NewFixedBytes(v []byte) TypedValue {
	return TypedValue{Tag: FixedBytes(len(v)), Value: common.CopyBytes(v)}
}

// Validate checks that the value has the canonical Go type for its tag and
// fits the tag's width.
func (v TypedValue) Validate() error {
	if err := v.Tag.Validate(); err != nil {
		return mismatch(v.Tag, err.Error())
	}
	switch v.Tag.Kind {
	case KindUint:
		n, ok := v.Value.(*big.Int)
		if !ok || n == nil {
			return mismatch(v.Tag, fmt.Sprintf("value of type %T", v.Value))
		}
		if n.Sign() < 0 || n.BitLen() > v.Tag.Size {
			return mismatch(v.Tag, "value "+n.String()+" out of range")
		}
	case KindInt:
		n, ok := v.Value.(*big.Int)
		if !ok || n == nil {
			return mismatch(v.Tag, fmt.Sprintf("value of type %T", v.Value))
		}
		if !fitsSigned(n, v.Tag.Size) {
			return mismatch(v.Tag, "value "+n.String()+" out of range")
		}
	case KindEnum:
		if _, ok := v.Value.(uint8); !ok {
			return mismatch(v.Tag, fmt.Sprintf("value of type %T", v.Value))
		}
	case KindBool:
		if _, ok := v.Value.(bool); !ok {
			return mismatch(v.Tag, fmt.Sprintf("value of type %T", v.Value))
		}
	case KindString:
		s, ok := v.Value.(string)
		if !ok {
			return mismatch(v.Tag, fmt.Sprintf("value of type %T", v.Value))
		}
		if !utf8.ValidString(s) {
			return mismatch(v.Tag, "invalid utf-8")
		}
	case KindAddress:
		if _, ok := v.Value.(common.Address); !ok {
			return mismatch(v.Tag, fmt.Sprintf("value of type %T", v.Value))
		}
	case KindBytes:
		if _, ok := v.Value.([]byte); !ok {
			return mismatch(v.Tag, fmt.Sprintf("value of type %T", v.Value))
		}
	case KindFixedBytes:
		b, ok := v.Value.([]byte)
		if !ok {
			return mismatch(v.Tag, fmt.Sprintf("value of type %T", v.Value))
		}
		if len(b) != v.Tag.Size {
			return mismatch(v.Tag, fmt.Sprintf("%d bytes", len(b)))
		}
	}
	return nil
}

// String renders the value in the same text form Parse accepts
func (v TypedValue) String() string {
	switch x := v.Value.(type) {
	case *big.Int:
		if x == nil {
			return "<nil>"
		}
		return x.String()
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case common.Address:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Equal reports whether both values carry the same tag and value
func (v TypedValue) Equal(o TypedValue) bool {
	if v.Tag != o.Tag {
		return false
	}
	switch x := v.Value.(type) {
	case *big.Int:
		y, ok := o.Value.(*big.Int)
		return ok && x != nil && y != nil && x.Cmp(y) == 0
	case []byte:
		y, ok := o.Value.([]byte)
		return ok && bytes.Equal(x, y)
	default:
		return v.Value == o.Value
	}
}

// BigInt returns the integer held by v, widening enums
func (v TypedValue) BigInt() (*big.Int, bool) {
	switch x := v.Value.(type) {
	case *big.Int:
		return new(big.Int).Set(x), true
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), true
	}
	return nil, false
}

func fitsSigned(n *big.Int, bits int) bool {
	if n.Sign() >= 0 {
		return n.BitLen() <= bits-1
	}
	// -2^(bits-1) is the lowest value; its magnitude minus one fits bits-1
	m := new(big.Int).Neg(n)
	m.Sub(m, big.NewInt(1))
	return m.BitLen() <= bits-1
}

func mismatch(tag Tag, got string) error {
	return &chainerr.ArgumentError{
		Kind:     chainerr.ErrArgumentTypeMismatch,
		Index:    -1,
		Expected: tag.String(),
		Got:      got,
	}
}
