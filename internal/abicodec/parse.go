package abicodec

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"contractkit/internal/chainerr"
)

// Parse reads a value of the given tag from text.
// Integers accept decimal or 0x-prefixed hex, bytes accept 0x-prefixed hex.
func Parse(tag Tag, text string) (TypedValue, error) {
	if err := tag.Validate(); err != nil {
		return TypedValue{}, mismatch(tag, err.Error())
	}
	trimmed := strings.TrimSpace(text)

	var v TypedValue
	switch tag.Kind {
	case KindUint, KindInt:
		n, ok := new(big.Int).SetString(trimmed, 0)
		if !ok {
			return TypedValue{}, mismatch(tag, fmt.Sprintf("%q", text))
		}
		v = TypedValue{Tag: tag, Value: n}

	case KindEnum:
		n, err := strconv.ParseUint(trimmed, 0, 8)
		if err != nil {
			return TypedValue{}, mismatch(tag, fmt.Sprintf("%q", text))
		}
		v = NewEnum(uint8(n))

	case KindBool:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return TypedValue{}, mismatch(tag, fmt.Sprintf("%q", text))
		}
		v = NewBool(b)

	case KindString:
		v = NewString(text)

	case KindAddress:
		if !common.IsHexAddress(trimmed) {
			return TypedValue{}, mismatch(tag, fmt.Sprintf("%q", text))
		}
		v = NewAddress(common.HexToAddress(trimmed))

	case KindBytes, KindFixedBytes:
		b, err := hexutil.Decode(trimmed)
		if err != nil {
			return TypedValue{}, mismatch(tag, fmt.Sprintf("%q", text))
		}
		v = TypedValue{Tag: tag, Value: b}
	}

	if err := v.Validate(); err != nil {
		return TypedValue{}, err
	}
	return v, nil
}

// ParseAll parses one text per tag
func ParseAll(tags []Tag, texts []string) ([]TypedValue, error) {
	if len(tags) != len(texts) {
		return nil, &chainerr.ArgumentError{
			Kind:     chainerr.ErrArgumentCountMismatch,
			Index:    -1,
			Expected: strconv.Itoa(len(tags)),
			Got:      strconv.Itoa(len(texts)),
		}
	}
	out := make([]TypedValue, len(tags))
	for i, tag := range tags {
		v, err := Parse(tag, texts[i])
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
