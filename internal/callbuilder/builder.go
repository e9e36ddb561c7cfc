package callbuilder

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"contractkit/internal/abicodec"
	"contractkit/internal/chainerr"
)

// Signature is the declared shape of a function or constructor
type Signature struct {
	Name   string
	ID     []byte // 4-byte selector, empty for constructors
	Inputs abi.Arguments
	Tags   []abicodec.Tag // one per input
}

// Copy returns a signature sharing no slices with s
func (s Signature) Copy() Signature {
	return Signature{
		Name:   s.Name,
		ID:     append([]byte(nil), s.ID...),
		Inputs: append(abi.Arguments(nil), s.Inputs...),
		Tags:   append([]abicodec.Tag(nil), s.Tags...),
	}
}

// NewSignature derives tags from the method inputs. Tags may be overridden
// afterwards (e.g. for enum inputs).
func NewSignature(method abi.Method) (Signature, error) {
	tags := make([]abicodec.Tag, len(method.Inputs))
	for i, in := range method.Inputs {
		tag, err := abicodec.TagOf(in.Type)
		if err != nil {
			return Signature{}, fmt.Errorf("%s input %d: %w", method.Sig, i, err)
		}
		tags[i] = tag
	}
	return Signature{
		Name:   method.Name,
		ID:     common.CopyBytes(method.ID),
		Inputs: method.Inputs,
		Tags:   tags,
	}, nil
}

// BuildCall returns selector ++ encoded arguments
func BuildCall(sig Signature, args []abicodec.TypedValue) ([]byte, error) {
	if len(sig.ID) != 4 {
		return nil, fmt.Errorf("%s: invalid selector %x", sig.Name, sig.ID)
	}
	encoded, err := encodeArgs(sig, args)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(sig.ID)+len(encoded))
	payload = append(payload, sig.ID...)
	return append(payload, encoded...), nil
}

// BuildDeployment returns bytecode ++ encoded constructor arguments.
// A zero Signature means the contract declares no constructor inputs.
func BuildDeployment(bytecode []byte, ctor Signature, args []abicodec.TypedValue) ([]byte, error) {
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("empty deployment bytecode")
	}
	encoded, err := encodeArgs(ctor, args)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(bytecode)+len(encoded))
	payload = append(payload, bytecode...)
	return append(payload, encoded...), nil
}

func encodeArgs(sig Signature, args []abicodec.TypedValue) ([]byte, error) {
	if len(args) != len(sig.Inputs) {
		return nil, &chainerr.ArgumentError{
			Kind:     chainerr.ErrArgumentCountMismatch,
			Index:    -1,
			Expected: strconv.Itoa(len(sig.Inputs)),
			Got:      strconv.Itoa(len(args)),
		}
	}
	if len(args) == 0 {
		return nil, nil
	}

	values := make([]any, len(args))
	for i, arg := range args {
		want := sig.Tags[i]
		if !want.Accepts(arg.Tag) {
			return nil, &chainerr.ArgumentError{
				Kind:     chainerr.ErrArgumentTypeMismatch,
				Index:    i,
				Expected: want.String(),
				Got:      arg.Tag.String(),
			}
		}
		if err := arg.Validate(); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		v, err := abicodec.ToABI(arg, sig.Inputs[i].Type)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		values[i] = v
	}

	encoded, err := sig.Inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s arguments: %w", sig.Name, err)
	}
	return encoded, nil
}
