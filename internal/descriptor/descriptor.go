package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"contractkit/internal/abicodec"
	"contractkit/internal/callbuilder"
)

// Function is a validated contract function
type Function struct {
	Name       string
	Sig        string // canonical signature, e.g. "incCall(address)"
	Input      callbuilder.Signature
	Outputs    abi.Arguments
	OutputTags []abicodec.Tag
	Mutability string
	ReadOnly   bool
}

func (f *Function) clone() *Function {
	out := *f
	out.Input = f.Input.Copy()
	out.Outputs = append(abi.Arguments(nil), f.Outputs...)
	out.OutputTags = append([]abicodec.Tag(nil), f.OutputTags...)
	return &out
}

// Descriptor is the immutable description of a contract type:
// bytecode, function signatures and default constructor arguments
type Descriptor struct {
	name      string
	abi       abi.ABI
	bytecode  []byte
	ctor      callbuilder.Signature
	ctorArgs  []abicodec.TypedValue
	functions map[string]*Function
	bySig     map[string]*Function
}

// Artifact is the on-disk JSON form of a contract
type Artifact struct {
	ContractName    string          `json:"contractName"`
	ABI             json.RawMessage `json:"abi"`
	Bytecode        string          `json:"bytecode,omitempty"`
	Bin             string          `json:"bin,omitempty"`
	ConstructorArgs []string        `json:"constructorArgs,omitempty"`
}

type rawEntry struct {
	Type    string     `json:"type"`
	Name    string     `json:"name"`
	Inputs  []rawParam `json:"inputs"`
	Outputs []rawParam `json:"outputs"`
}

type rawParam struct {
	Type         string `json:"type"`
	InternalType string `json:"internalType"`
}

// Parse builds a descriptor from an artifact JSON document
func Parse(data []byte) (*Descriptor, error) {
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("failed to parse artifact: %w", err)
	}
	bytecode := art.Bytecode
	if bytecode == "" {
		bytecode = art.Bin
	}
	// Some toolchains store the abi as a JSON string
	abiJSON := []byte(art.ABI)
	var asString string
	if err := json.Unmarshal(abiJSON, &asString); err == nil {
		abiJSON = []byte(asString)
	}
	return New(art.ContractName, abiJSON, bytecode, art.ConstructorArgs...)
}

// New validates and builds a descriptor.
// Constructor arguments are given as text and parsed against the constructor inputs.
func New(name string, abiJSON []byte, bytecodeHex string, ctorArgs ...string) (*Descriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("contract name is required")
	}

	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse abi: %w", name, err)
	}

	bytecode, err := decodeBytecode(bytecodeHex)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var entries []rawEntry
	if err := json.Unmarshal(abiJSON, &entries); err != nil {
		return nil, fmt.Errorf("%s: failed to parse abi entries: %w", name, err)
	}

	d := &Descriptor{
		name:      name,
		abi:       parsed,
		bytecode:  bytecode,
		functions: make(map[string]*Function, len(parsed.Methods)),
		bySig:     make(map[string]*Function, len(parsed.Methods)),
	}

	d.ctor, err = callbuilder.NewSignature(parsed.Constructor)
	if err != nil {
		return nil, fmt.Errorf("%s: constructor: %w", name, err)
	}

	for key, method := range parsed.Methods {
		fn, err := newFunction(method)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		d.functions[key] = fn
		d.bySig[fn.Sig] = fn
	}

	// internalType is dropped by go-ethereum; recover enum parameters from it
	for _, e := range entries {
		switch e.Type {
		case "constructor":
			applyEnums(d.ctor.Tags, e.Inputs)
		case "function", "":
			fn, ok := d.bySig[rawSig(e)]
			if !ok {
				continue
			}
			applyEnums(fn.Input.Tags, e.Inputs)
			applyEnums(fn.OutputTags, e.Outputs)
		}
	}

	if len(ctorArgs) > 0 {
		d.ctorArgs, err = abicodec.ParseAll(d.ctor.Tags, ctorArgs)
		if err != nil {
			return nil, fmt.Errorf("%s: constructor arguments: %w", name, err)
		}
	}

	return d, nil
}

func newFunction(method abi.Method) (*Function, error) {
	input, err := callbuilder.NewSignature(method)
	if err != nil {
		return nil, err
	}
	outTags := make([]abicodec.Tag, len(method.Outputs))
	for i, out := range method.Outputs {
		tag, err := abicodec.TagOf(out.Type)
		if err != nil {
			return nil, fmt.Errorf("%s output %d: %w", method.Sig, i, err)
		}
		outTags[i] = tag
	}
	return &Function{
		Name:       method.Name,
		Sig:        method.Sig,
		Input:      input,
		Outputs:    method.Outputs,
		OutputTags: outTags,
		Mutability: method.StateMutability,
		ReadOnly:   method.IsConstant(),
	}, nil
}

func rawSig(e rawEntry) string {
	types := make([]string, len(e.Inputs))
	for i, in := range e.Inputs {
		types[i] = in.Type
	}
	return e.Name + "(" + strings.Join(types, ",") + ")"
}

func applyEnums(tags []abicodec.Tag, params []rawParam) {
	for i, p := range params {
		if i < len(tags) && p.Type == "uint8" && strings.HasPrefix(p.InternalType, "enum ") {
			tags[i] = abicodec.Enum()
		}
	}
}

func decodeBytecode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return nil, fmt.Errorf("bytecode is empty")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode: %w", err)
	}
	return b, nil
}

// Name returns the contract name
func (d *Descriptor) Name() string { return d.name }

// ABI returns the parsed ABI. Callers must not modify it.
func (d *Descriptor) ABI() abi.ABI { return d.abi }

// Bytecode returns a copy of the deployment bytecode
func (d *Descriptor) Bytecode() []byte { return common.CopyBytes(d.bytecode) }

// Constructor returns a copy of the constructor signature
func (d *Descriptor) Constructor() callbuilder.Signature { return d.ctor.Copy() }

// ConstructorArgs returns a copy of the default constructor arguments
func (d *Descriptor) ConstructorArgs() []abicodec.TypedValue {
	out := make([]abicodec.TypedValue, len(d.ctorArgs))
	copy(out, d.ctorArgs)
	return out
}

// Function looks a function up by name or canonical signature and
// returns a copy
func (d *Descriptor) Function(name string) (*Function, error) {
	if fn, ok := d.functions[name]; ok {
		return fn.clone(), nil
	}
	if fn, ok := d.bySig[name]; ok {
		return fn.clone(), nil
	}
	return nil, fmt.Errorf("%s has no function %q", d.name, name)
}

// Functions returns the function names in sorted order
func (d *Descriptor) Functions() []string {
	names := make([]string, 0, len(d.functions))
	for name := range d.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
