package descriptor

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractkit/internal/abicodec"
)

const enumABI = `[
	{"type":"function","name":"getChoice","inputs":[],"outputs":[{"internalType":"enum T.Choices","name":"","type":"uint8"}],"stateMutability":"view"},
	{"type":"function","name":"setChoice","inputs":[{"internalType":"enum T.Choices","name":"c","type":"uint8"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setRaw","inputs":[{"internalType":"uint8","name":"c","type":"uint8"}],"outputs":[],"stateMutability":"nonpayable"}
]`

const ctorABI = `[
	{"type":"constructor","inputs":[{"name":"seed","type":"uint64"},{"name":"label","type":"string"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"label","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"}
]`

func TestNewRecoversEnumTags(t *testing.T) {
	d, err := New("T", []byte(enumABI), "0x6000")
	require.NoError(t, err)

	get, err := d.Function("getChoice")
	require.NoError(t, err)
	assert.True(t, get.ReadOnly)
	assert.Equal(t, []abicodec.Tag{abicodec.Enum()}, get.OutputTags)

	set, err := d.Function("setChoice(uint8)")
	require.NoError(t, err)
	assert.False(t, set.ReadOnly)
	assert.Equal(t, []abicodec.Tag{abicodec.Enum()}, set.Input.Tags)

	raw, err := d.Function("setRaw")
	require.NoError(t, err)
	assert.Equal(t, []abicodec.Tag{abicodec.Uint(8)}, raw.Input.Tags)

	assert.Equal(t, []string{"getChoice", "setChoice", "setRaw"}, d.Functions())
}

func TestAccessorsReturnCopies(t *testing.T) {
	d, err := New("Seeded", []byte(ctorABI), "6000", "42", "hello")
	require.NoError(t, err)

	ctor := d.Constructor()
	ctor.Tags[0] = abicodec.Bool()
	assert.Equal(t, abicodec.Uint(64), d.Constructor().Tags[0])

	fn, err := d.Function("label")
	require.NoError(t, err)
	fn.OutputTags[0] = abicodec.Bool()
	fn.ReadOnly = false

	again, err := d.Function("label()")
	require.NoError(t, err)
	assert.Equal(t, abicodec.String(), again.OutputTags[0])
	assert.True(t, again.ReadOnly)
}

func TestNewParsesConstructorArgs(t *testing.T) {
	d, err := New("Seeded", []byte(ctorABI), "6000", "42", "hello")
	require.NoError(t, err)

	args := d.ConstructorArgs()
	require.Len(t, args, 2)
	assert.Equal(t, "42", args[0].String())
	assert.Equal(t, "hello", args[1].String())

	// the returned slice is a copy
	args[0] = abicodec.NewBool(true)
	assert.Equal(t, "42", d.ConstructorArgs()[0].String())

	_, err = New("Seeded", []byte(ctorABI), "6000", "not a number", "x")
	assert.Error(t, err)
}

func TestNewRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		contract string
		abi      string
		bytecode string
	}{
		{"missing name", "", `[]`, "0x6000"},
		{"bad abi", "X", `{`, "0x6000"},
		{"empty bytecode", "X", `[]`, ""},
		{"bad bytecode", "X", `[]`, "0xzz"},
		{"unlinked library", "X", `[]`, "0x6000__$lib$__"},
		{"array input", "X", `[{"type":"function","name":"f","inputs":[{"name":"a","type":"uint256[]"}],"outputs":[]}]`, "0x6000"},
		{"tuple output", "X", `[{"type":"function","name":"f","inputs":[],"outputs":[{"name":"","type":"tuple","components":[{"name":"a","type":"uint256"}]}]}]`, "0x6000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.contract, []byte(tt.abi), tt.bytecode)
			assert.Error(t, err)
		})
	}
}

func TestBytecodeIsCopied(t *testing.T) {
	d, err := New("X", []byte(`[]`), "0x6001")
	require.NoError(t, err)

	b := d.Bytecode()
	b[0] = 0xff
	assert.Equal(t, []byte{0x60, 0x01}, d.Bytecode())
}

func TestParseArtifact(t *testing.T) {
	stringABI := `{"contractName":"S","abi":"[{\"type\":\"function\",\"name\":\"f\",\"inputs\":[],\"outputs\":[],\"stateMutability\":\"nonpayable\"}]","bin":"6000"}`
	d, err := Parse([]byte(stringABI))
	require.NoError(t, err)
	assert.Equal(t, "S", d.Name())
	assert.Equal(t, []byte{0x60, 0x00}, d.Bytecode())
}

func TestRegistryLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"build/Enum.json":  {Data: []byte(`{"contractName":"Enum","abi":` + enumABI + `,"bytecode":"0x6000"}`)},
		"build/Seeded.abi": {Data: []byte(ctorABI)},
		"build/Seeded.bin": {Data: []byte("6000\n")},
		"build/README.md":  {Data: []byte("ignored")},
	}

	reg := NewRegistry()
	require.NoError(t, reg.LoadFS(fsys, "build"))
	assert.Equal(t, []string{"Enum", "Seeded"}, reg.Names())

	d, err := reg.Get("Seeded")
	require.NoError(t, err)
	assert.Len(t, d.Constructor().Inputs, 2)

	_, err = reg.Get("Missing")
	assert.Error(t, err)

	assert.Error(t, reg.Register(d), "duplicate names are rejected")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Seeded.abi"), []byte(ctorABI), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Seeded.bin"), []byte("0x6000"), 0o644))

	d, err := LoadFile(filepath.Join(dir, "Seeded.abi"))
	require.NoError(t, err)
	assert.Equal(t, "Seeded", d.Name())

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
