// Package contracts embeds the built-in contract artifacts.
//
// Caller and Callee each keep a counter in storage slot 0. Callee.inc()
// increments its slot 0; Caller forwards inc() to a callee address with
// CALL, CALLCODE or DELEGATECALL, so the slot that changes depends on the mode.
// Person and ChoiceEnum are compiled solc 0.5.13 getter contracts, Interactor
// stores the string passed to its constructor.
package contracts

import (
	"embed"

	"contractkit/internal/descriptor"
)

//go:embed *.json
var FS embed.FS

// Built-in contract names
const (
	Caller     = "Caller"
	Callee     = "Callee"
	Person     = "Person"
	ChoiceEnum = "ChoiceEnum"
	Interactor = "Interactor"
)

// Load returns a registry holding every built-in artifact
func Load() (*descriptor.Registry, error) {
	reg := descriptor.NewRegistry()
	if err := reg.LoadFS(FS, "."); err != nil {
		return nil, err
	}
	return reg, nil
}

// MustGet returns a built-in descriptor and panics if it cannot be loaded
func MustGet(name string) *descriptor.Descriptor {
	reg, err := Load()
	if err != nil {
		panic(err)
	}
	d, err := reg.Get(name)
	if err != nil {
		panic(err)
	}
	return d
}
