package models

import (
	"fmt"
	"time"
)

// InvocationKind is what an invocation does on chain
type InvocationKind string

const (
	KindDeploy   InvocationKind = "deploy"
	KindCall     InvocationKind = "call"
	KindTransact InvocationKind = "transact"
)

// Phase is the state of an invocation.
//
//	"" -> built -> submitted -> mined | reverted | timed_out | returned
//
// Failed may follow any non-terminal phase.
type Phase string

const (
	PhaseNew       Phase = ""
	PhaseBuilt     Phase = "built"
	PhaseSubmitted Phase = "submitted"
	PhaseMined     Phase = "mined"
	PhaseReverted  Phase = "reverted"
	PhaseTimedOut  Phase = "timed_out"
	PhaseReturned  Phase = "returned"
	PhaseFailed    Phase = "failed"
)

var transitions = map[Phase][]Phase{
	PhaseNew:       {PhaseBuilt, PhaseFailed},
	PhaseBuilt:     {PhaseSubmitted, PhaseFailed},
	PhaseSubmitted: {PhaseMined, PhaseReverted, PhaseTimedOut, PhaseReturned, PhaseFailed},
}

// Terminal reports whether no further transition is possible
func (p Phase) Terminal() bool {
	_, ok := transitions[p]
	return !ok
}

// CanTransition reports whether p may move to next
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Invocation records one deploy, call or transaction against a contract
type Invocation struct {
	// Identification
	ID           string         `json:"id"`
	Kind         InvocationKind `json:"kind"`
	ContractName string         `json:"contract_name"`
	Address      string         `json:"address,omitempty"`
	Function     string         `json:"function"`
	Args         []string       `json:"args,omitempty"`

	// State
	Phase Phase `json:"phase"`

	// Transaction context, empty for read-only calls
	TxHash      string `json:"tx_hash,omitempty"`
	Sender      string `json:"sender,omitempty"`
	Nonce       uint64 `json:"nonce,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`

	// Results
	Results []string `json:"results,omitempty"`
	Error   string   `json:"error,omitempty"`

	// Timings
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Advance moves the invocation to next and stamps the timings
func (inv *Invocation) Advance(next Phase) error {
	if !inv.Phase.CanTransition(next) {
		return fmt.Errorf("invalid invocation transition %q -> %q", inv.Phase, next)
	}
	inv.Phase = next

	now := time.Now()
	switch {
	case next == PhaseSubmitted:
		inv.SubmittedAt = &now
	case next.Terminal():
		inv.FinishedAt = &now
	}
	return nil
}

// Succeeded reports whether the invocation ended well
func (inv *Invocation) Succeeded() bool {
	return inv.Phase == PhaseMined || inv.Phase == PhaseReturned
}

// Duration returns the time from start to the terminal phase
func (inv *Invocation) Duration() time.Duration {
	if inv.FinishedAt == nil {
		return 0
	}
	return inv.FinishedAt.Sub(inv.StartedAt)
}
