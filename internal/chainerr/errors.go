package chainerr

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Error kinds. Match them with errors.Is.
var (
	// Local errors, raised before any network call
	ErrArgumentCountMismatch = errors.New("argument count mismatch")
	ErrArgumentTypeMismatch  = errors.New("argument type mismatch")

	// Transport errors
	ErrNetwork        = errors.New("network error")
	ErrRemoteRejected = errors.New("remote rejected")

	// Tracking errors
	ErrTransactionTimeout  = errors.New("transaction timeout")
	ErrTransactionReverted = errors.New("transaction reverted")
)

// NetworkError wraps a connection level failure talking to the node
type NetworkError struct {
	Method string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNetwork, e.Method, e.Err)
}

func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// RemoteError is a JSON-RPC error object returned by the node
type RemoteError struct {
	Method  string
	Code    int
	Message string
	Data    string
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s: %s: code %d: %s", ErrRemoteRejected, e.Method, e.Code, e.Message)
	if e.Data != "" {
		msg += " (" + e.Data + ")"
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return ErrRemoteRejected }

// TimeoutError reports a transaction whose receipt did not show up in time.
// The transaction may still be mined later.
type TimeoutError struct {
	Hash   common.Hash
	Waited time.Duration
	Cause  error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s: no receipt for %s after %s", ErrTransactionTimeout, e.Hash.Hex(), e.Waited.Round(time.Millisecond))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return ErrTransactionTimeout }

// RevertError carries the receipt of a mined transaction with a failed status
type RevertError struct {
	Receipt *types.Receipt
	Reason  string
}

func (e *RevertError) Error() string {
	if e.Receipt == nil {
		return ErrTransactionReverted.Error()
	}
	msg := fmt.Sprintf("%s: %s in block %v (gas used %d)",
		ErrTransactionReverted, e.Receipt.TxHash.Hex(), e.Receipt.BlockNumber, e.Receipt.GasUsed)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *RevertError) Unwrap() error { return ErrTransactionReverted }

// CallError adds the contract context to a failed invocation
type CallError struct {
	Contract string
	Address  common.Address
	Function string
	Phase    string
	Err      error
}

func (e *CallError) Error() string {
	target := e.Contract
	if e.Address != (common.Address{}) {
		target += "@" + e.Address.Hex()
	}
	return fmt.Sprintf("%s.%s [%s]: %v", target, e.Function, e.Phase, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ArgumentError describes a local argument validation failure
type ArgumentError struct {
	Kind     error
	Index    int
	Expected string
	Got      string
}

func (e *ArgumentError) Error() string {
	if e.Kind == ErrArgumentCountMismatch {
		return fmt.Sprintf("%s: expected %s arguments, got %s", e.Kind, e.Expected, e.Got)
	}
	if e.Index < 0 {
		return fmt.Sprintf("%s: expected %s, got %s", e.Kind, e.Expected, e.Got)
	}
	return fmt.Sprintf("%s: argument %d: expected %s, got %s", e.Kind, e.Index, e.Expected, e.Got)
}

func (e *ArgumentError) Unwrap() error { return e.Kind }

// IsRetryable reports whether err is a transient network failure
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) && !errors.Is(err, ErrRemoteRejected)
}
