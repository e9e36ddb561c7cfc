package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"contractkit/internal/abicodec"
	"contractkit/internal/chainerr"
	"contractkit/internal/metrics"
	"contractkit/internal/models"
	"contractkit/internal/signer"
	"contractkit/internal/tracker"
	"contractkit/internal/transport"
)

// Stages reported in chainerr.CallError.Phase
const (
	StageBuild  = "build"
	StageSubmit = "submit"
	StageAwait  = "await"
	StageDecode = "decode"
)

// Observer is told about every finished invocation and every confirmed
// deployment. Implementations must not block for long.
type Observer interface {
	InvocationFinished(ctx context.Context, inv *models.Invocation)
	ContractDeployed(ctx context.Context, deployment *models.Deployment)
}

// GasPolicy controls gas for submitted transactions
type GasPolicy struct {
	Limit  uint64   // 0 means estimate
	Price  *big.Int // nil means ask the node
	Margin uint64   // percent added to estimates
}

// Options configures a Session
type Options struct {
	Transport transport.Transport // required
	Signer    signer.Signer       // required for Deploy and Transact
	ChainID   *big.Int            // nil means ask the node once

	Gas GasPolicy

	PollInterval      time.Duration
	MaxWait           time.Duration
	MaxNetworkRetries int

	Observer Observer
}

type chainState struct {
	mu sync.Mutex
	id *big.Int
}

// Session binds a transport, a signer and the gas and polling policies.
// It is safe for concurrent use.
type Session struct {
	transport transport.Transport
	signer    signer.Signer
	tracker   *tracker.Tracker
	gas       GasPolicy
	observer  Observer
	chain     *chainState
}

// NewSession validates opts and creates a Session
func NewSession(opts Options) (*Session, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	s := &Session{
		transport: opts.Transport,
		signer:    opts.Signer,
		gas:       opts.Gas,
		observer:  opts.Observer,
		chain:     &chainState{},
		tracker: tracker.New(opts.Transport, tracker.Options{
			PollInterval:      opts.PollInterval,
			MaxWait:           opts.MaxWait,
			MaxNetworkRetries: opts.MaxNetworkRetries,
		}),
	}
	if opts.ChainID != nil {
		s.chain.id = new(big.Int).Set(opts.ChainID)
	}
	return s, nil
}

// WithPolling returns a session sharing everything but the polling policy.
// Zero fields of polling keep the current values.
func (s *Session) WithPolling(polling tracker.Options) *Session {
	cp := *s
	cur := s.tracker.Options()
	if polling.PollInterval <= 0 {
		polling.PollInterval = cur.PollInterval
	}
	if polling.MaxWait <= 0 {
		polling.MaxWait = cur.MaxWait
	}
	if polling.MaxNetworkRetries <= 0 {
		polling.MaxNetworkRetries = cur.MaxNetworkRetries
	}
	cp.tracker = tracker.New(s.transport, polling)
	return &cp
}

// Transport returns the session transport
func (s *Session) Transport() transport.Transport { return s.transport }

// Polling returns the effective polling options
func (s *Session) Polling() tracker.Options { return s.tracker.Options() }

// From returns the signer address, or the zero address without a signer
func (s *Session) From() common.Address {
	if s.signer == nil {
		return common.Address{}
	}
	return s.signer.Address()
}

// ChainID returns the configured chain id, asking the node on first use
func (s *Session) ChainID(ctx context.Context) (*big.Int, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	if s.chain.id == nil {
		id, err := s.transport.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
		s.chain.id = id
	}
	return new(big.Int).Set(s.chain.id), nil
}

// nonceLocks serializes nonce fetch, signing and submission per account,
// across all sessions of the process
var nonceLocks sync.Map

func lockAccount(account common.Address) func() {
	m, _ := nonceLocks.LoadOrStore(account, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Session) newInvocation(kind models.InvocationKind, contract string, address common.Address, function string, args []abicodec.TypedValue) *models.Invocation {
	inv := &models.Invocation{
		ID:           uuid.NewString(),
		Kind:         kind,
		ContractName: contract,
		Function:     function,
		StartedAt:    time.Now(),
	}
	if address != (common.Address{}) {
		inv.Address = address.Hex()
	}
	for _, a := range args {
		inv.Args = append(inv.Args, a.String())
	}
	return inv
}

// advance applies a transition. An invalid one is a bug in this package.
func advance(inv *models.Invocation, next models.Phase) {
	if err := inv.Advance(next); err != nil {
		panic(err)
	}
}

func (s *Session) finish(ctx context.Context, inv *models.Invocation) {
	if inv.Phase == models.PhaseFailed || inv.Phase == models.PhaseReverted || inv.Phase == models.PhaseTimedOut {
		metrics.ErrorsTotal.WithLabelValues("contract").Inc()
	}
	slog.Debug("Invocation finished",
		"id", inv.ID,
		"contract", inv.ContractName,
		"function", inv.Function,
		"phase", inv.Phase,
		"tx_hash", inv.TxHash,
		"duration", inv.Duration())
	if s.observer != nil {
		s.observer.InvocationFinished(ctx, inv)
	}
}

// fail records err on inv and wraps it with the contract context
func fail(inv *models.Invocation, stage string, address common.Address, err error) error {
	if !inv.Phase.Terminal() {
		next := models.PhaseFailed
		switch {
		case errors.Is(err, chainerr.ErrTransactionReverted):
			next = models.PhaseReverted
		case errors.Is(err, chainerr.ErrTransactionTimeout):
			next = models.PhaseTimedOut
		}
		if !inv.Phase.CanTransition(next) {
			next = models.PhaseFailed
		}
		advance(inv, next)
	}
	inv.Error = err.Error()
	return &chainerr.CallError{
		Contract: inv.ContractName,
		Address:  address,
		Function: inv.Function,
		Phase:    stage,
		Err:      err,
	}
}

// query runs a read-only call
func (s *Session) query(ctx context.Context, inv *models.Invocation, to common.Address, data []byte) ([]byte, error) {
	advance(inv, models.PhaseSubmitted)
	raw, err := s.transport.Query(ctx, transport.CallRequest{From: s.From(), To: &to, Data: data})
	if err != nil {
		return nil, withRevertReason(err)
	}
	return raw, nil
}

// send signs and submits a transaction, then waits for its receipt. The
// returned stage tells where a failure happened.
func (s *Session) send(ctx context.Context, inv *models.Invocation, to *common.Address, data []byte) (*types.Receipt, string, error) {
	if s.signer == nil {
		return nil, StageSubmit, fmt.Errorf("no signer configured")
	}
	from := s.signer.Address()
	inv.Sender = from.Hex()

	chainID, err := s.ChainID(ctx)
	if err != nil {
		return nil, StageSubmit, err
	}
	req := transport.CallRequest{From: from, To: to, Data: data}
	gas, err := s.gasLimit(ctx, req)
	if err != nil {
		return nil, StageSubmit, err
	}
	price, err := s.gasPrice(ctx)
	if err != nil {
		return nil, StageSubmit, err
	}

	tx, err := s.signAndSubmit(ctx, chainID, from, to, data, gas, price)
	if err != nil {
		return nil, StageSubmit, err
	}
	inv.TxHash = tx.Hash().Hex()
	inv.Nonce = tx.Nonce()
	advance(inv, models.PhaseSubmitted)

	receipt, err := s.tracker.AwaitReceipt(ctx, tx.Hash())
	if receipt != nil {
		inv.BlockNumber = receipt.BlockNumber.Uint64()
		inv.GasUsed = receipt.GasUsed
	}
	if err != nil {
		var revert *chainerr.RevertError
		if errors.As(err, &revert) {
			revert.Reason = s.replayReason(ctx, req)
		}
		return receipt, StageAwait, err
	}
	advance(inv, models.PhaseMined)
	return receipt, "", nil
}

func (s *Session) signAndSubmit(ctx context.Context, chainID *big.Int, from common.Address, to *common.Address, data []byte, gas uint64, price *big.Int) (*types.Transaction, error) {
	unlock := lockAccount(from)
	defer unlock()

	nonce, err := s.transport.PendingNonce(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Gas:      gas,
		GasPrice: price,
		Data:     data,
	})
	signed, err := s.signer.SignTx(tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if _, err := s.transport.Submit(ctx, signed); err != nil {
		return nil, err
	}

	slog.Debug("Transaction submitted",
		"tx_hash", signed.Hash().Hex(),
		"from", from.Hex(),
		"nonce", nonce,
		"gas", gas)
	return signed, nil
}

func (s *Session) gasLimit(ctx context.Context, req transport.CallRequest) (uint64, error) {
	if s.gas.Limit > 0 {
		return s.gas.Limit, nil
	}
	estimate, err := s.transport.EstimateGas(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", withRevertReason(err))
	}
	return estimate + estimate*s.gas.Margin/100, nil
}

func (s *Session) gasPrice(ctx context.Context) (*big.Int, error) {
	if s.gas.Price != nil {
		return new(big.Int).Set(s.gas.Price), nil
	}
	price, err := s.transport.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

// replayReason re-runs a reverted message as a call to recover the revert
// reason. The state may have moved on, so an empty reason is common.
func (s *Session) replayReason(ctx context.Context, req transport.CallRequest) string {
	_, err := s.transport.Query(ctx, req)
	if err == nil {
		return ""
	}
	return revertReason(err)
}

// revertReason decodes Error(string) revert data carried by a remote error
func revertReason(err error) string {
	var remote *chainerr.RemoteError
	if !errors.As(err, &remote) || remote.Data == "" {
		return ""
	}
	data, decodeErr := hexutil.Decode(remote.Data)
	if decodeErr != nil {
		return ""
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return ""
	}
	return reason
}

// withRevertReason makes sure the decoded reason shows up in the message
func withRevertReason(err error) error {
	var remote *chainerr.RemoteError
	if !errors.As(err, &remote) {
		return err
	}
	reason := revertReason(err)
	if reason == "" || strings.Contains(remote.Message, reason) {
		return err
	}
	enriched := *remote
	enriched.Message = remote.Message + ": " + reason
	return &enriched
}
