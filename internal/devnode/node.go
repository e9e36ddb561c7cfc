// Package devnode runs an in-process EVM ledger behind the JSON-RPC subset
// used by the transport. Each accepted transaction is mined into its own
// block. Fees are not charged and balances are not checked for gas.
package devnode

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	DefaultChainID       = 1337
	DefaultBlockGasLimit = 30_000_000
)

// Options configures a Node. Zero values pick defaults.
type Options struct {
	ChainID       *big.Int
	BlockGasLimit uint64
	GasPrice      *big.Int

	// MineDelay postpones mining of accepted transactions
	MineDelay time.Duration
	// Paused starts the node without mining; see Resume
	Paused bool
}

type pendingTx struct {
	tx   *types.Transaction
	from common.Address
}

// Node is a single-process development chain
type Node struct {
	chainID   *big.Int
	gasPrice  *big.Int
	gasLimit  uint64
	mineDelay time.Duration

	mu       sync.Mutex
	state    *state.StateDB
	number   uint64
	paused   bool
	closed   bool
	nonces   map[common.Address]uint64
	pending  []pendingTx
	receipts map[common.Hash]*types.Receipt

	rpc      *rpc.Server
	requests atomic.Int64
	faults   atomic.Int64

	server   *http.Server
	listener net.Listener
}

// New creates a Node with an empty state
func New(opts Options) (*Node, error) {
	st, err := state.New(types.EmptyRootHash, state.NewDatabaseForTesting())
	if err != nil {
		return nil, fmt.Errorf("failed to create state: %w", err)
	}

	n := &Node{
		chainID:   opts.ChainID,
		gasPrice:  opts.GasPrice,
		gasLimit:  opts.BlockGasLimit,
		mineDelay: opts.MineDelay,
		state:     st,
		paused:    opts.Paused,
		nonces:    make(map[common.Address]uint64),
		receipts:  make(map[common.Hash]*types.Receipt),
		rpc:       rpc.NewServer(),
	}
	if n.chainID == nil {
		n.chainID = big.NewInt(DefaultChainID)
	}
	if n.gasPrice == nil {
		n.gasPrice = big.NewInt(params.GWei)
	}
	if n.gasLimit == 0 {
		n.gasLimit = DefaultBlockGasLimit
	}

	if err := n.rpc.RegisterName("eth", &ethAPI{node: n}); err != nil {
		return nil, fmt.Errorf("failed to register eth namespace: %w", err)
	}
	if err := n.rpc.RegisterName("net", &netAPI{node: n}); err != nil {
		return nil, fmt.Errorf("failed to register net namespace: %w", err)
	}
	return n, nil
}

// ChainID returns the chain id reported by eth_chainId
func (n *Node) ChainID() *big.Int { return new(big.Int).Set(n.chainID) }

// Handler returns the HTTP handler serving JSON-RPC
func (n *Node) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.requests.Add(1)
		if n.takeFault() {
			http.Error(w, "injected fault", http.StatusServiceUnavailable)
			return
		}
		n.rpc.ServeHTTP(w, r)
	})
}

// Start listens on addr and serves JSON-RPC until Close. It returns the
// endpoint URL.
func (n *Node) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	n.listener = ln
	n.server = &http.Server{
		Handler:           n.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := n.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Dev node server stopped", "error", err)
		}
	}()

	url := "http://" + ln.Addr().String()
	slog.Info("Dev node listening", "url", url, "chain_id", n.chainID)
	return url, nil
}

// Close stops the HTTP server and the RPC server
func (n *Node) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.rpc.Stop()
	if n.server != nil {
		return n.server.Close()
	}
	return nil
}

// Requests returns the number of HTTP requests received, faults included
func (n *Node) Requests() int64 { return n.requests.Load() }

// FailNext makes the next count HTTP requests answer 503
func (n *Node) FailNext(count int) { n.faults.Store(int64(count)) }

func (n *Node) takeFault() bool {
	for {
		f := n.faults.Load()
		if f <= 0 {
			return false
		}
		if n.faults.CompareAndSwap(f, f-1) {
			return true
		}
	}
}

// Pause stops mining. Accepted transactions stay pending.
func (n *Node) Pause() {
	n.mu.Lock()
	n.paused = true
	n.mu.Unlock()
}

// Resume restarts mining and mines everything pending
func (n *Node) Resume() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused = false
	n.minePendingLocked()
}

// Mine mines all pending transactions regardless of pause and delay.
// It returns how many were mined.
func (n *Node) Mine() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.minePendingLocked()
}

// Pending returns the number of accepted but unmined transactions
func (n *Node) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// BlockNumber returns the latest mined block
func (n *Node) BlockNumber() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.number
}

// StorageAt reads a storage slot of the latest state
func (n *Node) StorageAt(account common.Address, slot common.Hash) common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetState(account, slot)
}

func (n *Node) submit(tx *types.Transaction) (common.Hash, error) {
	if tx.Protected() && tx.ChainId().Cmp(n.chainID) != 0 {
		return common.Hash{}, &txError{msg: fmt.Sprintf("invalid chain id: have %s want %s", tx.ChainId(), n.chainID)}
	}
	from, err := types.Sender(types.LatestSignerForChainID(n.chainID), tx)
	if err != nil {
		return common.Hash{}, &txError{msg: "invalid sender: " + err.Error()}
	}
	if tx.Gas() > n.gasLimit {
		return common.Hash{}, &txError{msg: "exceeds block gas limit"}
	}
	if tx.Gas() < intrinsicGas(tx.Data(), tx.To() == nil) {
		return common.Hash{}, &txError{msg: "intrinsic gas too low"}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return common.Hash{}, &txError{msg: "node closed"}
	}
	hash := tx.Hash()
	if n.knownLocked(hash) {
		return common.Hash{}, &txError{msg: "already known"}
	}

	next := n.nonces[from]
	switch {
	case tx.Nonce() < next:
		return common.Hash{}, &txError{msg: fmt.Sprintf("nonce too low: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), next)}
	case tx.Nonce() > next:
		return common.Hash{}, &txError{msg: fmt.Sprintf("nonce too high: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), next)}
	}
	n.nonces[from] = next + 1
	n.pending = append(n.pending, pendingTx{tx: tx, from: from})

	slog.Debug("Dev node accepted transaction", "tx_hash", hash.Hex(), "from", from.Hex(), "nonce", tx.Nonce())

	switch {
	case n.paused:
	case n.mineDelay > 0:
		time.AfterFunc(n.mineDelay, func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if !n.paused && !n.closed {
				n.minePendingLocked()
			}
		})
	default:
		n.minePendingLocked()
	}
	return hash, nil
}

func (n *Node) knownLocked(hash common.Hash) bool {
	if _, ok := n.receipts[hash]; ok {
		return true
	}
	for _, p := range n.pending {
		if p.tx.Hash() == hash {
			return true
		}
	}
	return false
}

func (n *Node) minePendingLocked() int {
	mined := len(n.pending)
	for _, p := range n.pending {
		receipt := n.executeLocked(p)
		n.receipts[receipt.TxHash] = receipt
	}
	n.pending = nil
	return mined
}

func (n *Node) executeLocked(p pendingTx) *types.Receipt {
	tx := p.tx
	n.number++

	budget := tx.Gas() - intrinsicGas(tx.Data(), tx.To() == nil)
	cfg := n.runtimeConfig(n.state, p.from, budget, tx.Value())

	var (
		created  common.Address
		leftover uint64
		err      error
	)
	if tx.To() == nil {
		_, created, leftover, err = runtime.Create(tx.Data(), cfg)
	} else {
		_, leftover, err = runtime.Call(*tx.To(), tx.Data(), cfg)
	}
	n.state.Finalise(true)

	gasUsed := tx.Gas() - leftover
	number := new(big.Int).SetUint64(n.number)
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: gasUsed,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		GasUsed:           gasUsed,
		EffectiveGasPrice: tx.GasPrice(),
		BlockHash:         crypto.Keccak256Hash(number.Bytes(), tx.Hash().Bytes()),
		BlockNumber:       number,
		TransactionIndex:  0,
	}
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
		slog.Debug("Dev node transaction failed", "tx_hash", tx.Hash().Hex(), "error", err)
	} else if tx.To() == nil {
		receipt.ContractAddress = created
	}

	slog.Debug("Dev node mined block",
		"number", n.number,
		"tx_hash", tx.Hash().Hex(),
		"status", receipt.Status,
		"gas_used", gasUsed)
	return receipt
}

func (n *Node) runtimeConfig(st *state.StateDB, from common.Address, gas uint64, value *big.Int) *runtime.Config {
	if value == nil {
		value = new(big.Int)
	}
	return &runtime.Config{
		Origin:      from,
		GasLimit:    gas,
		GasPrice:    n.gasPrice,
		Value:       value,
		BlockNumber: new(big.Int).SetUint64(n.number),
		Time:        uint64(time.Now().Unix()),
		Random:      &common.Hash{},
		State:       st,
	}
}

// simulate runs a message against a copy of the latest state
func (n *Node) simulate(from common.Address, to *common.Address, data []byte, value *big.Int, gas uint64) ([]byte, uint64, error) {
	n.mu.Lock()
	st := n.state.Copy()
	cfg := n.runtimeConfig(st, from, gas, value)
	n.mu.Unlock()

	if to == nil {
		ret, _, leftover, err := runtime.Create(data, cfg)
		return ret, leftover, err
	}
	return runtime.Call(*to, data, cfg)
}

func (n *Node) nonce(account common.Address, pending bool) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := n.nonces[account]
	if pending {
		return next
	}
	for _, p := range n.pending {
		if p.from == account {
			next--
		}
	}
	return next
}

func (n *Node) code(account common.Address) []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return common.CopyBytes(n.state.GetCode(account))
}

func (n *Node) receipt(hash common.Hash) *types.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.receipts[hash]
}

func intrinsicGas(data []byte, creation bool) uint64 {
	gas := params.TxGas
	if creation {
		gas = params.TxGasContractCreation
		gas += params.InitCodeWordGas * uint64((len(data)+31)/32)
	}
	for _, b := range data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}
