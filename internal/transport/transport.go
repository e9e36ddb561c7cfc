package transport

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transport is the only path to the remote node.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Submit sends a signed transaction and returns its hash
	Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error)

	// Query executes a read-only call against the latest state
	Query(ctx context.Context, req CallRequest) ([]byte, error)

	// Receipt returns the receipt for hash, or nil if it is not mined yet
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, req CallRequest) (uint64, error)
	Code(ctx context.Context, account common.Address) ([]byte, error)
}

// CallRequest describes a message for eth_call and eth_estimateGas.
// A nil To means contract creation.
type CallRequest struct {
	From     common.Address
	To       *common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// CallArgs is the JSON form of a CallRequest
type CallArgs struct {
	From     *common.Address `json:"from,omitempty"`
	To       *common.Address `json:"to,omitempty"`
	Data     *hexutil.Bytes  `json:"data,omitempty"`
	Input    *hexutil.Bytes  `json:"input,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
}

// Args converts the request to its JSON form
func (r CallRequest) Args() CallArgs {
	var args CallArgs
	if r.From != (common.Address{}) {
		from := r.From
		args.From = &from
	}
	if r.To != nil {
		to := *r.To
		args.To = &to
	}
	if len(r.Data) > 0 {
		data := hexutil.Bytes(common.CopyBytes(r.Data))
		args.Data = &data
	}
	if r.Value != nil {
		args.Value = (*hexutil.Big)(new(big.Int).Set(r.Value))
	}
	if r.Gas != 0 {
		gas := hexutil.Uint64(r.Gas)
		args.Gas = &gas
	}
	if r.GasPrice != nil {
		args.GasPrice = (*hexutil.Big)(new(big.Int).Set(r.GasPrice))
	}
	return args
}

// Payload returns the call data, accepting either field name
func (a CallArgs) Payload() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}
