package devnode

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"

	"contractkit/internal/transport"
)

// txError is reported with the generic server error code
type txError struct {
	msg string
}

func (e *txError) Error() string  { return e.msg }
func (e *txError) ErrorCode() int { return -32000 }

// revertError carries the raw revert data like geth does
type revertError struct {
	reason string
	data   []byte
}

func newRevertError(ret []byte) *revertError {
	reason, err := abi.UnpackRevert(ret)
	if err != nil {
		reason = ""
	}
	return &revertError{reason: reason, data: common.CopyBytes(ret)}
}

func (e *revertError) Error() string {
	if e.reason == "" {
		return vm.ErrExecutionReverted.Error()
	}
	return vm.ErrExecutionReverted.Error() + ": " + e.reason
}

func (e *revertError) ErrorCode() int { return 3 }

func (e *revertError) ErrorData() interface{} { return hexutil.Encode(e.data) }

type ethAPI struct {
	node *Node
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.node.ChainID())
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.node.BlockNumber())
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Set(api.node.gasPrice))
}

func (api *ethAPI) GetTransactionCount(account common.Address, block *string) hexutil.Uint64 {
	pending := block != nil && *block == "pending"
	return hexutil.Uint64(api.node.nonce(account, pending))
}

func (api *ethAPI) GetCode(account common.Address, block *string) hexutil.Bytes {
	return api.node.code(account)
}

func (api *ethAPI) Call(args transport.CallArgs, block *string) (hexutil.Bytes, error) {
	gas := api.node.gasLimit
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	ret, _, err := api.node.simulate(callSender(args), args.To, args.Payload(), callValue(args), gas)
	if err != nil {
		return nil, execError(ret, err)
	}
	return ret, nil
}

// EstimateGas binary searches the lowest gas limit under which the message
// succeeds, including intrinsic gas.
func (api *ethAPI) EstimateGas(args transport.CallArgs, block *string) (hexutil.Uint64, error) {
	data := args.Payload()
	intrinsic := intrinsicGas(data, args.To == nil)
	budget := api.node.gasLimit - intrinsic

	ret, leftover, err := api.node.simulate(callSender(args), args.To, data, callValue(args), budget)
	if err != nil {
		return 0, execError(ret, err)
	}

	used := budget - leftover
	if used == 0 {
		return hexutil.Uint64(intrinsic), nil
	}
	lo, hi := used-1, budget
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		if _, _, err := api.node.simulate(callSender(args), args.To, data, callValue(args), mid); err != nil {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hexutil.Uint64(hi + intrinsic), nil
}

func (api *ethAPI) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, &txError{msg: "invalid transaction: " + err.Error()}
	}
	return api.node.submit(tx)
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	return api.node.receipt(hash), nil
}

type netAPI struct {
	node *Node
}

func (api *netAPI) Version() string {
	return strconv.FormatUint(api.node.chainID.Uint64(), 10)
}

func execError(ret []byte, err error) error {
	if errors.Is(err, vm.ErrExecutionReverted) {
		return newRevertError(ret)
	}
	return &txError{msg: err.Error()}
}

func callSender(args transport.CallArgs) common.Address {
	if args.From == nil {
		return common.Address{}
	}
	return *args.From
}

func callValue(args transport.CallArgs) *big.Int {
	if args.Value == nil {
		return nil
	}
	return (*big.Int)(args.Value)
}
