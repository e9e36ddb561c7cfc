package contract

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"contractkit/internal/abicodec"
	"contractkit/internal/callbuilder"
	"contractkit/internal/chainerr"
	"contractkit/internal/descriptor"
	"contractkit/internal/metrics"
	"contractkit/internal/models"
)

// Instance is a deployed contract reachable through a session.
// Its address never changes.
type Instance struct {
	session     *Session
	desc        *descriptor.Descriptor
	address     common.Address
	deployTx    common.Hash
	deployBlock uint64
}

// Result is the outcome of Invoke. Values is set for read-only functions,
// Receipt for state-changing ones.
type Result struct {
	Values  []abicodec.TypedValue
	Receipt *types.Receipt
}

// Deploy sends the deployment transaction for d and returns the instance
// once a successful receipt is in. Without args the descriptor's default
// constructor arguments are used.
func (s *Session) Deploy(ctx context.Context, d *descriptor.Descriptor, args ...abicodec.TypedValue) (*Instance, error) {
	if len(args) == 0 {
		args = d.ConstructorArgs()
	}
	inv := s.newInvocation(models.KindDeploy, d.Name(), common.Address{}, "constructor", args)
	defer s.finish(ctx, inv)

	payload, err := callbuilder.BuildDeployment(d.Bytecode(), d.Constructor(), args)
	if err != nil {
		return nil, fail(inv, StageBuild, common.Address{}, err)
	}
	advance(inv, models.PhaseBuilt)

	receipt, stage, err := s.send(ctx, inv, nil, payload)
	if err != nil {
		return nil, fail(inv, stage, common.Address{}, err)
	}
	if receipt.ContractAddress == (common.Address{}) {
		return nil, fail(inv, StageAwait, common.Address{}, fmt.Errorf("receipt %s has no contract address", receipt.TxHash.Hex()))
	}

	inst := &Instance{
		session:     s,
		desc:        d,
		address:     receipt.ContractAddress,
		deployTx:    receipt.TxHash,
		deployBlock: receipt.BlockNumber.Uint64(),
	}
	inv.Address = inst.address.Hex()
	metrics.DeploymentsConfirmed.Inc()

	if s.observer != nil {
		s.observer.ContractDeployed(ctx, &models.Deployment{
			Address:         inst.address.Hex(),
			ContractName:    d.Name(),
			TxHash:          receipt.TxHash.Hex(),
			BlockNumber:     inst.deployBlock,
			Deployer:        inv.Sender,
			GasUsed:         receipt.GasUsed,
			DeployedAt:      time.Now(),
			ConstructorArgs: inv.Args,
		})
	}
	return inst, nil
}

// Bind returns an instance for a contract already deployed at address
func (s *Session) Bind(d *descriptor.Descriptor, address common.Address) *Instance {
	return &Instance{session: s, desc: d, address: address}
}

// Address returns the contract address
func (i *Instance) Address() common.Address { return i.address }

// Descriptor returns the contract descriptor
func (i *Instance) Descriptor() *descriptor.Descriptor { return i.desc }

// DeploymentTx returns the deployment transaction hash, zero for bound instances
func (i *Instance) DeploymentTx() common.Hash { return i.deployTx }

// DeploymentBlock returns the block the instance was deployed in
func (i *Instance) DeploymentBlock() uint64 { return i.deployBlock }

// Session returns the session the instance talks through
func (i *Instance) Session() *Session { return i.session }

// Call executes fn with eth_call and decodes its outputs. State is never
// changed, whatever the function's mutability.
func (i *Instance) Call(ctx context.Context, fn string, args ...abicodec.TypedValue) ([]abicodec.TypedValue, error) {
	s := i.session
	f, inv, err := i.prepare(fn, models.KindCall, args)
	if err != nil {
		return nil, err
	}
	defer s.finish(ctx, inv)

	data, err := callbuilder.BuildCall(f.Input, args)
	if err != nil {
		return nil, fail(inv, StageBuild, i.address, err)
	}
	advance(inv, models.PhaseBuilt)

	raw, err := s.query(ctx, inv, i.address, data)
	if err != nil {
		return nil, fail(inv, StageSubmit, i.address, err)
	}
	values, err := abicodec.DecodeOutputs(f.Outputs, f.OutputTags, raw)
	if err != nil {
		return nil, fail(inv, StageDecode, i.address, err)
	}
	for _, v := range values {
		inv.Results = append(inv.Results, v.String())
	}
	advance(inv, models.PhaseReturned)
	return values, nil
}

// Transact sends fn as a signed transaction and waits for its receipt.
// A reverted transaction returns the receipt along with the error.
func (i *Instance) Transact(ctx context.Context, fn string, args ...abicodec.TypedValue) (*types.Receipt, error) {
	s := i.session
	f, inv, err := i.prepare(fn, models.KindTransact, args)
	if err != nil {
		return nil, err
	}
	defer s.finish(ctx, inv)

	data, err := callbuilder.BuildCall(f.Input, args)
	if err != nil {
		return nil, fail(inv, StageBuild, i.address, err)
	}
	advance(inv, models.PhaseBuilt)

	to := i.address
	receipt, stage, err := s.send(ctx, inv, &to, data)
	if err != nil {
		return receipt, fail(inv, stage, i.address, err)
	}
	return receipt, nil
}

// Invoke calls read-only functions and transacts everything else
func (i *Instance) Invoke(ctx context.Context, fn string, args ...abicodec.TypedValue) (*Result, error) {
	f, err := i.desc.Function(fn)
	if err != nil {
		return nil, i.lookupError(fn, err)
	}
	if f.ReadOnly {
		values, err := i.Call(ctx, fn, args...)
		return &Result{Values: values}, err
	}
	receipt, err := i.Transact(ctx, fn, args...)
	return &Result{Receipt: receipt}, err
}

func (i *Instance) prepare(fn string, kind models.InvocationKind, args []abicodec.TypedValue) (*descriptor.Function, *models.Invocation, error) {
	f, err := i.desc.Function(fn)
	if err != nil {
		return nil, nil, i.lookupError(fn, err)
	}
	return f, i.session.newInvocation(kind, i.desc.Name(), i.address, f.Sig, args), nil
}

func (i *Instance) lookupError(fn string, err error) error {
	return &chainerr.CallError{
		Contract: i.desc.Name(),
		Address:  i.address,
		Function: fn,
		Phase:    StageBuild,
		Err:      err,
	}
}
