package devnode

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractkit/contracts"
	"contractkit/internal/abicodec"
	"contractkit/internal/callbuilder"
	"contractkit/internal/chainerr"
	"contractkit/internal/signer"
	"contractkit/internal/transport"
)

type harness struct {
	node   *Node
	client *transport.Client
	signer *signer.KeySigner
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	node, err := New(opts)
	require.NoError(t, err)
	srv := httptest.NewServer(node.Handler())
	t.Cleanup(func() {
		srv.Close()
		node.Close()
	})

	s, err := signer.Generate()
	require.NoError(t, err)

	client := transport.NewClient(srv.URL, transport.Options{})
	t.Cleanup(func() { client.Close() })
	return &harness{node: node, client: client, signer: s}
}

func (h *harness) send(t *testing.T, to *common.Address, data []byte, gas uint64) *types.Transaction {
	t.Helper()
	ctx := context.Background()
	nonce, err := h.client.PendingNonce(ctx, h.signer.Address())
	require.NoError(t, err)
	if gas == 0 {
		gas, err = h.client.EstimateGas(ctx, transport.CallRequest{From: h.signer.Address(), To: to, Data: data})
		require.NoError(t, err)
		gas += gas / 5
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Gas:      gas,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
	signed, err := h.signer.SignTx(tx, h.node.ChainID())
	require.NoError(t, err)
	hash, err := h.client.Submit(ctx, signed)
	require.NoError(t, err)
	require.Equal(t, signed.Hash(), hash)
	return signed
}

func (h *harness) deploy(t *testing.T, name string) common.Address {
	t.Helper()
	d := contracts.MustGet(name)
	payload, err := callbuilder.BuildDeployment(d.Bytecode(), d.Constructor(), d.ConstructorArgs())
	require.NoError(t, err)

	tx := h.send(t, nil, payload, 0)
	receipt, err := h.client.Receipt(context.Background(), tx.Hash())
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.NotEqual(t, common.Address{}, receipt.ContractAddress)
	return receipt.ContractAddress
}

func (h *harness) calldata(t *testing.T, contract, fn string, args ...abicodec.TypedValue) []byte {
	t.Helper()
	f, err := contracts.MustGet(contract).Function(fn)
	require.NoError(t, err)
	data, err := callbuilder.BuildCall(f.Input, args)
	require.NoError(t, err)
	return data
}

func (h *harness) query(t *testing.T, contract string, at common.Address, fn string) []abicodec.TypedValue {
	t.Helper()
	f, err := contracts.MustGet(contract).Function(fn)
	require.NoError(t, err)
	raw, err := h.client.Query(context.Background(), transport.CallRequest{To: &at, Data: h.calldata(t, contract, fn)})
	require.NoError(t, err)
	values, err := abicodec.DecodeOutputs(f.Outputs, f.OutputTags, raw)
	require.NoError(t, err)
	return values
}

func TestDeployAndQuery(t *testing.T) {
	h := newHarness(t, Options{})
	person := h.deploy(t, contracts.Person)

	assert.Equal(t, "29", h.query(t, contracts.Person, person, "age")[0].String())
	assert.Equal(t, "2020-12-15", h.query(t, contracts.Person, person, "birthDay")[0].String())

	code, err := h.client.Code(context.Background(), person)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestContractAddressesAreUnique(t *testing.T) {
	h := newHarness(t, Options{})
	first := h.deploy(t, contracts.Callee)
	second := h.deploy(t, contracts.Callee)
	assert.NotEqual(t, first, second)
}

func TestCallMutatesCalleeStorage(t *testing.T) {
	h := newHarness(t, Options{})
	caller := h.deploy(t, contracts.Caller)
	callee := h.deploy(t, contracts.Callee)

	h.send(t, &caller, h.calldata(t, contracts.Caller, "incCall", abicodec.NewAddress(callee)), 0)

	assert.Equal(t, common.BigToHash(big.NewInt(1)), h.node.StorageAt(callee, common.Hash{}))
	assert.Equal(t, common.Hash{}, h.node.StorageAt(caller, common.Hash{}))
}

func TestResubmissionAndNonceChecks(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	callee := h.deploy(t, contracts.Callee)

	tx := h.send(t, &callee, h.calldata(t, contracts.Callee, "inc"), 0)

	// the transport turns "already known" into success
	hash, err := h.client.Submit(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), hash)

	future := types.NewTx(&types.LegacyTx{Nonce: 10, To: &callee, Gas: 100000, GasPrice: big.NewInt(1)})
	signed, err := h.signer.SignTx(future, h.node.ChainID())
	require.NoError(t, err)
	_, err = h.client.Submit(ctx, signed)
	assert.True(t, errors.Is(err, chainerr.ErrRemoteRejected))
	assert.Contains(t, err.Error(), "nonce too high")

	wrongChain, err := h.signer.SignTx(future, big.NewInt(1))
	require.NoError(t, err)
	_, err = h.client.Submit(ctx, wrongChain)
	assert.Contains(t, err.Error(), "invalid chain id")
}

func TestPausedNodeKeepsTransactionsPending(t *testing.T) {
	h := newHarness(t, Options{Paused: true})
	ctx := context.Background()

	d := contracts.MustGet(contracts.Callee)
	payload, err := callbuilder.BuildDeployment(d.Bytecode(), d.Constructor(), nil)
	require.NoError(t, err)
	tx := h.send(t, nil, payload, 200000)

	receipt, err := h.client.Receipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Nil(t, receipt)
	assert.Equal(t, 1, h.node.Pending())

	pending, err := h.client.PendingNonce(ctx, h.signer.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pending)

	h.node.Resume()
	receipt, err = h.client.Receipt(ctx, tx.Hash())
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, uint64(1), h.node.BlockNumber())
}

func TestRevertedTransactionAndQuery(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	callee := h.deploy(t, contracts.Callee)
	unknown := []byte{0xde, 0xad, 0xbe, 0xef}

	_, err := h.client.Query(ctx, transport.CallRequest{To: &callee, Data: unknown})
	var remote *chainerr.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, 3, remote.Code)

	tx := h.send(t, &callee, unknown, 100000)
	receipt, err := h.client.Receipt(ctx, tx.Hash())
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
}

func TestFaultInjectionAndRequestCount(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	before := h.node.Requests()
	h.node.FailNext(1)

	_, err := h.client.ChainID(ctx)
	assert.True(t, errors.Is(err, chainerr.ErrNetwork))

	id, err := h.client.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultChainID), id.Int64())
	assert.Equal(t, before+2, h.node.Requests())
}
