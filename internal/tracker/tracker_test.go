package tracker

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractkit/internal/chainerr"
	"contractkit/internal/devnode"
	"contractkit/internal/signer"
	"contractkit/internal/transport"
)

type answer struct {
	receipt *types.Receipt
	err     error
}

// scriptedSource replays answers in order and repeats the last one
type scriptedSource struct {
	mu      sync.Mutex
	answers []answer
	calls   int
}

func (s *scriptedSource) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	s.calls++
	return s.answers[i].receipt, s.answers[i].err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var testHash = common.HexToHash("0x1234")

func minedReceipt(status uint64) *types.Receipt {
	return &types.Receipt{
		Status:      status,
		TxHash:      testHash,
		BlockNumber: big.NewInt(7),
		GasUsed:     21000,
		Logs:        []*types.Log{},
	}
}

func networkErr() error {
	return &chainerr.NetworkError{Method: "eth_getTransactionReceipt", Err: errors.New("connection refused")}
}

func fastOptions() Options {
	return Options{PollInterval: 5 * time.Millisecond, MaxWait: time.Second, MaxNetworkRetries: 3}
}

func TestAwaitReceiptAfterPolling(t *testing.T) {
	src := &scriptedSource{answers: []answer{{}, {}, {receipt: minedReceipt(types.ReceiptStatusSuccessful)}}}
	tr := New(src, fastOptions())

	receipt, err := tr.AwaitReceipt(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), receipt.BlockNumber.Uint64())
	assert.Equal(t, 3, src.Calls())
}

func TestAwaitReceiptReverted(t *testing.T) {
	src := &scriptedSource{answers: []answer{{receipt: minedReceipt(types.ReceiptStatusFailed)}}}
	tr := New(src, fastOptions())

	receipt, err := tr.AwaitReceipt(context.Background(), testHash)
	require.Error(t, err)
	assert.True(t, errors.Is(err, chainerr.ErrTransactionReverted))

	var revert *chainerr.RevertError
	require.True(t, errors.As(err, &revert))
	assert.Same(t, receipt, revert.Receipt)
	assert.Equal(t, types.ReceiptStatusFailed, revert.Receipt.Status)
}

func TestAwaitReceiptTimesOutWithinMaxWait(t *testing.T) {
	src := &scriptedSource{answers: []answer{{}}}
	tr := New(src, Options{PollInterval: 10 * time.Millisecond, MaxWait: 100 * time.Millisecond})

	start := time.Now()
	_, err := tr.AwaitReceipt(context.Background(), testHash)
	elapsed := time.Since(start)

	var timeout *chainerr.TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	assert.Equal(t, testHash, timeout.Hash)
	assert.Nil(t, timeout.Cause)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestAwaitReceiptCancelledIsTimeout(t *testing.T) {
	src := &scriptedSource{answers: []answer{{}}}
	tr := New(src, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := tr.AwaitReceipt(ctx, testHash)
	assert.True(t, errors.Is(err, chainerr.ErrTransactionTimeout))

	var timeout *chainerr.TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.ErrorIs(t, timeout.Cause, context.Canceled)
}

func TestAwaitReceiptOverride(t *testing.T) {
	src := &scriptedSource{answers: []answer{{}}}
	tr := New(src, Options{PollInterval: 5 * time.Millisecond, MaxWait: time.Hour})

	start := time.Now()
	_, err := tr.Await(context.Background(), testHash, Options{MaxWait: 50 * time.Millisecond})
	assert.True(t, errors.Is(err, chainerr.ErrTransactionTimeout))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, time.Hour, tr.Options().MaxWait)
}

func TestTransientNetworkErrorsAreTolerated(t *testing.T) {
	src := &scriptedSource{answers: []answer{
		{err: networkErr()},
		{err: networkErr()},
		{},
		{err: networkErr()},
		{receipt: minedReceipt(types.ReceiptStatusSuccessful)},
	}}
	tr := New(src, fastOptions())

	_, err := tr.AwaitReceipt(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, 5, src.Calls())
}

func TestPersistentNetworkErrorsEscalate(t *testing.T) {
	src := &scriptedSource{answers: []answer{{err: networkErr()}}}
	tr := New(src, fastOptions())

	_, err := tr.AwaitReceipt(context.Background(), testHash)
	require.Error(t, err)
	assert.True(t, errors.Is(err, chainerr.ErrNetwork))
	assert.False(t, errors.Is(err, chainerr.ErrTransactionTimeout))
	// the first failure plus three tolerated retries
	assert.Equal(t, 4, src.Calls())
}

func TestRemoteErrorsEscalateImmediately(t *testing.T) {
	src := &scriptedSource{answers: []answer{{err: &chainerr.RemoteError{Method: "eth_getTransactionReceipt", Code: -32601, Message: "method not found"}}}}
	tr := New(src, fastOptions())

	_, err := tr.AwaitReceipt(context.Background(), testHash)
	assert.True(t, errors.Is(err, chainerr.ErrRemoteRejected))
	assert.Equal(t, 1, src.Calls())
}

func TestPausedDevNodeTimesOut(t *testing.T) {
	node, err := devnode.New(devnode.Options{Paused: true})
	require.NoError(t, err)
	srv := httptest.NewServer(node.Handler())
	defer srv.Close()
	defer node.Close()

	client := transport.NewClient(srv.URL, transport.Options{})
	defer client.Close()

	s, err := signer.Generate()
	require.NoError(t, err)
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx, err := s.SignTx(types.NewTx(&types.LegacyTx{To: &to, Gas: 21000, GasPrice: big.NewInt(1)}), node.ChainID())
	require.NoError(t, err)

	hash, err := client.Submit(context.Background(), tx)
	require.NoError(t, err)

	tr := New(client, Options{PollInterval: 10 * time.Millisecond, MaxWait: 150 * time.Millisecond})
	start := time.Now()
	_, err = tr.AwaitReceipt(context.Background(), hash)
	assert.True(t, errors.Is(err, chainerr.ErrTransactionTimeout), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)

	node.Resume()
	receipt, err := tr.AwaitReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)
}

func TestDevNodeFaultsDuringPollingAreRetried(t *testing.T) {
	node, err := devnode.New(devnode.Options{Paused: true})
	require.NoError(t, err)
	srv := httptest.NewServer(node.Handler())
	defer srv.Close()
	defer node.Close()

	client := transport.NewClient(srv.URL, transport.Options{})
	defer client.Close()

	s, err := signer.Generate()
	require.NoError(t, err)
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tx, err := s.SignTx(types.NewTx(&types.LegacyTx{To: &to, Gas: 21000, GasPrice: big.NewInt(1)}), node.ChainID())
	require.NoError(t, err)
	hash, err := client.Submit(context.Background(), tx)
	require.NoError(t, err)

	node.FailNext(2)
	go func() {
		time.Sleep(50 * time.Millisecond)
		node.Resume()
	}()

	tr := New(client, Options{PollInterval: 10 * time.Millisecond, MaxWait: 2 * time.Second, MaxNetworkRetries: 5})
	receipt, err := tr.AwaitReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
}
