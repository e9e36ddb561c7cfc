package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"contractkit/internal/chainerr"
	"contractkit/internal/metrics"
	"contractkit/internal/retry"
)

// jrpc2 reports its own client failures (shutdown, cancellation) with codes
// in this reserved range. They never come from the node.
const (
	clientCodeMin = -32099
	clientCodeMax = -32096
)

// Options configures a Client. Zero values pick defaults.
type Options struct {
	HTTPClient *http.Client
	Retry      retry.Strategy
	RateLimit  float64       // requests per second, 0 means unlimited
	Timeout    time.Duration // per request, 0 means no extra deadline
}

// Client is a JSON-RPC transport over HTTP
type Client struct {
	url        string
	httpClient *http.Client
	retry      retry.Strategy
	limiter    *rate.Limiter
	timeout    time.Duration

	mx  sync.RWMutex
	cli *jrpc2.Client
}

var _ Transport = (*Client)(nil)

// NewClient creates a new Client for the node at url
func NewClient(url string, opts Options) *Client {
	c := &Client{
		url:        url,
		httpClient: opts.HTTPClient,
		retry:      opts.Retry,
		timeout:    opts.Timeout,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.retry == nil {
		c.retry = retry.NewNoRetryStrategy()
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	c.refreshClient()
	return c
}

// URL returns the node endpoint
func (c *Client) URL() string { return c.url }

// Close closes the underlying JSON-RPC client
func (c *Client) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.cli.Close()
}

// refreshClient replaces the jrpc2 client. A jrpc2 client stops for good
// once its channel fails, so every network error is followed by a refresh.
func (c *Client) refreshClient() {
	if c.cli != nil {
		c.cli.Close()
	}
	ch := jhttp.NewChannel(c.url, &jhttp.ChannelOptions{Client: c.httpClient})
	c.cli = jrpc2.NewClient(ch, nil)
}

func (c *Client) callResult(ctx context.Context, method string, params, result any) error {
	return c.retry.Execute(ctx, func() error {
		return c.callOnce(ctx, method, params, result)
	})
}

func (c *Client) callOnce(ctx context.Context, method string, params, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &chainerr.NetworkError{Method: method, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	c.mx.RLock()
	err := c.cli.CallResult(ctx, method, params, result)
	stopped := err != nil && c.cli.IsStopped()
	c.mx.RUnlock()
	metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.RPCRequests.WithLabelValues(method, "ok").Inc()
		return nil
	}

	classified := classify(method, err, stopped)
	if chainerr.IsRetryable(classified) {
		metrics.RPCRequests.WithLabelValues(method, "network").Inc()
		c.mx.Lock()
		c.refreshClient()
		c.mx.Unlock()
	} else {
		metrics.RPCRequests.WithLabelValues(method, "rejected").Inc()
	}
	return classified
}

// classify separates errors the node answered with from transport failures.
// A failed HTTP exchange stops the jrpc2 client, which then fails every
// pending call with an InternalError that never reached the node.
func classify(method string, err error, stopped bool) error {
	var rpcErr *jrpc2.Error
	if !stopped && errors.As(err, &rpcErr) {
		code := int(rpcErr.Code)
		if code < clientCodeMin || code > clientCodeMax {
			return &chainerr.RemoteError{
				Method:  method,
				Code:    code,
				Message: rpcErr.Message,
				Data:    errorData(rpcErr.Data),
			}
		}
	}
	return &chainerr.NetworkError{Method: method, Err: err}
}

func errorData(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Submit sends a signed transaction with eth_sendRawTransaction.
// A node that already holds the transaction counts as success.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	var hash common.Hash
	err = c.callResult(ctx, "eth_sendRawTransaction", []any{hexutil.Bytes(raw)}, &hash)
	if err != nil {
		var remote *chainerr.RemoteError
		if errors.As(err, &remote) && strings.Contains(strings.ToLower(remote.Message), "already known") {
			slog.Debug("Transaction already known to node", "tx_hash", tx.Hash().Hex())
			metrics.TransactionsSubmitted.Inc()
			return tx.Hash(), nil
		}
		return common.Hash{}, err
	}

	if hash != tx.Hash() {
		return common.Hash{}, &chainerr.RemoteError{
			Method:  "eth_sendRawTransaction",
			Message: fmt.Sprintf("node returned hash %s for transaction %s", hash.Hex(), tx.Hash().Hex()),
		}
	}
	metrics.TransactionsSubmitted.Inc()
	return hash, nil
}

// Query runs eth_call against the latest block
func (c *Client) Query(ctx context.Context, req CallRequest) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.callResult(ctx, "eth_call", []any{req.Args(), "latest"}, &out); err != nil {
		return nil, err
	}
	metrics.QueriesExecuted.Inc()
	return out, nil
}

// Receipt fetches a receipt. A nil receipt with a nil error means not mined yet.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	if err := c.callResult(ctx, "eth_getTransactionReceipt", []any{hash}, &receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// ChainID returns the chain id reported by the node
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := c.callResult(ctx, "eth_chainId", nil, &id); err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

// PendingNonce returns the next nonce for account including pool transactions
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce hexutil.Uint64
	if err := c.callResult(ctx, "eth_getTransactionCount", []any{account, "pending"}, &nonce); err != nil {
		return 0, err
	}
	return uint64(nonce), nil
}

// GasPrice returns the node's suggested legacy gas price
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.callResult(ctx, "eth_gasPrice", nil, &price); err != nil {
		return nil, err
	}
	return (*big.Int)(&price), nil
}

// EstimateGas asks the node for a gas limit covering req
func (c *Client) EstimateGas(ctx context.Context, req CallRequest) (uint64, error) {
	var gas hexutil.Uint64
	if err := c.callResult(ctx, "eth_estimateGas", []any{req.Args()}, &gas); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// Code returns the runtime code deployed at account
func (c *Client) Code(ctx context.Context, account common.Address) ([]byte, error) {
	var code hexutil.Bytes
	if err := c.callResult(ctx, "eth_getCode", []any{account, "latest"}, &code); err != nil {
		return nil, err
	}
	return code, nil
}
