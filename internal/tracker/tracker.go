package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"contractkit/internal/chainerr"
	"contractkit/internal/metrics"
)

// Defaults used when Options fields are zero
const (
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultMaxWait           = 60 * time.Second
	DefaultMaxNetworkRetries = 5
)

var errNotMined = errors.New("receipt not available yet")

// ReceiptSource fetches receipts. A nil receipt with a nil error means the
// transaction is not mined yet.
type ReceiptSource interface {
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Options controls polling
type Options struct {
	PollInterval      time.Duration
	MaxWait           time.Duration
	MaxNetworkRetries int // consecutive network failures tolerated
}

func (o Options) withDefaults(base Options) Options {
	if o.PollInterval <= 0 {
		o.PollInterval = base.PollInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = base.MaxWait
	}
	if o.MaxNetworkRetries <= 0 {
		o.MaxNetworkRetries = base.MaxNetworkRetries
	}
	return o
}

// Tracker waits for transaction receipts
type Tracker struct {
	source ReceiptSource
	opts   Options
}

// New creates a Tracker polling source
func New(source ReceiptSource, opts Options) *Tracker {
	return &Tracker{
		source: source,
		opts: opts.withDefaults(Options{
			PollInterval:      DefaultPollInterval,
			MaxWait:           DefaultMaxWait,
			MaxNetworkRetries: DefaultMaxNetworkRetries,
		}),
	}
}

// Options returns the effective polling options
func (t *Tracker) Options() Options { return t.opts }

// AwaitReceipt polls until hash is mined, using the tracker's options
func (t *Tracker) AwaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return t.Await(ctx, hash, Options{})
}

// Await polls until hash is mined. Zero fields of override fall back to the
// tracker's options.
//
// A mined receipt with a failed status returns the receipt together with a
// *chainerr.RevertError. Running past MaxWait or a cancelled ctx returns a
// *chainerr.TimeoutError; the transaction itself is not affected.
func (t *Tracker) Await(ctx context.Context, hash common.Hash, override Options) (*types.Receipt, error) {
	opts := override.withDefaults(t.opts)
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, opts.MaxWait)
	defer cancel()

	var (
		receipt  *types.Receipt
		failures int
		polls    int
	)
	operation := func() error {
		polls++
		r, err := t.source.Receipt(waitCtx, hash)
		if err != nil {
			if waitCtx.Err() != nil {
				return backoff.Permanent(err)
			}
			if !chainerr.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			failures++
			if failures > opts.MaxNetworkRetries {
				return backoff.Permanent(err)
			}
			slog.Warn("Receipt poll failed, retrying",
				"tx_hash", hash.Hex(),
				"consecutive_failures", failures,
				"max_failures", opts.MaxNetworkRetries,
				"error", err)
			return err
		}
		failures = 0
		if r == nil {
			return errNotMined
		}
		receipt = r
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(opts.PollInterval), waitCtx)
	err := backoff.Retry(operation, policy)
	waited := time.Since(start)
	metrics.ReceiptWaitDuration.Observe(waited.Seconds())

	if err != nil {
		if waitCtx.Err() != nil {
			metrics.ReceiptsObserved.WithLabelValues("timeout").Inc()
			slog.Debug("Receipt wait timed out", "tx_hash", hash.Hex(), "waited", waited, "polls", polls)
			return nil, &chainerr.TimeoutError{Hash: hash, Waited: waited, Cause: ctx.Err()}
		}
		metrics.ErrorsTotal.WithLabelValues("tracker").Inc()
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.ReceiptsObserved.WithLabelValues("reverted").Inc()
		return receipt, &chainerr.RevertError{Receipt: receipt}
	}

	metrics.ReceiptsObserved.WithLabelValues("success").Inc()
	slog.Debug("Receipt received",
		"tx_hash", hash.Hex(),
		"block", receipt.BlockNumber,
		"gas_used", receipt.GasUsed,
		"polls", polls,
		"waited", waited)
	return receipt, nil
}
