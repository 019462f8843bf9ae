package chain

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/walletscope/internal/circuitbreaker"
	"github.com/mbd888/walletscope/internal/logging"
	"github.com/mbd888/walletscope/internal/metrics"
	"github.com/mbd888/walletscope/internal/retry"
	"github.com/mbd888/walletscope/internal/traces"
)

const (
	defaultTimeout      = 10 * time.Second
	maxAttempts         = 2
	retryBaseDelay      = 200 * time.Millisecond
	breakerThreshold    = 5
	breakerOpenDuration = 30 * time.Second
)

// Fallback wraps a HistoryProvider with a bounded timeout, retry with
// backoff, and a per-network circuit breaker. When the inner provider
// still fails, it substitutes the deterministic synthetic history and
// reports the result as degraded instead of returning an error.
type Fallback struct {
	inner   HistoryProvider
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

// NewFallback creates a degrading provider wrapper.
func NewFallback(inner HistoryProvider, timeout time.Duration) *Fallback {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fallback{
		inner:   inner,
		breaker: circuitbreaker.New(breakerThreshold, breakerOpenDuration),
		timeout: timeout,
	}
}

// History fetches the transaction history for an address. The second
// return value reports degradation: true means the provider failed and
// the caller received the synthetic history.
func (f *Fallback) History(ctx context.Context, network, address string) ([]Transaction, bool) {
	ctx, span := traces.StartSpan(ctx, "chain.History",
		traces.Network(network), traces.Address(address))
	defer span.End()

	if !f.breaker.Allow(network) {
		logging.L(ctx).Warn("provider circuit open, using synthetic history",
			"network", network, "address", address)
		metrics.ProviderFallbacksTotal.Inc()
		return SyntheticHistory(address), true
	}

	var txs []Transaction
	err := retry.Do(ctx, maxAttempts, retryBaseDelay, func() error {
		callCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		var fetchErr error
		txs, fetchErr = f.inner.FetchHistory(callCtx, network, address)
		if errors.Is(fetchErr, ErrUnknownNetwork) {
			return retry.Permanent(fetchErr)
		}
		return fetchErr
	})

	if err != nil {
		f.breaker.RecordFailure(network)
		metrics.ProviderCallsTotal.WithLabelValues(network, "error").Inc()
		metrics.ProviderFallbacksTotal.Inc()
		logging.L(ctx).Warn("provider fetch failed, using synthetic history",
			"network", network, "address", address, "error", err)
		return SyntheticHistory(address), true
	}

	f.breaker.RecordSuccess(network)
	metrics.ProviderCallsTotal.WithLabelValues(network, "ok").Inc()
	return txs, false
}
