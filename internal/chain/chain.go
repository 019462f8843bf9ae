// Package chain defines the chain-data provider boundary.
//
// walletscope does not index blockchains itself. Transaction histories
// come from an injected HistoryProvider (an external indexer client);
// this package owns the transaction model, the provider contract, and
// the deterministic synthetic fallback used when a provider is down.
package chain

import (
	"context"
	"errors"
	"time"
)

// Transaction is a single transfer touching an address.
type Transaction struct {
	Hash      string    `json:"hash,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Value     string    `json:"value"` // wei, decimal string
	Timestamp time.Time `json:"timestamp"`
}

// HistoryProvider fetches the transaction history for an address.
// Implementations must honor ctx cancellation and deadlines.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, network, address string) ([]Transaction, error)
}

// ErrUnavailable signals the provider could not serve the request.
// Callers degrade to SyntheticHistory rather than failing the score.
var ErrUnavailable = errors.New("chain data provider unavailable")

// ErrUnknownNetwork signals a network the provider does not serve.
var ErrUnknownNetwork = errors.New("unknown network")

// syntheticTimestamp dates the synthetic fallback transaction at the
// Ethereum genesis block, far enough in the past that every age bucket
// reads it as "old" and no recency signal fires.
var syntheticTimestamp = time.Unix(1438269973, 0).UTC()

// SyntheticHistory returns the deterministic single-transaction history
// substituted when a provider fails: one zero-value self-transfer dated
// far in the past. Downstream feature extraction excludes self-transfers
// from counterparty analysis, so the degraded vector stays neutral.
func SyntheticHistory(address string) []Transaction {
	return []Transaction{
		{
			From:      address,
			To:        address,
			Value:     "0",
			Timestamp: syntheticTimestamp,
		},
	}
}
