package chain

import (
	"context"
	"strings"
	"sync"
)

// MemoryProvider is a seedable in-memory history provider for demo mode
// and tests. Keys are (network, lowercased address).
type MemoryProvider struct {
	mu        sync.RWMutex
	histories map[string][]Transaction
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{histories: make(map[string][]Transaction)}
}

// Seed stores a history for an address. Replaces any existing history.
func (p *MemoryProvider) Seed(network, address string, txs []Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Transaction, len(txs))
	copy(cp, txs)
	p.histories[key(network, address)] = cp
}

// FetchHistory returns the seeded history, or an empty slice for unknown
// addresses (an address with no transactions is a valid answer, not an error).
func (p *MemoryProvider) FetchHistory(_ context.Context, network, address string) ([]Transaction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	txs, ok := p.histories[key(network, address)]
	if !ok {
		return nil, nil
	}
	cp := make([]Transaction, len(txs))
	copy(cp, txs)
	return cp, nil
}

func key(network, address string) string {
	return network + ":" + strings.ToLower(address)
}
