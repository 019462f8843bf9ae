// Package scoring orchestrates the full pipeline behind a score
// request: history fetch, feature extraction, neighborhood analysis,
// list lookup, rule evaluation, and caching.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mbd888/walletscope/internal/batch"
	"github.com/mbd888/walletscope/internal/cache"
	"github.com/mbd888/walletscope/internal/chain"
	"github.com/mbd888/walletscope/internal/features"
	"github.com/mbd888/walletscope/internal/graph"
	"github.com/mbd888/walletscope/internal/lists"
	"github.com/mbd888/walletscope/internal/logging"
	"github.com/mbd888/walletscope/internal/metrics"
	"github.com/mbd888/walletscope/internal/rules"
	"github.com/mbd888/walletscope/internal/traces"
	"github.com/mbd888/walletscope/internal/validation"
)

// ErrInvalidAddress rejects inputs that are not hex addresses.
var ErrInvalidAddress = errors.New("invalid address")

// Events receives scoring lifecycle notifications. Implementations
// must not block; the hot path calls them inline.
type Events interface {
	ScoreCompleted(result *rules.Result)
}

// Options tunes the service. Zero values get reasonable defaults.
type Options struct {
	NeighborLimit   int
	Concurrency     int
	ProviderTimeout time.Duration
	HistoryTTL      time.Duration
	GraphTTL        time.Duration
	ScoreTTL        time.Duration
	CacheMaxEntries int
}

type historyEntry struct {
	txs []chain.Transaction
}

// Service runs the scoring pipeline. All lookups on the hot path hit
// immutable snapshots or TTL caches; the only blocking call is the
// provider fetch, and that one degrades instead of failing.
type Service struct {
	provider      *chain.Fallback
	engine        *rules.Engine
	registry      *lists.Registry
	historyCache  *cache.Cache[historyEntry]
	graphCache    *cache.Cache[*graph.Graph]
	scoreCache    *cache.Cache[*rules.Result]
	neighborLimit int
	concurrency   int
	events        Events

	// now is swappable for tests
	now func() time.Time
}

// NewService wires the pipeline. provider is the raw indexer client;
// the service wraps it with retry, circuit breaking, and the synthetic
// fallback.
func NewService(provider chain.HistoryProvider, registry *lists.Registry, engine *rules.Engine, opts Options) *Service {
	if opts.NeighborLimit <= 0 {
		opts.NeighborLimit = graph.DefaultLimit
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 6
	}
	if opts.CacheMaxEntries <= 0 {
		opts.CacheMaxEntries = 4096
	}
	if engine == nil {
		engine = rules.NewEngine(nil)
	}
	return &Service{
		provider:      chain.NewFallback(provider, opts.ProviderTimeout),
		engine:        engine,
		registry:      registry,
		historyCache:  cache.New[historyEntry]("history", opts.HistoryTTL, opts.CacheMaxEntries),
		graphCache:    cache.New[*graph.Graph]("graph", opts.GraphTTL, opts.CacheMaxEntries),
		scoreCache:    cache.New[*rules.Result]("score", opts.ScoreTTL, opts.CacheMaxEntries),
		neighborLimit: opts.NeighborLimit,
		concurrency:   opts.Concurrency,
		now:           time.Now,
	}
}

// WithEvents attaches a lifecycle listener.
func (s *Service) WithEvents(ev Events) *Service {
	s.events = ev
	return s
}

// Engine exposes the active rule engine, for the explain surface.
func (s *Service) Engine() *rules.Engine {
	return s.engine
}

// FlushCaches drops all cached histories, graphs, and scores. Called
// after a list reload so stale memberships do not linger for a TTL.
func (s *Service) FlushCaches() {
	s.historyCache.Flush()
	s.graphCache.Flush()
	s.scoreCache.Flush()
}

// Score produces the risk assessment for one address. Provider
// failures degrade to the synthetic history; the only error condition
// is a malformed address.
func (s *Service) Score(ctx context.Context, network, address string) (*rules.Result, error) {
	if !validation.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := validation.NormalizeAddress(address)

	ctx, span := traces.StartSpan(ctx, "scoring.Score",
		traces.Network(network), traces.Address(addr))
	defer span.End()

	key := network + ":" + addr
	if cached, ok := s.scoreCache.Get(key); ok {
		return cached, nil
	}

	txs, degraded := s.history(ctx, network, addr)
	// An address with no history at all scores from the unknown-marker
	// vector, flagged degraded: there is nothing to base confidence on.
	if len(txs) == 0 {
		degraded = true
	}
	now := s.now().UTC()

	vector := features.Extract(txs, addr, now)
	g := graph.Build(txs, addr, s.neighborLimit)
	snap := s.registry.Snapshot()
	vector = features.ApplyNeighborSignals(vector, neighborSignals(g, snap))

	result := s.engine.Evaluate(addr, network, vector, membership(snap, addr), degraded)
	result.CachedAt = now

	span.SetAttributes(traces.Score(result.Score))
	metrics.ScoresTotal.WithLabelValues(network, outcome(result)).Inc()
	metrics.ScoreValue.Observe(float64(result.Score))
	logging.L(ctx).Info("address scored",
		"network", network, "address", addr,
		"score", result.Score, "blocked", result.Blocked, "degraded", degraded)

	// Degraded results stay out of the cache so recovery is picked up
	// on the next request, not after a TTL.
	if !degraded {
		s.scoreCache.Set(key, result)
	}
	if s.events != nil {
		s.events.ScoreCompleted(result)
	}
	return result, nil
}

// NeighborView is the response of a neighborhood query: the weighted
// 1-hop graph plus list flags for any tainted members.
type NeighborView struct {
	Address  string                 `json:"address"`
	Network  string                 `json:"network"`
	Graph    *graph.Graph           `json:"graph"`
	Flags    map[string][]lists.Hit `json:"flags,omitempty"`
	Degraded bool                   `json:"degraded"`
}

// Neighbors builds the 1-hop counterparty graph. limit <= 0 uses the
// service default.
func (s *Service) Neighbors(ctx context.Context, network, address string, limit int) (*NeighborView, error) {
	if !validation.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := validation.NormalizeAddress(address)
	if limit <= 0 || limit > s.neighborLimit {
		limit = s.neighborLimit
	}

	ctx, span := traces.StartSpan(ctx, "scoring.Neighbors",
		traces.Network(network), traces.Address(addr))
	defer span.End()

	key := network + ":" + addr + ":" + strconv.Itoa(limit)
	snap := s.registry.Snapshot()

	if g, ok := s.graphCache.Get(key); ok {
		return s.annotate(network, addr, g, snap, false), nil
	}

	txs, degraded := s.history(ctx, network, addr)
	g := graph.Build(txs, addr, limit)
	if !degraded {
		s.graphCache.Set(key, g)
	}
	return s.annotate(network, addr, g, snap, degraded), nil
}

// BatchItem is one slot of a batch scoring response.
type BatchItem struct {
	Address string        `json:"address"`
	Result  *rules.Result `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ScoreBatch scores many addresses with bounded concurrency. Results
// align with the input; a bad address fails its own slot only.
func (s *Service) ScoreBatch(ctx context.Context, network string, addresses []string) []BatchItem {
	ctx, span := traces.StartSpan(ctx, "scoring.ScoreBatch", traces.Network(network))
	defer span.End()

	outcomes := batch.Map(ctx, addresses, s.concurrency,
		func(ctx context.Context, address string) (*rules.Result, error) {
			return s.Score(ctx, network, address)
		})

	items := make([]BatchItem, len(outcomes))
	for i, o := range outcomes {
		items[i] = BatchItem{Address: addresses[i]}
		if o.Err != nil {
			items[i].Error = errorCode(o.Err)
			metrics.BatchItemsTotal.WithLabelValues("error").Inc()
			continue
		}
		items[i].Address = o.Value.Address
		items[i].Result = o.Value
		metrics.BatchItemsTotal.WithLabelValues("ok").Inc()
	}
	return items
}

func (s *Service) history(ctx context.Context, network, addr string) ([]chain.Transaction, bool) {
	key := network + ":" + addr
	if entry, ok := s.historyCache.Get(key); ok {
		return entry.txs, false
	}
	txs, degraded := s.provider.History(ctx, network, addr)
	if !degraded {
		s.historyCache.Set(key, historyEntry{txs: txs})
	}
	return txs, degraded
}

func (s *Service) annotate(network, addr string, g *graph.Graph, snap *lists.Snapshot, degraded bool) *NeighborView {
	view := &NeighborView{Address: addr, Network: network, Graph: g, Degraded: degraded}
	for _, node := range g.Nodes {
		if hits := snap.Match(node); len(hits) > 0 {
			if view.Flags == nil {
				view.Flags = make(map[string][]lists.Hit)
			}
			view.Flags[node] = hits
		}
	}
	return view
}

// neighborSignals summarizes list membership across the graph's
// neighbors. High risk means mixer or scam-cluster membership.
func neighborSignals(g *graph.Graph, snap *lists.Snapshot) features.NeighborSignals {
	n := g.NeighborCount()
	if n == 0 {
		return features.NeighborSignals{}
	}

	var sanctioned, highRisk, mixers, scams int
	for _, node := range g.Nodes[1:] {
		isMixer := snap.AnyOfKind(lists.KindMixer, node)
		isScam := snap.AnyOfKind(lists.KindScamCluster, node)
		if snap.AnyOfKind(lists.KindSanctioned, node) {
			sanctioned++
		}
		if isMixer {
			mixers++
		}
		if isScam {
			scams++
		}
		if isMixer || isScam {
			highRisk++
		}
	}

	total := float64(n)
	return features.NeighborSignals{
		NeighborCount:   n,
		SanctionedRatio: float64(sanctioned) / total,
		HighRiskRatio:   float64(highRisk) / total,
		MixerShare:      float64(mixers) / total,
		ScamShare:       float64(scams) / total,
	}
}

func membership(snap *lists.Snapshot, addr string) rules.Membership {
	var m rules.Membership
	for _, hit := range snap.Match(addr) {
		switch hit.Kind {
		case lists.KindSanctioned:
			m.Sanctioned = append(m.Sanctioned, hit.List)
		case lists.KindMixer:
			m.Mixer = true
		case lists.KindScamCluster:
			m.ScamCluster = true
		}
	}
	return m
}

func outcome(r *rules.Result) string {
	switch {
	case r.Blocked:
		return "blocked"
	case r.Degraded:
		return "degraded"
	default:
		return "ok"
	}
}

func errorCode(err error) string {
	if errors.Is(err, ErrInvalidAddress) {
		return "invalid_address"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "internal_error"
}
