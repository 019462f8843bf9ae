package lists

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/walletscope/internal/metrics"
)

// Snapshot is an immutable view of every loaded list. Lookups against a
// snapshot are lock-free and stable for the lifetime of a request.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time
	lists    map[string]*List
}

// Match returns every list the normalized address appears on, ordered
// by list name for stable output.
func (s *Snapshot) Match(address string) []Hit {
	var hits []Hit
	for _, l := range s.lists {
		if l.Contains(address) {
			hits = append(hits, Hit{List: l.Name, Kind: l.Kind})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].List < hits[j].List })
	return hits
}

// Contains reports whether the address appears on the named list.
func (s *Snapshot) Contains(name, address string) bool {
	l, ok := s.lists[name]
	return ok && l.Contains(address)
}

// AnyOfKind reports whether the address appears on any list of the
// given kind.
func (s *Snapshot) AnyOfKind(kind, address string) bool {
	for _, l := range s.lists {
		if l.Kind == kind && l.Contains(address) {
			return true
		}
	}
	return false
}

// Infos describes all loaded lists, sorted by name.
func (s *Snapshot) Infos() []Info {
	infos := make([]Info, 0, len(s.lists))
	for _, l := range s.lists {
		infos = append(infos, Info{
			Name:     l.Name,
			Kind:     l.Kind,
			Source:   l.Source,
			Entries:  l.Len(),
			LoadedAt: l.LoadedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

type registeredSource struct {
	name   string
	kind   string
	source Source
}

// Registry owns the configured sources and the current snapshot.
// Reload builds a fresh snapshot off to the side and publishes it with
// a single atomic pointer swap.
type Registry struct {
	mu      sync.Mutex // serializes reloads, not lookups
	sources []registeredSource
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. Until the first Reload, the
// snapshot contains no lists and every address is clean.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	r.current.Store(&Snapshot{lists: map[string]*List{}})
	return r
}

// AddSource registers a list source under a unique name. Call before
// the first Reload; sources cannot be removed at runtime.
func (r *Registry) AddSource(name, kind string, src Source) error {
	switch kind {
	case KindSanctioned, KindMixer, KindScamCluster:
	default:
		return fmt.Errorf("unknown list kind %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sources {
		if existing.name == name {
			return fmt.Errorf("list %q already registered", name)
		}
	}
	r.sources = append(r.sources, registeredSource{name: name, kind: kind, source: src})
	return nil
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Reload fetches every source and publishes a new snapshot. A source
// that fails keeps its previously loaded entries (fail-open); the
// returned error aggregates per-list failures but a partial reload
// still publishes. Reload never shrinks the registry to empty because
// of a transient feed outage.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current.Load()
	next := &Snapshot{
		Version:  r.version.Add(1),
		LoadedAt: time.Now().UTC(),
		lists:    make(map[string]*List, len(r.sources)),
	}

	var firstErr error
	failed := 0
	for _, src := range r.sources {
		list, err := r.loadOne(ctx, src)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			r.logger.Warn("list reload failed, keeping previous entries",
				"list", src.name, "source", src.source.Describe(), "error", err)
			if old, ok := prev.lists[src.name]; ok {
				next.lists[src.name] = old
			}
			continue
		}
		next.lists[src.name] = list
		metrics.ListEntries.WithLabelValues(src.name).Set(float64(list.Len()))
		r.logger.Info("list loaded",
			"list", src.name, "kind", src.kind, "entries", list.Len())
	}

	r.current.Store(next)
	if failed > 0 {
		metrics.ListReloadsTotal.WithLabelValues("partial").Inc()
		return fmt.Errorf("%d of %d lists failed to reload: %w", failed, len(r.sources), firstErr)
	}
	metrics.ListReloadsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (r *Registry) loadOne(ctx context.Context, src registeredSource) (*List, error) {
	data, err := src.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := ParseBlob(data)
	if err != nil {
		return nil, err
	}
	return &List{
		Name:     src.name,
		Kind:     src.kind,
		Source:   src.source.Describe(),
		LoadedAt: time.Now().UTC(),
		entries:  entries,
	}, nil
}

// Reloader refreshes the registry on a fixed interval.
type Reloader struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewReloader creates a reload worker.
// interval is typically 15 minutes in production.
func NewReloader(registry *Registry, interval time.Duration, logger *slog.Logger) *Reloader {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		registry: registry,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the reload loop. Call in a goroutine.
func (w *Reloader) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on start
	w.reload(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.reload(ctx)
		}
	}
}

// Stop signals the worker to stop. Safe to call more than once, and
// the signal is not lost if the worker is mid-reload when it arrives.
func (w *Reloader) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Reloader) reload(ctx context.Context) {
	if err := w.registry.Reload(ctx); err != nil {
		w.logger.Warn("scheduled list reload incomplete", "error", err)
	}
}
