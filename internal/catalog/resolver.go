package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MikaelWeiss/open-chat-core/internal/usage"
)

const (
	// DefaultCatalogURL is the public model-list endpoint the resolver
	// refreshes from.
	DefaultCatalogURL = "https://openrouter.ai/api/v1/models"

	cacheTTL = 15 * time.Minute
)

// Vendor namespaces tried during the prefixed-identifier pass, in order.
var vendorNamespaces = []string{
	"anthropic/", "openai/", "google/", "meta-llama/", "mistralai/", "deepseek/", "x-ai/", "qwen/",
}

// snapshot is one immutable cached catalog fetch.
type snapshot struct {
	entries   []Entry
	expiresAt time.Time
}

// Resolver maps model identifiers to capabilities and pricing. The catalog is
// fetched lazily and cached process-wide for 15 minutes; a fetch failure
// serves the last good snapshot (or an empty catalog if never populated)
// instead of propagating the error.
type Resolver struct {
	url    string
	client *http.Client
	clock  func() time.Time
	logger *slog.Logger

	cached  atomic.Value // *snapshot
	fetchMu sync.Mutex
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock injects the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Resolver) { r.clock = clock }
}

// WithHTTPClient overrides the transport used for catalog fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.client = client }
}

// WithURL points the resolver at a different catalog endpoint.
func WithURL(url string) Option {
	return func(r *Resolver) { r.url = url }
}

func NewResolver(logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		url:    DefaultCatalogURL,
		client: &http.Client{Timeout: 15 * time.Second},
		clock:  time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the capability set for a model id. A miss after all match
// passes yields the conservative default set; Resolve never fails.
func (r *Resolver) Resolve(modelID string) CapabilitySet {
	if entry, ok := r.Lookup(modelID); ok {
		return entry.Capabilities()
	}
	return DefaultCapabilities(modelID)
}

// Pricing returns catalog-sourced per-million rates for a model, when a
// matching entry carries them.
func (r *Resolver) Pricing(modelID string) (usage.PricingEntry, bool) {
	entry, ok := r.Lookup(modelID)
	if !ok {
		return usage.PricingEntry{}, false
	}
	p := usage.PricingEntry{
		InputPerMillion:       perMillion(entry.Pricing.Prompt),
		OutputPerMillion:      perMillion(entry.Pricing.Completion),
		CachedInputPerMillion: perMillion(entry.Pricing.InputCacheRead),
		ReasoningPerMillion:   perMillion(entry.Pricing.InternalReason),
	}
	if p.InputPerMillion == 0 && p.OutputPerMillion == 0 {
		return usage.PricingEntry{}, false
	}
	return p, true
}

// Lookup runs the match cascade against the cached catalog: exact id, vendor
// namespace prefixes, namespace-stripped ids, then substring containment in
// either direction. The first strategy with a hit wins.
func (r *Resolver) Lookup(modelID string) (Entry, bool) {
	entries := r.entries()
	if len(entries) == 0 || modelID == "" {
		return Entry{}, false
	}

	for _, match := range matchPasses {
		if entry, ok := match(entries, modelID); ok {
			return entry, true
		}
	}
	return Entry{}, false
}

// matchPass is one strategy of the fuzzy cascade. Keeping them as an ordered
// list makes the precedence auditable and testable in isolation.
type matchPass func(entries []Entry, modelID string) (Entry, bool)

var matchPasses = []matchPass{
	matchExact,
	matchVendorPrefixed,
	matchNamespaceStripped,
	matchSubstring,
}

func matchExact(entries []Entry, modelID string) (Entry, bool) {
	for _, e := range entries {
		if e.ID == modelID {
			return e, true
		}
	}
	return Entry{}, false
}

func matchVendorPrefixed(entries []Entry, modelID string) (Entry, bool) {
	for _, ns := range vendorNamespaces {
		candidate := ns + modelID
		for _, e := range entries {
			if e.ID == candidate {
				return e, true
			}
		}
	}
	return Entry{}, false
}

func matchNamespaceStripped(entries []Entry, modelID string) (Entry, bool) {
	for _, e := range entries {
		if i := strings.LastIndex(e.ID, "/"); i >= 0 && e.ID[i+1:] == modelID {
			return e, true
		}
	}
	return Entry{}, false
}

func matchSubstring(entries []Entry, modelID string) (Entry, bool) {
	lower := strings.ToLower(modelID)
	for _, e := range entries {
		id := strings.ToLower(e.ID)
		name := strings.ToLower(e.Name)
		if strings.Contains(id, lower) || strings.Contains(lower, id) ||
			(name != "" && (strings.Contains(name, lower) || strings.Contains(lower, name))) {
			return e, true
		}
	}
	return Entry{}, false
}

// entries returns the cached catalog, refreshing it when expired. Refresh
// failures fall back to the stale snapshot.
func (r *Resolver) entries() []Entry {
	now := r.clock()
	if snap, ok := r.cached.Load().(*snapshot); ok && now.Before(snap.expiresAt) {
		return snap.entries
	}

	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	// Another caller may have refreshed while we waited on the lock.
	if snap, ok := r.cached.Load().(*snapshot); ok && r.clock().Before(snap.expiresAt) {
		return snap.entries
	}

	entries, err := r.fetch()
	if err != nil {
		r.logger.Warn("model catalog refresh failed, serving last good snapshot", "error", err)
		if snap, ok := r.cached.Load().(*snapshot); ok {
			// Push the expiry forward so every call does not retry the fetch.
			r.cached.Store(&snapshot{entries: snap.entries, expiresAt: r.clock().Add(cacheTTL)})
			return snap.entries
		}
		return nil
	}

	r.cached.Store(&snapshot{entries: entries, expiresAt: r.clock().Add(cacheTTL)})
	return entries
}

func (r *Resolver) fetch() ([]Entry, error) {
	resp, err := r.client.Get(r.url)
	if err != nil {
		return nil, fmt.Errorf("fetch model catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model catalog returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}

	var payload struct {
		Data []Entry `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode model catalog: %w", err)
	}
	return payload.Data, nil
}
