package fetcher

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bibfetch/bibfetch/internal/cache"
	"github.com/bibfetch/bibfetch/internal/config"
	"github.com/bibfetch/bibfetch/internal/domain"
	"github.com/bibfetch/bibfetch/internal/observability"
	"github.com/bibfetch/bibfetch/internal/providers"
	"github.com/bibfetch/bibfetch/internal/providers/crossref"
	"github.com/bibfetch/bibfetch/internal/providers/scopus"
)

// Registry routes provider names to their fetchers.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]*Fetcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]*Fetcher)}
}

// Register adds a fetcher under its provider name, replacing any prior
// registration.
func (r *Registry) Register(f *Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[f.Name()] = f
}

// Get returns the fetcher registered under name.
func (r *Registry) Get(name string) (*Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fetchers[name]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return f, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.fetchers))
	for name := range r.fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds a registry with a fetcher for every enabled provider.
// Each provider gets its own rate limiter, HTTP client, and cache
// subdirectory, so one provider's pacing or cache never interferes with
// another's.
func FromConfig(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) (*Registry, error) {
	registry := NewRegistry()

	if cfg.Providers.Crossref.Enabled {
		pc := cfg.Providers.Crossref
		adapter := crossref.New(crossref.Config{
			BaseURL:    pc.BaseURL,
			Mailto:     pc.Mailto,
			PageSize:   pc.PageSize,
			MaxResults: pc.MaxResults,
			RateLimit:  pc.RateLimit,
			BurstSize:  pc.BurstSize,
			Timeout:    pc.Timeout,
		}, logger)

		f, err := buildFetcher(adapter, pc, cfg.Cache, logger, metrics)
		if err != nil {
			return nil, err
		}
		registry.Register(f)
	}

	if cfg.Providers.Scopus.Enabled {
		pc := cfg.Providers.Scopus
		adapter, err := scopus.New(scopus.Config{
			BaseURL:    pc.BaseURL,
			APIKey:     pc.APIKey,
			PageSize:   pc.PageSize,
			MaxResults: pc.MaxResults,
			RateLimit:  pc.RateLimit,
			BurstSize:  pc.BurstSize,
			Timeout:    pc.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}

		f, err := buildFetcher(adapter, pc, cfg.Cache, logger, metrics)
		if err != nil {
			return nil, err
		}
		registry.Register(f)
	}

	return registry, nil
}

// buildFetcher assembles the per-provider plumbing: limiter, HTTP client,
// and cache store under the provider's subdirectory.
func buildFetcher(adapter providers.Adapter, pc config.ProviderConfig, cc config.CacheConfig, logger zerolog.Logger, metrics *observability.Metrics) (*Fetcher, error) {
	limiter := providers.NewRateLimiter(pc.RateLimit, pc.BurstSize)
	rateLimited := metrics.RateLimited.WithLabelValues(adapter.Name())
	client := providers.NewHTTPClient(providers.HTTPClientConfig{
		Timeout:       pc.Timeout,
		MaxRetries:    pc.MaxRetries,
		RetryDelay:    pc.RetryDelay,
		OnRateLimited: rateLimited.Inc,
	}, limiter)

	store, err := cache.NewFileStore(cache.FileStoreConfig{
		Dir:         filepath.Join(cc.Dir, adapter.Name()),
		Compression: cc.Compression,
		MaxAge:      cc.MaxAge,
	}, logger)
	if err != nil {
		return nil, err
	}

	return New(adapter, client, store, pc.MaxResults, logger, metrics)
}
