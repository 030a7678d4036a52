package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// FallbackMode selects what a failed tile fetch degrades to.
type FallbackMode string

const (
	// FallbackEmpty returns an empty body with a 404 status.
	FallbackEmpty FallbackMode = "empty"
	// FallbackPlaceholder returns an inline SVG placeholder tile.
	FallbackPlaceholder FallbackMode = "placeholder"
)

func (m FallbackMode) IsValid() bool {
	switch m {
	case FallbackEmpty, FallbackPlaceholder:
		return true
	}
	return false
}

const placeholderTile = `<svg xmlns="http://www.w3.org/2000/svg" width="256" height="256"><rect width="256" height="256" fill="#e0e0e0"/></svg>`

// Fetcher performs the actual network round trip. Injected so tests can
// substitute a deterministic fake.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL.String(), nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := f.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   body,
		Source: SourceNetwork,
	}, nil
}

// Options configure an Orchestrator.
type Options struct {
	// Version is the partition generation. Bumping it invalidates every
	// partition of the previous generation at the next activation.
	Version string
	// TileFallback selects the placeholder served for unavailable tiles.
	TileFallback FallbackMode
	// OfflinePagePath is the designated fallback page for failed
	// navigations.
	OfflinePagePath string
	Classifier      ClassifierOptions
}

func (o *Options) withDefaults() {
	if o.Version == "" {
		o.Version = "v1"
	}
	if o.TileFallback == "" {
		o.TileFallback = FallbackEmpty
	}
	if o.OfflinePagePath == "" {
		o.OfflinePagePath = "/offline"
	}
	o.Classifier.withDefaults()
}

// Orchestrator intercepts resource requests, classifies each one and
// dispatches it to a cache partition using the decided strategy. Each
// request is handled independently; the partitions themselves are the only
// shared state.
type Orchestrator struct {
	store      Store
	fetcher    Fetcher
	classifier *Classifier
	logger     *slog.Logger
	opts       Options

	versionMu sync.RWMutex
	version   string
}

func New(store Store, fetcher Fetcher, logger *slog.Logger, opts Options) *Orchestrator {
	opts.withDefaults()
	return &Orchestrator{
		store:      store,
		fetcher:    fetcher,
		classifier: NewClassifier(opts.Classifier),
		logger:     logger,
		opts:       opts,
		version:    opts.Version,
	}
}

// Version returns the active partition generation.
func (o *Orchestrator) Version() string {
	o.versionMu.RLock()
	defer o.versionMu.RUnlock()
	return o.version
}

// SetVersion switches the active generation. Old-generation partitions stay
// readable until the next Activate drops them.
func (o *Orchestrator) SetVersion(version string) {
	o.versionMu.Lock()
	defer o.versionMu.Unlock()
	o.version = version
}

// Classify exposes the pure classification decision, mainly for callers
// that want to inspect routing without performing the fetch.
func (o *Orchestrator) Classify(req Request) Decision {
	return o.classifier.Classify(req)
}

// Fetch resolves a request through the decided strategy. It always returns
// a response: transport failures, non-OK upstream statuses and missing
// cache entries all come back as typed placeholders.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) *Response {
	decision := o.classifier.Classify(req)
	bucket := decision.Partition.Versioned(o.Version())

	var res result
	switch decision.Strategy {
	case StrategyBypass:
		res = o.bypass(ctx, req)
	case StrategyCacheOnly:
		res = o.cacheOnly(ctx, bucket, decision.Key)
	case StrategyCacheFirst:
		res = o.cacheFirst(ctx, bucket, decision.Key, req)
	case StrategyCacheFirstPopulate:
		res = o.cacheFirstPopulate(ctx, bucket, decision.Key, req)
	case StrategyNetworkFirst:
		res = o.networkFirst(ctx, bucket, decision.Key, req)
	case StrategyNetworkFirstPage:
		res = o.networkFirstPage(ctx, bucket, decision.Key, req)
	default:
		res = o.networkFirstBestEffort(ctx, bucket, decision.Key, req)
	}

	o.logger.Debug("request resolved",
		"key", decision.Key,
		"partition", decision.Partition,
		"strategy", decision.Strategy,
		"outcome", res.kind,
		"status", res.resp.Status)
	return res.response()
}

func (o *Orchestrator) bypass(ctx context.Context, req Request) result {
	if req.URL == nil {
		return failure(http.StatusBadRequest)
	}
	resp, err := o.fetcher.Fetch(ctx, req)
	if err != nil {
		o.logger.Warn("bypass fetch failed", "url", req.URL, "error", err)
		return failure(http.StatusBadGateway)
	}
	return hit(resp)
}

// cacheOnly serves pre-seeded resources. There is no network fallback: a
// miss means the install-time seed is absent, which is a hard failure.
func (o *Orchestrator) cacheOnly(ctx context.Context, bucket, key string) result {
	if cached := o.match(ctx, bucket, key); cached != nil {
		return hit(cached)
	}
	return failure(http.StatusNotFound)
}

// cacheFirst serves tiles: hit returns immediately, a miss fills from the
// network, and an unreachable network degrades to the configured tile
// placeholder instead of an error.
func (o *Orchestrator) cacheFirst(ctx context.Context, bucket, key string, req Request) result {
	if cached := o.match(ctx, bucket, key); cached != nil {
		return hit(cached)
	}

	resp, err := o.fetcher.Fetch(ctx, req)
	if err != nil {
		o.logger.Debug("tile fetch failed", "key", key, "error", err)
		return missFallback(o.tileFallback())
	}
	if resp.OK() {
		o.put(ctx, bucket, key, resp)
	}
	return hit(resp)
}

// cacheFirstPopulate serves build assets. A successful network response is
// cached and returned; a non-OK or failed one becomes an empty placeholder
// carrying the original status where known.
func (o *Orchestrator) cacheFirstPopulate(ctx context.Context, bucket, key string, req Request) result {
	if cached := o.match(ctx, bucket, key); cached != nil {
		return hit(cached)
	}

	resp, err := o.fetcher.Fetch(ctx, req)
	if err != nil {
		o.logger.Debug("asset fetch failed", "key", key, "error", err)
		return failure(http.StatusNotFound)
	}
	if !resp.OK() {
		return failure(resp.Status)
	}
	o.put(ctx, bucket, key, resp)
	return hit(resp)
}

// networkFirst serves application data: the network is always attempted,
// a 200 with a body is cloned into the data partition, and failures fall
// back to the cached entry.
func (o *Orchestrator) networkFirst(ctx context.Context, bucket, key string, req Request) result {
	resp, err := o.fetcher.Fetch(ctx, req)
	if err == nil {
		if resp.Status == http.StatusOK && len(resp.Body) > 0 {
			o.put(ctx, bucket, key, resp)
		}
		return hit(resp)
	}

	o.logger.Debug("data fetch failed", "key", key, "error", err)
	if cached := o.match(ctx, bucket, key); cached != nil {
		return missFallback(cached)
	}
	return failure(http.StatusNotFound)
}

// networkFirstPage serves full page loads. Population of the routes
// partition is fire-and-forget: it must never delay the response, and its
// failure is logged, not surfaced.
func (o *Orchestrator) networkFirstPage(ctx context.Context, bucket, key string, req Request) result {
	resp, err := o.fetcher.Fetch(ctx, req)
	if err == nil {
		if resp.Status == http.StatusOK && len(resp.Body) > 0 {
			bgCtx := context.WithoutCancel(ctx)
			go func() {
				if err := o.store.Put(bgCtx, bucket, key, resp); err != nil {
					o.logger.Debug("background page cache failed", "key", key, "error", err)
				}
			}()
		}
		return hit(resp)
	}

	o.logger.Debug("page fetch failed", "key", key, "error", err)
	if cached := o.match(ctx, bucket, key); cached != nil {
		return missFallback(cached)
	}
	shellBucket := PartitionAppShell.Versioned(o.Version())
	if offline := o.match(ctx, shellBucket, o.opts.OfflinePagePath); offline != nil {
		return missFallback(offline)
	}
	return failure(http.StatusServiceUnavailable)
}

// networkFirstBestEffort serves everything else: generic dynamic and API
// calls get a best-effort cache copy and a 503 placeholder when both the
// network and the cache come up empty.
func (o *Orchestrator) networkFirstBestEffort(ctx context.Context, bucket, key string, req Request) result {
	resp, err := o.fetcher.Fetch(ctx, req)
	if err == nil {
		if resp.OK() {
			o.put(ctx, bucket, key, resp)
		}
		return hit(resp)
	}

	o.logger.Debug("fetch failed, checking cache", "key", key, "error", err)
	if cached := o.match(ctx, bucket, key); cached != nil {
		return missFallback(cached)
	}
	return failure(http.StatusServiceUnavailable)
}

// Activate garbage-collects partitions from previous generations. There is
// at most one live generation of each partition; stale ones are dropped,
// never merged.
func (o *Orchestrator) Activate(ctx context.Context) error {
	allowed := make(map[string]struct{})
	for _, p := range AllPartitions() {
		allowed[p.Versioned(o.Version())] = struct{}{}
	}

	buckets, err := o.store.Buckets(ctx)
	if err != nil {
		return err
	}
	for _, bucket := range buckets {
		if _, ok := allowed[bucket]; ok {
			continue
		}
		o.logger.Info("dropping stale cache partition", "bucket", bucket)
		if err := o.store.Drop(ctx, bucket); err != nil {
			return err
		}
	}
	return nil
}

// Seed stores a pre-built response directly in a partition, used to install
// the offline style document and fallback page at startup.
func (o *Orchestrator) Seed(ctx context.Context, partition Partition, key string, resp *Response) error {
	return o.store.Put(ctx, partition.Versioned(o.Version()), key, resp)
}

// Install fetches the app-shell entries the offline paths depend on, the
// map style document and the designated offline page, and seeds them into
// the current generation. Without them the style document can only miss and
// the page fallback chain has no last resort.
func (o *Orchestrator) Install(ctx context.Context, baseURL string) error {
	for _, path := range []string{o.opts.Classifier.StyleDocPath, o.opts.OfflinePagePath} {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		resp, err := o.fetcher.Fetch(ctx, Request{Method: http.MethodGet, URL: u})
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", path, err)
		}
		if !resp.OK() {
			return fmt.Errorf("unexpected status %d for %s", resp.Status, path)
		}

		if err := o.Seed(ctx, PartitionAppShell, path, resp); err != nil {
			return fmt.Errorf("failed to seed %s: %w", path, err)
		}
		o.logger.Info("installed app-shell entry", "key", path)
	}
	return nil
}

func (o *Orchestrator) tileFallback() *Response {
	if o.opts.TileFallback == FallbackPlaceholder {
		return &Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"image/svg+xml"}},
			Body:   []byte(placeholderTile),
			Source: SourceFallback,
		}
	}
	return synthesized(http.StatusNotFound)
}

func (o *Orchestrator) match(ctx context.Context, bucket, key string) *Response {
	cached, err := o.store.Match(ctx, bucket, key)
	if err != nil {
		o.logger.Warn("cache match failed", "bucket", bucket, "key", key, "error", err)
		return nil
	}
	return cached
}

func (o *Orchestrator) put(ctx context.Context, bucket, key string, resp *Response) {
	if err := o.store.Put(ctx, bucket, key, resp); err != nil {
		o.logger.Warn("cache put failed", "bucket", bucket, "key", key, "error", err)
	}
}
