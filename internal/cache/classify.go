package cache

import (
	"net/http"
	"net/url"
	"strings"
)

// Strategy names which source is tried first and how failures degrade.
type Strategy string

const (
	// StrategyBypass passes the request straight to the network, no caching.
	StrategyBypass Strategy = "bypass"
	// StrategyCacheOnly serves from cache; a miss is a hard failure since
	// the resource is pre-seeded at install time.
	StrategyCacheOnly Strategy = "cache-only"
	// StrategyCacheFirst checks cache, fills from network in the background
	// of a miss, and synthesizes a placeholder when the network fails.
	StrategyCacheFirst Strategy = "cache-first"
	// StrategyCacheFirstPopulate is cache-first with network fallback that
	// populates the cache on a successful fetch.
	StrategyCacheFirstPopulate Strategy = "cache-first-populate"
	// StrategyNetworkFirst always tries the network, falling back to cache.
	StrategyNetworkFirst Strategy = "network-first"
	// StrategyNetworkFirstPage is network-first with asynchronous cache
	// population and an offline-page fallback chain for full page loads.
	StrategyNetworkFirstPage Strategy = "network-first-page"
	// StrategyNetworkFirstBestEffort is network-first with a best-effort
	// cache copy and a 503 placeholder when everything misses.
	StrategyNetworkFirstBestEffort Strategy = "network-first-best-effort"
)

// Destination types, mirroring what a fetching client would report.
const (
	DestinationScript   = "script"
	DestinationStyle    = "style"
	DestinationFont     = "font"
	DestinationImage    = "image"
	DestinationDocument = "document"
)

// Request describes one outgoing resource request as seen by the
// orchestrator.
type Request struct {
	Method      string
	URL         *url.URL
	Destination string // script, style, font, image, document or empty
	Navigate    bool   // full page load
}

// Decision is the pure classification outcome for a request, produced
// before any I/O happens.
type Decision struct {
	Partition Partition
	Strategy  Strategy
	Key       string
}

// ClassifierOptions pin the paths and hostnames that drive classification.
type ClassifierOptions struct {
	// StyleDocPath is the offline map style document, pre-seeded in the
	// app-shell partition.
	StyleDocPath string
	// ArchivePath is the basemap archive whose internal tiles are
	// suffix-matched by ".pbf".
	ArchivePath string
	// StaticPrefix marks build assets.
	StaticPrefix string
	// DataPrefix marks application data paths.
	DataPrefix string
	// DataHosts are upstream provider hostnames whose responses belong to
	// the location-data partition.
	DataHosts []string
}

func (o *ClassifierOptions) withDefaults() {
	if o.StyleDocPath == "" {
		o.StyleDocPath = "/offline-map-style.json"
	}
	if o.ArchivePath == "" {
		o.ArchivePath = "/maps/planet.pmtiles"
	}
	if o.StaticPrefix == "" {
		o.StaticPrefix = "/static/"
	}
	if o.DataPrefix == "" {
		o.DataPrefix = "/location-data/"
	}
}

type rule struct {
	name   string
	match  func(Request) bool
	decide func(Request) Decision
}

// Classifier assigns each request to exactly one partition and strategy.
// Membership is a pure function of method, path, destination type and
// hostname; the rules are evaluated in order and the first match wins.
type Classifier struct {
	opts  ClassifierOptions
	rules []rule
}

func NewClassifier(opts ClassifierOptions) *Classifier {
	opts.withDefaults()
	c := &Classifier{opts: opts}
	c.rules = []rule{
		{
			name: "style-document",
			match: func(r Request) bool {
				return r.URL.Path == opts.StyleDocPath
			},
			decide: func(r Request) Decision {
				return Decision{PartitionAppShell, StrategyCacheOnly, fullKey(r.URL)}
			},
		},
		{
			name: "vector-tiles",
			match: func(r Request) bool {
				return r.URL.Path == opts.ArchivePath || strings.HasSuffix(r.URL.Path, ".pbf")
			},
			decide: func(r Request) Decision {
				// Tiles key on the bare path so cache-busting query
				// parameters cannot fragment the cache.
				return Decision{PartitionVectorTiles, StrategyCacheFirst, r.URL.Path}
			},
		},
		{
			name: "font-sprite",
			match: func(r Request) bool {
				return strings.HasPrefix(r.URL.Path, "/sprites/") ||
					strings.HasPrefix(r.URL.Path, "/glyphs/") ||
					strings.HasPrefix(r.URL.Path, "/fonts/")
			},
			decide: func(r Request) Decision {
				return Decision{PartitionFontSprite, StrategyCacheFirstPopulate, fullKey(r.URL)}
			},
		},
		{
			name: "static-assets",
			match: func(r Request) bool {
				switch r.Destination {
				case DestinationScript, DestinationStyle, DestinationFont, DestinationImage:
					return true
				}
				return strings.HasPrefix(r.URL.Path, opts.StaticPrefix)
			},
			decide: func(r Request) Decision {
				return Decision{PartitionStaticAssets, StrategyCacheFirstPopulate, fullKey(r.URL)}
			},
		},
		{
			name: "location-data",
			match: func(r Request) bool {
				if strings.HasPrefix(r.URL.Path, opts.DataPrefix) {
					return true
				}
				for _, host := range opts.DataHosts {
					if host != "" && strings.Contains(r.URL.Hostname(), host) {
						return true
					}
				}
				return false
			},
			decide: func(r Request) Decision {
				return Decision{PartitionLocationData, StrategyNetworkFirst, fullKey(r.URL)}
			},
		},
		{
			name: "navigation",
			match: func(r Request) bool {
				return r.Navigate || r.Destination == DestinationDocument
			},
			decide: func(r Request) Decision {
				return Decision{PartitionRoutes, StrategyNetworkFirstPage, fullKey(r.URL)}
			},
		},
	}
	return c
}

// Classify returns the partition, strategy and cache key for a request. It
// performs no I/O and is deterministic, which lets the strategy table be
// tested without a live network.
func (c *Classifier) Classify(r Request) Decision {
	if r.URL == nil || (r.URL.Scheme != "http" && r.URL.Scheme != "https") {
		return Decision{Strategy: StrategyBypass}
	}
	if r.Method != "" && r.Method != http.MethodGet {
		return Decision{Strategy: StrategyBypass}
	}

	for _, rule := range c.rules {
		if rule.match(r) {
			return rule.decide(r)
		}
	}

	// Generic dynamic and API calls share the app-shell partition.
	return Decision{PartitionAppShell, StrategyNetworkFirstBestEffort, fullKey(r.URL)}
}

func fullKey(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}
