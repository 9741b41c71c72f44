package offgate

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		Origin string `yaml:"origin"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"`
		// Max is the durable store's byte ceiling ("quota"), e.g. "256mb".
		// Crossing it purges every namespace marked purgeOnQuota.
		Max string `yaml:"max"`
	} `yaml:"storage"`

	// Version names the active cache generation. Namespaces belonging to a
	// different version are retired (purged) on startup.
	Version string `yaml:"version"`

	Caches struct {
		Pages  CachePolicy `yaml:"pages"`
		Static CachePolicy `yaml:"static"`
		Media  CachePolicy `yaml:"media"`
		API    CachePolicy `yaml:"api"`
	} `yaml:"caches"`

	Navigation struct {
		// Timeout bounds the network attempt for document loads before
		// falling back to cache. The only explicit timeout in the system.
		Timeout     string `yaml:"timeout"`
		OfflinePage string `yaml:"offlinePage"`

		timeoutDur time.Duration
	} `yaml:"navigation"`

	Queue struct {
		// Retention is how long a queued mutation stays replayable. Older
		// entries are dropped silently.
		Retention string `yaml:"retention"`
		// ProbeEvery is the connectivity probe interval.
		ProbeEvery string `yaml:"probeEvery"`

		retentionDur time.Duration
		probeDur     time.Duration
	} `yaml:"queue"`

	Precache struct {
		URLs []string `yaml:"urls"`
		// AssetManifest is a build-generated JSON array of versioned asset
		// URLs, merged with URLs and deduplicated.
		AssetManifest string `yaml:"assetManifest"`
	} `yaml:"precache"`

	maxStorageBytes int64
}

type CachePolicy struct {
	MaxEntries int `yaml:"maxEntries"`
	// MaxAge is the entry age ceiling; empty means no age ceiling.
	MaxAge string `yaml:"maxAge"`
	// PurgeOnQuota drops the whole namespace when the storage quota is
	// exceeded.
	PurgeOnQuota bool `yaml:"purgeOnQuota"`

	maxAgeDur time.Duration
}

func (p CachePolicy) maxAge() time.Duration { return p.maxAgeDur }

// policy returns the eviction policy for a namespace. The precache namespace
// has no ceilings.
func (c *Config) policy(n Namespace) CachePolicy {
	switch n {
	case NamespacePages:
		return c.Caches.Pages
	case NamespaceStatic:
		return c.Caches.Static
	case NamespaceMedia:
		return c.Caches.Media
	case NamespaceAPI:
		return c.Caches.API
	}
	return CachePolicy{}
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns a compiled config with the stock policies: pages
// 20 entries, static 60 entries/30d, media 120 entries/60d purge-on-quota,
// api 50 entries/5m, 5s navigation timeout, 24h queue retention.
func DefaultConfig(origin string) Config {
	var cfg Config
	cfg.Server.Origin = origin
	if err := cfg.finalize(); err != nil {
		panic(err) // defaults are always parseable
	}
	return cfg
}

func (c *Config) finalize() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Origin == "" {
		return fmt.Errorf("server.origin is required")
	}
	c.Server.Origin = strings.TrimRight(c.Server.Origin, "/")

	if c.Storage.Path == "" {
		c.Storage.Path = "./data/offgate"
	}
	if c.Storage.Max == "" {
		c.Storage.Max = "256mb"
	}
	maxBytes, err := parseBytes(c.Storage.Max)
	if err != nil {
		return fmt.Errorf("storage.max: %w", err)
	}
	c.maxStorageBytes = maxBytes

	if c.Version == "" {
		c.Version = "v1"
	}

	applyPolicyDefaults(&c.Caches.Pages, 20, "")
	applyPolicyDefaults(&c.Caches.Static, 60, "720h")
	applyPolicyDefaults(&c.Caches.Media, 120, "1440h")
	c.Caches.Media.PurgeOnQuota = true
	applyPolicyDefaults(&c.Caches.API, 50, "5m")
	for name, p := range map[string]*CachePolicy{
		"pages":  &c.Caches.Pages,
		"static": &c.Caches.Static,
		"media":  &c.Caches.Media,
		"api":    &c.Caches.API,
	} {
		if p.MaxAge != "" {
			d, err := time.ParseDuration(p.MaxAge)
			if err != nil {
				return fmt.Errorf("caches.%s.maxAge: %w", name, err)
			}
			p.maxAgeDur = d
		}
	}

	if c.Navigation.Timeout == "" {
		c.Navigation.Timeout = "5s"
	}
	d, err := time.ParseDuration(c.Navigation.Timeout)
	if err != nil {
		return fmt.Errorf("navigation.timeout: %w", err)
	}
	c.Navigation.timeoutDur = d
	if c.Navigation.OfflinePage == "" {
		c.Navigation.OfflinePage = "/offline.html"
	}

	if c.Queue.Retention == "" {
		c.Queue.Retention = "24h"
	}
	d, err = time.ParseDuration(c.Queue.Retention)
	if err != nil {
		return fmt.Errorf("queue.retention: %w", err)
	}
	c.Queue.retentionDur = d
	if c.Queue.ProbeEvery == "" {
		c.Queue.ProbeEvery = "30s"
	}
	d, err = time.ParseDuration(c.Queue.ProbeEvery)
	if err != nil {
		return fmt.Errorf("queue.probeEvery: %w", err)
	}
	c.Queue.probeDur = d

	if len(c.Precache.URLs) == 0 {
		c.Precache.URLs = []string{
			"/",
			"/manifest.webmanifest",
			"/icons/icon-192.png",
			"/offline.html",
		}
	}
	return nil
}

func applyPolicyDefaults(p *CachePolicy, maxEntries int, maxAge string) {
	if p.MaxEntries == 0 {
		p.MaxEntries = maxEntries
	}
	if p.MaxAge == "" {
		p.MaxAge = maxAge
	}
}
