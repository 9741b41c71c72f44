package offgate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// loadPrecacheURLs merges the fixed always-precached URLs with the
// build-generated asset manifest (a JSON array of versioned URLs),
// deduplicated by URL with order preserved.
func loadPrecacheURLs(cfg Config) ([]string, error) {
	urls := append([]string(nil), cfg.Precache.URLs...)

	if cfg.Precache.AssetManifest != "" {
		b, err := os.ReadFile(cfg.Precache.AssetManifest)
		if err != nil {
			return nil, fmt.Errorf("precache manifest: %w", err)
		}
		var assets []string
		if err := json.Unmarshal(b, &assets); err != nil {
			return nil, fmt.Errorf("precache manifest: %w", err)
		}
		urls = append(urls, assets...)
	}

	seen := map[string]struct{}{}
	out := urls[:0]
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || !strings.HasPrefix(u, "/") {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}

// startPrecache warms the precache namespace in the background once at
// startup (the install step of the worker lifecycle).
func (s *Service) startPrecache(urls []string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		stored, failed := s.precacheOnce(ctx, urls)
		log.Printf("precache: stored=%d failed=%d", stored, failed)
	}()
}

func (s *Service) precacheOnce(ctx context.Context, urls []string) (stored, failed int) {
	for _, u := range urls {
		select {
		case <-s.stopCh:
			return stored, failed
		default:
		}
		ent, err := s.origin.fetch(ctx, http.MethodGet, u, nil, nil)
		if err != nil || !cacheableStatus(ent.Status) {
			failed++
			continue
		}
		s.store.Put(NamespacePrecache, http.MethodGet, u, ent)
		stored++
	}
	return stored, failed
}
