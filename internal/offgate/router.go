package offgate

import (
	"context"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"
)

type requestClass int

const (
	classPassThrough requestClass = iota
	classNavigation
	classStatic
	classMedia
	classAPIRead
	classAPIMutation
)

func (c requestClass) String() string {
	switch c {
	case classNavigation:
		return "navigation"
	case classStatic:
		return "static"
	case classMedia:
		return "media"
	case classAPIRead:
		return "api-read"
	case classAPIMutation:
		return "api-mutation"
	}
	return "pass-through"
}

const apiPrefix = "/api/"

var staticExts = map[string]bool{
	".js": true, ".mjs": true, ".css": true, ".map": true,
}

var mediaExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".woff": true, ".woff2": true, ".ttf": true,
	".otf": true,
}

// classify buckets a request for strategy dispatch. Fetch-metadata headers
// win when the client sends them; extension and Accept sniffing cover
// clients that do not.
func classify(r *http.Request) requestClass {
	if strings.HasPrefix(r.URL.Path, apiPrefix) {
		switch r.Method {
		case http.MethodGet:
			return classAPIRead
		case http.MethodPost:
			return classAPIMutation
		default:
			return classPassThrough
		}
	}
	if r.Method != http.MethodGet {
		return classPassThrough
	}
	switch r.Header.Get("Sec-Fetch-Dest") {
	case "script", "style", "worker":
		return classStatic
	case "image", "font":
		return classMedia
	case "document":
		return classNavigation
	}
	ext := strings.ToLower(path.Ext(r.URL.Path))
	if staticExts[ext] {
		return classStatic
	}
	if mediaExts[ext] {
		return classMedia
	}
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" ||
		strings.Contains(r.Header.Get("Accept"), "text/html") {
		return classNavigation
	}
	return classPassThrough
}

// Router dispatches each request to the strategy registered for its class,
// serving exact precache matches first. It owns the background revalidation
// pool for stale-while-revalidate.
type Router struct {
	store      *cacheStore
	origin     *originClient
	fallback   *fallbackHandler
	metrics    *metrics
	strategies map[requestClass]strategy

	bgSem  chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newRouter(cfg Config, store *cacheStore, queue *mutationQueue, origin *originClient, m *metrics) *Router {
	rt := &Router{
		store:   store,
		origin:  origin,
		metrics: m,
		fallback: &fallbackHandler{
			store:       store,
			offlinePage: cfg.Navigation.OfflinePage,
			metrics:     m,
		},
		bgSem:  make(chan struct{}, 32),
		stopCh: make(chan struct{}),
	}
	rt.strategies = map[requestClass]strategy{
		classNavigation: &networkFirst{
			origin: origin, store: store,
			ns: NamespacePages, timeout: cfg.Navigation.timeoutDur,
		},
		classStatic: &staleWhileRevalidate{
			origin: origin, store: store,
			ns: NamespaceStatic, revalidate: rt.revalidateAsync,
		},
		classMedia: &cacheFirst{origin: origin, store: store, ns: NamespaceMedia},
		classAPIRead: &staleWhileRevalidate{
			origin: origin, store: store,
			ns: NamespaceAPI, revalidate: rt.revalidateAsync,
		},
		classAPIMutation: &networkOnly{origin: origin, queue: queue},
		classPassThrough: &passThrough{origin: origin},
	}
	return rt
}

// newPassThroughRouter is the degraded capability: every class proxies, no
// store, no queue.
func newPassThroughRouter(cfg Config, origin *originClient, m *metrics) *Router {
	rt := &Router{
		origin:  origin,
		metrics: m,
		fallback: &fallbackHandler{
			offlinePage: cfg.Navigation.OfflinePage,
			metrics:     m,
		},
		bgSem:  make(chan struct{}, 32),
		stopCh: make(chan struct{}),
	}
	pt := &passThrough{origin: origin}
	rt.strategies = map[requestClass]strategy{
		classPassThrough: pt, classNavigation: pt, classStatic: pt,
		classMedia: pt, classAPIRead: pt, classAPIMutation: pt,
	}
	return rt
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rt.store != nil && r.Method == http.MethodGet {
		if ent, ok := rt.store.Get(NamespacePrecache, r.Method, r.URL.RequestURI()); ok {
			writeEntry(w, ent)
			return
		}
	}
	class := classify(r)
	if err := rt.strategies[class].serve(w, r); err != nil {
		rt.fallback.serve(w, r, class)
	}
}

// revalidateAsync refreshes a cache entry in the background, bounded by the
// semaphore; when the pool is saturated the refresh is skipped.
func (rt *Router) revalidateAsync(ns Namespace, method, uri string, hdr http.Header) {
	select {
	case rt.bgSem <- struct{}{}:
	default:
		return
	}
	hdr = cloneHeader(hdr)
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		defer func() { <-rt.bgSem }()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		rt.revalidateOnce(ctx, ns, method, uri, hdr)
	}()
}

func (rt *Router) revalidateOnce(ctx context.Context, ns Namespace, method, uri string, hdr http.Header) {
	ent, err := rt.origin.fetch(ctx, method, uri, hdr, nil)
	if err != nil {
		return
	}
	if !cacheableStatus(ent.Status) {
		rt.store.Delete(ns, method, uri)
		return
	}
	ent.RevalidatedAt = rt.store.now().UnixNano()
	rt.store.Put(ns, method, uri, ent)
}

func (rt *Router) close() {
	close(rt.stopCh)
	rt.wg.Wait()
}
