package offgate

import (
	"fmt"
	"net/http"
)

// cachePrefix is the fixed prefix of every on-disk cache namespace name.
const cachePrefix = "offgate"

// Namespace identifies a logical cache partition. Each namespace has its own
// entry-count ceiling, age ceiling, and quota behavior.
type Namespace int

const (
	// NamespacePrecache holds the build-time precached URLs (root document,
	// web manifest, icon, offline page, hashed assets). No ceilings; retired
	// only on a version bump.
	NamespacePrecache Namespace = iota
	// NamespacePages holds navigation (document) responses.
	NamespacePages
	// NamespaceStatic holds scripts and stylesheets.
	NamespaceStatic
	// NamespaceMedia holds images and fonts.
	NamespaceMedia
	// NamespaceAPI holds same-origin API GET responses.
	NamespaceAPI
)

var allNamespaces = []Namespace{
	NamespacePrecache, NamespacePages, NamespaceStatic, NamespaceMedia, NamespaceAPI,
}

func (n Namespace) suffix() string {
	switch n {
	case NamespacePrecache:
		return "precache"
	case NamespacePages:
		return "pages"
	case NamespaceStatic:
		return "static"
	case NamespaceMedia:
		return "media"
	case NamespaceAPI:
		return "api"
	}
	return "unknown"
}

func (n Namespace) String() string { return n.suffix() }

// cacheName is the full on-disk partition name, e.g. "offgate-media-v3".
func (n Namespace) cacheName(version string) string {
	return fmt.Sprintf("%s-%s-%s", cachePrefix, n.suffix(), version)
}

// CacheEntry is a stored response. Only responses whose status is on the
// allow-list (0 or 200) are ever persisted.
type CacheEntry struct {
	Status int
	Header http.Header
	Body   []byte

	// InsertedAt is when the entry was first written, unix nanoseconds.
	// Eviction beyond a namespace's entry ceiling removes the least recently
	// inserted entries, and age ceilings are measured from this point.
	InsertedAt int64

	// RevalidatedAt is the last time the entry was refreshed against the
	// origin (stale-while-revalidate), unix nanoseconds.
	RevalidatedAt int64
}

// QueuedMutation is a snapshot of a same-origin POST that failed at the
// network layer. Entries are exclusively owned by the mutation queue.
type QueuedMutation struct {
	ID     string
	Method string
	// URI is the origin-relative request URI (path plus query).
	URI    string
	Header http.Header
	Body   []byte

	// EnqueuedAt is unix nanoseconds. Entries older than the retention
	// window are dropped without replay.
	EnqueuedAt int64
}

// cacheableStatus reports whether a response status may be written to any
// namespace. 0 covers opaque cross-origin responses; everything that is not
// 0 or 200 bypasses storage regardless of strategy.
func cacheableStatus(code int) bool {
	return code == 0 || code == http.StatusOK
}
