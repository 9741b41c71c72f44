package offgate

import (
	"bytes"
	"encoding/gob"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

func init() {
	gob.Register(http.Header{})
}

type entryMeta struct {
	Size       int64
	InsertedAt int64 // unix nanoseconds
}

// cacheStore is the two-tier namespace store: a TTL hot layer in front of a
// LevelDB durable layer. Entries live under "e:<cacheName>:<key>" with their
// metadata under "m:<cacheName>:<key>"; the in-memory index carries insert
// order so ceiling eviction never has to scan the database.
type cacheStore struct {
	db       *leveldb.DB
	version  string
	policies map[Namespace]CachePolicy
	maxBytes int64

	hot map[Namespace]*gocache.Cache

	mu        sync.Mutex
	index     map[Namespace]map[string]entryMeta
	totalSize int64

	path    string
	now     func() time.Time
	limLog  *rateLimitedLogger
	metrics *metrics
}

func newCacheStore(cfg Config, m *metrics) (*cacheStore, error) {
	db, err := leveldb.OpenFile(cfg.Storage.Path, nil)
	if err != nil {
		return nil, err
	}
	s := &cacheStore{
		db:       db,
		version:  cfg.Version,
		policies: map[Namespace]CachePolicy{},
		maxBytes: cfg.maxStorageBytes,
		hot:      map[Namespace]*gocache.Cache{},
		index:    map[Namespace]map[string]entryMeta{},
		path:     cfg.Storage.Path,
		now:      time.Now,
		limLog:   newRateLimitedLogger(1 * time.Minute),
		metrics:  m,
	}
	for _, ns := range allNamespaces {
		pol := cfg.policy(ns)
		s.policies[ns] = pol
		ttl := gocache.NoExpiration
		if pol.maxAge() > 0 {
			ttl = pol.maxAge()
		}
		s.hot[ns] = gocache.New(ttl, 10*time.Minute)
		s.index[ns] = map[string]entryMeta{}
	}
	if err := s.loadIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *cacheStore) close() {
	_ = s.db.Close()
}

// entryKey is the per-namespace cache key: method plus origin-relative URI.
func entryKey(method, uri string) string {
	return method + " " + uri
}

func (s *cacheStore) dbKey(prefix string, ns Namespace, key string) []byte {
	return []byte(prefix + ns.cacheName(s.version) + ":" + key)
}

// loadIndex rebuilds the in-memory index from metadata records and retires
// every namespace belonging to a different version.
func (s *cacheStore) loadIndex() error {
	it := s.db.NewIterator(util.BytesPrefix([]byte("m:")), nil)
	defer it.Release()

	current := map[string]Namespace{}
	for _, ns := range allNamespaces {
		current[ns.cacheName(s.version)] = ns
	}

	var stale [][]byte
	retired := 0
	for it.Next() {
		rest := strings.TrimPrefix(string(it.Key()), "m:")
		name, key, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		ns, live := current[name]
		if !live {
			stale = append(stale, append([]byte(nil), it.Key()...))
			retired++
			continue
		}
		var meta entryMeta
		if err := decodeGob(it.Value(), &meta); err != nil {
			continue
		}
		s.index[ns][key] = meta
		s.totalSize += meta.Size
	}
	if err := it.Error(); err != nil {
		return err
	}

	if len(stale) > 0 {
		batch := new(leveldb.Batch)
		for _, mk := range stale {
			batch.Delete(mk)
			ek := append([]byte("e:"), mk[len("m:"):]...)
			batch.Delete(ek)
		}
		if err := s.db.Write(batch, nil); err != nil {
			return err
		}
		log.Printf("cache: retired %d entries from previous versions", retired)
	}
	return nil
}

// Get returns a live entry. Entries past the namespace's age ceiling are
// deleted and reported as misses.
func (s *cacheStore) Get(ns Namespace, method, uri string) (CacheEntry, bool) {
	key := entryKey(method, uri)

	if v, ok := s.hot[ns].Get(key); ok {
		ent := v.(CacheEntry)
		if s.expired(ns, ent.InsertedAt) {
			s.Delete(ns, method, uri)
			s.metrics.evicted(ns, "age", 1)
			s.metrics.miss(ns)
			return CacheEntry{}, false
		}
		s.metrics.hit(ns)
		return ent, true
	}

	b, err := s.db.Get(s.dbKey("e:", ns, key), nil)
	if err != nil {
		s.metrics.miss(ns)
		return CacheEntry{}, false
	}
	var ent CacheEntry
	if err := decodeGob(b, &ent); err != nil {
		s.metrics.miss(ns)
		return CacheEntry{}, false
	}
	if s.expired(ns, ent.InsertedAt) {
		s.Delete(ns, method, uri)
		s.metrics.evicted(ns, "age", 1)
		s.metrics.miss(ns)
		return CacheEntry{}, false
	}
	s.hot[ns].SetDefault(key, ent)
	s.metrics.hit(ns)
	return ent, true
}

func (s *cacheStore) expired(ns Namespace, insertedAt int64) bool {
	maxAge := s.policies[ns].maxAge()
	if maxAge <= 0 {
		return false
	}
	return s.now().Sub(time.Unix(0, insertedAt)) > maxAge
}

// Put stores an entry if its status is on the allow-list, then enforces the
// namespace's entry ceiling and the global quota.
func (s *cacheStore) Put(ns Namespace, method, uri string, ent CacheEntry) {
	if !cacheableStatus(ent.Status) {
		return
	}
	key := entryKey(method, uri)
	if ent.InsertedAt == 0 {
		ent.InsertedAt = s.now().UnixNano()
	}

	b, err := encodeGob(ent)
	if err != nil {
		return
	}
	meta := entryMeta{Size: int64(len(b)), InsertedAt: ent.InsertedAt}
	mb, err := encodeGob(meta)
	if err != nil {
		return
	}

	batch := new(leveldb.Batch)
	batch.Put(s.dbKey("e:", ns, key), b)
	batch.Put(s.dbKey("m:", ns, key), mb)
	if err := s.db.Write(batch, nil); err != nil {
		// A write failure on a full volume is the quota-exceeded case.
		s.limLog.Printf("quota", "cache: write failed (%v), purging quota namespaces", err)
		s.purgeOnQuota()
		return
	}

	s.hot[ns].SetDefault(key, ent)

	s.mu.Lock()
	if old, ok := s.index[ns][key]; ok {
		s.totalSize -= old.Size
	}
	s.index[ns][key] = meta
	s.totalSize += meta.Size
	overQuota := s.maxBytes > 0 && s.totalSize > s.maxBytes
	s.mu.Unlock()

	s.enforceCeiling(ns)
	if overQuota {
		if du, ok := storeDiskUsage(s.path); ok {
			s.limLog.Printf("quota", "cache: quota exceeded (logical %s, on disk %s, max %s)",
				formatBytes(uint64(s.totalSizeNow())), formatBytes(du), formatBytes(uint64(s.maxBytes)))
		}
		s.purgeOnQuota()
	}
}

func (s *cacheStore) totalSizeNow() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSize
}

// enforceCeiling removes least-recently-inserted entries beyond the
// namespace's entry-count ceiling.
func (s *cacheStore) enforceCeiling(ns Namespace) {
	maxEntries := s.policies[ns].MaxEntries
	if maxEntries <= 0 {
		return
	}

	s.mu.Lock()
	over := len(s.index[ns]) - maxEntries
	if over <= 0 {
		s.mu.Unlock()
		return
	}
	type aged struct {
		key string
		at  int64
	}
	items := make([]aged, 0, len(s.index[ns]))
	for k, m := range s.index[ns] {
		items = append(items, aged{k, m.InsertedAt})
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].at < items[j].at })
	for i := 0; i < over; i++ {
		s.deleteKey(ns, items[i].key)
	}
	s.metrics.evicted(ns, "ceiling", over)
}

func (s *cacheStore) Delete(ns Namespace, method, uri string) {
	s.deleteKey(ns, entryKey(method, uri))
}

func (s *cacheStore) deleteKey(ns Namespace, key string) {
	batch := new(leveldb.Batch)
	batch.Delete(s.dbKey("e:", ns, key))
	batch.Delete(s.dbKey("m:", ns, key))
	_ = s.db.Write(batch, nil)

	s.hot[ns].Delete(key)

	s.mu.Lock()
	if meta, ok := s.index[ns][key]; ok {
		s.totalSize -= meta.Size
		delete(s.index[ns], key)
	}
	s.mu.Unlock()
}

// Purge drops every entry in a namespace.
func (s *cacheStore) Purge(ns Namespace) int {
	prefix := []byte("m:" + ns.cacheName(s.version) + ":")
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
		batch.Delete(append([]byte("e:"), it.Key()[len("m:"):]...))
	}
	it.Release()
	_ = s.db.Write(batch, nil)

	s.hot[ns].Flush()

	s.mu.Lock()
	n := len(s.index[ns])
	for _, meta := range s.index[ns] {
		s.totalSize -= meta.Size
	}
	s.index[ns] = map[string]entryMeta{}
	s.mu.Unlock()
	return n
}

func (s *cacheStore) purgeOnQuota() {
	for _, ns := range allNamespaces {
		if !s.policies[ns].PurgeOnQuota {
			continue
		}
		n := s.Purge(ns)
		if n > 0 {
			log.Printf("cache: purged %d entries from %s after quota breach", n, ns)
			s.metrics.evicted(ns, "quota", n)
		}
	}
}

func (s *cacheStore) Len(ns Namespace) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index[ns])
}

// ---- encoding ----

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
