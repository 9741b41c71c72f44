package offgate

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const queuePrefix = "q:"

// mutationQueue is the durable FIFO of POSTs that failed at the network
// layer. Sequence-numbered keys keep LevelDB iteration order equal to
// enqueue order, which is the replay order guarantee.
type mutationQueue struct {
	db        *leveldb.DB
	retention time.Duration

	mu    sync.Mutex
	seq   uint64
	count int

	now     func() time.Time
	limLog  *rateLimitedLogger
	metrics *metrics
}

func newMutationQueue(db *leveldb.DB, retention time.Duration, m *metrics) (*mutationQueue, error) {
	q := &mutationQueue{
		db:        db,
		retention: retention,
		now:       time.Now,
		limLog:    newRateLimitedLogger(1 * time.Minute),
		metrics:   m,
	}

	it := db.NewIterator(util.BytesPrefix([]byte(queuePrefix)), nil)
	defer it.Release()
	for it.Next() {
		q.count++
		hexSeq := strings.TrimPrefix(string(it.Key()), queuePrefix)
		if seq, err := strconv.ParseUint(hexSeq, 16, 64); err == nil && seq >= q.seq {
			q.seq = seq + 1
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	m.setQueueDepth(q.count)
	return q, nil
}

func (q *mutationQueue) key(seq uint64) []byte {
	return []byte(fmt.Sprintf(queuePrefix+"%016x", seq))
}

// Enqueue snapshots a failed mutation. Exactly one entry is created per
// failed attempt; the caller never sees the failure as an error.
func (q *mutationQueue) Enqueue(method, uri string, hdr http.Header, body []byte) (QueuedMutation, error) {
	qm := QueuedMutation{
		ID:         uuid.NewString(),
		Method:     method,
		URI:        uri,
		Header:     cloneHeader(hdr),
		Body:       body,
		EnqueuedAt: q.now().UnixNano(),
	}
	b, err := encodeGob(qm)
	if err != nil {
		return QueuedMutation{}, err
	}

	q.mu.Lock()
	seq := q.seq
	q.seq++
	q.mu.Unlock()

	if err := q.db.Put(q.key(seq), b, nil); err != nil {
		return QueuedMutation{}, err
	}

	q.mu.Lock()
	q.count++
	depth := q.count
	q.mu.Unlock()
	q.metrics.enqueued()
	q.metrics.setQueueDepth(depth)
	return qm, nil
}

// Replay walks the queue in enqueue order. Entries past the retention window
// are dropped silently without replay. An entry is removed only after its
// send succeeds; the first send failure stops the pass and leaves the rest
// queued for the next opportunity.
func (q *mutationQueue) Replay(ctx context.Context, send func(context.Context, QueuedMutation) error) (replayed int, err error) {
	type pending struct {
		key []byte
		qm  QueuedMutation
	}
	var entries []pending

	it := q.db.NewIterator(util.BytesPrefix([]byte(queuePrefix)), nil)
	for it.Next() {
		var qm QueuedMutation
		if derr := decodeGob(it.Value(), &qm); derr != nil {
			// Unreadable entry, nothing to replay.
			q.remove(append([]byte(nil), it.Key()...))
			continue
		}
		entries = append(entries, pending{append([]byte(nil), it.Key()...), qm})
	}
	it.Release()

	dropped := 0
	for _, p := range entries {
		if q.retention > 0 && q.now().Sub(time.Unix(0, p.qm.EnqueuedAt)) > q.retention {
			q.remove(p.key)
			dropped++
			continue
		}
		if serr := send(ctx, p.qm); serr != nil {
			err = serr
			break
		}
		q.remove(p.key)
		q.metrics.replayed()
		replayed++
	}
	if dropped > 0 {
		q.metrics.dropped(dropped)
		q.limLog.Printf("retention", "queue: dropped %d mutations past the %s retention window", dropped, q.retention)
	}
	return replayed, err
}

func (q *mutationQueue) remove(key []byte) {
	_ = q.db.Delete(key, nil)
	q.mu.Lock()
	if q.count > 0 {
		q.count--
	}
	depth := q.count
	q.mu.Unlock()
	q.metrics.setQueueDepth(depth)
}

func (q *mutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
