package offgate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflinePostIsQueuedNotFailed(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	rt, _, queue, _ := newTestRouter(t, origin.URL)
	origin.Close() // network down

	r := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"sku":"wallet-01"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, r)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"queued":true`)
	assert.Equal(t, 1, queue.Len())
}

func TestQueueReplayPreservesEnqueueOrder(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	rt, _, queue, _ := newTestRouter(t, origin.URL)
	origin.Close()

	for _, body := range []string{"first", "second", "third"} {
		w := httptest.NewRecorder()
		rt.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	require.Equal(t, 3, queue.Len())

	var mu sync.Mutex
	var replayed []string
	n, err := queue.Replay(context.Background(), func(_ context.Context, qm QueuedMutation) error {
		mu.Lock()
		defer mu.Unlock()
		replayed = append(replayed, string(qm.Body))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"first", "second", "third"}, replayed)
	assert.Equal(t, 0, queue.Len())
}

func TestQueueReplayAgainstOrigin(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	rt, _, queue, _ := newTestRouter(t, down.URL)
	down.Close()

	w := httptest.NewRecorder()
	rt.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"sku":"belt-02"}`)))
	require.Equal(t, http.StatusAccepted, w.Code)

	var got struct {
		uri  string
		body string
	}
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.uri, got.body = r.URL.RequestURI(), string(b)
	}))
	defer up.Close()

	origin := newOriginClient(up.URL)
	n, err := queue.Replay(context.Background(), func(ctx context.Context, qm QueuedMutation) error {
		_, err := origin.fetch(ctx, qm.Method, qm.URI, qm.Header, qm.Body)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "/api/orders", got.uri)
	assert.Equal(t, `{"sku":"belt-02"}`, got.body)
	assert.Equal(t, 0, queue.Len())
}

func TestQueueRetentionDropsStaleMutationsSilently(t *testing.T) {
	store := newTestStore(t, testConfig(t, "http://origin"))
	queue, err := newMutationQueue(store.db, 24*time.Hour, nil)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	queue.now = func() time.Time { return now }

	_, err = queue.Enqueue(http.MethodPost, "/api/orders", nil, []byte("stale"))
	require.NoError(t, err)

	now = now.Add(25 * time.Hour)
	_, err = queue.Enqueue(http.MethodPost, "/api/orders", nil, []byte("fresh"))
	require.NoError(t, err)

	var sent []string
	n, err := queue.Replay(context.Background(), func(_ context.Context, qm QueuedMutation) error {
		sent = append(sent, string(qm.Body))
		return nil
	})
	require.NoError(t, err)

	// The stale entry must never be replayed and leaves no trace.
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"fresh"}, sent)
	assert.Equal(t, 0, queue.Len())
}

func TestQueueReplayFailureLeavesRemainderQueued(t *testing.T) {
	store := newTestStore(t, testConfig(t, "http://origin"))
	queue, err := newMutationQueue(store.db, 24*time.Hour, nil)
	require.NoError(t, err)

	for _, body := range []string{"a", "b", "c"} {
		_, err := queue.Enqueue(http.MethodPost, "/api/orders", nil, []byte(body))
		require.NoError(t, err)
	}

	calls := 0
	n, err := queue.Replay(context.Background(), func(_ context.Context, qm QueuedMutation) error {
		calls++
		if calls == 2 {
			return context.DeadlineExceeded
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)
	// "a" is confirmed and gone; "b" and "c" wait for the next pass.
	assert.Equal(t, 2, queue.Len())

	var remaining []string
	n, err = queue.Replay(context.Background(), func(_ context.Context, qm QueuedMutation) error {
		remaining = append(remaining, string(qm.Body))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b", "c"}, remaining)
}

func TestQueueSurvivesReopen(t *testing.T) {
	cfg := testConfig(t, "http://origin")
	store, err := newCacheStore(cfg, nil)
	require.NoError(t, err)
	queue, err := newMutationQueue(store.db, 24*time.Hour, nil)
	require.NoError(t, err)
	_, err = queue.Enqueue(http.MethodPost, "/api/orders", nil, []byte("persisted"))
	require.NoError(t, err)
	store.close()

	store2 := newTestStore(t, cfg)
	queue2, err := newMutationQueue(store2.db, 24*time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, queue2.Len())

	// New enqueues continue the sequence after the persisted entries.
	_, err = queue2.Enqueue(http.MethodPost, "/api/orders", nil, []byte("later"))
	require.NoError(t, err)
	var order []string
	_, err = queue2.Replay(context.Background(), func(_ context.Context, qm QueuedMutation) error {
		order = append(order, string(qm.Body))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"persisted", "later"}, order)
}
