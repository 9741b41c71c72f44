package offgate

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectivityMonitorFiresOnOnlineEdge(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()

	fired := 0
	m := newConnectivityMonitor(newOriginClient(origin.URL), time.Hour, func() { fired++ })

	// Online from the start: a successful probe is not an edge.
	m.probe()
	assert.True(t, m.Online())
	assert.Zero(t, fired)

	// Going offline does not fire either.
	m.online.Store(false)
	m.probe()
	assert.Equal(t, 1, fired, "offline to online edge must trigger replay")

	// Staying online stays quiet.
	m.probe()
	assert.Equal(t, 1, fired)
}

func TestConnectivityMonitorDetectsOffline(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	m := newConnectivityMonitor(newOriginClient(origin.URL), time.Hour, func() {})
	origin.Close()

	m.probe()
	assert.False(t, m.Online())
}
