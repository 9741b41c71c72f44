package offgate

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// connectivityMonitor probes the origin on a ticker and fires onOnline on
// the offline-to-online edge. It stands in for the host's "sync" event: the
// queue replays opportunistically when connectivity returns.
type connectivityMonitor struct {
	origin   *originClient
	every    time.Duration
	onOnline func()

	online atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newConnectivityMonitor(origin *originClient, every time.Duration, onOnline func()) *connectivityMonitor {
	m := &connectivityMonitor{
		origin:   origin,
		every:    every,
		onOnline: onOnline,
		stopCh:   make(chan struct{}),
	}
	m.online.Store(true)
	return m
}

func (m *connectivityMonitor) start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.every)
		defer t.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-t.C:
				m.probe()
			}
		}
	}()
}

func (m *connectivityMonitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	up := m.origin.reachable(ctx)
	was := m.online.Swap(up)
	if up && !was {
		log.Printf("connectivity: origin reachable again, replaying queued mutations")
		m.onOnline()
	}
}

func (m *connectivityMonitor) Online() bool { return m.online.Load() }

func (m *connectivityMonitor) stop() {
	close(m.stopCh)
	m.wg.Wait()
}
