package offgate

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Service wires the offline gateway together: the strategy router over the
// namespace store, the mutation queue with its connectivity-driven replay,
// precache warming, the update lifecycle controller, and the page-facing
// control surface (WebSocket hub, metrics).
type Service struct {
	cfg     Config
	origin  *originClient
	store   *cacheStore
	queue   *mutationQueue
	router  *Router
	monitor *connectivityMonitor

	lifecycle *UpdateController
	prompts   *InstallPromptController
	hub       *hub
	metrics   *metrics

	degraded bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewService(cfg Config) (*Service, error) {
	s := &Service{
		cfg:     cfg,
		origin:  newOriginClient(cfg.Server.Origin),
		metrics: newMetrics(),
		prompts: NewInstallPromptController(),
		stopCh:  make(chan struct{}),
	}
	s.hub = newHub(s.handleMessage)
	s.lifecycle = NewUpdateController(
		func() { log.Printf("lifecycle: skip-waiting sent to staged version") },
		func() { log.Printf("lifecycle: hand-off complete, clients reloading") },
		func() { s.hub.Broadcast(Message{Type: MessageNewVersion}) },
	)

	// Capability selection: with the durable store unusable the gateway
	// degrades to a pass-through proxy, selected once at startup.
	store, err := newCacheStore(cfg, s.metrics)
	if err != nil {
		log.Printf("storage unavailable (%v), running pass-through only", err)
		s.router = newPassThroughRouter(cfg, s.origin, s.metrics)
		s.degraded = true
		return s, nil
	}
	s.store = store

	queue, err := newMutationQueue(store.db, cfg.Queue.retentionDur, s.metrics)
	if err != nil {
		store.close()
		return nil, err
	}
	s.queue = queue
	s.router = newRouter(cfg, store, queue, s.origin, s.metrics)

	urls, err := loadPrecacheURLs(cfg)
	if err != nil {
		log.Printf("precache: %v, continuing with the fixed URL set", err)
		urls = cfg.Precache.URLs
	}
	s.startPrecache(urls)

	s.monitor = newConnectivityMonitor(s.origin, cfg.Queue.probeDur, s.replayQueued)
	s.monitor.start()

	// Mutations left over from a previous run replay on startup; later
	// passes ride the offline→online edge.
	if queue.Len() > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.replayQueued()
		}()
	}
	return s, nil
}

// Handler serves the gateway: control endpoints under /offgate/, everything
// else through the strategy router.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/offgate/ws", s.hub)
	mux.Handle("/offgate/metrics", s.metrics.handler())
	mux.Handle("/", s.router)
	return mux
}

// Lifecycle exposes the update controller so the host can feed it runtime
// events (waiting version detected, controller changed).
func (s *Service) Lifecycle() *UpdateController { return s.lifecycle }

// InstallPrompts exposes the install prompt controller.
func (s *Service) InstallPrompts() *InstallPromptController { return s.prompts }

// Degraded reports whether the pass-through capability was selected.
func (s *Service) Degraded() bool { return s.degraded }

func (s *Service) handleMessage(msg Message) {
	switch msg.Type {
	case MessageSkipWaiting:
		s.lifecycle.Dispatch(EventConfirm)
	case MessageReplay:
		if s.queue != nil {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.replayQueued()
			}()
		}
	}
}

// replayQueued runs one ordered replay pass. Called on the offline→online
// edge and on explicit REPLAY requests.
func (s *Service) replayQueued() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()
	n, err := s.queue.Replay(ctx, s.sendMutation)
	if err != nil {
		log.Printf("queue: replay interrupted after %d mutations: %v", n, err)
		return
	}
	if n > 0 {
		log.Printf("queue: replayed %d mutations", n)
	}
}

// sendMutation delivers one queued mutation. Any origin response, including
// an HTTP error, counts as confirmed delivery; only a network-level failure
// keeps the entry queued.
func (s *Service) sendMutation(ctx context.Context, qm QueuedMutation) error {
	_, err := s.origin.fetch(ctx, qm.Method, qm.URI, qm.Header, qm.Body)
	return err
}

func (s *Service) Close() {
	close(s.stopCh)
	if s.monitor != nil {
		s.monitor.stop()
	}
	s.hub.closeAll()
	if s.router != nil {
		s.router.close()
	}
	s.wg.Wait()
	if s.store != nil {
		s.store.close()
	}
}
