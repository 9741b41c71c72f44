package offgate

import (
	"log"
	"sync"
	"time"
)

// rateLimitedLogger suppresses repeats of the same topic within the interval.
// Quota purges, retention drops, and probe failures can fire on every
// request while offline; one line per interval per topic is enough.
type rateLimitedLogger struct {
	mu       sync.Mutex
	interval time.Duration
	lastAt   map[string]time.Time
}

func newRateLimitedLogger(interval time.Duration) *rateLimitedLogger {
	return &rateLimitedLogger{interval: interval, lastAt: map[string]time.Time{}}
}

func (l *rateLimitedLogger) Printf(topic, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if last, ok := l.lastAt[topic]; ok && now.Sub(last) < l.interval {
		return
	}
	l.lastAt[topic] = now
	log.Printf(format, args...)
}
