package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter: fixed window in-process. Para deployments de una sola
// réplica o desarrollo; con varias réplicas usar RedisLimiter.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	hits  int64
}

func NewMemoryLimiter(max int, win time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:     int64(max),
		Window:  win,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	start := now.Truncate(l.Window)

	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok || w.start.Before(start) {
		w = &window{start: start}
		l.windows[key] = w
		// barrido oportunista de ventanas viejas
		if len(l.windows) > 4096 {
			for k, old := range l.windows {
				if old.start.Before(start) {
					delete(l.windows, k)
				}
			}
		}
	}
	w.hits++
	hits := w.hits
	l.mu.Unlock()

	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= l.Max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   start.Add(l.Window).Sub(now),
	}
	if !res.Allowed {
		res.RetryAfter = res.WindowTTL
	}
	return res, nil
}
