package service

import (
	"sync"
	"time"

	"guardbot/internal/domain"

	"github.com/RussellLuo/slidingwindow"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// AskLimiter caps generation requests per actor in a sliding window.
type AskLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[domain.ActorID, *slidingwindow.Limiter]
	size     time.Duration
	limit    int64
}

func NewAskLimiter(limit int64, size time.Duration) *AskLimiter {
	if size <= 0 {
		size = time.Minute
	}
	return &AskLimiter{
		limiters: expirable.NewLRU[domain.ActorID, *slidingwindow.Limiter](10_000, nil, 2*size),
		size:     size,
		limit:    limit,
	}
}

func (l *AskLimiter) Allow(actor domain.ActorID) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters.Get(actor)
	if !ok {
		lim, _ = slidingwindow.NewLimiter(l.size, l.limit, windowFunc)
		l.limiters.Add(actor, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}
