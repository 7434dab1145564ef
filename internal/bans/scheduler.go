// Package bans tracks temporary bans per (scope, actor) and reverts them
// when they expire.
package bans

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"guardbot/internal/domain"
	"guardbot/internal/metrics"
)

const (
	DefaultMaxDuration  = 720 * time.Hour
	DefaultUnbanTimeout = 15 * time.Second
)

var (
	ErrInvalidDuration = fmt.Errorf("invalid ban duration: %w", domain.ErrConfiguration)
	ErrMissingScope    = fmt.Errorf("missing scope: %w", domain.ErrConfiguration)
)

// Banner performs the platform-side ban and unban.
type Banner interface {
	Ban(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, reason string) error
	Unban(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) error
}

type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

type PendingBan struct {
	Scope    domain.ScopeID
	Actor    domain.ActorID
	Deadline time.Time
	Reason   string
}

type key struct {
	scope domain.ScopeID
	actor domain.ActorID
}

type entry struct {
	ban   PendingBan
	token uint64
	timer Timer
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithAfterFunc(after AfterFunc) Option {
	return func(s *Scheduler) { s.after = after }
}

func WithMaxDuration(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxDuration = d
		}
	}
}

func WithUnbanTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.unbanTimeout = d
		}
	}
}

// Scheduler holds at most one pending ban per (scope, actor). Re-scheduling
// stops the previous timer; every timer also carries a token so a fire that
// lost the race with Stop performs no unban.
type Scheduler struct {
	logger *slog.Logger
	banner Banner

	now          func() time.Time
	after        AfterFunc
	maxDuration  time.Duration
	unbanTimeout time.Duration

	mu       sync.Mutex
	pending  map[key]*entry
	inflight map[key]chan struct{}
	seq      uint64
}

func NewScheduler(logger *slog.Logger, banner Banner, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:       logger,
		banner:       banner,
		now:          time.Now,
		after:        func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		maxDuration:  DefaultMaxDuration,
		unbanTimeout: DefaultUnbanTimeout,
		pending:      make(map[key]*entry),
		inflight:     make(map[key]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) MaxDuration() time.Duration { return s.maxDuration }

// Schedule bans actor in scope now and arms the unban for now+d. If the ban
// call fails nothing is recorded.
func (s *Scheduler) Schedule(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, d time.Duration, reason string) (PendingBan, error) {
	if scope == "" {
		return PendingBan{}, ErrMissingScope
	}
	if d <= 0 || d > s.maxDuration {
		return PendingBan{}, fmt.Errorf("%w: %s not in (0, %s]", ErrInvalidDuration, d, s.maxDuration)
	}

	k := key{scope, actor}
	release, err := s.lockKey(ctx, k)
	if err != nil {
		return PendingBan{}, fmt.Errorf("ban %s in %s: %w", actor, scope, err)
	}
	defer release()

	if err := s.banner.Ban(ctx, scope, actor, reason); err != nil {
		return PendingBan{}, fmt.Errorf("ban %s in %s: %w", actor, scope, err)
	}

	ban := PendingBan{
		Scope:    scope,
		Actor:    actor,
		Deadline: s.now().Add(d),
		Reason:   reason,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pending[k]; ok && old.timer != nil {
		old.timer.Stop()
	}
	s.seq++
	token := s.seq
	e := &entry{ban: ban, token: token}
	s.pending[k] = e
	e.timer = s.after(d, func() { s.fire(k, token) })
	metrics.SetPendingBans(float64(len(s.pending)))

	s.logger.Info("Temporary ban scheduled", "scope_id", scope, "user_id", actor, "deadline", ban.Deadline)
	return ban, nil
}

// Cancel drops the pending entry and, when unban is set, lifts the ban now.
// It reports whether an entry existed.
func (s *Scheduler) Cancel(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, unban bool) (bool, error) {
	k := key{scope, actor}
	release, err := s.lockKey(ctx, k)
	if err != nil {
		return false, fmt.Errorf("unban %s in %s: %w", actor, scope, err)
	}
	defer release()

	s.mu.Lock()
	e, ok := s.pending[k]
	if ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.pending, k)
		metrics.SetPendingBans(float64(len(s.pending)))
	}
	s.mu.Unlock()

	if !unban {
		return ok, nil
	}
	if err := s.banner.Unban(ctx, scope, actor); err != nil && !domain.IsNotFound(err) {
		return ok, fmt.Errorf("unban %s in %s: %w", actor, scope, err)
	}
	return ok, nil
}

func (s *Scheduler) Pending(scope domain.ScopeID, actor domain.ActorID) (PendingBan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[key{scope, actor}]
	if !ok {
		return PendingBan{}, false
	}
	return e.ban, true
}

// List returns the pending bans of scope ordered by deadline. An empty scope
// lists every scope.
func (s *Scheduler) List(scope domain.ScopeID) []PendingBan {
	s.mu.Lock()
	out := make([]PendingBan, 0, len(s.pending))
	for k, e := range s.pending {
		if scope == "" || k.scope == scope {
			out = append(out, e.ban)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].Actor < out[j].Actor
	})
	return out
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ExpireDue runs the expiry of every entry whose deadline is not after now
// and returns how many were processed.
func (s *Scheduler) ExpireDue(ctx context.Context, now time.Time) int {
	type due struct {
		k     key
		token uint64
	}
	var list []due
	s.mu.Lock()
	for k, e := range s.pending {
		if !e.ban.Deadline.After(now) {
			list = append(list, due{k, e.token})
		}
	}
	s.mu.Unlock()

	n := 0
	for _, d := range list {
		if s.expire(ctx, d.k, d.token) {
			n++
		}
	}
	return n
}

// Stop disarms every timer. Pending entries are kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.pending {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

func (s *Scheduler) fire(k key, token uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.unbanTimeout)
	defer cancel()
	s.expire(ctx, k, token)
}

// lockKey serializes ban and unban calls for one (scope, actor), so an
// unban in flight cannot land after a newer ban.
func (s *Scheduler) lockKey(ctx context.Context, k key) (func(), error) {
	for {
		s.mu.Lock()
		busy, ok := s.inflight[k]
		if !ok {
			done := make(chan struct{})
			s.inflight[k] = done
			s.mu.Unlock()
			return func() {
				s.mu.Lock()
				delete(s.inflight, k)
				s.mu.Unlock()
				close(done)
			}, nil
		}
		s.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Scheduler) expire(ctx context.Context, k key, token uint64) bool {
	release, err := s.lockKey(ctx, k)
	if err != nil {
		s.logger.Error("Ban expiry gave up waiting", "scope_id", k.scope, "user_id", k.actor, "error", err)
		return false
	}
	defer release()

	s.mu.Lock()
	e, ok := s.pending[k]
	if !ok || e.token != token {
		s.mu.Unlock()
		s.logger.Debug("Stale ban expiry ignored", "scope_id", k.scope, "user_id", k.actor)
		return false
	}
	s.mu.Unlock()

	err = s.banner.Unban(ctx, k.scope, k.actor)
	switch {
	case err == nil:
		s.logger.Info("Temporary ban expired", "scope_id", k.scope, "user_id", k.actor)
	case domain.IsNotFound(err):
		s.logger.Info("Temporary ban already lifted", "scope_id", k.scope, "user_id", k.actor)
	default:
		s.logger.Error("Failed to lift temporary ban", "scope_id", k.scope, "user_id", k.actor, "error", err)
	}

	s.mu.Lock()
	if cur, ok := s.pending[k]; ok && cur.token == token {
		delete(s.pending, k)
	}
	metrics.SetPendingBans(float64(len(s.pending)))
	s.mu.Unlock()
	return true
}
