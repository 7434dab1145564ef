// Package ratewindow keeps a sliding window of message timestamps per actor.
package ratewindow

import (
	"context"
	"time"

	"guardbot/internal/domain"

	"github.com/puzpuzpuz/xsync/v4"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxMessages = 30
)

// Tracker answers "is this actor over the limit now". Records are pruned
// lazily on each arrival. Operations on one actor's record are serialized
// by the map's per-key compute.
type Tracker struct {
	records *xsync.Map[domain.ActorID, []time.Time]
	window  time.Duration
	max     int
}

func NewTracker(window time.Duration, maxMessages int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Tracker{
		records: xsync.NewMap[domain.ActorID, []time.Time](),
		window:  window,
		max:     maxMessages,
	}
}

func (t *Tracker) Window() time.Duration { return t.window }
func (t *Tracker) Max() int              { return t.max }

// RecordAndCheck appends now to the actor's record, drops entries older than
// now-window and reports whether the remaining count exceeds the limit.
// The record is left as is; callers reset it once remediation has run.
func (t *Tracker) RecordAndCheck(actor domain.ActorID, now time.Time) (int, bool) {
	cutoff := now.Add(-t.window)
	record, _ := t.records.Compute(actor, func(old []time.Time, _ bool) ([]time.Time, xsync.ComputeOp) {
		kept := make([]time.Time, 0, len(old)+1)
		for _, ts := range old {
			if !ts.Before(cutoff) {
				kept = append(kept, ts)
			}
		}
		return append(kept, now), xsync.UpdateOp
	})
	count := len(record)
	return count, count > t.max
}

func (t *Tracker) Reset(actor domain.ActorID) {
	t.records.Delete(actor)
}

// Len returns the number of timestamps currently held for actor.
func (t *Tracker) Len(actor domain.ActorID) int {
	record, ok := t.records.Load(actor)
	if !ok {
		return 0
	}
	return len(record)
}

// Snapshot returns a copy of the actor's record.
func (t *Tracker) Snapshot(actor domain.ActorID) []time.Time {
	record, ok := t.records.Load(actor)
	if !ok {
		return nil
	}
	out := make([]time.Time, len(record))
	copy(out, record)
	return out
}

func (t *Tracker) Actors() int {
	return t.records.Size()
}

// Sweep drops records whose newest entry fell out of the window and returns
// how many were removed.
func (t *Tracker) Sweep(now time.Time) int {
	cutoff := now.Add(-t.window)
	var stale []domain.ActorID
	t.records.Range(func(actor domain.ActorID, record []time.Time) bool {
		if len(record) == 0 || record[len(record)-1].Before(cutoff) {
			stale = append(stale, actor)
		}
		return true
	})

	removed := 0
	for _, actor := range stale {
		t.records.Compute(actor, func(old []time.Time, loaded bool) ([]time.Time, xsync.ComputeOp) {
			if !loaded {
				return old, xsync.CancelOp
			}
			if len(old) > 0 && !old[len(old)-1].Before(cutoff) {
				return old, xsync.CancelOp
			}
			removed++
			return nil, xsync.DeleteOp
		})
	}
	return removed
}

// StartJanitor sweeps idle records every interval until ctx is done.
func (t *Tracker) StartJanitor(ctx context.Context, every time.Duration, now func() time.Time) {
	if every <= 0 {
		return
	}
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep(now())
			}
		}
	}()
}
