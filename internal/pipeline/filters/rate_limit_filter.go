package filters

import (
	"context"
	"fmt"
	"time"

	"guardbot/internal/domain"
	"guardbot/internal/messages"
	"guardbot/internal/pipeline"
	"guardbot/internal/ratewindow"
)

type RateLimitFilter struct {
	tracker *ratewindow.Tracker
	now     func() time.Time
}

func NewRateLimitFilter(tracker *ratewindow.Tracker) *RateLimitFilter {
	return &RateLimitFilter{
		tracker: tracker,
		now:     time.Now,
	}
}

func (f *RateLimitFilter) Name() string {
	return "rate_limit_filter"
}

func (f *RateLimitFilter) Process(_ context.Context, payload pipeline.Payload) (*pipeline.Result, error) {
	at := payload.Timestamp
	if at.IsZero() {
		at = f.now()
	}

	count, exceeded := f.tracker.RecordAndCheck(payload.SenderID, at)
	if !exceeded {
		return &pipeline.Result{IsAllowed: true}, nil
	}

	return &pipeline.Result{
		IsAllowed:  false,
		Reason:     messages.MsgReasonRateLimit,
		FilterName: f.Name(),
		Rule:       domain.RuleRateLimit,
		Evidence:   fmt.Sprintf("%d messages in %s", count, f.tracker.Window()),
		Count:      count,
	}, nil
}
