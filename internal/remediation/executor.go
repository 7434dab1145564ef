// Package remediation deletes offending messages, posts a transient warning
// and emits one audit record per violation.
package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"guardbot/internal/domain"
	"guardbot/internal/messages"
	"guardbot/internal/metrics"
	"guardbot/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	DefaultLookbackLimit = 100
	DefaultBulkMaxAge    = 14 * 24 * time.Hour
	DefaultBulkMaxBatch  = 100
	DefaultWarningTTL    = 10 * time.Second
	DefaultDeleteRate    = 5
)

// ChannelMessage is the slice of a channel history entry needed to select
// an actor's recent messages.
type ChannelMessage struct {
	ID        domain.MessageID
	AuthorID  domain.ActorID
	Timestamp time.Time
}

type Gateway interface {
	DeleteMessage(ctx context.Context, channel domain.ChannelID, id domain.MessageID) error
	BulkDeleteMessages(ctx context.Context, channel domain.ChannelID, ids []domain.MessageID) error
	RecentMessages(ctx context.Context, channel domain.ChannelID, limit int) ([]ChannelMessage, error)
	SendMessage(ctx context.Context, channel domain.ChannelID, text string) (domain.MessageID, error)
}

type AuditSink interface {
	RecordAudit(ctx context.Context, rec domain.AuditRecord) error
}

type Config struct {
	Window        time.Duration
	LookbackLimit int
	BulkMaxAge    time.Duration
	BulkMaxBatch  int
	WarningTTL    time.Duration
	DeleteRate    rate.Limit
	DeleteBurst   int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.LookbackLimit <= 0 {
		c.LookbackLimit = DefaultLookbackLimit
	}
	if c.BulkMaxAge <= 0 {
		c.BulkMaxAge = DefaultBulkMaxAge
	}
	if c.BulkMaxBatch <= 1 {
		c.BulkMaxBatch = DefaultBulkMaxBatch
	}
	if c.WarningTTL < 0 {
		c.WarningTTL = 0
	}
	if c.DeleteRate == 0 {
		c.DeleteRate = DefaultDeleteRate
	}
	if c.DeleteBurst <= 0 {
		c.DeleteBurst = 1
	}
	return c
}

type Report struct {
	Deleted    int
	DeletedIDs []domain.MessageID
	Failed     int
	WarningID  domain.MessageID
	Warned     bool
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithAfterFunc replaces time.AfterFunc for the warning auto-delete.
func WithAfterFunc(after func(time.Duration, func())) Option {
	return func(e *Executor) { e.after = after }
}

func WithAuditSinks(sinks ...AuditSink) Option {
	return func(e *Executor) { e.sinks = append(e.sinks, sinks...) }
}

type Executor struct {
	logger *slog.Logger
	gw     Gateway
	sinks  []AuditSink
	cfg    Config
	pacer  *rate.Limiter
	tracer trace.Tracer
	now    func() time.Time
	after  func(time.Duration, func())
	wg     sync.WaitGroup
}

func NewExecutor(logger *slog.Logger, gw Gateway, cfg Config, opts ...Option) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		logger: logger,
		gw:     gw,
		cfg:    cfg,
		pacer:  rate.NewLimiter(cfg.DeleteRate, cfg.DeleteBurst),
		tracer: otel.Tracer("remediation"),
		now:    time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs deletion, warning and audit in that order. Failures of any
// step are logged and the step is skipped.
func (e *Executor) Execute(ctx context.Context, ev domain.ViolationEvent) Report {
	ctx, span := e.tracer.Start(ctx, "Remediate", trace.WithAttributes(
		attribute.String("rule", string(ev.Rule)),
		attribute.String("actor", string(ev.Actor)),
	))
	defer span.End()

	var rep Report
	e.deleteMessages(ctx, ev, &rep)
	e.warn(ctx, ev, &rep)
	e.audit(ctx, ev, rep)

	span.SetAttributes(attribute.Int("deleted", rep.Deleted))
	return rep
}

// Wait blocks until pending warning auto-deletes have run.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) deleteMessages(ctx context.Context, ev domain.ViolationEvent, rep *Report) {
	now := e.now()
	targets := e.collectTargets(ctx, ev, now)
	if len(targets) == 0 {
		return
	}

	var bulk, single []domain.MessageID
	for _, m := range targets {
		if m.Timestamp.IsZero() || now.Sub(m.Timestamp) < e.cfg.BulkMaxAge {
			bulk = append(bulk, m.ID)
		} else {
			single = append(single, m.ID)
		}
	}
	if len(bulk) < 2 {
		single = append(bulk, single...)
		bulk = nil
	}

	for start := 0; start < len(bulk); start += e.cfg.BulkMaxBatch {
		end := min(start+e.cfg.BulkMaxBatch, len(bulk))
		batch := bulk[start:end]
		if len(batch) == 1 {
			single = append(single, batch...)
			continue
		}
		err := guard(func() error { return e.gw.BulkDeleteMessages(ctx, ev.Channel, batch) })
		if err != nil {
			e.logger.Warn("Bulk delete failed, falling back to single deletes",
				"channel_id", ev.Channel, "count", len(batch), "error", err)
			metrics.IncRemediationFailure("bulk_delete")
			single = append(single, batch...)
			continue
		}
		rep.Deleted += len(batch)
		rep.DeletedIDs = append(rep.DeletedIDs, batch...)
	}

	for _, id := range single {
		if err := e.pacer.Wait(ctx); err != nil {
			e.logger.Warn("Stopped single deletes", "channel_id", ev.Channel, "error", err)
			rep.Failed++
			continue
		}
		err := guard(func() error { return e.gw.DeleteMessage(ctx, ev.Channel, id) })
		switch {
		case err == nil, domain.IsNotFound(err):
			rep.Deleted++
			rep.DeletedIDs = append(rep.DeletedIDs, id)
		case domain.IsPermissionDenied(err):
			e.logger.Warn("No permission to delete message", "channel_id", ev.Channel, "msg_id", id)
			metrics.IncRemediationFailure("delete")
			rep.Failed++
		default:
			e.logger.Error("Failed to delete message", "channel_id", ev.Channel, "msg_id", id, "error", err)
			metrics.IncRemediationFailure("delete")
			rep.Failed++
		}
	}
}

// collectTargets returns the triggering message plus, for rate-limit
// violations, the actor's other messages inside the window.
func (e *Executor) collectTargets(ctx context.Context, ev domain.ViolationEvent, now time.Time) []ChannelMessage {
	var out []ChannelMessage
	seen := make(map[domain.MessageID]struct{})
	if ev.Message != "" {
		out = append(out, ChannelMessage{ID: ev.Message, AuthorID: ev.Actor, Timestamp: ev.MessageAt})
		seen[ev.Message] = struct{}{}
	}
	if ev.Rule != domain.RuleRateLimit || ev.Channel == "" {
		return out
	}

	window := ev.Window
	if window <= 0 {
		window = e.cfg.Window
	}
	ref := ev.At
	if ref.IsZero() {
		ref = now
	}
	cutoff := ref.Add(-window)

	var recent []ChannelMessage
	err := guard(func() error {
		var err error
		recent, err = e.gw.RecentMessages(ctx, ev.Channel, e.cfg.LookbackLimit)
		return err
	})
	if err != nil {
		e.logger.Warn("Failed to list recent messages", "channel_id", ev.Channel, "error", err)
		metrics.IncRemediationFailure("history")
		return out
	}
	for _, m := range recent {
		if m.AuthorID != ev.Actor || m.Timestamp.Before(cutoff) {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

func (e *Executor) warn(ctx context.Context, ev domain.ViolationEvent, rep *Report) {
	if ev.Channel == "" {
		return
	}
	format := messages.MsgWarnBannedTerm
	if ev.Rule == domain.RuleRateLimit {
		format = messages.MsgWarnRateLimit
	}
	text := fmt.Sprintf(format, utils.Mention(string(ev.Actor)))

	var id domain.MessageID
	err := guard(func() error {
		var err error
		id, err = e.gw.SendMessage(ctx, ev.Channel, text)
		return err
	})
	if err != nil {
		e.logger.Warn("Failed to post warning", "channel_id", ev.Channel, "error", err)
		metrics.IncRemediationFailure("warn")
		return
	}
	rep.Warned = true
	rep.WarningID = id

	if e.cfg.WarningTTL == 0 || id == "" {
		return
	}
	e.wg.Add(1)
	e.after(e.cfg.WarningTTL, func() {
		defer e.wg.Done()
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := guard(func() error { return e.gw.DeleteMessage(dctx, ev.Channel, id) })
		if err != nil && !domain.IsNotFound(err) {
			e.logger.Warn("Failed to delete warning", "channel_id", ev.Channel, "msg_id", id, "error", err)
			return
		}
		metrics.AddDeletedMessages("warning_expired", 1)
	})
}

func (e *Executor) audit(ctx context.Context, ev domain.ViolationEvent, rep Report) {
	at := ev.At
	if at.IsZero() {
		at = e.now()
	}
	rec := domain.AuditRecord{
		EventID:    ev.ID,
		At:         at,
		Scope:      ev.Scope,
		Channel:    ev.Channel,
		Actor:      ev.Actor,
		Rule:       ev.Rule,
		Evidence:   ev.Evidence,
		Deleted:    rep.Deleted,
		DeletedIDs: rep.DeletedIDs,
	}

	e.logger.Info("Moderation action",
		"event_id", rec.EventID,
		"at", rec.At,
		"scope_id", rec.Scope,
		"channel_id", rec.Channel,
		"user_id", rec.Actor,
		"rule", rec.Rule,
		"evidence", rec.Evidence,
		"deleted", rec.Deleted,
		"failed", rep.Failed,
	)
	metrics.IncViolation(string(rec.Rule))
	metrics.AddDeletedMessages(string(rec.Rule), rec.Deleted)

	for _, sink := range e.sinks {
		if err := guard(func() error { return sink.RecordAudit(ctx, rec) }); err != nil {
			e.logger.Warn("Audit sink failed", "event_id", rec.EventID, "error", err)
			metrics.IncRemediationFailure("audit")
		}
	}
}

// guard turns a panic inside a gateway call into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
