package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"guardbot/internal/bannedterms"
	"guardbot/internal/bans"
	"guardbot/internal/domain"
	"guardbot/internal/genai"
	"guardbot/internal/metrics"
	"guardbot/internal/pipeline"
	"guardbot/internal/pipeline/filters"
	"guardbot/internal/ratewindow"
	"guardbot/internal/remediation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrAskThrottled = errors.New("too many questions")

type Service interface {
	ModerateMessage(ctx context.Context, msg domain.Message) Outcome
	TempBan(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, d time.Duration, reason string) (bans.PendingBan, error)
	Unban(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) (bool, error)
	ListBans(ctx context.Context, scope domain.ScopeID) []bans.PendingBan
	AddBannedTerm(ctx context.Context, term string) bool
	RemoveBannedTerm(ctx context.Context, term string) bool
	ListBannedTerms(ctx context.Context) []string
	Ask(ctx context.Context, actor domain.ActorID, prompt string) (genai.Result, error)
	StartMetricsUpdater(ctx context.Context)
	StartJanitor(ctx context.Context, every time.Duration)
	Shutdown()
}

// Remediator is satisfied by *remediation.Executor.
type Remediator interface {
	Execute(ctx context.Context, ev domain.ViolationEvent) remediation.Report
}

// PermissionResolver reports whether actor is exempt from moderation in
// the channel (administrator or manage-messages).
type PermissionResolver interface {
	IsExempt(ctx context.Context, scope domain.ScopeID, channel domain.ChannelID, actor domain.ActorID) (bool, error)
}

type Decision int

const (
	DecisionIgnored Decision = iota
	DecisionDispatch
	DecisionRemediated
)

func (d Decision) String() string {
	switch d {
	case DecisionIgnored:
		return "ignored"
	case DecisionDispatch:
		return "dispatch"
	case DecisionRemediated:
		return "remediated"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

type Outcome struct {
	Decision Decision
	Rule     domain.Rule
	Evidence string
	Report   remediation.Report
}

type Components struct {
	Tracker           *ratewindow.Tracker
	Terms             *bannedterms.Set
	Bans              *bans.Scheduler
	Remediator        Remediator
	Chain             *genai.Chain
	Permissions       PermissionResolver
	AskLimiter        *AskLimiter
	SystemInstruction string
	Now               func() time.Time
}

type ModerationService struct {
	logger            *slog.Logger
	tracker           *ratewindow.Tracker
	terms             *bannedterms.Set
	bans              *bans.Scheduler
	remediator        Remediator
	chain             *genai.Chain
	permissions       PermissionResolver
	askLimiter        *AskLimiter
	systemInstruction string
	pipeline          *pipeline.Manager
	tracer            trace.Tracer
	now               func() time.Time
}

var _ Service = (*ModerationService)(nil)

func NewModerationService(logger *slog.Logger, c Components) *ModerationService {
	if c.Now == nil {
		c.Now = time.Now
	}
	rateLimitFilter := filters.NewRateLimitFilter(c.Tracker)
	wordFilter := filters.NewWordFilter(c.Terms)

	return &ModerationService{
		logger:            logger,
		tracker:           c.Tracker,
		terms:             c.Terms,
		bans:              c.Bans,
		remediator:        c.Remediator,
		chain:             c.Chain,
		permissions:       c.Permissions,
		askLimiter:        c.AskLimiter,
		systemInstruction: c.SystemInstruction,
		pipeline:          pipeline.NewManager(rateLimitFilter, wordFilter),
		tracer:            otel.Tracer("service"),
		now:               c.Now,
	}
}

// ModerateMessage runs the rate and content checks for one inbound message
// and reports what the caller should do with it next.
func (s *ModerationService) ModerateMessage(ctx context.Context, msg domain.Message) (out Outcome) {
	ctx, span := s.tracer.Start(ctx, "ModerateMessage")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Moderation panicked", "panic", r, "scope_id", msg.ScopeID, "user_id", msg.AuthorID)
			out = Outcome{Decision: DecisionIgnored}
		}
		span.SetAttributes(attribute.String("decision", out.Decision.String()))
	}()

	if msg.AuthorIsBot || msg.ScopeID == "" {
		return Outcome{Decision: DecisionIgnored}
	}
	if s.isExempt(ctx, msg) {
		return Outcome{Decision: DecisionDispatch}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	s.logger.Debug("Moderating message", "scope_id", msg.ScopeID, "user_id", msg.AuthorID)
	res, err := s.pipeline.Process(ctx, pipeline.FromMessage(msg))
	if err != nil {
		s.logger.Error("Filter chain failed", "scope_id", msg.ScopeID, "user_id", msg.AuthorID, "error", err)
		return Outcome{Decision: DecisionIgnored}
	}
	if res.IsAllowed {
		return Outcome{Decision: DecisionDispatch}
	}

	ev := domain.ViolationEvent{
		ID:        uuid.NewString(),
		Rule:      res.Rule,
		Actor:     msg.AuthorID,
		Scope:     msg.ScopeID,
		Channel:   msg.ChannelID,
		Message:   msg.ID,
		MessageAt: msg.Timestamp,
		Evidence:  res.Evidence,
		Count:     res.Count,
		Window:    s.tracker.Window(),
		At:        msg.Timestamp,
	}
	rep := s.remediator.Execute(ctx, ev)
	if ev.Rule == domain.RuleRateLimit {
		s.tracker.Reset(msg.AuthorID)
	}
	metrics.IncBotAction("remediate_" + string(ev.Rule))

	return Outcome{
		Decision: DecisionRemediated,
		Rule:     ev.Rule,
		Evidence: ev.Evidence,
		Report:   rep,
	}
}

func (s *ModerationService) isExempt(ctx context.Context, msg domain.Message) bool {
	if s.permissions == nil {
		return false
	}
	exempt, err := s.permissions.IsExempt(ctx, msg.ScopeID, msg.ChannelID, msg.AuthorID)
	if err != nil {
		s.logger.Warn("Failed to resolve permissions", "scope_id", msg.ScopeID, "user_id", msg.AuthorID, "error", err)
		return false
	}
	return exempt
}

func (s *ModerationService) TempBan(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, d time.Duration, reason string) (bans.PendingBan, error) {
	ctx, span := s.tracer.Start(ctx, "TempBan")
	defer span.End()

	ban, err := s.bans.Schedule(ctx, scope, actor, d, reason)
	if err != nil {
		return bans.PendingBan{}, err
	}
	metrics.IncBotAction("temp_ban")
	return ban, nil
}

func (s *ModerationService) Unban(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "Unban")
	defer span.End()

	existed, err := s.bans.Cancel(ctx, scope, actor, true)
	if err != nil {
		return existed, err
	}
	metrics.IncBotAction("unban")
	return existed, nil
}

func (s *ModerationService) ListBans(ctx context.Context, scope domain.ScopeID) []bans.PendingBan {
	_, span := s.tracer.Start(ctx, "ListBans")
	defer span.End()
	return s.bans.List(scope)
}

func (s *ModerationService) AddBannedTerm(ctx context.Context, term string) bool {
	_, span := s.tracer.Start(ctx, "AddBannedTerm")
	defer span.End()

	added := s.terms.Add(term)
	if added {
		metrics.SetBannedTerms(float64(s.terms.Len()))
	}
	return added
}

func (s *ModerationService) RemoveBannedTerm(ctx context.Context, term string) bool {
	_, span := s.tracer.Start(ctx, "RemoveBannedTerm")
	defer span.End()

	removed := s.terms.Remove(term)
	if removed {
		metrics.SetBannedTerms(float64(s.terms.Len()))
	}
	return removed
}

func (s *ModerationService) ListBannedTerms(ctx context.Context) []string {
	_, span := s.tracer.Start(ctx, "ListBannedTerms")
	defer span.End()
	return s.terms.List()
}

// Ask sends prompt through the credential chain. Only throttling,
// configuration and chain exhaustion errors are returned.
func (s *ModerationService) Ask(ctx context.Context, actor domain.ActorID, prompt string) (genai.Result, error) {
	ctx, span := s.tracer.Start(ctx, "Ask")
	defer span.End()

	if s.chain == nil || s.chain.Len() == 0 {
		return genai.Result{}, genai.ErrNoCredentials
	}
	if s.askLimiter != nil && !s.askLimiter.Allow(actor) {
		return genai.Result{}, ErrAskThrottled
	}

	res, err := s.chain.Try(ctx, genai.Request{Prompt: prompt, SystemInstruction: s.systemInstruction})
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.String("credential", res.Label))
	metrics.IncBotAction("ask")
	return res, nil
}

func (s *ModerationService) Shutdown() {
	s.bans.Stop()
}
