package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"guardbot/internal/config"
	"guardbot/internal/domain"
	"guardbot/internal/metrics"
	"guardbot/internal/service"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultAskTimeout = 3 * time.Minute

// Responder is the chat-side surface the handler needs beyond moderation.
type Responder interface {
	Reply(ctx context.Context, channel domain.ChannelID, text string) error
	HasPermission(ctx context.Context, channel domain.ChannelID, actor domain.ActorID, perm int64) (bool, error)
	MemberRoles(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) ([]string, error)
	AddRole(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, role string) error
	MessageAuthor(ctx context.Context, channel domain.ChannelID, id domain.MessageID) (domain.ActorID, bool, error)
}

type Handler struct {
	logger *slog.Logger
	svc    service.Service
	out    Responder
	tracer trace.Tracer
	config *config.Config

	inflight sync.WaitGroup

	mu       sync.Mutex
	botID    string
	presence map[string]discordgo.Status
}

func NewHandler(logger *slog.Logger, svc service.Service, out Responder, cfg *config.Config) *Handler {
	return &Handler{
		logger:   logger,
		svc:      svc,
		out:      out,
		tracer:   otel.Tracer("handler"),
		config:   cfg,
		presence: make(map[string]discordgo.Status),
	}
}

func (h *Handler) BotID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.botID
}

// Wait blocks until every chat request started by the handler has finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func (h *Handler) HandleEvent(ctx context.Context, ev any) {
	var span trace.Span
	if h.config.EnableTelemetry {
		ctx, span = h.tracer.Start(ctx, "HandleEvent")
		defer span.End()
	}

	start := time.Now()
	kind := "unknown"
	defer func() {
		metrics.ObserveUpdateProcessing(kind, time.Since(start).Seconds(), nil)
		if span != nil {
			span.SetAttributes(attribute.String("update_type", kind))
		}
	}()

	switch e := ev.(type) {
	case *discordgo.Ready:
		kind = "ready"
		h.handleReady(e)
	case *discordgo.GuildCreate:
		kind = "guild_create"
		h.seedPresences(e.Guild)
	case *discordgo.MessageCreate:
		kind = "message_create"
		h.handleMessageCreated(ctx, e)
	case *discordgo.MessageReactionAdd:
		kind = "reaction_add"
		h.handleReactionAdd(ctx, e)
	case *discordgo.PresenceUpdate:
		kind = "presence_update"
		h.handlePresenceUpdate(ctx, e)
	default:
		h.logger.Debug("Received unhandled event type", "type", fmt.Sprintf("%T", ev))
	}
}

func (h *Handler) handleReady(e *discordgo.Ready) {
	if e.User == nil {
		return
	}
	h.mu.Lock()
	h.botID = e.User.ID
	h.mu.Unlock()
	h.logger.Info("Bot connected", "username", e.User.Username, "id", e.User.ID, "guilds", len(e.Guilds))
}
