package handler

import (
	"context"

	"guardbot/internal/domain"
	"guardbot/internal/service"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
)

func (h *Handler) handleMessageCreated(ctx context.Context, e *discordgo.MessageCreate) {
	if e.Message == nil || e.Author == nil {
		return
	}
	ctx, span := h.tracer.Start(ctx, "handleMessageCreated")
	defer span.End()

	msg := toDomainMessage(e.Message, h.BotID())
	span.SetAttributes(
		attribute.String("scope_id", string(msg.ScopeID)),
		attribute.String("user_id", string(msg.AuthorID)),
	)

	out := h.svc.ModerateMessage(ctx, msg)
	switch out.Decision {
	case service.DecisionIgnored:
		return
	case service.DecisionRemediated:
		h.logger.Info("Message remediated",
			"scope_id", msg.ScopeID,
			"user_id", msg.AuthorID,
			"rule", out.Rule,
			"deleted", out.Report.Deleted,
		)
		return
	}
	h.dispatch(ctx, msg)
}

func toDomainMessage(m *discordgo.Message, botID string) domain.Message {
	mentionsBot := false
	if botID != "" {
		for _, u := range m.Mentions {
			if u != nil && u.ID == botID {
				mentionsBot = true
				break
			}
		}
	}
	msg := domain.Message{
		ID:          domain.MessageID(m.ID),
		ChannelID:   domain.ChannelID(m.ChannelID),
		ScopeID:     domain.ScopeID(m.GuildID),
		Content:     m.Content,
		MentionsBot: mentionsBot,
		Timestamp:   m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = domain.ActorID(m.Author.ID)
		msg.AuthorName = m.Author.Username
		msg.AuthorIsBot = m.Author.Bot
	}
	if m.WebhookID != "" {
		msg.AuthorIsBot = true
	}
	return msg
}
