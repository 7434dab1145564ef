package handler

import (
	"context"
	"fmt"
	"slices"

	"guardbot/internal/domain"
	"guardbot/internal/messages"
	"guardbot/internal/metrics"

	"github.com/bwmarrin/discordgo"
)

// handleReactionAdd grants the configured role to a message's author when a
// member holding the authorizer role reacts with the target emoji.
func (h *Handler) handleReactionAdd(ctx context.Context, e *discordgo.MessageReactionAdd) {
	if e.MessageReaction == nil || h.config.GrantRoleID == "" || h.config.AuthRoleID == "" {
		return
	}
	if e.GuildID == "" || e.UserID == h.BotID() || e.Emoji.Name != h.config.TargetEmoji {
		return
	}
	scope := domain.ScopeID(e.GuildID)
	reactor := domain.ActorID(e.UserID)

	var reactorRoles []string
	if e.Member != nil {
		reactorRoles = e.Member.Roles
	} else {
		roles, err := h.out.MemberRoles(ctx, scope, reactor)
		if err != nil {
			h.logger.Warn("Failed to fetch reactor roles", "scope_id", scope, "user_id", reactor, "error", err)
			return
		}
		reactorRoles = roles
	}
	if !slices.Contains(reactorRoles, h.config.AuthRoleID) {
		return
	}

	author, isBot, err := h.out.MessageAuthor(ctx, domain.ChannelID(e.ChannelID), domain.MessageID(e.MessageID))
	if err != nil {
		h.logger.Warn("Failed to fetch reacted message", "channel_id", e.ChannelID, "message_id", e.MessageID, "error", err)
		return
	}
	if isBot {
		return
	}

	roles, err := h.out.MemberRoles(ctx, scope, author)
	if err != nil {
		h.logger.Warn("Failed to fetch author roles", "scope_id", scope, "user_id", author, "error", err)
		return
	}
	if slices.Contains(roles, h.config.GrantRoleID) {
		return
	}

	if err := h.out.AddRole(ctx, scope, author, h.config.GrantRoleID); err != nil {
		h.logger.Error("Failed to grant role", "scope_id", scope, "user_id", author, "role_id", h.config.GrantRoleID, "error", err)
		return
	}
	h.logger.Info("Role granted by reaction",
		"scope_id", scope,
		"user_id", author,
		"reactor_id", reactor,
		"role_id", h.config.GrantRoleID,
		"reason", fmt.Sprintf(messages.MsgRoleGrantReason, reactor, h.config.TargetEmoji),
	)
	metrics.IncBotAction("grant_role")
}
