package handler

import (
	"context"
	"fmt"

	"guardbot/internal/domain"
	"guardbot/internal/messages"
	"guardbot/internal/utils"

	"github.com/bwmarrin/discordgo"
)

func (h *Handler) seedPresences(g *discordgo.Guild) {
	if g == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	// Offline members are left out of the presence list.
	for _, m := range g.Members {
		if m != nil && m.User != nil {
			h.presence[m.User.ID] = discordgo.StatusOffline
		}
	}
	for _, p := range g.Presences {
		if p != nil && p.User != nil {
			h.presence[p.User.ID] = p.Status
		}
	}
}

// handlePresenceUpdate posts a notice when a member goes online or offline.
// A member with no recorded status counts as offline.
func (h *Handler) handlePresenceUpdate(ctx context.Context, e *discordgo.PresenceUpdate) {
	if e.User == nil || e.User.ID == "" {
		return
	}
	if e.User.Bot || e.User.ID == h.BotID() {
		return
	}

	h.mu.Lock()
	before, known := h.presence[e.User.ID]
	if !known {
		before = discordgo.StatusOffline
	}
	h.presence[e.User.ID] = e.Status
	h.mu.Unlock()

	if before == e.Status || h.config.NotificationChannelID == "" {
		return
	}

	var format string
	switch {
	case e.Status == discordgo.StatusOnline:
		format = messages.MsgPresenceOnline
	case e.Status == discordgo.StatusOffline && before != discordgo.StatusOffline:
		format = messages.MsgPresenceOffline
	default:
		return
	}
	h.reply(ctx, domain.ChannelID(h.config.NotificationChannelID), fmt.Sprintf(format, displayName(e.User)))
}

func displayName(u *discordgo.User) string {
	switch {
	case u.GlobalName != "":
		return u.GlobalName
	case u.Username != "":
		return u.Username
	}
	return utils.Mention(u.ID)
}
