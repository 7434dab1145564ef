package handler

import (
	"context"
	"unicode/utf8"

	"guardbot/internal/domain"
	"guardbot/internal/metrics"
)

// maxMessageLength is the host platform's per-message character limit.
const maxMessageLength = 2000

func (h *Handler) reply(ctx context.Context, channel domain.ChannelID, text string) {
	if err := h.out.Reply(ctx, channel, truncate(text, maxMessageLength)); err != nil {
		h.logger.Error("Failed to send reply", "channel_id", channel, "error", err)
		return
	}
	metrics.IncBotAction("reply")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
