package gateway

import (
	"context"
	"fmt"

	"guardbot/internal/domain"
	"guardbot/internal/messages"
)

// AuditChannel posts a one-line summary of each audit record to a channel.
type AuditChannel struct {
	gw      *Discord
	channel domain.ChannelID
}

func NewAuditChannel(gw *Discord, channel domain.ChannelID) *AuditChannel {
	return &AuditChannel{gw: gw, channel: channel}
}

func (a *AuditChannel) RecordAudit(ctx context.Context, rec domain.AuditRecord) error {
	line := fmt.Sprintf(messages.MsgAuditLine,
		rec.At.UTC().Format("2006-01-02 15:04:05"),
		rec.Rule,
		rec.Channel,
		rec.Actor,
		rec.Evidence,
		rec.Deleted,
	)
	_, err := a.gw.SendMessage(ctx, a.channel, line)
	return err
}
