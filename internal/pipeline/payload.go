package pipeline

import (
	"time"

	"guardbot/internal/domain"
)

type Payload struct {
	ScopeID   domain.ScopeID
	ChannelID domain.ChannelID
	MessageID domain.MessageID
	SenderID  domain.ActorID
	Text      string
	Timestamp time.Time
}

// FromMessage builds the payload checked by the filter chain.
func FromMessage(msg domain.Message) Payload {
	return Payload{
		ScopeID:   msg.ScopeID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		SenderID:  msg.AuthorID,
		Text:      msg.Content,
		Timestamp: msg.Timestamp,
	}
}
