// Package domain holds the identifiers and events shared by the moderation components.
package domain

import "time"

type (
	ActorID   string
	ScopeID   string
	ChannelID string
	MessageID string
)

type Rule string

const (
	RuleRateLimit  Rule = "rate_limit"
	RuleBannedTerm Rule = "banned_term"
)

// Message is an inbound chat message as seen by the moderation engine.
// ScopeID is empty for direct messages.
type Message struct {
	ID          MessageID
	ChannelID   ChannelID
	ScopeID     ScopeID
	AuthorID    ActorID
	AuthorName  string
	AuthorIsBot bool
	Content     string
	MentionsBot bool
	Timestamp   time.Time
}

// ViolationEvent describes a rule that fired for one message. It drives
// remediation and auditing and is never kept afterwards.
type ViolationEvent struct {
	ID        string
	Rule      Rule
	Actor     ActorID
	Scope     ScopeID
	Channel   ChannelID
	Message   MessageID
	MessageAt time.Time
	Evidence  string
	Count     int
	Window    time.Duration
	At        time.Time
}

type AuditRecord struct {
	EventID    string
	At         time.Time
	Scope      ScopeID
	Channel    ChannelID
	Actor      ActorID
	Rule       Rule
	Evidence   string
	Deleted    int
	DeletedIDs []MessageID
}
