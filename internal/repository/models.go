package repository

import (
	"time"

	"github.com/lib/pq"
)

// AuditEntry is one remediation record. Rows are append-only.
type AuditEntry struct {
	ID         uint           `gorm:"primaryKey"`
	EventID    string         `gorm:"size:36;uniqueIndex"`
	ScopeID    string         `gorm:"size:32;index:idx_audit_scope_at,priority:1"`
	ChannelID  string         `gorm:"size:32"`
	ActorID    string         `gorm:"size:32;index"`
	Rule       string         `gorm:"size:32"`
	Evidence   string         `gorm:"size:512"`
	Deleted    int            `gorm:"default:0"`
	DeletedIDs pq.StringArray `gorm:"type:text[]"`
	At         time.Time      `gorm:"not null;index:idx_audit_scope_at,priority:2"`
	CreatedAt  time.Time
}
