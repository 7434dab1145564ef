package repository

import (
	"context"
	"fmt"
	"time"

	"guardbot/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AuditRepository interface {
	RecordAudit(ctx context.Context, rec domain.AuditRecord) error
	Recent(ctx context.Context, scope domain.ScopeID, limit int) ([]domain.AuditRecord, error)
	CountSince(ctx context.Context, actor domain.ActorID, since time.Time) (int, error)
}

type PostgresAuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

// RecordAudit stores rec. A repeated event ID is ignored.
func (r *PostgresAuditRepository) RecordAudit(ctx context.Context, rec domain.AuditRecord) error {
	ids := make([]string, len(rec.DeletedIDs))
	for i, id := range rec.DeletedIDs {
		ids[i] = string(id)
	}
	entry := AuditEntry{
		EventID:    rec.EventID,
		ScopeID:    string(rec.Scope),
		ChannelID:  string(rec.Channel),
		ActorID:    string(rec.Actor),
		Rule:       string(rec.Rule),
		Evidence:   rec.Evidence,
		Deleted:    rec.Deleted,
		DeletedIDs: ids,
		At:         rec.At,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to store audit record: %w", err)
	}
	return nil
}

// Recent returns the newest records first. An empty scope matches all.
func (r *PostgresAuditRepository) Recent(ctx context.Context, scope domain.ScopeID, limit int) ([]domain.AuditRecord, error) {
	q := r.db.WithContext(ctx).Order("at DESC, id DESC")
	if scope != "" {
		q = q.Where("scope_id = ?", string(scope))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []AuditEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	out := make([]domain.AuditRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.toDomain())
	}
	return out, nil
}

func (r *PostgresAuditRepository) CountSince(ctx context.Context, actor domain.ActorID, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&AuditEntry{}).
		Where("actor_id = ? AND at >= ?", string(actor), since).
		Count(&count).Error
	return int(count), err
}

func (e AuditEntry) toDomain() domain.AuditRecord {
	ids := make([]domain.MessageID, len(e.DeletedIDs))
	for i, id := range e.DeletedIDs {
		ids[i] = domain.MessageID(id)
	}
	return domain.AuditRecord{
		EventID:    e.EventID,
		At:         e.At,
		Scope:      domain.ScopeID(e.ScopeID),
		Channel:    domain.ChannelID(e.ChannelID),
		Actor:      domain.ActorID(e.ActorID),
		Rule:       domain.Rule(e.Rule),
		Evidence:   e.Evidence,
		Deleted:    e.Deleted,
		DeletedIDs: ids,
	}
}
