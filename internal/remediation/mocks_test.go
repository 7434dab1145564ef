package remediation

import (
	"context"
	"fmt"
	"sync"

	"guardbot/internal/domain"
)

type mockGateway struct {
	mu     sync.Mutex
	events []string

	DeleteMessageFunc      func(ctx context.Context, channel domain.ChannelID, id domain.MessageID) error
	BulkDeleteMessagesFunc func(ctx context.Context, channel domain.ChannelID, ids []domain.MessageID) error
	RecentMessagesFunc     func(ctx context.Context, channel domain.ChannelID, limit int) ([]ChannelMessage, error)
	SendMessageFunc        func(ctx context.Context, channel domain.ChannelID, text string) (domain.MessageID, error)

	deleted   []domain.MessageID
	bulkCalls [][]domain.MessageID
	sent      []string
}

func (m *mockGateway) record(ev string) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *mockGateway) DeleteMessage(ctx context.Context, channel domain.ChannelID, id domain.MessageID) error {
	m.record("delete")
	if m.DeleteMessageFunc != nil {
		if err := m.DeleteMessageFunc(ctx, channel, id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.deleted = append(m.deleted, id)
	m.mu.Unlock()
	return nil
}

func (m *mockGateway) BulkDeleteMessages(ctx context.Context, channel domain.ChannelID, ids []domain.MessageID) error {
	m.record("bulk")
	m.mu.Lock()
	m.bulkCalls = append(m.bulkCalls, append([]domain.MessageID(nil), ids...))
	m.mu.Unlock()
	if m.BulkDeleteMessagesFunc != nil {
		return m.BulkDeleteMessagesFunc(ctx, channel, ids)
	}
	return nil
}

func (m *mockGateway) RecentMessages(ctx context.Context, channel domain.ChannelID, limit int) ([]ChannelMessage, error) {
	m.record("history")
	if m.RecentMessagesFunc != nil {
		return m.RecentMessagesFunc(ctx, channel, limit)
	}
	return nil, nil
}

func (m *mockGateway) SendMessage(ctx context.Context, channel domain.ChannelID, text string) (domain.MessageID, error) {
	m.record("send")
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, channel, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return domain.MessageID(fmt.Sprintf("warn-%d", len(m.sent))), nil
}

type mockSink struct {
	records []domain.AuditRecord
	err     error
}

func (s *mockSink) RecordAudit(_ context.Context, rec domain.AuditRecord) error {
	s.records = append(s.records, rec)
	return s.err
}
