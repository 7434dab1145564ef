package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guardbot/internal/bans"
	"guardbot/internal/domain"
	"guardbot/internal/genai"
	"guardbot/internal/remediation"
)

type MockRemediator struct {
	mu          sync.Mutex
	events      []domain.ViolationEvent
	ExecuteFunc func(ctx context.Context, ev domain.ViolationEvent) remediation.Report
}

func (m *MockRemediator) Execute(ctx context.Context, ev domain.ViolationEvent) remediation.Report {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, ev)
	}
	return remediation.Report{Deleted: 1}
}

type MockPermissionResolver struct {
	calls        int
	IsExemptFunc func(ctx context.Context, scope domain.ScopeID, channel domain.ChannelID, actor domain.ActorID) (bool, error)
}

func (m *MockPermissionResolver) IsExempt(ctx context.Context, scope domain.ScopeID, channel domain.ChannelID, actor domain.ActorID) (bool, error) {
	m.calls++
	if m.IsExemptFunc != nil {
		return m.IsExemptFunc(ctx, scope, channel, actor)
	}
	return false, nil
}

type MockBanner struct {
	mu        sync.Mutex
	bans      []string
	unbans    []string
	BanFunc   func(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, reason string) error
	UnbanFunc func(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) error
}

func (m *MockBanner) Ban(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, reason string) error {
	m.mu.Lock()
	m.bans = append(m.bans, fmt.Sprintf("%s/%s", scope, actor))
	m.mu.Unlock()
	if m.BanFunc != nil {
		return m.BanFunc(ctx, scope, actor, reason)
	}
	return nil
}

func (m *MockBanner) Unban(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) error {
	m.mu.Lock()
	m.unbans = append(m.unbans, fmt.Sprintf("%s/%s", scope, actor))
	m.mu.Unlock()
	if m.UnbanFunc != nil {
		return m.UnbanFunc(ctx, scope, actor)
	}
	return nil
}

type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req genai.Request) (string, error)
}

func (m *MockGenerator) Generate(ctx context.Context, req genai.Request) (string, error) {
	return m.GenerateFunc(ctx, req)
}

type stubTimer struct{ stopped bool }

func (t *stubTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualTimers never fires on its own; tests drive expiry explicitly.
func manualTimers(time.Duration, func()) bans.Timer {
	return &stubTimer{}
}
