package handler

import (
	"context"
	"sync"
	"time"

	"guardbot/internal/bans"
	"guardbot/internal/domain"
	"guardbot/internal/genai"
	"guardbot/internal/service"
)

type MockService struct {
	ModerateMessageFunc  func(ctx context.Context, msg domain.Message) service.Outcome
	TempBanFunc          func(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, d time.Duration, reason string) (bans.PendingBan, error)
	UnbanFunc            func(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) (bool, error)
	ListBansFunc         func(ctx context.Context, scope domain.ScopeID) []bans.PendingBan
	AddBannedTermFunc    func(ctx context.Context, term string) bool
	RemoveBannedTermFunc func(ctx context.Context, term string) bool
	ListBannedTermsFunc  func(ctx context.Context) []string
	AskFunc              func(ctx context.Context, actor domain.ActorID, prompt string) (genai.Result, error)

	mu    sync.Mutex
	asked []string
}

func (m *MockService) ModerateMessage(ctx context.Context, msg domain.Message) service.Outcome {
	if m.ModerateMessageFunc != nil {
		return m.ModerateMessageFunc(ctx, msg)
	}
	return service.Outcome{Decision: service.DecisionDispatch}
}

func (m *MockService) TempBan(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, d time.Duration, reason string) (bans.PendingBan, error) {
	if m.TempBanFunc != nil {
		return m.TempBanFunc(ctx, scope, actor, d, reason)
	}
	return bans.PendingBan{Scope: scope, Actor: actor, Deadline: time.Now().Add(d), Reason: reason}, nil
}

func (m *MockService) Unban(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) (bool, error) {
	if m.UnbanFunc != nil {
		return m.UnbanFunc(ctx, scope, actor)
	}
	return true, nil
}

func (m *MockService) ListBans(ctx context.Context, scope domain.ScopeID) []bans.PendingBan {
	if m.ListBansFunc != nil {
		return m.ListBansFunc(ctx, scope)
	}
	return nil
}

func (m *MockService) AddBannedTerm(ctx context.Context, term string) bool {
	if m.AddBannedTermFunc != nil {
		return m.AddBannedTermFunc(ctx, term)
	}
	return true
}

func (m *MockService) RemoveBannedTerm(ctx context.Context, term string) bool {
	if m.RemoveBannedTermFunc != nil {
		return m.RemoveBannedTermFunc(ctx, term)
	}
	return true
}

func (m *MockService) ListBannedTerms(ctx context.Context) []string {
	if m.ListBannedTermsFunc != nil {
		return m.ListBannedTermsFunc(ctx)
	}
	return nil
}

func (m *MockService) Ask(ctx context.Context, actor domain.ActorID, prompt string) (genai.Result, error) {
	m.mu.Lock()
	m.asked = append(m.asked, prompt)
	m.mu.Unlock()
	if m.AskFunc != nil {
		return m.AskFunc(ctx, actor, prompt)
	}
	return genai.Result{Text: "answer", Label: "primary"}, nil
}

func (m *MockService) Asked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.asked...)
}

func (m *MockService) StartMetricsUpdater(ctx context.Context)                {}
func (m *MockService) StartJanitor(ctx context.Context, every time.Duration) {}
func (m *MockService) Shutdown()                                             {}

type sentReply struct {
	Channel domain.ChannelID
	Text    string
}

type addedRole struct {
	Scope domain.ScopeID
	Actor domain.ActorID
	Role  string
}

type MockResponder struct {
	HasPermissionFunc func(ctx context.Context, channel domain.ChannelID, actor domain.ActorID, perm int64) (bool, error)
	MemberRolesFunc   func(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) ([]string, error)
	MessageAuthorFunc func(ctx context.Context, channel domain.ChannelID, id domain.MessageID) (domain.ActorID, bool, error)
	AddRoleErr        error

	mu      sync.Mutex
	replies []sentReply
	roles   []addedRole
}

func (m *MockResponder) Reply(ctx context.Context, channel domain.ChannelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, sentReply{Channel: channel, Text: text})
	return nil
}

func (m *MockResponder) HasPermission(ctx context.Context, channel domain.ChannelID, actor domain.ActorID, perm int64) (bool, error) {
	if m.HasPermissionFunc != nil {
		return m.HasPermissionFunc(ctx, channel, actor, perm)
	}
	return true, nil
}

func (m *MockResponder) MemberRoles(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) ([]string, error) {
	if m.MemberRolesFunc != nil {
		return m.MemberRolesFunc(ctx, scope, actor)
	}
	return nil, nil
}

func (m *MockResponder) AddRole(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, role string) error {
	if m.AddRoleErr != nil {
		return m.AddRoleErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles = append(m.roles, addedRole{Scope: scope, Actor: actor, Role: role})
	return nil
}

func (m *MockResponder) MessageAuthor(ctx context.Context, channel domain.ChannelID, id domain.MessageID) (domain.ActorID, bool, error) {
	if m.MessageAuthorFunc != nil {
		return m.MessageAuthorFunc(ctx, channel, id)
	}
	return "", false, domain.ErrNotFound
}

func (m *MockResponder) Replies() []sentReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentReply(nil), m.replies...)
}

func (m *MockResponder) Roles() []addedRole {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]addedRole(nil), m.roles...)
}
