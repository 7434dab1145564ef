package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"guardbot/internal/bans"
	"guardbot/internal/config"
	"guardbot/internal/domain"
	"guardbot/internal/genai"
	"guardbot/internal/messages"
	"guardbot/internal/service"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotID = "999"

func newTestHandler(t *testing.T) (*Handler, *MockService, *MockResponder) {
	t.Helper()
	cfg := &config.Config{
		CommandPrefix:         "!",
		ChatTriggerPrefix:     "ボット、",
		KeywordResponses:      config.DefaultKeywordResponses,
		TargetEmoji:           "✅",
		AuthRoleID:            "auth",
		GrantRoleID:           "grant",
		NotificationChannelID: "notify",
	}
	svc := &MockService{}
	out := &MockResponder{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, out, cfg)
	h.HandleEvent(context.Background(), &discordgo.Ready{User: &discordgo.User{ID: testBotID, Username: "guard"}})
	return h, svc, out
}

func messageEvent(content string, mentions ...*discordgo.User) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: "42", Username: "alice"},
		Mentions:  mentions,
		Timestamp: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func TestHandleEvent_ReadySetsBotID(t *testing.T) {
	h, _, _ := newTestHandler(t)
	assert.Equal(t, testBotID, h.BotID())
}

func TestToDomainMessage(t *testing.T) {
	ev := messageEvent("hi <@999>", &discordgo.User{ID: testBotID})
	ev.WebhookID = "hook"

	msg := toDomainMessage(ev.Message, testBotID)
	assert.Equal(t, domain.MessageID("m1"), msg.ID)
	assert.Equal(t, domain.ScopeID("g1"), msg.ScopeID)
	assert.Equal(t, domain.ActorID("42"), msg.AuthorID)
	assert.True(t, msg.MentionsBot)
	assert.True(t, msg.AuthorIsBot, "webhook messages are treated as bot messages")
}

func TestHandleMessage_Decisions(t *testing.T) {
	tests := []struct {
		name        string
		decision    service.Decision
		wantReplies int
	}{
		{name: "Ignored does nothing", decision: service.DecisionIgnored, wantReplies: 0},
		{name: "Remediated does nothing", decision: service.DecisionRemediated, wantReplies: 0},
		{name: "Dispatch replies to keyword", decision: service.DecisionDispatch, wantReplies: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc, out := newTestHandler(t)
			svc.ModerateMessageFunc = func(ctx context.Context, msg domain.Message) service.Outcome {
				return service.Outcome{Decision: tt.decision}
			}
			h.HandleEvent(context.Background(), messageEvent("ありがとう"))
			assert.Len(t, out.Replies(), tt.wantReplies)
		})
	}
}

func TestHandleMessage_KeywordReply(t *testing.T) {
	h, _, out := newTestHandler(t)
	h.HandleEvent(context.Background(), messageEvent("今日はありがとう！"))

	replies := out.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, domain.ChannelID("c1"), replies[0].Channel)
	assert.Equal(t, config.DefaultKeywordResponses["ありがとう"], replies[0].Text)
}

func TestHandleMessage_ChatTrigger(t *testing.T) {
	tests := []struct {
		name       string
		event      *discordgo.MessageCreate
		wantPrompt string
	}{
		{name: "Mention", event: messageEvent("<@999> 元気？", &discordgo.User{ID: testBotID}), wantPrompt: "元気？"},
		{name: "Nickname mention", event: messageEvent("<@!999>  天気は", &discordgo.User{ID: testBotID}), wantPrompt: "天気は"},
		{name: "Prefix", event: messageEvent("ボット、こんにちは"), wantPrompt: "こんにちは"},
		{name: "Ask command", event: messageEvent("!ask what is go"), wantPrompt: "what is go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc, out := newTestHandler(t)
			h.HandleEvent(context.Background(), tt.event)
			h.Wait()

			assert.Equal(t, []string{tt.wantPrompt}, svc.Asked())
			replies := out.Replies()
			require.Len(t, replies, 1)
			assert.Equal(t, "answer", replies[0].Text)
		})
	}
}

func TestHandleMessage_EmptyPromptsAreNotSent(t *testing.T) {
	h, svc, out := newTestHandler(t)
	h.HandleEvent(context.Background(), messageEvent("<@999>", &discordgo.User{ID: testBotID}))
	h.HandleEvent(context.Background(), messageEvent("ボット、  "))
	h.HandleEvent(context.Background(), messageEvent("just chatting"))
	h.Wait()

	assert.Empty(t, svc.Asked())
	assert.Empty(t, out.Replies())
}

func TestHandleMessage_AskDoesNotBlockModeration(t *testing.T) {
	h, svc, out := newTestHandler(t)
	release := make(chan struct{})
	askStarted := make(chan struct{})
	svc.AskFunc = func(ctx context.Context, actor domain.ActorID, prompt string) (genai.Result, error) {
		close(askStarted)
		<-release
		return genai.Result{Text: "late answer"}, nil
	}
	moderated := make(chan domain.ActorID, 2)
	svc.ModerateMessageFunc = func(ctx context.Context, msg domain.Message) service.Outcome {
		moderated <- msg.AuthorID
		if msg.AuthorID == "43" {
			return service.Outcome{Decision: service.DecisionRemediated, Rule: domain.RuleBannedTerm}
		}
		return service.Outcome{Decision: service.DecisionDispatch}
	}

	other := messageEvent("discord.gg/x")
	other.Author = &discordgo.User{ID: "43", Username: "bob"}

	done := make(chan struct{})
	go func() {
		h.HandleEvent(context.Background(), messageEvent("!ask hello"))
		<-askStarted
		h.HandleEvent(context.Background(), other)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second message waited for the chat request")
	}
	assert.Equal(t, domain.ActorID("42"), <-moderated)
	assert.Equal(t, domain.ActorID("43"), <-moderated)
	assert.Empty(t, out.Replies(), "answer not sent before the request finishes")

	close(release)
	h.Wait()
	replies := out.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "late answer", replies[0].Text)
}

func TestHandleMessage_AskOutlivesEventContext(t *testing.T) {
	h, svc, out := newTestHandler(t)
	svc.AskFunc = func(ctx context.Context, actor domain.ActorID, prompt string) (genai.Result, error) {
		time.Sleep(10 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return genai.Result{}, err
		}
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "chat requests are bounded")
		return genai.Result{Text: "ok"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.HandleEvent(ctx, messageEvent("!ask hello"))
	cancel()
	h.Wait()

	replies := out.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "ok", replies[0].Text)
}

func TestAskErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "No credentials", err: genai.ErrNoCredentials, want: messages.MsgAskNoCredentials},
		{name: "Throttled", err: service.ErrAskThrottled, want: messages.MsgAskThrottled},
		{name: "Exhausted", err: &genai.ExhaustedError{}, want: messages.MsgAskExhausted},
		{name: "Other", err: errors.New("boom"), want: messages.MsgAskFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, askErrorText(tt.err))
		})
	}
}

func TestHandleMessage_AskFailureReplies(t *testing.T) {
	h, svc, out := newTestHandler(t)
	svc.AskFunc = func(ctx context.Context, actor domain.ActorID, prompt string) (genai.Result, error) {
		return genai.Result{}, genai.ErrNoCredentials
	}
	h.HandleEvent(context.Background(), messageEvent("!ask hello"))
	h.Wait()

	replies := out.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, messages.MsgAskNoCredentials, replies[0].Text)
}

func TestReply_TruncatesLongText(t *testing.T) {
	long := make([]rune, 2500)
	for i := range long {
		long[i] = 'あ'
	}
	got := truncate(string(long), maxMessageLength)
	assert.Equal(t, maxMessageLength, len([]rune(got)))
	assert.Equal(t, "short", truncate("short", maxMessageLength))
}

func TestParseBanDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "2", want: 2 * time.Hour},
		{in: "1.5", want: 90 * time.Minute},
		{in: "90m", want: 90 * time.Minute},
		{in: "0", want: 0},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseBanDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommand_TimeBan(t *testing.T) {
	h, svc, out := newTestHandler(t)
	var gotScope domain.ScopeID
	var gotActor domain.ActorID
	var gotDuration time.Duration
	deadline := time.Date(2025, 1, 1, 14, 0, 0, 0, time.UTC)
	svc.TempBanFunc = func(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, d time.Duration, reason string) (bans.PendingBan, error) {
		gotScope, gotActor, gotDuration = scope, actor, d
		return bans.PendingBan{Scope: scope, Actor: actor, Deadline: deadline, Reason: reason}, nil
	}

	h.HandleEvent(context.Background(), messageEvent("!timeban <@7> 2 spamming links"))

	assert.Equal(t, domain.ScopeID("g1"), gotScope)
	assert.Equal(t, domain.ActorID("7"), gotActor)
	assert.Equal(t, 2*time.Hour, gotDuration)
	replies := out.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, fmt.Sprintf(messages.MsgTimeBanDone, "<@7>", 2*time.Hour, deadline.Unix()), replies[0].Text)
}

func TestCommand_TimeBanErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		banErr  error
		want    string
	}{
		{name: "Missing args", content: "!timeban <@7>", want: fmt.Sprintf(messages.MsgTimeBanUsage, "!")},
		{name: "Bad mention", content: "!timeban bob 2", want: fmt.Sprintf(messages.MsgTimeBanUsage, "!")},
		{name: "Bad duration", content: "!timeban <@7> soon", want: fmt.Sprintf(messages.MsgTimeBanInvalid, errors.New(`invalid duration "soon"`))},
		{name: "Rejected duration", content: "!timeban <@7> 9999", banErr: bans.ErrInvalidDuration, want: fmt.Sprintf(messages.MsgTimeBanInvalid, bans.ErrInvalidDuration)},
		{name: "Ban refused", content: "!timeban <@7> 2", banErr: domain.ErrPermissionDenied, want: fmt.Sprintf(messages.MsgTimeBanFailed, domain.ErrPermissionDenied)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc, out := newTestHandler(t)
			svc.TempBanFunc = func(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, d time.Duration, reason string) (bans.PendingBan, error) {
				return bans.PendingBan{}, tt.banErr
			}
			h.HandleEvent(context.Background(), messageEvent(tt.content))

			replies := out.Replies()
			require.Len(t, replies, 1)
			assert.Equal(t, tt.want, replies[0].Text)
		})
	}
}

func TestCommand_RequiresPermission(t *testing.T) {
	tests := []struct {
		content  string
		wantPerm int64
	}{
		{content: "!timeban <@7> 2", wantPerm: discordgo.PermissionBanMembers},
		{content: "!unban <@7>", wantPerm: discordgo.PermissionBanMembers},
		{content: "!bans", wantPerm: discordgo.PermissionBanMembers},
		{content: "!banword add spam", wantPerm: discordgo.PermissionManageMessages},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			h, svc, out := newTestHandler(t)
			var asked int64
			out.HasPermissionFunc = func(ctx context.Context, channel domain.ChannelID, actor domain.ActorID, perm int64) (bool, error) {
				asked = perm
				return false, nil
			}
			called := false
			svc.TempBanFunc = func(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, d time.Duration, reason string) (bans.PendingBan, error) {
				called = true
				return bans.PendingBan{}, nil
			}
			svc.AddBannedTermFunc = func(ctx context.Context, term string) bool {
				called = true
				return true
			}

			h.HandleEvent(context.Background(), messageEvent(tt.content))

			assert.Equal(t, tt.wantPerm, asked)
			assert.False(t, called)
			replies := out.Replies()
			require.Len(t, replies, 1)
			assert.Equal(t, messages.MsgNoPermission, replies[0].Text)
		})
	}
}

func TestCommand_PermissionLookupError(t *testing.T) {
	h, _, out := newTestHandler(t)
	out.HasPermissionFunc = func(ctx context.Context, channel domain.ChannelID, actor domain.ActorID, perm int64) (bool, error) {
		return false, domain.ErrTransient
	}
	h.HandleEvent(context.Background(), messageEvent("!bans"))

	replies := out.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, messages.MsgCommandError, replies[0].Text)
}

func TestCommand_UnbanAndBans(t *testing.T) {
	h, svc, out := newTestHandler(t)
	deadline := time.Date(2025, 1, 1, 14, 0, 0, 0, time.UTC)
	svc.ListBansFunc = func(ctx context.Context, scope domain.ScopeID) []bans.PendingBan {
		return []bans.PendingBan{{Scope: scope, Actor: "7", Deadline: deadline}}
	}
	svc.UnbanFunc = func(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) (bool, error) {
		if actor == "8" {
			return false, domain.ErrPermissionDenied
		}
		return true, nil
	}

	h.HandleEvent(context.Background(), messageEvent("!bans"))
	h.HandleEvent(context.Background(), messageEvent("!unban <@7>"))
	h.HandleEvent(context.Background(), messageEvent("!unban <@8>"))
	h.HandleEvent(context.Background(), messageEvent("!unban"))

	replies := out.Replies()
	require.Len(t, replies, 4)
	assert.Equal(t, messages.MsgBansHeader+"\n"+fmt.Sprintf(messages.MsgBansLine, "<@7>", deadline.Unix()), replies[0].Text)
	assert.Equal(t, fmt.Sprintf(messages.MsgUnbanDone, "<@7>"), replies[1].Text)
	assert.Equal(t, fmt.Sprintf(messages.MsgUnbanFail, domain.ErrPermissionDenied), replies[2].Text)
	assert.Equal(t, fmt.Sprintf(messages.MsgUnbanUsage, "!"), replies[3].Text)
}

func TestCommand_BansEmpty(t *testing.T) {
	h, _, out := newTestHandler(t)
	h.HandleEvent(context.Background(), messageEvent("!bans"))

	replies := out.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, messages.MsgBansEmpty, replies[0].Text)
}

func TestCommand_BanWord(t *testing.T) {
	h, svc, out := newTestHandler(t)
	terms := map[string]bool{"spam": true}
	svc.AddBannedTermFunc = func(ctx context.Context, term string) bool {
		if terms[term] {
			return false
		}
		terms[term] = true
		return true
	}
	svc.RemoveBannedTermFunc = func(ctx context.Context, term string) bool {
		if !terms[term] {
			return false
		}
		delete(terms, term)
		return true
	}
	svc.ListBannedTermsFunc = func(ctx context.Context) []string { return []string{"free nitro", "spam"} }

	for _, content := range []string{
		"!banword add free nitro",
		"!banword add spam",
		"!banword remove spam",
		"!banword remove spam",
		"!banword list",
		"!banword add",
		"!banword frobnicate",
	} {
		h.HandleEvent(context.Background(), messageEvent(content))
	}

	want := []string{
		fmt.Sprintf(messages.MsgBanWordAdded, "free nitro"),
		fmt.Sprintf(messages.MsgBanWordExists, "spam"),
		fmt.Sprintf(messages.MsgBanWordRemoved, "spam"),
		fmt.Sprintf(messages.MsgBanWordMissing, "spam"),
		fmt.Sprintf(messages.MsgBanWordHeader, 2) + "\nfree nitro, spam",
		fmt.Sprintf(messages.MsgBanWordUsage, "!"),
		fmt.Sprintf(messages.MsgBanWordUsage, "!"),
	}
	replies := out.Replies()
	require.Len(t, replies, len(want))
	for i, w := range want {
		assert.Equal(t, w, replies[i].Text, "reply %d", i)
	}
}

func TestCommand_UnknownFallsThrough(t *testing.T) {
	h, svc, out := newTestHandler(t)
	h.HandleEvent(context.Background(), messageEvent("!dance ありがとう"))

	assert.Empty(t, svc.Asked())
	replies := out.Replies()
	require.Len(t, replies, 1, "unknown commands fall through to keyword replies")
	assert.Equal(t, config.DefaultKeywordResponses["ありがとう"], replies[0].Text)
}

func TestHandleEvent_UnknownTypeIsIgnored(t *testing.T) {
	h, _, out := newTestHandler(t)
	assert.NotPanics(t, func() {
		h.HandleEvent(context.Background(), &discordgo.TypingStart{})
		h.HandleEvent(context.Background(), &discordgo.MessageCreate{})
	})
	assert.Empty(t, out.Replies())
}
