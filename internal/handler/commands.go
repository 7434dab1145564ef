package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"guardbot/internal/domain"
	"guardbot/internal/genai"
	"guardbot/internal/messages"
	"guardbot/internal/service"
	"guardbot/internal/utils"

	"github.com/bwmarrin/discordgo"
)

// dispatch routes a message that passed moderation: commands first, then
// keyword replies, then the chat trigger.
func (h *Handler) dispatch(ctx context.Context, msg domain.Message) {
	text := strings.TrimSpace(msg.Content)
	if prefix := h.config.CommandPrefix; prefix != "" && strings.HasPrefix(text, prefix) {
		if h.handleCommand(ctx, msg, strings.TrimPrefix(text, prefix)) {
			return
		}
	}
	if h.replyKeyword(ctx, msg) {
		return
	}
	if prompt, ok := h.chatPrompt(msg); ok {
		h.answerAsync(ctx, msg, prompt)
	}
}

// handleCommand reports whether body named a known command.
func (h *Handler) handleCommand(ctx context.Context, msg domain.Message, body string) bool {
	args := strings.Fields(body)
	if len(args) == 0 {
		return false
	}
	name := strings.ToLower(args[0])
	args = args[1:]

	switch name {
	case "timeban":
		if h.authorize(ctx, msg, discordgo.PermissionBanMembers) {
			h.cmdTimeBan(ctx, msg, args)
		}
	case "unban":
		if h.authorize(ctx, msg, discordgo.PermissionBanMembers) {
			h.cmdUnban(ctx, msg, args)
		}
	case "bans":
		if h.authorize(ctx, msg, discordgo.PermissionBanMembers) {
			h.cmdBans(ctx, msg)
		}
	case "banword":
		if h.authorize(ctx, msg, discordgo.PermissionManageMessages) {
			h.cmdBanWord(ctx, msg, args)
		}
	case "ask":
		prompt := strings.TrimSpace(strings.Join(args, " "))
		if prompt == "" {
			h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgAskUsage, h.config.CommandPrefix))
			return true
		}
		h.answerAsync(ctx, msg, prompt)
	default:
		return false
	}
	return true
}

func (h *Handler) authorize(ctx context.Context, msg domain.Message, perm int64) bool {
	ok, err := h.out.HasPermission(ctx, msg.ChannelID, msg.AuthorID, perm)
	if err != nil {
		h.logger.Error("Failed to resolve permissions", "channel_id", msg.ChannelID, "user_id", msg.AuthorID, "error", err)
		h.reply(ctx, msg.ChannelID, messages.MsgCommandError)
		return false
	}
	if !ok {
		h.logger.Warn("Unauthorized command", "channel_id", msg.ChannelID, "user_id", msg.AuthorID)
		h.reply(ctx, msg.ChannelID, messages.MsgNoPermission)
		return false
	}
	return true
}

func (h *Handler) cmdTimeBan(ctx context.Context, msg domain.Message, args []string) {
	usage := fmt.Sprintf(messages.MsgTimeBanUsage, h.config.CommandPrefix)
	if len(args) < 2 {
		h.reply(ctx, msg.ChannelID, usage)
		return
	}
	target, ok := utils.ParseUserMention(args[0])
	if !ok {
		h.reply(ctx, msg.ChannelID, usage)
		return
	}
	d, err := parseBanDuration(args[1])
	if err != nil {
		h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgTimeBanInvalid, err))
		return
	}
	reason := strings.Join(args[2:], " ")
	if reason == "" {
		reason = "-"
	}

	ban, err := h.svc.TempBan(ctx, msg.ScopeID, domain.ActorID(target), d,
		fmt.Sprintf(messages.MsgTimeBanReason, msg.AuthorName, reason))
	if err != nil {
		h.logger.Error("Temp ban failed", "scope_id", msg.ScopeID, "target_id", target, "error", err)
		if domain.IsConfiguration(err) {
			h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgTimeBanInvalid, err))
			return
		}
		h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgTimeBanFailed, err))
		return
	}
	h.logger.Info("Temp ban scheduled",
		"scope_id", msg.ScopeID,
		"target_id", target,
		"moderator_id", msg.AuthorID,
		"deadline", ban.Deadline,
	)
	h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgTimeBanDone, utils.Mention(target), d, ban.Deadline.Unix()))
}

// parseBanDuration accepts a bare number of hours ("2", "1.5") or a Go
// duration string ("90m").
func parseBanDuration(s string) (time.Duration, error) {
	if hours, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(hours * float64(time.Hour)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func (h *Handler) cmdUnban(ctx context.Context, msg domain.Message, args []string) {
	if len(args) < 1 {
		h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgUnbanUsage, h.config.CommandPrefix))
		return
	}
	target, ok := utils.ParseUserMention(args[0])
	if !ok {
		h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgUnbanUsage, h.config.CommandPrefix))
		return
	}
	if _, err := h.svc.Unban(ctx, msg.ScopeID, domain.ActorID(target)); err != nil {
		h.logger.Error("Unban failed", "scope_id", msg.ScopeID, "target_id", target, "error", err)
		h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgUnbanFail, err))
		return
	}
	h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgUnbanDone, utils.Mention(target)))
}

func (h *Handler) cmdBans(ctx context.Context, msg domain.Message) {
	pending := h.svc.ListBans(ctx, msg.ScopeID)
	if len(pending) == 0 {
		h.reply(ctx, msg.ChannelID, messages.MsgBansEmpty)
		return
	}
	var sb strings.Builder
	sb.WriteString(messages.MsgBansHeader)
	for _, b := range pending {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf(messages.MsgBansLine, utils.Mention(string(b.Actor)), b.Deadline.Unix()))
	}
	h.reply(ctx, msg.ChannelID, sb.String())
}

func (h *Handler) cmdBanWord(ctx context.Context, msg domain.Message, args []string) {
	usage := fmt.Sprintf(messages.MsgBanWordUsage, h.config.CommandPrefix)
	if len(args) == 0 {
		h.reply(ctx, msg.ChannelID, usage)
		return
	}
	term := strings.Join(args[1:], " ")

	switch strings.ToLower(args[0]) {
	case "add":
		if utils.NormalizeTerm(term) == "" {
			h.reply(ctx, msg.ChannelID, usage)
			return
		}
		if h.svc.AddBannedTerm(ctx, term) {
			h.logger.Info("Banned term added", "scope_id", msg.ScopeID, "user_id", msg.AuthorID)
			h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgBanWordAdded, utils.NormalizeTerm(term)))
		} else {
			h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgBanWordExists, utils.NormalizeTerm(term)))
		}
	case "remove":
		if utils.NormalizeTerm(term) == "" {
			h.reply(ctx, msg.ChannelID, usage)
			return
		}
		if h.svc.RemoveBannedTerm(ctx, term) {
			h.logger.Info("Banned term removed", "scope_id", msg.ScopeID, "user_id", msg.AuthorID)
			h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgBanWordRemoved, utils.NormalizeTerm(term)))
		} else {
			h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgBanWordMissing, utils.NormalizeTerm(term)))
		}
	case "list":
		terms := h.svc.ListBannedTerms(ctx)
		if len(terms) == 0 {
			h.reply(ctx, msg.ChannelID, messages.MsgBanWordEmpty)
			return
		}
		h.reply(ctx, msg.ChannelID, fmt.Sprintf(messages.MsgBanWordHeader, len(terms))+"\n"+strings.Join(terms, ", "))
	default:
		h.reply(ctx, msg.ChannelID, usage)
	}
}

// replyKeyword answers the first configured keyword found in the message.
// Keywords are checked in sorted order so the choice is stable.
func (h *Handler) replyKeyword(ctx context.Context, msg domain.Message) bool {
	if len(h.config.KeywordResponses) == 0 {
		return false
	}
	lower := strings.ToLower(msg.Content)
	keys := make([]string, 0, len(h.config.KeywordResponses))
	for k := range h.config.KeywordResponses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			h.reply(ctx, msg.ChannelID, h.config.KeywordResponses[k])
			return true
		}
	}
	return false
}

// chatPrompt extracts a question addressed to the bot, either by mention or
// by the configured trigger prefix.
func (h *Handler) chatPrompt(msg domain.Message) (string, bool) {
	text := strings.TrimSpace(msg.Content)
	if msg.MentionsBot {
		if id := h.BotID(); id != "" {
			text = strings.ReplaceAll(text, "<@"+id+">", "")
			text = strings.ReplaceAll(text, "<@!"+id+">", "")
		}
		text = strings.TrimSpace(text)
		return text, text != ""
	}
	if prefix := h.config.ChatTriggerPrefix; prefix != "" && strings.HasPrefix(text, prefix) {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
		return text, text != ""
	}
	return "", false
}

// answerAsync runs the chat request off the event loop. The request keeps
// the event's trace but not its cancellation, and is bounded by ASK_TIMEOUT.
func (h *Handler) answerAsync(ctx context.Context, msg domain.Message, prompt string) {
	timeout := h.config.AskTimeout
	if timeout <= 0 {
		timeout = defaultAskTimeout
	}
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Chat request panicked", "scope_id", msg.ScopeID, "user_id", msg.AuthorID, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		h.answer(ctx, msg, prompt)
	}()
}

func (h *Handler) answer(ctx context.Context, msg domain.Message, prompt string) {
	res, err := h.svc.Ask(ctx, msg.AuthorID, prompt)
	if err != nil {
		h.logger.Warn("Chat request failed", "scope_id", msg.ScopeID, "user_id", msg.AuthorID, "error", err)
		h.reply(ctx, msg.ChannelID, askErrorText(err))
		return
	}
	h.logger.Info("Chat request answered", "scope_id", msg.ScopeID, "user_id", msg.AuthorID, "credential", res.Label)
	h.reply(ctx, msg.ChannelID, res.Text)
}

func askErrorText(err error) string {
	switch {
	case errors.Is(err, genai.ErrNoCredentials):
		return messages.MsgAskNoCredentials
	case errors.Is(err, service.ErrAskThrottled):
		return messages.MsgAskThrottled
	case errors.Is(err, genai.ErrChainExhausted):
		return messages.MsgAskExhausted
	}
	return messages.MsgAskFailed
}
