// Package gateway adapts a discordgo session to the moderation interfaces.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"guardbot/internal/domain"
	"guardbot/internal/remediation"

	"github.com/bwmarrin/discordgo"
)

// rest is the subset of *discordgo.Session used by Discord.
type rest interface {
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

type Discord struct {
	rest  rest
	state *discordgo.State
}

func NewDiscord(s *discordgo.Session) *Discord {
	return &Discord{rest: s, state: s.State}
}

func (d *Discord) DeleteMessage(ctx context.Context, channel domain.ChannelID, id domain.MessageID) error {
	return mapError(d.rest.ChannelMessageDelete(string(channel), string(id), discordgo.WithContext(ctx)))
}

func (d *Discord) BulkDeleteMessages(ctx context.Context, channel domain.ChannelID, ids []domain.MessageID) error {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	return mapError(d.rest.ChannelMessagesBulkDelete(string(channel), raw, discordgo.WithContext(ctx)))
}

func (d *Discord) RecentMessages(ctx context.Context, channel domain.ChannelID, limit int) ([]remediation.ChannelMessage, error) {
	msgs, err := d.rest.ChannelMessages(string(channel), limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]remediation.ChannelMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil {
			continue
		}
		out = append(out, remediation.ChannelMessage{
			ID:        domain.MessageID(m.ID),
			AuthorID:  domain.ActorID(m.Author.ID),
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

// SendMessage posts text allowing only user mentions.
func (d *Discord) SendMessage(ctx context.Context, channel domain.ChannelID, text string) (domain.MessageID, error) {
	m, err := d.rest.ChannelMessageSendComplex(string(channel), &discordgo.MessageSend{
		Content: text,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return domain.MessageID(m.ID), nil
}

func (d *Discord) Reply(ctx context.Context, channel domain.ChannelID, text string) error {
	_, err := d.SendMessage(ctx, channel, text)
	return err
}

func (d *Discord) Ban(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, reason string) error {
	return mapError(d.rest.GuildBanCreateWithReason(string(scope), string(actor), reason, 0, discordgo.WithContext(ctx)))
}

func (d *Discord) Unban(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) error {
	return mapError(d.rest.GuildBanDelete(string(scope), string(actor), discordgo.WithContext(ctx)))
}

func (d *Discord) permissions(ctx context.Context, channel domain.ChannelID, actor domain.ActorID) (int64, error) {
	if d.state != nil {
		if perms, err := d.state.UserChannelPermissions(string(actor), string(channel)); err == nil {
			return perms, nil
		}
	}
	perms, err := d.rest.UserChannelPermissions(string(actor), string(channel), discordgo.WithContext(ctx))
	if err != nil {
		return 0, mapError(err)
	}
	return perms, nil
}

// IsExempt reports administrators and members who can manage messages.
func (d *Discord) IsExempt(ctx context.Context, _ domain.ScopeID, channel domain.ChannelID, actor domain.ActorID) (bool, error) {
	perms, err := d.permissions(ctx, channel, actor)
	if err != nil {
		return false, err
	}
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageMessages) != 0, nil
}

func (d *Discord) HasPermission(ctx context.Context, channel domain.ChannelID, actor domain.ActorID, perm int64) (bool, error) {
	perms, err := d.permissions(ctx, channel, actor)
	if err != nil {
		return false, err
	}
	return perms&discordgo.PermissionAdministrator != 0 || perms&perm == perm, nil
}

func (d *Discord) MemberRoles(ctx context.Context, scope domain.ScopeID, actor domain.ActorID) ([]string, error) {
	if d.state != nil {
		if m, err := d.state.Member(string(scope), string(actor)); err == nil {
			return m.Roles, nil
		}
	}
	m, err := d.rest.GuildMember(string(scope), string(actor), discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return m.Roles, nil
}

func (d *Discord) AddRole(ctx context.Context, scope domain.ScopeID, actor domain.ActorID, role string) error {
	return mapError(d.rest.GuildMemberRoleAdd(string(scope), string(actor), role, discordgo.WithContext(ctx)))
}

// MessageAuthor returns the author of a message and whether it is a bot.
func (d *Discord) MessageAuthor(ctx context.Context, channel domain.ChannelID, id domain.MessageID) (domain.ActorID, bool, error) {
	m, err := d.rest.ChannelMessage(string(channel), string(id), discordgo.WithContext(ctx))
	if err != nil {
		return "", false, mapError(err)
	}
	if m.Author == nil {
		return "", false, fmt.Errorf("message %s has no author: %w", id, domain.ErrNotFound)
	}
	return domain.ActorID(m.Author.ID), m.Author.Bot, nil
}

var notFoundCodes = map[int]bool{
	discordgo.ErrCodeUnknownMessage: true,
	discordgo.ErrCodeUnknownBan:     true,
	discordgo.ErrCodeUnknownMember:  true,
	discordgo.ErrCodeUnknownUser:    true,
	discordgo.ErrCodeUnknownChannel: true,
}

// mapError wraps Discord REST failures with the domain sentinel they
// correspond to.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return fmt.Errorf("discord: %w: %w", domain.ErrTransient, err)
	}

	if restErr.Message != nil {
		switch code := restErr.Message.Code; {
		case notFoundCodes[code]:
			return fmt.Errorf("discord: %w: %w", domain.ErrNotFound, err)
		case code == discordgo.ErrCodeMissingPermissions, code == discordgo.ErrCodeMissingAccess:
			return fmt.Errorf("discord: %w: %w", domain.ErrPermissionDenied, err)
		}
	}
	if restErr.Response != nil {
		switch status := restErr.Response.StatusCode; {
		case status == http.StatusNotFound:
			return fmt.Errorf("discord: %w: %w", domain.ErrNotFound, err)
		case status == http.StatusForbidden:
			return fmt.Errorf("discord: %w: %w", domain.ErrPermissionDenied, err)
		case status == http.StatusTooManyRequests, status >= 500:
			return fmt.Errorf("discord: %w: %w", domain.ErrTransient, err)
		}
	}
	return fmt.Errorf("discord: %w", err)
}
