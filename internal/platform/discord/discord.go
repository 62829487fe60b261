// Package discord implements the platform Gateway on top of the Discord
// Gateway WebSocket and REST API.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/roundhouse/internal/outcome"
	"github.com/zulandar/roundhouse/internal/platform"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for rate-limit retries.
	maxBackoff = 2 * time.Minute
	// messagePageSize is the number of messages fetched per history page.
	messagePageSize = 100
	// guildPageSize is the number of guilds fetched per page.
	guildPageSize = 200
	// memberPageSize is the number of members fetched per page.
	memberPageSize = 1000
	// eventBuffer is the inbound event channel capacity.
	eventBuffer = 64

	// relationshipFriend is the wire value for a mutual-friend entry.
	relationshipFriend = 1
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	SelfUserID() string
	ChannelVoiceJoin(guildID, channelID string, mute, deaf bool) (voiceConn, error)
	VoiceConnection(guildID string) voiceConn
	UserChannels(options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	UserGuilds(limit int, beforeID, afterID string, withCounts bool, options ...discordgo.RequestOption) ([]*discordgo.UserGuild, error)
	GuildLeave(guildID string, options ...discordgo.RequestOption) error
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	Request(method, urlStr string, data interface{}, options ...discordgo.RequestOption) ([]byte, error)
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// voiceConn abstracts a live voice connection.
type voiceConn interface {
	ChannelID() string
	Disconnect() error
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}
func (r *realSession) SelfUserID() string {
	if r.s.State != nil && r.s.State.User != nil {
		return r.s.State.User.ID
	}
	return ""
}
func (r *realSession) ChannelVoiceJoin(guildID, channelID string, mute, deaf bool) (voiceConn, error) {
	vc, err := r.s.ChannelVoiceJoin(guildID, channelID, mute, deaf)
	if err != nil {
		return nil, err
	}
	return &realVoiceConn{vc: vc}, nil
}
func (r *realSession) VoiceConnection(guildID string) voiceConn {
	r.s.RLock()
	vc := r.s.VoiceConnections[guildID]
	r.s.RUnlock()
	if vc == nil {
		return nil
	}
	return &realVoiceConn{vc: vc}
}
func (r *realSession) UserChannels(options ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	body, err := r.s.Request("GET", discordgo.EndpointUserChannels("@me"), nil, options...)
	if err != nil {
		return nil, err
	}
	var chans []*discordgo.Channel
	if err := json.Unmarshal(body, &chans); err != nil {
		return nil, err
	}
	return chans, nil
}
func (r *realSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	return r.s.ChannelMessages(channelID, limit, beforeID, afterID, aroundID, options...)
}
func (r *realSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	return r.s.ChannelMessageDelete(channelID, messageID, options...)
}
func (r *realSession) UserGuilds(limit int, beforeID, afterID string, withCounts bool, options ...discordgo.RequestOption) ([]*discordgo.UserGuild, error) {
	return r.s.UserGuilds(limit, beforeID, afterID, withCounts, options...)
}
func (r *realSession) GuildLeave(guildID string, options ...discordgo.RequestOption) error {
	return r.s.GuildLeave(guildID, options...)
}
func (r *realSession) Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error) {
	return r.s.Guild(guildID, options...)
}
func (r *realSession) GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return r.s.GuildChannels(guildID, options...)
}
func (r *realSession) GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error) {
	return r.s.GuildRoleCreate(guildID, data, options...)
}
func (r *realSession) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return r.s.GuildChannelCreateComplex(guildID, data, options...)
}
func (r *realSession) GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	return r.s.GuildMembers(guildID, after, limit, options...)
}
func (r *realSession) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	return r.s.GuildMemberRoleAdd(guildID, userID, roleID, options...)
}
func (r *realSession) Request(method, urlStr string, data interface{}, options ...discordgo.RequestOption) ([]byte, error) {
	return r.s.Request(method, urlStr, data, options...)
}
func (r *realSession) UpdateStatusComplex(usd discordgo.UpdateStatusData) error {
	return r.s.UpdateStatusComplex(usd)
}

// realVoiceConn wraps *discordgo.VoiceConnection.
type realVoiceConn struct {
	vc *discordgo.VoiceConnection
}

func (r *realVoiceConn) ChannelID() string {
	r.vc.RLock()
	defer r.vc.RUnlock()
	return r.vc.ChannelID
}
func (r *realVoiceConn) Disconnect() error { return r.vc.Disconnect() }

// Gateway implements platform.Gateway over a Discord user session.
type Gateway struct {
	sess  session
	token string

	mu      sync.Mutex
	selfID  string
	opened  bool
	closed  bool
	events  chan platform.Event
	removes []func()

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// Opts holds parameters for creating a Gateway.
type Opts struct {
	Token string // Discord account token
	// For testing: inject a mock session instead of the real client.
	Session session
}

// New creates a Gateway. No network I/O happens until Open.
func New(opts Opts) (*Gateway, error) {
	if opts.Session == nil && opts.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	return &Gateway{
		sess:        opts.Session,
		token:       opts.Token,
		events:      make(chan platform.Event, eventBuffer),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}, nil
}

// Dial is a platform.Dialer for real Discord gateways.
func Dial(credential string) (platform.Gateway, error) {
	return New(Opts{Token: credential})
}

// Open establishes the Gateway WebSocket connection and registers the event
// handlers that feed the inbound channel. Readiness is signalled by an
// EventReady once the handshake completes.
func (g *Gateway) Open(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("discord: gateway already closed")
	}
	if g.opened {
		return nil
	}

	if g.sess == nil {
		dg, err := discordgo.New(g.token)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsDirectMessages
		g.sess = &realSession{s: dg}
	}

	g.removes = append(g.removes,
		g.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			g.mu.Lock()
			g.selfID = r.User.ID
			g.mu.Unlock()
			g.emit(platform.Event{Kind: platform.EventReady, SelfID: r.User.ID})
		}),
		g.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			g.emit(platform.Event{Kind: platform.EventDisconnect})
		}),
		g.sess.AddHandler(func(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
			g.mu.Lock()
			self := g.selfID
			g.mu.Unlock()
			if v.UserID != self {
				return
			}
			g.emit(platform.Event{
				Kind:      platform.EventVoiceState,
				GuildID:   v.GuildID,
				ChannelID: v.ChannelID,
			})
		}),
	)

	if err := g.sess.Open(); err != nil {
		if isAuthError(err) {
			return fmt.Errorf("discord: open gateway: %w", outcome.ErrCredentialRejected)
		}
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	g.opened = true
	return nil
}

// Close tears down the connection and closes the event channel.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.opened = false
	removes := g.removes
	g.removes = nil
	// Closed under the mutex so emit can never send on a closed channel.
	close(g.events)
	g.mu.Unlock()

	for _, remove := range removes {
		remove()
	}
	if g.sess != nil {
		return g.sess.Close()
	}
	return nil
}

// SelfID returns the authenticated user's id, or "" before the first Ready.
func (g *Gateway) SelfID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selfID
}

// Events returns the inbound event channel.
func (g *Gateway) Events() <-chan platform.Event {
	return g.events
}

// emit delivers an event without blocking; if the consumer has fallen this
// far behind, dropping is safer than stalling the discordgo handler goroutine.
// The send happens under the mutex so it cannot race a concurrent Close.
func (g *Gateway) emit(evt platform.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	select {
	case g.events <- evt:
	default:
		log.Printf("discord: event buffer full, dropping %s", evt.Kind)
	}
}

// JoinVoice connects to a voice channel. The returned error reflects only the
// initial UDP handshake; confirmation of the final channel arrives via
// EventVoiceState and must be checked by the caller after a settle window.
func (g *Gateway) JoinVoice(ctx context.Context, guildID, channelID string, mute, deaf bool) error {
	_, err := g.sess.ChannelVoiceJoin(guildID, channelID, mute, deaf)
	if err != nil {
		return fmt.Errorf("discord: join voice %s/%s: %w", guildID, channelID, err)
	}
	return nil
}

// LeaveVoice disconnects from the guild's voice channel, if connected.
func (g *Gateway) LeaveVoice(ctx context.Context, guildID string) error {
	vc := g.sess.VoiceConnection(guildID)
	if vc == nil {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("discord: leave voice %s: %w", guildID, err)
	}
	return nil
}

// VoiceChannel returns the channel the session is connected to in the guild,
// per the client's own connection state.
func (g *Gateway) VoiceChannel(guildID string) string {
	vc := g.sess.VoiceConnection(guildID)
	if vc == nil {
		return ""
	}
	return vc.ChannelID()
}

// DMChannels lists the session's open direct-message conversations.
func (g *Gateway) DMChannels(ctx context.Context) ([]platform.Channel, error) {
	var chans []*discordgo.Channel
	err := g.retryOnRateLimit(ctx, func() error {
		var apiErr error
		chans, apiErr = g.sess.UserChannels()
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("discord: user channels: %w", err)
	}

	out := make([]platform.Channel, 0, len(chans))
	for _, ch := range chans {
		c := platform.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}
		if len(ch.Recipients) > 0 {
			c.Recipient = ch.Recipients[0].Username
		}
		out = append(out, c)
	}
	return out, nil
}

// ChannelMessages fetches one page of messages before the given cursor.
func (g *Gateway) ChannelMessages(ctx context.Context, channelID, beforeID string, limit int) ([]platform.Message, error) {
	if limit <= 0 || limit > messagePageSize {
		limit = messagePageSize
	}
	var msgs []*discordgo.Message
	err := g.retryOnRateLimit(ctx, func() error {
		var apiErr error
		msgs, apiErr = g.sess.ChannelMessages(channelID, limit, beforeID, "", "")
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("discord: channel messages: %w", err)
	}

	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		msg := platform.Message{ID: m.ID, SentAt: m.Timestamp}
		if m.Author != nil {
			msg.AuthorID = m.Author.ID
		}
		out = append(out, msg)
	}
	return out, nil
}

// DeleteMessage deletes a single message.
func (g *Gateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := g.retryOnRateLimit(ctx, func() error {
		return g.sess.ChannelMessageDelete(channelID, messageID)
	})
	if err != nil {
		return fmt.Errorf("discord: delete message %s: %w", messageID, err)
	}
	return nil
}

// relationship is the wire shape of a contact entry. The client library has
// no helper for the relationships endpoint, so we hit it directly.
type relationship struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// Relationships lists the session's contacts (friends, blocks, pendings).
func (g *Gateway) Relationships(ctx context.Context) ([]platform.Relationship, error) {
	var body []byte
	err := g.retryOnRateLimit(ctx, func() error {
		var apiErr error
		body, apiErr = g.sess.Request("GET", discordgo.EndpointUsers+"@me/relationships", nil)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("discord: relationships: %w", err)
	}

	var rels []relationship
	if err := json.Unmarshal(body, &rels); err != nil {
		return nil, fmt.Errorf("discord: parse relationships: %w", err)
	}

	out := make([]platform.Relationship, 0, len(rels))
	for _, r := range rels {
		out = append(out, platform.Relationship{
			UserID:   r.User.ID,
			UserName: r.User.Username,
			Friend:   r.Type == relationshipFriend,
		})
	}
	return out, nil
}

// RemoveRelationship removes a contact entry (unfriend / unblock / decline).
func (g *Gateway) RemoveRelationship(ctx context.Context, userID string) error {
	err := g.retryOnRateLimit(ctx, func() error {
		_, apiErr := g.sess.Request("DELETE", discordgo.EndpointUsers+"@me/relationships/"+userID, nil)
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("discord: remove relationship %s: %w", userID, err)
	}
	return nil
}

// Guilds lists all guilds the session has joined, paging as needed.
func (g *Gateway) Guilds(ctx context.Context) ([]platform.Guild, error) {
	var out []platform.Guild
	afterID := ""
	for {
		var page []*discordgo.UserGuild
		err := g.retryOnRateLimit(ctx, func() error {
			var apiErr error
			page, apiErr = g.sess.UserGuilds(guildPageSize, "", afterID, false)
			return apiErr
		})
		if err != nil {
			return nil, fmt.Errorf("discord: user guilds: %w", err)
		}
		for _, ug := range page {
			out = append(out, platform.Guild{ID: ug.ID, Name: ug.Name, Owner: ug.Owner})
		}
		if len(page) < guildPageSize {
			return out, nil
		}
		afterID = page[len(page)-1].ID
	}
}

// LeaveGuild departs a guild.
func (g *Gateway) LeaveGuild(ctx context.Context, guildID string) error {
	err := g.retryOnRateLimit(ctx, func() error {
		return g.sess.GuildLeave(guildID)
	})
	if err != nil {
		return fmt.Errorf("discord: leave guild %s: %w", guildID, err)
	}
	return nil
}

// GuildStructure fetches the cloneable shape of a guild: roles and channels.
func (g *Gateway) GuildStructure(ctx context.Context, guildID string) (*platform.GuildStructure, error) {
	var guild *discordgo.Guild
	err := g.retryOnRateLimit(ctx, func() error {
		var apiErr error
		guild, apiErr = g.sess.Guild(guildID)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("discord: guild %s: %w", guildID, err)
	}

	var chans []*discordgo.Channel
	err = g.retryOnRateLimit(ctx, func() error {
		var apiErr error
		chans, apiErr = g.sess.GuildChannels(guildID)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("discord: guild channels %s: %w", guildID, err)
	}

	structure := &platform.GuildStructure{Name: guild.Name}
	for _, role := range guild.Roles {
		if role.Managed || role.Name == "@everyone" {
			continue
		}
		structure.Roles = append(structure.Roles, platform.Role{
			ID:          role.ID,
			Name:        role.Name,
			Color:       role.Color,
			Hoist:       role.Hoist,
			Permissions: role.Permissions,
			Position:    role.Position,
		})
	}
	for _, ch := range chans {
		structure.Channels = append(structure.Channels, platform.ChannelSpec{
			ID:       ch.ID,
			Name:     ch.Name,
			Type:     int(ch.Type),
			Topic:    ch.Topic,
			ParentID: ch.ParentID,
			Position: ch.Position,
		})
	}
	return structure, nil
}

// CreateRole creates a guild role and returns its id.
func (g *Gateway) CreateRole(ctx context.Context, guildID string, role platform.Role) (string, error) {
	params := &discordgo.RoleParams{
		Name:        role.Name,
		Color:       &role.Color,
		Hoist:       &role.Hoist,
		Permissions: &role.Permissions,
	}
	var created *discordgo.Role
	err := g.retryOnRateLimit(ctx, func() error {
		var apiErr error
		created, apiErr = g.sess.GuildRoleCreate(guildID, params)
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: create role %q: %w", role.Name, err)
	}
	return created.ID, nil
}

// CreateChannel creates a guild channel and returns its id.
func (g *Gateway) CreateChannel(ctx context.Context, guildID string, spec platform.ChannelSpec) (string, error) {
	data := discordgo.GuildChannelCreateData{
		Name:     spec.Name,
		Type:     discordgo.ChannelType(spec.Type),
		Topic:    spec.Topic,
		ParentID: spec.ParentID,
		Position: spec.Position,
	}
	var created *discordgo.Channel
	err := g.retryOnRateLimit(ctx, func() error {
		var apiErr error
		created, apiErr = g.sess.GuildChannelCreateComplex(guildID, data)
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: create channel %q: %w", spec.Name, err)
	}
	return created.ID, nil
}

// GuildMembers lists all members of a guild, paging as needed.
func (g *Gateway) GuildMembers(ctx context.Context, guildID string) ([]platform.Member, error) {
	var out []platform.Member
	after := ""
	for {
		var page []*discordgo.Member
		err := g.retryOnRateLimit(ctx, func() error {
			var apiErr error
			page, apiErr = g.sess.GuildMembers(guildID, after, memberPageSize)
			return apiErr
		})
		if err != nil {
			return nil, fmt.Errorf("discord: guild members %s: %w", guildID, err)
		}
		for _, m := range page {
			member := platform.Member{RoleIDs: m.Roles}
			if m.User != nil {
				member.UserID = m.User.ID
			}
			out = append(out, member)
		}
		if len(page) < memberPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// AddMemberRole grants a role to a guild member.
func (g *Gateway) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	err := g.retryOnRateLimit(ctx, func() error {
		return g.sess.GuildMemberRoleAdd(guildID, userID, roleID)
	})
	if err != nil {
		return fmt.Errorf("discord: add role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

// SetPresence publishes the session's status and optional activity over the
// gateway. It is fire-and-forget on the platform side; no REST call is made.
func (g *Gateway) SetPresence(ctx context.Context, status, activity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	usd := discordgo.UpdateStatusData{Status: status}
	if activity != "" {
		usd.Activities = []*discordgo.Activity{{
			Name: activity,
			Type: discordgo.ActivityTypeGame,
		}}
	}
	if err := g.sess.UpdateStatusComplex(usd); err != nil {
		return fmt.Errorf("discord: set presence: %w", err)
	}
	return nil
}

// isAuthError reports whether an Open failure means the token was rejected.
func isAuthError(err error) bool {
	if errors.Is(err, discordgo.ErrUnauthorized) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Authentication failed") || strings.Contains(msg, "4004")
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (g *Gateway) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err // not a rate limit error
		}

		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * g.baseBackoff
		if wait > g.maxBackoff {
			wait = g.maxBackoff
		}

		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// compile-time interface check
var _ platform.Gateway = (*Gateway)(nil)
