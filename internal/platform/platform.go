// Package platform defines the gateway abstraction the fleet core consumes.
// The real implementation (platform/discord) wraps the Discord client
// library; the core only depends on this interface and the enumerated event
// type, which keeps reconnection logic testable without a live gateway.
package platform

import (
	"context"
	"time"
)

// EventKind enumerates the gateway events the core reacts to. Events are
// delivered on a single inbound channel per session, in arrival order.
type EventKind int

const (
	// EventReady fires once the gateway handshake completes and the
	// session's own identity is resolved.
	EventReady EventKind = iota
	// EventDisconnect fires on an involuntary gateway drop.
	EventDisconnect
	// EventVoiceState fires when the session's own voice state changes:
	// joined, moved, or dropped (ChannelID empty).
	EventVoiceState
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventDisconnect:
		return "disconnect"
	case EventVoiceState:
		return "voice-state"
	}
	return "unknown"
}

// Event is one gateway event, reduced to the fields the core needs.
type Event struct {
	Kind      EventKind
	GuildID   string
	ChannelID string // voice channel for EventVoiceState; empty means dropped
	SelfID    string // set on EventReady
}

// Channel is a conversation the session can see. For direct messages,
// GuildID is empty and Recipient names the other party.
type Channel struct {
	ID        string
	GuildID   string
	Name      string
	Recipient string
}

// Message is one message in a channel, reduced to what the purge job needs.
type Message struct {
	ID       string
	AuthorID string
	SentAt   time.Time
}

// Relationship is a contact entry: a friend, a block, or a pending request.
type Relationship struct {
	UserID   string
	UserName string
	Friend   bool
}

// Guild is a community the session has joined.
type Guild struct {
	ID    string
	Name  string
	Owner bool // sessions cannot leave guilds they own
}

// Role is a guild role, used by the clone and role-sync jobs.
type Role struct {
	ID          string
	Name        string
	Color       int
	Hoist       bool
	Permissions int64
	Position    int
}

// ChannelSpec describes a channel for guild cloning. ID is the source
// channel's id, used to remap category parents onto their clones.
type ChannelSpec struct {
	ID       string
	Name     string
	Type     int
	Topic    string
	ParentID string
	Position int
}

// GuildStructure is the cloneable shape of a guild: roles and channels only,
// no members or messages.
type GuildStructure struct {
	Name     string
	Roles    []Role
	Channels []ChannelSpec
}

// Member is a guild member, used by the role-sync job.
type Member struct {
	UserID  string
	RoleIDs []string
}

// Gateway is one authenticated connection to the platform. Open performs the
// authentication handshake; readiness is signalled via EventReady on Events.
// All methods are safe for sequential use from the session that owns them.
type Gateway interface {
	Open(ctx context.Context) error
	Close() error
	// SelfID returns the authenticated user's id, or "" before EventReady.
	SelfID() string
	// Events returns the session's inbound event channel. The channel is
	// closed by Close.
	Events() <-chan Event

	// Voice.
	JoinVoice(ctx context.Context, guildID, channelID string, mute, deaf bool) error
	LeaveVoice(ctx context.Context, guildID string) error
	// VoiceChannel returns the channel the session is currently connected
	// to in the guild, or "" if none. Reads the client's state cache.
	VoiceChannel(guildID string) string

	// SetPresence publishes the session's status (online, idle, dnd,
	// invisible) and an optional activity name.
	SetPresence(ctx context.Context, status, activity string) error

	// Collections walked by batch jobs.
	DMChannels(ctx context.Context) ([]Channel, error)
	ChannelMessages(ctx context.Context, channelID, beforeID string, limit int) ([]Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	Relationships(ctx context.Context) ([]Relationship, error)
	RemoveRelationship(ctx context.Context, userID string) error
	Guilds(ctx context.Context) ([]Guild, error)
	LeaveGuild(ctx context.Context, guildID string) error

	// Guild cloning and role sync.
	GuildStructure(ctx context.Context, guildID string) (*GuildStructure, error)
	CreateRole(ctx context.Context, guildID string, role Role) (string, error)
	CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (string, error)
	GuildMembers(ctx context.Context, guildID string) ([]Member, error)
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
}

// Dialer creates a Gateway for a credential. The fleet holds one so tests
// can inject mock gateways.
type Dialer func(credential string) (Gateway, error)
