package fleet

import (
	"context"
	"fmt"
	"sync"

	"github.com/zulandar/roundhouse/internal/platform"
)

// mockGateway is a scripted platform.Gateway. Open queues an EventReady
// unless noReady is set; collection methods serve canned data and record
// mutations for assertions.
type mockGateway struct {
	mu sync.Mutex

	selfID   string
	events   chan platform.Event
	opened   bool
	closed   bool
	failOpen error
	noReady  bool

	dms      []platform.Channel
	messages map[string][]platform.Message
	rels     []platform.Relationship
	guilds   []platform.Guild
	struct_  *platform.GuildStructure
	members  []platform.Member

	voiceChans   map[string]string
	presence     string                 // "status/activity"
	deleted      []string               // "channelID/messageID"
	removedRels  []string
	leftGuilds   []string
	createdRoles []string
	createdChans []platform.ChannelSpec
	addedRoles   []string               // "userID/roleID"
	nextChanID   int
}

func newMockGW(selfID string) *mockGateway {
	return &mockGateway{
		selfID:     selfID,
		events:     make(chan platform.Event, 16),
		messages:   make(map[string][]platform.Message),
		voiceChans: make(map[string]string),
	}
}

func (g *mockGateway) Open(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOpen != nil {
		return g.failOpen
	}
	g.opened = true
	if !g.noReady {
		g.events <- platform.Event{Kind: platform.EventReady, SelfID: g.selfID}
	}
	return nil
}

func (g *mockGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.events)
	}
	return nil
}

func (g *mockGateway) SelfID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selfID
}

func (g *mockGateway) Events() <-chan platform.Event { return g.events }

// push delivers an event as if it arrived from the platform.
func (g *mockGateway) push(evt platform.Event) {
	g.events <- evt
}

func (g *mockGateway) JoinVoice(_ context.Context, guildID, channelID string, _, _ bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voiceChans[guildID] = channelID
	return nil
}

func (g *mockGateway) LeaveVoice(_ context.Context, guildID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.voiceChans, guildID)
	return nil
}

func (g *mockGateway) VoiceChannel(guildID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.voiceChans[guildID]
}

func (g *mockGateway) SetPresence(_ context.Context, status, activity string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.presence = status + "/" + activity
	return nil
}

func (g *mockGateway) DMChannels(context.Context) ([]platform.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]platform.Channel(nil), g.dms...), nil
}

func (g *mockGateway) ChannelMessages(_ context.Context, channelID, beforeID string, _ int) ([]platform.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if beforeID != "" {
		return nil, nil // single page
	}
	return append([]platform.Message(nil), g.messages[channelID]...), nil
}

func (g *mockGateway) DeleteMessage(_ context.Context, channelID, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, channelID+"/"+messageID)
	return nil
}

func (g *mockGateway) Relationships(context.Context) ([]platform.Relationship, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]platform.Relationship(nil), g.rels...), nil
}

func (g *mockGateway) RemoveRelationship(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removedRels = append(g.removedRels, userID)
	return nil
}

func (g *mockGateway) Guilds(context.Context) ([]platform.Guild, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]platform.Guild(nil), g.guilds...), nil
}

func (g *mockGateway) LeaveGuild(_ context.Context, guildID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leftGuilds = append(g.leftGuilds, guildID)
	return nil
}

func (g *mockGateway) GuildStructure(context.Context, string) (*platform.GuildStructure, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.struct_ == nil {
		return &platform.GuildStructure{}, nil
	}
	return g.struct_, nil
}

func (g *mockGateway) CreateRole(_ context.Context, _ string, role platform.Role) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdRoles = append(g.createdRoles, role.Name)
	return "role-" + role.Name, nil
}

func (g *mockGateway) CreateChannel(_ context.Context, _ string, spec platform.ChannelSpec) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdChans = append(g.createdChans, spec)
	g.nextChanID++
	return fmt.Sprintf("new-%d", g.nextChanID), nil
}

func (g *mockGateway) GuildMembers(context.Context, string) ([]platform.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]platform.Member(nil), g.members...), nil
}

func (g *mockGateway) AddMemberRole(_ context.Context, _, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addedRoles = append(g.addedRoles, userID+"/"+roleID)
	return nil
}

var _ platform.Gateway = (*mockGateway)(nil)
