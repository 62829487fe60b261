package fleet

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/roundhouse/internal/batch"
	"github.com/zulandar/roundhouse/internal/outcome"
	"github.com/zulandar/roundhouse/internal/pacing"
	"github.com/zulandar/roundhouse/internal/platform"
)

// Whitelist is a read-only snapshot of ids a batch job must never act on.
type Whitelist map[string]struct{}

// NewWhitelist builds a Whitelist from a list of ids.
func NewWhitelist(ids []string) Whitelist {
	w := make(Whitelist, len(ids))
	for _, id := range ids {
		w[id] = struct{}{}
	}
	return w
}

// CleanDMs purges the session's own messages from every open direct-message
// conversation not covered by the whitelist. One failing conversation never
// aborts the batch; progress made before a stop is preserved.
func (m *Manager) CleanDMs(ctx context.Context, id string, whitelist Whitelist) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if !s.Ready() {
		return m.record(skipped(s, "not online"))
	}
	gw := s.gateway()

	channels, err := gw.DMChannels(ctx)
	if err != nil {
		return m.record(failure(s, fmt.Sprintf("list conversations: %v", err)))
	}

	selfID := s.SelfID()
	messageGate := pacing.NewGate(m.messageDelay)
	deleted := 0

	rep, err := batch.Run(ctx, s.Runner(), channels,
		func(ctx context.Context, ch platform.Channel) error {
			n, err := purgeChannel(ctx, gw, ch.ID, selfID, messageGate)
			deleted += n
			return err
		},
		batch.Options[platform.Channel]{
			Whitelist: whitelist,
			Gate:      pacing.NewGate(m.itemDelay),
			IDOf:      func(ch platform.Channel) string { return ch.ID },
		})
	if err != nil {
		return m.record(jobRejected(s, err))
	}

	r := batchReport(s, rep, fmt.Sprintf("purged %d messages across %d conversations", deleted, rep.Succeeded))
	r.Deleted = deleted
	return m.record(r)
}

// purgeChannel walks a conversation's history newest-first and deletes the
// session's own messages, pacing each deletion. Per-message failures are
// logged and skipped; only a history fetch failure fails the conversation.
func purgeChannel(ctx context.Context, gw platform.Gateway, channelID, selfID string, gate *pacing.Gate) (int, error) {
	deleted := 0
	beforeID := ""
	for {
		msgs, err := gw.ChannelMessages(ctx, channelID, beforeID, 0)
		if err != nil {
			return deleted, fmt.Errorf("fetch history: %w", err)
		}
		if len(msgs) == 0 {
			return deleted, nil
		}
		for _, msg := range msgs {
			if msg.AuthorID != selfID {
				continue
			}
			if err := gate.Wait(ctx); err != nil {
				return deleted, err
			}
			if err := gw.DeleteMessage(ctx, channelID, msg.ID); err != nil {
				log.Printf("fleet: delete %s in %s: %v", msg.ID, channelID, err)
				continue
			}
			deleted++
		}
		beforeID = msgs[len(msgs)-1].ID
	}
}

// RemoveFriends removes every friend relationship not covered by the
// whitelist (of user ids).
func (m *Manager) RemoveFriends(ctx context.Context, id string, whitelist Whitelist) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if !s.Ready() {
		return m.record(skipped(s, "not online"))
	}
	gw := s.gateway()

	rels, err := gw.Relationships(ctx)
	if err != nil {
		return m.record(failure(s, fmt.Sprintf("list contacts: %v", err)))
	}
	var friends []platform.Relationship
	for _, r := range rels {
		if r.Friend {
			friends = append(friends, r)
		}
	}

	rep, err := batch.Run(ctx, s.Runner(), friends,
		func(ctx context.Context, r platform.Relationship) error {
			return gw.RemoveRelationship(ctx, r.UserID)
		},
		batch.Options[platform.Relationship]{
			Whitelist: whitelist,
			Gate:      pacing.NewGate(m.itemDelay),
			IDOf:      func(r platform.Relationship) string { return r.UserID },
		})
	if err != nil {
		return m.record(jobRejected(s, err))
	}
	return m.record(batchReport(s, rep, fmt.Sprintf("removed %d friends", rep.Succeeded)))
}

// LeaveGuilds departs every joined guild not covered by the whitelist (of
// guild ids). Guilds the session owns cannot be left and are counted as
// skipped.
func (m *Manager) LeaveGuilds(ctx context.Context, id string, whitelist Whitelist) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if !s.Ready() {
		return m.record(skipped(s, "not online"))
	}
	gw := s.gateway()

	guilds, err := gw.Guilds(ctx)
	if err != nil {
		return m.record(failure(s, fmt.Sprintf("list guilds: %v", err)))
	}

	// Owned guilds join the skip-set: the platform refuses to let an owner
	// leave, so attempting would only burn error budget.
	skip := make(Whitelist, len(whitelist)+4)
	for id := range whitelist {
		skip[id] = struct{}{}
	}
	for _, g := range guilds {
		if g.Owner {
			skip[g.ID] = struct{}{}
		}
	}

	rep, err := batch.Run(ctx, s.Runner(), guilds,
		func(ctx context.Context, g platform.Guild) error {
			return gw.LeaveGuild(ctx, g.ID)
		},
		batch.Options[platform.Guild]{
			Whitelist: skip,
			Gate:      pacing.NewGate(m.itemDelay),
			IDOf:      func(g platform.Guild) string { return g.ID },
		})
	if err != nil {
		return m.record(jobRejected(s, err))
	}
	return m.record(batchReport(s, rep, fmt.Sprintf("left %d guilds", rep.Succeeded)))
}

// SyncRoles grants a role to the given users in a guild, pacing each grant.
// Users that are no longer members are dropped up front; members already
// holding the role are counted as skipped.
func (m *Manager) SyncRoles(ctx context.Context, id, guildID, roleID string, userIDs []string) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if !s.Ready() {
		return m.record(skipped(s, "not online"))
	}
	gw := s.gateway()

	members, err := gw.GuildMembers(ctx, guildID)
	if err != nil {
		return m.record(failure(s, fmt.Sprintf("list members: %v", err)))
	}
	present := make(map[string]bool, len(members))
	holding := make(Whitelist)
	for _, mem := range members {
		present[mem.UserID] = true
		for _, r := range mem.RoleIDs {
			if r == roleID {
				holding[mem.UserID] = struct{}{}
			}
		}
	}
	var targets []string
	for _, uid := range userIDs {
		if present[uid] {
			targets = append(targets, uid)
		}
	}

	rep, err := batch.Run(ctx, s.Runner(), targets,
		func(ctx context.Context, uid string) error {
			return gw.AddMemberRole(ctx, guildID, uid, roleID)
		},
		batch.Options[string]{
			Whitelist: holding,
			Gate:      pacing.NewGate(m.itemDelay),
			IDOf:      func(uid string) string { return uid },
		})
	if err != nil {
		return m.record(jobRejected(s, err))
	}
	return m.record(batchReport(s, rep, fmt.Sprintf("granted role to %d members", rep.Succeeded)))
}

// CleanDMsAll runs the DM purge across the whole fleet, one session at a
// time with inter-account pacing. Sessions that are not online are tagged
// skipped; a session-level failure never aborts the loop.
func (m *Manager) CleanDMsAll(ctx context.Context, whitelist Whitelist) []SessionReport {
	return m.forEachSession(ctx, func(ctx context.Context, s *Session) SessionReport {
		return m.CleanDMs(ctx, s.ID(), whitelist)
	})
}

// RemoveFriendsAll runs the friend removal across the whole fleet.
func (m *Manager) RemoveFriendsAll(ctx context.Context, whitelist Whitelist) []SessionReport {
	return m.forEachSession(ctx, func(ctx context.Context, s *Session) SessionReport {
		return m.RemoveFriends(ctx, s.ID(), whitelist)
	})
}

// LeaveGuildsAll runs the guild departure across the whole fleet.
func (m *Manager) LeaveGuildsAll(ctx context.Context, whitelist Whitelist) []SessionReport {
	return m.forEachSession(ctx, func(ctx context.Context, s *Session) SessionReport {
		return m.LeaveGuilds(ctx, s.ID(), whitelist)
	})
}

// forEachSession drives a fleet-wide loop: strictly sequential, paced
// between accounts, skipping sessions that are not online.
func (m *Manager) forEachSession(ctx context.Context, op func(context.Context, *Session) SessionReport) []SessionReport {
	var reports []SessionReport
	for _, s := range m.sessionsInOrder() {
		if !s.Ready() {
			reports = append(reports, m.record(skipped(s, "not online")))
			continue
		}
		if err := m.accountGate.Wait(ctx); err != nil {
			reports = append(reports, m.record(skipped(s, "cancelled")))
			continue
		}
		fmt.Fprintf(m.out, "fleet: running job on %s...\n", s.label)
		reports = append(reports, op(ctx, s))
	}
	return reports
}

// batchReport folds batch counters into a tagged session report.
func batchReport(s *Session, rep batch.Report, headline string) SessionReport {
	r := success(s, headline)
	if rep.Stopped {
		r.Message = headline + " (stopped early)"
	}
	if rep.Errors > 0 {
		r.Message = fmt.Sprintf("%s, %d failed", r.Message, rep.Errors)
	}
	if rep.Skipped > 0 {
		r.Message = fmt.Sprintf("%s, %d whitelisted", r.Message, rep.Skipped)
	}
	repCopy := rep
	r.Job = &repCopy
	return r
}

// jobRejected builds the report for a submission that lost to a running job.
func jobRejected(s *Session, err error) SessionReport {
	if errors.Is(err, outcome.ErrAlreadyRunning) {
		return failure(s, "a job is already running on this session")
	}
	return failure(s, err.Error())
}
