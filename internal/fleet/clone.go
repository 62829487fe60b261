package fleet

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/roundhouse/internal/pacing"
)

// CloneGuild copies a source guild's roles and channel layout into a target
// guild the session controls. Plain sequential create calls with a fixed
// delay between them; there is no retry machinery and no rollback, so a
// partial clone is left in place on failure.
func (m *Manager) CloneGuild(ctx context.Context, id, sourceGuildID, targetGuildID string) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if !s.Ready() {
		return m.record(skipped(s, "not online"))
	}
	gw := s.gateway()

	structure, err := gw.GuildStructure(ctx, sourceGuildID)
	if err != nil {
		return m.record(failure(s, fmt.Sprintf("read source guild: %v", err)))
	}

	gate := pacing.NewGate(m.itemDelay)
	created, failed := 0, 0

	for _, role := range structure.Roles {
		if err := gate.Wait(ctx); err != nil {
			return m.record(failure(s, fmt.Sprintf("cancelled after %d creates", created)))
		}
		if _, err := gw.CreateRole(ctx, targetGuildID, role); err != nil {
			log.Printf("fleet[%s]: clone role %q: %v", s.label, role.Name, err)
			failed++
			continue
		}
		created++
	}

	// Categories first so child channels can resolve their parents onto
	// the cloned category ids. Discord channel type 4 is a category.
	parentMap := make(map[string]string)
	for _, pass := range []bool{true, false} {
		for _, ch := range structure.Channels {
			if (ch.Type == 4) != pass {
				continue
			}
			if err := gate.Wait(ctx); err != nil {
				return m.record(failure(s, fmt.Sprintf("cancelled after %d creates", created)))
			}
			spec := ch
			spec.ParentID = parentMap[ch.ParentID]
			newID, err := gw.CreateChannel(ctx, targetGuildID, spec)
			if err != nil {
				log.Printf("fleet[%s]: clone channel %q: %v", s.label, ch.Name, err)
				failed++
				continue
			}
			parentMap[ch.ID] = newID
			created++
		}
	}

	msg := fmt.Sprintf("cloned %q: created %d objects", structure.Name, created)
	if failed > 0 {
		msg = fmt.Sprintf("%s, %d failed", msg, failed)
	}
	return m.record(success(s, msg))
}
