package fleet

import (
	"context"
	"testing"

	"github.com/zulandar/roundhouse/internal/outcome"
	"github.com/zulandar/roundhouse/internal/platform"
)

// loginTestSession wires a manager with one logged-in session backed by gw.
func loginTestSession(t *testing.T, gw *mockGateway) (*Manager, string) {
	t.Helper()
	d := &testDialer{gateways: map[string]*mockGateway{"tok": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("tok", "worker")
	if rep := m.Login(context.Background(), id); rep.Outcome != outcome.Success {
		t.Fatalf("login: %+v", rep)
	}
	return m, id
}

func TestCleanDMsPurgesOwnMessages(t *testing.T) {
	gw := newMockGW("me")
	gw.dms = []platform.Channel{
		{ID: "dm1", Recipient: "friend-a"},
		{ID: "dm2", Recipient: "friend-b"},
	}
	gw.messages["dm1"] = []platform.Message{
		{ID: "m1", AuthorID: "me"},
		{ID: "m2", AuthorID: "friend-a"},
		{ID: "m3", AuthorID: "me"},
	}
	gw.messages["dm2"] = []platform.Message{
		{ID: "m4", AuthorID: "me"},
	}
	m, id := loginTestSession(t, gw)

	rep := m.CleanDMs(context.Background(), id, nil)
	if rep.Outcome != outcome.Success {
		t.Fatalf("report = %+v, want success", rep)
	}
	if rep.Deleted != 3 {
		t.Errorf("deleted = %d, want 3 (only own messages)", rep.Deleted)
	}
	if rep.Job == nil || rep.Job.Succeeded != 2 {
		t.Errorf("job = %+v, want 2 conversations succeeded", rep.Job)
	}

	want := map[string]bool{"dm1/m1": true, "dm1/m3": true, "dm2/m4": true}
	for _, del := range gw.deleted {
		if !want[del] {
			t.Errorf("unexpected deletion %s", del)
		}
	}
	if len(gw.deleted) != 3 {
		t.Errorf("deletions = %v, want 3", gw.deleted)
	}
}

func TestCleanDMsHonorsWhitelist(t *testing.T) {
	gw := newMockGW("me")
	gw.dms = []platform.Channel{{ID: "dm1"}, {ID: "dm2"}, {ID: "dm3"}}
	for _, ch := range gw.dms {
		gw.messages[ch.ID] = []platform.Message{{ID: "x-" + ch.ID, AuthorID: "me"}}
	}
	m, id := loginTestSession(t, gw)

	rep := m.CleanDMs(context.Background(), id, NewWhitelist([]string{"dm2"}))
	if rep.Outcome != outcome.Success {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Job.Skipped != 1 || rep.Job.Succeeded != 2 {
		t.Errorf("job = %+v, want skipped=1 succeeded=2", rep.Job)
	}
	for _, del := range gw.deleted {
		if del == "dm2/x-dm2" {
			t.Error("whitelisted conversation dm2 was purged")
		}
	}
}

func TestCleanDMsSkippedWhenOffline(t *testing.T) {
	gw := newMockGW("me")
	d := &testDialer{gateways: map[string]*mockGateway{"tok": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("tok", "worker")

	rep := m.CleanDMs(context.Background(), id, nil)
	if rep.Outcome != outcome.Skipped {
		t.Errorf("report = %+v, want skipped for offline session", rep)
	}
}

func TestRemoveFriendsFiltersAndWhitelists(t *testing.T) {
	gw := newMockGW("me")
	gw.rels = []platform.Relationship{
		{UserID: "u1", UserName: "ann", Friend: true},
		{UserID: "u2", UserName: "bob", Friend: true},
		{UserID: "u3", UserName: "spam", Friend: false}, // pending, not a friend
		{UserID: "u4", UserName: "cat", Friend: true},
	}
	m, id := loginTestSession(t, gw)

	rep := m.RemoveFriends(context.Background(), id, NewWhitelist([]string{"u2"}))
	if rep.Outcome != outcome.Success {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Job.Processed != 3 || rep.Job.Succeeded != 2 || rep.Job.Skipped != 1 {
		t.Errorf("job = %+v, want processed=3 succeeded=2 skipped=1", rep.Job)
	}
	for _, removed := range gw.removedRels {
		if removed == "u2" {
			t.Error("whitelisted friend u2 removed")
		}
		if removed == "u3" {
			t.Error("non-friend u3 removed")
		}
	}
}

func TestLeaveGuildsSkipsOwnedAndWhitelisted(t *testing.T) {
	gw := newMockGW("me")
	gw.guilds = []platform.Guild{
		{ID: "g1", Name: "alpha"},
		{ID: "g2", Name: "mine", Owner: true},
		{ID: "g3", Name: "beta"},
		{ID: "g4", Name: "home"},
	}
	m, id := loginTestSession(t, gw)

	rep := m.LeaveGuilds(context.Background(), id, NewWhitelist([]string{"g4"}))
	if rep.Outcome != outcome.Success {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Job.Succeeded != 2 || rep.Job.Skipped != 2 {
		t.Errorf("job = %+v, want succeeded=2 skipped=2 (owned + whitelisted)", rep.Job)
	}
	for _, left := range gw.leftGuilds {
		if left == "g2" || left == "g4" {
			t.Errorf("left protected guild %s", left)
		}
	}
}

func TestFleetWideJobSkipsOfflineSessions(t *testing.T) {
	online := newMockGW("me")
	online.dms = []platform.Channel{{ID: "dm1"}}
	online.messages["dm1"] = []platform.Message{{ID: "m1", AuthorID: "me"}}
	offline := newMockGW("other")

	d := &testDialer{gateways: map[string]*mockGateway{"t1": online, "t2": offline}}
	m := newTestManager(t, d)
	id1 := m.AddSession("t1", "a")
	m.AddSession("t2", "b")
	if rep := m.Login(context.Background(), id1); rep.Outcome != outcome.Success {
		t.Fatalf("login: %+v", rep)
	}

	reports := m.CleanDMsAll(context.Background(), nil)
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
	if reports[0].Outcome != outcome.Success {
		t.Errorf("online session report = %+v, want success", reports[0])
	}
	if reports[1].Outcome != outcome.Skipped {
		t.Errorf("offline session report = %+v, want skipped", reports[1])
	}
}

func TestCloneGuildRemapsCategories(t *testing.T) {
	gw := newMockGW("me")
	gw.struct_ = &platform.GuildStructure{
		Name: "template",
		Roles: []platform.Role{
			{Name: "mods"},
			{Name: "members"},
		},
		Channels: []platform.ChannelSpec{
			{ID: "c-text", Name: "general", Type: 0, ParentID: "c-cat"},
			{ID: "c-cat", Name: "Chat", Type: 4},
		},
	}
	m, id := loginTestSession(t, gw)

	rep := m.CloneGuild(context.Background(), id, "src", "dst")
	if rep.Outcome != outcome.Success {
		t.Fatalf("report = %+v", rep)
	}
	if len(gw.createdRoles) != 2 {
		t.Errorf("created roles = %v, want 2", gw.createdRoles)
	}
	if len(gw.createdChans) != 2 {
		t.Fatalf("created channels = %v, want 2", gw.createdChans)
	}
	// Category first, then the text channel with its parent remapped to
	// the clone's id.
	if gw.createdChans[0].Name != "Chat" {
		t.Errorf("first created channel = %q, want the category", gw.createdChans[0].Name)
	}
	if gw.createdChans[1].ParentID != "new-1" {
		t.Errorf("text channel parent = %q, want remapped new-1", gw.createdChans[1].ParentID)
	}
}

func TestSyncRolesGrantsMissingOnly(t *testing.T) {
	gw := newMockGW("me")
	gw.members = []platform.Member{
		{UserID: "u1"},
		{UserID: "u2", RoleIDs: []string{"champion"}},
		{UserID: "u3", RoleIDs: []string{"other"}},
	}
	m, id := loginTestSession(t, gw)

	// u4 left the guild since the leaderboard was written.
	rep := m.SyncRoles(context.Background(), id, "g1", "champion", []string{"u1", "u2", "u3", "u4"})
	if rep.Outcome != outcome.Success {
		t.Fatalf("report = %+v, want success", rep)
	}
	if rep.Job == nil || rep.Job.Succeeded != 2 || rep.Job.Skipped != 1 {
		t.Errorf("job = %+v, want 2 granted and 1 already holding", rep.Job)
	}

	want := map[string]bool{"u1/champion": true, "u3/champion": true}
	for _, grant := range gw.addedRoles {
		if !want[grant] {
			t.Errorf("unexpected grant %s", grant)
		}
	}
	if len(gw.addedRoles) != 2 {
		t.Errorf("grants = %v, want 2", gw.addedRoles)
	}
}

func TestJobsOnUnknownSession(t *testing.T) {
	d := &testDialer{gateways: map[string]*mockGateway{}}
	m := newTestManager(t, d)

	for name, rep := range map[string]SessionReport{
		"clean":   m.CleanDMs(context.Background(), "ghost", nil),
		"friends": m.RemoveFriends(context.Background(), "ghost", nil),
		"guilds":  m.LeaveGuilds(context.Background(), "ghost", nil),
		"clone":   m.CloneGuild(context.Background(), "ghost", "a", "b"),
		"roles":   m.SyncRoles(context.Background(), "ghost", "a", "b", nil),
	} {
		if rep.Outcome != outcome.Failure || rep.Message != outcome.ErrNotFound.Error() {
			t.Errorf("%s on unknown id = %+v, want not-found failure", name, rep)
		}
	}
}
