package fleet

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/zulandar/roundhouse/internal/outcome"
	"github.com/zulandar/roundhouse/internal/platform"
	"github.com/zulandar/roundhouse/internal/voice"
)

// testDialer hands out pre-built mock gateways keyed by credential.
type testDialer struct {
	gateways map[string]*mockGateway
}

func (d *testDialer) dial(credential string) (platform.Gateway, error) {
	gw, ok := d.gateways[credential]
	if !ok {
		return nil, fmt.Errorf("no gateway scripted for credential")
	}
	return gw, nil
}

func fastVoiceConfig() voice.Config {
	return voice.Config{
		Settle:         2 * time.Millisecond,
		RetryBackoff:   2 * time.Millisecond,
		Attempts:       2,
		ReconnectDelay: 5 * time.Millisecond,
		MoveDelay:      5 * time.Millisecond,
		LeaveGrace:     20 * time.Millisecond,
	}
}

func newTestManager(t *testing.T, d *testDialer) *Manager {
	t.Helper()
	m, err := NewManager(ManagerOpts{
		Dialer:       d.dial,
		LoginTimeout: 100 * time.Millisecond,
		Voice:        fastVoiceConfig(),
		Out:          io.Discard,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestAddAndRemoveSession(t *testing.T) {
	d := &testDialer{gateways: map[string]*mockGateway{}}
	m := newTestManager(t, d)

	id := m.AddSession("tok-1", "alice")
	if id == "" {
		t.Fatal("AddSession returned empty id")
	}

	snap := m.Snapshot()
	if len(snap) != 1 || snap[0].Status != "offline" || snap[0].Label != "alice" {
		t.Errorf("snapshot = %+v, want one offline session labelled alice", snap)
	}

	if !m.RemoveSession(id) {
		t.Error("RemoveSession returned false for known id")
	}
	if m.RemoveSession(id) {
		t.Error("RemoveSession returned true for removed id")
	}
	if len(m.Snapshot()) != 0 {
		t.Error("session still present after removal")
	}
}

func TestLoginSuccess(t *testing.T) {
	gw := newMockGW("user-1")
	d := &testDialer{gateways: map[string]*mockGateway{"tok-1": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("tok-1", "alice")

	rep := m.Login(context.Background(), id)
	if rep.Outcome != outcome.Success {
		t.Fatalf("login report = %+v, want success", rep)
	}

	s := m.Session(id)
	if !s.Ready() {
		t.Error("Ready() = false after login")
	}
	if s.Status() != Online {
		t.Errorf("status = %v, want online", s.Status())
	}
	if s.SelfID() != "user-1" {
		t.Errorf("SelfID = %q, want user-1", s.SelfID())
	}

	// Second login is a no-op success.
	rep = m.Login(context.Background(), id)
	if rep.Outcome != outcome.Success {
		t.Errorf("repeat login report = %+v, want success", rep)
	}
}

func TestLoginCredentialRejected(t *testing.T) {
	gw := newMockGW("user-1")
	gw.failOpen = fmt.Errorf("gateway: %w", outcome.ErrCredentialRejected)
	d := &testDialer{gateways: map[string]*mockGateway{"bad-tok": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("bad-tok", "mallory")

	rep := m.Login(context.Background(), id)
	if rep.Outcome != outcome.Failure || rep.Message != "credential rejected" {
		t.Errorf("report = %+v, want credential-rejected failure", rep)
	}
	if got := m.Session(id).Status(); got != Error {
		t.Errorf("status = %v, want error", got)
	}
}

func TestLoginTimeout(t *testing.T) {
	gw := newMockGW("user-1")
	gw.noReady = true
	d := &testDialer{gateways: map[string]*mockGateway{"tok-1": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("tok-1", "slowpoke")

	rep := m.Login(context.Background(), id)
	if rep.Outcome != outcome.Failure || rep.Message != "login timed out" {
		t.Errorf("report = %+v, want timeout failure", rep)
	}
	if got := m.Session(id).Status(); got != Error {
		t.Errorf("status = %v, want error", got)
	}
}

func TestLoginUnknownSession(t *testing.T) {
	d := &testDialer{gateways: map[string]*mockGateway{}}
	m := newTestManager(t, d)

	rep := m.Login(context.Background(), "nope")
	if rep.Outcome != outcome.Failure || rep.Message != outcome.ErrNotFound.Error() {
		t.Errorf("report = %+v, want not-found failure", rep)
	}
}

func TestLoginAllContinuesPastFailures(t *testing.T) {
	good1 := newMockGW("user-1")
	bad := newMockGW("user-2")
	bad.failOpen = fmt.Errorf("gateway: %w", outcome.ErrCredentialRejected)
	good2 := newMockGW("user-3")
	d := &testDialer{gateways: map[string]*mockGateway{
		"t1": good1, "t2": bad, "t3": good2,
	}}
	m := newTestManager(t, d)
	m.AddSession("t1", "a")
	m.AddSession("t2", "b")
	m.AddSession("t3", "c")

	reports := m.LoginAll(context.Background())
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	wantOutcomes := []outcome.Outcome{outcome.Success, outcome.Failure, outcome.Success}
	for i, want := range wantOutcomes {
		if reports[i].Outcome != want {
			t.Errorf("report[%d] = %+v, want %v", i, reports[i], want)
		}
	}
}

func TestLogoutAllTagsOfflineAsSkipped(t *testing.T) {
	gw := newMockGW("user-1")
	d := &testDialer{gateways: map[string]*mockGateway{"t1": gw}}
	m := newTestManager(t, d)
	online := m.AddSession("t1", "a")
	m.AddSession("t2", "b") // never logged in

	if rep := m.Login(context.Background(), online); rep.Outcome != outcome.Success {
		t.Fatalf("login: %+v", rep)
	}

	reports := m.LogoutAll(context.Background())
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
	if reports[0].Outcome != outcome.Success {
		t.Errorf("online session logout = %+v, want success", reports[0])
	}
	if reports[1].Outcome != outcome.Skipped {
		t.Errorf("offline session logout = %+v, want skipped", reports[1])
	}
}

func TestDisconnectEventTakesSessionOffline(t *testing.T) {
	gw := newMockGW("user-1")
	d := &testDialer{gateways: map[string]*mockGateway{"t1": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("t1", "a")

	if rep := m.Login(context.Background(), id); rep.Outcome != outcome.Success {
		t.Fatalf("login: %+v", rep)
	}

	gw.push(platform.Event{Kind: platform.EventDisconnect})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.Session(id).Status() == Offline {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("status = %v, want offline after disconnect event", m.Session(id).Status())
}

func TestJoinVoiceThroughManager(t *testing.T) {
	gw := newMockGW("user-1")
	d := &testDialer{gateways: map[string]*mockGateway{"t1": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("t1", "a")

	// Not online yet: skipped.
	rep := m.JoinVoice(context.Background(), id, "g1", "chan-1", voice.JoinOptions{})
	if rep.Outcome != outcome.Skipped {
		t.Errorf("offline join = %+v, want skipped", rep)
	}

	if rep := m.Login(context.Background(), id); rep.Outcome != outcome.Success {
		t.Fatalf("login: %+v", rep)
	}

	rep = m.JoinVoice(context.Background(), id, "g1", "chan-1", voice.JoinOptions{})
	if rep.Outcome != outcome.Success {
		t.Fatalf("join = %+v, want success", rep)
	}
	if got := m.Session(id).Voice().TargetChannelID(); got != "chan-1" {
		t.Errorf("voice target = %q, want chan-1", got)
	}
	if gw.VoiceChannel("g1") != "chan-1" {
		t.Error("gateway not connected to chan-1")
	}

	rep = m.LeaveVoice(context.Background(), id)
	if rep.Outcome != outcome.Success {
		t.Errorf("leave = %+v, want success", rep)
	}
	if gw.VoiceChannel("g1") != "" {
		t.Error("gateway still in voice after leave")
	}
}

func TestStopJobWithoutRunningJob(t *testing.T) {
	gw := newMockGW("user-1")
	d := &testDialer{gateways: map[string]*mockGateway{"t1": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("t1", "a")

	rep := m.StopJob(id)
	if rep.Outcome != outcome.Skipped {
		t.Errorf("StopJob = %+v, want skipped when idle", rep)
	}
}

func TestSetPresence(t *testing.T) {
	gw := newMockGW("me")
	d := &testDialer{gateways: map[string]*mockGateway{"tok": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("tok", "worker")

	if rep := m.SetPresence(context.Background(), id, "idle", ""); rep.Outcome != outcome.Skipped {
		t.Fatalf("offline presence = %+v, want skipped", rep)
	}

	if rep := m.Login(context.Background(), id); rep.Outcome != outcome.Success {
		t.Fatalf("login: %+v", rep)
	}
	if rep := m.SetPresence(context.Background(), id, "dnd", "working"); rep.Outcome != outcome.Success {
		t.Fatalf("presence = %+v, want success", rep)
	}
	if gw.presence != "dnd/working" {
		t.Errorf("presence = %q, want dnd/working", gw.presence)
	}

	if rep := m.SetPresence(context.Background(), id, "away", ""); rep.Outcome != outcome.Failure {
		t.Errorf("invalid status = %+v, want failure", rep)
	}
}

func TestRemoveSessionMidLogin(t *testing.T) {
	gw := newMockGW("me")
	gw.noReady = true
	d := &testDialer{gateways: map[string]*mockGateway{"tok": gw}}
	m := newTestManager(t, d)
	id := m.AddSession("tok", "worker")
	s := m.Session(id)

	done := make(chan SessionReport, 1)
	go func() { done <- m.Login(context.Background(), id) }()

	// Wait until the login is blocked on the ready signal.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && s.Status() != Connecting {
		time.Sleep(2 * time.Millisecond)
	}
	if s.Status() != Connecting {
		t.Fatalf("status = %v, want connecting", s.Status())
	}

	if !m.RemoveSession(id) {
		t.Fatal("RemoveSession returned false for a known id")
	}
	if got := m.Snapshot(); len(got) != 0 {
		t.Errorf("registry = %+v, want empty after removal", got)
	}

	rep := <-done
	if rep.Outcome != outcome.Failure {
		t.Errorf("login after removal = %+v, want failure", rep)
	}
	if m.Session(id) != nil {
		t.Error("removed session still resolvable")
	}
}
