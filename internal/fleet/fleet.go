// Package fleet implements the connection fleet manager: the registry of
// authenticated sessions, their login/logout lifecycle, and the rate-limited
// bulk operations that run against them.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/roundhouse/internal/outcome"
	"github.com/zulandar/roundhouse/internal/pacing"
	"github.com/zulandar/roundhouse/internal/platform"
	"github.com/zulandar/roundhouse/internal/voice"
)

// reportHistory is how many recent reports the manager retains for status
// views.
const reportHistory = 200

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	// Dialer creates gateways for credentials. Required; tests inject
	// mock gateways here.
	Dialer platform.Dialer
	// LoginTimeout bounds the wait for a gateway ready signal.
	// Defaults to 15s.
	LoginTimeout time.Duration
	// AccountDelay paces fleet-wide loops between accounts.
	AccountDelay time.Duration
	// ItemDelay paces batch jobs between items.
	ItemDelay time.Duration
	// MessageDelay paces individual message deletions inside a purge.
	MessageDelay time.Duration
	// Voice holds the voice controller timing knobs. Zero value means
	// defaults.
	Voice voice.Config
	// Out receives operator-facing progress lines. Defaults to os.Stdout.
	Out io.Writer
}

// Manager owns the fleet: it creates and destroys sessions and exposes the
// per-session and fleet-wide operations. Fleet-wide loops are strictly
// sequential; concurrent multi-account use of the same target resource would
// violate the platform's rate assumptions.
type Manager struct {
	dial         platform.Dialer
	loginTimeout time.Duration
	itemDelay    time.Duration
	messageDelay time.Duration
	voiceCfg     voice.Config
	accountGate  *pacing.Gate
	out          io.Writer

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string // insertion order, for deterministic fleet loops
	reports  []SessionReport
}

// NewManager creates a Manager with no sessions.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Dialer == nil {
		return nil, fmt.Errorf("fleet: dialer is required")
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 15 * time.Second
	}
	if opts.Voice == (voice.Config{}) {
		opts.Voice = voice.DefaultConfig()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Manager{
		dial:         opts.Dialer,
		loginTimeout: opts.LoginTimeout,
		itemDelay:    opts.ItemDelay,
		messageDelay: opts.MessageDelay,
		voiceCfg:     opts.Voice,
		accountGate:  pacing.NewGate(opts.AccountDelay),
		out:          out,
		sessions:     make(map[string]*Session),
	}, nil
}

// AddSession registers a new session in the Offline state and returns its
// generated id. No network I/O happens here.
func (m *Manager) AddSession(credential, label string) string {
	id := uuid.NewString()
	s := newSession(id, credential, label, m.dial, m.loginTimeout, m.voiceCfg)
	m.mu.Lock()
	m.sessions[id] = s
	m.order = append(m.order, id)
	m.mu.Unlock()
	fmt.Fprintf(m.out, "fleet: registered %s (%s)\n", label, id)
	return id
}

// RemoveSession forces a best-effort logout and deregisters the session.
// Returns false if the id is unknown. Safe to call on a session mid-login:
// the logout closes whatever gateway exists and the login path discards the
// superseded connection.
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		for i, oid := range m.order {
			if oid == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.Logout()
	fmt.Fprintf(m.out, "fleet: removed %s (%s)\n", s.label, id)
	return true
}

// Session returns the session for id, or nil if unknown.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// sessionsInOrder snapshots the registry in insertion order.
func (m *Manager) sessionsInOrder() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		if s, ok := m.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Login logs one session in and returns a tagged report.
func (m *Manager) Login(ctx context.Context, id string) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if err := s.Login(ctx); err != nil {
		return m.record(failure(s, loginErrorMessage(err)))
	}
	return m.record(success(s, "logged in as "+s.SelfID()))
}

// Logout logs one session out and returns a tagged report.
func (m *Manager) Logout(id string) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if s.Status() == Offline {
		return m.record(skipped(s, "already offline"))
	}
	s.Logout()
	return m.record(success(s, "logged out"))
}

// LoginAll logs every session in sequentially, pacing between accounts to
// avoid bursting the platform's login endpoint. A per-session failure never
// aborts the loop.
func (m *Manager) LoginAll(ctx context.Context) []SessionReport {
	var reports []SessionReport
	for _, s := range m.sessionsInOrder() {
		if err := m.accountGate.Wait(ctx); err != nil {
			reports = append(reports, m.record(skipped(s, "cancelled")))
			continue
		}
		if s.Status() == Online {
			reports = append(reports, m.record(success(s, "already online")))
			continue
		}
		fmt.Fprintf(m.out, "fleet: logging in %s...\n", s.label)
		if err := s.Login(ctx); err != nil {
			reports = append(reports, m.record(failure(s, loginErrorMessage(err))))
			continue
		}
		reports = append(reports, m.record(success(s, "logged in as "+s.SelfID())))
	}
	return reports
}

// LogoutAll logs every session out sequentially with inter-account pacing.
func (m *Manager) LogoutAll(ctx context.Context) []SessionReport {
	var reports []SessionReport
	for _, s := range m.sessionsInOrder() {
		if s.Status() == Offline {
			reports = append(reports, m.record(skipped(s, "already offline")))
			continue
		}
		if err := m.accountGate.Wait(ctx); err != nil {
			reports = append(reports, m.record(skipped(s, "cancelled")))
			continue
		}
		s.Logout()
		reports = append(reports, m.record(success(s, "logged out")))
	}
	return reports
}

// JoinVoice attaches a session to a voice channel.
func (m *Manager) JoinVoice(ctx context.Context, id, guildID, channelID string, opts voice.JoinOptions) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if !s.Ready() {
		return m.record(skipped(s, "not online"))
	}
	if err := s.Voice().Join(ctx, guildID, channelID, opts); err != nil {
		return m.record(failure(s, err.Error()))
	}
	return m.record(success(s, "connected to "+channelID))
}

// LeaveVoice detaches a session from voice.
func (m *Manager) LeaveVoice(ctx context.Context, id string) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	s.Voice().Leave(ctx)
	return m.record(success(s, "left voice"))
}

// validPresence is the set of status strings the platform accepts.
var validPresence = map[string]bool{
	"online":    true,
	"idle":      true,
	"dnd":       true,
	"invisible": true,
}

// SetPresence publishes a status and optional activity for one session.
func (m *Manager) SetPresence(ctx context.Context, id, status, activity string) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if !s.Ready() {
		return m.record(skipped(s, "not online"))
	}
	if !validPresence[status] {
		return m.record(failure(s, fmt.Sprintf("unknown status %q", status)))
	}
	if err := s.gateway().SetPresence(ctx, status, activity); err != nil {
		return m.record(failure(s, err.Error()))
	}
	return m.record(success(s, "presence set to "+status))
}

// SetPresenceAll publishes the same presence across the whole fleet.
func (m *Manager) SetPresenceAll(ctx context.Context, status, activity string) []SessionReport {
	return m.forEachSession(ctx, func(ctx context.Context, s *Session) SessionReport {
		return m.SetPresence(ctx, s.ID(), status, activity)
	})
}

// StopJob requests cooperative cancellation of the session's running batch
// job, if any.
func (m *Manager) StopJob(id string) SessionReport {
	s := m.Session(id)
	if s == nil {
		return m.record(notFound(id))
	}
	if !s.Runner().IsRunning() {
		return m.record(skipped(s, "no job running"))
	}
	s.Runner().Stop()
	return m.record(success(s, "stop requested"))
}

// Snapshot returns a point-in-time view of every session, in insertion order.
func (m *Manager) Snapshot() []SessionInfo {
	var out []SessionInfo
	for _, s := range m.sessionsInOrder() {
		out = append(out, SessionInfo{
			ID:          s.ID(),
			Label:       s.Label(),
			Status:      s.Status().String(),
			SelfID:      s.SelfID(),
			VoiceState:  s.Voice().State().String(),
			VoiceTarget: s.Voice().TargetChannelID(),
			JobRunning:  s.Runner().IsRunning(),
		})
	}
	return out
}

// RecentReports returns the most recent operation reports, newest last.
func (m *Manager) RecentReports() []SessionReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionReport, len(m.reports))
	copy(out, m.reports)
	return out
}

// record appends a report to the bounded history and returns it unchanged.
func (m *Manager) record(r SessionReport) SessionReport {
	m.mu.Lock()
	m.reports = append(m.reports, r)
	if len(m.reports) > reportHistory {
		m.reports = m.reports[len(m.reports)-reportHistory:]
	}
	m.mu.Unlock()
	return r
}

// loginErrorMessage maps login failures to operator-readable text.
func loginErrorMessage(err error) string {
	switch {
	case errors.Is(err, outcome.ErrCredentialRejected):
		return "credential rejected"
	case errors.Is(err, outcome.ErrTimeout):
		return "login timed out"
	default:
		return err.Error()
	}
}
