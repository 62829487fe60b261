package fleet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/roundhouse/internal/batch"
	"github.com/zulandar/roundhouse/internal/outcome"
	"github.com/zulandar/roundhouse/internal/platform"
	"github.com/zulandar/roundhouse/internal/voice"
)

// Status is a session's lifecycle state. Transitions are Offline→Connecting→
// {Online,Error}, and Online→Offline on explicit logout or fatal disconnect.
type Status int

const (
	Offline Status = iota
	Connecting
	Online
	Error
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Offline:
		return "offline"
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	case Error:
		return "error"
	}
	return "unknown"
}

// Session wraps one authenticated connection to the platform. It is created
// and owned exclusively by the Manager; the credential is held for login and
// never logged.
type Session struct {
	id         string
	label      string
	credential string
	dial       platform.Dialer

	loginTimeout time.Duration

	mu      sync.Mutex
	status  Status
	selfID  string
	gw      platform.Gateway
	readyCh chan struct{}

	voice  *voice.Controller
	runner batch.Runner
}

// newSession creates a Session in the Offline state. The voice controller is
// wired to the session itself so it always drives whichever gateway is live.
func newSession(id, credential, label string, dial platform.Dialer, loginTimeout time.Duration, voiceCfg voice.Config) *Session {
	s := &Session{
		id:           id,
		label:        label,
		credential:   credential,
		dial:         dial,
		loginTimeout: loginTimeout,
		status:       Offline,
	}
	s.voice = voice.New(s, voiceCfg, label)
	return s
}

// ID returns the session's immutable id.
func (s *Session) ID() string { return s.id }

// Label returns the session's display label.
func (s *Session) Label() string { return s.label }

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Ready reports whether the session is Online with its identity resolved.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == Online && s.selfID != ""
}

// SelfID returns the platform user id, or "" before the first ready.
func (s *Session) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

// Voice returns the session's voice-link controller.
func (s *Session) Voice() *voice.Controller { return s.voice }

// Runner returns the session's batch runner (one job at a time).
func (s *Session) Runner() *batch.Runner { return &s.runner }

// Login authenticates the session and waits for the gateway's ready signal
// up to the login timeout. No-op success if already Online. On timeout or
// credential rejection the status moves to Error and a taxonomy error is
// returned; nothing panics across this boundary.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	if s.status == Online {
		s.mu.Unlock()
		return nil
	}
	s.setStatusLocked(Connecting)
	gw, err := s.dial(s.credential)
	if err != nil {
		s.setStatusLocked(Error)
		s.mu.Unlock()
		return fmt.Errorf("fleet: dial: %w", err)
	}
	s.gw = gw
	s.readyCh = make(chan struct{})
	readyCh := s.readyCh
	s.mu.Unlock()

	if err := gw.Open(ctx); err != nil {
		s.mu.Lock()
		s.setStatusLocked(Error)
		s.gw = nil
		s.mu.Unlock()
		if errors.Is(err, outcome.ErrCredentialRejected) {
			return fmt.Errorf("fleet: login %s: %w", s.label, outcome.ErrCredentialRejected)
		}
		return fmt.Errorf("fleet: login %s: %w", s.label, err)
	}

	// The event loop is the sole consumer of the gateway's events for the
	// life of this connection.
	go s.eventLoop(gw, readyCh)

	timer := time.NewTimer(s.loginTimeout)
	defer timer.Stop()
	select {
	case <-readyCh:
		return nil
	case <-timer.C:
		s.mu.Lock()
		s.setStatusLocked(Error)
		s.gw = nil
		s.mu.Unlock()
		gw.Close()
		return fmt.Errorf("fleet: login %s: ready not received within %v: %w",
			s.label, s.loginTimeout, outcome.ErrTimeout)
	case <-ctx.Done():
		s.mu.Lock()
		s.setStatusLocked(Error)
		s.gw = nil
		s.mu.Unlock()
		gw.Close()
		return ctx.Err()
	}
}

// Logout tears down the connection. No-op if already Offline; errors are
// logged, never propagated.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.status == Offline {
		s.mu.Unlock()
		return
	}
	gw := s.gw
	s.gw = nil
	s.setStatusLocked(Offline)
	s.mu.Unlock()

	if gw != nil {
		if err := gw.Close(); err != nil {
			log.Printf("fleet[%s]: logout: %v", s.label, err)
		}
	}
}

// eventLoop consumes the gateway's inbound events one at a time, translating
// them into status transitions and voice controller notifications. It exits
// when the gateway closes its event channel.
func (s *Session) eventLoop(gw platform.Gateway, readyCh chan struct{}) {
	ready := false
	for evt := range gw.Events() {
		// Ignore events from a superseded connection.
		s.mu.Lock()
		stale := s.gw != gw
		s.mu.Unlock()
		if stale {
			continue
		}

		switch evt.Kind {
		case platform.EventReady:
			s.mu.Lock()
			s.selfID = evt.SelfID
			s.setStatusLocked(Online)
			s.mu.Unlock()
			if !ready {
				ready = true
				close(readyCh)
			}
			s.voice.HandleGatewayUp()

		case platform.EventDisconnect:
			s.mu.Lock()
			s.setStatusLocked(Offline)
			s.mu.Unlock()
			s.voice.HandleGatewayDown()

		case platform.EventVoiceState:
			s.voice.HandleVoiceState(evt.GuildID, evt.ChannelID)
		}
	}
}

// setStatusLocked records a status transition. Caller holds s.mu.
func (s *Session) setStatusLocked(next Status) {
	if s.status == next {
		return
	}
	log.Printf("fleet[%s]: %s -> %s", s.label, s.status, next)
	s.status = next
}

// gateway returns the live gateway, or nil if none.
func (s *Session) gateway() platform.Gateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw
}

// The session delegates the voice surface to its current gateway, so the
// controller survives reconnects without re-wiring.

// JoinVoice implements voice.Gateway.
func (s *Session) JoinVoice(ctx context.Context, guildID, channelID string, mute, deaf bool) error {
	gw := s.gateway()
	if gw == nil {
		return outcome.ErrConnectionLost
	}
	return gw.JoinVoice(ctx, guildID, channelID, mute, deaf)
}

// LeaveVoice implements voice.Gateway.
func (s *Session) LeaveVoice(ctx context.Context, guildID string) error {
	gw := s.gateway()
	if gw == nil {
		return nil
	}
	return gw.LeaveVoice(ctx, guildID)
}

// VoiceChannel implements voice.Gateway.
func (s *Session) VoiceChannel(guildID string) string {
	gw := s.gateway()
	if gw == nil {
		return ""
	}
	return gw.VoiceChannel(guildID)
}

var _ voice.Gateway = (*Session)(nil)
