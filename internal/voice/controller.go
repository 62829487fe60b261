// Package voice implements the reconnection state machine that keeps a
// session attached to a target voice channel despite moves, kicks, and
// transient disconnects.
//
// The platform's join call can return before the connection is confirmed, and
// its event stream can report disconnect/move events out of order relative to
// joins the controller itself initiated. The settle window and the
// single-flight guard exist to keep the controller's own actions from
// triggering reconnect storms.
package voice

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/roundhouse/internal/outcome"
)

// State is the controller's connection state.
type State int

const (
	// Idle means no target is set; no reconnection attempts will fire.
	Idle State = iota
	// Connecting means a join is in flight and unconfirmed.
	Connecting
	// Connected means the session is confirmed in the target channel.
	Connected
	// Reconnecting means a rejoin is scheduled or in flight.
	Reconnecting
	// Disconnected means the target is set but the gateway itself is down;
	// the controller is eligible to reconnect once the session is back.
	Disconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Gateway is the subset of the platform gateway the controller drives.
type Gateway interface {
	JoinVoice(ctx context.Context, guildID, channelID string, mute, deaf bool) error
	LeaveVoice(ctx context.Context, guildID string) error
	// VoiceChannel returns the channel currently connected in the guild,
	// or "" if none.
	VoiceChannel(guildID string) string
}

// Config holds the controller's timing knobs. The defaults match observed
// platform confirmation lag; deployments can override them via the config
// file.
type Config struct {
	Settle         time.Duration // wait after a join before trusting reported state
	RetryBackoff   time.Duration // between failed join attempts
	Attempts       int           // join attempts before giving up
	ReconnectDelay time.Duration // after an involuntary disconnect
	MoveDelay      time.Duration // after a forced move (still live, just misplaced)
	LeaveGrace     time.Duration // voluntary-leave flag hold time
}

// DefaultConfig returns the stock timing values.
func DefaultConfig() Config {
	return Config{
		Settle:         2 * time.Second,
		RetryBackoff:   3 * time.Second,
		Attempts:       5,
		ReconnectDelay: 5 * time.Second,
		MoveDelay:      3 * time.Second,
		LeaveGrace:     2 * time.Second,
	}
}

// JoinOptions carries the desired voice flags for a join.
type JoinOptions struct {
	Mute bool
	Deaf bool
}

// Controller tracks a desired target channel for one session and auto-rejoins
// on involuntary disconnects and moves. One controller per session; all
// methods are safe for concurrent use.
type Controller struct {
	gw    Gateway
	cfg   Config
	label string // session label, for logs only

	mu           sync.Mutex
	state        State
	targetGuild  string
	targetChan   string
	mute, deaf   bool
	voluntary    bool   // suppresses reconnects; self-clears after LeaveGrace
	reconnecting bool   // single-flight guard
	connecting   bool   // a Join loop owns confirmation; events are ignored
	joinGen      uint64 // bumped per Join; a superseded loop must not touch state on exit

	graceTimer   *time.Timer
	pendingTimer *time.Timer
}

// New creates a Controller at rest.
func New(gw Gateway, cfg Config, label string) *Controller {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultConfig().Attempts
	}
	return &Controller{gw: gw, cfg: cfg, label: label, state: Idle}
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TargetChannelID returns the desired channel, or "" when at rest.
func (c *Controller) TargetChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetChan
}

// ShouldReconnect reports whether an involuntary disconnect would trigger a
// rejoin: a target is set and the leave was not voluntary.
func (c *Controller) ShouldReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetChan != "" && !c.voluntary
}

// Join sets the target channel and connects to it. Idempotent: if already
// confirmed in the target, it returns immediately without another platform
// call. Otherwise it issues the join, waits a settle window, and verifies the
// actual connected channel, retrying up to the configured attempt budget. On
// exhausting the budget the target is cleared and the controller returns to
// Idle.
func (c *Controller) Join(ctx context.Context, guildID, channelID string, opts JoinOptions) error {
	c.mu.Lock()
	if c.state == Connected && c.targetChan == channelID && c.gw.VoiceChannel(guildID) == channelID {
		c.mu.Unlock()
		return nil
	}
	// A fresh join is explicit user intent: cancel any leave grace.
	c.voluntary = false
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	c.stopPendingLocked()
	c.targetGuild = guildID
	c.targetChan = channelID
	c.mute = opts.Mute
	c.deaf = opts.Deaf
	c.state = Connecting
	c.connecting = true
	c.joinGen++
	gen := c.joinGen
	c.mu.Unlock()

	err := c.joinLoop(ctx, guildID, channelID, opts.Mute, opts.Deaf)

	c.mu.Lock()
	// A newer Join owns the controller now; its loop settles the state.
	if gen == c.joinGen {
		c.connecting = false
		if err == nil && c.targetChan == channelID {
			c.state = Connected
		} else if c.targetChan == channelID {
			// Budget exhausted: clear the target so nothing retries forever.
			c.targetChan = ""
			c.targetGuild = ""
			c.state = Idle
		}
	}
	c.mu.Unlock()
	return err
}

// joinLoop issues the join call and confirms the connected channel after a
// settle window, retrying with backoff until the attempt budget runs out.
func (c *Controller) joinLoop(ctx context.Context, guildID, channelID string, mute, deaf bool) error {
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		// Abort if the target changed under us (leave or a newer join).
		c.mu.Lock()
		current := c.targetChan
		c.mu.Unlock()
		if current != channelID {
			return fmt.Errorf("voice: join %s superseded", channelID)
		}

		if err := c.gw.JoinVoice(ctx, guildID, channelID, mute, deaf); err != nil {
			log.Printf("voice[%s]: join %s attempt %d/%d: %v",
				c.label, channelID, attempt, c.cfg.Attempts, err)
		}

		if err := sleepCtx(ctx, c.cfg.Settle); err != nil {
			return err
		}

		if c.gw.VoiceChannel(guildID) == channelID {
			return nil
		}

		if attempt < c.cfg.Attempts {
			if err := sleepCtx(ctx, c.cfg.RetryBackoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("voice: join %s after %d attempts: %w", channelID, c.cfg.Attempts, outcome.ErrTimeout)
}

// Leave voluntarily disconnects and clears the target. The voluntary flag is
// held for the grace window to swallow the disconnect event the leave itself
// generates, then self-clears.
func (c *Controller) Leave(ctx context.Context) {
	c.mu.Lock()
	guildID := c.targetGuild
	c.voluntary = true
	c.state = Idle
	c.targetChan = ""
	c.targetGuild = ""
	c.stopPendingLocked()
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
	c.graceTimer = time.AfterFunc(c.cfg.LeaveGrace, func() {
		c.mu.Lock()
		c.voluntary = false
		c.mu.Unlock()
	})
	c.mu.Unlock()

	if err := c.gw.LeaveVoice(ctx, guildID); err != nil {
		log.Printf("voice[%s]: leave: %v", c.label, err)
	}
}

// ClearTarget drops the desired channel without touching the live connection.
// Pending reconnects are cancelled; the controller is at rest afterwards.
func (c *Controller) ClearTarget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetChan = ""
	c.targetGuild = ""
	c.state = Idle
	c.stopPendingLocked()
}

// Reconnect rejoins the target with the last-used options. No-op if the last
// leave was voluntary, no target is set, the session is already at the
// target, or a reconnect is already in flight. A new request while one is
// running is dropped, not queued.
func (c *Controller) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.voluntary || c.targetChan == "" || c.reconnecting {
		c.mu.Unlock()
		return nil
	}
	guildID, channelID := c.targetGuild, c.targetChan
	mute, deaf := c.mute, c.deaf
	if c.gw.VoiceChannel(guildID) == channelID {
		c.state = Connected
		c.mu.Unlock()
		return nil
	}
	c.reconnecting = true
	c.state = Reconnecting
	c.connecting = true
	c.mu.Unlock()

	err := c.joinLoop(ctx, guildID, channelID, mute, deaf)

	c.mu.Lock()
	c.reconnecting = false
	c.connecting = false
	if c.targetChan == channelID {
		if err == nil {
			c.state = Connected
		} else {
			c.targetChan = ""
			c.targetGuild = ""
			c.state = Idle
		}
	}
	c.mu.Unlock()
	return err
}

// HandleVoiceState feeds the controller one of the session's own voice-state
// events. An empty channelID means the session was dropped from voice.
func (c *Controller) HandleVoiceState(guildID, channelID string) {
	c.mu.Lock()
	if c.targetChan == "" || c.connecting {
		// At rest, or a Join loop owns confirmation right now.
		c.mu.Unlock()
		return
	}

	switch {
	case channelID == c.targetChan:
		c.state = Connected
		c.mu.Unlock()

	case channelID == "":
		if c.voluntary {
			c.state = Idle
			c.mu.Unlock()
			return
		}
		c.state = Reconnecting
		c.schedulePendingLocked(c.cfg.ReconnectDelay)
		c.mu.Unlock()
		log.Printf("voice[%s]: dropped from %s, rejoining in %v",
			c.label, c.targetChan, c.cfg.ReconnectDelay)

	default:
		// Moved to another channel: the session is still live, just
		// misplaced, so the return trip uses the shorter delay.
		c.state = Reconnecting
		c.schedulePendingLocked(c.cfg.MoveDelay)
		c.mu.Unlock()
		log.Printf("voice[%s]: moved to %s, returning to %s in %v",
			c.label, channelID, c.targetChan, c.cfg.MoveDelay)
	}
}

// HandleGatewayDown marks the controller Disconnected when the whole session
// drops. No rejoin is scheduled; HandleGatewayUp fires one once the session
// is back online.
func (c *Controller) HandleGatewayDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.targetChan == "" || c.voluntary {
		return
	}
	c.stopPendingLocked()
	c.state = Disconnected
}

// HandleGatewayUp schedules a rejoin if the controller was waiting out a
// gateway outage.
func (c *Controller) HandleGatewayUp() {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.state = Reconnecting
	c.schedulePendingLocked(c.cfg.ReconnectDelay)
	c.mu.Unlock()
}

// schedulePendingLocked arms the rejoin timer. Caller holds c.mu. Only one
// pending rejoin exists at a time; rearming replaces the previous timer.
func (c *Controller) schedulePendingLocked(d time.Duration) {
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
	}
	c.pendingTimer = time.AfterFunc(d, func() {
		if err := c.Reconnect(context.Background()); err != nil {
			log.Printf("voice[%s]: reconnect: %v", c.label, err)
		}
	})
}

// stopPendingLocked disarms any scheduled rejoin. Caller holds c.mu.
func (c *Controller) stopPendingLocked() {
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
		c.pendingTimer = nil
	}
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
