// Package rolesync runs the scheduled leaderboard job: on each cron tick it
// reads the top scorers for a guild from the store and grants them a role
// through the first available online session.
package rolesync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/roundhouse/internal/db"
	"github.com/zulandar/roundhouse/internal/fleet"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// Fleet is the slice of the session manager the job drives.
type Fleet interface {
	Snapshot() []fleet.SessionInfo
	SyncRoles(ctx context.Context, id, guildID, roleID string, userIDs []string) fleet.SessionReport
}

// ErrNoSession is returned by a tick that found no online session free to
// run the grant batch.
var ErrNoSession = errors.New("rolesync: no online session available")

// Opts configures a Job. DB, Fleet, Cron, GuildID and RoleID are required.
type Opts struct {
	DB      *gorm.DB
	Fleet   Fleet
	Cron    string
	GuildID string
	RoleID  string
	// Top is how many leaderboard rows each tick considers. Defaults to 10.
	Top int
	// TickTimeout bounds one tick's grant batch. Defaults to 5 minutes.
	TickTimeout time.Duration
}

// Job is the scheduled role-sync worker.
type Job struct {
	gdb     *gorm.DB
	fleet   Fleet
	cron    string
	guildID string
	roleID  string
	top     int
	timeout time.Duration
}

// New validates options and builds a Job. It does not start the schedule;
// call Run.
func New(o Opts) (*Job, error) {
	if o.DB == nil || o.Fleet == nil {
		return nil, errors.New("rolesync: db and fleet are required")
	}
	if o.GuildID == "" || o.RoleID == "" {
		return nil, errors.New("rolesync: guild and role ids are required")
	}
	if _, err := cronParser.Parse(o.Cron); err != nil {
		return nil, fmt.Errorf("rolesync: parse schedule %q: %w", o.Cron, err)
	}
	if o.Top <= 0 {
		o.Top = 10
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = 5 * time.Minute
	}
	return &Job{
		gdb:     o.DB,
		fleet:   o.Fleet,
		cron:    o.Cron,
		guildID: o.GuildID,
		roleID:  o.RoleID,
		top:     o.Top,
		timeout: o.TickTimeout,
	}, nil
}

// Run fires the job on its cron schedule until the context is cancelled.
// Tick failures are logged and never stop the schedule.
func (j *Job) Run(ctx context.Context) {
	d := nextCronDuration(j.cron)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			tickCtx, cancel := context.WithTimeout(ctx, j.timeout)
			if _, err := j.RunOnce(tickCtx); err != nil {
				log.Printf("rolesync: tick: %v", err)
			}
			cancel()
			if d := nextCronDuration(j.cron); d > 0 {
				timer.Reset(d)
			} else {
				return
			}
		}
	}
}

// RunOnce performs one tick: rank the guild's scorers and grant the role to
// the top entries through an online session.
func (j *Job) RunOnce(ctx context.Context) (fleet.SessionReport, error) {
	scores, err := db.TopScores(j.gdb, j.guildID, j.top)
	if err != nil {
		return fleet.SessionReport{}, fmt.Errorf("rolesync: rank scores: %w", err)
	}
	if len(scores) == 0 {
		return fleet.SessionReport{}, nil
	}
	userIDs := make([]string, len(scores))
	for i, s := range scores {
		userIDs[i] = s.UserID
	}

	id, err := j.pickSession()
	if err != nil {
		return fleet.SessionReport{}, err
	}
	rep := j.fleet.SyncRoles(ctx, id, j.guildID, j.roleID, userIDs)
	log.Printf("rolesync: %s: %s", rep.Label, rep.Message)
	return rep, nil
}

// pickSession returns the first online session with no job running.
func (j *Job) pickSession() (string, error) {
	for _, info := range j.fleet.Snapshot() {
		if info.Status == fleet.Online.String() && !info.JobRunning {
			return info.ID, nil
		}
	}
	return "", ErrNoSession
}
