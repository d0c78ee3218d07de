package mutes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sadbox/boltbot/pkg/store"
)

const (
	// MaxSleep bounds the wait between sweeps, so a lost Restart delays an
	// expiry by at most this long.
	MaxSleep = time.Hour
	// CallTimeout applies to each membership call made during a sweep.
	CallTimeout = 10 * time.Second

	minBackoff = time.Second
	maxBackoff = time.Minute
)

// Scheduler expires mutes. A single Run loop sweeps all due mutes, then
// sleeps until the next one is due or Restart is called.
type Scheduler struct {
	store   SweepStore
	members Members
	log     *slog.Logger
	restart chan struct{}

	now         func() time.Time
	maxSleep    time.Duration
	callTimeout time.Duration
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

func NewScheduler(st SweepStore, members Members, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:       st,
		members:     members,
		log:         log,
		restart:     make(chan struct{}, 1),
		now:         time.Now,
		maxSleep:    MaxSleep,
		callTimeout: CallTimeout,
		minBackoff:  minBackoff,
		maxBackoff:  maxBackoff,
	}
}

// Restart cuts the current wait short so the loop sweeps again immediately.
// It never blocks. Calls made while a sweep is running cause one more sweep.
func (s *Scheduler) Restart() {
	select {
	case s.restart <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. If the loop fails it is logged and
// started again after a backoff.
func (s *Scheduler) Run(ctx context.Context) {
	backoff := s.minBackoff
	for {
		sweeps, err := s.loop(ctx)
		if ctx.Err() != nil {
			s.log.Info("Mute scheduler stopped")
			return
		}
		if sweeps > 0 {
			backoff = s.minBackoff
		}
		s.log.Error("Mute scheduler failed, restarting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

// loop sweeps and waits until ctx is done or a sweep fails. It returns the
// number of sweeps that completed.
func (s *Scheduler) loop(ctx context.Context) (sweeps int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in mute scheduler: %v", r)
		}
	}()

	for {
		wait, err := s.sweep(ctx)
		if err != nil {
			return sweeps, err
		}
		sweeps++

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return sweeps, ctx.Err()
		case <-s.restart:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// sweep expires every due mute and returns how long to wait before the next
// sweep. Failures on a single mute are logged and do not stop the sweep.
func (s *Scheduler) sweep(ctx context.Context) (time.Duration, error) {
	mutes, err := s.store.ActiveMutesOrderedByExpiry(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading active mutes: %w", err)
	}

	due := dueMutes(mutes, s.now())
	for _, m := range due {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := s.expire(ctx, m); err != nil {
			s.log.Error("Failed to expire mute",
				"infraction_id", m.InfractionID, "guild_id", m.GuildID, "user_id", m.UserID, "error", err)
		}
	}
	if len(due) > 0 {
		s.log.Info("Mute sweep finished", "due", len(due), "pending", len(mutes)-len(due))
	}
	return nextWait(mutes[len(due):], s.now(), s.maxSleep), nil
}

// expire lifts one due mute. Without a configured or existing mute role the
// mute is left active. A member who left the guild only has the record
// deactivated.
func (s *Scheduler) expire(ctx context.Context, m store.Mute) error {
	roleID, ok, err := s.store.GetMuteRole(ctx, m.GuildID)
	if err != nil {
		return fmt.Errorf("getting mute role: %w", err)
	}
	if !ok {
		s.log.Debug("No mute role configured, skipping mute", "infraction_id", m.InfractionID, "guild_id", m.GuildID)
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	role, ok, err := s.members.ResolveRole(callCtx, m.GuildID, roleID)
	cancel()
	if err != nil {
		return fmt.Errorf("resolving mute role %d: %w", roleID, err)
	}
	if !ok {
		s.log.Debug("Mute role no longer exists, skipping mute", "infraction_id", m.InfractionID, "role_id", roleID)
		return nil
	}

	callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
	member, ok, err := s.members.ResolveMember(callCtx, m.GuildID, m.UserID)
	cancel()
	if err != nil {
		return fmt.Errorf("resolving member: %w", err)
	}
	if ok {
		callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
		err := s.members.RemoveRole(callCtx, member, role)
		cancel()
		if err != nil {
			return fmt.Errorf("removing mute role: %w", err)
		}
	} else {
		s.log.Info("Muted member left the guild", "infraction_id", m.InfractionID, "user_id", m.UserID)
	}

	if err := s.store.DeactivateMute(ctx, m.InfractionID); err != nil {
		return err
	}
	s.log.Info("Mute expired", "infraction_id", m.InfractionID, "guild_id", m.GuildID, "user_id", m.UserID)
	return nil
}

// dueMutes returns the prefix of mutes, sorted by expiry, that has expired
// at now.
func dueMutes(mutes []store.Mute, now time.Time) []store.Mute {
	for i, m := range mutes {
		if m.Expiry.After(now) {
			return mutes[:i]
		}
	}
	return mutes
}

// nextWait returns the time until the first of pending expires, capped at
// maxSleep and never negative. With nothing pending it returns maxSleep.
func nextWait(pending []store.Mute, now time.Time, maxSleep time.Duration) time.Duration {
	if len(pending) == 0 {
		return maxSleep
	}
	return max(0, min(pending[0].Expiry.Sub(now), maxSleep))
}
