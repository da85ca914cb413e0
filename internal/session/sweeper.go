package session

import (
	"context"
	"errors"
	"time"

	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/rs/zerolog/log"
)

// Canceler stops the in-flight job of a session
type Canceler interface {
	Cancel(sessionID string) bool
}

// Sweeper periodically reclaims expired sessions and orphaned directories
type Sweeper struct {
	registry   *Registry
	canceler   Canceler
	timeout    time.Duration
	interval   time.Duration
	multiplier int
}

// NewSweeper creates a sweeper. canceler may be nil.
func NewSweeper(registry *Registry, cfg *config.SessionConfig, canceler Canceler) *Sweeper {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = cfg.Timeout / 2
	}
	multiplier := cfg.TerminalMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	return &Sweeper{
		registry:   registry,
		canceler:   canceler,
		timeout:    cfg.Timeout,
		interval:   interval,
		multiplier: multiplier,
	}
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.interval).
		Dur("timeout", s.timeout).
		Msg("session sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session sweeper stopped")
			return
		case now := <-ticker.C:
			if n := s.SweepOnce(ctx, now); n > 0 {
				log.Info().Int("reclaimed", n).Msg("sweep finished")
			}
		}
	}
}

// SweepOnce reclaims every session that expired as of now and returns how many
// were reclaimed. Sessions still in flight expire after the timeout; finished
// ones are kept for timeout * multiplier so results remain downloadable.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) int {
	sessions, err := s.registry.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions for sweep")
		return 0
	}

	reclaimed := 0
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return reclaimed
		}
		if !s.expired(sess, now) {
			continue
		}

		if !sess.Status.Terminal() && s.canceler != nil && s.canceler.Cancel(sess.ID) {
			log.Warn().Str("session_id", sess.ID).Msg("cancelled job of expired session")
		}
		if err := s.registry.Reclaim(ctx, sess.ID); err != nil {
			log.Error().Err(err).Str("session_id", sess.ID).Msg("failed to reclaim expired session")
			continue
		}
		log.Info().
			Str("session_id", sess.ID).
			Str("status", string(sess.Status)).
			Dur("age", sess.Age(now)).
			Msg("expired session reclaimed")
		reclaimed++
	}

	s.sweepOrphans(ctx, now)
	return reclaimed
}

func (s *Sweeper) expired(sess *Session, now time.Time) bool {
	limit := s.timeout
	if sess.Status.Terminal() {
		limit = s.timeout * time.Duration(s.multiplier)
	}
	return sess.Age(now) > limit
}

// sweepOrphans removes directories that have no registry entry and are older
// than the timeout, such as those left behind by a restart.
func (s *Sweeper) sweepOrphans(ctx context.Context, now time.Time) {
	dirs, err := s.registry.Blobs().ListSessions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list session directories")
		return
	}

	for _, dir := range dirs {
		if now.Sub(dir.ModTime) <= s.timeout {
			continue
		}
		_, err := s.registry.Get(ctx, dir.ID)
		if err == nil {
			continue
		}
		if !common.IsKind(err, common.KindNotFound) && !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Str("session_id", dir.ID).Msg("failed to check session directory owner")
			continue
		}
		if err := s.registry.Blobs().RemoveSession(ctx, dir.ID); err != nil {
			log.Error().Err(err).Str("session_id", dir.ID).Msg("failed to remove orphaned directory")
			continue
		}
		log.Info().Str("session_id", dir.ID).Msg("orphaned session directory removed")
	}
}
