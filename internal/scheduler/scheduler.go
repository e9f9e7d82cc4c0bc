// Package scheduler admits paid sessions onto the network and guarantees
// their revocation at expiry, surviving process restarts.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sokonet/sokonet-hotspot/internal/db"
	"github.com/sokonet/sokonet-hotspot/internal/router"
)

// Config tunes the retry and recovery behavior.
type Config struct {
	// MaxAttempts bounds gateway allow/deny attempts per trigger.
	MaxAttempts int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
	// SweepInterval is how often escalated revocations are retried.
	SweepInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		RetryBackoff:  2 * time.Second,
		SweepInterval: time.Minute,
	}
}

// Scheduler drives the paid -> admitted -> expired transitions.
type Scheduler struct {
	db     *db.DB
	gw     router.Router
	config Config
	logger *zap.Logger

	mu       sync.Mutex
	timers   map[string]*time.Timer
	inFlight map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler.
func New(database *db.DB, gw router.Router, config Config, logger *zap.Logger) *Scheduler {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultConfig().RetryBackoff
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:       database,
		gw:       gw,
		config:   config,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		inFlight: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start re-arms timers for every pending revocation on record (overdue ones
// fire immediately), resumes admission for paid sessions whose hand-off was
// lost to a restart, and starts the recovery sweep.
func (s *Scheduler) Start() error {
	pending, err := s.db.ListPendingRevocations()
	if err != nil {
		return fmt.Errorf("failed to load pending revocations: %w", err)
	}

	for _, p := range pending {
		s.armTimer(p.SessionID, p.FireAt)
	}
	if len(pending) > 0 {
		s.logger.Info("re-armed pending revocations", zap.Int("count", len(pending)))
	}

	// The provider was acked when the session became paid and will not
	// retry the callback, so these sessions have no other way back in.
	paid, err := s.db.ListSessions(db.SessionPaid)
	if err != nil {
		return fmt.Errorf("failed to load paid sessions: %w", err)
	}
	for _, session := range paid {
		id := session.ID
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Admit(s.ctx, id)
		}()
	}
	if len(paid) > 0 {
		s.logger.Info("resumed admission for paid sessions", zap.Int("count", len(paid)))
	}

	s.wg.Add(1)
	go s.sweepLoop()

	return nil
}

// Stop cancels timers and the sweep loop.
func (s *Scheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Admit moves a paid session onto the network. It no-ops unless the session
// is currently paid, so duplicate hand-offs and late cancellations are safe.
func (s *Scheduler) Admit(ctx context.Context, sessionID string) {
	session, err := s.db.GetSession(sessionID)
	if err != nil {
		s.logger.Error("admit: failed to load session", zap.Error(err),
			zap.String("session_id", sessionID))
		return
	}
	if session.State != db.SessionPaid {
		s.logger.Debug("admit skipped: session not paid",
			zap.String("session_id", sessionID),
			zap.String("state", string(session.State)),
		)
		return
	}

	tag := sessionTag(sessionID)
	if err := s.withRetry(ctx, func() error {
		return s.gw.Allow(ctx, session.DeviceIdentifier, tag)
	}); err != nil {
		// A paid session must never sit silently un-admitted.
		if _, ferr := s.db.MarkFailed(sessionID, "gateway allow failed: "+err.Error()); ferr != nil {
			s.logger.Error("admit: failed to mark session failed", zap.Error(ferr),
				zap.String("session_id", sessionID))
		}
		s.logger.Error("admission failed after retries, manual intervention required",
			zap.String("session_id", sessionID),
			zap.String("device", session.DeviceIdentifier),
			zap.Error(err),
		)
		return
	}

	expiresAt := session.PaidAt.Add(session.Duration)
	won, err := s.db.AdmitSession(sessionID, expiresAt)
	if err != nil {
		// The grant is live but untracked: no row would revoke it later.
		s.logger.Error("admit: failed to persist admitted transition, rolling back grant",
			zap.Error(err), zap.String("session_id", sessionID))
		s.rollbackGrant(ctx, sessionID, session.DeviceIdentifier, tag)
		return
	}
	if !won {
		// The session moved on while we were talking to the gateway
		// (e.g. independently failed). Roll the grant back, best effort.
		s.logger.Warn("admit lost transition race, rolling back grant",
			zap.String("session_id", sessionID))
		s.rollbackGrant(ctx, sessionID, session.DeviceIdentifier, tag)
		return
	}

	s.armTimer(sessionID, expiresAt)

	s.logger.Info("session admitted",
		zap.String("session_id", sessionID),
		zap.String("device", session.DeviceIdentifier),
		zap.Time("expires_at", expiresAt),
	)
}

// rollbackGrant removes a router grant that was issued but whose admitted
// transition did not stick. Best effort: on failure the grant is only
// reclaimed by manual intervention, so the error is logged loudly.
func (s *Scheduler) rollbackGrant(ctx context.Context, sessionID, deviceIdentifier, tag string) {
	if err := s.gw.Deny(ctx, deviceIdentifier, tag); err != nil {
		s.logger.Error("rollback deny failed", zap.Error(err),
			zap.String("session_id", sessionID),
			zap.String("device", deviceIdentifier))
	}
}

// RunRecovery performs one pass over due revocations. Used by the recover
// command after escalated failures.
func (s *Scheduler) RunRecovery(ctx context.Context) error {
	due, err := s.db.DuePendingRevocations(time.Now())
	if err != nil {
		return fmt.Errorf("failed to list due revocations: %w", err)
	}
	for _, p := range due {
		s.expire(ctx, p.SessionID)
	}
	return nil
}

func (s *Scheduler) armTimer(sessionID string, fireAt time.Time) {
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[sessionID]; ok {
		old.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, sessionID)
		s.mu.Unlock()
		s.expire(s.ctx, sessionID)
	})
}

// expire revokes an admitted session. On gateway failure after retries the
// pending revocation is kept so the sweep (or the recover command) retries:
// revocation must be more reliable than admission.
func (s *Scheduler) expire(ctx context.Context, sessionID string) {
	s.mu.Lock()
	if s.inFlight[sessionID] {
		s.mu.Unlock()
		return
	}
	s.inFlight[sessionID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, sessionID)
		s.mu.Unlock()
	}()

	session, err := s.db.GetSession(sessionID)
	if err != nil {
		s.logger.Error("expire: failed to load session", zap.Error(err),
			zap.String("session_id", sessionID))
		return
	}
	if session.State != db.SessionAdmitted {
		// Stale obligation: the session was failed or already expired.
		if err := s.db.DeletePendingRevocation(sessionID); err != nil {
			s.logger.Error("expire: failed to drop stale revocation", zap.Error(err),
				zap.String("session_id", sessionID))
		}
		return
	}

	tag := sessionTag(sessionID)
	if err := s.withRetry(ctx, func() error {
		return s.gw.Deny(ctx, session.DeviceIdentifier, tag)
	}); err != nil {
		s.logger.Error("revocation failed after retries, keeping pending revocation",
			zap.String("session_id", sessionID),
			zap.String("device", session.DeviceIdentifier),
			zap.Error(err),
		)
		return
	}

	now := time.Now()
	won, err := s.db.ExpireSession(sessionID, now)
	if err != nil {
		s.logger.Error("expire: failed to persist expired transition", zap.Error(err),
			zap.String("session_id", sessionID))
		return
	}
	if !won {
		return
	}

	s.logger.Info("session expired, access revoked",
		zap.String("session_id", sessionID),
		zap.String("device", session.DeviceIdentifier),
	)
}

func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep retries revocations whose timer fired and failed, or that were due
// while the process was down between Start and the first timer.
func (s *Scheduler) sweep() {
	due, err := s.db.DuePendingRevocations(time.Now())
	if err != nil {
		s.logger.Error("sweep: failed to list due revocations", zap.Error(err))
		return
	}
	for _, p := range due {
		s.expire(s.ctx, p.SessionID)
	}
}

func (s *Scheduler) withRetry(ctx context.Context, op func() error) error {
	var err error
	backoff := s.config.RetryBackoff
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == s.config.MaxAttempts {
			break
		}
		s.logger.Warn("gateway call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func sessionTag(sessionID string) string {
	return "session:" + sessionID
}
