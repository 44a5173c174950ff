package jobs // package jobs holds background work scheduled with cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ResetTokenStore clears password reset tokens whose expiry has passed.
type ResetTokenStore interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// TokenSweeper periodically removes expired reset tokens so stale links
// stop matching any account even if nobody tries to use them.
type TokenSweeper struct {
	store   ResetTokenStore
	cron    *cron.Cron
	spec    string
	timeout time.Duration
	now     func() time.Time
}

// NewTokenSweeper builds a sweeper running on spec (e.g. "@every 15m").
func NewTokenSweeper(store ResetTokenStore, spec string) *TokenSweeper {
	return &TokenSweeper{
		store:   store,
		cron:    cron.New(),
		spec:    spec,
		timeout: time.Minute,
		now:     time.Now,
	}
}

// Start schedules the sweep and starts the cron runner.
func (s *TokenSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return fmt.Errorf("schedule token sweep %q: %w", s.spec, err)
	}
	s.cron.Start()
	slog.Info("token sweeper started", "spec", s.spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *TokenSweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("token sweeper stopped")
}

func (s *TokenSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.store.ClearExpiredResetTokens(ctx, s.now())
	if err != nil {
		slog.Error("token sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("expired reset tokens cleared", "count", n)
	}
}
