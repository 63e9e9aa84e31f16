package oauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/khanghh/koauth/internal/repo"
	"github.com/khanghh/koauth/model"
	"github.com/khanghh/koauth/params"
)

// SweepStats counts the records removed by one sweep.
type SweepStats struct {
	AccessTokens  int64
	RefreshTokens int64
	Codes         int64
}

func (s SweepStats) Total() int64 {
	return s.AccessTokens + s.RefreshTokens + s.Codes
}

// Sweeper periodically deletes expired credentials. Expiry is always checked
// at use time, so the sweep only reclaims space and a late run is harmless.
type Sweeper struct {
	repos    *Repositories
	interval time.Duration
	clock    func() time.Time
}

// SweepOnce deletes expired access and refresh tokens, unused codes past their
// ttl and used codes whose lineage has no tokens left.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var (
		stats SweepStats
		errs  []error
		now   = s.clock()
	)

	n, err := s.repos.AccessTokens.Delete(ctx, repo.Lt("expires_on", now.UnixMilli()))
	stats.AccessTokens += n
	errs = append(errs, err)

	n, err = s.repos.RefreshTokens.Delete(ctx, repo.Lt("expires_at", now))
	stats.RefreshTokens += n
	errs = append(errs, err)

	n, err = s.repos.Codes.Delete(ctx, repo.Eq("status", model.StatusCreated), repo.Lt("expires_at", now))
	stats.Codes += n
	errs = append(errs, err)

	used, err := s.repos.Codes.Find(ctx, repo.Eq("status", model.StatusUsed), repo.Lt("expires_at", now))
	errs = append(errs, err)
	for _, code := range used {
		orphan, err := s.isOrphan(ctx, code.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !orphan {
			continue
		}
		n, err := s.repos.Codes.Delete(ctx, repo.Eq("id", code.ID))
		stats.Codes += n
		errs = append(errs, err)
	}
	return stats, errors.Join(errs...)
}

func (s *Sweeper) isOrphan(ctx context.Context, authID uint) (bool, error) {
	refreshCount, err := s.repos.RefreshTokens.Count(ctx, repo.Eq("auth_id", authID))
	if err != nil {
		return false, err
	}
	accessCount, err := s.repos.AccessTokens.Count(ctx, repo.Eq("auth_id", authID))
	if err != nil {
		return false, err
	}
	return refreshCount+accessCount == 0, nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.SweepOnce(ctx)
			if err != nil {
				slog.Error("Credential sweep failed", "error", err)
			}
			if stats.Total() > 0 {
				slog.Debug("Swept expired credentials",
					"accessTokens", stats.AccessTokens,
					"refreshTokens", stats.RefreshTokens,
					"codes", stats.Codes,
				)
			}
		}
	}
}

func NewSweeper(repos *Repositories, interval time.Duration, opts Options) *Sweeper {
	opts = opts.withDefaults()
	if interval <= 0 {
		interval = params.SweepInterval
	}
	return &Sweeper{
		repos:    repos,
		interval: interval,
		clock:    opts.Clock,
	}
}
