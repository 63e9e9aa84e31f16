package oauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/khanghh/koauth/internal/repo"
	"github.com/stretchr/testify/require"
)

func TestSweepOnce(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	unused := f.issueCode(t, []string{"openid"}, "")
	exchanged := f.issueCode(t, []string{"openid"}, "")
	_, err := f.exchangeCode(exchanged.Code, "")
	require.NoError(err)

	stats, err := f.sweeper.SweepOnce(ctx)
	require.NoError(err)
	require.Zero(stats.Total())

	// codes expired, tokens still live
	f.advance(30 * time.Minute)
	stats, err = f.sweeper.SweepOnce(ctx)
	require.NoError(err)
	require.Equal(int64(1), stats.Codes)
	_, err = f.repos.Codes.First(ctx, repo.Eq("id", unused.ID))
	require.ErrorIs(err, repo.ErrNotFound)
	_, err = f.repos.Codes.First(ctx, repo.Eq("id", exchanged.ID))
	require.NoError(err)

	// access token expired, refresh token still live
	f.advance(time.Hour)
	stats, err = f.sweeper.SweepOnce(ctx)
	require.NoError(err)
	require.Equal(int64(1), stats.AccessTokens)
	require.Zero(stats.Codes)

	// refresh token expired, lineage is now empty
	f.advance(5 * time.Hour)
	stats, err = f.sweeper.SweepOnce(ctx)
	require.NoError(err)
	require.Equal(int64(1), stats.RefreshTokens)
	require.Equal(int64(1), stats.Codes)
	_, err = f.repos.Codes.First(ctx, repo.Eq("id", exchanged.ID))
	require.ErrorIs(err, repo.ErrNotFound)
}

func TestSweeperRunStops(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sweeper.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
