package office

import (
	"context"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/halolight/halolight-api-go/internal/auth"
)

// Stats returns the caller's dashboard. Results are cached per user and
// invalidated by the caller's own writes; other users' writes show up once
// the entry expires.
func (s *Service) Stats(ctx context.Context, actor auth.Identity) (DashboardStats, error) {
	key := statsKey(actor.UserID)
	if s.stats != nil {
		if v, ok := s.stats.Get(key); ok {
			return v.(DashboardStats), nil
		}
	}

	var stats DashboardStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalUsers, err = s.store.CountUsers(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveUsers, err = s.store.CountUsers(gctx, auth.StatusActive)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalDocuments, err = s.store.CountDocuments(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		stats.MyDocuments, err = s.store.CountDocuments(gctx, actor.UserID)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalTeams, err = s.store.CountTeams(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		stats.MyTeams, err = s.store.CountTeams(gctx, actor.UserID)
		return err
	})
	g.Go(func() (err error) {
		stats.UnreadNotifications, err = s.store.CountUnread(gctx, actor.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardStats{}, err
	}

	if s.stats != nil {
		s.stats.Set(key, stats, cache.DefaultExpiration)
	}
	return stats, nil
}

func (s *Service) invalidateStats(userID string) {
	if s.stats != nil && userID != "" {
		s.stats.Delete(statsKey(userID))
	}
}

func statsKey(userID string) string { return "stats:" + userID }
