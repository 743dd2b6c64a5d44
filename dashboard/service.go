package dashboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dealflow/workspace"
)

const (
	statsKeyPrefix = "dashboard:stats"
	generationKey  = "dashboard:stats:generation"

	DefaultCacheTTL = 30 * time.Second
)

// Stats is the dashboard summary.
type Stats struct {
	ReferralCount  int64   `json:"referralCount"`
	DealCount      int64   `json:"dealCount"`
	TotalDealValue float64 `json:"totalDealValue"`
	ConversionRate int64   `json:"conversionRate"`
}

// Cache is the subset of the Redis cache the dashboard needs.
type Cache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	store      Store
	cache      Cache
	ttl        time.Duration
	visibility workspace.Visibility
	logger     logrus.FieldLogger
	observe    func(result string)
}

func NewService(store Store, cache Cache, ttl time.Duration, logger logrus.FieldLogger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:      store,
		cache:      cache,
		ttl:        ttl,
		visibility: workspace.Shared,
		logger:     logger,
		observe:    func(string) {},
	}
}

func (s *Service) WithVisibility(v workspace.Visibility) *Service {
	s.visibility = v
	return s
}

// WithCacheObserver receives "hit", "miss" or "error" for every cached lookup.
func (s *Service) WithCacheObserver(fn func(result string)) *Service {
	if fn != nil {
		s.observe = fn
	}
	return s
}

// Stats returns the summary visible to viewerID. Cache failures degrade to a
// direct computation.
func (s *Service) Stats(ctx context.Context, viewerID string) (Stats, error) {
	scope := s.visibility.For(viewerID)
	if s.cache == nil {
		return s.compute(ctx, scope)
	}

	gen, err := s.cache.Counter(ctx, generationKey)
	if err != nil {
		s.observe("error")
		return s.compute(ctx, scope)
	}
	key := cacheKey(scope, gen)

	var cached Stats
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	switch {
	case err != nil:
		s.observe("error")
	case hit:
		s.observe("hit")
		return cached, nil
	default:
		s.observe("miss")
	}

	stats, err := s.compute(ctx, scope)
	if err != nil {
		return Stats{}, err
	}
	if err := s.cache.SetJSON(ctx, key, stats, s.ttl); err != nil {
		s.logger.WithError(err).Debug("dashboard: store stats in cache")
	}
	return stats, nil
}

// Invalidate moves readers to a fresh cache generation after ownerID wrote a
// record. Entries computed under an older generation are never read again, even
// if written after this call. When the generation cannot be bumped, the entry
// ownerID would read next is deleted instead.
func (s *Service) Invalidate(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	_, err := s.cache.Incr(ctx, generationKey)
	if err == nil {
		return
	}
	s.logger.WithError(err).Warn("dashboard: bump stats cache generation")

	gen, err := s.cache.Counter(ctx, generationKey)
	if err != nil {
		s.logger.WithError(err).Warn("dashboard: read stats cache generation")
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(s.visibility.For(ownerID), gen)); err != nil {
		s.logger.WithError(err).Warn("dashboard: drop cached stats")
	}
}

func (s *Service) compute(ctx context.Context, scope workspace.Scope) (Stats, error) {
	var (
		referrals int64
		deals     DealTotals
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountReferrals(gctx, scope)
		referrals = n
		return err
	})
	g.Go(func() error {
		t, err := s.store.DealTotals(gctx, scope)
		deals = t
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	return Stats{
		ReferralCount:  referrals,
		DealCount:      deals.Count,
		TotalDealValue: deals.TotalValue,
		ConversionRate: ConversionRate(deals.WithReferral, referrals),
	}, nil
}

// ConversionRate is round(100 * dealsWithReferral / referrals), 0 with no referrals.
// Several deals on one referral each count, so the rate can exceed 100.
func ConversionRate(dealsWithReferral, referrals int64) int64 {
	if referrals <= 0 {
		return 0
	}
	return int64(math.Round(100 * float64(dealsWithReferral) / float64(referrals)))
}

func cacheKey(scope workspace.Scope, gen int64) string {
	if scope.Visibility == workspace.OwnerOnly {
		return fmt.Sprintf("%s:%s:%s:%d", statsKeyPrefix, scope.Visibility, scope.ViewerID, gen)
	}
	return fmt.Sprintf("%s:%s:%d", statsKeyPrefix, scope.Visibility, gen)
}
