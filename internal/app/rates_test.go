package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/proxynest/payment-service/internal/domain"
	"github.com/proxynest/payment-service/internal/store"
)

type rateRepoStub struct {
	store.Repository

	cached     *domain.CachedExchangeRate
	savedRate  float64
	saveCalled bool
}

func (s *rateRepoStub) GetCachedExchangeRate(ctx context.Context) (*domain.CachedExchangeRate, error) {
	if s.cached == nil {
		return nil, store.ErrRateNotCached
	}
	return s.cached, nil
}

func (s *rateRepoStub) SaveCachedExchangeRate(ctx context.Context, rate float64, updatedAt time.Time) error {
	s.saveCalled = true
	s.savedRate = rate
	return nil
}

type countingFetcher struct {
	rate  float64
	err   error
	calls int
}

func (f *countingFetcher) GetUSDRate(ctx context.Context, currency string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.rate, nil
}

func TestRateServiceUsesFreshCacheWithoutFetching(t *testing.T) {
	repo := &rateRepoStub{cached: &domain.CachedExchangeRate{Rate: 1550, LastUpdated: time.Now().Add(-10 * time.Minute)}}
	fetcher := &countingFetcher{rate: 1700}
	svc := NewRateService(repo, fetcher, time.Hour, 1500)

	if got := svc.GetUSDToNGNRate(context.Background()); got != 1550 {
		t.Fatalf("expected cached rate 1550, got %f", got)
	}
	if fetcher.calls != 0 {
		t.Fatalf("fresh cache must not trigger a fetch, got %d calls", fetcher.calls)
	}
}

func TestRateServiceRefreshesExpiredCache(t *testing.T) {
	repo := &rateRepoStub{cached: &domain.CachedExchangeRate{Rate: 1550, LastUpdated: time.Now().Add(-2 * time.Hour)}}
	fetcher := &countingFetcher{rate: 1700}
	svc := NewRateService(repo, fetcher, time.Hour, 1500)

	if got := svc.GetUSDToNGNRate(context.Background()); got != 1700 {
		t.Fatalf("expected fetched rate 1700, got %f", got)
	}
	if !repo.saveCalled || repo.savedRate != 1700 {
		t.Fatalf("expected refreshed rate to be cached, saveCalled=%t rate=%f", repo.saveCalled, repo.savedRate)
	}
}

func TestRateServiceFallsBackToStaleCache(t *testing.T) {
	repo := &rateRepoStub{cached: &domain.CachedExchangeRate{Rate: 1550, LastUpdated: time.Now().Add(-3 * time.Hour)}}
	fetcher := &countingFetcher{err: errors.New("rate api down")}
	svc := NewRateService(repo, fetcher, time.Hour, 1500)

	if got := svc.GetUSDToNGNRate(context.Background()); got != 1550 {
		t.Fatalf("expected stale cached rate 1550, got %f", got)
	}
}

func TestRateServiceStaticFallback(t *testing.T) {
	repo := &rateRepoStub{}
	fetcher := &countingFetcher{err: errors.New("rate api down")}
	svc := NewRateService(repo, fetcher, time.Hour, 1500)

	if got := svc.GetUSDToNGNRate(context.Background()); got != 1500 {
		t.Fatalf("expected static fallback 1500, got %f", got)
	}
}

func TestConvertUSDToNGNRoundsToWholeNaira(t *testing.T) {
	repo := &rateRepoStub{cached: &domain.CachedExchangeRate{Rate: 1600, LastUpdated: time.Now()}}
	svc := NewRateService(repo, &countingFetcher{}, time.Hour, 1500)

	if got := svc.ConvertUSDToNGN(context.Background(), 5.25); got != 8400 {
		t.Fatalf("expected 8400 naira, got %d", got)
	}
	if got := svc.ConvertUSDToNGN(context.Background(), 0.0005); got != 1 {
		t.Fatalf("expected sub-naira amounts to round up to 1, got %d", got)
	}
}
