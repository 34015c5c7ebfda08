/**
 * @description
 * This file contains the exchange-rate service used to convert provider USD
 * prices into naira. Rates are cached in the database with a configurable
 * TTL. When the upstream rate API fails, the last cached rate is reused
 * regardless of age; a static fallback rate is the final resort so pricing
 * never hard-fails on a rate outage.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - internal/store: For the cached rate row.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/proxynest/payment-service/internal/store"
)

// RateFetcher fetches a live USD -> currency exchange rate.
type RateFetcher interface {
	GetUSDRate(ctx context.Context, currency string) (float64, error)
}

// RateService resolves the current USD -> NGN rate with caching and fallbacks.
type RateService struct {
	repo         store.Repository
	fetcher      RateFetcher
	cacheTTL     time.Duration
	fallbackRate float64
	now          func() time.Time
}

// NewRateService creates a new exchange-rate service.
func NewRateService(repo store.Repository, fetcher RateFetcher, cacheTTL time.Duration, fallbackRate float64) *RateService {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if fallbackRate <= 0 {
		fallbackRate = 1500
	}
	return &RateService{
		repo:         repo,
		fetcher:      fetcher,
		cacheTTL:     cacheTTL,
		fallbackRate: fallbackRate,
		now:          time.Now,
	}
}

// GetUSDToNGNRate returns the rate used to price provider services in naira.
// Resolution order: fresh cache, live fetch, stale cache, static fallback.
// The returned rate is always positive; this method never fails.
func (s *RateService) GetUSDToNGNRate(ctx context.Context) float64 {
	cached, err := s.repo.GetCachedExchangeRate(ctx)
	if err != nil && !errors.Is(err, store.ErrRateNotCached) {
		log.Printf("level=warn component=rate_service msg=\"cached rate lookup failed\" err=%v", err)
	}

	if cached != nil && s.now().Sub(cached.LastUpdated) < s.cacheTTL {
		return cached.Rate
	}

	rate, err := s.fetcher.GetUSDRate(ctx, "NGN")
	if err == nil && rate > 0 {
		if saveErr := s.repo.SaveCachedExchangeRate(ctx, rate, s.now()); saveErr != nil {
			log.Printf("level=warn component=rate_service msg=\"failed to cache exchange rate\" err=%v", saveErr)
		}
		return rate
	}
	log.Printf("level=warn component=rate_service msg=\"live rate fetch failed\" err=%v", err)

	if cached != nil && cached.Rate > 0 {
		log.Printf("level=warn component=rate_service msg=\"using stale cached rate\" rate=%f age=%s", cached.Rate, s.now().Sub(cached.LastUpdated))
		return cached.Rate
	}

	log.Printf("level=error component=rate_service msg=\"no cached rate available; using static fallback\" rate=%f", s.fallbackRate)
	return s.fallbackRate
}

// ConvertUSDToNGN converts a USD amount to whole naira using the current rate.
func (s *RateService) ConvertUSDToNGN(ctx context.Context, amountUSD float64) int64 {
	rate := s.GetUSDToNGNRate(ctx)
	return int64(amountUSD*rate + 0.5)
}
