package price

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// FetchFunc looks up the live USD price for a currency. Deployments plug
// in a real feed; the default service falls back to configured prices.
type FetchFunc func(ctx context.Context, currency string) (float64, error)

// Service caches prices with a short TTL. On fetch failure it serves the
// last known value (stale) or the configured fallback, so callers never
// block on a dead feed.
type Service struct {
	fetch    FetchFunc
	ttl      time.Duration
	fallback map[string]float64
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]entry
}

type entry struct {
	price     float64
	fetchedAt time.Time
}

// New creates a price service. fetch may be nil, in which case fallback
// prices are authoritative.
func New(fetch FetchFunc, ttl time.Duration, fallback map[string]float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetch:    fetch,
		ttl:      ttl,
		fallback: fallback,
		logger:   logger,
		cache:    make(map[string]entry),
	}
}

// PriceOf returns the USD price per unit of currency
func (s *Service) PriceOf(ctx context.Context, currency string) (float64, error) {
	s.mu.Lock()
	cached, ok := s.cache[currency]
	s.mu.Unlock()

	if ok && time.Since(cached.fetchedAt) < s.ttl {
		return cached.price, nil
	}

	if s.fetch != nil {
		price, err := s.fetch(ctx, currency)
		if err == nil && price > 0 {
			s.mu.Lock()
			s.cache[currency] = entry{price: price, fetchedAt: time.Now()}
			s.mu.Unlock()
			return price, nil
		}
		if err != nil {
			s.logger.Warn("price fetch failed, serving cached or fallback value",
				"currency", currency, "error", err)
		}
	}

	// Stale cache beats a hard failure.
	if ok {
		return cached.price, nil
	}
	if p, exists := s.fallback[currency]; exists {
		return p, nil
	}
	return 0, fmt.Errorf("no price available for %s", currency)
}
