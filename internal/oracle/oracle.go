// Package oracle supplies USD-equivalent holding values for wallets. Values
// are advisory: vote weights on the write path always come from the signed
// request, and this package only backs read-side display and reward accrual.
package oracle

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Source resolves a wallet's holding value in USD-equivalent units for a
// token mint.
type Source interface {
	HoldingValue(ctx context.Context, wallet, mint string) (uint64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, wallet, mint string) (uint64, error)

func (f SourceFunc) HoldingValue(ctx context.Context, wallet, mint string) (uint64, error) {
	return f(ctx, wallet, mint)
}

type entry struct {
	value   uint64
	fetched time.Time
}

// Cached is a read-through cache over a Source. Holding values move slowly
// relative to how often reward accrual reads them, so a short TTL keeps the
// upstream call volume flat without going stale.
type Cached struct {
	src    Source
	cache  *lru.Cache[string, entry]
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func NewCached(src Source, size int, ttl time.Duration, logger zerolog.Logger) (*Cached, error) {
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, errors.Wrap(err, "build holding-value cache")
	}
	return &Cached{
		src:    src,
		cache:  c,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("component", "oracle").Logger(),
	}, nil
}

func (c *Cached) HoldingValue(ctx context.Context, wallet, mint string) (uint64, error) {
	key := wallet + "|" + mint
	if e, ok := c.cache.Get(key); ok && c.now().Sub(e.fetched) < c.ttl {
		return e.value, nil
	}
	v, err := c.src.HoldingValue(ctx, wallet, mint)
	if err != nil {
		// Serve the stale value when upstream is down rather than
		// failing the accrual pass.
		if e, ok := c.cache.Get(key); ok {
			c.logger.Warn().Err(err).Str("wallet", wallet).Msg("oracle fetch failed, serving cached value")
			return e.value, nil
		}
		return 0, errors.Wrap(err, "holding value lookup")
	}
	c.cache.Add(key, entry{value: v, fetched: c.now()})
	return v, nil
}
