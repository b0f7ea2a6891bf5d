package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// GatewayConfig holds cache and breaker settings for the gateway.
type GatewayConfig struct {
	CallTimeout     time.Duration
	MarketHoursTTL  time.Duration
	OffHoursTTL     time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration

	// OnProviderStateChange, when set, is called with the provider name and
	// the new breaker state whenever a provider degrades or recovers.
	OnProviderStateChange func(provider, state string)
}

// Gateway fronts one or more providers with a TTL cache and a circuit
// breaker per provider. Providers are tried in order; a tripped breaker
// short-circuits straight to the next one. Optional calendar data reports
// absence instead of failing, so a missing earnings date never blocks a
// downstream evaluation.
type Gateway struct {
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	cache     *ttlCache
	cfg       GatewayConfig
	logger    zerolog.Logger
	loc       *time.Location

	// clock is replaceable in tests.
	clock func() time.Time
}

// NewGateway builds a gateway over providers in priority order.
func NewGateway(cfg GatewayConfig, logger zerolog.Logger, providers ...Provider) *Gateway {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.MarketHoursTTL == 0 {
		cfg.MarketHoursTTL = time.Minute
	}
	if cfg.OffHoursTTL == 0 {
		cfg.OffHoursTTL = 15 * time.Minute
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 2 * time.Minute
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}

	gw := &Gateway{
		providers: providers,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		cache:     newTTLCache(),
		cfg:       cfg,
		logger:    logger.With().Str("component", "marketdata").Logger(),
		loc:       loc,
		clock:     time.Now,
	}

	for _, p := range providers {
		name := p.Name()
		settings := gobreaker.Settings{
			Name:    name,
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				gw.logger.Warn().
					Str("provider", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Provider circuit breaker state changed")
				if cfg.OnProviderStateChange != nil {
					cfg.OnProviderStateChange(name, to.String())
				}
			},
		}
		gw.breakers[name] = gobreaker.NewCircuitBreaker(settings)
	}

	return gw
}

// UnderlyingPrice returns the current price of the underlying, trying each
// provider in order. ErrNoPrice when all providers fail.
func (g *Gateway) UnderlyingPrice(ctx context.Context, symbol string) (float64, error) {
	key := "price:" + symbol
	if v, ok := g.cache.get(key, g.clock()); ok {
		return v.(float64), nil
	}

	v, err := g.tryEach(ctx, symbol, "price", func(ctx context.Context, p Provider) (interface{}, error) {
		return p.UnderlyingPrice(ctx, symbol)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}

	price := v.(float64)
	g.cache.set(key, price, g.currentTTL(), g.clock())
	return price, nil
}

// OptionChain returns the chain for a symbol and expiration.
func (g *Gateway) OptionChain(ctx context.Context, symbol string, expiration time.Time) (*Chain, error) {
	key := "chain:" + symbol + ":" + expiration.Format("2006-01-02")
	if v, ok := g.cache.get(key, g.clock()); ok {
		return v.(*Chain), nil
	}

	v, err := g.tryEach(ctx, symbol, "chain", func(ctx context.Context, p Provider) (interface{}, error) {
		return p.OptionChain(ctx, symbol, expiration)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoChain, symbol, expiration.Format("2006-01-02"))
	}

	chain := v.(*Chain)
	g.cache.set(key, chain, g.currentTTL(), g.clock())
	return chain, nil
}

// Expirations returns the sorted expiration dates available for a symbol.
func (g *Gateway) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	key := "expirations:" + symbol
	if v, ok := g.cache.get(key, g.clock()); ok {
		return v.([]time.Time), nil
	}

	v, err := g.tryEach(ctx, symbol, "expirations", func(ctx context.Context, p Provider) (interface{}, error) {
		return p.Expirations(ctx, symbol)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoChain, symbol)
	}

	dates := v.([]time.Time)
	// Expiration lists only change weekly; the long TTL is fine either way.
	g.cache.set(key, dates, g.cfg.OffHoursTTL, g.clock())
	return dates, nil
}

type earningsResult struct {
	date time.Time
	ok   bool
}

// EarningsDate returns (date, true) when a provider knows the next earnings
// date, (zero, false) when none does. Provider errors degrade to absence.
func (g *Gateway) EarningsDate(ctx context.Context, symbol string) (time.Time, bool) {
	key := "earnings:" + symbol
	if v, ok := g.cache.get(key, g.clock()); ok {
		r := v.(earningsResult)
		return r.date, r.ok
	}

	v, err := g.tryEach(ctx, symbol, "earnings", func(ctx context.Context, p Provider) (interface{}, error) {
		date, ok, err := p.EarningsDate(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return earningsResult{date: date, ok: ok}, nil
	})
	if err != nil {
		// Calendar data is optional. Cache the miss briefly so a flapping
		// provider is not hammered once per position.
		g.cache.set(key, earningsResult{}, g.currentTTL(), g.clock())
		return time.Time{}, false
	}

	r := v.(earningsResult)
	g.cache.set(key, r, g.cfg.OffHoursTTL, g.clock())
	return r.date, r.ok
}

type exDivResult struct {
	div ExDividend
	ok  bool
}

// ExDividendDate returns the next ex-dividend date and amount, if known.
func (g *Gateway) ExDividendDate(ctx context.Context, symbol string) (ExDividend, bool) {
	key := "exdiv:" + symbol
	if v, ok := g.cache.get(key, g.clock()); ok {
		r := v.(exDivResult)
		return r.div, r.ok
	}

	v, err := g.tryEach(ctx, symbol, "exdiv", func(ctx context.Context, p Provider) (interface{}, error) {
		div, ok, err := p.ExDividendDate(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return exDivResult{div: div, ok: ok}, nil
	})
	if err != nil {
		g.cache.set(key, exDivResult{}, g.currentTTL(), g.clock())
		return ExDividend{}, false
	}

	r := v.(exDivResult)
	g.cache.set(key, r, g.cfg.OffHoursTTL, g.clock())
	return r.div, r.ok
}

// PriceHistory returns daily bars for the trailing window.
func (g *Gateway) PriceHistory(ctx context.Context, symbol string, days int) ([]PriceBar, error) {
	key := fmt.Sprintf("history:%s:%d", symbol, days)
	if v, ok := g.cache.get(key, g.clock()); ok {
		return v.([]PriceBar), nil
	}

	v, err := g.tryEach(ctx, symbol, "history", func(ctx context.Context, p Provider) (interface{}, error) {
		return p.PriceHistory(ctx, symbol, days)
	})
	if err != nil {
		return nil, fmt.Errorf("price history for %s: %w", symbol, err)
	}

	bars := v.([]PriceBar)
	g.cache.set(key, bars, g.cfg.OffHoursTTL, g.clock())
	return bars, nil
}

// CacheStats exposes cache hit/miss counters for the health endpoint.
func (g *Gateway) CacheStats() (hits, misses int64) {
	return g.cache.stats()
}

// tryEach runs fn against each provider in order through its breaker,
// returning the first success.
func (g *Gateway) tryEach(ctx context.Context, symbol, op string, fn func(context.Context, Provider) (interface{}, error)) (interface{}, error) {
	var lastErr error
	for _, p := range g.providers {
		breaker := g.breakers[p.Name()]

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		v, err := breaker.Execute(func() (interface{}, error) {
			return fn(callCtx, p)
		})
		cancel()

		if err == nil {
			return v, nil
		}
		lastErr = err

		if errors.Is(err, ErrNotSupported) {
			continue
		}
		g.logger.Debug().
			Err(err).
			Str("provider", p.Name()).
			Str("symbol", symbol).
			Str("op", op).
			Msg("Provider call failed, trying next")
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no providers configured")
	}
	return nil, lastErr
}

// currentTTL shortens the cache TTL during regular US market hours, when
// prices move fast enough that stale data changes decisions.
func (g *Gateway) currentTTL() time.Duration {
	now := g.clock().In(g.loc)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return g.cfg.OffHoursTTL
	}
	minutes := now.Hour()*60 + now.Minute()
	// 09:30-16:00 Eastern.
	if minutes >= 9*60+30 && minutes < 16*60 {
		return g.cfg.MarketHoursTTL
	}
	return g.cfg.OffHoursTTL
}
