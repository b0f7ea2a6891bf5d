package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider is an in-memory provider with settable fixtures, used in
// tests and in offline development mode.
type MockProvider struct {
	mu          sync.RWMutex
	prices      map[string]float64
	chains      map[string]*Chain
	expirations map[string][]time.Time
	earnings    map[string]time.Time
	exDivs      map[string]ExDividend
	history     map[string][]PriceBar
	failures    map[string]error

	priceCalls int
	chainCalls int
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		prices:      make(map[string]float64),
		chains:      make(map[string]*Chain),
		expirations: make(map[string][]time.Time),
		earnings:    make(map[string]time.Time),
		exDivs:      make(map[string]ExDividend),
		history:     make(map[string][]PriceBar),
		failures:    make(map[string]error),
	}
}

func (m *MockProvider) Name() string {
	return "mock"
}

// SetPrice sets the underlying price for a symbol.
func (m *MockProvider) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetChain registers a chain for the symbol and its expiration, and adds
// the expiration to the symbol's expiration list.
func (m *MockProvider) SetChain(chain *Chain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains[chainKey(chain.Symbol, chain.Expiration)] = chain

	for _, d := range m.expirations[chain.Symbol] {
		if d.Equal(chain.Expiration) {
			return
		}
	}
	m.expirations[chain.Symbol] = append(m.expirations[chain.Symbol], chain.Expiration)
	sortTimes(m.expirations[chain.Symbol])
}

// SetEarnings sets the next earnings date for a symbol.
func (m *MockProvider) SetEarnings(symbol string, date time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earnings[symbol] = date
}

// SetExDividend sets the next ex-dividend date for a symbol.
func (m *MockProvider) SetExDividend(symbol string, div ExDividend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exDivs[symbol] = div
}

// SetHistory sets daily price history for a symbol.
func (m *MockProvider) SetHistory(symbol string, bars []PriceBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[symbol] = bars
}

// FailSymbol makes every price lookup for the symbol return err.
func (m *MockProvider) FailSymbol(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[symbol] = err
}

// PriceCalls reports how many price lookups reached the provider, letting
// tests assert on per-scan cache collapsing.
func (m *MockProvider) PriceCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.priceCalls
}

func (m *MockProvider) UnderlyingPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	m.priceCalls++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.failures[symbol]; ok {
		return 0, err
	}
	price, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("mock: no price for %s", symbol)
	}
	return price, nil
}

func (m *MockProvider) OptionChain(ctx context.Context, symbol string, expiration time.Time) (*Chain, error) {
	m.mu.Lock()
	m.chainCalls++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.failures[symbol]; ok {
		return nil, err
	}
	chain, ok := m.chains[chainKey(symbol, expiration)]
	if !ok {
		return nil, ErrNoChain
	}
	return chain, nil
}

func (m *MockProvider) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.failures[symbol]; ok {
		return nil, err
	}
	dates, ok := m.expirations[symbol]
	if !ok {
		return nil, ErrNoChain
	}
	out := make([]time.Time, len(dates))
	copy(out, dates)
	return out, nil
}

func (m *MockProvider) EarningsDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	date, ok := m.earnings[symbol]
	return date, ok, nil
}

func (m *MockProvider) ExDividendDate(ctx context.Context, symbol string) (ExDividend, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	div, ok := m.exDivs[symbol]
	return div, ok, nil
}

func (m *MockProvider) PriceHistory(ctx context.Context, symbol string, days int) ([]PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars, ok := m.history[symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no history for %s", symbol)
	}
	out := make([]PriceBar, len(bars))
	copy(out, bars)
	return out, nil
}

func chainKey(symbol string, expiration time.Time) string {
	return symbol + ":" + expiration.Format("2006-01-02")
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}
