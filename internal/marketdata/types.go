package marketdata

import "time"

// OptionQuote is one row of an option chain for a single expiration.
type OptionQuote struct {
	Strike            float64
	Bid               float64
	Ask               float64
	LastPrice         float64
	OpenInterest      int
	Volume            int
	Delta             float64 // 0 when the provider does not supply greeks
	ImpliedVolatility float64
	InTheMoney        bool
}

// Mid returns the mid price, falling back to whichever side is quoted,
// then to the last trade.
func (q OptionQuote) Mid() float64 {
	switch {
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	case q.Ask > 0:
		return q.Ask
	case q.Bid > 0:
		return q.Bid
	default:
		return q.LastPrice
	}
}

// Chain is the option chain for one symbol and expiration.
type Chain struct {
	Symbol     string
	Expiration time.Time
	Calls      []OptionQuote // sorted by strike ascending
	Puts       []OptionQuote // sorted by strike ascending
}

// Quotes returns the call or put side of the chain.
func (c *Chain) Quotes(optionType OptionType) []OptionQuote {
	if optionType == Put {
		return c.Puts
	}
	return c.Calls
}

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ExDividend describes an upcoming ex-dividend date and amount.
type ExDividend struct {
	Date   time.Time
	Amount float64
}

// PriceBar is one day of price history.
type PriceBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}
