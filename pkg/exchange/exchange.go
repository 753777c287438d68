// Package exchange holds the venue adapters behind core.Exchange: Binance
// through its SDK, Coinbase Pro and Kucoin through plain REST, a scripted
// dummy for tests and a CSV feed for offline simulation input.
package exchange

import (
	"fmt"
	"strings"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/logger"
)

// Market is a parsed trading pair. Format renders it back in the venue's
// own symbology.
type Market struct {
	Base  string
	Quote string
}

// knownQuotes resolves concatenated Binance symbols. Longest first so that
// BTCUSDT does not split as BTC/USD + T.
var knownQuotes = []string{
	"USDT", "BUSD", "USDC", "TUSD", "GBP", "EUR", "USD", "BTC", "ETH", "BNB", "DAI",
}

// ParseMarket splits a venue-formatted market symbol into base and quote.
func ParseMarket(name core.ExchangeName, market string) (Market, error) {
	if market == "" {
		return Market{}, fmt.Errorf("%w: empty symbol", core.ErrInvalidMarket)
	}

	if name == core.Binance {
		for _, quote := range knownQuotes {
			if len(market) > len(quote) && strings.HasSuffix(market, quote) {
				return Market{Base: market[:len(market)-len(quote)], Quote: quote}, nil
			}
		}
		return Market{}, fmt.Errorf("%w: %q has no recognized quote asset", core.ErrInvalidMarket, market)
	}

	base, quote, ok := strings.Cut(market, "-")
	if !ok || base == "" || quote == "" {
		return Market{}, fmt.Errorf("%w: %q is not BASE-QUOTE", core.ErrInvalidMarket, market)
	}
	return Market{Base: base, Quote: quote}, nil
}

// Format renders the pair in the venue's symbology: concatenated on
// Binance, dash separated elsewhere.
func (m Market) Format(name core.ExchangeName) string {
	if name == core.Binance {
		return m.Base + m.Quote
	}
	return m.Base + "-" + m.Quote
}

func (m Market) String() string { return m.Base + "-" + m.Quote }

// New builds the exchange adapter selected by cfg.
func New(cfg *config.Config, log logger.Logger) (core.Exchange, error) {
	switch cfg.Exchange {
	case core.Binance:
		return NewBinance(cfg, log)
	case core.CoinbasePro:
		return NewCoinbasePro(cfg, log)
	case core.Kucoin:
		return NewKucoin(cfg, log)
	case core.Dummy:
		return NewDummy(cfg.Market), nil
	default:
		return nil, fmt.Errorf("unsupported exchange %q", cfg.Exchange)
	}
}
