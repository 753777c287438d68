package exchange

import (
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlebot/candlebot/pkg/core"
)

func TestParseMarket(t *testing.T) {
	tests := []struct {
		name     string
		exchange core.ExchangeName
		market   string
		base     string
		quote    string
		wantErr  bool
	}{
		{"coinbase dash", core.CoinbasePro, "BTC-GBP", "BTC", "GBP", false},
		{"kucoin dash", core.Kucoin, "ADA-USDT", "ADA", "USDT", false},
		{"binance usdt", core.Binance, "BTCUSDT", "BTC", "USDT", false},
		{"binance busd", core.Binance, "ETHBUSD", "ETH", "BUSD", false},
		{"binance gbp", core.Binance, "DOGEGBP", "DOGE", "GBP", false},
		{"binance btc quote", core.Binance, "ETHBTC", "ETH", "BTC", false},
		{"binance unknown quote", core.Binance, "BTCXYZ", "", "", true},
		{"binance quote only", core.Binance, "USDT", "", "", true},
		{"missing dash", core.CoinbasePro, "BTCUSD", "", "", true},
		{"empty", core.CoinbasePro, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMarket(tt.exchange, tt.market)
			if tt.wantErr {
				require.ErrorIs(t, err, core.ErrInvalidMarket)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.base, m.Base)
			assert.Equal(t, tt.quote, m.Quote)
		})
	}
}

func TestMarketFormat(t *testing.T) {
	m := Market{Base: "BTC", Quote: "USDT"}
	assert.Equal(t, "BTCUSDT", m.Format(core.Binance))
	assert.Equal(t, "BTC-USDT", m.Format(core.CoinbasePro))
	assert.Equal(t, "BTC-USDT", m.String())
}

func TestNormalizeBinanceStatus(t *testing.T) {
	assert.Equal(t, core.OrderStatusOpen, normalizeBinanceStatus(binance.OrderStatusTypeNew))
	assert.Equal(t, core.OrderStatusOpen, normalizeBinanceStatus(binance.OrderStatusTypePartiallyFilled))
	assert.Equal(t, core.OrderStatusDone, normalizeBinanceStatus(binance.OrderStatusTypeFilled))
	assert.Equal(t, core.OrderStatusPending, normalizeBinanceStatus(binance.OrderStatusTypePendingCancel))
	assert.Equal(t, core.OrderStatusCanceled, normalizeBinanceStatus(binance.OrderStatusTypeCanceled))
	assert.Equal(t, core.OrderStatusCanceled, normalizeBinanceStatus(binance.OrderStatusTypeRejected))
	assert.Equal(t, core.OrderStatusCanceled, normalizeBinanceStatus(binance.OrderStatusTypeExpired))
}

func TestNormalizeCoinbaseStatus(t *testing.T) {
	assert.Equal(t, core.OrderStatusOpen, normalizeCoinbaseStatus("open"))
	assert.Equal(t, core.OrderStatusOpen, normalizeCoinbaseStatus("received"))
	assert.Equal(t, core.OrderStatusPending, normalizeCoinbaseStatus("pending"))
	assert.Equal(t, core.OrderStatusDone, normalizeCoinbaseStatus("done"))
	assert.Equal(t, core.OrderStatusDone, normalizeCoinbaseStatus("settled"))
	assert.Equal(t, core.OrderStatusActive, normalizeCoinbaseStatus("active"))
	assert.Equal(t, core.OrderStatusCanceled, normalizeCoinbaseStatus("rejected"))
}

func TestConvertCoinbaseOrder(t *testing.T) {
	order := convertCoinbaseOrder("BTC-USD", coinbaseOrder{
		Side:          "buy",
		Status:        "done",
		Funds:         "100.00",
		FilledSize:    "0.002",
		ExecutedValue: "99.50",
		FillFees:      "0.50",
		CreatedAt:     "2024-03-01T10:00:00Z",
		DoneAt:        "2024-03-01T10:00:01Z",
	})

	assert.Equal(t, core.ActionBuy, order.Action)
	assert.Equal(t, core.OrderStatusDone, order.Status)
	assert.InDelta(t, 49750.0, order.Price, 1e-9)
	assert.Equal(t, 100.0, order.Size)
	assert.Equal(t, 0.002, order.Filled)
	assert.Equal(t, 0.5, order.Fees)
	assert.True(t, order.UpdatedAt.After(order.CreatedAt))
}

func TestConvertKucoinOrder(t *testing.T) {
	order := convertKucoinOrder("BTC-USDT", kucoinOrder{
		Side:      "sell",
		Funds:     "",
		DealFunds: "199.00",
		DealSize:  "0.004",
		Fee:       "0.20",
		IsActive:  false,
		CreatedAt: 1709287200000,
	})

	assert.Equal(t, core.ActionSell, order.Action)
	assert.Equal(t, core.OrderStatusDone, order.Status)
	assert.InDelta(t, 49750.0, order.Price, 1e-9)
	assert.Equal(t, 0.004, order.Size)
	assert.Equal(t, 0.004, order.Filled)
	assert.Equal(t, 0.2, order.Fees)
}
