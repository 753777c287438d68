package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/logger"
)

const coinbaseAPIURL = "https://api.exchange.coinbase.com"

// CoinbaseProExchange talks to the Coinbase Pro (Coinbase Exchange) REST
// API. Market symbols are dash separated (BTC-USD).
type CoinbaseProExchange struct {
	client     *restClient
	key        string
	secret     string
	passphrase string
	takerFee   float64
	makerFee   float64
}

// NewCoinbasePro builds the adapter. Credentials may be empty for public
// endpoints (history, ticker, time), which is all simulation needs.
func NewCoinbasePro(cfg *config.Config, log logger.Logger) (*CoinbaseProExchange, error) {
	base := coinbaseAPIURL
	if cfg.APIURL != "" {
		base = cfg.APIURL
	}

	c := &CoinbaseProExchange{
		key:        cfg.APIKey,
		secret:     cfg.APISecret,
		passphrase: cfg.APIPassphrase,
		takerFee:   core.DefaultTakerFee(core.CoinbasePro),
		makerFee:   core.DefaultTakerFee(core.CoinbasePro),
	}
	c.client = newRESTClient(base, log, c.signRequest)
	return c, nil
}

// signRequest applies the CB-ACCESS-* HMAC scheme. Unauthenticated clients
// leave the headers off so public endpoints keep working.
func (c *CoinbaseProExchange) signRequest(req *http.Request, body []byte) error {
	if c.key == "" {
		return nil
	}

	secret, err := base64.StdEncoding.DecodeString(c.secret)
	if err != nil {
		return fmt.Errorf("decode api secret: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + req.Method + path))
	mac.Write(body)

	req.Header.Set("CB-ACCESS-KEY", c.key)
	req.Header.Set("CB-ACCESS-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("CB-ACCESS-PASSPHRASE", c.passphrase)
	return nil
}

func (c *CoinbaseProExchange) Name() core.ExchangeName { return core.CoinbasePro }

func (c *CoinbaseProExchange) GetTakerFee() float64 { return c.takerFee }
func (c *CoinbaseProExchange) GetMakerFee() float64 { return c.makerFee }

// GetHistoricalData returns up to 300 candles oldest first. The venue sends
// them newest first in [time, low, high, open, close, volume] rows.
func (c *CoinbaseProExchange) GetHistoricalData(ctx context.Context, market string, granularity core.Granularity, start, end time.Time) ([]core.Candle, error) {
	query := url.Values{"granularity": {strconv.Itoa(granularity.Seconds())}}
	if !start.IsZero() {
		query.Set("start", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		query.Set("end", end.UTC().Format(time.RFC3339))
	}

	var rows [][6]float64
	if err := c.client.get(ctx, "/products/"+market+"/candles", query, &rows); err != nil {
		return nil, err
	}

	candles := make([]core.Candle, 0, len(rows))
	for _, row := range rows {
		candles = append(candles, core.Candle{
			Market:      market,
			Granularity: granularity,
			Time:        time.Unix(int64(row[0]), 0).UTC(),
			Low:         row[1],
			High:        row[2],
			Open:        row[3],
			Close:       row[4],
			Volume:      row[5],
			Complete:    true,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

func (c *CoinbaseProExchange) GetTicker(ctx context.Context, market string) (float64, error) {
	var out struct {
		Price string `json:"price"`
	}
	if err := c.client.get(ctx, "/products/"+market+"/ticker", nil, &out); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(out.Price, 64)
}

func (c *CoinbaseProExchange) GetTime(ctx context.Context) (time.Time, error) {
	var out struct {
		Epoch float64 `json:"epoch"`
	}
	if err := c.client.get(ctx, "/time", nil, &out); err != nil {
		return time.Time{}, err
	}
	sec := int64(out.Epoch)
	nsec := int64((out.Epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC(), nil
}

func (c *CoinbaseProExchange) GetBalance(ctx context.Context, currency string) (float64, error) {
	var accounts []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
	}
	if err := c.client.get(ctx, "/accounts", nil, &accounts); err != nil {
		return 0, err
	}
	for _, acc := range accounts {
		if acc.Currency == currency {
			return strconv.ParseFloat(acc.Available, 64)
		}
	}
	return 0, nil
}

type coinbaseOrder struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	Funds         string `json:"specified_funds"`
	FilledSize    string `json:"filled_size"`
	ExecutedValue string `json:"executed_value"`
	FillFees      string `json:"fill_fees"`
	CreatedAt     string `json:"created_at"`
	DoneAt        string `json:"done_at"`
}

func (c *CoinbaseProExchange) GetOrders(ctx context.Context, market string, action core.ActionType, status core.OrderStatus) ([]core.Order, error) {
	query := url.Values{"product_id": {market}, "status": {"all"}}

	var raw []coinbaseOrder
	if err := c.client.get(ctx, "/orders", query, &raw); err != nil {
		return nil, err
	}

	orders := make([]core.Order, 0, len(raw))
	for _, o := range raw {
		order := convertCoinbaseOrder(market, o)
		if action != core.ActionNone && order.Action != action {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, order)
	}
	// Venue returns newest first.
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

// MarketBuy spends quoteQuantity of the quote currency using funds.
func (c *CoinbaseProExchange) MarketBuy(ctx context.Context, market string, quoteQuantity float64) (core.Order, error) {
	if quoteQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: buy size %v", core.ErrInsufficientFunds, quoteQuantity)
	}

	payload := map[string]string{
		"type":       "market",
		"side":       "buy",
		"product_id": market,
		"funds":      core.FormatFloat(core.TruncateFloat(quoteQuantity, 2)),
	}
	var out coinbaseOrder
	if err := c.client.post(ctx, "/orders", payload, &out); err != nil {
		return core.Order{}, err
	}
	return convertCoinbaseOrder(market, out), nil
}

// MarketSell sells baseQuantity of the base currency.
func (c *CoinbaseProExchange) MarketSell(ctx context.Context, market string, baseQuantity float64) (core.Order, error) {
	if baseQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: sell size %v", core.ErrInsufficientFunds, baseQuantity)
	}

	payload := map[string]string{
		"type":       "market",
		"side":       "sell",
		"product_id": market,
		"size":       core.FormatFloat(core.TruncateFloat(baseQuantity, 8)),
	}
	var out coinbaseOrder
	if err := c.client.post(ctx, "/orders", payload, &out); err != nil {
		return core.Order{}, err
	}
	return convertCoinbaseOrder(market, out), nil
}

func convertCoinbaseOrder(market string, o coinbaseOrder) core.Order {
	filled, _ := strconv.ParseFloat(o.FilledSize, 64)
	executed, _ := strconv.ParseFloat(o.ExecutedValue, 64)
	fees, _ := strconv.ParseFloat(o.FillFees, 64)
	funds, _ := strconv.ParseFloat(o.Funds, 64)

	var price float64
	if filled > 0 {
		price = executed / filled
	}

	action := core.ActionBuy
	size := funds
	if o.Side == "sell" {
		action = core.ActionSell
		size = filled
	}
	if action == core.ActionBuy && size == 0 {
		size = executed + fees
	}

	createdAt, _ := time.Parse(time.RFC3339, o.CreatedAt)
	updatedAt := createdAt
	if t, err := time.Parse(time.RFC3339, o.DoneAt); err == nil {
		updatedAt = t
	}

	return core.Order{
		Market:    market,
		Action:    action,
		Status:    normalizeCoinbaseStatus(o.Status),
		Price:     price,
		Size:      size,
		Filled:    filled,
		Fees:      fees,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
}

func normalizeCoinbaseStatus(status string) core.OrderStatus {
	switch status {
	case "open", "received":
		return core.OrderStatusOpen
	case "pending":
		return core.OrderStatusPending
	case "done", "settled":
		return core.OrderStatusDone
	case "active":
		return core.OrderStatusActive
	default:
		return core.OrderStatusCanceled
	}
}
