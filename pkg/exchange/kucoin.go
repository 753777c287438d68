package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
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

const kucoinAPIURL = "https://api.kucoin.com"

// kucoinIntervals maps granularities onto Kucoin candle types.
var kucoinIntervals = map[core.Granularity]string{
	core.OneMinute:      "1min",
	core.FiveMinutes:    "5min",
	core.FifteenMinutes: "15min",
	core.OneHour:        "1hour",
	core.SixHours:       "6hour",
	core.OneDay:         "1day",
}

// KucoinExchange talks to the Kucoin v1 REST API. Market symbols are dash
// separated (BTC-USDT). Every response carries a {code, data} envelope.
type KucoinExchange struct {
	client     *restClient
	key        string
	secret     string
	passphrase string
	takerFee   float64
	makerFee   float64
}

func NewKucoin(cfg *config.Config, log logger.Logger) (*KucoinExchange, error) {
	base := kucoinAPIURL
	if cfg.APIURL != "" {
		base = cfg.APIURL
	}

	k := &KucoinExchange{
		key:        cfg.APIKey,
		secret:     cfg.APISecret,
		passphrase: cfg.APIPassphrase,
		takerFee:   core.DefaultTakerFee(core.Kucoin),
		makerFee:   core.DefaultTakerFee(core.Kucoin),
	}
	k.client = newRESTClient(base, log, k.signRequest)
	return k, nil
}

// signRequest applies the KC-API-* v2 HMAC scheme, including the signed
// passphrase. Skipped when no key is configured.
func (k *KucoinExchange) signRequest(req *http.Request, body []byte) error {
	if k.key == "" {
		return nil
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	mac := hmac.New(sha256.New, []byte(k.secret))
	mac.Write([]byte(timestamp + req.Method + path))
	mac.Write(body)

	passMac := hmac.New(sha256.New, []byte(k.secret))
	passMac.Write([]byte(k.passphrase))

	req.Header.Set("KC-API-KEY", k.key)
	req.Header.Set("KC-API-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set("KC-API-TIMESTAMP", timestamp)
	req.Header.Set("KC-API-PASSPHRASE", base64.StdEncoding.EncodeToString(passMac.Sum(nil)))
	req.Header.Set("KC-API-KEY-VERSION", "2")
	return nil
}

// kucoinEnvelope is the {code, data} wrapper on every response.
type kucoinEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (k *KucoinExchange) call(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var env kucoinEnvelope
	var err error
	if method == http.MethodPost {
		err = k.client.post(ctx, path, payload, &env)
	} else {
		err = k.client.get(ctx, path, query, &env)
	}
	if err != nil {
		return err
	}
	if env.Code != "200000" {
		return fmt.Errorf("kucoin %s: code %s: %s", path, env.Code, env.Msg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (k *KucoinExchange) Name() core.ExchangeName { return core.Kucoin }

func (k *KucoinExchange) GetTakerFee() float64 { return k.takerFee }
func (k *KucoinExchange) GetMakerFee() float64 { return k.makerFee }

// GetHistoricalData returns candles oldest first. The venue sends string
// rows [time, open, close, high, low, volume, turnover] newest first.
func (k *KucoinExchange) GetHistoricalData(ctx context.Context, market string, granularity core.Granularity, start, end time.Time) ([]core.Candle, error) {
	interval, ok := kucoinIntervals[granularity]
	if !ok {
		return nil, fmt.Errorf("%w: %s on kucoin", core.ErrInvalidGranularity, granularity)
	}

	query := url.Values{"symbol": {market}, "type": {interval}}
	if !start.IsZero() {
		query.Set("startAt", strconv.FormatInt(start.Unix(), 10))
	}
	if !end.IsZero() {
		query.Set("endAt", strconv.FormatInt(end.Unix(), 10))
	}

	var rows [][7]string
	if err := k.call(ctx, http.MethodGet, "/api/v1/market/candles", query, nil, &rows); err != nil {
		return nil, err
	}

	candles := make([]core.Candle, 0, len(rows))
	for _, row := range rows {
		ts, _ := strconv.ParseInt(row[0], 10, 64)
		c := core.Candle{
			Market:      market,
			Granularity: granularity,
			Time:        time.Unix(ts, 0).UTC(),
			Complete:    true,
		}
		c.Open, _ = strconv.ParseFloat(row[1], 64)
		c.Close, _ = strconv.ParseFloat(row[2], 64)
		c.High, _ = strconv.ParseFloat(row[3], 64)
		c.Low, _ = strconv.ParseFloat(row[4], 64)
		c.Volume, _ = strconv.ParseFloat(row[5], 64)
		candles = append(candles, c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

func (k *KucoinExchange) GetTicker(ctx context.Context, market string) (float64, error) {
	var out struct {
		Price string `json:"price"`
	}
	query := url.Values{"symbol": {market}}
	if err := k.call(ctx, http.MethodGet, "/api/v1/market/orderbook/level1", query, nil, &out); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(out.Price, 64)
}

func (k *KucoinExchange) GetTime(ctx context.Context) (time.Time, error) {
	var ms int64
	if err := k.call(ctx, http.MethodGet, "/api/v1/timestamp", nil, nil, &ms); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (k *KucoinExchange) GetBalance(ctx context.Context, currency string) (float64, error) {
	var accounts []struct {
		Currency  string `json:"currency"`
		Type      string `json:"type"`
		Available string `json:"available"`
	}
	query := url.Values{"currency": {currency}, "type": {"trade"}}
	if err := k.call(ctx, http.MethodGet, "/api/v1/accounts", query, nil, &accounts); err != nil {
		return 0, err
	}
	for _, acc := range accounts {
		if acc.Currency == currency && acc.Type == "trade" {
			return strconv.ParseFloat(acc.Available, 64)
		}
	}
	return 0, nil
}

type kucoinOrder struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Funds     string `json:"funds"`
	DealFunds string `json:"dealFunds"`
	DealSize  string `json:"dealSize"`
	Fee       string `json:"fee"`
	IsActive  bool   `json:"isActive"`
	CreatedAt int64  `json:"createdAt"`
}

func (k *KucoinExchange) GetOrders(ctx context.Context, market string, action core.ActionType, status core.OrderStatus) ([]core.Order, error) {
	var out struct {
		Items []kucoinOrder `json:"items"`
	}
	query := url.Values{"symbol": {market}}
	if err := k.call(ctx, http.MethodGet, "/api/v1/orders", query, nil, &out); err != nil {
		return nil, err
	}

	orders := make([]core.Order, 0, len(out.Items))
	for _, o := range out.Items {
		order := convertKucoinOrder(market, o)
		if action != core.ActionNone && order.Action != action {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

// MarketBuy spends quoteQuantity of the quote currency using funds.
func (k *KucoinExchange) MarketBuy(ctx context.Context, market string, quoteQuantity float64) (core.Order, error) {
	if quoteQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: buy size %v", core.ErrInsufficientFunds, quoteQuantity)
	}

	payload := map[string]string{
		"clientOid": strconv.FormatInt(time.Now().UnixNano(), 10),
		"side":      "buy",
		"symbol":    market,
		"type":      "market",
		"funds":     core.FormatFloat(core.TruncateFloat(quoteQuantity, 2)),
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := k.call(ctx, http.MethodPost, "/api/v1/orders", nil, payload, &out); err != nil {
		return core.Order{}, err
	}
	return k.fetchOrder(ctx, market, out.OrderID, core.ActionBuy)
}

// MarketSell sells baseQuantity of the base currency.
func (k *KucoinExchange) MarketSell(ctx context.Context, market string, baseQuantity float64) (core.Order, error) {
	if baseQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: sell size %v", core.ErrInsufficientFunds, baseQuantity)
	}

	payload := map[string]string{
		"clientOid": strconv.FormatInt(time.Now().UnixNano(), 10),
		"side":      "sell",
		"symbol":    market,
		"type":      "market",
		"size":      core.FormatFloat(core.TruncateFloat(baseQuantity, 8)),
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := k.call(ctx, http.MethodPost, "/api/v1/orders", nil, payload, &out); err != nil {
		return core.Order{}, err
	}
	return k.fetchOrder(ctx, market, out.OrderID, core.ActionSell)
}

// fetchOrder reads back a just-placed order so the caller gets fill price
// and fees instead of only an id.
func (k *KucoinExchange) fetchOrder(ctx context.Context, market, id string, action core.ActionType) (core.Order, error) {
	var o kucoinOrder
	if err := k.call(ctx, http.MethodGet, "/api/v1/orders/"+id, nil, nil, &o); err != nil {
		return core.Order{}, err
	}
	order := convertKucoinOrder(market, o)
	order.Action = action
	return order, nil
}

func convertKucoinOrder(market string, o kucoinOrder) core.Order {
	dealFunds, _ := strconv.ParseFloat(o.DealFunds, 64)
	dealSize, _ := strconv.ParseFloat(o.DealSize, 64)
	fee, _ := strconv.ParseFloat(o.Fee, 64)
	funds, _ := strconv.ParseFloat(o.Funds, 64)

	var price float64
	if dealSize > 0 {
		price = dealFunds / dealSize
	}

	action := core.ActionBuy
	size := funds
	if o.Side == "sell" {
		action = core.ActionSell
		size = dealSize
	}
	if action == core.ActionBuy && size == 0 {
		size = dealFunds
	}

	status := core.OrderStatusDone
	if o.IsActive {
		status = core.OrderStatusOpen
	}

	at := time.UnixMilli(o.CreatedAt).UTC()
	return core.Order{
		Market:    market,
		Action:    action,
		Status:    status,
		Price:     price,
		Size:      size,
		Filled:    dealSize,
		Fees:      fee,
		CreatedAt: at,
		UpdatedAt: at,
	}
}
