package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/logger"
)

// BinanceExchange adapts the Binance spot API. Market symbols are
// concatenated (BTCUSDT).
type BinanceExchange struct {
	client   *binance.Client
	log      logger.Logger
	takerFee float64
	makerFee float64
}

// NewBinance builds the adapter and verifies connectivity with a ping.
func NewBinance(cfg *config.Config, log logger.Logger) (*BinanceExchange, error) {
	if cfg.APIURL != "" {
		binance.BaseAPIMainURL = cfg.APIURL
	}

	b := &BinanceExchange{
		client:   binance.NewClient(cfg.APIKey, cfg.APISecret),
		log:      log,
		takerFee: core.DefaultTakerFee(core.Binance),
		makerFee: core.DefaultTakerFee(core.Binance),
	}

	if err := b.client.NewPingService().Do(context.Background()); err != nil {
		return nil, core.Transient(fmt.Errorf("binance ping: %w", err))
	}
	return b, nil
}

func (b *BinanceExchange) Name() core.ExchangeName { return core.Binance }

func (b *BinanceExchange) GetTakerFee() float64 { return b.takerFee }
func (b *BinanceExchange) GetMakerFee() float64 { return b.makerFee }

// GetHistoricalData returns up to 300 complete candles oldest first. A zero
// start/end requests the newest window.
func (b *BinanceExchange) GetHistoricalData(ctx context.Context, market string, granularity core.Granularity, start, end time.Time) ([]core.Candle, error) {
	svc := b.client.NewKlinesService().
		Symbol(market).
		Interval(granularity.String()).
		Limit(300)
	if !start.IsZero() {
		svc = svc.StartTime(start.UnixMilli())
	}
	if !end.IsZero() {
		svc = svc.EndTime(end.UnixMilli())
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, core.Transient(fmt.Errorf("binance klines: %w", err))
	}

	candles := make([]core.Candle, 0, len(klines))
	for _, k := range klines {
		c := core.Candle{
			Market:      market,
			Granularity: granularity,
			Time:        time.UnixMilli(k.OpenTime).UTC(),
			Complete:    true,
		}
		c.Open, _ = strconv.ParseFloat(k.Open, 64)
		c.High, _ = strconv.ParseFloat(k.High, 64)
		c.Low, _ = strconv.ParseFloat(k.Low, 64)
		c.Close, _ = strconv.ParseFloat(k.Close, 64)
		c.Volume, _ = strconv.ParseFloat(k.Volume, 64)
		candles = append(candles, c)
	}
	return candles, nil
}

func (b *BinanceExchange) GetTicker(ctx context.Context, market string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(market).Do(ctx)
	if err != nil {
		return 0, core.Transient(fmt.Errorf("binance ticker: %w", err))
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: no ticker for %s", core.ErrInvalidMarket, market)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

func (b *BinanceExchange) GetTime(ctx context.Context) (time.Time, error) {
	ms, err := b.client.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, core.Transient(fmt.Errorf("binance server time: %w", err))
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (b *BinanceExchange) GetBalance(ctx context.Context, currency string) (float64, error) {
	acc, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, core.Transient(fmt.Errorf("binance account: %w", err))
	}
	for _, bal := range acc.Balances {
		if bal.Asset == currency {
			return strconv.ParseFloat(bal.Free, 64)
		}
	}
	return 0, nil
}

func (b *BinanceExchange) GetOrders(ctx context.Context, market string, action core.ActionType, status core.OrderStatus) ([]core.Order, error) {
	raw, err := b.client.NewListOrdersService().Symbol(market).Do(ctx)
	if err != nil {
		return nil, core.Transient(fmt.Errorf("binance orders: %w", err))
	}

	orders := make([]core.Order, 0, len(raw))
	for _, o := range raw {
		order := convertBinanceOrder(market, o)
		if action != core.ActionNone && order.Action != action {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// MarketBuy spends quoteQuantity of the quote currency.
func (b *BinanceExchange) MarketBuy(ctx context.Context, market string, quoteQuantity float64) (core.Order, error) {
	if quoteQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: buy size %v", core.ErrInsufficientFunds, quoteQuantity)
	}

	resp, err := b.client.NewCreateOrderService().
		Symbol(market).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(core.FormatFloat(core.TruncateFloat(quoteQuantity, 8))).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return core.Order{}, fmt.Errorf("binance market buy: %w", err)
	}
	return convertBinanceFill(market, core.ActionBuy, resp), nil
}

// MarketSell sells baseQuantity of the base currency.
func (b *BinanceExchange) MarketSell(ctx context.Context, market string, baseQuantity float64) (core.Order, error) {
	if baseQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: sell size %v", core.ErrInsufficientFunds, baseQuantity)
	}

	resp, err := b.client.NewCreateOrderService().
		Symbol(market).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(core.FormatFloat(core.TruncateFloat(baseQuantity, 8))).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return core.Order{}, fmt.Errorf("binance market sell: %w", err)
	}
	return convertBinanceFill(market, core.ActionSell, resp), nil
}

// StreamCandles subscribes the kline websocket and forwards every update to
// out. Complete mirrors the kline final flag, so subscribers on candle close
// see each candle exactly once. The returned stop closes the stream.
func (b *BinanceExchange) StreamCandles(market string, granularity core.Granularity, out func(core.Candle)) (func(), error) {
	handler := func(event *binance.WsKlineEvent) {
		k := event.Kline
		c := core.Candle{
			Market:      market,
			Granularity: granularity,
			Time:        time.UnixMilli(k.StartTime).UTC(),
			Complete:    k.IsFinal,
		}
		c.Open, _ = strconv.ParseFloat(k.Open, 64)
		c.High, _ = strconv.ParseFloat(k.High, 64)
		c.Low, _ = strconv.ParseFloat(k.Low, 64)
		c.Close, _ = strconv.ParseFloat(k.Close, 64)
		c.Volume, _ = strconv.ParseFloat(k.Volume, 64)
		out(c)
	}
	errHandler := func(err error) {
		b.log.WithError(err).Warn("binance kline stream error")
	}

	_, stopC, err := binance.WsKlineServe(market, granularity.String(), handler, errHandler)
	if err != nil {
		return nil, core.Transient(fmt.Errorf("binance kline stream: %w", err))
	}
	return func() { close(stopC) }, nil
}

func convertBinanceFill(market string, action core.ActionType, resp *binance.CreateOrderResponse) core.Order {
	cost, _ := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)
	filled, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)

	var quoteAsset string
	if m, err := ParseMarket(core.Binance, market); err == nil {
		quoteAsset = m.Quote
	}

	var price, fees float64
	if filled > 0 {
		price = cost / filled
	}
	for _, fill := range resp.Fills {
		commission, _ := strconv.ParseFloat(fill.Commission, 64)
		if fill.CommissionAsset == quoteAsset {
			fees += commission
		} else {
			// Commission charged in base; value it at the fill price.
			fillPrice, _ := strconv.ParseFloat(fill.Price, 64)
			fees += commission * fillPrice
		}
	}

	size := cost
	if action == core.ActionSell {
		size = filled
	}

	at := time.UnixMilli(resp.TransactTime).UTC()
	return core.Order{
		ID:        resp.OrderID,
		Market:    market,
		Action:    action,
		Status:    normalizeBinanceStatus(resp.Status),
		Price:     price,
		Size:      size,
		Filled:    filled,
		Fees:      fees,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func convertBinanceOrder(market string, o *binance.Order) core.Order {
	cost, _ := strconv.ParseFloat(o.CummulativeQuoteQuantity, 64)
	filled, _ := strconv.ParseFloat(o.ExecutedQuantity, 64)

	var price float64
	if cost > 0 && filled > 0 {
		price = cost / filled
	} else {
		price, _ = strconv.ParseFloat(o.Price, 64)
	}

	action := core.ActionBuy
	size := cost
	if o.Side == binance.SideTypeSell {
		action = core.ActionSell
		size = filled
	}

	return core.Order{
		ID:        o.OrderID,
		Market:    market,
		Action:    action,
		Status:    normalizeBinanceStatus(o.Status),
		Price:     price,
		Size:      size,
		Filled:    filled,
		CreatedAt: time.UnixMilli(o.Time).UTC(),
		UpdatedAt: time.UnixMilli(o.UpdateTime).UTC(),
	}
}

func normalizeBinanceStatus(status binance.OrderStatusType) core.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled:
		return core.OrderStatusOpen
	case binance.OrderStatusTypeFilled:
		return core.OrderStatusDone
	case binance.OrderStatusTypePendingCancel:
		return core.OrderStatusPending
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeRejected, binance.OrderStatusTypeExpired:
		return core.OrderStatusCanceled
	default:
		return core.OrderStatusOpen
	}
}
