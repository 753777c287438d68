package candlebot

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/indicator"
	"github.com/candlebot/candlebot/pkg/metric"
	"github.com/candlebot/candlebot/pkg/storage"
)

const (
	// simOpeningBalance is the quote balance the paper account starts with.
	simOpeningBalance = 1000.0

	// History downloads chain at most simMaxRequests windows of
	// simBatchSize candles each.
	simMaxRequests = 10
	simBatchSize   = 300

	// Sampled simulations pick a random start inside the venue lookback:
	// Coinbase serves three years of hourly candles, the others one.
	sampleLookbackCoinbase = 3 * 365 * 24 * time.Hour
	sampleLookbackDefault  = 365 * 24 * time.Hour
)

// simState carries everything one simulation run accumulates: the decorated
// full history being replayed and the realized trades for the final report.
type simState struct {
	frame *core.Dataframe
	bar   *progressbar.ProgressBar

	trades       []storage.Trade
	margins      []float64
	lastSellSize float64
}

func (s *simState) recordTrade(trade storage.Trade) {
	s.trades = append(s.trades, trade)
	s.margins = append(s.margins, trade.Margin)
	s.lastSellSize = trade.SellSize
}

func (s *simState) step() {
	if s.bar != nil {
		_ = s.bar.Add(1)
	}
}

// prepareSimulation downloads the history window, decorates it once and
// arms the replay. Iteration k of the control loop then sees the first k
// rows of the frame.
func (b *Bot) prepareSimulation(ctx context.Context) error {
	start, end, err := b.simWindow()
	if err != nil {
		return err
	}

	candles, err := b.downloadHistory(ctx, start, end)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("%w: no candles between %s and %s",
			core.ErrInsufficientData, start.Format(timeLayout), end.Format(timeLayout))
	}

	df := core.NewDataframe(b.cfg.Market, b.granularity, candles)
	if err := indicator.AddAll(df); err != nil {
		return err
	}
	if custom := b.strategy.Custom(); custom != nil {
		custom.Decorate(df)
	}

	b.log.Infof("simulating %d %s candles from %s to %s",
		df.Len(), b.granularity, df.Time[0].Format(timeLayout), df.LastTime().Format(timeLayout))

	b.sim = &simState{
		frame: df,
		bar:   progressbar.Default(int64(df.Len())),
	}
	return nil
}

// simWindow resolves the simulated period from config. Sampled modes pick a
// random start aligned to the hour inside the venue's lookback.
func (b *Bot) simWindow() (time.Time, time.Time, error) {
	now := time.Now().UTC().Truncate(time.Minute)
	span := time.Duration(b.cfg.AdjustTotalPeriods) * b.granularity.Duration()

	end := now
	if b.cfg.SimEndDate != "" {
		parsed, err := parseSimTime(b.cfg.SimEndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("simenddate: %w", err)
		}
		end = parsed
	}

	var start time.Time
	switch {
	case b.cfg.SimStartDate != "":
		parsed, err := parseSimTime(b.cfg.SimStartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("simstartdate: %w", err)
		}
		start = parsed

	case b.cfg.Sim.Sampled():
		lookback := sampleLookbackDefault
		if b.cfg.Exchange == core.CoinbasePro {
			lookback = sampleLookbackCoinbase
		}

		earliest := now.Add(-lookback)
		latest := now.Add(-span)
		if latest.Before(earliest) {
			latest = earliest
		}

		hours := int64(latest.Sub(earliest)/time.Hour) + 1
		start = earliest.Add(time.Duration(rand.Int63n(hours)) * time.Hour).Truncate(time.Hour)
		end = start.Add(span)
		if end.After(now) {
			end = now
		}

	default:
		start = end.Add(-span)
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("simulation start %s not before end %s",
			start.Format(timeLayout), end.Format(timeLayout))
	}
	return start, end, nil
}

func parseSimTime(value string) (time.Time, error) {
	for _, layout := range []string{timeLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", value)
}

// downloadHistory back-paginates candle windows from end towards start,
// newest window first, then dedupes and sorts ascending.
func (b *Bot) downloadHistory(ctx context.Context, start, end time.Time) ([]core.Candle, error) {
	batchSpan := time.Duration(simBatchSize) * b.granularity.Duration()

	var candles []core.Candle
	cursor := end
	for i := 0; i < simMaxRequests && cursor.After(start); i++ {
		from := cursor.Add(-batchSpan)
		if from.Before(start) {
			from = start
		}

		batch, err := b.exchange.GetHistoricalData(ctx, b.cfg.Market, b.granularity, from, cursor)
		if err != nil {
			return nil, fmt.Errorf("download history: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		candles = append(batch, candles...)
		cursor = batch[0].Time.Add(-b.granularity.Duration())
	}

	candles = lo.UniqBy(candles, func(c core.Candle) int64 { return c.Time.Unix() })
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

// printSimSummary renders the end-of-run report: the trade table, the
// margin histogram and a bootstrapped confidence interval over margins.
func (b *Bot) printSimSummary() {
	s := b.sim

	wins, losses := 0, 0
	totalProfit := 0.0
	for _, trade := range s.trades {
		if trade.Margin > 0 {
			wins++
		} else {
			losses++
		}
		totalProfit += trade.Profit
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Buy Time", "Sell Time", "Buy Price", "Sell Price", "Size", "Profit", "Margin"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)
	for _, trade := range s.trades {
		table.Append([]string{
			trade.BuyTime.Format(timeLayout),
			trade.SellTime.Format(timeLayout),
			fmt.Sprintf("%.4f", trade.BuyPrice),
			fmt.Sprintf("%.4f", trade.SellPrice),
			fmt.Sprintf("%.4f", trade.BuySize),
			fmt.Sprintf("%.2f", trade.Profit),
			fmt.Sprintf("%.2f %%", trade.Margin),
		})
	}
	table.SetFooter([]string{
		b.cfg.Market,
		strconv.Itoa(len(s.trades)) + " trades",
		strconv.Itoa(wins) + " wins",
		strconv.Itoa(losses) + " losses",
		"",
		fmt.Sprintf("%.2f", totalProfit),
		fmt.Sprintf("%.2f %%", b.compoundedMargin()),
	})
	table.Render()

	fmt.Printf("\nSimulated %s from %s to %s (%d candles, %d buys, %d sells)\n",
		b.cfg.Market,
		s.frame.Time[0].Format(timeLayout), s.frame.LastTime().Format(timeLayout),
		s.frame.Len(), b.pos.BuyCount, b.pos.SellCount)

	if b.pos.FirstBuySize > 0 {
		fmt.Printf("First buy size: %.4f %s\n", b.pos.FirstBuySize, b.cfg.QuoteCurrency)
	}
	if s.lastSellSize > 0 {
		fmt.Printf("Last sell size: %.4f %s\n", s.lastSellSize, b.cfg.QuoteCurrency)
	}

	if len(s.margins) > 0 {
		fmt.Println("\n------ MARGIN -------")
		hist := histogram.Hist(15, s.margins)
		if err := histogram.Fprint(os.Stdout, hist, histogram.Linear(10)); err != nil {
			b.log.WithError(err).Warn("rendering margin histogram failed")
		}

		interval := metric.Bootstrap(s.margins, metric.Mean, 10000, 0.95)
		fmt.Println("\n------ CONFIDENCE INTERVAL (95%) -------")
		fmt.Printf("MARGIN: %.2f%% (%.2f%% ~ %.2f%%)\n", interval.Mean, interval.Lower, interval.Upper)
	}

	if b.paper != nil {
		price := s.frame.Close.Last(0)
		equity := b.paper.Equity(b.cfg.BaseCurrency, b.cfg.QuoteCurrency, price)
		initial := b.paper.InitialBalance(b.cfg.QuoteCurrency)
		fmt.Printf("\nPaper equity: %.2f %s (started with %.2f)\n", equity, b.cfg.QuoteCurrency, initial)
	}
}

// compoundedMargin is the growth of the position size from the first buy to
// the last sell, the figure that reflects reinvested profits.
func (b *Bot) compoundedMargin() float64 {
	if b.sim == nil || b.pos.FirstBuySize <= 0 || b.sim.lastSellSize <= 0 {
		return 0
	}
	return (b.sim.lastSellSize - b.pos.FirstBuySize) / b.pos.FirstBuySize * 100
}

func (b *Bot) simSlow() bool {
	return b.cfg.Sim == config.SimSlow || b.cfg.Sim == config.SimSlowSample
}
