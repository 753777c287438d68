package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jpillora/backoff"

	"github.com/candlebot/candlebot/pkg/core"
)

const csvWriteAttempts = 5

// writeFileReplace writes the whole file atomically via a temp file and
// rename, retrying on conflict. These writes are diagnostics, never on the
// critical path of a trade.
func writeFileReplace(file string, write func(*csv.Writer) error) error {
	retry := &backoff.Backoff{Min: time.Second, Max: time.Second}

	var lastErr error
	for attempt := 0; attempt < csvWriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retry.Duration())
		}
		if lastErr = replaceOnce(file, write); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("write %s: %w", file, lastErr)
}

func replaceOnce(file string, write func(*csv.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(file), filepath.Base(file)+".tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := write(w); err != nil {
		tmp.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}

var orderHeader = []string{"created_at", "market", "action", "price", "size", "filled", "fees", "status"}

// OrderWriter mirrors completed orders into orders.csv.
type OrderWriter struct {
	file   string
	orders []core.Order
}

// NewOrderWriter opens the writer, loading any rows a previous run left.
func NewOrderWriter(file string) (*OrderWriter, error) {
	w := &OrderWriter{file: file}
	if err := w.load(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *OrderWriter) load() error {
	f, err := os.Open(w.file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	lines, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", w.file, err)
	}

	for i, line := range lines {
		if i == 0 && line[0] == orderHeader[0] {
			continue
		}
		if len(line) < len(orderHeader) {
			continue
		}
		ts, _ := strconv.ParseInt(line[0], 10, 64)
		order := core.Order{
			Market: line[1],
			Action: core.ActionType(line[2]),
			Status: core.OrderStatus(line[7]),
		}
		order.CreatedAt = time.Unix(ts, 0).UTC()
		order.Price, _ = strconv.ParseFloat(line[3], 64)
		order.Size, _ = strconv.ParseFloat(line[4], 64)
		order.Filled, _ = strconv.ParseFloat(line[5], 64)
		order.Fees, _ = strconv.ParseFloat(line[6], 64)
		w.orders = append(w.orders, order)
	}
	return nil
}

// Append records an order and rewrites the file.
func (w *OrderWriter) Append(order core.Order) error {
	w.orders = append(w.orders, order)

	return writeFileReplace(w.file, func(cw *csv.Writer) error {
		if err := cw.Write(orderHeader); err != nil {
			return err
		}
		for _, o := range w.orders {
			record := []string{
				strconv.FormatInt(o.CreatedAt.Unix(), 10),
				o.Market,
				string(o.Action),
				core.FormatFloat(o.Price),
				core.FormatFloat(o.Size),
				core.FormatFloat(o.Filled),
				core.FormatFloat(o.Fees),
				string(o.Status),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// Orders returns the recorded orders, oldest first.
func (w *OrderWriter) Orders() []core.Order {
	out := make([]core.Order, len(w.orders))
	copy(out, w.orders)
	return out
}

// Trade is one completed buy/sell pair in the tracker file. Both sizes are
// quote amounts, the sell side net of fees.
type Trade struct {
	Market    string
	BuyTime   time.Time
	SellTime  time.Time
	BuyPrice  float64
	SellPrice float64
	BuySize   float64
	SellSize  float64
	Profit    float64
	Margin    float64
}

var trackerHeader = []string{
	"market", "buy_time", "sell_time", "buy_price", "sell_price",
	"buy_size", "sell_size", "profit", "margin",
}

// Tracker pairs each sell with the buy it closes and keeps the history in
// tracker.csv.
type Tracker struct {
	file   string
	trades []Trade
}

func NewTracker(file string) (*Tracker, error) {
	t := &Tracker{file: file}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) load() error {
	f, err := os.Open(t.file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	lines, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", t.file, err)
	}

	for i, line := range lines {
		if i == 0 && line[0] == trackerHeader[0] {
			continue
		}
		if len(line) < len(trackerHeader) {
			continue
		}
		trade := Trade{Market: line[0]}
		buyTS, _ := strconv.ParseInt(line[1], 10, 64)
		sellTS, _ := strconv.ParseInt(line[2], 10, 64)
		trade.BuyTime = time.Unix(buyTS, 0).UTC()
		trade.SellTime = time.Unix(sellTS, 0).UTC()
		trade.BuyPrice, _ = strconv.ParseFloat(line[3], 64)
		trade.SellPrice, _ = strconv.ParseFloat(line[4], 64)
		trade.BuySize, _ = strconv.ParseFloat(line[5], 64)
		trade.SellSize, _ = strconv.ParseFloat(line[6], 64)
		trade.Profit, _ = strconv.ParseFloat(line[7], 64)
		trade.Margin, _ = strconv.ParseFloat(line[8], 64)
		t.trades = append(t.trades, trade)
	}
	return nil
}

// Record appends a completed trade and rewrites the file.
func (t *Tracker) Record(trade Trade) error {
	t.trades = append(t.trades, trade)

	return writeFileReplace(t.file, func(cw *csv.Writer) error {
		if err := cw.Write(trackerHeader); err != nil {
			return err
		}
		for _, tr := range t.trades {
			record := []string{
				tr.Market,
				strconv.FormatInt(tr.BuyTime.Unix(), 10),
				strconv.FormatInt(tr.SellTime.Unix(), 10),
				core.FormatFloat(tr.BuyPrice),
				core.FormatFloat(tr.SellPrice),
				core.FormatFloat(tr.BuySize),
				core.FormatFloat(tr.SellSize),
				core.FormatFloat(tr.Profit),
				core.FormatFloat(tr.Margin),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// Trades returns the recorded history, oldest first.
func (t *Tracker) Trades() []Trade {
	out := make([]Trade, len(t.trades))
	copy(out, t.trades)
	return out
}
