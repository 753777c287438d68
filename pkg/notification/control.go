// Package notification delivers bot events to Telegram and maintains the
// telegram_data control files the external bot reads and writes.
package notification

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/candlebot/candlebot/pkg/core"
)

const controlWriteAttempts = 5

// ControlState carries the manual overrides the control loop polls every
// tick. Manual flags are one-shot: the loop clears them after acting.
type ControlState struct {
	Status     string    `json:"status"`
	ManualBuy  bool      `json:"manualbuy"`
	ManualSell bool      `json:"manualsell"`
	Started    time.Time `json:"started"`
}

const (
	StatusActive = "active"
	StatusPaused = "paused"
)

// MarketSnapshot is the per-market control file content: bot control state
// plus the latest tick diagnostics for the external bot to display.
type MarketSnapshot struct {
	Exchange   core.ExchangeName `json:"exchange"`
	Market     string            `json:"market"`
	BotControl ControlState      `json:"botcontrol"`

	Price        float64         `json:"price"`
	Margin       float64         `json:"margin"`
	Profit       float64         `json:"profit"`
	Action       core.ActionType `json:"action"`
	LastAction   core.ActionType `json:"last_action"`
	TSLTriggered bool            `json:"trailing_stop_loss_triggered"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TradeLogEntry is one row of the aggregate trade log in data.json.
type TradeLogEntry struct {
	Market    string    `json:"market"`
	Action    string    `json:"action"`
	Price     float64   `json:"price"`
	Margin    float64   `json:"margin"`
	Profit    float64   `json:"profit"`
	Timestamp time.Time `json:"timestamp"`
}

type dataFile struct {
	Trades []TradeLogEntry `json:"trades"`
}

// ControlStore owns the telegram_data directory: one JSON file per market
// plus the aggregate data.json. All writes are whole-file replaces retried
// on conflict; they are diagnostics and manual-override plumbing, never on
// the trade path.
type ControlStore struct {
	mu     sync.Mutex
	dir    string
	market string
}

func NewControlStore(dir, market string) (*ControlStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ControlStore{dir: dir, market: market}, nil
}

func (c *ControlStore) marketFile() string {
	name := strings.ReplaceAll(c.market, "/", "_")
	return filepath.Join(c.dir, name+".json")
}

func (c *ControlStore) dataFilePath() string {
	return filepath.Join(c.dir, "data.json")
}

// WriteSnapshot replaces the per-market control file.
func (c *ControlStore) WriteSnapshot(snap MarketSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeJSONReplace(c.marketFile(), snap)
}

// Snapshot reads the current control file. A missing file yields a zero
// snapshot with an active control state.
func (c *ControlStore) Snapshot() (MarketSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readSnapshot()
}

func (c *ControlStore) readSnapshot() (MarketSnapshot, error) {
	var snap MarketSnapshot
	data, err := os.ReadFile(c.marketFile())
	if os.IsNotExist(err) {
		snap.Market = c.market
		snap.BotControl.Status = StatusActive
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	err = json.Unmarshal(data, &snap)
	return snap, err
}

// UpdateControl applies fn to the control state with a read-modify-write.
func (c *ControlStore) UpdateControl(fn func(*ControlState)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.readSnapshot()
	if err != nil {
		return err
	}
	fn(&snap.BotControl)
	return writeJSONReplace(c.marketFile(), snap)
}

// ConsumeManualAction returns the pending manual override, clearing it so
// it fires once. ActionNone when nothing is pending.
func (c *ControlStore) ConsumeManualAction() (core.ActionType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.readSnapshot()
	if err != nil {
		return core.ActionNone, err
	}

	action := core.ActionNone
	switch {
	case snap.BotControl.ManualBuy:
		action = core.ActionBuy
		snap.BotControl.ManualBuy = false
	case snap.BotControl.ManualSell:
		action = core.ActionSell
		snap.BotControl.ManualSell = false
	default:
		return core.ActionNone, nil
	}

	return action, writeJSONReplace(c.marketFile(), snap)
}

// Paused reports whether trading is suspended via the control file.
func (c *ControlStore) Paused() bool {
	snap, err := c.Snapshot()
	return err == nil && snap.BotControl.Status == StatusPaused
}

// AppendTrade adds an entry to the aggregate trade log.
func (c *ControlStore) AppendTrade(entry TradeLogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var df dataFile
	if data, err := os.ReadFile(c.dataFilePath()); err == nil {
		_ = json.Unmarshal(data, &df)
	}
	df.Trades = append(df.Trades, entry)
	return writeJSONReplace(c.dataFilePath(), df)
}

// Trades reads the aggregate trade log.
func (c *ControlStore) Trades() ([]TradeLogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.dataFilePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var df dataFile
	if err := json.Unmarshal(data, &df); err != nil {
		return nil, err
	}
	return df.Trades, nil
}

func writeJSONReplace(file string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	retry := &backoff.Backoff{Min: time.Second, Max: time.Second}
	var lastErr error
	for attempt := 0; attempt < controlWriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retry.Duration())
		}

		tmp, err := os.CreateTemp(filepath.Dir(file), filepath.Base(file)+".tmp")
		if err != nil {
			lastErr = err
			continue
		}
		_, werr := tmp.Write(data)
		cerr := tmp.Close()
		if werr != nil || cerr != nil {
			os.Remove(tmp.Name())
			lastErr = werr
			if lastErr == nil {
				lastErr = cerr
			}
			continue
		}
		if lastErr = os.Rename(tmp.Name(), file); lastErr == nil {
			return nil
		}
		os.Remove(tmp.Name())
	}
	return lastErr
}
