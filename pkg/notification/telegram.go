package notification

import (
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
)

// Telegram is a one-way notifier plus a small command surface. Commands
// only flip flags in the control store; the control loop reads them at the
// next tick, so nothing here touches position state directly.
type Telegram struct {
	client  *tb.Bot
	chatID  int64
	market  string
	control *ControlStore
	menu    *tb.ReplyMarkup

	suppressErrors bool
}

// NewTelegram builds the notifier from config. The client id doubles as the
// only authorized sender.
func NewTelegram(cfg *config.Config, control *ControlStore) (*Telegram, error) {
	chatID, err := strconv.ParseInt(cfg.TelegramClientID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram client id %q: %w", cfg.TelegramClientID, err)
	}

	poller := &tb.LongPoller{Timeout: 10 * time.Second}
	authorized := tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			return false
		}
		if u.Message.Sender.ID == chatID {
			return true
		}
		log.Errorf("unauthorized telegram user %d", u.Message.Sender.ID)
		return false
	})

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     cfg.TelegramToken,
		Poller:    authorized,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text("/status"), menu.Text("/margin")),
		menu.Row(menu.Text("/pause"), menu.Text("/resume")),
		menu.Row(menu.Text("/buynow"), menu.Text("/sellnow")),
	)

	t := &Telegram{
		client:         client,
		chatID:         chatID,
		market:         cfg.Market,
		control:        control,
		menu:           menu,
		suppressErrors: bool(cfg.DisableTelegramErrorMsgs),
	}

	if err := client.SetCommands([]tb.Command{
		{Text: "/help", Description: "List commands"},
		{Text: "/status", Description: "Bot status and last action"},
		{Text: "/margin", Description: "Margin of the open position"},
		{Text: "/pause", Description: "Suspend trading"},
		{Text: "/resume", Description: "Resume trading"},
		{Text: "/buynow", Description: "Queue a manual buy for the next tick"},
		{Text: "/sellnow", Description: "Queue a manual sell for the next tick"},
	}); err != nil {
		return nil, fmt.Errorf("set telegram commands: %w", err)
	}

	client.Handle("/help", t.handleHelp)
	client.Handle("/status", t.handleStatus)
	client.Handle("/margin", t.handleMargin)
	client.Handle("/pause", t.handlePause)
	client.Handle("/resume", t.handleResume)
	client.Handle("/buynow", t.handleBuyNow)
	client.Handle("/sellnow", t.handleSellNow)

	return t, nil
}

// Start begins long-polling in the background.
func (t *Telegram) Start() {
	go t.client.Start()
	t.send(fmt.Sprintf("Watching `%s`.", t.market), t.menu)
}

// Notify sends one message. Failures are logged and swallowed; delivery is
// never allowed to affect trading.
func (t *Telegram) Notify(message string) {
	t.send(message)
}

// NotifyError reports an internal error unless error messages are muted.
func (t *Telegram) NotifyError(err error) {
	if t.suppressErrors {
		return
	}
	t.send(fmt.Sprintf("ERROR\n-----\n%s", err))
}

func (t *Telegram) send(message string, options ...interface{}) {
	if _, err := t.client.Send(&tb.User{ID: t.chatID}, message, options...); err != nil {
		log.WithError(err).Error("telegram send failed")
	}
}

func (t *Telegram) handleHelp(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		log.WithError(err).Error("telegram get commands failed")
		return
	}

	out := ""
	for _, c := range commands {
		out += fmt.Sprintf("/%s - %s\n", c.Text, c.Description)
	}
	t.send(out)
}

func (t *Telegram) handleStatus(m *tb.Message) {
	snap, err := t.control.Snapshot()
	if err != nil {
		t.NotifyError(err)
		return
	}
	t.send(fmt.Sprintf("*%s*\nstatus: `%s`\nlast action: `%s`\nprice: `%v`",
		snap.Market, snap.BotControl.Status, snap.LastAction, snap.Price))
}

func (t *Telegram) handleMargin(m *tb.Message) {
	snap, err := t.control.Snapshot()
	if err != nil {
		t.NotifyError(err)
		return
	}
	if snap.LastAction != core.ActionBuy {
		t.send("No open position.")
		return
	}
	t.send(fmt.Sprintf("*%s*\nmargin: `%.2f%%`\nprofit: `%.2f`", snap.Market, snap.Margin, snap.Profit))
}

func (t *Telegram) handlePause(m *tb.Message) {
	err := t.control.UpdateControl(func(c *ControlState) { c.Status = StatusPaused })
	if err != nil {
		t.NotifyError(err)
		return
	}
	t.send("Trading paused.", t.menu)
}

func (t *Telegram) handleResume(m *tb.Message) {
	err := t.control.UpdateControl(func(c *ControlState) { c.Status = StatusActive })
	if err != nil {
		t.NotifyError(err)
		return
	}
	t.send("Trading resumed.", t.menu)
}

func (t *Telegram) handleBuyNow(m *tb.Message) {
	err := t.control.UpdateControl(func(c *ControlState) { c.ManualBuy = true })
	if err != nil {
		t.NotifyError(err)
		return
	}
	t.send("Manual buy queued for the next tick.")
}

func (t *Telegram) handleSellNow(m *tb.Message) {
	err := t.control.UpdateControl(func(c *ControlState) { c.ManualSell = true })
	if err != nil {
		t.NotifyError(err)
		return
	}
	t.send("Manual sell queued for the next tick.")
}

// NullNotifier drops every message. Used when Telegram is disabled.
type NullNotifier struct{}

func (NullNotifier) Notify(string) {}
func (NullNotifier) Start()        {}

// New picks the configured notifier.
func New(cfg *config.Config, control *ControlStore) (core.NotifierWithStart, error) {
	if bool(cfg.DisableTelegram) || cfg.TelegramToken == "" {
		return NullNotifier{}, nil
	}
	return NewTelegram(cfg, control)
}
