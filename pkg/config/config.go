package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/candlebot/candlebot/pkg/core"
)

// ErrConfig wraps every validation failure so callers can treat any of them
// as fatal at startup.
var ErrConfig = errors.New("invalid configuration")

// SimMode selects how the simulation harness drives the clock.
type SimMode string

const (
	SimOff        SimMode = ""
	SimFast       SimMode = "fast"
	SimSlow       SimMode = "slow"
	SimFastSample SimMode = "fast-sample"
	SimSlowSample SimMode = "slow-sample"
)

func (m SimMode) Enabled() bool { return m != SimOff }

// Sampled reports whether the simulation should pick a random start date.
func (m SimMode) Sampled() bool { return m == SimFastSample || m == SimSlowSample }

// Flag is a boolean that also accepts 0/1 in JSON, the encoding the legacy
// config files use.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("%w: boolean option must be true/false or 0/1, got %s", ErrConfig, data)
	}
	return nil
}

func (f Flag) Bool() bool { return bool(f) }

// Config is the frozen option set of one bot process. Pointer fields mean
// "not configured"; zero is a meaningful value for several thresholds.
type Config struct {
	Exchange      core.ExchangeName `json:"exchange"`
	Market        string            `json:"market"`
	BaseCurrency  string            `json:"base_currency"`
	QuoteCurrency string            `json:"quote_currency"`
	Granularity   core.Granularity  `json:"-"`

	Live Flag    `json:"live"`
	Sim  SimMode `json:"sim"`

	// Simulation window. Empty start with a sampled sim mode means a
	// random start date.
	SimStartDate string `json:"simstartdate"`
	SimEndDate   string `json:"simenddate"`

	// Sell side.
	SellAtLoss       Flag     `json:"sellatloss"`
	SellUpperPcnt    *float64 `json:"sellupperpcnt"`
	SellLowerPcnt    *float64 `json:"selllowerpcnt"`
	NoSellMinPcnt    *float64 `json:"nosellminpcnt"`
	NoSellMaxPcnt    *float64 `json:"nosellmaxpcnt"`
	SellAtResistance Flag     `json:"sellatresistance"`

	// Trailing stop loss.
	TrailingStopLoss        *float64 `json:"trailingstoploss"`
	TrailingStopLossTrigger float64  `json:"trailingstoplosstrigger"`
	DynamicTSL              Flag     `json:"dynamictsl"`
	TSLMultiplier           float64  `json:"tslmultiplier"`
	TSLTriggerMultiplier    float64  `json:"tsltriggermultiplier"`
	TSLMaxPcnt              float64  `json:"tslmaxpcnt"`

	// Prevent loss.
	PreventLoss        Flag    `json:"preventloss"`
	PreventLossTrigger float64 `json:"preventlosstrigger"`
	PreventLossMargin  float64 `json:"preventlossmargin"`

	// Trailing buy/sell confirmation machines.
	TrailingBuyPcnt           float64  `json:"trailingbuypcnt"`
	TrailingBuyImmediatePcnt  *float64 `json:"trailingbuyimmediatepcnt"`
	TrailingImmediateBuy      Flag     `json:"trailingimmediatebuy"`
	TrailingSellPcnt          float64  `json:"trailingsellpcnt"`
	TrailingSellImmediatePcnt *float64 `json:"trailingsellimmediatepcnt"`
	TrailingImmediateSell     Flag     `json:"trailingimmediatesell"`
	TrailingSellBailoutPcnt   *float64 `json:"trailingsellbailoutpcnt"`

	// Buy side.
	NoBuyNearHighPcnt float64  `json:"nobuynearhighpcnt"`
	BuyPercent        float64  `json:"buypercent"`
	SellPercent       float64  `json:"sellpercent"`
	BuyMaxSize        *float64 `json:"buymaxsize"`
	BuyMinSize        *float64 `json:"buyminsize"`

	// Smart switch.
	SmartSwitch     Flag `json:"smartswitch"`
	SellSmartSwitch Flag `json:"sellsmartswitch"`

	// Signal qualifiers.
	DisableBullOnly            Flag `json:"disablebullonly"`
	DisableBuyNearHigh         Flag `json:"disablebuynearhigh"`
	DisableBuyMACD             Flag `json:"disablebuymacd"`
	DisableBuyEMA              Flag `json:"disablebuyema"`
	DisableBuyOBV              Flag `json:"disablebuyobv"`
	DisableBuyElderRay         Flag `json:"disablebuyelderray"`
	DisableFailsafeFibonacci   Flag `json:"disablefailsafefibonaccilow"`
	DisableFailsafeLowerPcnt   Flag `json:"disablefailsafelowerpcnt"`
	DisableProfitBankUpperPcnt Flag `json:"disableprofitbankupperpcnt"`
	DisableProfitBankReversal  Flag `json:"disableprofitbankreversal"`

	EnableCustomStrategy Flag `json:"enablecustomstrategy"`
	SellTriggerOverride  Flag `json:"selltriggeroverride"`

	AutoRestart Flag `json:"autorestart"`
	WebSocket   Flag `json:"websocket"`

	AdjustTotalPeriods int `json:"adjusttotalperiods"`

	// Venue credentials.
	APIKey        string `json:"api_key"`
	APISecret     string `json:"api_secret"`
	APIPassphrase string `json:"api_passphrase"`
	APIURL        string `json:"api_url"`
	RecvWindow    int    `json:"recvwindow"`

	// Telegram.
	TelegramToken            string `json:"telegram_token"`
	TelegramClientID         string `json:"telegram_client_id"`
	DisableTelegram          Flag   `json:"disabletelegram"`
	DisableTelegramErrorMsgs Flag   `json:"disabletelegramerrormsgs"`

	// Logging.
	LogLevel    string `json:"loglevel"`
	LogJSON     Flag   `json:"logjson"`
	NoColor     Flag   `json:"nocolor"`
	TrackerFile string `json:"trackerfile"`

	// Raw granularity string kept so flags can override the file.
	GranularityRaw string `json:"granularity"`
}

// Verbose reports whether debug logging is enabled.
func (c *Config) Verbose() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// Default returns a config preloaded with the documented defaults.
func Default() *Config {
	return &Config{
		Exchange:             core.CoinbasePro,
		Granularity:          core.OneHour,
		GranularityRaw:       "3600",
		SellAtLoss:           true,
		TSLMultiplier:        1.1,
		TSLTriggerMultiplier: 1.1,
		TSLMaxPcnt:           -0.5,
		PreventLossTrigger:   1.0,
		PreventLossMargin:    0.1,
		TrailingBuyPcnt:      0,
		TrailingSellPcnt:     0,
		NoBuyNearHighPcnt:    3.0,
		BuyPercent:           100,
		SellPercent:          100,
		AdjustTotalPeriods:   300,
		LogLevel:             "info",
		TrackerFile:          "tracker.csv",
	}
}

// Validate checks the frozen option set. Every failure wraps ErrConfig.
func (c *Config) Validate() error {
	switch c.Exchange {
	case core.CoinbasePro, core.Binance, core.Kucoin, core.Dummy:
	default:
		return fmt.Errorf("%w: unknown exchange %q", ErrConfig, c.Exchange)
	}

	if c.Market == "" {
		return fmt.Errorf("%w: market is required", ErrConfig)
	}
	if c.BaseCurrency == "" || c.QuoteCurrency == "" {
		return fmt.Errorf("%w: base and quote currency are required", ErrConfig)
	}

	if !c.Granularity.IsValid() {
		return fmt.Errorf("%w: granularity %d not supported", ErrConfig, c.Granularity)
	}

	if c.BuyPercent <= 0 || c.BuyPercent > 100 {
		return fmt.Errorf("%w: buypercent must be in (0, 100]", ErrConfig)
	}
	if c.SellPercent <= 0 || c.SellPercent > 100 {
		return fmt.Errorf("%w: sellpercent must be in (0, 100]", ErrConfig)
	}

	if c.BuyMaxSize != nil && *c.BuyMaxSize <= 0 {
		return fmt.Errorf("%w: buymaxsize must be positive", ErrConfig)
	}
	if c.BuyMinSize != nil && *c.BuyMinSize <= 0 {
		return fmt.Errorf("%w: buyminsize must be positive", ErrConfig)
	}
	if c.BuyMaxSize != nil && c.BuyMinSize != nil && *c.BuyMaxSize < *c.BuyMinSize {
		return fmt.Errorf("%w: buymaxsize below buyminsize", ErrConfig)
	}

	if c.TrailingStopLoss != nil && (*c.TrailingStopLoss > 0 || *c.TrailingStopLoss < -100) {
		return fmt.Errorf("%w: trailingstoploss must be in [-100, 0]", ErrConfig)
	}
	if c.SellLowerPcnt != nil && *c.SellLowerPcnt >= 0 {
		return fmt.Errorf("%w: selllowerpcnt must be negative", ErrConfig)
	}
	if c.SellUpperPcnt != nil && *c.SellUpperPcnt <= 0 {
		return fmt.Errorf("%w: sellupperpcnt must be positive", ErrConfig)
	}

	if c.NoSellMinPcnt != nil && c.NoSellMaxPcnt != nil && *c.NoSellMinPcnt > *c.NoSellMaxPcnt {
		return fmt.Errorf("%w: nosellminpcnt above nosellmaxpcnt", ErrConfig)
	}

	if c.AdjustTotalPeriods < 200 || c.AdjustTotalPeriods > 500 {
		return fmt.Errorf("%w: adjusttotalperiods must be in [200, 500]", ErrConfig)
	}

	if c.Sim.Enabled() {
		switch c.Sim {
		case SimFast, SimSlow, SimFastSample, SimSlowSample:
		default:
			return fmt.Errorf("%w: unknown sim mode %q", ErrConfig, c.Sim)
		}
	}

	if bool(c.Live) && c.Sim.Enabled() {
		return fmt.Errorf("%w: live and sim are mutually exclusive", ErrConfig)
	}

	if bool(c.Live) && c.Exchange != core.Dummy && (c.APIKey == "" || c.APISecret == "") {
		return fmt.Errorf("%w: live trading requires api credentials", ErrConfig)
	}

	return nil
}
