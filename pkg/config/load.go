package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/candlebot/candlebot/pkg/core"
)

// file mirrors the on-disk shape: a top-level object keyed by exchange
// name, each section carrying credentials plus an optional nested "config"
// subobject. Options are also accepted directly in the section for
// backward compatibility.
type section struct {
	APIKey        string          `json:"api_key"`
	APISecret     string          `json:"api_secret"`
	APIPassphrase string          `json:"api_passphrase"`
	APIURL        string          `json:"api_url"`
	Config        json.RawMessage `json:"config"`
}

type telegramSection struct {
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

// Load reads the JSON config file and returns the option set for the given
// exchange. An empty exchange picks the first recognized section present in
// the file.
func Load(path string, exchange core.ExchangeName) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if exchange == "" {
		for _, name := range []core.ExchangeName{core.CoinbasePro, core.Binance, core.Kucoin, core.Dummy} {
			if _, ok := sections[string(name)]; ok {
				exchange = name
				break
			}
		}
	}
	sec, ok := sections[string(exchange)]
	if !ok {
		return nil, fmt.Errorf("%w: no section for exchange %q", ErrConfig, exchange)
	}

	cfg := Default()
	cfg.Exchange = exchange

	// Backward compatibility: options directly in the exchange section.
	if err := json.Unmarshal(sec, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var s section
	if err := json.Unmarshal(sec, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if len(s.Config) > 0 {
		if err := json.Unmarshal(s.Config, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	cfg.APIKey = s.APIKey
	cfg.APISecret = s.APISecret
	cfg.APIPassphrase = s.APIPassphrase
	cfg.APIURL = s.APIURL

	if tg, ok := sections["telegram"]; ok {
		var t telegramSection
		if err := json.Unmarshal(tg, &t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		cfg.TelegramToken = t.Token
		cfg.TelegramClientID = t.ClientID
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize resolves derived fields (granularity, market symbology) and
// validates the result.
func (c *Config) Finalize() error {
	if c.GranularityRaw != "" {
		g, err := core.ParseGranularity(c.GranularityRaw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		c.Granularity = g
	}

	switch {
	case c.Market == "" && c.BaseCurrency != "" && c.QuoteCurrency != "":
		if c.Exchange == core.Binance {
			c.Market = c.BaseCurrency + c.QuoteCurrency
		} else {
			c.Market = c.BaseCurrency + "-" + c.QuoteCurrency
		}
	case c.Market != "" && strings.Contains(c.Market, "-"):
		parts := strings.SplitN(c.Market, "-", 2)
		if c.BaseCurrency == "" {
			c.BaseCurrency = parts[0]
		}
		if c.QuoteCurrency == "" {
			c.QuoteCurrency = parts[1]
		}
	}

	return c.Validate()
}
