package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/candlebot/candlebot"
	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/exchange"
	"github.com/candlebot/candlebot/pkg/logger/zerolog"
)

const dateLayout = "2006-01-02"

// Command line flags. Anything set on the command line wins over the
// config file.
var (
	configFile string

	exchangeName  string
	market        string
	baseCurrency  string
	quoteCurrency string
	granularity   string

	live         bool
	sim          string
	simStartDate string
	simEndDate   string

	buyPercent  float64
	sellPercent float64
	buyMaxSize  float64
	buyMinSize  float64

	smartSwitch     bool
	sellSmartSwitch bool
	sellAtLoss      bool
	autoRestart     bool

	disableTelegram bool
	trackerFile     string

	logLevel string
	logJSON  bool
	noColor  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "candlebot",
		Short:   "Automated single-market crypto trading bot",
		Version: "1.0.0",
		RunE:    runBot,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "config.json", "Config file path")
	flags.StringVarP(&exchangeName, "exchange", "x", "", "Exchange (coinbasepro, binance, kucoin, dummy)")
	flags.StringVarP(&market, "market", "m", "", "Market to trade (e.g. BTC-USD)")
	flags.StringVar(&baseCurrency, "base", "", "Base currency (e.g. BTC)")
	flags.StringVar(&quoteCurrency, "quote", "", "Quote currency (e.g. USD)")
	flags.StringVarP(&granularity, "granularity", "g", "", "Candle granularity (e.g. 1h or 3600)")

	flags.BoolVar(&live, "live", false, "Trade with real funds")
	flags.StringVar(&sim, "sim", "", "Simulation mode (fast, slow, fast-sample, slow-sample)")
	flags.StringVar(&simStartDate, "simstartdate", "", "Simulation start (e.g. 2025-01-01)")
	flags.StringVar(&simEndDate, "simenddate", "", "Simulation end (e.g. 2025-03-01)")

	flags.Float64Var(&buyPercent, "buypercent", 0, "Percent of quote balance per buy")
	flags.Float64Var(&sellPercent, "sellpercent", 0, "Percent of base balance per sell")
	flags.Float64Var(&buyMaxSize, "buymaxsize", 0, "Maximum quote size per buy")
	flags.Float64Var(&buyMinSize, "buyminsize", 0, "Minimum quote size per buy")

	flags.BoolVar(&smartSwitch, "smartswitch", false, "Switch granularity with the trend")
	flags.BoolVar(&sellSmartSwitch, "sellsmartswitch", false, "Track pending sells on 5m candles")
	flags.BoolVar(&sellAtLoss, "sellatloss", false, "Allow sells below the buy price")
	flags.BoolVar(&autoRestart, "autorestart", false, "Restart the loop after a fatal error")

	flags.BoolVar(&disableTelegram, "disabletelegram", false, "Disable Telegram notifications")
	flags.StringVar(&trackerFile, "trackerfile", "", "Trade tracker CSV path")

	flags.StringVar(&logLevel, "loglevel", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&logJSON, "logjson", false, "Log as JSON")
	flags.BoolVar(&noColor, "nocolor", false, "Disable colored output")

	rootCmd.AddCommand(buildDownloadCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Download command flags.
var (
	downloadDays   int
	downloadStart  string
	downloadEnd    string
	downloadOutput string
)

func buildDownloadCmd() *cobra.Command {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download historical candles to a CSV file",
		RunE:  runDownload,
	}

	flags := downloadCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "config.json", "Config file path")
	flags.StringVarP(&exchangeName, "exchange", "x", "", "Exchange (coinbasepro, binance, kucoin)")
	flags.StringVarP(&market, "market", "m", "", "Market to download (e.g. BTC-USD)")
	flags.StringVarP(&granularity, "granularity", "g", "", "Candle granularity (e.g. 1h or 3600)")
	flags.IntVarP(&downloadDays, "days", "d", 0, "Number of days to download")
	flags.StringVarP(&downloadStart, "start", "s", "", "Start date (e.g. 2025-12-01)")
	flags.StringVarP(&downloadEnd, "end", "e", "", "End date (e.g. 2025-12-31)")
	flags.StringVarP(&downloadOutput, "output", "o", "", "Output file path (e.g. ./btc.csv)")

	_ = downloadCmd.MarkFlagRequired("output")

	return downloadCmd
}

func runDownload(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := zerolog.New(cfg.LogLevel, "2006-01-02 15:04:05", !bool(cfg.NoColor), bool(cfg.LogJSON))
	if err != nil {
		return err
	}

	exch, err := exchange.New(cfg, log)
	if err != nil {
		return err
	}

	options, err := buildDownloadOptions()
	if err != nil {
		return err
	}

	return exchange.NewDownloader(exch, log).Download(
		cmd.Context(), cfg.Market, cfg.Granularity, downloadOutput, options...)
}

func buildDownloadOptions() ([]exchange.DownloadOption, error) {
	var options []exchange.DownloadOption

	if downloadDays > 0 {
		options = append(options, exchange.WithDays(downloadDays))
	}

	if downloadStart != "" || downloadEnd != "" {
		if downloadStart == "" || downloadEnd == "" {
			return nil, fmt.Errorf("start and end dates must be provided together")
		}

		start, err := time.Parse(dateLayout, downloadStart)
		if err != nil {
			return nil, fmt.Errorf("invalid start date: %w", err)
		}
		end, err := time.Parse(dateLayout, downloadEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid end date: %w", err)
		}

		options = append(options, exchange.WithInterval(start.UTC(), end.UTC()))
	}

	return options, nil
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bot, err := candlebot.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig reads the config file when it exists, otherwise starts from
// defaults, then folds command line flags over the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config

	if _, err := os.Stat(configFile); err == nil {
		cfg, err = config.Load(configFile, core.ExchangeName(exchangeName))
		if err != nil {
			return nil, err
		}
	} else if cmd.Flags().Changed("config") {
		return nil, fmt.Errorf("config file %s: %w", configFile, err)
	} else {
		cfg = config.Default()
		if exchangeName != "" {
			cfg.Exchange = core.ExchangeName(exchangeName)
		}
	}

	applyOverrides(cmd, cfg)

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed

	if set("exchange") {
		cfg.Exchange = core.ExchangeName(exchangeName)
	}
	if set("market") {
		cfg.Market = market
	}
	if set("base") {
		cfg.BaseCurrency = baseCurrency
	}
	if set("quote") {
		cfg.QuoteCurrency = quoteCurrency
	}
	if set("granularity") {
		cfg.GranularityRaw = granularity
	}

	if set("live") {
		cfg.Live = config.Flag(live)
	}
	if set("sim") {
		cfg.Sim = config.SimMode(sim)
	}
	if set("simstartdate") {
		cfg.SimStartDate = simStartDate
	}
	if set("simenddate") {
		cfg.SimEndDate = simEndDate
	}

	if set("buypercent") {
		cfg.BuyPercent = buyPercent
	}
	if set("sellpercent") {
		cfg.SellPercent = sellPercent
	}
	if set("buymaxsize") {
		cfg.BuyMaxSize = &buyMaxSize
	}
	if set("buyminsize") {
		cfg.BuyMinSize = &buyMinSize
	}

	if set("smartswitch") {
		cfg.SmartSwitch = config.Flag(smartSwitch)
	}
	if set("sellsmartswitch") {
		cfg.SellSmartSwitch = config.Flag(sellSmartSwitch)
	}
	if set("sellatloss") {
		cfg.SellAtLoss = config.Flag(sellAtLoss)
	}
	if set("autorestart") {
		cfg.AutoRestart = config.Flag(autoRestart)
	}

	if set("disabletelegram") {
		cfg.DisableTelegram = config.Flag(disableTelegram)
	}
	if set("trackerfile") {
		cfg.TrackerFile = trackerFile
	}

	if set("loglevel") {
		cfg.LogLevel = logLevel
	}
	if set("logjson") {
		cfg.LogJSON = config.Flag(logJSON)
	}
	if set("nocolor") {
		cfg.NoColor = config.Flag(noColor)
	}
}
