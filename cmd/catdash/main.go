package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"catdash/internal/aggregate"
	"catdash/internal/config"
	"catdash/internal/httpclient"
	"catdash/internal/observability"
	"catdash/internal/source/amm"
	"catdash/internal/source/lasttrade"
	"catdash/internal/source/oracle"
	"catdash/internal/source/orderbook"
)

func main() {
	root := &cobra.Command{
		Use:          "catdash",
		Short:        "Chia CAT market dashboard backend",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll upstream sources and serve the dashboard over HTTP",
		RunE:  runServe,
	}

	addSourceFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("refresh-interval", 30*time.Second, "snapshot refresh interval")
	serveCmd.Flags().Float64("alert-threshold", 5, "price move in percent that raises an alert, 0 disables")
	serveCmd.Flags().StringSlice("watch", nil, "token ids to alert on (comma-separated), empty means all")

	root.AddCommand(serveCmd)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Run one aggregation cycle and print the snapshot as JSON",
		RunE:  runSnapshot,
	}

	addSourceFlags(snapshotCmd.Flags())
	snapshotCmd.Flags().Bool("pretty", false, "indent JSON output")
	snapshotCmd.Flags().Bool("safe", false, "print a stale empty snapshot instead of failing")

	root.AddCommand(snapshotCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSourceFlags(flags *pflag.FlagSet) {
	flags.String("orderbook-url", "", "order-book API base URL")
	flags.String("amm-url", "", "AMM API base URL")
	flags.String("oracle-primary-url", "", "primary fiat rate URL")
	flags.String("oracle-secondary-url", "", "secondary fiat rate URL")
	flags.Duration("request-timeout", 10*time.Second, "per-request upstream timeout")
	flags.Int("max-retries", 2, "order-book retry attempts after the first failure")
	flags.Duration("retry-backoff", time.Second, "linear retry backoff step")
	flags.Float64("rate-limit", 0, "upstream requests per second per client, 0 disables")
}

func buildAggregator(cfg config.Config, metrics *observability.Metrics, logger *zap.Logger) *aggregate.Aggregator {
	opts := []httpclient.Option{httpclient.WithTimeout(cfg.RequestTimeout)}
	if cfg.RateLimit > 0 {
		opts = append(opts, httpclient.WithRateLimit(cfg.RateLimit))
	}

	book := orderbook.NewClient(orderbook.Config{
		BaseURL:      cfg.OrderBookURL,
		QuoteAsset:   cfg.QuoteAsset,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, httpclient.New(opts...), logger)

	pools := amm.NewClient(amm.Config{
		BaseURL:  cfg.AMMURL,
		PageSize: cfg.AMMPageSize,
	}, httpclient.New(opts...), logger)

	trades := lasttrade.NewClient(lasttrade.Config{
		BaseURL:    cfg.OrderBookURL,
		QuoteAsset: cfg.QuoteAsset,
		PageSize:   cfg.OffersPageSize,
	}, httpclient.New(opts...), logger)

	rates := oracle.NewClient(oracle.Config{
		PrimaryURL:   cfg.OraclePrimaryURL,
		SecondaryURL: cfg.OracleSecondaryURL,
		Fallback:     cfg.OracleFallback,
	}, httpclient.New(opts...), oracle.NewPriceCache(cfg.OracleTTL), logger)

	return aggregate.NewAggregator(aggregate.Sources{
		OrderBook: book,
		Pools:     pools,
		LastTrade: trades,
		Rates:     rates,
	}, &aggregate.Merger{IconURLPattern: cfg.IconURLPattern}, metrics, logger)
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
