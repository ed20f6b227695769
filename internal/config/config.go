package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CATDASH"

// Config holds configuration values loaded from .env, config file, environment variables and flags.
type Config struct {
	OrderBookURL       string
	AMMURL             string
	OraclePrimaryURL   string
	OracleSecondaryURL string
	IconURLPattern     string
	QuoteAsset         string
	RequestTimeout     time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	OffersPageSize     int
	AMMPageSize        int
	OracleTTL          time.Duration
	OracleFallback     float64
	RefreshInterval    time.Duration
	AlertThreshold     float64
	Watch              []string
	Listen             string
	RateLimit          float64
	LogLevel           string
}

// Load merges config file, environment variables, and flags into Config.
// A .env file in the working directory is loaded first and never overrides the real environment.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("orderbook-url", "https://api.dexie.space")
	v.SetDefault("amm-url", "https://api.v2.tibetswap.io")
	v.SetDefault("oracle-primary-url", "https://api.coingecko.com/api/v3/simple/price?ids=chia&vs_currencies=usd")
	v.SetDefault("oracle-secondary-url", "https://api.coinpaprika.com/v1/tickers/xch-chia")
	v.SetDefault("icon-url-pattern", "https://icons.dexie.space/{id}.webp")
	v.SetDefault("quote-asset", "xch")
	v.SetDefault("request-timeout", 10*time.Second)
	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", time.Second)
	v.SetDefault("offers-page-size", 200)
	v.SetDefault("amm-page-size", 500)
	v.SetDefault("oracle-ttl", 60*time.Second)
	v.SetDefault("oracle-fallback", 25.0)
	v.SetDefault("refresh-interval", 30*time.Second)
	v.SetDefault("alert-threshold", 5.0)
	v.SetDefault("listen", ":8080")
	v.SetDefault("rate-limit", 0.0)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		OrderBookURL:       v.GetString("orderbook-url"),
		AMMURL:             v.GetString("amm-url"),
		OraclePrimaryURL:   v.GetString("oracle-primary-url"),
		OracleSecondaryURL: v.GetString("oracle-secondary-url"),
		IconURLPattern:     v.GetString("icon-url-pattern"),
		QuoteAsset:         v.GetString("quote-asset"),
		RequestTimeout:     v.GetDuration("request-timeout"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		OffersPageSize:     v.GetInt("offers-page-size"),
		AMMPageSize:        v.GetInt("amm-page-size"),
		OracleTTL:          v.GetDuration("oracle-ttl"),
		OracleFallback:     v.GetFloat64("oracle-fallback"),
		RefreshInterval:    v.GetDuration("refresh-interval"),
		AlertThreshold:     v.GetFloat64("alert-threshold"),
		Watch:              getStringSlice(v, "watch"),
		Listen:             v.GetString("listen"),
		RateLimit:          v.GetFloat64("rate-limit"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	urls := []struct {
		key   string
		value string
	}{
		{"orderbook-url", c.OrderBookURL},
		{"amm-url", c.AMMURL},
		{"oracle-primary-url", c.OraclePrimaryURL},
		{"oracle-secondary-url", c.OracleSecondaryURL},
	}
	for _, u := range urls {
		if u.value == "" {
			return fmt.Errorf("%s is required", u.key)
		}
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s is not an absolute url: %q", u.key, u.value)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be positive")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh-interval must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry-backoff must not be negative")
	}
	if c.OffersPageSize <= 0 || c.OffersPageSize > 200 {
		return fmt.Errorf("offers-page-size must be in (0, 200], got %d", c.OffersPageSize)
	}
	if c.AMMPageSize <= 0 {
		return fmt.Errorf("amm-page-size must be positive")
	}
	if c.OracleTTL <= 0 {
		return fmt.Errorf("oracle-ttl must be positive")
	}
	if c.OracleFallback <= 0 {
		return fmt.Errorf("oracle-fallback must be positive")
	}
	if c.AlertThreshold < 0 {
		return fmt.Errorf("alert-threshold must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
