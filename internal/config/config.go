package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"liquidityHouse/internal/model"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Store        string
	StateFile    string
	SQLitePath   string
	PGDSN        string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
	EventsOut    string
	MetricsOut   string

	HouseAddress     string
	Owner            string
	Token            string
	RestakeRate      uint64
	TaxRate          uint64
	UnbondingSeconds uint64
	AccountRateLimit model.RateLimitConfig
	ClientRateLimit  model.RateLimitConfig
	Taxes            []string
	GenesisTime      string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StoreMemory)
	v.SetDefault("state-file", "./data/house_state.json")
	v.SetDefault("sqlite-path", "./data/house.db")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")
	v.SetDefault("events-out", "./data/events.jsonl")
	v.SetDefault("house-address", "0x00000000000000000000000000000000686f7573")
	v.SetDefault("token", "uhouse")
	v.SetDefault("restake-rate", uint64(500_000))
	v.SetDefault("tax-rate", uint64(50_000))
	v.SetDefault("unbonding-seconds", uint64(7*24*3600))
	v.SetDefault("account-rate-interval", uint64(24*3600))
	v.SetDefault("account-rate-max-pct", uint64(100_000))
	v.SetDefault("client-rate-interval", uint64(24*3600))
	v.SetDefault("client-rate-max-pct", uint64(200_000))

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
		Store:        strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		StateFile:    v.GetString("state-file"),
		SQLitePath:   v.GetString("sqlite-path"),
		PGDSN:        v.GetString("pg-dsn"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
		EventsOut:    v.GetString("events-out"),
		MetricsOut:   v.GetString("metrics-out"),

		HouseAddress:     v.GetString("house-address"),
		Owner:            v.GetString("owner"),
		Token:            v.GetString("token"),
		RestakeRate:      v.GetUint64("restake-rate"),
		TaxRate:          v.GetUint64("tax-rate"),
		UnbondingSeconds: v.GetUint64("unbonding-seconds"),
		AccountRateLimit: model.RateLimitConfig{
			IntervalSeconds: v.GetUint64("account-rate-interval"),
			MaxPctChange:    v.GetUint64("account-rate-max-pct"),
		},
		ClientRateLimit: model.RateLimitConfig{
			IntervalSeconds: v.GetUint64("client-rate-interval"),
			MaxPctChange:    v.GetUint64("client-rate-max-pct"),
		},
		Taxes:       getStringSlice(v, "tax"),
		GenesisTime: v.GetString("genesis-time"),
	}

	switch cfg.Store {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return Config{}, fmt.Errorf("unknown store %q", cfg.Store)
	}

	return cfg, nil
}

// HouseConfig returns the validated house parameters.
func (c Config) HouseConfig() (model.Config, error) {
	hc := model.Config{
		RestakeRate:            c.RestakeRate,
		TaxRate:                c.TaxRate,
		UnbondingSeconds:       c.UnbondingSeconds,
		AccountRateLimit:       c.AccountRateLimit,
		DefaultClientRateLimit: c.ClientRateLimit,
	}
	if err := hc.Validate(); err != nil {
		return model.Config{}, err
	}
	return hc, nil
}

// TaxRecipients parses entries of the form address=pct or address=pct:name.
func (c Config) TaxRecipients() ([]model.TaxRecipient, error) {
	out := make([]model.TaxRecipient, 0, len(c.Taxes))
	for _, entry := range c.Taxes {
		addrPart, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("tax %q: expected address=pct", entry)
		}
		addr, err := ParseAddress(addrPart)
		if err != nil {
			return nil, fmt.Errorf("tax %q: %w", entry, err)
		}
		pctPart, name, _ := strings.Cut(rest, ":")
		pct, err := strconv.ParseUint(strings.TrimSpace(pctPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tax %q: invalid pct: %w", entry, err)
		}
		out = append(out, model.TaxRecipient{Address: addr, Pct: pct, Name: strings.TrimSpace(name)})
	}
	if err := model.ValidateTaxes(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseAddress parses a non-empty hex address.
func ParseAddress(input string) (model.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return model.Address{}, fmt.Errorf("address is required")
	}
	if !common.IsHexAddress(input) {
		return model.Address{}, fmt.Errorf("invalid address %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339). Empty
// input yields the zero time.
func ParseTimestamp(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(val, 0).UTC(), nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return time.Time{}, err
	}
	return tm.UTC(), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
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
