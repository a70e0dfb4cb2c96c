package model

import (
	"errors"
	"fmt"

	"liquidityHouse/internal/amount"
)

var ErrInvalidConfig = errors.New("invalid config")

// RateLimitConfig bounds net outflow per interval to a fraction of liquidity.
type RateLimitConfig struct {
	IntervalSeconds uint64 `json:"interval_seconds" yaml:"interval_seconds" mapstructure:"interval-seconds"`
	MaxPctChange    uint64 `json:"max_pct_change" yaml:"max_pct_change" mapstructure:"max-pct-change"`
}

// Config holds house parameters. Rates are parts per million.
type Config struct {
	RestakeRate            uint64          `json:"restake_rate" yaml:"restake_rate"`
	TaxRate                uint64          `json:"tax_rate" yaml:"tax_rate"`
	UnbondingSeconds       uint64          `json:"unbonding_seconds" yaml:"unbonding_seconds"`
	AccountRateLimit       RateLimitConfig `json:"account_rate_limit" yaml:"account_rate_limit"`
	DefaultClientRateLimit RateLimitConfig `json:"default_client_rate_limit" yaml:"default_client_rate_limit"`
}

func (c Config) Validate() error {
	if c.RestakeRate > amount.PctScale {
		return fmt.Errorf("%w: restake rate %d exceeds %d", ErrInvalidConfig, c.RestakeRate, amount.PctScale)
	}
	if c.TaxRate > amount.PctScale {
		return fmt.Errorf("%w: tax rate %d exceeds %d", ErrInvalidConfig, c.TaxRate, amount.PctScale)
	}
	if err := c.AccountRateLimit.validate("account"); err != nil {
		return err
	}
	return c.DefaultClientRateLimit.validate("client")
}

func (r RateLimitConfig) validate(scope string) error {
	if r.MaxPctChange > amount.PctScale {
		return fmt.Errorf("%w: %s max pct change %d exceeds %d", ErrInvalidConfig, scope, r.MaxPctChange, amount.PctScale)
	}
	return nil
}

// ValidateTaxes checks recipient percentages sum to at most 100%.
func ValidateTaxes(recipients []TaxRecipient) error {
	var total uint64
	seen := make(map[Address]struct{}, len(recipients))
	for _, r := range recipients {
		if _, dup := seen[r.Address]; dup {
			return fmt.Errorf("%w: duplicate tax recipient %s", ErrInvalidConfig, r.Address.Hex())
		}
		seen[r.Address] = struct{}{}
		total += r.Pct
	}
	if total > amount.PctScale {
		return fmt.Errorf("%w: tax recipient pct sum %d exceeds %d", ErrInvalidConfig, total, amount.PctScale)
	}
	return nil
}
