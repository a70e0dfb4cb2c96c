package house

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
)

// ACL actions checked by privileged operations.
const (
	ActionSetConfig    = "/house/set-config"
	ActionSetTaxes     = "/house/set-taxes"
	ActionSetOwner     = "/house/set-owner"
	ActionResumeClient = "/house/resume-client"
	ActionPay          = "/house/pay"
)

func (e *Engine) SetConfig(ctx context.Context, env Env, cfg model.Config) (*Response, error) {
	return e.exec(ctx, "set_config", env, func(o *op) error {
		if err := o.authorize(e, ActionSetConfig); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.cfg = cfg
		if err := o.txn.PutConfig(cfg); err != nil {
			return err
		}
		o.logger.Info("config updated",
			zap.Uint64("restake_rate", cfg.RestakeRate),
			zap.Uint64("tax_rate", cfg.TaxRate),
			zap.Uint64("unbonding_seconds", cfg.UnbondingSeconds),
		)
		return o.amortize()
	})
}

// SetTaxes replaces the tax recipient set.
func (e *Engine) SetTaxes(ctx context.Context, env Env, recipients []model.TaxRecipient) (*Response, error) {
	return e.exec(ctx, "set_taxes", env, func(o *op) error {
		if err := o.authorize(e, ActionSetTaxes); err != nil {
			return err
		}
		if err := validateTaxes(recipients); err != nil {
			return err
		}
		if err := o.txn.ReplaceTaxRecipients(recipients); err != nil {
			return err
		}
		o.logger.Info("tax recipients updated", zap.Int("recipients", len(recipients)))
		return o.amortize()
	})
}

func (e *Engine) SetOwner(ctx context.Context, env Env, owner model.Address) (*Response, error) {
	return e.exec(ctx, "set_owner", env, func(o *op) error {
		if err := o.authorize(e, ActionSetOwner); err != nil {
			return err
		}
		if err := validateAddress(owner); err != nil {
			return err
		}
		if err := o.txn.PutOwner(owner); err != nil {
			return err
		}
		o.logger.Info("owner updated", zap.String("owner", owner.Hex()))
		return nil
	})
}

// ResumeClient lifts a rate limit suspension and starts the client on a
// fresh usage window.
func (e *Engine) ResumeClient(ctx context.Context, env Env, client model.Address) (*Response, error) {
	return e.exec(ctx, "resume_client", env, func(o *op) error {
		if err := o.authorize(e, ActionResumeClient); err != nil {
			return err
		}
		c, ok, err := o.txn.Client(client)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrClientNotFound, client.Hex())
		}
		c.Suspended = false
		if err := o.txn.PutClient(c); err != nil {
			return err
		}
		o.txn.DeleteUsage(client)
		o.logger.Info("client resumed", zap.String("client", client.Hex()))
		return nil
	})
}

// PayTaxes distributes accrued taxes to the recipients by percentage. Anything
// the recipients do not take, including rounding dust, is credited to stakers
// as dividends.
func (e *Engine) PayTaxes(ctx context.Context, env Env) (*Response, error) {
	return e.exec(ctx, "pay_taxes", env, func(o *op) error {
		total := o.pool.Taxes
		if total.IsZero() {
			return o.amortize()
		}
		recipients, err := o.txn.TaxRecipients()
		if err != nil {
			return err
		}

		remaining := total
		for _, r := range recipients {
			share := total.MulPct(r.Pct)
			if share.IsZero() {
				continue
			}
			if remaining, err = sub(remaining, share, "tax remainder"); err != nil {
				return err
			}
			o.pay(r.Address, share)
			o.logger.Debug("tax paid", zap.String("recipient", r.Address.Hex()), zap.Stringer("amount", share))
		}

		if !remaining.IsZero() {
			if err := o.upsertLedgerEntry(amount.Zero, remaining, amount.Zero); err != nil {
				return err
			}
			o.pool.Dividends = o.pool.Dividends.Add(remaining)
		}
		o.pool.Taxes = amount.Zero

		paid, err := sub(total, remaining, "taxes paid")
		if err != nil {
			return err
		}
		o.resp.Amount = paid
		return o.amortize()
	})
}
