package house

import (
	"context"
	"fmt"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
)

// RecordRevenue takes amt from the sender as house revenue. After tax, the
// restake rate decides how much grows liquidity and how much becomes
// claimable dividends.
func (e *Engine) RecordRevenue(ctx context.Context, env Env, amt amount.Amount) (*Response, error) {
	return e.exec(ctx, "revenue", env, func(o *op) error {
		if err := validateAddress(o.env.Sender); err != nil {
			return err
		}
		if err := requireAmount(amt); err != nil {
			return err
		}
		if err := o.collect(o.env.Sender, amt); err != nil {
			return err
		}

		stream, ok, err := o.txn.Stream(o.env.Sender)
		if err != nil {
			return err
		}
		if !ok {
			stream = model.RevenueStream{Address: o.env.Sender, CreatedAt: o.env.Block.Time}
		}
		stream.Revenue = stream.Revenue.Add(amt)
		stream.Executions++
		if err := o.txn.PutStream(stream); err != nil {
			return err
		}
		o.counters.TotalStreamRevenue = o.counters.TotalStreamRevenue.Add(amt)

		if err := o.applyRevenue(amt); err != nil {
			return err
		}
		o.resp.Amount = amt
		return o.amortize()
	})
}

// RecordPayment pays amt out of pool liquidity to recipient. The sender must
// be allowed to pay and is subject to the account rate limit.
func (e *Engine) RecordPayment(ctx context.Context, env Env, amt amount.Amount, recipient model.Address) (*Response, error) {
	return e.exec(ctx, "payment", env, func(o *op) error {
		if err := o.authorize(e, ActionPay); err != nil {
			return err
		}
		if err := validateAddress(recipient); err != nil {
			return err
		}
		if err := requireAmount(amt); err != nil {
			return err
		}

		event, err := o.checkAndRecord(o.env.Sender, o.cfg.AccountRateLimit, amount.Zero, amt, scopeAccount)
		if err != nil {
			return err
		}
		switch event {
		case rateLimitThrottled:
			return fmt.Errorf("%w: %s", ErrRateLimited, o.env.Sender.Hex())
		case rateLimitTriggered:
			if err := o.pushEvent(model.EventAccountRateLimitTriggered, o.env.Sender, o.env.Sender); err != nil {
				return err
			}
		}

		if err := o.applyPayment(amt); err != nil {
			return err
		}
		o.pay(recipient, amt)
		o.resp.Amount = amt
		return o.amortize()
	})
}

// applyRevenue splits revenue into tax, restaked gain and dividends and
// records it in the ledger.
func (o *op) applyRevenue(revenue amount.Amount) error {
	tax := revenue.MulPct(o.cfg.TaxRate)
	postTax, err := sub(revenue, tax, "revenue after tax")
	if err != nil {
		return err
	}
	gain := postTax.MulPct(o.cfg.RestakeRate)
	dividends, err := sub(postTax, gain, "revenue dividends")
	if err != nil {
		return err
	}

	if err := o.upsertLedgerEntry(gain, dividends, amount.Zero); err != nil {
		return err
	}
	o.pool.Liquidity = o.pool.Liquidity.Add(gain)
	o.pool.Dividends = o.pool.Dividends.Add(dividends)
	o.pool.Taxes = o.pool.Taxes.Add(tax)
	return nil
}

// applyPayment records a loss against pool liquidity.
func (o *op) applyPayment(payment amount.Amount) error {
	if o.pool.Liquidity.Lt(payment) {
		return fmt.Errorf("%w: payment %s exceeds liquidity %s", ErrInsufficientFunds, payment, o.pool.Liquidity)
	}
	if err := o.upsertLedgerEntry(amount.Zero, amount.Zero, payment); err != nil {
		return err
	}
	var err error
	o.pool.Liquidity, err = sub(o.pool.Liquidity, payment, "pool liquidity")
	return err
}
