package house

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
)

// Stake adds amt to the sender's stake and liquidity. The sender must attach
// at least amt.
func (e *Engine) Stake(ctx context.Context, env Env, amt amount.Amount) (*Response, error) {
	return e.exec(ctx, "stake", env, func(o *op) error {
		if err := validateAddress(o.env.Sender); err != nil {
			return err
		}
		if err := requireAmount(amt); err != nil {
			return err
		}
		if err := o.collect(o.env.Sender, amt); err != nil {
			return err
		}

		acct, ok, err := o.txn.Account(o.env.Sender)
		if err != nil {
			return err
		}
		if ok && acct.IsUnbonding() {
			return ErrNotYetUnbonding
		}
		if !ok {
			acct = model.StakeAccount{Address: o.env.Sender, Seq: o.counters.NextSeq}
			o.counters.NStakeAccounts++
			if err := o.enqueue(o.env.Sender); err != nil {
				return err
			}
		} else if err := o.syncAccount(&acct, true); err != nil {
			return err
		}

		acct.Delegation = acct.Delegation.Add(amt)
		acct.Liquidity = acct.Liquidity.Add(amt)
		o.pool.TotalStake = o.pool.TotalStake.Add(amt)
		o.pool.Liquidity = o.pool.Liquidity.Add(amt)
		o.bumpTag()

		if err := o.txn.PutAccount(acct); err != nil {
			return err
		}
		o.resp.Amount = amt
		return o.amortize()
	})
}

// Unstake moves the sender's liquidity and dividends into unbonding and
// returns the unbonding amount.
func (e *Engine) Unstake(ctx context.Context, env Env) (*Response, error) {
	return e.exec(ctx, "unstake", env, func(o *op) error {
		acct, err := o.loadAccount()
		if err != nil {
			return err
		}
		if acct.IsUnbonding() {
			return ErrAlreadyUnbonding
		}
		if err := o.syncAccount(&acct, true); err != nil {
			return err
		}

		total := acct.Liquidity.Add(acct.Dividends)
		acct.Unbonding = &model.UnbondingInfo{Amount: total, Time: o.env.Block.Time}

		if o.pool.Liquidity, err = sub(o.pool.Liquidity, acct.Liquidity, "pool liquidity"); err != nil {
			return err
		}
		if o.pool.Dividends, err = sub(o.pool.Dividends, acct.Dividends, "pool dividends"); err != nil {
			return err
		}
		if o.pool.TotalStake, err = sub(o.pool.TotalStake, acct.Delegation, "pool stake"); err != nil {
			return err
		}

		acct.Liquidity = amount.Zero
		acct.Dividends = amount.Zero
		acct.Delegation = amount.Zero
		o.counters.NUnbonding++
		o.bumpTag()

		if err := o.txn.PutAccount(acct); err != nil {
			return err
		}
		o.logger.Debug("unbonding started", zap.String("account", acct.Address.Hex()), zap.Stringer("amount", total))
		o.resp.Amount = total
		return o.amortize()
	})
}

// Claim pays out the sender's accrued dividends.
func (e *Engine) Claim(ctx context.Context, env Env) (*Response, error) {
	return e.exec(ctx, "claim", env, func(o *op) error {
		acct, err := o.loadAccount()
		if err != nil {
			return err
		}
		if acct.IsUnbonding() {
			return ErrNotYetUnbonding
		}
		if err := o.syncAccount(&acct, true); err != nil {
			return err
		}

		paid := acct.Dividends
		if o.pool.Dividends, err = sub(o.pool.Dividends, paid, "pool dividends"); err != nil {
			return err
		}
		acct.Dividends = amount.Zero
		o.pay(acct.Address, paid)

		if err := o.txn.PutAccount(acct); err != nil {
			return err
		}
		o.resp.Amount = paid
		return o.amortize()
	})
}

// Withdraw pays out a fully unbonded account and deletes it.
func (e *Engine) Withdraw(ctx context.Context, env Env) (*Response, error) {
	return e.exec(ctx, "withdraw", env, func(o *op) error {
		acct, err := o.loadAccount()
		if err != nil {
			return err
		}
		if !acct.IsUnbonding() {
			return ErrNotUnstaked
		}
		elapsed := elapsedSeconds(acct.Unbonding.Time, o.env.Block.Time)
		if elapsed < o.cfg.UnbondingSeconds {
			return fmt.Errorf("%w: %ds of %ds elapsed", ErrStillUnbonding, elapsed, o.cfg.UnbondingSeconds)
		}
		if o.counters.NStakeAccounts == 0 || o.counters.NUnbonding == 0 {
			return invariant("withdraw with %d accounts and %d unbonding", o.counters.NStakeAccounts, o.counters.NUnbonding)
		}

		paid := acct.Unbonding.Amount
		o.pay(acct.Address, paid)
		o.txn.DeleteAccount(acct.Address)
		o.counters.NStakeAccounts--
		o.counters.NUnbonding--

		o.resp.Amount = paid
		return o.amortize()
	})
}

func (o *op) loadAccount() (model.StakeAccount, error) {
	acct, ok, err := o.txn.Account(o.env.Sender)
	if err != nil {
		return acct, err
	}
	if !ok {
		return acct, fmt.Errorf("%w: %s", ErrStakeAccountNotFound, o.env.Sender.Hex())
	}
	return acct, nil
}
