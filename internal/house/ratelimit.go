package house

import (
	"context"

	"go.uber.org/zap"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
	"liquidityHouse/internal/state"
)

type rateLimitEvent int

const (
	rateLimitNone rateLimitEvent = iota
	// rateLimitThrottled means the address was already over its limit, or
	// already transacted in this block. The operation is rejected.
	rateLimitThrottled
	// rateLimitTriggered means this operation pushed the address over its
	// limit. The operation may proceed but the caller flags the address.
	rateLimitTriggered
)

func (ev rateLimitEvent) String() string {
	switch ev {
	case rateLimitThrottled:
		return "throttled"
	case rateLimitTriggered:
		return "triggered"
	default:
		return "none"
	}
}

const (
	scopeClient  = "client"
	scopeAccount = "account"
)

// checkAndRecord updates the usage window of addr with an operation moving
// incoming into and outgoing out of the house. Operations with nothing going
// out are never limited and leave no usage record.
func (o *op) checkAndRecord(addr model.Address, cfg model.RateLimitConfig, incoming, outgoing amount.Amount, scope string) (rateLimitEvent, error) {
	if outgoing.IsZero() {
		return rateLimitNone, nil
	}
	block := o.env.Block
	usage, existed, err := o.txn.Usage(addr)
	if err != nil {
		return rateLimitNone, err
	}
	if !existed {
		usage = model.Usage{StartLiquidity: o.pool.Liquidity, StartTime: block.Time}
	}

	if elapsedSeconds(usage.StartTime, block.Time) >= cfg.IntervalSeconds {
		usage.StartLiquidity = o.pool.Liquidity
		usage.StartTime = block.Time
		usage.Spent = amount.Zero
		usage.Added = amount.Zero
	}

	threshold := usage.StartLiquidity.MulPct(cfg.MaxPctChange)
	sameBlock := existed && usage.PrevHeight == block.Height

	event := rateLimitNone
	if overThreshold(usage, threshold) || sameBlock {
		event = rateLimitThrottled
	}

	usage.PrevHeight = block.Height
	usage.Added = usage.Added.Add(incoming)
	usage.Spent = usage.Spent.Add(outgoing)

	if event == rateLimitNone && overThreshold(usage, threshold) {
		event = rateLimitTriggered
	}

	if err := o.txn.PutUsage(addr, usage); err != nil {
		return rateLimitNone, err
	}

	if event != rateLimitNone {
		o.tally.RateLimit(scope, event.String())
		o.logger.Debug("rate limit",
			zap.String("scope", scope),
			zap.String("address", addr.Hex()),
			zap.Stringer("event", event),
			zap.Stringer("spent", usage.Spent),
			zap.Stringer("added", usage.Added),
			zap.Stringer("threshold", threshold),
			zap.Bool("same_block", sameBlock),
		)
	}
	return event, nil
}

func overThreshold(u model.Usage, threshold amount.Amount) bool {
	return u.Spent.Gt(u.Added) && u.Net().Gte(threshold)
}

// isRateLimited reports whether spending extra now would be throttled,
// without recording anything.
func isRateLimited(txn *state.Txn, block model.Block, cfg model.RateLimitConfig, addr model.Address, extra amount.Amount) (bool, error) {
	usage, ok, err := txn.Usage(addr)
	if err != nil || !ok {
		return false, err
	}
	if usage.PrevHeight == block.Height {
		return true, nil
	}
	if elapsedSeconds(usage.StartTime, block.Time) >= cfg.IntervalSeconds {
		return false, nil
	}
	threshold := usage.StartLiquidity.MulPct(cfg.MaxPctChange)
	total := usage.Net().Add(extra)
	return !total.IsZero() && total.Gte(threshold), nil
}

// RateLimitCheck reports whether addr spending amt in block would hit the
// account rate limit.
func (e *Engine) RateLimitCheck(ctx context.Context, block model.Block, addr model.Address, amt amount.Amount) (bool, error) {
	var limited bool
	err := e.read(ctx, func(txn *state.Txn) error {
		if err := validateAddress(addr); err != nil {
			return err
		}
		cfg, err := txn.Config()
		if err != nil {
			return err
		}
		limited, err = isRateLimited(txn, block, cfg.AccountRateLimit, addr, amt)
		return err
	})
	return limited, err
}

// CanSpend reports whether client may move amt on behalf of spender in block.
func (e *Engine) CanSpend(ctx context.Context, block model.Block, client, spender model.Address, amt amount.Amount) (bool, error) {
	var allowed bool
	err := e.read(ctx, func(txn *state.Txn) error {
		if err := validateAddress(client); err != nil {
			return err
		}
		if err := validateAddress(spender); err != nil {
			return err
		}
		cfg, err := txn.Config()
		if err != nil {
			return err
		}

		clientLimit := cfg.DefaultClientRateLimit
		c, ok, err := txn.Client(client)
		if err != nil {
			return err
		}
		if ok {
			if c.Suspended {
				return nil
			}
			clientLimit = c.RateLimit
		}

		limited, err := isRateLimited(txn, block, clientLimit, client, amt)
		if err != nil || limited {
			return err
		}
		if spender != client {
			limited, err = isRateLimited(txn, block, cfg.AccountRateLimit, spender, amt)
			if err != nil || limited {
				return err
			}
		}
		allowed = true
		return nil
	})
	return allowed, err
}
