package house

import (
	"go.uber.org/zap"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
)

// upsertLedgerEntry records a delta to be shared by every active account.
//
// The delta is merged into the latest entry when no stake has changed since
// it was created and no account has replayed it yet. Otherwise a new entry is
// appended that snapshots the pool before the delta is applied, so callers
// must invoke this before updating o.pool.
func (o *op) upsertLedgerEntry(gain, dividends, loss amount.Amount) error {
	c := &o.counters
	active := c.Active()

	if c.NLedgerEntries > 0 && c.NextSeq > 0 {
		latest, ok, err := o.txn.LedgerEntry(c.NextSeq - 1)
		if err != nil {
			return err
		}
		if ok && latest.Tag == c.Tag && latest.RefCount == active {
			latest.DeltaRevenue = latest.DeltaRevenue.Add(gain)
			latest.DeltaDividends = latest.DeltaDividends.Add(dividends)
			latest.DeltaLoss = latest.DeltaLoss.Add(loss)
			if err := o.txn.PutLedgerEntry(latest); err != nil {
				return err
			}
			o.tally.Coalesced++
			return nil
		}
	}

	// With nobody to replay it, or no liquidity to share it against, the
	// delta stays in the pool aggregates only.
	if active == 0 || o.pool.Liquidity.IsZero() {
		o.logger.Debug("ledger delta retained by pool",
			zap.Uint32("active", active),
			zap.Stringer("liquidity", o.pool.Liquidity),
			zap.Stringer("gain", gain),
			zap.Stringer("dividends", dividends),
			zap.Stringer("loss", loss),
		)
		return nil
	}

	entry := model.LedgerEntry{
		Seq:            c.NextSeq,
		Liquidity:      o.pool.Liquidity,
		Delegation:     o.pool.TotalStake,
		DeltaRevenue:   gain,
		DeltaDividends: dividends,
		DeltaLoss:      loss,
		RefCount:       active,
		Tag:            c.Tag,
	}
	if err := o.txn.PutLedgerEntry(entry); err != nil {
		return err
	}
	c.NLedgerEntries++
	c.NextSeq++
	o.tally.Appended++

	o.logger.Debug("ledger entry appended",
		zap.Uint64("seq", entry.Seq),
		zap.Uint32("ref_count", entry.RefCount),
		zap.Uint64("tag", entry.Tag),
	)
	return nil
}

// bumpTag marks a stake change so the next delta opens a new entry.
func (o *op) bumpTag() {
	o.counters.Tag++
}
