package house

import (
	"liquidityHouse/internal/model"
)

// ledgerUpdates are the entry writes produced by replaying an account.
type ledgerUpdates struct {
	updated []model.LedgerEntry
	zombies []uint64
}

type entryLoader func(seq uint64) (model.LedgerEntry, bool, error)

// syncTarget is the exclusive upper bound of a replay. Non-final replays
// never include the latest entry, which may still receive coalesced deltas.
func syncTarget(c model.Counters, final bool) uint64 {
	target := c.NextSeq
	if !final && target > 0 {
		target--
	}
	return target
}

// replay brings acct up to the sync target without touching storage. The
// returned updates describe the ref count changes that must be persisted for
// the replay to count.
func replay(load entryLoader, c model.Counters, acct *model.StakeAccount, final bool) (ledgerUpdates, error) {
	var updates ledgerUpdates
	if c.NLedgerEntries == 0 {
		return updates, nil
	}

	target := syncTarget(c, final)
	if target <= acct.Seq {
		return updates, nil
	}

	for seq := acct.Seq; seq < target; seq++ {
		entry, ok, err := load(seq)
		if err != nil {
			return updates, err
		}
		if !ok {
			return updates, invariant("ledger entry %d missing while replaying %s", seq, acct.Address.Hex())
		}
		if entry.RefCount == 0 {
			return updates, invariant("ledger entry %d replayed with zero ref count", seq)
		}
		if entry.Liquidity.IsZero() {
			return updates, invariant("ledger entry %d has zero liquidity snapshot", seq)
		}

		// Scaling by the closing liquidity keeps the sum of truncated account
		// balances at or below the pool.
		closing, err := sub(entry.Liquidity.Add(entry.DeltaRevenue), entry.DeltaLoss, "entry closing liquidity")
		if err != nil {
			return updates, err
		}
		liquidity, err := acct.Liquidity.MulDiv(closing, entry.Liquidity)
		if err != nil {
			return updates, invariant("entry %d liquidity: %v", seq, err)
		}
		dividends, err := entry.DeltaDividends.MulDiv(acct.Liquidity, entry.Liquidity)
		if err != nil {
			return updates, invariant("entry %d dividends: %v", seq, err)
		}

		acct.Liquidity = liquidity
		acct.Dividends = acct.Dividends.Add(dividends)

		entry.RefCount--
		if entry.RefCount > 0 {
			updates.updated = append(updates.updated, entry)
		} else {
			updates.zombies = append(updates.zombies, seq)
		}
	}
	acct.Seq = target
	return updates, nil
}

// syncAccount replays acct and persists ledger ref counts, removing entries
// every referencing account has now replayed. The caller saves acct.
func (o *op) syncAccount(acct *model.StakeAccount, final bool) error {
	before := acct.Seq
	updates, err := replay(o.txn.LedgerEntry, o.counters, acct, final)
	if err != nil {
		return err
	}

	for _, entry := range updates.updated {
		if err := o.txn.PutLedgerEntry(entry); err != nil {
			return err
		}
	}
	if n := uint32(len(updates.zombies)); n > 0 {
		if n > o.counters.NLedgerEntries {
			return invariant("collecting %d entries with only %d open", n, o.counters.NLedgerEntries)
		}
		o.counters.NLedgerEntries -= n
		for _, seq := range updates.zombies {
			o.txn.DeleteLedgerEntry(seq)
		}
	}

	o.tally.Replayed += int(acct.Seq - before)
	o.tally.Collected += len(updates.zombies)
	if final {
		o.tally.FinalSyncs++
	}
	return nil
}
