package house

import (
	"go.uber.org/zap"

	"liquidityHouse/internal/model"
)

// AmortizeBatch is how many queued accounts each mutating operation visits.
const AmortizeBatch = 2

func (o *op) enqueue(addr model.Address) error {
	if err := o.txn.PutQueueSlot(o.counters.QueueTail, addr); err != nil {
		return err
	}
	o.counters.QueueTail++
	return nil
}

// amortize rotates through the queue and syncs at most one stale account.
// Accounts that are gone or unbonding fall out of the queue. It must run
// after the calling operation has saved its own account.
func (o *op) amortize() error {
	c := &o.counters
	target := syncTarget(*c, false)

	for i := 0; i < AmortizeBatch; i++ {
		if c.QueueHead >= c.QueueTail {
			return nil
		}

		head := c.QueueHead
		addr, ok, err := o.txn.QueueSlot(head)
		if err != nil {
			return err
		}
		o.txn.DeleteQueueSlot(head)
		c.QueueHead++
		if !ok {
			return invariant("amortization queue slot %d missing", head)
		}

		acct, ok, err := o.txn.Account(addr)
		if err != nil {
			return err
		}
		if !ok || acct.IsUnbonding() {
			continue
		}
		if err := o.enqueue(addr); err != nil {
			return err
		}

		if acct.Seq < target {
			if err := o.syncAccount(&acct, false); err != nil {
				return err
			}
			if err := o.txn.PutAccount(acct); err != nil {
				return err
			}
			o.tally.Amortized++
			o.logger.Debug("amortized sync", zap.String("account", addr.Hex()), zap.Uint64("seq", acct.Seq))
			break
		}
	}
	return nil
}
