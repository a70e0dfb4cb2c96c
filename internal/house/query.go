package house

import (
	"context"
	"fmt"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
	"liquidityHouse/internal/state"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

func (e *Engine) Pool(ctx context.Context) (model.Pool, error) {
	var p model.Pool
	err := e.read(ctx, func(txn *state.Txn) (err error) {
		p, err = txn.Pool()
		return err
	})
	return p, err
}

func (e *Engine) Config(ctx context.Context) (model.Config, error) {
	var c model.Config
	err := e.read(ctx, func(txn *state.Txn) (err error) {
		c, err = txn.Config()
		return err
	})
	return c, err
}

func (e *Engine) Owner(ctx context.Context) (model.Address, error) {
	var owner model.Address
	err := e.read(ctx, func(txn *state.Txn) (err error) {
		owner, err = txn.Owner()
		return err
	})
	return owner, err
}

func (e *Engine) Metadata(ctx context.Context) (model.Metadata, error) {
	var md model.Metadata
	err := e.read(ctx, func(txn *state.Txn) error {
		c, err := txn.Counters()
		if err != nil {
			return err
		}
		md = model.Metadata{
			NStakeAccounts: c.NStakeAccounts,
			NUnbonding:     c.NUnbonding,
			NClients:       c.NClients,
			NLedgerEntries: c.NLedgerEntries,
			NextSeq:        c.NextSeq,
			Tag:            c.Tag,
		}
		return nil
	})
	return md, err
}

// Account returns addr's stake account as it would look after a final sync.
// Nothing is written.
func (e *Engine) Account(ctx context.Context, addr model.Address) (model.StakeAccount, error) {
	var acct model.StakeAccount
	err := e.read(ctx, func(txn *state.Txn) error {
		c, err := txn.Counters()
		if err != nil {
			return err
		}
		var ok bool
		acct, ok, err = txn.Account(addr)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrStakeAccountNotFound, addr.Hex())
		}
		return previewSync(txn, c, &acct)
	})
	return acct, err
}

// Accounts pages through stake accounts in address order, starting after
// cursor. Each account is returned as of a final sync.
func (e *Engine) Accounts(ctx context.Context, cursor *model.Address, limit int) ([]model.StakeAccount, error) {
	var accts []model.StakeAccount
	err := e.read(ctx, func(txn *state.Txn) error {
		c, err := txn.Counters()
		if err != nil {
			return err
		}
		accts, err = txn.Accounts(cursor, pageSize(limit))
		if err != nil {
			return err
		}
		for i := range accts {
			if err := previewSync(txn, c, &accts[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return accts, err
}

func previewSync(txn *state.Txn, c model.Counters, acct *model.StakeAccount) error {
	if acct.IsUnbonding() {
		return nil
	}
	_, err := replay(txn.LedgerEntry, c, acct, true)
	return err
}

// Events returns up to limit retained events, newest first.
func (e *Engine) Events(ctx context.Context, limit int) ([]model.HouseEvent, error) {
	var events []model.HouseEvent
	err := e.read(ctx, func(txn *state.Txn) error {
		c, err := txn.Counters()
		if err != nil {
			return err
		}
		limit = pageSize(limit)
		for idx := c.EventTail; idx > c.EventHead && len(events) < limit; idx-- {
			ev, ok, err := txn.Event(idx - 1)
			if err != nil {
				return err
			}
			if ok {
				events = append(events, ev)
			}
		}
		return nil
	})
	return events, err
}

func (e *Engine) Client(ctx context.Context, addr model.Address) (model.Client, error) {
	var client model.Client
	err := e.read(ctx, func(txn *state.Txn) error {
		var ok bool
		var err error
		client, ok, err = txn.Client(addr)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrClientNotFound, addr.Hex())
		}
		return nil
	})
	return client, err
}

func (e *Engine) Clients(ctx context.Context) ([]model.Client, error) {
	var clients []model.Client
	err := e.read(ctx, func(txn *state.Txn) (err error) {
		clients, err = txn.Clients()
		return err
	})
	return clients, err
}

func (e *Engine) TaxRecipients(ctx context.Context) ([]model.TaxRecipient, error) {
	var recipients []model.TaxRecipient
	err := e.read(ctx, func(txn *state.Txn) (err error) {
		recipients, err = txn.TaxRecipients()
		return err
	})
	return recipients, err
}

// Totals sums revenue received through RecordRevenue and Process, and the
// expense Process booked as payments.
func (e *Engine) Totals(ctx context.Context) (model.Totals, error) {
	var totals model.Totals
	err := e.read(ctx, func(txn *state.Txn) error {
		c, err := txn.Counters()
		if err != nil {
			return err
		}
		clients, err := txn.Clients()
		if err != nil {
			return err
		}
		revenue, expense := c.TotalStreamRevenue, amount.Zero
		for _, client := range clients {
			revenue = revenue.Add(client.Revenue)
			expense = expense.Add(client.Expense)
		}
		totals = model.Totals{Revenue: revenue, Expense: expense}
		return nil
	})
	return totals, err
}

// LedgerEntries lists open ledger entries in sequence order.
func (e *Engine) LedgerEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := e.read(ctx, func(txn *state.Txn) (err error) {
		entries, err = txn.LedgerEntries(limit)
		return err
	})
	return entries, err
}
