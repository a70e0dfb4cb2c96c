package state

import (
	"fmt"
	"strings"

	"liquidityHouse/internal/model"
	"liquidityHouse/internal/store"
)

const (
	keyPool     = "pool"
	keyConfig   = "config"
	keyCounters = "counters"
	keyOwner    = "owner"
)

// AddressKey is the storage key for an address.
func AddressKey(addr model.Address) string {
	return strings.ToLower(addr.Hex())
}

// SeqKey zero-pads n so lexical order matches numeric order.
func SeqKey(n uint64) string {
	return fmt.Sprintf("%020d", n)
}

func (t *Txn) Initialized() (bool, error) {
	_, ok, err := t.raw(store.BucketMeta, keyPool)
	return ok, err
}

func (t *Txn) Pool() (model.Pool, error) {
	return mustGet[model.Pool](t, keyPool)
}

func (t *Txn) PutPool(p model.Pool) error {
	return put(t, store.BucketMeta, keyPool, p)
}

func (t *Txn) Config() (model.Config, error) {
	return mustGet[model.Config](t, keyConfig)
}

func (t *Txn) PutConfig(c model.Config) error {
	return put(t, store.BucketMeta, keyConfig, c)
}

func (t *Txn) Counters() (model.Counters, error) {
	return mustGet[model.Counters](t, keyCounters)
}

func (t *Txn) PutCounters(c model.Counters) error {
	return put(t, store.BucketMeta, keyCounters, c)
}

func (t *Txn) Owner() (model.Address, error) {
	return mustGet[model.Address](t, keyOwner)
}

func (t *Txn) PutOwner(addr model.Address) error {
	return put(t, store.BucketMeta, keyOwner, addr)
}

func mustGet[T any](t *Txn, key string) (T, error) {
	v, ok, err := get[T](t, store.BucketMeta, key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, ErrNotInitialized
	}
	return v, nil
}

func (t *Txn) Account(addr model.Address) (model.StakeAccount, bool, error) {
	return get[model.StakeAccount](t, store.BucketAccounts, AddressKey(addr))
}

func (t *Txn) PutAccount(a model.StakeAccount) error {
	return put(t, store.BucketAccounts, AddressKey(a.Address), a)
}

func (t *Txn) DeleteAccount(addr model.Address) {
	del(t, store.BucketAccounts, AddressKey(addr))
}

// Accounts lists accounts ordered by address, starting after cursor.
func (t *Txn) Accounts(cursor *model.Address, limit int) ([]model.StakeAccount, error) {
	after := ""
	if cursor != nil {
		after = AddressKey(*cursor)
	}
	return scan[model.StakeAccount](t, store.BucketAccounts, after, limit)
}

func (t *Txn) LedgerEntry(seq uint64) (model.LedgerEntry, bool, error) {
	return get[model.LedgerEntry](t, store.BucketLedger, SeqKey(seq))
}

func (t *Txn) PutLedgerEntry(e model.LedgerEntry) error {
	return put(t, store.BucketLedger, SeqKey(e.Seq), e)
}

func (t *Txn) DeleteLedgerEntry(seq uint64) {
	del(t, store.BucketLedger, SeqKey(seq))
}

func (t *Txn) LedgerEntries(limit int) ([]model.LedgerEntry, error) {
	return scan[model.LedgerEntry](t, store.BucketLedger, "", limit)
}

func (t *Txn) Usage(addr model.Address) (model.Usage, bool, error) {
	return get[model.Usage](t, store.BucketUsage, AddressKey(addr))
}

func (t *Txn) PutUsage(addr model.Address, u model.Usage) error {
	return put(t, store.BucketUsage, AddressKey(addr), u)
}

func (t *Txn) DeleteUsage(addr model.Address) {
	del(t, store.BucketUsage, AddressKey(addr))
}

func (t *Txn) Client(addr model.Address) (model.Client, bool, error) {
	return get[model.Client](t, store.BucketClients, AddressKey(addr))
}

func (t *Txn) PutClient(c model.Client) error {
	return put(t, store.BucketClients, AddressKey(c.Address), c)
}

func (t *Txn) Clients() ([]model.Client, error) {
	return scan[model.Client](t, store.BucketClients, "", 0)
}

func (t *Txn) QueueSlot(idx uint64) (model.Address, bool, error) {
	return get[model.Address](t, store.BucketQueue, SeqKey(idx))
}

func (t *Txn) PutQueueSlot(idx uint64, addr model.Address) error {
	return put(t, store.BucketQueue, SeqKey(idx), addr)
}

func (t *Txn) DeleteQueueSlot(idx uint64) {
	del(t, store.BucketQueue, SeqKey(idx))
}

func (t *Txn) Event(idx uint64) (model.HouseEvent, bool, error) {
	return get[model.HouseEvent](t, store.BucketEvents, SeqKey(idx))
}

func (t *Txn) PutEvent(idx uint64, ev model.HouseEvent) error {
	return put(t, store.BucketEvents, SeqKey(idx), ev)
}

func (t *Txn) DeleteEvent(idx uint64) {
	del(t, store.BucketEvents, SeqKey(idx))
}

func (t *Txn) TaxRecipients() ([]model.TaxRecipient, error) {
	return scan[model.TaxRecipient](t, store.BucketTaxes, "", 0)
}

// ReplaceTaxRecipients deletes every existing recipient before writing the
// new set.
func (t *Txn) ReplaceTaxRecipients(recipients []model.TaxRecipient) error {
	existing, err := t.scanRaw(store.BucketTaxes, "", 0)
	if err != nil {
		return err
	}
	for _, kv := range existing {
		del(t, store.BucketTaxes, kv.Key)
	}
	for _, r := range recipients {
		if err := put(t, store.BucketTaxes, AddressKey(r.Address), r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Txn) Stream(addr model.Address) (model.RevenueStream, bool, error) {
	return get[model.RevenueStream](t, store.BucketStreams, AddressKey(addr))
}

func (t *Txn) PutStream(s model.RevenueStream) error {
	return put(t, store.BucketStreams, AddressKey(s.Address), s)
}
