package house

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
)

func TestRevenueCoalescesUntilReplayed(t *testing.T) {
	cfg := testConfig()
	cfg.RestakeRate = amount.PctScale / 2
	h := newHarness(t, cfg)
	h.stake(alice, 100)
	h.stake(bob, 100)

	h.revenue(10)
	h.revenue(20)
	h.revenue(30)

	entries, err := h.eng.LedgerEntries(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	eqAmount(t, e.Liquidity, 200, "snapshot")
	eqAmount(t, e.DeltaRevenue, 30, "coalesced gain")
	eqAmount(t, e.DeltaDividends, 30, "coalesced dividends")
	require.Equal(t, uint32(2), e.RefCount)

	// Once an account has replayed the entry it can no longer absorb deltas.
	eqAmount(t, h.claim(alice), 15, "alice claim")
	h.revenue(10)
	require.Equal(t, uint64(2), h.counters().NextSeq)

	eqAmount(t, h.claim(bob), 17, "bob claim")
	entries, err = h.eng.LedgerEntries(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(1), entries[0].Seq)
	require.Equal(t, uint32(1), entries[0].RefCount)

	eqAmount(t, h.claim(alice), 2, "alice second claim")
	require.Equal(t, uint32(0), h.counters().NLedgerEntries)

	// Truncation leaves dust in the pool, never in the accounts.
	eqAmount(t, h.pool().Liquidity, 235, "pool liquidity")
	sum := h.account(alice).Liquidity.Add(h.account(bob).Liquidity)
	eqAmount(t, sum, 234, "account liquidity")
	eqAmount(t, h.pool().Dividends, 1, "dividend dust")
}

func TestStakeChangeStartsNewEntry(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)
	h.revenue(10)
	h.stake(bob, 100)
	h.revenue(10)

	require.Equal(t, uint64(2), h.counters().NextSeq)

	// The second revenue's amortization pass replays alice past the first
	// entry, its only reference.
	acct, _ := h.stored(alice)
	require.Equal(t, uint64(1), acct.Seq)
	require.Equal(t, uint32(1), h.counters().NLedgerEntries)

	entries, err := h.eng.LedgerEntries(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(1), entries[0].Seq)
	require.Equal(t, uint32(2), entries[0].RefCount)
	eqAmount(t, entries[0].Liquidity, 210, "second snapshot")

	// bob joined after the first entry and only shares the second.
	eqAmount(t, h.account(alice).Liquidity, 115, "alice liquidity")
	eqAmount(t, h.account(bob).Liquidity, 104, "bob liquidity")
}

func TestDeltaWithoutStakersStaysInPool(t *testing.T) {
	h := newHarness(t, testConfig())
	h.revenue(50)

	c := h.counters()
	require.Equal(t, uint32(0), c.NLedgerEntries)
	require.Equal(t, uint64(0), c.NextSeq)
	eqAmount(t, h.pool().Liquidity, 50, "pool liquidity")

	h.stake(alice, 100)
	eqAmount(t, h.account(alice).Liquidity, 100, "alice liquidity")
}

func TestRevenueAfterLiquidityWipedOutStaysInPool(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)
	_, err := h.pay(100)
	require.NoError(t, err)
	eqAmount(t, h.pool().Liquidity, 0, "pool after payout")
	// Replaying the loss collects the only entry.
	eqAmount(t, h.claim(alice), 0, "alice dividends")
	require.Equal(t, uint32(0), h.counters().NLedgerEntries)

	h.revenue(50)
	c := h.counters()
	require.Equal(t, uint32(0), c.NLedgerEntries, "no entry against an empty snapshot")
	eqAmount(t, h.pool().Liquidity, 50, "pool liquidity")
	eqAmount(t, h.account(alice).Liquidity, 0, "alice liquidity")

	// The stranded gain is not claimable by later stakers either.
	h.stake(bob, 100)
	eqAmount(t, h.account(bob).Liquidity, 100, "bob liquidity")
	resp, err := h.eng.Unstake(h.ctx, h.env(alice, 0))
	require.NoError(t, err)
	eqAmount(t, resp.Amount, 0, "alice unbonding")
	eqAmount(t, h.pool().Liquidity, 150, "pool keeps the stranded gain")
}

func TestRefCountCollectsEntries(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)
	h.stake(bob, 100)
	h.stake(carol, 100)
	h.revenue(30)

	for i, addr := range []model.Address{alice, bob} {
		h.claim(addr)
		entries, err := h.eng.LedgerEntries(h.ctx, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, uint32(2-i), entries[0].RefCount)
	}

	h.claim(carol)
	require.Equal(t, uint32(0), h.counters().NLedgerEntries)
	entries, err := h.eng.LedgerEntries(h.ctx, 0)
	require.NoError(t, err)
	require.Empty(t, entries)

	for _, addr := range []model.Address{alice, bob, carol} {
		acct, ok := h.stored(addr)
		require.True(t, ok)
		require.Equal(t, uint64(1), acct.Seq)
		eqAmount(t, acct.Liquidity, 110, "synced liquidity")
	}
}

func TestUnbondingAccountsDoNotHoldEntries(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)
	h.stake(bob, 100)
	_, err := h.eng.Unstake(h.ctx, h.env(alice, 0))
	require.NoError(t, err)

	h.revenue(10)
	entries, err := h.eng.LedgerEntries(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint32(1), entries[0].RefCount)

	h.claim(bob)
	require.Equal(t, uint32(0), h.counters().NLedgerEntries)
	eqAmount(t, h.account(bob).Liquidity, 110, "bob liquidity")
}

func TestAmortizationCollectsStaleEntries(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)
	h.stake(bob, 100)
	h.revenue(10)
	h.stake(carol, 100)
	h.revenue(10)

	for i := 0; i < 4; i++ {
		_, err := h.eng.Process(h.ctx, h.env(dave, 0), dave, nil, nil)
		require.NoError(t, err)
	}

	for _, addr := range []model.Address{alice, bob, carol} {
		acct, _ := h.stored(addr)
		require.Equal(t, uint64(1), acct.Seq, "%s cursor", addr.Hex())
	}
	c := h.counters()
	require.Equal(t, uint32(1), c.NLedgerEntries)
	require.Equal(t, uint64(3), c.QueueTail-c.QueueHead)

	entries, err := h.eng.LedgerEntries(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(1), entries[0].Seq)
	require.Equal(t, uint32(3), entries[0].RefCount)
}

func TestAmortizationDropsUnbondingAccounts(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)
	h.stake(bob, 100)
	h.stake(carol, 100)
	_, err := h.eng.Unstake(h.ctx, h.env(alice, 0))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := h.eng.Process(h.ctx, h.env(dave, 0), dave, nil, nil)
		require.NoError(t, err)
	}
	c := h.counters()
	require.Equal(t, uint64(2), c.QueueTail-c.QueueHead)
}

func TestReplayRejectsCorruptLedger(t *testing.T) {
	c := model.Counters{NStakeAccounts: 1, NLedgerEntries: 1, NextSeq: 1}
	acct := model.StakeAccount{Address: alice, Liquidity: amount.New(10)}

	zeroSnapshot := func(seq uint64) (model.LedgerEntry, bool, error) {
		return model.LedgerEntry{Seq: seq, RefCount: 1, DeltaRevenue: amount.New(5)}, true, nil
	}
	if _, err := replay(zeroSnapshot, c, &acct, true); !IsFatal(err) {
		t.Fatalf("zero snapshot: expected invariant violation, got %v", err)
	}

	missing := func(uint64) (model.LedgerEntry, bool, error) {
		return model.LedgerEntry{}, false, nil
	}
	if _, err := replay(missing, c, &acct, true); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("missing entry: expected invariant violation, got %v", err)
	}

	orphan := func(seq uint64) (model.LedgerEntry, bool, error) {
		return model.LedgerEntry{Seq: seq, Liquidity: amount.New(10)}, true, nil
	}
	if _, err := replay(orphan, c, &acct, true); !IsFatal(err) {
		t.Fatalf("zero ref count: expected invariant violation, got %v", err)
	}
	require.Equal(t, uint64(0), acct.Seq, "failed replay must not move the cursor")
}

func TestReplayTargets(t *testing.T) {
	c := model.Counters{NStakeAccounts: 2, NLedgerEntries: 2, NextSeq: 2}
	entries := map[uint64]model.LedgerEntry{
		0: {Seq: 0, Liquidity: amount.New(100), DeltaRevenue: amount.New(100), RefCount: 2},
		1: {Seq: 1, Liquidity: amount.New(200), DeltaLoss: amount.New(50), RefCount: 2},
	}
	load := func(seq uint64) (model.LedgerEntry, bool, error) {
		e, ok := entries[seq]
		return e, ok, nil
	}

	acct := model.StakeAccount{Address: alice, Liquidity: amount.New(50)}
	updates, err := replay(load, c, &acct, false)
	require.NoError(t, err)
	require.Equal(t, uint64(1), acct.Seq, "non-final replay stops before the latest entry")
	eqAmount(t, acct.Liquidity, 100, "liquidity after gain")
	require.Len(t, updates.updated, 1)
	require.Equal(t, uint32(1), updates.updated[0].RefCount)

	updates, err = replay(load, c, &acct, true)
	require.NoError(t, err)
	require.Equal(t, uint64(2), acct.Seq)
	eqAmount(t, acct.Liquidity, 75, "liquidity after loss")
	require.Len(t, updates.updated, 1)

	// Nothing left to replay.
	updates, err = replay(load, c, &acct, true)
	require.NoError(t, err)
	require.Empty(t, updates.updated)
	require.Empty(t, updates.zombies)

	last := model.StakeAccount{Address: bob, Liquidity: amount.New(50)}
	entries[0] = model.LedgerEntry{Seq: 0, Liquidity: amount.New(100), DeltaRevenue: amount.New(100), RefCount: 1}
	updates, err = replay(load, c, &last, false)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, updates.zombies)
}

func TestReplayIsProportional(t *testing.T) {
	c := model.Counters{NStakeAccounts: 3, NLedgerEntries: 1, NextSeq: 1}
	entry := model.LedgerEntry{
		Liquidity:      amount.New(237),
		DeltaRevenue:   amount.New(1001),
		DeltaDividends: amount.New(333),
		DeltaLoss:      amount.New(17),
		RefCount:       3,
	}
	load := func(uint64) (model.LedgerEntry, bool, error) { return entry, true, nil }

	a := model.StakeAccount{Liquidity: amount.New(100)}
	b := model.StakeAccount{Liquidity: amount.New(100)}
	other := model.StakeAccount{Liquidity: amount.New(37)}
	for _, acct := range []*model.StakeAccount{&a, &b, &other} {
		_, err := replay(load, c, acct, true)
		require.NoError(t, err)
	}

	require.True(t, a.Liquidity.Eq(b.Liquidity))
	require.True(t, a.Dividends.Eq(b.Dividends))

	closing := entry.Liquidity.Add(entry.DeltaRevenue)
	closing, _ = closing.Sub(entry.DeltaLoss)
	total := amount.Sum(a.Liquidity, b.Liquidity, other.Liquidity)
	require.False(t, total.Gt(closing), "accounts %s exceed pool %s", total, closing)
	require.False(t, amount.Sum(a.Dividends, b.Dividends, other.Dividends).Gt(entry.DeltaDividends))
}
