package house

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/bank"
	"liquidityHouse/internal/metrics"
	"liquidityHouse/internal/model"
	"liquidityHouse/internal/state"
	"liquidityHouse/internal/store"
	"liquidityHouse/internal/store/memory"
)

var (
	houseAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	payer     = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	dave      = common.HexToAddress("0x00000000000000000000000000000000000000d4")
)

func testConfig() model.Config {
	unlimited := model.RateLimitConfig{IntervalSeconds: 3600, MaxPctChange: amount.PctScale}
	return model.Config{
		RestakeRate:            amount.PctScale,
		UnbondingSeconds:       3600,
		AccountRateLimit:       unlimited,
		DefaultClientRateLimit: unlimited,
	}
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	st     *memory.Store
	bank   *bank.Memory
	eng    *Engine
	height uint64
	now    time.Time
}

func newHarness(t *testing.T, cfg model.Config, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		ctx:  context.Background(),
		st:   memory.New(),
		bank: bank.NewMemory(),
		now:  time.Unix(1_700_000_000, 0).UTC(),
	}
	o := Options{Address: houseAddr, Bank: h.bank}
	for _, fn := range opts {
		fn(&o)
	}
	h.eng = New(h.st, o)
	err := h.eng.Init(h.ctx, InitParams{Owner: owner, Token: "uhouse", Config: cfg})
	require.NoError(t, err)
	return h
}

// next returns a new block five seconds after the previous one.
func (h *harness) next() model.Block {
	h.height++
	h.now = h.now.Add(5 * time.Second)
	return model.Block{Height: h.height, Time: h.now}
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) env(sender model.Address, funds uint64) Env {
	return Env{Block: h.next(), Sender: sender, Funds: amount.New(funds)}
}

func (h *harness) stake(addr model.Address, n uint64) {
	h.t.Helper()
	h.bank.Mint(addr, amount.New(n))
	_, err := h.eng.Stake(h.ctx, h.env(addr, n), amount.New(n))
	require.NoError(h.t, err, "stake %d from %s", n, addr.Hex())
}

func (h *harness) revenue(n uint64) {
	h.t.Helper()
	h.bank.Mint(payer, amount.New(n))
	_, err := h.eng.RecordRevenue(h.ctx, h.env(payer, n), amount.New(n))
	require.NoError(h.t, err, "revenue %d", n)
}

func (h *harness) pay(n uint64) (*Response, error) {
	return h.eng.RecordPayment(h.ctx, h.env(owner, 0), amount.New(n), recipient)
}

func (h *harness) claim(addr model.Address) amount.Amount {
	h.t.Helper()
	resp, err := h.eng.Claim(h.ctx, h.env(addr, 0))
	require.NoError(h.t, err, "claim %s", addr.Hex())
	return resp.Amount
}

func (h *harness) pool() model.Pool {
	h.t.Helper()
	p, err := h.eng.Pool(h.ctx)
	require.NoError(h.t, err)
	return p
}

func (h *harness) account(addr model.Address) model.StakeAccount {
	h.t.Helper()
	acct, err := h.eng.Account(h.ctx, addr)
	require.NoError(h.t, err)
	return acct
}

// stored reads the persisted account without replaying pending entries.
func (h *harness) stored(addr model.Address) (model.StakeAccount, bool) {
	h.t.Helper()
	acct, ok, err := state.NewTxn(h.ctx, h.st).Account(addr)
	require.NoError(h.t, err)
	return acct, ok
}

func (h *harness) counters() model.Counters {
	h.t.Helper()
	c, err := state.NewTxn(h.ctx, h.st).Counters()
	require.NoError(h.t, err)
	return c
}

func eqAmount(t *testing.T, got amount.Amount, want uint64, what string) {
	t.Helper()
	if !got.Eq(amount.New(want)) {
		t.Fatalf("%s = %s, want %d", what, got, want)
	}
}

func TestRevenueSharedByStake(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)
	h.stake(bob, 300)
	h.revenue(400)

	eqAmount(t, h.account(alice).Liquidity, 200, "alice liquidity")
	eqAmount(t, h.account(bob).Liquidity, 600, "bob liquidity")
	eqAmount(t, h.pool().Liquidity, 800, "pool liquidity")
	eqAmount(t, h.pool().TotalStake, 400, "pool stake")
}

func TestPaymentReducesLiquidity(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)

	resp, err := h.pay(40)
	require.NoError(t, err)
	eqAmount(t, resp.Amount, 40, "paid")

	eqAmount(t, h.account(alice).Liquidity, 60, "alice liquidity")
	eqAmount(t, h.pool().Liquidity, 60, "pool liquidity")
	eqAmount(t, h.bank.Balance(recipient), 40, "recipient balance")
	eqAmount(t, h.bank.Balance(houseAddr), 60, "house balance")
}

func TestPaymentExceedingLiquidity(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)

	_, err := h.pay(101)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	eqAmount(t, h.pool().Liquidity, 100, "pool liquidity")
}

func TestUnbondingLifecycle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)

	resp, err := h.eng.Unstake(h.ctx, h.env(alice, 0))
	require.NoError(t, err)
	eqAmount(t, resp.Amount, 100, "unbonding amount")
	eqAmount(t, h.pool().Liquidity, 0, "pool liquidity")

	if _, err := h.eng.Claim(h.ctx, h.env(alice, 0)); !errors.Is(err, ErrNotYetUnbonding) {
		t.Fatalf("claim while unbonding: expected ErrNotYetUnbonding, got %v", err)
	}
	if _, err := h.eng.Stake(h.ctx, h.env(alice, 10), amount.New(10)); !errors.Is(err, ErrNotYetUnbonding) {
		t.Fatalf("stake while unbonding: expected ErrNotYetUnbonding, got %v", err)
	}
	if _, err := h.eng.Unstake(h.ctx, h.env(alice, 0)); !errors.Is(err, ErrAlreadyUnbonding) {
		t.Fatalf("second unstake: expected ErrAlreadyUnbonding, got %v", err)
	}
	_, err = h.eng.Withdraw(h.ctx, h.env(alice, 0))
	if !errors.Is(err, ErrStillUnbonding) {
		t.Fatalf("early withdraw: expected ErrStillUnbonding, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("ErrStillUnbonding should be retryable")
	}

	h.advance(time.Hour)
	resp, err = h.eng.Withdraw(h.ctx, h.env(alice, 0))
	require.NoError(t, err)
	eqAmount(t, resp.Amount, 100, "withdrawn")
	eqAmount(t, h.bank.Balance(alice), 100, "alice balance")

	if _, err := h.eng.Account(h.ctx, alice); !errors.Is(err, ErrStakeAccountNotFound) {
		t.Fatalf("expected deleted record, got %v", err)
	}
	c := h.counters()
	if c.NStakeAccounts != 0 || c.NUnbonding != 0 {
		t.Fatalf("unexpected counters after withdraw: %+v", c)
	}

	// A withdrawn address can stake again from scratch.
	h.stake(alice, 50)
	eqAmount(t, h.account(alice).Liquidity, 50, "restaked liquidity")
}

func TestOperationValidation(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)

	tooLarge := amount.MustParse("1361129467683753853853498429727072845824")
	cases := []struct {
		name string
		run  func() error
		want error
	}{
		{"zero stake", func() error {
			_, err := h.eng.Stake(h.ctx, h.env(bob, 0), amount.Zero)
			return err
		}, ErrInsufficientAmount},
		{"underfunded stake", func() error {
			_, err := h.eng.Stake(h.ctx, h.env(bob, 5), amount.New(10))
			return err
		}, ErrInsufficientFunds},
		{"oversized stake", func() error {
			_, err := h.eng.Stake(h.ctx, Env{Block: h.next(), Sender: bob, Funds: tooLarge}, tooLarge)
			return err
		}, ErrAmountTooLarge},
		{"zero address", func() error {
			_, err := h.eng.Stake(h.ctx, h.env(common.Address{}, 10), amount.New(10))
			return err
		}, ErrInvalidAddress},
		{"unstake unknown", func() error {
			_, err := h.eng.Unstake(h.ctx, h.env(bob, 0))
			return err
		}, ErrStakeAccountNotFound},
		{"claim unknown", func() error {
			_, err := h.eng.Claim(h.ctx, h.env(bob, 0))
			return err
		}, ErrStakeAccountNotFound},
		{"withdraw active", func() error {
			_, err := h.eng.Withdraw(h.ctx, h.env(alice, 0))
			return err
		}, ErrNotUnstaked},
		{"zero revenue", func() error {
			_, err := h.eng.RecordRevenue(h.ctx, h.env(payer, 0), amount.Zero)
			return err
		}, ErrInsufficientAmount},
		{"payment to zero address", func() error {
			_, err := h.eng.RecordPayment(h.ctx, h.env(owner, 0), amount.New(1), common.Address{})
			return err
		}, ErrInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if IsFatal(err) {
				t.Fatalf("validation error classified as fatal: %v", err)
			}
		})
	}

	eqAmount(t, h.pool().Liquidity, 100, "pool liquidity after rejected operations")
	eqAmount(t, h.bank.Balance(houseAddr), 100, "house balance after rejected operations")
}

func TestUninitializedHouse(t *testing.T) {
	eng := New(memory.New(), Options{Address: houseAddr})
	ctx := context.Background()

	_, err := eng.Stake(ctx, Env{Block: model.Block{Height: 1}, Sender: alice, Funds: amount.New(1)}, amount.New(1))
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	p := InitParams{Owner: owner, Token: "uhouse", Config: testConfig()}
	require.NoError(t, eng.Init(ctx, p))
	if err := eng.Init(ctx, p); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	bad := p
	bad.Config.TaxRate = 2 * amount.PctScale
	if err := New(memory.New(), Options{}).Init(ctx, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestClaimPaysDividends(t *testing.T) {
	cfg := testConfig()
	cfg.RestakeRate = amount.PctScale / 2
	h := newHarness(t, cfg)
	h.stake(alice, 100)
	h.stake(bob, 100)
	h.revenue(200)

	eqAmount(t, h.claim(alice), 50, "alice claim")
	eqAmount(t, h.bank.Balance(alice), 50, "alice balance")
	eqAmount(t, h.pool().Dividends, 50, "pool dividends")
	eqAmount(t, h.account(alice).Liquidity, 150, "alice liquidity")
	eqAmount(t, h.account(alice).Dividends, 0, "alice dividends after claim")
	eqAmount(t, h.account(bob).Dividends, 50, "bob dividends")

	eqAmount(t, h.claim(alice), 0, "second claim")
}

func TestReadOnlyQueriesDoNotWrite(t *testing.T) {
	h := newHarness(t, testConfig())
	h.stake(alice, 100)
	h.stake(bob, 100)
	h.revenue(100)

	before, _ := h.stored(alice)
	eqAmount(t, h.account(alice).Liquidity, 150, "previewed liquidity")
	after, _ := h.stored(alice)
	if after.Seq != before.Seq || !after.Liquidity.Eq(before.Liquidity) {
		t.Fatalf("account query mutated state: before %+v after %+v", before, after)
	}

	accts, err := h.eng.Accounts(h.ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	require.Equal(t, alice, accts[0].Address)
	eqAmount(t, accts[1].Liquidity, 150, "bob previewed liquidity")

	page, err := h.eng.Accounts(h.ctx, &alice, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, bob, page[0].Address)

	md, err := h.eng.Metadata(h.ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(2), md.NStakeAccounts)
	require.Equal(t, uint32(1), md.NLedgerEntries)
	require.Equal(t, uint64(1), md.NextSeq)
}

func TestEngineRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := newHarness(t, testConfig(), func(o *Options) { o.Metrics = m })
	h.stake(alice, 100)
	h.stake(bob, 100)
	h.revenue(10)
	h.revenue(10)
	_, _ = h.eng.Withdraw(h.ctx, h.env(alice, 0))

	if got := testutil.ToFloat64(m.Operations.WithLabelValues("stake", "ok")); got != 2 {
		t.Fatalf("stake ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Operations.WithLabelValues("withdraw", "error")); got != 1 {
		t.Fatalf("withdraw error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LedgerEntries.WithLabelValues("appended")); got != 1 {
		t.Fatalf("appended = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LedgerEntries.WithLabelValues("coalesced")); got != 1 {
		t.Fatalf("coalesced = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LedgerOpen); got != 1 {
		t.Fatalf("open entries = %v, want 1", got)
	}
}

func TestFailedBankLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, testConfig())
	// Funds are attached but never minted, so the bank rejects the pull.
	_, err := h.eng.Stake(h.ctx, h.env(alice, 100), amount.New(100))
	if !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected bank rejection, got %v", err)
	}
	if _, ok := h.stored(alice); ok {
		t.Fatalf("account written despite failed transfer")
	}
	eqAmount(t, h.pool().Liquidity, 0, "pool liquidity")
}

// brokenStore fails every Apply once broken is set.
type brokenStore struct {
	*memory.Store
	broken bool
}

func (s *brokenStore) Apply(ctx context.Context, muts []store.Mutation) error {
	if s.broken {
		return errors.New("disk full")
	}
	return s.Store.Apply(ctx, muts)
}

func TestStoreFailureAfterTransfersIsReported(t *testing.T) {
	ctx := context.Background()
	st := &brokenStore{Store: memory.New()}
	b := bank.NewMemory()
	eng := New(st, Options{Address: houseAddr, Bank: b})
	require.NoError(t, eng.Init(ctx, InitParams{Owner: owner, Token: "uhouse", Config: testConfig()}))

	st.broken = true
	b.Mint(alice, amount.New(100))
	env := Env{Block: model.Block{Height: 1, Time: time.Unix(1_700_000_000, 0)}, Sender: alice, Funds: amount.New(100)}
	_, err := eng.Stake(ctx, env, amount.New(100))
	require.ErrorIs(t, err, ErrStateNotApplied)
	require.True(t, IsFatal(err))

	// Tokens moved, state did not.
	eqAmount(t, b.Balance(houseAddr), 100, "house balance")
	p, err := eng.Pool(ctx)
	require.NoError(t, err)
	eqAmount(t, p.Liquidity, 0, "pool liquidity")

	// Without transfers a store failure is a plain error.
	_, err = eng.Process(ctx, Env{Block: env.Block, Sender: client}, user, nil, nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrStateNotApplied))
}
