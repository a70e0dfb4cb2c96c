package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/bank"
	"liquidityHouse/internal/house"
	"liquidityHouse/internal/model"
)

// BlockInterval is the clock step between consecutive blocks.
const BlockInterval = 5 * time.Second

var ErrExpectationFailed = errors.New("scenario: expectation failed")

// DefaultStart is the clock origin used when neither the scenario nor the
// runner sets one.
var DefaultStart = time.Unix(1_700_000_000, 0).UTC()

type Runner struct {
	Engine *house.Engine
	Bank   *bank.Memory
	Logger *zap.Logger
	// Config seeds the house when the scenario does not carry its own.
	Config model.Config
	Start  time.Time
}

// Report summarizes a run. Failures lists unmet expectations.
type Report struct {
	Name     string      `json:"name"`
	Steps    int         `json:"steps"`
	Events   int         `json:"events"`
	Failures []string    `json:"failures,omitempty"`
	Block    model.Block `json:"block"`
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Run initializes the house if needed, executes every step and evaluates the
// expectations. A step that fails unexpectedly aborts the run.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	log := r.logger().With(zap.String("scenario", sc.Name))

	cfg := r.Config
	if sc.Config != nil {
		cfg = *sc.Config
	}
	err := r.Engine.Init(ctx, house.InitParams{Owner: sc.Owner, Token: sc.Token, Config: cfg, Taxes: sc.Taxes})
	switch {
	case errors.Is(err, house.ErrAlreadyInitialized):
		log.Info("house already initialized, replaying on existing state")
	case err != nil:
		return nil, fmt.Errorf("init house: %w", err)
	}

	start := sc.Start
	if start.IsZero() {
		start = r.Start
	}
	if start.IsZero() {
		start = DefaultStart
	}

	report := &Report{Name: sc.Name, Block: model.Block{Time: start}}
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !step.SameBlock || i == 0 {
			report.Block.Height++
			report.Block.Time = report.Block.Time.Add(BlockInterval)
		}
		report.Block.Time = report.Block.Time.Add(step.Advance)

		resp, err := r.exec(ctx, report.Block, step)
		if err := checkOutcome(step, resp, err); err != nil {
			return report, fmt.Errorf("step %d (%s): %w", i+1, describe(step), err)
		}
		report.Steps++
		if resp != nil {
			report.Events += len(resp.Events)
		}
		log.Debug("step done",
			zap.Int("step", i+1),
			zap.String("op", step.Op),
			zap.Uint64("height", report.Block.Height),
			zap.String("error", ErrorKind(err)),
		)
	}

	report.Failures = r.verify(ctx, sc.Expect)
	if len(report.Failures) > 0 {
		return report, fmt.Errorf("%w: %d unmet", ErrExpectationFailed, len(report.Failures))
	}
	log.Info("scenario passed", zap.Int("steps", report.Steps), zap.Int("events", report.Events))
	return report, nil
}

func (r *Runner) exec(ctx context.Context, block model.Block, step Step) (*house.Response, error) {
	env := house.Env{Block: block, Sender: step.Sender}
	fund := func(amt amount.Amount) {
		if step.Funds != nil {
			amt = *step.Funds
		}
		if !amt.IsZero() && r.Bank != nil {
			r.Bank.Mint(step.Sender, amt)
		}
		env.Funds = amt
	}

	switch step.Op {
	case OpStake:
		fund(step.Amount)
		return r.Engine.Stake(ctx, env, step.Amount)
	case OpUnstake:
		return r.Engine.Unstake(ctx, env)
	case OpClaim:
		return r.Engine.Claim(ctx, env)
	case OpWithdraw:
		return r.Engine.Withdraw(ctx, env)
	case OpRevenue:
		fund(step.Amount)
		return r.Engine.RecordRevenue(ctx, env, step.Amount)
	case OpPayment:
		return r.Engine.RecordPayment(ctx, env, step.Amount, step.Recipient)
	case OpProcess:
		in := step.Incoming
		switch {
		case in == nil:
		case in.Address != (model.Address{}) && in.Address != step.Sender:
			// Third-party funds are pulled from the source, not attached.
			if r.Bank != nil && !in.Amount.IsZero() {
				r.Bank.Mint(in.Address, in.Amount)
			}
		default:
			fund(in.Amount)
		}
		initiator := step.Initiator
		if initiator == (model.Address{}) {
			initiator = step.Sender
		}
		return r.Engine.Process(ctx, env, initiator, step.Incoming, step.Outgoing)
	case OpPayTaxes:
		return r.Engine.PayTaxes(ctx, env)
	case OpResumeClient:
		return r.Engine.ResumeClient(ctx, env, step.Client)
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func checkOutcome(step Step, resp *house.Response, err error) error {
	if step.Error != "" {
		if err == nil {
			return fmt.Errorf("expected error %s, got success", step.Error)
		}
		if !errors.Is(err, errorKinds[step.Error]) {
			return fmt.Errorf("expected error %s, got: %w", step.Error, err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if step.Returns != nil && !resp.Amount.Eq(*step.Returns) {
		return fmt.Errorf("returned %s, want %s", resp.Amount, step.Returns)
	}
	if step.Triggered != nil && resp.Triggered != *step.Triggered {
		return fmt.Errorf("triggered = %t, want %t", resp.Triggered, *step.Triggered)
	}
	return nil
}

func (r *Runner) verify(ctx context.Context, want Expect) []string {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}
	check := func(what string, got amount.Amount, want *amount.Amount) {
		if want != nil && !got.Eq(*want) {
			fail("%s = %s, want %s", what, got, want)
		}
	}

	if want.Pool != nil {
		p, err := r.Engine.Pool(ctx)
		if err != nil {
			fail("read pool: %v", err)
		} else {
			check("pool total stake", p.TotalStake, want.Pool.TotalStake)
			check("pool liquidity", p.Liquidity, want.Pool.Liquidity)
			check("pool dividends", p.Dividends, want.Pool.Dividends)
			check("pool taxes", p.Taxes, want.Pool.Taxes)
		}
	}

	for _, w := range want.Accounts {
		acct, err := r.Engine.Account(ctx, w.Address)
		if err != nil {
			fail("account %s: %v", w.Address.Hex(), err)
			continue
		}
		check(fmt.Sprintf("account %s liquidity", w.Address.Hex()), acct.Liquidity, w.Liquidity)
		check(fmt.Sprintf("account %s dividends", w.Address.Hex()), acct.Dividends, w.Dividends)
		if w.Unbonding != nil {
			if !acct.IsUnbonding() {
				fail("account %s is not unbonding", w.Address.Hex())
			} else {
				check(fmt.Sprintf("account %s unbonding", w.Address.Hex()), acct.Unbonding.Amount, w.Unbonding)
			}
		}
	}

	for _, addr := range want.Missing {
		if _, err := r.Engine.Account(ctx, addr); !errors.Is(err, house.ErrStakeAccountNotFound) {
			fail("account %s should not exist (err=%v)", addr.Hex(), err)
		}
	}

	for _, w := range want.Balances {
		if r.Bank == nil {
			fail("balance expectations need a bank")
			break
		}
		got := r.Bank.Balance(w.Address)
		check(fmt.Sprintf("balance %s", w.Address.Hex()), got, &w.Amount)
	}

	if want.Entries != nil {
		md, err := r.Engine.Metadata(ctx)
		if err != nil {
			fail("read metadata: %v", err)
		} else if md.NLedgerEntries != *want.Entries {
			fail("ledger entries = %d, want %d", md.NLedgerEntries, *want.Entries)
		}
	}
	return failures
}
