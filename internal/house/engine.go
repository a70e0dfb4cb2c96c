package house

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/metrics"
	"liquidityHouse/internal/model"
	"liquidityHouse/internal/state"
	"liquidityHouse/internal/store"
)

// Bank moves tokens. Execute must apply all transfers or none.
//
// The engine executes transfers before it applies the state changes of the
// same operation. A bank rejection therefore leaves state untouched, but a
// store failure after a successful Execute leaves the tokens moved and the
// state unchanged; Engine returns that error wrapped in ErrStateNotApplied so
// the caller can reconcile.
type Bank interface {
	Execute(ctx context.Context, transfers []model.Transfer) error
}

// ACL answers permission checks for privileged operations.
type ACL interface {
	IsAllowed(ctx context.Context, principal model.Address, action string) (bool, error)
}

// EventSink receives house events after they are committed.
type EventSink interface {
	PutEvents(events []model.HouseEvent) error
}

// Env is the caller context of an operation.
type Env struct {
	Block  model.Block
	Sender model.Address
	// Funds is the amount the sender attached to the call.
	Funds amount.Amount
}

// Response describes the effects of a committed operation.
type Response struct {
	Action    string
	Amount    amount.Amount
	Transfers []model.Transfer
	Events    []model.HouseEvent
	// Triggered is set when Process refunded the caller because a rate
	// limit tripped.
	Triggered bool
}

type Options struct {
	// Address is the house custody account used as the source and sink of
	// transfers.
	Address model.Address
	Bank    Bank
	ACL     ACL
	Events  EventSink
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Engine executes house operations one at a time against a store.
type Engine struct {
	st      store.Store
	address model.Address
	bank    Bank
	acl     ACL
	sink    EventSink
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu sync.Mutex
}

func New(st store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		st:      st,
		address: opts.Address,
		bank:    opts.Bank,
		acl:     opts.ACL,
		sink:    opts.Events,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Address returns the house custody address.
func (e *Engine) Address() model.Address {
	return e.address
}

// InitParams seeds a new house.
type InitParams struct {
	Owner  model.Address
	Token  string
	Config model.Config
	Taxes  []model.TaxRecipient
}

// Init writes the initial pool, config, counters, owner and tax recipients.
func (e *Engine) Init(ctx context.Context, p InitParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateAddress(p.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if err := p.Config.Validate(); err != nil {
		return err
	}
	if err := validateTaxes(p.Taxes); err != nil {
		return err
	}

	txn := state.NewTxn(ctx, e.st)
	ok, err := txn.Initialized()
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}

	if err := txn.PutPool(model.Pool{Token: p.Token}); err != nil {
		return err
	}
	if err := txn.PutConfig(p.Config); err != nil {
		return err
	}
	if err := txn.PutCounters(model.Counters{}); err != nil {
		return err
	}
	if err := txn.PutOwner(p.Owner); err != nil {
		return err
	}
	if err := txn.ReplaceTaxRecipients(p.Taxes); err != nil {
		return err
	}
	if err := e.st.Apply(ctx, txn.Mutations()); err != nil {
		return fmt.Errorf("apply init: %w", err)
	}

	e.logger.Info("house initialized",
		zap.String("owner", p.Owner.Hex()),
		zap.String("token", p.Token),
		zap.Uint64("restake_rate", p.Config.RestakeRate),
		zap.Uint64("tax_rate", p.Config.TaxRate),
		zap.Int("tax_recipients", len(p.Taxes)),
	)
	return nil
}

// op is the working set of a single operation. Pool and counters are loaded
// once and written back when the handler succeeds.
type op struct {
	ctx      context.Context
	txn      *state.Txn
	env      Env
	house    model.Address
	pool     model.Pool
	cfg      model.Config
	counters model.Counters
	resp     *Response
	tally    metrics.Tally
	logger   *zap.Logger
}

func (e *Engine) exec(ctx context.Context, name string, env Env, fn func(*op) error) (*Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	resp, err := e.run(ctx, name, env, fn)
	e.metrics.ObserveOp(name, time.Since(start).Seconds(), err)
	if err != nil {
		if IsFatal(err) {
			e.logger.Error("house operation failed", zap.String("op", name), zap.String("sender", env.Sender.Hex()), zap.Error(err))
		} else {
			e.logger.Debug("house operation rejected", zap.String("op", name), zap.String("sender", env.Sender.Hex()), zap.Error(err))
		}
		return nil, err
	}
	return resp, nil
}

func (e *Engine) run(ctx context.Context, name string, env Env, fn func(*op) error) (*Response, error) {
	txn := state.NewTxn(ctx, e.st)
	o := &op{
		ctx:    ctx,
		txn:    txn,
		env:    env,
		house:  e.address,
		resp:   &Response{Action: name},
		logger: e.logger.With(zap.String("op", name), zap.Uint64("height", env.Block.Height)),
	}

	var err error
	if o.pool, err = txn.Pool(); err != nil {
		return nil, err
	}
	if o.cfg, err = txn.Config(); err != nil {
		return nil, err
	}
	if o.counters, err = txn.Counters(); err != nil {
		return nil, err
	}

	if err := fn(o); err != nil {
		return nil, err
	}

	if err := txn.PutPool(o.pool); err != nil {
		return nil, err
	}
	if err := txn.PutCounters(o.counters); err != nil {
		return nil, err
	}

	if e.bank != nil && len(o.resp.Transfers) > 0 {
		if err := e.bank.Execute(ctx, o.resp.Transfers); err != nil {
			return nil, fmt.Errorf("execute transfers: %w", err)
		}
	}
	if err := e.st.Apply(ctx, txn.Mutations()); err != nil {
		if e.bank != nil && len(o.resp.Transfers) > 0 {
			e.logger.Error("state apply failed after transfers executed",
				zap.String("op", name), zap.Int("transfers", len(o.resp.Transfers)), zap.Error(err))
			return nil, fmt.Errorf("apply %s: %w: %w", name, ErrStateNotApplied, err)
		}
		return nil, fmt.Errorf("apply %s: %w", name, err)
	}

	e.metrics.Flush(o.tally, o.counters.NLedgerEntries, o.counters.NStakeAccounts)
	if e.sink != nil && len(o.resp.Events) > 0 {
		if err := e.sink.PutEvents(o.resp.Events); err != nil {
			e.logger.Warn("event sink failed", zap.Int("events", len(o.resp.Events)), zap.Error(err))
		}
	}
	return o.resp, nil
}

// read runs fn against a throwaway transaction.
func (e *Engine) read(ctx context.Context, fn func(*state.Txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(state.NewTxn(ctx, e.st))
}

func (o *op) transfer(from, to model.Address, amt amount.Amount) {
	if amt.IsZero() {
		return
	}
	o.resp.Transfers = append(o.resp.Transfers, model.Transfer{From: from, To: to, Amount: amt})
}

// pay sends amt from the house to addr.
func (o *op) pay(addr model.Address, amt amount.Amount) {
	o.transfer(o.house, addr, amt)
}

// collect pulls amt from addr into the house after checking attached funds.
func (o *op) collect(addr model.Address, amt amount.Amount) error {
	if o.env.Funds.Lt(amt) {
		return fmt.Errorf("%w: attached %s, need %s", ErrInsufficientFunds, o.env.Funds, amt)
	}
	o.transfer(addr, o.house, amt)
	return nil
}

func (o *op) authorize(e *Engine, action string) error {
	allowed, err := e.isAllowed(o.ctx, o.txn, o.env.Sender, action)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s for %s", ErrNotAuthorized, action, o.env.Sender.Hex())
	}
	return nil
}

func (e *Engine) isAllowed(ctx context.Context, txn *state.Txn, principal model.Address, action string) (bool, error) {
	if e.acl != nil {
		allowed, err := e.acl.IsAllowed(ctx, principal, action)
		if err != nil {
			return false, fmt.Errorf("acl: %w", err)
		}
		return allowed, nil
	}
	owner, err := txn.Owner()
	if err != nil {
		return false, err
	}
	return owner == principal, nil
}

func requireAmount(amt amount.Amount) error {
	if amt.IsZero() {
		return ErrInsufficientAmount
	}
	if !amt.InputBounded() {
		return fmt.Errorf("%w: %s", ErrAmountTooLarge, amt)
	}
	return nil
}

// sub subtracts with underflow reported as an invariant violation.
func sub(a, b amount.Amount, what string) (amount.Amount, error) {
	out, err := a.Sub(b)
	if err != nil {
		if errors.Is(err, amount.ErrUnderflow) {
			return amount.Zero, invariant("%s: %v", what, err)
		}
		return amount.Zero, err
	}
	return out, nil
}

func elapsedSeconds(from, to time.Time) uint64 {
	if to.Before(from) {
		return 0
	}
	return uint64(to.Sub(from) / time.Second)
}
