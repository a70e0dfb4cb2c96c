// Package scenario replays scripted house operations from YAML and checks the
// resulting state.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/house"
	"liquidityHouse/internal/model"
)

// Operation names accepted in Step.Op.
const (
	OpStake        = "stake"
	OpUnstake      = "unstake"
	OpClaim        = "claim"
	OpWithdraw     = "withdraw"
	OpRevenue      = "revenue"
	OpPayment      = "payment"
	OpProcess      = "process"
	OpPayTaxes     = "pay_taxes"
	OpResumeClient = "resume_client"
)

type Scenario struct {
	Name   string               `yaml:"name"`
	Owner  model.Address        `yaml:"owner"`
	Token  string               `yaml:"token"`
	Start  time.Time            `yaml:"start"`
	Config *model.Config        `yaml:"config"`
	Taxes  []model.TaxRecipient `yaml:"taxes"`
	Steps  []Step               `yaml:"steps"`
	Expect Expect               `yaml:"expect"`
}

// Step is one operation. Amount doubles as the attached funds unless Funds is
// set; attached funds are minted to the sender before the call. A process
// step whose incoming address is not the sender mints to that address
// instead.
type Step struct {
	Op        string          `yaml:"op"`
	Sender    model.Address   `yaml:"sender"`
	Amount    amount.Amount   `yaml:"amount"`
	Funds     *amount.Amount  `yaml:"funds"`
	Recipient model.Address   `yaml:"recipient"`
	Initiator model.Address   `yaml:"initiator"`
	Client    model.Address   `yaml:"client"`
	Incoming  *house.Movement `yaml:"incoming"`
	Outgoing  *house.Movement `yaml:"outgoing"`

	// Advance moves the clock forward before the step runs.
	Advance time.Duration `yaml:"advance"`
	// SameBlock reuses the previous step's block.
	SameBlock bool `yaml:"same_block"`

	Error     string         `yaml:"error"`
	Returns   *amount.Amount `yaml:"returns"`
	Triggered *bool          `yaml:"triggered"`
}

type Expect struct {
	Pool     *PoolExpect     `yaml:"pool"`
	Accounts []AccountExpect `yaml:"accounts"`
	// Missing lists addresses that must have no stake account.
	Missing  []model.Address `yaml:"missing"`
	Balances []BalanceExpect `yaml:"balances"`
	Entries  *uint32         `yaml:"ledger_entries"`
}

type PoolExpect struct {
	TotalStake *amount.Amount `yaml:"total_stake"`
	Liquidity  *amount.Amount `yaml:"liquidity"`
	Dividends  *amount.Amount `yaml:"dividends"`
	Taxes      *amount.Amount `yaml:"taxes"`
}

type AccountExpect struct {
	Address   model.Address  `yaml:"address"`
	Liquidity *amount.Amount `yaml:"liquidity"`
	Dividends *amount.Amount `yaml:"dividends"`
	Unbonding *amount.Amount `yaml:"unbonding"`
}

type BalanceExpect struct {
	Address model.Address `yaml:"address"`
	Amount  amount.Amount `yaml:"amount"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, step := range sc.Steps {
		switch step.Op {
		case OpStake, OpUnstake, OpClaim, OpWithdraw, OpRevenue, OpPayment, OpProcess, OpPayTaxes, OpResumeClient:
		default:
			return fmt.Errorf("step %d: unknown op %q", i+1, step.Op)
		}
		if step.Error != "" {
			if _, ok := errorKinds[step.Error]; !ok {
				return fmt.Errorf("step %d: unknown error kind %q", i+1, step.Error)
			}
		}
	}
	return nil
}

var errorKinds = map[string]error{
	"stake_account_not_found": house.ErrStakeAccountNotFound,
	"already_unbonding":       house.ErrAlreadyUnbonding,
	"not_yet_unbonding":       house.ErrNotYetUnbonding,
	"still_unbonding":         house.ErrStillUnbonding,
	"not_unstaked":            house.ErrNotUnstaked,
	"insufficient_amount":     house.ErrInsufficientAmount,
	"amount_too_large":        house.ErrAmountTooLarge,
	"insufficient_funds":      house.ErrInsufficientFunds,
	"rate_limited":            house.ErrRateLimited,
	"account_suspended":       house.ErrAccountSuspended,
	"client_suspended":        house.ErrClientSuspended,
	"client_not_found":        house.ErrClientNotFound,
	"not_authorized":          house.ErrNotAuthorized,
	"invalid_address":         house.ErrInvalidAddress,
	"invalid_config":          house.ErrInvalidConfig,
}

// ErrorKind returns the scenario name of a house error, or "" if err is not
// one of them.
func ErrorKind(err error) string {
	for name, kind := range errorKinds {
		if errors.Is(err, kind) {
			return name
		}
	}
	return ""
}

func describe(step Step) string {
	var b strings.Builder
	b.WriteString(step.Op)
	if step.Sender != (model.Address{}) {
		b.WriteString(" by ")
		b.WriteString(step.Sender.Hex())
	}
	if !step.Amount.IsZero() {
		b.WriteString(" amount ")
		b.WriteString(step.Amount.String())
	}
	return b.String()
}
