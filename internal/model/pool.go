package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"liquidityHouse/internal/amount"
)

// Address identifies a participant, client or tax recipient.
type Address = common.Address

// Block is the execution context supplied with every operation.
type Block struct {
	Height uint64    `json:"height" yaml:"height"`
	Time   time.Time `json:"time" yaml:"time"`
}

// Pool is the house-wide aggregate.
type Pool struct {
	Token      string        `json:"token"`
	TotalStake amount.Amount `json:"total_stake"`
	Liquidity  amount.Amount `json:"liquidity"`
	Dividends  amount.Amount `json:"dividends"`
	Taxes      amount.Amount `json:"taxes"`
}

// Counters holds the scalar bookkeeping values of the house.
type Counters struct {
	NStakeAccounts     uint32        `json:"n_stake_accounts"`
	NUnbonding         uint32        `json:"n_unbonding"`
	NClients           uint32        `json:"n_clients"`
	NLedgerEntries     uint32        `json:"n_ledger_entries"`
	NextSeq            uint64        `json:"next_seq"`
	Tag                uint64        `json:"tag"`
	QueueHead          uint64        `json:"queue_head"`
	QueueTail          uint64        `json:"queue_tail"`
	EventHead          uint64        `json:"event_head"`
	EventTail          uint64        `json:"event_tail"`
	TotalStreamRevenue amount.Amount `json:"total_stream_revenue"`
}

// Active is the number of staked accounts that are not unbonding.
func (c Counters) Active() uint32 {
	return c.NStakeAccounts - c.NUnbonding
}

// LedgerEntry is a delta applied uniformly to every account active when it
// was created.
type LedgerEntry struct {
	Seq            uint64        `json:"seq"`
	Liquidity      amount.Amount `json:"liquidity"`
	Delegation     amount.Amount `json:"delegation"`
	DeltaRevenue   amount.Amount `json:"delta_revenue"`
	DeltaDividends amount.Amount `json:"delta_dividends"`
	DeltaLoss      amount.Amount `json:"delta_loss"`
	RefCount       uint32        `json:"ref_count"`
	Tag            uint64        `json:"tag"`
}

// StakeAccount is a participant record. Seq is the exclusive cursor into the
// ledger.
type StakeAccount struct {
	Address    Address        `json:"address"`
	Delegation amount.Amount  `json:"delegation"`
	Liquidity  amount.Amount  `json:"liquidity"`
	Dividends  amount.Amount  `json:"dividends"`
	Seq        uint64         `json:"seq"`
	Unbonding  *UnbondingInfo `json:"unbonding,omitempty"`
}

func (a StakeAccount) IsUnbonding() bool {
	return a.Unbonding != nil
}

type UnbondingInfo struct {
	Amount amount.Amount `json:"amount"`
	Time   time.Time     `json:"time"`
}

// Usage is a sliding-window spend record for one address.
type Usage struct {
	StartLiquidity amount.Amount `json:"start_liquidity"`
	StartTime      time.Time     `json:"start_time"`
	PrevHeight     uint64        `json:"prev_height"`
	Spent          amount.Amount `json:"spent"`
	Added          amount.Amount `json:"added"`
}

// Net is spent minus added, floored at zero.
func (u Usage) Net() amount.Amount {
	return u.Spent.SaturatingSub(u.Added)
}

// RevenueStream tallies revenue received from one sender.
type RevenueStream struct {
	Address    Address       `json:"address"`
	Revenue    amount.Amount `json:"revenue"`
	Executions uint64        `json:"executions"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Client is a counterparty that drives revenue and payments through Process.
type Client struct {
	Address     Address         `json:"address"`
	ConnectedAt time.Time       `json:"connected_at"`
	Suspended   bool            `json:"suspended"`
	Revenue     amount.Amount   `json:"revenue"`
	Expense     amount.Amount   `json:"expense"`
	Executions  uint64          `json:"executions"`
	RateLimit   RateLimitConfig `json:"rate_limit"`
}

type TaxRecipient struct {
	Address Address `json:"address" yaml:"address"`
	Pct     uint64  `json:"pct" yaml:"pct"`
	Name    string  `json:"name,omitempty" yaml:"name,omitempty"`
}

// Metadata summarizes counters for queries.
type Metadata struct {
	NStakeAccounts uint32 `json:"n_stake_accounts"`
	NUnbonding     uint32 `json:"n_unbonding"`
	NClients       uint32 `json:"n_clients"`
	NLedgerEntries uint32 `json:"n_ledger_entries"`
	NextSeq        uint64 `json:"next_seq"`
	Tag            uint64 `json:"tag"`
}

// Totals aggregates revenue and expense across streams and clients.
type Totals struct {
	Revenue amount.Amount `json:"revenue"`
	Expense amount.Amount `json:"expense"`
}
