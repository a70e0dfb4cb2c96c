package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
)

var ErrInsufficientBalance = errors.New("bank: insufficient balance")

// Memory is an in-process token ledger. Execute applies a batch of transfers
// atomically.
type Memory struct {
	mu       sync.Mutex
	balances map[model.Address]amount.Amount
	executed int
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[model.Address]amount.Amount)}
}

// Mint credits amt to addr out of thin air.
func (m *Memory) Mint(addr model.Address, amt amount.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addr] = m.balances[addr].Add(amt)
}

func (m *Memory) Balance(addr model.Address) amount.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[addr]
}

// Executed returns the number of transfers applied so far.
func (m *Memory) Executed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executed
}

func (m *Memory) Execute(ctx context.Context, transfers []model.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[model.Address]amount.Amount, len(transfers)*2)
	balance := func(addr model.Address) amount.Amount {
		if b, ok := next[addr]; ok {
			return b
		}
		return m.balances[addr]
	}
	for i, t := range transfers {
		from, err := balance(t.From).Sub(t.Amount)
		if err != nil {
			return fmt.Errorf("%w: transfer %d of %s from %s", ErrInsufficientBalance, i, t.Amount, t.From.Hex())
		}
		next[t.From] = from
		next[t.To] = balance(t.To).Add(t.Amount)
	}

	for addr, b := range next {
		m.balances[addr] = b
	}
	m.executed += len(transfers)
	return nil
}
