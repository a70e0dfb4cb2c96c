package bank

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestExecuteMovesBalances(t *testing.T) {
	m := NewMemory()
	m.Mint(alice, amount.New(100))

	err := m.Execute(context.Background(), []model.Transfer{
		{From: alice, To: bob, Amount: amount.New(60)},
		{From: bob, To: alice, Amount: amount.New(10)},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := m.Balance(alice); !got.Eq(amount.New(50)) {
		t.Fatalf("alice balance = %s, want 50", got)
	}
	if got := m.Balance(bob); !got.Eq(amount.New(50)) {
		t.Fatalf("bob balance = %s, want 50", got)
	}
	if m.Executed() != 2 {
		t.Fatalf("executed = %d, want 2", m.Executed())
	}
}

func TestExecuteIsAllOrNothing(t *testing.T) {
	m := NewMemory()
	m.Mint(alice, amount.New(100))

	err := m.Execute(context.Background(), []model.Transfer{
		{From: alice, To: bob, Amount: amount.New(60)},
		{From: alice, To: bob, Amount: amount.New(60)},
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := m.Balance(alice); !got.Eq(amount.New(100)) {
		t.Fatalf("alice balance = %s, want 100", got)
	}
	if got := m.Balance(bob); !got.IsZero() {
		t.Fatalf("bob balance = %s, want 0", got)
	}
}

func TestExecuteHonorsCanceledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Execute(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
