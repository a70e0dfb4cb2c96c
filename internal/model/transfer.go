package model

import "liquidityHouse/internal/amount"

// Transfer is a token movement the house asks its bank to perform.
type Transfer struct {
	From   Address       `json:"from"`
	To     Address       `json:"to"`
	Amount amount.Amount `json:"amount"`
}
