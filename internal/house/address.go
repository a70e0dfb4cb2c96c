package house

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"liquidityHouse/internal/model"
)

// ParseAddress validates a hex address string.
func ParseAddress(s string) (model.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return model.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	if err := validateAddress(addr); err != nil {
		return model.Address{}, err
	}
	return addr, nil
}

func validateAddress(addr model.Address) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return nil
}

func validateTaxes(recipients []model.TaxRecipient) error {
	for _, r := range recipients {
		if err := validateAddress(r.Address); err != nil {
			return fmt.Errorf("tax recipient %q: %w", r.Name, err)
		}
	}
	return model.ValidateTaxes(recipients)
}
