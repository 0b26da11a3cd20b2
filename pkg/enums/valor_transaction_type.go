package enums

import "fmt"

// ValorTransactionType maps to the valor_transaction_type enum in Postgres.
type ValorTransactionType string

const (
	ValorTransactionTypeEscrowHold          ValorTransactionType = "escrow_hold"
	ValorTransactionTypeEscrowRefund        ValorTransactionType = "escrow_refund"
	ValorTransactionTypeSwapCompleted       ValorTransactionType = "swap_completed"
	ValorTransactionTypeDepositLock         ValorTransactionType = "deposit_lock"
	ValorTransactionTypeDepositRelease      ValorTransactionType = "deposit_release"
	ValorTransactionTypeCompensation        ValorTransactionType = "compensation"
	ValorTransactionTypeAutoCompleteRelease ValorTransactionType = "auto_complete_release"
	ValorTransactionTypeSuspensionReturn    ValorTransactionType = "suspension_return"
)

var validValorTransactionTypes = []ValorTransactionType{
	ValorTransactionTypeEscrowHold,
	ValorTransactionTypeEscrowRefund,
	ValorTransactionTypeSwapCompleted,
	ValorTransactionTypeDepositLock,
	ValorTransactionTypeDepositRelease,
	ValorTransactionTypeCompensation,
	ValorTransactionTypeAutoCompleteRelease,
	ValorTransactionTypeSuspensionReturn,
}

// IsValid reports whether the value matches the canonical valor_transaction_type enum.
func (v ValorTransactionType) IsValid() bool {
	for _, candidate := range validValorTransactionTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseValorTransactionType converts the raw string to ValorTransactionType.
func ParseValorTransactionType(value string) (ValorTransactionType, error) {
	for _, candidate := range validValorTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid valor transaction type %q", value)
}
