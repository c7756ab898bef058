package enums

import "fmt"

// TransactionType maps to credit_transactions.type.
type TransactionType string

const (
	TransactionTypePurchase     TransactionType = "purchase"
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypeDeduction    TransactionType = "deduction"
	TransactionTypeRefund       TransactionType = "refund"
	TransactionTypeOverage      TransactionType = "overage"
)

var validTransactionTypes = []TransactionType{
	TransactionTypePurchase,
	TransactionTypeSubscription,
	TransactionTypeDeduction,
	TransactionTypeRefund,
	TransactionTypeOverage,
}

func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value matches a known transaction type.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsCredit reports whether the type may be used with Ledger.Add.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypePurchase || t == TransactionTypeSubscription
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
