package enums

import "fmt"

// CancelReason encodes why a swap was cancelled.
type CancelReason string

const (
	CancelReasonChangedMind      CancelReason = "changed_mind"
	CancelReasonItemUnavailable  CancelReason = "item_unavailable"
	CancelReasonDeliveryProblem  CancelReason = "delivery_problem"
	CancelReasonCounterpartyIdle CancelReason = "counterparty_idle"
	CancelReasonTimeout          CancelReason = "timeout"
	CancelReasonMutualAgreement  CancelReason = "mutual_agreement"
	CancelReasonAccountSuspended CancelReason = "account_suspended"
	CancelReasonOther            CancelReason = "other"
)

var validCancelReasons = []CancelReason{
	CancelReasonChangedMind,
	CancelReasonItemUnavailable,
	CancelReasonDeliveryProblem,
	CancelReasonCounterpartyIdle,
	CancelReasonTimeout,
	CancelReasonMutualAgreement,
	CancelReasonAccountSuspended,
	CancelReasonOther,
}

// IsValid reports whether the value matches the canonical cancel_reason enum.
func (c CancelReason) IsValid() bool {
	for _, candidate := range validCancelReasons {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancelReason converts the raw string to CancelReason.
func ParseCancelReason(value string) (CancelReason, error) {
	for _, candidate := range validCancelReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancel reason %q", value)
}
