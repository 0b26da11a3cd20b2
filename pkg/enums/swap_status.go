package enums

import "fmt"

// SwapStatus maps to the swap_status enum in Postgres.
type SwapStatus string

const (
	SwapStatusPending            SwapStatus = "pending"
	SwapStatusAccepted           SwapStatus = "accepted"
	SwapStatusAwaitingDelivery   SwapStatus = "awaiting_delivery"
	SwapStatusPartiallyDelivered SwapStatus = "partially_delivered"
	SwapStatusDelivered          SwapStatus = "delivered"
	SwapStatusCancelRequested    SwapStatus = "cancel_requested"
	SwapStatusDisputed           SwapStatus = "disputed"
	SwapStatusCompleted          SwapStatus = "completed"
	SwapStatusCancelled          SwapStatus = "cancelled"
	SwapStatusCancelledMutual    SwapStatus = "cancelled_mutual"
	SwapStatusResolved           SwapStatus = "resolved"
)

var validSwapStatuses = []SwapStatus{
	SwapStatusPending,
	SwapStatusAccepted,
	SwapStatusAwaitingDelivery,
	SwapStatusPartiallyDelivered,
	SwapStatusDelivered,
	SwapStatusCancelRequested,
	SwapStatusDisputed,
	SwapStatusCompleted,
	SwapStatusCancelled,
	SwapStatusCancelledMutual,
	SwapStatusResolved,
}

// String implements fmt.Stringer.
func (s SwapStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical swap_status enum.
func (s SwapStatus) IsValid() bool {
	for _, candidate := range validSwapStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is a permanent record with no outgoing edges.
func (s SwapStatus) IsTerminal() bool {
	switch s {
	case SwapStatusCompleted, SwapStatusCancelled, SwapStatusCancelledMutual, SwapStatusResolved:
		return true
	}
	return false
}

// ParseSwapStatus converts the raw string to SwapStatus.
func ParseSwapStatus(value string) (SwapStatus, error) {
	for _, candidate := range validSwapStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid swap status %q", value)
}
