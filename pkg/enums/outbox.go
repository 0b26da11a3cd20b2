package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateSwapRequest   OutboxAggregateType = "swap_request"
	AggregateDisputeReport OutboxAggregateType = "dispute_report"
	AggregateValorTx       OutboxAggregateType = "valor_transaction"
	AggregateNotification  OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSwapRequest,
	AggregateDisputeReport,
	AggregateValorTx,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventSwapOffered          OutboxEventType = "swap_offered"
	EventSwapAccepted         OutboxEventType = "swap_accepted"
	EventSwapDeliverySetup    OutboxEventType = "swap_delivery_setup"
	EventSwapDelivered        OutboxEventType = "swap_delivered"
	EventSwapPartialDelivery  OutboxEventType = "swap_partial_delivery"
	EventSwapCompleted        OutboxEventType = "swap_completed"
	EventSwapCancelled        OutboxEventType = "swap_cancelled"
	EventSwapAutoCancelled    OutboxEventType = "swap_auto_cancelled"
	EventSwapExpiryReminder   OutboxEventType = "swap_expiry_reminder"
	EventMutualCancelRequest  OutboxEventType = "swap_mutual_cancel_requested"
	EventMutualCancelResolved OutboxEventType = "swap_mutual_cancel_resolved"
	EventDisputeOpened        OutboxEventType = "dispute_opened"
	EventDisputeEvidence      OutboxEventType = "dispute_evidence_submitted"
	EventDisputeResolved      OutboxEventType = "dispute_resolved"
	EventActivityRecorded     OutboxEventType = "activity_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSwapOffered,
	EventSwapAccepted,
	EventSwapDeliverySetup,
	EventSwapDelivered,
	EventSwapPartialDelivery,
	EventSwapCompleted,
	EventSwapCancelled,
	EventSwapAutoCancelled,
	EventSwapExpiryReminder,
	EventMutualCancelRequest,
	EventMutualCancelResolved,
	EventDisputeOpened,
	EventDisputeEvidence,
	EventDisputeResolved,
	EventActivityRecorded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
