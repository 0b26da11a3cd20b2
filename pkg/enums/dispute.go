package enums

import "fmt"

// DisputeStatus maps to the dispute_status enum in Postgres.
type DisputeStatus string

const (
	DisputeStatusOpen              DisputeStatus = "open"
	DisputeStatusEvidenceSubmitted DisputeStatus = "evidence_submitted"
	DisputeStatusResolved          DisputeStatus = "resolved"
	DisputeStatusRejected          DisputeStatus = "rejected"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusEvidenceSubmitted,
	DisputeStatusResolved,
	DisputeStatusRejected,
}

// IsValid reports whether the value matches the canonical dispute_status enum.
func (d DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsClosed reports whether the dispute has been decided.
func (d DisputeStatus) IsClosed() bool {
	return d == DisputeStatusResolved || d == DisputeStatusRejected
}

// ParseDisputeStatus converts the raw string to DisputeStatus.
func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}

// DisputeType classifies what the reporter claims went wrong.
type DisputeType string

const (
	DisputeTypeItemNotAsDescribed DisputeType = "item_not_as_described"
	DisputeTypeItemDamaged        DisputeType = "item_damaged"
	DisputeTypeItemMissing        DisputeType = "item_missing"
	DisputeTypeCounterfeit        DisputeType = "counterfeit"
	DisputeTypeOther              DisputeType = "other"
)

var validDisputeTypes = []DisputeType{
	DisputeTypeItemNotAsDescribed,
	DisputeTypeItemDamaged,
	DisputeTypeItemMissing,
	DisputeTypeCounterfeit,
	DisputeTypeOther,
}

// IsValid reports whether the value matches the canonical dispute_type enum.
func (d DisputeType) IsValid() bool {
	for _, candidate := range validDisputeTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeType converts the raw string to DisputeType.
func ParseDisputeType(value string) (DisputeType, error) {
	for _, candidate := range validDisputeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute type %q", value)
}
