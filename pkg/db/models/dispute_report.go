package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
)

// DisputeReport is one opened dispute against a delivered swap.
type DisputeReport struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SwapRequestID  uuid.UUID           `gorm:"column:swap_request_id;type:uuid;not null"`
	ReporterID     uuid.UUID           `gorm:"column:reporter_id;type:uuid;not null"`
	ReportedUserID uuid.UUID           `gorm:"column:reported_user_id;type:uuid;not null"`
	Type           enums.DisputeType   `gorm:"column:type;type:dispute_type;not null"`
	Description    string              `gorm:"column:description;type:text;not null"`
	Status         enums.DisputeStatus `gorm:"column:status;type:dispute_status;not null;default:'open'"`

	ReporterEvidence []string `gorm:"column:reporter_evidence;type:jsonb;serializer:json"`
	ReportedEvidence []string `gorm:"column:reported_evidence;type:jsonb;serializer:json"`

	EvidenceDeadline time.Time  `gorm:"column:evidence_deadline;not null"`
	ResolutionNote   *string    `gorm:"column:resolution_note;type:text"`
	ResolvedBy       *uuid.UUID `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt       *time.Time `gorm:"column:resolved_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
