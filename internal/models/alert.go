package models

import "time"

const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// CrisisAlert is a clinician-facing record of a detected patient risk
// signal. Severity comes from the external risk-detection pipeline and
// is never re-derived here.
type CrisisAlert struct {
	ID             int64      `json:"id"`
	PatientID      int64      `json:"patient_id"`
	Patient        string     `json:"patient,omitempty"`
	Severity       string     `json:"severity"`
	AlertType      string     `json:"alert_type"`
	Source         string     `json:"source"`
	Confidence     float64    `json:"confidence"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy *int64     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ActionTaken    *string    `json:"action_taken,omitempty"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
