package repository

import (
	"context"

	"github.com/mindbridge-health/MindBridgeBack/internal/models"
)

type AlertRepository struct {
	db DBTX
}

func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

type CreateAlertInput struct {
	PatientID  int64
	Severity   string
	AlertType  string
	Source     string
	Confidence float64
}

func (r *AlertRepository) Create(ctx context.Context, input CreateAlertInput) (*models.CrisisAlert, error) {
	query := `
		INSERT INTO crisis_alerts (patient_id, severity, alert_type, source, confidence)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, patient_id, severity, alert_type, source, confidence,
		          acknowledged, acknowledged_by, acknowledged_at, action_taken,
		          resolved, resolved_at, created_at
	`

	var alert models.CrisisAlert
	err := r.db.QueryRow(
		ctx,
		query,
		input.PatientID,
		input.Severity,
		input.AlertType,
		input.Source,
		input.Confidence,
	).Scan(
		&alert.ID,
		&alert.PatientID,
		&alert.Severity,
		&alert.AlertType,
		&alert.Source,
		&alert.Confidence,
		&alert.Acknowledged,
		&alert.AcknowledgedBy,
		&alert.AcknowledgedAt,
		&alert.ActionTaken,
		&alert.Resolved,
		&alert.ResolvedAt,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &alert, nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*models.CrisisAlert, error) {
	query := `
		SELECT a.id, a.patient_id, u.username, a.severity, a.alert_type, a.source,
		       a.confidence, a.acknowledged, a.acknowledged_by, a.acknowledged_at,
		       a.action_taken, a.resolved, a.resolved_at, a.created_at
		FROM crisis_alerts a
		JOIN users u ON u.id = a.patient_id
		WHERE a.id = $1
	`

	var alert models.CrisisAlert
	err := r.db.QueryRow(ctx, query, id).Scan(
		&alert.ID,
		&alert.PatientID,
		&alert.Patient,
		&alert.Severity,
		&alert.AlertType,
		&alert.Source,
		&alert.Confidence,
		&alert.Acknowledged,
		&alert.AcknowledgedBy,
		&alert.AcknowledgedAt,
		&alert.ActionTaken,
		&alert.Resolved,
		&alert.ResolvedAt,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &alert, nil
}

// ListActive returns non-resolved alerts, most severe first. Severity
// order is fixed by the dashboard contract: critical, high, moderate,
// low, newest first within a tier.
func (r *AlertRepository) ListActive(ctx context.Context) ([]models.CrisisAlert, error) {
	query := `
		SELECT a.id, a.patient_id, u.username, a.severity, a.alert_type, a.source,
		       a.confidence, a.acknowledged, a.acknowledged_by, a.acknowledged_at,
		       a.action_taken, a.resolved, a.resolved_at, a.created_at
		FROM crisis_alerts a
		JOIN users u ON u.id = a.patient_id
		WHERE NOT a.resolved
		ORDER BY array_position(ARRAY['critical','high','moderate','low'], a.severity),
		         a.created_at DESC, a.id DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]models.CrisisAlert, 0)
	for rows.Next() {
		var alert models.CrisisAlert
		if err := rows.Scan(
			&alert.ID,
			&alert.PatientID,
			&alert.Patient,
			&alert.Severity,
			&alert.AlertType,
			&alert.Source,
			&alert.Confidence,
			&alert.Acknowledged,
			&alert.AcknowledgedBy,
			&alert.AcknowledgedAt,
			&alert.ActionTaken,
			&alert.Resolved,
			&alert.ResolvedAt,
			&alert.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}

// AcknowledgeIfOpen is a compare-and-set on the acknowledged flag:
// exactly one of two concurrent acknowledgers gets the row back, the
// other sees pgx.ErrNoRows. action_taken is a clinical record and is
// only ever written by the winner.
func (r *AlertRepository) AcknowledgeIfOpen(
	ctx context.Context,
	id int64,
	clinicianID int64,
	actionTaken string,
) (*models.CrisisAlert, error) {
	query := `
		UPDATE crisis_alerts
		SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = NOW(), action_taken = $3
		WHERE id = $1 AND NOT acknowledged
		RETURNING id, patient_id, severity, alert_type, source, confidence,
		          acknowledged, acknowledged_by, acknowledged_at, action_taken,
		          resolved, resolved_at, created_at
	`

	var alert models.CrisisAlert
	err := r.db.QueryRow(ctx, query, id, clinicianID, actionTaken).Scan(
		&alert.ID,
		&alert.PatientID,
		&alert.Severity,
		&alert.AlertType,
		&alert.Source,
		&alert.Confidence,
		&alert.Acknowledged,
		&alert.AcknowledgedBy,
		&alert.AcknowledgedAt,
		&alert.ActionTaken,
		&alert.Resolved,
		&alert.ResolvedAt,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &alert, nil
}

// ResolveIfAcknowledged only moves acknowledged, unresolved alerts.
func (r *AlertRepository) ResolveIfAcknowledged(ctx context.Context, id int64) (*models.CrisisAlert, error) {
	query := `
		UPDATE crisis_alerts
		SET resolved = TRUE, resolved_at = NOW()
		WHERE id = $1 AND acknowledged AND NOT resolved
		RETURNING id, patient_id, severity, alert_type, source, confidence,
		          acknowledged, acknowledged_by, acknowledged_at, action_taken,
		          resolved, resolved_at, created_at
	`

	var alert models.CrisisAlert
	err := r.db.QueryRow(ctx, query, id).Scan(
		&alert.ID,
		&alert.PatientID,
		&alert.Severity,
		&alert.AlertType,
		&alert.Source,
		&alert.Confidence,
		&alert.Acknowledged,
		&alert.AcknowledgedBy,
		&alert.AcknowledgedAt,
		&alert.ActionTaken,
		&alert.Resolved,
		&alert.ResolvedAt,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &alert, nil
}
