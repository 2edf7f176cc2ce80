package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// MotorConfigStore loads the operator-configured motor instances, their
// operation modes, and the tag-to-parameter mappings the baseline
// learner needs to know what to learn and when. This is configuration
// data (same category as collection_rule/alarm_rule), not a derived
// result, so it lives alongside those rather than in results.go.
type MotorConfigStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
}

func NewMotorConfigStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration) *MotorConfigStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &MotorConfigStore{pool: pool, log: log, queryTimeout: queryTimeout}
}

// Instances lists the distinct motor instance ids with at least one
// parameter mapping configured.
func (s *MotorConfigStore) Instances(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT instance_id FROM motor_parameter_mapping ORDER BY instance_id`)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, id)
	}
	return out, classifyErr(rows.Err(), 0)
}

// Modes lists the operation modes configured for one instance, used to
// drive motor.DetectMode.
func (s *MotorConfigStore) Modes(ctx context.Context, instanceID string) ([]model.OperationMode, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT mode_id, instance_id, name, trigger_tag_id, trigger_min, trigger_max, min_duration_ms, max_duration_ms, priority
		FROM operation_mode WHERE instance_id = $1`, instanceID)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []model.OperationMode
	for rows.Next() {
		var m model.OperationMode
		if err := rows.Scan(&m.ModeID, &m.InstanceID, &m.Name, &m.TriggerTagID, &m.TriggerMin, &m.TriggerMax, &m.MinDurationMs, &m.MaxDurationMs, &m.Priority); err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, m)
	}
	return out, classifyErr(rows.Err(), 0)
}

// ParameterMappings lists the tag-to-parameter mappings for one
// instance, used both to resolve which tag backs each MotorParameter
// and to know which tags to pull history for.
func (s *MotorConfigStore) ParameterMappings(ctx context.Context, instanceID string) ([]model.MotorParameterMapping, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT instance_id, parameter, tag_id, scale, offset FROM motor_parameter_mapping WHERE instance_id = $1`, instanceID)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []model.MotorParameterMapping
	for rows.Next() {
		var m model.MotorParameterMapping
		var param int
		if err := rows.Scan(&m.InstanceID, &param, &m.TagID, &m.Scale, &m.Offset); err != nil {
			return nil, classifyErr(err, 0)
		}
		m.Parameter = model.MotorParameter(param)
		out = append(out, m)
	}
	return out, classifyErr(rows.Err(), 0)
}
