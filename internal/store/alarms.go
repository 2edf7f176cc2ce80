package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// AlarmStore is a Postgres-backed implementation of alarm.Store,
// persisting to the alarm_record / alarm_group tables spec.md §3
// describes. Same pool/timeout/classifyErr shape as PostgresStore.
type AlarmStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
}

func NewAlarmStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration) *AlarmStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &AlarmStore{pool: pool, log: log, queryTimeout: queryTimeout}
}

// DeleteClosedBefore is the alarm_record retention sweep (the agent's
// alarmDeleter adapts it to retention.Deleter): only records already
// Closed (status 3) before cutoffTs are removed, so an open or
// acknowledged alarm is never swept regardless of age.
func (s *AlarmStore) DeleteClosedBefore(ctx context.Context, cutoffTs int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM alarm_record WHERE status = 3 AND updated_at < $1`, cutoffTs)
	if err != nil {
		return 0, classifyErr(err, time.Since(start))
	}
	return tag.RowsAffected(), nil
}

func (s *AlarmStore) InsertRecord(ctx context.Context, rec model.AlarmRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alarm_record (alarm_id, device_id, tag_id, ts, severity, rule_id, message, status, created_at, updated_at, acked_by, acked_ts, ack_note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (alarm_id) DO NOTHING`,
		rec.AlarmID, rec.DeviceID, rec.TagID, rec.Ts, rec.Severity, rec.Code, rec.Message, int(rec.Status), rec.Created, rec.Updated, rec.AckedBy, rec.AckedTs, rec.AckNote,
	)
	return classifyErr(err, time.Since(start))
}

func (s *AlarmStore) GetRecord(ctx context.Context, alarmID string) (model.AlarmRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx, `
		SELECT alarm_id, device_id, tag_id, ts, severity, rule_id, message, status, created_at, updated_at, acked_by, acked_ts, ack_note
		FROM alarm_record WHERE alarm_id = $1`, alarmID)
	rec, err := scanAlarmRecord(row)
	if err == pgx.ErrNoRows {
		return model.AlarmRecord{}, false, nil
	}
	if err != nil {
		return model.AlarmRecord{}, false, classifyErr(err, 0)
	}
	return rec, true, nil
}

func (s *AlarmStore) UpdateRecord(ctx context.Context, rec model.AlarmRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		UPDATE alarm_record SET status=$2, updated_at=$3, acked_by=$4, acked_ts=$5, ack_note=$6
		WHERE alarm_id=$1`,
		rec.AlarmID, int(rec.Status), rec.Updated, rec.AckedBy, rec.AckedTs, rec.AckNote,
	)
	return classifyErr(err, time.Since(start))
}

func (s *AlarmStore) GetOpenGroup(ctx context.Context, deviceID, ruleID string) (model.AlarmGroup, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx, `
		SELECT group_id, device_id, rule_id, alarm_count, first_occurred, last_occurred, severity, status
		FROM alarm_group WHERE device_id=$1 AND rule_id=$2 AND status <> $3`,
		deviceID, ruleID, int(model.AlarmStatusClosed))
	g, err := scanAlarmGroup(row)
	if err == pgx.ErrNoRows {
		return model.AlarmGroup{}, false, nil
	}
	if err != nil {
		return model.AlarmGroup{}, false, classifyErr(err, 0)
	}
	return g, true, nil
}

func (s *AlarmStore) GetGroup(ctx context.Context, groupID string) (model.AlarmGroup, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx, `
		SELECT group_id, device_id, rule_id, alarm_count, first_occurred, last_occurred, severity, status
		FROM alarm_group WHERE group_id=$1`, groupID)
	g, err := scanAlarmGroup(row)
	if err == pgx.ErrNoRows {
		return model.AlarmGroup{}, false, nil
	}
	if err != nil {
		return model.AlarmGroup{}, false, classifyErr(err, 0)
	}
	return g, true, nil
}

func (s *AlarmStore) UpsertGroup(ctx context.Context, group model.AlarmGroup) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alarm_group (group_id, device_id, rule_id, alarm_count, first_occurred, last_occurred, severity, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (group_id) DO UPDATE SET
			alarm_count=EXCLUDED.alarm_count, last_occurred=EXCLUDED.last_occurred,
			severity=EXCLUDED.severity, status=EXCLUDED.status`,
		group.GroupID, group.DeviceID, group.RuleID, group.AlarmCount, group.FirstOccurred, group.LastOccurred, group.Severity, int(group.Status),
	)
	return classifyErr(err, time.Since(start))
}

func (s *AlarmStore) UpdateGroup(ctx context.Context, group model.AlarmGroup) error {
	return s.UpsertGroup(ctx, group)
}

func (s *AlarmStore) LinkRecordToGroup(ctx context.Context, alarmID, groupID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alarm_to_group (alarm_id, group_id) VALUES ($1,$2)
		ON CONFLICT (alarm_id, group_id) DO NOTHING`, alarmID, groupID)
	return classifyErr(err, time.Since(start))
}

func (s *AlarmStore) RecordsInGroup(ctx context.Context, groupID string) ([]model.AlarmRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT r.alarm_id, r.device_id, r.tag_id, r.ts, r.severity, r.rule_id, r.message, r.status, r.created_at, r.updated_at, r.acked_by, r.acked_ts, r.ack_note
		FROM alarm_record r JOIN alarm_to_group atg ON atg.alarm_id = r.alarm_id
		WHERE atg.group_id = $1 ORDER BY r.ts ASC`, groupID)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []model.AlarmRecord
	for rows.Next() {
		rec, err := scanAlarmRecord(rows)
		if err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, rec)
	}
	return out, classifyErr(rows.Err(), 0)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarmRecord(row rowScanner) (model.AlarmRecord, error) {
	var rec model.AlarmRecord
	var status int
	err := row.Scan(&rec.AlarmID, &rec.DeviceID, &rec.TagID, &rec.Ts, &rec.Severity, &rec.Code, &rec.Message, &status, &rec.Created, &rec.Updated, &rec.AckedBy, &rec.AckedTs, &rec.AckNote)
	rec.Status = model.AlarmStatus(status)
	return rec, err
}

func scanAlarmGroup(row rowScanner) (model.AlarmGroup, error) {
	var g model.AlarmGroup
	var status int
	err := row.Scan(&g.GroupID, &g.DeviceID, &g.RuleID, &g.AlarmCount, &g.FirstOccurred, &g.LastOccurred, &g.Severity, &status)
	g.Status = model.AlarmStatus(status)
	return g, err
}

// AlarmRuleStore loads the configured threshold/offline/ROC predicates
// the alarm evaluator runs against each incoming point. Unlike
// CollectionRule, AlarmRule has no dedicated interface to satisfy —
// the evaluator takes rules as plain call arguments — so the agent
// polls this directly on a timer into an in-memory slice.
type AlarmRuleStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
}

func NewAlarmRuleStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration) *AlarmRuleStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &AlarmRuleStore{pool: pool, log: log, queryTimeout: queryTimeout}
}

func (s *AlarmRuleStore) Rules(ctx context.Context) ([]model.AlarmRule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT rule_id, tag_id, device_id, condition_type, threshold, duration_ms, severity, roc_window_ms, rule_type, message_template, enabled, updated_at
		FROM alarm_rule WHERE enabled`)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []model.AlarmRule
	for rows.Next() {
		var r model.AlarmRule
		if err := rows.Scan(&r.RuleID, &r.TagID, &r.DeviceID, &r.ConditionType, &r.Threshold, &r.DurationMs, &r.Severity, &r.ROCWindowMs, &r.RuleType, &r.MessageTemplate, &r.Enabled, &r.UpdatedAt); err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, r)
	}
	return out, classifyErr(rows.Err(), 0)
}
