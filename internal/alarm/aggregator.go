package alarm

import (
	"context"
	"fmt"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// Store persists AlarmRecords and AlarmGroups. Production wiring backs
// this with Postgres tables alarm_record / alarm_group / alarm_to_group.
type Store interface {
	InsertRecord(ctx context.Context, rec model.AlarmRecord) error
	GetOpenGroup(ctx context.Context, deviceID, ruleID string) (model.AlarmGroup, bool, error)
	UpsertGroup(ctx context.Context, group model.AlarmGroup) error
	LinkRecordToGroup(ctx context.Context, alarmID, groupID string) error
	GetRecord(ctx context.Context, alarmID string) (model.AlarmRecord, bool, error)
	UpdateRecord(ctx context.Context, rec model.AlarmRecord) error
	GetGroup(ctx context.Context, groupID string) (model.AlarmGroup, bool, error)
	UpdateGroup(ctx context.Context, group model.AlarmGroup) error
	RecordsInGroup(ctx context.Context, groupID string) ([]model.AlarmRecord, error)
}

// Aggregator groups fired AlarmRecords into AlarmGroups per
// (device_id, rule_id), raising severity to the max seen and never
// letting it downgrade (spec.md §D open-question decision).
type Aggregator struct {
	store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Aggregate inserts rec, then appends it to the open group for
// (device_id, rule_id) or creates a new one.
func (a *Aggregator) Aggregate(ctx context.Context, rec model.AlarmRecord) error {
	if err := a.store.InsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("alarm: insert record: %w", err)
	}

	group, ok, err := a.store.GetOpenGroup(ctx, rec.DeviceID, rec.Code)
	if err != nil {
		return fmt.Errorf("alarm: lookup open group: %w", err)
	}
	if !ok {
		group = model.AlarmGroup{
			GroupID:       fmt.Sprintf("%s-%s", rec.DeviceID, rec.Code),
			DeviceID:      rec.DeviceID,
			RuleID:        rec.Code,
			AlarmCount:    1,
			FirstOccurred: rec.Ts,
			LastOccurred:  rec.Ts,
			Severity:      rec.Severity,
			Status:        model.AlarmStatusOpen,
		}
		if err := a.store.UpsertGroup(ctx, group); err != nil {
			return fmt.Errorf("alarm: create group: %w", err)
		}
		return a.store.LinkRecordToGroup(ctx, rec.AlarmID, group.GroupID)
	}

	group.AlarmCount++
	group.LastOccurred = rec.Ts
	if rec.Severity > group.Severity {
		group.Severity = rec.Severity
	}
	if err := a.store.UpsertGroup(ctx, group); err != nil {
		return fmt.Errorf("alarm: update group: %w", err)
	}
	return a.store.LinkRecordToGroup(ctx, rec.AlarmID, group.GroupID)
}

// Auditor validates a proposed alarm status transition against its
// allowed-transition table and records it if allowed. Matches
// audit.Recorder's shape without importing internal/audit directly, the
// same boundary TagValuesAdapter draws around internal/health's
// TagSource.
type Auditor interface {
	Record(entityType, entityID string, fromStatus, toStatus int, now int64, inputs map[string]any) error
}

// Lifecycle implements Ack/AckGroup/Close transitions.
type Lifecycle struct {
	store   Store
	auditor Auditor
}

func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// WithAuditor attaches an Auditor that every subsequent Ack/Close call
// validates and records its transition with before persisting the new
// status. Nil disables auditing (the default).
func (l *Lifecycle) WithAuditor(a Auditor) *Lifecycle {
	l.auditor = a
	return l
}

func (l *Lifecycle) audit(alarmID string, from, to model.AlarmStatus, now int64) error {
	if l.auditor == nil {
		return nil
	}
	inputs := map[string]any{"alarm_id": alarmID}
	return l.auditor.Record("alarm", alarmID, int(from), int(to), now, inputs)
}

// Ack transitions a record to Acknowledged, allowed only when its
// current status is not Closed. Idempotent: Ack then Ack is Ack.
func (l *Lifecycle) Ack(ctx context.Context, alarmID, user, note string, now int64) error {
	rec, ok, err := l.store.GetRecord(ctx, alarmID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("alarm: record %s not found", alarmID)
	}
	if rec.Status == model.AlarmStatusClosed {
		return fmt.Errorf("alarm: cannot ack closed record %s", alarmID)
	}
	if rec.Status == model.AlarmStatusAcknowledged {
		return nil
	}
	if err := l.audit(alarmID, rec.Status, model.AlarmStatusAcknowledged, now); err != nil {
		return fmt.Errorf("alarm: ack %s rejected: %w", alarmID, err)
	}
	rec.Status = model.AlarmStatusAcknowledged
	rec.AckedBy = user
	rec.AckedTs = now
	rec.AckNote = note
	rec.Updated = now
	return l.store.UpdateRecord(ctx, rec)
}

// AckGroup sets the group's status to Acknowledged and ack-records
// every non-Closed child record.
func (l *Lifecycle) AckGroup(ctx context.Context, groupID, user, note string, now int64) error {
	group, ok, err := l.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("alarm: group %s not found", groupID)
	}
	group.Status = model.AlarmStatusAcknowledged
	if err := l.store.UpdateGroup(ctx, group); err != nil {
		return err
	}

	records, err := l.store.RecordsInGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Status == model.AlarmStatusClosed {
			continue
		}
		if err := l.Ack(ctx, rec.AlarmID, user, note, now); err != nil {
			return err
		}
	}
	return nil
}

// Close is a terminal transition. Idempotent: Close then Close is Close.
func (l *Lifecycle) Close(ctx context.Context, alarmID string, now int64) error {
	rec, ok, err := l.store.GetRecord(ctx, alarmID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("alarm: record %s not found", alarmID)
	}
	if rec.Status == model.AlarmStatusClosed {
		return nil
	}
	if err := l.audit(alarmID, rec.Status, model.AlarmStatusClosed, now); err != nil {
		return fmt.Errorf("alarm: close %s rejected: %w", alarmID, err)
	}
	rec.Status = model.AlarmStatusClosed
	rec.Updated = now
	return l.store.UpdateRecord(ctx, rec)
}

// CloseGroup closes the group and all its non-Closed children.
func (l *Lifecycle) CloseGroup(ctx context.Context, groupID string, now int64) error {
	group, ok, err := l.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("alarm: group %s not found", groupID)
	}
	group.Status = model.AlarmStatusClosed
	if err := l.store.UpdateGroup(ctx, group); err != nil {
		return err
	}

	records, err := l.store.RecordsInGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := l.Close(ctx, rec.AlarmID, now); err != nil {
			return err
		}
	}
	return nil
}
