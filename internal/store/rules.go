package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// RuleStore is a Postgres-backed collection.RuleSource, tracking a
// monotonic revision via a single row in rule_revision so the engine
// only re-reads collection_rule when something actually changed
// (spec.md §4.3 step 1).
type RuleStore struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	queryTimeout time.Duration
}

func NewRuleStore(pool *pgxpool.Pool, log *zap.Logger, queryTimeout time.Duration) *RuleStore {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &RuleStore{pool: pool, log: log, queryTimeout: queryTimeout}
}

func (s *RuleStore) Revision(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var rev int64
	start := time.Now()
	err := s.pool.QueryRow(ctx, `SELECT revision FROM rule_revision WHERE id = 1`).Scan(&rev)
	return rev, classifyErr(err, time.Since(start))
}

func (s *RuleStore) Rules(ctx context.Context) ([]model.CollectionRule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT rule_id, device_id, start_condition, stop_condition, collection_config, post_actions, enabled, trigger_count, updated_at
		FROM collection_rule WHERE enabled`)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []model.CollectionRule
	for rows.Next() {
		var r model.CollectionRule
		var startRaw, stopRaw, cfgRaw []byte
		if err := rows.Scan(&r.RuleID, &r.DeviceID, &startRaw, &stopRaw, &cfgRaw, &r.PostActions, &r.Enabled, &r.TriggerCount, &r.UpdatedAt); err != nil {
			return nil, classifyErr(err, 0)
		}
		if err := json.Unmarshal(startRaw, &r.StartCondition); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(stopRaw, &r.StopCondition); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(cfgRaw, &r.CollectionConfig); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, classifyErr(rows.Err(), 0)
}

// UpsertRule writes a rule definition and bumps the shared revision
// counter so running engines pick up the change on their next poll.
func (s *RuleStore) UpsertRule(ctx context.Context, r model.CollectionRule) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	startRaw, err := json.Marshal(r.StartCondition)
	if err != nil {
		return err
	}
	stopRaw, err := json.Marshal(r.StopCondition)
	if err != nil {
		return err
	}
	cfgRaw, err := json.Marshal(r.CollectionConfig)
	if err != nil {
		return err
	}

	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyErr(err, time.Since(start))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO collection_rule (rule_id, device_id, start_condition, stop_condition, collection_config, post_actions, enabled, trigger_count, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (rule_id) DO UPDATE SET
			device_id=EXCLUDED.device_id, start_condition=EXCLUDED.start_condition, stop_condition=EXCLUDED.stop_condition,
			collection_config=EXCLUDED.collection_config, post_actions=EXCLUDED.post_actions, enabled=EXCLUDED.enabled,
			trigger_count=EXCLUDED.trigger_count, updated_at=EXCLUDED.updated_at`,
		r.RuleID, r.DeviceID, startRaw, stopRaw, cfgRaw, r.PostActions, r.Enabled, r.TriggerCount, r.UpdatedAt,
	); err != nil {
		return classifyErr(err, time.Since(start))
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO rule_revision (id, revision) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET revision = rule_revision.revision + 1`); err != nil {
		return classifyErr(err, time.Since(start))
	}
	return classifyErr(tx.Commit(ctx), time.Since(start))
}

// TagImportanceRules backs health.RuleSource's tag-importance half.
func (s *RuleStore) TagImportanceRules(ctx context.Context) ([]model.TagImportanceRule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT rule_id, pattern, importance, priority, enabled FROM tag_importance_rule WHERE enabled`)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []model.TagImportanceRule
	for rows.Next() {
		var r model.TagImportanceRule
		if err := rows.Scan(&r.RuleID, &r.Pattern, &r.Importance, &r.Priority, &r.Enabled); err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, r)
	}
	return out, classifyErr(rows.Err(), 0)
}

// RuleCache pairs a periodically-refreshed snapshot of the importance/
// correlation rules with a BaselineCache's device-tag catalog, giving
// health.Engine a single synchronous health.RuleSource backed by
// Postgres without a DB round trip per assessed tag.
type RuleCache struct {
	store    *RuleStore
	tagsFrom *BaselineCache

	mu           sync.RWMutex
	importance   []model.TagImportanceRule
	correlations []model.TagCorrelationRule
}

func NewRuleCache(store *RuleStore, tagsFrom *BaselineCache) *RuleCache {
	return &RuleCache{store: store, tagsFrom: tagsFrom}
}

func (c *RuleCache) Refresh(ctx context.Context) error {
	importance, err := c.store.TagImportanceRules(ctx)
	if err != nil {
		return err
	}
	correlations, err := c.store.TagCorrelationRules(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.importance = importance
	c.correlations = correlations
	c.mu.Unlock()
	return nil
}

func (c *RuleCache) DeviceTags(deviceID string) []string {
	return c.tagsFrom.DeviceTags(deviceID)
}

func (c *RuleCache) ImportanceRules() []model.TagImportanceRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.TagImportanceRule(nil), c.importance...)
}

func (c *RuleCache) CorrelationRules() []model.TagCorrelationRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.TagCorrelationRule(nil), c.correlations...)
}

// TagCorrelationRules backs health.RuleSource's tag-correlation half.
func (s *RuleStore) TagCorrelationRules(ctx context.Context) ([]model.TagCorrelationRule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT rule_id, device_id, tag1_pattern, tag2_pattern, type, threshold, tag1_predicate, tag1_value, tag2_predicate, tag2_value, penalty_score, enabled
		FROM tag_correlation_rule WHERE enabled`)
	if err != nil {
		return nil, classifyErr(err, 0)
	}
	defer rows.Close()

	var out []model.TagCorrelationRule
	for rows.Next() {
		var r model.TagCorrelationRule
		if err := rows.Scan(&r.RuleID, &r.DeviceID, &r.Tag1Pattern, &r.Tag2Pattern, &r.Type, &r.Threshold, &r.Tag1Predicate, &r.Tag1Value, &r.Tag2Predicate, &r.Tag2Value, &r.PenaltyScore, &r.Enabled); err != nil {
			return nil, classifyErr(err, 0)
		}
		out = append(out, r)
	}
	return out, classifyErr(rows.Err(), 0)
}
