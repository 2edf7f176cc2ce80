// Package audit validates alarm and collection-segment state
// transitions against their allowed transition tables and records each
// validated transition in a hash-chained ledger, so the sequence of
// decisions is tamper-evident and independently reproducible from its
// inputs. Adapted from the teacher's constitutional-kernel decision
// validator: the same bounds-check-then-hash-chain shape, generalized
// from escalation-state transitions to alarm/segment transitions.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ViolationType names one way a proposed transition can be rejected.
type ViolationType string

const (
	ViolationInvalidTransition  ViolationType = "invalid_transition"
	ViolationNonMonotonicTime   ViolationType = "non_monotonic_time"
	ViolationMissingContext     ViolationType = "missing_context"
	ViolationUnknownEntityType  ViolationType = "unknown_entity_type"
)

// Violation is a rejected transition, returned as an error.
type Violation struct {
	Type     ViolationType
	Message  string
	EntityID string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("audit violation [%s] entity=%s: %s", v.Type, v.EntityID, v.Message)
}

// Decision is a proposed state transition awaiting validation. On
// success, Ledger.Validate fills in DecisionHash and ParentHash and
// sets Valid.
type Decision struct {
	EntityType string // "alarm" or "segment"
	EntityID   string
	FromStatus int
	ToStatus   int
	Ts         int64
	NodeID     string
	Inputs     map[string]any

	DecisionHash string
	ParentHash   string
	Valid        bool
}

// TransitionTable maps an entity type to its allowed fromStatus ->
// []toStatus edges.
type TransitionTable map[string]map[int][]int

// DefaultTransitions returns the allowed transitions for alarms
// (Open->Acknowledged, Open->Closed, Acknowledged->Closed — no
// downgrade path, matching the source's "severity only raises, never
// downgrades" behavior generalized to status) and collection segments
// (Collecting->Completed, Collecting->Failed — both terminal).
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		"alarm": {
			1: {2, 3}, // Open -> {Acknowledged, Closed}
			2: {3},    // Acknowledged -> Closed
		},
		"segment": {
			1: {2, 3}, // Collecting -> {Completed, Failed}
		},
	}
}

// Ledger validates proposed transitions and chains each validated
// decision's hash to the previous one, mirroring the teacher's
// Merkle-style decision chaining.
type Ledger struct {
	mu             sync.Mutex
	transitions    TransitionTable
	lastTimestamp  int64
	lastHash       string
	violationCount int64
	verifiedCount  int64
	log            *zap.Logger
	strict         bool
}

// NewLedger builds a Ledger with the default alarm/segment transition
// tables. In strict mode (test harnesses only) violations panic instead
// of returning an error.
func NewLedger(log *zap.Logger, strict bool) *Ledger {
	return &Ledger{transitions: DefaultTransitions(), log: log, strict: strict}
}

// Validate checks d against the transition table and time monotonicity,
// requires non-empty Inputs as the decision's evidence trail, then
// stamps the canonical hash and chains it to the previous decision.
func (l *Ledger) Validate(d *Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d.Ts < l.lastTimestamp {
		return l.handleViolation(&Violation{
			Type:     ViolationNonMonotonicTime,
			Message:  fmt.Sprintf("ts %d precedes last recorded ts %d", d.Ts, l.lastTimestamp),
			EntityID: d.EntityID,
		})
	}

	edges, ok := l.transitions[d.EntityType]
	if !ok {
		return l.handleViolation(&Violation{
			Type:     ViolationUnknownEntityType,
			Message:  fmt.Sprintf("no transition table for entity type %q", d.EntityType),
			EntityID: d.EntityID,
		})
	}
	if !allowedTo(edges[d.FromStatus], d.ToStatus) {
		return l.handleViolation(&Violation{
			Type:     ViolationInvalidTransition,
			Message:  fmt.Sprintf("%s: %d -> %d is not an allowed transition", d.EntityType, d.FromStatus, d.ToStatus),
			EntityID: d.EntityID,
		})
	}

	if len(d.Inputs) == 0 {
		return l.handleViolation(&Violation{
			Type:     ViolationMissingContext,
			Message:  "decision recorded with no supporting inputs",
			EntityID: d.EntityID,
		})
	}

	hash, err := canonicalHash(d)
	if err != nil {
		return fmt.Errorf("audit: compute decision hash: %w", err)
	}
	d.DecisionHash = hash
	d.ParentHash = l.lastHash
	d.Valid = true

	l.lastHash = hash
	l.lastTimestamp = d.Ts
	l.verifiedCount++
	return nil
}

func allowedTo(tos []int, want int) bool {
	for _, t := range tos {
		if t == want {
			return true
		}
	}
	return false
}

// canonicalHash hashes a deterministic JSON projection of the decision
// (excluding the hash fields themselves) so the same inputs always
// produce the same hash.
func canonicalHash(d *Decision) (string, error) {
	canonical := map[string]any{
		"entity_type": d.EntityType,
		"entity_id":   d.EntityID,
		"from_status": d.FromStatus,
		"to_status":   d.ToStatus,
		"ts":          d.Ts,
		"node_id":     d.NodeID,
		"inputs":      d.Inputs,
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (l *Ledger) handleViolation(v *Violation) error {
	l.violationCount++
	if l.log != nil {
		l.log.Error("audit violation",
			zap.String("type", string(v.Type)),
			zap.String("entity_id", v.EntityID),
			zap.String("message", v.Message),
			zap.Int64("total_violations", l.violationCount),
		)
	}
	if l.strict {
		panic(v.Error())
	}
	return v
}

// Stats summarizes ledger activity.
type Stats struct {
	VerifiedCount  int64
	ViolationCount int64
	LastHash       string
}

func (l *Ledger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{VerifiedCount: l.verifiedCount, ViolationCount: l.violationCount, LastHash: l.lastHash}
}
