package audit

// Recorder adapts a Ledger+Store pair to the small single-method Record
// interface internal/alarm and internal/store's cycle sink each declare
// locally, so neither package has to import internal/audit directly —
// the same boundary TagValuesAdapter draws around internal/health's
// TagSource.
type Recorder struct {
	ledger *Ledger
	store  *Store
	nodeID string
}

func NewRecorder(ledger *Ledger, store *Store, nodeID string) *Recorder {
	return &Recorder{ledger: ledger, store: store, nodeID: nodeID}
}

// Record validates a proposed transition against the ledger's
// transition table and, if allowed, appends it to the ledger store. An
// error means the transition was rejected and nothing was persisted.
func (r *Recorder) Record(entityType, entityID string, fromStatus, toStatus int, now int64, inputs map[string]any) error {
	d := &Decision{
		EntityType: entityType,
		EntityID:   entityID,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Ts:         now,
		NodeID:     r.nodeID,
		Inputs:     inputs,
	}
	if err := r.ledger.Validate(d); err != nil {
		return err
	}
	_, err := r.store.Append(d)
	return err
}
