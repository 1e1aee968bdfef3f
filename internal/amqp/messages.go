package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind names a ledger change carried over the broker.
type EventKind string

const (
	// EventTransactionCreated carries the id of a newly recorded transaction.
	// The worker fetches the full record from storage before mirroring it.
	EventTransactionCreated EventKind = "transaction.created"
	// EventSnapshotImported signals that the whole ledger was replaced by an
	// import; mirrors must reconcile from scratch.
	EventSnapshotImported EventKind = "snapshot.imported"
	// EventSnapshotReset signals that the ledger was wiped back to defaults.
	EventSnapshotReset EventKind = "snapshot.reset"
)

// Valid reports whether the kind is one the consumer understands.
func (k EventKind) Valid() bool {
	switch k {
	case EventTransactionCreated, EventSnapshotImported, EventSnapshotReset:
		return true
	default:
		return false
	}
}

// LedgerEvent is the message published after a ledger mutation. It is
// deliberately small: consumers fetch full records from storage by id.
type LedgerEvent struct {
	Kind          EventKind `json:"kind"`
	TransactionID string    `json:"transactionId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionCreated builds the event for a recorded transaction.
func NewTransactionCreated(transactionID string) *LedgerEvent {
	return &LedgerEvent{
		Kind:          EventTransactionCreated,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

// NewSnapshotImported builds the event for a full-ledger import.
func NewSnapshotImported() *LedgerEvent {
	return &LedgerEvent{Kind: EventSnapshotImported, Timestamp: time.Now()}
}

// NewSnapshotReset builds the event for a ledger reset.
func NewSnapshotReset() *LedgerEvent {
	return &LedgerEvent{Kind: EventSnapshotReset, Timestamp: time.Now()}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON creates an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var evt LedgerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	if !evt.Kind.Valid() {
		return nil, fmt.Errorf("unknown event kind %q", evt.Kind)
	}
	if evt.Kind == EventTransactionCreated && evt.TransactionID == "" {
		return nil, fmt.Errorf("%s event without transaction id", evt.Kind)
	}
	return &evt, nil
}
