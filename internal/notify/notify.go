// Package notify defines the best-effort update broadcast shared by the
// contract-event relay and the HTTP handlers. Delivery is at-most-once: a
// client that is disconnected at emission time receives nothing and is
// expected to refetch canonical state on reconnect.
package notify

// Update kinds.
const (
	KindListed  = "listed"
	KindSold    = "sold"
	KindDeleted = "deleted"
)

// Event is the normalized product-update payload. The source fields are set
// only for events observed on-chain.
type Event struct {
	Kind                string `json:"kind"` // "listed", "sold", or "deleted"
	SubjectID           string `json:"subject_id"`
	DisplayName         string `json:"display_name,omitempty"`
	SourceTransactionID string `json:"source_tx,omitempty"`
	SourceLogPosition   uint   `json:"source_log_index,omitempty"`
}

// Notifier broadcasts an event to whoever is listening right now. Emit must
// not block and gives no delivery guarantee.
type Notifier interface {
	Emit(ev Event)
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

func (m Multi) Emit(ev Event) {
	for _, n := range m {
		n.Emit(ev)
	}
}
