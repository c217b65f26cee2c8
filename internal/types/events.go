package types

import "github.com/ethereum/go-ethereum/common"

// EventType names a ledger event
type EventType string

const (
	EventIntentSubmitted EventType = "IntentSubmitted"
	EventIntentCancelled EventType = "IntentCancelled"
	EventBatchSettled    EventType = "BatchSettled"
	EventReleaseQueued   EventType = "ReleaseQueued"
	EventReleaseExecuted EventType = "ReleaseExecuted"
)

// BatchSummary is the aggregate payload of a BatchSettled event.
type BatchSummary struct {
	BatchID     common.Hash   `json:"batchId"`
	Timestamp   uint64        `json:"timestamp"`
	Matches     int           `json:"matches"`
	Settlements int           `json:"settlements"`
	Releases    int           `json:"releases"`
	IntentIDs   []common.Hash `json:"intentIds"`
}

// LedgerEvent is emitted by the ledger after a committed operation.
// Exactly one of Intent, Release and Batch is set.
type LedgerEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp uint64          `json:"timestamp"`
	Intent    *Intent         `json:"intent,omitempty"`
	Release   *PendingRelease `json:"release,omitempty"`
	Batch     *BatchSummary   `json:"batch,omitempty"`
}

// Subject returns the hex id of the record the event concerns.
func (e *LedgerEvent) Subject() string {
	switch {
	case e.Intent != nil:
		return e.Intent.ID.Hex()
	case e.Release != nil:
		return e.Release.ID.Hex()
	case e.Batch != nil:
		return e.Batch.BatchID.Hex()
	}
	return ""
}
