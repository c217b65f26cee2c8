package models

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/lib/pq"

	"stealth-backend/internal/types"
)

// IntentRecord indexed copy of a ledger intent. The ledger stays authoritative.
type IntentRecord struct {
	IntentID      string     `json:"intent_id" gorm:"primaryKey;size:66"`
	Sender        string     `json:"sender" gorm:"not null;index;size:42"`
	TokenIn       string     `json:"token_in" gorm:"not null;size:42"`
	TokenOut      string     `json:"token_out" gorm:"not null;size:42"`
	AmountIn      string     `json:"amount_in" gorm:"type:numeric(78,0);not null"`
	ViewingPubKey string     `json:"viewing_pub_key" gorm:"size:132"`
	Deadline      int64      `json:"deadline" gorm:"not null"`
	SubmittedAt   int64      `json:"submitted_at" gorm:"not null;index"`
	Nonce         uint64     `json:"nonce" gorm:"not null"`
	Status        string     `json:"status" gorm:"not null;index;size:16"`
	BatchID       *string    `json:"batch_id,omitempty" gorm:"index;size:66"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (IntentRecord) TableName() string {
	return "intent_records"
}

// NewIntentRecord converts a ledger intent.
func NewIntentRecord(in *types.Intent) *IntentRecord {
	return &IntentRecord{
		IntentID:      in.ID.Hex(),
		Sender:        in.Sender.Hex(),
		TokenIn:       in.TokenIn.Hex(),
		TokenOut:      in.TokenOut.Hex(),
		AmountIn:      in.AmountIn.String(),
		ViewingPubKey: hexutil.Encode(in.ViewingPubKey),
		Deadline:      int64(in.Deadline),
		SubmittedAt:   int64(in.SubmittedAt),
		Nonce:         in.Nonce,
		Status:        string(in.Status),
	}
}

// ReleaseRecord indexed copy of a queued release
type ReleaseRecord struct {
	ReleaseID      string     `json:"release_id" gorm:"primaryKey;size:66"`
	IntentID       string     `json:"intent_id" gorm:"not null;index;size:66"`
	BatchID        string     `json:"batch_id" gorm:"not null;index;size:66"`
	Token          string     `json:"token" gorm:"not null;size:42"`
	StealthAddress string     `json:"stealth_address" gorm:"not null;size:42"`
	Amount         string     `json:"amount" gorm:"type:numeric(78,0);not null"`
	ReleaseTime    int64      `json:"release_time" gorm:"not null;index"`
	EncryptedKey   string     `json:"encrypted_key" gorm:"type:text"`
	Executed       bool       `json:"executed" gorm:"not null;index"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (ReleaseRecord) TableName() string {
	return "release_records"
}

// NewReleaseRecord converts a ledger release.
func NewReleaseRecord(r *types.PendingRelease) *ReleaseRecord {
	rec := &ReleaseRecord{
		ReleaseID:      r.ID.Hex(),
		IntentID:       r.IntentID.Hex(),
		BatchID:        r.BatchID.Hex(),
		Token:          r.Token.Hex(),
		StealthAddress: r.StealthAddress.Hex(),
		Amount:         r.Amount.String(),
		ReleaseTime:    int64(r.ReleaseTime),
		EncryptedKey:   hexutil.Encode(r.EncryptedKey),
		Executed:       r.Executed,
	}
	if r.Executed {
		at := time.Unix(int64(r.ExecutedAt), 0).UTC()
		rec.ExecutedAt = &at
	}
	return rec
}

// BatchRecord accepted settlement batch
type BatchRecord struct {
	BatchID     string         `json:"batch_id" gorm:"primaryKey;size:66"`
	Timestamp   int64          `json:"timestamp" gorm:"not null"`
	Matches     int            `json:"matches" gorm:"not null"`
	Settlements int            `json:"settlements" gorm:"not null"`
	Releases    int            `json:"releases" gorm:"not null"`
	IntentIDs   pq.StringArray `json:"intent_ids" gorm:"type:text[]"`
	SettledAt   time.Time      `json:"settled_at" gorm:"not null;index"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (BatchRecord) TableName() string {
	return "batch_records"
}

// NewBatchRecord converts a batch summary settled at settledAt (unix seconds).
func NewBatchRecord(b *types.BatchSummary, settledAt uint64) *BatchRecord {
	ids := make(pq.StringArray, len(b.IntentIDs))
	for i, id := range b.IntentIDs {
		ids[i] = id.Hex()
	}
	return &BatchRecord{
		BatchID:     b.BatchID.Hex(),
		Timestamp:   int64(b.Timestamp),
		Matches:     b.Matches,
		Settlements: b.Settlements,
		Releases:    b.Releases,
		IntentIDs:   ids,
		SettledAt:   time.Unix(int64(settledAt), 0).UTC(),
	}
}

// LedgerEventRecord append-only event log
type LedgerEventRecord struct {
	EventID   string    `json:"event_id" gorm:"primaryKey;size:36"`
	Type      string    `json:"type" gorm:"not null;index;size:32"`
	Subject   string    `json:"subject" gorm:"not null;index;size:66"`
	Payload   string    `json:"payload" gorm:"type:jsonb"`
	Timestamp int64     `json:"timestamp" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (LedgerEventRecord) TableName() string {
	return "ledger_events"
}

// NewLedgerEventRecord converts an event, keyed by the id it concerns.
func NewLedgerEventRecord(ev types.LedgerEvent) (*LedgerEventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &LedgerEventRecord{
		EventID:   ev.ID,
		Type:      string(ev.Type),
		Subject:   ev.Subject(),
		Payload:   string(payload),
		Timestamp: int64(ev.Timestamp),
	}, nil
}
