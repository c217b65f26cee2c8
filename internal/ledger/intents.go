package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/stealth"
	"stealth-backend/internal/types"
)

// SubmitIntentParams are the caller-supplied fields of a new intent.
type SubmitIntentParams struct {
	TokenIn       common.Address
	TokenOut      common.Address
	AmountIn      *big.Int
	ViewingPubKey []byte
	Deadline      uint64
}

// IntentID hashes the packed (sender, tokenIn, tokenOut, amountIn,
// submittedAt, nonce) tuple.
func IntentID(sender, tokenIn, tokenOut common.Address, amountIn *big.Int, submittedAt, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(
		sender.Bytes(),
		tokenIn.Bytes(),
		tokenOut.Bytes(),
		common.LeftPadBytes(amountIn.Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(submittedAt).Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 32),
	)
}

// SubmitIntent records a new pending intent from sender.
func (l *Ledger) SubmitIntent(sender common.Address, p SubmitIntentParams) (common.Hash, error) {
	var id common.Hash
	err := l.apply(func(now uint64) error {
		if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if p.Deadline <= now {
			return fmt.Errorf("%w: deadline %d, now %d", ErrDeadlinePassed, p.Deadline, now)
		}
		if len(p.ViewingPubKey) != types.ViewingPubKeyLength {
			return fmt.Errorf("%w: got %d bytes", ErrInvalidViewingKey, len(p.ViewingPubKey))
		}
		if err := stealth.ValidateViewingKey(p.ViewingPubKey); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidViewingKey, err)
		}
		if p.TokenIn == p.TokenOut {
			return ErrSameToken
		}

		st := l.st
		nonce := st.intentNonce
		st.journal.append(nonceChange{prev: nonce})
		st.intentNonce++

		id = IntentID(sender, p.TokenIn, p.TokenOut, p.AmountIn, now, nonce)
		in := &types.Intent{
			ID:            id,
			Sender:        sender,
			TokenIn:       p.TokenIn,
			TokenOut:      p.TokenOut,
			AmountIn:      new(big.Int).Set(p.AmountIn),
			ViewingPubKey: append([]byte(nil), p.ViewingPubKey...),
			Deadline:      p.Deadline,
			SubmittedAt:   now,
			Nonce:         nonce,
			Status:        types.IntentStatusPending,
		}
		st.journal.append(intentCreated{id: id})
		st.intents[id] = in
		st.pendingIntents[id] = struct{}{}

		l.emit(now, types.LedgerEvent{Type: types.EventIntentSubmitted, Intent: in.Clone()})
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}

	l.log.WithFields(logrus.Fields{
		"intent_id": id.Hex(),
		"sender":    sender.Hex(),
	}).Info("📥 Intent submitted")
	return id, nil
}

// CancelIntent lets the original sender withdraw an unsettled intent.
func (l *Ledger) CancelIntent(caller common.Address, id common.Hash) error {
	err := l.apply(func(now uint64) error {
		in, ok := l.st.intents[id]
		if !ok {
			return ErrIntentNotFound
		}
		if in.Sender != caller {
			return fmt.Errorf("%w: %s is not the sender of %s", ErrUnauthorized, caller.Hex(), id.Hex())
		}
		if in.Settled {
			return fmt.Errorf("%w: %s is %s", ErrIntentNotCancellable, id.Hex(), in.Status)
		}

		l.st.setIntentStatus(in, types.IntentStatusCancelled)
		l.st.removePendingIntent(id)
		l.emit(now, types.LedgerEvent{Type: types.EventIntentCancelled, Intent: in.Clone()})
		return nil
	})
	if err != nil {
		return err
	}

	l.log.WithField("intent_id", id.Hex()).Info("🚫 Intent cancelled")
	return nil
}
