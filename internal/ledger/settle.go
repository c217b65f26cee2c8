package ledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/batch"
	"stealth-backend/internal/types"
)

// Receipt summarizes an accepted batch.
type Receipt struct {
	BatchID     common.Hash   `json:"batchId"`
	Matches     int           `json:"matches"`
	Settlements int           `json:"settlements"`
	ReleaseIDs  []common.Hash `json:"releaseIds"`
	SettledAt   uint64        `json:"settledAt"`
}

// owed is the payout an intent settled in the current batch is entitled to.
type owed struct {
	token    common.Address
	amount   *big.Int
	matched  bool
	stealth  common.Address // zero when the settlement named none
	released bool
}

// ReleaseID hashes the packed (intentId, stealthAddress, releaseTime) tuple.
func ReleaseID(intentID common.Hash, stealthAddress common.Address, releaseTime uint64) common.Hash {
	return crypto.Keccak256Hash(
		intentID.Bytes(),
		stealthAddress.Bytes(),
		common.LeftPadBytes(new(big.Int).SetUint64(releaseTime).Bytes(), 32),
	)
}

// SettleAndQueue verifies an enclave-signed batch, settles its matches and AMM
// settlements, and queues one delayed release per settled intent. The batch
// is applied entirely or not at all.
func (l *Ledger) SettleAndQueue(b *types.SettlementBatch) (*Receipt, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil batch", ErrInvalidMatch)
	}

	var receipt *Receipt
	err := l.apply(func(now uint64) error {
		st := l.st
		if _, done := st.processedBatches[b.BatchID]; done {
			return fmt.Errorf("%w: %s", ErrBatchAlreadyProcessed, b.BatchID.Hex())
		}

		signer, err := batch.RecoverSigner(b)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if signer != st.enclaveSigner {
			return fmt.Errorf("%w: recovered %s", ErrInvalidSignature, signer.Hex())
		}

		st.markBatchProcessed(b.BatchID)

		payouts := make(map[common.Hash]*owed)
		var settled []common.Hash

		for i, m := range b.InternalMatches {
			if err := l.settleMatch(m, payouts); err != nil {
				return fmt.Errorf("internal match %d: %w", i, err)
			}
			settled = append(settled, m.BuyIntentID, m.SellIntentID)
		}
		for i, s := range b.AMMSettlements {
			if err := l.settleViaAMM(now, s, payouts); err != nil {
				return fmt.Errorf("amm settlement %d: %w", i, err)
			}
			settled = append(settled, s.IntentID)
		}

		releaseIDs := make([]common.Hash, 0, len(b.Releases))
		for i, d := range b.Releases {
			id, err := l.queueRelease(now, b.BatchID, d, payouts)
			if err != nil {
				return fmt.Errorf("release %d: %w", i, err)
			}
			releaseIDs = append(releaseIDs, id)
		}

		for _, id := range settled {
			if !payouts[id].released {
				return fmt.Errorf("%w: %s", ErrUnreleasedIntent, id.Hex())
			}
		}

		l.emit(now, types.LedgerEvent{
			Type: types.EventBatchSettled,
			Batch: &types.BatchSummary{
				BatchID:     b.BatchID,
				Timestamp:   b.Timestamp,
				Matches:     len(b.InternalMatches),
				Settlements: len(b.AMMSettlements),
				Releases:    len(b.Releases),
				IntentIDs:   settled,
			},
		})

		receipt = &Receipt{
			BatchID:     b.BatchID,
			Matches:     len(b.InternalMatches),
			Settlements: len(b.AMMSettlements),
			ReleaseIDs:  releaseIDs,
			SettledAt:   now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"batch_id":    b.BatchID.Hex(),
		"matches":     receipt.Matches,
		"settlements": receipt.Settlements,
		"releases":    len(receipt.ReleaseIDs),
	}).Info("✅ Batch settled")
	return receipt, nil
}

// unsettledIntent returns a live intent that is not yet settled in the ledger
// or earlier in the batch.
func (l *Ledger) unsettledIntent(id common.Hash) (*types.Intent, error) {
	in, ok := l.st.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id.Hex())
	}
	if in.Settled {
		return nil, fmt.Errorf("%w: %s", ErrIntentAlreadySettled, id.Hex())
	}
	return in, nil
}

func (l *Ledger) settleMatch(m types.InternalMatch, payouts map[common.Hash]*owed) error {
	if m.BuyIntentID == m.SellIntentID {
		return fmt.Errorf("%w: intent matched against itself", ErrInvalidMatch)
	}
	buy, err := l.unsettledIntent(m.BuyIntentID)
	if err != nil {
		return intentErr(m.BuyIntentID, err)
	}
	sell, err := l.unsettledIntent(m.SellIntentID)
	if err != nil {
		return intentErr(m.SellIntentID, err)
	}
	if !buy.IsBuy() {
		return fmt.Errorf("%w: %s is not a buy", ErrInvalidMatch, buy.ID.Hex())
	}
	if sell.TokenIn != buy.TokenOut || sell.TokenOut != buy.TokenIn {
		return fmt.Errorf("%w: %s does not mirror %s", ErrInvalidMatch, sell.ID.Hex(), buy.ID.Hex())
	}
	amt := m.MatchedAmount
	if amt == nil || amt.Sign() <= 0 || amt.Cmp(buy.AmountIn) > 0 || amt.Cmp(sell.AmountIn) > 0 {
		return fmt.Errorf("%w: matched amount %v out of range", ErrInvalidMatch, amt)
	}

	for _, in := range []*types.Intent{buy, sell} {
		if err := l.st.Transfer(in.TokenIn, in.Sender, l.custody, amt); err != nil {
			return intentErr(in.ID, err)
		}
		l.st.setIntentStatus(in, types.IntentStatusSettled)
		l.st.removePendingIntent(in.ID)
		payouts[in.ID] = &owed{token: in.TokenOut, amount: new(big.Int).Set(amt), matched: true}
	}
	return nil
}

func (l *Ledger) settleViaAMM(now uint64, s types.AMMSettlement, payouts map[common.Hash]*owed) error {
	return intentErr(s.IntentID, l.swapIntent(now, s, payouts))
}

func (l *Ledger) swapIntent(now uint64, s types.AMMSettlement, payouts map[common.Hash]*owed) error {
	in, err := l.unsettledIntent(s.IntentID)
	if err != nil {
		return err
	}
	if now > in.Deadline {
		return fmt.Errorf("%w: %s expired at %d", ErrIntentExpired, in.ID.Hex(), in.Deadline)
	}
	if s.ZeroForOne != in.IsBuy() {
		return fmt.Errorf("%w: %s", ErrDirectionMismatch, in.ID.Hex())
	}
	if l.swaps == nil {
		return fmt.Errorf("%w: no amm configured", ErrSwapFailed)
	}

	if err := l.st.Transfer(in.TokenIn, in.Sender, l.custody, in.AmountIn); err != nil {
		return err
	}
	out, err := l.swaps.Swap(l.st, l.custody, in.TokenIn, in.TokenOut, in.AmountIn, s.ZeroForOne)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}
	if out == nil || out.Sign() <= 0 {
		return fmt.Errorf("%w: zero output", ErrSwapFailed)
	}

	l.st.setIntentStatus(in, types.IntentStatusSettled)
	l.st.removePendingIntent(in.ID)
	payouts[in.ID] = &owed{token: in.TokenOut, amount: new(big.Int).Set(out), stealth: s.StealthAddress}
	return nil
}

func (l *Ledger) queueRelease(now uint64, batchID common.Hash, d types.ReleaseDescriptor, payouts map[common.Hash]*owed) (common.Hash, error) {
	earliest := now + uint64(l.minDelay/time.Second)
	latest := now + uint64(l.maxDelay/time.Second)
	if d.ReleaseTime < earliest || d.ReleaseTime > latest {
		return common.Hash{}, fmt.Errorf("%w: %d not in [%d, %d]", ErrReleaseOutOfWindow, d.ReleaseTime, earliest, latest)
	}

	p, ok := payouts[d.IntentID]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s was not settled in this batch", ErrReleaseMismatch, d.IntentID.Hex())
	}
	if p.released {
		return common.Hash{}, fmt.Errorf("%w: second release for %s", ErrDuplicateRelease, d.IntentID.Hex())
	}
	if d.Token != p.token {
		return common.Hash{}, fmt.Errorf("%w: token %s, owed %s", ErrReleaseMismatch, d.Token.Hex(), p.token.Hex())
	}
	if p.matched && (d.Amount == nil || d.Amount.Cmp(p.amount) != 0) {
		return common.Hash{}, fmt.Errorf("%w: amount %v, matched %s", ErrReleaseMismatch, d.Amount, p.amount)
	}
	if d.StealthAddress == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("%w: stealth address", ErrZeroAddress)
	}
	if p.stealth != (common.Address{}) && p.stealth != d.StealthAddress {
		return common.Hash{}, fmt.Errorf("%w: stealth address differs from settlement", ErrReleaseMismatch)
	}

	id := ReleaseID(d.IntentID, d.StealthAddress, d.ReleaseTime)
	if _, exists := l.st.releases[id]; exists {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrDuplicateRelease, id.Hex())
	}

	r := &types.PendingRelease{
		ID:             id,
		IntentID:       d.IntentID,
		Token:          d.Token,
		StealthAddress: d.StealthAddress,
		Amount:         new(big.Int).Set(p.amount),
		ReleaseTime:    d.ReleaseTime,
		EncryptedKey:   append([]byte(nil), d.EncryptedKey...),
		BatchID:        batchID,
		EnqueuedAt:     now,
	}
	l.st.addRelease(r)
	p.released = true

	l.emit(now, types.LedgerEvent{Type: types.EventReleaseQueued, Release: r.Clone()})
	return id, nil
}
