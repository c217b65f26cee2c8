package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stealth-backend/internal/types"
)

// journalEntry is a revertible state change.
type journalEntry interface {
	revert(s *state)
}

// journal records every mutation of an operation so a failed operation can be
// undone in reverse order.
type journal struct {
	entries []journalEntry
}

func (j *journal) append(e journalEntry) {
	j.entries = append(j.entries, e)
}

func (j *journal) revertTo(s *state, snap int) {
	for i := len(j.entries) - 1; i >= snap; i-- {
		j.entries[i].revert(s)
	}
	j.entries = j.entries[:snap]
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}

type balanceChange struct {
	token, account common.Address
	prev           *big.Int // nil if the slot did not exist
}

func (ch balanceChange) revert(s *state) {
	if ch.prev == nil {
		delete(s.balances[ch.token], ch.account)
		return
	}
	s.balances[ch.token][ch.account] = ch.prev
}

type intentCreated struct {
	id common.Hash
}

func (ch intentCreated) revert(s *state) {
	delete(s.intents, ch.id)
	delete(s.pendingIntents, ch.id)
}

type intentStatusChange struct {
	id          common.Hash
	prevSettled bool
	prevStatus  types.IntentStatus
}

func (ch intentStatusChange) revert(s *state) {
	in := s.intents[ch.id]
	in.Settled = ch.prevSettled
	in.Status = ch.prevStatus
}

type pendingIntentRemoved struct {
	id common.Hash
}

func (ch pendingIntentRemoved) revert(s *state) {
	s.pendingIntents[ch.id] = struct{}{}
}

type nonceChange struct {
	prev uint64
}

func (ch nonceChange) revert(s *state) {
	s.intentNonce = ch.prev
}

type batchProcessed struct {
	id common.Hash
}

func (ch batchProcessed) revert(s *state) {
	delete(s.processedBatches, ch.id)
}

type releaseCreated struct {
	id common.Hash
}

func (ch releaseCreated) revert(s *state) {
	delete(s.releases, ch.id)
	s.pool.remove(ch.id)
}

type releaseExecuted struct {
	id common.Hash
}

func (ch releaseExecuted) revert(s *state) {
	r := s.releases[ch.id]
	r.Executed = false
	r.ExecutedAt = 0
	s.pool.add(ch.id)
}

type signerChange struct {
	prev common.Address
}

func (ch signerChange) revert(s *state) {
	s.enclaveSigner = ch.prev
}
