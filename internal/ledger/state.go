package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stealth-backend/internal/types"
)

// state is everything the ledger owns. Every mutation goes through a method
// that journals it.
type state struct {
	intents          map[common.Hash]*types.Intent
	pendingIntents   map[common.Hash]struct{}
	releases         map[common.Hash]*types.PendingRelease
	pool             *releasePool
	processedBatches map[common.Hash]struct{}
	intentNonce      uint64
	balances         map[common.Address]map[common.Address]*big.Int // token -> account -> balance
	enclaveSigner    common.Address

	journal journal
}

func newState(enclaveSigner common.Address) *state {
	return &state{
		intents:          make(map[common.Hash]*types.Intent),
		pendingIntents:   make(map[common.Hash]struct{}),
		releases:         make(map[common.Hash]*types.PendingRelease),
		pool:             newReleasePool(),
		processedBatches: make(map[common.Hash]struct{}),
		balances:         make(map[common.Address]map[common.Address]*big.Int),
		enclaveSigner:    enclaveSigner,
	}
}

// BalanceOf implements amm.Bank.
func (s *state) BalanceOf(token, account common.Address) *big.Int {
	if bal, ok := s.balances[token][account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Transfer implements amm.Bank.
func (s *state) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	have := s.BalanceOf(token, from)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), have, token.Hex(), amount)
	}
	s.setBalance(token, from, have.Sub(have, amount))
	s.setBalance(token, to, new(big.Int).Add(s.BalanceOf(token, to), amount))
	return nil
}

func (s *state) credit(token, to common.Address, amount *big.Int) {
	s.setBalance(token, to, new(big.Int).Add(s.BalanceOf(token, to), amount))
}

func (s *state) setBalance(token, account common.Address, v *big.Int) {
	byAccount, ok := s.balances[token]
	if !ok {
		byAccount = make(map[common.Address]*big.Int)
		s.balances[token] = byAccount
	}
	s.journal.append(balanceChange{token: token, account: account, prev: byAccount[account]})
	byAccount[account] = v
}

func (s *state) setIntentStatus(in *types.Intent, status types.IntentStatus) {
	s.journal.append(intentStatusChange{id: in.ID, prevSettled: in.Settled, prevStatus: in.Status})
	in.Settled = true
	in.Status = status
}

func (s *state) removePendingIntent(id common.Hash) {
	if _, ok := s.pendingIntents[id]; !ok {
		return
	}
	s.journal.append(pendingIntentRemoved{id: id})
	delete(s.pendingIntents, id)
}

func (s *state) markBatchProcessed(id common.Hash) {
	s.journal.append(batchProcessed{id: id})
	s.processedBatches[id] = struct{}{}
}

func (s *state) addRelease(r *types.PendingRelease) {
	s.journal.append(releaseCreated{id: r.ID})
	s.releases[r.ID] = r
	s.pool.add(r.ID)
}

func (s *state) markReleaseExecuted(r *types.PendingRelease, now uint64) {
	s.journal.append(releaseExecuted{id: r.ID})
	r.Executed = true
	r.ExecutedAt = now
	s.pool.remove(r.ID)
}
