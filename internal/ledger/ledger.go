// Package ledger is the settlement state machine: it owns the intent and
// release lifecycles, verifies enclave-signed batches and moves tokens held in
// its bank.
//
// Every mutating operation runs under one mutex and one journal. An operation
// that fails is reverted entry by entry, so no partial effect survives, and
// its buffered events are dropped. Events of committed operations are
// delivered to sinks in commit order after the state lock is released. Sinks
// may read from the ledger but must not call mutating operations.
package ledger

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/amm"
	"stealth-backend/internal/types"
)

const (
	DefaultMinDelay = 60 * time.Second
	DefaultMaxDelay = 180 * time.Second
)

// DefaultCustody holds tokens between settlement and release.
var DefaultCustody = common.BytesToAddress(crypto.Keccak256([]byte("stealth-settlement/custody")))

// SwapExecutor converts tokens held by trader in bank.
type SwapExecutor interface {
	Swap(bank amm.Bank, trader, tokenIn, tokenOut common.Address, amountIn *big.Int, zeroForOne bool) (*big.Int, error)
}

// EventSink receives committed ledger events.
type EventSink interface {
	HandleLedgerEvent(ev types.LedgerEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ev types.LedgerEvent)

func (f EventSinkFunc) HandleLedgerEvent(ev types.LedgerEvent) { f(ev) }

// Ledger is safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	st     *state
	events []types.LedgerEvent

	dispatchMu sync.Mutex
	sinks      []EventSink

	owner    common.Address
	custody  common.Address
	swaps    SwapExecutor
	clock    func() time.Time
	minDelay time.Duration
	maxDelay time.Duration
	log      logrus.FieldLogger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithDelayBounds overrides the release delay window.
func WithDelayBounds(min, max time.Duration) Option {
	return func(l *Ledger) {
		l.minDelay = min
		l.maxDelay = max
	}
}

// WithSwapExecutor sets the AMM used for unmatched intents.
func WithSwapExecutor(s SwapExecutor) Option {
	return func(l *Ledger) { l.swaps = s }
}

// WithEventSink registers sinks at construction.
func WithEventSink(sinks ...EventSink) Option {
	return func(l *Ledger) { l.sinks = append(l.sinks, sinks...) }
}

// WithCustody overrides the custody address.
func WithCustody(addr common.Address) Option {
	return func(l *Ledger) { l.custody = addr }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = log }
}

// New creates a ledger administered by owner that accepts batches signed by
// enclaveSigner.
func New(owner, enclaveSigner common.Address, opts ...Option) *Ledger {
	l := &Ledger{
		st:       newState(enclaveSigner),
		owner:    owner,
		custody:  DefaultCustody,
		clock:    time.Now,
		minDelay: DefaultMinDelay,
		maxDelay: DefaultMaxDelay,
		log:      logrus.WithField("component", "ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddEventSink registers a sink for subsequent events.
func (l *Ledger) AddEventSink(s EventSink) {
	l.dispatchMu.Lock()
	defer l.dispatchMu.Unlock()
	l.sinks = append(l.sinks, s)
}

func (l *Ledger) now() uint64 {
	return uint64(l.clock().Unix())
}

// apply runs fn as one indivisible operation.
func (l *Ledger) apply(fn func(now uint64) error) error {
	l.mu.Lock()
	now := l.now()
	l.st.journal.reset()
	l.events = l.events[:0]

	if err := fn(now); err != nil {
		l.st.journal.revertTo(l.st, 0)
		l.events = l.events[:0]
		l.mu.Unlock()
		return err
	}

	l.st.journal.reset()
	events := make([]types.LedgerEvent, len(l.events))
	copy(events, l.events)
	l.events = l.events[:0]

	l.dispatchMu.Lock()
	l.mu.Unlock()
	defer l.dispatchMu.Unlock()
	for _, ev := range events {
		for _, s := range l.sinks {
			s.HandleLedgerEvent(ev)
		}
	}
	return nil
}

func (l *Ledger) emit(now uint64, ev types.LedgerEvent) {
	ev.ID = uuid.NewString()
	ev.Timestamp = now
	l.events = append(l.events, ev)
}

// Owner returns the administrative address.
func (l *Ledger) Owner() common.Address { return l.owner }

// Custody returns the address holding settled funds.
func (l *Ledger) Custody() common.Address { return l.custody }

// Now returns the ledger clock in unix seconds.
func (l *Ledger) Now() uint64 { return l.now() }

// EnclaveSigner returns the address batches must recover to.
func (l *Ledger) EnclaveSigner() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.enclaveSigner
}

// Intent returns a copy of an intent.
func (l *Ledger) Intent(id common.Hash) (*types.Intent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	in, ok := l.st.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return in.Clone(), nil
}

// PendingIntents returns unsettled intents in arrival order.
func (l *Ledger) PendingIntents() []types.Intent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingIntents()
}

func (l *Ledger) pendingIntents() []types.Intent {
	out := make([]types.Intent, 0, len(l.st.pendingIntents))
	for id := range l.st.pendingIntents {
		out = append(out, *l.st.intents[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out
}

// SettleableIntents returns pending intents, in arrival order, that a batch
// submitted now could settle: unexpired, and funded once the earlier intents
// of the same sender and token are counted. limit <= 0 means no limit.
func (l *Ledger) SettleableIntents(limit int) []types.Intent {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := l.pendingIntents()
	now := l.now()
	demand := make(map[[2]common.Address]*big.Int)
	out := make([]types.Intent, 0, len(pending))
	for _, in := range pending {
		if limit > 0 && len(out) == limit {
			break
		}
		if in.Deadline <= now {
			continue
		}
		key := [2]common.Address{in.Sender, in.TokenIn}
		need, ok := demand[key]
		if !ok {
			need = new(big.Int)
		}
		total := new(big.Int).Add(need, in.AmountIn)
		if total.Cmp(l.st.BalanceOf(in.TokenIn, in.Sender)) > 0 {
			continue
		}
		demand[key] = total
		out = append(out, in)
	}
	return out
}

// PendingIntentIDs returns unsettled intent ids in arrival order.
func (l *Ledger) PendingIntentIDs() []common.Hash {
	intents := l.PendingIntents()
	ids := make([]common.Hash, len(intents))
	for i := range intents {
		ids[i] = intents[i].ID
	}
	return ids
}

// Release returns a copy of a release.
func (l *Ledger) Release(id common.Hash) (*types.PendingRelease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.st.releases[id]
	if !ok {
		return nil, ErrReleaseNotFound
	}
	return r.Clone(), nil
}

// PendingReleaseIDs returns unexecuted release ids. Order is unspecified.
func (l *Ledger) PendingReleaseIDs() []common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.pool.list()
}

// ReadyReleaseIDs returns unexecuted releases whose release time has passed.
func (l *Ledger) ReadyReleaseIDs() []common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.pool.ready(l.now(), l.st.releases)
}

// ReadyReleases returns copies of the releases ReadyReleaseIDs would list.
func (l *Ledger) ReadyReleases() []types.PendingRelease {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := l.st.pool.ready(l.now(), l.st.releases)
	out := make([]types.PendingRelease, len(ids))
	for i, id := range ids {
		out[i] = *l.st.releases[id].Clone()
	}
	return out
}

// IsBatchProcessed reports whether a batch id has been accepted.
func (l *Ledger) IsBatchProcessed(id common.Hash) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.st.processedBatches[id]
	return ok
}

// BalanceOf returns an account's token balance.
func (l *Ledger) BalanceOf(token, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.BalanceOf(token, account)
}

// Stats is a point-in-time summary.
type Stats struct {
	Intents          int `json:"intents"`
	PendingIntents   int `json:"pendingIntents"`
	Releases         int `json:"releases"`
	PendingReleases  int `json:"pendingReleases"`
	ProcessedBatches int `json:"processedBatches"`
}

// Stats returns counts of ledger-owned records.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Intents:          len(l.st.intents),
		PendingIntents:   len(l.st.pendingIntents),
		Releases:         len(l.st.releases),
		PendingReleases:  l.st.pool.len(),
		ProcessedBatches: len(l.st.processedBatches),
	}
}
