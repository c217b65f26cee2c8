package ledger

import (
	"context"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealth-backend/internal/amm"
	"stealth-backend/internal/batch"
	"stealth-backend/internal/matching"
	"stealth-backend/internal/types"
)

const (
	enclaveKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	viewingKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	intruderHex   = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
)

var (
	owner  = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice  = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob    = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

type fixture struct {
	t       *testing.T
	now     time.Time
	ledger  *Ledger
	signer  *batch.PrivateKeySigner
	router  *amm.Router
	viewKey []byte
	events  []types.LedgerEvent
	stealth int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer, err := batch.NewPrivateKeySignerFromHex(enclaveKeyHex)
	require.NoError(t, err)
	viewPriv, err := crypto.HexToECDSA(viewingKeyHex)
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		now:     time.Unix(1_700_000_000, 0),
		signer:  signer,
		router:  amm.NewRouter(30),
		viewKey: crypto.FromECDSAPub(&viewPriv.PublicKey),
		stealth: 0x5000,
	}
	_, err = f.router.AddPool(tokenA, tokenB)
	require.NoError(t, err)

	f.ledger = New(owner, signer.Address(),
		WithClock(func() time.Time { return f.now }),
		WithSwapExecutor(f.router),
		WithEventSink(EventSinkFunc(func(ev types.LedgerEvent) { f.events = append(f.events, ev) })),
	)

	pool := amm.PoolAddress(tokenA, tokenB)
	f.mint(tokenA, alice, 1_000)
	f.mint(tokenB, bob, 1_000)
	f.mint(tokenA, pool, 10_000)
	f.mint(tokenB, pool, 10_000)
	return f
}

func (f *fixture) mint(token, to common.Address, amount int64) {
	f.t.Helper()
	require.NoError(f.t, f.ledger.Mint(owner, token, to, big.NewInt(amount)))
}

func (f *fixture) unix() uint64 { return uint64(f.now.Unix()) }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) submit(sender, tokenIn, tokenOut common.Address, amount int64) common.Hash {
	f.t.Helper()
	id, err := f.ledger.SubmitIntent(sender, SubmitIntentParams{
		TokenIn:       tokenIn,
		TokenOut:      tokenOut,
		AmountIn:      big.NewInt(amount),
		ViewingPubKey: f.viewKey,
		Deadline:      f.unix() + 86400,
	})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) nextStealth() common.Address {
	f.stealth++
	return common.BigToAddress(big.NewInt(f.stealth))
}

func (f *fixture) release(intentID common.Hash, token common.Address, amount int64) types.ReleaseDescriptor {
	return types.ReleaseDescriptor{
		Token:          token,
		StealthAddress: f.nextStealth(),
		Amount:         big.NewInt(amount),
		ReleaseTime:    f.unix() + 90,
		EncryptedKey:   []byte{0x01, 0x02},
		IntentID:       intentID,
	}
}

func (f *fixture) sign(c batch.Contents) *types.SettlementBatch {
	f.t.Helper()
	return f.signWith(f.signer, c)
}

func (f *fixture) signWith(signer batch.Signer, c batch.Contents) *types.SettlementBatch {
	f.t.Helper()
	if c.BatchID == (common.Hash{}) {
		id, err := batch.NewBatchID(f.unix(), nil)
		require.NoError(f.t, err)
		c.BatchID = id
	}
	if c.Timestamp == 0 {
		c.Timestamp = f.unix()
	}
	b, err := batch.Assemble(context.Background(), signer, c)
	require.NoError(f.t, err)
	return b
}

// matchBatch builds a valid batch for the given intents the way the enclave
// would, without encryption.
func (f *fixture) matchBatch(intents []types.Intent) *types.SettlementBatch {
	res := matching.Match(intents)
	byID := make(map[common.Hash]types.Intent, len(intents))
	for _, in := range intents {
		byID[in.ID] = in
	}

	c := batch.Contents{InternalMatches: res.InternalMatches}
	for _, m := range res.InternalMatches {
		for _, id := range []common.Hash{m.BuyIntentID, m.SellIntentID} {
			c.Releases = append(c.Releases, f.release(id, byID[id].TokenOut, m.MatchedAmount.Int64()))
		}
	}
	for _, s := range res.AMMSettlements {
		r := f.release(s.IntentID, byID[s.IntentID].TokenOut, s.AmountOut.Int64())
		s.StealthAddress = r.StealthAddress
		c.AMMSettlements = append(c.AMMSettlements, s)
		c.Releases = append(c.Releases, r)
	}
	return f.sign(c)
}

func (f *fixture) eventTypes() []types.EventType {
	out := make([]types.EventType, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

func TestSubmitIntentValidation(t *testing.T) {
	f := newFixture(t)
	valid := func() SubmitIntentParams {
		return SubmitIntentParams{
			TokenIn:       tokenA,
			TokenOut:      tokenB,
			AmountIn:      big.NewInt(10),
			ViewingPubKey: f.viewKey,
			Deadline:      f.unix() + 60,
		}
	}
	offCurve := append([]byte{0x04}, make([]byte, 64)...)
	offCurve[64] = 1

	tests := []struct {
		name   string
		mutate func(p *SubmitIntentParams)
		want   error
	}{
		{"nil amount", func(p *SubmitIntentParams) { p.AmountIn = nil }, ErrInvalidAmount},
		{"zero amount", func(p *SubmitIntentParams) { p.AmountIn = big.NewInt(0) }, ErrInvalidAmount},
		{"negative amount", func(p *SubmitIntentParams) { p.AmountIn = big.NewInt(-1) }, ErrInvalidAmount},
		{"deadline now", func(p *SubmitIntentParams) { p.Deadline = f.unix() }, ErrDeadlinePassed},
		{"short key", func(p *SubmitIntentParams) { p.ViewingPubKey = f.viewKey[:33] }, ErrInvalidViewingKey},
		{"off-curve key", func(p *SubmitIntentParams) { p.ViewingPubKey = offCurve }, ErrInvalidViewingKey},
		{"same token", func(p *SubmitIntentParams) { p.TokenOut = tokenA }, ErrSameToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			_, err := f.ledger.SubmitIntent(alice, p)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}

	assert.Empty(t, f.ledger.PendingIntentIDs())
	assert.Empty(t, f.events)
}

func TestSubmitIntentKeepsArrivalOrder(t *testing.T) {
	f := newFixture(t)
	first := f.submit(alice, tokenA, tokenB, 10)
	second := f.submit(bob, tokenB, tokenA, 10)
	third := f.submit(alice, tokenA, tokenB, 10)

	assert.Equal(t, []common.Hash{first, second, third}, f.ledger.PendingIntentIDs())
	assert.NotEqual(t, first, third, "identical submissions get distinct ids")

	in, err := f.ledger.Intent(second)
	require.NoError(t, err)
	assert.Equal(t, bob, in.Sender)
	assert.Equal(t, types.IntentStatusPending, in.Status)
	assert.Equal(t, f.unix(), in.SubmittedAt)
	assert.False(t, in.Settled)

	require.Len(t, f.events, 3)
	assert.Equal(t, types.EventIntentSubmitted, f.events[0].Type)
	assert.Equal(t, first, f.events[0].Intent.ID)
}

func TestCancelIntent(t *testing.T) {
	f := newFixture(t)
	id := f.submit(alice, tokenA, tokenB, 10)

	err := f.ledger.CancelIntent(bob, id)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindAuthorization, KindOf(err))

	require.ErrorIs(t, f.ledger.CancelIntent(alice, common.HexToHash("0x99")), ErrIntentNotFound)

	require.NoError(t, f.ledger.CancelIntent(alice, id))
	in, err := f.ledger.Intent(id)
	require.NoError(t, err)
	assert.True(t, in.Settled)
	assert.Equal(t, types.IntentStatusCancelled, in.Status)
	assert.Empty(t, f.ledger.PendingIntentIDs())

	err = f.ledger.CancelIntent(alice, id)
	require.ErrorIs(t, err, ErrIntentNotCancellable)
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestSettleInternalMatchAndExecute(t *testing.T) {
	f := newFixture(t)
	buy := f.submit(alice, tokenA, tokenB, 100)
	sell := f.submit(bob, tokenB, tokenA, 60)

	b := f.matchBatch(f.ledger.PendingIntents())
	require.Len(t, b.InternalMatches, 1)
	require.Empty(t, b.AMMSettlements)
	assert.Equal(t, int64(60), b.InternalMatches[0].MatchedAmount.Int64())

	receipt, err := f.ledger.SettleAndQueue(b)
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Matches)
	require.Len(t, receipt.ReleaseIDs, 2)
	assert.True(t, f.ledger.IsBatchProcessed(b.BatchID))
	assert.Empty(t, f.ledger.PendingIntentIDs())

	custody := f.ledger.Custody()
	assert.Equal(t, int64(940), f.ledger.BalanceOf(tokenA, alice).Int64())
	assert.Equal(t, int64(940), f.ledger.BalanceOf(tokenB, bob).Int64())
	assert.Equal(t, int64(60), f.ledger.BalanceOf(tokenA, custody).Int64())
	assert.Equal(t, int64(60), f.ledger.BalanceOf(tokenB, custody).Int64())

	for _, id := range []common.Hash{buy, sell} {
		in, err := f.ledger.Intent(id)
		require.NoError(t, err)
		assert.True(t, in.Settled)
		assert.Equal(t, types.IntentStatusSettled, in.Status)
	}

	assert.ElementsMatch(t, receipt.ReleaseIDs, f.ledger.PendingReleaseIDs())
	assert.Empty(t, f.ledger.ReadyReleaseIDs())

	_, err = f.ledger.ExecuteRelease(receipt.ReleaseIDs[0])
	require.ErrorIs(t, err, ErrReleaseNotReady)
	assert.Equal(t, KindTiming, KindOf(err))

	f.advance(90 * time.Second)
	assert.ElementsMatch(t, receipt.ReleaseIDs, f.ledger.ReadyReleaseIDs())

	for _, id := range receipt.ReleaseIDs {
		r, err := f.ledger.ExecuteRelease(id)
		require.NoError(t, err)
		assert.True(t, r.Executed)
		assert.Equal(t, int64(60), f.ledger.BalanceOf(r.Token, r.StealthAddress).Int64())
	}
	assert.Empty(t, f.ledger.PendingReleaseIDs())
	assert.Zero(t, f.ledger.BalanceOf(tokenA, custody).Sign())
	assert.Zero(t, f.ledger.BalanceOf(tokenB, custody).Sign())

	_, err = f.ledger.ExecuteRelease(receipt.ReleaseIDs[0])
	require.ErrorIs(t, err, ErrReleaseAlreadyExecuted)
	assert.Equal(t, KindReplay, KindOf(err))

	assert.Equal(t, []types.EventType{
		types.EventIntentSubmitted,
		types.EventIntentSubmitted,
		types.EventReleaseQueued,
		types.EventReleaseQueued,
		types.EventBatchSettled,
		types.EventReleaseExecuted,
		types.EventReleaseExecuted,
	}, f.eventTypes())
}

func TestReplayedBatchIsRejected(t *testing.T) {
	f := newFixture(t)
	f.submit(alice, tokenA, tokenB, 100)
	f.submit(bob, tokenB, tokenA, 60)
	b := f.matchBatch(f.ledger.PendingIntents())

	_, err := f.ledger.SettleAndQueue(b)
	require.NoError(t, err)
	before := f.ledger.Stats()
	events := len(f.events)

	_, err = f.ledger.SettleAndQueue(b)
	require.ErrorIs(t, err, ErrBatchAlreadyProcessed)
	assert.Equal(t, KindReplay, KindOf(err))
	assert.Equal(t, before, f.ledger.Stats())
	assert.Len(t, f.events, events)
}

func TestForgedSignatureLeavesIntentsUnsettled(t *testing.T) {
	f := newFixture(t)
	buy := f.submit(alice, tokenA, tokenB, 100)
	sell := f.submit(bob, tokenB, tokenA, 60)
	b := f.matchBatch(f.ledger.PendingIntents())

	intruder, err := batch.NewPrivateKeySignerFromHex(intruderHex)
	require.NoError(t, err)
	forged := f.signWith(intruder, batch.Contents{
		InternalMatches: b.InternalMatches,
		AMMSettlements:  b.AMMSettlements,
		Releases:        b.Releases,
		BatchID:         b.BatchID,
		Timestamp:       b.Timestamp,
	})
	// Claiming the real signer changes nothing; only recovery counts.
	forged.Signer = f.signer.Address()

	_, err = f.ledger.SettleAndQueue(forged)
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, KindIntegrity, KindOf(err))

	for _, id := range []common.Hash{buy, sell} {
		in, err := f.ledger.Intent(id)
		require.NoError(t, err)
		assert.False(t, in.Settled)
	}
	assert.False(t, f.ledger.IsBatchProcessed(b.BatchID))

	tampered := *b
	tampered.Timestamp++
	_, err = f.ledger.SettleAndQueue(&tampered)
	require.ErrorIs(t, err, ErrInvalidSignature)

	// The untouched original still settles.
	_, err = f.ledger.SettleAndQueue(b)
	require.NoError(t, err)
}

func TestReleaseWindowIsEnforced(t *testing.T) {
	for _, tc := range []struct {
		name  string
		delay uint64
		ok    bool
	}{
		{"below minimum", 59, false},
		{"at minimum", 60, true},
		{"at maximum", 180, true},
		{"above maximum", 181, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			buy := f.submit(alice, tokenA, tokenB, 100)
			sell := f.submit(bob, tokenB, tokenA, 60)

			rb := f.release(buy, tokenB, 60)
			rs := f.release(sell, tokenA, 60)
			rb.ReleaseTime = f.unix() + tc.delay
			b := f.sign(batch.Contents{
				InternalMatches: []types.InternalMatch{{BuyIntentID: buy, SellIntentID: sell, MatchedAmount: big.NewInt(60)}},
				Releases:        []types.ReleaseDescriptor{rb, rs},
			})

			_, err := f.ledger.SettleAndQueue(b)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrReleaseOutOfWindow)
			assert.False(t, f.ledger.IsBatchProcessed(b.BatchID))
			assert.Len(t, f.ledger.PendingIntentIDs(), 2)
			assert.Empty(t, f.ledger.PendingReleaseIDs())
			assert.Equal(t, int64(1_000), f.ledger.BalanceOf(tokenA, alice).Int64())
		})
	}
}

func TestAMMSettlementPaysRealizedOutput(t *testing.T) {
	f := newFixture(t)
	id := f.submit(alice, tokenA, tokenB, 100)

	b := f.matchBatch(f.ledger.PendingIntents())
	require.Empty(t, b.InternalMatches)
	require.Len(t, b.AMMSettlements, 1)
	require.Len(t, b.Releases, 1)
	assert.True(t, b.AMMSettlements[0].ZeroForOne)
	assert.Equal(t, tokenB, b.Releases[0].Token)
	assert.Equal(t, int64(100), b.Releases[0].Amount.Int64(), "descriptor carries the provisional amount")

	receipt, err := f.ledger.SettleAndQueue(b)
	require.NoError(t, err)
	require.Len(t, receipt.ReleaseIDs, 1)

	r, err := f.ledger.Release(receipt.ReleaseIDs[0])
	require.NoError(t, err)
	// 10000 * 100*9970 / (10000*10000 + 100*9970)
	assert.Equal(t, int64(98), r.Amount.Int64())
	assert.Equal(t, id, r.IntentID)

	pool := amm.PoolAddress(tokenA, tokenB)
	assert.Equal(t, int64(10_100), f.ledger.BalanceOf(tokenA, pool).Int64())
	assert.Equal(t, int64(9_902), f.ledger.BalanceOf(tokenB, pool).Int64())
	assert.Equal(t, int64(98), f.ledger.BalanceOf(tokenB, f.ledger.Custody()).Int64())

	f.advance(3 * time.Minute)
	_, err = f.ledger.ExecuteRelease(r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(98), f.ledger.BalanceOf(tokenB, r.StealthAddress).Int64())
}

func TestAMMSettlementChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, s *types.AMMSettlement, r *types.ReleaseDescriptor)
		want   error
	}{
		{"direction", func(_ *fixture, s *types.AMMSettlement, _ *types.ReleaseDescriptor) { s.ZeroForOne = false }, ErrDirectionMismatch},
		{"stealth mismatch", func(f *fixture, _ *types.AMMSettlement, r *types.ReleaseDescriptor) { r.StealthAddress = f.nextStealth() }, ErrReleaseMismatch},
		{"wrong token", func(_ *fixture, _ *types.AMMSettlement, r *types.ReleaseDescriptor) { r.Token = tokenA }, ErrReleaseMismatch},
		{"unknown intent", func(_ *fixture, s *types.AMMSettlement, _ *types.ReleaseDescriptor) { s.IntentID = common.HexToHash("0x77") }, ErrIntentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.submit(alice, tokenA, tokenB, 100)
			r := f.release(id, tokenB, 100)
			s := types.AMMSettlement{IntentID: id, StealthAddress: r.StealthAddress, AmountOut: big.NewInt(100), ZeroForOne: true}
			tt.mutate(f, &s, &r)

			b := f.sign(batch.Contents{AMMSettlements: []types.AMMSettlement{s}, Releases: []types.ReleaseDescriptor{r}})
			_, err := f.ledger.SettleAndQueue(b)
			require.ErrorIs(t, err, tt.want)

			in, err := f.ledger.Intent(id)
			require.NoError(t, err)
			assert.False(t, in.Settled)
			assert.Equal(t, int64(10_000), f.ledger.BalanceOf(tokenA, amm.PoolAddress(tokenA, tokenB)).Int64())
		})
	}
}

func TestExpiredIntentCannotSettleViaAMM(t *testing.T) {
	f := newFixture(t)
	id := f.submit(alice, tokenA, tokenB, 100)
	f.advance(25 * time.Hour)

	b := f.matchBatch(f.ledger.PendingIntents())
	_, err := f.ledger.SettleAndQueue(b)
	require.ErrorIs(t, err, ErrIntentExpired)
	var ie *IntentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, id, ie.IntentID)

	in, err := f.ledger.Intent(id)
	require.NoError(t, err)
	assert.False(t, in.Settled)
}

func TestEveryOwedIntentNeedsExactlyOneRelease(t *testing.T) {
	f := newFixture(t)
	buy := f.submit(alice, tokenA, tokenB, 100)
	sell := f.submit(bob, tokenB, tokenA, 60)
	match := []types.InternalMatch{{BuyIntentID: buy, SellIntentID: sell, MatchedAmount: big.NewInt(60)}}

	missing := f.sign(batch.Contents{
		InternalMatches: match,
		Releases:        []types.ReleaseDescriptor{f.release(buy, tokenB, 60)},
	})
	_, err := f.ledger.SettleAndQueue(missing)
	require.ErrorIs(t, err, ErrUnreleasedIntent)

	doubled := f.sign(batch.Contents{
		InternalMatches: match,
		Releases: []types.ReleaseDescriptor{
			f.release(buy, tokenB, 60),
			f.release(sell, tokenA, 60),
			f.release(buy, tokenB, 60),
		},
	})
	_, err = f.ledger.SettleAndQueue(doubled)
	require.ErrorIs(t, err, ErrDuplicateRelease)

	wrongAmount := f.sign(batch.Contents{
		InternalMatches: match,
		Releases:        []types.ReleaseDescriptor{f.release(buy, tokenB, 61), f.release(sell, tokenA, 60)},
	})
	_, err = f.ledger.SettleAndQueue(wrongAmount)
	require.ErrorIs(t, err, ErrReleaseMismatch)

	stranger := f.submit(alice, tokenA, tokenB, 5)
	foreign := f.sign(batch.Contents{
		InternalMatches: match,
		Releases: []types.ReleaseDescriptor{
			f.release(buy, tokenB, 60),
			f.release(sell, tokenA, 60),
			f.release(stranger, tokenB, 5),
		},
	})
	_, err = f.ledger.SettleAndQueue(foreign)
	require.ErrorIs(t, err, ErrReleaseMismatch)

	assert.Len(t, f.ledger.PendingIntentIDs(), 3)
	assert.Empty(t, f.ledger.PendingReleaseIDs())
}

func TestInvalidMatchesAreRejected(t *testing.T) {
	f := newFixture(t)
	buy := f.submit(alice, tokenA, tokenB, 100)
	sell := f.submit(bob, tokenB, tokenA, 60)
	sameSide := f.submit(alice, tokenA, tokenB, 50)

	for name, m := range map[string]types.InternalMatch{
		"swapped sides":    {BuyIntentID: sell, SellIntentID: buy, MatchedAmount: big.NewInt(60)},
		"not mirrored":     {BuyIntentID: buy, SellIntentID: sameSide, MatchedAmount: big.NewInt(50)},
		"over sell amount": {BuyIntentID: buy, SellIntentID: sell, MatchedAmount: big.NewInt(61)},
		"zero amount":      {BuyIntentID: buy, SellIntentID: sell, MatchedAmount: big.NewInt(0)},
		"self match":       {BuyIntentID: buy, SellIntentID: buy, MatchedAmount: big.NewInt(10)},
	} {
		b := f.sign(batch.Contents{InternalMatches: []types.InternalMatch{m}})
		_, err := f.ledger.SettleAndQueue(b)
		require.ErrorIs(t, err, ErrInvalidMatch, name)
	}
	assert.Len(t, f.ledger.PendingIntentIDs(), 3)
}

func TestMidBatchFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	buy := f.submit(alice, tokenA, tokenB, 100)
	sell := f.submit(bob, tokenB, tokenA, 60)
	// carol holds nothing, so pulling her input fails after the match and
	// the first swap have already moved funds.
	carol := common.HexToAddress("0xCA401")
	funded := f.submit(alice, tokenA, tokenB, 40)
	broke := f.submit(carol, tokenA, tokenB, 10)

	before := f.ledger.Stats()
	pending := f.ledger.PendingIntentIDs()
	b := f.matchBatch(f.ledger.PendingIntents())
	require.Len(t, b.AMMSettlements, 2)
	events := len(f.events)

	_, err := f.ledger.SettleAndQueue(b)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	var ie *IntentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, broke, ie.IntentID)

	assert.Equal(t, before, f.ledger.Stats())
	assert.Equal(t, pending, f.ledger.PendingIntentIDs())
	assert.False(t, f.ledger.IsBatchProcessed(b.BatchID))
	assert.Len(t, f.events, events, "rolled back batches emit nothing")

	pool := amm.PoolAddress(tokenA, tokenB)
	assert.Equal(t, int64(1_000), f.ledger.BalanceOf(tokenA, alice).Int64())
	assert.Equal(t, int64(1_000), f.ledger.BalanceOf(tokenB, bob).Int64())
	assert.Equal(t, int64(10_000), f.ledger.BalanceOf(tokenA, pool).Int64())
	assert.Equal(t, int64(10_000), f.ledger.BalanceOf(tokenB, pool).Int64())
	assert.Zero(t, f.ledger.BalanceOf(tokenA, f.ledger.Custody()).Sign())

	for _, id := range []common.Hash{buy, sell, funded, broke} {
		in, err := f.ledger.Intent(id)
		require.NoError(t, err)
		assert.False(t, in.Settled)
		assert.Equal(t, types.IntentStatusPending, in.Status)
	}

	// Once carol is out of the way the same intents settle.
	require.NoError(t, f.ledger.CancelIntent(carol, broke))
	_, err = f.ledger.SettleAndQueue(f.matchBatch(f.ledger.PendingIntents()))
	require.NoError(t, err)
}

func TestSettledIsMonotone(t *testing.T) {
	f := newFixture(t)
	f.mint(tokenA, alice, 1_000_000)
	f.mint(tokenB, bob, 1_000_000)
	f.mint(tokenA, amm.PoolAddress(tokenA, tokenB), 1_000_000)
	f.mint(tokenB, amm.PoolAddress(tokenA, tokenB), 1_000_000)

	rng := rand.New(rand.NewSource(7))
	settled := make(map[common.Hash]bool)
	var all []common.Hash

	for step := 0; step < 300; step++ {
		switch op := rng.Intn(5); op {
		case 0, 1:
			if rng.Intn(2) == 0 {
				all = append(all, f.submit(alice, tokenA, tokenB, int64(10+rng.Intn(50))))
			} else {
				all = append(all, f.submit(bob, tokenB, tokenA, int64(10+rng.Intn(50))))
			}
		case 2:
			if len(all) > 0 {
				id := all[rng.Intn(len(all))]
				in, err := f.ledger.Intent(id)
				require.NoError(t, err)
				_ = f.ledger.CancelIntent(in.Sender, id)
			}
		case 3:
			if pending := f.ledger.PendingIntents(); len(pending) > 0 {
				_, err := f.ledger.SettleAndQueue(f.matchBatch(pending))
				require.NoError(t, err, "step %d", step)
			}
		case 4:
			f.advance(time.Duration(rng.Intn(120)) * time.Second)
			for _, id := range f.ledger.ReadyReleaseIDs() {
				_, err := f.ledger.ExecuteRelease(id)
				require.NoError(t, err)
			}
		}

		for _, id := range all {
			in, err := f.ledger.Intent(id)
			require.NoError(t, err)
			if settled[id] {
				require.True(t, in.Settled, "intent %s unsettled at step %d", id.Hex(), step)
			}
			settled[id] = in.Settled
		}
	}
}

func TestEnclaveSignerRotation(t *testing.T) {
	f := newFixture(t)
	intruder, err := batch.NewPrivateKeySignerFromHex(intruderHex)
	require.NoError(t, err)

	err = f.ledger.SetEnclaveSigner(alice, intruder.Address())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, f.ledger.SetEnclaveSigner(owner, common.Address{}), ErrZeroAddress)
	assert.Equal(t, f.signer.Address(), f.ledger.EnclaveSigner())

	require.NoError(t, f.ledger.SetEnclaveSigner(owner, intruder.Address()))
	assert.Equal(t, intruder.Address(), f.ledger.EnclaveSigner())

	f.submit(alice, tokenA, tokenB, 100)
	_, err = f.ledger.SettleAndQueue(f.matchBatch(f.ledger.PendingIntents()))
	require.ErrorIs(t, err, ErrInvalidSignature, "the previous signer is no longer trusted")
}

func TestMintRequiresOwner(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.ledger.Mint(alice, tokenA, alice, big.NewInt(1)), ErrUnauthorized)
	require.ErrorIs(t, f.ledger.Mint(owner, tokenA, alice, big.NewInt(0)), ErrInvalidAmount)
	assert.Equal(t, int64(1_000), f.ledger.BalanceOf(tokenA, alice).Int64())
}

func TestSettleableIntents(t *testing.T) {
	f := newFixture(t)
	carol := common.HexToAddress("0xCA401")
	first := f.submit(alice, tokenA, tokenB, 600)
	f.submit(alice, tokenA, tokenB, 500) // 1100 > alice's 1000
	f.submit(carol, tokenA, tokenB, 10)
	sell := f.submit(bob, tokenB, tokenA, 60)
	_, err := f.ledger.SubmitIntent(bob, SubmitIntentParams{
		TokenIn:       tokenB,
		TokenOut:      tokenA,
		AmountIn:      big.NewInt(5),
		ViewingPubKey: f.viewKey,
		Deadline:      f.unix() + 60,
	})
	require.NoError(t, err)
	f.advance(time.Minute)

	ids := func(intents []types.Intent) []common.Hash {
		out := make([]common.Hash, 0, len(intents))
		for _, in := range intents {
			out = append(out, in.ID)
		}
		return out
	}
	assert.Len(t, f.ledger.PendingIntentIDs(), 5)
	assert.Equal(t, []common.Hash{first, sell}, ids(f.ledger.SettleableIntents(0)))
	assert.Equal(t, []common.Hash{first}, ids(f.ledger.SettleableIntents(1)))

	_, err = f.ledger.SettleAndQueue(f.matchBatch(f.ledger.SettleableIntents(0)))
	require.NoError(t, err)
	// alice has 400 left, still short of the 500 intent.
	assert.Empty(t, f.ledger.SettleableIntents(0))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(assert.AnError))
	assert.Equal(t, KindReplay, KindOf(ErrBatchAlreadyProcessed))
	assert.Equal(t, "integrity", KindOf(ErrInvalidSignature).String())
	assert.Equal(t, KindReplay, KindOf(&IntentError{Err: ErrBatchAlreadyProcessed}))
}
