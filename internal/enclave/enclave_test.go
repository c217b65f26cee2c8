package enclave

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealth-backend/internal/amm"
	"stealth-backend/internal/batch"
	"stealth-backend/internal/ledger"
	"stealth-backend/internal/stealth"
	"stealth-backend/internal/types"
)

const (
	enclaveKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	viewingKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

var (
	owner  = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice  = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob    = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

type harness struct {
	now      time.Time
	enclave  *Enclave
	ledger   *ledger.Ledger
	viewPriv *ecdsa.PrivateKey
	viewKey  []byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signer, err := batch.NewPrivateKeySignerFromHex(enclaveKeyHex)
	require.NoError(t, err)
	viewPriv, err := crypto.HexToECDSA(viewingKeyHex)
	require.NoError(t, err)

	h := &harness{
		now:      time.Unix(1_700_000_000, 0),
		viewPriv: viewPriv,
		viewKey:  crypto.FromECDSAPub(&viewPriv.PublicKey),
	}
	clock := func() time.Time { return h.now }

	h.enclave, err = New(signer, DefaultConfig(), WithClock(clock))
	require.NoError(t, err)

	router := amm.NewRouter(30)
	_, err = router.AddPool(tokenA, tokenB)
	require.NoError(t, err)
	h.ledger = ledger.New(owner, signer.Address(), ledger.WithClock(clock), ledger.WithSwapExecutor(router))

	pool := amm.PoolAddress(tokenA, tokenB)
	for _, m := range []struct {
		token, to common.Address
		amount    int64
	}{
		{tokenA, alice, 1_000}, {tokenB, bob, 1_000}, {tokenA, pool, 10_000}, {tokenB, pool, 10_000},
	} {
		require.NoError(t, h.ledger.Mint(owner, m.token, m.to, big.NewInt(m.amount)))
	}
	return h
}

func (h *harness) submit(t *testing.T, sender, tokenIn, tokenOut common.Address, amount int64) common.Hash {
	t.Helper()
	id, err := h.ledger.SubmitIntent(sender, ledger.SubmitIntentParams{
		TokenIn:       tokenIn,
		TokenOut:      tokenOut,
		AmountIn:      big.NewInt(amount),
		ViewingPubKey: h.viewKey,
		Deadline:      uint64(h.now.Unix()) + 3600,
	})
	require.NoError(t, err)
	return id
}

func (h *harness) assertWindow(t *testing.T, b *types.SettlementBatch) {
	t.Helper()
	now := uint64(h.now.Unix())
	for _, r := range b.Releases {
		assert.GreaterOrEqual(t, r.ReleaseTime, now+75)
		assert.LessOrEqual(t, r.ReleaseTime, now+180)
	}
}

func (h *harness) assertKeysRecover(t *testing.T, b *types.SettlementBatch) {
	t.Helper()
	for _, r := range b.Releases {
		key, err := stealth.RecoverStealthKey(h.viewPriv, r.EncryptedKey)
		require.NoError(t, err)
		assert.Equal(t, r.StealthAddress, crypto.PubkeyToAddress(key.PublicKey))
	}
}

func TestProcessMatchedPair(t *testing.T) {
	h := newHarness(t)
	buy := h.submit(t, alice, tokenA, tokenB, 100)
	sell := h.submit(t, bob, tokenB, tokenA, 60)

	b, err := h.enclave.Process(context.Background(), h.ledger.PendingIntents())
	require.NoError(t, err)

	require.Len(t, b.InternalMatches, 1)
	assert.Empty(t, b.AMMSettlements)
	assert.Equal(t, buy, b.InternalMatches[0].BuyIntentID)
	assert.Equal(t, sell, b.InternalMatches[0].SellIntentID)
	assert.Equal(t, int64(60), b.InternalMatches[0].MatchedAmount.Int64())

	require.Len(t, b.Releases, 2)
	assert.Equal(t, buy, b.Releases[0].IntentID)
	assert.Equal(t, tokenB, b.Releases[0].Token)
	assert.Equal(t, sell, b.Releases[1].IntentID)
	assert.Equal(t, tokenA, b.Releases[1].Token)
	assert.NotEqual(t, b.Releases[0].StealthAddress, b.Releases[1].StealthAddress)
	h.assertWindow(t, b)
	h.assertKeysRecover(t, b)

	signer, err := batch.RecoverSigner(b)
	require.NoError(t, err)
	assert.Equal(t, h.enclave.Signer(), signer)
	assert.Equal(t, signer, b.Signer)

	receipt, err := h.ledger.SettleAndQueue(b)
	require.NoError(t, err)
	assert.Len(t, receipt.ReleaseIDs, 2)
	assert.Empty(t, h.ledger.PendingIntentIDs())
}

func TestProcessUnmatchedIntentGoesToAMM(t *testing.T) {
	h := newHarness(t)
	id := h.submit(t, bob, tokenB, tokenA, 50)

	b, err := h.enclave.Process(context.Background(), h.ledger.PendingIntents())
	require.NoError(t, err)

	assert.Empty(t, b.InternalMatches)
	require.Len(t, b.AMMSettlements, 1)
	require.Len(t, b.Releases, 1)
	s, r := b.AMMSettlements[0], b.Releases[0]
	assert.Equal(t, id, s.IntentID)
	assert.False(t, s.ZeroForOne)
	assert.Equal(t, tokenA, r.Token)
	assert.Equal(t, s.StealthAddress, r.StealthAddress)
	h.assertWindow(t, b)
	h.assertKeysRecover(t, b)

	receipt, err := h.ledger.SettleAndQueue(b)
	require.NoError(t, err)
	rel, err := h.ledger.Release(receipt.ReleaseIDs[0])
	require.NoError(t, err)
	assert.Positive(t, rel.Amount.Sign())
	assert.Less(t, rel.Amount.Int64(), int64(50), "fee and curve reduce the output")
}

func TestProcessSkipsInvalidIntents(t *testing.T) {
	h := newHarness(t)
	h.submit(t, alice, tokenA, tokenB, 100)
	intents := h.ledger.PendingIntents()

	bad := intents[0]
	bad.ID = common.HexToHash("0xbad")
	bad.ViewingPubKey = bad.ViewingPubKey[:64]
	dup := intents[0]
	zero := intents[0]
	zero.ID = common.HexToHash("0x0")
	zero.AmountIn = big.NewInt(0)

	b, err := h.enclave.Process(context.Background(), append(intents, bad, dup, zero))
	require.NoError(t, err)
	require.Len(t, b.AMMSettlements, 1)
	assert.Equal(t, intents[0].ID, b.AMMSettlements[0].IntentID)

	_, err = h.enclave.Process(context.Background(), []types.Intent{bad, zero})
	require.ErrorIs(t, err, ErrNoIntents)
	_, err = h.enclave.Process(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoIntents)
}

func TestProcessSkipsExpiredIntents(t *testing.T) {
	h := newHarness(t)
	buy := h.submit(t, alice, tokenA, tokenB, 100)
	h.submit(t, bob, tokenB, tokenA, 60)
	intents := h.ledger.PendingIntents()

	stale := intents[1]
	stale.Deadline = uint64(h.now.Unix())

	b, err := h.enclave.Process(context.Background(), []types.Intent{intents[0], stale})
	require.NoError(t, err)
	assert.Empty(t, b.InternalMatches)
	require.Len(t, b.AMMSettlements, 1)
	assert.Equal(t, buy, b.AMMSettlements[0].IntentID)

	_, err = h.ledger.SettleAndQueue(b)
	require.NoError(t, err)

	_, err = h.enclave.Process(context.Background(), []types.Intent{stale})
	require.ErrorIs(t, err, ErrNoIntents)
}

func TestProcessProducesFreshBatches(t *testing.T) {
	h := newHarness(t)
	h.submit(t, alice, tokenA, tokenB, 100)
	intents := h.ledger.PendingIntents()

	first, err := h.enclave.Process(context.Background(), intents)
	require.NoError(t, err)
	second, err := h.enclave.Process(context.Background(), intents)
	require.NoError(t, err)

	assert.NotEqual(t, first.BatchID, second.BatchID)
	assert.NotEqual(t, first.Releases[0].StealthAddress, second.Releases[0].StealthAddress)

	_, err = h.ledger.SettleAndQueue(first)
	require.NoError(t, err)
	_, err = h.ledger.SettleAndQueue(second)
	require.ErrorIs(t, err, ledger.ErrIntentAlreadySettled)
}

func TestNewRejectsEmptyWindow(t *testing.T) {
	signer, err := batch.NewPrivateKeySignerFromHex(enclaveKeyHex)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.SubmissionSlack = 2 * time.Minute
	_, err = New(signer, cfg)
	require.ErrorIs(t, err, ErrInvalidWindow)

	cfg = DefaultConfig()
	cfg.Workers = 0
	e, err := New(signer, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, e.cfg.Workers)
}
