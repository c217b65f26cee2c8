package matching

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealth-backend/internal/types"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tokenC = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func intent(seq int, in, out common.Address, amount int64) types.Intent {
	return types.Intent{
		ID:       crypto.Keccak256Hash(big.NewInt(int64(seq)).Bytes()),
		Sender:   common.BigToAddress(big.NewInt(int64(1000 + seq))),
		TokenIn:  in,
		TokenOut: out,
		AmountIn: big.NewInt(amount),
	}
}

func TestMatchOppositeSidesAtMinimum(t *testing.T) {
	buy := intent(1, tokenA, tokenB, 100)
	sell := intent(2, tokenB, tokenA, 60)

	res := Match([]types.Intent{buy, sell})

	require.Len(t, res.InternalMatches, 1)
	assert.Empty(t, res.AMMSettlements)
	m := res.InternalMatches[0]
	assert.Equal(t, buy.ID, m.BuyIntentID)
	assert.Equal(t, sell.ID, m.SellIntentID)
	assert.Equal(t, int64(60), m.MatchedAmount.Int64())
	assert.Equal(t, 2, res.SettledCount())
}

func TestMatchSellBeforeBuyStillLabelsByAddressOrder(t *testing.T) {
	sell := intent(1, tokenB, tokenA, 40)
	buy := intent(2, tokenA, tokenB, 70)

	res := Match([]types.Intent{sell, buy})

	require.Len(t, res.InternalMatches, 1)
	assert.Equal(t, buy.ID, res.InternalMatches[0].BuyIntentID)
	assert.Equal(t, sell.ID, res.InternalMatches[0].SellIntentID)
	assert.Equal(t, int64(40), res.InternalMatches[0].MatchedAmount.Int64())
}

func TestUnmatchedIntentRoutesToAMM(t *testing.T) {
	only := intent(1, tokenB, tokenA, 25)

	res := Match([]types.Intent{only})

	assert.Empty(t, res.InternalMatches)
	require.Len(t, res.AMMSettlements, 1)
	s := res.AMMSettlements[0]
	assert.Equal(t, only.ID, s.IntentID)
	assert.Equal(t, common.Address{}, s.StealthAddress)
	assert.Equal(t, int64(25), s.AmountOut.Int64())
	assert.False(t, s.ZeroForOne)

	// provisional amount must not alias the intent
	s.AmountOut.SetInt64(1)
	assert.Equal(t, int64(25), only.AmountIn.Int64())
}

func TestFIFOPairingWithinGroup(t *testing.T) {
	b1 := intent(1, tokenA, tokenB, 10)
	b2 := intent(2, tokenA, tokenB, 20)
	s1 := intent(3, tokenB, tokenA, 30)
	b3 := intent(4, tokenA, tokenB, 5)

	res := Match([]types.Intent{b1, b2, s1, b3})

	require.Len(t, res.InternalMatches, 1)
	assert.Equal(t, b1.ID, res.InternalMatches[0].BuyIntentID)
	assert.Equal(t, int64(10), res.InternalMatches[0].MatchedAmount.Int64())

	require.Len(t, res.AMMSettlements, 2)
	assert.Equal(t, b2.ID, res.AMMSettlements[0].IntentID)
	assert.Equal(t, b3.ID, res.AMMSettlements[1].IntentID)
	assert.True(t, res.AMMSettlements[0].ZeroForOne)
}

func TestPairsAreIndependent(t *testing.T) {
	ab := intent(1, tokenA, tokenB, 10)
	ca := intent(2, tokenC, tokenA, 10)
	ba := intent(3, tokenB, tokenA, 10)

	res := Match([]types.Intent{ab, ca, ba})

	require.Len(t, res.InternalMatches, 1)
	assert.Equal(t, ab.ID, res.InternalMatches[0].BuyIntentID)
	assert.Equal(t, ba.ID, res.InternalMatches[0].SellIntentID)
	require.Len(t, res.AMMSettlements, 1)
	assert.Equal(t, ca.ID, res.AMMSettlements[0].IntentID)
}

func TestMatchIsDeterministic(t *testing.T) {
	var intents []types.Intent
	tokens := []common.Address{tokenA, tokenB, tokenC}
	for i := 0; i < 30; i++ {
		in := tokens[i%3]
		out := tokens[(i*7+1)%3]
		if in == out {
			out = tokens[(i+1)%3]
		}
		intents = append(intents, intent(i, in, out, int64(5+i*3)))
	}

	first := Match(intents)
	second := Match(intents)

	assert.Equal(t, first, second)
	assert.Equal(t, len(intents), first.SettledCount())
}

func TestEmptyInput(t *testing.T) {
	res := Match(nil)
	assert.Empty(t, res.InternalMatches)
	assert.Empty(t, res.AMMSettlements)
}
