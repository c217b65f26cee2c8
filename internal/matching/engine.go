// Package matching pairs compatible intents peer to peer and routes the
// remainder to the AMM.
//
// Match is a pure function of its ordered input. The same slice always yields
// the same result, which is what makes the enclave signature over a batch an
// attestation of what was computed.
package matching

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stealth-backend/internal/types"
)

// Result is the outcome of one matching pass.
type Result struct {
	InternalMatches []types.InternalMatch
	AMMSettlements  []types.AMMSettlement
}

// SettledCount is the number of intents the result settles.
func (r *Result) SettledCount() int {
	return 2*len(r.InternalMatches) + len(r.AMMSettlements)
}

type pairKey struct {
	lo, hi common.Address
}

func keyOf(in *types.Intent) pairKey {
	if types.AddressLess(in.TokenIn, in.TokenOut) {
		return pairKey{lo: in.TokenIn, hi: in.TokenOut}
	}
	return pairKey{lo: in.TokenOut, hi: in.TokenIn}
}

type group struct {
	buys  []int
	sells []int
}

// Match groups intents by unordered token pair, pairs buys with sells FIFO at
// min(amountIn), and turns every unmatched intent into an AMM settlement with
// a provisional amountOut equal to amountIn and no stealth address.
//
// Groups are visited in order of first appearance. Unmatched intents keep
// their input order.
func Match(intents []types.Intent) Result {
	groups := make(map[pairKey]*group)
	order := make([]pairKey, 0)

	for i := range intents {
		k := keyOf(&intents[i])
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			order = append(order, k)
		}
		if intents[i].IsBuy() {
			g.buys = append(g.buys, i)
		} else {
			g.sells = append(g.sells, i)
		}
	}

	matched := make([]bool, len(intents))
	var res Result

	for _, k := range order {
		g := groups[k]
		n := len(g.buys)
		if len(g.sells) < n {
			n = len(g.sells)
		}
		for j := 0; j < n; j++ {
			buy, sell := &intents[g.buys[j]], &intents[g.sells[j]]
			amount := minBig(buy.AmountIn, sell.AmountIn)
			res.InternalMatches = append(res.InternalMatches, types.InternalMatch{
				BuyIntentID:   buy.ID,
				SellIntentID:  sell.ID,
				MatchedAmount: amount,
			})
			matched[g.buys[j]] = true
			matched[g.sells[j]] = true
		}
	}

	for i := range intents {
		if matched[i] {
			continue
		}
		in := &intents[i]
		res.AMMSettlements = append(res.AMMSettlements, types.AMMSettlement{
			IntentID:   in.ID,
			AmountOut:  new(big.Int).Set(in.AmountIn),
			ZeroForOne: in.IsBuy(),
		})
	}

	return res
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
