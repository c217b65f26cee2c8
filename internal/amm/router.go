// Package amm is the automated-market-maker execution primitive used for
// intents the matcher could not pair. Pools are constant-product curves whose
// reserves are balances held by the pool address in the caller's bank, so a
// swap rolls back together with the bank it ran against.
package amm

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"stealth-backend/internal/types"
)

const bpsDenominator = 10_000

var (
	ErrNoPool            = errors.New("amm: no pool for pair")
	ErrPoolExists        = errors.New("amm: pool already exists")
	ErrNoLiquidity       = errors.New("amm: insufficient liquidity")
	ErrDirectionMismatch = errors.New("amm: zeroForOne does not match token order")
	ErrInvalidAmount     = errors.New("amm: amount must be positive")
)

// Bank moves token balances. The ledger passes its journaled bank.
type Bank interface {
	BalanceOf(token, account common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
}

// Pool is a constant-product pool over an ordered token pair.
type Pool struct {
	Token0  common.Address `json:"token0"`
	Token1  common.Address `json:"token1"`
	Address common.Address `json:"address"`
}

// Router holds pools keyed by ordered pair.
type Router struct {
	mu     sync.RWMutex
	pools  map[[2]common.Address]*Pool
	feeBps uint64
}

// NewRouter creates a Router charging feeBps on the input amount.
func NewRouter(feeBps uint64) *Router {
	return &Router{pools: make(map[[2]common.Address]*Pool), feeBps: feeBps}
}

func orderPair(a, b common.Address) [2]common.Address {
	if types.AddressLess(a, b) {
		return [2]common.Address{a, b}
	}
	return [2]common.Address{b, a}
}

// PoolAddress is the deterministic reserve holder of a pair.
func PoolAddress(tokenA, tokenB common.Address) common.Address {
	p := orderPair(tokenA, tokenB)
	return common.BytesToAddress(crypto.Keccak256([]byte("amm-pool"), p[0].Bytes(), p[1].Bytes()))
}

// AddPool registers a pool for the pair.
func (r *Router) AddPool(tokenA, tokenB common.Address) (*Pool, error) {
	if tokenA == tokenB {
		return nil, fmt.Errorf("amm: pool tokens must differ")
	}
	key := orderPair(tokenA, tokenB)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[key]; ok {
		return nil, ErrPoolExists
	}
	p := &Pool{Token0: key[0], Token1: key[1], Address: PoolAddress(tokenA, tokenB)}
	r.pools[key] = p
	return p, nil
}

// Pool returns the pool for the pair.
func (r *Router) Pool(tokenA, tokenB common.Address) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[orderPair(tokenA, tokenB)]
	return p, ok
}

// Quote returns the output of swapping amountIn against current reserves.
func (r *Router) Quote(bank Bank, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	p, ok := r.Pool(tokenIn, tokenOut)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoPool, tokenIn.Hex(), tokenOut.Hex())
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn := bank.BalanceOf(tokenIn, p.Address)
	reserveOut := bank.BalanceOf(tokenOut, p.Address)
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrNoLiquidity
	}

	inWithFee := new(big.Int).Mul(amountIn, new(big.Int).SetUint64(bpsDenominator-r.feeBps))
	num := new(big.Int).Mul(reserveOut, inWithFee)
	den := new(big.Int).Mul(reserveIn, big.NewInt(bpsDenominator))
	den.Add(den, inWithFee)
	out := num.Div(num, den)
	if out.Sign() == 0 {
		return nil, ErrNoLiquidity
	}
	return out, nil
}

// Swap moves amountIn from trader into the pool and the curve output back to
// trader, returning the realized output.
func (r *Router) Swap(bank Bank, trader, tokenIn, tokenOut common.Address, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if zeroForOne != types.AddressLess(tokenIn, tokenOut) {
		return nil, ErrDirectionMismatch
	}
	out, err := r.Quote(bank, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	p, _ := r.Pool(tokenIn, tokenOut)

	if err := bank.Transfer(tokenIn, trader, p.Address, amountIn); err != nil {
		return nil, err
	}
	if err := bank.Transfer(tokenOut, p.Address, trader, out); err != nil {
		return nil, err
	}
	return out, nil
}
