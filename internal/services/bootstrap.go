package services

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/amm"
	"stealth-backend/internal/config"
	"stealth-backend/internal/ledger"
)

// Bootstrap creates the configured AMM pools and mints their reserves and the
// configured account balances. Only the ledger owner may mint, so it runs
// as owner.
func Bootstrap(l *ledger.Ledger, router *amm.Router, cfg config.Config) error {
	owner := l.Owner()

	for i, p := range cfg.AMM.Pools {
		tokenA, err := parseAddress(p.TokenA)
		if err != nil {
			return fmt.Errorf("amm.pools[%d].tokenA: %w", i, err)
		}
		tokenB, err := parseAddress(p.TokenB)
		if err != nil {
			return fmt.Errorf("amm.pools[%d].tokenB: %w", i, err)
		}
		pool, err := router.AddPool(tokenA, tokenB)
		if err != nil && !errors.Is(err, amm.ErrPoolExists) {
			return fmt.Errorf("amm.pools[%d]: %w", i, err)
		}
		if pool == nil {
			pool, _ = router.Pool(tokenA, tokenB)
		}

		for _, r := range []struct {
			token  common.Address
			amount string
		}{{tokenA, p.ReserveA}, {tokenB, p.ReserveB}} {
			if r.amount == "" {
				continue
			}
			amount, err := parseAmount(r.amount)
			if err != nil {
				return fmt.Errorf("amm.pools[%d] reserve: %w", i, err)
			}
			if err := l.Mint(owner, r.token, pool.Address, amount); err != nil {
				return fmt.Errorf("seed pool %s: %w", pool.Address.Hex(), err)
			}
		}
		logrus.WithFields(logrus.Fields{
			"pool":   pool.Address.Hex(),
			"token0": pool.Token0.Hex(),
			"token1": pool.Token1.Hex(),
		}).Info("🏊 AMM pool ready")
	}

	for i, b := range cfg.Bootstrap.Balances {
		token, err := parseAddress(b.Token)
		if err != nil {
			return fmt.Errorf("bootstrap.balances[%d].token: %w", i, err)
		}
		account, err := parseAddress(b.Account)
		if err != nil {
			return fmt.Errorf("bootstrap.balances[%d].account: %w", i, err)
		}
		amount, err := parseAmount(b.Amount)
		if err != nil {
			return fmt.Errorf("bootstrap.balances[%d].amount: %w", i, err)
		}
		if err := l.Mint(owner, token, account, amount); err != nil {
			return fmt.Errorf("mint balance for %s: %w", account.Hex(), err)
		}
	}
	if n := len(cfg.Bootstrap.Balances); n > 0 {
		logrus.WithField("balances", n).Info("✅ Bootstrap balances minted")
	}
	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
