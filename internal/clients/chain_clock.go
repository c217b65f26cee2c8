package clients

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

type headerSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ChainClock follows the timestamp of the latest block so the ledger's notion
// of "now" matches the chain it mirrors. Until the first head is fetched it
// reports wall-clock time. Reported time never goes backwards.
type ChainClock struct {
	src      headerSource
	client   *ethclient.Client
	interval time.Duration
	wall     func() time.Time

	mu   sync.RWMutex
	last time.Time
	log  logrus.FieldLogger
}

// DialChainClock connects to rpcURL.
func DialChainClock(ctx context.Context, rpcURL string, interval time.Duration) (*ChainClock, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain RPC: %w", err)
	}
	c := newChainClock(client, interval)
	c.client = client
	return c, nil
}

func newChainClock(src headerSource, interval time.Duration) *ChainClock {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &ChainClock{
		src:      src,
		interval: interval,
		wall:     time.Now,
		log:      logrus.WithField("component", "chain-clock"),
	}
}

// Now returns the latest observed block time.
func (c *ChainClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last.IsZero() {
		return c.wall()
	}
	return c.last
}

// Refresh fetches the chain head once.
func (c *ChainClock) Refresh(ctx context.Context) error {
	head, err := c.src.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("fetch chain head: %w", err)
	}
	t := time.Unix(int64(head.Time), 0)

	c.mu.Lock()
	if t.After(c.last) {
		c.last = t
	}
	c.mu.Unlock()
	return nil
}

// Run refreshes on every interval until ctx is done.
func (c *ChainClock) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.log.WithError(err).Warn("⚠️ Initial chain head fetch failed, using wall clock")
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.log.WithError(err).Debug("Chain head refresh failed")
			}
		}
	}
}

// Close releases the RPC connection.
func (c *ChainClock) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
