// Package enclave is the trusted batch computation: it matches pending
// intents, wraps one stealth key per settled intent, schedules the releases
// and signs the resulting batch. Stealth private keys exist only inside
// Process and leave it encrypted to the intent's viewing key.
package enclave

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stealth-backend/internal/batch"
	"stealth-backend/internal/matching"
	"stealth-backend/internal/stealth"
	"stealth-backend/internal/types"
)

var (
	ErrNoIntents     = errors.New("enclave: no settleable intents")
	ErrInvalidWindow = errors.New("enclave: release delay window is empty")
)

// Computer turns pending intents into a signed settlement batch. *Enclave
// computes locally; clients.EnclaveClient calls a remote enclave.
type Computer interface {
	Process(ctx context.Context, intents []types.Intent) (*types.SettlementBatch, error)
}

// Config bounds release scheduling and wrapping parallelism.
type Config struct {
	MinDelay        time.Duration
	MaxDelay        time.Duration
	SubmissionSlack time.Duration
	Workers         int
}

// DefaultConfig matches the ledger defaults.
func DefaultConfig() Config {
	return Config{
		MinDelay:        60 * time.Second,
		MaxDelay:        180 * time.Second,
		SubmissionSlack: 15 * time.Second,
		Workers:         4,
	}
}

// Enclave implements Computer.
type Enclave struct {
	signer batch.Signer
	cfg    Config
	clock  func() time.Time
	rand   io.Reader
	log    logrus.FieldLogger
}

// Option configures an Enclave.
type Option func(*Enclave)

func WithClock(clock func() time.Time) Option {
	return func(e *Enclave) { e.clock = clock }
}

// WithRandom replaces crypto/rand for keys, delays and batch ids.
func WithRandom(r io.Reader) Option {
	return func(e *Enclave) { e.rand = r }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Enclave) { e.log = log }
}

// New creates an Enclave signing with signer.
func New(signer batch.Signer, cfg Config, opts ...Option) (*Enclave, error) {
	if cfg.MinDelay+cfg.SubmissionSlack > cfg.MaxDelay {
		return nil, fmt.Errorf("%w: min %s + slack %s > max %s",
			ErrInvalidWindow, cfg.MinDelay, cfg.SubmissionSlack, cfg.MaxDelay)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	e := &Enclave{
		signer: signer,
		cfg:    cfg,
		clock:  time.Now,
		rand:   rand.Reader,
		log:    logrus.WithField("component", "enclave"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Signer returns the address batches are signed with.
func (e *Enclave) Signer() common.Address { return e.signer.Address() }

// wrapJob is one stealth key to generate, in release order.
type wrapJob struct {
	intent  *types.Intent
	token   common.Address
	amount  *big.Int
	wrapped *stealth.Wrapped
}

// Process matches intents and returns a signed batch.
func (e *Enclave) Process(ctx context.Context, intents []types.Intent) (*types.SettlementBatch, error) {
	valid := e.filter(intents)
	if len(valid) == 0 {
		return nil, ErrNoIntents
	}

	res := matching.Match(valid)
	byID := make(map[common.Hash]*types.Intent, len(valid))
	for i := range valid {
		byID[valid[i].ID] = &valid[i]
	}

	jobs := make([]*wrapJob, 0, res.SettledCount())
	for _, m := range res.InternalMatches {
		for _, id := range []common.Hash{m.BuyIntentID, m.SellIntentID} {
			in := byID[id]
			jobs = append(jobs, &wrapJob{intent: in, token: in.TokenOut, amount: m.MatchedAmount})
		}
	}
	for _, s := range res.AMMSettlements {
		in := byID[s.IntentID]
		jobs = append(jobs, &wrapJob{intent: in, token: in.TokenOut, amount: s.AmountOut})
	}

	if err := e.wrapAll(ctx, jobs); err != nil {
		return nil, err
	}

	now := uint64(e.clock().Unix())
	releases := make([]types.ReleaseDescriptor, len(jobs))
	for i, j := range jobs {
		delay, err := e.releaseDelay()
		if err != nil {
			return nil, err
		}
		releases[i] = types.ReleaseDescriptor{
			Token:          j.token,
			StealthAddress: j.wrapped.StealthAddress,
			Amount:         new(big.Int).Set(j.amount),
			ReleaseTime:    now + delay,
			EncryptedKey:   j.wrapped.EncryptedKey,
			IntentID:       j.intent.ID,
		}
	}

	matched := 2 * len(res.InternalMatches)
	for i := range res.AMMSettlements {
		res.AMMSettlements[i].StealthAddress = jobs[matched+i].wrapped.StealthAddress
	}

	batchID, err := batch.NewBatchID(now, e.rand)
	if err != nil {
		return nil, err
	}
	b, err := batch.Assemble(ctx, e.signer, batch.Contents{
		InternalMatches: res.InternalMatches,
		AMMSettlements:  res.AMMSettlements,
		Releases:        releases,
		BatchID:         batchID,
		Timestamp:       now,
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"batch_id":    batchID.Hex(),
		"intents":     len(valid),
		"matches":     len(res.InternalMatches),
		"settlements": len(res.AMMSettlements),
	}).Info("🔐 Batch computed")
	return b, nil
}

// filter drops intents that cannot settle. A bad intent never blocks the rest.
func (e *Enclave) filter(intents []types.Intent) []types.Intent {
	now := uint64(e.clock().Unix())
	seen := make(map[common.Hash]struct{}, len(intents))
	out := make([]types.Intent, 0, len(intents))
	for _, in := range intents {
		reason := ""
		switch {
		case in.AmountIn == nil || in.AmountIn.Sign() <= 0:
			reason = "non-positive amount"
		case in.TokenIn == in.TokenOut:
			reason = "same token"
		case in.Deadline <= now:
			reason = "expired"
		case stealth.ValidateViewingKey(in.ViewingPubKey) != nil:
			reason = "invalid viewing key"
		}
		if _, dup := seen[in.ID]; dup {
			reason = "duplicate id"
		}
		if reason != "" {
			e.log.WithField("intent_id", in.ID.Hex()).Warnf("⚠️ Skipping intent: %s", reason)
			continue
		}
		seen[in.ID] = struct{}{}
		out = append(out, *in.Clone())
	}
	return out
}

func (e *Enclave) wrapAll(ctx context.Context, jobs []*wrapJob) error {
	wrapper := stealth.NewWrapper(e.rand)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			w, err := wrapper.Wrap(j.intent.ViewingPubKey)
			if err != nil {
				return fmt.Errorf("enclave: wrap key for %s: %w", j.intent.ID.Hex(), err)
			}
			j.wrapped = w
			return nil
		})
	}
	return g.Wait()
}

// releaseDelay draws seconds uniformly from [MinDelay+SubmissionSlack, MaxDelay].
func (e *Enclave) releaseDelay() (uint64, error) {
	lo := uint64((e.cfg.MinDelay + e.cfg.SubmissionSlack) / time.Second)
	hi := uint64(e.cfg.MaxDelay / time.Second)
	n, err := rand.Int(e.rand, new(big.Int).SetUint64(hi-lo+1))
	if err != nil {
		return 0, fmt.Errorf("enclave: draw release delay: %w", err)
	}
	return lo + n.Uint64(), nil
}
