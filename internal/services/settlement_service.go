package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/enclave"
	"stealth-backend/internal/ledger"
	"stealth-backend/internal/metrics"
	"stealth-backend/internal/types"
)

// ErrRelayBusy is returned by TriggerNow while another submission is in flight.
var ErrRelayBusy = errors.New("relay: a batch submission is already in flight")

// Batch outcomes, used as metric labels and in RelayStatus.
const (
	ResultSettled  = "settled"
	ResultEmpty    = "empty"
	ResultReplay   = "replay"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// RelayConfig controls the settlement loop.
type RelayConfig struct {
	Interval     time.Duration
	MaxBatchSize int
	Timeout      time.Duration
	// Quarantine is how long an intent that made the ledger reject a batch
	// is left out of later batches.
	Quarantine time.Duration
}

// maxCycleAttempts bounds how often one cycle recomputes after the ledger
// blames a single intent for a rejected batch.
const maxCycleAttempts = 3

// RelayStatus is a snapshot of the relay for operators.
type RelayStatus struct {
	Running        bool      `json:"running"`
	Interval       string    `json:"interval"`
	LastRunAt      time.Time `json:"last_run_at,omitempty"`
	LastResult     string    `json:"last_result,omitempty"`
	LastBatchID    string    `json:"last_batch_id,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	BatchesSettled uint64    `json:"batches_settled"`
	SkippedTicks   uint64    `json:"skipped_ticks"`
	Quarantined    int       `json:"quarantined"`
}

// SettlementService periodically sends pending intents to the enclave and
// submits the signed batch to the ledger. At most one submission is in flight;
// a tick that finds one running is skipped. Only intents the ledger could
// settle right now are sent. When the ledger still rejects a batch because of
// one intent, that intent is quarantined and the batch is recomputed without it.
type SettlementService struct {
	ledger   *ledger.Ledger
	computer enclave.Computer
	cfg      RelayConfig
	log      logrus.FieldLogger

	inFlight   sync.Mutex
	quarantine map[common.Hash]time.Time // guarded by inFlight
	stopChan   chan struct{}
	wg         sync.WaitGroup

	statusMu sync.RWMutex
	status   RelayStatus
}

// NewSettlementService creates the relay.
func NewSettlementService(l *ledger.Ledger, computer enclave.Computer, cfg RelayConfig) *SettlementService {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Quarantine <= 0 {
		cfg.Quarantine = 10 * cfg.Interval
	}
	return &SettlementService{
		ledger:     l,
		computer:   computer,
		cfg:        cfg,
		log:        logrus.WithField("component", "relay"),
		quarantine: make(map[common.Hash]time.Time),
		stopChan:   make(chan struct{}),
		status:     RelayStatus{Interval: cfg.Interval.String()},
	}
}

// Start begins the settlement loop.
func (s *SettlementService) Start() {
	s.log.WithFields(logrus.Fields{
		"interval":       s.cfg.Interval,
		"max_batch_size": s.cfg.MaxBatchSize,
	}).Info("🚀 Settlement relay starting")

	s.statusMu.Lock()
	s.status.Running = true
	s.statusMu.Unlock()

	s.wg.Add(1)
	go s.run()
}

// Stop ends the loop and waits for an in-flight submission to finish.
func (s *SettlementService) Stop() {
	s.log.Info("🛑 Stopping settlement relay...")
	close(s.stopChan)
	s.wg.Wait()

	s.statusMu.Lock()
	s.status.Running = false
	s.statusMu.Unlock()
	s.log.Info("✅ Settlement relay stopped")
}

func (s *SettlementService) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopChan:
			return
		}
	}
}

func (s *SettlementService) tick() {
	if !s.inFlight.TryLock() {
		metrics.RelaySkippedTicks.Inc()
		s.statusMu.Lock()
		s.status.SkippedTicks++
		s.statusMu.Unlock()
		s.log.Debug("⏭️ Submission in flight, skipping tick")
		return
	}
	defer s.inFlight.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	_, _ = s.runCycle(ctx)
}

// TriggerNow runs one cycle immediately. It does not wait for an in-flight
// submission and returns ErrRelayBusy instead.
func (s *SettlementService) TriggerNow(ctx context.Context) (*ledger.Receipt, error) {
	if !s.inFlight.TryLock() {
		return nil, ErrRelayBusy
	}
	defer s.inFlight.Unlock()
	return s.runCycle(ctx)
}

// runCycle must be called with inFlight held. A nil receipt with a nil error
// means there was nothing to settle.
func (s *SettlementService) runCycle(ctx context.Context) (*ledger.Receipt, error) {
	started := time.Now()
	s.releaseQuarantine(started)

	var lastErr error
	for attempt := 1; attempt <= maxCycleAttempts; attempt++ {
		intents := s.candidates()
		if len(intents) == 0 {
			if lastErr != nil {
				return nil, lastErr
			}
			s.record(ResultEmpty, "", nil)
			return nil, nil
		}

		b, err := s.computer.Process(ctx, intents)
		if errors.Is(err, enclave.ErrNoIntents) {
			s.log.WithField("pending", len(intents)).Debug("No settleable intents in this round")
			s.record(ResultEmpty, "", nil)
			return nil, nil
		}
		if err != nil {
			s.log.WithError(err).Warn("⚠️ Enclave batch computation failed")
			s.record(ResultFailed, "", err)
			return nil, err
		}

		fields := logrus.Fields{"batch_id": b.BatchID.Hex(), "intents": len(b.IntentIDs()), "attempt": attempt}
		receipt, err := s.ledger.SettleAndQueue(b)
		if err == nil {
			metrics.BatchDuration.Observe(time.Since(started).Seconds())
			s.log.WithFields(fields).WithFields(logrus.Fields{
				"matches":     receipt.Matches,
				"settlements": receipt.Settlements,
				"releases":    len(receipt.ReleaseIDs),
			}).Info("✅ Relay submitted batch")
			s.record(ResultSettled, b.BatchID.Hex(), nil)
			return receipt, nil
		}

		switch ledger.KindOf(err) {
		case ledger.KindReplay:
			s.log.WithFields(fields).WithError(err).Info("🔁 Batch already processed, discarding")
			s.record(ResultReplay, b.BatchID.Hex(), err)
			return nil, err
		case ledger.KindIntegrity:
			metrics.SignatureRejections.Inc()
			s.log.WithFields(fields).WithError(err).Error("❌ Batch signature rejected by ledger")
			s.record(ResultRejected, b.BatchID.Hex(), err)
			return nil, err
		}

		s.record(ResultFailed, b.BatchID.Hex(), err)
		lastErr = err
		var ie *ledger.IntentError
		if !errors.As(err, &ie) {
			s.log.WithFields(fields).WithError(err).Warn("⚠️ Batch rejected by ledger, will recompute next tick")
			return nil, err
		}
		s.quarantineIntent(ie.IntentID, started)
		s.log.WithFields(fields).WithError(err).WithField("intent_id", ie.IntentID.Hex()).
			Warn("⚠️ Batch rejected by ledger, quarantining intent and recomputing")
	}
	return nil, lastErr
}

// candidates returns the settleable intents not in quarantine, capped at
// MaxBatchSize.
func (s *SettlementService) candidates() []types.Intent {
	settleable := s.ledger.SettleableIntents(0)
	out := settleable[:0]
	for _, in := range settleable {
		if _, held := s.quarantine[in.ID]; held {
			continue
		}
		out = append(out, in)
		if s.cfg.MaxBatchSize > 0 && len(out) == s.cfg.MaxBatchSize {
			break
		}
	}
	return out
}

func (s *SettlementService) quarantineIntent(id common.Hash, now time.Time) {
	s.quarantine[id] = now.Add(s.cfg.Quarantine)
	s.statusMu.Lock()
	s.status.Quarantined = len(s.quarantine)
	s.statusMu.Unlock()
}

func (s *SettlementService) releaseQuarantine(now time.Time) {
	for id, until := range s.quarantine {
		if !now.Before(until) {
			delete(s.quarantine, id)
		}
	}
	s.statusMu.Lock()
	s.status.Quarantined = len(s.quarantine)
	s.statusMu.Unlock()
}

func (s *SettlementService) record(result, batchID string, err error) {
	metrics.SettlementBatches.WithLabelValues(result).Inc()

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.LastRunAt = time.Now().UTC()
	s.status.LastResult = result
	s.status.LastBatchID = batchID
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	if result == ResultSettled {
		s.status.BatchesSettled++
	}
}

// Status returns a snapshot of the relay.
func (s *SettlementService) Status() RelayStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}
