package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"stealth-backend/internal/metrics"
	"stealth-backend/internal/models"
	"stealth-backend/internal/repository"
	"stealth-backend/internal/types"
)

const indexerQueueSize = 1024

// LedgerIndexer mirrors committed ledger events into Postgres for history
// queries. Events are persisted in dispatch order by a single worker; the
// ledger itself remains the source of truth.
type LedgerIndexer struct {
	intents  repository.IntentRepository
	releases repository.ReleaseRepository
	batches  repository.BatchRepository
	events   repository.EventRepository
	log      logrus.FieldLogger

	queue  chan types.LedgerEvent
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewLedgerIndexer creates an indexer over the given repositories.
func NewLedgerIndexer(
	intents repository.IntentRepository,
	releases repository.ReleaseRepository,
	batches repository.BatchRepository,
	events repository.EventRepository,
) *LedgerIndexer {
	return &LedgerIndexer{
		intents:  intents,
		releases: releases,
		batches:  batches,
		events:   events,
		log:      logrus.WithField("component", "indexer"),
		queue:    make(chan types.LedgerEvent, indexerQueueSize),
	}
}

// Start launches the persistence worker.
func (x *LedgerIndexer) Start() {
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		for ev := range x.queue {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := x.Index(ctx, ev); err != nil {
				metrics.IndexerWriteFailures.WithLabelValues(string(ev.Type)).Inc()
				x.log.WithError(err).WithFields(logrus.Fields{
					"event_id": ev.ID,
					"type":     ev.Type,
				}).Error("❌ Failed to index ledger event")
			}
			cancel()
		}
	}()
	x.log.Info("✅ Ledger indexer started")
}

// Stop drains the queue and waits for the worker. Events handed over after
// Stop are dropped.
func (x *LedgerIndexer) Stop() {
	x.mu.Lock()
	if !x.closed {
		x.closed = true
		close(x.queue)
	}
	x.mu.Unlock()
	x.wg.Wait()
}

// HandleLedgerEvent queues ev for persistence. It blocks when the queue is
// full so that no event is dropped while the indexer runs.
func (x *LedgerIndexer) HandleLedgerEvent(ev types.LedgerEvent) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		x.log.WithFields(logrus.Fields{
			"event_id": ev.ID,
			"type":     ev.Type,
		}).Warn("⚠️ Indexer stopped, event not persisted")
		return
	}
	x.queue <- ev
}

// Index persists one event and the record it concerns.
func (x *LedgerIndexer) Index(ctx context.Context, ev types.LedgerEvent) error {
	rec, err := models.NewLedgerEventRecord(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := x.events.Append(ctx, rec); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	switch ev.Type {
	case types.EventIntentSubmitted, types.EventIntentCancelled:
		if ev.Intent == nil {
			return fmt.Errorf("%s event without intent", ev.Type)
		}
		return x.intents.Upsert(ctx, models.NewIntentRecord(ev.Intent))

	case types.EventBatchSettled:
		if ev.Batch == nil {
			return fmt.Errorf("%s event without batch", ev.Type)
		}
		rec := models.NewBatchRecord(ev.Batch, ev.Timestamp)
		if err := x.batches.Create(ctx, rec); err != nil {
			return fmt.Errorf("create batch record: %w", err)
		}
		return x.intents.MarkSettled(ctx, rec.IntentIDs, rec.BatchID, rec.SettledAt)

	case types.EventReleaseQueued:
		if ev.Release == nil {
			return fmt.Errorf("%s event without release", ev.Type)
		}
		return x.releases.Create(ctx, models.NewReleaseRecord(ev.Release))

	case types.EventReleaseExecuted:
		if ev.Release == nil {
			return fmt.Errorf("%s event without release", ev.Type)
		}
		return x.releases.MarkExecuted(ctx, ev.Release.ID.Hex(), time.Unix(int64(ev.Release.ExecutedAt), 0).UTC())
	}
	return nil
}
