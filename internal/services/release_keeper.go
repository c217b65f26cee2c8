package services

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"stealth-backend/internal/ledger"
	"stealth-backend/internal/metrics"
)

// ReleaseKeeper executes matured releases. ExecuteRelease is permissionless,
// so other callers may race the keeper; losing that race is not an error.
type ReleaseKeeper struct {
	ledger   *ledger.Ledger
	interval time.Duration
	log      logrus.FieldLogger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewReleaseKeeper creates a keeper polling every interval.
func NewReleaseKeeper(l *ledger.Ledger, interval time.Duration) *ReleaseKeeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ReleaseKeeper{
		ledger:   l,
		interval: interval,
		log:      logrus.WithField("component", "keeper"),
		stopChan: make(chan struct{}),
	}
}

func (k *ReleaseKeeper) Start() {
	k.log.WithField("interval", k.interval).Info("🚀 Release keeper starting")
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				k.RunOnce()
			case <-k.stopChan:
				return
			}
		}
	}()
}

func (k *ReleaseKeeper) Stop() {
	close(k.stopChan)
	k.wg.Wait()
	k.log.Info("✅ Release keeper stopped")
}

// RunOnce executes every ready release and returns how many it paid.
func (k *ReleaseKeeper) RunOnce() int {
	executed := 0
	for _, id := range k.ledger.ReadyReleaseIDs() {
		_, err := k.ledger.ExecuteRelease(id)
		switch {
		case err == nil:
			executed++
			metrics.ReleasesExecuted.WithLabelValues("executed").Inc()
		case errors.Is(err, ledger.ErrReleaseAlreadyExecuted), errors.Is(err, ledger.ErrReleaseNotReady):
			metrics.ReleasesExecuted.WithLabelValues("skipped").Inc()
		default:
			metrics.ReleasesExecuted.WithLabelValues("failed").Inc()
			k.log.WithError(err).WithField("release_id", id.Hex()).Error("❌ Release execution failed")
		}
	}
	if executed > 0 {
		k.log.WithField("executed", executed).Info("💸 Keeper executed releases")
	}
	return executed
}
