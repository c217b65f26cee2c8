package services

import (
	"stealth-backend/internal/ledger"
	"stealth-backend/internal/metrics"
	"stealth-backend/internal/types"
)

// MetricsService keeps the ledger gauges and event counters current.
type MetricsService struct {
	ledger *ledger.Ledger
}

// NewMetricsService creates a MetricsService and seeds the gauges.
func NewMetricsService(l *ledger.Ledger) *MetricsService {
	s := &MetricsService{ledger: l}
	s.refresh()
	return s
}

// HandleLedgerEvent counts ev and refreshes the pending gauges.
func (s *MetricsService) HandleLedgerEvent(ev types.LedgerEvent) {
	metrics.LedgerEvents.WithLabelValues(string(ev.Type)).Inc()
	s.refresh()
}

func (s *MetricsService) refresh() {
	st := s.ledger.Stats()
	metrics.PendingIntents.Set(float64(st.PendingIntents))
	metrics.PendingReleases.Set(float64(st.PendingReleases))
}
