package mockvendor

import (
	"sync"
	"time"
)

// Stats tracks delivery statistics in a thread-safe manner.
type Stats struct {
	mu                   sync.RWMutex
	totalDeliveries      int64
	deliveriesByMethod   map[string]int64
	duplicatesDetected   int64
	lastDeliveryAt       time.Time
}

// NewStats returns a new Stats instance ready for use.
func NewStats() *Stats {
	return &Stats{deliveriesByMethod: make(map[string]int64)}
}

// Record records one incoming delivery attempt by HTTP method.
func (s *Stats) Record(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalDeliveries++
	s.deliveriesByMethod[method]++
	s.lastDeliveryAt = time.Now()
}

// RecordDuplicate increments the duplicate-detection counter.
func (s *Stats) RecordDuplicate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.duplicatesDetected++
}

// StatsResponse is the JSON-serialisable snapshot of current statistics.
type StatsResponse struct {
	TotalDeliveries    int64            `json:"total_deliveries"`
	DeliveriesByMethod map[string]int64 `json:"deliveries_by_method"`
	DuplicatesDetected int64            `json:"duplicates_detected"`
	LastDeliveryAt     string           `json:"last_delivery_at"`
}

// Snapshot returns a point-in-time copy of the current statistics.
func (s *Stats) Snapshot() StatsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMethod := make(map[string]int64, len(s.deliveriesByMethod))
	for k, v := range s.deliveriesByMethod {
		byMethod[k] = v
	}

	var ts string
	if !s.lastDeliveryAt.IsZero() {
		ts = s.lastDeliveryAt.Format(time.RFC3339)
	}

	return StatsResponse{
		TotalDeliveries:    s.totalDeliveries,
		DeliveriesByMethod: byMethod,
		DuplicatesDetected: s.duplicatesDetected,
		LastDeliveryAt:     ts,
	}
}
