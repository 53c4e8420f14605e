package webhooks

import (
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/chartpay/pkg/billing"
)

// DeliveryStatus represents the status of a webhook delivery
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// DeliveryLog tracks one event sent to one endpoint across its attempts.
type DeliveryLog struct {
	ID           string            `json:"id"`
	EventID      string            `json:"event_id"`
	EventType    billing.EventType `json:"event_type"`
	URL          string            `json:"url"`
	Status       DeliveryStatus    `json:"status"`
	StatusCode   int               `json:"status_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Attempts     int               `json:"attempts"`
	NextRetryAt  *time.Time        `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Duration     time.Duration     `json:"duration,omitempty"`
}

// DeliveryLogStore keeps the most recent delivery logs in memory.
type DeliveryLogStore struct {
	mutex   sync.RWMutex
	logs    map[string]*DeliveryLog
	order   []string
	maxLogs int
}

// NewDeliveryLogStore creates a new delivery log store
func NewDeliveryLogStore(maxLogs int) *DeliveryLogStore {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &DeliveryLogStore{
		logs:    make(map[string]*DeliveryLog),
		maxLogs: maxLogs,
	}
}

// Add stores log, evicting the oldest entry once the store is full.
func (s *DeliveryLogStore) Add(log DeliveryLog) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.order) >= s.maxLogs {
		delete(s.logs, s.order[0])
		s.order = s.order[1:]
	}
	s.logs[log.ID] = &log
	s.order = append(s.order, log.ID)
}

// Update applies fn to the stored log. Evicted logs are ignored.
func (s *DeliveryLogStore) Update(id string, fn func(*DeliveryLog)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if log, ok := s.logs[id]; ok {
		fn(log)
	}
}

// Get retrieves a copy of a delivery log by ID
func (s *DeliveryLogStore) Get(id string) (DeliveryLog, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	log, ok := s.logs[id]
	if !ok {
		return DeliveryLog{}, false
	}
	return *log, true
}

// Recent returns copies of the newest logs first.
func (s *DeliveryLogStore) Recent(limit int) []DeliveryLog {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]DeliveryLog, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.logs[s.order[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// GetByEvent retrieves delivery logs for an event, ordered by endpoint URL.
func (s *DeliveryLogStore) GetByEvent(eventID string) []DeliveryLog {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []DeliveryLog
	for _, log := range s.logs {
		if log.EventID == eventID {
			result = append(result, *log)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].URL < result[j].URL })
	return result
}

// DeliveryStats summarizes the logs currently held.
type DeliveryStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	Retrying    int     `json:"retrying"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// Stats returns delivery statistics across all endpoints.
func (s *DeliveryLogStore) Stats() DeliveryStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var stats DeliveryStats
	for _, log := range s.logs {
		stats.Total++
		switch log.Status {
		case DeliveryStatusSuccess:
			stats.Successful++
		case DeliveryStatusFailed:
			stats.Failed++
		case DeliveryStatusRetrying:
			stats.Retrying++
		default:
			stats.Pending++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats
}
