package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// TimelineRepository держит историю продаж в памяти, упорядоченной по времени.
type TimelineRepository struct {
	mu     sync.RWMutex
	bySale map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт пустой журнал.
func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{bySale: make(map[string][]domain.TimelineEvent)}
}

// Append вставляет событие после всех событий с тем же или более ранним временем.
func (r *TimelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.bySale[event.SaleID]
	pos := sort.Search(len(history), func(i int) bool {
		return history[i].Occurred.After(event.Occurred)
	})
	history = append(history, domain.TimelineEvent{})
	copy(history[pos+1:], history[pos:])
	history[pos] = event
	r.bySale[event.SaleID] = history
	return nil
}

func (r *TimelineRepository) List(_ context.Context, saleID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.TimelineEvent{}, r.bySale[saleID]...), nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
