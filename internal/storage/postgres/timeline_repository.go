package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// TimelineRepository пишет историю продажи в timeline_events.
type TimelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт журнал событий поверх открытого Store.
func NewTimelineRepository(store *Store) *TimelineRepository {
	return &TimelineRepository{db: store.DB()}
}

func (r *TimelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_events (sale_id, type, reason, occurred) VALUES ($1, $2, $3, $4)`,
		event.SaleID, event.Type, event.Reason, occurred,
	)
	if err != nil {
		return fmt.Errorf("append %s to timeline of %s: %w", event.Type, event.SaleID, err)
	}
	return nil
}

// List возвращает события продажи от старых к новым. id разрешает совпадения по времени.
func (r *TimelineRepository) List(ctx context.Context, saleID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT sale_id, type, reason, occurred
		FROM timeline_events
		WHERE sale_id = $1
		ORDER BY occurred, id`, saleID)
	if err != nil {
		return nil, fmt.Errorf("query timeline of %s: %w", saleID, err)
	}
	defer rows.Close()

	var history []domain.TimelineEvent
	for rows.Next() {
		var ev domain.TimelineEvent
		if err := rows.Scan(&ev.SaleID, &ev.Type, &ev.Reason, &ev.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		ev.Occurred = ev.Occurred.UTC()
		history = append(history, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timeline of %s: %w", saleID, err)
	}
	if history == nil {
		history = []domain.TimelineEvent{}
	}
	return history, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
