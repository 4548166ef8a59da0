package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

func saleEvent(saleID, eventType string) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: domain.AggregateTypeSale,
		AggregateID:   saleID,
		EventType:     eventType,
		Payload:       []byte(`{"id":"` + saleID + `"}`),
	}
}

func TestOutboxRepository_PostgresDrainsInEnqueueOrder(t *testing.T) {
	repo := NewOutboxRepository(migratedTestStore(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)

	var ids []string
	for i, event := range []string{domain.EventSaleCreated, domain.EventSaleModified, domain.EventSaleCancelled} {
		msg := saleEvent("sale-1", event)
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		stored, err := repo.Enqueue(ctx, msg)
		require.NoError(t, err)
		require.NotEmpty(t, stored.ID)
		ids = append(ids, stored.ID)
	}

	fixed := saleEvent("sale-2", domain.EventSaleCreated)
	fixed.ID = "outbox-fixed-id"
	fixed.CreatedAt = base.Add(time.Hour)
	stored, err := repo.Enqueue(ctx, fixed)
	require.NoError(t, err)
	assert.Equal(t, "outbox-fixed-id", stored.ID)

	first, err := repo.PullPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ids[:2], []string{first[0].ID, first[1].ID})
	assert.Equal(t, domain.EventSaleCreated, first[0].EventType)
	assert.JSONEq(t, `{"id":"sale-1"}`, string(first[0].Payload))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.Equal(base), "oldest: want %s, got %s", base, stats.OldestPendingAt)

	require.NoError(t, repo.MarkSent(ctx, ids[0]))
	require.NoError(t, repo.MarkFailed(ctx, ids[1]))

	rest, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, ids[2], rest[0].ID)
	assert.Equal(t, "outbox-fixed-id", rest[1].ID)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.Equal(base.Add(2*time.Second)))

	// отправленное сообщение повторно не переводится
	assert.ErrorIs(t, repo.MarkSent(ctx, ids[0]), domain.ErrOutboxPublish)
}

func TestOutboxRepository_PostgresEmptyQueue(t *testing.T) {
	repo := NewOutboxRepository(migratedTestStore(t))
	ctx := context.Background()

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.IsZero())

	assert.ErrorIs(t, repo.MarkSent(ctx, "missing-outbox"), domain.ErrOutboxPublish)
	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing-outbox"), domain.ErrOutboxPublish)
}
