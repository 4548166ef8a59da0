package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
)

// manualClock двигается только вручную.
type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClockedRepo() (*memory.IdempotencyRepository, *manualClock) {
	clock := &manualClock{now: time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)}
	return memory.NewIdempotencyRepository(memory.WithIdempotencyClock(clock.Now)), clock
}

func TestIdempotencyRepository_Lifecycle(t *testing.T) {
	repo, clock := newClockedRepo()
	ctx := context.Background()
	ttl := clock.now.Add(2 * time.Hour)

	created, err := repo.CreateProcessing(ctx, "sale-create-1", "hash-1", ttl)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, created.Status)
	assert.Equal(t, clock.now, created.CreatedAt)

	require.NoError(t, repo.MarkDone(ctx, "sale-create-1", []byte(`{"sale_number":"S-1"}`), 201))

	got, err := repo.Get(ctx, "sale-create-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.RequestHash)
	assert.Equal(t, domain.IdempotencyStatusDone, got.Status)
	assert.Equal(t, 201, got.HTTPStatus)
	assert.True(t, got.TTLAt.Equal(ttl))

	// копия не связана с хранилищем
	got.ResponseBody[0] = 'X'
	again, err := repo.Get(ctx, "sale-create-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sale_number":"S-1"}`, string(again.ResponseBody))
}

func TestIdempotencyRepository_Conflicts(t *testing.T) {
	repo, clock := newClockedRepo()
	ctx := context.Background()
	ttl := clock.now.Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "sale-cancel-1", "hash-a", ttl)
	require.NoError(t, err)

	tests := []struct {
		name string
		hash string
		want error
	}{
		{name: "same request in flight", hash: "hash-a", want: domain.ErrIdempotencyKeyAlreadyExists},
		{name: "other request", hash: "hash-b", want: domain.ErrIdempotencyHashMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current, err := repo.CreateProcessing(ctx, "sale-cancel-1", tt.hash, ttl)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, "hash-a", current.RequestHash)
		})
	}
}

func TestIdempotencyRepository_ExpiredKeyIsReclaimed(t *testing.T) {
	repo, clock := newClockedRepo()
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "sale-update-1", "hash-old", clock.now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone(ctx, "sale-update-1", []byte(`{}`), 200))

	_, err = repo.CreateProcessing(ctx, "sale-update-1", "hash-new", clock.now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	clock.Advance(time.Minute)
	record, err := repo.CreateProcessing(ctx, "sale-update-1", "hash-new", clock.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "hash-new", record.RequestHash)
	assert.Equal(t, domain.IdempotencyStatusProcessing, record.Status)
	assert.Empty(t, record.ResponseBody)
}

func TestIdempotencyRepository_DeleteExpired(t *testing.T) {
	repo, clock := newClockedRepo()
	ctx := context.Background()
	now := clock.now

	for key, ttl := range map[string]time.Time{
		"k-1":    now.Add(-3 * time.Hour),
		"k-2":    now.Add(-2 * time.Hour),
		"k-3":    now.Add(-time.Hour),
		"active": now.Add(time.Hour),
	} {
		_, err := repo.CreateProcessing(ctx, key, "hash", ttl)
		require.NoError(t, err, key)
	}

	removed, err := repo.DeleteExpired(ctx, time.Time{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	_, err = repo.Get(ctx, "k-3")
	assert.NoError(t, err, "newest expired key must survive the first batch")
	assert.Equal(t, 2, repo.Len())

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "k-1")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get(ctx, "active")
	assert.NoError(t, err)
}

func TestIdempotencyRepository_BlankInput(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "  ", "hash", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, "key", " ", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 500), domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get(ctx, "")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)

	record, err := repo.CreateProcessing(ctx, " key ", "hash", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "key", record.Key)
	assert.Equal(t, domain.DefaultIdempotencyTTL, record.TTLAt.Sub(record.CreatedAt))
}
