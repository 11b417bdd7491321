package worker

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository/memory"
	"github.com/jwalitptl/clinic-records/internal/service/event"
	"github.com/jwalitptl/clinic-records/pkg/logger"
)

func TestCleanupDeletesOnlyOldProcessedEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := memory.NewOutboxRepository(store)

	for i := 0; i < 3; i++ {
		evt, err := event.New(model.EventBillingCreated, map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, evt))
	}
	events := store.Events()
	require.NoError(t, repo.MarkProcessed(ctx, events[0].ID))
	require.NoError(t, repo.MarkFailed(ctx, events[1].ID, "broker down"))

	w := NewOutboxCleanupWorker(repo, time.Hour, logger.Nop())

	deleted, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	w.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	deleted, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	left := store.Events()
	require.Len(t, left, 2)
	assert.Equal(t, model.OutboxStatusFailed, left[0].Status)
	assert.Equal(t, model.OutboxStatusPending, left[1].Status)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	w := NewOutboxCleanupWorker(memory.NewOutboxRepository(memory.NewStore()), time.Hour, logger.Nop())
	c := cron.New()
	assert.Error(t, w.Schedule(c, "every tuesday"))
	assert.NoError(t, w.Schedule(c, "0 3 * * *"))
	assert.Len(t, c.Entries(), 1)
}
