package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
)

func TestBunOutboxRepository(t *testing.T) {
	db := setupTestDB(t)
	orgs := NewBunOrganizationRepository(db)
	outbox := NewBunOutboxRepository(db, 0)
	ctx := context.Background()

	require.NoError(t, orgs.Add(ctx, newAcme(t, "Acme", "u1")))

	pending, err := outbox.ListPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, outbox.MarkDispatched(ctx, []string{pending[0].ID}))
	require.NoError(t, outbox.MarkDispatched(ctx, nil))
	require.NoError(t, outbox.MarkFailed(ctx, pending[1].ID, errors.New("subscriber down")))

	remaining, err := outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 4)
	failed := remaining[len(remaining)-1]
	assert.Equal(t, pending[1].ID, failed.ID, "failed event is retried after fresh ones")
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, "subscriber down", failed.LastError)
	for _, row := range remaining[:len(remaining)-1] {
		assert.Zero(t, row.Attempts)
	}

	var dispatched models.OutboxEvent
	require.NoError(t, db.NewSelect().Model(&dispatched).Where("oe.id = ?", pending[0].ID).Scan(ctx))
	require.NotNil(t, dispatched.DispatchedAt)
	assert.Equal(t, 1, dispatched.Attempts)
}

func TestBunOutboxRepository_StopsAfterMaxAttempts(t *testing.T) {
	db := setupTestDB(t)
	orgs := NewBunOrganizationRepository(db)
	outbox := NewBunOutboxRepository(db, 2)
	ctx := context.Background()

	require.NoError(t, orgs.Add(ctx, newAcme(t, "Acme", "u1")))
	all, err := outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	stuck := all[0].ID

	require.NoError(t, outbox.MarkFailed(ctx, stuck, errors.New("boom")))
	head, err := outbox.ListPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, head, 1)
	assert.NotEqual(t, stuck, head[0].ID)

	require.NoError(t, outbox.MarkFailed(ctx, stuck, errors.New("boom")))
	remaining, err := outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, len(all)-1)
	for _, row := range remaining {
		assert.NotEqual(t, stuck, row.ID)
	}
}
