package request

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lifelink/pkg/platform/sentinel"
)

func TestInMemoryStoreCAS(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	req := &BloodRequest{
		ID:            "req-1",
		RequesterID:   "u-1",
		BloodType:     "A+",
		UnitsRequired: 1,
		Status:        StatusPending,
		IsActive:      true,
		ExpiryDate:    time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Save(ctx, req))

	a, err := store.FindByID(ctx, "req-1")
	require.NoError(t, err)
	b, err := store.FindByID(ctx, "req-1")
	require.NoError(t, err)

	a.FulfilledUnits = 1
	require.NoError(t, store.Update(ctx, a))
	require.Equal(t, int64(1), a.Version)

	// b still holds version 0 and must lose.
	b.Status = StatusCancelled
	require.ErrorIs(t, store.Update(ctx, b), sentinel.ErrConflict)

	got, err := store.FindByID(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, 1, got.FulfilledUnits)
	require.Equal(t, StatusPending, got.Status)
}

func TestInMemoryStoreUpdateMissing(t *testing.T) {
	store := NewInMemoryStore()
	err := store.Update(context.Background(), &BloodRequest{ID: "ghost"})
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
