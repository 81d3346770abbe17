package notification

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDispatcherDeliversToStore(t *testing.T) {
	store := NewInMemoryStore()
	d := NewChannelDispatcher(store, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	d.Dispatch(ctx, Notification{
		RecipientID: "donor-1",
		Type:        TypeDonationMatch,
		Title:       "You've been matched",
	})

	require.Eventually(t, func() bool {
		got, err := store.ListByRecipient(context.Background(), "donor-1", false)
		return err == nil && len(got) == 1
	}, time.Second, 5*time.Millisecond)

	got, err := store.ListByRecipient(context.Background(), "donor-1", false)
	require.NoError(t, err)
	require.Equal(t, TypeDonationMatch, got[0].Type)
	require.NotEmpty(t, got[0].ID)
	require.False(t, got[0].ExpiresAt.IsZero())

	cancel()
	<-done
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	store := NewInMemoryStore()
	d := NewChannelDispatcher(store, discardLogger(), WithQueueSize(1))

	// No Run loop draining, so the second Dispatch must drop, not block.
	ctx := context.Background()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		d.Dispatch(ctx, Notification{RecipientID: "a", Type: TypeDonationMatch})
		d.Dispatch(ctx, Notification{RecipientID: "b", Type: TypeDonationMatch})
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on full queue")
	}
}

func TestMarkReadUnknownID(t *testing.T) {
	svc := NewService(NewInMemoryStore(), discardLogger())
	err := svc.MarkRead(context.Background(), "nope", "donor-1")
	require.Error(t, err)
}
