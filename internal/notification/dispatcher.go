package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Dispatcher is what lifecycle services call after a transition commits.
// Implementations must not block the caller and must not surface delivery
// failures to it.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// Publisher forwards a persisted notification to an external channel such
// as Kafka. Optional; a nil publisher means in-app only.
type Publisher interface {
	Publish(ctx context.Context, n *Notification)
}

// ChannelDispatcher buffers notifications on a channel drained by Run.
// Enqueue is non-blocking: when the buffer is full the notification is
// dropped and logged rather than stalling a fulfillment.
type ChannelDispatcher struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	queue     chan Notification
}

type DispatcherOption func(*ChannelDispatcher)

func WithPublisher(p Publisher) DispatcherOption {
	return func(d *ChannelDispatcher) { d.publisher = p }
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *ChannelDispatcher) { d.queue = make(chan Notification, n) }
}

func NewChannelDispatcher(store Store, logger *slog.Logger, opts ...DispatcherOption) *ChannelDispatcher {
	d := &ChannelDispatcher{
		store:  store,
		logger: logger,
		queue:  make(chan Notification, 256),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *ChannelDispatcher) Dispatch(ctx context.Context, n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.ExpiresAt.IsZero() {
		n.ExpiresAt = n.CreatedAt.Add(DefaultTTL)
	}
	select {
	case d.queue <- n:
	default:
		d.logger.WarnContext(ctx, "notification queue full, dropping",
			"type", string(n.Type),
			"recipient_id", n.RecipientID,
		)
	}
}

// Run drains the queue until ctx is cancelled, then flushes what remains.
func (d *ChannelDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case n := <-d.queue:
			d.deliver(context.WithoutCancel(ctx), &n)
		}
	}
}

func (d *ChannelDispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, &n)
		default:
			return
		}
	}
}

func (d *ChannelDispatcher) deliver(ctx context.Context, n *Notification) {
	if err := d.store.Save(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "failed to persist notification",
			"error", err,
			"type", string(n.Type),
			"recipient_id", n.RecipientID,
		)
		return
	}
	if d.publisher != nil {
		d.publisher.Publish(ctx, n)
	}
}
