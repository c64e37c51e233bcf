package notify

import (
	"context"
	"encoding/json"
	"errors"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository/memory"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []domain.Notification
	err  error
	gate chan struct{}
}

func (r *recordingSink) Emit(_ context.Context, n domain.Notification) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func sample(kind domain.NotificationKind, space string) domain.Notification {
	return domain.Notification{
		Title:    "Space reserved",
		Message:  "Space " + space + " is reserved",
		Category: domain.NotificationCategoryParking,
		Event: domain.NotificationEvent{
			ID:          "6b0c2f0e-4a4e-4c5e-9a55-2f3b8f1f0a01",
			Kind:        kind,
			SpaceNumber: space,
			Plate:       "TUN1234",
			Timestamp:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestStoreSink_Persists(t *testing.T) {
	repo := memory.NewNotificationRepository(10)
	sink := NewStoreSink(repo)

	require.NoError(t, sink.Emit(context.Background(), sample(domain.NotifySpaceReserved, "A001")))

	recent, err := repo.FindRecent(context.Background(), "A001", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, domain.NotifySpaceReserved, recent[0].Event.Kind)
}

func TestStoreSink_WrapsFailure(t *testing.T) {
	repo := memory.NewNotificationRepository(10)
	sink := NewStoreSink(repo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Emit(ctx, sample(domain.NotifySpaceReserved, "A001"))
	assert.ErrorIs(t, err, domain.ErrSinkUnavailable)
}

func TestMultiSink_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("broker down")}

	err := MultiSink{ok, failing, LogSink{}}.Emit(context.Background(), sample(domain.NotifySpaceFreed, "A001"))

	assert.EqualError(t, err, "broker down")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, failing.count())
}

func TestQueuedSink_DeliversInBackground(t *testing.T) {
	next := &recordingSink{}
	q := NewQueuedSink("test", next, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.Emit(context.Background(), sample(domain.NotifySpaceOccupied, "A001")))
	require.NoError(t, q.Emit(context.Background(), sample(domain.NotifySpaceFreed, "A001")))

	assert.Eventually(t, func() bool { return next.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestQueuedSink_DropsWhenFull(t *testing.T) {
	next := &recordingSink{}
	q := NewQueuedSink("test", next, 1)

	require.NoError(t, q.Emit(context.Background(), sample(domain.NotifySpaceReserved, "A001")))
	err := q.Emit(context.Background(), sample(domain.NotifySpaceReserved, "A002"))

	assert.ErrorIs(t, err, domain.ErrSinkUnavailable)
	assert.Equal(t, 1, q.Len())
}

func TestQueuedSink_DrainsOnShutdown(t *testing.T) {
	next := &recordingSink{}
	q := NewQueuedSink("test", next, 4)
	for _, s := range []string{"A001", "A002", "A003"} {
		require.NoError(t, q.Emit(context.Background(), sample(domain.NotifySpaceReserved, s)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))

	assert.Equal(t, 3, next.count())
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAMQPSink_PublishesByKind(t *testing.T) {
	pub := &fakePublisher{}
	sink := &AMQPSink{pub: pub, exchange: "parking.events"}

	n := sample(domain.NotifyReservationCancelled, "A001")
	n.Event.Reason = domain.ReasonExpired
	require.NoError(t, sink.Emit(context.Background(), n))

	assert.Equal(t, "parking.events", pub.exchange)
	assert.Equal(t, "parking.reservation_cancelled", pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, n.Event.ID, pub.msg.MessageId)

	var decoded domain.Notification
	require.NoError(t, json.Unmarshal(pub.msg.Body, &decoded))
	assert.Equal(t, domain.ReasonExpired, decoded.Event.Reason)
}

func TestAMQPSink_PublishFailure(t *testing.T) {
	sink := &AMQPSink{pub: &fakePublisher{err: amqp.ErrClosed}, exchange: "parking.events"}

	err := sink.Emit(context.Background(), sample(domain.NotifySpaceFreed, "A001"))
	assert.ErrorIs(t, err, domain.ErrSinkUnavailable)
	assert.ErrorIs(t, err, amqp.ErrClosed)
}
