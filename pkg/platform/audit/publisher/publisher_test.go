package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	id "dossier/pkg/domain"
	audit "dossier/pkg/platform/audit"
	"dossier/pkg/platform/audit/mocks"
	"dossier/pkg/platform/audit/store/memory"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

//go:generate mockgen -source=../models.go -destination=../mocks/mocks.go -package=mocks Store,Sink

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	actorID := id.UserID(uuid.New())
	err := pub.Emit(context.Background(), audit.Entry{
		ActorID: actorID,
		Action:  audit.ActionSectionSubmitted,
	})
	require.NoError(t, err)

	entries, err := pub.List(context.Background(), audit.Filter{ActorID: actorID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionSectionSubmitted, entries[0].Action)
	assert.Equal(t, audit.CategorySubmission, entries[0].Category)
	assert.False(t, entries[0].ID.IsNil())
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	actorID := id.UserID(uuid.New())
	for range 10 {
		err := pub.Emit(context.Background(), audit.Entry{
			ActorID: actorID,
			Action:  audit.ActionItemCreated,
		})
		require.NoError(t, err)
	}

	pub.Close()

	entries, err := store.List(context.Background(), audit.Filter{ActorID: actorID})
	require.NoError(t, err)
	assert.Len(t, entries, 10, "all entries should be drained on close")
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), audit.Entry{Action: audit.ActionItemCreated})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_BufferFull_NoPanic(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Entry{Action: audit.ActionItemCreated})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_Timestamps(t *testing.T) {
	t.Run("sets missing timestamp", func(t *testing.T) {
		pub := NewPublisher(memory.NewInMemoryStore())
		defer pub.Close()

		before := time.Now()
		require.NoError(t, pub.Emit(context.Background(), audit.Entry{Action: audit.ActionItemCreated}))
		after := time.Now()

		entries, err := pub.List(context.Background(), audit.Filter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Timestamp.Before(before))
		assert.False(t, entries[0].Timestamp.After(after))
	})

	t.Run("preserves existing timestamp", func(t *testing.T) {
		pub := NewPublisher(memory.NewInMemoryStore())
		defer pub.Close()

		custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, pub.Emit(context.Background(), audit.Entry{
			Action:    audit.ActionItemApproved,
			Timestamp: custom,
		}))

		entries, err := pub.List(context.Background(), audit.Filter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, custom, entries[0].Timestamp)
		assert.Equal(t, audit.CategoryReview, entries[0].Category)
	})
}

func TestPublisher_ListNewestFirst(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	defer pub.Close()

	actions := []audit.Action{audit.ActionItemCreated, audit.ActionEvidenceUploaded, audit.ActionSectionSubmitted}
	for _, action := range actions {
		require.NoError(t, pub.Emit(context.Background(), audit.Entry{Action: action}))
	}

	entries, err := pub.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, audit.ActionSectionSubmitted, entries[0].Action)
	assert.Equal(t, audit.ActionEvidenceUploaded, entries[1].Action)
	assert.Equal(t, audit.ActionItemCreated, entries[2].Action)

	limited, err := pub.List(context.Background(), audit.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPublisher_SinkFailureDoesNotFailEmit(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub := NewPublisher(memory.NewInMemoryStore(),
		WithSink("kafka", sink),
		WithMetrics(m),
		WithLogger(discardLogger()),
	)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Entry{Action: audit.ActionItemCreated})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SinkFailures.WithLabelValues("kafka")))
}

func TestPublisher_BreakerShedsAfterRepeatedFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	storeErr := errors.New("db unavailable")
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(storeErr).Times(2)

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub := NewPublisher(store,
		WithBreaker(2, time.Hour),
		WithMetrics(m),
		WithLogger(discardLogger()),
	)
	defer pub.Close()

	ctx := context.Background()
	assert.ErrorIs(t, pub.Emit(ctx, audit.Entry{Action: audit.ActionItemCreated}), storeErr)
	assert.ErrorIs(t, pub.Emit(ctx, audit.Entry{Action: audit.ActionItemCreated}), storeErr)
	// Third call never reaches the store.
	assert.ErrorIs(t, pub.Emit(ctx, audit.Entry{Action: audit.ActionItemCreated}), ErrCircuitOpen)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PersistFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerState))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Dropped.WithLabelValues("breaker_open")))
}

func TestBreaker_HalfOpensAfterCooldown(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	assert.True(t, b.recordFailure())
	assert.False(t, b.allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, b.allow())
	assert.False(t, b.open())
}

func TestPublisher_StoreFailureSkipsSinks(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	sink := mocks.NewMockSink(ctrl)
	storeErr := errors.New("db down")
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(storeErr).Times(1)
	sink.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)

	pub := NewPublisher(store,
		WithSink("kafka", sink),
		WithBreaker(1, time.Hour),
		WithLogger(discardLogger()),
	)
	defer pub.Close()

	ctx := context.Background()
	assert.ErrorIs(t, pub.Emit(ctx, audit.Entry{Action: audit.ActionItemFlagged}), storeErr)
	assert.ErrorIs(t, pub.Emit(ctx, audit.Entry{Action: audit.ActionItemFlagged}), ErrCircuitOpen)
}

func TestPublisher_SinkSeesOnlyStoredEntries(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	sink := mocks.NewMockSink(ctrl)

	var stored audit.Entry
	gomock.InOrder(
		store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Entry) error {
			stored = e
			return nil
		}),
		sink.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Entry) error {
			assert.Equal(t, stored.ID, e.ID)
			return nil
		}),
	)

	pub := NewPublisher(store, WithSink("kafka", sink), WithLogger(discardLogger()))
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Entry{Action: audit.ActionSectionValidated}))
}

type blockingSink struct{}

func (blockingSink) Append(ctx context.Context, _ audit.Entry) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPublisher_SlowSinkIsBounded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store,
		WithSink("kafka", blockingSink{}),
		WithSinkTimeout(20*time.Millisecond),
		WithMetrics(m),
		WithLogger(discardLogger()),
	)
	defer pub.Close()

	start := time.Now()
	require.NoError(t, pub.Emit(context.Background(), audit.Entry{Action: audit.ActionEvidenceUploaded}))
	assert.Less(t, time.Since(start), time.Second)

	entries, err := store.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SinkFailures.WithLabelValues("kafka")))
}

func TestPublisher_BreakerGaugeFollowsRecovery(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	gomock.InOrder(
		store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("db down")),
		store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil),
	)

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub := NewPublisher(store, WithBreaker(1, time.Minute), WithMetrics(m), WithLogger(discardLogger()))
	defer pub.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pub.breaker.now = func() time.Time { return now }

	ctx := context.Background()
	require.Error(t, pub.Emit(ctx, audit.Entry{Action: audit.ActionItemCreated}))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerState))

	now = now.Add(2 * time.Minute)
	require.NoError(t, pub.Emit(ctx, audit.Entry{Action: audit.ActionItemCreated}))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BreakerState))
}
