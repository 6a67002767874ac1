package crawl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpcrawler/internal/domain"
	"cdpcrawler/internal/repository"
	"cdpcrawler/internal/repository/memory"
)

// flakyRepo fails every Upsert while broken is set
type flakyRepo struct {
	repository.Repository
	broken atomic.Bool
}

func (r *flakyRepo) Upsert(ctx context.Context, rec *domain.DeviceRecord) error {
	if r.broken.Load() {
		return errors.New("disk I/O error")
	}
	return r.Repository.Upsert(ctx, rec)
}

func discover(t *testing.T, s *State, from, key string) bool {
	t.Helper()
	queued, err := s.Discover(context.Background(), from, domain.NewDeviceRecord(key, key, ""))
	require.NoError(t, err)
	return queued
}

func TestStateFIFO(t *testing.T) {
	ctx := context.Background()
	s := NewState(memory.New())

	created, err := s.Seed(ctx, "core", "core.corp.example.com", "")
	require.NoError(t, err)
	assert.True(t, created)

	assert.True(t, discover(t, s, "core", "a"))
	assert.True(t, discover(t, s, "core", "b"))
	assert.True(t, discover(t, s, "a", "c"))

	var order []string
	for range 4 {
		rec, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.DeviceStatusInProgress, rec.Status)
		order = append(order, rec.Key)
	}
	assert.Equal(t, []string{"core", "a", "b", "c"}, order)

	st := s.Stats()
	assert.Equal(t, 4, st.Counts[domain.DeviceStatusInProgress])
	assert.Equal(t, []string{"a", "b", "c", "core"}, st.Active)
}

func TestDiscoverIsAtomic(t *testing.T) {
	s := NewState(memory.New())

	const racers = 64
	var wg sync.WaitGroup
	results := make(chan bool, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			queued, err := s.Discover(context.Background(), fmt.Sprintf("from-%d", i), domain.NewDeviceRecord("dist", "dist", ""))
			assert.NoError(t, err)
			results <- queued
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for queued := range results {
		if queued {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	st := s.Stats()
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Queued)
}

func TestDiscoverKnownFillsAttributes(t *testing.T) {
	ctx := context.Background()
	s := NewState(memory.New())

	require.True(t, discover(t, s, "core", "dist"))

	again := domain.NewDeviceRecord("dist", "dist.corp.example.com", "10.0.0.2")
	again.Platform = platformSwitch
	queued, err := s.Discover(ctx, "access", again)
	require.NoError(t, err)
	assert.False(t, queued)

	rec, ok := s.Get("dist")
	require.True(t, ok)
	assert.Equal(t, "core", rec.DiscoveredFrom, "provenance keeps the first discoverer")
	assert.Equal(t, "10.0.0.2", rec.ManagementAddress)
	assert.Equal(t, platformSwitch, rec.Platform)
	assert.Equal(t, domain.DeviceStatusQueued, rec.Status)
}

func TestDiscoverMatchesKnownAddress(t *testing.T) {
	ctx := context.Background()
	s := NewState(memory.New())

	_, err := s.Seed(ctx, "10.0.0.1", "10.0.0.1", "10.0.0.1")
	require.NoError(t, err)

	byName := domain.NewDeviceRecord("core", "core.corp.example.com", "10.0.0.1")
	byName.Platform = platformSwitch
	queued, err := s.Discover(ctx, "dist", byName)
	require.NoError(t, err)
	assert.False(t, queued)

	assert.Equal(t, 1, s.Stats().Total)
	rec, _ := s.Get("10.0.0.1")
	assert.Equal(t, platformSwitch, rec.Platform)

	// A different address is a different device
	assert.True(t, discover(t, s, "dist", "access"))
}

func TestAddressLearnedOnCompleteIsIndexed(t *testing.T) {
	ctx := context.Background()
	s := NewState(memory.New())

	_, err := s.Seed(ctx, "core", "core", "")
	require.NoError(t, err)
	rec, err := s.Next(ctx)
	require.NoError(t, err)
	rec.ManagementAddress = "10.0.0.1"
	require.NoError(t, s.Complete(ctx, rec))

	queued, err := s.Discover(ctx, "dist", domain.NewDeviceRecord("10.0.0.1", "", "10.0.0.1"))
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, 1, s.Stats().Total)
}

func TestAlias(t *testing.T) {
	ctx := context.Background()
	s := NewState(memory.New())

	_, err := s.Seed(ctx, "10.0.0.1", "10.0.0.1", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, discover(t, s, "10.0.0.1", "dist"))

	assert.True(t, s.Alias("10.0.0.1", "core"))
	assert.True(t, s.Alias("10.0.0.1", "core"), "repeating an alias is fine")
	assert.False(t, s.Alias("10.0.0.1", "dist"), "a name owned by another record is refused")
	assert.False(t, s.Alias("dist", "core"), "a name aliased to another record is refused")
	assert.False(t, s.Alias("ghost", "spirit"))

	assert.False(t, discover(t, s, "dist", "core"))
	assert.Equal(t, 2, s.Stats().Total)

	rec, ok := s.Get("core")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", rec.Key)
}

func TestNextLogsPersistFailure(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{Repository: memory.New()}
	var logs bytes.Buffer
	s := NewState(repo, WithStateLogger(zerolog.New(&logs)))

	_, err := s.Seed(ctx, "core", "core", "")
	require.NoError(t, err)

	repo.broken.Store(true)
	rec, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "core", rec.Key)
	assert.Equal(t, domain.DeviceStatusInProgress, rec.Status)
	assert.Contains(t, logs.String(), "disk I/O error")
	assert.Contains(t, logs.String(), "stale stored status")

	repo.broken.Store(false)
	require.NoError(t, s.Complete(ctx, rec))
	stored, err := repo.Get(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusDone, stored.Status)
}

func TestNextFinishedWhenIdle(t *testing.T) {
	s := NewState(memory.New())
	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrFinished)
}

func TestNextWaitsForWork(t *testing.T) {
	ctx := context.Background()
	s := NewState(memory.New())

	_, err := s.Seed(ctx, "core", "core", "")
	require.NoError(t, err)
	_, err = s.Next(ctx)
	require.NoError(t, err)

	got := make(chan string, 1)
	go func() {
		rec, err := s.Next(ctx)
		if err != nil {
			got <- err.Error()
			return
		}
		got <- rec.Key
	}()

	// core is still in progress, so the second worker must block
	select {
	case v := <-got:
		t.Fatalf("Next returned early: %s", v)
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, discover(t, s, "core", "dist"))
	assert.Equal(t, "dist", <-got)
}

func TestNextHonoursContext(t *testing.T) {
	ctx := context.Background()
	s := NewState(memory.New())
	_, err := s.Seed(ctx, "core", "core", "")
	require.NoError(t, err)
	_, err = s.Next(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = s.Next(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailRetriesUpToCeiling(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := NewState(repo, WithRetryCeiling(2))
	_, err := s.Seed(ctx, "core", "core", "")
	require.NoError(t, err)

	cause := &domain.ConnectionError{Target: "core", Err: errors.New("timeout")}
	for attempt := 1; attempt <= 3; attempt++ {
		rec, err := s.Next(ctx)
		require.NoError(t, err, "attempt %d", attempt)
		assert.Equal(t, attempt-1, rec.Attempts)

		retrying, err := s.Fail(ctx, "core", cause)
		require.NoError(t, err)
		assert.Equal(t, attempt <= 2, retrying, "attempt %d", attempt)
	}

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, ErrFinished)

	rec, _ := s.Get("core")
	assert.Equal(t, domain.DeviceStatusFailed, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
	assert.True(t, s.Terminal(rec))

	stored, err := repo.Get(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "timeout")
}

func TestFailWithDelayKeepsCrawlAlive(t *testing.T) {
	ctx := context.Background()
	s := NewState(memory.New(), WithRetryDelay(30*time.Millisecond))
	_, err := s.Seed(ctx, "core", "core", "")
	require.NoError(t, err)
	_, err = s.Next(ctx)
	require.NoError(t, err)

	retrying, err := s.Fail(ctx, "core", errors.New("refused"))
	require.NoError(t, err)
	require.True(t, retrying)

	st := s.Stats()
	assert.Equal(t, 1, st.Retrying)
	assert.Equal(t, 0, st.Processed())
	assert.Equal(t, 1, st.Counts[domain.DeviceStatusFailed])

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rec, err := s.Next(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, "core", rec.Key)
	assert.Equal(t, 1, rec.Attempts)
}

func TestDrainCancelsRetries(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := NewState(repo, WithRetryDelay(time.Hour))
	_, err := s.Seed(ctx, "core", "core", "")
	require.NoError(t, err)
	require.True(t, discover(t, s, "core", "dist"))

	for range 2 {
		_, err = s.Next(ctx)
		require.NoError(t, err)
	}
	_, err = s.Fail(ctx, "core", errors.New("refused"))
	require.NoError(t, err)

	s.Drain()
	s.Drain()
	assert.True(t, s.Draining())
	assert.Zero(t, s.Stats().Retrying)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrStopped)

	// An in-flight device failing after drain is not retried
	retrying, err := s.Fail(ctx, "dist", errors.New("late"))
	require.NoError(t, err)
	assert.False(t, retrying)

	resumed := NewState(repo)
	n, err := resumed.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := resumed.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "core", rec.Key)
	assert.Equal(t, 1, rec.Attempts)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	seed := func(key string, seq int64, status domain.DeviceStatus, attempts int) {
		rec := domain.NewDeviceRecord(key, key, "")
		rec.Sequence = seq
		rec.Status = status
		rec.Attempts = attempts
		require.NoError(t, repo.Upsert(ctx, rec))
	}
	seed("core", 0, domain.DeviceStatusDone, 0)
	seed("dist", 1, domain.DeviceStatusInProgress, 0)
	seed("dead", 2, domain.DeviceStatusFailed, 4)
	seed("flaky", 3, domain.DeviceStatusFailed, 1)
	seed("access", 4, domain.DeviceStatusQueued, 0)

	s := NewState(repo, WithRetryCeiling(3))
	n, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stored, err := repo.ListByStatus(ctx, domain.DeviceStatusQueued)
	require.NoError(t, err)
	assert.Equal(t, []string{"dist", "flaky", "access"}, keys(stored))

	created, err := s.Seed(ctx, "core", "core", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, created)

	var order []string
	for {
		rec, err := s.Next(ctx)
		if err != nil {
			break
		}
		order = append(order, rec.Key)
		require.NoError(t, s.Complete(ctx, rec))
	}
	assert.Equal(t, []string{"dist", "flaky", "access"}, order)

	require.True(t, discover(t, s, "access", "edge"))
	rec, _ := s.Get("edge")
	assert.Equal(t, int64(5), rec.Sequence)

	core, _ := s.Get("core")
	assert.Equal(t, "10.0.0.1", core.ManagementAddress)
}

func TestCompleteAppliesAttributes(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := NewState(repo)
	s.SetRunID("run-1")

	require.True(t, discover(t, s, "core", "dist"))
	rec, err := s.Next(ctx)
	require.NoError(t, err)

	rec.Platform = "cisco WS-C3850-24T"
	rec.Serial = "FOC1917U0GD"
	require.NoError(t, s.Complete(ctx, rec))

	stored, err := repo.Get(ctx, "dist")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusDone, stored.Status)
	assert.Equal(t, "FOC1917U0GD", stored.Serial)
	assert.Equal(t, "run-1", stored.RunID)
	require.NotNil(t, stored.CompletedAt)

	err = s.Complete(ctx, domain.NewDeviceRecord("ghost", "ghost", ""))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Fail(ctx, "ghost", errors.New("x"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatePublishesLifecycle(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus()
	events := make(chan domain.Event, 16)
	bus.Subscribe(events)

	s := NewState(memory.New(), WithPublisher(bus), WithRetryCeiling(0))
	_, err := s.Seed(ctx, "core", "core", "")
	require.NoError(t, err)
	rec, err := s.Next(ctx)
	require.NoError(t, err)
	_, err = s.Fail(ctx, rec.Key, errors.New("refused"))
	require.NoError(t, err)

	var types []domain.EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventDeviceDiscovered,
		domain.EventDeviceStarted,
		domain.EventDeviceFailed,
	}, types)
}
