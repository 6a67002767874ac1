// Package repotest holds the behavior every repository.Repository
// implementation must share.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpcrawler/internal/domain"
	"cdpcrawler/internal/repository"
)

// Run exercises repo against the repository contract. newRepo must return an
// empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) repository.Repository) {
	t.Run("GetMissing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("UpsertRoundTrip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		completed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
		rec := &domain.DeviceRecord{
			Key:               "core-sw1",
			RawLabel:          "core-sw1.example.com",
			ManagementAddress: "10.0.0.1",
			Platform:          "cisco WS-C3850-24T",
			Capabilities:      "Router Switch IGMP",
			Serial:            "FOC1917U0GD",
			Model:             "WS-C3850-24T",
			Version:           "16.9.4",
			DeviceType:        "cisco_xe",
			Status:            domain.DeviceStatusDone,
			Attempts:          1,
			LastError:         "connect core-sw1: timeout",
			Sequence:          1,
			RunID:             "run-1",
			DiscoveredAt:      completed.Add(-time.Minute),
			UpdatedAt:         completed,
			CompletedAt:       &completed,
		}
		require.NoError(t, repo.Upsert(ctx, rec))

		got, err := repo.Get(ctx, "core-sw1")
		require.NoError(t, err)
		assert.Equal(t, rec.Key, got.Key)
		assert.Equal(t, rec.RawLabel, got.RawLabel)
		assert.Equal(t, rec.ManagementAddress, got.ManagementAddress)
		assert.Equal(t, rec.Platform, got.Platform)
		assert.Equal(t, rec.Capabilities, got.Capabilities)
		assert.Equal(t, rec.Serial, got.Serial)
		assert.Equal(t, rec.Model, got.Model)
		assert.Equal(t, rec.Version, got.Version)
		assert.Equal(t, rec.DeviceType, got.DeviceType)
		assert.Equal(t, rec.Status, got.Status)
		assert.Empty(t, got.DiscoveredFrom)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, rec.LastError, got.LastError)
		assert.Equal(t, int64(1), got.Sequence)
		assert.Equal(t, "run-1", got.RunID)
		assert.True(t, rec.DiscoveredAt.Equal(got.DiscoveredAt))
		require.NotNil(t, got.CompletedAt)
		assert.True(t, completed.Equal(*got.CompletedAt))

		rec.Status = domain.DeviceStatusFailed
		rec.CompletedAt = nil
		require.NoError(t, repo.Upsert(ctx, rec))

		got, err = repo.Get(ctx, "core-sw1")
		require.NoError(t, err)
		assert.Equal(t, domain.DeviceStatusFailed, got.Status)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("ListByStatusOrdersBySequence", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		now := time.Now()
		recs := []*domain.DeviceRecord{
			{Key: "c", RawLabel: "c", Status: domain.DeviceStatusQueued, Sequence: 3, DiscoveredAt: now, UpdatedAt: now},
			{Key: "a", RawLabel: "a", Status: domain.DeviceStatusDone, Sequence: 1, DiscoveredAt: now, UpdatedAt: now},
			{Key: "b", RawLabel: "b", Status: domain.DeviceStatusQueued, Sequence: 2, DiscoveredFrom: "a", DiscoveredAt: now, UpdatedAt: now},
			{Key: "d", RawLabel: "d", Status: domain.DeviceStatusFailed, Sequence: 4, DiscoveredFrom: "b", DiscoveredAt: now, UpdatedAt: now},
		}
		require.NoError(t, repo.UpsertAll(ctx, recs))

		all, err := repo.ListByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, keys(all))

		queued, err := repo.ListByStatus(ctx, domain.DeviceStatusQueued)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, keys(queued))

		terminal, err := repo.ListByStatus(ctx, domain.DeviceStatusDone, domain.DeviceStatusFailed)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "d"}, keys(terminal))
		assert.Equal(t, "b", terminal[1].DiscoveredFrom)

		none, err := repo.ListByStatus(ctx, domain.DeviceStatusInProgress)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now()
		require.NoError(t, repo.Upsert(ctx, &domain.DeviceRecord{Key: "a", RawLabel: "a", Status: domain.DeviceStatusQueued, DiscoveredAt: now, UpdatedAt: now}))

		got, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		got.Status = domain.DeviceStatusDone

		again, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, domain.DeviceStatusQueued, again.Status)
	})

	t.Run("Reset", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := time.Now()
		require.NoError(t, repo.Upsert(ctx, &domain.DeviceRecord{Key: "a", RawLabel: "a", Status: domain.DeviceStatusDone, DiscoveredAt: now, UpdatedAt: now}))
		require.NoError(t, repo.Reset(ctx))

		all, err := repo.ListByStatus(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Runs", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.LatestRun(ctx)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		first := &domain.CrawlRun{ID: "run-1", Seed: "core-sw1", StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		second := &domain.CrawlRun{ID: "run-2", Seed: "core-sw1", StartedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
		require.NoError(t, repo.SaveRun(ctx, first))
		require.NoError(t, repo.SaveRun(ctx, second))

		latest, err := repo.LatestRun(ctx)
		require.NoError(t, err)
		assert.Equal(t, "run-2", latest.ID)
		assert.False(t, latest.Finished())

		finished := second.StartedAt.Add(time.Hour)
		second.FinishedAt = &finished
		second.Done = 10
		second.Failed = 2
		second.Stopped = true
		require.NoError(t, repo.SaveRun(ctx, second))

		latest, err = repo.LatestRun(ctx)
		require.NoError(t, err)
		assert.True(t, latest.Finished())
		assert.Equal(t, 10, latest.Done)
		assert.Equal(t, 2, latest.Failed)
		assert.True(t, latest.Stopped)
	})
}

func keys(recs []*domain.DeviceRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Key
	}
	return out
}
