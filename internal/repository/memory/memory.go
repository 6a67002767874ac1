// Package memory is a map-backed repository for tests and runs without a
// database file.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"cdpcrawler/internal/domain"
)

// Repository implements repository.Repository in memory
type Repository struct {
	mu      sync.RWMutex
	devices map[string]*domain.DeviceRecord
	runs    map[string]*domain.CrawlRun
}

// New creates an empty repository
func New() *Repository {
	return &Repository{
		devices: make(map[string]*domain.DeviceRecord),
		runs:    make(map[string]*domain.CrawlRun),
	}
}

// Get returns a copy of the stored record
func (r *Repository) Get(_ context.Context, key string) (*domain.DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.devices[key]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", key, domain.ErrNotFound)
	}
	return rec.Clone(), nil
}

// Upsert stores a copy of rec
func (r *Repository) Upsert(_ context.Context, rec *domain.DeviceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[rec.Key] = rec.Clone()
	return nil
}

// UpsertAll stores copies of recs
func (r *Repository) UpsertAll(_ context.Context, recs []*domain.DeviceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		r.devices[rec.Key] = rec.Clone()
	}
	return nil
}

// ListByStatus returns copies of matching records in discovery order
func (r *Repository) ListByStatus(_ context.Context, statuses ...domain.DeviceStatus) ([]*domain.DeviceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.DeviceRecord
	for _, rec := range r.devices {
		if len(statuses) == 0 || slices.Contains(statuses, rec.Status) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *domain.DeviceRecord) int {
		if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return out, nil
}

// Reset removes every device
func (r *Repository) Reset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.devices)
	return nil
}

// SaveRun stores a copy of run
func (r *Repository) SaveRun(_ context.Context, run *domain.CrawlRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *run
	r.runs[run.ID] = &c
	return nil
}

// LatestRun returns the run with the latest start time
func (r *Repository) LatestRun(_ context.Context) (*domain.CrawlRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.CrawlRun
	for _, run := range r.runs {
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no crawl run recorded: %w", domain.ErrNotFound)
	}
	c := *latest
	return &c, nil
}

// Close is a no-op
func (r *Repository) Close() error { return nil }
