package repository

import (
	"context"

	"cdpcrawler/internal/domain"
)

// Repository is the persistence contract behind the crawl state store.
// Implementations must give at least read-committed isolation for each call.
type Repository interface {
	// Get returns the record for key, or an error wrapping domain.ErrNotFound
	Get(ctx context.Context, key string) (*domain.DeviceRecord, error)

	// Upsert inserts or replaces the record with the same key
	Upsert(ctx context.Context, rec *domain.DeviceRecord) error

	// UpsertAll writes many records atomically
	UpsertAll(ctx context.Context, recs []*domain.DeviceRecord) error

	// ListByStatus returns records in any of the given statuses, in discovery
	// order. With no statuses it returns every record.
	ListByStatus(ctx context.Context, statuses ...domain.DeviceStatus) ([]*domain.DeviceRecord, error)

	// Reset removes every device record
	Reset(ctx context.Context) error

	// Run bookkeeping
	SaveRun(ctx context.Context, run *domain.CrawlRun) error
	LatestRun(ctx context.Context) (*domain.CrawlRun, error)

	// Close releases resources
	Close() error
}
