package sqlite

import (
	"database/sql"
	"time"

	"cdpcrawler/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToTimePtr safely converts sql.NullTime to *time.Time
func nullToTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timePtrToNull safely converts *time.Time to sql.NullTime
func timePtrToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// boolToInt stores a bool in an INTEGER column
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to the devices table:
// 1. Add field to deviceRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update deviceColumns constant - APPEND to end
// 4. Update toDomain() and deviceInsertArgs()
// 5. Extend upsertDeviceSQL (VALUES placeholders and the UPDATE SET list)
// 6. Add the column to migrate() in sqlite.go
//
// CRITICAL: Column order must match between:
// - deviceColumns constant
// - scanArgs() return slice
// - deviceInsertArgs() return slice
//
// Same pattern applies to runs.

// ============================================================================
// Device Row Scanner
// ============================================================================

// deviceRow holds all columns from a device query for scanning
type deviceRow struct {
	Key               string
	RawLabel          string
	ManagementAddress sql.NullString
	Platform          sql.NullString
	Capabilities      sql.NullString
	Serial            sql.NullString
	Model             sql.NullString
	Version           sql.NullString
	DeviceType        sql.NullString
	Status            string
	DiscoveredFrom    sql.NullString
	Attempts          int
	LastError         sql.NullString
	Sequence          int64
	RunID             sql.NullString
	DiscoveredAt      time.Time
	UpdatedAt         time.Time
	CompletedAt       sql.NullTime
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match deviceColumns order exactly
func (r *deviceRow) scanArgs() []interface{} {
	return []interface{}{
		&r.Key,               // 1
		&r.RawLabel,          // 2
		&r.ManagementAddress, // 3
		&r.Platform,          // 4
		&r.Capabilities,      // 5
		&r.Serial,            // 6
		&r.Model,             // 7
		&r.Version,           // 8
		&r.DeviceType,        // 9
		&r.Status,            // 10
		&r.DiscoveredFrom,    // 11
		&r.Attempts,          // 12
		&r.LastError,         // 13
		&r.Sequence,          // 14
		&r.RunID,             // 15
		&r.DiscoveredAt,      // 16
		&r.UpdatedAt,         // 17
		&r.CompletedAt,       // 18
	}
}

// toDomain converts the scanned row to a domain.DeviceRecord
func (r *deviceRow) toDomain() *domain.DeviceRecord {
	return &domain.DeviceRecord{
		Key:               r.Key,
		RawLabel:          r.RawLabel,
		ManagementAddress: nullToString(r.ManagementAddress),
		Platform:          nullToString(r.Platform),
		Capabilities:      nullToString(r.Capabilities),
		Serial:            nullToString(r.Serial),
		Model:             nullToString(r.Model),
		Version:           nullToString(r.Version),
		DeviceType:        nullToString(r.DeviceType),
		Status:            domain.DeviceStatus(r.Status),
		DiscoveredFrom:    nullToString(r.DiscoveredFrom),
		Attempts:          r.Attempts,
		LastError:         nullToString(r.LastError),
		Sequence:          r.Sequence,
		RunID:             nullToString(r.RunID),
		DiscoveredAt:      r.DiscoveredAt,
		UpdatedAt:         r.UpdatedAt,
		CompletedAt:       nullToTimePtr(r.CompletedAt),
	}
}

// deviceColumns is the column list for device queries and inserts
const deviceColumns = `key, raw_label, management_address, platform, capabilities,
	serial, model, version, device_type, status, discovered_from, attempts,
	last_error, sequence, run_id, discovered_at, updated_at, completed_at`

// deviceInsertArgs prepares arguments for the device UPSERT, in
// deviceColumns order
func deviceInsertArgs(rec *domain.DeviceRecord) []interface{} {
	return []interface{}{
		rec.Key,
		rec.RawLabel,
		stringToNull(rec.ManagementAddress),
		stringToNull(rec.Platform),
		stringToNull(rec.Capabilities),
		stringToNull(rec.Serial),
		stringToNull(rec.Model),
		stringToNull(rec.Version),
		stringToNull(rec.DeviceType),
		string(rec.Status),
		stringToNull(rec.DiscoveredFrom),
		rec.Attempts,
		stringToNull(rec.LastError),
		rec.Sequence,
		stringToNull(rec.RunID),
		rec.DiscoveredAt.UTC(),
		rec.UpdatedAt.UTC(),
		timePtrToNull(utcPtr(rec.CompletedAt)),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ============================================================================
// Run Row Scanner
// ============================================================================

// runRow holds all columns from a run query for scanning
type runRow struct {
	ID         string
	Seed       string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Done       int
	Failed     int
	Stopped    sql.NullInt64
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match runColumns order exactly:
// id, seed, started_at, finished_at, done, failed, stopped
func (r *runRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,         // 1
		&r.Seed,       // 2
		&r.StartedAt,  // 3
		&r.FinishedAt, // 4
		&r.Done,       // 5
		&r.Failed,     // 6
		&r.Stopped,    // 7
	}
}

// toDomain converts the scanned row to a domain.CrawlRun
func (r *runRow) toDomain() *domain.CrawlRun {
	return &domain.CrawlRun{
		ID:         r.ID,
		Seed:       r.Seed,
		StartedAt:  r.StartedAt,
		FinishedAt: nullToTimePtr(r.FinishedAt),
		Done:       r.Done,
		Failed:     r.Failed,
		Stopped:    nullToBool(r.Stopped),
	}
}

// runColumns is the column list for run queries and inserts
const runColumns = `id, seed, started_at, finished_at, done, failed, stopped`

// runInsertArgs prepares arguments for the run UPSERT, in runColumns order
func runInsertArgs(run *domain.CrawlRun) []interface{} {
	return []interface{}{
		run.ID,
		run.Seed,
		run.StartedAt.UTC(),
		timePtrToNull(utcPtr(run.FinishedAt)),
		run.Done,
		run.Failed,
		boolToInt(run.Stopped),
	}
}
