// Package domain defines the core types shared by the crawler components.
//
// This package contains the entities the crawl produces and consumes, with no
// database, network or logging dependencies.
//
// # Core Types
//
// DeviceRecord is one node of the discovered device graph. It is keyed by a
// normalized identity and carries the crawl status, the classification
// attributes gathered so far and the key of the device whose neighbor table
// first produced it.
//
// NeighborEntry is one record parsed from a device's neighbor-detail output.
// Entries are ephemeral: the crawl engine turns them into DeviceRecords and
// discards them.
//
// # Status Lifecycle
//
//	discovered -> queued -> in_progress -> done
//	                  ^                 \-> failed
//	                  \-------------------- (retry, up to the ceiling)
//
// # Errors
//
// ConfigurationError is fatal at load time. ConnectionError and CommandError
// are per-device and retryable. ParseAnomaly describes a line that matched a
// pattern but failed value validation; it is reported, never returned.
package domain
