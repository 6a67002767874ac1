package domain

import "time"

// EventType names a crawl event
type EventType string

const (
	EventCrawlStarted     EventType = "crawl_started"
	EventCrawlFinished    EventType = "crawl_finished"
	EventDeviceDiscovered EventType = "device_discovered"
	EventDeviceStarted    EventType = "device_started"
	EventDeviceDone       EventType = "device_done"
	EventDeviceFailed     EventType = "device_failed"
	EventDeviceRetry      EventType = "device_retry_scheduled"
	EventNeighborFiltered EventType = "neighbor_filtered"
	EventProgress         EventType = "progress"
)

// Event is something that happened during a crawl
type Event struct {
	Type    EventType   `json:"type"`
	RunID   string      `json:"run_id,omitempty"`
	Key     string      `json:"key,omitempty"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}
