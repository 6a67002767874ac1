package domain

import "time"

// DeviceStatus represents where a device is in the crawl lifecycle
type DeviceStatus string

const (
	DeviceStatusDiscovered DeviceStatus = "discovered" // Referenced by a neighbor entry or the seed
	DeviceStatusQueued     DeviceStatus = "queued"     // Waiting for a worker
	DeviceStatusInProgress DeviceStatus = "in_progress"
	DeviceStatusDone       DeviceStatus = "done"
	DeviceStatusFailed     DeviceStatus = "failed"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []DeviceStatus{
	DeviceStatusDiscovered,
	DeviceStatusQueued,
	DeviceStatusInProgress,
	DeviceStatusDone,
	DeviceStatusFailed,
}

// Valid reports whether s is a known status
func (s DeviceStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseDeviceStatus converts a string to a DeviceStatus
func ParseDeviceStatus(s string) (DeviceStatus, bool) {
	status := DeviceStatus(s)
	return status, status.Valid()
}

// DeviceRecord is one node in the discovered graph
type DeviceRecord struct {
	Key               string `json:"key"`
	RawLabel          string `json:"raw_label"`
	ManagementAddress string `json:"management_address,omitempty"`

	// Classification attributes
	Platform     string `json:"platform,omitempty"`
	Capabilities string `json:"capabilities,omitempty"`
	Serial       string `json:"serial,omitempty"`
	Model        string `json:"model,omitempty"`
	Version      string `json:"version,omitempty"`
	DeviceType   string `json:"device_type,omitempty"`

	// Crawl state
	Status         DeviceStatus `json:"status"`
	DiscoveredFrom string       `json:"discovered_from,omitempty"` // provenance only; empty for the seed
	Attempts       int          `json:"attempts"`
	LastError      string       `json:"last_error,omitempty"`
	Sequence       int64        `json:"sequence"` // discovery order within the crawl
	RunID          string       `json:"run_id,omitempty"`

	DiscoveredAt time.Time  `json:"discovered_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewDeviceRecord creates a record in the discovered state
func NewDeviceRecord(key, rawLabel, address string) *DeviceRecord {
	now := time.Now()
	return &DeviceRecord{
		Key:               key,
		RawLabel:          rawLabel,
		ManagementAddress: address,
		Status:            DeviceStatusDiscovered,
		DiscoveredAt:      now,
		UpdatedAt:         now,
	}
}

// IsSeed reports whether the record has no provenance edge
func (d *DeviceRecord) IsSeed() bool {
	return d.DiscoveredFrom == ""
}

// Clone returns a copy that shares no pointers with d
func (d *DeviceRecord) Clone() *DeviceRecord {
	if d == nil {
		return nil
	}
	c := *d
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// MergeAttributes fills empty attributes of d from other. Existing values win,
// so a later, less specific observation never erases what a device reported
// about itself.
func (d *DeviceRecord) MergeAttributes(other *DeviceRecord) bool {
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&d.ManagementAddress, other.ManagementAddress)
	fill(&d.Platform, other.Platform)
	fill(&d.Capabilities, other.Capabilities)
	fill(&d.Serial, other.Serial)
	fill(&d.Model, other.Model)
	fill(&d.Version, other.Version)
	fill(&d.DeviceType, other.DeviceType)
	return changed
}
