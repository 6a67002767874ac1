package extract

import (
	"strings"

	"cdpcrawler/internal/domain"
)

// Slot names used by the neighbor, version and inventory tables
const (
	SlotDeviceID          = "DEVICE_ID"
	SlotSystemName        = "SYSTEM_NAME"
	SlotManagementIP      = "MANAGEMENT_IP"
	SlotPlatform          = "PLATFORM"
	SlotCapabilities      = "CAPABILITIES"
	SlotLocalInterface    = "LOCAL_INTERFACE"
	SlotPortID            = "PORT_ID"
	SlotHoldTime          = "HOLDTIME"
	SlotSoftwareVersion   = "SOFTWARE_VERSION"
	SlotNativeVLAN        = "NATIVE_VLAN"
	SlotDuplex            = "DUPLEX"
	SlotPowerDrawn        = "POWER_DRAWN"
	SlotPowerRequestID    = "POWER_REQUEST_ID"
	SlotPowerManagementID = "POWER_MANAGEMENT_ID"

	SlotSoftware = "SOFTWARE"
	SlotVersion  = "VERSION"
	SlotHostname = "HOSTNAME"
	SlotUptime   = "UPTIME"
	SlotHardware = "HARDWARE"
	SlotSerial   = "SERIAL"

	SlotInventoryName  = "NAME"
	SlotInventoryDescr = "DESCR"
	SlotInventoryPID   = "PID"
	SlotInventorySN    = "SN"
)

// NeighborFromRecord maps a neighbor-table record onto a NeighborEntry
func NeighborFromRecord(r Record) domain.NeighborEntry {
	return domain.NeighborEntry{
		DeviceID:            r.Get(SlotDeviceID),
		LocalInterface:      r.Get(SlotLocalInterface),
		PortID:              r.Get(SlotPortID),
		HoldTime:            r.Get(SlotHoldTime),
		Platform:            r.Get(SlotPlatform),
		Capabilities:        r.Get(SlotCapabilities),
		ManagementAddresses: r.Values(SlotManagementIP),
		NativeVLAN:          r.Get(SlotNativeVLAN),
		Duplex:              strings.ToLower(r.Get(SlotDuplex)),
		SoftwareVersion:     r.Get(SlotSoftwareVersion),
		PowerDrawn:          r.Get(SlotPowerDrawn),
		PowerRequestID:      r.Get(SlotPowerRequestID),
		PowerManagementID:   r.Get(SlotPowerManagementID),
	}
}

// Neighbors parses neighbor-detail output into entries, in emission order
func Neighbors(t *Template, text string, opts ...ParseOption) []domain.NeighborEntry {
	var entries []domain.NeighborEntry
	for r := range t.Records(text, opts...) {
		if !r.Has(SlotDeviceID) {
			continue
		}
		entries = append(entries, NeighborFromRecord(r))
	}
	return entries
}

// VersionFacts extracts self-describing facts from show version output. IOS XE
// prints an XE banner ahead of the classic IOS one; the first banner is kept.
func VersionFacts(t *Template, text string, opts ...ParseOption) domain.DeviceFacts {
	var facts domain.DeviceFacts
	for r := range t.Records(text, opts...) {
		facts.Merge(domain.DeviceFacts{
			Hostname: r.Get(SlotHostname),
			Platform: r.Get(SlotPlatform),
			Software: r.Get(SlotSoftware),
			Version:  r.Get(SlotVersion),
			Serial:   r.Get(SlotSerial),
			Model:    r.Get(SlotHardware),
			Uptime:   r.Get(SlotUptime),
		})
	}
	return facts
}

// InventoryFacts extracts the chassis serial and part number from show
// inventory output. The entry whose name mentions the chassis wins; stackable
// switches name it "1", so the first entry is the fallback.
func InventoryFacts(t *Template, text string, opts ...ParseOption) domain.DeviceFacts {
	var first, chassis *Record
	for r := range t.Records(text, opts...) {
		rec := r
		if first == nil {
			first = &rec
		}
		if chassis == nil && strings.Contains(strings.ToLower(r.Get(SlotInventoryName)), "chassis") {
			chassis = &rec
		}
	}

	pick := chassis
	if pick == nil {
		pick = first
	}
	if pick == nil {
		return domain.DeviceFacts{}
	}
	return domain.DeviceFacts{
		Serial: pick.Get(SlotInventorySN),
		Model:  pick.Get(SlotInventoryPID),
	}
}
