package domain

// NeighborEntry is one parsed record from a device's neighbor-detail output
type NeighborEntry struct {
	DeviceID            string   `json:"device_id"`
	LocalInterface      string   `json:"local_interface,omitempty"`
	PortID              string   `json:"port_id,omitempty"`
	HoldTime            string   `json:"hold_time,omitempty"`
	Platform            string   `json:"platform,omitempty"`
	Capabilities        string   `json:"capabilities,omitempty"`
	ManagementAddresses []string `json:"management_addresses,omitempty"`
	NativeVLAN          string   `json:"native_vlan,omitempty"`
	Duplex              string   `json:"duplex,omitempty"`
	SoftwareVersion     string   `json:"software_version,omitempty"`
	PowerDrawn          string   `json:"power_drawn,omitempty"`
	PowerRequestID      string   `json:"power_request_id,omitempty"`
	PowerManagementID   string   `json:"power_management_id,omitempty"`
}

// PrimaryAddress returns the first management address, or empty
func (n NeighborEntry) PrimaryAddress() string {
	if len(n.ManagementAddresses) == 0 {
		return ""
	}
	return n.ManagementAddresses[0]
}

// DeviceFacts is self-describing data a device reports about itself
// (show version, show inventory, SNMP system group)
type DeviceFacts struct {
	Hostname string
	Platform string
	Software string // OS banner, e.g. "Cisco IOS XE Software"
	Version  string
	Serial   string
	Model    string
	Uptime   string
}

// Empty reports whether no fact was gathered
func (f DeviceFacts) Empty() bool {
	return f == DeviceFacts{}
}

// Merge fills empty fields of f from other
func (f *DeviceFacts) Merge(other DeviceFacts) {
	if f.Hostname == "" {
		f.Hostname = other.Hostname
	}
	if f.Platform == "" {
		f.Platform = other.Platform
	}
	if f.Software == "" {
		f.Software = other.Software
	}
	if f.Version == "" {
		f.Version = other.Version
	}
	if f.Serial == "" {
		f.Serial = other.Serial
	}
	if f.Model == "" {
		f.Model = other.Model
	}
	if f.Uptime == "" {
		f.Uptime = other.Uptime
	}
}
