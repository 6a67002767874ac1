package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"cdpcrawler/internal/domain"
)

// YAMLCodec handles YAML export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

type yamlInventory struct {
	Devices []yamlDevice `yaml:"devices"`
}

type yamlDevice struct {
	Hostname       string `yaml:"hostname"`
	RawLabel       string `yaml:"raw_label,omitempty"`
	IPAddress      string `yaml:"ip_address,omitempty"`
	Platform       string `yaml:"platform,omitempty"`
	Capabilities   string `yaml:"capabilities,omitempty"`
	Serial         string `yaml:"serial_number,omitempty"`
	Model          string `yaml:"model,omitempty"`
	Version        string `yaml:"version,omitempty"`
	DeviceType     string `yaml:"device_type,omitempty"`
	Status         string `yaml:"status"`
	DiscoveredFrom string `yaml:"discovered_from,omitempty"`
	Attempts       int    `yaml:"attempts,omitempty"`
	LastError      string `yaml:"last_error,omitempty"`
}

// Export writes the inventory as a YAML document
func (c *YAMLCodec) Export(devices []*domain.DeviceRecord, w io.Writer) error {
	var doc yamlInventory
	for _, d := range inDiscoveryOrder(devices) {
		doc.Devices = append(doc.Devices, yamlDevice{
			Hostname:       d.Key,
			RawLabel:       d.RawLabel,
			IPAddress:      d.ManagementAddress,
			Platform:       d.Platform,
			Capabilities:   d.Capabilities,
			Serial:         d.Serial,
			Model:          d.Model,
			Version:        d.Version,
			DeviceType:     d.DeviceType,
			Status:         string(d.Status),
			DiscoveredFrom: d.DiscoveredFrom,
			Attempts:       d.Attempts,
			LastError:      d.LastError,
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
