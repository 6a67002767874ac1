package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"cdpcrawler/internal/domain"
)

// JSONCodec handles JSON export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

type jsonInventory struct {
	Devices []*domain.DeviceRecord `json:"devices"`
}

// Export writes the inventory as an indented JSON document
func (c *JSONCodec) Export(devices []*domain.DeviceRecord, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	doc := jsonInventory{Devices: inDiscoveryOrder(devices)}
	if doc.Devices == nil {
		doc.Devices = []*domain.DeviceRecord{}
	}
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
