package codec

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"cdpcrawler/internal/domain"
)

// CSVHeader is the inventory column set
var CSVHeader = []string{
	"hostname",
	"ip_address",
	"platform",
	"serial_number",
	"device_type",
	"status",
	"discovered_from",
	"attempts",
	"last_error",
}

// CSVCodec writes the inventory as CSV
type CSVCodec struct{}

// NewCSVCodec creates a new CSV codec
func NewCSVCodec() *CSVCodec {
	return &CSVCodec{}
}

// Format returns the codec format identifier
func (c *CSVCodec) Format() string {
	return "csv"
}

// Export writes one row per device in discovery order
func (c *CSVCodec) Export(devices []*domain.DeviceRecord, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, d := range inDiscoveryOrder(devices) {
		row := []string{
			d.Key,
			d.ManagementAddress,
			d.Platform,
			d.Serial,
			d.DeviceType,
			string(d.Status),
			d.DiscoveredFrom,
			strconv.Itoa(d.Attempts),
			d.LastError,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", d.Key, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
