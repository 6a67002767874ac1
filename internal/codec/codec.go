package codec

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"cdpcrawler/internal/domain"
)

// Exporter renders the device inventory to a tabular or document format
type Exporter interface {
	Export(devices []*domain.DeviceRecord, w io.Writer) error
	Format() string
}

// Formats lists the supported export formats
var Formats = []string{"csv", "json", "yaml"}

// ForFormat returns the exporter for format
func ForFormat(format string) (Exporter, error) {
	switch format {
	case "csv":
		return NewCSVCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want one of %v)", format, Formats)
	}
}

// inDiscoveryOrder returns a copy of devices sorted by discovery sequence
func inDiscoveryOrder(devices []*domain.DeviceRecord) []*domain.DeviceRecord {
	out := slices.Clone(devices)
	slices.SortStableFunc(out, func(a, b *domain.DeviceRecord) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return out
}
