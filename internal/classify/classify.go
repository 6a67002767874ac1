// Package classify decides which discovered neighbors are network
// infrastructure worth crawling.
package classify

import (
	"fmt"
	"strings"

	"cdpcrawler/internal/domain"
)

// Device type families
const (
	TypeNXOS     = "cisco_nxos"
	TypeXE       = "cisco_xe"
	TypeIOS      = "cisco_ios"
	TypeExcluded = "excluded"
	TypeUnknown  = "unknown"
)

// DefaultExclude and DefaultInclude are the platform filters used when the
// configuration names none
var (
	DefaultExclude = []string{"phone", "air-", "telepresence", "webex", "camera", "ata19"}
	DefaultInclude = []string{"cisco", "nexus", "catalyst", "ws-c", "n9k", "n7k", "n5k", "isr", "asr"}
)

// Classifier matches platform text against ordered exclude and include
// substring lists, case-insensitively. It is immutable and safe for
// concurrent use.
type Classifier struct {
	exclude []string
	include []string
}

// New creates a Classifier. An empty entry in either list would match every
// platform, so it is rejected as a configuration error.
func New(exclude, include []string) (*Classifier, error) {
	c := &Classifier{}
	var err error
	if c.exclude, err = lowerAll("filtering.exclude_platforms", exclude); err != nil {
		return nil, err
	}
	if c.include, err = lowerAll("filtering.include_platforms", include); err != nil {
		return nil, err
	}
	return c, nil
}

func lowerAll(source string, in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for i, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return nil, domain.NewConfigurationError(source, fmt.Sprintf("entry %d is empty", i))
		}
		out = append(out, s)
	}
	return out, nil
}

// InScope reports whether platform is crawlable infrastructure. An excluded
// match always wins; a platform matching neither list is out of scope.
func (c *Classifier) InScope(platform string) bool {
	p := strings.ToLower(platform)
	if match(p, c.exclude) != "" {
		return false
	}
	return match(p, c.include) != ""
}

// Excluded reports the exclude entry platform matched, if any
func (c *Classifier) Excluded(platform string) (string, bool) {
	m := match(strings.ToLower(platform), c.exclude)
	return m, m != ""
}

// DeviceType names the software family a platform descriptor belongs to. The
// descriptor is typically the platform string, optionally followed by the
// software banner from show version.
func (c *Classifier) DeviceType(descriptor string) string {
	d := strings.ToLower(descriptor)

	if match(d, c.exclude) != "" {
		return TypeExcluded
	}

	switch {
	case strings.Contains(d, "nx-os"), strings.Contains(d, "nexus"):
		return TypeNXOS
	case strings.Contains(d, "ios-xe"), strings.Contains(d, "ios xe"), strings.Contains(d, "iosxe"):
		return TypeXE
	case strings.Contains(d, "ios"):
		return TypeIOS
	}

	if m := match(d, c.include); m != "" {
		return m
	}
	return TypeUnknown
}

// IsNXOS reports whether descriptor names an NX-OS device
func IsNXOS(descriptor string) bool {
	d := strings.ToLower(descriptor)
	return strings.Contains(d, "nx-os") || strings.Contains(d, "nexus") || strings.Contains(d, "n9k-") ||
		strings.Contains(d, "n7k-") || strings.Contains(d, "n5k-") || strings.Contains(d, "n3k-")
}

func match(s string, patterns []string) string {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return p
		}
	}
	return ""
}
