package extract

import (
	"net/netip"
	"strings"
)

// Shape constrains the text a slot accepts
type Shape string

const (
	ShapeText   Shape = "text"   // anything non-empty
	ShapeDigits Shape = "digits" // one or more ASCII digits
	ShapeIPv4   Shape = "ipv4"   // four dot-separated octets
	ShapeIPv6   Shape = "ipv6"
	ShapeIP     Shape = "ip" // either address family
	ShapeEnum   Shape = "enum"
)

func (s Shape) valid() bool {
	switch s {
	case ShapeText, ShapeDigits, ShapeIPv4, ShapeIPv6, ShapeIP, ShapeEnum:
		return true
	}
	return false
}

// accepts reports whether value conforms to the shape. Enum comparison is
// case-insensitive.
func (s Shape) accepts(value string, enum []string) bool {
	switch s {
	case ShapeText:
		return value != ""
	case ShapeDigits:
		if value == "" {
			return false
		}
		for _, r := range value {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	case ShapeIPv4:
		addr, err := netip.ParseAddr(value)
		return err == nil && addr.Is4()
	case ShapeIPv6:
		addr, err := netip.ParseAddr(value)
		return err == nil && addr.Is6() && !addr.Is4In6()
	case ShapeIP:
		_, err := netip.ParseAddr(value)
		return err == nil
	case ShapeEnum:
		for _, v := range enum {
			if strings.EqualFold(v, value) {
				return true
			}
		}
		return false
	}
	return false
}
