package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := Default()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "core-sw1", "core-sw1"},
		{"upper case", "CORE-SW1", "core-sw1"},
		{"public domain", "core-sw1.example.com", "core-sw1"},
		{"multi-label public suffix", "edge1.branch.example.co.uk", "edge1"},
		{"private suffix", "dist-sw2.corp", "dist-sw2"},
		{"private suffix nested", "dist-sw2.mgmt.local", "dist-sw2"},
		{"trailing dot", "core-sw1.example.com.", "core-sw1"},
		{"surrounding space", "  Core-SW1  ", "core-sw1"},
		{"nxos serial", "spine-1(FDO21120U8R)", "spine-1"},
		{"serial and domain", "Spine-1.example.net(FDO21120U8R)", "spine-1"},
		{"tagged serial", "access-sw7 (Serial: FOC1234X0AB)", "access-sw7"},
		{"tagged sn", "access-sw7(SN# FOC1234X0AB)", "access-sw7"},
		{"trailing serial", "access-sw7 Serial: FOC1234X0AB", "access-sw7"},
		{"short parenthetical kept", "rtr(2)", "rtr(2)"},
		{"word parenthetical kept", "rtr(primary)", "rtr(primary)"},
		{"snmp parenthetical kept", "rtr(snmp)", "rtr(snmp)"},
		{"ambiguous dots", "SW1.Floor2", "sw1.floor2"},
		{"ipv4 literal", "10.0.0.1", "10.0.0.1"},
		{"ipv6 literal", "2001:DB8::1", "2001:db8::1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, n.Normalize(got), "normalize must be idempotent")
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := Default()
	labels := []string{
		"a.b.c.d",
		"SEP0011223344AA",
		"x(Serial: 1)(FOC1234X0AB)",
		"sw.(ABCDEFGH1)",
		"(FOC1234X0AB)",
		"host.example.com (Serial: FOC1)",
		"...",
		"10.0.0.1.example.com",
		"Switch.corp.local.",
		"sw1" + strings.Repeat("(SN: A1B2)", 9),
		"core" + strings.Repeat(" (Serial: FOC1234X0AB)", 20),
	}
	for _, l := range labels {
		once := n.Normalize(l)
		assert.Equal(t, once, n.Normalize(once), "label %q", l)
	}
}

func TestNormalizeStripsStackedSerials(t *testing.T) {
	n := Default()
	assert.Equal(t, "sw1", n.Normalize("sw1"+strings.Repeat("(SN: A1B2)", 9)))
	assert.Equal(t, "core", n.Normalize("core"+strings.Repeat(" (Serial: FOC1234X0AB)", 20)))
}

func TestZeroNormalizerNeverSplits(t *testing.T) {
	var n Normalizer
	assert.Equal(t, "core-sw1.example.com", n.Normalize("Core-SW1.example.com"))
	assert.Equal(t, "core-sw1.example.com", n.Normalize("Core-SW1.example.com(FOC1234X0AB)"))
}

func TestPolicyOrder(t *testing.T) {
	// a configured suffix lets an otherwise ambiguous label split
	n := New(NewSuffixPolicy(".Floor2"), PublicSuffixPolicy{})
	assert.Equal(t, "sw1", n.Normalize("SW1.floor2"))
	assert.Equal(t, "sw1", n.Normalize("sw1.example.org"))

	n = New(PublicSuffixPolicy{})
	assert.Equal(t, "sw1.corp", n.Normalize("sw1.corp"))
	assert.Equal(t, "co.uk", n.Normalize("co.uk."), "a bare public suffix is not split")
}

func TestKey(t *testing.T) {
	n := Default()
	assert.Equal(t, "core-sw1", n.Key("core-sw1.example.com", "10.0.0.1"))
	assert.Equal(t, "10.0.0.1", n.Key("", "10.0.0.1"))
	assert.Equal(t, "10.0.0.1", n.Key("  ", " 10.0.0.1 "))
	assert.Equal(t, "", n.Key("", ""))
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress("10.0.0.1"))
	assert.True(t, IsAddress("fe80::1"))
	assert.False(t, IsAddress("core-sw1"))
	assert.False(t, IsAddress(""))
}
