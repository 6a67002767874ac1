package adapter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"cdpcrawler/internal/domain"
)

// System group OIDs
const (
	oidSysDescr  = ".1.3.6.1.2.1.1.1.0"
	oidSysUptime = ".1.3.6.1.2.1.1.3.0"
	oidSysName   = ".1.3.6.1.2.1.1.5.0"
)

var sysDescrVersion = regexp.MustCompile(`Version\s+([^,\s]+)`)

// SNMPConfig holds SNMP read settings
type SNMPConfig struct {
	Community string
	Version   string // "1" or "2c"
	Port      uint16
	Timeout   time.Duration
	Retries   int
}

// SNMPEnricher reads the system group of a device as a second source of
// self-description next to show version
type SNMPEnricher struct {
	config SNMPConfig
}

// NewSNMPEnricher creates an enricher. An unknown version is a configuration error.
func NewSNMPEnricher(cfg SNMPConfig) (*SNMPEnricher, error) {
	if _, err := snmpVersion(cfg.Version); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 161
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &SNMPEnricher{config: cfg}, nil
}

func snmpVersion(v string) (gosnmp.SnmpVersion, error) {
	switch strings.TrimPrefix(strings.ToLower(v), "v") {
	case "1":
		return gosnmp.Version1, nil
	case "2c", "":
		return gosnmp.Version2c, nil
	default:
		return 0, domain.NewConfigurationError("snmp.version", fmt.Sprintf("unsupported version %q", v))
	}
}

// Facts queries sysName, sysDescr and sysUpTime on target
func (e *SNMPEnricher) Facts(ctx context.Context, target string) (domain.DeviceFacts, error) {
	version, _ := snmpVersion(e.config.Version)

	client := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    target,
		Port:      e.config.Port,
		Community: e.config.Community,
		Version:   version,
		Timeout:   e.config.Timeout,
		Retries:   e.config.Retries,
		MaxOids:   gosnmp.MaxOids,
	}

	if err := client.Connect(); err != nil {
		return domain.DeviceFacts{}, &domain.ConnectionError{Target: target, Err: fmt.Errorf("snmp connect: %w", err)}
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{oidSysDescr, oidSysUptime, oidSysName})
	if err != nil {
		return domain.DeviceFacts{}, fmt.Errorf("SNMP Get failed: %w", err)
	}

	if result.Error != gosnmp.NoError {
		return domain.DeviceFacts{}, fmt.Errorf("SNMP error: %s", result.Error)
	}

	facts := factsFromVariables(result.Variables)
	if facts.Empty() {
		return facts, fmt.Errorf("no SNMP data returned from %s", target)
	}
	return facts, nil
}

// factsFromVariables maps system group values onto DeviceFacts
func factsFromVariables(vars []gosnmp.SnmpPDU) domain.DeviceFacts {
	var facts domain.DeviceFacts

	for _, v := range vars {
		// Skip NoSuchObject/NoSuchInstance
		if v.Type == gosnmp.NoSuchObject || v.Type == gosnmp.NoSuchInstance {
			continue
		}

		switch v.Name {
		case oidSysDescr:
			if v.Type == gosnmp.OctetString {
				descr := strings.TrimSpace(string(v.Value.([]byte)))
				first, _, _ := strings.Cut(descr, ",")
				facts.Software = strings.TrimSpace(first)
				if m := sysDescrVersion.FindStringSubmatch(descr); m != nil {
					facts.Version = m[1]
				}
			}
		case oidSysUptime:
			if v.Type == gosnmp.TimeTicks {
				ticks := v.Value.(uint32)
				facts.Uptime = (time.Duration(ticks) * 10 * time.Millisecond).String()
			}
		case oidSysName:
			if v.Type == gosnmp.OctetString {
				facts.Hostname = string(v.Value.([]byte))
			}
		}
	}

	return facts
}
