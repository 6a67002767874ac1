package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"

	"cdpcrawler/internal/domain"
)

// ProbeFunc reports whether a TCP port on target accepts connections
type ProbeFunc func(ctx context.Context, target string, port uint16) (bool, error)

// PreflightOption is a functional option for configuring NmapPreflight
type PreflightOption func(*NmapPreflight)

// WithProbePort sets the port checked before dialing
func WithProbePort(port uint16) PreflightOption {
	return func(p *NmapPreflight) {
		p.port = port
	}
}

// WithProbeTimeout bounds a single reachability scan
func WithProbeTimeout(d time.Duration) PreflightOption {
	return func(p *NmapPreflight) {
		p.timeout = d
	}
}

// WithProbe replaces the nmap scan, mainly for tests
func WithProbe(probe ProbeFunc) PreflightOption {
	return func(p *NmapPreflight) {
		p.probe = probe
	}
}

// WithPreflightLogger sets the logger
func WithPreflightLogger(logger zerolog.Logger) PreflightOption {
	return func(p *NmapPreflight) {
		p.logger = logger
	}
}

// NmapPreflight wraps a Dialer with an nmap port check so that unreachable
// targets fail fast instead of waiting out a full SSH connect timeout.
type NmapPreflight struct {
	next    Dialer
	port    uint16
	timeout time.Duration
	probe   ProbeFunc
	logger  zerolog.Logger
}

// NewNmapPreflight creates a preflight-checking Dialer around next
func NewNmapPreflight(next Dialer, opts ...PreflightOption) *NmapPreflight {
	p := &NmapPreflight{
		next:    next,
		port:    22,
		timeout: 5 * time.Second,
		logger:  zerolog.Nop(),
	}
	p.probe = p.nmapProbe

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Dial probes the target and hands over to the wrapped Dialer if the port is open
func (p *NmapPreflight) Dial(ctx context.Context, target string) (Session, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	open, err := p.probe(probeCtx, target, p.port)
	cancel()

	if err != nil {
		// Scanner trouble is not evidence the device is down
		p.logger.Debug().Err(err).Str("target", target).Msg("Preflight scan failed, dialing anyway")
	} else if !open {
		return nil, &domain.ConnectionError{
			Target: target,
			Err:    fmt.Errorf("port %d not open", p.port),
		}
	}

	return p.next.Dial(ctx, target)
}

// nmapProbe runs a single-port scan with host discovery disabled
func (p *NmapPreflight) nmapProbe(ctx context.Context, target string, port uint16) (bool, error) {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(target),
		nmap.WithPorts(strconv.Itoa(int(port))),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return false, fmt.Errorf("scan failed: %w", err)
	}

	if warnings != nil && len(*warnings) > 0 {
		p.logger.Debug().Strs("warnings", *warnings).Str("target", target).Msg("Nmap warnings")
	}

	return portOpen(result, port), nil
}

// portOpen reports whether any up host in result has port open
func portOpen(result *nmap.Run, port uint16) bool {
	if result == nil {
		return false
	}
	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}
		for _, p := range host.Ports {
			if p.ID == port && p.State.State == "open" {
				return true
			}
		}
	}
	return false
}
