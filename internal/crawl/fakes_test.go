package crawl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"cdpcrawler/internal/adapter"
	"cdpcrawler/internal/classify"
	"cdpcrawler/internal/domain"
	"cdpcrawler/internal/extract"
	"cdpcrawler/internal/identity"
	"cdpcrawler/internal/repository"
	"cdpcrawler/internal/repository/memory"
)

const (
	cmdNeighbors = "show cdp neighbors detail"
	cmdVersion   = "show version"

	platformSwitch = "cisco WS-C3850-48P"
	platformPhone  = "Cisco IP Phone 7945"
)

type neighbor struct {
	id       string
	address  string
	platform string
}

// cdpText renders IOS show cdp neighbors detail output
func cdpText(neighbors ...neighbor) string {
	var b strings.Builder
	for i, n := range neighbors {
		b.WriteString("-------------------------\n")
		fmt.Fprintf(&b, "Device ID: %s\n", n.id)
		b.WriteString("Entry address(es): \n")
		if n.address != "" {
			fmt.Fprintf(&b, "  IP address: %s\n", n.address)
		}
		fmt.Fprintf(&b, "Platform: %s,  Capabilities: Router Switch IGMP \n", n.platform)
		fmt.Fprintf(&b, "Interface: GigabitEthernet1/0/%d,  Port ID (outgoing port): GigabitEthernet1/0/48\n", i+1)
		b.WriteString("Holdtime : 150 sec\n\n")
	}
	return b.String()
}

type fakeDevice struct {
	outputs  map[string]string
	failures int // connect failures before the device answers; negative fails forever
	gate     chan struct{}
	entered  chan struct{}
}

// fakeNetwork is a Dialer over an in-memory set of devices keyed by target
type fakeNetwork struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	dials   map[string]int
	fetches map[string]int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		devices: make(map[string]*fakeDevice),
		dials:   make(map[string]int),
		fetches: make(map[string]int),
	}
}

// add registers a device answering on target with the given neighbors
func (n *fakeNetwork) add(target string, neighbors ...neighbor) *fakeDevice {
	d := &fakeDevice{outputs: map[string]string{cmdNeighbors: cdpText(neighbors...)}}
	n.devices[target] = d
	return d
}

func (n *fakeNetwork) Dial(_ context.Context, target string) (adapter.Session, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.dials[target]++
	d, ok := n.devices[target]
	if !ok {
		return nil, &domain.ConnectionError{Target: target, Err: fmt.Errorf("no route to host")}
	}
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, &domain.ConnectionError{Target: target, Err: fmt.Errorf("connection refused")}
	}
	return &fakeSession{net: n, target: target, device: d}, nil
}

func (n *fakeNetwork) fetchCount(target string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fetches[target]
}

func (n *fakeNetwork) dialCount(target string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials[target]
}

type fakeSession struct {
	net    *fakeNetwork
	target string
	device *fakeDevice
}

func (s *fakeSession) Run(_ context.Context, command string) (string, error) {
	if command == cmdNeighbors {
		s.net.mu.Lock()
		s.net.fetches[s.target]++
		s.net.mu.Unlock()

		if s.device.gate != nil {
			close(s.device.entered)
			<-s.device.gate
		}
	}

	out, ok := s.device.outputs[command]
	if !ok {
		return "", &domain.CommandError{Target: s.target, Command: command, Err: fmt.Errorf("invalid input")}
	}
	return out, nil
}

func (s *fakeSession) Close() error { return nil }

type testEngine struct {
	*Engine
	state *State
	repo  repository.Repository
	bus   *EventBus
}

func newTestEngine(t *testing.T, network *fakeNetwork, repo repository.Repository, workers int, stateOpts []StateOption, opts ...Option) *testEngine {
	t.Helper()

	if repo == nil {
		repo = memory.New()
	}
	bus := NewEventBus()

	rules, err := extract.LoadBuiltin()
	require.NoError(t, err)
	classifier, err := classify.New(classify.DefaultExclude, classify.DefaultInclude)
	require.NoError(t, err)

	stateOpts = append([]StateOption{WithRetryDelay(0), WithPublisher(bus)}, stateOpts...)
	state := NewState(repo, stateOpts...)

	opts = append([]Option{WithWorkers(workers), WithRepository(repo), WithEvents(bus)}, opts...)
	engine, err := NewEngine(state, NewStrategy(network, zerolog.Nop()), rules, classifier, identity.Default(), opts...)
	require.NoError(t, err)

	return &testEngine{Engine: engine, state: state, repo: repo, bus: bus}
}

func keys(recs []*domain.DeviceRecord) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.Key
	}
	return out
}
