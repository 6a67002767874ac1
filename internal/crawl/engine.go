package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cdpcrawler/internal/adapter"
	"cdpcrawler/internal/classify"
	"cdpcrawler/internal/domain"
	"cdpcrawler/internal/extract"
	"cdpcrawler/internal/identity"
	"cdpcrawler/internal/repository"
)

// FactSource supplies self-description for a device besides its CLI
type FactSource interface {
	Facts(ctx context.Context, target string) (domain.DeviceFacts, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithWorkers sets the worker pool size
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFactSource adds a secondary self-description source such as SNMP
func WithFactSource(src FactSource) Option {
	return func(e *Engine) {
		e.facts = src
	}
}

// WithEvents sets where crawl-level events go
func WithEvents(p Publisher) Option {
	return func(e *Engine) {
		e.events = p
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRequireManagementAddress skips neighbors that advertise no address
func WithRequireManagementAddress(require bool) Option {
	return func(e *Engine) {
		e.requireAddress = require
	}
}

// WithRepository records run bookkeeping in repo
func WithRepository(repo repository.Repository) Option {
	return func(e *Engine) {
		e.repo = repo
	}
}

// Engine runs a breadth-first crawl over the neighbor graph with a fixed
// pool of workers sharing one State
type Engine struct {
	state      *State
	strategy   *Strategy
	rules      *extract.Library
	classifier *classify.Classifier
	normalizer *identity.Normalizer

	workers        int
	requireAddress bool
	facts          FactSource
	events         Publisher
	metrics        *Metrics
	repo           repository.Repository
	logger         zerolog.Logger
}

// NewEngine creates an engine. The rule library must carry both neighbor
// rule sets; the version and inventory sets are optional.
func NewEngine(state *State, strategy *Strategy, rules *extract.Library, classifier *classify.Classifier,
	normalizer *identity.Normalizer, opts ...Option) (*Engine, error) {
	if err := rules.Require(extract.RulesIOSNeighbors, extract.RulesNXOSNeighbors); err != nil {
		return nil, err
	}

	e := &Engine{
		state:      state,
		strategy:   strategy,
		rules:      rules,
		classifier: classifier,
		normalizer: normalizer,
		workers:    10,
		events:     nopPublisher{},
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// State returns the engine's state store
func (e *Engine) State() *State {
	return e.state
}

// Run seeds the crawl with seed (a hostname or address) and processes
// devices until the queue drains or ctx is cancelled. Cancellation stops
// new dequeues; devices already in progress run to completion.
func (e *Engine) Run(ctx context.Context, seed, seedAddress string) (*Summary, error) {
	run := &domain.CrawlRun{
		ID:        uuid.NewString(),
		Seed:      seed,
		StartedAt: time.Now(),
	}
	e.state.SetRunID(run.ID)

	key := e.normalizer.Key(seed, seedAddress)
	if key == "" {
		return nil, domain.NewConfigurationError("seed", "hostname or address is required")
	}
	if seedAddress == "" && identity.IsAddress(key) {
		seedAddress = key
	}

	// Detached so bookkeeping writes survive the stop signal
	bg := context.WithoutCancel(ctx)

	if _, err := e.state.Seed(bg, key, seed, seedAddress); err != nil {
		return nil, fmt.Errorf("failed to seed crawl: %w", err)
	}
	e.saveRun(bg, run)

	log := e.logger.With().Str("run_id", run.ID).Logger()
	log.Info().Str("seed", key).Int("workers", e.workers).Msg("Crawl started")
	e.publish(domain.EventCrawlStarted, key, map[string]interface{}{"workers": e.workers})

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			log.Warn().Msg("Stop requested, draining")
			e.state.Drain()
		case <-stop:
		}
	}()

	var g errgroup.Group
	for i := range e.workers {
		g.Go(func() error {
			return e.worker(ctx, i)
		})
	}
	err := g.Wait()
	close(stop)

	summary := e.summarize(run)
	e.saveRun(bg, run)

	log.Info().
		Int("done", summary.Done).
		Int("failed", summary.Failed).
		Int("pending", summary.Pending).
		Bool("stopped", summary.Stopped).
		Dur("elapsed", summary.Elapsed).
		Msg("Crawl finished")
	e.publish(domain.EventCrawlFinished, "", summary)

	return summary, err
}

// worker takes devices until the state store has no more to give
func (e *Engine) worker(ctx context.Context, id int) error {
	log := e.logger.With().Int("worker", id).Logger()

	for {
		rec, err := e.state.Next(ctx)
		switch {
		case errors.Is(err, ErrFinished), errors.Is(err, domain.ErrStopped):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %d: %w", id, err)
		}

		e.process(context.WithoutCancel(ctx), rec, log)
	}
}

// process runs one attempt on a device and commits the outcome
func (e *Engine) process(ctx context.Context, rec *domain.DeviceRecord, log zerolog.Logger) {
	start := time.Now()
	log = log.With().Str("device", rec.Key).Int("attempt", rec.Attempts+1).Logger()
	log.Debug().Msg("Processing device")

	updated, err := e.crawlDevice(ctx, rec, log)
	elapsed := time.Since(start)

	if err != nil {
		retrying, ferr := e.state.Fail(ctx, rec.Key, err)
		if ferr != nil {
			log.Error().Err(ferr).Msg("Failed to record failure")
		}
		if retrying {
			e.metrics.RecordDevice(ctx, outcomeRetry, elapsed)
			log.Warn().Err(err).Msg("Device failed, will retry")
		} else {
			e.metrics.RecordDevice(ctx, outcomeFailed, elapsed)
			log.Warn().Err(err).Msg("Device failed")
		}
		return
	}

	if err := e.state.Complete(ctx, updated); err != nil {
		log.Error().Err(err).Msg("Failed to record completion")
	}
	e.metrics.RecordDevice(ctx, outcomeDone, elapsed)
	log.Info().Dur("elapsed", elapsed).Str("platform", updated.Platform).Msg("Device done")
}

// crawlDevice connects, describes the device and walks its neighbor table.
// Only connect and the neighbor fetch can fail the device.
func (e *Engine) crawlDevice(ctx context.Context, rec *domain.DeviceRecord, log zerolog.Logger) (*domain.DeviceRecord, error) {
	session, target, err := e.strategy.Connect(ctx, rec)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	updated := rec.Clone()
	if updated.ManagementAddress == "" && identity.IsAddress(target) {
		updated.ManagementAddress = target
	}

	facts := e.describe(ctx, session, target, log)
	e.applyFacts(updated, facts)
	e.aliasHostname(updated, facts, log)

	tmpl := e.neighborRules(updated, facts)
	raw, err := session.Run(ctx, tmpl.Command())
	if err != nil {
		return nil, err
	}

	entries := extract.Neighbors(tmpl, raw, extract.WithAnomalyHandler(func(a domain.ParseAnomaly) {
		log.Debug().Str("anomaly", a.String()).Msg("Parse anomaly")
	}))
	log.Debug().Int("neighbors", len(entries)).Str("rules", tmpl.Name()).Msg("Parsed neighbor table")

	for _, n := range entries {
		e.handleNeighbor(ctx, updated, n, log)
	}

	return updated, nil
}

// describe gathers self-description; every source is best effort
func (e *Engine) describe(ctx context.Context, session adapter.Session, target string, log zerolog.Logger) domain.DeviceFacts {
	var facts domain.DeviceFacts

	if tmpl, ok := e.rules.Get(extract.RulesVersion); ok {
		if raw, err := session.Run(ctx, tmpl.Command()); err != nil {
			log.Warn().Err(err).Msg("show version failed")
		} else {
			facts.Merge(extract.VersionFacts(tmpl, raw))
		}
	}

	// Inventory values take precedence so the chassis serial beats the board ID
	if tmpl, ok := e.rules.Get(extract.RulesInventory); ok {
		if raw, err := session.Run(ctx, tmpl.Command()); err != nil {
			log.Warn().Err(err).Msg("show inventory failed")
		} else {
			inv := extract.InventoryFacts(tmpl, raw)
			inv.Merge(facts)
			facts = inv
		}
	}

	if e.facts != nil {
		extra, err := e.facts.Facts(ctx, target)
		if err != nil {
			log.Debug().Err(err).Msg("Secondary fact source failed")
		} else {
			facts.Merge(extra)
		}
	}

	return facts
}

// applyFacts copies self-reported facts onto the record
func (e *Engine) applyFacts(rec *domain.DeviceRecord, facts domain.DeviceFacts) {
	if facts.Platform != "" {
		rec.Platform = facts.Platform
	}
	if facts.Version != "" {
		rec.Version = facts.Version
	}
	if facts.Serial != "" {
		rec.Serial = facts.Serial
	}
	if facts.Model != "" {
		rec.Model = facts.Model
	}

	descriptor := strings.TrimSpace(facts.Software + " " + rec.Platform)
	if t := e.classifier.DeviceType(descriptor); t != classify.TypeUnknown || rec.DeviceType == "" {
		rec.DeviceType = t
	}
}

// aliasHostname lets neighbors that name the device by its own hostname find
// it, which matters when it was reached by address
func (e *Engine) aliasHostname(rec *domain.DeviceRecord, facts domain.DeviceFacts, log zerolog.Logger) {
	if facts.Hostname == "" {
		return
	}
	name := e.normalizer.Normalize(facts.Hostname)
	if name == "" || name == rec.Key {
		return
	}
	if e.state.Alias(rec.Key, name) {
		log.Debug().Str("hostname", name).Msg("Device known by its own hostname")
		return
	}
	log.Warn().Str("hostname", name).Msg("Hostname already belongs to another device, keeping both records")
}

// neighborRules picks the NX-OS table for Nexus devices and the IOS one otherwise
func (e *Engine) neighborRules(rec *domain.DeviceRecord, facts domain.DeviceFacts) *extract.Template {
	if rec.DeviceType == classify.TypeNXOS || classify.IsNXOS(facts.Software+" "+rec.Platform) {
		tmpl, _ := e.rules.Get(extract.RulesNXOSNeighbors)
		return tmpl
	}
	tmpl, _ := e.rules.Get(extract.RulesIOSNeighbors)
	return tmpl
}

// handleNeighbor filters, normalizes and records one neighbor entry of self
func (e *Engine) handleNeighbor(ctx context.Context, self *domain.DeviceRecord, n domain.NeighborEntry, log zerolog.Logger) {
	address := n.PrimaryAddress()
	key := e.normalizer.Key(n.DeviceID, address)
	if key == "" {
		return
	}

	if key == self.Key {
		if self.ManagementAddress == "" && address != "" {
			self.ManagementAddress = address
		}
		e.metrics.RecordNeighbor(ctx, neighborSelf)
		return
	}

	if reason := e.filterReason(n); reason != "" {
		e.metrics.RecordNeighbor(ctx, neighborFiltered)
		log.Debug().Str("neighbor", key).Str("platform", n.Platform).Str("reason", reason).Msg("Neighbor filtered")
		e.publish(domain.EventNeighborFiltered, key, map[string]interface{}{
			"from":     self.Key,
			"platform": n.Platform,
			"reason":   reason,
		})
		return
	}

	rec := domain.NewDeviceRecord(key, n.DeviceID, address)
	rec.Platform = n.Platform
	rec.Capabilities = n.Capabilities
	rec.DeviceType = e.classifier.DeviceType(n.Platform + " " + n.SoftwareVersion)

	queued, err := e.state.Discover(ctx, self.Key, rec)
	if err != nil {
		log.Error().Err(err).Str("neighbor", key).Msg("Failed to record neighbor")
	}
	if queued {
		e.metrics.RecordNeighbor(ctx, neighborQueued)
		log.Debug().Str("neighbor", key).Str("address", address).Msg("Neighbor queued")
	} else {
		e.metrics.RecordNeighbor(ctx, neighborKnown)
	}
}

// filterReason says why a neighbor is not crawled, or returns empty
func (e *Engine) filterReason(n domain.NeighborEntry) string {
	if token, excluded := e.classifier.Excluded(n.Platform); excluded {
		return "excluded platform " + token
	}
	if !e.classifier.InScope(n.Platform) {
		return "platform not included"
	}
	if e.requireAddress && n.PrimaryAddress() == "" {
		return "no management address"
	}
	return ""
}

func (e *Engine) saveRun(ctx context.Context, run *domain.CrawlRun) {
	if e.repo == nil {
		return
	}
	if err := e.repo.SaveRun(ctx, run); err != nil {
		e.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to save run")
	}
}

func (e *Engine) publish(t domain.EventType, key string, payload interface{}) {
	e.events.Publish(domain.Event{
		Type:    t,
		RunID:   e.state.RunID(),
		Key:     key,
		Time:    time.Now(),
		Payload: payload,
	})
}
