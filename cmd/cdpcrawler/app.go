package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"cdpcrawler/internal/adapter"
	"cdpcrawler/internal/classify"
	"cdpcrawler/internal/codec"
	"cdpcrawler/internal/config"
	"cdpcrawler/internal/crawl"
	"cdpcrawler/internal/domain"
	"cdpcrawler/internal/extract"
	"cdpcrawler/internal/handler"
	"cdpcrawler/internal/hub"
	"cdpcrawler/internal/identity"
	"cdpcrawler/internal/logger"
	"cdpcrawler/internal/repository"
	"cdpcrawler/internal/repository/memory"
	"cdpcrawler/internal/repository/sqlite"
	"cdpcrawler/internal/watcher"
)

// app holds the wired components of one crawl
type app struct {
	cfg      *config.Config
	repo     repository.Repository
	bus      *crawl.EventBus
	state    *crawl.State
	engine   *crawl.Engine
	reporter *crawl.Reporter
	reader   *sdkmetric.ManualReader
	logger   zerolog.Logger

	// shutdown hooks run in reverse order by Close
	closers []func()
	wg      sync.WaitGroup
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger.WithComponent("main")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openRepository(ctx); err != nil {
		return nil, err
	}

	rules, err := extract.LoadBuiltin()
	if err != nil {
		return nil, fmt.Errorf("failed to load rule sets: %w", err)
	}
	for name, path := range cfg.Rules.Overrides {
		if err := rules.Override(name, path); err != nil {
			return nil, err
		}
		a.logger.Info().Str("rules", name).Str("path", path).Msg("Rule set overridden")
	}
	for _, name := range rules.Names() {
		tmpl, _ := rules.Get(name)
		a.logger.Debug().
			Str("rules", name).
			Str("command", tmpl.Command()).
			Str("identity", tmpl.Identity()).
			Strs("slots", tmpl.SlotNames()).
			Msg("Rule set loaded")
	}
	if cfg.Rules.Watch && len(cfg.Rules.Overrides) > 0 {
		if err := a.watchRules(rules); err != nil {
			return nil, err
		}
	}

	classifier, err := classify.New(cfg.Filtering.ExcludePlatforms, cfg.Filtering.IncludePlatforms)
	if err != nil {
		return nil, err
	}

	dialer, err := buildDialer(cfg)
	if err != nil {
		return nil, err
	}

	a.bus = crawl.NewEventBus()
	a.reader = sdkmetric.NewManualReader()
	metrics, err := crawl.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.reader)))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	a.state = crawl.NewState(a.repo,
		crawl.WithRetryCeiling(cfg.Crawl.RetryCeiling()),
		crawl.WithRetryDelay(cfg.Crawl.RetryDelay.Duration()),
		crawl.WithStateLogger(logger.WithComponent("state")),
		crawl.WithPublisher(a.bus),
	)
	restored, err := a.state.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore crawl state: %w", err)
	}
	if restored > 0 {
		a.logger.Info().Int("requeued", restored).Msg("Resuming previous crawl")
	}

	opts := []crawl.Option{
		crawl.WithWorkers(cfg.Crawl.Workers),
		crawl.WithLogger(logger.WithComponent("engine")),
		crawl.WithEvents(a.bus),
		crawl.WithMetrics(metrics),
		crawl.WithRequireManagementAddress(cfg.Crawl.RequireManagementAddress),
		crawl.WithRepository(a.repo),
	}
	if cfg.SNMP.Enabled {
		enricher, err := adapter.NewSNMPEnricher(adapter.SNMPConfig{
			Community: cfg.SNMP.Community,
			Version:   cfg.SNMP.Version,
			Port:      cfg.SNMP.Port,
			Timeout:   cfg.SNMP.Timeout.Duration(),
			Retries:   cfg.SNMP.Retries,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, crawl.WithFactSource(enricher))
	}

	a.engine, err = crawl.NewEngine(a.state,
		crawl.NewStrategy(dialer, logger.WithComponent("strategy")),
		rules, classifier, buildNormalizer(cfg.Normalize), opts...)
	if err != nil {
		return nil, err
	}

	a.reporter = crawl.NewReporter(a.state, cfg.Crawl.ProgressInterval.Duration(), a.bus, logger.WithComponent("progress"))

	if cfg.Events.NATSURL != "" {
		if err := a.startNATS(); err != nil {
			return nil, err
		}
	}
	if cfg.HTTP.Addr != "" {
		a.startHTTP()
	}

	return a, nil
}

func (a *app) openRepository(ctx context.Context) error {
	if a.cfg.Database.Path == ":memory:" {
		a.repo = memory.New()
		return nil
	}

	if err := config.EnsureDir(a.cfg.Database.Path); err != nil {
		return fmt.Errorf("failed to create database dir: %w", err)
	}
	repo, err := sqlite.New(a.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, func() { repo.Close() })
	a.logger.Info().Str("path", a.cfg.Database.Path).Msg("Database opened")

	if a.cfg.Crawl.Fresh {
		if err := repo.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset crawl state: %w", err)
		}
		a.logger.Info().Msg("Stored crawl state discarded")
	}
	return nil
}

// watchRules reloads an override file when it changes. A file that no longer
// compiles leaves the previous rule set in place.
func (a *app) watchRules(rules *extract.Library) error {
	log := logger.WithComponent("rules")

	names := make(map[string]string, len(a.cfg.Rules.Overrides))
	paths := make([]string, 0, len(a.cfg.Rules.Overrides))
	for name, path := range a.cfg.Rules.Overrides {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		names[abs] = name
		paths = append(paths, abs)
	}

	w := watcher.New(paths, func(path string) {
		if err := rules.Override(names[path], path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Rule set reload failed, keeping previous")
			return
		}
		log.Info().Str("rules", names[path]).Msg("Rule set reloaded")
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Rule watcher stopped")
		}
	}()
	a.closers = append(a.closers, cancel)
	return nil
}

func buildDialer(cfg *config.Config) (adapter.Dialer, error) {
	ssh, err := adapter.NewSSHDialer(adapter.SSHConfig{
		Username:         cfg.Credentials.Username,
		Password:         cfg.Password(),
		KeyPath:          cfg.Credentials.KeyPath,
		KnownHostsPath:   cfg.Credentials.KnownHostsPath,
		Port:             cfg.Credentials.Port,
		ConnectTimeout:   cfg.Crawl.ConnectTimeout.Duration(),
		CommandTimeout:   cfg.Crawl.CommandTimeout.Duration(),
		LegacyAlgorithms: cfg.Credentials.LegacyAlgorithms,
	})
	if err != nil {
		return nil, err
	}
	if !cfg.Preflight.Enabled {
		return ssh, nil
	}
	return adapter.NewNmapPreflight(ssh,
		adapter.WithProbePort(uint16(cfg.Credentials.Port)),
		adapter.WithProbeTimeout(cfg.Preflight.Timeout.Duration()),
		adapter.WithPreflightLogger(logger.WithComponent("preflight")),
	), nil
}

func buildNormalizer(cfg config.NormalizeConfig) *identity.Normalizer {
	suffixes := append([]string{}, identity.DefaultPrivateSuffixes...)
	suffixes = append(suffixes, cfg.DomainSuffixes...)

	policies := []identity.DomainPolicy{identity.NewSuffixPolicy(suffixes...)}
	if cfg.UsePublicSuffixes() {
		policies = append(policies, identity.PublicSuffixPolicy{})
	}
	return identity.New(policies...)
}

func (a *app) startNATS() error {
	log := logger.WithComponent("nats")
	sink, err := adapter.ConnectNATSSink(a.cfg.Events.NATSURL, a.cfg.Events.Subject, log)
	if err != nil {
		return err
	}

	events := make(chan domain.Event, 256)
	a.bus.Subscribe(events)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sink.Run(context.Background(), events)
	}()

	a.closers = append(a.closers, func() {
		a.bus.Unsubscribe(events)
		close(events)
		<-done
		if err := sink.Close(); err != nil {
			log.Warn().Err(err).Msg("NATS drain failed")
		}
	})
	log.Info().Str("url", a.cfg.Events.NATSURL).Str("subject", a.cfg.Events.Subject).Msg("Publishing events")
	return nil
}

func (a *app) startHTTP() {
	log := logger.WithComponent("http")

	hubCtx, stopHub := context.WithCancel(context.Background())
	sseHub := hub.New(logger.WithComponent("hub"))
	go sseHub.Run(hubCtx)

	events := make(chan domain.Event, 256)
	a.bus.Subscribe(events)
	go sseHub.Forward(events)

	status := handler.NewStatusHandler(a.state, a.reporter, log)
	server := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler.Chain(handler.Routes(status, sseHub), handler.Recover(log), handler.Logger(log)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Info().Str("addr", server.Addr).Msg("Status API listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Status API failed")
		}
	}()

	a.closers = append(a.closers, func() {
		a.bus.Unsubscribe(events)
		close(events)
		stopHub()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Status API shutdown error")
		}
	})
}

// Crawl runs the engine, then writes the inventory from whatever state was
// reached, including after a stop.
func (a *app) Crawl(ctx context.Context) (*crawl.Summary, error) {
	reportCtx, stopReports := context.WithCancel(ctx)
	go a.reporter.Run(reportCtx)

	seed := a.cfg.Seed.Hostname
	if seed == "" {
		seed = a.cfg.Seed.Address
	}
	summary, err := a.engine.Run(ctx, seed, a.cfg.Seed.Address)
	stopReports()
	if summary == nil {
		return nil, err
	}
	a.reporter.Report()

	if exportErr := a.export(); exportErr != nil {
		err = errors.Join(err, exportErr)
	}
	a.logMetrics()
	return summary, err
}

func (a *app) export() error {
	exporter, err := codec.ForFormat(a.cfg.Output.Format)
	if err != nil {
		return err
	}

	path := a.cfg.InventoryPath()
	if err := config.EnsureDir(path); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create inventory: %w", err)
	}

	devices := a.state.Snapshot()
	if err := exporter.Export(devices, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write inventory: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write inventory: %w", err)
	}

	a.logger.Info().Str("path", path).Str("format", exporter.Format()).Int("devices", len(devices)).Msg("Inventory written")
	return nil
}

// logMetrics logs the final counter totals at debug level
func (a *app) logMetrics() {
	var rm metricdata.ResourceMetrics
	if err := a.reader.Collect(context.Background(), &rm); err != nil {
		a.logger.Debug().Err(err).Msg("Metric collection failed")
		return
	}

	ev := a.logger.Debug()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			ev = ev.Int64(m.Name, total)
		}
	}
	ev.Msg("Crawl metrics")
}

// Close runs shutdown hooks in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.wg.Wait()
}
