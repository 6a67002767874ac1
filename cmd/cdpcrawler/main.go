// Command cdpcrawler walks a Cisco network breadth-first over CDP, starting
// from one seed device, and writes an inventory of every device it reached.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cdpcrawler/internal/config"
	"cdpcrawler/internal/domain"
	"cdpcrawler/internal/logger"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
	exitStopped = 130
)

// overrides are command line values that take precedence over the config file
type overrides struct {
	seed        string
	seedAddress string
	username    string
	workers     int
	maxRetries  int
	fresh       bool
	format      string
	outputDir   string
	dbPath      string
	httpAddr    string
	debug       bool
}

func (o overrides) apply(cfg *config.Config) {
	if o.seed != "" {
		cfg.Seed.Hostname = o.seed
	}
	if o.seedAddress != "" {
		cfg.Seed.Address = o.seedAddress
	}
	if o.username != "" {
		cfg.Credentials.Username = o.username
	}
	if o.workers > 0 {
		cfg.Crawl.Workers = o.workers
	}
	if o.maxRetries >= 0 {
		retries := o.maxRetries
		cfg.Crawl.MaxRetries = &retries
	}
	if o.fresh {
		cfg.Crawl.Fresh = true
	}
	if o.format != "" {
		cfg.Output.Format = o.format
		cfg.Output.InventoryFile = "inventory." + o.format
	}
	if o.outputDir != "" {
		cfg.Output.Directory = o.outputDir
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.httpAddr != "" {
		cfg.HTTP.Addr = o.httpAddr
	}
	if o.debug {
		cfg.Logging.Debug = true
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("cdpcrawler", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (default: search standard locations)")
	var o overrides
	fs.StringVar(&o.seed, "seed", "", "seed device hostname or address")
	fs.StringVar(&o.seedAddress, "seed-address", "", "management address of the seed device")
	fs.StringVar(&o.username, "username", "", "SSH username")
	fs.IntVar(&o.workers, "workers", 0, "number of concurrent workers")
	fs.IntVar(&o.maxRetries, "max-retries", -1, "retries per failing device")
	fs.BoolVar(&o.fresh, "fresh", false, "discard stored crawl state instead of resuming")
	fs.StringVar(&o.format, "format", "", "inventory format: csv, json or yaml")
	fs.StringVar(&o.outputDir, "output", "", "inventory output directory")
	fs.StringVar(&o.dbPath, "db", "", "state database path, :memory: for none")
	fs.StringVar(&o.httpAddr, "http", "", "serve the status API on this address")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg, path, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cdpcrawler: %v\n", err)
		return exitConfig
	}
	o.apply(cfg)

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "cdpcrawler: logging: %v\n", err)
		return exitConfig
	}
	log := logger.WithComponent("main")
	if path != "" {
		log.Info().Str("path", path).Msg("Loaded config")
	}

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Startup failed")
		if errors.Is(err, domain.ErrConfiguration) {
			return exitConfig
		}
		return exitFailure
	}
	defer app.Close()

	summary, err := app.Crawl(ctx)
	if summary != nil {
		printSummary(os.Stdout, summary)
	}
	if err != nil {
		log.Error().Err(err).Msg("Crawl failed")
		return exitFailure
	}
	if summary.Stopped {
		return exitStopped
	}
	return exitOK
}
