package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/activity"
	"github.com/dbehnke/ysf-gateway/pkg/config"
	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/dmrid"
	"github.com/dbehnke/ysf-gateway/pkg/gateway"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/metrics"
	"github.com/dbehnke/ysf-gateway/pkg/radioid"
	"github.com/dbehnke/ysf-gateway/pkg/web"
	"github.com/dbehnke/ysf-gateway/pkg/wiresx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	flags := pflag.NewFlagSet("ysfgateway", pflag.ExitOnError)
	showVersion := flags.BoolP("version", "v", false, "Show version information")
	validate := flags.Bool("validate", false, "Validate configuration and exit")
	logLevel := flags.String("log-level", "", "Override the configured log level")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ysfgateway [flags] [config file]\n")
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("YSFGateway %s\n", version)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	var configFile string
	if flags.NArg() > 0 {
		configFile = flags.Arg(0)
	}

	boot := bootstrapLogger()
	log := boot

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Error("Failed to load configuration", logger.Error(err))
		os.Exit(1)
	}
	if *validate {
		log.Info("Configuration is valid")
		os.Exit(0)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	out, err := logger.OpenFile(cfg.Log.File)
	if err != nil {
		log.Error("Failed to open log file", logger.Error(err))
		os.Exit(1)
	}
	if out != os.Stdout {
		defer func() { _ = out.Close() }()
	}
	log = logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})

	log.Info("Starting YSFGateway",
		logger.String("version", version),
		logger.String("commit", gitCommit),
		logger.String("callsign", cfg.Callsign()))
	web.SetVersionInfo(version, gitCommit, buildTime)

	if err := run(cfg, log); err != nil {
		if out != os.Stdout {
			log.Error("YSFGateway failed", logger.Error(err))
		}
		boot.Error("YSFGateway failed", logger.Error(err))
		os.Exit(1)
	}
	log.Info("YSFGateway stopped")
}

// bootstrapLogger reports startup failures on standard error until the
// configured log takes over
func bootstrapLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "info", Format: "text", Output: os.Stderr})
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	db, err := database.NewDB(database.Config{Path: cfg.Database.Path}, log.WithComponent("database"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", logger.Error(err))
		}
	}()
	log.Info("Database initialized", logger.String("path", cfg.Database.Path))

	if cfg.RadioID.Enabled && cfg.DMR.Enabled {
		syncer := radioid.NewSyncer(radioid.Config{
			URL:      cfg.RadioID.URL,
			Interval: cfg.RadioID.Interval,
		}, db.Users(), log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			syncer.Start(ctx)
		}()
		log.Info("RadioID syncer started")
	}

	dirs, err := loadDirectories(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to load reflectors: %w", err)
	}
	nets, err := buildNetworks(cfg, dirs, log)
	if err != nil {
		return err
	}
	nets.Directories = dirs
	nets.Lookup = dmrid.NewLookup(db.Users(), cfg.DMR.IDUnlink, log.WithComponent("dmrid"))
	nets.Storage = wiresx.NewNewsStore(db.News(), log)

	gw, err := gateway.New(gatewayConfig(cfg), nets, log)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	if cfg.Activity.Enabled {
		heard := activity.New(db.Transmissions(), activity.Config{
			MinDuration: cfg.Activity.MinDuration,
			Retention:   cfg.Activity.Retention,
		}, log)
		gw.AddObserver(heard)
		wg.Add(1)
		go func() {
			defer wg.Done()
			heard.Run(ctx)
		}()
	}

	if cfg.Metrics.Enabled {
		collector, err := metrics.NewCollector(prometheus.NewRegistry())
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		gw.AddObserver(collector)

		srv := metrics.NewServer(metrics.ServerConfig{
			Host: cfg.Metrics.Host,
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}, collector, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
	}

	if cfg.Web.Enabled {
		srv := web.NewServer(cfg.Web, gw, dirs, log)
		gw.AddObserver(srv.GetHub())
		if cfg.Activity.Enabled {
			srv.SetActivity(db.Transmissions())
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Web server error", logger.Error(err))
			}
		}()
	}

	if err := gw.Open(); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("failed to open networks: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gw.Run(ctx); err != nil {
			log.Error("Gateway error", logger.Error(err))
			cancel()
		}
	}()

	log.Info("YSFGateway initialized",
		logger.String("startup", cfg.Network.TypeStartup),
		logger.String("startup_id", cfg.Network.Startup))

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("Clean shutdown completed")
	case <-time.After(5 * time.Second):
		log.Warn("Shutdown timeout, forcing exit")
	}

	// the loop has stopped; Close unlinks and closes the sockets
	if err := gw.Close(); err != nil {
		log.Warn("Error closing networks", logger.Error(err))
	}
	return nil
}
