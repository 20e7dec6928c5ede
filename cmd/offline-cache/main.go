package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	offlinecache "github.com/always-cache/offline-cache"
	"github.com/always-cache/offline-cache/cache"
	offlinequeue "github.com/always-cache/offline-cache/pkg/offline-queue"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	scopeFlag          string
	upstreamFlag       string
	hostFlag           string
	dbFilenameFlag     string
	queueDirFlag       string
	cacheVersionFlag   string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to YAML config file")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&scopeFlag, "scope", "", "Origin of the controlled pages, e.g. https://app.example")
	flag.StringVar(&upstreamFlag, "upstream", "", "URL to send network requests to (defaults to scope)")
	flag.StringVar(&hostFlag, "host", "", "Hostname of upstream")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name (use 'memory' for in-memory storage)")
	flag.StringVar(&queueDirFlag, "queue", "", "Offline action queue directory")
	flag.StringVar(&cacheVersionFlag, "cache-version", "", "Version token of the cache partitions")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config, err := getConfig(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read config")
	}
	applyFlags(&config)
	if err := config.validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	scope, err := url.Parse(config.Scope)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse scope")
	}
	workerConfig := offlinecache.Config{
		Scope:          *scope,
		UpstreamHost:   config.UpstreamHost,
		Version:        config.Version,
		OfflinePage:    config.OfflinePage,
		AppShell:       config.AppShell,
		NetworkTimeout: config.NetworkTimeout,
		WaitForSkip:    config.WaitForSkip,
		Metrics:        offlinecache.NewMetrics(),
		Logger:         &log.Logger,
	}
	if config.Upstream != "" {
		upstream, err := url.Parse(config.Upstream)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not parse upstream")
		}
		workerConfig.Upstream = upstream
	}

	// use configured storage driver
	switch config.Storage.Driver {
	case "memory":
		workerConfig.Storage = cache.NewMemStorage()
	case "sqlite":
		storage, err := cache.NewSQLiteStorage(config.Storage.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", config.Storage.Path).Msg("Could not open cache storage")
		}
		workerConfig.Storage = storage
	}
	defer workerConfig.Storage.Close()

	if config.Queue.Path != "" {
		queue, err := offlinequeue.Open(config.Queue.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open offline queue")
		}
		defer queue.Close()
		workerConfig.Queue = queue
	}

	worker := offlinecache.CreateWorker(workerConfig)
	defer worker.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           offlinecache.NewRouter(worker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Msgf("Serving scope %s on port %v (upstream '%s')", scope, config.Port, config.Upstream)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			stop()
		}
	}()

	// requests pass through until the worker is activated
	if err := worker.Register(ctx); err != nil {
		log.Error().Err(err).Msg("Registration failed, retry with POST " + offlinecache.ControlPrefix + "/register")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Shutdown incomplete")
	}
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(config *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			config.Port = portFlag
		case "scope":
			config.Scope = scopeFlag
		case "upstream":
			config.Upstream = upstreamFlag
		case "host":
			config.UpstreamHost = hostFlag
		case "db":
			if dbFilenameFlag == "memory" {
				config.Storage.Driver = "memory"
			} else {
				config.Storage.Driver = "sqlite"
				config.Storage.Path = dbFilenameFlag
			}
		case "queue":
			config.Queue.Path = queueDirFlag
		case "cache-version":
			config.Version = cacheVersionFlag
		}
	})
}
