// Command rowsync replicates rows from a source database to one or more
// target databases.
//
// Without a subcommand, rowsync runs replication cycles on the configured
// interval and serves Prometheus metrics:
//
//     rowsync -config PATH_TO_CONFIG
//
// Additionally, rowsync has subcommands for common tasks:
//
// Sync
//
// The subcommand "sync" runs a single replication cycle and prints what it did:
//
//     rowsync -config PATH_TO_CONFIG sync
//
// Status
//
// The subcommand "status" lists the most recent cycles recorded in the
// source database. It requires the sync.history option:
//
//     rowsync -config PATH_TO_CONFIG status [-limit 10]
//
// SQL Ping
//
// The subcommand "sql-ping" checks if the source and every target database
// are reachable:
//
//     rowsync -config PATH_TO_CONFIG sql-ping
//
// SQL Migrate
//
// The subcommand "sql-migrate" creates or updates the tables rowsync keeps
// in the source database:
//
//     rowsync -config PATH_TO_CONFIG sql-migrate [-ignore-unknown=true|false]
//
// The subcommand "sql-migrate-status" shows which migrations have been applied:
//
//     rowsync -config PATH_TO_CONFIG sql-migrate-status
//
// Check Config
//
// The subcommand "check-config" verifies every configured entity can be
// replicated with the configured dialects without connecting to any database:
//
//     rowsync -config PATH_TO_CONFIG check-config
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/gitlab-org/rowsync/internal/dontpanic"
	"gitlab.com/gitlab-org/rowsync/internal/helper"
	"gitlab.com/gitlab-org/rowsync/internal/log"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/config"
	"gitlab.com/gitlab-org/rowsync/internal/version"
)

var (
	flagConfig  = flag.String("config", "", "Location for the config.toml")
	flagVersion = flag.Bool("version", false, "Print version and exit")
	logger      = log.Default()

	errNoConfigFile = errors.New("the config flag must be passed")
)

const progname = "rowsync"

func main() {
	flag.Usage = func() {
		cmds := []string{}
		for k := range subcommands {
			cmds = append(cmds, k)
		}
		sort.Strings(cmds)

		printfErr("Usage of %s:\n", progname)
		flag.PrintDefaults()
		printfErr("  subcommand (optional)\n")
		printfErr("\tOne of %s\n", strings.Join(cmds, ", "))
	}
	flag.Parse()

	// If invoked with -version
	if *flagVersion {
		fmt.Println(version.GetVersionString())
		os.Exit(0)
	}

	conf, err := initConfig()
	if err != nil {
		printfErr("%s: configuration error: %v\n", progname, err)
		os.Exit(1)
	}

	if err := log.Configure(log.Loggers, conf.Logging.Format, conf.Logging.Level); err != nil {
		printfErr("%s: configuration error: %v\n", progname, err)
		os.Exit(1)
	}

	if args := flag.Args(); len(args) > 0 {
		os.Exit(subCommand(conf, args[0], args[1:]))
	}

	configureSentry(conf.Sentry)

	logger.WithField("version", version.GetVersionString()).Info("Starting " + progname)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	if err := run(ctx, conf, registry); err != nil {
		logger.Fatalf("%v", err)
	}
}

func initConfig() (config.Config, error) {
	var conf config.Config

	if *flagConfig == "" {
		return conf, errNoConfigFile
	}

	conf, err := config.FromFile(*flagConfig)
	if err != nil {
		return conf, fmt.Errorf("error reading config file: %v", err)
	}

	if err := conf.Validate(); err != nil {
		return config.Config{}, err
	}

	return conf, nil
}

func configureSentry(conf config.Sentry) {
	if conf.DSN == "" {
		return
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         conf.DSN,
		Environment: conf.Environment,
		Release:     "v" + version.GetVersion(),
	}); err != nil {
		logger.WithError(err).Warn("Unable to initialize sentry client")
		return
	}

	logger.Debug("Using sentry logging")
}

func run(ctx context.Context, conf config.Config, registry *prometheus.Registry) error {
	logger.Info("establishing database connections ...")
	r, err := newReplicator(ctx, logger, conf)
	if err != nil {
		return err
	}
	defer r.Close()
	logger.WithField("targets", conf.TargetNames()).Info("database connections established")

	registry.MustRegister(r.collector)

	if conf.PrometheusListenAddr != "" {
		logger.WithField("address", conf.PrometheusListenAddr).Info("Starting prometheus listener")

		l, err := net.Listen("tcp", conf.PrometheusListenAddr)
		if err != nil {
			return fmt.Errorf("prometheus listener: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Handler: mux}
		defer srv.Close()

		dontpanic.Go(logger, func() {
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("prometheus listener stopped")
			}
		})
	}

	interval := conf.Sync.Interval.Duration()
	if interval == 0 {
		logger.Info("sync interval is 0, no cycles are scheduled")
		<-ctx.Done()
		return nil
	}

	runner := rowsync.NewRunner(logger, r.cycle)
	if err := runner.Run(ctx, helper.NewTimerTicker(interval)); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
