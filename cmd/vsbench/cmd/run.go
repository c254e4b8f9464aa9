package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dshills/vsbench/benchmark"
	"github.com/dshills/vsbench/config"
	"github.com/dshills/vsbench/core"
	"github.com/dshills/vsbench/metrics"
	"github.com/dshills/vsbench/mockserver"
	"github.com/dshills/vsbench/persistence"
)

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd.Flags())
}

// runFlagKeys maps each run flag to the config key it overrides
var runFlagKeys = map[string]string{
	"base-url":       "scenario.client.base_url",
	"naming":         "scenario.client.wire.naming",
	"filter-form":    "scenario.client.wire.filter",
	"index":          "scenario.index.name",
	"dimension":      "scenario.index.dimension",
	"space":          "scenario.index.space",
	"kind":           "scenario.index.kind",
	"batches":        "scenario.ingest.batches",
	"batch-size":     "scenario.ingest.batch_size",
	"add-clients":    "scenario.ingest.concurrency",
	"queries":        "scenario.search.queries",
	"k":              "scenario.search.k",
	"ef-search":      "scenario.search.ef_search",
	"search-clients": "scenario.search.concurrency",
	"filters":        "scenario.search.filters",
	"metadata":       "scenario.workload.with_metadata",
	"seed":           "scenario.workload.seed",
	"pool-size":      "scenario.pool.size",
	"lifecycle":      "scenario.lifecycle",
	"cleanup":        "scenario.cleanup",
	"format":         "report.format",
	"output":         "report.output",
	"metrics-listen": "metrics.listen",
	"mock-latency":   "server.latency",
	"log-level":      "logging.level",
	"mock":           "mock",
}

func addRunFlags(f *pflag.FlagSet) {
	f.String("base-url", "", "Base URL of the search service")
	f.String("naming", "", "Request field naming: camel or snake")
	f.String("filter-form", "", "Filter encoding: string or structured")
	f.String("index", "", "Index name")
	f.Int("dimension", 0, "Vector dimension")
	f.String("space", "", "Distance space: L2 or IP")
	f.String("kind", "", "Index kind: Flat or Approximate")
	f.Int("batches", 0, "Number of add_documents batches")
	f.Int("batch-size", 0, "Documents per batch")
	f.Int("add-clients", 0, "Concurrent ingest workers")
	f.Int("queries", 0, "Queries per search phase")
	f.Int("k", 0, "Neighbors per query")
	f.Int("ef-search", 0, "efSearch per query")
	f.Int("search-clients", 0, "Concurrent search workers")
	f.StringSlice("filters", nil, "Filter catalog entries to run (none, exact, greater_than, less_than, and, or, all); filters other than none need --metadata")
	f.Bool("metadata", false, "Attach metadata to generated documents")
	f.Int64("seed", 0, "Random seed for vector generation")
	f.Int("pool-size", 0, "Connection pool size (default: largest concurrency)")
	f.Bool("lifecycle", false, "Run the save/delete/load/delete-from-disk phases")
	f.Bool("cleanup", true, "Delete the index after the run")
	f.String("format", "", "Report format: table or json")
	f.String("output", "", "Report destination: stdout or a file path")
	f.String("metrics-listen", "", "Serve Prometheus metrics on this address")
	f.Bool("mock", false, "Run against an in-process mock service")
	f.Duration("mock-latency", 0, "Latency added by the in-process mock service")
}

// bindRunFlags binds the flags set on the command line to their config
// keys. Unset flags stay unbound so their defaults never mask the file.
func bindRunFlags(v *viper.Viper, f *pflag.FlagSet) error {
	var err error
	f.Visit(func(flag *pflag.Flag) {
		key, ok := runFlagKeys[flag.Name]
		if !ok || err != nil {
			return
		}
		if bindErr := v.BindPFlag(key, flag); bindErr != nil {
			err = fmt.Errorf("binding --%s: %w", flag.Name, bindErr)
		}
	})
	return err
}

// resolveConfig hands the loaded configuration to v as its config layer and
// decodes the result, so bound flags take precedence over the file and
// environment.
func resolveConfig(v *viper.Viper, cfg *config.Config) (*config.Config, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding loaded config: %w", err)
	}

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("reading loaded config: %w", err)
	}

	resolved := &config.Config{}
	if err := v.Unmarshal(resolved, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, core.ConfigErrorf("applying flags: %v", err)
	}

	if err := resolved.Validate(); err != nil {
		return nil, err
	}
	return resolved, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a benchmark scenario",
	Long: `Run a benchmark scenario against the service.

Flags override values from the config file and VSBENCH_* environment variables.
The command exits non-zero when the run is aborted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := bindRunFlags(viper.GetViper(), cmd.Flags()); err != nil {
			return err
		}
		cfg, err := resolveConfig(viper.GetViper(), loaded)
		if err != nil {
			return err
		}

		closeLog, err := config.SetupLogging(cfg.Logging)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if viper.GetBool("mock") {
			stopMock, err := startMock(cfg)
			if err != nil {
				return err
			}
			defer stopMock()
		}

		var opts []benchmark.Option
		if cfg.Metrics.Listen != "" {
			collector, stopMetrics, err := serveMetrics(cfg.Metrics.Listen)
			if err != nil {
				return err
			}
			defer stopMetrics()
			opts = append(opts, benchmark.WithObservers(collector))
		}

		report, runErr := benchmark.NewRunner(cfg.Scenario, opts...).Run(ctx)
		if report != nil {
			if err := writeReport(cfg.Report, report); err != nil {
				log.WithError(err).Error("Failed to write report")
			}
		}
		return runErr
	},
}

// startMock serves the mock service on a loopback port and points the
// scenario at it.
func startMock(cfg *config.Config) (func(), error) {
	store, err := persistence.NewStore(cfg.Persistence)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to listen for mock service: %w", err)
	}

	srv := &http.Server{
		Handler:     mockserver.NewServer(store, cfg.Server),
		IdleTimeout: cfg.Server.IdleTimeout,
	}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Mock service stopped")
		}
	}()

	cfg.Scenario.Client.BaseURL = "http://" + l.Addr().String()
	log.WithField("url", cfg.Scenario.Client.BaseURL).Info("Started in-process mock service")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Mock service shutdown failed")
		}
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Snapshot store close failed")
		}
	}, nil
}

// serveMetrics exposes a Prometheus registry fed by the returned collector
func serveMetrics(addr string) (*metrics.Collector, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics endpoint stopped")
		}
	}()
	log.WithField("addr", addr).Info("Serving Prometheus metrics")

	return collector, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func writeReport(cfg config.ReportConfig, report *benchmark.Report) error {
	var w io.Writer = os.Stdout
	if cfg.Output != "" && cfg.Output != "stdout" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if cfg.Format == "json" {
		return benchmark.WriteJSON(w, report)
	}
	benchmark.PrintReport(w, report)
	return nil
}
