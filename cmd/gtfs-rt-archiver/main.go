// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command gtfs-rt-archiver polls a catalog of GTFS-Realtime feeds on their
// own schedules and archives every successful response as a timestamped
// protobuf object in Cloud Storage.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/storage"
	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"
	"google.golang.org/api/option"

	"github.com/KimMachineGun/automemlimit/memlimit"

	"github.com/transitfeeds/gtfs-rt-archive/internal/blobstore"
	"github.com/transitfeeds/gtfs-rt-archive/internal/config"
	"github.com/transitfeeds/gtfs-rt-archive/internal/fetcher"
	"github.com/transitfeeds/gtfs-rt-archive/internal/health"
	"github.com/transitfeeds/gtfs-rt-archive/internal/logging"
	"github.com/transitfeeds/gtfs-rt-archive/internal/metrics"
	"github.com/transitfeeds/gtfs-rt-archive/internal/scheduler"
	"github.com/transitfeeds/gtfs-rt-archive/internal/secrets"
)

func main() {
	a := kingpin.New("gtfs-rt-archiver", "Archives GTFS-Realtime snapshots to Cloud Storage.")
	a.HelpFlag.Short('h')

	configPath := a.Flag("config-path", "Path to the feed catalog YAML.").
		Envar("CONFIG_PATH").Default("config.yaml").String()
	bucket := a.Flag("gcs-bucket", "Destination Cloud Storage bucket.").
		Envar("GCS_BUCKET_RT_PROTOBUF").Required().String()
	maxConcurrent := a.Flag("max-concurrent", "Global concurrent fetch+write ceiling.").
		Envar("MAX_CONCURRENT").Default("100").Int()
	healthPort := a.Flag("health-port", "Port for the health/metrics HTTP server.").
		Envar("HEALTH_PORT").Default("8080").Int()
	logLevel := a.Flag("log.level", "Logging level.").
		Envar("LOG_LEVEL").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := a.Flag("log.format", "Logging format.").
		Envar("LOG_FORMAT").Default("json").Enum("json", "text")
	shardIndex := a.Flag("shard-index", "This replica's shard index.").
		Envar("SHARD_INDEX").Default("0").Int()
	totalShards := a.Flag("total-shards", "Total number of shards.").
		Envar("TOTAL_SHARDS").Default("1").Int()
	gcpProject := a.Flag("gcp-project", "Google Cloud project ID for Secret Manager.").
		Envar("GCP_PROJECT").String()

	if _, err := a.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error parsing commandline arguments:", err)
		a.Usage(os.Args[1:])
		os.Exit(2)
	}

	logger, err := logging.NewStderr(*logFormat, *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid logging configuration:", err)
		os.Exit(2)
	}

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		_ = level.Debug(logger).Log("msg", fmt.Sprintf(format, args...))
	})); err != nil {
		_ = level.Warn(logger).Log("msg", "failed to set GOMAXPROCS", "err", err)
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(0.9)); err != nil {
		_ = level.Warn(logger).Log("msg", "failed to set GOMEMLIMIT", "err", err)
	}

	if *shardIndex < 0 || *totalShards < 1 || *shardIndex >= *totalShards {
		_ = level.Error(logger).Log("msg", "invalid shard configuration", "shard_index", *shardIndex, "total_shards", *totalShards)
		os.Exit(1)
	}
	if *maxConcurrent < 1 || *maxConcurrent > 500 {
		_ = level.Error(logger).Log("msg", "max-concurrent out of range [1,500]", "value", *maxConcurrent)
		os.Exit(1)
	}
	if *healthPort < 1 || *healthPort > 65535 {
		_ = level.Error(logger).Log("msg", "health-port out of range [1,65535]", "value", *healthPort)
		os.Exit(1)
	}

	ctx := context.Background()

	project := *gcpProject
	if project == "" && metadata.OnGCE() {
		project, err = metadata.ProjectIDWithContext(ctx)
		if err != nil {
			_ = level.Warn(logger).Log("msg", "unable to detect Google Cloud project", "err", err)
		}
	}

	specs, err := config.Load(*configPath)
	if err != nil {
		_ = level.Error(logger).Log("msg", "failed to load feed catalog", "err", err)
		os.Exit(1)
	}

	secretBackend, err := secrets.NewGCPBackend(ctx, project)
	if err != nil {
		_ = level.Error(logger).Log("msg", "failed to create secret manager client", "err", err)
		os.Exit(1)
	}
	secretManager := secrets.NewManager(secretBackend)
	if err := secretManager.ResolveAll(ctx, specs); err != nil {
		_ = level.Error(logger).Log("msg", "failed to resolve feed secrets", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	archiverMetrics := metrics.NewArchiver(reg)

	tokenSource, err := blobstore.NewTokenSource(ctx)
	if err != nil {
		_ = level.Error(logger).Log("msg", "failed to build Cloud Storage token source", "err", err)
		os.Exit(1)
	}
	gcsClient, err := storage.NewClient(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		_ = level.Error(logger).Log("msg", "failed to create Cloud Storage client", "err", err)
		os.Exit(1)
	}
	store := blobstore.NewStore(gcsClient, *bucket)
	writer := blobstore.NewWriter(store, true)
	httpFetcher := fetcher.New()

	sched := scheduler.New(logger, httpFetcher, writer, archiverMetrics, specs, scheduler.Options{
		ShardIndex:    *shardIndex,
		TotalShards:   *totalShards,
		MaxConcurrent: *maxConcurrent,
	})

	startTime := time.Now()
	healthHandler := health.New(sched, startTime)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/ready", healthHandler.Ready)
	mux.HandleFunc("/health/feeds", healthHandler.Feeds)

	server := &http.Server{Addr: fmt.Sprintf(":%d", *healthPort), Handler: mux}

	var g run.Group
	{
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		g.Add(func() error {
			select {
			case <-term:
				_ = level.Info(logger).Log("msg", "received SIGTERM, exiting gracefully...")
			case <-cancel:
			}
			return nil
		}, func(error) {
			close(cancel)
		})
	}
	{
		// Scheduler.Start only launches the per-feed dispatch loops and
		// returns; it does not block for the process lifetime. Wrap it in a
		// local done channel so this actor blocks until the interrupt
		// function drains in-flight ticks, matching the blocking-Run
		// convention the other actors in this group follow.
		done := make(chan struct{})
		g.Add(func() error {
			if err := sched.Start(ctx); err != nil {
				return err
			}
			<-done
			return nil
		}, func(error) {
			sched.Stop(true)
			_ = gcsClient.Close()
			close(done)
		})
	}
	{
		g.Add(func() error {
			_ = level.Info(logger).Log("msg", "starting health server", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				_ = level.Error(logger).Log("msg", "health server failed to shut down gracefully", "err", err)
			}
		})
	}

	_ = level.Info(logger).Log("msg", "gtfs-rt-archiver starting", "feeds", len(specs), "shard_index", *shardIndex, "total_shards", *totalShards)
	if err := g.Run(); err != nil {
		_ = level.Error(logger).Log("msg", "exited with error", "err", err)
		os.Exit(1)
	}
}
