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

// Command gtfs-rt-compactor runs a single partition compaction: it reads
// one day's archived protobuf snapshots for one feed and writes one
// Parquet file. It is meant to be invoked per-partition by an external
// orchestrator (cron, a workflow engine, a batch job) — fanning out across
// partitions is out of scope, per §4.6.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/api/option"

	"github.com/transitfeeds/gtfs-rt-archive/internal/blobstore"
	"github.com/transitfeeds/gtfs-rt-archive/internal/compactor"
	"github.com/transitfeeds/gtfs-rt-archive/internal/logging"
	"github.com/transitfeeds/gtfs-rt-archive/internal/metrics"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

func main() {
	a := kingpin.New("gtfs-rt-compactor", "Compacts one day's archived GTFS-Realtime snapshots into a Parquet file.")
	a.HelpFlag.Short('h')

	bucket := a.Flag("gcs-bucket", "Cloud Storage bucket holding archived objects.").
		Envar("GCS_BUCKET_RT_PROTOBUF").Required().String()
	feedType := a.Flag("feed-type", "Feed type to compact.").
		Required().Enum("vehicle_positions", "trip_updates", "service_alerts")
	date := a.Flag("date", "Calendar date to compact, YYYY-MM-DD.").Required().String()
	feedURL := a.Flag("feed-url", "Canonical feed URL identifying the partition.").Required().String()
	logLevel := a.Flag("log.level", "Logging level.").Envar("LOG_LEVEL").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := a.Flag("log.format", "Logging format.").Envar("LOG_FORMAT").Default("json").Enum("json", "text")

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

	feedKey, err := gtfsrt.URLToFeedKey(*feedURL)
	if err != nil {
		_ = level.Error(logger).Log("msg", "invalid feed URL", "err", err)
		os.Exit(1)
	}
	key := gtfsrt.PartitionKey{FeedType: gtfsrt.FeedType(*feedType), DateString: *date, FeedKey: feedKey}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

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

	reg := prometheus.NewRegistry()
	compactorMetrics := metrics.NewCompactor(reg)

	c := compactor.New(store, logger, compactorMetrics)
	result, err := c.Compact(ctx, key)
	if err != nil {
		_ = level.Error(logger).Log("msg", "compaction failed", "feed_type", *feedType, "date", *date, "err", err)
		dumpMetrics(logger, reg)
		os.Exit(1)
	}

	_ = level.Info(logger).Log("msg", "compaction complete",
		"feed_type", *feedType, "date", *date,
		"input_objects", result.InputObjectCount, "output_rows", result.OutputRowCount)
	dumpMetrics(logger, reg)
}

// dumpMetrics writes the run's gathered metrics to stdout in Prometheus
// text exposition format. The compactor runs as a one-shot CLI invocation
// rather than a long-lived process, so there is no /metrics to scrape;
// pushing to a gateway is out of scope, but a caller that wants the
// numbers (a cron wrapper, a workflow step) can still capture this
// process's stdout.
func dumpMetrics(logger interface {
	Log(keyvals ...interface{}) error
}, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		_ = level.Warn(logger).Log("msg", "failed to gather metrics", "err", err)
		return
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			_ = level.Warn(logger).Log("msg", "failed to encode metric family", "err", err)
			return
		}
	}
	os.Stdout.Write(buf.Bytes())
}
