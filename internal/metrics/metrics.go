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

// Package metrics holds the archiver and compactor's Prometheus
// instrumentation behind one typed handle, created once at process start
// and threaded explicitly through constructors (§9: avoid hidden global
// metric registries).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Archiver bundles every metric named in §6 for the scheduler/fetcher/blob
// writer pipeline.
type Archiver struct {
	FetchTotal         *prometheus.CounterVec
	FetchSuccessTotal  *prometheus.CounterVec
	FetchErrorsTotal   *prometheus.CounterVec
	UploadTotal        *prometheus.CounterVec
	UploadSuccessTotal *prometheus.CounterVec
	UploadErrorsTotal  *prometheus.CounterVec
	ProcessedBytesTotal *prometheus.CounterVec

	FetchDurationSeconds  *prometheus.HistogramVec
	FetchBytes            *prometheus.HistogramVec
	UploadDurationSeconds *prometheus.HistogramVec
	SchedulerDelaySeconds *prometheus.HistogramVec
	QueueDelaySeconds     *prometheus.HistogramVec
	TotalDelaySeconds     *prometheus.HistogramVec
	ProcessingTimeSeconds *prometheus.HistogramVec

	ActiveFeeds        prometheus.Gauge
	SchedulerJobs       prometheus.Gauge
	LastFetchTimestamp *prometheus.GaugeVec
}

var perFeedLabels = []string{"feed_id", "feed_type", "agency"}
var errorLabels = []string{"feed_id", "feed_type", "agency", "error_type"}

// NewArchiver constructs and registers every archiver metric against reg.
func NewArchiver(reg prometheus.Registerer) *Archiver {
	m := &Archiver{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_rt_fetch_total",
			Help: "Total number of fetch attempts per feed.",
		}, perFeedLabels),
		FetchSuccessTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_rt_fetch_success_total",
			Help: "Total number of successful fetches per feed.",
		}, perFeedLabels),
		FetchErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_rt_fetch_errors_total",
			Help: "Total number of failed fetches per feed, labeled by error_type.",
		}, errorLabels),
		UploadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_rt_upload_total",
			Help: "Total number of blob upload attempts per feed.",
		}, perFeedLabels),
		UploadSuccessTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_rt_upload_success_total",
			Help: "Total number of successful blob uploads per feed.",
		}, perFeedLabels),
		UploadErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_rt_upload_errors_total",
			Help: "Total number of failed blob uploads per feed, labeled by error_type.",
		}, errorLabels),
		ProcessedBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_rt_processed_bytes_total",
			Help: "Total bytes fetched and archived per feed.",
		}, perFeedLabels),

		FetchDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfs_rt_fetch_duration_seconds",
			Help:    "Duration of HTTP fetch requests.",
			Buckets: prometheus.DefBuckets,
		}, perFeedLabels),
		FetchBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfs_rt_fetch_bytes",
			Help:    "Size in bytes of fetched responses.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 10),
		}, perFeedLabels),
		UploadDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfs_rt_upload_duration_seconds",
			Help:    "Duration of blob store uploads.",
			Buckets: prometheus.DefBuckets,
		}, perFeedLabels),
		SchedulerDelaySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfs_rt_scheduler_delay_seconds",
			Help:    "Time between tick emission and semaphore acquisition.",
			Buckets: prometheus.DefBuckets,
		}, perFeedLabels),
		QueueDelaySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfs_rt_queue_delay_seconds",
			Help:    "Time between semaphore acquisition and pipeline start.",
			Buckets: prometheus.DefBuckets,
		}, perFeedLabels),
		TotalDelaySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfs_rt_total_delay_seconds",
			Help:    "Sum of scheduler_delay and queue_delay.",
			Buckets: prometheus.DefBuckets,
		}, perFeedLabels),
		ProcessingTimeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfs_rt_processing_time_seconds",
			Help:    "End-to-end time from work start through successful upload.",
			Buckets: prometheus.DefBuckets,
		}, perFeedLabels),

		ActiveFeeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfs_rt_active_feeds",
			Help: "Number of feeds active on this shard.",
		}),
		SchedulerJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfs_rt_scheduler_jobs",
			Help: "Number of feeds currently scheduled.",
		}),
		LastFetchTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gtfs_rt_last_fetch_timestamp",
			Help: "Unix timestamp of the last successful fetch per feed.",
		}, []string{"feed_id"}),
	}

	reg.MustRegister(
		m.FetchTotal, m.FetchSuccessTotal, m.FetchErrorsTotal,
		m.UploadTotal, m.UploadSuccessTotal, m.UploadErrorsTotal, m.ProcessedBytesTotal,
		m.FetchDurationSeconds, m.FetchBytes, m.UploadDurationSeconds,
		m.SchedulerDelaySeconds, m.QueueDelaySeconds, m.TotalDelaySeconds, m.ProcessingTimeSeconds,
		m.ActiveFeeds, m.SchedulerJobs, m.LastFetchTimestamp,
	)
	return m
}

// Compactor bundles the run-level metrics this expansion adds for batch
// compaction jobs (§6 "Compactor metrics").
type Compactor struct {
	PartitionsTotal  *prometheus.CounterVec
	DurationSeconds  *prometheus.HistogramVec
	LastRowCount     *prometheus.GaugeVec
}

// NewCompactor constructs and registers every compactor metric against reg.
func NewCompactor(reg prometheus.Registerer) *Compactor {
	m := &Compactor{
		PartitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_rt_compaction_partitions_total",
			Help: "Total number of compacted partitions, labeled by result.",
		}, []string{"feed_type", "result"}),
		DurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfs_rt_compaction_duration_seconds",
			Help:    "Duration of a partition compaction run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"feed_type"}),
		LastRowCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gtfs_rt_compaction_last_row_count",
			Help: "Row count emitted by the most recent compaction per feed type.",
		}, []string{"feed_type"}),
	}
	reg.MustRegister(m.PartitionsTotal, m.DurationSeconds, m.LastRowCount)
	return m
}
