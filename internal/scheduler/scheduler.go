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

// Package scheduler owns the archiver's per-feed timers, its global
// concurrency ceiling, and the tick-coalescing state machine described in
// §4.5. It is the one actor cmd/gtfs-rt-archiver adds to the teacher's
// run.Group composition beyond the health server and the signal handler.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/time/rate"

	"github.com/transitfeeds/gtfs-rt-archive/internal/errs"
	"github.com/transitfeeds/gtfs-rt-archive/internal/fetcher"
	"github.com/transitfeeds/gtfs-rt-archive/internal/metrics"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

const defaultMisfireGrace = 5 * time.Second

// Upload retry policy, per §4.5: "the write is wrapped in its own bounded
// retry over transient network/IO errors (attempts = 3, exponential up to
// 10 s)." Fixed, not configurable per feed — this guards the blob store
// call itself, independent of the fetch's own RetryPolicy.
const (
	uploadMaxAttempts        = 3
	uploadBaseBackoffSeconds = 1.0
	uploadMaxBackoffSeconds  = 10.0
)

// blobWriter is the narrow surface the scheduler needs from
// internal/blobstore.Writer; tests substitute a fake to avoid a live GCS
// dependency.
type blobWriter interface {
	Write(ctx context.Context, spec gtfsrt.FeedSpec, outcome *fetcher.Outcome) (string, error)
}

// Options configures a Scheduler. Zero-valued ShardIndex/TotalShards means
// every feed is active; a non-positive MaxConcurrent defaults to 100 and a
// zero MisfireGrace to 5 s in New.
type Options struct {
	ShardIndex    int
	TotalShards   int
	MaxConcurrent int
	MisfireGrace  time.Duration
}

// Scheduler owns the dispatch loops for a fixed set of feeds, admitted at
// construction time per §4.5's "active feeds are fixed at startup".
type Scheduler struct {
	logger  log.Logger
	fetcher *fetcher.Fetcher
	writer  blobWriter
	metrics *metrics.Archiver

	feeds        []gtfsrt.FeedSpec
	misfireGrace time.Duration
	sem          chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup // feed dispatch loops
	tickWG  sync.WaitGroup // in-flight tick pipelines

	successMu   sync.Mutex
	lastSuccess map[string]time.Time
}

// New filters specs down to the feeds active on this shard and constructs a
// Scheduler ready to Start. A non-positive MaxConcurrent becomes 100 and a
// value above 500 becomes 500.
func New(logger log.Logger, f *fetcher.Fetcher, w blobWriter, m *metrics.Archiver, specs []gtfsrt.FeedSpec, opts Options) *Scheduler {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	if maxConcurrent > 500 {
		maxConcurrent = 500
	}
	grace := opts.MisfireGrace
	if grace <= 0 {
		grace = defaultMisfireGrace
	}

	var active []gtfsrt.FeedSpec
	for _, spec := range specs {
		if activeOnShard(spec.ID, opts.ShardIndex, opts.TotalShards) {
			active = append(active, spec)
		}
	}

	return &Scheduler{
		logger:       logger,
		fetcher:      f,
		writer:       w,
		metrics:      m,
		feeds:        active,
		misfireGrace: grace,
		sem:          make(chan struct{}, maxConcurrent),
		lastSuccess:  make(map[string]time.Time),
	}
}

// LastSuccess returns the time of feedID's most recent successful upload,
// and whether one has happened yet — the data behind /health/feeds'
// last_success_seconds_ago.
func (s *Scheduler) LastSuccess(feedID string) (time.Time, bool) {
	s.successMu.Lock()
	defer s.successMu.Unlock()
	t, ok := s.lastSuccess[feedID]
	return t, ok
}

// ActiveFeeds returns the feeds assigned to this shard.
func (s *Scheduler) ActiveFeeds() []gtfsrt.FeedSpec {
	return s.feeds
}

// IsRunning reports whether the dispatch loops are active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start seeds staggered per-feed timers and begins dispatching ticks. It
// returns once every loop goroutine has been launched; loops themselves run
// until ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveFeeds.Set(float64(len(s.feeds)))
		s.metrics.SchedulerJobs.Set(float64(len(s.feeds)))
	}

	for _, spec := range s.feeds {
		spec := spec
		state := &feedState{}
		limiter := rate.NewLimiter(rate.Every(time.Duration(spec.IntervalSeconds)*time.Second), 1)
		s.loopWG.Add(1)
		go s.runFeedLoop(runCtx, spec, state, limiter)
	}

	_ = level.Info(s.logger).Log("msg", "scheduler started", "active_feeds", len(s.feeds))
	return nil
}

// Stop halts new dispatches. In-flight tick pipelines are not canceled and
// no coalesced tick is chained after them. When wait is true Stop blocks,
// with no deadline of its own, until every in-flight pipeline has finished.
func (s *Scheduler) Stop(wait bool) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.loopWG.Wait()
	if wait {
		s.tickWG.Wait()
	}
	_ = level.Info(s.logger).Log("msg", "scheduler stopped")
}

// runFeedLoop owns one feed's timer for the lifetime of runCtx: it waits
// out the startup stagger, then fires on a fixed interval, admitting each
// tick through the feed's coalescing state machine.
func (s *Scheduler) runFeedLoop(ctx context.Context, spec gtfsrt.FeedSpec, state *feedState, limiter *rate.Limiter) {
	defer s.loopWG.Done()

	stagger := time.Duration(staggerSeconds(spec.ID, spec.IntervalSeconds)) * time.Second
	timer := time.NewTimer(stagger)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	interval := time.Duration(spec.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case scheduledTime := <-ticker.C:
			s.onTick(ctx, spec, state, limiter, scheduledTime)
		}
	}
}

// onTick admits a freshly fired tick into the feed's state machine and, if
// admitted, dispatches it; otherwise the tick is recorded as pending.
func (s *Scheduler) onTick(ctx context.Context, spec gtfsrt.FeedSpec, state *feedState, limiter *rate.Limiter, scheduledTime time.Time) {
	if !state.admit(scheduledTime) {
		return
	}
	s.tickWG.Add(1)
	// Detached from Stop's cancellation so an in-flight pipeline is never
	// cut off mid-upload.
	go s.dispatch(context.WithoutCancel(ctx), spec, state, limiter, scheduledTime)
}

// dispatch runs the admitted tick's pipeline, then checks whether a
// coalesced tick is waiting and chains straight into it without returning
// to idle.
func (s *Scheduler) dispatch(ctx context.Context, spec gtfsrt.FeedSpec, state *feedState, limiter *rate.Limiter, scheduledTime time.Time) {
	defer s.tickWG.Done()

	for {
		s.runPipeline(ctx, spec, state, limiter, scheduledTime)
		if !s.IsRunning() {
			return
		}

		next, ok := state.complete(time.Now(), s.misfireGrace)
		if !ok {
			return
		}
		scheduledTime = next
	}
}

// runPipeline executes one fetch+write cycle for spec, recording the
// scheduler_delay / queue_delay / total_delay / processing_time
// instrumentation described in §4.5.
func (s *Scheduler) runPipeline(ctx context.Context, spec gtfsrt.FeedSpec, state *feedState, limiter *rate.Limiter, scheduledTime time.Time) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-s.sem }()

	permitAcquired := time.Now()
	schedulerDelay := permitAcquired.Sub(scheduledTime)

	if err := limiter.Wait(ctx); err != nil {
		return
	}

	state.setRunning()
	workStart := time.Now()
	queueDelay := workStart.Sub(permitAcquired)

	labels := []string{spec.ID, string(spec.FeedType), spec.AgencyID}
	if s.metrics != nil {
		s.metrics.SchedulerDelaySeconds.WithLabelValues(labels...).Observe(schedulerDelay.Seconds())
		s.metrics.QueueDelaySeconds.WithLabelValues(labels...).Observe(queueDelay.Seconds())
		s.metrics.TotalDelaySeconds.WithLabelValues(labels...).Observe((schedulerDelay + queueDelay).Seconds())
	}

	err := s.runOnceLocked(ctx, spec, labels)

	if err == nil && s.metrics != nil {
		s.metrics.ProcessingTimeSeconds.WithLabelValues(labels...).Observe(time.Since(workStart).Seconds())
	}
}

// RunOnce executes a single fetch+write pipeline for spec synchronously,
// bypassing the timer machinery entirely — for tests and manual triggers.
func (s *Scheduler) RunOnce(ctx context.Context, spec gtfsrt.FeedSpec) error {
	labels := []string{spec.ID, string(spec.FeedType), spec.AgencyID}
	return s.runOnceLocked(ctx, spec, labels)
}

func (s *Scheduler) runOnceLocked(ctx context.Context, spec gtfsrt.FeedSpec, labels []string) error {
	m := s.metrics
	if m != nil {
		m.FetchTotal.WithLabelValues(labels...).Inc()
	}

	fetchStart := time.Now()
	outcome, err := s.fetcher.Fetch(ctx, spec)
	if m != nil {
		m.FetchDurationSeconds.WithLabelValues(labels...).Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		s.logFetchError(spec, err)
		if m != nil {
			m.FetchErrorsTotal.WithLabelValues(append(labels, errorKind(err))...).Inc()
		}
		return err
	}
	if m != nil {
		m.FetchSuccessTotal.WithLabelValues(labels...).Inc()
		m.FetchBytes.WithLabelValues(labels...).Observe(float64(outcome.ContentLength))
	}

	if m != nil {
		m.UploadTotal.WithLabelValues(labels...).Inc()
	}
	uploadStart := time.Now()
	_, err = s.uploadWithRetry(ctx, spec, outcome)
	if m != nil {
		m.UploadDurationSeconds.WithLabelValues(labels...).Observe(time.Since(uploadStart).Seconds())
	}
	if err != nil {
		_ = level.Error(s.logger).Log("msg", "blob upload failed", "feed_id", spec.ID, "err", err)
		if m != nil {
			m.UploadErrorsTotal.WithLabelValues(append(labels, "upload_failed")...).Inc()
		}
		return err
	}

	if m != nil {
		m.UploadSuccessTotal.WithLabelValues(labels...).Inc()
		m.ProcessedBytesTotal.WithLabelValues(labels...).Add(float64(outcome.ContentLength))
		m.LastFetchTimestamp.WithLabelValues(spec.ID).Set(float64(outcome.FetchStartTime.Unix()))
	}
	s.successMu.Lock()
	s.lastSuccess[spec.ID] = outcome.FetchStartTime
	s.successMu.Unlock()
	return nil
}

// uploadWithRetry wraps a single blob write in its own bounded retry loop,
// independent of the fetch's RetryPolicy, per §4.5: attempt k waits
// min(1.0 * 2^(k-1), 10.0) seconds, up to uploadMaxAttempts tries. Once
// attempts are exhausted, the last error is reported as
// errs.UploadFailedError, per §7.
func (s *Scheduler) uploadWithRetry(ctx context.Context, spec gtfsrt.FeedSpec, outcome *fetcher.Outcome) (string, error) {
	key := gtfsrt.ObjectKey{FeedType: spec.FeedType, URL: spec.URL, FetchStartTime: outcome.FetchStartTime}.String()

	var lastErr error
	for attempt := 1; attempt <= uploadMaxAttempts; attempt++ {
		objectKey, err := s.writer.Write(ctx, spec, outcome)
		if err == nil {
			return objectKey, nil
		}
		lastErr = err
		if attempt == uploadMaxAttempts {
			break
		}
		wait := uploadBackoffFor(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}
	return "", &errs.UploadFailedError{Key: key, Err: lastErr}
}

// uploadBackoffFor computes the wait before attempt k+1 of the upload
// retry loop, mirroring fetcher.backoffFor's formula against the upload
// policy's fixed base/max.
func uploadBackoffFor(attempt int) time.Duration {
	seconds := uploadBaseBackoffSeconds
	for i := 1; i < attempt; i++ {
		seconds *= 2
	}
	if seconds > uploadMaxBackoffSeconds {
		seconds = uploadMaxBackoffSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

func (s *Scheduler) logFetchError(spec gtfsrt.FeedSpec, err error) {
	_ = level.Warn(s.logger).Log("msg", "fetch failed", "feed_id", spec.ID, "err", err)
}

// errorKind labels a fetch failure for the error_type-partitioned
// counters, per §6.
func errorKind(err error) string {
	var nonRetryable *errs.FetchNonRetryableError
	if errors.As(err, &nonRetryable) {
		return nonRetryable.ErrorType()
	}
	var exhausted *errs.FetchRetryableExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.ErrorType()
	}
	return "unknown"
}
