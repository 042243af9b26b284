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

package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/transitfeeds/gtfs-rt-archive/internal/fetcher"
	"github.com/transitfeeds/gtfs-rt-archive/internal/metrics"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

type fakeWriter struct {
	calls atomic.Int64
}

func (w *fakeWriter) Write(_ context.Context, _ gtfsrt.FeedSpec, _ *fetcher.Outcome) (string, error) {
	w.calls.Add(1)
	return "fake-key", nil
}

func testSpec(id, url string) gtfsrt.FeedSpec {
	return gtfsrt.FeedSpec{
		ID:              id,
		URL:             url,
		FeedType:        gtfsrt.VehiclePositions,
		AgencyID:        "agency-a",
		IntervalSeconds: 5,
		TimeoutSeconds:  2,
		Retry:           gtfsrt.RetryPolicy{MaxAttempts: 1, BaseBackoffSeconds: 0.01, MaxBackoffSeconds: 0.05},
	}
}

func newTestScheduler(t *testing.T, specs []gtfsrt.FeedSpec, w blobWriter, opts Options) *Scheduler {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewArchiver(reg)
	return New(log.NewNopLogger(), fetcher.New(), w, m, specs, opts)
}

func TestRunOnceUploadsFetchedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	w := &fakeWriter{}
	s := newTestScheduler(t, []gtfsrt.FeedSpec{testSpec("feed-a", srv.URL)}, w, Options{})

	err := s.RunOnce(context.Background(), testSpec("feed-a", srv.URL))
	require.NoError(t, err)
	require.Equal(t, int64(1), w.calls.Load())
}

func TestRunOnceReturnsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	w := &fakeWriter{}
	s := newTestScheduler(t, nil, w, Options{})

	err := s.RunOnce(context.Background(), testSpec("feed-a", srv.URL))
	require.Error(t, err)
	require.Equal(t, int64(0), w.calls.Load())
}

// TestStartDispatchesMultipleTicks matches the spec's testable property
// that a feed left running for several intervals fires roughly
// wall_time/interval times. We use a 1s interval and wait a little past 3
// periods.
func TestStartDispatchesMultipleTicks(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	spec := testSpec("feed-a", srv.URL)
	spec.IntervalSeconds = 1
	w := &fakeWriter{}
	s := newTestScheduler(t, []gtfsrt.FeedSpec{spec}, w, Options{})

	require.NoError(t, s.Start(context.Background()))
	require.True(t, s.IsRunning())
	time.Sleep(3200 * time.Millisecond)
	s.Stop(true)
	require.False(t, s.IsRunning())

	require.GreaterOrEqual(t, hits.Load(), int64(2))
	require.LessOrEqual(t, hits.Load(), int64(5))
}

func TestShardingExcludesInactiveFeeds(t *testing.T) {
	specs := []gtfsrt.FeedSpec{
		testSpec("feed-a", "https://a.example.com"),
		testSpec("feed-b", "https://b.example.com"),
		testSpec("feed-c", "https://c.example.com"),
	}
	total := 0
	for shard := 0; shard < 3; shard++ {
		s := newTestScheduler(t, specs, &fakeWriter{}, Options{ShardIndex: shard, TotalShards: 3})
		total += len(s.ActiveFeeds())
	}
	require.Equal(t, len(specs), total)
}

func TestSingleShardActivatesEveryFeed(t *testing.T) {
	specs := []gtfsrt.FeedSpec{testSpec("feed-a", "https://a.example.com")}
	s := newTestScheduler(t, specs, &fakeWriter{}, Options{TotalShards: 1})
	require.Len(t, s.ActiveFeeds(), 1)
}

func TestStopIsIdempotent(t *testing.T) {
	s := newTestScheduler(t, nil, &fakeWriter{}, Options{})
	require.NoError(t, s.Start(context.Background()))
	s.Stop(true)
	s.Stop(true) // must not panic or block
}
