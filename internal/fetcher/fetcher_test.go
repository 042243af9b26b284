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

package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/transitfeeds/gtfs-rt-archive/internal/errs"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

func testSpec(url string) gtfsrt.FeedSpec {
	return gtfsrt.FeedSpec{
		ID:              "feed-a",
		URL:             url,
		FeedType:        gtfsrt.VehiclePositions,
		IntervalSeconds: 15,
		TimeoutSeconds:  5,
		Retry:           gtfsrt.RetryPolicy{MaxAttempts: 3, BaseBackoffSeconds: 0.01, MaxBackoffSeconds: 0.05},
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := New()
	out, err := f.Fetch(context.Background(), testSpec(srv.URL))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), out.Content)
	require.Equal(t, http.StatusOK, out.StatusCode)
	require.Equal(t, int64(7), out.ContentLength)
}

// TestFetchS2NonRetryable matches scenario S2: a 404 is never retried.
func TestFetchS2NonRetryable(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New()
	_, err := f.Fetch(context.Background(), testSpec(srv.URL))
	require.Error(t, err)
	var nonRetryable *errs.FetchNonRetryableError
	require.ErrorAs(t, err, &nonRetryable)
	require.Equal(t, 404, nonRetryable.StatusCode)
	require.Equal(t, "http_404", nonRetryable.ErrorType())
	require.Equal(t, int64(1), calls.Load())
}

// TestFetchS3RetrySucceedsAfter500s matches scenario S3: two 500s then 200.
func TestFetchS3RetrySucceedsAfter500s(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New()
	out, err := f.Fetch(context.Background(), testSpec(srv.URL))
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), out.Content)
	require.Equal(t, int64(3), calls.Load())
}

func TestFetchExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New()
	_, err := f.Fetch(context.Background(), testSpec(srv.URL))
	require.Error(t, err)
	var exhausted *errs.FetchRetryableExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
}

func TestFetchAppliesQueryAuth(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("api_key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	spec := testSpec(srv.URL + "?existing=1")
	spec.Auth = &gtfsrt.AuthRef{
		Placement:     gtfsrt.AuthQuery,
		ParameterName: "api_key",
		ResolvedValue: "secret-value",
	}

	f := New()
	_, err := f.Fetch(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, "secret-value", gotQuery)
}

func TestFetchAppliesHeaderAuth(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	spec := testSpec(srv.URL)
	spec.Auth = &gtfsrt.AuthRef{
		Placement:     gtfsrt.AuthHeader,
		ParameterName: "X-Api-Key",
		ResolvedValue: "secret-value",
	}

	f := New()
	_, err := f.Fetch(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, "secret-value", gotHeader)
}

func TestBackoffFor(t *testing.T) {
	policy := gtfsrt.RetryPolicy{MaxAttempts: 5, BaseBackoffSeconds: 0.1, MaxBackoffSeconds: 1.0}
	require.InDelta(t, 0.1, backoffFor(policy, 1).Seconds(), 1e-9)
	require.InDelta(t, 0.2, backoffFor(policy, 2).Seconds(), 1e-9)
	require.InDelta(t, 0.4, backoffFor(policy, 3).Seconds(), 1e-9)
	require.InDelta(t, 0.8, backoffFor(policy, 4).Seconds(), 1e-9)
	require.InDelta(t, 1.0, backoffFor(policy, 5).Seconds(), 1e-9) // capped at max
}
