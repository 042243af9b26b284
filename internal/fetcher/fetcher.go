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

// Package fetcher executes GTFS-Realtime polling requests, per §4.3. The
// fetcher never swallows errors; callers decide logging and metrics, per
// the spec's explicit policy in §4.3 and §7.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/transitfeeds/gtfs-rt-archive/internal/errs"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

// Outcome is the FetchOutcome of the data model (§3): constructed only on
// HTTP success, never mutated afterward.
type Outcome struct {
	Content         []byte
	StatusCode      int
	ResponseHeaders map[string]string
	FetchStartTime  time.Time
	DurationMS      int64
	ContentLength   int64
}

// Fetcher executes fetches against a single shared, pooled HTTP client, per
// §5's "HTTP client... shared across all tasks; must be thread-safe".
type Fetcher struct {
	client *http.Client
}

// New constructs a Fetcher backed by go-cleanhttp's pooled client, the
// teacher's own dependency for outbound HTTP.
func New() *Fetcher {
	return &Fetcher{client: cleanhttp.DefaultPooledClient()}
}

// Fetch executes one polling request for spec, following §4.3's five-step
// contract: build the authenticated request, issue it under the spec's
// timeout, classify the result, and retry retryable failures under the
// spec's RetryPolicy.
func (f *Fetcher) Fetch(ctx context.Context, spec gtfsrt.FeedSpec) (*Outcome, error) {
	policy := spec.Retry
	var lastErr error
	kind := "unknown"

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		outcome, retryKind, err := f.attempt(ctx, spec)
		if err == nil {
			return outcome, nil
		}
		if nonRetryable, ok := err.(*errs.FetchNonRetryableError); ok {
			return nil, nonRetryable
		}
		lastErr = err
		kind = retryKind

		if attempt == policy.MaxAttempts {
			break
		}
		wait := backoffFor(policy, attempt)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return nil, &errs.FetchRetryableExhaustedError{Attempts: policy.MaxAttempts, Kind: kind, Err: lastErr}
}

// backoffFor computes the wait before attempt k+1, per §4.3: attempt k
// waits min(base * 2^(k-1), max) seconds.
func backoffFor(policy gtfsrt.RetryPolicy, attempt int) time.Duration {
	seconds := policy.BaseBackoffSeconds
	for i := 1; i < attempt; i++ {
		seconds *= 2
	}
	if seconds > policy.MaxBackoffSeconds {
		seconds = policy.MaxBackoffSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

// attempt issues a single HTTP GET and classifies its result. The returned
// error is either *errs.FetchNonRetryableError (terminal) or a plain error
// alongside an error-type label for the caller's retry loop.
func (f *Fetcher) attempt(ctx context.Context, spec gtfsrt.FeedSpec) (*Outcome, string, error) {
	start := time.Now().UTC()

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(spec.TimeoutSeconds)*time.Second)
	defer cancel()

	req, err := buildRequest(reqCtx, spec)
	if err != nil {
		return nil, "transport", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, "timeout", fmt.Errorf("request to %s timed out: %w", spec.URL, err)
		}
		return nil, "transport", fmt.Errorf("request to %s failed: %w", spec.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "transport", fmt.Errorf("reading response from %s: %w", spec.URL, err)
	}

	switch {
	case isNonRetryableStatus(resp.StatusCode):
		return nil, "", &errs.FetchNonRetryableError{StatusCode: resp.StatusCode}
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return nil, fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("server error from %s: status %d", spec.URL, resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		duration := time.Since(start)
		return &Outcome{
			Content:         body,
			StatusCode:      resp.StatusCode,
			ResponseHeaders: flattenHeaders(resp.Header),
			FetchStartTime:  start,
			DurationMS:      duration.Milliseconds(),
			ContentLength:   int64(len(body)),
		}, "", nil
	default:
		return nil, fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("unexpected status from %s: %d", spec.URL, resp.StatusCode)
	}
}

func isNonRetryableStatus(code int) bool {
	switch code {
	case 400, 401, 403, 404, 410:
		return true
	default:
		return false
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// buildRequest applies auth placement per §4.3 step 2: query params are
// merged without disturbing existing ones; header auth sets a named
// header. Redirects are followed via the client's default policy.
func buildRequest(ctx context.Context, spec gtfsrt.FeedSpec) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", spec.URL, err)
	}

	if spec.Auth == nil {
		return req, nil
	}
	switch spec.Auth.Placement {
	case gtfsrt.AuthHeader:
		req.Header.Set(spec.Auth.ParameterName, spec.Auth.ResolvedValue)
	case gtfsrt.AuthQuery:
		q := req.URL.Query()
		q.Set(spec.Auth.ParameterName, spec.Auth.ResolvedValue)
		req.URL.RawQuery = q.Encode()
	default:
		return nil, fmt.Errorf("unknown auth placement %q", spec.Auth.Placement)
	}
	return req, nil
}
