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

package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/transitfeeds/gtfs-rt-archive/internal/fetcher"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

// sidecarHeaderKeys are the only response headers retained in the .meta
// sidecar, per §4.4.
var sidecarHeaderKeys = []string{"etag", "last-modified", "content-type", "content-length"}

// meta is the pretty-printed JSON sidecar written alongside every archived
// object, per §4.4.
type meta struct {
	FeedID         string            `json:"feed_id"`
	AgencyID       string            `json:"agency_id"`
	AgencyName     string            `json:"agency_name"`
	SystemID       string            `json:"system_id,omitempty"`
	SystemName     string            `json:"system_name,omitempty"`
	URL            string            `json:"url"`
	FetchTimestamp string            `json:"fetch_timestamp"`
	DurationMS     int64             `json:"duration_ms"`
	ResponseCode   int               `json:"response_code"`
	ContentLength  int64             `json:"content_length"`
	ContentType    string            `json:"content_type"`
	Headers        map[string]string `json:"headers"`
}

// Writer computes archive object keys and uploads fetch outcomes, per
// §4.4. WriteSidecar can be disabled for deployments that don't want the
// extra .meta object.
type Writer struct {
	store        *Store
	writeSidecar bool
}

// NewWriter wraps store. writeSidecar matches the spec's "unless disabled"
// clause.
func NewWriter(store *Store, writeSidecar bool) *Writer {
	return &Writer{store: store, writeSidecar: writeSidecar}
}

// Write uploads outcome's bytes under the deterministic object key computed
// from (spec, outcome.FetchStartTime), and — unless disabled — a JSON
// sidecar at the same path with a .meta extension. It returns the object
// key. The operation is idempotent: replaying it with identical inputs is
// safe to retry, per §4.4; retrying on transient failure is the caller's
// responsibility (§4.5's own bounded retry wraps this call).
func (w *Writer) Write(ctx context.Context, spec gtfsrt.FeedSpec, outcome *fetcher.Outcome) (string, error) {
	key := gtfsrt.ObjectKey{
		FeedType:       spec.FeedType,
		URL:            spec.URL,
		FetchStartTime: outcome.FetchStartTime,
	}
	objectKey := key.String()

	if err := w.store.WriteObject(ctx, objectKey, outcome.Content, "application/x-protobuf"); err != nil {
		return "", fmt.Errorf("upload %q: %w", objectKey, err)
	}

	if w.writeSidecar {
		sidecar := buildMeta(spec, outcome)
		data, err := json.MarshalIndent(sidecar, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal sidecar for %q: %w", objectKey, err)
		}
		if err := w.store.WriteObject(ctx, key.MetaKey(), data, "application/json"); err != nil {
			return "", fmt.Errorf("upload sidecar for %q: %w", objectKey, err)
		}
	}
	return objectKey, nil
}

func buildMeta(spec gtfsrt.FeedSpec, outcome *fetcher.Outcome) meta {
	headers := make(map[string]string)
	for _, k := range sidecarHeaderKeys {
		if v, ok := lookupHeaderCaseInsensitive(outcome.ResponseHeaders, k); ok {
			headers[k] = v
		}
	}
	return meta{
		FeedID:         spec.ID,
		AgencyID:       spec.AgencyID,
		AgencyName:     spec.AgencyName,
		SystemID:       spec.SystemID,
		SystemName:     spec.SystemName,
		URL:            spec.URL,
		FetchTimestamp: outcome.FetchStartTime.UTC().Format(time.RFC3339Nano),
		DurationMS:     outcome.DurationMS,
		ResponseCode:   outcome.StatusCode,
		ContentLength:  outcome.ContentLength,
		ContentType:    headers["content-type"],
		Headers:        headers,
	}
}

func lookupHeaderCaseInsensitive(headers map[string]string, wantLower string) (string, bool) {
	for k, v := range headers {
		if strings.ToLower(k) == wantLower {
			return v, true
		}
	}
	return "", false
}
