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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/transitfeeds/gtfs-rt-archive/internal/fetcher"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

func TestBuildMetaFiltersAllowlistedHeadersOnly(t *testing.T) {
	spec := gtfsrt.FeedSpec{
		ID:         "metro-vehicle-positions",
		AgencyID:   "metro",
		AgencyName: "Metro Transit",
		URL:        "https://gtfs.example.com/rt",
	}
	outcome := &fetcher.Outcome{
		StatusCode:     200,
		ContentLength:  1234,
		DurationMS:     42,
		FetchStartTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ResponseHeaders: map[string]string{
			"ETag":           `"abc123"`,
			"Last-Modified":  "Fri, 01 Mar 2024 11:59:00 GMT",
			"Content-Type":   "application/x-protobuf",
			"Content-Length": "1234",
			"X-Request-Id":   "should-not-appear",
		},
	}

	m := buildMeta(spec, outcome)
	require.Equal(t, "metro-vehicle-positions", m.FeedID)
	require.Equal(t, "metro", m.AgencyID)
	require.Equal(t, 200, m.ResponseCode)
	require.Equal(t, int64(1234), m.ContentLength)
	require.Equal(t, int64(42), m.DurationMS)
	require.Equal(t, "application/x-protobuf", m.ContentType)
	require.Equal(t, "2024-03-01T12:00:00Z", m.FetchTimestamp)

	require.Len(t, m.Headers, 4)
	require.Equal(t, `"abc123"`, m.Headers["etag"])
	require.Equal(t, "Fri, 01 Mar 2024 11:59:00 GMT", m.Headers["last-modified"])
	require.NotContains(t, m.Headers, "x-request-id")
}

func TestBuildMetaOmitsMissingHeaders(t *testing.T) {
	spec := gtfsrt.FeedSpec{ID: "feed-a", URL: "https://gtfs.example.com/rt"}
	outcome := &fetcher.Outcome{
		StatusCode:      200,
		FetchStartTime:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ResponseHeaders: map[string]string{},
	}
	m := buildMeta(spec, outcome)
	require.Empty(t, m.Headers)
	require.Empty(t, m.ContentType)
}

func TestLookupHeaderCaseInsensitive(t *testing.T) {
	headers := map[string]string{"Content-Type": "application/json"}
	v, ok := lookupHeaderCaseInsensitive(headers, "content-type")
	require.True(t, ok)
	require.Equal(t, "application/json", v)

	_, ok = lookupHeaderCaseInsensitive(headers, "etag")
	require.False(t, ok)
}
