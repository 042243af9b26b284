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

package gtfsrt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObjectKeyS1(t *testing.T) {
	ts := time.Date(2025, 1, 15, 14, 20, 30, 123_000_000, time.UTC)
	key := ObjectKey{
		FeedType:       VehiclePositions,
		URL:            "https://gtfs.example.com/rt",
		FetchStartTime: ts,
	}
	want := "vehicle_positions/date=2025-01-15/hour=2025-01-15T14:00:00Z/base64url=aHR0cHM6Ly9ndGZzLmV4YW1wbGUuY29tL3J0/2025-01-15T14:20:30.123Z.pb"
	require.Equal(t, want, key.String())
}

func TestObjectKeyRoundTrip(t *testing.T) {
	cases := []ObjectKey{
		{FeedType: VehiclePositions, URL: "https://gtfs.example.com/rt", FetchStartTime: time.Date(2025, 1, 15, 14, 20, 30, 123_000_000, time.UTC)},
		{FeedType: TripUpdates, URL: "http://agency.example.org/feed?x=1", FetchStartTime: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{FeedType: ServiceAlerts, URL: "https://a.b/c/d+e", FetchStartTime: time.Date(2025, 12, 31, 23, 59, 59, 999_000_000, time.UTC)},
	}
	for _, c := range cases {
		parsed, err := ParseObjectKey(c.String())
		require.NoError(t, err)
		require.Equal(t, c.FeedType, parsed.FeedType)
		require.Equal(t, c.URL, parsed.URL)
		require.True(t, c.FetchStartTime.Equal(parsed.FetchStartTime))
	}
}

func TestObjectKeyStrictlyIncreasing(t *testing.T) {
	base := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	var prev string
	for i := 0; i < 5; i++ {
		k := ObjectKey{FeedType: VehiclePositions, URL: "https://x/y", FetchStartTime: base.Add(time.Duration(i) * time.Second)}
		s := k.String()
		require.Greater(t, s, prev)
		prev = s
	}
}

func TestMetaKey(t *testing.T) {
	k := ObjectKey{FeedType: VehiclePositions, URL: "https://x/y", FetchStartTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.Equal(t, k.String()[:len(k.String())-3]+".meta", k.MetaKey())
}

func TestParseObjectKeyRejectsMalformed(t *testing.T) {
	_, err := ParseObjectKey("not/a/valid/key")
	require.Error(t, err)
}
