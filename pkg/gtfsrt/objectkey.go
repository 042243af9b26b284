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
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const objectTimeLayout = "2006-01-02T15:04:05.000Z"

// EncodeURL implements the base64url transform of §6: standard base64,
// '+'->'-', '/'->'_', padding stripped. It is the literal semantic
// base64.RawURLEncoding already provides, applied to the UTF-8 bytes of the
// canonical feed URL (never including auth query parameters).
func EncodeURL(url string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(url))
}

// DecodeURL reverses EncodeURL.
func DecodeURL(encoded string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode base64url: %w", err)
	}
	return string(b), nil
}

// ObjectKey identifies one archived fetch response under the bit-exact
// layout described in §3/§6:
//
//	{feed_type}/date={YYYY-MM-DD}/hour={YYYY-MM-DDTHH:00:00Z}/base64url={E}/{fetch_ts}.pb
type ObjectKey struct {
	FeedType       FeedType
	URL            string
	FetchStartTime time.Time
}

// String renders the object key. FetchStartTime is normalized to UTC and
// millisecond precision as the layout requires.
func (k ObjectKey) String() string {
	t := k.FetchStartTime.UTC()
	date := t.Format("2006-01-02")
	hour := t.Truncate(time.Hour).Format("2006-01-02T15:04:05Z")
	ts := t.Format(objectTimeLayout)
	return fmt.Sprintf("%s/date=%s/hour=%s/base64url=%s/%s.pb",
		k.FeedType, date, hour, EncodeURL(k.URL), ts)
}

// MetaKey returns the sidecar key for this object: same path, ".meta" suffix.
func (k ObjectKey) MetaKey() string {
	return strings.TrimSuffix(k.String(), ".pb") + ".meta"
}

// ParseObjectKey recovers (feed_type, date, hour, url) from a rendered key,
// satisfying testable property 1: parsing must exactly invert String().
func ParseObjectKey(key string) (ObjectKey, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 {
		return ObjectKey{}, fmt.Errorf("object key %q: expected 5 path segments, got %d", key, len(parts))
	}
	feedType := FeedType(parts[0])
	if !feedType.Valid() {
		return ObjectKey{}, fmt.Errorf("object key %q: invalid feed type %q", key, parts[0])
	}
	datePart, ok := strings.CutPrefix(parts[1], "date=")
	if !ok {
		return ObjectKey{}, fmt.Errorf("object key %q: missing date= segment", key)
	}
	if _, err := time.Parse("2006-01-02", datePart); err != nil {
		return ObjectKey{}, fmt.Errorf("object key %q: bad date: %w", key, err)
	}
	if _, ok := strings.CutPrefix(parts[2], "hour="); !ok {
		return ObjectKey{}, fmt.Errorf("object key %q: missing hour= segment", key)
	}
	encoded, ok := strings.CutPrefix(parts[3], "base64url=")
	if !ok {
		return ObjectKey{}, fmt.Errorf("object key %q: missing base64url= segment", key)
	}
	url, err := DecodeURL(encoded)
	if err != nil {
		return ObjectKey{}, fmt.Errorf("object key %q: %w", key, err)
	}
	filename := strings.TrimSuffix(parts[4], ".pb")
	ts, err := time.Parse(objectTimeLayout, filename)
	if err != nil {
		return ObjectKey{}, fmt.Errorf("object key %q: bad timestamp: %w", key, err)
	}
	return ObjectKey{FeedType: feedType, URL: url, FetchStartTime: ts}, nil
}
