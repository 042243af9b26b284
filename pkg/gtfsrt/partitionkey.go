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
	"fmt"
	"strings"
)

// PartitionKey identifies one compactor unit of work: every archived object
// for one feed type, one calendar day, and one feed.
type PartitionKey struct {
	FeedType   FeedType
	DateString string // YYYY-MM-DD
	FeedKey    string // canonical URL, see URLToFeedKey
}

// URLToFeedKey canonicalizes a feed URL into the compactor's partition key
// component, per §6: strip "https://" bare, strip "http://" with a "~"
// prefix. The transform is bijective; see FeedKeyToURL.
func URLToFeedKey(url string) (string, error) {
	if rest, ok := strings.CutPrefix(url, "https://"); ok {
		return rest, nil
	}
	if rest, ok := strings.CutPrefix(url, "http://"); ok {
		return "~" + rest, nil
	}
	return "", fmt.Errorf("url %q: unsupported scheme, must be http:// or https://", url)
}

// FeedKeyToURL reverses URLToFeedKey.
func FeedKeyToURL(feedKey string) (string, error) {
	if rest, ok := strings.CutPrefix(feedKey, "~"); ok {
		return "http://" + rest, nil
	}
	if feedKey == "" {
		return "", fmt.Errorf("feed key is empty")
	}
	return "https://" + feedKey, nil
}

// Prefix returns the storage prefix under which every object for this
// feed type and date lives, for every feed and hour.
func (k PartitionKey) Prefix() string {
	return fmt.Sprintf("%s/date=%s/", k.FeedType, k.DateString)
}

// EncodedPrefix returns the date-level base64url folder that holds this
// partition's compacted output (OutputKey). Archived .pb objects are not
// under it, since their keys put hour= before base64url=.
func (k PartitionKey) EncodedPrefix() (string, error) {
	url, err := FeedKeyToURL(k.FeedKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/date=%s/base64url=%s/", k.FeedType, k.DateString, EncodeURL(url)), nil
}

// OutputKey returns the destination key for the compacted Parquet file.
func (k PartitionKey) OutputKey() (string, error) {
	url, err := FeedKeyToURL(k.FeedKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/date=%s/base64url=%s/data.parquet", k.FeedType, k.DateString, EncodeURL(url)), nil
}
