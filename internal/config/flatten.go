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

package config

import (
	"fmt"
	"strings"

	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// Flatten walks the catalog tree (agency -> optional system -> feed). Auth
// is inherited in the order feed -> system -> agency. Interval, timeout and
// retry come from the feed when it sets them and otherwise from the file
// defaults; agencies and systems carry no such settings. A catalog with no
// retry settings at all gets gtfsrt.DefaultRetryPolicy.
func Flatten(cat *Catalog) ([]gtfsrt.FeedSpec, error) {
	var specs []gtfsrt.FeedSpec
	seenIDs := make(map[string]string) // id -> originating path, for the uniqueness invariant

	for ai, agency := range cat.Agencies {
		agencyPath := fmt.Sprintf("agencies[%d]", ai)
		if !gtfsrt.ValidID(agency.ID) {
			return nil, fmt.Errorf("%s.id %q must match ^[a-z0-9-]+$", agencyPath, agency.ID)
		}
		hasFeeds := len(agency.Feeds) > 0
		hasSystems := len(agency.Systems) > 0
		if hasFeeds == hasSystems {
			return nil, fmt.Errorf("%s (%s): must have either feeds or systems, never both or neither", agencyPath, agency.ID)
		}

		if hasFeeds {
			for fi, feed := range agency.Feeds {
				feedPath := fmt.Sprintf("%s.feeds[%d]", agencyPath, fi)
				spec, err := buildSpec(cat.Defaults, agency, nil, feed, feedPath)
				if err != nil {
					return nil, err
				}
				if err := recordID(seenIDs, spec.ID, feedPath); err != nil {
					return nil, err
				}
				specs = append(specs, *spec)
			}
			continue
		}

		for si, system := range agency.Systems {
			systemPath := fmt.Sprintf("%s.systems[%d]", agencyPath, si)
			if !gtfsrt.ValidID(system.ID) {
				return nil, fmt.Errorf("%s.id %q must match ^[a-z0-9-]+$", systemPath, system.ID)
			}
			if len(system.Feeds) == 0 {
				return nil, fmt.Errorf("%s (%s): system must declare at least one feed", systemPath, system.ID)
			}
			for fi, feed := range system.Feeds {
				feedPath := fmt.Sprintf("%s.feeds[%d]", systemPath, fi)
				spec, err := buildSpec(cat.Defaults, agency, &system, feed, feedPath)
				if err != nil {
					return nil, err
				}
				if err := recordID(seenIDs, spec.ID, feedPath); err != nil {
					return nil, err
				}
				specs = append(specs, *spec)
			}
		}
	}
	return specs, nil
}

func recordID(seen map[string]string, id, path string) error {
	if prev, ok := seen[id]; ok {
		return fmt.Errorf("%s: duplicate feed id %q, already defined at %s", path, id, prev)
	}
	seen[id] = path
	return nil
}

func buildSpec(defaults Defaults, agency AgencyConfig, system *SystemConfig, feed FeedConfig, path string) (*gtfsrt.FeedSpec, error) {
	if feed.FeedType == "" || !feed.FeedType.Valid() {
		return nil, fmt.Errorf("%s: feed_type must be one of vehicle_positions, trip_updates, service_alerts, got %q", path, feed.FeedType)
	}
	if feed.URL == "" {
		return nil, fmt.Errorf("%s: url is required", path)
	}
	if !strings.HasPrefix(feed.URL, "http://") && !strings.HasPrefix(feed.URL, "https://") {
		return nil, fmt.Errorf("%s: url must use http:// or https://, got %q", path, feed.URL)
	}

	resolvedInterval := defaults.Intervals.forType(feed.FeedType)
	if feed.IntervalSeconds != nil {
		resolvedInterval = *feed.IntervalSeconds
	}

	resolvedTimeout := defaults.TimeoutSeconds
	if feed.TimeoutSeconds != nil {
		resolvedTimeout = *feed.TimeoutSeconds
	}

	resolvedRetry := defaults.Retry.toPolicy()
	if feed.Retry != nil {
		resolvedRetry = feed.Retry.toPolicy()
	} else if defaults.Retry == (RetryConfig{}) {
		resolvedRetry = gtfsrt.DefaultRetryPolicy()
	}

	var authCfg *AuthConfig
	switch {
	case feed.Auth != nil:
		authCfg = feed.Auth
	case system != nil && system.Auth != nil:
		authCfg = system.Auth
	case agency.Auth != nil:
		authCfg = agency.Auth
	}
	authRef, err := authCfg.toAuthRef()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	agencyID, agencyName := agency.ID, agency.Name
	systemID, systemName := "", ""
	idParts := []string{agencyID}
	nameParts := []string{agencyName}
	if system != nil {
		systemID, systemName = system.ID, system.Name
		idParts = append(idParts, systemID)
		nameParts = append(nameParts, systemName)
	}
	feedTypeWords := strings.ReplaceAll(string(feed.FeedType), "_", " ")
	idParts = append(idParts, strings.ReplaceAll(string(feed.FeedType), "_", "-"))
	nameParts = append(nameParts, titleCaser.String(feedTypeWords))

	id := strings.Join(idParts, "-")
	name := feed.Name
	if name == "" {
		name = strings.Join(nameParts, " ")
	}

	spec := &gtfsrt.FeedSpec{
		ID:              id,
		Name:            name,
		URL:             feed.URL,
		FeedType:        feed.FeedType,
		AgencyID:        agencyID,
		AgencyName:      agencyName,
		SystemID:        systemID,
		SystemName:      systemName,
		IntervalSeconds: resolvedInterval,
		TimeoutSeconds:  resolvedTimeout,
		Retry:           resolvedRetry,
		Auth:            authRef,
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}
