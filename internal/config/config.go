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

// Package config parses and validates the hierarchical YAML feed catalog
// described in §6 and flattens it into a []gtfsrt.FeedSpec, per §4.1.
package config

import (
	"fmt"
	"os"

	"github.com/transitfeeds/gtfs-rt-archive/internal/errs"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
	"gopkg.in/yaml.v3"
)

// AuthConfig is the on-disk shape of an auth reference, per §6:
// {type: header|query, secret_name, key, value?}.
type AuthConfig struct {
	Type       string `yaml:"type"`
	SecretName string `yaml:"secret_name"`
	Key        string `yaml:"key"`
	Value      string `yaml:"value,omitempty"`
}

func (a *AuthConfig) toAuthRef() (*gtfsrt.AuthRef, error) {
	if a == nil {
		return nil, nil
	}
	var placement gtfsrt.AuthPlacement
	switch a.Type {
	case "header":
		placement = gtfsrt.AuthHeader
	case "query":
		placement = gtfsrt.AuthQuery
	default:
		return nil, fmt.Errorf("auth.type must be header or query, got %q", a.Type)
	}
	if a.SecretName == "" {
		return nil, fmt.Errorf("auth.secret_name is required")
	}
	if a.Key == "" {
		return nil, fmt.Errorf("auth.key is required")
	}
	return &gtfsrt.AuthRef{
		Placement:     placement,
		ParameterName: a.Key,
		SecretID:      a.SecretName,
		Template:      a.Value,
	}, nil
}

// RetryConfig is the on-disk shape of a retry policy, per §6:
// {max_attempts, backoff_base, backoff_max}.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BackoffBase float64 `yaml:"backoff_base"`
	BackoffMax  float64 `yaml:"backoff_max"`
}

func (r *RetryConfig) toPolicy() gtfsrt.RetryPolicy {
	return gtfsrt.RetryPolicy{
		MaxAttempts:        r.MaxAttempts,
		BaseBackoffSeconds: r.BackoffBase,
		MaxBackoffSeconds:  r.BackoffMax,
	}
}

// IntervalDefaults gives per-feed-type default polling intervals.
type IntervalDefaults struct {
	VehiclePositions int `yaml:"vehicle_positions"`
	TripUpdates      int `yaml:"trip_updates"`
	ServiceAlerts    int `yaml:"service_alerts"`
}

func (d IntervalDefaults) forType(ft gtfsrt.FeedType) int {
	switch ft {
	case gtfsrt.VehiclePositions:
		return d.VehiclePositions
	case gtfsrt.TripUpdates:
		return d.TripUpdates
	case gtfsrt.ServiceAlerts:
		return d.ServiceAlerts
	default:
		return 0
	}
}

// Defaults holds the file-level defaults every agency/system/feed inherits
// from, absent a more specific override.
type Defaults struct {
	Intervals      IntervalDefaults `yaml:"intervals"`
	TimeoutSeconds int              `yaml:"timeout_seconds"`
	Retry          RetryConfig      `yaml:"retry"`
}

// FeedConfig is one leaf feed entry.
type FeedConfig struct {
	FeedType        gtfsrt.FeedType `yaml:"feed_type"`
	URL             string          `yaml:"url"`
	Name            string          `yaml:"name,omitempty"`
	IntervalSeconds *int            `yaml:"interval_seconds,omitempty"`
	TimeoutSeconds  *int            `yaml:"timeout_seconds,omitempty"`
	Retry           *RetryConfig    `yaml:"retry,omitempty"`
	Auth            *AuthConfig     `yaml:"auth,omitempty"`
}

// SystemConfig mirrors AgencyConfig minus the ability to nest further
// systems, per §6.
type SystemConfig struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	ScheduleURL string       `yaml:"schedule_url,omitempty"`
	Auth        *AuthConfig  `yaml:"auth,omitempty"`
	Feeds       []FeedConfig `yaml:"feeds"`
}

// AgencyConfig is one top-level catalog entry; it owns either Feeds or
// Systems, never both, per §4.1.
type AgencyConfig struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	ScheduleURL string         `yaml:"schedule_url,omitempty"`
	Auth        *AuthConfig    `yaml:"auth,omitempty"`
	Feeds       []FeedConfig   `yaml:"feeds,omitempty"`
	Systems     []SystemConfig `yaml:"systems,omitempty"`
}

// Catalog is the parsed, unflattened YAML document.
type Catalog struct {
	Defaults Defaults       `yaml:"defaults"`
	Agencies []AgencyConfig `yaml:"agencies"`
}

// Load reads and parses the catalog at path, then flattens and validates
// it. Any failure is wrapped in errs.ConfigurationError naming the
// offending path, per §4.1.
func Load(path string) ([]gtfsrt.FeedSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigurationError{Path: path, Err: err}
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, &errs.ConfigurationError{Path: path, Err: fmt.Errorf("parse yaml: %w", err)}
	}
	specs, err := Flatten(&cat)
	if err != nil {
		return nil, &errs.ConfigurationError{Path: path, Err: err}
	}
	return specs, nil
}
