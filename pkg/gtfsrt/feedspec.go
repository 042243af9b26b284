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

// Package gtfsrt holds the data model shared between the archiver and the
// compactor: the flattened feed catalog, the archive object key format, and
// the compactor partition key format. Neither side imports the other;
// they communicate only through the blob store's directory layout (see the
// object key and partition key types below).
package gtfsrt

import (
	"fmt"
	"strings"
)

// FeedType identifies which GTFS-Realtime message kind a feed publishes.
type FeedType string

const (
	VehiclePositions FeedType = "vehicle_positions"
	TripUpdates      FeedType = "trip_updates"
	ServiceAlerts    FeedType = "service_alerts"
)

// Valid reports whether ft is one of the three known feed types.
func (ft FeedType) Valid() bool {
	switch ft {
	case VehiclePositions, TripUpdates, ServiceAlerts:
		return true
	}
	return false
}

// AuthPlacement selects where a resolved credential is attached to a request.
type AuthPlacement string

const (
	AuthHeader AuthPlacement = "header"
	AuthQuery  AuthPlacement = "query"
)

// AuthRef is a reference to a credential held in an external secret store.
// ResolvedValue is populated exactly once, by the secret resolver, and is
// never serialized back out.
type AuthRef struct {
	Placement     AuthPlacement `json:"placement" yaml:"placement"`
	ParameterName string        `json:"parameter_name" yaml:"parameter_name"`
	SecretID      string        `json:"secret_id" yaml:"secret_id"`
	Template      string        `json:"template,omitempty" yaml:"template,omitempty"`

	ResolvedValue string `json:"-" yaml:"-"`
}

// Resolve applies the template to a raw secret value, per the spec's
// "${SECRET}" substitution contract.
func (a *AuthRef) Resolve(secret string) {
	if a.Template == "" {
		a.ResolvedValue = secret
		return
	}
	a.ResolvedValue = strings.ReplaceAll(a.Template, "${SECRET}", secret)
}

// RetryPolicy bounds retry attempts for a single fetch.
type RetryPolicy struct {
	MaxAttempts        int     `json:"max_attempts" yaml:"max_attempts"`
	BaseBackoffSeconds float64 `json:"base_backoff_seconds" yaml:"base_backoff_seconds"`
	MaxBackoffSeconds  float64 `json:"max_backoff_seconds" yaml:"max_backoff_seconds"`
}

// Validate enforces the range invariants from the data model.
func (r RetryPolicy) Validate() error {
	if r.MaxAttempts < 1 || r.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be in [1,10], got %d", r.MaxAttempts)
	}
	if r.BaseBackoffSeconds < 0.1 || r.BaseBackoffSeconds > 10 {
		return fmt.Errorf("retry.base_backoff_seconds must be in [0.1,10], got %v", r.BaseBackoffSeconds)
	}
	if r.MaxBackoffSeconds < 1 || r.MaxBackoffSeconds > 60 {
		return fmt.Errorf("retry.max_backoff_seconds must be in [1,60], got %v", r.MaxBackoffSeconds)
	}
	return nil
}

// DefaultRetryPolicy is used when a catalog omits retry settings entirely.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoffSeconds: 0.5, MaxBackoffSeconds: 10}
}

// FeedSpec is the flattened, immutable description of one pollable feed.
// It is the unit the scheduler, fetcher and blob writer all operate on.
type FeedSpec struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	URL        string   `json:"url" yaml:"url"`
	FeedType   FeedType `json:"feed_type" yaml:"feed_type"`
	AgencyID   string   `json:"agency_id" yaml:"agency_id"`
	AgencyName string   `json:"agency_name" yaml:"agency_name"`
	SystemID   string   `json:"system_id,omitempty" yaml:"system_id,omitempty"`
	SystemName string   `json:"system_name,omitempty" yaml:"system_name,omitempty"`

	IntervalSeconds int         `json:"interval_seconds" yaml:"interval_seconds"`
	TimeoutSeconds  int         `json:"timeout_seconds" yaml:"timeout_seconds"`
	Retry           RetryPolicy `json:"retry" yaml:"retry"`
	Auth            *AuthRef    `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// ValidID reports whether s matches ^[a-z0-9-]+$, the pattern every agency,
// system and feed identifier in the catalog must satisfy.
func ValidID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}

// Validate enforces the per-FeedSpec invariants from the data model. It does
// not check catalog-wide invariants like ID uniqueness; that is the config
// loader's job once every spec has been flattened.
func (f *FeedSpec) Validate() error {
	if !ValidID(f.ID) {
		return fmt.Errorf("feed %q: id must match ^[a-z0-9-]+$", f.ID)
	}
	if !f.FeedType.Valid() {
		return fmt.Errorf("feed %q: invalid feed_type %q", f.ID, f.FeedType)
	}
	if f.IntervalSeconds < 5 || f.IntervalSeconds > 3600 {
		return fmt.Errorf("feed %q: interval_seconds must be in [5,3600], got %d", f.ID, f.IntervalSeconds)
	}
	if f.TimeoutSeconds < 1 || f.TimeoutSeconds > 120 {
		return fmt.Errorf("feed %q: timeout_seconds must be in [1,120], got %d", f.ID, f.TimeoutSeconds)
	}
	if err := f.Retry.Validate(); err != nil {
		return fmt.Errorf("feed %q: %w", f.ID, err)
	}
	return nil
}
