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

package compactor

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/transitfeeds/gtfs-rt-archive/internal/metrics"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

// blobAccess is the narrow surface the compactor needs from
// internal/blobstore.Store: enumerate a partition's inputs, read each one,
// and stage the finished file under its destination key.
type blobAccess interface {
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	ReadObject(ctx context.Context, key string) ([]byte, error)
	WriteObject(ctx context.Context, key string, content []byte, contentType string) error
}

// Result reports what one partition run produced, per §4.6's
// (input_object_count, output_row_count) contract.
type Result struct {
	InputObjectCount int
	OutputRowCount   int
}

// Compactor turns archived protobuf snapshots for one partition into a
// single Parquet file.
type Compactor struct {
	store   blobAccess
	logger  log.Logger
	metrics *metrics.Compactor
}

// New constructs a Compactor backed by store.
func New(store blobAccess, logger log.Logger, m *metrics.Compactor) *Compactor {
	return &Compactor{store: store, logger: logger, metrics: m}
}

// Compact enumerates every archived object for key, decodes and flattens
// each one, and writes exactly one Parquet file at key's deterministic
// output location. A malformed input object is logged and skipped; it
// never fails the whole partition. Empty input is valid: it returns a
// zero Result without writing a file.
func (c *Compactor) Compact(ctx context.Context, key gtfsrt.PartitionKey) (Result, error) {
	start := time.Now()
	result, err := c.compact(ctx, key)
	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.metrics.PartitionsTotal.WithLabelValues(string(key.FeedType), outcome).Inc()
		c.metrics.DurationSeconds.WithLabelValues(string(key.FeedType)).Observe(time.Since(start).Seconds())
		if err == nil {
			c.metrics.LastRowCount.WithLabelValues(string(key.FeedType)).Set(float64(result.OutputRowCount))
		}
	}
	return result, err
}

func (c *Compactor) compact(ctx context.Context, key gtfsrt.PartitionKey) (Result, error) {
	feedURL, err := gtfsrt.FeedKeyToURL(key.FeedKey)
	if err != nil {
		return Result{}, fmt.Errorf("decode feed key: %w", err)
	}

	// Archived keys carry hour= before base64url=, so list the whole day and
	// keep only this feed's base64url segment.
	prefix := key.Prefix()
	keys, err := c.store.ListObjects(ctx, prefix)
	if err != nil {
		return Result{}, fmt.Errorf("list objects under %q: %w", prefix, err)
	}

	inputs := filterPayloadObjects(keys, "/base64url="+gtfsrt.EncodeURL(feedURL)+"/")
	sort.Strings(inputs) // lexicographic sort is temporal, per §4.6

	if len(inputs) == 0 {
		_ = level.Info(c.logger).Log("msg", "partition has no inputs", "feed_type", key.FeedType, "date", key.DateString)
		return Result{}, nil
	}

	outputKey, err := key.OutputKey()
	if err != nil {
		return Result{}, fmt.Errorf("compute output key: %w", err)
	}

	stagingPath, err := stagingFilePath()
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(stagingPath)

	rw, err := newRowWriter(stagingPath, schemaFor(key.FeedType))
	if err != nil {
		return Result{}, err
	}

	var rowCount int
	for _, objectKey := range inputs {
		data, err := c.store.ReadObject(ctx, objectKey)
		if err != nil {
			_ = level.Warn(c.logger).Log("msg", "skipping unreadable object", "key", objectKey, "err", err)
			continue
		}
		decoded, err := Decode(objectKey, feedURL, data)
		if err != nil {
			_ = level.Warn(c.logger).Log("msg", "skipping malformed object", "key", objectKey, "err", err)
			continue
		}
		batch := rowsFor(key.FeedType, decoded)
		if len(batch) == 0 {
			continue
		}
		if err := rw.WriteBatch(batch); err != nil {
			_ = rw.Close()
			return Result{}, fmt.Errorf("write rows for %q: %w", objectKey, err)
		}
		rowCount += len(batch)
	}

	if err := rw.Close(); err != nil {
		return Result{}, err
	}

	data, err := os.ReadFile(stagingPath)
	if err != nil {
		return Result{}, fmt.Errorf("read staged parquet file: %w", err)
	}
	if err := c.store.WriteObject(ctx, outputKey, data, "application/octet-stream"); err != nil {
		return Result{}, fmt.Errorf("upload compacted output %q: %w", outputKey, err)
	}

	return Result{InputObjectCount: len(inputs), OutputRowCount: rowCount}, nil
}

func filterPayloadObjects(keys []string, segment string) []string {
	var out []string
	for _, k := range keys {
		if strings.Contains(k, segment) && strings.HasSuffix(k, ".pb") {
			out = append(out, k)
		}
	}
	return out
}

func schemaFor(ft gtfsrt.FeedType) interface{} {
	switch ft {
	case gtfsrt.VehiclePositions:
		return new(VehiclePositionRow)
	case gtfsrt.TripUpdates:
		return new(TripUpdateRow)
	case gtfsrt.ServiceAlerts:
		return new(ServiceAlertRow)
	default:
		return new(VehiclePositionRow)
	}
}

func rowsFor(ft gtfsrt.FeedType, decoded DecodedRows) []interface{} {
	switch ft {
	case gtfsrt.VehiclePositions:
		rows := make([]interface{}, len(decoded.VehiclePositions))
		for i, r := range decoded.VehiclePositions {
			rows[i] = r
		}
		return rows
	case gtfsrt.TripUpdates:
		rows := make([]interface{}, len(decoded.TripUpdates))
		for i, r := range decoded.TripUpdates {
			rows[i] = r
		}
		return rows
	case gtfsrt.ServiceAlerts:
		rows := make([]interface{}, len(decoded.ServiceAlerts))
		for i, r := range decoded.ServiceAlerts {
			rows[i] = r
		}
		return rows
	default:
		return nil
	}
}

func stagingFilePath() (string, error) {
	f, err := os.CreateTemp("", fmt.Sprintf("gtfs-rt-compactor-%s-*.parquet", uuid.NewString()))
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close staging file handle: %w", err)
	}
	return path, nil
}
