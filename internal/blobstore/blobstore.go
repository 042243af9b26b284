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

// Package blobstore is the archiver's and compactor's only shared
// collaborator: archived protobuf objects, their JSON sidecars, and
// compacted Parquet files all live under one GCS bucket's key layout
// (§3, §6). Neither the archiver nor the compactor imports the other; they
// communicate only through this directory layout, per §9.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Store is the narrow surface both the blob writer (§4.4) and the
// compactor's enumerator/decoder (§4.6) need. A single shared handle is
// instantiated lazily under a mutex and reused by every caller, per §4.4
// and §5's "blob handle... shared across all tasks".
type Store struct {
	mu     sync.Mutex
	client *storage.Client
	bucket string
	handle *storage.BucketHandle
}

// NewStore wraps an already-constructed GCS client. Production callers
// build the client once at startup (see cmd/gtfs-rt-archiver) and share it;
// tests substitute fakes for the narrower blobAccess and blobWriter
// interfaces declared by the compactor and scheduler.
func NewStore(client *storage.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) bucketHandle() *storage.BucketHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		s.handle = s.client.Bucket(s.bucket)
	}
	return s.handle
}

// WriteObject uploads content under key with the given content type. The
// write is idempotent: replaying an identical (key, content) pair is safe,
// per §4.4.
func (s *Store) WriteObject(ctx context.Context, key string, content []byte, contentType string) error {
	w := s.bucketHandle().Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", key, err)
	}
	return nil
}

// ReadObject downloads the full contents of key.
func (s *Store) ReadObject(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucketHandle().Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return data, nil
}

// ListObjects returns every object key under prefix, in the lexicographic
// order GCS already yields, matching the §4.6 enumeration's temporal sort.
func (s *Store) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucketHandle().Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
