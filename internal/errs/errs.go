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

// Package errs defines the error kinds the core distinguishes, per §7.
// Callers use errors.As to recover structured detail (status codes, error
// types for metrics labels) rather than matching on formatted strings.
package errs

import "fmt"

// ConfigurationError wraps a fatal startup-time validation failure, naming
// the offending path in the catalog.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error at %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SecretUnavailableError is fatal at startup: a referenced secret could not
// be resolved.
type SecretUnavailableError struct {
	SecretID string
	Err      error
}

func (e *SecretUnavailableError) Error() string {
	return fmt.Sprintf("secret %q unavailable: %v", e.SecretID, e.Err)
}

func (e *SecretUnavailableError) Unwrap() error { return e.Err }

// FetchNonRetryableError marks a terminal HTTP response (400/401/403/404/410).
type FetchNonRetryableError struct {
	StatusCode int
}

func (e *FetchNonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable HTTP status %d", e.StatusCode)
}

// ErrorType returns the metrics label value for this error, per §6.
func (e *FetchNonRetryableError) ErrorType() string {
	return fmt.Sprintf("http_%d", e.StatusCode)
}

// FetchRetryableExhaustedError marks a transient failure that persisted
// through every retry attempt.
type FetchRetryableExhaustedError struct {
	Attempts int
	Kind     string // "timeout", "transport", "http_5xx"
	Err      error
}

func (e *FetchRetryableExhaustedError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts (%s): %v", e.Attempts, e.Kind, e.Err)
}

func (e *FetchRetryableExhaustedError) Unwrap() error { return e.Err }

// ErrorType returns the metrics label value for this error, per §6.
func (e *FetchRetryableExhaustedError) ErrorType() string {
	if e.Kind == "" {
		return "unknown"
	}
	return e.Kind
}

// UploadFailedError marks a blob write that failed after its own retries.
type UploadFailedError struct {
	Key string
	Err error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload failed for key %q: %v", e.Key, e.Err)
}

func (e *UploadFailedError) Unwrap() error { return e.Err }

// DecodeError marks a single malformed protobuf input during compaction.
// It never aborts the partition; the offending object is logged and
// skipped.
type DecodeError struct {
	SourceKey string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed for %q: %v", e.SourceKey, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
