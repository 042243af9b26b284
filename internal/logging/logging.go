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

// Package logging constructs the process-wide go-kit logger, matching the
// teacher's own `log.NewJSONLogger(log.NewSyncWriter(os.Stderr))` plus
// `log.With(logger, "ts", ..., "caller", ...)` idiom in cmd/rule-evaluator.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New builds a logger writing to w, in either "json" or "text" format, at
// the given minimum level. Invalid format/level combinations are rejected
// at startup per §6.
func New(w io.Writer, format, levelName string) (log.Logger, error) {
	var logger log.Logger
	switch format {
	case "json":
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	case "text":
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: must be one of json, text", format)
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	lvl, err := parseLevel(levelName)
	if err != nil {
		return nil, err
	}
	return level.NewFilter(logger, lvl), nil
}

// NewStderr is a convenience wrapper around New writing to os.Stderr, the
// destination every cmd/*/main.go uses.
func NewStderr(format, levelName string) (log.Logger, error) {
	return New(os.Stderr, format, levelName)
}

func parseLevel(name string) (level.Option, error) {
	switch name {
	case "debug":
		return level.AllowDebug(), nil
	case "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: must be one of debug, info, warn, error", name)
	}
}
