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

// Package health serves the archiver's /health, /ready, and
// /health/feeds endpoints, per §6. /metrics itself is wired directly
// against promhttp.HandlerFor by the caller, matching the teacher's own
// "http.Handle("/metrics", ...)" composition.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

// SchedulerView is the narrow surface the health handlers need from
// internal/scheduler.Scheduler.
type SchedulerView interface {
	IsRunning() bool
	ActiveFeeds() []gtfsrt.FeedSpec
	LastSuccess(feedID string) (time.Time, bool)
}

// Handler serves the archiver's health surface.
type Handler struct {
	scheduler SchedulerView
	startTime time.Time
}

// New constructs a Handler reporting on scheduler. startTime is the
// process start time used for uptime_seconds.
func New(scheduler SchedulerView, startTime time.Time) *Handler {
	return &Handler{scheduler: scheduler, startTime: startTime}
}

type healthResponse struct {
	Status    string           `json:"status"`
	UptimeSec float64          `json:"uptime_seconds"`
	Scheduler schedulerSummary `json:"scheduler"`
	Feeds     feedsSummary     `json:"feeds"`
}

type schedulerSummary struct {
	Running      bool `json:"running"`
	JobsScheduled int  `json:"jobs_scheduled"`
}

type feedsSummary struct {
	Total int `json:"total"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !h.scheduler.IsRunning() {
		status = "degraded"
	}
	resp := healthResponse{
		Status:    status,
		UptimeSec: time.Since(h.startTime).Seconds(),
		Scheduler: schedulerSummary{
			Running:       h.scheduler.IsRunning(),
			JobsScheduled: len(h.scheduler.ActiveFeeds()),
		},
		Feeds: feedsSummary{Total: len(h.scheduler.ActiveFeeds())},
	}
	writeJSON(w, http.StatusOK, resp)
}

type readyErrorResponse struct {
	Reason string `json:"reason"`
}

// Ready handles GET /ready.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	if h.scheduler.IsRunning() {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, readyErrorResponse{Reason: "scheduler is not running"})
}

type feedHealth struct {
	FeedID                string   `json:"feed_id"`
	AgencyID              string   `json:"agency_id"`
	FeedType              string   `json:"feed_type"`
	IntervalSeconds       int      `json:"interval_seconds"`
	LastSuccessSecondsAgo *float64 `json:"last_success_seconds_ago"`
}

// Feeds handles GET /health/feeds.
func (h *Handler) Feeds(w http.ResponseWriter, _ *http.Request) {
	feeds := h.scheduler.ActiveFeeds()
	out := make([]feedHealth, 0, len(feeds))
	now := time.Now()
	for _, spec := range feeds {
		fh := feedHealth{
			FeedID:          spec.ID,
			AgencyID:        spec.AgencyID,
			FeedType:        string(spec.FeedType),
			IntervalSeconds: spec.IntervalSeconds,
		}
		if last, ok := h.scheduler.LastSuccess(spec.ID); ok {
			secondsAgo := now.Sub(last).Seconds()
			fh.LastSuccessSecondsAgo = &secondsAgo
		}
		out = append(out, fh)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
