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

package scheduler

import (
	"sync"
	"time"
)

// status is a feed's position in the idle -> queued -> running state
// machine. A tick that fires while the feed is queued or running never
// enqueues a backlog entry; it only updates pending.
type status int

const (
	statusIdle status = iota
	statusQueued
	statusRunning
)

// feedState tracks one feed's dispatch state. pending holds the scheduled
// time of the single most recent tick that arrived while busy, or the zero
// Time if none is outstanding.
type feedState struct {
	mu      sync.Mutex
	current status
	pending time.Time
}

// admit reports whether a tick scheduled at scheduledTime should dispatch
// immediately. If the feed is busy, the tick is recorded as pending
// (replacing any older pending tick) and admit returns false.
func (s *feedState) admit(scheduledTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == statusIdle {
		s.current = statusQueued
		return true
	}
	s.pending = scheduledTime
	return false
}

// complete marks the in-flight tick done and reports the next tick to run,
// if one was coalesced and is still within grace of its scheduled moment.
// Older misses — past grace — are dropped silently, per the spec's
// misfire-grace rule.
func (s *feedState) complete(now time.Time, grace time.Duration) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.IsZero() {
		s.current = statusIdle
		return time.Time{}, false
	}
	next := s.pending
	s.pending = time.Time{}
	if now.Sub(next) > grace {
		s.current = statusIdle
		return time.Time{}, false
	}
	s.current = statusQueued
	return next, true
}

func (s *feedState) setRunning() {
	s.mu.Lock()
	s.current = statusRunning
	s.mu.Unlock()
}
