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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFeedStateAdmitsIdleTick(t *testing.T) {
	s := &feedState{}
	require.True(t, s.admit(time.Now()))
}

func TestFeedStateCoalescesConcurrentTick(t *testing.T) {
	s := &feedState{}
	first := time.Now()
	require.True(t, s.admit(first))

	second := first.Add(time.Second)
	require.False(t, s.admit(second)) // busy: coalesced, not a new dispatch

	third := first.Add(2 * time.Second)
	require.False(t, s.admit(third)) // replaces the pending tick, not queued twice

	next, ok := s.complete(third.Add(time.Millisecond), 5*time.Second)
	require.True(t, ok)
	require.Equal(t, third, next) // only the latest missed tick survives
}

func TestFeedStateDropsStalePendingTick(t *testing.T) {
	s := &feedState{}
	scheduled := time.Now()
	require.True(t, s.admit(scheduled))

	missed := scheduled.Add(time.Second)
	require.False(t, s.admit(missed))

	// completion happens well past the misfire grace
	next, ok := s.complete(missed.Add(10*time.Second), 5*time.Second)
	require.False(t, ok)
	require.True(t, next.IsZero())
}

func TestFeedStateGoesIdleWithNoPending(t *testing.T) {
	s := &feedState{}
	require.True(t, s.admit(time.Now()))
	next, ok := s.complete(time.Now(), 5*time.Second)
	require.False(t, ok)
	require.True(t, next.IsZero())

	// idle again: a fresh tick is admitted immediately
	require.True(t, s.admit(time.Now()))
}
