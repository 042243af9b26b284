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

package secrets

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/transitfeeds/gtfs-rt-archive/pkg/gtfsrt"
)

type fakeBackend struct {
	values map[string]string
	calls  atomic.Int64
}

func (f *fakeBackend) Fetch(_ context.Context, id string) (string, error) {
	f.calls.Add(1)
	v, ok := f.values[id]
	if !ok {
		return "", fmt.Errorf("no such secret %q", id)
	}
	return v, nil
}

func specWithAuth(id, secretID, template string) gtfsrt.FeedSpec {
	return gtfsrt.FeedSpec{
		ID:  id,
		Auth: &gtfsrt.AuthRef{
			Placement:     gtfsrt.AuthHeader,
			ParameterName: "X-Api-Key",
			SecretID:      secretID,
			Template:      template,
		},
	}
}

func TestResolveAllPopulatesResolvedValue(t *testing.T) {
	backend := &fakeBackend{values: map[string]string{"metro-key": "s3cr3t"}}
	m := NewManager(backend)

	specs := []gtfsrt.FeedSpec{
		specWithAuth("feed-a", "metro-key", "Bearer ${SECRET}"),
		specWithAuth("feed-b", "metro-key", ""),
	}
	require.NoError(t, m.ResolveAll(context.Background(), specs))
	require.Equal(t, "Bearer s3cr3t", specs[0].Auth.ResolvedValue)
	require.Equal(t, "s3cr3t", specs[1].Auth.ResolvedValue)
}

func TestResolveAllMemoizesPerProcess(t *testing.T) {
	backend := &fakeBackend{values: map[string]string{"shared": "v1"}}
	m := NewManager(backend)

	specs := make([]gtfsrt.FeedSpec, 10)
	for i := range specs {
		specs[i] = specWithAuth(fmt.Sprintf("feed-%d", i), "shared", "")
	}
	require.NoError(t, m.ResolveAll(context.Background(), specs))
	require.Equal(t, int64(1), backend.calls.Load())
}

func TestResolveAllFailsFastOnUnresolvable(t *testing.T) {
	backend := &fakeBackend{values: map[string]string{}}
	m := NewManager(backend)

	specs := []gtfsrt.FeedSpec{specWithAuth("feed-a", "missing", "")}
	err := m.ResolveAll(context.Background(), specs)
	require.Error(t, err)
}

func TestResolveAllSkipsFeedsWithoutAuth(t *testing.T) {
	backend := &fakeBackend{values: map[string]string{}}
	m := NewManager(backend)

	specs := []gtfsrt.FeedSpec{{ID: "feed-a"}}
	require.NoError(t, m.ResolveAll(context.Background(), specs))
}
