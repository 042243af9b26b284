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

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// GCPBackend resolves secret_ids against Google Secret Manager. A secret_id
// is the bare secret name within projectID; it is always resolved against
// the "latest" version, matching how the rest of this module treats
// credentials as process-lifetime, not versioned, values.
type GCPBackend struct {
	client    *secretmanager.Client
	projectID string
}

// NewGCPBackend dials Secret Manager once, eagerly, and returns a Backend
// sharing that single client across every resolution.
func NewGCPBackend(ctx context.Context, projectID string) (*GCPBackend, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &GCPBackend{client: client, projectID: projectID}, nil
}

// Fetch implements Backend.
func (b *GCPBackend) Fetch(ctx context.Context, secretID string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", b.projectID, secretID)
	resp, err := b.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", fmt.Errorf("access secret %q: %w", secretID, err)
	}
	return string(resp.Payload.Data), nil
}

// Close releases the underlying gRPC connection.
func (b *GCPBackend) Close() error {
	return b.client.Close()
}
