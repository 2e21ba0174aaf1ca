// Copyright 2025 The Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package action

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relayci/relay/pkg/pipeline"
)

// cloudCredentials is the service principal document carried by the
// credentials secret.
type cloudCredentials struct {
	ClientID       string `json:"clientId"`
	ClientSecret   string `json:"clientSecret"`
	TenantID       string `json:"tenantId"`
	SubscriptionID string `json:"subscriptionId"`
}

// CloudLogin materializes cloud service principal credentials for
// subsequent steps: the credential JSON lands in a workspace-local file
// and the individual fields are exported as environment variables the
// cloud SDKs pick up.
type CloudLogin struct{}

// Name implements pipeline.Action.
func (c *CloudLogin) Name() string { return "cloud/login" }

// Execute parses with["credentials"] (a JSON service principal
// document) and exports it to the rest of the cell.
func (c *CloudLogin) Execute(ctx context.Context, actx *pipeline.ActionContext, with map[string]string) (map[string]string, error) {
	raw := with["credentials"]
	if raw == "" {
		return nil, fmt.Errorf("cloud/login: credentials is required")
	}

	var creds cloudCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("cloud/login: credentials is not valid JSON: %w", err)
	}
	if creds.ClientID == "" || creds.TenantID == "" {
		return nil, fmt.Errorf("cloud/login: credentials missing clientId or tenantId")
	}

	credFile := filepath.Join(actx.Workspace, ".cloud-credentials.json")
	if err := os.WriteFile(credFile, []byte(raw), 0600); err != nil {
		return nil, fmt.Errorf("cloud/login: writing credential file: %w", err)
	}

	actx.ExportEnv("CLOUD_CLIENT_ID", creds.ClientID)
	actx.ExportEnv("CLOUD_TENANT_ID", creds.TenantID)
	if creds.ClientSecret != "" {
		actx.ExportEnv("CLOUD_CLIENT_SECRET", creds.ClientSecret)
	}
	if creds.SubscriptionID != "" {
		actx.ExportEnv("CLOUD_SUBSCRIPTION_ID", creds.SubscriptionID)
	}
	actx.ExportEnv("CLOUD_CREDENTIALS_FILE", credFile)

	actx.Logger.Info("cloud login configured", "client_id", creds.ClientID, "tenant_id", creds.TenantID)
	return map[string]string{"client_id": creds.ClientID}, nil
}
