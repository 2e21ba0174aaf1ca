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
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/relayci/relay/internal/metrics"
	"github.com/relayci/relay/pkg/pipeline"
)

// ArtifactUpload archives workspace files as a named run artifact.
type ArtifactUpload struct{}

// Name implements pipeline.Action.
func (a *ArtifactUpload) Name() string { return "artifact/upload" }

// Execute archives the files matched by with["path"] (newline- or
// comma-separated glob patterns) under with["name"]. Optional
// with["ignore"] lists glob patterns to leave out.
func (a *ArtifactUpload) Execute(ctx context.Context, actx *pipeline.ActionContext, with map[string]string) (map[string]string, error) {
	if actx.Artifacts == nil {
		return nil, fmt.Errorf("artifact/upload: no artifact store configured")
	}

	name := with["name"]
	if name == "" {
		return nil, fmt.Errorf("artifact/upload: name is required")
	}
	patterns := splitPatterns(with["path"])
	if len(patterns) == 0 {
		return nil, fmt.Errorf("artifact/upload: path is required")
	}

	bytes, err := actx.Artifacts.Save(ctx, name, actx.Workspace, patterns, splitPatterns(with["ignore"]))
	if err != nil {
		return nil, fmt.Errorf("artifact/upload: %w", err)
	}

	metrics.ObserveArtifactBytes(bytes)
	actx.Logger.Info("uploaded artifact", "name", name, "bytes", bytes)
	return map[string]string{
		"name":  name,
		"bytes": strconv.FormatInt(bytes, 10),
	}, nil
}

// ArtifactDownload extracts a named run artifact into the workspace.
type ArtifactDownload struct{}

// Name implements pipeline.Action.
func (a *ArtifactDownload) Name() string { return "artifact/download" }

// Execute extracts the artifact with["name"] into with["path"]
// (workspace-relative, default the workspace root).
func (a *ArtifactDownload) Execute(ctx context.Context, actx *pipeline.ActionContext, with map[string]string) (map[string]string, error) {
	if actx.Artifacts == nil {
		return nil, fmt.Errorf("artifact/download: no artifact store configured")
	}

	name := with["name"]
	if name == "" {
		return nil, fmt.Errorf("artifact/download: name is required")
	}

	target := actx.Workspace
	if sub := with["path"]; sub != "" {
		target = filepath.Join(actx.Workspace, sub)
	}

	if err := actx.Artifacts.Extract(ctx, name, target); err != nil {
		return nil, fmt.Errorf("artifact/download: %w", err)
	}

	actx.Logger.Debug("downloaded artifact", "name", name, "target", target)
	return map[string]string{"name": name, "path": target}, nil
}

// splitPatterns splits a with value into glob patterns. Both newlines
// and commas separate entries.
func splitPatterns(value string) []string {
	if value == "" {
		return nil
	}
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == '\n' || r == ','
	})
	patterns := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			patterns = append(patterns, f)
		}
	}
	return patterns
}
