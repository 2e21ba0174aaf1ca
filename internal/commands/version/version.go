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

// Package version implements relay version.
package version

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/relayci/relay/internal/commands/shared"
)

// VersionInfo describes the build.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, commit, date := shared.GetVersion()
			info := VersionInfo{
				Version:   v,
				Commit:    commit,
				BuildDate: date,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}

			if shared.GetJSON() {
				type response struct {
					shared.JSONResponse
					VersionInfo
				}
				return shared.EmitJSON(response{
					JSONResponse: shared.NewJSONResponse("version", true),
					VersionInfo:  info,
				})
			}

			cmd.Printf("relay %s\n", info.Version)
			cmd.Printf("  commit:     %s\n", info.Commit)
			cmd.Printf("  built:      %s\n", info.BuildDate)
			cmd.Printf("  go version: %s\n", info.GoVersion)
			cmd.Printf("  platform:   %s\n", info.Platform)
			return nil
		},
	}
}
