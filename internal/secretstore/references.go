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

package secretstore

import (
	"regexp"
	"sort"

	"github.com/relayci/relay/pkg/pipeline"
)

var referencePattern = regexp.MustCompile(`\bsecrets\.([A-Za-z_][A-Za-z0-9_]*)`)

// References returns the sorted set of secret names a pipeline
// mentions in conditions, env values, commands, and action parameters.
// The run command resolves exactly this set before execution.
func References(p *pipeline.Pipeline) []string {
	seen := make(map[string]bool)

	scan := func(s string) {
		for _, m := range referencePattern.FindAllStringSubmatch(s, -1) {
			seen[m[1]] = true
		}
	}
	scanMap := func(m map[string]string) {
		for _, v := range m {
			scan(v)
		}
	}

	scanMap(p.Env)
	for _, id := range p.JobIDs() {
		job := p.Jobs[id]
		scan(job.If)
		scanMap(job.Env)
		for _, step := range job.Steps {
			scan(step.If)
			scan(step.Run)
			scanMap(step.With)
			scanMap(step.Env)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
