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

package run

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/relayci/relay/internal/commands/shared"
	"github.com/relayci/relay/internal/config"
)

// debounce wait after the last filesystem event before re-running.
const watchSettle = 300 * time.Millisecond

// watchLoop runs the pipeline, then re-runs it whenever the definition
// or the source tree changes. Editor save storms are debounced and
// re-runs are rate limited to one per two seconds.
func watchLoop(ctx context.Context, path string, opts *options, cfg *config.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return shared.NewRunFailedError("creating file watcher", err)
	}
	defer watcher.Close()

	sourceDir := opts.sourceDir
	if sourceDir == "" {
		sourceDir = filepath.Dir(path)
	}
	if err := watchTree(watcher, sourceDir); err != nil {
		return shared.NewRunFailedError("watching source tree", err)
	}

	limiter := rate.NewLimiter(rate.Every(2*time.Second), 1)

	runAndReport := func() {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := runOnce(ctx, path, opts, cfg); err != nil {
			var exitErr *shared.ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != shared.ExitRunFailed {
				fmt.Fprintln(os.Stderr, shared.RenderError(err.Error()))
			}
		}
		fmt.Println(shared.Muted.Render("watching for changes... (ctrl-c to stop)"))
	}

	runAndReport()

	var settle *time.Timer
	settleCh := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignoreWatchEvent(event) {
				continue
			}
			// New directories join the watch set.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchTree(watcher, event.Name)
				}
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(watchSettle, func() {
				select {
				case settleCh <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, shared.RenderWarn("watch error: "+err.Error()))

		case <-settleCh:
			runAndReport()
		}
	}
}

// watchTree adds dir and its subdirectories to the watcher, skipping
// VCS internals.
func watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" || d.Name() == "node_modules" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// ignoreWatchEvent filters events that should not trigger a re-run.
func ignoreWatchEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return true
	}
	base := filepath.Base(event.Name)
	// Editor temp files and swap files.
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}
