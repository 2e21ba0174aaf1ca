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
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/relayci/relay/pkg/pipeline"
)

// Checkout copies the pipeline's source tree into the cell workspace so
// steps start from a clean copy, mirroring a fresh clone on a hosted
// runner. The .git directory is not copied.
type Checkout struct{}

// Name implements pipeline.Action.
func (c *Checkout) Name() string { return "checkout" }

// Execute copies the source tree. Optional with keys:
//
//	path: subdirectory of the workspace to copy into
func (c *Checkout) Execute(ctx context.Context, actx *pipeline.ActionContext, with map[string]string) (map[string]string, error) {
	if actx.SourceDir == "" {
		return nil, fmt.Errorf("checkout: no source directory configured")
	}

	target := actx.Workspace
	if sub := with["path"]; sub != "" {
		target = filepath.Join(actx.Workspace, sub)
	}

	files, err := copyTree(ctx, actx.SourceDir, target)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	actx.Logger.Debug("checked out source tree", "files", files, "target", target)
	return map[string]string{"files": strconv.Itoa(files)}, nil
}

// copyTree copies src into dst, skipping .git. Returns the number of
// files copied.
func copyTree(ctx context.Context, src, dst string) (int, error) {
	files := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" && rel != "." {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0755)
		}
		if !d.Type().IsRegular() {
			// Sockets, devices, and symlinks are not part of a checkout.
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := copyFile(path, filepath.Join(dst, rel), info.Mode().Perm()); err != nil {
			return err
		}
		files++
		return nil
	})
	return files, err
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
