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

// Package artifact stores named tar.gz archives exchanged between the
// jobs of a run.
package artifact

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/gzip"

	"github.com/relayci/relay/pkg/errors"
)

const archiveExt = ".tgz"

// namePattern restricts artifact names to filesystem-safe identifiers.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// FSStore keeps run artifacts as tar.gz archives in a directory.
// Artifact names are unique per run: a second Save under the same name
// fails, so concurrent matrix cells cannot silently overwrite each
// other's results.
type FSStore struct {
	dir string
	mu  sync.Mutex
}

// NewFSStore creates a store rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *FSStore) Dir() string {
	return s.dir
}

// Save archives the files under root matching patterns (doublestar
// globs), minus ignore matches, as the named artifact. Returns the
// archive byte count.
func (s *FSStore) Save(ctx context.Context, name, root string, patterns, ignore []string) (int64, error) {
	if !namePattern.MatchString(name) {
		return 0, &errors.ValidationError{
			Field:      "name",
			Message:    fmt.Sprintf("invalid artifact name: %q", name),
			Suggestion: "use letters, digits, dots, dashes, and underscores",
		}
	}

	files, err := collect(root, patterns, ignore)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no files match %s", strings.Join(patterns, ", "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.dir, name+archiveExt)
	if _, err := os.Stat(target); err == nil {
		return 0, &errors.ValidationError{
			Field:      "name",
			Message:    fmt.Sprintf("artifact %q already exists in this run", name),
			Suggestion: "make the name unique per matrix cell, e.g. with ${{ matrix.python }}",
		}
	}

	// Write to a temp file first so a failed archive never shows up as
	// a complete artifact.
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return 0, fmt.Errorf("creating archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeArchive(ctx, tmp, root, files); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, fmt.Errorf("storing artifact: %w", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Extract unpacks the named artifact into dir.
func (s *FSStore) Extract(ctx context.Context, name, dir string) error {
	f, err := os.Open(filepath.Join(s.dir, name+archiveExt))
	if err != nil {
		if os.IsNotExist(err) {
			return &errors.NotFoundError{Resource: "artifact", ID: name}
		}
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading artifact %s: %w", name, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading artifact %s: %w", name, err)
		}

		target, err := securePath(dir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

// List returns stored artifact names in sorted order.
func (s *FSStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), archiveExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), archiveExt))
	}
	sort.Strings(names)
	return names, nil
}

// collect resolves glob patterns to a deduplicated, sorted file list
// relative to root.
func collect(root string, patterns, ignore []string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			if excluded(match, ignore) {
				continue
			}
			info, err := fs.Stat(fsys, match)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				// Directory matches include their whole subtree.
				err := fs.WalkDir(fsys, match, func(path string, d fs.DirEntry, err error) error {
					if err != nil {
						return err
					}
					if !d.IsDir() && !excluded(path, ignore) {
						seen[path] = true
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				continue
			}
			seen[match] = true
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func excluded(path string, ignore []string) bool {
	for _, pattern := range ignore {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// writeArchive streams files from root into a tar.gz archive.
func writeArchive(ctx context.Context, w io.Writer, root string, files []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, rel := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		path := filepath.Join(root, rel)
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// securePath joins an archive entry name onto dir, rejecting entries
// that would escape it.
func securePath(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("artifact entry escapes target directory: %s", name)
	}
	return target, nil
}
