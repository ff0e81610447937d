// Package publish pushes artifacts to an object store and invalidates the
// CDN in front of it.
//
// Publishing is best effort and not transactional: uploads run
// concurrently, a failed upload does not cancel its siblings, and nothing
// already uploaded is rolled back. A failed publish leaves the bucket in a
// partial state that is converged by redeploying.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sofmeright/webfreight/src/build"
)

// Artifact is a payload ready to publish under Key. Body is read from Path
// when nil.
type Artifact struct {
	Key  string
	Path string
	Body []byte
}

// Discover lists the top-level regular files of dir as artifacts keyed by
// file name. Subdirectories are skipped.
func Discover(ctx context.Context, dir string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading static directory: %w", err)
	}

	keep := make([]bool, len(entries))
	g, _ := errgroup.WithContext(ctx)
	for i, e := range entries {
		g.Go(func() error {
			// Stat follows symlinks, so a link to a directory is skipped too.
			info, err := os.Stat(filepath.Join(dir, e.Name()))
			if err != nil {
				return fmt.Errorf("stat %s: %w", e.Name(), err)
			}
			keep[i] = !info.IsDir()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var artifacts []Artifact
	for i, e := range entries {
		if keep[i] {
			artifacts = append(artifacts, Artifact{Key: e.Name(), Path: filepath.Join(dir, e.Name())})
		}
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Key < artifacts[j].Key })
	return artifacts, nil
}

// FromBuild turns build results into artifacts: each bundle followed by
// its sourcemap.
func FromBuild(results []build.Result) []Artifact {
	artifacts := make([]Artifact, 0, 2*len(results))
	for _, r := range results {
		artifacts = append(artifacts,
			Artifact{Key: r.Bundle.Key, Path: r.Bundle.Path},
			Artifact{Key: r.SourceMap.Key, Path: r.SourceMap.Path},
		)
	}
	return artifacts
}

// Load returns a copy of artifacts with every Body read from disk.
// Files are read concurrently.
func Load(ctx context.Context, artifacts []Artifact) ([]Artifact, error) {
	loaded := make([]Artifact, len(artifacts))
	copy(loaded, artifacts)

	g, _ := errgroup.WithContext(ctx)
	for i := range loaded {
		if loaded[i].Body != nil {
			continue
		}
		g.Go(func() error {
			data, err := os.ReadFile(loaded[i].Path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", loaded[i].Path, err)
			}
			loaded[i].Body = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return loaded, nil
}
