package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sofmeright/webfreight/src/entry"
	"github.com/sofmeright/webfreight/src/logging"
)

// ErrBundling wraps any bundler failure. One failed entry fails the run.
var ErrBundling = errors.New("bundling failed")

// Options applies to every entry of a build.
type Options struct {
	OutDir      string
	Minify      bool
	Env         string
	Namespace   string
	Inject      map[string]any
	Concurrency int
}

// Orchestrator drives a Bundler over a list of entries.
type Orchestrator struct {
	Bundler Bundler
	Logger  *zap.Logger
}

// Build bundles every entry, writes bundle and sourcemap under OutDir and
// returns the results in entry order. Entries build concurrently, bounded
// by Concurrency; the first failure cancels the remaining builds.
// When several entries share an output only the last one is built.
func (o *Orchestrator) Build(ctx context.Context, entries []entry.Entry, opts Options) ([]Result, error) {
	entries = o.lastPerOutput(entries)
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	results := make([]Result, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, e := range entries {
		g.Go(func() error {
			r, err := o.buildOne(gctx, e, opts)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrBundling, e.Source, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// lastPerOutput drops every entry whose output is claimed again later.
func (o *Orchestrator) lastPerOutput(entries []entry.Entry) []entry.Entry {
	last := make(map[string]int, len(entries))
	for i, e := range entries {
		last[e.Output] = i
	}
	if len(last) == len(entries) {
		return entries
	}
	log := logging.OrNop(o.Logger)
	kept := make([]entry.Entry, 0, len(last))
	for i, e := range entries {
		if last[e.Output] != i {
			log.Warn("entry overridden by a later entry with the same output",
				zap.String("source", e.Source), zap.String("output", e.Output),
				zap.String("winner", entries[last[e.Output]].Source))
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func (o *Orchestrator) buildOne(ctx context.Context, e entry.Entry, opts Options) (Result, error) {
	log := logging.OrNop(o.Logger)
	start := time.Now()

	outfile := filepath.Join(opts.OutDir, filepath.FromSlash(e.Output))
	b, err := o.Bundler.Bundle(ctx, Request{
		Entry:     e,
		Outfile:   outfile,
		Minify:    opts.Minify,
		Env:       opts.Env,
		Namespace: opts.Namespace,
		Inject:    opts.Inject,
	})
	if err != nil {
		return Result{}, err
	}
	if len(b.Code) == 0 {
		return Result{}, fmt.Errorf("%s produced an empty bundle", o.Bundler.Name())
	}

	mapfile := outfile + ".map"
	if err := writeAtomic(outfile, b.Code); err != nil {
		return Result{}, fmt.Errorf("writing %s: %w", outfile, err)
	}
	if err := writeAtomic(mapfile, b.SourceMap); err != nil {
		return Result{}, fmt.Errorf("writing %s: %w", mapfile, err)
	}

	r := Result{
		Entry:     e.String(),
		Bundle:    Output{Key: e.Output, Path: outfile, Size: len(b.Code)},
		SourceMap: Output{Key: e.Output + ".map", Path: mapfile, Size: len(b.SourceMap)},
		Duration:  time.Since(start),
	}
	log.Debug("built entry",
		zap.String("entry", r.Entry),
		zap.Int("bytes", r.Bundle.Size),
		zap.Duration("elapsed", r.Duration))
	return r, nil
}

// writeAtomic replaces path via a temp file in the same directory, so two
// entries sharing an output never interleave their writes.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".build-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
