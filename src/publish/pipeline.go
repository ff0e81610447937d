package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sofmeright/webfreight/src/logging"
)

// ErrPublish wraps every upload or invalidation failure.
var ErrPublish = errors.New("publish failed")

// PublishError reports every key that failed to upload and, separately,
// a failed invalidation. Keys not listed may or may not have landed.
type PublishError struct {
	Failed     map[string]error
	Invalidate error
}

func (e *PublishError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failed[k]))
	}
	if e.Invalidate != nil {
		parts = append(parts, fmt.Sprintf("invalidation: %v", e.Invalidate))
	}
	return fmt.Sprintf("%s (partial publish possible): %s", ErrPublish, strings.Join(parts, "; "))
}

func (e *PublishError) Unwrap() error { return ErrPublish }

// Report summarises a publish.
type Report struct {
	Uploaded    []Upload
	Failed      []string
	Invalidated []string
	Duration    time.Duration
}

// Upload is one successfully stored object.
type Upload struct {
	Key      string
	Size     int
	Duration time.Duration
}

// Pipeline uploads artifacts and invalidates the CDN.
type Pipeline struct {
	Store ObjectStore
	// Invalidator and DistributionID enable CDN invalidation when both are set.
	Invalidator    Invalidator
	DistributionID string
	// Prefix is prepended to every key.
	Prefix string
	// Limiter throttles upload starts; nil means unthrottled.
	Limiter *rate.Limiter
	// Scanner, when set, must find no leaks before anything is uploaded.
	Scanner *LeakScanner
	Logger  *zap.Logger
}

// NewLimiter returns a limiter for rps uploads per second, or nil for rps <= 0.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// FullKey returns the object key for an artifact key.
func (p *Pipeline) FullKey(key string) string {
	if p.Prefix == "" {
		return key
	}
	return path.Join(strings.Trim(p.Prefix, "/"), key)
}

// Publish uploads every artifact concurrently. A failed upload does not
// cancel the others; once all uploads have been attempted the paths that
// did land are invalidated, and any failure is returned as *PublishError.
// Artifacts sharing a key are uploaded once, with the last one's content.
func (p *Pipeline) Publish(ctx context.Context, artifacts []Artifact) (*Report, error) {
	log := logging.OrNop(p.Logger)
	start := time.Now()

	artifacts = lastPerKey(artifacts)

	loaded, err := Load(ctx, artifacts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublish, err)
	}

	if p.Scanner != nil {
		if leaks := p.Scanner.Scan(loaded); len(leaks) > 0 {
			return nil, &LeakError{Leaks: leaks}
		}
	}

	type outcome struct {
		key      string
		size     int
		duration time.Duration
		err      error
	}
	outcomes := make([]outcome, len(loaded))

	// A plain Group: no derived context, so siblings keep running after a failure.
	var g errgroup.Group
	for i, a := range loaded {
		g.Go(func() error {
			key := p.FullKey(a.Key)
			began := time.Now()
			err := p.upload(ctx, key, a.Body)
			outcomes[i] = outcome{key: key, size: len(a.Body), duration: time.Since(began), err: err}
			if err != nil {
				log.Error("upload failed", zap.String("key", key), zap.Error(err))
				return err
			}
			log.Debug("uploaded", zap.String("key", key), zap.Int("bytes", len(a.Body)))
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	perr := &PublishError{Failed: map[string]error{}}
	var landed []string
	for _, o := range outcomes {
		if o.err != nil {
			perr.Failed[o.key] = o.err
			report.Failed = append(report.Failed, o.key)
			continue
		}
		report.Uploaded = append(report.Uploaded, Upload{Key: o.key, Size: o.size, Duration: o.duration})
		landed = append(landed, o.key)
	}

	if p.Invalidator != nil && p.DistributionID != "" && len(landed) > 0 {
		paths := landed
		if err := p.Invalidator.Invalidate(ctx, p.DistributionID, paths); err != nil {
			log.Error("invalidation failed", zap.String("distribution", p.DistributionID), zap.Error(err))
			perr.Invalidate = err
		} else {
			report.Invalidated = paths
			log.Info("invalidated CDN paths", zap.String("distribution", p.DistributionID), zap.Int("paths", len(paths)))
		}
	}

	report.Duration = time.Since(start)
	if len(perr.Failed) > 0 || perr.Invalidate != nil {
		return report, perr
	}
	return report, nil
}

func (p *Pipeline) upload(ctx context.Context, key string, body []byte) error {
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return p.Store.Put(ctx, key, body, ContentType(key))
}

// lastPerKey keeps the last artifact of every key, in the position of its
// first occurrence.
func lastPerKey(artifacts []Artifact) []Artifact {
	index := make(map[string]int, len(artifacts))
	out := make([]Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if i, ok := index[a.Key]; ok {
			out[i] = a
			continue
		}
		index[a.Key] = len(out)
		out = append(out, a)
	}
	return out
}
