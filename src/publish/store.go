package publish

import (
	"context"
	"mime"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/sofmeright/webfreight/src/logging"
)

// ObjectStore stores bytes under a key. Put overwrites any existing object.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Invalidator purges cached paths from a CDN distribution.
type Invalidator interface {
	Invalidate(ctx context.Context, distributionID string, paths []string) error
}

// ContentType guesses the MIME type of a key from its extension.
func ContentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".map":
		return "application/json"
	case "":
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// DryRunStore logs uploads and invalidations without sending anything.
type DryRunStore struct {
	Logger *zap.Logger
}

func (s *DryRunStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	logging.OrNop(s.Logger).Info("dry-run upload",
		zap.String("key", key),
		zap.Int("bytes", len(body)),
		zap.String("content_type", contentType))
	return nil
}

func (s *DryRunStore) Invalidate(_ context.Context, distributionID string, paths []string) error {
	logging.OrNop(s.Logger).Info("dry-run invalidation",
		zap.String("distribution", distributionID),
		zap.Strings("paths", paths))
	return nil
}
