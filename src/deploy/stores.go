package deploy

import (
	"context"

	"go.uber.org/zap"

	"github.com/sofmeright/webfreight/src/config"
	"github.com/sofmeright/webfreight/src/gitver"
	"github.com/sofmeright/webfreight/src/publish"
)

// AWSStores publishes to S3 and invalidates CloudFront using the default
// AWS credential chain. Invalidation is skipped when no distribution is set.
func AWSStores(ctx context.Context, cfg config.Resolved, id gitver.Identity) (publish.ObjectStore, publish.Invalidator, error) {
	store, inv, err := publish.NewAWS(ctx, cfg.Region, cfg.Bucket, id.ShortCommit())
	if err != nil {
		return nil, nil, err
	}
	if cfg.CloudFrontID == "" {
		return store, nil, nil
	}
	return store, inv, nil
}

// DryRunStores logs every upload and invalidation instead of performing it.
func DryRunStores(logger *zap.Logger) StoreFactory {
	return func(context.Context, config.Resolved, gitver.Identity) (publish.ObjectStore, publish.Invalidator, error) {
		s := &publish.DryRunStore{Logger: logger}
		return s, s, nil
	}
}
