package publish

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxInvalidationPaths is the number of paths sent per invalidation batch.
const maxInvalidationPaths = 3000

// s3API is the subset of the S3 client used for uploads.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// cloudFrontAPI is the subset of the CloudFront client used for invalidations.
type cloudFrontAPI interface {
	CreateInvalidation(ctx context.Context, in *cloudfront.CreateInvalidationInput, opts ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

// S3Store uploads objects to a single bucket.
type S3Store struct {
	Client s3API
	Bucket string
}

// CloudFrontInvalidator creates CloudFront invalidations.
type CloudFrontInvalidator struct {
	Client cloudFrontAPI
	// Reference prefixes the caller reference of each batch (usually the commit).
	Reference string
	now       func() time.Time
}

// NewAWS builds the S3 store and CloudFront invalidator from the default
// AWS credential chain.
func NewAWS(ctx context.Context, region, bucket, reference string) (*S3Store, *CloudFrontInvalidator, error) {
	if bucket == "" {
		return nil, nil, fmt.Errorf("no S3 bucket configured (--s3bucket)")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Store{Client: s3.NewFromConfig(cfg), Bucket: bucket},
		&CloudFrontInvalidator{Client: cloudfront.NewFromConfig(cfg), Reference: reference},
		nil
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3://%s/%s: %w", s.Bucket, key, err)
	}
	return nil
}

func (c *CloudFrontInvalidator) Invalidate(ctx context.Context, distributionID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	ref := fmt.Sprintf("%s-%d", strings.TrimSpace(c.Reference), now().UnixNano())
	ref = strings.TrimPrefix(ref, "-")

	items := make([]string, len(paths))
	for i, p := range paths {
		items[i] = "/" + strings.TrimPrefix(p, "/")
	}

	for batch := 0; len(items) > 0; batch++ {
		n := min(len(items), maxInvalidationPaths)
		chunk := items[:n]
		items = items[n:]

		_, err := c.Client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
			DistributionId: aws.String(distributionID),
			InvalidationBatch: &cftypes.InvalidationBatch{
				CallerReference: aws.String(fmt.Sprintf("%s-%d", ref, batch)),
				Paths: &cftypes.Paths{
					Quantity: aws.Int32(int32(len(chunk))),
					Items:    chunk,
				},
			},
		})
		if err != nil {
			return fmt.Errorf("cloudfront %s: %w", distributionID, err)
		}
	}
	return nil
}
