package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type s3Store struct {
	log    *logger.Logger
	client *s3.Client
	cfg    Config
}

// newS3Store targets AWS or, with S3_ENDPOINT, any S3-compatible service
// using path-style addressing.
func newS3Store(ctx context.Context, log *logger.Logger, cfg Config) (*s3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	var s3opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}
	return &s3Store{log: log, client: s3.NewFromConfig(awsCfg, s3opts...), cfg: cfg}, nil
}

func (s *s3Store) Put(ctx context.Context, category Category, key string, body io.Reader) error {
	bucket, err := bucketFor(s.cfg, category)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentTypeForKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context, category Category, key string) (io.ReadCloser, error) {
	bucket, err := bucketFor(s.cfg, category)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return out.Body, nil
}

func (s *s3Store) Delete(ctx context.Context, category Category, key string) error {
	bucket, err := bucketFor(s.cfg, category)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

func (s *s3Store) DeletePrefix(ctx context.Context, category Category, prefix string) error {
	bucket, err := bucketFor(s.cfg, category)
	if err != nil {
		return err
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if err := s.Delete(ctx, category, aws.ToString(obj.Key)); err != nil {
				s.log.Warn("delete prefix: object delete failed", "key", aws.ToString(obj.Key), "error", err)
			}
		}
	}
	return nil
}

func (s *s3Store) PublicURL(category Category, key string) string {
	base := "https://s3." + s.cfg.S3Region + ".amazonaws.com"
	if s.cfg.S3Endpoint != "" {
		base = strings.TrimRight(s.cfg.S3Endpoint, "/")
	}
	return publicURL(s.cfg, category, key, base)
}
