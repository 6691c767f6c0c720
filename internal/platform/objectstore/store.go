package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type Category string

const (
	CategoryAvatar   Category = "avatar"
	CategorySnapshot Category = "snapshot"
)

var ErrNotFound = errors.New("object not found")

// Store is a bucket-per-category blob store.
type Store interface {
	Put(ctx context.Context, category Category, key string, body io.Reader) error
	Get(ctx context.Context, category Category, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, category Category, key string) error
	DeletePrefix(ctx context.Context, category Category, prefix string) error
	PublicURL(category Category, key string) string
}

// New builds the store for cfg. Disabled mode returns a nil Store.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	storeLog := log.With("service", "ObjectStore")
	var (
		st  Store
		err error
	)
	switch cfg.Mode {
	case ModeDisabled:
		storeLog.Warn("object storage disabled; avatars and snapshots will be skipped")
		return nil, nil
	case ModeMemory:
		st = NewMemory(cfg.PublicBaseURL)
	case ModeGCS, ModeGCSEmulator:
		st, err = newGCSStore(ctx, storeLog, cfg)
	case ModeS3:
		st, err = newS3Store(ctx, storeLog, cfg)
	}
	if err != nil {
		return nil, err
	}
	storeLog.Info("Object storage initialized",
		"mode", cfg.Mode,
		"avatar_bucket", cfg.AvatarBucket,
		"snapshot_bucket", cfg.SnapshotBucket,
		"public_base_url", cfg.PublicBaseURL,
	)
	return st, nil
}

func bucketFor(cfg Config, category Category) (string, error) {
	switch category {
	case CategoryAvatar:
		return cfg.AvatarBucket, nil
	case CategorySnapshot:
		return cfg.SnapshotBucket, nil
	default:
		return "", fmt.Errorf("unknown bucket category: %s", category)
	}
}

func publicURL(cfg Config, category Category, key, defaultBase string) string {
	bucket, err := bucketFor(cfg, category)
	if err != nil {
		return key
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if category == CategoryAvatar && cfg.AvatarCDN != "" {
		return fmt.Sprintf("https://%s/%s", cfg.AvatarCDN, key)
	}
	if cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", cfg.PublicBaseURL, bucket, key)
	}
	return fmt.Sprintf("%s/%s/%s", defaultBase, bucket, key)
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(s, ".html"), strings.HasSuffix(s, ".htm"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
