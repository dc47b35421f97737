package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a byte-valued TTL cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache key patterns
const (
	DownloadURLKey = "frameio:download:%s" // frameio:download:assetID
	ThumbnailKey   = "frameio:thumb:%s"    // frameio:thumb:assetID
)

// Cache durations
const (
	DownloadURLDuration = 10 * time.Minute // signed URLs outlive this comfortably
	ThumbnailDuration   = time.Hour
)
