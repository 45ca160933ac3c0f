package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zstream/internal/domain"
)

// MetadataReader loads chunk layouts.
type MetadataReader interface {
	GetMetadata(ctx context.Context, chunkID string) (domain.ChunkMetadata, error)
}

// MetadataCache is a read-through, size and TTL bounded cache in front of a
// MetadataRepository. Chunk layouts are immutable once written, so only
// deletes need to invalidate. Lookup failures are never cached.
type MetadataCache struct {
	store MetadataRepository
	cache *expirable.LRU[string, domain.ChunkMetadata]
}

// NewMetadataCache creates a cache holding at most size entries for ttl.
func NewMetadataCache(store MetadataRepository, size int, ttl time.Duration) *MetadataCache {
	if size <= 0 {
		size = 1
	}
	return &MetadataCache{
		store: store,
		cache: expirable.NewLRU[string, domain.ChunkMetadata](size, nil, ttl),
	}
}

// GetMetadata returns the cached layout or loads it from the store.
func (c *MetadataCache) GetMetadata(ctx context.Context, chunkID string) (domain.ChunkMetadata, error) {
	if meta, ok := c.cache.Get(chunkID); ok {
		metadataCacheTotal.WithLabelValues("hit").Inc()
		return meta, nil
	}
	metadataCacheTotal.WithLabelValues("miss").Inc()

	meta, err := c.store.GetMetadata(ctx, chunkID)
	if err != nil {
		return domain.ChunkMetadata{}, err
	}

	c.cache.Add(chunkID, meta)
	log.WithField("chunk", chunkID).Trace("Cached chunk metadata")
	return meta, nil
}

// CreateMetadata writes through to the store.
func (c *MetadataCache) CreateMetadata(ctx context.Context, metadata domain.ChunkMetadata) (domain.ChunkMetadata, error) {
	created, err := c.store.CreateMetadata(ctx, metadata)
	if err != nil {
		return domain.ChunkMetadata{}, err
	}
	c.Invalidate(created.ChunkID)
	return created, nil
}

// ListMetadata bypasses the cache.
func (c *MetadataCache) ListMetadata(ctx context.Context) ([]domain.ChunkMetadata, error) {
	return c.store.ListMetadata(ctx)
}

// DeleteMetadata deletes from the store and drops the cached layout.
func (c *MetadataCache) DeleteMetadata(ctx context.Context, chunkID string) error {
	if err := c.store.DeleteMetadata(ctx, chunkID); err != nil {
		return err
	}
	c.Invalidate(chunkID)
	return nil
}

// Invalidate drops a chunk from the cache.
func (c *MetadataCache) Invalidate(chunkID string) {
	c.cache.Remove(chunkID)
}

// Len reports the number of cached layouts.
func (c *MetadataCache) Len() int {
	return c.cache.Len()
}
