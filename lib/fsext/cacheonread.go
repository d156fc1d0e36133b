package fsext

import (
	"time"

	"github.com/spf13/afero"
)

// CacheOnReadFs reads through to a base file system and keeps every file it
// read in a cache layer.
type CacheOnReadFs struct {
	afero.Fs
	cache afero.Fs
}

// NewCacheOnReadFs returns a CacheOnReadFs over base using layer as the cache.
// A zero cacheTime keeps cached files forever.
func NewCacheOnReadFs(base, layer afero.Fs, cacheTime time.Duration) *CacheOnReadFs {
	return &CacheOnReadFs{
		Fs:    afero.NewCacheOnReadFs(base, layer, cacheTime),
		cache: layer,
	}
}

// GetCachingFs returns the layer that holds the files read so far.
func (c *CacheOnReadFs) GetCachingFs() afero.Fs {
	return c.cache
}
