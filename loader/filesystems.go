package loader

import (
	"github.com/spf13/afero"

	"github.com/liuxd6825/k6x/lib/fsext"
)

// CreateFilesystem wraps the OS filesystem for script loading. Everything read
// from osfs is cached in memory, so later reads of the same file don't touch
// the disk.
func CreateFilesystem(osfs afero.Fs) *fsext.CacheOnReadFs {
	return fsext.NewCacheOnReadFs(osfs, afero.NewMemMapFs(), 0)
}
