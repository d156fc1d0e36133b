// Package loader reads script sources and extracts the extension requirements
// they declare.
package loader

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/liuxd6825/k6x/lib/fsext"
)

// SourceData wraps a source file; data and filename.
type SourceData struct {
	Data []byte
	URL  *url.URL
}

// ReadSource reads a script from fs, or from stdin when src is "-". Relative
// paths are resolved against pwd.
func ReadSource(fs afero.Fs, pwd, src string, stdin io.Reader) (*SourceData, error) {
	if src == "-" {
		if stdin == nil {
			return nil, errors.New("no stdin to read the script from")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		return &SourceData{URL: &url.URL{Path: "/-", Scheme: "file"}, Data: data}, nil
	}

	srcLocalPath := fsext.Abs(pwd, src)

	data, err := afero.ReadFile(fs, srcLocalPath)
	if err != nil {
		return nil, fmt.Errorf("the script %q couldn't be read: %w", src, err)
	}
	return &SourceData{URL: &url.URL{Scheme: "file", Path: filepath.ToSlash(srcLocalPath)}, Data: data}, nil
}
