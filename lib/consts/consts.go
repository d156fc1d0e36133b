package consts

import (
	"fmt"
	"runtime"
)

// Version contains the current semantic version of the k6x engine. Script
// directives of the form "use k6 <constraint>" are checked against it.
const Version = "0.52.0"

// FullVersion returns the maximally full version and build information for
// the currently running k6x executable.
func FullVersion() string {
	return fmt.Sprintf("k6x v%s (%s, %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
