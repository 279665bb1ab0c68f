// Package version carries build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Summary returns a multi-line description of the build.
func Summary(name string) string {
	return fmt.Sprintf("%s\n  Version: %s\n  Commit:  %s\n  Built:   %s\n  Runtime: %s\n",
		name, Version, GitSHA, BuildTime, runtime.Version())
}
