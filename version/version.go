package version

import "fmt"

// these values are set via ldflags during build
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var FullVersion = fmt.Sprintf("%s (build %s, commit %s)", Version, BuildDate, GitCommit)
