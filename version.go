package flags

import (
	"fmt"
	"runtime"
)

// Version is the library version reported to tracing and the CLI.
var Version = "v0.4.0"

// GetVersion returns a human-readable version string.
func GetVersion() string {
	return fmt.Sprintf("go-flags %s (%s)", Version, runtime.Version())
}
