// Package version exposes the build-time version string cmd/meshkvctl
// reports through its version subcommand, adapted from the teacher's own version package
// down to the fields this module actually has a use for (no daemon
// subsystem to label a Prometheus gauge with).
package version

import (
	"fmt"
	"runtime"
)

var meshkvVersion string // set by build infrastructure via -ldflags

// Info is the version/build information cmd/meshkvctl prints.
type Info struct {
	Version       string
	RuntimeGo     string
	RuntimeGOOS   string
	RuntimeGOARCH string
}

func NewInfo() *Info {
	return &Info{
		Version:       meshkvVersion,
		RuntimeGo:     runtime.Version(),
		RuntimeGOOS:   runtime.GOOS,
		RuntimeGOARCH: runtime.GOARCH,
	}
}

func (i *Info) String() string {
	return fmt.Sprintf("meshkvctl version=%s go=%s GOOS=%s GOARCH=%s",
		i.Version, i.RuntimeGo, i.RuntimeGOOS, i.RuntimeGOARCH)
}
