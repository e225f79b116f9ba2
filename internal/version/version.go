// Package version reports build information for the fluentsql binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Set with -ldflags "-X github.com/satishbabariya/fluentsql/internal/version.Version=...".
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string
	BuildDate string
	GitCommit string
	GoVersion string
	Platform  string
}

// Get returns version information. The commit falls back to the VCS
// revision stamped by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := debug.ReadBuildInfo(); ok && info.GitCommit == "unknown" {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				info.GitCommit = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("fluentsql version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString lists every field on its own line.
func (i Info) FullString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fluentsql version %s\n", i.Version)
	for _, f := range [][2]string{
		{"Build Date", i.BuildDate},
		{"Git Commit", i.GitCommit},
		{"Platform", i.Platform},
		{"Go Version", i.GoVersion},
	} {
		fmt.Fprintf(&b, "%s: %s\n", f[0], f[1])
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Valid reports whether Version is a semantic version.
func (i Info) Valid() bool {
	_, err := goversion.NewSemver(i.Version)
	return err == nil
}
