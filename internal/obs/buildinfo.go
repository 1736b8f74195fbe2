package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "laundrydesk_build_info",
			Help: "Constant 1, labelled with the running laundrydesk build.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo publishes laundrydesk_build_info for the running binary and
// returns the commit it reported.
func InitBuildInfo(version, commit string) string {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	commit = resolveCommit(commit, debug.ReadBuildInfo)
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
	return commit
}

// resolveCommit prefers the linker-stamped commit and falls back to the VCS
// revision the toolchain embedded.
func resolveCommit(stamped string, read func() (*debug.BuildInfo, bool)) string {
	if stamped != "" && stamped != "dev" {
		return stamped
	}
	if info, ok := read(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				if len(s.Value) > 12 {
					return s.Value[:12]
				}
				return s.Value
			}
		}
	}
	if stamped == "" {
		return "unknown"
	}
	return stamped
}
