// Package buildinfo holds version metadata stamped at compile time via
// ldflags, plus the process start time used to stamp telemetry.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// startTime records when the process started. Telemetry records carry
// milliseconds elapsed since this instant in place of a wall clock.
var startTime = time.Now()

// Uptime returns the duration since process start.
func Uptime() time.Duration {
	return time.Since(startTime)
}

// UptimeMillis returns milliseconds elapsed since process start. This
// is the uptime_ms field of every telemetry record.
func UptimeMillis() uint64 {
	return uint64(time.Since(startTime) / time.Millisecond)
}

// Info returns build and runtime metadata as a map, for the version
// subcommand and the admin status endpoint.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     Uptime().Truncate(time.Second).String(),
	}
}

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("iotnode %s (%s) built %s", Version, GitCommit, BuildTime)
}
