// Package buildinfo carries version data injected with -ldflags.
package buildinfo

import "time"

// Set via -ldflags at build time
var (
	Version    = "dev"
	CommitHash string
	BuildTime  string
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC()

// Info is what the health endpoint reports about the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	StartedAt string `json:"startedAt"`
	Uptime    string `json:"uptime"`
}

// Current returns the build info as of now
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    CommitHash,
		BuildTime: BuildTime,
		StartedAt: StartTime.Format(time.RFC3339),
		Uptime:    time.Since(StartTime).Round(time.Second).String(),
	}
}
