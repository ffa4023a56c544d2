package main

import (
	"runtime/debug"
	"time"
)

// Overridden with -ldflags "-X main.commit=... -X main.buildDate=...".
var (
	commit    = "dev"
	buildDate = ""
)

// resolveBuildInfo fills commit and buildDate from the VCS stamp the Go
// toolchain embeds, keeping any value set at link time.
func resolveBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "dev" && s.Value != "" {
				commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if buildDate == "" {
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
					buildDate = t.UTC().Format(time.DateOnly)
				}
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && commit != "dev" {
		commit += "-dirty"
	}
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
