package main

// Build information, set via ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// userAgent identifies the player in outgoing requests.
func userAgent() string {
	return "zwfm-briefing/" + Version
}
