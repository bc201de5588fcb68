// Package env holds build-time version metadata, set via -ldflags
// "-X github.com/nullsector/volrecover/internal/env.Version=...". Left unset
// by -ldflags, the fields keep their defaults "dev"/"unknown" in PrintLogo.
package env

var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)
