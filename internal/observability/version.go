package observability

// Build metadata, overridden at link time:
//
//	-ldflags "-X .../internal/observability.Version=v0.3.0 ..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
