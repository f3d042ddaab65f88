package edge

// Version information for the Edge Network client library.
const (
	// Version is the current library version.
	Version = "development"

	// APIVersion is the wire schema version this client targets.
	APIVersion = "v1"

	// BuildDate is set during build time.
	BuildDate = "development"

	// GitCommit is set during build time.
	GitCommit = "unknown"
)
