package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for logs and the /version endpoint.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
