package config

var (
	// Version is the schemastored version number, which is injected during build time.
	Version = "0.0.0"

	// CommitHash is the schemastored git commit hash, which is injected during build time.
	CommitHash = ""

	// BuildTimestamp is the timestamp at which schemastored was built, injected during build time.
	BuildTimestamp = ""

	// Branch is the git branch from which schemastored was built, injected during build time.
	Branch = ""
)
