package common

// Version is the release version, overridable at build time via
// -ldflags "-X github.com/ternarybob/venator/internal/common.Version=...".
var Version = "0.3.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
