package pipeline

import (
	"os"
	"strings"
)

// Environment classifies where the process runs; it decides the renderer order
type Environment int

const (
	// Unrestricted hosts allow spawning any subprocess with no deadline
	Unrestricted Environment = iota
	// Restricted hosts are serverless sandboxes with tight execution limits
	Restricted
)

func (e Environment) String() string {
	if e == Restricted {
		return "restricted"
	}
	return "unrestricted"
}

// restrictedMarkers are variables set by serverless platforms
var restrictedMarkers = []string{
	"VERCEL",
	"AWS_LAMBDA_FUNCTION_NAME",
	"NETLIFY",
	"FUNCTION_TARGET",
}

// DetectEnvironment resolves the configured mode. "auto" (or anything
// unknown) inspects the process environment for platform markers.
func DetectEnvironment(mode string) Environment {
	return detectEnvironment(mode, os.LookupEnv)
}

func detectEnvironment(mode string, lookup func(string) (string, bool)) Environment {
	switch strings.ToLower(mode) {
	case "restricted":
		return Restricted
	case "unrestricted":
		return Unrestricted
	}

	for _, key := range restrictedMarkers {
		if value, ok := lookup(key); ok && value != "" {
			Logger.Debug("Restricted environment marker found", "marker", key)
			return Restricted
		}
	}
	return Unrestricted
}
