package instance

import (
	"os"

	"github.com/angelmondragon/tryon-backend/pkg/env"
)

// GetID returns the worker identifier used to tag distributed lock owners.
// WORKER_ID wins, then the hostname.
func GetID() string {
	if id := env.Get("WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
