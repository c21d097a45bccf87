package instance

import "github.com/angelmondragon/storefront-backend/pkg/env"

// GetID identifies the running process in logs. The platform dyno name wins
// over WORKER_ID.
func GetID() string {
	return env.First("local", "DYNO", "WORKER_ID")
}
