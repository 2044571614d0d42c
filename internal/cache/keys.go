package cache

import "fmt"

// RateLimitKey is the per-client counter key for the producer API.
func RateLimitKey(clientID string) string {
	return fmt.Sprintf("sitegen:ratelimit:%s", clientID)
}
