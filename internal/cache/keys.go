package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func TriggerKey(tenantID uuid.UUID, direction string) string {
	return fmt.Sprintf("proximity:trigger:%s:%s", tenantID, direction)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// LastPurgeKey holds the outcome of the most recent retention firing, shared by all instances.
func LastPurgeKey() string {
	return "retention:last_purge"
}
