package support

import (
	"hash/fnv"
	"os"
)

func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// HashBucket maps an arbitrary key into [0, 100) for percentage rollouts.
// The same key always lands in the same bucket, so a client is either inside
// the rollout or outside it, never flapping between requests.
func HashBucket(key string) uint8 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return uint8(h.Sum32() % 100)
}
