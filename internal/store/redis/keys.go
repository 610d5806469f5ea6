package redis

import "fmt"

const (
	// KeyPrefixResult is the prefix for per-source result keys
	KeyPrefixResult = "eliwatch:result:"
	// KeyLatestRun holds the full latest run document
	KeyLatestRun = "eliwatch:run:latest"
	// KeyAllResults is the key for the set of all stored source IDs
	KeyAllResults = "eliwatch:results:all"
)

// ResultKey returns the Redis key for a source result by ID
func ResultKey(id string) string {
	return KeyPrefixResult + id
}

// LatestRunKey returns the key of the latest run document
func LatestRunKey() string {
	return KeyLatestRun
}

// AllResultsKey returns the key for the set of all stored source IDs
func AllResultsKey() string {
	return KeyAllResults
}

// ExtractResultID extracts the source ID from a Redis key
func ExtractResultID(key string) (string, error) {
	if len(key) <= len(KeyPrefixResult) || key[:len(KeyPrefixResult)] != KeyPrefixResult {
		return "", fmt.Errorf("invalid result key: %s", key)
	}
	return key[len(KeyPrefixResult):], nil
}
