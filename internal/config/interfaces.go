package config

import "context"

// SecretProvider resolves secret values by key. The SSM implementation is
// used in deployed environments and the env implementation locally.
type SecretProvider interface {
	// GetParametersBatch returns a key -> plaintext map for every key it
	// could resolve. Keys that do not exist are omitted from the map.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
