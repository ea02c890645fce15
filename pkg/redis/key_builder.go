package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	switch environment {
	case "development", "staging":
		prefix = "staging"
	case "test":
		prefix = "test"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeyPosterPositions holds the cached positions of a poster
func (kb *KeyBuilder) KeyPosterPositions(posterID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyPosterPositions, posterID))
}

func (kb *KeyBuilder) KeyPosterGeneration(posterID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyPosterGeneration, posterID))
}

func (kb *KeyBuilder) KeyPositionLock(positionID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyPositionLock, positionID))
}
