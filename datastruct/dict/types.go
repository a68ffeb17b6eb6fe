package dict

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// StringHash returns an xxhash based hash function for string keys using the given seed
func StringHash(seed uint64) func(key string) uint64 {
	if seed == 0 {
		return xxhash.Sum64String
	}
	return func(key string) uint64 {
		digest := xxhash.NewWithSeed(seed)
		_, _ = digest.WriteString(key)
		return digest.Sum64()
	}
}

// CaseInsensitiveHash hashes the lower case form of key
func CaseInsensitiveHash(seed uint64) func(key string) uint64 {
	hash := StringHash(seed)
	return func(key string) uint64 {
		return hash(strings.ToLower(key))
	}
}

// StringType returns a descriptor for string keys hashed with the seed of cfg
func StringType[V any](cfg *Config) *Type[string, V] {
	if cfg == nil {
		cfg = DefaultConfig
	}
	return &Type[string, V]{
		Hash: StringHash(cfg.HashSeed),
	}
}

// CaseInsensitiveType returns a descriptor for string keys compared regardless of case,
// used by the command table
func CaseInsensitiveType[V any](cfg *Config) *Type[string, V] {
	if cfg == nil {
		cfg = DefaultConfig
	}
	return &Type[string, V]{
		Hash:       CaseInsensitiveHash(cfg.HashSeed),
		KeyCompare: strings.EqualFold,
	}
}

// MakeSimple creates a string keyed dict with the default config
func MakeSimple[V any]() *Dict[string, V] {
	return New(StringType[V](nil), nil)
}
