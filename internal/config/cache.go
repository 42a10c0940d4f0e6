package config

import (
	"strings"
	"time"
)

// CacheConfig controls the Redis response cache placed in front of the image
// proxy.  Cached bodies larger than MaxBodyBytes are passed through untouched.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads IMAGE_CACHE_* variables.  Posters rarely change, so
// the default TTL matches the one day Cache-Control the proxy advertises.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("IMAGE_CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("IMAGE_CACHE_METHODS", "GET")),
		TTL:          envDur("IMAGE_CACHE_TTL", 24*time.Hour),
		Prefix:       envStr("IMAGE_CACHE_PREFIX", "imgcache"),
		MaxBodyBytes: envInt("IMAGE_CACHE_MAX_BODY_BYTES", 2<<20),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(strings.ToUpper(p)); p != "" {
			m[p] = true
		}
	}
	return m
}
