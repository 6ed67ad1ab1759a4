package config

import (
	"strings"
	"time"
)

type Backend struct{}

var _ BackendConfig = Backend{}

// GetBackendURL returns the project URL of the backend, e.g. "https://xyz.supabase.co".
func (Backend) GetBackendURL() string {
	return strings.TrimSuffix(GetEnv("BACKEND_URL", "http://localhost:54321"), "/")
}

func (Backend) GetAnonKey() string {
	return GetEnv("BACKEND_ANON_KEY", "")
}

// GetAppScheme is the custom URL scheme registered for deep links.
func (Backend) GetAppScheme() string {
	return GetEnv("APP_SCHEME", "seuapp")
}

// GetJWKSURL returns the key set used to verify tokens adopted from deep
// links. Empty disables signature verification.
func (b Backend) GetJWKSURL() string {
	return GetEnv("JWKS_URL", "")
}

func (Backend) GetHTTPTimeout() time.Duration {
	return GetEnvDuration("HTTP_TIMEOUT", 30*time.Second)
}

// GetRedisURL selects Redis as the session storage when set.
func (Backend) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

func (Backend) GetRefreshLeeway() time.Duration {
	return GetEnvDuration("REFRESH_LEEWAY", time.Minute)
}
