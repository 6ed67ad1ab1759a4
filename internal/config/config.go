package config

import (
	"time"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	BackendConfig
	LocationConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	GetLogLevel() string
	GetEmulatorPort() string
	GetTimezone() *time.Location
}

type BackendConfig interface {
	GetBackendURL() string
	GetAnonKey() string
	GetAppScheme() string
	GetJWKSURL() string
	GetHTTPTimeout() time.Duration
	GetRedisURL() string
	GetRefreshLeeway() time.Duration
}

type LocationConfig interface {
	GetPlatform() string
	GetTrackingInterval() time.Duration
	GetTrackingDistance() float64
	GetBackgroundTaskName() string
	GetNotification() Notification
	GetInboxSize() int
	GetSimulatedPosition() (lat, lon float64)
}

// Notification is the persistent notice shown while background tracking runs.
type Notification struct {
	Title string
	Body  string
	Color string
}

type mainConfig struct {
	EnvVars
	Backend
	Location
}

// New loads an optional .env file from the working directory and returns the
// environment backed configuration.
func New() Config {
	_ = godotenv.Load()
	return mainConfig{}
}
