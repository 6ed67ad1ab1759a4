package config

import "time"

type Location struct{}

var _ LocationConfig = Location{}

// GetPlatform returns the OS family the provider emulates ("ios" or "android").
// Only ios asks for background permission separately.
func (Location) GetPlatform() string {
	return GetEnv("PLATFORM", "android")
}

func (Location) GetTrackingInterval() time.Duration {
	return GetEnvDuration("LOCATION_INTERVAL", 60*time.Second)
}

// GetTrackingDistance is the minimum displacement in meters between samples.
func (Location) GetTrackingDistance() float64 {
	return GetEnvFloat("LOCATION_DISTANCE", 10)
}

func (Location) GetBackgroundTaskName() string {
	return GetEnv("LOCATION_TASK_NAME", "background-location-task")
}

func (Location) GetNotification() Notification {
	return Notification{
		Title: GetEnv("LOCATION_NOTIFICATION_TITLE", "Punch Clock Monitoring"),
		Body:  GetEnv("LOCATION_NOTIFICATION_BODY", "Your location is being monitored for time tracking"),
		Color: GetEnv("LOCATION_NOTIFICATION_COLOR", "#00E0FF"),
	}
}

func (Location) GetInboxSize() int {
	return GetEnvInt("LOCATION_INBOX_SIZE", 32)
}

// GetSimulatedPosition is the fix reported by the simulated provider.
func (Location) GetSimulatedPosition() (lat, lon float64) {
	return GetEnvFloat("SIM_LATITUDE", -23.5505), GetEnvFloat("SIM_LONGITUDE", -46.6333)
}
