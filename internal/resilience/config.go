package resilience

import "time"

// Circuit breaker configuration constants
const (
	// Remote recognition: a few failures mean the OCR service is down
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Device I/O: adb and desktop tools recover quickly once reconnected
	DeviceThreshold         = 3
	DeviceResetTimeout      = 5 * time.Second
	DeviceHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // used in log lines
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns settings for remote recognition calls.
func DefaultConfig() Config {
	return Config{
		Name:              "remote",
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// DeviceConfig returns settings for device capture and input.
func DeviceConfig() Config {
	return Config{
		Name:              "device",
		Threshold:         DeviceThreshold,
		ResetTimeout:      DeviceResetTimeout,
		HalfOpenSuccesses: DeviceHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "breaker"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
