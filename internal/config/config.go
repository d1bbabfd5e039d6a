// Package config handles ocrwatch configuration
package config

import (
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
)

// Device backends
const (
	DeviceADB     = "adb"
	DeviceMAA     = "maa"
	DeviceDesktop = "desktop"
)

// OCR backends
const (
	OCRTesseract = "tesseract"
	OCRRemote    = "remote"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the gRPC recognizer service

	DeviceBackend string
	ADBPath       string
	ADBSerial     string
	MAALibDir     string
	MAAADBAddress string
	MAAAgentPath  string

	OCRBackend         string
	OCRRemoteAddr      string
	OCRLanguages       []string
	OCREngineThreshold float64

	WatchInterval   time.Duration
	WatchConfidence float64
	WatchRulesFile  string
	WatchAutostart  bool

	FrameDedupe       bool
	FrameHashDistance int

	EventsRedisURL     string
	EventsRedisChannel string

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		GRPCAddr: getEnv("GRPC_ADDR", ""),

		DeviceBackend: strings.ToLower(getEnv("DEVICE_BACKEND", DeviceADB)),
		ADBPath:       getEnv("ADB_PATH", "adb"),
		ADBSerial:     getEnv("ADB_SERIAL", ""),
		MAALibDir:     getEnv("MAA_LIB_DIR", ""),
		MAAADBAddress: getEnv("MAA_ADB_ADDRESS", "127.0.0.1:5555"),
		MAAAgentPath:  getEnv("MAA_AGENT_PATH", ""),

		OCRBackend:         strings.ToLower(getEnv("OCR_BACKEND", OCRTesseract)),
		OCRRemoteAddr:      getEnv("OCR_REMOTE_ADDR", "localhost:50051"),
		OCRLanguages:       getEnvList("OCR_LANGUAGES", []string{"eng"}),
		OCREngineThreshold: getEnvFloat("OCR_ENGINE_THRESHOLD", 0),

		WatchInterval:   getEnvSeconds("WATCH_INTERVAL", time.Second),
		WatchConfidence: getEnvFloat("WATCH_CONFIDENCE", 0.7),
		WatchRulesFile:  getEnv("WATCH_RULES_FILE", ""),
		WatchAutostart:  getEnvBool("WATCH_AUTOSTART", false),

		FrameDedupe:       getEnvBool("FRAME_DEDUPE", true),
		FrameHashDistance: getEnvInt("FRAME_HASH_DISTANCE", 0),

		EventsRedisURL:     getEnv("EVENTS_REDIS_URL", ""),
		EventsRedisChannel: getEnv("EVENTS_REDIS_CHANNEL", "ocrwatch:events"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
	}
}

// Validate reports every invalid setting in one CONFIG_INVALID error.
func (c *Config) Validate() error {
	var problems []error
	bad := func(format string, args ...any) {
		problems = append(problems, apperrors.Newf(apperrors.CodeConfigInvalid, format, args...))
	}

	switch c.DeviceBackend {
	case DeviceADB, DeviceMAA, DeviceDesktop:
	default:
		bad("DEVICE_BACKEND %q is not one of adb, maa, desktop", c.DeviceBackend)
	}
	switch c.OCRBackend {
	case OCRTesseract:
	case OCRRemote:
		if c.OCRRemoteAddr == "" {
			bad("OCR_REMOTE_ADDR is required when OCR_BACKEND=remote")
		}
	default:
		bad("OCR_BACKEND %q is not one of tesseract, remote", c.OCRBackend)
	}
	if c.DeviceBackend == DeviceMAA && c.MAAADBAddress == "" {
		bad("MAA_ADB_ADDRESS is required when DEVICE_BACKEND=maa")
	}
	if !(c.OCREngineThreshold >= 0 && c.OCREngineThreshold <= 1) {
		bad("OCR_ENGINE_THRESHOLD %v outside [0,1]", c.OCREngineThreshold)
	}
	if !(c.WatchConfidence >= 0 && c.WatchConfidence <= 1) {
		bad("WATCH_CONFIDENCE %v outside [0,1]", c.WatchConfidence)
	}
	if c.WatchInterval <= 0 {
		bad("WATCH_INTERVAL must be positive")
	}
	if c.FrameHashDistance < 0 {
		bad("FRAME_HASH_DISTANCE must not be negative")
	}
	if c.LogMaxSizeMB < 0 || c.LogMaxBackups < 0 {
		bad("LOG_MAX_SIZE_MB and LOG_MAX_BACKUPS must not be negative")
	}

	if len(problems) == 0 {
		return nil
	}
	return apperrors.Wrap(errors.Join(problems...), apperrors.CodeConfigInvalid, "invalid configuration")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// getEnvSeconds reads fractional seconds ("0.5") or a Go duration ("500ms").
// Seconds a Duration cannot hold come back as -1 so Validate rejects them.
func getEnvSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if !(f >= 0 && f < float64(math.MaxInt64)/float64(time.Second)) {
			return -1
		}
		return time.Duration(f * float64(time.Second))
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
