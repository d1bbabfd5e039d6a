package device

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/resilience"
)

// Android key codes
const (
	KeycodeHome = 3
	KeycodeBack = 4
)

// pngMagic prefixes every PNG produced by screencap -p.
var pngMagic = []byte{0x89, 'P', 'N', 'G'}

// ADBOption configures an ADB device.
type ADBOption func(*ADB)

// WithRunner replaces the command runner.
func WithRunner(r Runner) ADBOption {
	return func(a *ADB) { a.run = r }
}

// WithRetry replaces the retry policy for device commands.
func WithRetry(cfg resilience.RetryConfig) ADBOption {
	return func(a *ADB) { a.retry = cfg }
}

// ADB drives an Android device through the adb command line.
type ADB struct {
	path    string
	serial  string
	run     Runner
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewADB creates a device for serial. An empty serial lets adb pick the only device.
func NewADB(path, serial string, opts ...ADBOption) *ADB {
	if path == "" {
		path = "adb"
	}
	a := &ADB{
		path:    path,
		serial:  serial,
		run:     ExecRunner,
		retry:   resilience.DeviceRetryConfig(),
		breaker: resilience.New(resilience.DeviceConfig()),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Serial returns the configured device serial.
func (a *ADB) Serial() string { return a.serial }

// Connect attaches a network device (host:port serials). Local serials need no connect.
func (a *ADB) Connect(ctx context.Context) error {
	if !strings.Contains(a.serial, ":") {
		return nil
	}
	out, err := a.run(ctx, a.path, "connect", a.serial)
	if err != nil {
		return a.wrap(err, apperrors.CodeUnavailable, "adb connect")
	}
	if msg := string(out); strings.Contains(msg, "failed") || strings.Contains(msg, "unable") {
		return apperrors.Newf(apperrors.CodeUnavailable, "adb connect: %s", strings.TrimSpace(msg)).
			WithMetadata("serial", a.serial)
	}
	slog.Info("adb connected", "serial", a.serial)
	return nil
}

// Screenshot returns a PNG of the current screen.
func (a *ADB) Screenshot(ctx context.Context) ([]byte, error) {
	return resilience.RetryValue(ctx, a.retry, func() ([]byte, error) {
		return resilience.ExecuteWithResult(a.breaker, func() ([]byte, error) {
			out, err := a.adb(ctx, "exec-out", "screencap", "-p")
			if err != nil {
				return nil, a.wrap(err, apperrors.CodeCaptureFailed, "screencap")
			}
			if !bytes.HasPrefix(out, pngMagic) {
				return nil, apperrors.Newf(apperrors.CodeCaptureFailed, "screencap returned %d bytes without a PNG header", len(out)).
					WithMetadata("serial", a.serial)
			}
			return out, nil
		})
	})
}

// Click taps at (x, y).
func (a *ADB) Click(ctx context.Context, x, y int) error {
	return a.input(ctx, "tap", strconv.Itoa(x), strconv.Itoa(y))
}

// PressBack sends the back key.
func (a *ADB) PressBack(ctx context.Context) error {
	return a.input(ctx, "keyevent", strconv.Itoa(KeycodeBack))
}

// Swipe drags from (x1, y1) to (x2, y2) over duration.
func (a *ADB) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return a.input(ctx, "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(duration.Milliseconds(), 10))
}

func (a *ADB) input(ctx context.Context, args ...string) error {
	err := a.breaker.Execute(func() error {
		_, err := a.adb(ctx, append([]string{"shell", "input"}, args...)...)
		return err
	})
	if err != nil {
		return a.wrap(err, apperrors.CodeActionFailed, "input "+args[0])
	}
	return nil
}

func (a *ADB) adb(ctx context.Context, args ...string) ([]byte, error) {
	if a.serial != "" {
		args = append([]string{"-s", a.serial}, args...)
	}
	return a.run(ctx, a.path, args...)
}

func (a *ADB) wrap(err error, code apperrors.Code, op string) error {
	if apperrors.CodeOf(err) != apperrors.CodeUnknown {
		return err
	}
	return apperrors.Wrap(err, code, op).WithMetadata("serial", a.serial)
}
