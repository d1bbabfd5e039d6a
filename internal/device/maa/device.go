// Package maa drives an Android device through MaaFramework's ADB controller.
package maa

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/MaaXYZ/maa-framework-go/v3"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
)

// keycodeBack is the Android back key.
const keycodeBack = 4

var (
	errScreencap        = errors.New("maa screencap job failed")
	errCreateController = errors.New("maa adb controller creation failed")
)

var (
	initMu   sync.Mutex
	initDone bool
)

// Config selects the MAA runtime and the device to attach to.
type Config struct {
	LibDir    string // directory holding the MaaFramework shared libraries
	ADBPath   string
	Address   string // adb serial or host:port
	AgentPath string
}

// Device is a watcher device backed by a MAA controller. MAA jobs are
// serialized; concurrent callers queue on the device mutex.
type Device struct {
	mu      sync.Mutex
	ctrl    controller
	address string
}

// Open initializes MaaFramework once per process, then connects to cfg.Address.
func Open(ctx context.Context, cfg Config) (*Device, error) {
	if err := initFramework(cfg.LibDir); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "init maa framework").WithMetadata("lib_dir", cfg.LibDir)
	}
	ctrl, err := newADBController(cfg.ADBPath, cfg.Address, cfg.AgentPath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "create maa controller").WithMetadata("address", cfg.Address)
	}
	d := newDevice(ctrl, cfg.Address)
	if err := d.connect(ctx); err != nil {
		ctrl.Destroy()
		return nil, err
	}
	return d, nil
}

func newDevice(ctrl controller, address string) *Device {
	return &Device{ctrl: ctrl, address: address}
}

func initFramework(libDir string) error {
	initMu.Lock()
	defer initMu.Unlock()
	if initDone {
		return nil
	}

	var err error
	if libDir == "" {
		err = maa.Init()
	} else {
		err = maa.Init(maa.WithLibDir(libDir))
	}
	if err != nil {
		return err
	}
	initDone = true
	slog.Info("maa framework initialized", "lib_dir", libDir)
	return nil
}

// Release unloads MaaFramework after every device is closed.
func Release() {
	initMu.Lock()
	defer initMu.Unlock()
	if initDone {
		if err := maa.Release(); err != nil {
			slog.Warn("maa framework release failed", "error", err)
		}
		initDone = false
	}
}

func (d *Device) connect(ctx context.Context) error {
	ok, err := d.do(ctx, d.ctrl.Connect)
	if err != nil {
		return err
	}
	if !ok {
		return d.fail(apperrors.CodeUnavailable, "connect")
	}
	slog.Info("maa controller connected", "address", d.address)
	return nil
}

// Screenshot captures the screen and returns it PNG encoded.
func (d *Device) Screenshot(ctx context.Context) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	if _, cerr := d.do(ctx, func() bool {
		img, err = d.ctrl.Screencap()
		return err == nil
	}); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "maa screencap").WithMetadata("address", d.address)
	}
	if img == nil {
		return nil, d.fail(apperrors.CodeCaptureFailed, "screencap returned no image")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "encode screencap")
	}
	return buf.Bytes(), nil
}

// Click taps at (x, y).
func (d *Device) Click(ctx context.Context, x, y int) error {
	return d.action(ctx, "click", func() bool { return d.ctrl.Click(int32(x), int32(y)) })
}

// PressBack sends the back key.
func (d *Device) PressBack(ctx context.Context) error {
	return d.action(ctx, "back", func() bool { return d.ctrl.ClickKey(keycodeBack) })
}

// Swipe drags from (x1, y1) to (x2, y2) over duration.
func (d *Device) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return d.action(ctx, "swipe", func() bool {
		return d.ctrl.Swipe(int32(x1), int32(y1), int32(x2), int32(y2), duration)
	})
}

// Close releases the controller.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctrl.Destroy()
}

func (d *Device) action(ctx context.Context, op string, job func() bool) error {
	ok, err := d.do(ctx, job)
	if err != nil {
		return err
	}
	if !ok {
		return d.fail(apperrors.CodeActionFailed, op)
	}
	return nil
}

// do runs a blocking MAA job. The caller stops waiting when ctx ends, but
// the job itself cannot be interrupted and finishes in the background.
func (d *Device) do(ctx context.Context, job func() bool) (bool, error) {
	done := make(chan bool, 1)
	go func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		done <- job()
	}()

	select {
	case ok := <-done:
		return ok, nil
	case <-ctx.Done():
		return false, apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "maa job").WithMetadata("address", d.address)
	}
}

func (d *Device) fail(code apperrors.Code, op string) error {
	return apperrors.Newf(code, "maa %s failed", op).WithMetadata("address", d.address)
}
