// Package screen drives the local desktop with native capture and input tools.
package screen

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GriffinCanCode/ocrwatch/internal/device"
	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
)

// command is an argv; the first element is the program.
type command []string

// commands builds the platform tool invocations.
type commands struct {
	capture func(path string) command
	click   func(x, y int) command
	back    command
	drag    func(x1, y1, x2, y2 int, d time.Duration) command
}

// Desktop captures the primary display and injects mouse and key input.
type Desktop struct {
	mu      sync.Mutex
	cmds    commands
	run     device.Runner
	tempDir string
}

// New creates a desktop device using the tools available on this platform.
func New() (*Desktop, error) {
	cmds, err := platformCommands()
	if err != nil {
		return nil, err
	}
	tmpDir, err := os.MkdirTemp("", "ocrwatch-screen-*")
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		tmpDir = os.TempDir()
	}
	return newDesktop(cmds, device.ExecRunner, tmpDir), nil
}

func newDesktop(cmds commands, run device.Runner, tempDir string) *Desktop {
	return &Desktop{cmds: cmds, run: run, tempDir: tempDir}
}

// Screenshot captures the primary display as an image file and returns its bytes.
func (d *Desktop) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tmpFile := filepath.Join(d.tempDir, "screenshot.png")
	if err := d.exec(ctx, d.cmds.capture(tmpFile)); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "desktop capture")
	}
	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "read screenshot")
	}
	_ = os.Remove(tmpFile)
	return data, nil
}

// Click moves the pointer to (x, y) and clicks the primary button.
func (d *Desktop) Click(ctx context.Context, x, y int) error {
	return d.input(ctx, "click", d.cmds.click(x, y))
}

// PressBack sends Escape, the desktop equivalent of dismissing a dialog.
func (d *Desktop) PressBack(ctx context.Context) error {
	return d.input(ctx, "escape", d.cmds.back)
}

// Swipe drags with the primary button held.
func (d *Desktop) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return d.input(ctx, "drag", d.cmds.drag(x1, y1, x2, y2, duration))
}

// Close removes the capture temp directory.
func (d *Desktop) Close() {
	if d.tempDir != "" && d.tempDir != os.TempDir() {
		_ = os.RemoveAll(d.tempDir)
	}
}

func (d *Desktop) input(ctx context.Context, op string, cmd command) error {
	if err := d.exec(ctx, cmd); err != nil {
		return apperrors.Wrap(err, apperrors.CodeActionFailed, "desktop "+op)
	}
	return nil
}

func (d *Desktop) exec(ctx context.Context, cmd command) error {
	_, err := d.run(ctx, cmd[0], cmd[1:]...)
	return err
}
