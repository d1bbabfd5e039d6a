//go:build linux

package screen

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
)

func platformCommands() (commands, error) {
	var capture func(string) command
	// Try gnome-screenshot first, fall back to scrot
	if _, err := exec.LookPath("gnome-screenshot"); err == nil {
		capture = func(path string) command { return command{"gnome-screenshot", "-f", path} }
	} else if _, err := exec.LookPath("scrot"); err == nil {
		capture = func(path string) command { return command{"scrot", "-o", path} }
	} else {
		return commands{}, apperrors.New(apperrors.CodeUnavailable, "no screenshot tool found (install gnome-screenshot or scrot)")
	}
	if _, err := exec.LookPath("xdotool"); err != nil {
		return commands{}, apperrors.New(apperrors.CodeUnavailable, "xdotool not found")
	}

	return commands{
		capture: capture,
		click: func(x, y int) command {
			return command{"xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y), "click", "1"}
		},
		back: command{"xdotool", "key", "Escape"},
		drag: func(x1, y1, x2, y2 int, d time.Duration) command {
			return command{"xdotool",
				"mousemove", strconv.Itoa(x1), strconv.Itoa(y1), "mousedown", "1",
				"sleep", fmt.Sprintf("%.3f", d.Seconds()),
				"mousemove", strconv.Itoa(x2), strconv.Itoa(y2), "mouseup", "1"}
		},
	}, nil
}
