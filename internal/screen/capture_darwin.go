//go:build darwin

package screen

import (
	"fmt"
	"os/exec"
	"time"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
)

func platformCommands() (commands, error) {
	if _, err := exec.LookPath("cliclick"); err != nil {
		return commands{}, apperrors.New(apperrors.CodeUnavailable, "cliclick not found (brew install cliclick)")
	}

	return commands{
		// -x: no sound, -m: main display only
		capture: func(path string) command { return command{"screencapture", "-x", "-t", "png", "-m", path} },
		click: func(x, y int) command {
			return command{"cliclick", fmt.Sprintf("c:%d,%d", x, y)}
		},
		back: command{"cliclick", "kp:esc"},
		drag: func(x1, y1, x2, y2 int, d time.Duration) command {
			return command{"cliclick",
				fmt.Sprintf("dd:%d,%d", x1, y1),
				fmt.Sprintf("w:%d", d.Milliseconds()),
				fmt.Sprintf("dm:%d,%d", x2, y2),
				fmt.Sprintf("du:%d,%d", x2, y2)}
		},
	}, nil
}
