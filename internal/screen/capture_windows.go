//go:build windows

package screen

import apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"

// TODO: Implement using Windows GDI capture and SendInput
func platformCommands() (commands, error) {
	return commands{}, apperrors.New(apperrors.CodeUnsupported, "desktop device not implemented on windows")
}
