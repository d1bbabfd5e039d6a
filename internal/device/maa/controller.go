package maa

import (
	"image"
	"time"

	"github.com/MaaXYZ/maa-framework-go/v3"
	"github.com/MaaXYZ/maa-framework-go/v3/controller/adb"
)

// controller is the subset of a MAA controller the device uses. Every call
// blocks until the posted job finishes.
type controller interface {
	Connect() bool
	Screencap() (image.Image, error)
	Click(x, y int32) bool
	ClickKey(keycode int32) bool
	Swipe(x1, y1, x2, y2 int32, duration time.Duration) bool
	Destroy()
}

var _ controller = (*adbController)(nil)

type adbController struct {
	ctrl *maa.Controller
}

func newADBController(adbPath, address, agentPath string) (controller, error) {
	ctrl := maa.NewAdbController(adbPath, address, adb.ScreencapDefault, adb.InputDefault, "{}", agentPath)
	if ctrl == nil {
		return nil, errCreateController
	}
	return &adbController{ctrl: ctrl}, nil
}

func (c *adbController) Connect() bool {
	return c.ctrl.PostConnect().Wait().Success()
}

func (c *adbController) Screencap() (image.Image, error) {
	if !c.ctrl.PostScreencap().Wait().Success() {
		return nil, errScreencap
	}
	img := c.ctrl.CacheImage()
	if img == nil {
		return nil, errScreencap
	}
	return img, nil
}

func (c *adbController) Click(x, y int32) bool {
	return c.ctrl.PostClick(x, y).Wait().Success()
}

func (c *adbController) ClickKey(keycode int32) bool {
	return c.ctrl.PostClickKey(keycode).Wait().Success()
}

func (c *adbController) Swipe(x1, y1, x2, y2 int32, duration time.Duration) bool {
	return c.ctrl.PostSwipe(x1, y1, x2, y2, duration).Wait().Success()
}

func (c *adbController) Destroy() {
	c.ctrl.Destroy()
}
