package main

import (
	"context"
	"log/slog"

	"github.com/GriffinCanCode/ocrwatch/internal/config"
	"github.com/GriffinCanCode/ocrwatch/internal/device"
	"github.com/GriffinCanCode/ocrwatch/internal/device/maa"
	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/grpcclient"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition/tesseract"
	"github.com/GriffinCanCode/ocrwatch/internal/screen"
	"github.com/GriffinCanCode/ocrwatch/internal/watcher"
)

// runtime owns the device and engine selected by configuration.
type runtime struct {
	device  watcher.Device
	engine  recognition.Engine
	closers []func()
}

func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{}
	engine, err := rt.openEngine(cfg)
	if err != nil {
		return nil, err
	}
	rt.engine = engine

	dev, err := rt.openDevice(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.device = dev

	slog.Info("runtime ready", "device", cfg.DeviceBackend, "ocr", cfg.OCRBackend, "dedupe", cfg.FrameDedupe)
	return rt, nil
}

// openEngineOnly is used by commands that never touch a device.
func openEngineOnly(cfg *config.Config) (*runtime, error) {
	rt := &runtime{}
	engine, err := rt.openEngine(cfg)
	if err != nil {
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}

func (rt *runtime) openEngine(cfg *config.Config) (recognition.Engine, error) {
	var engine recognition.Engine
	switch cfg.OCRBackend {
	case config.OCRRemote:
		c, err := grpcclient.New(cfg.OCRRemoteAddr)
		if err != nil {
			return nil, err
		}
		rt.onClose(func() { _ = c.Close() })
		if cfg.OCREngineThreshold > 0 {
			c.SetConfidenceThreshold(cfg.OCREngineThreshold)
		}
		engine = c
	case config.OCRTesseract:
		e, err := tesseract.New(tesseract.Config{Languages: cfg.OCRLanguages, Threshold: cfg.OCREngineThreshold})
		if err != nil {
			return nil, err
		}
		rt.onClose(func() { _ = e.Close() })
		engine = e
	default:
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown OCR backend %q", cfg.OCRBackend)
	}

	if cfg.FrameDedupe {
		engine = recognition.NewDeduper(engine, cfg.FrameHashDistance)
	}
	return engine, nil
}

func (rt *runtime) openDevice(ctx context.Context, cfg *config.Config) (watcher.Device, error) {
	switch cfg.DeviceBackend {
	case config.DeviceADB:
		d := device.NewADB(cfg.ADBPath, cfg.ADBSerial)
		if err := d.Connect(ctx); err != nil {
			return nil, err
		}
		return d, nil
	case config.DeviceMAA:
		d, err := maa.Open(ctx, maa.Config{
			LibDir:    cfg.MAALibDir,
			ADBPath:   cfg.ADBPath,
			Address:   cfg.MAAADBAddress,
			AgentPath: cfg.MAAAgentPath,
		})
		if err != nil {
			return nil, err
		}
		rt.onClose(maa.Release)
		rt.onClose(d.Close)
		return d, nil
	case config.DeviceDesktop:
		d, err := screen.New()
		if err != nil {
			return nil, err
		}
		rt.onClose(d.Close)
		return d, nil
	default:
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown device backend %q", cfg.DeviceBackend)
	}
}

func (rt *runtime) onClose(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
