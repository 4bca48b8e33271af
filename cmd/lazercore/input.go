package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	evdev "github.com/holoplot/go-evdev"
)

// openKeyboards opens the configured input devices. With no paths configured
// it picks every device that reports both KEY_A and KEY_ENTER, skipping our
// own virtual keyboard.
func openKeyboards(paths []string, skipName string, logger *slog.Logger) ([]*evdev.InputDevice, error) {
	if len(paths) > 0 {
		var devs []*evdev.InputDevice
		for _, p := range paths {
			dev, err := evdev.Open(p)
			if err != nil {
				closeDevices(devs)
				return nil, fmt.Errorf("open %s: %w", p, err)
			}
			devs = append(devs, dev)
		}
		return devs, nil
	}

	found, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	var devs []*evdev.InputDevice
	for _, p := range found {
		if p.Name == skipName {
			continue
		}
		dev, err := evdev.Open(p.Path)
		if err != nil {
			logger.Debug("skipping input device", "path", p.Path, "error", err)
			continue
		}
		if isKeyboard(dev.CapableEvents(evdev.EV_KEY)) {
			logger.Info("using input device", "path", p.Path, "name", p.Name)
			devs = append(devs, dev)
			continue
		}
		_ = dev.Close()
	}
	if len(devs) == 0 {
		return nil, errors.New("no keyboard found")
	}
	return devs, nil
}

// openEncoders opens devices that only contribute rotary input.
func openEncoders(paths []string) ([]*evdev.InputDevice, error) {
	var devs []*evdev.InputDevice
	for _, p := range paths {
		dev, err := evdev.Open(p)
		if err != nil {
			closeDevices(devs)
			return nil, fmt.Errorf("open encoder %s: %w", p, err)
		}
		devs = append(devs, dev)
	}
	return devs, nil
}

func isKeyboard(codes []evdev.EvCode) bool {
	var hasA, hasEnter bool
	for _, c := range codes {
		switch c {
		case evdev.KEY_A:
			hasA = true
		case evdev.KEY_ENTER:
			hasEnter = true
		}
	}
	return hasA && hasEnter
}

func closeDevices(devs []*evdev.InputDevice) {
	for _, d := range devs {
		_ = d.Close()
	}
}

// runInputReader forwards one device's events until ctx is canceled or the
// device goes away. Grabbed devices stop delivering to other readers, so the
// virtual keyboard becomes the only source the host sees.
func runInputReader(ctx context.Context, dev *evdev.InputDevice, grab bool, events chan<- Event, logger *slog.Logger) error {
	path := dev.Path()
	if grab {
		if err := dev.Grab(); err != nil {
			return fmt.Errorf("grab %s: %w", path, err)
		}
		defer func() { _ = dev.Ungrab() }()
	}

	// Closing the device unblocks ReadOne on shutdown.
	go func() {
		<-ctx.Done()
		_ = dev.Close()
	}()

	logger.Info("input reader started", "path", path, "grab", grab)
	for {
		ie, err := dev.ReadOne()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read %s: %w", path, err)
		}

		ev, ok := translateInput(ie)
		if !ok {
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

// translateInput maps a raw evdev event to a reducer Event. Autorepeat is
// dropped; the host generates its own repeats from the virtual device.
func translateInput(ie *evdev.InputEvent) (Event, bool) {
	switch ie.Type {
	case evdev.EV_KEY:
		switch ie.Value {
		case evValuePress, evValueRelease:
			return KeyInput{Code: ie.Code, Row: -1, Col: -1, Pressed: ie.Value == evValuePress}, true
		}
	case evdev.EV_REL:
		if (ie.Code == evdev.REL_DIAL || ie.Code == evdev.REL_WHEEL) && ie.Value != 0 {
			return EncoderTurn{Steps: int(ie.Value)}, true
		}
	}
	return nil, false
}
