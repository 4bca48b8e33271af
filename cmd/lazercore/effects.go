package main

import (
	"context"
	"log/slog"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// KeyOutput is the virtual keyboard the daemon types through.
type KeyOutput interface {
	EmitKey(code evdev.EvCode, pressed bool) error
	TypeText(text string) error
}

// LEDSink receives rendered indicator frames.
type LEDSink interface {
	SetLEDs(frame []LEDColor) error
}

// HostControl performs actions outside the input stack: the bootloader jump
// and telling the host which rollover mode to report.
type HostControl interface {
	SetNKRO(ctx context.Context, enabled bool) error
	RebootToBootloader(ctx context.Context) error
}

// Effects bundles everything runEffect may touch. LEDs and Host may be nil:
// their commands are then dropped quietly.
type Effects struct {
	Keyboard KeyOutput
	LEDs     LEDSink
	Host     HostControl
	Store    Store
	Metrics  *Metrics
}

const (
	persistTimeout = 2 * time.Second
	hostTimeout    = 5 * time.Second
)

// runEffect executes a single reducer-emitted Command against the outside
// world and reports failures via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
func runEffect(fx *Effects, cmd Command, logger *slog.Logger, onEvent func(Event)) {
	if onEvent == nil {
		return
	}

	now := time.Now()
	fail := func(err error, attrs ...any) {
		logger.Error("command failed", append([]any{"command", cmd.String(), "error", err}, attrs...)...)
		fx.Metrics.commandDone(cmd, err)
		onEvent(CommandFailed{Command: cmd, Err: err, At: now})
	}

	switch c := cmd.(type) {
	case CmdEmitKey:
		if fx.Keyboard == nil {
			fail(errNoSink{"keyboard"})
			return
		}
		if err := fx.Keyboard.EmitKey(c.Code, c.Pressed); err != nil {
			fail(err)
			return
		}

	case CmdTypeText:
		if fx.Keyboard == nil {
			fail(errNoSink{"keyboard"})
			return
		}
		if err := fx.Keyboard.TypeText(c.Text); err != nil {
			fail(err, "text", c.Text)
			return
		}
		fx.Metrics.alchemyExpanded()

	case CmdSetLEDs:
		if fx.LEDs == nil {
			return
		}
		if err := fx.LEDs.SetLEDs(c.Frame); err != nil {
			// A missing LED controller is expected; keep it out of the error log.
			logger.Debug("led frame dropped", "error", err)
			fx.Metrics.commandDone(cmd, err)
			return
		}

	case CmdPersist:
		if fx.Store == nil {
			fail(errNoSink{"store"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := fx.Store.Save(ctx, c.Settings.Encode()); err != nil {
			fail(err)
			return
		}
		logger.Debug("settings persisted", "settings", c.Settings)

	case CmdSetNKRO:
		if fx.Host == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), hostTimeout)
		defer cancel()
		if err := fx.Host.SetNKRO(ctx, c.Enabled); err != nil {
			fail(err, "enabled", c.Enabled)
			return
		}

	case CmdRebootBootloader:
		logger.Warn("entering bootloader")
		if fx.Host == nil {
			fail(errNoSink{"host"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), hostTimeout)
		defer cancel()
		if err := fx.Host.RebootToBootloader(ctx); err != nil {
			fail(err)
			return
		}

	case CmdPublishStateSnapshot:
		// Deliver reducer-produced snapshot to the requester.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon loop on a slow requester.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		fail(errUnknownCommand{cmd: cmd})
		return
	}

	fx.Metrics.commandDone(cmd, nil)
}

// errNoSink indicates a command arrived for an output that was never configured.
type errNoSink struct {
	name string
}

func (e errNoSink) Error() string { return "no " + e.name + " configured" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
