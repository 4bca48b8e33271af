package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// HostHooks implements HostControl by running configured commands. An empty
// command makes the corresponding action a no-op.
//
// The NKRO command receives "on" or "off" as its last argument.
type HostHooks struct {
	BootloaderCommand []string
	NKROCommand       []string
	Logger            *slog.Logger
}

func (h *HostHooks) SetNKRO(ctx context.Context, enabled bool) error {
	arg := "off"
	if enabled {
		arg = "on"
	}
	return h.run(ctx, h.NKROCommand, arg)
}

func (h *HostHooks) RebootToBootloader(ctx context.Context) error {
	return h.run(ctx, h.BootloaderCommand)
}

func (h *HostHooks) run(ctx context.Context, argv []string, extra ...string) error {
	if len(argv) == 0 {
		return nil
	}
	args := append(append([]string{}, argv[1:]...), extra...)
	out, err := exec.CommandContext(ctx, argv[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w (output: %q)", argv[0], err, out)
	}
	if h.Logger != nil {
		h.Logger.Debug("host hook ran", "command", argv[0], "args", args)
	}
	return nil
}
