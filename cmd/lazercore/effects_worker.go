package main

import (
	"context"
	"errors"
	"log/slog"
)

const hostQueueLen = 8

var errHostQueueFull = errors.New("host command queue full")

// effectWorker runs the commands that wait on a store or an external process,
// so key handling never sits behind a slow Redis or a hung hook.
//
// Persist requests share a single slot: a newer blob replaces one that has not
// been written yet. Host commands run in order.
type effectWorker struct {
	fx      *Effects
	logger  *slog.Logger
	onEvent func(Event)

	persist chan CmdPersist
	host    chan Command
}

func newEffectWorker(fx *Effects, logger *slog.Logger, onEvent func(Event)) *effectWorker {
	return &effectWorker{
		fx:      fx,
		logger:  logger,
		onEvent: onEvent,
		persist: make(chan CmdPersist, 1),
		host:    make(chan Command, hostQueueLen),
	}
}

// offloaded reports whether cmd belongs on the worker instead of the loop.
func offloaded(cmd Command) bool {
	switch cmd.(type) {
	case CmdPersist, CmdSetNKRO, CmdRebootBootloader:
		return true
	}
	return false
}

// submit hands cmd to the worker without blocking. Only the daemon loop calls it.
func (w *effectWorker) submit(cmd Command) error {
	if c, ok := cmd.(CmdPersist); ok {
		for {
			select {
			case w.persist <- c:
				return nil
			default:
			}
			select {
			case stale := <-w.persist:
				w.logger.Debug("superseded pending persist", "settings", stale.Settings)
			default:
			}
		}
	}

	select {
	case w.host <- cmd:
		return nil
	default:
		return errHostQueueFull
	}
}

// run executes queued commands until ctx is canceled. A persist still pending
// at that point is written before returning.
func (w *effectWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			select {
			case c := <-w.persist:
				runEffect(w.fx, c, w.logger, w.onEvent)
			default:
			}
			return
		case c := <-w.persist:
			runEffect(w.fx, c, w.logger, w.onEvent)
		case c := <-w.host:
			runEffect(w.fx, c, w.logger, w.onEvent)
		}
	}
}
