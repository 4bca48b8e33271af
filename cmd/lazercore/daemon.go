package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop executes side effects; store and host commands are
//     handed to an effectWorker so a slow backend never delays key output.
//   - Command failures are turned into Events and fed back into the reducer.
//   - Events are reduced in arrival order, one at a time; there is no
//     re-entrant execution.
//
// ============================================================================

// runDaemon is the main daemon loop that:
//   - Receives Events from input readers, IPC and HTTP
//   - Emits Tick events on a fixed cadence (LED refresh, feedback expiry, deferred commits)
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands and feeds observations back into the reducer
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	fx *Effects,
	cfg ReducerConfig,
	state *DaemonState,
	tickHz int,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	if fx == nil {
		fx = &Effects{}
	}
	if tickHz <= 0 {
		tickHz = defaultTickHz
	}

	ticker := time.NewTicker(time.Second / time.Duration(tickHz))
	defer ticker.Stop()

	lastTick := time.Now()

	// Failures reported by the worker come back through observed.
	observed := make(chan Event, 16)
	worker := newEffectWorker(fx, logger, func(ev Event) {
		select {
		case observed <- ev:
		default:
			logger.Warn("observation queue full, dropping", "type", typeLabel(ev))
		}
	})
	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.run(workerCtx)
	}()
	defer func() {
		stopWorker()
		<-workerDone
	}()

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(bs []StateBroadcast) {
		for _, b := range bs {
			fx.Metrics.broadcastSeen(b)
			if broadcasts == nil {
				continue
			}
			// The broadcaster is best-effort; never stall key handling on it.
			select {
			case broadcasts <- b:
			default:
				logger.Warn("broadcast queue full, dropping", "type", typeLabel(b))
			}
		}
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			start := time.Now()
			rr := Reduce(state, ev, cfg)
			fx.Metrics.eventReduced(ev, time.Since(start).Seconds())

			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			publish(rr.Broadcasts)
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			if offloaded(cmd) {
				if err := worker.submit(cmd); err != nil {
					logger.Error("command dropped", "command", cmd.String(), "error", err)
					fx.Metrics.commandDone(cmd, err)
					enqueueEvent(CommandFailed{Command: cmd, Err: err, At: time.Now()})
				}
			} else {
				runEffect(fx, cmd, logger, enqueueEvent)
			}

			// Observations are reduced promptly so follow-up commands keep their order.
			flushEvents()
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			if k, isKey := ev.(KeyInput); isKey {
				logger.Debug("key", "code", keyName(k.Code), "pressed", k.Pressed)
			}
			enqueueEvent(TimedEvent{Event: ev, At: time.Now()})
			flushEvents()
			flushCommands()

		case ev := <-observed:
			enqueueEvent(ev)
			flushEvents()
			flushCommands()

		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			enqueueEvent(Tick{Now: now, Dt: dt})
			flushEvents()
			flushCommands()
		}
	}
}
