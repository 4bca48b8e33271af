package main

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the daemon's Prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	events            *prometheus.CounterVec
	commands          *prometheus.CounterVec
	alchemyExpansions prometheus.Counter
	toggles           *prometheus.CounterVec
	reduceDuration    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lazercore_events_total",
				Help: "Events reduced, by type",
			},
			[]string{"type"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lazercore_commands_total",
				Help: "Commands executed, by type and result",
			},
			[]string{"type", "result"},
		),
		alchemyExpansions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lazercore_alchemy_expansions_total",
				Help: "Type alchemy replacements typed",
			},
		),
		toggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lazercore_toggles_total",
				Help: "Toggle changes, by name and new state",
			},
			[]string{"name", "enabled"},
		),
		reduceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lazercore_reduce_duration_seconds",
				Help:    "Time spent in one reducer step",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 8),
			},
		),
	}
	reg.MustRegister(m.events, m.commands, m.alchemyExpansions, m.toggles, m.reduceDuration)
	return m
}

func (m *Metrics) eventReduced(e Event, seconds float64) {
	if m == nil {
		return
	}
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
	}
	m.events.WithLabelValues(typeLabel(e)).Inc()
	m.reduceDuration.Observe(seconds)
}

func (m *Metrics) commandDone(c Command, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(typeLabel(c), result).Inc()
}

func (m *Metrics) alchemyExpanded() {
	if m == nil {
		return
	}
	m.alchemyExpansions.Inc()
}

func (m *Metrics) broadcastSeen(b StateBroadcast) {
	if m == nil {
		return
	}
	if t, ok := b.(BroadcastToggleChanged); ok {
		m.toggles.WithLabelValues(t.Name, fmt.Sprint(t.Enabled)).Inc()
	}
}

// typeLabel turns main.CmdSetLEDs into "CmdSetLEDs".
func typeLabel(v any) string {
	s := fmt.Sprintf("%T", v)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
