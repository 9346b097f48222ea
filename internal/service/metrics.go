package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Best-effort drops are invisible to callers by design, so they get a
// counter instead of an error surface.
var (
	bestEffortDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "delivery",
		Name:      "best_effort_dropped_total",
		Help:      "Frames dropped on a full member buffer during best-effort sends.",
	})

	sendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "delivery",
		Name:      "send_retries_total",
		Help:      "Backoff retries performed during guaranteed-attempt sends.",
	})

	sendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "delivery",
		Name:      "send_failures_total",
		Help:      "Guaranteed-attempt sends that exhausted their retry budget.",
	})
)
