package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wagerquiz",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Generative provider attempts by outcome code.",
	}, []string{"outcome"})

	providerRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wagerquiz",
		Subsystem: "provider",
		Name:      "retries_total",
		Help:      "Provider attempts that were retried after a transient failure.",
	})
)
