package incident

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "helpdesk"

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "transitions_total",
			Help:      "Total applied status transitions",
		},
		[]string{"from", "to"},
	)

	slaBreachesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "sla_breaches_total",
			Help:      "SLA breaches detected at measurement time",
		},
		[]string{"kind"},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "commands_total",
			Help:      "Engine commands by outcome",
		},
		[]string{"command", "outcome"},
	)
)

func recordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

func recordSLABreach(kind string) {
	slaBreachesTotal.WithLabelValues(kind).Inc()
}

func recordCommand(command string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	commandsTotal.WithLabelValues(command, outcome).Inc()
}
