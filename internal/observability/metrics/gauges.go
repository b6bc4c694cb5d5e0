package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterGauges exposes live sizes of in-memory state. Nil functions are skipped.
func RegisterGauges(historyPoints, tickets, queueDepth func() float64) {
	register := func(name, help string, fn func() float64) {
		if fn == nil {
			return
		}
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + name,
				Help: help,
			},
			fn,
		))
	}
	register("history_points", "Points held in the telemetry history buffer", historyPoints)
	register("tickets", "Tickets held in the registry", tickets)
	register("queue_depth", "Messages waiting in the telemetry queue", queueDepth)
}
