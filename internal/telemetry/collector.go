package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Custos/imthedev-sub000/internal/event"
)

// busCollector reports the counters kept by an event bus at scrape time.
type busCollector struct {
	bus *event.Bus

	processed     *prometheus.Desc
	failed        *prometheus.Desc
	handlerErrors *prometheus.Desc
	processing    *prometheus.Desc
	history       *prometheus.Desc
	handlers      *prometheus.Desc
}

// NewBusCollector returns a collector for bus.Metrics.
func NewBusCollector(bus *event.Bus) prometheus.Collector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "bus", n) }
	return &busCollector{
		bus:           bus,
		processed:     prometheus.NewDesc(name("events_processed_total"), "Events delivered to every handler", nil, nil),
		failed:        prometheus.NewDesc(name("events_failed_total"), "Events for which at least one handler failed", nil, nil),
		handlerErrors: prometheus.NewDesc(name("handler_errors_total"), "Handler invocations that returned an error or panicked", nil, nil),
		processing:    prometheus.NewDesc(name("processing_seconds_total"), "Time spent running handlers", nil, nil),
		history:       prometheus.NewDesc(name("history_events"), "Events currently held in the replay history", nil, nil),
		handlers:      prometheus.NewDesc(name("handlers"), "Registered subscriptions", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *busCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.processed
	ch <- c.failed
	ch <- c.handlerErrors
	ch <- c.processing
	ch <- c.history
	ch <- c.handlers
}

// Collect implements prometheus.Collector.
func (c *busCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.bus.Metrics()
	ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(m.EventsProcessed))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(m.EventsFailed))
	ch <- prometheus.MustNewConstMetric(c.handlerErrors, prometheus.CounterValue, float64(m.HandlerErrors))
	ch <- prometheus.MustNewConstMetric(c.processing, prometheus.CounterValue, m.TotalProcessingTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.history, prometheus.GaugeValue, float64(m.EventsInHistory))
	ch <- prometheus.MustNewConstMetric(c.handlers, prometheus.GaugeValue, float64(m.HandlersRegistered))
}
