package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nexus"

// GaugeFunc reports an instantaneous value such as the number of active workers.
type GaugeFunc func() float64

// PrometheusCollector exposes a Collector's snapshots as Prometheus metrics.
// All counters in one scrape come from the same snapshot.
type PrometheusCollector struct {
	source   *Collector
	counters map[Counter]*prometheus.Desc
	gauges   map[*prometheus.Desc]GaugeFunc
}

// NewPrometheusCollector creates a collector over source. The gauges map is
// keyed by metric name (without namespace) and may be nil.
func NewPrometheusCollector(source *Collector, gauges map[string]GaugeFunc) *PrometheusCollector {
	pc := &PrometheusCollector{
		source:   source,
		counters: make(map[Counter]*prometheus.Desc, numCounters),
		gauges:   make(map[*prometheus.Desc]GaugeFunc, len(gauges)),
	}
	for _, c := range Counters() {
		pc.counters[c] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", c.String()+"_total"),
			"Total "+c.String()+" since the server started.",
			nil, nil,
		)
	}
	for name, fn := range gauges {
		desc := prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), name, nil, nil)
		pc.gauges[desc] = fn
	}
	return pc
}

// Describe implements prometheus.Collector.
func (pc *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range pc.counters {
		ch <- desc
	}
	for desc := range pc.gauges {
		ch <- desc
	}
}

// Collect implements prometheus.Collector.
func (pc *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := pc.source.Snapshot()
	for c, desc := range pc.counters {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snap.Get(c)))
	}
	for desc, fn := range pc.gauges {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, fn())
	}
}

// NewRegistry returns a Prometheus registry holding only pc, so several
// servers in one process do not collide on the default registry.
func NewRegistry(pc *PrometheusCollector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(pc)
	return reg
}
