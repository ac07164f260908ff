package prometheus

import (
	"github.com/NemnemForStudy/WeEveryTrip-sub000/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts an engine snapshot to the client_golang Collector
// interface. Every scrape takes one snapshot.
type Collector struct {
	source       metricsSource
	counters     []*prometheus.Desc
	histograms   []*prometheus.Desc
	auditDropped *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds descriptors for every engine metric.
func NewCollector(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histograms: make([]*prometheus.Desc, len(internaldefs.HistogramDefs)),
	}
	for i, def := range internaldefs.CounterDefs {
		c.counters[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		c.histograms[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	c.auditDropped = prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil)
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.auditDropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for i, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(c.counters[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBoundValues))
		for j, bound := range internaldefs.HistogramBoundValues {
			buckets[bound] = cumulative[j]
		}
		ch <- prometheus.MustNewConstHistogram(c.histograms[i], cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}
