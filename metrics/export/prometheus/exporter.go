package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	weeverytrip "github.com/NemnemForStudy/WeEveryTrip-sub000"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() weeverytrip.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter publishes engine metrics through a private registry and
// can also render them as plain exposition text.
type PrometheusExporter struct {
	source    metricsSource
	collector *Collector
	registry  *prometheus.Registry
}

// NewPrometheusExporter creates a Prometheus exporter that reads from the given [weeverytrip.Engine].
func NewPrometheusExporter(engine *weeverytrip.Engine) *PrometheusExporter {
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any
// value exposing MetricsSnapshot and AuditDropped.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	collector := NewCollector(source)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)
	return &PrometheusExporter{
		source:    source,
		collector: collector,
		registry:  registry,
	}
}

// Collector returns the exporter's collector for callers that keep their own
// registry.
func (p *PrometheusExporter) Collector() *Collector {
	return p.collector
}

// Handler returns an http.Handler that serves the exporter's registry.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Render writes the current metrics in Prometheus text exposition format.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(8192)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	writeCounter(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, dropped)

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	count := cumulative[len(cumulative)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Latency sums are not tracked.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
