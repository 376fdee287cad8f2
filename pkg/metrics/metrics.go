// Package metrics exports the outcome of an extraction run in the Prometheus
// text format, for node_exporter's textfile collector or CI dashboards.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/docker/model-extract/pkg/distribution/extract"
	"github.com/moby/sys/atomicwriter"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	metricNamespace = "model_extract"

	metricLabelKind = "kind"
)

// Recorder holds the gauges of one run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	tensors       *prometheus.GaugeVec
	shardsTouched prometheus.Gauge
	outputBytes   prometheus.Gauge
	totalSize     prometheus.Gauge
	duration      prometheus.Gauge
}

// NewRecorder returns a Recorder with all gauges registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tensors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "tensors",
			Help:      "Tensors in the source index by outcome.",
		}, []string{metricLabelKind}),
		shardsTouched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "shards_touched",
			Help:      "Distinct shard files opened.",
		}),
		outputBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "output_bytes",
			Help:      "Size of the written weights file.",
		}),
		totalSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "tensor_bytes",
			Help:      "Sum of extracted tensor footprints.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "duration_seconds",
			Help:      "Wall time of the run.",
		}),
	}
	r.registry.MustRegister(r.tensors, r.shardsTouched, r.outputBytes, r.totalSize, r.duration)
	return r
}

// Record sets the gauges from a run report. Output sizes stay zero for a dry run.
func (r *Recorder) Record(report *extract.Report, elapsed time.Duration) {
	s := report.Summary
	r.tensors.WithLabelValues("total").Set(float64(s.Total))
	r.tensors.WithLabelValues("target").Set(float64(s.Target))
	r.tensors.WithLabelValues("skipped").Set(float64(s.Skipped))
	r.tensors.WithLabelValues("missing").Set(float64(s.Missing))
	r.shardsTouched.Set(float64(s.ShardsTouched))
	if out := report.Output; out != nil {
		r.outputBytes.Set(float64(out.WeightsSize))
		r.totalSize.Set(float64(out.TotalSize))
	}
	r.duration.Set(elapsed.Seconds())
}

// Families returns the current metric families, sorted by name.
func (r *Recorder) Families() ([]*dto.MetricFamily, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	return families, nil
}

// WriteTo renders all gauges in the text exposition format.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	families, err := r.Families()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, mf := range families {
		n, err := expfmt.MetricFamilyToText(w, mf)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return total, nil
}

// WriteTextfile atomically replaces path with the rendered gauges.
func (r *Recorder) WriteTextfile(path string) error {
	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		return err
	}
	if err := atomicwriter.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
