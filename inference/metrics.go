package inference

import (
	"time"

	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stages reported by Metrics.
const (
	StagePreprocess  = "preprocess"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
)

// Metrics holds the Prometheus collectors of a Detector. A nil *Metrics records nothing.
type Metrics struct {
	framesTotal     *prometheus.CounterVec
	detectionsTotal *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
}

// NewMetrics creates the detector collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		framesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyyolo_frames_total",
				Help: "Total number of processed frames",
			},
			[]string{"status"}, // status: ok, error
		),
		detectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyyolo_detections_total",
				Help: "Total number of detections surviving NMS",
			},
			[]string{"class"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tinyyolo_stage_duration_seconds",
				Help:    "Per-frame pipeline stage duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"stage"}, // stage: preprocess, inference, postprocess
		),
	}
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) frameDone(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.framesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) detected(detections []postprocess.PixelDetection) {
	if m == nil {
		return
	}
	for _, d := range detections {
		class := d.Label
		if class == "" {
			class = "unknown"
		}
		m.detectionsTotal.WithLabelValues(class).Inc()
	}
}
