// Package monitoring exposes Prometheus metrics for acquisitions and a health
// checker for the serve command.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/violation-cli/internal/model"
)

const namespace = "violations"

// Outcome labels for AcquisitionsTotal.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Metrics holds the acquisition collectors. A nil *Metrics records nothing.
type Metrics struct {
	AcquisitionsTotal   *prometheus.CounterVec
	AcquisitionDuration prometheus.Histogram
	ViolationsFound     prometheus.Histogram
	PathFailures        *prometheus.CounterVec
	StrategyUsed        *prometheus.CounterVec
	CaptchaSolves       *prometheus.CounterVec
	ArtifactDownloads   *prometheus.CounterVec
	CaptchaBalance      prometheus.Gauge
}

// NewMetrics registers every collector with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AcquisitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Plate lookups by outcome (ok, degraded, failed)",
		}, []string{"outcome"}),
		AcquisitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquisition_duration_seconds",
			Help:      "Wall time of a plate lookup",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		ViolationsFound: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "violations_per_acquisition",
			Help:      "Merged violations returned per lookup",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		PathFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_failures_total",
			Help:      "Acquisition path failures by path (structured, browser)",
		}, []string{"path"}),
		StrategyUsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "form_strategy_total",
			Help:      "Fill and submit strategies that succeeded",
		}, []string{"stage", "strategy"}),
		CaptchaSolves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_challenges_total",
			Help:      "Challenges encountered by result (solved, failed)",
		}, []string{"result"}),
		ArtifactDownloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_downloads_total",
			Help:      "Artifact downloads by result (success, failure)",
		}, []string{"result"}),
		CaptchaBalance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "captcha_balance",
			Help:      "Last known solving-service account balance",
		}),
	}
}

// ObserveResult records a finished acquisition.
func (m *Metrics) ObserveResult(r *model.AcquisitionResult) {
	if m == nil || r == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case r.Error != "":
		outcome = OutcomeFailed
	case len(r.Warnings) > 0:
		outcome = OutcomeDegraded
	}
	m.AcquisitionsTotal.WithLabelValues(outcome).Inc()
	m.AcquisitionDuration.Observe(r.Elapsed.Seconds())
	m.ViolationsFound.Observe(float64(len(r.Violations)))

	if d := r.Debug; d != nil {
		if d.FillStrategy != "" {
			m.StrategyUsed.WithLabelValues("fill", d.FillStrategy).Inc()
		}
		if d.SubmitStrategy != "" {
			m.StrategyUsed.WithLabelValues("submit", d.SubmitStrategy).Inc()
		}
		if d.CaptchaPresent {
			result := "failed"
			if d.CaptchaSolved {
				result = "solved"
			}
			m.CaptchaSolves.WithLabelValues(result).Inc()
		}
	}
	for _, a := range r.Artifacts {
		result := "failure"
		if a.Success {
			result = "success"
		}
		m.ArtifactDownloads.WithLabelValues(result).Inc()
	}
}

// PathFailed counts a failed acquisition path.
func (m *Metrics) PathFailed(path string) {
	if m == nil {
		return
	}
	m.PathFailures.WithLabelValues(path).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
