package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prom holds the agent's self-metrics.
type Prom struct {
	registry *prometheus.Registry

	captures        *prometheus.CounterVec
	captureDuration *prometheus.HistogramVec
	points          *prometheus.CounterVec
	counterValue    *prometheus.GaugeVec
	lastCapture     *prometheus.GaugeVec
	sendFailures    prometheus.Counter
}

const (
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultError       = "error"
)

func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		registry: reg,
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phmc_captures_total",
			Help: "Capture attempts per managed system and result.",
		}, []string{"host", "result"}),
		captureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phmc_capture_duration_seconds",
			Help:    "Wall time of one acquire and process capture.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"host"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phmc_sample_points_total",
			Help: "Timestamped counter points derived from PCM samples.",
		}, []string{"host"}),
		counterValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "phmc_counter_value",
			Help: "Latest derived value per managed system and counter.",
		}, []string{"host", "counter"}),
		lastCapture: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "phmc_last_capture_timestamp_seconds",
			Help: "Unix time of the last successful capture.",
		}, []string{"host"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phmc_stream_send_failures_total",
			Help: "Frames that could not be delivered to the backend.",
		}),
	}
	reg.MustRegister(p.captures, p.captureDuration, p.points, p.counterValue, p.lastCapture, p.sendFailures)
	return p
}

func (p *Prom) Registry() *prometheus.Registry { return p.registry }

func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prom) ObserveCapture(host, result string, took time.Duration) {
	p.captures.WithLabelValues(host, result).Inc()
	p.captureDuration.WithLabelValues(host).Observe(took.Seconds())
	if result == ResultOK {
		p.lastCapture.WithLabelValues(host).Set(float64(time.Now().Unix()))
	}
}

func (p *Prom) AddPoints(host string, n int) {
	p.points.WithLabelValues(host).Add(float64(n))
}

func (p *Prom) SetCounterValue(host, counter string, v float64) {
	p.counterValue.WithLabelValues(host, counter).Set(v)
}

func (p *Prom) IncSendFailure() {
	p.sendFailures.Inc()
}
