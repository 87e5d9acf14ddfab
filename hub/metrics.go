package hub

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hubshim"

// Values of the "result" label on the downloads counter.
const (
	resultCached     = "cached"
	resultDownloaded = "downloaded"
	resultError      = "error"
)

// metrics are the optional Prometheus collectors of a Hub. A nil *metrics
// records nothing.
type metrics struct {
	downloads *prometheus.CounterVec
	bytes     prometheus.Counter
	duration  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	downloads, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "downloads_total",
		Help:      "Hub downloads by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	bytes, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "downloaded_bytes_total",
		Help:      "Bytes written to the blob store.",
	}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "download_duration_seconds",
		Help:      "Time spent in Hub.Download by result.",
		Buckets:   []float64{0.001, 0.01, 0.1, 1, 10, 60, 600},
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	return &metrics{downloads: downloads, bytes: bytes, duration: duration}, nil
}

// register adds c to reg, returning the already registered collector when
// an identical one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) observe(err error, cacheHit bool, elapsed time.Duration) {
	if m == nil {
		return
	}

	result := resultDownloaded
	switch {
	case err != nil:
		result = resultError
	case cacheHit:
		result = resultCached
	}

	m.downloads.WithLabelValues(result).Inc()
	m.duration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *metrics) addBytes(n int64) {
	if m == nil {
		return
	}
	m.bytes.Add(float64(n))
}
