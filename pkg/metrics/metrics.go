// Package metrics exposes crawl progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/utils"
)

const (
	// Namespace is the namespace for all crawler metrics.
	Namespace = "news_crawler"

	outcomeOK = "ok"
)

// Metrics holds the crawler's Prometheus collectors.
// All methods are safe on a nil *Metrics, so components can be built without
// instrumentation.
type Metrics struct {
	PagesFetched      *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	Enqueued          *prometheus.CounterVec
	Rejected          *prometheus.CounterVec
	ArticlesEmitted   prometheus.Counter
	ExtractionErrors  *prometheus.CounterVec
	ClassifierCalls   *prometheus.CounterVec
	ClassifierLatency prometheus.Histogram
	FrontierDepth     prometheus.Gauge
	WorkersBusy       prometheus.Gauge
}

// New creates and registers all metrics with reg
// (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pages_fetched_total",
			Help:      "Pages fetched by kind and outcome (ok or error category)",
		}, []string{"kind", "outcome"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of page fetches in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"kind"}),
		Enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frontier_enqueued_total",
			Help:      "Entries admitted to the frontier by kind",
		}, []string{"kind"}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frontier_rejected_total",
			Help:      "Discovered URLs not admitted to the frontier by reason",
		}, []string{"reason"}),
		ArticlesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "articles_emitted_total",
			Help:      "Articles extracted and delivered to the sink",
		}),
		ExtractionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "extraction_errors_total",
			Help:      "Article pages dropped during extraction by error category",
		}, []string{"category"}),
		ClassifierCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "classifier_calls_total",
			Help:      "Classifier gate outcomes (ok or decline category)",
		}, []string{"outcome"}),
		ClassifierLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "classifier_latency_seconds",
			Help:      "Latency of remote classifier calls in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15},
		}),
		FrontierDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "frontier_depth",
			Help:      "Entries waiting in the frontier",
		}),
		WorkersBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "workers_busy",
			Help:      "Workers currently processing an entry",
		}),
	}
}

func outcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	return utils.CategorizeError(err)
}

// ObserveFetch records one fetch attempt
func (m *Metrics) ObserveFetch(kind string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(kind, outcome(err)).Inc()
	m.FetchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveEnqueue records a frontier admission
func (m *Metrics) ObserveEnqueue(kind string) {
	if m == nil {
		return
	}
	m.Enqueued.WithLabelValues(kind).Inc()
}

// ObserveReject records a discovered URL that was not admitted
func (m *Metrics) ObserveReject(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

// ObserveArticle records an extraction outcome
func (m *Metrics) ObserveArticle(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ExtractionErrors.WithLabelValues(utils.CategorizeError(err)).Inc()
		return
	}
	m.ArticlesEmitted.Inc()
}

// ObserveClassifierCall records a classifier gate outcome. Refusals that never
// reached the remote model carry no latency.
func (m *Metrics) ObserveClassifierCall(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ClassifierCalls.WithLabelValues(outcome(err)).Inc()
	if elapsed > 0 {
		m.ClassifierLatency.Observe(elapsed.Seconds())
	}
}

// SetFrontierDepth reports the current queue length
func (m *Metrics) SetFrontierDepth(n int) {
	if m == nil {
		return
	}
	m.FrontierDepth.Set(float64(n))
}

// WorkerBusy adjusts the busy-worker gauge by delta
func (m *Metrics) WorkerBusy(delta int) {
	if m == nil {
		return
	}
	m.WorkersBusy.Add(float64(delta))
}

// Serve exposes gatherer on addr at /metrics until ctx ends
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Serving metrics on http://%s/metrics", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
