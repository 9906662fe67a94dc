package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latamwire/news-crawler/pkg/utils"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch("listing", nil, time.Second)
		m.ObserveEnqueue("article")
		m.ObserveReject("visited")
		m.ObserveArticle(nil)
		m.ObserveClassifierCall(utils.ErrClassifierTimeout, time.Second)
		m.SetFrontierDepth(3)
		m.WorkerBusy(1)
	})
}

func TestMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch("article", nil, 200*time.Millisecond)
	m.ObserveFetch("article", fmt.Errorf("%w: status 404 Not Found", utils.ErrClientHTTPError), time.Millisecond)
	m.ObserveArticle(nil)
	m.ObserveArticle(utils.ErrEmptyBody)
	m.ObserveClassifierCall(nil, time.Second)
	m.ObserveClassifierCall(utils.ErrQuotaExhausted, 0)
	m.ObserveEnqueue("listing")
	m.ObserveReject("budget")
	m.SetFrontierDepth(7)
	m.WorkerBusy(2)
	m.WorkerBusy(-1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesFetched.WithLabelValues("article", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesFetched.WithLabelValues("article", "HTTP_404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArticlesEmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionErrors.WithLabelValues("Extraction_EmptyBody")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassifierCalls.WithLabelValues("Classifier_Quota")))
	assert.Equal(t, uint64(1), latencySamples(t, reg), "refusals record no latency")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Enqueued.WithLabelValues("listing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("budget")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.FrontierDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkersBusy))
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveArticle(nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg, logrus.NewEntry(log)) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		body = string(raw)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "news_crawler_articles_emitted_total 1"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func latencySamples(t *testing.T, reg *prometheus.Registry) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == Namespace+"_classifier_latency_seconds" {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	t.Fatal("classifier latency histogram not gathered")
	return 0
}
