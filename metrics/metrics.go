// Package metrics exposes Prometheus metrics for the ledger and serves them
// on a dedicated HTTP listener.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/obscura-mint/interfaces"
)

const namespace = "obscura"

var (
	registry = prometheus.NewRegistry()

	operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Ledger operations by name and result.",
	}, []string{"op", "result"})

	seriesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "series_total",
		Help:      "Number of series created.",
	})

	mintedTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "minted_total",
		Help:      "Units minted across all series.",
	})

	decryptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "user_decryptions_total",
		Help:      "User decryption requests by result.",
	}, []string{"result"})
)

var rejections = []error{
	interfaces.ErrNotOwner,
	interfaces.ErrMaxSupplyExceeded,
	interfaces.ErrSeriesNotFound,
	interfaces.ErrInvalidMaxSupply,
	interfaces.ErrInvalidAmount,
	interfaces.ErrZeroAddress,
	interfaces.ErrInvalidProof,
	interfaces.ErrHandleNotFound,
	interfaces.ErrUnauthorized,
	interfaces.ErrRequestExpired,
	interfaces.ErrInvalidSignature,
	interfaces.ErrInvalidRequest,
}

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		operationsTotal,
		seriesTotal,
		mintedTotal,
		decryptionsTotal,
	)
}

// Result classifies an operation outcome: "success", "rejected" for domain
// errors and "error" for everything else.
func Result(err error) string {
	if err == nil {
		return "success"
	}
	for _, r := range rejections {
		if errors.Is(err, r) {
			return "rejected"
		}
	}
	return "error"
}

func RecordOperation(op string, err error) {
	operationsTotal.WithLabelValues(op, Result(err)).Inc()
}

func RecordUserDecrypt(err error) {
	decryptionsTotal.WithLabelValues(Result(err)).Inc()
}

func SetSeriesTotal(n uint64) {
	seriesTotal.Set(float64(n))
}

func SetMintedTotal(n uint64) {
	mintedTotal.Set(float64(n))
}

// Handler serves the metrics registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

type MetricsServer struct {
	srv *http.Server
}

func New(listenAddr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
