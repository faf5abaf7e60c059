// Package metrics exposes operational counters for the intake service on a
// dedicated listener, in Prometheus text format.
package metrics

import (
	"context"
	"net/http"

	vm "github.com/VictoriaMetrics/metrics"
)

// Submission outcome counters.
var (
	submissionsAccepted  = vm.NewCounter(`veilpost_submissions_total{outcome="accepted"}`)
	submissionsRejected  = vm.NewCounter(`veilpost_submissions_total{outcome="rejected"}`)
	submissionsDuplicate = vm.NewCounter(`veilpost_submissions_total{outcome="duplicate"}`)
)

// IncSubmissionAccepted counts an accepted submission.
func IncSubmissionAccepted() { submissionsAccepted.Inc() }

// IncSubmissionRejected counts a rejected submission (any non-duplicate reason).
func IncSubmissionRejected() { submissionsRejected.Inc() }

// IncSubmissionDuplicate counts a duplicate-nullifier rejection.
func IncSubmissionDuplicate() { submissionsDuplicate.Inc() }

// MetricsServer serves /metrics on its own address, separate from the
// application listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server. An empty addr returns a server that will
// never be started; callers guard ListenAndServe on their config.
func New(addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		vm.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{Addr: addr, Handler: mux},
	}, nil
}

// ListenAndServe blocks serving metrics until shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
