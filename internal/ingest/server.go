// Package ingest implements the server-side HTTP endpoint that receives
// batches from internal/edge's sender: POST /api/telemetry/batch and
// GET /health/live. The listener shape (mux, timeouts, graceful
// Shutdown on context cancellation) mirrors
// internal/observability.Metrics.ServeMetrics.
package ingest

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/edge"
	"github.com/leopark123/intellimaint-pro/internal/errs"
	"github.com/leopark123/intellimaint-pro/internal/observability"
	"github.com/leopark123/intellimaint-pro/internal/ratelimit"
	"github.com/leopark123/intellimaint-pro/internal/store"
)

// Server is the ingest HTTP listener. AppendBatch's own rate limiting
// (wired at the store) is the enforcement point; Server itself performs
// no additional throttling.
type Server struct {
	telemetry store.TelemetryStore
	metrics   *observability.Metrics
	log       *zap.Logger
}

func NewServer(telemetry store.TelemetryStore, metrics *observability.Metrics, log *zap.Logger) *Server {
	return &Server{telemetry: telemetry, metrics: metrics, log: log}
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/telemetry/batch", s.handleBatch)
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ingest server on %s: %w", addr, err)
	}
	return nil
}

// handleBatch implements POST /api/telemetry/batch: 200 once persisted
// (idempotently — (device_id, tag_id, ts, seq) collisions are silent),
// 4xx on a malformed body, 5xx otherwise, per spec.md's wire contract.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "malformed gzip body", http.StatusBadRequest)
			return
		}
		defer gz.Close()
		body = gz
	}

	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	points, err := edge.DecodeBatch(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stored, err := s.telemetry.AppendBatch(r.Context(), points)
	if err != nil {
		s.writeAppendError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.PointsIngestedTotal.Add(float64(stored))
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int{"stored": stored})
}

func (s *Server) writeAppendError(w http.ResponseWriter, err error) {
	code := errs.CodeDBUnavailable
	var de *errs.DomainError
	if ok := asDomainError(err, &de); ok {
		code = de.Code
	}
	s.log.Error("ingest: append batch failed", zap.Error(err), zap.String("code", string(code)))

	switch code {
	case errs.CodeRateLimited:
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errs.CodeValidation, errs.CodeValidationSchema:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func asDomainError(err error, target **errs.DomainError) bool {
	de, ok := err.(*errs.DomainError)
	if !ok {
		return false
	}
	*target = de
	return true
}
