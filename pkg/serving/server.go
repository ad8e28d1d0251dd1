package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/illmade-knight/go-quake/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// ReadinessChecker reports whether the service can answer predictions.
type ReadinessChecker interface {
	Ready() bool
}

// PredictHandler serves POST prediction requests.
type PredictHandler struct {
	predictor Predictor
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewPredictHandler(predictor Predictor, metrics *observability.Metrics, logger zerolog.Logger) *PredictHandler {
	return &PredictHandler{
		predictor: predictor,
		metrics:   metrics,
		logger:    logger.With().Str("component", "PredictHandler").Logger(),
	}
}

type predictResponse struct {
	PredictedMagnitude float64 `json:"predicted_magnitude"`
}

// ServeHTTP validates the request before touching the model, so rejected
// requests never trigger an artifact download.
func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.reject(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.reject(w, http.StatusBadRequest, "request body could not be read")
		return
	}
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || len(payload) == 0 {
		h.reject(w, http.StatusBadRequest, "request JSON is invalid or empty")
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		h.reject(w, http.StatusBadRequest, "request JSON has trailing data")
		return
	}

	features, err := ParseFeatures(payload)
	if err != nil {
		h.reject(w, http.StatusBadRequest, err.Error())
		return
	}

	magnitude, err := h.predictor.Predict(r.Context(), features)
	if err != nil {
		h.logger.Error().Err(err).Msg("Prediction failed")
		h.count("error")
		http.Error(w, "prediction unavailable", http.StatusInternalServerError)
		return
	}

	h.count("success")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(predictResponse{PredictedMagnitude: magnitude}); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write prediction response")
	}
}

func (h *PredictHandler) reject(w http.ResponseWriter, status int, msg string) {
	h.logger.Debug().Int("status", status).Str("reason", msg).Msg("Rejected prediction request")
	h.count("bad_request")
	http.Error(w, msg, status)
}

func (h *PredictHandler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.Predictions.WithLabelValues(outcome).Inc()
	}
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes the prediction endpoint plus /healthz, /readyz and /metrics.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer mounts the prediction handler at /predict and at the root.
func NewServer(cfg ServerConfig, predict http.Handler, ready ReadinessChecker, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/predict", predict)
	mux.Handle("/{$}", predict)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready.Ready() {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With().Str("component", "Server").Logger(),
	}
}

// Start begins listening. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
