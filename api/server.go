// Package api provides the HTTP serving boundary for churn predictions.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"retail-churn/internal/retail"
)

// Scorer turns a feature vector into a churn probability in [0,1].
type Scorer interface {
	Predict(in retail.ScoringInput) (float64, error)
}

// Alerter conditionally notifies about a prediction. Dispatch is best-effort
// and must never surface failures to the caller.
type Alerter interface {
	ShouldAlert(probability float64, in retail.ScoringInput) bool
	Dispatch(probability float64, in retail.ScoringInput)
}

// Server is the HTTP API server. The scorer is loaded once at startup and
// shared read-only across requests.
type Server struct {
	httpServer *http.Server
	scorer     Scorer
	alerter    Alerter
	config     *Config
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxRequestSize: 1 << 20, // 1MB
	}
}

// NewServer creates a new API server
func NewServer(scorer Scorer, alerter Alerter, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		scorer:  scorer,
		alerter: alerter,
		config:  config,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/predict_churn", s.handlePredictChurn)
	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.WithFields(log.Fields{"port": s.config.Port}).Info("Churn API server starting")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts the server and drains it on SIGINT/SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		log.Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.New().String()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"remote":     r.RemoteAddr,
			"duration":   time.Since(start).String(),
		}).Info("Request handled")
	})
}

// =============================================================================
// PREDICTION ENDPOINT
// =============================================================================

// PredictRequest is the scoring input body. Fields are pointers so missing
// keys are distinguishable from zero values.
type PredictRequest struct {
	Recency   *int     `json:"recency"`
	Frequency *int     `json:"frequency"`
	Monetary  *float64 `json:"monetary"`
}

// PredictResponse carries the churn probability, rounded to 4 decimal places.
type PredictResponse struct {
	ChurnProbability float64 `json:"churn_probability"`
}

func (s *Server) handlePredictChurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req PredictRequest
	if err := dec.Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	in, err := req.validate()
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	probability, err := s.scorer.Predict(in)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("scoring failed: %v", err))
		return
	}

	if s.alerter != nil && s.alerter.ShouldAlert(probability, in) {
		s.alerter.Dispatch(probability, in)
	}

	s.jsonResponse(w, http.StatusOK, PredictResponse{
		ChurnProbability: math.Round(probability*1e4) / 1e4,
	})
}

func (req PredictRequest) validate() (retail.ScoringInput, error) {
	if req.Recency == nil {
		return retail.ScoringInput{}, fmt.Errorf("missing field: recency")
	}
	if req.Frequency == nil {
		return retail.ScoringInput{}, fmt.Errorf("missing field: frequency")
	}
	if req.Monetary == nil {
		return retail.ScoringInput{}, fmt.Errorf("missing field: monetary")
	}
	if *req.Monetary < 0 {
		return retail.ScoringInput{}, fmt.Errorf("monetary must be non-negative")
	}
	return retail.ScoringInput{
		Recency:   *req.Recency,
		Frequency: *req.Frequency,
		Monetary:  *req.Monetary,
	}, nil
}

// =============================================================================
// INFO ENDPOINTS
// =============================================================================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.jsonError(w, http.StatusNotFound, "not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"message": "Welcome to the Customer Churn Prediction API",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (s *Server) jsonResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Failed to encode response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, map[string]string{"error": msg})
}
