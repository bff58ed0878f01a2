// Package httpapi is the thin HTTP surface over the screening core. It does
// request decoding, the verification rate-limit check, and JSON encoding;
// every decision lives in the core services.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/core"
	"github.com/callwarden/call-screener/internal/reputation"
)

// Server exposes the screening core over HTTP.
type Server struct {
	screening    *core.ScreeningService
	verification *core.VerificationService
	reports      *core.ReportService
	reputation   *reputation.Service
	logger       *zap.Logger
	listenAddr   string
	maxAttempts  int
	httpServer   *http.Server
}

// NewServer creates the HTTP adapter.
func NewServer(
	screening *core.ScreeningService,
	verification *core.VerificationService,
	reports *core.ReportService,
	rep *reputation.Service,
	logger *zap.Logger,
	listenAddr string,
	maxAttempts int,
) *Server {
	return &Server{
		screening:    screening,
		verification: verification,
		reports:      reports,
		reputation:   rep,
		logger:       logger,
		listenAddr:   listenAddr,
		maxAttempts:  maxAttempts,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/screen", s.handleScreen)
	r.Post("/screen/batch", s.handleBatchScreen)
	r.Get("/reputation/{number}", s.handleReputation)
	r.Post("/reputation/{number}/recalculate", s.handleRecalculate)
	r.Post("/reports", s.handleReport)
	r.Post("/reports/{id}/confirm", s.handleConfirmReport)
	r.Post("/verify/generate", s.handleGenerateCode)
	r.Post("/verify/check", s.handleVerifyCode)
	return r
}

// Start begins serving. Non-blocking; errors after startup are logged.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server starting", zap.String("address", s.listenAddr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type screenRequest struct {
	PhoneNumber string `json:"phone_number"`
	Audio       []byte `json:"audio,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.screening.ScreenCall(r.Context(), req.PhoneNumber, req.Audio, req.SampleRate)
	if err != nil {
		if errors.Is(err, core.ErrInvalidNumber) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "screening failed")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type batchScreenRequest struct {
	PhoneNumbers []string `json:"phone_numbers"`
}

func (s *Server) handleBatchScreen(w http.ResponseWriter, r *http.Request) {
	var req batchScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.writeJSON(w, http.StatusOK, s.screening.BatchScreenCalls(r.Context(), req.PhoneNumbers))
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	details, err := s.reputation.CalculateReputationScore(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "reputation lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	details, err := s.reputation.ForceRecalculate(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "reputation recompute failed")
		return
	}
	s.writeJSON(w, http.StatusOK, details)
}

type reportRequest struct {
	PhoneNumber string `json:"phone_number"`
	Category    string `json:"category"`
	Comment     string `json:"comment,omitempty"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report, err := s.reports.ReportSpam(r.Context(), req.PhoneNumber, req.Category, req.Comment)
	if err != nil {
		if errors.Is(err, core.ErrInvalidNumber) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to record report")
		return
	}
	s.writeJSON(w, http.StatusCreated, report)
}

type confirmRequest struct {
	PhoneNumber string `json:"phone_number"`
}

func (s *Server) handleConfirmReport(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.reports.ConfirmReport(r.Context(), chi.URLParam(r, "id"), req.PhoneNumber); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "report not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to confirm report")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type verifyGenerateRequest struct {
	PhoneNumber string `json:"phone_number"`
}

func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	var req verifyGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	code, err := s.verification.GenerateVerificationCode(r.Context(), req.PhoneNumber)
	if err != nil {
		if errors.Is(err, core.ErrInvalidNumber) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to generate code")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"expires_at": code.ExpiresAt,
	})
}

type verifyCheckRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Rate limiting lives here, one layer above the core: count attempts
	// before invoking verification at all.
	attempts, err := s.verification.GetVerificationAttempts(r.Context(), req.PhoneNumber)
	if err != nil {
		if errors.Is(err, core.ErrInvalidNumber) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to check attempts")
		return
	}
	if attempts > s.maxAttempts {
		s.writeError(w, http.StatusTooManyRequests, core.ErrRateLimited.Error())
		return
	}

	if err := s.verification.VerifyCode(r.Context(), req.PhoneNumber, req.Code); err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidCode):
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, core.ErrInvalidNumber):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
