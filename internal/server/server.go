// internal/server/server.go

// Package server exposes the agent over HTTP for chat-ops integrations.
// The surface is deliberately small: submit a command, confirm or cancel a
// pending one, and a health probe.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/agent"
	"github.com/opspilot/opspilot-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 64 << 10

// commandRequest is the POST /v1/command body.
type commandRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
	// Execute requests real execution even when the policy defaults to dry
	// run. Ignored when DryRun is set.
	Execute bool `json:"execute,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server wraps the engine behind a chi router.
type Server struct {
	engine *agent.Engine
	cfg    config.ServerConfig
	logger *zap.Logger
	http   *http.Server
}

func New(engine *agent.Engine, cfg config.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		cfg:    cfg,
		logger: logger.Named("server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/command", s.handleCommand)
	r.Post("/v1/confirm/{token}", s.handleConfirm)
	r.Delete("/v1/confirm/{token}", s.handleCancel)

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then drains connections within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", zap.String("addr", s.cfg.Listen))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Text == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	mode := agent.ModeNormal
	switch {
	case req.DryRun:
		mode = agent.ModeForceDryRun
	case req.Execute:
		mode = agent.ModeExecute
	}
	res := s.engine.Process(r.Context(), agent.ExecutionRequest{
		RawText:   req.Text,
		SessionID: req.SessionID,
		Mode:      mode,
	})
	s.writeResult(w, req.SessionID, res)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		return
	}
	res := s.engine.Process(r.Context(), agent.ExecutionRequest{
		SessionID:    sessionID,
		Mode:         agent.ModeConfirmed,
		ConfirmToken: token,
	})
	s.writeResult(w, sessionID, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		return
	}
	if !s.engine.Cancel(r.Context(), token, sessionID) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no such pending confirmation"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// resultEnvelope is the wire form of an execution result. The session id is
// echoed back so stateless clients can hold the conversation open.
type resultEnvelope struct {
	SessionID string `json:"session_id"`
	*agent.ExecutionResult
}

func (s *Server) writeResult(w http.ResponseWriter, sessionID string, res *agent.ExecutionResult) {
	status := http.StatusOK
	switch {
	case res.PendingConfirmation:
		status = http.StatusAccepted
	case !res.Success:
		switch res.ErrorCode {
		case agent.ErrCodeUnknownIntent, agent.ErrCodeMissingContext, agent.ErrCodeAmbiguousMatch:
			status = http.StatusUnprocessableEntity
		case agent.ErrCodePolicyRejected:
			status = http.StatusForbidden
		case agent.ErrCodeConfirmationExpired:
			status = http.StatusGone
		default:
			status = http.StatusBadGateway
		}
	}
	s.writeJSON(w, status, resultEnvelope{SessionID: sessionID, ExecutionResult: res})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Encode response failed", zap.Error(err))
	}
}
