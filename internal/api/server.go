// Package api exposes the governor over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ppiankov/governor/internal/governor"
	"github.com/ppiankov/governor/internal/judge"
	"github.com/ppiankov/governor/internal/ledger"
	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
)

const maxBodyBytes = 1 << 20

// Server serves the governor HTTP API.
type Server struct {
	svc    *governor.Service
	auth   *Auth
	model  judge.Info
	logger *slog.Logger
}

// New creates a Server. info describes the configured recommendation
// provider for GET /model.
func New(svc *governor.Service, auth *Auth, info judge.Info, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if auth == nil {
		auth = NewAuth(nil, logger)
	}
	return &Server{svc: svc, auth: auth, model: info, logger: logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)
	r.Get("/model", s.modelInfo)
	r.Get("/auth/status", s.authStatus)

	r.With(s.auth.Require(RoleAdmin, RoleOperator, RoleAuditor)).Get("/policy", s.getPolicy)
	r.With(s.auth.Require(RoleAdmin)).Put("/policy", s.putPolicy)

	r.Route("/audit", func(r chi.Router) {
		r.Use(s.auth.Require(RoleAdmin, RoleAuditor))
		r.Get("/", s.listAudit)
		r.Get("/verify", s.verifyAudit)
		r.Get("/summary", s.auditSummary)
		r.Get("/spend", s.dailySpend)
		r.Get("/{id}", s.getAudit)
	})

	r.With(s.auth.Require(RoleAdmin, RoleOperator)).Post("/proposals", s.postProposal)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Live recommendations can take up to the provider timeout.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()
	s.logger.Info("governor listening", "addr", lis.Addr().String(), "auth_enabled", s.auth.Enabled())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "governor"})
}

func (s *Server) modelInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.model)
}

func (s *Server) authStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.auth.Enabled()})
}

func (s *Server) getPolicy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Policy())
}

func (s *Server) putPolicy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy payload.")
		return
	}
	p, err := decodePolicy(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy payload.")
		return
	}
	if err := s.svc.UpdatePolicy(p); err != nil {
		var verr *policy.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "Invalid policy payload.")
			return
		}
		s.logger.Error("policy update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save policy.")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Policy())
}

// decodePolicy requires every policy field to be present.
func decodePolicy(body []byte) (policy.Policy, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return policy.Policy{}, err
	}
	for _, name := range policyFields {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			return policy.Policy{}, fmt.Errorf("missing %s", name)
		}
	}

	var p policy.Policy
	if err := json.Unmarshal(body, &p); err != nil {
		return policy.Policy{}, err
	}
	if err := p.Validate(); err != nil {
		return policy.Policy{}, err
	}
	return p.Clone(), nil
}

var policyFields = []string{
	"maxDailySpendUSDC",
	"maxSingleTransferUSDC",
	"allowlistRecipients",
	"denylistRecipients",
	"swapMaxSlippageBps",
	"swapMinLiquidityUSDC",
	"deployRequiresTestsPassing",
	"apiDenyPIIExfiltration",
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", ledger.DefaultListLimit)
	offset := queryInt(r, "offset", 0)
	entries, err := s.svc.ListAudit(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, "list audit", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) verifyAudit(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.VerifyChain(r.Context(), queryInt(r, "limit", ledger.DefaultVerifyLimit))
	if err != nil {
		s.internalError(w, "verify audit", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) auditSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.AuditSummary(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		s.internalError(w, "audit summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) dailySpend(w http.ResponseWriter, r *http.Request) {
	hours := 24.0
	if raw := r.URL.Query().Get("hours"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid hours.")
			return
		}
		hours = v
	}
	spend, err := s.svc.DailySpend(r.Context(), hours)
	if err != nil {
		s.internalError(w, "daily spend", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"windowHours": hours, "spendUSDC": spend})
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	entry, found, err := s.svc.GetAudit(r.Context(), id)
	if err != nil {
		s.internalError(w, "get audit", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) postProposal(w http.ResponseWriter, r *http.Request) {
	var p model.ActionProposal
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid proposal payload.")
		return
	}

	out, err := s.svc.EvaluateProposal(r.Context(), p)
	if errors.Is(err, model.ErrInvalidProposal) {
		writeError(w, http.StatusBadRequest, "Invalid proposal payload.")
		return
	}
	if err != nil {
		s.internalError(w, "evaluate proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal error.")
}

// queryInt returns def when the parameter is absent or not an integer.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
