package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trustescrow/core"
	"trustescrow/gateway/middleware"
	"trustescrow/native/common"
	"trustescrow/observability/logging"
	"trustescrow/services/activitylog"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxRequestBody       = 1 << 20 // 1 MiB

	scopeRead  = "escrow:read"
	scopeWrite = "escrow:write"
)

var errCallerMismatch = common.NewError(common.KindAuthorization, "CallerMismatch", "caller does not match token subject")

// ServerOptions wires the gateway to its collaborators.
type ServerOptions struct {
	Settlement  *core.Settlement
	Store       *SQLiteStore
	Activity    *activitylog.Store
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimit
	CORSOrigins []string
	LogRequests bool
	Logger      *slog.Logger
}

// Server is the HTTP front-end for the settlement engine.
type Server struct {
	settlement *core.Settlement
	store      *SQLiteStore
	activity   *activitylog.Store
	auth       *middleware.Authenticator
	limiter    *middleware.RateLimiter
	obs        *middleware.Observability
	cors       middleware.CORSConfig
	logger     *slog.Logger
	nowFn      func() time.Time
	router     http.Handler
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Settlement == nil {
		return nil, errors.New("settlement required")
	}
	if opts.Store == nil {
		return nil, errors.New("sqlite store required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		settlement: opts.Settlement,
		store:      opts.Store,
		activity:   opts.Activity,
		auth:       middleware.NewAuthenticator(opts.Auth, logger),
		limiter:    middleware.NewRateLimiter(rateLimits(opts.RateLimit), logger),
		obs:        middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "escrow-gateway", LogRequests: opts.LogRequests}, logger),
		cors:       middleware.CORSConfig{AllowedOrigins: opts.CORSOrigins},
		logger:     logger,
		nowFn:      time.Now,
	}
	s.router = s.buildRouter()
	return s, nil
}

// rateLimits applies one budget to every route class. Creates cost more than
// reads and transitions.
func rateLimits(base middleware.RateLimit) map[string]middleware.RateLimit {
	if base.RatePerSecond <= 0 {
		return nil
	}
	if base.DefaultTokens <= 0 {
		base.DefaultTokens = 1
	}
	out := make(map[string]middleware.RateLimit)
	for _, class := range []string{"accounts", "escrow", "stream", "chain", "agents", "arbitration", "activity"} {
		limit := base
		limit.Tokens = map[string]int{
			"POST /escrow/create": 2 * base.DefaultTokens,
			"POST /stream/create": 2 * base.DefaultTokens,
		}
		out[class] = limit
	}
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(s.cors))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.read(r, "/accounts/{address}", "accounts", s.handleAccountGet)
	s.write(r, http.MethodPost, "/accounts/{address}/deposit", "accounts", s.handleDeposit)

	s.write(r, http.MethodPost, "/escrow/create", "escrow", s.handleEscrowCreate)
	s.read(r, "/escrow/{id}", "escrow", s.handleEscrowGet)
	s.write(r, http.MethodPost, "/escrow/{id}/release", "escrow", s.handleEscrowRelease)
	s.write(r, http.MethodPost, "/escrow/{id}/partial-release", "escrow", s.handleEscrowPartialRelease)
	s.write(r, http.MethodPost, "/escrow/{id}/refund", "escrow", s.handleEscrowRefund)
	s.write(r, http.MethodPost, "/escrow/{id}/dispute", "escrow", s.handleEscrowDispute)
	s.write(r, http.MethodPost, "/escrow/{id}/resolve", "escrow", s.handleEscrowResolve)
	s.write(r, http.MethodPost, "/escrow/{id}/delegate", "escrow", s.handleEscrowDelegate)
	s.write(r, http.MethodPost, "/escrow/{id}/revoke", "escrow", s.handleEscrowRevoke)

	s.write(r, http.MethodPost, "/stream/create", "stream", s.handleStreamCreate)
	s.read(r, "/stream/{id}", "stream", s.handleStreamGet)
	s.write(r, http.MethodPost, "/stream/{id}/withdraw", "stream", s.handleStreamWithdraw)
	s.write(r, http.MethodPost, "/stream/{id}/cancel", "stream", s.handleStreamCancel)

	s.write(r, http.MethodPost, "/chain/link", "chain", s.handleChainLink)
	s.read(r, "/chain/{id}", "chain", s.handleChainGet)
	s.read(r, "/chain/{id}/can-release", "chain", s.handleChainCanRelease)
	s.write(r, http.MethodPost, "/chain/{id}/milestone", "chain", s.handleChainMilestone)
	s.write(r, http.MethodDelete, "/chain/{id}", "chain", s.handleChainRemove)

	s.write(r, http.MethodPost, "/agents/register", "agents", s.handleAgentRegister)
	s.read(r, "/agents/{address}", "agents", s.handleAgentGet)

	s.read(r, "/arbitration/{id}", "arbitration", s.handleCaseGet)
	s.write(r, http.MethodPost, "/arbitration/{id}/evidence", "arbitration", s.handleCaseEvidence)
	s.write(r, http.MethodPost, "/arbitration/{id}/review", "arbitration", s.handleCaseReview)
	s.write(r, http.MethodPost, "/arbitration/{id}/analyze", "arbitration", s.handleCaseAnalyze)
	s.write(r, http.MethodPost, "/arbitration/{id}/accept", "arbitration", s.handleCaseAccept)
	s.write(r, http.MethodPost, "/arbitration/{id}/appeal", "arbitration", s.handleCaseAppeal)
	s.write(r, http.MethodPost, "/arbitration/{id}/vote", "arbitration", s.handleCaseVote)
	s.write(r, http.MethodPost, "/arbitration/{id}/finalize", "arbitration", s.handleCaseFinalize)

	s.read(r, "/activity", "activity", s.handleActivityList)
	s.read(r, "/activity/verify", "activity", s.handleActivityVerify)
	s.read(r, "/activity/ws", "activity", s.handleActivityWS)

	return r
}

func (s *Server) read(r chi.Router, pattern, class string, h http.HandlerFunc) {
	r.With(
		s.obs.Middleware(pattern),
		s.limiter.Middleware(class),
		s.auth.Middleware(scopeRead),
	).Get(pattern, h)
}

func (s *Server) write(r chi.Router, method, pattern, class string, h http.HandlerFunc) {
	r.With(
		s.obs.Middleware(pattern),
		s.limiter.Middleware(class),
		s.auth.Middleware(scopeWrite),
		s.recordMutation,
	).Method(method, pattern, h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "gateway store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recordMutation replays responses for reused Idempotency-Key headers and
// writes every mutating request to the audit log.
func (s *Server) recordMutation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := readRequestBody(r)
		if err != nil {
			writeProblem(w, http.StatusRequestEntityTooLarge, "RequestTooLarge", err.Error())
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := r.Context()
		principal := principalOf(r)

		key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
		requestHash := hashRequest(r.Method, r.URL.Path, body)
		if key != "" {
			cached, lookupErr := s.store.LookupIdempotency(ctx, principal, key, requestHash)
			switch {
			case errors.Is(lookupErr, ErrIdempotencyMismatch):
				writeProblem(w, http.StatusConflict, "IdempotencyMismatch", lookupErr.Error())
				s.audit(ctx, principal, r, body, http.StatusConflict, nil)
				return
			case lookupErr != nil:
				s.logger.Error("idempotency lookup failed", logging.Principal(principal), slog.Any("error", lookupErr))
				writeProblem(w, http.StatusInternalServerError, "Internal", "internal error")
				return
			case cached != nil:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(headerReplayed, "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				s.audit(ctx, principal, r, body, cached.Status, cached.Body)
				return
			}
		}

		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if key != "" && rec.status < http.StatusInternalServerError {
			if err := s.store.SaveIdempotency(ctx, principal, key, requestHash, rec.status, rec.body.Bytes()); err != nil {
				s.logger.Warn("idempotency save failed", logging.Principal(principal), logging.MaskField("idempotencyKey", key), slog.Any("error", err))
			}
		}
		s.audit(ctx, principal, r, body, rec.status, rec.body.Bytes())
	})
}

func (s *Server) audit(ctx context.Context, principal string, r *http.Request, requestBody []byte, status int, responseBody []byte) {
	entry := AuditEntry{
		Principal:      principal,
		RequestID:      r.Header.Get("X-Request-ID"),
		Method:         r.Method,
		Path:           r.URL.Path,
		RequestBody:    append([]byte(nil), requestBody...),
		ResponseBody:   append([]byte(nil), responseBody...),
		ResponseStatus: status,
		Timestamp:      s.nowFn().UTC(),
	}
	if err := s.store.InsertAuditLog(ctx, entry); err != nil {
		s.logger.Warn("audit insert failed", slog.String("path", entry.Path), logging.Principal(principal), slog.Any("error", err))
	}
}

// caller parses the acting address. When the request carries a token whose
// subject is an address, the caller must match it.
func (s *Server) caller(r *http.Request, field, value string) ([20]byte, error) {
	addr, err := parseAddress(field, value)
	if err != nil {
		return addr, err
	}
	sub, ok := middleware.SubjectFromContext(r.Context())
	if ok && ethcommon.IsHexAddress(sub) && [20]byte(ethcommon.HexToAddress(sub)) != addr {
		return addr, common.Wrapf(errCallerMismatch, "%s %s", field, formatAddress(addr))
	}
	return addr, nil
}

func principalOf(r *http.Request) string {
	if sub, ok := middleware.SubjectFromContext(r.Context()); ok {
		return "sub:" + sub
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	return ""
}

func readRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	limited := io.LimitReader(r.Body, maxRequestBody+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(data) > maxRequestBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	return data, nil
}

// decode reads a JSON body into out. An empty body leaves out untouched.
func decode(r *http.Request, out interface{}) error {
	body, err := readRequestBody(r)
	if err != nil {
		return invalidf("%v", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidf("invalid JSON payload: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func statusFor(kind common.Kind) int {
	switch kind {
	case common.KindValidation:
		return http.StatusBadRequest
	case common.KindAuthorization:
		return http.StatusForbidden
	case common.KindStateConflict:
		return http.StatusConflict
	case common.KindDependency, common.KindExternalInput:
		return http.StatusUnprocessableEntity
	case common.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := common.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("kind", kind.String()),
			slog.Any("error", err))
	}
	writeProblem(w, status, common.CodeOf(err), describe(err))
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{strings.ToUpper(method), path, string(body)}, "\n")))
	return fmt.Sprintf("%x", sum[:])
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	if c.body.Len() < maxRequestBody {
		c.body.Write(p)
	}
	return c.ResponseWriter.Write(p)
}

func (c *captureWriter) Unwrap() http.ResponseWriter { return c.ResponseWriter }
