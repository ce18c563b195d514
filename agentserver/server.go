/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agentserver exposes a codingagent.Agent over HTTP.
//
// POST /api/agent accepts {"prompt": "..."} and answers {"result": ...}.
// Every failure, including a malformed body, is answered with a 500 and a
// generic message; the detail is only logged.
package agentserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/codingagent"
	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// GenericError is the only error message clients ever see.
const GenericError = "An error occurred"

// maxBodyBytes bounds the request body.
const maxBodyBytes = 1 << 20

type invokeRequest struct {
	Prompt string `json:"prompt"`
}

type invokeResponse struct {
	Result *codingagent.Result `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to an agent.
type Server struct {
	agent  codingagent.Agent
	router chi.Router
}

// New returns a Server backed by agent.
func New(agent codingagent.Agent) *Server {
	s := &Server{agent: agent}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument)
	r.Use(recoverer)

	r.Get("/healthz", s.healthz)
	r.Post("/api/agent", s.invoke)

	s.router = r
	return s
}

// Handler returns the router wrapped in OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "agentserver")
}

// ServeHTTP implements http.Handler without the tracing wrapper.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	log := clog.FromContext(r.Context()).With("request_id", reqID)
	ctx := clog.WithLogger(r.Context(), log)
	ctx = agenttrace.WithRequestContext(ctx, agenttrace.RequestContext{RequestID: reqID})

	req, err := decodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.With("error", err).Error("Failed to decode agent request")
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: GenericError})
		return
	}

	start := time.Now()
	res, err := s.agent.Invoke(ctx, req.Prompt)
	agentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		agentInvocations.WithLabelValues("error").Inc()
		log.With("error", err).Error("Agent invocation failed")
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: GenericError})
		return
	}
	agentInvocations.WithLabelValues("ok").Inc()
	writeJSON(w, r, http.StatusOK, invokeResponse{Result: res})
}

// decodeRequest reads exactly one JSON object; trailing data is an error.
func decodeRequest(body io.Reader) (invokeRequest, error) {
	var req invokeRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return req, errors.New("unexpected data after request object")
	}
	return req, nil
}

// recoverer turns a panic into the generic error response.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			clog.FromContext(r.Context()).
				With("request_id", middleware.GetReqID(r.Context())).
				With("panic", fmt.Sprint(rec)).
				Errorf("Recovered from panic:\n%s", debug.Stack())
			writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: GenericError})
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		clog.WarnContextf(r.Context(), "Failed to write response: %v", err)
	}
}
