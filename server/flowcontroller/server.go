//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Package flowcontroller exposes the HTTP surface of the flow controller
// service: message processing, flow reload, health and a root banner.
package flowcontroller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/flow-controller/engine"
	"trpc.group/trpc-go/flow-controller/log"
	"trpc.group/trpc-go/flow-controller/storage/mysql"
)

// Server routes gateway requests to the execution engine.
type Server struct {
	engine *engine.Engine
	db     mysql.ClientInterface
	router *mux.Router
}

// Option configures the Server instance.
type Option func(*Server)

// WithDBClient provides the database client used by the health check's
// connectivity probe. Without it the health endpoint reports the database
// as down.
func WithDBClient(c mysql.ClientInterface) Option {
	return func(s *Server) { s.db = c }
}

// New creates the HTTP server around an execution engine.
func New(e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine: e,
		router: mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.router.Use(s.recoverMiddleware)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/process_message", s.handleProcessMessage).Methods(http.MethodPost)
	s.router.HandleFunc("/reload_flow", s.handleReloadFlow).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet, http.MethodPost)
}

// recoverMiddleware maps panics escaping a handler to a response instead of
// killing the connection. /process_message answers with the generic error
// payload so the gateway still has something to deliver.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorf("panic serving %s: %v", r.URL.Path, rec)
				if r.URL.Path == "/process_message" {
					s.writeJSON(w, http.StatusOK, processResponse{
						ResponsePayload: &engine.Payload{Type: "text", Text: "Erro."},
					})
					return
				}
				s.writeJSON(w, http.StatusInternalServerError,
					errorResponse{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type processRequest struct {
	SenderID string `json:"sender_id"`
	Message  string `json:"message"`
}

type processResponse struct {
	ResponsePayload *engine.Payload `json:"response_payload,omitempty"`
}

type reloadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type healthDetails struct {
	FlowLoaded   bool   `json:"flow_loaded"`
	DBConnection bool   `json:"db_connection"`
	FlowError    string `json:"flow_error,omitempty"`
	DBError      string `json:"db_error,omitempty"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Details healthDetails `json:"details"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warnf("process_message: bad request body: %v", err)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Request body is missing"})
		return
	}
	if req.SenderID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sender_id é obrigatório"})
		return
	}
	log.Infof("process_message: sender_id=%q", req.SenderID)

	// A gateway disconnect must not abort a step halfway through its side
	// effects.
	ctx := context.WithoutCancel(r.Context())
	payload := s.engine.ProcessMessage(ctx, req.SenderID, req.Message)
	s.writeJSON(w, http.StatusOK, processResponse{ResponsePayload: payload})
}

func (s *Server) handleReloadFlow(w http.ResponseWriter, r *http.Request) {
	log.Info("reload_flow: reload requested")
	f, err := s.engine.ReloadFlow(context.WithoutCancel(r.Context()))
	if err != nil {
		log.Errorf("reload_flow: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, reloadResponse{
			Success: false,
			Message: "Falha ao recarregar fluxo.",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, reloadResponse{
		Success: true,
		Message: fmt.Sprintf("Fluxo '%s' (ID: %d) recarregado.", f.Name(), f.ID()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := healthDetails{
		FlowLoaded: s.engine.FlowLoaded(),
	}
	if !details.FlowLoaded {
		details.FlowError = "Fluxo não carregado ou inválido."
	}
	if s.db == nil {
		details.DBError = "database client not configured"
	} else if err := s.db.Ping(); err != nil {
		details.DBError = err.Error()
	} else {
		details.DBConnection = true
	}

	status := "ok"
	code := http.StatusOK
	if !details.FlowLoaded || !details.DBConnection {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	log.Infof("health check: %s", status)
	s.writeJSON(w, code, healthResponse{Status: status, Details: details})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Flow Controller Service (MySQL) is running.",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
