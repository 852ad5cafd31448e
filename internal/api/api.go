// Package api implements the operator HTTP surface: a JSON REST API over
// every running controller plus a WebSocket device-state stream, adapted
// from cmd/web-server's chi router, middleware stack and CORS setup.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/tobiasrehn/shadeflow/internal/authn"
	"github.com/tobiasrehn/shadeflow/internal/shading"
	"github.com/tobiasrehn/shadeflow/internal/shading/controller"
)

// Operator is a configured login credential for the operator API.
type Operator struct {
	Username     string
	PasswordHash string
	Role         string
}

// Server is the operator HTTP API. One Server is shared by every
// controller in the process.
type Server struct {
	router      *chi.Mux
	controllers map[string]*controller.Controller
	auth        *authn.Service
	operators   map[string]Operator
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewServer builds the router. controllers is keyed by unique_id.
func NewServer(controllers map[string]*controller.Controller, auth *authn.Service, operators []Operator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	ops := make(map[string]Operator, len(operators))
	for _, o := range operators {
		ops[o.Username] = o
	}

	s := &Server{
		router:      chi.NewRouter(),
		controllers: controllers,
		auth:        auth,
		operators:   ops,
		logger:      logger,
		upgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.setupRoutes()
	return s
}

// Router returns the http.Handler to mount.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/devices", s.handleListDevices)
			r.Get("/devices/{id}", s.handleGetDevice)
			r.With(s.requireRole(authn.RoleAdmin)).Post("/devices/{id}/lock", s.handleLock)
			r.With(s.requireRole(authn.RoleAdmin)).Post("/devices/{id}/unlock", s.handleUnlock)

			r.Get("/ws", s.handleWebSocket)
		})
	})
}

type contextKey string

const claimsContextKey contextKey = "authn_claims"

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := s.auth.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(claimsContextKey).(*authn.Claims)
			if claims == nil || claims.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	op, ok := s.operators[req.Username]
	if !ok || s.auth.ComparePassword(op.PasswordHash, req.Password) != nil {
		http.Error(w, authn.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		return
	}

	token, err := s.auth.GenerateToken(op.Username, op.Role)
	if err != nil {
		http.Error(w, "token generation failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// deviceView is the JSON projection of one controller's state.
type deviceView struct {
	UniqueID       string `json:"unique_id"`
	Mode           string `json:"mode"`
	CurrentHeight  *int   `json:"current_height"`
	CurrentTilt    *int   `json:"current_tilt"`
	Moving         bool   `json:"moving"`
	ManualLock     bool   `json:"manual_lock"`
	ExternalLock   bool   `json:"external_lock"`
	Manipulation   bool   `json:"manipulation"`
	SolarHeatingOn bool   `json:"solar_heating_status"`
}

func toDeviceView(uniqueID string, st shading.State) deviceView {
	return deviceView{
		UniqueID:       uniqueID,
		Mode:           st.Mode.String(),
		CurrentHeight:  st.CurrentHeight,
		CurrentTilt:    st.CurrentTilt,
		Moving:         st.Moving,
		ManualLock:     st.Locks.Manual,
		ExternalLock:   st.Locks.External,
		Manipulation:   st.Locks.Manipulation,
		SolarHeatingOn: st.SolarHeatingStatus,
	}
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	views := make([]deviceView, 0, len(s.controllers))
	for id, c := range s.controllers {
		views = append(views, toDeviceView(id, c.State()))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.controllers[id]
	if !ok {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceView(id, c.State()))
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.controllers[id]
	if !ok {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	c.SetManualLock(true)
	writeJSON(w, http.StatusOK, toDeviceView(id, c.State()))
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.controllers[id]
	if !ok {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	c.SetManualLock(false)
	writeJSON(w, http.StatusOK, toDeviceView(id, c.State()))
}

// handleWebSocket streams every device's state once per second, for
// cmd/shadetop's live dashboard.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		views := make([]deviceView, 0, len(s.controllers))
		for id, c := range s.controllers {
			views = append(views, toDeviceView(id, c.State()))
		}
		if err := conn.WriteJSON(views); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
