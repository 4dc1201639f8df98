// Package api exposes the back office over HTTP: the pump trigger, the CRUD
// surface for customers, admins, cities and tanks, billing, notifications
// (including the live stream), plus health and metrics endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nwehbe/waterops/internal/api/swagger"
	"github.com/nwehbe/waterops/internal/auth"
	"github.com/nwehbe/waterops/internal/hardware"
	"github.com/nwehbe/waterops/internal/metrics"
	"github.com/nwehbe/waterops/internal/notify"
	"github.com/nwehbe/waterops/internal/pump"
	"github.com/nwehbe/waterops/internal/storage"
)

// Server holds the wired services the handlers work against.
type Server struct {
	storage    storage.Storage
	auth       *auth.Service
	authOn     bool
	notify     *notify.Service
	dispatcher *pump.Dispatcher
	hw         hardware.Client
	mailer     *notify.Mailer
}

func NewServer(st storage.Storage, authSvc *auth.Service, authOn bool, n *notify.Service, d *pump.Dispatcher, hw hardware.Client, mailer *notify.Mailer) *Server {
	return &Server{
		storage:    st,
		auth:       authSvc,
		authOn:     authOn,
		notify:     n,
		dispatcher: d,
		hw:         hw,
		mailer:     mailer,
	}
}

// NewMux constructs the HTTP mux, wiring in all API routes, metrics, and
// health endpoints.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.storage.Ping(r.Context()); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	s.handle(mux, "/api/v1/pump-water", s.handlePumpWater)

	s.handle(mux, "/api/v1/customers", s.handleCustomers)
	s.handle(mux, "/api/v1/customers/", s.handleCustomerByID)
	s.public(mux, "/api/v1/customers/login", s.handleCustomerLogin)

	s.handle(mux, "/api/v1/admins", s.handleAdmins)
	s.public(mux, "/api/v1/admins/login", s.handleAdminLogin)
	s.handle(mux, "/api/v1/logout", s.handleLogout)

	s.handle(mux, "/api/v1/cities", s.handleCities)

	s.handle(mux, "/api/v1/tanks", s.handleTanks)
	s.handle(mux, "/api/v1/tanks/", s.handleTankByID)
	s.handle(mux, "/api/v1/main-tank", s.handleMainTank)
	s.handle(mux, "/api/v1/main-tank/volume", s.handleMainTankVolume)

	s.handle(mux, "/api/v1/bills", s.handleBills)
	s.handle(mux, "/api/v1/bills/", s.handleBillByID)

	s.handle(mux, "/api/v1/notifications", s.handleNotifications)
	s.handle(mux, "/api/v1/notifications/stream", s.handleNotificationStream)

	s.handle(mux, "/api/v1/dashboard", s.handleDashboard)
	s.handle(mux, "/api/v1/search", s.handleSearch)

	// API documentation.
	mux.Handle("/swagger/", http.StripPrefix("/swagger", swagger.Handler()))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/swagger/", http.StatusFound)
	})

	return mux
}

// handle registers an authenticated, instrumented route. When auth is
// disabled the token middleware is skipped and handlers see no subject.
func (s *Server) handle(mux *http.ServeMux, path string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.authOn {
		handler = s.auth.Middleware(handler)
	}
	mux.Handle(path, instrument(path, handler))
}

// public registers an instrumented route that never requires a token.
func (s *Server) public(mux *http.ServeMux, path string, h http.HandlerFunc) {
	mux.Handle(path, instrument(path, h))
}

func instrument(path string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.RequestsTotal.WithLabelValues(path).Inc()
		h.ServeHTTP(w, r)
		metrics.RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}

// authorize enforces that the caller's role allows act on obj. With auth
// disabled every request passes with no subject.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, obj, act string) (*storage.Token, bool) {
	if !s.authOn {
		return nil, true
	}
	token := s.auth.Require(w, r, obj, act)
	return token, token != nil
}

// subjectOrFail returns the caller's token for endpoints that only need an
// identity, not a specific permission.
func (s *Server) subjectOrFail(w http.ResponseWriter, r *http.Request) (*storage.Token, bool) {
	if !s.authOn {
		return nil, true
	}
	token := auth.TokenFrom(r)
	if token == nil {
		s.error(w, r, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return token, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) error(w http.ResponseWriter, r *http.Request, status int, msg string) {
	metrics.RequestErrorsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
	http.Error(w, msg, status)
}
