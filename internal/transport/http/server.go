/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package http implements the control surface of spec.md §6: a chi
// router exposing session play/stop/theme-update endpoints, a channel
// snapshot endpoint, and the per-channel streaming endpoint that drives a
// Listener Encoder to completion over a chunked HTTP response.
package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/synssins/sonorium.dev/internal/auth"
	"github.com/synssins/sonorium.dev/internal/channelpool"
	"github.com/synssins/sonorium.dev/internal/config"
	"github.com/synssins/sonorium.dev/internal/listener/webrtc"
	"github.com/synssins/sonorium.dev/internal/session"
	"github.com/synssins/sonorium.dev/internal/telemetry"
)

// Server bundles the HTTP router and its owned supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server

	pool        *channelpool.Pool
	sessions    *session.Controller
	listenerCfg ListenerConfig
	limiter     *IPRateLimiter
	webrtcMgr   *webrtc.Manager
}

// ListenerConfig is the subset of config.Config the streaming endpoint
// needs to build a Listener Encoder per connecting client.
type ListenerConfig struct {
	SampleRate    int
	Channels      int
	BitrateBPS    int
	BufferSeconds float64
	DeadAfterDrop time.Duration
	GStreamerBin  string
}

// New constructs the control-surface HTTP server and wires its routes.
func New(cfg *config.Config, pool *channelpool.Pool, sessions *session.Controller, logger zerolog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	limiter := NewIPRateLimiter(DefaultRateLimitConfig)
	router.Use(limiter.Middleware)
	router.Use(telemetry.TracingMiddleware("sonorium-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The stream endpoint is long-running; every other route gets a
	// bounded timeout.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/channel_stream/") || strings.HasPrefix(r.URL.Path, "/channel_webrtc/") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	var keyAuth *auth.APIKeyAuthenticator
	if cfg.APIKeyHash != "" {
		keyAuth = auth.NewAPIKeyAuthenticator(cfg.APIKeyHash)
	}

	var webrtcMgr *webrtc.Manager
	if cfg.WebRTCEnabled {
		webrtcMgr = webrtc.NewManager(webrtc.ManagerConfig{
			SampleRate:   cfg.SampleRate,
			Channels:     cfg.Channels,
			RTPBasePort:  cfg.WebRTCRTPBasePort,
			GStreamerBin: cfg.GStreamerBin,
			STUNServer:   cfg.WebRTCSTUNServer,
			TURNServer:   cfg.WebRTCTURNServer,
			TURNUsername: cfg.WebRTCTURNUsername,
			TURNPassword: cfg.WebRTCTURNPassword,
		}, logger)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger.With().Str("component", "http-server").Logger(),
		router:    router,
		pool:      pool,
		sessions:  sessions,
		limiter:   limiter,
		webrtcMgr: webrtcMgr,
		listenerCfg: ListenerConfig{
			SampleRate:    cfg.SampleRate,
			Channels:      cfg.Channels,
			BitrateBPS:    cfg.BitrateBPS,
			BufferSeconds: cfg.ListenerBufferSeconds,
			DeadAfterDrop: time.Duration(cfg.ListenerDeadAfterDropSeconds * float64(time.Second)),
			GStreamerBin:  cfg.GStreamerBin,
		},
	}

	s.routes(auth.Middleware([]byte(cfg.JWTSigningKey), keyAuth))

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout left at 0: the stream endpoint manages its own
		// lifetime via request context cancellation.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// HTTPServer exposes the underlying net/http server for cmd/sonorium to run.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close stops background goroutines owned by the server (the rate limiter's
// cleanup loop). It does not touch the underlying net/http.Server; callers
// shut that down separately via its own Shutdown method.
func (s *Server) Close() {
	s.limiter.Stop()
	if s.webrtcMgr != nil {
		s.webrtcMgr.Close()
	}
}

func (s *Server) routes(authMW func(http.Handler) http.Handler) {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", telemetry.Handler())

	// Streaming is its own auth domain: a token in the query string,
	// since browsers and simple HTTP audio clients can't set headers.
	s.router.With(authMW).Get("/channel_stream/{channel_id}", s.handleChannelStream)
	if s.webrtcMgr != nil {
		s.router.With(authMW).Get("/channel_webrtc/{channel_id}", s.handleChannelWebRTC)
	}

	s.router.Route("/sessions", func(r chi.Router) {
		r.Use(authMW)
		r.Post("/", s.handlePlay)
		r.Get("/{session_id}", s.handleGetSession)
		r.Delete("/{session_id}", s.handleStop)
		r.Put("/{session_id}/theme", s.handleUpdateTheme)
	})

	s.router.With(authMW).Get("/channels", s.handleChannelsSnapshot)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleChannelsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Snapshot())
}
