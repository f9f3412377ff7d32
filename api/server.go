// Package api provides the HTTP REST API server for folio.
//
// It exposes endpoints for symbol lookups through the provider chains,
// portfolio management, streamed analysis, and WebSocket quote updates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/kestrelworks/folio/internal/cache"
	"github.com/kestrelworks/folio/internal/config"
	"github.com/kestrelworks/folio/internal/llm"
	"github.com/kestrelworks/folio/internal/portfolio"
	"github.com/kestrelworks/folio/internal/source"
	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

// Version is reported by the health endpoint. The CLI overwrites it with
// the build version at startup.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	market  *source.Chain
	analyst *llm.Chain
	svc     *portfolio.Service
	wsHub   *WSHub
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config) (*Server, error) {
	store := cache.New(cfg.Cache.TTLs(), cfg.Cache.SweepInterval)
	registry := source.NewRegistry()
	market := source.NewChain(store, registry.Chains(cfg.Chains.Lists()),
		source.WithMinBars(cfg.Chains.MinBars))

	analyst, err := llm.FromConfigs(cfg.LLM.Models)
	if err != nil {
		if !errors.Is(err, llm.ErrNoProviders) {
			return nil, fmt.Errorf("model chain setup failed: %w", err)
		}
		// No usable model entries: quotes and portfolio still work,
		// analysis endpoints report unavailable.
		log.Warn().Msg("no language models configured, analysis disabled")
		analyst = nil
	}

	svc := portfolio.NewService(market, analyst, portfolio.NewMemoryStore(),
		portfolio.WithClassifyTimeout(cfg.LLM.ClassifyTimeout))

	srv := &Server{
		cfg:     cfg,
		market:  market,
		analyst: analyst,
		svc:     svc,
		wsHub:   NewWSHub(),
	}

	srv.router = srv.buildRouter()
	return srv, nil
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start WebSocket hub and the quote refresher behind it
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()
	go s.wsHub.Run()
	go s.quoteLoop(loopCtx)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("API server listening")

	<-done
	log.Info().Msg("shutting down server")
	stopLoops()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.Server.CORSOrigins) > 0 {
		origins = s.cfg.Server.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// WebSocket quote stream
	r.Get("/ws", s.handleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health (also available at /health)
		r.Get("/health", s.handleHealth)

		// Symbol lookups through the provider chains
		r.Route("/symbols/{symbol}", func(r chi.Router) {
			r.Get("/", s.handleComposite)
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/bars", s.handleBars)
			r.Get("/news", s.handleNews)
			r.Get("/fundamentals", s.handleFundamentals)
		})

		// Portfolio
		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/holdings", s.handleListHoldings)
			r.Post("/holdings", s.handleCreateHolding)
			r.Get("/holdings/{symbol}", s.handleGetHolding)
			r.Put("/holdings/{symbol}", s.handleUpdateHolding)
			r.Delete("/holdings/{symbol}", s.handleDeleteHolding)
			r.Get("/summary", s.handleSummary)
		})

		// Streamed analysis
		r.Post("/analysis/{symbol}/stream", s.handleAnalysisStream)

		// Configuration
		r.Get("/config", s.handleGetConfig)
		r.Get("/config/keys", s.handleGetConfigKeys)

		// WebSocket (same handler as /ws)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HoldingRequest is the body for POST /api/v1/portfolio/holdings and
// PUT /api/v1/portfolio/holdings/{symbol}.
type HoldingRequest struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Sector   string          `json:"sector,omitempty"`
	Crypto   bool            `json:"crypto,omitempty"`
}

// ============================================================
// Health handler
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":        "ok",
		"version":       Version,
		"market_status": utils.MarketStatus(),
		"time_et":       utils.NowEastern().Format(time.RFC3339),
	}

	if s.analyst != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		statuses := make(map[string]string)
		for name, err := range s.analyst.HealthCheck(ctx) {
			if err != nil {
				statuses[name] = err.Error()
			} else {
				statuses[name] = "ok"
			}
		}
		data["models"] = statuses
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// ============================================================
// Symbol handlers
// ============================================================

func (s *Server) handleComposite(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	comp, err := s.svc.Composite(ctx, symbol, cryptoFlag(r))
	if err != nil {
		writeError(w, chainStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    comp,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	snap, err := s.market.Snapshot(ctx, models.Request{Symbol: symbol, Crypto: cryptoFlag(r)})
	if err != nil {
		writeError(w, chainStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    snap,
	})
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	days := 90
	if v := r.URL.Query().Get("days"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 && d <= 3650 {
			days = d
		}
	}
	interval := parseInterval(r.URL.Query().Get("interval"))

	to := time.Now()
	from := to.AddDate(0, 0, -days)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	series, err := s.market.Bars(ctx, models.Request{Symbol: symbol, Crypto: cryptoFlag(r)}, from, to, interval)
	if err != nil {
		writeError(w, chainStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    series,
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	set, err := s.market.News(ctx, models.Request{Symbol: symbol, Crypto: cryptoFlag(r)}, limit)
	if err != nil {
		writeError(w, chainStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    set,
	})
}

func (s *Server) handleFundamentals(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	fund, err := s.market.Fundamentals(ctx, models.Request{Symbol: symbol, Crypto: cryptoFlag(r)})
	if err != nil {
		writeError(w, chainStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    fund,
	})
}

// ============================================================
// Portfolio handlers
// ============================================================

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.svc.Store().List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    holdings,
	})
}

func (s *Server) handleCreateHolding(w http.ResponseWriter, r *http.Request) {
	var req HoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	s.saveHolding(w, r, req, http.StatusCreated)
}

func (s *Server) handleUpdateHolding(w http.ResponseWriter, r *http.Request) {
	var req HoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// The URL names the holding; the body cannot rename it.
	req.Symbol = chi.URLParam(r, "symbol")

	s.saveHolding(w, r, req, http.StatusOK)
}

// saveHolding validates and stores a holding, then writes it back with the
// given status.
func (s *Server) saveHolding(w http.ResponseWriter, r *http.Request, req HoldingRequest, status int) {
	if !req.Quantity.IsPositive() {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	if req.UnitCost.IsNegative() {
		writeError(w, http.StatusBadRequest, "unit_cost cannot be negative")
		return
	}

	saved, err := s.svc.Store().Put(r.Context(), models.Holding{
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		UnitCost: req.UnitCost,
		Sector:   req.Sector,
		Crypto:   req.Crypto,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    saved,
	})
}

func (s *Server) handleGetHolding(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	holding, err := s.svc.Store().Get(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, portfolio.ErrHoldingNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    holding,
	})
}

func (s *Server) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	if err := s.svc.Store().Delete(r.Context(), symbol); err != nil {
		if errors.Is(err, portfolio.ErrHoldingNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"deleted": utils.NormalizeSymbol(symbol)},
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	summary, err := s.svc.Summary(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    summary,
	})
}

// ============================================================
// Helpers
// ============================================================

// symbolParam extracts and normalizes the symbol from the URL.
func symbolParam(r *http.Request) string {
	return utils.NormalizeSymbol(chi.URLParam(r, "symbol"))
}

// cryptoFlag reports whether the request asked for crypto pricing.
func cryptoFlag(r *http.Request) bool {
	return r.URL.Query().Get("crypto") == "true"
}

// parseInterval maps a query value onto a bar interval, defaulting to daily.
func parseInterval(v string) models.Interval {
	switch strings.ToLower(v) {
	case "1m", "1min":
		return models.Interval1Min
	case "5m", "5min":
		return models.Interval5Min
	case "15m", "15min":
		return models.Interval15Min
	case "1h", "1hour":
		return models.Interval1Hour
	case "1w", "1week", "weekly":
		return models.Interval1Week
	case "1mo", "1month", "monthly":
		return models.Interval1Mon
	default:
		return models.Interval1Day
	}
}

// chainStatus maps a provider chain error onto an HTTP status.
func chainStatus(err error) int {
	switch {
	case errors.Is(err, source.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// ============================================================
// WebSocket Hub
// ============================================================

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSHub manages WebSocket connections, symbol subscriptions, and message
// broadcasting.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	symbols    map[string]int // subscription refcounts
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	hub     *WSHub
	send    chan WSMessage
	symbols map[string]bool // symbols this client subscribed to
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		symbols:    make(map[string]int),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for symbol := range client.symbols {
					h.releaseLocked(symbol)
				}
				close(client.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client; disconnect
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					for symbol := range client.symbols {
						h.releaseLocked(symbol)
					}
					close(client.send)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected WebSocket clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		// Drop message if broadcast channel is full
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *WSHub) Register(client *WSClient) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	h.unregister <- client
}

// Subscribe registers a client's interest in quote refreshes for a symbol.
func (h *WSHub) Subscribe(client *WSClient, symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.symbols[symbol] {
		return
	}
	client.symbols[symbol] = true
	h.symbols[symbol]++
}

// Unsubscribe drops a client's interest in a symbol.
func (h *WSHub) Unsubscribe(client *WSClient, symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !client.symbols[symbol] {
		return
	}
	delete(client.symbols, symbol)
	h.releaseLocked(symbol)
}

// releaseLocked decrements a symbol's subscription count. Callers hold mu.
func (h *WSHub) releaseLocked(symbol string) {
	if n := h.symbols[symbol]; n <= 1 {
		delete(h.symbols, symbol)
	} else {
		h.symbols[symbol] = n - 1
	}
}

// Symbols returns the symbols with at least one subscriber, sorted.
func (h *WSHub) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.symbols))
	for symbol := range h.symbols {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
