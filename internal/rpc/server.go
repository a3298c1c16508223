// Package rpc provides the JSON-RPC 2.0 server of the escrow daemon.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/klingon-exchange/klingon-escrow/internal/config"
	"github.com/klingon-exchange/klingon-escrow/internal/escrow"
	"github.com/klingon-exchange/klingon-escrow/internal/faucet"
	"github.com/klingon-exchange/klingon-escrow/internal/ledger"
	"github.com/klingon-exchange/klingon-escrow/internal/metrics"
	"github.com/klingon-exchange/klingon-escrow/pkg/logging"
)

// Server is a JSON-RPC 2.0 server.
type Server struct {
	cfg     *config.Config
	ledger  *ledger.Ledger
	program *escrow.Program
	faucet  *faucet.Faucet
	log     *logging.Logger
	wsHub   *WSHub
	started time.Time

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewServer creates a JSON-RPC server. f may be nil when the faucet is
// disabled. Committed escrow transitions are pushed to WebSocket clients.
func NewServer(cfg *config.Config, l *ledger.Ledger, p *escrow.Program, f *faucet.Faucet) *Server {
	s := &Server{
		cfg:      cfg,
		ledger:   l,
		program:  p,
		faucet:   f,
		log:      logging.GetDefault().Component("rpc"),
		wsHub:    NewWSHub(),
		started:  time.Now(),
		handlers: make(map[string]Handler),
	}
	p.SetEmitter(s.wsHub)

	s.registerHandlers()
	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	// Node methods
	s.handlers["node_info"] = s.nodeInfo
	s.handlers["node_status"] = s.nodeStatus

	// Escrow methods
	s.handlers["escrow_derive"] = s.escrowDerive
	s.handlers["escrow_submit"] = s.escrowSubmit
	s.handlers["escrow_get"] = s.escrowGet
	s.handlers["escrow_list"] = s.escrowList
	s.handlers["escrow_history"] = s.escrowHistory

	// Ledger queries
	s.handlers["ledger_getAccount"] = s.ledgerGetAccount
	s.handlers["ledger_getBalance"] = s.ledgerGetBalance
	s.handlers["ledger_getTokenAccount"] = s.ledgerGetTokenAccount

	// Development faucet
	s.handlers["faucet_airdrop"] = s.faucetAirdrop
	s.handlers["faucet_createMint"] = s.faucetCreateMint
	s.handlers["faucet_mintTo"] = s.faucetMintTo
}

// Handler returns the HTTP handler serving JSON-RPC, WebSocket and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("OPTIONS /{$}", s.handleCORS)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/", s.handleWS)
	mux.Handle("GET /metrics", metrics.Handler())
	return corsMiddleware(mux)
}

// Start starts the RPC server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	go s.wsHub.Run()

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", listener.Addr().String(), "ws", "ws://"+listener.Addr().String()+"/ws")
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	s.wsHub.Stop()
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		metrics.RPCRequests.WithLabelValues("unknown", "not_found").Inc()
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		code, data := errorCode(err)
		metrics.RPCRequests.WithLabelValues(req.Method, "error").Inc()
		s.log.Debug("RPC call failed", "method", req.Method, "error", err)
		s.writeError(w, req.ID, code, err.Error(), data)
		return
	}

	metrics.RPCRequests.WithLabelValues(req.Method, "ok").Inc()
	s.writeResult(w, req.ID, result)
}

// writeResult writes a successful response.
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// handleCORS handles CORS preflight requests.
func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
