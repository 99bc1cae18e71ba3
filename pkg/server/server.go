// Package server exposes the bridge session over HTTP and a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/metrics"
	"bridgeui/pkg/models"
	"bridgeui/pkg/send"
	"bridgeui/pkg/store"
	"bridgeui/pkg/wallet"
	"bridgeui/pkg/watcher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var Logger = zerolog.Nop()

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Sender starts sends and reports their progress.
type Sender interface {
	SendAsync(ctx context.Context, signer wallet.Signer, args models.SendArgs) string
	Status() send.Status
	StatusOf(id string) (send.Status, bool)
}

// Switcher asks the connected wallet to move to another chain.
type Switcher func(ctx context.Context, target uint64) error

// NativeQuerier reads native balances from the chain.
type NativeQuerier interface {
	FetchNativeBalance(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error)
}

// Options configure the HTTP surface.
type Options struct {
	AllowedOrigins []string
	RatePerMinute  int
	Metrics        *prometheus.Registry
	SwitchTimeout  time.Duration
	// Native enables the live native balance route.
	Native NativeQuerier
}

type Server struct {
	watcher  *watcher.Watcher
	global   *store.GlobalStore
	registry *chains.Registry
	sender   Sender
	switcher Switcher
	opts     Options

	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *chi.Mux
	handler http.Handler

	ctx    context.Context
	cancel context.CancelFunc
	http   *http.Server
}

func NewServer(w *watcher.Watcher, global *store.GlobalStore, registry *chains.Registry, sender Sender, switcher Switcher, opts Options) *Server {
	if opts.SwitchTimeout <= 0 {
		opts.SwitchTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		watcher:  w,
		global:   global,
		registry: registry,
		sender:   sender,
		switcher: switcher,
		opts:     opts,
		clients:  make(map[*websocket.Conn]bool),
		mux:      chi.NewMux(),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.routes()
	s.handler = newCORSHandler(opts.AllowedOrigins, s.mux)
	return s
}

// NewSwitcher binds chain switching to the live wallet session.
func NewSwitcher(conn *store.ConnectionStore, registry *chains.Registry) Switcher {
	return func(ctx context.Context, target uint64) error {
		return wallet.SwitchChain(ctx, conn.Snapshot().Provider, registry, target)
	}
}

func (s *Server) routes() {
	s.mux.Use(zerologMiddleware)
	s.mux.Use(zerologRecoverer)
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.RealIP)
	if s.opts.RatePerMinute > 0 {
		s.mux.Use(httprate.LimitByIP(s.opts.RatePerMinute, time.Minute))
	}

	s.mux.Get("/ws", s.handleWS)
	if s.opts.Metrics != nil {
		s.mux.Handle("/metrics", metrics.Handler(s.opts.Metrics))
	}

	s.mux.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/status", s.handleStatus)
		r.Get("/chains", s.handleChains)
		r.Get("/accounts/{chainID}/{address}", s.handleAccount)
		if s.opts.Native != nil {
			r.Get("/accounts/{chainID}/{address}/native", s.handleNativeBalance)
		}
		r.Post("/send", s.handleSend)
		r.Get("/send/status", s.handleSendStatus)
		r.Post("/switch", s.handleSwitch)
	})
}

// Handler returns the full HTTP handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(port int) error {
	go s.listenToWatcher()

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	Logger.Info().Int("port", port).Msg("API server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and cancels running sends started through the
// API.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.clients[conn] = true
	// Send initial state
	initErr := conn.WriteJSON(message{Type: "initial", Data: s.status()})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()
	if initErr != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher() {
	sub := s.watcher.Subscribe()
	defer s.watcher.Unsubscribe(sub)

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(event)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) broadcast(event watcher.Event) {
	msg := eventMessage(event)

	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(msg); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
