package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/commit-reveal-sequencer/election"
	"github.com/vocdoni/commit-reveal-sequencer/registry"
	stg "github.com/vocdoni/commit-reveal-sequencer/storage"
	"github.com/vocdoni/commit-reveal-sequencer/verify"
	"github.com/vocdoni/commit-reveal-sequencer/voting"
	"go.vocdoni.io/dvote/log"
)

// APIConfig type represents the configuration for the API HTTP server.
// It includes the host, port and the components the handlers work on.
type APIConfig struct {
	Host     string
	Port     int // 0 lets the OS pick a free port
	Storage  *stg.Storage
	Machine  *election.Machine
	Registry *registry.Registry
	Engine   *voting.Engine
	Verifier *verify.Service
}

// API type represents the API HTTP server.
type API struct {
	router   *chi.Mux
	server   *http.Server
	listener net.Listener
	storage  *stg.Storage
	machine  *election.Machine
	registry *registry.Registry
	engine   *voting.Engine
	verifier *verify.Service
}

// New creates a new API instance with the given configuration and starts
// serving HTTP requests in the background.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	if conf.Machine == nil || conf.Registry == nil || conf.Engine == nil || conf.Verifier == nil {
		return nil, fmt.Errorf("missing API components")
	}
	a := &API{
		storage:  conf.Storage,
		machine:  conf.Machine,
		registry: conf.Registry,
		engine:   conf.Engine,
		verifier: conf.Verifier,
	}

	// Initialize router
	a.initRouter()

	ln, err := net.Listen("tcp", net.JoinHostPort(conf.Host, fmt.Sprintf("%d", conf.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on.
func (a *API) Addr() string {
	return a.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for the in-flight requests.
func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	handlers := []struct {
		method   string
		endpoint string
		fn       http.HandlerFunc
	}{
		{http.MethodGet, PingEndpoint, func(w http.ResponseWriter, r *http.Request) { httpWriteOK(w) }},
		// elections
		{http.MethodPost, ElectionsEndpoint, a.newElection},
		{http.MethodGet, ElectionsEndpoint, a.elections},
		{http.MethodGet, ElectionEndpoint, a.election},
		{http.MethodPut, ElectionCandidatesEndpoint, a.setCandidates},
		{http.MethodPut, ElectionOpenEndpoint, a.openElection},
		{http.MethodPut, ElectionCloseEndpoint, a.closeElection},
		{http.MethodPut, ElectionTallyEndpoint, a.tallyElection},
		{http.MethodGet, ElectionTallyEndpoint, a.electionTally},
		{http.MethodGet, ElectionAuditEndpoint, a.electionAudit},
		// voters
		{http.MethodPost, VotersBulkEndpoint, a.bulkRegister},
		{http.MethodPost, VotersCSVEndpoint, a.csvRegister},
		{http.MethodGet, VotersEndpoint, a.voters},
		{http.MethodGet, VoterCheckEndpoint, a.checkEligibility},
		// votes
		{http.MethodPost, VotesEndpoint, a.commit},
		{http.MethodPost, VotesRevealEndpoint, a.reveal},
		{http.MethodPost, VotesRevealCheckEndpoint, a.checkReveal},
		{http.MethodGet, VotesVerifyEndpoint, a.verifyVote},
	}
	for _, h := range handlers {
		log.Infow("register handler", "endpoint", h.endpoint, "method", h.method)
		a.router.Method(h.method, h.endpoint, h.fn)
	}
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	if log.Level() == log.LogLevelDebug {
		a.router.Use(middleware.Logger)
	}
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
