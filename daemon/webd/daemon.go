package webd

import (
	"context"
	"errors"
	"github.com/ethereum/go-ethereum/event"
	"github.com/gorilla/mux"
	"github.com/jellydator/ttlcache/v3"
	"github.com/olahol/melody"
	"github.com/rotblauer/velofuse/fusion"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/source"
	"github.com/rotblauer/velofuse/types"
	"github.com/rotblauer/velofuse/types/estimate"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const latestKey = "latest"

// WebDaemon serves a fusion engine over HTTP and a websocket.
type WebDaemon struct {
	Config *params.WebDaemonConfig
	Engine *fusion.Engine

	// Pushed, when set, is fed by POST /push. It should be the engine's source.
	Pushed *source.Manual

	logger         *slog.Logger
	started        time.Time
	melodyInstance *melody.Melody
	router         *mux.Router
	latest         *ttlcache.Cache[string, estimate.FusedEstimate]
	dedupe         func(types.Record) bool

	pumpOnce sync.Once
	stopOnce sync.Once
	quit     chan struct{}
	pumpDone chan struct{}
}

func NewWebDaemon(config *params.WebDaemonConfig, engine *fusion.Engine, pushed *source.Manual) (*WebDaemon, error) {
	if config == nil {
		config = params.DefaultWebDaemonConfig()
	}
	if engine == nil {
		return nil, errors.New("web daemon requires an engine")
	}
	return &WebDaemon{
		Config: config,
		Engine: engine,
		Pushed: pushed,

		logger:  slog.With("d", "web"),
		started: time.Now(),
		latest: ttlcache.New[string, estimate.FusedEstimate](
			ttlcache.WithTTL[string, estimate.FusedEstimate](config.EstimateTTL),
			// Polling must not keep a stale estimate alive.
			ttlcache.WithDisableTouchOnHit[string, estimate.FusedEstimate](),
		),
		dedupe:   types.NewDedupeLRUFunc(config.PushDedupeSize),
		quit:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}, nil
}

// Run serves until ctx is done or the server fails, returning any server error.
func (s *WebDaemon) Run(ctx context.Context) error {
	if s.router == nil {
		s.router = s.NewRouter()
	}
	listener, err := net.Listen(s.Config.Network, s.Config.Address)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: s.router}

	s.startPump()
	go s.latest.Start()
	defer s.latest.Stop()

	if s.Config.AutoStart {
		if err := s.Engine.Start(); err != nil {
			s.logger.Error("Failed to start tracking", "error", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("Starting web daemon", "network", s.Config.Network, "address", listener.Addr().String())
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		s.stopPump()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Stopping web daemon")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Server shutdown", "error", err)
	}
	s.Engine.Stop()
	s.stopPump()
	if err := s.melodyInstance.Close(); err != nil && !errors.Is(err, melody.ErrClosed) {
		s.logger.Warn("Websocket close", "error", err)
	}
	return nil
}

func (s *WebDaemon) NewRouter() *mux.Router {
	s.initMelody()

	router := mux.NewRouter().StrictSlash(false)
	router.Use(loggingMiddleware(s.logger))

	apiRoutes := router.NewRoute().Subrouter()

	// All API routes use permissive CORS settings.
	apiRoutes.Use(permissiveCorsMiddleware)

	// /ping is a simple server healthcheck endpoint
	apiRoutes.Path("/ping").HandlerFunc(pingPong)

	apiRoutes.Path("/socket").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.melodyInstance.HandleRequest(w, r)
	})

	apiJSONRoutes := apiRoutes.NewRoute().Subrouter()
	apiJSONRoutes.Use(contentTypeMiddlewareFunc("application/json"))

	apiJSONRoutes.Path("/status").HandlerFunc(s.statusReport).Methods(http.MethodGet)
	apiJSONRoutes.Path("/estimate").HandlerFunc(s.handleEstimate).Methods(http.MethodGet)
	apiJSONRoutes.Path("/raw").HandlerFunc(s.handleRaw).Methods(http.MethodGet)

	controlRoutes := apiJSONRoutes.NewRoute().Subrouter()
	controlRoutes.Use(tokenAuthenticationMiddleware)

	controlRoutes.Path("/start").HandlerFunc(s.handleStart).Methods(http.MethodPost)
	controlRoutes.Path("/stop").HandlerFunc(s.handleStop).Methods(http.MethodPost)
	controlRoutes.Path("/recalibrate").HandlerFunc(s.handleRecalibrate).Methods(http.MethodPost)
	controlRoutes.Path("/push").HandlerFunc(s.handlePush).Methods(http.MethodPost)

	return router
}

// startPump forwards engine estimates and errors to the cache and websocket clients.
func (s *WebDaemon) startPump() {
	s.pumpOnce.Do(func() {
		estimates := make(chan estimate.FusedEstimate, 16)
		failures := make(chan error, 4)
		estSub := s.Engine.SubscribeEstimates(estimates)
		errSub := s.Engine.SubscribeErrors(failures)
		go func() {
			defer close(s.pumpDone)
			defer estSub.Unsubscribe()
			defer errSub.Unsubscribe()
			s.pump(estimates, failures, estSub, errSub)
		}()
	})
}

// stopPump stops forwarding and waits for the forwarder to exit. It is safe to call
// whether or not the pump was started.
func (s *WebDaemon) stopPump() {
	s.stopOnce.Do(func() { close(s.quit) })
	s.pumpOnce.Do(func() { close(s.pumpDone) })
	<-s.pumpDone
}

func (s *WebDaemon) pump(estimates <-chan estimate.FusedEstimate, failures <-chan error, estSub, errSub event.Subscription) {
	for {
		select {
		case <-s.quit:
			return
		case est := <-estimates:
			s.latest.Set(latestKey, est, ttlcache.DefaultTTL)
			s.broadcast(newEstimateMessage(est))
		case err := <-failures:
			s.broadcast(newErrorMessage(err))
		case err := <-estSub.Err():
			if err != nil {
				s.logger.Error("Estimate subscription failed", "error", err)
			}
			return
		case err := <-errSub.Err():
			if err != nil {
				s.logger.Error("Error subscription failed", "error", err)
			}
			return
		}
	}
}

// Latest returns the last published estimate, unless it has gone stale.
func (s *WebDaemon) Latest() (estimate.FusedEstimate, bool) {
	item := s.latest.Get(latestKey)
	if item == nil {
		return estimate.FusedEstimate{}, false
	}
	return item.Value(), true
}
