// Package httpapi implements the HTTP Route Handlers (C6): translating
// requests into actions on the Client Registry and Snapshot Rendezvous, and
// owning the one route that escapes the normal request/response cycle to
// stream frames directly over a captured socket.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/capture"
	"github.com/dgnorth/mjpgd/device"
	"github.com/dgnorth/mjpgd/snapshot"
	"github.com/dgnorth/mjpgd/stream"
)

// Server wires the Client Registry, Snapshot Rendezvous, and Device Context
// into a chi router. It also owns the Capture Loop's lifecycle: the loop
// starts on the first MJPEG client and is torn down when the registry empties
// or the server shuts down.
type Server struct {
	log        *zap.Logger
	dev        *device.Context
	registry   *stream.Registry
	rendezvous *snapshot.Rendezvous
	events     *eventBus
	cameraPath string

	router *chi.Mux

	loopMu      sync.Mutex
	loopRunning bool
	loopCancel  context.CancelFunc
	loopDone    chan struct{}
}

// New builds a Server over an already-open Device Context. The Capture Loop
// is not started until the first client connects to /mjpg.
func New(log *zap.Logger, dev *device.Context, cameraPath string) *Server {
	s := &Server{
		log:        log,
		dev:        dev,
		cameraPath: cameraPath,
		events:     newEventBus(log),
	}
	s.registry = stream.NewRegistry(log, func() { framesDispatched.Inc() })
	s.rendezvous = snapshot.NewRendezvous(log)
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/mjpg", s.handleMJPG)
	r.Get("/full_res", s.handleFullRes)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/events", s.events.handle)

	return r
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// ensureCaptureLoop starts the Capture Loop if it is not already running.
// Called with the registry transitioning from empty to non-empty (§4.3).
func (s *Server) ensureCaptureLoop() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.loopRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	s.loopRunning = true
	s.loopDone = make(chan struct{})

	loop := capture.New(s.log, s.dev, s.registry, s.rendezvous, func(outcome string) {
		snapshotOutcomes.WithLabelValues(outcome).Inc()
	})

	go func() {
		defer close(s.loopDone)
		if err := loop.Run(ctx); err != nil {
			s.log.Error("capture loop exited with error", zap.Error(err))
		}
		s.loopMu.Lock()
		s.loopRunning = false
		s.loopMu.Unlock()
	}()
}

// captureFullRes services one /full_res request. It decides whether the
// Capture Loop is running and, if not, performs the synchronous snapshot
// protocol itself — all under loopMu, so that decision is atomic with
// ensureCaptureLoop's own running check. Without this, a /full_res request
// could observe the loop as not-running and start driving the Device
// Context directly at the same moment handleMJPG's 0→1 transition spawns
// the Capture Loop goroutine, putting two goroutines on the unsynchronized
// device at once (§5).
func (s *Server) captureFullRes(out *[]byte) error {
	s.loopMu.Lock()
	if s.loopRunning {
		s.loopMu.Unlock()
		return s.rendezvous.Capture(true, nil, out)
	}
	defer s.loopMu.Unlock()

	sync := capture.NewSynchronous(s.log, s.dev)
	return s.rendezvous.Capture(false, sync, out)
}

// Shutdown stops the Capture Loop, if running, and waits for it to exit. It
// does not close registered clients: their connections stay open until a send
// to them fails or the process exits. It does not close the Device Context; that remains the caller's
// responsibility once Shutdown returns, per §5's ownership rule.
func (s *Server) Shutdown() {
	s.loopMu.Lock()
	cancel := s.loopCancel
	done := s.loopDone
	s.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
