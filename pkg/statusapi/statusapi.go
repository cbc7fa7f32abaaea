// Package statusapi is an optional HTTP status/control surface bolted
// onto the supervisor, entirely off the single-lock hot path: it only
// ever reads an Engine's Snapshot or calls its exported handlers, never
// holding the lock itself. One gin handler method per route, each
// returning gin.H JSON; the websocket side upgrades a connection then
// loops on a per-connection send channel, broadcasting periodic
// volume/mute snapshots to every subscriber.
package statusapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/corvidae/cecbridge/pkg/bridgeengine"
	"github.com/corvidae/cecbridge/pkg/logging"
)

const pushInterval = 1 * time.Second

// Server exposes GET /status and GET /ws against a running Engine.
type Server struct {
	engine *bridgeengine.Engine
	log    *logging.Logger

	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan bridgeengine.Snapshot]struct{}
}

// New builds a Server for engine. It does not start listening; call Run.
func New(engine *bridgeengine.Engine, log *logging.Logger) *Server {
	return &Server{
		engine: engine,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		subs: make(map[chan bridgeengine.Snapshot]struct{}),
	}
}

// Run serves the status API on addr until ctx is cancelled. A broadcaster
// goroutine polls the engine's snapshot every pushInterval and fans it out
// to every connected websocket client.
func (s *Server) Run(ctx context.Context, addr string) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/status", s.handleStatus)
	router.GET("/ws", s.handleWebSocket)

	srv := &http.Server{Addr: addr, Handler: router}

	go s.broadcastLoop(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.engine.Snapshot()
	body := gin.H{}
	if snap.Volume != nil {
		body["volume"] = *snap.Volume
	} else {
		body["volume"] = nil
	}
	if snap.Muted != nil {
		body["muted"] = *snap.Muted
	} else {
		body["muted"] = nil
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnf("statusapi", "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := make(chan bridgeengine.Snapshot, 4)
	s.subscribe(ch)
	defer s.unsubscribe(ch)

	conn.WriteJSON(s.engine.Snapshot())

	for snap := range ch {
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

func (s *Server) subscribe(ch chan bridgeengine.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[ch] = struct{}{}
}

func (s *Server) unsubscribe(ch chan bridgeengine.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, ch)
	close(ch)
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.engine.Snapshot()
			s.mu.Lock()
			for ch := range s.subs {
				select {
				case ch <- snap:
				default:
				}
			}
			s.mu.Unlock()
		}
	}
}
