package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/azad-hub/internal/application"
	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/logging"
)

const (
	DefaultListenAddr = "127.0.0.1:17333"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Hub is the part of the application hub the transport drives.
type Hub interface {
	Connect(ctx context.Context, conn application.Connection) (*application.Session, error)
	Disconnect(ctx context.Context, session *application.Session) error
	Deliver(ctx context.Context, session *application.Session, raw []byte) error
	HandleExternal(ctx context.Context, senderID string, raw []byte) (domain.ExternalResponse, bool, error)
	HandleContextMenu(ctx context.Context, click domain.ContextMenuClick) error
	HandleRuntimeMessage(ctx context.Context, raw []byte, tabID *domain.PeerID) error
	Snapshot(ctx context.Context) (application.Snapshot, error)
}

var _ Hub = (*application.Hub)(nil)

type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	// PeerOutboxSize bounds the frames queued for one peer before it is dropped.
	PeerOutboxSize int
}

type Options struct {
	// HostHandler is mounted at /host when set.
	HostHandler http.Handler
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// Server exposes the hub to the extension over WebSocket and plain HTTP.
type Server struct {
	cfg      Config
	hub      Hub
	logger   *zap.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader

	peersMu sync.Mutex
	peers   map[*peerConn]struct{}
}

func NewServer(cfg Config, hub Hub, opts Options) (*Server, error) {
	if hub == nil {
		return nil, errors.New("hub is nil")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.PeerOutboxSize <= 0 {
		cfg.PeerOutboxSize = defaultOutboxSize
	}
	s := &Server{
		cfg:    cfg,
		hub:    hub,
		logger: logging.OrNop(opts.Logger).Named("transport"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[*peerConn]struct{}),
	}
	s.engine = s.newEngine(opts)
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) newEngine(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.Use(cors.New(s.corsConfig()))

	engine.GET("/ws", s.handlePeer)
	engine.POST("/external", s.handleExternal)
	engine.GET("/context-menu", s.handleContextMenuDescriptor)
	engine.POST("/context-menu", s.handleContextMenuClick)
	engine.POST("/runtime", s.handleRuntime)
	engine.GET("/status", s.handleStatus)
	engine.GET("/healthz", s.handleHealth)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if opts.HostHandler != nil {
		engine.GET("/host", gin.WrapH(opts.HostHandler))
	}

	return engine
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", extensionIDHeader, tabIDHeader}
	cfg.AllowWebSockets = true

	allowed := make([]string, 0, len(s.cfg.AllowedOrigins))
	for _, origin := range s.cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	cfg.AllowOriginFunc = func(origin string) bool {
		if strings.HasPrefix(origin, "chrome-extension://") {
			return true
		}
		for _, candidate := range allowed {
			if candidate == origin {
				return true
			}
		}
		return false
	}
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// ListenAndServe serves until ctx is done, then shuts the HTTP server down
// and closes every open peer connection.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return multierr.Combine(httpSrv.Shutdown(shutdownCtx), s.closePeers())
	})

	return g.Wait()
}

func (s *Server) track(p *peerConn) {
	s.peersMu.Lock()
	s.peers[p] = struct{}{}
	s.peersMu.Unlock()
}

func (s *Server) untrack(p *peerConn) {
	s.peersMu.Lock()
	delete(s.peers, p)
	s.peersMu.Unlock()
}

func (s *Server) closePeers() error {
	s.peersMu.Lock()
	peers := make([]*peerConn, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.peersMu.Unlock()

	var err error
	for _, p := range peers {
		err = multierr.Append(err, p.Close())
	}
	return err
}
