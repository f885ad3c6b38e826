package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bnema/azad-hub/internal/application"
	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/ports"
)

const (
	protocolVersion = 1

	maxFrameBytes     = 1 << 20
	defaultOutboxSize = 64
	helloTimeout      = 10 * time.Second
	writeTimeout      = 10 * time.Second
	disconnectTimeout = 5 * time.Second
)

var (
	errPeerClosed     = errors.New("peer connection closed")
	errPeerOutboxFull = errors.New("peer outbox full")
)

type helloFrame struct {
	Type  string         `json:"type"`
	Name  string         `json:"name"`
	TabID *domain.PeerID `json:"tab_id,omitempty"`
}

type welcomeFrame struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
}

// peerConn is the hub's send handle on one extension WebSocket. Send only
// queues the frame; a writer goroutine drains the outbox so a peer that stops
// reading never holds up the hub. A peer whose outbox overflows is closed.
type peerConn struct {
	conn   *websocket.Conn
	logger *zap.Logger

	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

var _ ports.Channel = (*peerConn)(nil)

func newPeerConn(conn *websocket.Conn, outboxSize int, logger *zap.Logger) *peerConn {
	p := &peerConn{
		conn:   conn,
		logger: logger,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}
	go p.writePump()
	return p
}

func (p *peerConn) Send(payload []byte) error {
	select {
	case <-p.done:
		return errPeerClosed
	default:
	}

	select {
	case p.outbox <- payload:
		return nil
	default:
		_ = p.Close()
		return errPeerOutboxFull
	}
}

func (p *peerConn) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Send(payload)
}

func (p *peerConn) writePump() {
	for {
		select {
		case <-p.done:
			return
		case payload := <-p.outbox:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				p.logger.Debug("peer write failed", zap.Error(err))
				_ = p.Close()
				return
			}
		}
	}
}

func (p *peerConn) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.conn.Close()
	})
	return err
}

func (s *Server) handlePeer(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("peer upgrade failed", zap.Error(err))
		return
	}

	peer := newPeerConn(conn, s.cfg.PeerOutboxSize, s.logger)
	s.track(peer)
	defer func() {
		s.untrack(peer)
		_ = peer.Close()
	}()

	hello, err := readHello(conn)
	if err != nil {
		s.logger.Warn("peer handshake rejected", zap.Error(err))
		return
	}
	role, err := domain.RoleForConnection(hello.Name)
	if err != nil {
		s.logger.Info("ignoring connection", zap.String("name", hello.Name))
		return
	}
	if role == domain.RoleContent && hello.TabID == nil {
		s.logger.Info("ignoring content connection without tab", zap.String("name", hello.Name))
		return
	}
	if err := peer.sendJSON(welcomeFrame{Type: "welcome", Version: protocolVersion}); err != nil {
		s.logger.Debug("peer welcome failed", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	session, err := s.hub.Connect(ctx, application.Connection{Name: hello.Name, TabID: hello.TabID, Channel: peer})
	if err != nil {
		s.logger.Info("peer not attached", zap.String("name", hello.Name), zap.Error(err))
		return
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()
		if err := s.hub.Disconnect(dctx, session); err != nil {
			s.logger.Debug("peer disconnect not delivered", zap.String("session_id", session.ID), zap.Error(err))
		}
	}()

	s.readFrames(ctx, conn, session)
}

func (s *Server) readFrames(ctx context.Context, conn *websocket.Conn, session *application.Session) {
	conn.SetReadLimit(maxFrameBytes)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("peer read ended", zap.String("session_id", session.ID), zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if err := s.hub.Deliver(ctx, session, data); err != nil {
			s.logger.Debug("peer frame not delivered", zap.String("session_id", session.ID), zap.Error(err))
			return
		}
	}
}

func readHello(conn *websocket.Conn) (helloFrame, error) {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return helloFrame{}, fmt.Errorf("read hello: %w", err)
	}
	var hello helloFrame
	if err := json.Unmarshal(data, &hello); err != nil {
		return helloFrame{}, fmt.Errorf("parse hello: %w", err)
	}
	if strings.ToLower(strings.TrimSpace(hello.Type)) != "hello" {
		return helloFrame{}, fmt.Errorf("expected hello, got %q", hello.Type)
	}
	return hello, nil
}
