package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bnema/azad-hub/internal/logging"
	"github.com/bnema/azad-hub/internal/ports"
)

const (
	protocolVersion = 1

	methodRemoveCookie = "cookies.remove"
	methodCreateTab    = "tabs.create"

	helloTimeout   = 10 * time.Second
	defaultTimeout = 15 * time.Second
)

var ErrNotConnected = errors.New("host bridge is not connected")

type Config struct {
	Token   string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	out.Token = strings.TrimSpace(out.Token)
	if out.Timeout <= 0 {
		out.Timeout = defaultTimeout
	}
	return out
}

// Bridge holds the single privileged browser connection and runs the hub's
// cookie and tab operations on it as JSON-RPC calls.
type Bridge struct {
	cfg      Config
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	conn *websocket.Conn

	writeMu sync.Mutex
	calls   *inflight
}

var _ ports.Host = (*Bridge)(nil)

func New(cfg Config, logger *zap.Logger) *Bridge {
	return &Bridge{
		cfg:    cfg.withDefaults(),
		logger: logging.OrNop(logger).Named("host_bridge"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		calls: newInflight(),
	}
}

func (b *Bridge) RemoveCookie(ctx context.Context, cookieURL, cookieName string) error {
	params := struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}{URL: cookieURL, Name: cookieName}
	if err := b.call(ctx, methodRemoveCookie, params); err != nil {
		return fmt.Errorf("remove cookie %q: %w", cookieName, err)
	}
	return nil
}

func (b *Bridge) OpenTab(ctx context.Context, url string) error {
	params := struct {
		URL string `json:"url"`
	}{URL: url}
	if err := b.call(ctx, methodCreateTab, params); err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	return nil
}

// call sends one request and waits for its reply. The host's result body is
// not needed by any operation, so only the error is returned.
func (b *Bridge) call(ctx context.Context, method string, params any) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	id, reply := b.calls.open()
	if err := b.write(conn, rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		b.calls.drop(id)
		return fmt.Errorf("send %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		b.calls.drop(id)
		return ctx.Err()
	}
}

// Close drops the current connection and fails every pending call.
func (b *Bridge) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.calls.failAll(ErrNotConnected)
	b.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// ServeHTTP upgrades the request and runs the hello handshake.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Debug("host bridge upgrade failed", zap.Error(err))
		return
	}
	if err := b.handshake(conn); err != nil {
		b.logger.Warn("host bridge handshake rejected", zap.Error(err))
		_ = conn.Close()
		return
	}
	go b.receive(conn)
}

type helloMessage struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	Client  string `json:"client,omitempty"`
	Version int    `json:"version,omitempty"`
}

type welcomeMessage struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
}

// handshake reads the hello, answers welcome and installs conn, replacing
// any earlier connection.
func (b *Bridge) handshake(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var hello helloMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(hello.Type), "hello") {
		return fmt.Errorf("expected hello, got %q", hello.Type)
	}
	if b.cfg.Token != "" && hello.Token != b.cfg.Token {
		return errors.New("unauthorized")
	}
	_ = conn.SetReadDeadline(time.Time{})

	if err := b.write(conn, welcomeMessage{Type: "welcome", Version: protocolVersion}); err != nil {
		return fmt.Errorf("write welcome: %w", err)
	}

	b.mu.Lock()
	if b.conn != nil {
		_ = b.conn.Close()
		b.calls.failAll(ErrNotConnected)
	}
	b.conn = conn
	b.mu.Unlock()

	b.logger.Info("host bridge connected",
		zap.String("client", strings.TrimSpace(hello.Client)),
		zap.Int("version", hello.Version),
	)
	return nil
}

// receive resolves replies until conn fails, then forgets conn if it is
// still the current one.
func (b *Bridge) receive(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			b.logger.Debug("dropping malformed host frame", zap.Error(err))
			continue
		}
		if resp.JSONRPC != "2.0" || resp.ID == "" {
			continue
		}
		var callErr error
		if resp.Error != nil {
			callErr = fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		b.calls.resolve(resp.ID, callErr)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == conn {
		b.conn = nil
		b.calls.failAll(ErrNotConnected)
		b.logger.Info("host bridge disconnected")
	}
}

func (b *Bridge) write(conn *websocket.Conn, v any) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return conn.WriteJSON(v)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// inflight tracks calls awaiting a reply by request id.
type inflight struct {
	mu      sync.Mutex
	waiting map[string]chan error
}

func newInflight() *inflight {
	return &inflight{waiting: make(map[string]chan error)}
}

func (f *inflight) open() (string, <-chan error) {
	id := uuid.NewString()
	reply := make(chan error, 1)
	f.mu.Lock()
	f.waiting[id] = reply
	f.mu.Unlock()
	return id, reply
}

func (f *inflight) resolve(id string, err error) {
	f.mu.Lock()
	reply, ok := f.waiting[id]
	delete(f.waiting, id)
	f.mu.Unlock()
	if ok {
		reply <- err
	}
}

func (f *inflight) drop(id string) {
	f.mu.Lock()
	delete(f.waiting, id)
	f.mu.Unlock()
}

func (f *inflight) failAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, reply := range f.waiting {
		delete(f.waiting, id)
		reply <- err
	}
}

func (f *inflight) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiting)
}
