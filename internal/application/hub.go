package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/observability"
	"github.com/bnema/azad-hub/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const eventQueueSize = 64

var errHubAlreadyRunning = errors.New("hub is already running")

type HubDeps struct {
	Entitlement ports.EntitlementChecker
	Settings    ports.SettingsStore
	Billing     ports.BillingUI
	Host        ports.Host
	Clock       ports.Clock
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Hub routes messages between the control session and the content peers.
// All of its state is owned by the goroutine running Run; every other entry
// point posts an event to that goroutine. Work that has to wait on an outside
// collaborator runs as a task and posts its outcome back as another event.
type Hub struct {
	registry *PeerRegistry
	periods  *PeriodAggregator
	auth     *AuthorizationCoordinator
	gate     *ExternalRequestGate
	resolver ContextMenuResolver
	host     *HostRequests
	billing  ports.BillingUI
	logger   *zap.Logger
	metrics  *observability.Metrics

	control *Session

	events  chan func()
	stopped chan struct{}
	running atomic.Bool
	tasks   sync.WaitGroup
	taskCtx context.Context
}

type Connection struct {
	Name    string
	TabID   *domain.PeerID
	Channel ports.Channel
}

// Session is the hub's handle on one accepted connection.
type Session struct {
	ID      string
	Role    domain.Role
	PeerID  domain.PeerID
	channel ports.Channel
}

func NewHub(deps HubDeps) (*Hub, error) {
	switch {
	case deps.Entitlement == nil:
		return nil, errors.New("entitlement checker is nil")
	case deps.Settings == nil:
		return nil, errors.New("settings store is nil")
	case deps.Billing == nil:
		return nil, errors.New("billing ui is nil")
	case deps.Host == nil:
		return nil, errors.New("host is nil")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := NewPeerRegistry(logger, deps.Metrics)

	return &Hub{
		registry: registry,
		periods:  NewPeriodAggregator(),
		auth:     NewAuthorizationCoordinator(deps.Entitlement, deps.Settings),
		gate:     NewExternalRequestGate(registry, deps.Clock, logger, deps.Metrics),
		host:     NewHostRequests(deps.Host),
		billing:  deps.Billing,
		logger:   logger.Named("hub"),
		metrics:  deps.Metrics,
		events:   make(chan func(), eventQueueSize),
		stopped:  make(chan struct{}),
		taskCtx:  context.Background(),
	}, nil
}

// Run processes events until ctx is done, then waits for in-flight tasks.
// A hub runs at most once.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return errHubAlreadyRunning
	}

	taskCtx, cancel := context.WithCancel(ctx)
	h.taskCtx = taskCtx
	defer func() {
		cancel()
		close(h.stopped)
		h.tasks.Wait()
	}()

	h.logger.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub stopping", zap.Error(context.Cause(ctx)))
			return nil
		case event := <-h.events:
			event()
		}
	}
}

func (h *Hub) post(ctx context.Context, event func()) error {
	select {
	case h.events <- event:
		return nil
	case <-h.stopped:
		return domain.ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func call[T any](ctx context.Context, h *Hub, fn func() T) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if err := h.post(ctx, func() { reply <- fn() }); err != nil {
		return zero, err
	}

	select {
	case value := <-reply:
		return value, nil
	case <-h.stopped:
		return zero, domain.ErrHubStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) spawn(name string, fn func(ctx context.Context) error) {
	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		if err := fn(h.taskCtx); err != nil {
			h.logger.Error("task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

type attachResult struct {
	session *Session
	err     error
}

// Connect classifies conn by its name and attaches it. Unknown names and
// content connections without a tab are refused. When ctx ends after the
// attach was queued, the session it produces is detached again.
func (h *Hub) Connect(ctx context.Context, conn Connection) (*Session, error) {
	reply := make(chan attachResult, 1)
	err := h.post(ctx, func() {
		session, err := h.attach(conn)
		reply <- attachResult{session: session, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case result := <-reply:
		return result.session, result.err
	case <-h.stopped:
		return nil, domain.ErrHubStopped
	case <-ctx.Done():
		go h.detachAbandoned(reply)
		return nil, ctx.Err()
	}
}

func (h *Hub) detachAbandoned(reply <-chan attachResult) {
	select {
	case result := <-reply:
		if result.session == nil {
			return
		}
		if err := h.post(context.Background(), func() { h.detach(result.session) }); err != nil {
			h.logger.Debug("abandoned session not detached", zap.String("session_id", result.session.ID), zap.Error(err))
		}
	case <-h.stopped:
	}
}

func (h *Hub) Disconnect(ctx context.Context, session *Session) error {
	if session == nil {
		return nil
	}
	return h.post(ctx, func() { h.detach(session) })
}

// Deliver hands one inbound frame from session to the router.
func (h *Hub) Deliver(ctx context.Context, session *Session, raw []byte) error {
	if session == nil {
		return errors.New("deliver: nil session")
	}
	frame := append([]byte(nil), raw...)
	return h.post(ctx, func() { h.route(session, frame) })
}

func (h *Hub) HandleExternal(ctx context.Context, senderID string, raw []byte) (domain.ExternalResponse, bool, error) {
	type answer struct {
		response domain.ExternalResponse
		respond  bool
	}

	frame := append([]byte(nil), raw...)
	result, err := call(ctx, h, func() answer {
		response, respond := h.gate.Handle(senderID, frame)
		return answer{response: response, respond: respond}
	})
	if err != nil {
		return domain.ExternalResponse{}, false, err
	}
	return result.response, result.respond, nil
}

func (h *Hub) HandleContextMenu(ctx context.Context, click domain.ContextMenuClick) error {
	return h.post(ctx, func() { h.onContextMenu(click) })
}

// HandleRuntimeMessage accepts a one-shot message that is not tied to a
// connection. tabID is set when a content script sent it.
func (h *Hub) HandleRuntimeMessage(ctx context.Context, raw []byte, tabID *domain.PeerID) error {
	frame := append([]byte(nil), raw...)
	return h.post(ctx, func() { h.onRuntimeMessage(frame, tabID) })
}

func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	return call(ctx, h, func() Snapshot {
		return Snapshot{
			ContentPeers:      h.registry.IDs(),
			ControlConnected:  h.control != nil,
			AdvertisedPeriods: h.periods.Snapshot(),
		}
	})
}

func (h *Hub) attach(conn Connection) (*Session, error) {
	h.logger.Info("new connection", zap.String("name", conn.Name))

	role, err := domain.RoleForConnection(conn.Name)
	if err != nil {
		h.logger.Warn("unknown connection name", zap.String("name", conn.Name))
		return nil, fmt.Errorf("attach %q: %w", conn.Name, err)
	}

	session := &Session{ID: uuid.NewString(), Role: role, channel: conn.Channel}
	switch role {
	case domain.RoleContent:
		if conn.TabID == nil {
			h.logger.Warn("content connection without tab", zap.String("session_id", session.ID))
			return nil, fmt.Errorf("attach %q: %w", conn.Name, domain.ErrMissingTabID)
		}
		session.PeerID = *conn.TabID
		if h.registry.Register(session.PeerID, session.channel) {
			h.logger.Info("content peer replaced", zap.Stringer("peer_id", session.PeerID))
		}
	case domain.RoleControl:
		if h.control != nil {
			h.logger.Info("control session superseded", zap.String("previous_session_id", h.control.ID))
		}
		h.control = session
		h.metrics.SetControlConnected(true)
		h.advertisePeriods()
	}

	return session, nil
}

func (h *Hub) detach(session *Session) {
	switch session.Role {
	case domain.RoleContent:
		if h.registry.Release(session.PeerID, session.channel) {
			h.logger.Info("content peer disconnected", zap.Stringer("peer_id", session.PeerID))
		}
	case domain.RoleControl:
		if h.control == session {
			h.control = nil
			h.metrics.SetControlConnected(false)
			h.logger.Info("control session disconnected", zap.String("session_id", session.ID))
		}
	}
}
