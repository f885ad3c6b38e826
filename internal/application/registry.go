package application

import (
	"fmt"
	"slices"

	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/observability"
	"github.com/bnema/azad-hub/internal/ports"
	"go.uber.org/zap"
)

type BroadcastResult struct {
	Delivered int
	Failed    int
}

type Broadcaster interface {
	Broadcast(payload []byte) BroadcastResult
}

// PeerRegistry tracks live content peers by tab id. It is owned by the hub
// event loop and is not safe for concurrent use.
type PeerRegistry struct {
	peers   map[domain.PeerID]ports.Channel
	logger  *zap.Logger
	metrics *observability.Metrics
}

var _ Broadcaster = (*PeerRegistry)(nil)

func NewPeerRegistry(logger *zap.Logger, metrics *observability.Metrics) *PeerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PeerRegistry{
		peers:   map[domain.PeerID]ports.Channel{},
		logger:  logger.Named("registry"),
		metrics: metrics,
	}
}

// Register installs ch under id, replacing any earlier channel for the same id.
func (r *PeerRegistry) Register(id domain.PeerID, ch ports.Channel) (replaced bool) {
	_, replaced = r.peers[id]
	r.peers[id] = ch
	r.metrics.SetContentPeers(len(r.peers))
	return replaced
}

func (r *PeerRegistry) Unregister(id domain.PeerID) bool {
	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	r.metrics.SetContentPeers(len(r.peers))
	return true
}

// Release unregisters id only while ch is still the channel registered under
// it, so a replaced connection closing late cannot evict its successor.
func (r *PeerRegistry) Release(id domain.PeerID, ch ports.Channel) bool {
	current, ok := r.peers[id]
	if !ok || current != ch {
		return false
	}
	return r.Unregister(id)
}

func (r *PeerRegistry) Lookup(id domain.PeerID) (ports.Channel, error) {
	ch, ok := r.peers[id]
	if !ok {
		return nil, fmt.Errorf("lookup peer %s: %w", id, domain.ErrPeerNotFound)
	}
	return ch, nil
}

// Broadcast sends payload to every registered peer. Each delivery is attempted
// independently; failures are logged and counted, never returned.
func (r *PeerRegistry) Broadcast(payload []byte) BroadcastResult {
	var result BroadcastResult
	for id, ch := range r.peers {
		if err := deliver(ch, payload); err != nil {
			result.Failed++
			r.metrics.IncDeliveryFailure(string(domain.RoleContent))
			r.logger.Debug("broadcast delivery failed", zap.Stringer("peer_id", id), zap.Error(err))
			continue
		}
		result.Delivered++
	}
	return result
}

func (r *PeerRegistry) All() []ports.Channel {
	channels := make([]ports.Channel, 0, len(r.peers))
	for _, id := range r.IDs() {
		channels = append(channels, r.peers[id])
	}
	return channels
}

func (r *PeerRegistry) IDs() []domain.PeerID {
	ids := make([]domain.PeerID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *PeerRegistry) Len() int {
	return len(r.peers)
}

func deliver(ch ports.Channel, payload []byte) (err error) {
	if ch == nil {
		return fmt.Errorf("send: nil channel")
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("send panicked: %v", recovered)
		}
	}()
	return ch.Send(payload)
}
