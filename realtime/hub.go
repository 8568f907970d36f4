// Package realtime fans notification events out to connected listeners.
//
// Delivery is at-most-once: there is no replay, so a listener that connects after an
// event was broadcast never sees it, and a listener whose outbox is full misses it.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/metrics"
	"github.com/nls08/NLS-Portal-sub001/models"
)

const (
	DefaultOutboxSize   = 64
	DefaultWriteTimeout = 5 * time.Second
)

type Hub struct {
	mu           sync.Mutex
	peers        map[*Peer]struct{}
	outboxSize   int
	writeTimeout time.Duration
	closed       bool
}

func NewHub(outboxSize int, writeTimeout time.Duration) *Hub {
	if outboxSize < 1 {
		outboxSize = DefaultOutboxSize
	}
	return &Hub{
		peers:        make(map[*Peer]struct{}),
		outboxSize:   outboxSize,
		writeTimeout: writeTimeout,
	}
}

// Connect wraps sink in a Peer and registers it.
func (h *Hub) Connect(sink Sink) *Peer {
	p := newPeer(sink, h.outboxSize, h.writeTimeout)
	h.Register(p)
	return p
}

func (h *Hub) Register(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		p.Close()
		return
	}
	h.peers[p] = struct{}{}
	metrics.RealtimePeers.Set(float64(len(h.peers)))
	logging.Logger.Debugf("Event ID: WS_PEER_REGISTERED, Description: Peer %s registered, %d connected", p.ID, len(h.peers))
}

func (h *Hub) Unregister(p *Peer) {
	h.mu.Lock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		metrics.RealtimePeers.Set(float64(len(h.peers)))
	}
	h.mu.Unlock()
	p.Close()
}

func (h *Hub) Identify(p *Peer, id Identity) {
	p.identify(id, false)
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Broadcast offers event to every open peer. It never blocks on a peer.
func (h *Hub) Broadcast(event models.Event) {
	h.send(event, func(*Peer) bool { return true })
}

// Notify offers event only to peers identified as userID.
func (h *Hub) Notify(userID string, event models.Event) {
	h.send(event, func(p *Peer) bool { return p.Identity().UserID == userID })
}

func (h *Hub) send(event models.Event, want func(*Peer) bool) {
	frame, err := json.Marshal(event)
	if err != nil {
		logging.Logger.Errorf("Event ID: WS_ENCODE_FAILED, Description: Failed to encode %s event: %v", event.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		if !want(p) {
			continue
		}
		if p.enqueue(frame) {
			metrics.BroadcastFrames.WithLabelValues("queued").Inc()
			continue
		}
		metrics.BroadcastFrames.WithLabelValues("dropped").Inc()
		logging.Logger.Warnf("Event ID: WS_FRAME_DROPPED, Description: Dropped %s event for peer %s (closed or outbox full)", event.Type, p.ID)
	}
}

// Close disconnects every peer and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[*Peer]struct{})
	h.closed = true
	metrics.RealtimePeers.Set(0)
	h.mu.Unlock()

	for p := range peers {
		p.Close()
	}
	logging.Logger.Infof("Event ID: WS_HUB_CLOSED, Description: Realtime hub closed, %d peer(s) disconnected", len(peers))
}
