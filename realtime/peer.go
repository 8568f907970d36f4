package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nls08/NLS-Portal-sub001/logging"
)

// Sink is the write side of a connection. *websocket.Conn satisfies it.
type Sink interface {
	Write(p []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Identity is what a listener told us about itself.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Peer is one live connection. Frames are queued on a bounded outbox and written by
// the peer's own goroutine, so a slow connection only ever hurts itself.
type Peer struct {
	ID string

	sink         Sink
	out          chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration

	mu       sync.Mutex
	identity Identity
	pinned   bool
}

func newPeer(sink Sink, outbox int, writeTimeout time.Duration) *Peer {
	p := &Peer{
		ID:           uuid.NewString(),
		sink:         sink,
		out:          make(chan []byte, outbox),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	go p.writeLoop()
	return p
}

func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.out:
			if p.writeTimeout > 0 {
				_ = p.sink.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			}
			if _, err := p.sink.Write(frame); err != nil {
				logging.Logger.Debugf("Event ID: WS_WRITE_FAILED, Description: Closing peer %s after write error: %v", p.ID, err)
				p.Close()
				return
			}
		}
	}
}

// enqueue offers frame without blocking. It reports false when the peer is closed
// or its outbox is full.
func (p *Peer) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

func (p *Peer) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close stops the writer and closes the connection. Safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.sink.Close()
	})
}

func (p *Peer) Identity() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

// identify records listener metadata. A pinned user id (from authentication) cannot
// be replaced by the listener.
func (p *Peer) identify(id Identity, pin bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pinned && !pin {
		id.UserID = p.identity.UserID
	}
	if id.Name == "" {
		id.Name = p.identity.Name
	}
	p.identity = id
	if pin {
		p.pinned = true
	}
}
