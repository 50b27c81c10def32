// Package wserv is swapd's websocket surface: the peer wire protocol over
// which files are requested and served, and the observer event stream that
// broadcasts transfer record changes.
package wserv

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/peershare/swapd/pkg/swapd/wire"
	"github.com/peershare/swapd/pkg/swapdb/model"
)

const helloTimeout = 10 * time.Second

// UploadEnqueuer is the slice of the upload service the hub needs to
// dispatch inbound file requests.
type UploadEnqueuer interface {
	Enqueue(username, filename string) error
}

// Hub tracks connected peers by username and fans transfer events out to
// observers. It implements transfers.Client by streaming chunks back over
// the requesting peer's connection.
type Hub struct {
	mu        sync.RWMutex
	peers     map[string]*PeerConn
	observers map[chan []byte]struct{}

	uploads  UploadEnqueuer
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		peers:     make(map[string]*PeerConn),
		observers: make(map[chan []byte]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// SetUploadService wires in the upload service after construction; the hub
// and the service reference each other.
func (h *Hub) SetUploadService(u UploadEnqueuer) {
	h.uploads = u
}

// ServePeer upgrades the connection, performs the hello handshake, and
// then reads file requests until the peer disconnects.
func (h *Hub) ServePeer(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	msg, err := wire.ReadTypedMessageWithDeadline(conn, helloTimeout)
	if err != nil {
		_ = conn.Close()
		return nil
	}

	hello, ok := msg.(*wire.HelloMsg)
	if !ok || hello.Username == "" {
		_ = wire.WriteTypedMessage(conn, wire.ErrorMsg{MsgType: wire.TypeError, Message: "expected hello"})
		_ = conn.Close()
		return nil
	}

	peer := &PeerConn{Username: hello.Username, conn: conn}

	h.register(peer)
	defer h.unregister(peer)

	_ = peer.writeJSON(wire.HelloAckMsg{MsgType: wire.TypeHelloAck, Username: hello.Username})

	log.WithField("username", peer.Username).Info("Peer connected")

	for {
		msg, err := wire.ReadTypedMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithField("username", peer.Username).Infof("Peer read failed: %s", err)
			}
			break
		}

		switch m := msg.(type) {
		case *wire.RequestFileMsg:
			if err := h.uploads.Enqueue(peer.Username, m.Filename); err != nil {
				_ = peer.writeJSON(wire.ErrorMsg{MsgType: wire.TypeError, Message: err.Error()})
			}
		}
	}

	log.WithField("username", peer.Username).Info("Peer disconnected")

	return nil
}

func (h *Hub) register(peer *PeerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.peers[peer.Username]; ok {
		_ = old.conn.Close()
	}

	h.peers[peer.Username] = peer
}

func (h *Hub) unregister(peer *PeerConn) {
	h.mu.Lock()
	if h.peers[peer.Username] == peer {
		delete(h.peers, peer.Username)
	}
	h.mu.Unlock()

	_ = peer.conn.Close()
}

func (h *Hub) peer(username string) *PeerConn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.peers[username]
}

// ServeEvents upgrades an observer connection and streams transfer events
// until the observer disconnects.
func (h *Hub) ServeEvents(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	events := make(chan []byte, 64)

	h.mu.Lock()
	h.observers[events] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.observers, events)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	// Drain reads so close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, event); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// BroadcastTransfer publishes a transfer record change to all observers.
// Slow observers drop events; the store remains authoritative.
func (h *Hub) BroadcastTransfer(t *model.Transfer) {
	payload, err := json.Marshal(map[string]any{
		"msg_type": "transfer",
		"transfer": t,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for events := range h.observers {
		select {
		case events <- payload:
		default:
		}
	}
}

// PeerCount reports connected peers, for the status API.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.peers)
}
