package wserv

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peershare/swapd/pkg/swapd/wire"
)

const writeTimeout = 30 * time.Second

// PeerConn is one connected peer. Websocket connections allow a single
// writer, so every write goes through writeMu; the hub's read loop is the
// single reader.
type PeerConn struct {
	Username string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *PeerConn) writeJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return wire.WriteTypedMessage(p.conn, v)
}

func (p *PeerConn) writeChunk(b []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return p.conn.WriteMessage(websocket.BinaryMessage, b)
}
