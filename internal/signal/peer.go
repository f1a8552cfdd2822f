package signal

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Conn is the subset of *websocket.Conn used by a peer.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Peer struct {
	conn     Conn
	hub      *Hub
	log      *log.Logger
	roomCode string
	userId   string
	username string
	send     chan *Signal
	stop     chan struct{}
	stopOnce sync.Once
}

func NewPeer(conn Conn, hub *Hub, l *log.Logger, roomCode, userId, username string) *Peer {
	return &Peer{
		conn:     conn,
		hub:      hub,
		log:      l,
		roomCode: roomCode,
		userId:   userId,
		username: username,
		send:     make(chan *Signal, 256),
		stop:     make(chan struct{}),
	}
}

// Serve registers the peer and runs its pumps until the connection closes.
func (p *Peer) Serve() {
	p.hub.Register(p)
	go p.Write()
	p.Read()
}

func (p *Peer) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case sig := <-p.send:
			raw, err := json.Marshal(sig)
			if err != nil {
				p.log.Println("signal: serialize:", err)
				continue
			}

			if !p.write(websocket.TextMessage, raw) {
				return
			}
		case <-p.stop:
			p.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !p.write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (p *Peer) Read() {
	defer func() {
		p.hub.Unregister(p)
		p.stopPeer()
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error { p.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				p.log.Printf("signal: read: %v", err)
			}
			return
		}

		var sig Signal
		if err := json.Unmarshal(raw, &sig); err != nil {
			p.queue(errorSignal("invalid message"))
			continue
		}

		switch {
		case sig.Type.relayable():
			p.hub.Relay(p, &sig)
		case sig.Type == SignalLeave:
			return
		default:
			p.queue(errorSignal("unsupported signal type: " + string(sig.Type)))
		}
	}
}

func (p *Peer) queue(sig *Signal) bool {
	select {
	case p.send <- sig:
	default:
		p.log.Printf("signal: send buffer full for %s", p.userId)
		return false
	}

	return true
}

func (p *Peer) write(msgType int, data []byte) bool {
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := p.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			p.log.Printf("signal: write: %v", err)
		}
		return false
	}

	return true
}

func (p *Peer) stopPeer() {
	p.stopOnce.Do(func() { close(p.stop) })
}
