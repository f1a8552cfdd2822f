// Package signal relays WebRTC signaling messages between peers connected
// to the same room. The set of connected peers is process-local and best
// effort: it is only used for display and never as presence.
package signal

import (
	"log"
	"sort"
	"sync"

	"github.com/npezzotti/go-echo/internal/stats"
)

type Hub struct {
	log   *log.Logger
	stats stats.StatsProvider
	mu    sync.RWMutex
	rooms map[string]map[string]*Peer
}

func NewHub(logger *log.Logger, st stats.StatsProvider) *Hub {
	return &Hub{
		log:   logger,
		stats: st,
		rooms: make(map[string]map[string]*Peer),
	}
}

// Register adds p to its room, replacing an older connection of the same
// user, and announces it to the other peers.
func (h *Hub) Register(p *Peer) {
	h.mu.Lock()
	peers, ok := h.rooms[p.roomCode]
	if !ok {
		peers = make(map[string]*Peer)
		h.rooms[p.roomCode] = peers
	}
	old := peers[p.userId]
	peers[p.userId] = p
	active := activeUsers(peers)
	h.mu.Unlock()

	if old != nil {
		old.stopPeer()
	} else {
		h.stats.Incr(stats.ActiveSignalPeers)
	}

	h.log.Printf("signal: %s joined %s", p.userId, p.roomCode)
	p.queue(&Signal{Type: SignalPeers, RoomCode: p.roomCode, ActiveUsers: active})
	h.broadcast(p, &Signal{
		Type:        SignalJoin,
		RoomCode:    p.roomCode,
		UserId:      p.userId,
		Username:    p.username,
		ActiveUsers: active,
	})
}

// Unregister removes p unless it has already been replaced.
func (h *Hub) Unregister(p *Peer) {
	h.mu.Lock()
	peers := h.rooms[p.roomCode]
	if peers == nil || peers[p.userId] != p {
		h.mu.Unlock()
		return
	}
	delete(peers, p.userId)
	if len(peers) == 0 {
		delete(h.rooms, p.roomCode)
	}
	active := activeUsers(peers)
	h.mu.Unlock()

	h.stats.Decr(stats.ActiveSignalPeers)
	h.log.Printf("signal: %s left %s", p.userId, p.roomCode)
	h.broadcast(p, &Signal{
		Type:        SignalLeave,
		RoomCode:    p.roomCode,
		UserId:      p.userId,
		Username:    p.username,
		ActiveUsers: active,
	})
}

// Relay forwards sig from p to its target, or to every other peer in the
// room when no target is set.
func (h *Hub) Relay(from *Peer, sig *Signal) {
	sig.RoomCode = from.roomCode
	sig.UserId = from.userId
	sig.Username = from.username

	if sig.TargetUserId == "" {
		h.broadcast(from, sig)
		return
	}

	h.mu.RLock()
	target := h.rooms[from.roomCode][sig.TargetUserId]
	h.mu.RUnlock()

	if target == nil {
		from.queue(errorSignal("peer not connected: " + sig.TargetUserId))
		return
	}
	target.queue(sig)
}

func (h *Hub) broadcast(from *Peer, sig *Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for userId, p := range h.rooms[from.roomCode] {
		if userId == from.userId {
			continue
		}
		p.queue(sig)
	}
}

// Peers returns the user ids connected to roomCode on this instance.
func (h *Hub) Peers(roomCode string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return activeUsers(h.rooms[roomCode])
}

// Shutdown disconnects every peer.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[string]*Peer)
	h.mu.Unlock()

	for _, peers := range rooms {
		for _, p := range peers {
			p.stopPeer()
			h.stats.Decr(stats.ActiveSignalPeers)
		}
	}
}

func activeUsers(peers map[string]*Peer) []string {
	users := make([]string, 0, len(peers))
	for userId := range peers {
		users = append(users, userId)
	}
	sort.Strings(users)
	return users
}
