package realtime

import (
	"sync"
)

// Hub is the room-membership table: conversation id to the set of peers
// currently joined. Membership mutates only on join/leave/detach and is read
// only at broadcast time; no other component touches it.
type Hub struct {
	mu        sync.RWMutex
	peers     map[string]Peer                // peer id -> peer
	rooms     map[string]map[string]Peer     // conversation id -> peer id -> peer
	peerRooms map[string]map[string]struct{} // peer id -> set of conversation ids
}

// NewHub constructs an initialized Hub.
func NewHub() *Hub {
	return &Hub{
		peers:     make(map[string]Peer),
		rooms:     make(map[string]map[string]Peer),
		peerRooms: make(map[string]map[string]struct{}),
	}
}

// Attach registers a peer. A user may hold several live connections at once;
// each is tracked independently.
func (h *Hub) Attach(p Peer) {
	h.mu.Lock()
	h.peers[p.ID()] = p
	h.peerRooms[p.ID()] = make(map[string]struct{})
	h.mu.Unlock()
}

// Detach removes the peer and all its room memberships.
func (h *Hub) Detach(p Peer) {
	h.mu.Lock()
	for conversationID := range h.peerRooms[p.ID()] {
		h.leaveLocked(conversationID, p.ID())
	}
	delete(h.peerRooms, p.ID())
	delete(h.peers, p.ID())
	h.mu.Unlock()
}

// Join adds the peer to the conversation room. Unknown peers are ignored.
func (h *Hub) Join(conversationID string, p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[p.ID()]; !ok {
		return
	}

	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]Peer)
		h.rooms[conversationID] = room
	}
	room[p.ID()] = p
	h.peerRooms[p.ID()][conversationID] = struct{}{}
}

// Leave removes the peer from the conversation room.
func (h *Hub) Leave(conversationID string, p Peer) {
	h.mu.Lock()
	h.leaveLocked(conversationID, p.ID())
	delete(h.peerRooms[p.ID()], conversationID)
	h.mu.Unlock()
}

// InRoom reports whether the peer has joined the conversation room.
func (h *Hub) InRoom(conversationID string, p Peer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][p.ID()]
	return ok
}

// Broadcast writes payload to every member of the conversation room.
// excludeUserID, when non-empty, skips every connection of that user.
// Returns the number of deliveries.
func (h *Hub) Broadcast(conversationID string, payload []byte, excludeUserID string) int {
	h.mu.RLock()
	room := h.rooms[conversationID]
	if len(room) == 0 {
		h.mu.RUnlock()
		return 0
	}

	delivered := 0
	for _, p := range room {
		if excludeUserID != "" && p.UserID() == excludeUserID {
			continue
		}
		if err := p.Send(payload); err == nil {
			delivered++
		}
	}
	h.mu.RUnlock()
	return delivered
}

func (h *Hub) leaveLocked(conversationID, peerID string) {
	room := h.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, peerID)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}
