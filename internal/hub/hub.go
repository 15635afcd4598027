// Package hub is the room registry: it maps live connections to the team
// channels they subscribed to and to their owner's private user channel.
// State is purely in memory and rebuilt as clients reconnect.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/models"
)

// Options tunes per-client resources.
type Options struct {
	SendBuffer     int
	InboundBuffer  int
	MaxMessageSize int64
}

// Hub maintains the set of active clients and their subscriptions.
type Hub struct {
	opts Options
	log  *logger.Logger

	mu sync.RWMutex
	// clients maps each registered client to its team subscriptions.
	clients map[*Client]map[int64]struct{}
	// teams maps a team channel to its subscribers.
	teams map[int64]map[*Client]struct{}
	// users maps a user channel to every connection of that user.
	users map[int64]map[*Client]struct{}

	nextID atomic.Uint64
}

// New creates an empty registry.
func New(opts Options, log *logger.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.InboundBuffer <= 0 {
		opts.InboundBuffer = 16
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = maxMessageSize
	}
	return &Hub{
		opts:    opts,
		log:     log,
		clients: make(map[*Client]map[int64]struct{}),
		teams:   make(map[int64]map[*Client]struct{}),
		users:   make(map[int64]map[*Client]struct{}),
	}
}

// Register adds a client and subscribes it to its user channel.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		return
	}
	h.clients[c] = make(map[int64]struct{})
	addTo(h.users, c.identity.UserID, c)
	h.log.Debug("client registered", "client_id", c.id, "user_id", c.identity.UserID)
}

// Unregister drops every subscription of c and closes its outbound queue.
// It is safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	subs, ok := h.clients[c]
	if ok {
		for teamID := range subs {
			removeFrom(h.teams, teamID, c)
		}
		removeFrom(h.users, c.identity.UserID, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	c.shutdown()
	if ok {
		h.log.Debug("client unregistered", "client_id", c.id, "user_id", c.identity.UserID, "teams", len(subs))
	}
}

// Subscribe adds c to a team channel. It returns false when c is not
// registered. Authorization happens before this call.
func (h *Hub) Subscribe(c *Client, teamID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clients[c]
	if !ok {
		return false
	}
	subs[teamID] = struct{}{}
	addTo(h.teams, teamID, c)
	return true
}

// Evict removes every connection of userID from a team channel and returns
// how many were removed.
func (h *Hub) Evict(teamID, userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for c := range h.teams[teamID] {
		if c.identity.UserID != userID {
			continue
		}
		delete(h.clients[c], teamID)
		removeFrom(h.teams, teamID, c)
		n++
	}
	return n
}

// EvictTeam removes every connection from a team channel.
func (h *Hub) EvictTeam(teamID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.teams[teamID]
	for c := range subs {
		delete(h.clients[c], teamID)
	}
	delete(h.teams, teamID)
	return len(subs)
}

// MembersOf returns the connections currently subscribed to a team channel.
func (h *Hub) MembersOf(teamID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.teams[teamID]))
	for c := range h.teams[teamID] {
		out = append(out, c)
	}
	return out
}

// IsSubscribed reports whether c is in a team channel.
func (h *Hub) IsSubscribed(c *Client, teamID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.teams[teamID][c]
	return ok
}

// Subscriptions returns the team channels c is subscribed to.
func (h *Hub) Subscriptions(c *Client) []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]int64, 0, len(h.clients[c]))
	for teamID := range h.clients[c] {
		out = append(out, teamID)
	}
	return out
}

// IsUserConnected checks if a user has any active connection.
func (h *Hub) IsUserConnected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToTeam encodes ev and delivers it to every subscriber of teamID.
func (h *Hub) BroadcastToTeam(teamID int64, ev models.Event) (int, error) {
	frame, err := ev.Encode()
	if err != nil {
		return 0, err
	}
	return h.DeliverToTeam(teamID, frame), nil
}

// SendToUser encodes ev and delivers it to every connection of userID.
func (h *Hub) SendToUser(userID int64, ev models.Event) (int, error) {
	frame, err := ev.Encode()
	if err != nil {
		return 0, err
	}
	return h.DeliverToUser(userID, frame), nil
}

// DeliverToTeam queues an encoded frame for a team channel.
func (h *Hub) DeliverToTeam(teamID int64, frame []byte) int {
	return h.deliver(func() map[*Client]struct{} { return h.teams[teamID] }, frame)
}

// DeliverToUser queues an encoded frame for a user channel.
func (h *Hub) DeliverToUser(userID int64, frame []byte) int {
	return h.deliver(func() map[*Client]struct{} { return h.users[userID] }, frame)
}

// deliver never blocks: a client whose queue is full is dropped so one slow
// reader cannot stall a broadcast.
func (h *Hub) deliver(targets func() map[*Client]struct{}, frame []byte) int {
	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for c := range targets() {
		select {
		case c.send <- frame:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow client", "client_id", c.id, "user_id", c.identity.UserID)
		h.Unregister(c)
	}
	return delivered
}

// Close unregisters every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Unregister(c)
	}
}

func addTo(index map[int64]map[*Client]struct{}, key int64, c *Client) {
	set, ok := index[key]
	if !ok {
		set = make(map[*Client]struct{})
		index[key] = set
	}
	set[c] = struct{}{}
}

func removeFrom(index map[int64]map[*Client]struct{}, key int64, c *Client) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(index, key)
	}
}
