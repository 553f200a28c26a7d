package room

import (
	"encoding/json"
	"log"
	"sync"
)

// Frame types per RFC 6455; matches websocket.TextMessage / PingMessage.
const (
	TextMessage = 1
	PingMessage = 9
)

// Conn is the write side of a websocket connection. Satisfied by
// *websocket.Conn; tests substitute a recording fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// Message is the wire envelope for every collaboration event.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one live session inside a room.
type Client struct {
	SessionID string
	UserID    int64
	Name      string
	Image     string

	conn    Conn
	writeMu sync.Mutex
}

// NewClient wraps a connection as a room client.
func NewClient(sessionID string, userID int64, name, image string, conn Conn) *Client {
	return &Client{
		SessionID: sessionID,
		UserID:    userID,
		Name:      name,
		Image:     image,
		conn:      conn,
	}
}

// Send writes one event frame. Serialized per connection; concurrent
// broadcasts must not interleave writes on the same socket.
func (c *Client) Send(event string, data any) error {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(TextMessage, payload)
}

// Ping writes a heartbeat control frame.
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(PingMessage, nil)
}

// Registry is the process-wide projectID -> live sessions map. This is the
// authoritative "who is live right now" view; CollaborationSession rows in
// the database persist history and are not consulted for broadcasts.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[int64]map[string]*Client // projectID -> sessionID -> client
	sessions map[string]int64             // sessionID -> projectID (reverse index for leave)
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		rooms:    make(map[int64]map[string]*Client),
		sessions: make(map[string]int64),
	}
}

// Join adds a session to a project's room, creating the room on first join.
// Joining the same room twice is idempotent; a session switching projects is
// first removed from its previous room.
func (r *Registry) Join(projectID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[c.SessionID]; ok && prev != projectID {
		r.removeLocked(prev, c.SessionID)
	}

	members, ok := r.rooms[projectID]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[projectID] = members
		log.Printf("[Registry] Created room: project=%d", projectID)
	}
	members[c.SessionID] = c
	r.sessions[c.SessionID] = projectID
}

// Leave removes a session from whichever room it belongs to. Returns the
// room it left and the client, so the caller can notify the remaining
// members exactly once. ok is false if the session was not in any room.
func (r *Registry) Leave(sessionID string) (projectID int64, c *Client, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	projectID, ok = r.sessions[sessionID]
	if !ok {
		return 0, nil, false
	}
	c = r.rooms[projectID][sessionID]
	r.removeLocked(projectID, sessionID)
	return projectID, c, true
}

// removeLocked deletes the membership entry and prunes empty rooms.
// Caller must hold r.mu.
func (r *Registry) removeLocked(projectID int64, sessionID string) {
	delete(r.sessions, sessionID)
	if members, ok := r.rooms[projectID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, projectID)
			log.Printf("[Registry] Removed empty room: project=%d", projectID)
		}
	}
}

// Members returns a snapshot of the clients in a room.
func (r *Registry) Members(projectID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Client, 0, len(r.rooms[projectID]))
	for _, c := range r.rooms[projectID] {
		members = append(members, c)
	}
	return members
}

// UserIDs returns the distinct user identifiers present in a room. A user
// with several sessions appears once.
func (r *Registry) UserIDs(projectID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]bool)
	ids := make([]int64, 0, len(r.rooms[projectID]))
	for _, c := range r.rooms[projectID] {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			ids = append(ids, c.UserID)
		}
	}
	return ids
}

// RoomOf reports which room a session currently belongs to.
func (r *Registry) RoomOf(sessionID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	projectID, ok := r.sessions[sessionID]
	return projectID, ok
}

// Broadcast sends an event to every session in the room, sender included.
func (r *Registry) Broadcast(projectID int64, event string, data any) {
	r.broadcast(projectID, "", event, data)
}

// BroadcastExcept sends an event to every session in the room except the
// named one.
func (r *Registry) BroadcastExcept(projectID int64, exceptSessionID, event string, data any) {
	r.broadcast(projectID, exceptSessionID, event, data)
}

func (r *Registry) broadcast(projectID int64, exceptSessionID, event string, data any) {
	// Snapshot under the read lock, write outside it: a slow socket must not
	// block join/leave on the registry.
	members := r.Members(projectID)

	for _, c := range members {
		if c.SessionID == exceptSessionID {
			continue
		}
		if err := c.Send(event, data); err != nil {
			log.Printf("[Registry] Send failed: project=%d session=%s event=%s err=%v",
				projectID, c.SessionID, event, err)
		}
	}
}
