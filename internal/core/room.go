package core

// Room groups clients subscribed to the same conversation.
// Rooms are owned by the Hub and only touched under its lock.
type Room struct {
	ConversationID string
	clients        map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(conversationID string) *Room {
	return &Room{
		ConversationID: conversationID,
		clients:        make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Broadcast sends an event to all clients in the room and returns how many
// accepted it. Slow consumers with a full queue miss the event.
func (r *Room) Broadcast(event *Event) int {
	delivered := 0
	for client := range r.clients {
		if client.deliver(event) {
			delivered++
		}
	}
	return delivered
}

// Size returns the number of clients in the room.
func (r *Room) Size() int {
	return len(r.clients)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
