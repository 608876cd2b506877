package realtime

// Hub – центр, владеющий комнатами и рассылающий сообщения подписчикам.
// Rooms are plain string keys; a moderator client is registered both in the
// session room and in its ".mod" sub-room.
type Hub struct {
	// rooms maps a room key to its registered clients.
	rooms map[string]map[*Client]bool

	// Inbound messages from Redis to fan out to one room.
	broadcast chan roomMessage

	// Register requests from the clients.
	register chan subscription

	// Unregister requests from clients.
	unregister chan *Client
}

type roomMessage struct {
	room string
	data []byte
}

type subscription struct {
	client *Client
	rooms  []string
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan roomMessage),
		register:   make(chan subscription),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			for _, room := range sub.rooms {
				if h.rooms[room] == nil {
					h.rooms[room] = make(map[*Client]bool)
				}
				h.rooms[room][sub.client] = true
			}
			sub.client.rooms = sub.rooms

		case client := <-h.unregister:
			if h.drop(client) {
				close(client.send)
				_ = client.conn.Close()
			}

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.room] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer: at-most-once delivery, drop it.
					h.drop(client)
					close(client.send)
					_ = client.conn.Close()
				}
			}
		}
	}
}

// drop removes the client from every room it joined and reports whether it
// was still registered anywhere.
func (h *Hub) drop(client *Client) bool {
	found := false
	for _, room := range client.rooms {
		if _, ok := h.rooms[room][client]; ok {
			found = true
			delete(h.rooms[room], client)
			if len(h.rooms[room]) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	return found
}

// Broadcast queues a payload for every client in the given room.
func (h *Hub) Broadcast(room string, data []byte) {
	h.broadcast <- roomMessage{room: room, data: data}
}
