package chat

// PersonalRoom is joined by a connection when its user joins.
func PersonalRoom(userID string) string {
	return "user:" + userID
}

func NotificationRoom(userID string) string {
	return "notifications-" + userID
}

// JoinRoom adds an attached connection to room. Membership ends when the
// connection detaches.
func (h *Hub) JoinRoom(c *Client, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return errNotAttached
	}
	h.joinRoomLocked(c, room)
	return nil
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) joinRoomLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.ID] = c

	joined, ok := h.memberships[c.ID]
	if !ok {
		joined = make(map[string]struct{})
		h.memberships[c.ID] = joined
	}
	joined[room] = struct{}{}
}

func (h *Hub) leaveRoomLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.memberships[c.ID], room)
}

func (h *Hub) leaveAllLocked(c *Client) {
	for room := range h.memberships[c.ID] {
		members := h.rooms[room]
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.memberships, c.ID)
}

func (h *Hub) roomMembers(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	return members
}
