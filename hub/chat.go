package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetmq/fleetmq/fleet"
	"github.com/fleetmq/fleetmq/subscriber"
)

// Chat dispatcher-driver chat hub. Role names double as group names so
// role-scoped messages ride the group broadcast path
type Chat struct {
	base

	lock  sync.RWMutex
	users map[string]fleet.UserInfo
}

// NewChat allocate chat hub over an injected registry
func NewChat(registry *subscriber.Registry) *Chat {
	return &Chat{
		base:  newBase("chat", registry),
		users: make(map[string]fleet.UserInfo),
	}
}

// Name implements Hub
func (h *Chat) Name() string {
	return h.name
}

// Connect implements Hub
func (h *Chat) Connect() (*Session, error) {
	s, err := h.connect()
	if err != nil {
		return nil, err
	}

	h.send(s, "Connected", map[string]string{"connectionId": s.id})

	return s, nil
}

// Disconnect implements Hub. The departure notification goes out once
// even when transport close races an explicit leave
func (h *Chat) Disconnect(s *Session) {
	h.lock.Lock()
	user, joined := h.users[s.id]
	delete(h.users, s.id)
	h.lock.Unlock()

	if !h.disconnect(s) {
		return
	}

	if joined {
		h.broadcast("UserLeft", user)
	}
}

// Invoke implements Hub
func (h *Chat) Invoke(s *Session, inv Invocation) error {
	switch inv.Target {
	case "Join":
		var username, role string
		if err := decodeArgs(inv.Arguments, &username, &role); err != nil {
			return err
		}
		h.Join(s, username, role)
	case "SendMessage":
		var text string
		if err := decodeArgs(inv.Arguments, &text); err != nil {
			return err
		}
		h.SendMessage(s, text)
	case "SendPrivateMessage":
		var targetID, text string
		if err := decodeArgs(inv.Arguments, &targetID, &text); err != nil {
			return err
		}
		h.SendPrivateMessage(s, targetID, text)
	case "SendToRole":
		var role, text string
		if err := decodeArgs(inv.Arguments, &role, &text); err != nil {
			return err
		}
		h.SendToRole(s, role, text)
	case "GetOnlineUsers":
		h.GetOnlineUsers(s)
	default:
		return ErrUnknownTarget
	}

	return nil
}

// Join enter the chat with a username and role
func (h *Chat) Join(s *Session, username, role string) {
	user := fleet.UserInfo{
		ConnectionID: s.id,
		Username:     username,
		Role:         role,
		JoinedAt:     time.Now().UTC(),
	}

	h.lock.Lock()
	h.users[s.id] = user
	h.lock.Unlock()

	// role-based group
	s.sub.Join(role)

	h.broadcastOthers(s, "UserJoined", user)
	h.send(s, "UsersOnline", h.onlineUsers())

	h.log.Infow("user joined chat", "username", username, "role", role)
}

// SendMessage message to every user. Senders that never joined are
// ignored
func (h *Chat) SendMessage(s *Session, text string) {
	sender, ok := h.user(s.id)
	if !ok {
		return
	}

	h.broadcast("MessageReceived", h.newMessage(sender, text))
	h.log.Debugw("message", "sender", sender.Username)
}

// SendPrivateMessage message to one connection only. An unknown target
// is reported to the sender alone
func (h *Chat) SendPrivateMessage(s *Session, targetID, text string) {
	sender, ok := h.user(s.id)
	if !ok {
		return
	}

	msg := h.newMessage(sender, text)
	msg.IsPrivate = true

	if err := h.sendTo(targetID, "PrivateMessageReceived", msg); err != nil {
		h.sendError(s, "user "+targetID+" not found")
		return
	}

	h.send(s, "PrivateMessageSent", msg)
}

// SendToRole message to every user holding the role
func (h *Chat) SendToRole(s *Session, role, text string) {
	sender, ok := h.user(s.id)
	if !ok {
		return
	}

	msg := h.newMessage(sender, text)
	msg.TargetRole = role

	h.broadcastGroup(role, "RoleMessageReceived", msg)
}

// GetOnlineUsers reply to the caller with the current user list
func (h *Chat) GetOnlineUsers(s *Session) {
	h.send(s, "UsersOnline", h.onlineUsers())
}

func (h *Chat) user(connectionID string) (fleet.UserInfo, bool) {
	h.lock.RLock()
	user, ok := h.users[connectionID]
	h.lock.RUnlock()

	return user, ok
}

func (h *Chat) onlineUsers() []fleet.UserInfo {
	h.lock.RLock()
	defer h.lock.RUnlock()

	list := make([]fleet.UserInfo, 0, len(h.users))
	for _, user := range h.users {
		list = append(list, user)
	}

	return list
}

func (h *Chat) newMessage(sender fleet.UserInfo, text string) fleet.ChatMessage {
	return fleet.ChatMessage{
		ID:         uuid.NewString(),
		Sender:     sender.Username,
		SenderRole: sender.Role,
		Content:    text,
		Timestamp:  time.Now().UTC(),
	}
}
