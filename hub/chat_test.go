package hub

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/fleetmq/fleetmq/fleet"
)

func joinChat(t *testing.T, h *Chat, username, role string) *Session {
	t.Helper()

	s, err := h.Connect()
	require.NoError(t, err)
	drainEvents(s)

	h.Join(s, username, role)

	return s
}

func TestChatJoinNotifications(t *testing.T) {
	h := NewChat(newTestRegistry("chat"))

	first := joinChat(t, h, "alice", "dispatcher")

	got := drainEvents(first)
	require.Equal(t, []string{"UsersOnline"}, eventTypes(got))

	var users []fleet.UserInfo
	require.NoError(t, json.Unmarshal(got[0].Data, &users))
	require.Len(t, users, 1)
	require.Equal(t, "alice", users[0].Username)

	second := joinChat(t, h, "bob", "driver")

	// existing user hears UserJoined, not its own join
	got = drainEvents(first)
	require.Equal(t, []string{"UserJoined"}, eventTypes(got))

	var joined fleet.UserInfo
	require.NoError(t, json.Unmarshal(got[0].Data, &joined))
	require.Equal(t, "bob", joined.Username)
	require.Equal(t, "driver", joined.Role)

	// newcomer sees both users in its snapshot
	got = drainEvents(second)
	require.Equal(t, []string{"UsersOnline"}, eventTypes(got))
	require.NoError(t, json.Unmarshal(got[0].Data, &users))
	require.Len(t, users, 2)
}

func TestChatSendMessage(t *testing.T) {
	h := NewChat(newTestRegistry("chat"))

	alice := joinChat(t, h, "alice", "dispatcher")
	bob := joinChat(t, h, "bob", "driver")

	drainEvents(alice)
	drainEvents(bob)

	h.SendMessage(alice, "hello fleet")

	for _, s := range []*Session{alice, bob} {
		got := drainEvents(s)
		require.Equal(t, []string{"MessageReceived"}, eventTypes(got))

		var msg fleet.ChatMessage
		require.NoError(t, json.Unmarshal(got[0].Data, &msg))
		require.Equal(t, "alice", msg.Sender)
		require.Equal(t, "dispatcher", msg.SenderRole)
		require.Equal(t, "hello fleet", msg.Content)
		require.NotEmpty(t, msg.ID)
	}
}

func TestChatMessageFromNonJoinedIgnored(t *testing.T) {
	h := NewChat(newTestRegistry("chat"))

	lurker, err := h.Connect()
	require.NoError(t, err)
	alice := joinChat(t, h, "alice", "dispatcher")

	drainEvents(lurker)
	drainEvents(alice)

	h.SendMessage(lurker, "should vanish")

	require.Empty(t, drainEvents(alice))
}

func TestChatPrivateMessage(t *testing.T) {
	h := NewChat(newTestRegistry("chat"))

	alice := joinChat(t, h, "alice", "dispatcher")
	bob := joinChat(t, h, "bob", "driver")
	carol := joinChat(t, h, "carol", "driver")

	drainEvents(alice)
	drainEvents(bob)
	drainEvents(carol)

	h.SendPrivateMessage(alice, bob.ID(), "just for you")

	got := drainEvents(bob)
	require.Equal(t, []string{"PrivateMessageReceived"}, eventTypes(got))

	var msg fleet.ChatMessage
	require.NoError(t, json.Unmarshal(got[0].Data, &msg))
	require.True(t, msg.IsPrivate)
	require.Equal(t, "just for you", msg.Content)

	// sender gets its copy, third parties get nothing
	require.Equal(t, []string{"PrivateMessageSent"}, eventTypes(drainEvents(alice)))
	require.Empty(t, drainEvents(carol))
}

func TestChatPrivateMessageUnknownTarget(t *testing.T) {
	h := NewChat(newTestRegistry("chat"))

	alice := joinChat(t, h, "alice", "dispatcher")
	drainEvents(alice)

	h.SendPrivateMessage(alice, "no-such-connection", "hello?")

	got := drainEvents(alice)
	require.Equal(t, []string{"Error"}, eventTypes(got))
}

func TestChatSendToRole(t *testing.T) {
	h := NewChat(newTestRegistry("chat"))

	dispatcher := joinChat(t, h, "alice", "dispatcher")
	driver1 := joinChat(t, h, "bob", "driver")
	driver2 := joinChat(t, h, "carol", "driver")

	drainEvents(dispatcher)
	drainEvents(driver1)
	drainEvents(driver2)

	h.SendToRole(dispatcher, "driver", "return to depot")

	for _, s := range []*Session{driver1, driver2} {
		got := drainEvents(s)
		require.Equal(t, []string{"RoleMessageReceived"}, eventTypes(got))

		var msg fleet.ChatMessage
		require.NoError(t, json.Unmarshal(got[0].Data, &msg))
		require.Equal(t, "driver", msg.TargetRole)
	}

	require.Empty(t, drainEvents(dispatcher))
}

func TestChatDisconnectBroadcastsOnce(t *testing.T) {
	h := NewChat(newTestRegistry("chat"))

	alice := joinChat(t, h, "alice", "dispatcher")
	bob := joinChat(t, h, "bob", "driver")

	drainEvents(alice)
	drainEvents(bob)

	h.Disconnect(bob)
	h.Disconnect(bob)

	got := drainEvents(alice)
	require.Equal(t, []string{"UserLeft"}, eventTypes(got))

	var user fleet.UserInfo
	require.NoError(t, json.Unmarshal(got[0].Data, &user))
	require.Equal(t, "bob", user.Username)
}

func TestChatDisconnectWithoutJoinIsSilent(t *testing.T) {
	h := NewChat(newTestRegistry("chat"))

	alice := joinChat(t, h, "alice", "dispatcher")

	lurker, err := h.Connect()
	require.NoError(t, err)

	drainEvents(alice)

	h.Disconnect(lurker)

	require.Empty(t, drainEvents(alice))
}
