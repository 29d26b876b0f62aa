package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"
	"chat-realtime/internal/protocol"
	"chat-realtime/internal/repositories"
)

func TestTypingExcludesSendingConnection(t *testing.T) {
	f := newFixture(t)
	f.hub.On("Emit", "c1", protocol.EventTypingStart, protocol.UserPayload{UserID: "alice"}, "conn-a").Return(1).Once()
	f.hub.On("Emit", "c1", protocol.EventTypingStop, protocol.UserPayload{UserID: "alice"}, "conn-a").Return(1).Once()

	f.svc.Typing(alice, "c1", true)
	f.svc.Typing(alice, "c1", false)
	f.assert(t)
}

func TestMarkReadBroadcastsReceipt(t *testing.T) {
	f := newFixture(t)
	ids := []string{"m1", "m2"}
	f.msgs.On("MarkRead", mock.Anything, "c1", "alice", ids, fixedNow).
		Return(repositories.MarkReadResult{Updated: 2}, nil).Once()
	f.hub.On("Emit", "c1", protocol.EventMessagesRead, protocol.ReadPayload{
		MessageIDs: ids, ReadBy: "alice", ReadAt: "2024-05-01T10:00:00.000Z",
	}, "").Return(2).Once()

	require.NoError(t, f.svc.MarkRead(context.Background(), alice, protocol.ReadRequest{ChatID: "c1", MessageIDs: ids}))
	f.assert(t)
}

func TestMarkReadUnknownConversationIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.msgs.On("MarkRead", mock.Anything, "gone", "alice", []string{"m1"}, fixedNow).
		Return(repositories.MarkReadResult{}, repositories.ErrConversationNotFound).Once()

	err := f.svc.MarkRead(context.Background(), alice, protocol.ReadRequest{ChatID: "gone", MessageIDs: []string{"m1"}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	f.hub.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkReadWithoutIDsIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.MarkRead(context.Background(), alice, protocol.ReadRequest{ChatID: "c1"}))
	f.msgs.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateConversationBlockBroadcasts(t *testing.T) {
	f := newFixture(t)
	conv := models.Conversation{ID: "c1", UserID1: "alice", UserID2: "bob", IsBlockedByUser1: true}
	f.convs.On("UpdateFlags", mock.Anything, "c1", "alice", models.ActionBlock).Return(conv, nil).Once()
	f.hub.On("Emit", "c1", protocol.EventChatStats, conv, "").Return(2).Once()

	got, err := f.svc.UpdateConversation(context.Background(), alice, protocol.StatsRequest{ConversationID: "c1", Action: "block"})
	require.NoError(t, err)
	assert.True(t, got.IsBlockedByUser1)
	f.assert(t)
}

func TestUpdateConversationMuteEchoesToCaller(t *testing.T) {
	f := newFixture(t)
	conv := models.Conversation{ID: "c1", UserID1: "alice", UserID2: "bob", IsMutedByUser1: true}
	f.convs.On("UpdateFlags", mock.Anything, "c1", "alice", models.ActionMute).Return(conv, nil).Once()
	f.hub.On("EmitToConn", "conn-a", protocol.EventChatStats, conv).Return(true).Once()

	_, err := f.svc.UpdateConversation(context.Background(), alice, protocol.StatsRequest{ConversationID: "c1", Action: "mute"})
	require.NoError(t, err)
	f.hub.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assert(t)
}

func TestUpdateConversationUnknownAction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateConversation(context.Background(), alice, protocol.StatsRequest{ConversationID: "c1", Action: "explode"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestConnectSwallowsPresenceFailure(t *testing.T) {
	f := newFixture(t)
	f.presence.On("MarkOnline", mock.Anything, "alice").Return(apperr.ErrPresenceUnavailable).Once()
	f.convs.On("ListPartnerIDs", mock.Anything, "alice").Return([]string{"bob"}, nil).Once()
	f.hub.On("Emit", "bob", protocol.EventPresenceOnline, protocol.UserPayload{UserID: "alice"}, "").Return(1).Once()

	assert.NotPanics(t, func() { f.svc.Connect(context.Background(), alice, 1) })
	f.assert(t)
}

func TestConnectSecondDeviceDoesNotAnnounce(t *testing.T) {
	f := newFixture(t)
	f.presence.On("MarkOnline", mock.Anything, "alice").Return(nil).Once()

	f.svc.Connect(context.Background(), alice, 2)
	f.convs.AssertNotCalled(t, "ListPartnerIDs", mock.Anything, mock.Anything)
	f.assert(t)
}

func TestHeartbeatRefreshesPresence(t *testing.T) {
	f := newFixture(t)
	f.presence.On("RefreshOnline", mock.Anything, "alice").Return(apperr.ErrPresenceUnavailable).Once()

	f.svc.Heartbeat(context.Background(), alice)
	f.assert(t)
}

func TestDisconnectLastConnectionGoesOffline(t *testing.T) {
	f := newFixture(t)
	f.presence.On("MarkOffline", mock.Anything, "alice").Return(apperr.ErrPresenceUnavailable).Once()
	f.users.On("TouchLastSeen", mock.Anything, "alice", fixedNow).Return(nil).Once()
	f.convs.On("ListPartnerIDs", mock.Anything, "alice").Return([]string{"bob", "carol"}, nil).Once()
	f.hub.On("Emit", "bob", protocol.EventPresenceOffline, protocol.UserPayload{UserID: "alice"}, "").Return(1).Once()
	f.hub.On("Emit", "carol", protocol.EventPresenceOffline, protocol.UserPayload{UserID: "alice"}, "").Return(0).Once()

	f.svc.Disconnect(context.Background(), alice, 0)
	f.assert(t)
}

func TestDisconnectWithOtherDevicesStaysOnline(t *testing.T) {
	f := newFixture(t)
	f.svc.Disconnect(context.Background(), alice, 1)
	f.presence.AssertNotCalled(t, "MarkOffline", mock.Anything, mock.Anything)
	f.users.AssertNotCalled(t, "TouchLastSeen", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckPresenceReportsOfflineOnCacheError(t *testing.T) {
	f := newFixture(t)
	f.presence.On("IsOnline", mock.Anything, "bob").Return(false, apperr.ErrPresenceUnavailable).Once()
	f.hub.On("EmitToConn", "conn-a", protocol.EventPresenceStatus, protocol.PresenceStatusPayload{UserID: "bob", Online: false}).Return(true).Once()

	assert.False(t, f.svc.CheckPresence(context.Background(), alice, "bob"))
	f.assert(t)
}
