package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/mocks"
	"chat-realtime/internal/protocol"
)

func TestHandlePushesEachUserTheirCount(t *testing.T) {
	hub := new(mocks.BroadcasterMock)
	hub.On("Emit", "alice", protocol.EventUnreadUpdate, protocol.UnreadPayload{ConversationID: "c1", UnreadCount: 0}, "").Return(1).Once()
	hub.On("Emit", "bob", protocol.EventUnreadUpdate, protocol.UnreadPayload{ConversationID: "c1", UnreadCount: 4}, "").Return(2).Once()

	b := NewBridge("", "", hub)
	b.Handle([]byte(`{"conversationId":"c1","userId1":"alice","userId2":"bob","unreadCountUser1":0,"unreadCountUser2":4,"updatedAt":"2024-01-01T00:00:00Z"}`))

	hub.AssertExpectations(t)
}

func TestHandleDropsMalformedPayloads(t *testing.T) {
	hub := new(mocks.BroadcasterMock)
	b := NewBridge("", "", hub)

	for _, payload := range []string{
		`not json`,
		`{"conversationId":"c1","userId1":"alice"}`,
		`{"userId1":"alice","userId2":"bob","unreadCountUser1":1}`,
		`{"conversationId":"c1","userId1":"alice","userId2":"bob","unreadCountUser1":"many"}`,
		``,
		"{\"conversationId\":\"c\xff\xfe\",\"userId1\":\"alice\",\"userId2\":\"bob\",\"unreadCountUser1\":1,\"unreadCountUser2\":2}",
	} {
		assert.NotPanics(t, func() { b.Handle([]byte(payload)) }, payload)
	}
	hub.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBridgeDefaultsChannel(t *testing.T) {
	b := NewBridge("postgres://x", "", nil)
	assert.Equal(t, "notify-bridge(conversation_unread_changed)", b.String())
}

func TestDecodeRejectsInvalidUTF8(t *testing.T) {
	_, err := decode([]byte("{\"conversationId\":\"c\xff\",\"userId1\":\"alice\",\"userId2\":\"bob\"}"))
	assert.ErrorIs(t, err, errInvalidUTF8)
}
