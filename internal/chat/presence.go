package chat

import (
	"context"

	"chat-realtime/internal/logging"
	"chat-realtime/internal/protocol"
)

// Presence failures are logged and dropped: they never block messaging.

// Connect marks the user online and, on their first connection, tells
// their conversation partners. open is the user's connection count taken
// when this connection registered.
func (s *Service) Connect(ctx context.Context, sess Session, open int) {
	if err := s.presence.MarkOnline(ctx, sess.UserID); err != nil {
		logging.Warn().Err(err).Str("user_id", sess.UserID).Msg("mark online failed")
	}
	if open > 1 {
		return
	}
	s.notifyPartners(ctx, sess.UserID, protocol.EventPresenceOnline)
}

// Heartbeat extends the online key.
func (s *Service) Heartbeat(ctx context.Context, sess Session) {
	if err := s.presence.RefreshOnline(ctx, sess.UserID); err != nil {
		logging.Warn().Err(err).Str("user_id", sess.UserID).Msg("refresh online failed")
	}
}

// Disconnect runs after a connection left the hub. Once the user has no
// connections left they are marked offline and lastSeenAt is recorded.
func (s *Service) Disconnect(ctx context.Context, sess Session, remaining int) {
	if remaining > 0 {
		return
	}
	if err := s.presence.MarkOffline(ctx, sess.UserID); err != nil {
		logging.Warn().Err(err).Str("user_id", sess.UserID).Msg("mark offline failed")
	}
	if err := s.users.TouchLastSeen(ctx, sess.UserID, s.now().UTC()); err != nil {
		logging.Warn().Err(err).Str("user_id", sess.UserID).Msg("record last seen failed")
	}
	s.notifyPartners(ctx, sess.UserID, protocol.EventPresenceOffline)
}

// CheckPresence answers the calling connection with userID's online state.
func (s *Service) CheckPresence(ctx context.Context, sess Session, userID string) bool {
	online, err := s.presence.IsOnline(ctx, userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("presence lookup failed")
		online = false
	}
	if sess.ConnID != "" {
		s.hub.EmitToConn(sess.ConnID, protocol.EventPresenceStatus, protocol.PresenceStatusPayload{UserID: userID, Online: online})
	}
	return online
}

func (s *Service) notifyPartners(ctx context.Context, userID string, event protocol.Event) {
	partners, err := s.conversations.ListPartnerIDs(ctx, userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("list partners failed")
		return
	}
	payload := protocol.UserPayload{UserID: userID}
	for _, partner := range partners {
		s.hub.Emit(partner, event, payload, "")
	}
}
