package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-realtime/internal/logging"
)

// DefaultNotifyChannel is where the unread trigger publishes when no channel
// is configured.
const DefaultNotifyChannel = "conversation_unread_changed"

// Connect opens the postgres pool and, when asked, applies migrations. The
// unread trigger notifies on channel.
func Connect(ctx context.Context, dsn, channel string, migrate bool) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if migrate {
		if err := RunMigrations(ctx, db, channel); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return db, nil
}

// RunMigrations applies the idempotent schema. Statements run in order.
func RunMigrations(ctx context.Context, db *sqlx.DB, channel string) error {
	stmts := migrations(channel)
	for i, m := range stmts {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	logging.Info().Int("statements", len(stmts)).Str("notify_channel", channel).Msg("database migrations applied")
	return nil
}

// migrations returns the schema with the unread trigger bound to channel.
// The channel reaches the trigger function as TG_ARGV[0].
func migrations(channel string) []string {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	stmts := append([]string(nil), schema...)
	return append(stmts, `CREATE TRIGGER conversation_unread_changed
            AFTER UPDATE ON conversations
            FOR EACH ROW EXECUTE FUNCTION notify_conversation_unread_changed(`+pq.QuoteLiteral(channel)+`);`)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS "user" (
            id TEXT PRIMARY KEY,
            first_name TEXT NOT NULL,
            last_name TEXT,
            last_seen_at TIMESTAMPTZ
        );`,
	`CREATE TABLE IF NOT EXISTS session (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL REFERENCES "user"(id) ON DELETE CASCADE,
            expires_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS conversations (
            id TEXT PRIMARY KEY,
            user_id1 TEXT NOT NULL REFERENCES "user"(id) ON DELETE CASCADE,
            user_id2 TEXT NOT NULL REFERENCES "user"(id) ON DELETE CASCADE,
            last_message_id TEXT,
            unread_count_user1 INT NOT NULL DEFAULT 0,
            unread_count_user2 INT NOT NULL DEFAULT 0,
            is_archived_user1 BOOLEAN NOT NULL DEFAULT FALSE,
            is_archived_user2 BOOLEAN NOT NULL DEFAULT FALSE,
            is_muted_user1 BOOLEAN NOT NULL DEFAULT FALSE,
            is_muted_user2 BOOLEAN NOT NULL DEFAULT FALSE,
            is_blocked_user1 BOOLEAN NOT NULL DEFAULT FALSE,
            is_blocked_user2 BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT conversations_pair_order CHECK (user_id1 < user_id2),
            CONSTRAINT conversations_pair_unique UNIQUE (user_id1, user_id2)
        );`,
	`CREATE TABLE IF NOT EXISTS chats (
            id TEXT PRIMARY KEY,
            sender_id TEXT NOT NULL REFERENCES "user"(id) ON DELETE CASCADE,
            conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            message TEXT,
            iv TEXT,
            auth_tag TEXT,
            chat_message_type TEXT NOT NULL DEFAULT 'text',
            media_url TEXT,
            delivered_at TIMESTAMPTZ,
            read_at TIMESTAMPTZ,
            replied_to TEXT REFERENCES chats(id) ON DELETE SET NULL,
            is_deleted_by_sender BOOLEAN NOT NULL DEFAULT FALSE,
            is_deleted_by_receiver BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT chats_text_cipher CHECK (
                (chat_message_type = 'text' AND message IS NOT NULL AND iv IS NOT NULL AND auth_tag IS NOT NULL)
                OR (chat_message_type <> 'text' AND message IS NULL AND iv IS NULL AND auth_tag IS NULL)
            )
        );`,
	`CREATE INDEX IF NOT EXISTS chats_conversation_created_idx ON chats (conversation_id, created_at DESC, id DESC);`,
	`CREATE INDEX IF NOT EXISTS chats_unread_idx ON chats (conversation_id, sender_id) WHERE read_at IS NULL;`,
	`CREATE INDEX IF NOT EXISTS conversations_user2_idx ON conversations (user_id2);`,
	`CREATE OR REPLACE FUNCTION notify_conversation_unread_changed() RETURNS trigger AS $$
        BEGIN
            IF NEW.unread_count_user1 IS DISTINCT FROM OLD.unread_count_user1
               OR NEW.unread_count_user2 IS DISTINCT FROM OLD.unread_count_user2 THEN
                PERFORM pg_notify(TG_ARGV[0], json_build_object(
                    'conversationId', NEW.id,
                    'userId1', NEW.user_id1,
                    'userId2', NEW.user_id2,
                    'unreadCountUser1', NEW.unread_count_user1,
                    'unreadCountUser2', NEW.unread_count_user2,
                    'updatedAt', NEW.updated_at
                )::text);
            END IF;
            RETURN NEW;
        END;
        $$ LANGUAGE plpgsql;`,
	`DROP TRIGGER IF EXISTS conversation_unread_changed ON conversations;`,
}
