package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, log *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied", zap.Int("statements", len(migrations)))
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id SERIAL PRIMARY KEY,
        email TEXT NOT NULL UNIQUE,
        fullname TEXT NOT NULL DEFAULT '',
        is_staff BOOLEAN NOT NULL DEFAULT FALSE,
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS brands (
        id SERIAL PRIMARY KEY,
        user_id INT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
        name TEXT NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS rooms (
        id SERIAL PRIMARY KEY,
        type CHAR(1) NOT NULL DEFAULT 'M' CHECK (type IN ('M', 'I', 'H', 'S')),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS room_participants (
        room_id INT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
        user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        PRIMARY KEY (room_id, user_id)
    );`,
	`CREATE INDEX IF NOT EXISTS room_participants_user_idx ON room_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id SERIAL PRIMARY KEY,
        room_id INT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
        user_id INT REFERENCES users(id) ON DELETE SET NULL,
        text TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at DESC, id);`,
	`CREATE TABLE IF NOT EXISTS message_attachments (
        id SERIAL PRIMARY KEY,
        message_id INT REFERENCES messages(id) ON DELETE CASCADE,
        file TEXT NOT NULL,
        size BIGINT NOT NULL DEFAULT 0,
        mime_type TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS message_attachments_dangling_idx ON message_attachments (created_at) WHERE message_id IS NULL;`,
	`CREATE TABLE IF NOT EXISTS room_favorites (
        id SERIAL PRIMARY KEY,
        user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        room_id INT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
        UNIQUE (user_id, room_id)
    );`,
	`CREATE OR REPLACE FUNCTION notify_identity_event() RETURNS trigger AS $$
    BEGIN
        IF TG_OP = 'DELETE' THEN
            PERFORM pg_notify('identity_events', json_build_object(
                'kind', 'deleted', 'user_id', OLD.id, 'is_staff', FALSE)::text);
            RETURN OLD;
        END IF;
        PERFORM pg_notify('identity_events', json_build_object(
            'kind', CASE TG_OP WHEN 'INSERT' THEN 'created' ELSE 'updated' END,
            'user_id', NEW.id,
            'is_staff', NEW.is_staff AND NEW.is_active)::text);
        RETURN NEW;
    END;
    $$ LANGUAGE plpgsql;`,
	`DROP TRIGGER IF EXISTS users_identity_events ON users;`,
	`CREATE TRIGGER users_identity_events
        AFTER INSERT OR UPDATE OF is_staff, is_active OR DELETE ON users
        FOR EACH ROW EXECUTE FUNCTION notify_identity_event();`,
}

func runMigrations(db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
