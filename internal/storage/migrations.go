package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migrate creates the schema and brings older databases up to date
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		createMessagesTable,
		createRoomEventsTable,
		createRoomsTable,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	// direction was added after the first release
	if err := addColumnIfMissing(db, "messages", "direction", "TEXT NOT NULL DEFAULT 'in'"); err != nil {
		return fmt.Errorf("direction migration failed: %w", err)
	}

	if _, err := db.Exec(createIndexes); err != nil {
		return fmt.Errorf("index migration failed: %w", err)
	}
	return nil
}

func addColumnIfMissing(db *sqlx.DB, table, column, definition string) error {
	var count int
	err := db.Get(&count,
		fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = ?", table), column)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

const createMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	server TEXT NOT NULL,
	target_kind TEXT NOT NULL,
	target TEXT NOT NULL,
	sender TEXT NOT NULL,
	body TEXT NOT NULL,
	message_type TEXT NOT NULL DEFAULT 'normal',
	timestamp DATETIME NOT NULL
)`

const createRoomEventsTable = `
CREATE TABLE IF NOT EXISTS room_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	server TEXT NOT NULL,
	room TEXT NOT NULL,
	kind TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	timestamp DATETIME NOT NULL
)`

const createRoomsTable = `
CREATE TABLE IF NOT EXISTS rooms (
	server TEXT NOT NULL,
	name TEXT NOT NULL,
	topic TEXT NOT NULL DEFAULT '',
	modes TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (server, name)
)`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_messages_target ON messages(server, target, timestamp);
CREATE INDEX IF NOT EXISTS idx_room_events_room ON room_events(server, room, timestamp);
`
