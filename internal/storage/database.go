package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/matt0x6f/irc-engine/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("storage is closed")

// Storage is a SQLite log of messages and room activity. Chat lines and room
// events are buffered and written in batches.
type Storage struct {
	db            *sqlx.DB
	writeBuffer   chan interface{}
	bufferSize    int
	flushInterval time.Duration
	mu            sync.Mutex
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
	closedMu      sync.RWMutex
	closed        bool
}

// NewStorage opens (or creates) the database at dbPath
func NewStorage(dbPath string, bufferSize int, flushInterval time.Duration) (*Storage, error) {
	// WAL keeps readers from blocking the flusher
	db, err := sqlx.Connect("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	s := &Storage{
		db:            db,
		writeBuffer:   make(chan interface{}, bufferSize),
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	s.wg.Add(1)
	go s.flushLoop()
	return s, nil
}

// Close flushes pending writes and closes the database
func (s *Storage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closedMu.Lock()
		s.closed = true
		s.closedMu.Unlock()

		close(s.stopCh)
		s.wg.Wait()
		s.Flush()
		err = s.db.Close()
	})
	return err
}

func (s *Storage) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

func (s *Storage) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Flush writes everything buffered so far
func (s *Storage) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []Message
	var roomEvents []RoomEvent
	for done := false; !done; {
		select {
		case item := <-s.writeBuffer:
			switch v := item.(type) {
			case Message:
				messages = append(messages, v)
			case RoomEvent:
				roomEvents = append(roomEvents, v)
			}
		default:
			done = true
		}
	}

	if len(messages) > 0 {
		if err := s.insertMessages(messages); err != nil {
			logger.Log.Error().Err(err).Int("count", len(messages)).Msg("Error flushing messages")
		}
	}
	if len(roomEvents) > 0 {
		if err := s.insertRoomEvents(roomEvents); err != nil {
			logger.Log.Error().Err(err).Int("count", len(roomEvents)).Msg("Error flushing room events")
		}
	}
}

func (s *Storage) insertMessages(messages []Message) error {
	query := `INSERT INTO messages (server, target_kind, target, sender, body, message_type, direction, timestamp)
	          VALUES (:server, :target_kind, :target, :sender, :body, :message_type, :direction, :timestamp)`
	_, err := s.db.NamedExec(query, messages)
	return err
}

func (s *Storage) insertRoomEvents(roomEvents []RoomEvent) error {
	query := `INSERT INTO room_events (server, room, kind, actor, subject, detail, timestamp)
	          VALUES (:server, :room, :kind, :actor, :subject, :detail, :timestamp)`
	_, err := s.db.NamedExec(query, roomEvents)
	return err
}

func (s *Storage) enqueue(item interface{}) error {
	if s.isClosed() {
		return ErrClosed
	}
	select {
	case s.writeBuffer <- item:
		return nil
	default:
	}

	// Buffer full, flush and retry once
	s.Flush()
	select {
	case s.writeBuffer <- item:
		return nil
	default:
		return fmt.Errorf("write buffer full")
	}
}

// WriteMessage queues a message for batch insertion
func (s *Storage) WriteMessage(msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Type == "" {
		msg.Type = "normal"
	}
	if msg.Direction == "" {
		msg.Direction = DirectionIn
	}
	return s.enqueue(msg)
}

// WriteRoomEvent queues a room event for batch insertion
func (s *Storage) WriteRoomEvent(ev RoomEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return s.enqueue(ev)
}

// GetMessages returns up to limit of the latest messages for a target in
// chronological order
func (s *Storage) GetMessages(server, target string, limit int) ([]Message, error) {
	var messages []Message
	err := s.db.Select(&messages,
		`SELECT id, server, target_kind, target, sender, body, message_type, direction, timestamp
		 FROM messages
		 WHERE server = ? AND target = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		server, target, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetRoomEvents returns the events of a room in chronological order
func (s *Storage) GetRoomEvents(server, room string, limit int) ([]RoomEvent, error) {
	var roomEvents []RoomEvent
	err := s.db.Select(&roomEvents,
		`SELECT * FROM (
		     SELECT * FROM room_events
		     WHERE server = ? AND room = ?
		     ORDER BY timestamp DESC, id DESC
		     LIMIT ?
		 ) ORDER BY timestamp ASC, id ASC`,
		server, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get room events: %w", err)
	}
	return roomEvents, nil
}

// SaveRoom inserts or updates the stored state of a room. Empty fields keep
// their previous value.
func (s *Storage) SaveRoom(room Room) error {
	if s.isClosed() {
		return ErrClosed
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = time.Now()
	}
	query := `INSERT INTO rooms (server, name, topic, modes, state, updated_at)
	          VALUES (:server, :name, :topic, :modes, :state, :updated_at)
	          ON CONFLICT(server, name) DO UPDATE SET
	              topic = CASE WHEN excluded.topic != '' THEN excluded.topic ELSE rooms.topic END,
	              modes = CASE WHEN excluded.modes != '' THEN excluded.modes ELSE rooms.modes END,
	              state = CASE WHEN excluded.state != '' THEN excluded.state ELSE rooms.state END,
	              updated_at = excluded.updated_at`
	if _, err := s.db.NamedExec(query, room); err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	return nil
}

// ClearTopic forgets the stored topic of a room
func (s *Storage) ClearTopic(server, name string) error {
	if s.isClosed() {
		return ErrClosed
	}
	_, err := s.db.Exec("UPDATE rooms SET topic = '', updated_at = ? WHERE server = ? AND name = ?",
		time.Now(), server, name)
	if err != nil {
		return fmt.Errorf("failed to clear topic: %w", err)
	}
	return nil
}

// GetRoom returns the stored state of a room
func (s *Storage) GetRoom(server, name string) (*Room, error) {
	var room Room
	if err := s.db.Get(&room, "SELECT * FROM rooms WHERE server = ? AND name = ?", server, name); err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}

// GetRooms returns all rooms known for a server
func (s *Storage) GetRooms(server string) ([]Room, error) {
	var rooms []Room
	if err := s.db.Select(&rooms, "SELECT * FROM rooms WHERE server = ? ORDER BY name", server); err != nil {
		return nil, fmt.Errorf("failed to get rooms: %w", err)
	}
	return rooms, nil
}
