package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/parleychat/parley/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS chatrooms (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chatrooms_owner ON chatrooms(owner_id, created_at);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chatroom_id TEXT NOT NULL,
    sender TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (chatroom_id) REFERENCES chatrooms(id)
);
CREATE INDEX IF NOT EXISTS idx_messages_chatroom ON messages(chatroom_id, created_at, id);

CREATE TABLE IF NOT EXISTS rate_counters (
    key TEXT PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 0,
    expires_at INTEGER
);

CREATE TABLE IF NOT EXISTS dispatch_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_name TEXT NOT NULL,
    payload TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued',
    attempts INTEGER NOT NULL DEFAULT 0,
    locked_at INTEGER,
    error TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);
CREATE INDEX IF NOT EXISTS idx_dispatch_status_id ON dispatch_queue(status, id);`

// Open opens (or creates) the SQLite database at the given path and applies
// the schema. WAL mode with a busy timeout lets the server and worker
// processes share the same file.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// Store provides chatroom and message persistence. Messages are append-only:
// nothing in here mutates or deletes a message once written.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateChatroom(ownerID, title string) (*models.Chatroom, error) {
	query := `
        INSERT INTO chatrooms (id, owner_id, title, created_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        RETURNING created_at`

	room := &models.Chatroom{ID: uuid.NewString(), OwnerID: ownerID, Title: title}
	err := s.db.QueryRow(query, room.ID, ownerID, title).Scan(&room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create chatroom: %w", err)
	}
	return room, nil
}

func (s *Store) GetChatrooms(ownerID string) ([]models.Chatroom, error) {
	query := `
        SELECT id, owner_id, title, created_at
        FROM chatrooms
        WHERE owner_id = ?
        ORDER BY created_at DESC`

	rows, err := s.db.Query(query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chatrooms := make([]models.Chatroom, 0)
	for rows.Next() {
		var room models.Chatroom
		if err := rows.Scan(&room.ID, &room.OwnerID, &room.Title, &room.CreatedAt); err != nil {
			return nil, err
		}
		chatrooms = append(chatrooms, room)
	}
	return chatrooms, rows.Err()
}

// SaveMessage appends a message to its chatroom and fills in the assigned
// id and creation timestamp.
func (s *Store) SaveMessage(msg *models.Message) error {
	query := `
        INSERT INTO messages (chatroom_id, sender, content, created_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        RETURNING id, created_at`

	return s.db.QueryRow(query, msg.ChatroomID, msg.Sender, msg.Content).Scan(&msg.ID, &msg.CreatedAt)
}

// GetMessages returns every message in the chatroom in append order. The id
// tie-break keeps the order stable when two writes land on the same timestamp.
func (s *Store) GetMessages(chatroomID string) ([]models.Message, error) {
	query := `
        SELECT id, chatroom_id, sender, content, created_at
        FROM messages
        WHERE chatroom_id = ?
        ORDER BY created_at, id`

	rows, err := s.db.Query(query, chatroomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ChatroomID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
