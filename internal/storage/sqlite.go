// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// driverName is go-sqlite3 with ulower(text) registered on every connection.
// SQLite's built-in lower() folds ASCII only.
const driverName = "sqlite3_kotae"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("ulower", strings.ToLower, true)
		},
	})
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(driverName, dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		content_type TEXT,
		visibility TEXT NOT NULL DEFAULT 'public',
		tags TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_documents_tenant_filename ON documents(tenant_id, filename);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_tenant ON chunks(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON chunks(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS tenant_policies (
		tenant_id TEXT PRIMARY KEY,
		policy TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_activity_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		ai_paused INTEGER NOT NULL DEFAULT 0,
		ai_paused_at TIMESTAMP,
		ai_paused_by_user_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_tenant_user ON conversations(tenant_id, user_id);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS handoff_requests (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		conversation_id TEXT,
		user_id TEXT NOT NULL,
		source_channel TEXT NOT NULL,
		question TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		first_response_due_at TIMESTAMP,
		resolution_due_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_handoff_tenant ON handoff_requests(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		requester_id TEXT NOT NULL,
		conversation_id TEXT,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		retrieved_chunks TEXT NOT NULL,
		citations TEXT NOT NULL,
		refused INTEGER NOT NULL,
		model TEXT,
		latency_ms INTEGER NOT NULL,
		prompt_tokens INTEGER,
		completion_tokens INTEGER,
		total_tokens INTEGER,
		policy_reason TEXT,
		retrieval_doc_count INTEGER NOT NULL,
		retrieval_chunk_count INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_logs(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS usage_events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		requester_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		refused INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_usage_tenant_created ON usage_events(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS usage_limits (
		tenant_id TEXT PRIMARY KEY,
		daily_request_limit INTEGER NOT NULL,
		monthly_token_limit INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
