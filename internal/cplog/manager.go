// Package cplog is the control plane's own structured log manager: a
// bounded in-memory ring buffer backed by optional Postgres persistence,
// with handler fan-out for SSE consumers. It is distinct from
// package logstream, which tails a project's container output — this
// package captures the control plane's own operational log lines.
package cplog

import (
	"container/ring"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	MaxBufferSize = 10000

	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Entry is a single structured log line.
type Entry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	ProjectID string                 `json:"project_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Manager buffers, persists, and fans out log entries.
type Manager struct {
	mu       sync.RWMutex
	buffer   *ring.Ring
	db       *sql.DB
	handlers []func(Entry)
}

// NewManager builds a Manager. db may be nil, in which case entries are
// kept in memory only.
func NewManager(db *sql.DB) *Manager {
	m := &Manager{
		buffer: ring.New(MaxBufferSize),
		db:     db,
	}
	if err := m.initSchema(); err != nil {
		log.Printf("cplog: schema init failed: %v", err)
	}
	return m
}

func rebind(query string) string {
	n := 1
	var out strings.Builder
	for _, ch := range query {
		if ch == '?' {
			fmt.Fprintf(&out, "$%d", n)
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

func (m *Manager) initSchema() error {
	if m.db == nil {
		return nil
	}
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS control_plane_logs (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			level TEXT NOT NULL,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			project_id TEXT,
			metadata_json TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create control_plane_logs table: %w", err)
	}

	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_cplogs_timestamp ON control_plane_logs(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_cplogs_project_id ON control_plane_logs(project_id)",
		"CREATE INDEX IF NOT EXISTS idx_cplogs_level ON control_plane_logs(level)",
	} {
		if _, err := m.db.Exec(idx); err != nil {
			log.Printf("cplog: create index failed: %v", err)
		}
	}
	return nil
}

// Log buffers entry, notifies handlers, and persists it asynchronously.
func (m *Manager) Log(level, source, message, projectID string, metadata map[string]interface{}) {
	entry := Entry{
		ID:        fmt.Sprintf("log-%d", time.Now().UnixNano()),
		Timestamp: time.Now().UTC(),
		Level:     level,
		Source:    source,
		Message:   message,
		ProjectID: projectID,
		Metadata:  metadata,
	}

	m.mu.Lock()
	m.buffer.Value = entry
	m.buffer = m.buffer.Next()
	m.mu.Unlock()

	for _, h := range m.handlers {
		go h(entry)
	}
	go m.persist(entry)
}

func (m *Manager) persist(entry Entry) {
	if m.db == nil {
		return
	}
	var metadataJSON *string
	if len(entry.Metadata) > 0 {
		if data, err := json.Marshal(entry.Metadata); err == nil {
			s := string(data)
			metadataJSON = &s
		}
	}

	_, err := m.db.Exec(rebind(`
		INSERT INTO control_plane_logs (id, timestamp, level, source, message, project_id, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), entry.ID, entry.Timestamp, entry.Level, entry.Source, entry.Message, nullable(entry.ProjectID), metadataJSON)
	if err != nil {
		log.Printf("cplog: persist entry failed: %v", err)
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// GetRecent returns up to limit buffered entries, newest first, filtered
// by level/source/projectID/time window.
func (m *Manager) GetRecent(limit int, levelFilter, sourceFilter, projectID string, since, until time.Time) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > MaxBufferSize {
		limit = 100
	}

	out := make([]Entry, 0, limit)
	m.buffer.Do(func(v interface{}) {
		if v == nil {
			return
		}
		entry, ok := v.(Entry)
		if !ok {
			return
		}
		if levelFilter != "" && entry.Level != levelFilter {
			return
		}
		if sourceFilter != "" && entry.Source != sourceFilter {
			return
		}
		if projectID != "" && entry.ProjectID != projectID {
			return
		}
		if !since.IsZero() && entry.Timestamp.Before(since) {
			return
		}
		if !until.IsZero() && entry.Timestamp.After(until) {
			return
		}
		out = append(out, entry)
	})

	for i := 0; i < len(out)/2; i++ {
		out[i], out[len(out)-1-i] = out[len(out)-1-i], out[i]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Query runs against Postgres when configured, falling back to the
// in-memory buffer otherwise.
func (m *Manager) Query(limit int, levelFilter, sourceFilter, projectID string, since, until time.Time) ([]Entry, error) {
	if m.db == nil {
		return m.GetRecent(limit, levelFilter, sourceFilter, projectID, since, until), nil
	}

	query := `SELECT id, timestamp, level, source, message, metadata_json FROM control_plane_logs WHERE 1=1`
	var args []interface{}

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}
	if !until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, until)
	}
	if levelFilter != "" {
		query += " AND level = ?"
		args = append(args, levelFilter)
	}
	if sourceFilter != "" {
		query += " AND source = ?"
		args = append(args, sourceFilter)
	}
	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.Query(rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query control_plane_logs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var metadataJSON *string
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Level, &entry.Source, &entry.Message, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan control_plane_log: %w", err)
		}
		if metadataJSON != nil && *metadataJSON != "" {
			if err := json.Unmarshal([]byte(*metadataJSON), &entry.Metadata); err != nil {
				log.Printf("cplog: unmarshal metadata failed: %v", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// AddHandler registers a handler invoked (in its own goroutine) for every
// new entry. Used to fan log lines out to SSE subscribers.
func (m *Manager) AddHandler(h func(Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Manager) Debug(source, message, projectID string, metadata map[string]interface{}) {
	m.Log(LevelDebug, source, message, projectID, metadata)
}

func (m *Manager) Info(source, message, projectID string, metadata map[string]interface{}) {
	m.Log(LevelInfo, source, message, projectID, metadata)
}

func (m *Manager) Warn(source, message, projectID string, metadata map[string]interface{}) {
	m.Log(LevelWarn, source, message, projectID, metadata)
}

func (m *Manager) Error(source, message, projectID string, metadata map[string]interface{}) {
	m.Log(LevelError, source, message, projectID, metadata)
}

// interceptWriter redirects the standard log package through the manager.
type interceptWriter struct {
	manager *Manager
}

func (w *interceptWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if len(msg) > 20 && msg[4] == '/' && msg[7] == '/' && msg[10] == ' ' {
		msg = strings.TrimSpace(msg[20:])
	}

	level := LevelInfo
	source := "system"
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "error") || strings.Contains(lower, "fail") {
		level = LevelError
	} else if strings.Contains(lower, "warn") {
		level = LevelWarn
	}

	if len(msg) > 2 && msg[0] == '[' {
		if end := strings.Index(msg, "]"); end > 1 {
			source = strings.ToLower(msg[1:end])
			msg = strings.TrimSpace(msg[end+1:])
		}
	}

	w.manager.Log(level, source, msg, "", nil)
	return len(p), nil
}

// InstallInterceptor redirects the standard log package's output through
// this manager. Call once at startup.
func (m *Manager) InstallInterceptor() {
	log.SetOutput(&interceptWriter{manager: m})
	log.SetFlags(0)
}
