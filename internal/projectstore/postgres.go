package projectstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
)

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL, the same
// helper used throughout the rest of this codebase's database layer.
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

// PostgresStore is the production Store, backed by database/sql + lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens the DSN, pings it, and ensures the schema exists.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id                 TEXT PRIMARY KEY,
			owner_id           TEXT NOT NULL,
			title              TEXT,
			description        TEXT,
			kind               TEXT NOT NULL,
			repo_url           TEXT,
			branch             TEXT,
			spec               TEXT,
			status             TEXT NOT NULL,
			container_id       TEXT,
			last_error         TEXT,
			refactor_thread_id TEXT,
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create projects table: %w", err)
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_container_id ON projects(container_id) WHERE container_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (*Project, error) {
	now := time.Now().UTC()
	p := &Project{
		ID:          "proj-" + uuid.NewString(),
		OwnerID:     in.OwnerID,
		Title:       in.Title,
		Description: in.Description,
		Kind:        in.Kind,
		RepoURL:     in.RepoURL,
		Branch:      in.Branch,
		Spec:        in.Spec,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, rebind(`
		INSERT INTO projects (id, owner_id, title, description, kind, repo_url, branch, spec, status, container_id, last_error, refactor_thread_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?)
	`), p.ID, p.OwnerID, p.Title, p.Description, string(p.Kind), nullable(p.RepoURL), nullable(p.Branch), p.Spec, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, rebind(`
		SELECT id, owner_id, title, description, kind, repo_url, branch, spec, status, container_id, last_error, refactor_thread_id, created_at, updated_at
		FROM projects WHERE id = ?
	`), id)
	return scanProject(row)
}

func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]*Project, error) {
	query := `SELECT id, owner_id, title, description, kind, repo_url, branch, spec, status, container_id, last_error, refactor_thread_id, created_at, updated_at FROM projects`
	args := []interface{}{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id string, in UpdateInput) (*Project, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Spec != nil {
		p.Spec = *in.Spec
	}
	p.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, rebind(`
		UPDATE projects SET title = ?, description = ?, spec = ?, updated_at = ? WHERE id = ?
	`), p.Title, p.Description, p.Spec, p.UpdatedAt, p.ID)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, rebind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ctlerrors.ErrProjectNotFound, id)
	}
	return nil
}

// CompareAndSwap implements the status-transition CAS described in
// spec.md §4.4: the write conditions on the pre-transition status, and
// a lost race surfaces ErrConflictingState rather than silently
// clobbering a concurrent writer's change.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, id string, from Status, mutate func(*Project)) (*Project, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, fmt.Errorf("%w: project %s is %s, wanted %s", ctlerrors.ErrConflictingState, id, current.Status, from)
	}

	next := *current
	mutate(&next)
	next.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, rebind(`
		UPDATE projects
		SET status = ?, container_id = ?, last_error = ?, refactor_thread_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), string(next.Status), nullable(next.ContainerID), nullable(next.LastError), nullable(next.RefactorThreadID), next.UpdatedAt, id, string(from))
	if err != nil {
		// 23505 is unique_violation: another project already holds this
		// container_id (idx_projects_container_id).
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: project %s: %v", ctlerrors.ErrConflictingState, id, err)
		}
		return nil, fmt.Errorf("transition project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition project: %w", err)
	}
	if n == 0 {
		// Someone else won the race (or deleted the row) between our
		// read and our write; re-check which to report accurately.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: project %s changed concurrently", ctlerrors.ErrConflictingState, id)
	}
	return &next, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*Project, error) {
	return doScan(row)
}

func scanProjectRows(rows *sql.Rows) (*Project, error) {
	return doScan(rows)
}

func doScan(row rowScanner) (*Project, error) {
	var p Project
	var kind, status string
	var repoURL, branch, containerID, lastError, threadID sql.NullString

	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &kind, &repoURL, &branch, &p.Spec,
		&status, &containerID, &lastError, &threadID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w", ctlerrors.ErrProjectNotFound)
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}

	p.Kind = Kind(kind)
	p.Status = Status(status)
	p.RepoURL = repoURL.String
	p.Branch = branch.String
	p.ContainerID = containerID.String
	p.LastError = lastError.String
	p.RefactorThreadID = threadID.String
	return &p, nil
}
