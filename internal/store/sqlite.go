package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sails-verify/program-verifier/internal/domain"
)

// SQLiteStore is a SQLite-backed Store, the durable default for a
// single-instance deployment: a single file, no external database to run.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures its schema exists. WAL mode is enabled for concurrent readers
// while the scheduler writes.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS verifications (
			id TEXT PRIMARY KEY,
			repo_link TEXT NOT NULL,
			code_id TEXT NOT NULL,
			project_name TEXT,
			manifest_path TEXT,
			base_path TEXT,
			build_idl INTEGER NOT NULL,
			version TEXT NOT NULL,
			network TEXT NOT NULL,
			status TEXT NOT NULL,
			failed_reason TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verifications_status ON verifications(status)`,
		`CREATE INDEX IF NOT EXISTS idx_verifications_code_id ON verifications(code_id)`,
		`CREATE TABLE IF NOT EXISTS codes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			repo_link TEXT NOT NULL,
			idl_hash TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS idls (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) InsertVerification(ctx context.Context, v domain.Verification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verifications
			(id, repo_link, code_id, project_name, manifest_path, base_path, build_idl, version, network, status, failed_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.RepoLink, v.CodeID, v.ProjectName, v.ManifestPath, v.BasePath,
		boolToInt(v.BuildIDL), v.Version, string(v.Network), string(v.Status), v.FailedReason,
		v.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetVerification(ctx context.Context, id string) (domain.Verification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_link, code_id, project_name, manifest_path, base_path, build_idl, version, network, status, failed_reason, created_at
		FROM verifications WHERE id = ?`, id)
	v, err := scanVerification(row)
	if err == sql.ErrNoRows {
		return domain.Verification{}, ErrNotFound
	}
	if err != nil {
		return domain.Verification{}, fmt.Errorf("get verification: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status domain.Status, failedReason *string) error {
	var reason *string
	if status == domain.StatusFailed {
		reason = failedReason
	}
	res, err := s.db.ExecContext(ctx, `UPDATE verifications SET status = ?, failed_reason = ? WHERE id = ?`, string(status), reason, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ResetInProgress(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE verifications SET status = ? WHERE status = ?`,
		string(domain.StatusPending), string(domain.StatusInProgress))
	if err != nil {
		return 0, fmt.Errorf("reset in progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset in progress rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) AnyInProgressForCode(ctx context.Context, codeID, exceptID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verifications WHERE code_id = ? AND status = ? AND id != ?`,
		codeID, string(domain.StatusInProgress), exceptID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("any in progress for code: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) ListPending(ctx context.Context, limit int) ([]domain.Verification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_link, code_id, project_name, manifest_path, base_path, build_idl, version, network, status, failed_reason, created_at
		FROM verifications WHERE status = ? ORDER BY created_at ASC LIMIT ?`, string(domain.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) InsertCode(ctx context.Context, c domain.Code) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO codes (id, name, repo_link, idl_hash) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, repo_link = excluded.repo_link, idl_hash = excluded.idl_hash`,
		c.ID, c.Name, c.RepoLink, c.IdlHash)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCode(ctx context.Context, id string) (domain.Code, error) {
	var c domain.Code
	err := s.db.QueryRowContext(ctx, `SELECT id, name, repo_link, idl_hash FROM codes WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.RepoLink, &c.IdlHash)
	if err == sql.ErrNoRows {
		return domain.Code{}, ErrNotFound
	}
	if err != nil {
		return domain.Code{}, fmt.Errorf("get code: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetCodes(ctx context.Context, limit, offset int) ([]domain.Code, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, repo_link, idl_hash FROM codes ORDER BY id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Code
	for rows.Next() {
		var c domain.Code
		if err := rows.Scan(&c.ID, &c.Name, &c.RepoLink, &c.IdlHash); err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get codes rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) InsertIdl(ctx context.Context, i domain.Idl) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idls (id, content) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content`, i.ID, i.Content)
	if err != nil {
		return fmt.Errorf("insert idl: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIdl(ctx context.Context, id string) (domain.Idl, error) {
	var i domain.Idl
	err := s.db.QueryRowContext(ctx, `SELECT id, content FROM idls WHERE id = ?`, id).Scan(&i.ID, &i.Content)
	if err == sql.ErrNoRows {
		return domain.Idl{}, ErrNotFound
	}
	if err != nil {
		return domain.Idl{}, fmt.Errorf("get idl: %w", err)
	}
	return i, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts over *sql.Row and *sql.Rows, both satisfied by Scan.
type scanner interface {
	Scan(dest ...any) error
}

func scanVerification(row scanner) (domain.Verification, error) {
	var (
		v            domain.Verification
		buildIDL     int
		network      string
		status       string
		createdAtStr string
	)
	if err := row.Scan(&v.ID, &v.RepoLink, &v.CodeID, &v.ProjectName, &v.ManifestPath, &v.BasePath,
		&buildIDL, &v.Version, &network, &status, &v.FailedReason, &createdAtStr); err != nil {
		return domain.Verification{}, err
	}
	v.BuildIDL = buildIDL != 0
	v.Network = domain.Network(network)
	parsedStatus, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Verification{}, fmt.Errorf("decode verification status: %w", err)
	}
	v.Status = parsedStatus
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return domain.Verification{}, fmt.Errorf("parse created_at: %w", err)
	}
	v.CreatedAt = createdAt
	return v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
