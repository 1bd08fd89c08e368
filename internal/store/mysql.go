package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/sails-verify/program-verifier/internal/domain"
)

// MySQLStore is a MySQL-backed Store, for operators who run the service
// against a shared relational cluster instead of a local SQLite file.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn (a go-sql-driver/mysql
// DSN, e.g. "user:pass@tcp(host:3306)/dbname?parseTime=true") and ensures
// its schema exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS verifications (
			id VARCHAR(64) PRIMARY KEY,
			repo_link TEXT NOT NULL,
			code_id VARCHAR(64) NOT NULL,
			project_name VARCHAR(255),
			manifest_path VARCHAR(1024),
			base_path VARCHAR(1024),
			build_idl TINYINT NOT NULL,
			version VARCHAR(32) NOT NULL,
			network VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			failed_reason TEXT,
			created_at TIMESTAMP(6) NOT NULL,
			INDEX idx_verifications_status (status),
			INDEX idx_verifications_code_id (code_id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS codes (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			repo_link TEXT NOT NULL,
			idl_hash VARCHAR(64)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS idls (
			id VARCHAR(64) PRIMARY KEY,
			content LONGTEXT NOT NULL
		) ENGINE=InnoDB`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *MySQLStore) InsertVerification(ctx context.Context, v domain.Verification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verifications
			(id, repo_link, code_id, project_name, manifest_path, base_path, build_idl, version, network, status, failed_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.RepoLink, v.CodeID, v.ProjectName, v.ManifestPath, v.BasePath,
		boolToInt(v.BuildIDL), v.Version, string(v.Network), string(v.Status), v.FailedReason, v.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetVerification(ctx context.Context, id string) (domain.Verification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_link, code_id, project_name, manifest_path, base_path, build_idl, version, network, status, failed_reason, created_at
		FROM verifications WHERE id = ?`, id)
	v, err := scanVerificationMySQL(row)
	if err == sql.ErrNoRows {
		return domain.Verification{}, ErrNotFound
	}
	if err != nil {
		return domain.Verification{}, fmt.Errorf("get verification: %w", err)
	}
	return v, nil
}

func (s *MySQLStore) UpdateStatus(ctx context.Context, id string, status domain.Status, failedReason *string) error {
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

func (s *MySQLStore) ResetInProgress(ctx context.Context) (int, error) {
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

func (s *MySQLStore) AnyInProgressForCode(ctx context.Context, codeID, exceptID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verifications WHERE code_id = ? AND status = ? AND id != ?`,
		codeID, string(domain.StatusInProgress), exceptID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("any in progress for code: %w", err)
	}
	return count > 0, nil
}

func (s *MySQLStore) ListPending(ctx context.Context, limit int) ([]domain.Verification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_link, code_id, project_name, manifest_path, base_path, build_idl, version, network, status, failed_reason, created_at
		FROM verifications WHERE status = ? ORDER BY created_at ASC LIMIT ?`, string(domain.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Verification
	for rows.Next() {
		v, err := scanVerificationMySQL(rows)
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

func (s *MySQLStore) InsertCode(ctx context.Context, c domain.Code) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO codes (id, name, repo_link, idl_hash) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), repo_link = VALUES(repo_link), idl_hash = VALUES(idl_hash)`,
		c.ID, c.Name, c.RepoLink, c.IdlHash)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetCode(ctx context.Context, id string) (domain.Code, error) {
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

func (s *MySQLStore) GetCodes(ctx context.Context, limit, offset int) ([]domain.Code, error) {
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

func (s *MySQLStore) InsertIdl(ctx context.Context, i domain.Idl) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idls (id, content) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE content = VALUES(content)`, i.ID, i.Content)
	if err != nil {
		return fmt.Errorf("insert idl: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetIdl(ctx context.Context, id string) (domain.Idl, error) {
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

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func scanVerificationMySQL(row scanner) (domain.Verification, error) {
	var (
		v         domain.Verification
		buildIDL  int
		network   string
		status    string
		createdAt time.Time
	)
	if err := row.Scan(&v.ID, &v.RepoLink, &v.CodeID, &v.ProjectName, &v.ManifestPath, &v.BasePath,
		&buildIDL, &v.Version, &network, &status, &v.FailedReason, &createdAt); err != nil {
		return domain.Verification{}, err
	}
	v.BuildIDL = buildIDL != 0
	v.Network = domain.Network(network)
	parsedStatus, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Verification{}, fmt.Errorf("decode verification status: %w", err)
	}
	v.Status = parsedStatus
	v.CreatedAt = createdAt
	return v, nil
}
