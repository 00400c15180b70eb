package project

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/MeKo-Tech/wallsight/internal/calibration"
	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	quad_json        TEXT NOT NULL,
	source_width     INTEGER NOT NULL DEFAULT 0,
	source_height    INTEGER NOT NULL DEFAULT 0,
	calibration_json TEXT,
	fingerprint      BLOB,
	target_png       BLOB,
	created_at_ns    INTEGER NOT NULL,
	updated_at_ns    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_created ON projects (created_at_ns);
`

// SQLiteStore keeps projects in a single SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open project database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, p *Project) error {
	if err := prepare(p, s.now()); err != nil {
		return err
	}

	quadJSON, err := json.Marshal(p.Quad)
	if err != nil {
		return fmt.Errorf("encode quad: %w", err)
	}
	var calibJSON sql.NullString
	if p.Calibration != nil {
		data, err := json.Marshal(p.Calibration)
		if err != nil {
			return fmt.Errorf("encode calibration: %w", err)
		}
		calibJSON = sql.NullString{String: string(data), Valid: true}
	}
	var fpBlob []byte
	if p.Fingerprint != nil {
		if fpBlob, err = p.Fingerprint.MarshalBinary(); err != nil {
			return fmt.Errorf("encode fingerprint: %w", err)
		}
	}
	var targetBlob []byte
	if p.Target != nil {
		var buf bytes.Buffer
		if err := utils.EncodePNG(&buf, p.Target); err != nil {
			return fmt.Errorf("encode target image: %w", err)
		}
		targetBlob = buf.Bytes()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (
			id, name, quad_json, source_width, source_height,
			calibration_json, fingerprint, target_png, created_at_ns, updated_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			quad_json = excluded.quad_json,
			source_width = excluded.source_width,
			source_height = excluded.source_height,
			calibration_json = excluded.calibration_json,
			fingerprint = excluded.fingerprint,
			target_png = excluded.target_png,
			updated_at_ns = excluded.updated_at_ns`,
		p.ID, p.Name, string(quadJSON), p.SourceWidth, p.SourceHeight,
		calibJSON, fpBlob, targetBlob, p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, quad_json, source_width, source_height,
		       calibration_json, fingerprint, created_at_ns, updated_at_ns, target_png
		FROM projects
		WHERE id = ?`, id)

	var target []byte
	p, err := scanProject(row, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if len(target) > 0 {
		img, _, err := utils.DecodeImage(bytes.NewReader(target))
		if err != nil {
			return nil, fmt.Errorf("decode target image: %w", err)
		}
		p.Target = img
	}
	return p, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, quad_json, source_width, source_height,
		       calibration_json, fingerprint, created_at_ns, updated_at_ns
		FROM projects
		ORDER BY created_at_ns, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

// scanProject reads the common project columns, followed by any extra
// destinations.
func scanProject(row rowScanner, extra ...any) (*Project, error) {
	var (
		p           Project
		quadJSON    string
		calibJSON   sql.NullString
		fpBlob      []byte
		createdAtNs int64
		updatedAtNs int64
	)
	dest := append([]any{
		&p.ID, &p.Name, &quadJSON, &p.SourceWidth, &p.SourceHeight,
		&calibJSON, &fpBlob, &createdAtNs, &updatedAtNs,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project row: %w", err)
	}

	var q geometry.Quad
	if err := json.Unmarshal([]byte(quadJSON), &q); err != nil {
		return nil, fmt.Errorf("decode quad of %s: %w", p.ID, err)
	}
	p.Quad = q
	if calibJSON.Valid {
		var c calibration.Quaternion
		if err := json.Unmarshal([]byte(calibJSON.String), &c); err != nil {
			return nil, fmt.Errorf("decode calibration of %s: %w", p.ID, err)
		}
		p.Calibration = &c
	}
	if len(fpBlob) > 0 {
		fp := new(features.Fingerprint)
		if err := fp.UnmarshalBinary(fpBlob); err != nil {
			return nil, fmt.Errorf("decode fingerprint of %s: %w", p.ID, err)
		}
		p.Fingerprint = fp
	}
	p.CreatedAt = time.Unix(0, createdAtNs).UTC()
	p.UpdatedAt = time.Unix(0, updatedAtNs).UTC()
	return &p, nil
}
