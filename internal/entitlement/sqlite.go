package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the entitlement record in SQLite: scalar fields in
// a key-value settings table, consumed pages in their own table so the
// insertion order survives restarts.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the entitlement database in dataDir.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "entitlement.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open entitlement db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Join(err, fmt.Errorf("close entitlement db after schema init failure: %w", closeErr))
		}
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS used_pages (
		page_key TEXT PRIMARY KEY,
		position INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_used_pages_position ON used_pages(position);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init entitlement schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getLocked(ctx)
}

func (s *SQLiteStore) getLocked(ctx context.Context) (Record, error) {
	rec := DefaultRecord()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Record{}, fmt.Errorf("read entitlement settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Record{}, fmt.Errorf("scan entitlement setting: %w", err)
		}
		switch key {
		case "enabled":
			rec.Enabled = value == "true"
		case "mode":
			rec.Mode = Mode(value)
		case "theme":
			rec.Theme = Theme(value)
		case "status":
			rec.Status = Status(value)
		case "plan":
			rec.Plan = Plan(value)
		case "productPermalink":
			rec.ProductPermalink = value
		case "licenseKey":
			rec.LicenseKey = value
		case "pageQuota":
			if quota, err := strconv.Atoi(value); err == nil {
				rec.PageQuota = quota
			}
		}
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("iterate entitlement settings: %w", err)
	}

	pageRows, err := s.db.QueryContext(ctx, `SELECT page_key FROM used_pages ORDER BY position`)
	if err != nil {
		return Record{}, fmt.Errorf("read used pages: %w", err)
	}
	defer pageRows.Close()

	pages := []string{}
	for pageRows.Next() {
		var key string
		if err := pageRows.Scan(&key); err != nil {
			return Record{}, fmt.Errorf("scan used page: %w", err)
		}
		pages = append(pages, key)
	}
	if err := pageRows.Err(); err != nil {
		return Record{}, fmt.Errorf("iterate used pages: %w", err)
	}
	rec.UsedPages = pages

	rec.ApplyDefaults()
	return rec, nil
}

func (s *SQLiteStore) Set(ctx context.Context, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entitlement write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := func(key, value string) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value)
		if err != nil {
			return fmt.Errorf("write entitlement setting %q: %w", key, err)
		}
		return nil
	}

	if m.Enabled != nil {
		if err := upsert("enabled", strconv.FormatBool(*m.Enabled)); err != nil {
			return err
		}
	}
	if m.Mode != nil {
		if err := upsert("mode", string(*m.Mode)); err != nil {
			return err
		}
	}
	if m.Theme != nil {
		if err := upsert("theme", string(*m.Theme)); err != nil {
			return err
		}
	}
	if m.Status != nil {
		if err := upsert("status", string(*m.Status)); err != nil {
			return err
		}
	}
	if m.Plan != nil {
		if err := upsert("plan", string(*m.Plan)); err != nil {
			return err
		}
	}
	if m.ProductPermalink != nil {
		if err := upsert("productPermalink", *m.ProductPermalink); err != nil {
			return err
		}
	}
	if m.LicenseKey != nil {
		if err := upsert("licenseKey", *m.LicenseKey); err != nil {
			return err
		}
	}
	if m.PageQuota != nil {
		if err := upsert("pageQuota", strconv.Itoa(*m.PageQuota)); err != nil {
			return err
		}
	}

	if m.SetUsedPages {
		if _, err := tx.ExecContext(ctx, `DELETE FROM used_pages`); err != nil {
			return fmt.Errorf("clear used pages: %w", err)
		}
		for i, key := range m.UsedPages {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO used_pages (page_key, position) VALUES (?, ?)`,
				key, i); err != nil {
				return fmt.Errorf("write used page %q: %w", key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entitlement write: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
