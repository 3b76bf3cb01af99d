// Package sqlite provides a SQLite-backed catalog store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/paid-chapter-feed/internal/catalog"
)

const aliasSeparator = "\x1f"

// CatalogStore keeps the tracked-novel catalog in a SQLite database file.
type CatalogStore struct {
	db      *sql.DB
	baseURL string
}

// NewCatalogStore opens (or creates) the database at dbPath.
func NewCatalogStore(dbPath, baseURL string) (*CatalogStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &CatalogStore{db: db, baseURL: baseURL}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *CatalogStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS novels (
		position INTEGER NOT NULL DEFAULT 0,
		title TEXT PRIMARY KEY,
		translator TEXT NOT NULL,
		source_url TEXT NOT NULL DEFAULT '',
		cover_image TEXT NOT NULL DEFAULT '',
		adult INTEGER NOT NULL DEFAULT 0,
		aliases TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS roles (
		translator TEXT PRIMARY KEY,
		role TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *CatalogStore) Close() error {
	return s.db.Close()
}

// Load reads the stored catalog.
func (s *CatalogStore) Load(ctx context.Context) (*catalog.Catalog, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT title, translator, source_url, cover_image, adult, aliases FROM novels ORDER BY position, title")
	if err != nil {
		return nil, fmt.Errorf("failed to query novels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var novels []catalog.Novel
	for rows.Next() {
		var (
			n       catalog.Novel
			adult   int
			aliases string
		)
		if err := rows.Scan(&n.Title, &n.Translator, &n.SourceURL, &n.CoverImage, &adult, &aliases); err != nil {
			return nil, fmt.Errorf("failed to scan novel: %w", err)
		}
		n.Adult = adult != 0
		if aliases != "" {
			n.Aliases = strings.Split(aliases, aliasSeparator)
		}
		novels = append(novels, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate novels: %w", err)
	}

	roles, err := s.loadRoles(ctx)
	if err != nil {
		return nil, err
	}
	c, err := catalog.New(s.baseURL, novels, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}
	return c, nil
}

func (s *CatalogStore) loadRoles(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT translator, role FROM roles")
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	roles := map[string]string{}
	for rows.Next() {
		var translator, role string
		if err := rows.Scan(&translator, &role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles[translator] = role
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

// Replace atomically swaps the stored catalog for c.
func (s *CatalogStore) Replace(ctx context.Context, c *catalog.Catalog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := replaceTx(ctx, tx, c); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	return nil
}

func replaceTx(ctx context.Context, tx *sql.Tx, c *catalog.Catalog) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM novels"); err != nil {
		return fmt.Errorf("failed to clear novels: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM roles"); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	for i, n := range c.Novels() {
		adult := 0
		if n.Adult {
			adult = 1
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO novels (position, title, translator, source_url, cover_image, adult, aliases) VALUES (?, ?, ?, ?, ?, ?, ?)",
			i, n.Title, n.Translator, n.SourceURL, n.CoverImage, adult, strings.Join(n.Aliases, aliasSeparator))
		if err != nil {
			return fmt.Errorf("failed to insert novel %q: %w", n.Title, err)
		}
	}
	roles := c.Roles()
	translators := make([]string, 0, len(roles))
	for t := range roles {
		translators = append(translators, t)
	}
	sort.Strings(translators)
	for _, t := range translators {
		if _, err := tx.ExecContext(ctx, "INSERT INTO roles (translator, role) VALUES (?, ?)", t, roles[t]); err != nil {
			return fmt.Errorf("failed to insert role %q: %w", t, err)
		}
	}
	return nil
}
