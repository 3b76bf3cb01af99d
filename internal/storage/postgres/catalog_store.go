// Package postgres provides a Postgres-backed catalog store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/paid-chapter-feed/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CatalogStoreConfig controls the Postgres connection pool used for catalog rows.
type CatalogStoreConfig struct {
	DSN             string
	NovelsTable     string
	RolesTable      string
	BaseURL         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// CatalogStore reads and replaces the tracked-novel catalog in Postgres.
type CatalogStore struct {
	pool        pool
	novelsTable string
	rolesTable  string
	baseURL     string
}

// NewCatalogStore creates a Postgres-backed CatalogStore using the provided config.
func NewCatalogStore(ctx context.Context, cfg CatalogStoreConfig) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("catalog.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewCatalogStoreWithPool(p, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(p pool, cfg CatalogStoreConfig) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	novels := cfg.NovelsTable
	if novels == "" {
		novels = "catalog_novels"
	}
	roles := cfg.RolesTable
	if roles == "" {
		roles = "catalog_roles"
	}
	for _, table := range []string{novels, roles} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &CatalogStore{pool: p, novelsTable: novels, rolesTable: roles, baseURL: cfg.BaseURL}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the catalog tables when missing.
func (s *CatalogStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, s.Schema()); err != nil {
		return fmt.Errorf("create catalog schema: %w", err)
	}
	return nil
}

// Load reads every novel and translator role and builds a Catalog.
func (s *CatalogStore) Load(ctx context.Context) (*catalog.Catalog, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("catalog store is not configured")
	}
	novels, err := s.loadNovels(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := s.loadRoles(ctx)
	if err != nil {
		return nil, err
	}
	c, err := catalog.New(s.baseURL, novels, roles)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return c, nil
}

func (s *CatalogStore) loadNovels(ctx context.Context) ([]catalog.Novel, error) {
	query := fmt.Sprintf(`
SELECT title, translator, source_url, cover_image, adult, aliases
FROM %s
ORDER BY position, title`, s.novelsTable)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query novels: %w", err)
	}
	defer rows.Close()

	var novels []catalog.Novel
	for rows.Next() {
		var n catalog.Novel
		if err := rows.Scan(&n.Title, &n.Translator, &n.SourceURL, &n.CoverImage, &n.Adult, &n.Aliases); err != nil {
			return nil, fmt.Errorf("scan novel: %w", err)
		}
		novels = append(novels, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate novels: %w", err)
	}
	return novels, nil
}

func (s *CatalogStore) loadRoles(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT translator, role FROM %s`, s.rolesTable))
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := map[string]string{}
	for rows.Next() {
		var translator, role string
		if err := rows.Scan(&translator, &role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles[translator] = role
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

// Replace atomically swaps the stored catalog for c.
func (s *CatalogStore) Replace(ctx context.Context, c *catalog.Catalog) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if _, err = tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.novelsTable)); err != nil {
		return fmt.Errorf("clear novels: %w", err)
	}
	if _, err = tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.rolesTable)); err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}
	insertNovel := fmt.Sprintf(`
INSERT INTO %s (position, title, translator, source_url, cover_image, adult, aliases)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.novelsTable)
	for i, n := range c.Novels() {
		aliases := n.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		if _, err = tx.Exec(ctx, insertNovel, i, n.Title, n.Translator, n.SourceURL, n.CoverImage, n.Adult, aliases); err != nil {
			return fmt.Errorf("insert novel %q: %w", n.Title, err)
		}
	}
	insertRole := fmt.Sprintf(`INSERT INTO %s (translator, role) VALUES ($1, $2)`, s.rolesTable)
	roles := c.Roles()
	for _, translator := range sortedKeys(roles) {
		if _, err = tx.Exec(ctx, insertRole, translator, roles[translator]); err != nil {
			return fmt.Errorf("insert role %q: %w", translator, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit catalog: %w", err)
	}
	return nil
}
