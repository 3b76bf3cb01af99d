package postgres

import (
	"fmt"
	"sort"
)

// Schema returns the DDL for the catalog tables.
func (s *CatalogStore) Schema() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	position    INTEGER NOT NULL DEFAULT 0,
	title       TEXT PRIMARY KEY,
	translator  TEXT NOT NULL,
	source_url  TEXT NOT NULL DEFAULT '',
	cover_image TEXT NOT NULL DEFAULT '',
	adult       BOOLEAN NOT NULL DEFAULT FALSE,
	aliases     TEXT[] NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS %s (
	translator TEXT PRIMARY KEY,
	role       TEXT NOT NULL
);`, s.novelsTable, s.rolesTable)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
