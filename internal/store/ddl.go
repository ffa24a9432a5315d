package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/crudkit/internal/ir"
)

// DDL returns the CREATE statements for the given entities in order: entity
// tables, then association tables, then indexes. Every statement is
// idempotent. Identifiers come from validated specs; enum values are the only
// literals and are quoted.
func DDL(specs []ir.EntitySpec) []string {
	byName := make(map[string]*ir.EntitySpec, len(specs))
	for i := range specs {
		byName[specs[i].Name] = &specs[i]
	}

	var tables, links, indexes []string
	for i := range specs {
		spec := &specs[i]
		tables = append(tables, createTable(spec, byName))
		indexes = append(indexes, createIndexes(spec)...)
		for _, l := range spec.Links {
			target, ok := byName[l.Target]
			if !ok {
				continue
			}
			stmt, idx := createLinkTable(spec, l, target)
			links = append(links, stmt)
			indexes = append(indexes, idx...)
		}
	}

	out := make([]string, 0, len(tables)+len(links)+len(indexes))
	out = append(out, tables...)
	out = append(out, links...)
	return append(out, indexes...)
}

func createTable(spec *ir.EntitySpec, byName map[string]*ir.EntitySpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", spec.Table)
	b.WriteString("  id INTEGER PRIMARY KEY AUTOINCREMENT")

	for _, f := range spec.Fields {
		b.WriteString(",\n  ")
		b.WriteString(columnDef(f, byName))
	}
	b.WriteString(",\n  created_at TEXT NOT NULL")
	b.WriteString(",\n  updated_at TEXT NOT NULL")
	b.WriteString("\n)")
	return b.String()
}

// columnDef renders one column. Dates and timestamps are declared TEXT so
// the driver hands back the stored string instead of parsing it.
func columnDef(f ir.FieldSpec, byName map[string]*ir.EntitySpec) string {
	parts := []string{f.Name, columnType(f.Type)}
	if !f.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if f.Unique {
		parts = append(parts, "UNIQUE")
	}
	switch f.Type {
	case ir.TypeEnum:
		quoted := make([]string, len(f.Values))
		for i, v := range f.Values {
			quoted[i] = quoteLiteral(v)
		}
		parts = append(parts, fmt.Sprintf("CHECK (%s IN (%s))", f.Name, strings.Join(quoted, ", ")))
	case ir.TypeBool:
		parts = append(parts, fmt.Sprintf("CHECK (%s IN (0, 1))", f.Name))
	}
	if f.References != "" {
		if parent, ok := byName[f.References]; ok {
			parts = append(parts, fmt.Sprintf("REFERENCES %s(id) ON DELETE %s", parent.Table, onDeleteAction(f.OnDelete)))
		}
	}
	return strings.Join(parts, " ")
}

func columnType(t ir.FieldType) string {
	switch t {
	case ir.TypeInt, ir.TypeBool:
		return "INTEGER"
	case ir.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func onDeleteAction(action string) string {
	switch action {
	case ir.OnDeleteCascade:
		return "CASCADE"
	case ir.OnDeleteSetNull:
		return "SET NULL"
	default:
		return "RESTRICT"
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// createIndexes indexes FK and indexed columns, plus composite uniques.
// Single-column UNIQUE already carries an implicit index.
func createIndexes(spec *ir.EntitySpec) []string {
	var out []string
	for _, f := range spec.Fields {
		if f.Unique || (!f.Indexed && f.References == "") {
			continue
		}
		out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
			spec.Table, f.Name, spec.Table, f.Name))
	}
	for _, cols := range spec.Uniques {
		out = append(out, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS uq_%s_%s ON %s(%s)",
			spec.Table, strings.Join(cols, "_"), spec.Table, strings.Join(cols, ", ")))
	}
	return out
}

// createLinkTable renders an association table. Both FKs cascade so deleting
// either side drops its associations.
func createLinkTable(owner *ir.EntitySpec, l ir.LinkSpec, target *ir.EntitySpec) (string, []string) {
	ownerCol := l.OwnerColumn(owner)
	targetCol := l.TargetColumn()
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  %s INTEGER NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  %s INTEGER NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  UNIQUE (%s, %s)
)`, l.Table, ownerCol, owner.Table, targetCol, target.Table, ownerCol, targetCol)

	idx := []string{fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
		l.Table, targetCol, l.Table, targetCol)}
	return stmt, idx
}

// Migrate creates any missing entity tables, association tables and indexes,
// then records each spec's digest in schema_meta. It runs in one transaction.
//
// Existing tables are never altered. When a spec's digest differs from the
// recorded one, a warning is logged and the new digest is stored.
func (s *Store) Migrate(ctx context.Context, specs []ir.EntitySpec) error {
	for i := range specs {
		if _, ok := findSpec(specs, specs[i].Name); !ok {
			return fmt.Errorf("migrate: entity %q listed twice or missing", specs[i].Name)
		}
		for _, l := range specs[i].Links {
			if _, ok := findSpec(specs, l.Target); !ok {
				return fmt.Errorf("migrate: %s.%s targets unknown entity %q", specs[i].Name, l.Name, l.Target)
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "migrate", Err: err}
	}
	defer tx.Rollback()

	for _, stmt := range DDL(specs) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &StorageError{Op: "migrate", Err: fmt.Errorf("exec %q: %w", firstLine(stmt), err)}
		}
	}

	now := ir.FormatStorageTime(s.clock.Now())
	for i := range specs {
		if err := s.recordSpec(ctx, tx, &specs[i], now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "migrate", Err: err}
	}

	for i := range specs {
		spec := specs[i]
		s.entities[spec.Name] = &spec
	}
	s.logger.Debug("schema migrated", zap.Int("entities", len(specs)))
	return nil
}

func (s *Store) recordSpec(ctx context.Context, tx *sql.Tx, spec *ir.EntitySpec, now string) error {
	digest, err := ir.SpecDigest(*spec)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", spec.Name, err)
	}

	var prev string
	err = tx.QueryRowContext(ctx, "SELECT spec_digest FROM schema_meta WHERE entity = ?", spec.Name).Scan(&prev)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return &StorageError{Op: "migrate", Err: err}
	case prev == digest:
		return nil
	default:
		s.logger.Warn("entity spec changed since its table was created; existing columns are left as they are",
			zap.String("entity", spec.Name),
			zap.String("table", spec.Table),
			zap.String("previous_digest", prev),
			zap.String("digest", digest))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_meta (entity, table_name, spec_digest, ir_version, migrated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity) DO UPDATE SET
			table_name = excluded.table_name,
			spec_digest = excluded.spec_digest,
			ir_version = excluded.ir_version,
			migrated_at = excluded.migrated_at
	`, spec.Name, spec.Table, digest, ir.IRVersion, now)
	if err != nil {
		return &StorageError{Op: "migrate", Err: err}
	}
	return nil
}

// SpecDigests returns the recorded digest per entity.
func (s *Store) SpecDigests(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT entity, spec_digest FROM schema_meta ORDER BY entity")
	if err != nil {
		return nil, &StorageError{Op: "read schema_meta", Err: err}
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var entity, digest string
		if err := rows.Scan(&entity, &digest); err != nil {
			return nil, &StorageError{Op: "read schema_meta", Err: err}
		}
		out[entity] = digest
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read schema_meta", Err: err}
	}
	return out, nil
}

func findSpec(specs []ir.EntitySpec, name string) (*ir.EntitySpec, bool) {
	var found *ir.EntitySpec
	for i := range specs {
		if specs[i].Name == name {
			if found != nil {
				return nil, false
			}
			found = &specs[i]
		}
	}
	return found, found != nil
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(stmt, "\n")
	return line
}
