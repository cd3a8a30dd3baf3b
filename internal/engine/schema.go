// ABOUTME: Schema descriptors and the idempotent schema ensurer
// ABOUTME: Creates missing tables, backfills missing columns, and creates indexes in one transaction

package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// ColumnDef describes one column.
type ColumnDef struct {
	Name    string
	Type    string // TEXT, INTEGER, REAL, BLOB
	NotNull bool
	Default string // SQL literal, empty for none
}

// IndexDef describes a secondary index. Columns may carry collations,
// e.g. "email COLLATE NOCASE".
type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
}

// TableDef describes one table.
type TableDef struct {
	Name       string
	Columns    []ColumnDef
	PrimaryKey []string
	Indexes    []IndexDef
}

// SchemaDescriptor is an ordered set of table definitions.
type SchemaDescriptor struct {
	Tables []TableDef
}

// Table returns the definition of the named table.
func (s SchemaDescriptor) Table(name string) (TableDef, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableDef{}, false
}

// DDL renders the descriptor as SQL statements.
func (s SchemaDescriptor) DDL() string {
	var b strings.Builder
	for i, t := range s.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.createStatement())
		b.WriteString(";\n")
		for _, idx := range t.Indexes {
			b.WriteString(t.indexStatement(idx))
			b.WriteString(";\n")
		}
	}
	return b.String()
}

func (c ColumnDef) definition() string {
	def := c.Name + " " + c.Type
	if c.NotNull {
		def += " NOT NULL"
	}
	if c.Default != "" {
		def += " DEFAULT " + c.Default
	}
	return def
}

// addDefinition is the column definition used by ALTER TABLE ADD COLUMN.
// SQLite refuses NOT NULL without a default there, so such columns are
// backfilled as nullable.
func (c ColumnDef) addDefinition() string {
	if c.NotNull && c.Default == "" {
		c.NotNull = false
	}
	return c.definition()
}

func (t TableDef) createStatement() string {
	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		parts = append(parts, "\t"+c.definition())
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, "\tPRIMARY KEY ("+strings.Join(t.PrimaryKey, ", ")+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + t.Name + " (\n" + strings.Join(parts, ",\n") + "\n)"
}

func (t TableDef) indexStatement(idx IndexDef) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s(%s)", kind, idx.Name, t.Name, strings.Join(idx.Columns, ", "))
}

func (t TableDef) isPrimaryKey(column string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == column {
			return true
		}
	}
	return false
}

// EnsureReport lists the structure added by Ensure.
type EnsureReport struct {
	CreatedTables []string
	AddedColumns  []string // "table.column"
}

// Changed reports whether Ensure altered the schema.
func (r EnsureReport) Changed() bool {
	return len(r.CreatedTables) > 0 || len(r.AddedColumns) > 0
}

// Ensure applies schema to db. It is idempotent: existing tables keep their
// rows, missing tables are created, and missing columns are added.
// Everything runs in one transaction, so a failure leaves db untouched.
func Ensure(ctx context.Context, db *sql.DB, schema SchemaDescriptor, logger *slog.Logger) (EnsureReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var report EnsureReport

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range schema.Tables {
		exists, err := tableExists(ctx, tx, t.Name)
		if err != nil {
			return report, err
		}

		if !exists {
			if _, err := tx.ExecContext(ctx, t.createStatement()); err != nil {
				return report, fmt.Errorf("creating table %s: %w", t.Name, err)
			}
			report.CreatedTables = append(report.CreatedTables, t.Name)
		} else {
			for _, c := range t.Columns {
				var one int
				err := tx.QueryRowContext(ctx, `SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, t.Name, c.Name).Scan(&one)
				if err == nil {
					continue
				}
				if err != sql.ErrNoRows {
					return report, fmt.Errorf("inspecting %s.%s: %w", t.Name, c.Name, err)
				}
				if t.isPrimaryKey(c.Name) {
					return report, fmt.Errorf("table %s is missing primary key column %s", t.Name, c.Name)
				}
				stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", t.Name, c.addDefinition())
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return report, fmt.Errorf("adding %s column to %s: %w", c.Name, t.Name, err)
				}
				report.AddedColumns = append(report.AddedColumns, t.Name+"."+c.Name)
			}
		}

		for _, idx := range t.Indexes {
			if _, err := tx.ExecContext(ctx, t.indexStatement(idx)); err != nil {
				return report, fmt.Errorf("creating index %s: %w", idx.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("committing schema: %w", err)
	}

	if report.Changed() {
		logger.Info("applied schema",
			"created_tables", report.CreatedTables,
			"added_columns", report.AddedColumns)
	}
	return report, nil
}

func tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return true, nil
}
