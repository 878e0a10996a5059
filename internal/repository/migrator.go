package repository

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/models"
)

// LatestSchemaVersion is the newest schema step known to the migrator.
const LatestSchemaVersion = 4

type migrationStep struct {
	version     int
	description string
	apply       func(ctx context.Context, tx *sqlx.Tx, d dialect) error
}

// dialect smooths over DDL differences between SQLite and PostgreSQL.
type dialect struct {
	postgres bool
}

func dialectFor(db *sqlx.DB) dialect {
	return dialect{postgres: db.DriverName() == "postgres"}
}

func (d dialect) ddl(stmt string) string {
	pk, ts, money := "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP", "REAL"
	if d.postgres {
		pk, ts, money = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ", "DOUBLE PRECISION"
	}
	return strings.NewReplacer("{{pk}}", pk, "{{ts}}", ts, "{{money}}", money).Replace(stmt)
}

func (d dialect) hasColumn(ctx context.Context, tx *sqlx.Tx, table, column string) (bool, error) {
	query := "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	if d.postgres {
		query = "SELECT COUNT(*) FROM information_schema.columns WHERE table_name = ? AND column_name = ?"
	}
	var count int
	if err := tx.GetContext(ctx, &count, tx.Rebind(query), table, column); err != nil {
		return false, fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}

// addColumn reports whether the column was created by this call.
func (d dialect) addColumn(ctx context.Context, tx *sqlx.Tx, table, column, def string) (bool, error) {
	exists, err := d.hasColumn(ctx, tx, table, column)
	if err != nil || exists {
		return false, err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, d.ddl(def))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return false, fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return true, nil
}

func execAll(ctx context.Context, tx *sqlx.Tx, d dialect, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, tx.Rebind(d.ddl(stmt))); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Migrator brings the library database to LatestSchemaVersion. Every step is safe to replay.
type Migrator struct {
	db     *sqlx.DB
	logger *zap.Logger
	steps  []migrationStep
	now    func() time.Time
}

// NewMigrator constructs a Migrator.
func NewMigrator(db *sqlx.DB, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		steps: []migrationStep{
			{version: 1, description: "base tables", apply: migrateV1},
			{version: 2, description: "book grades index", apply: migrateV2},
			{version: 3, description: "quantity merge, debts and audit", apply: migrateV3},
			{version: 4, description: "taxonomy", apply: migrateV4},
		},
	}
}

// Version returns the highest applied schema version, 0 for an empty database.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := m.db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Up applies every pending step in order.
func (m *Migrator) Up(ctx context.Context) error {
	return m.MigrateTo(ctx, LatestSchemaVersion)
}

// MigrateTo applies pending steps up to and including target.
func (m *Migrator) MigrateTo(ctx context.Context, target int) error {
	if target < 1 || target > LatestSchemaVersion {
		return fmt.Errorf("unknown schema version %d", target)
	}
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	for _, step := range m.steps {
		if step.version <= current || step.version > target {
			continue
		}
		if err := m.run(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// Replay re-applies every step regardless of the recorded version.
func (m *Migrator) Replay(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}
	for _, step := range m.steps {
		if err := m.run(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	stmt := dialectFor(m.db).ddl(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at {{ts}} NOT NULL
	)`)
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) run(ctx context.Context, step migrationStep) error {
	d := dialectFor(m.db)
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", step.version, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := step.apply(ctx, tx, d); err != nil {
		return fmt.Errorf("migration v%d (%s): %w", step.version, step.description, err)
	}
	record := tx.Rebind(`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)
		ON CONFLICT (version) DO NOTHING`)
	if _, err := tx.ExecContext(ctx, record, step.version, step.description, m.now()); err != nil {
		return fmt.Errorf("record migration v%d: %w", step.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", step.version, err)
	}
	m.logger.Info("schema migration applied", zap.Int("version", step.version), zap.String("description", step.description))
	return nil
}

func migrateV1(ctx context.Context, tx *sqlx.Tx, d dialect) error {
	return execAll(ctx, tx, d,
		`CREATE TABLE IF NOT EXISTS books (
			id {{pk}},
			barcode TEXT NOT NULL,
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			grade TEXT,
			quantity_purchased INTEGER,
			quantity_donated INTEGER,
			available_quantity INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_books_barcode ON books (barcode)`,
		`CREATE TABLE IF NOT EXISTS students (
			id {{pk}},
			student_code TEXT NOT NULL,
			name TEXT NOT NULL,
			class_name TEXT NOT NULL DEFAULT '',
			contact TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_students_code ON students (student_code)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id {{pk}},
			book_id BIGINT NOT NULL,
			student_id BIGINT NOT NULL,
			action TEXT NOT NULL,
			occurred_at {{ts}} NOT NULL,
			due_date {{ts}},
			return_date {{ts}},
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_action ON transactions (action)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_book ON transactions (book_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_student ON transactions (student_id)`,
	)
}

func migrateV2(ctx context.Context, tx *sqlx.Tx, d dialect) error {
	return execAll(ctx, tx, d,
		`CREATE TABLE IF NOT EXISTS book_grades (
			book_id BIGINT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
			grade INTEGER NOT NULL,
			PRIMARY KEY (book_id, grade)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_book_grades_grade ON book_grades (grade)`,
	)
}

func migrateV3(ctx context.Context, tx *sqlx.Tx, d dialect) error {
	columns := []struct{ table, name, def string }{
		{"books", "quantity", "INTEGER NOT NULL DEFAULT 0"},
		{"books", "subject", "TEXT NOT NULL DEFAULT ''"},
		{"books", "price", "{{money}} NOT NULL DEFAULT 0"},
		{"books", "status", "TEXT NOT NULL DEFAULT 'active'"},
		{"transactions", "notes", "TEXT NOT NULL DEFAULT ''"},
	}
	added := map[string]bool{}
	for _, col := range columns {
		created, err := d.addColumn(ctx, tx, col.table, col.name, col.def)
		if err != nil {
			return err
		}
		added[col.table+"."+col.name] = created
	}

	// Legacy counts are cleared once merged so a replay cannot add them twice.
	if err := execAll(ctx, tx, d,
		`UPDATE books
			SET quantity = COALESCE(quantity_purchased, 0) + COALESCE(quantity_donated, 0),
				quantity_purchased = NULL,
				quantity_donated = NULL
			WHERE quantity_purchased IS NOT NULL OR quantity_donated IS NOT NULL`,
		`UPDATE books SET price = 0 WHERE price IS NULL`,
		`UPDATE books SET status = 'active' WHERE status IS NULL OR status = ''`,
		`UPDATE books SET available_quantity = 0 WHERE available_quantity < 0`,
		`UPDATE books SET available_quantity = quantity WHERE available_quantity > quantity`,
	); err != nil {
		return err
	}

	// Subject is seeded from category only for rows that predate the column; later books
	// may keep an empty subject on purpose.
	if added["books.subject"] {
		if err := execAll(ctx, tx, d, `UPDATE books SET subject = category WHERE subject IS NULL OR subject = ''`); err != nil {
			return err
		}
	}

	if err := normalizeLegacyGrades(ctx, tx); err != nil {
		return err
	}

	return execAll(ctx, tx, d,
		`CREATE TABLE IF NOT EXISTS bad_debts (
			id {{pk}},
			transaction_id BIGINT NOT NULL,
			book_id BIGINT NOT NULL,
			student_id BIGINT NOT NULL,
			amount {{money}} NOT NULL,
			charged_at {{ts}} NOT NULL,
			status TEXT NOT NULL,
			type TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			paid_date {{ts}}
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bad_debts_transaction ON bad_debts (transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bad_debts_status ON bad_debts (status)`,
		`CREATE INDEX IF NOT EXISTS idx_bad_debts_student ON bad_debts (student_id)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id {{pk}},
			logged_at {{ts}} NOT NULL,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id BIGINT NOT NULL,
			user_id TEXT NOT NULL,
			previous_state TEXT,
			new_state TEXT,
			risk_level TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_logged_at ON audit_logs (logged_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_risk_level ON audit_logs (risk_level)`,
	)
}

var leadingDigits = regexp.MustCompile(`^\s*(\d+)`)

// ParseLegacyGrade extracts the leading number of a free-text grade such as "7th" or "10 A".
// It returns nil when no grade in range is present.
func ParseLegacyGrade(raw string) []int {
	match := leadingDigits.FindStringSubmatch(raw)
	if match == nil {
		return nil
	}
	grade, err := strconv.Atoi(match[1])
	if err != nil || grade < models.MinGrade || grade > models.MaxGrade {
		return nil
	}
	return []int{grade}
}

func normalizeLegacyGrades(ctx context.Context, tx *sqlx.Tx) error {
	var legacy []struct {
		ID    int64  `db:"id"`
		Grade string `db:"grade"`
	}
	if err := tx.SelectContext(ctx, &legacy, "SELECT id, grade FROM books WHERE grade IS NOT NULL"); err != nil {
		return fmt.Errorf("load legacy grades: %w", err)
	}
	insert := tx.Rebind("INSERT INTO book_grades (book_id, grade) VALUES (?, ?) ON CONFLICT (book_id, grade) DO NOTHING")
	for _, row := range legacy {
		for _, grade := range ParseLegacyGrade(row.Grade) {
			if _, err := tx.ExecContext(ctx, insert, row.ID, grade); err != nil {
				return fmt.Errorf("insert grade for book %d: %w", row.ID, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE books SET grade = NULL WHERE grade IS NOT NULL"); err != nil {
		return fmt.Errorf("clear legacy grades: %w", err)
	}
	return nil
}

func migrateV4(ctx context.Context, tx *sqlx.Tx, d dialect) error {
	if err := execAll(ctx, tx, d,
		`CREATE TABLE IF NOT EXISTS taxonomy (
			id {{pk}},
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at {{ts}} NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_taxonomy_type_name ON taxonomy (type, name)`,
	); err != nil {
		return err
	}

	seeds := []struct {
		kind   models.TaxonomyType
		column string
	}{
		{models.TaxonomyCategory, "category"},
		{models.TaxonomySubject, "subject"},
	}
	insert := tx.Rebind("INSERT INTO taxonomy (type, name, created_at) VALUES (?, ?, ?) ON CONFLICT (type, name) DO NOTHING")
	now := time.Now().UTC()
	for _, seed := range seeds {
		var names []string
		query := fmt.Sprintf("SELECT DISTINCT %[1]s FROM books WHERE %[1]s IS NOT NULL AND TRIM(%[1]s) <> '' ORDER BY %[1]s", seed.column)
		if err := tx.SelectContext(ctx, &names, query); err != nil {
			return fmt.Errorf("collect %s names: %w", seed.kind, err)
		}
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, insert, string(seed.kind), strings.TrimSpace(name), now); err != nil {
				return fmt.Errorf("seed %s %q: %w", seed.kind, name, err)
			}
		}
	}
	return nil
}
