package license

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchemaVersion = "001_businesses"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS businesses (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	business_type TEXT NOT NULL DEFAULT '',
	industry      TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	pincode       TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS licenses (
	business_id      TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
	license_type     TEXT NOT NULL,
	department       TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	application_date INTEGER,
	PRIMARY KEY (business_id, license_type)
);
`

// SQLiteStore implements Store on a local SQLite database (pure-Go driver).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between
	// concurrent license updates.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := runSQLiteMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func runSQLiteMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", sqliteSchemaVersion).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if count > 0 {
		return nil
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", sqliteSchemaVersion); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}

const businessColumns = `id, owner_id, name, business_type, industry, address, city, state, pincode, email, phone, website, created_at`

// FindByOwner loads the owner's business and its license entries.
func (s *SQLiteStore) FindByOwner(ctx context.Context, ownerID string) (*Business, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+businessColumns+" FROM businesses WHERE owner_id = ?", ownerID)
	return s.loadBusiness(ctx, row)
}

// FindByID loads a business and its license entries.
func (s *SQLiteStore) FindByID(ctx context.Context, businessID string) (*Business, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+businessColumns+" FROM businesses WHERE id = ?", businessID)
	return s.loadBusiness(ctx, row)
}

func (s *SQLiteStore) loadBusiness(ctx context.Context, row *sql.Row) (*Business, error) {
	var b Business
	var createdAt int64
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Type, &b.Industry,
		&b.Location.Address, &b.Location.City, &b.Location.State, &b.Location.Pincode,
		&b.Contact.Email, &b.Contact.Phone, &b.Contact.Website, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("scan business: %w", err)
	}
	b.CreatedAt = time.UnixMilli(createdAt).UTC()

	rows, err := s.db.QueryContext(ctx,
		"SELECT license_type, department, status, application_date FROM licenses WHERE business_id = ? ORDER BY rowid",
		b.ID)
	if err != nil {
		return nil, fmt.Errorf("query licenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l License
		var applied sql.NullInt64
		if err := rows.Scan(&l.Type, &l.Department, &l.Status, &applied); err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		if applied.Valid {
			t := time.UnixMilli(applied.Int64).UTC()
			l.ApplicationDate = &t
		}
		b.RequiredLicenses = append(b.RequiredLicenses, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return &b, nil
}

// UpdateLicenseStatus updates exactly one license row.
func (s *SQLiteStore) UpdateLicenseStatus(ctx context.Context, businessID, licenseType string, status Status, appliedAt *time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid license status %q", status)
	}

	var res sql.Result
	var err error
	if appliedAt != nil {
		res, err = s.db.ExecContext(ctx,
			"UPDATE licenses SET status = ?, application_date = ? WHERE business_id = ? AND license_type = ?",
			string(status), appliedAt.UnixMilli(), businessID, licenseType)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE licenses SET status = ? WHERE business_id = ? AND license_type = ?",
			string(status), businessID, licenseType)
	}
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM businesses WHERE id = ?", businessID).Scan(&exists); err != nil {
		return fmt.Errorf("check business: %w", err)
	}
	if exists == 0 {
		return ErrBusinessNotFound
	}
	return ErrLicenseNotFound
}

// SaveBusiness replaces the business row and its license rows in one transaction.
func (s *SQLiteStore) SaveBusiness(ctx context.Context, b *Business) error {
	if err := validateBusiness(b); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO businesses (`+businessColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id, name = excluded.name,
			business_type = excluded.business_type, industry = excluded.industry,
			address = excluded.address, city = excluded.city, state = excluded.state,
			pincode = excluded.pincode, email = excluded.email, phone = excluded.phone,
			website = excluded.website`,
		b.ID, b.OwnerID, b.Name, b.Type, b.Industry,
		b.Location.Address, b.Location.City, b.Location.State, b.Location.Pincode,
		b.Contact.Email, b.Contact.Phone, b.Contact.Website, b.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save business: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM licenses WHERE business_id = ?", b.ID); err != nil {
		return fmt.Errorf("clear licenses: %w", err)
	}
	for _, l := range b.RequiredLicenses {
		var applied sql.NullInt64
		if l.ApplicationDate != nil {
			applied = sql.NullInt64{Int64: l.ApplicationDate.UnixMilli(), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO licenses (business_id, license_type, department, status, application_date) VALUES (?, ?, ?, ?, ?)",
			b.ID, l.Type, l.Department, string(l.Status), applied)
		if err != nil {
			return fmt.Errorf("save license %q: %w", l.Type, err)
		}
	}

	return tx.Commit()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
