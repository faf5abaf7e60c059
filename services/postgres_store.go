package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	_ "github.com/lib/pq"

	"github.com/veilpost/veilpost/protocol"
)

// PostgresStore implements ReportStore and protocol.NullifierStore with
// PostgreSQL persistence. Nullifier registration relies on a database-level
// unique constraint on (epoch, nullifier), so the check-and-register step is
// atomic across intake servers sharing one database.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id VARCHAR(64) PRIMARY KEY,
		encrypted_data TEXT NOT NULL,
		public_signals TEXT NOT NULL,
		submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
		status VARCHAR(16) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_submitted ON reports(submitted_at);
	CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);

	CREATE TABLE IF NOT EXISTS nullifiers (
		epoch BIGINT NOT NULL,
		nullifier VARCHAR(128) NOT NULL,
		registered_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (epoch, nullifier)
	);

	CREATE INDEX IF NOT EXISTS idx_nullifiers_epoch ON nullifiers(epoch);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close releases the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveReport persists a stored report.
func (s *PostgresStore) SaveReport(ctx context.Context, report *protocol.StoredReport) error {
	signals, err := json.Marshal(report.ProofPublicSignals)
	if err != nil {
		return fmt.Errorf("marshal public signals: %w", err)
	}

	query := `
	INSERT INTO reports (id, encrypted_data, public_signals, submitted_at, status)
	VALUES ($1, $2, $3, $4, $5)`

	_, err = s.db.ExecContext(ctx, query,
		report.ID, report.EncryptedData, string(signals), report.Timestamp, string(report.Status))
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

// GetReport returns the report with the given ID.
func (s *PostgresStore) GetReport(ctx context.Context, id string) (*protocol.StoredReport, error) {
	query := `
	SELECT id, encrypted_data, public_signals, submitted_at, status
	FROM reports WHERE id = $1`

	report, err := scanReport(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading report: %w", err)
	}
	return report, nil
}

// ListReports returns all reports, newest first.
func (s *PostgresStore) ListReports(ctx context.Context) ([]*protocol.StoredReport, error) {
	query := `
	SELECT id, encrypted_data, public_signals, submitted_at, status
	FROM reports ORDER BY submitted_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var reports []*protocol.StoredReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// UpdateStatus applies a moderation status transition.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status protocol.Status) error {
	if !status.Valid() {
		return errors.New("services: invalid status")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrReportNotFound
	}
	return nil
}

// RegisterIfUnused inserts the (epoch, nullifier) pair, relying on the
// unique constraint to serialize concurrent registrations. A conflicting
// insert affects zero rows and reports a duplicate.
func (s *PostgresStore) RegisterIfUnused(ctx context.Context, epoch protocol.Epoch, nullifier fr.Element) error {
	query := `
	INSERT INTO nullifiers (epoch, nullifier)
	VALUES ($1, $2)
	ON CONFLICT (epoch, nullifier) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, int64(epoch), nullifier.String())
	if err != nil {
		return fmt.Errorf("registering nullifier: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return protocol.ErrDuplicateNullifier
	}
	return nil
}

// Release removes a registration so a rolled-back submission does not
// consume the identity's window.
func (s *PostgresStore) Release(ctx context.Context, epoch protocol.Epoch, nullifier fr.Element) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM nullifiers WHERE epoch = $1 AND nullifier = $2`,
		int64(epoch), nullifier.String())
	if err != nil {
		return fmt.Errorf("releasing nullifier: %w", err)
	}
	return nil
}

// PruneBefore garbage-collects nullifiers for epochs older than the horizon.
func (s *PostgresStore) PruneBefore(ctx context.Context, epoch protocol.Epoch) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM nullifiers WHERE epoch < $1`, int64(epoch))
	if err != nil {
		return fmt.Errorf("pruning nullifiers: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*protocol.StoredReport, error) {
	var (
		report  protocol.StoredReport
		signals string
		status  string
	)
	if err := row.Scan(&report.ID, &report.EncryptedData, &signals, &report.Timestamp, &status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(signals), &report.ProofPublicSignals); err != nil {
		return nil, fmt.Errorf("unmarshal public signals: %w", err)
	}
	report.Status = protocol.Status(status)
	return &report, nil
}
