package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// Session wraps a single live database connection with explicit
// transactional boundaries. The harness holds exactly one Session per run
// and never inspects row contents beyond counting them.
type Session interface {
	// Execute runs a statement, discarding any result rows.
	Execute(ctx context.Context, sql string) error

	// Query runs a statement and fetches the full result set, returning
	// only its cardinality.
	Query(ctx context.Context, sql string) (int, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

// ConnConfig holds connection parameters for the database under test.
type ConnConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the config as a libpq-style connection string.
func (c *ConnConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode,
	)
}

// Connect establishes a Session against PostgreSQL. Statements run inside
// an explicit transaction that is opened lazily before the first statement
// after each Commit/Rollback, matching non-autocommit driver semantics.
func Connect(ctx context.Context, log logrus.FieldLogger, cfg *ConnConfig) (Session, error) {
	conn, err := pgx.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}

	return &pgSession{
		log:  log.WithField("component", "session"),
		conn: conn,
	}, nil
}

type pgSession struct {
	log  logrus.FieldLogger
	conn *pgx.Conn
	inTx bool
}

// Ensure interface compliance.
var _ Session = (*pgSession)(nil)

// begin opens the implicit transaction if one is not already open.
func (s *pgSession) begin(ctx context.Context) error {
	if s.inTx {
		return nil
	}

	if _, err := s.conn.Exec(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	s.inTx = true

	return nil
}

func (s *pgSession) Execute(ctx context.Context, sql string) error {
	if err := s.begin(ctx); err != nil {
		return err
	}

	if _, err := s.conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	return nil
}

func (s *pgSession) Query(ctx context.Context, sql string) (int, error) {
	if err := s.begin(ctx); err != nil {
		return 0, err
	}

	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("executing query: %w", err)
	}

	defer rows.Close()

	var count int
	for rows.Next() {
		count++
	}

	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("fetching rows: %w", err)
	}

	return count, nil
}

// Commit ends the open transaction. Issued on an aborted transaction,
// COMMIT behaves as ROLLBACK and leaves the session clean either way.
func (s *pgSession) Commit(ctx context.Context) error {
	if !s.inTx {
		return nil
	}

	s.inTx = false

	if _, err := s.conn.Exec(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *pgSession) Rollback(ctx context.Context) error {
	if !s.inTx {
		return nil
	}

	s.inTx = false

	if _, err := s.conn.Exec(ctx, "ROLLBACK"); err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}

	return nil
}

func (s *pgSession) Close(ctx context.Context) error {
	if err := s.conn.Close(ctx); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}

	s.log.Debug("Session closed")

	return nil
}
