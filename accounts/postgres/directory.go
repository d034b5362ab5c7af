package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	goGate "github.com/MrEthical07/goGate"
)

const (
	// DefaultQueryTimeout bounds each statement when Options.QueryTimeout is zero.
	DefaultQueryTimeout = 3 * time.Second
	// DefaultTable is the schema-qualified account table.
	DefaultTable = "private.users"
)

// Options tunes a Directory.
type Options struct {
	Table        string
	QueryTimeout time.Duration
}

// Directory reads and updates account records. It is safe for concurrent use.
type Directory struct {
	db      *sql.DB
	timeout time.Duration

	byPhone string
	byLogin string
	setHash string
}

// Open connects to dsn through the lib/pq connector and verifies the
// connection with a ping.
func Open(ctx context.Context, dsn string, opts Options) (*Directory, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(db, opts)
}

// New wraps an existing handle. The caller keeps ownership of db unless the
// Directory came from Open.
func New(db *sql.DB, opts Options) (*Directory, error) {
	if db == nil {
		return nil, errors.New("postgres: database handle is required")
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}

	table := quoteTable(opts.Table)
	return &Directory{
		db:      db,
		timeout: opts.QueryTimeout,
		byPhone: `SELECT uuid, resident_id, phone, password, role, active, force_pw_change
			FROM ` + table + ` WHERE phone = $1 AND active = true LIMIT 1`,
		byLogin: `SELECT uuid, resident_id, phone, password, role, active, force_pw_change
			FROM ` + table + ` WHERE resident_id = $1 LIMIT 1`,
		setHash: `UPDATE ` + table + ` SET password = $1, force_pw_change = false WHERE uuid = $2`,
	}, nil
}

// Close releases the underlying handle.
func (d *Directory) Close() error {
	return d.db.Close()
}

// FindActiveByPhone returns the active account registered to phone.
func (d *Directory) FindActiveByPhone(ctx context.Context, phone string) (goGate.Account, error) {
	return d.findOne(ctx, d.byPhone, phone)
}

// FindByLogin returns the account whose resident id is login, active or not.
func (d *Directory) FindByLogin(ctx context.Context, login string) (goGate.Account, error) {
	return d.findOne(ctx, d.byLogin, login)
}

// UpdatePasswordHash stores a new hash and clears the forced-change flag.
func (d *Directory) UpdatePasswordHash(ctx context.Context, subjectID, passwordHash string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, d.setHash, passwordHash, subjectID)
	if err != nil {
		return fmt.Errorf("postgres: update password: %w", describe(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update password: %w", err)
	}
	if n == 0 {
		return goGate.ErrAccountNotFound
	}
	return nil
}

func (d *Directory) findOne(ctx context.Context, query, arg string) (goGate.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		a    goGate.Account
		role string
	)
	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&a.SubjectID,
		&a.Login,
		&a.Phone,
		&a.PasswordHash,
		&role,
		&a.Active,
		&a.ForcePwChange,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return goGate.Account{}, goGate.ErrAccountNotFound
	}
	if err != nil {
		return goGate.Account{}, fmt.Errorf("postgres: find account: %w", describe(err))
	}

	a.Role, err = goGate.ParseRole(role)
	if err != nil || a.Role == goGate.RoleAnonymous {
		return goGate.Account{}, fmt.Errorf("postgres: account %s has unknown role %q", a.SubjectID, role)
	}
	return a, nil
}

// describe keeps the SQLSTATE of driver errors, which is all callers log.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (sqlstate %s)", err, pqErr.Code)
	}
	return err
}

func quoteTable(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(name[:i]) + "." + pq.QuoteIdentifier(name[i+1:])
}
