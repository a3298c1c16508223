// Package storage provides the SQLite-backed account store behind the ledger.
// Every mutation runs inside Update, which commits all of its writes or none.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/klingon-exchange/klingon-escrow/internal/config"
)

// Storage errors
var (
	ErrNotFound = errors.New("storage: not found")
	ErrExists   = errors.New("storage: already exists")
)

// DBFileName is the database file created inside the data directory.
const DBFileName = "escrow.db"

// Storage provides persistent storage for ledger accounts.
type Storage struct {
	db     *sql.DB
	dbPath string
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New opens (creating if needed) the database in cfg.DataDir.
func New(cfg *Config) (*Storage, error) {
	dataDir := config.ExpandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite has a single writer. One connection also serializes ledger
	// transactions, which is what makes competing settlements safe.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// Update runs fn in a read-write transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Storage) Update(ctx context.Context, fn func(*Tx) error) error {
	return s.run(ctx, fn)
}

// View runs fn in a transaction for reads. fn must not write; the transaction
// is still rolled back on error like any other.
func (s *Storage) View(ctx context.Context, fn func(*Tx) error) error {
	return s.run(ctx, fn)
}

func (s *Storage) run(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: sqlTx, now: time.Now()}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx is a single database transaction.
type Tx struct {
	tx  *sql.Tx
	now time.Time
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Every ledger account. Wallets are owned by the system program, mints
	-- and token accounts by the token program, escrow records by the escrow
	-- program. Lamports hold the account's maintenance deposit.
	CREATE TABLE IF NOT EXISTS accounts (
		address TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		lamports INTEGER NOT NULL DEFAULT 0,
		space INTEGER NOT NULL DEFAULT 0,
		data BLOB,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner);

	-- Asset definitions
	CREATE TABLE IF NOT EXISTS mints (
		address TEXT PRIMARY KEY,
		decimals INTEGER NOT NULL,
		mint_authority TEXT NOT NULL,
		supply INTEGER NOT NULL DEFAULT 0,

		FOREIGN KEY (address) REFERENCES accounts(address) ON DELETE CASCADE
	);

	-- Token balances. authority is the key allowed to move the balance; for
	-- an escrow vault it is the escrow record's derived address.
	CREATE TABLE IF NOT EXISTS token_accounts (
		address TEXT PRIMARY KEY,
		mint TEXT NOT NULL,
		authority TEXT NOT NULL,
		amount INTEGER NOT NULL DEFAULT 0,

		FOREIGN KEY (address) REFERENCES accounts(address) ON DELETE CASCADE,
		FOREIGN KEY (mint) REFERENCES mints(address)
	);

	CREATE INDEX IF NOT EXISTS idx_token_accounts_authority ON token_accounts(authority);
	CREATE INDEX IF NOT EXISTS idx_token_accounts_mint ON token_accounts(mint);

	-- Committed escrow transactions, keyed by client-chosen id so a retried
	-- submission returns the original receipt instead of executing twice.
	CREATE TABLE IF NOT EXISTS tx_journal (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		signer TEXT NOT NULL,
		escrow TEXT NOT NULL,
		receipt TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tx_journal_escrow ON tx_journal(escrow);
	`

	_, err := s.db.Exec(schema)
	return err
}

// isConstraintError reports whether err is a primary key or unique violation.
func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
