package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/calwidget/internal/domain"
)

const credentialRowID = "default"

const sqliteSchema = `CREATE TABLE IF NOT EXISTS credentials (
	id            TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	token_type    TEXT NOT NULL DEFAULT '',
	expiry        TIMESTAMP NOT NULL,
	scopes        TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMP NOT NULL
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS credentials (
	id            TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	token_type    TEXT NOT NULL DEFAULT '',
	expiry        TIMESTAMPTZ NOT NULL,
	scopes        TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL
)`

type credentialRow struct {
	ID           string    `db:"id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	TokenType    string    `db:"token_type"`
	Expiry       time.Time `db:"expiry"`
	Scopes       string    `db:"scopes"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// SQLCredentialStore keeps the credential in a single-row table. It works
// with the sqlite3 and pgx drivers.
type SQLCredentialStore struct {
	db *sqlx.DB
}

// NewSQLCredentialStore creates a SQLCredentialStore on db.
func NewSQLCredentialStore(db *sqlx.DB) *SQLCredentialStore {
	return &SQLCredentialStore{db: db}
}

// Migrate creates the credentials table if it does not exist.
func (s *SQLCredentialStore) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	switch s.db.DriverName() {
	case "pgx", "postgres":
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create credentials table: %w", err)
	}
	return nil
}

// Load reads the stored credential.
func (s *SQLCredentialStore) Load(ctx context.Context) (*domain.Credential, error) {
	var row credentialRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT id, access_token, refresh_token, token_type, expiry, scopes, updated_at
		 FROM credentials WHERE id = ?`), credentialRowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if row.AccessToken == "" && row.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no token material", domain.ErrCredentialCorrupt)
	}

	cred := &domain.Credential{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    row.TokenType,
		Expiry:       row.Expiry,
	}
	if row.Scopes != "" {
		cred.GrantedScopes = strings.Fields(row.Scopes)
	}
	return cred, nil
}

// Save upserts the credential row.
func (s *SQLCredentialStore) Save(ctx context.Context, cred domain.Credential) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO credentials (id, access_token, refresh_token, token_type, expiry, scopes, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id)
		 DO UPDATE SET access_token = EXCLUDED.access_token,
		               refresh_token = EXCLUDED.refresh_token,
		               token_type = EXCLUDED.token_type,
		               expiry = EXCLUDED.expiry,
		               scopes = EXCLUDED.scopes,
		               updated_at = EXCLUDED.updated_at`),
		credentialRowID, cred.AccessToken, cred.RefreshToken, cred.TokenType,
		cred.Expiry.UTC(), strings.Join(cred.GrantedScopes, " "), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Clear deletes the credential row.
func (s *SQLCredentialStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM credentials WHERE id = ?`), credentialRowID)
	if err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
