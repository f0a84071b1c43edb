package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dperezm/tracknest/internal/domain"
)

// UpsertSourceAccount inserts or reuses an account keyed by
// (provider, name).
func (db *DB) UpsertSourceAccount(account *domain.SourceAccount) error {
	now := time.Now().UTC()

	var existing domain.SourceAccount
	err := db.Get(&existing,
		`SELECT * FROM source_accounts WHERE provider = ? AND name = ?`,
		account.Provider, account.Name)
	if err == nil {
		_, err = db.Exec(
			`UPDATE source_accounts SET enabled = ?, updated_at = ? WHERE id = ?`,
			account.Enabled, now, existing.ID)
		if err != nil {
			return fmt.Errorf("failed to update source account: %w", err)
		}
		account.ID = existing.ID
		account.CreatedAt = existing.CreatedAt
		account.UpdatedAt = now
		return nil
	}
	if e := notFoundOr(err, "failed to get source account"); e != ErrNotFound {
		return e
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	rows, err := db.NamedQuery(
		`INSERT INTO source_accounts (provider, name, enabled, created_at, updated_at)
		 VALUES (:provider, :name, :enabled, :created_at, :updated_at)
		 RETURNING id`,
		account)
	if err != nil {
		return fmt.Errorf("failed to create source account: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup
	if rows.Next() {
		return rows.Scan(&account.ID)
	}
	return rows.Err()
}

func (db *DB) GetSourceAccountByID(id int64) (*domain.SourceAccount, error) {
	var account domain.SourceAccount
	err := db.Get(&account, `SELECT * FROM source_accounts WHERE id = ?`, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to get source account")
	}
	return &account, nil
}

func (db *DB) ListSourceAccounts(provider domain.SourceProvider) ([]*domain.SourceAccount, error) {
	var accounts []*domain.SourceAccount
	err := db.Select(&accounts,
		`SELECT * FROM source_accounts WHERE provider = ? ORDER BY id ASC`, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list source accounts: %w", err)
	}
	return accounts, nil
}

// SaveOAuthToken replaces the token for an account. One token row per
// account.
func (db *DB) SaveOAuthToken(token *domain.OAuthToken) error {
	now := time.Now().UTC()
	token.CreatedAt = now
	token.UpdatedAt = now

	return db.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`DELETE FROM oauth_tokens WHERE source_account_id = ?`, token.SourceAccountID); err != nil {
			return fmt.Errorf("failed to clear old token: %w", err)
		}
		rows, err := tx.NamedQuery(
			`INSERT INTO oauth_tokens (source_account_id, provider, access_token, refresh_token_encrypted, scope, token_type, expires_at, created_at, updated_at)
			 VALUES (:source_account_id, :provider, :access_token, :refresh_token_encrypted, :scope, :token_type, :expires_at, :created_at, :updated_at)
			 RETURNING id`,
			token)
		if err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		defer rows.Close() //nolint:errcheck // deferred cleanup
		if rows.Next() {
			return rows.Scan(&token.ID)
		}
		return rows.Err()
	})
}

func (db *DB) GetOAuthToken(sourceAccountID int64) (*domain.OAuthToken, error) {
	var token domain.OAuthToken
	err := db.Get(&token, `SELECT * FROM oauth_tokens WHERE source_account_id = ?`, sourceAccountID)
	if err != nil {
		return nil, notFoundOr(err, "failed to get oauth token")
	}
	return &token, nil
}

// ListOAuthTokens returns every stored token row. Secret columns carry
// json:"-" tags, so listing them is safe to expose.
func (db *DB) ListOAuthTokens() ([]*domain.OAuthToken, error) {
	var tokens []*domain.OAuthToken
	err := db.Select(&tokens, `SELECT * FROM oauth_tokens ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list oauth tokens: %w", err)
	}
	return tokens, nil
}

func (db *DB) UpdateAccessToken(sourceAccountID int64, accessToken string, expiresAt *time.Time) error {
	result, err := db.Exec(
		`UPDATE oauth_tokens SET access_token = ?, expires_at = ?, updated_at = ? WHERE source_account_id = ?`,
		accessToken, expiresAt, time.Now().UTC(), sourceAccountID)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) CreateOAuthState(state *domain.OAuthState) error {
	state.CreatedAt = time.Now().UTC()
	rows, err := db.NamedQuery(
		`INSERT INTO oauth_states (provider, source_account_id, state, code_verifier, redirect_to, consumed, created_at)
		 VALUES (:provider, :source_account_id, :state, :code_verifier, :redirect_to, 0, :created_at)
		 RETURNING id`,
		state)
	if err != nil {
		return fmt.Errorf("failed to create oauth state: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup
	if rows.Next() {
		return rows.Scan(&state.ID)
	}
	return rows.Err()
}

// ConsumeOAuthState atomically marks a state used and returns it. A
// replayed state value hits the consumed guard and gets ErrNotFound.
func (db *DB) ConsumeOAuthState(stateValue string) (*domain.OAuthState, error) {
	var state domain.OAuthState
	err := db.inTx(func(tx *sqlx.Tx) error {
		if err := tx.Get(&state, `SELECT * FROM oauth_states WHERE state = ? AND consumed = 0`, stateValue); err != nil {
			return notFoundOr(err, "failed to get oauth state")
		}
		now := time.Now().UTC()
		if _, err := tx.Exec(`UPDATE oauth_states SET consumed = 1, used_at = ? WHERE id = ?`, now, state.ID); err != nil {
			return fmt.Errorf("failed to consume oauth state: %w", err)
		}
		state.Consumed = true
		state.UsedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// PruneOAuthStates drops consumed or stale states older than maxAge.
func (db *DB) PruneOAuthStates(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := db.Exec(
		`DELETE FROM oauth_states WHERE consumed = 1 OR created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune oauth states: %w", err)
	}
	return result.RowsAffected()
}
