package spotify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/dperezm/tracknest/internal/crypto"
	"github.com/dperezm/tracknest/internal/domain"
	"github.com/dperezm/tracknest/internal/store"
)

// ErrNotConnected means the account has no usable OAuth token yet.
var ErrNotConnected = errors.New("account has no oauth token")

// accessTokenMargin renews tokens slightly before they expire.
const accessTokenMargin = time.Minute

var scopes = []string{
	"playlist-read-private",
	"playlist-read-collaborative",
	"user-read-email",
}

// Authenticator runs the PKCE authorization flow and keeps stored tokens
// fresh. Refresh tokens are sealed at rest.
type Authenticator struct {
	db  *store.DB
	box *crypto.Box
	cfg *oauth2.Config
}

func NewAuthenticator(db *store.DB, box *crypto.Box, clientID, clientSecret, redirectURI string) *Authenticator {
	return &Authenticator{
		db:  db,
		box: box,
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     endpoints.Spotify,
		},
	}
}

// Configured reports whether the client credentials are present.
func (a *Authenticator) Configured() bool {
	return a.cfg.ClientID != "" && a.cfg.RedirectURL != ""
}

// EnsureAccount returns the Spotify account with the given name, creating
// it when missing.
func (a *Authenticator) EnsureAccount(name string) (*domain.SourceAccount, error) {
	account := &domain.SourceAccount{
		Provider: domain.ProviderSpotify,
		Name:     name,
		Enabled:  true,
	}
	if err := a.db.UpsertSourceAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// AuthorizeURL starts the PKCE flow: a one-shot state row is persisted
// and the provider authorize URL returned for the caller to open.
func (a *Authenticator) AuthorizeURL(accountID int64, redirectTo *string) (string, error) {
	if !a.Configured() {
		return "", fmt.Errorf("spotify client credentials are not configured")
	}
	account, err := a.db.GetSourceAccountByID(accountID)
	if err != nil {
		return "", err
	}
	if account.Provider != domain.ProviderSpotify {
		return "", store.ErrNotFound
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	if err := a.db.CreateOAuthState(&domain.OAuthState{
		Provider:        domain.ProviderSpotify,
		SourceAccountID: accountID,
		State:           state,
		CodeVerifier:    verifier,
		RedirectTo:      redirectTo,
	}); err != nil {
		return "", err
	}

	return a.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// HandleCallback consumes the state, exchanges the code and stores the
// token. Replayed or unknown states fail. Returns the redirect target
// captured when the flow started.
func (a *Authenticator) HandleCallback(ctx context.Context, code, state string) (*string, error) {
	st, err := a.db.ConsumeOAuthState(state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("invalid or already used oauth state")
		}
		return nil, err
	}

	token, err := a.cfg.Exchange(ctx, code, oauth2.VerifierOption(st.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	if err := a.storeToken(st.SourceAccountID, token); err != nil {
		return nil, err
	}
	return st.RedirectTo, nil
}

// Refresh exchanges the stored refresh token for a fresh access token and
// persists the result.
func (a *Authenticator) Refresh(ctx context.Context, accountID int64) (*domain.OAuthToken, error) {
	stored, err := a.db.GetOAuthToken(accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	if stored.RefreshTokenEncrypted == nil {
		return nil, ErrNotConnected
	}
	refreshToken, err := a.box.Decrypt(*stored.RefreshTokenEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal refresh token: %w", err)
	}

	token, err := a.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if err := a.storeToken(accountID, token); err != nil {
		return nil, err
	}
	return a.db.GetOAuthToken(accountID)
}

// AccessToken returns a valid access token for the account, refreshing
// when the stored one is about to expire.
func (a *Authenticator) AccessToken(ctx context.Context, accountID int64) (string, error) {
	stored, err := a.db.GetOAuthToken(accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotConnected
		}
		return "", err
	}
	if stored.ExpiresAt == nil || time.Now().UTC().Before(stored.ExpiresAt.Add(-accessTokenMargin)) {
		return stored.AccessToken, nil
	}
	refreshed, err := a.Refresh(ctx, accountID)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (a *Authenticator) storeToken(accountID int64, token *oauth2.Token) error {
	row := &domain.OAuthToken{
		SourceAccountID: accountID,
		Provider:        domain.ProviderSpotify,
		AccessToken:     token.AccessToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		row.ExpiresAt = &expiry
	}
	if token.TokenType != "" {
		tt := token.TokenType
		row.TokenType = &tt
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		row.Scope = &scope
	}
	if token.RefreshToken != "" {
		sealed, err := a.box.Encrypt(token.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to seal refresh token: %w", err)
		}
		row.RefreshTokenEncrypted = &sealed
	} else if existing, err := a.db.GetOAuthToken(accountID); err == nil {
		// Spotify often omits the refresh token on renewal; keep the old one.
		row.RefreshTokenEncrypted = existing.RefreshTokenEncrypted
	}
	return a.db.SaveOAuthToken(row)
}
