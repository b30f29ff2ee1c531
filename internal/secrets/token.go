// Package secrets keeps the mailbox OAuth token and refreshes it on demand.
package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/logger"
	"golang.org/x/oauth2"
)

// DefaultTokenURI is used when the stored token names no token endpoint.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// StoredToken is the persisted OAuth credential, in the authorized-user JSON layout.
type StoredToken struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret"`
	TokenURI     string     `json:"token_uri"`
	Scopes       []string   `json:"scopes"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// Store loads and saves the stored token.
type Store interface {
	Load(ctx context.Context) (*StoredToken, error)
	Save(ctx context.Context, token *StoredToken) error
}

// Validate checks the fields a refresh needs.
func (s *StoredToken) Validate() error {
	if s.RefreshToken == "" || s.ClientID == "" || s.ClientSecret == "" {
		return fmt.Errorf("stored token needs refresh_token, client_id and client_secret: %w", domain.ErrConfigurationMissing)
	}
	return nil
}

// Config returns the OAuth client configuration held in the token.
func (s *StoredToken) Config() *oauth2.Config {
	tokenURI := s.TokenURI
	if tokenURI == "" {
		tokenURI = DefaultTokenURI
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURI},
		Scopes:       s.Scopes,
	}
}

// OAuthToken converts the stored token. A token without a recorded expiry is
// treated as expired so the first call refreshes it.
func (s *StoredToken) OAuthToken() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  s.Token,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
	}
	if s.Expiry != nil {
		tok.Expiry = *s.Expiry
	} else {
		tok.Expiry = time.Unix(1, 0)
	}
	return tok
}

// TokenSource returns a token source seeded from store. Every refreshed access
// token is written back to store.
func TokenSource(ctx context.Context, store Store) (oauth2.TokenSource, error) {
	stored, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("TokenSource: load token: %w", err)
	}
	if err := stored.Validate(); err != nil {
		return nil, fmt.Errorf("TokenSource: %w", err)
	}

	return &persistingSource{
		ctx:    ctx,
		store:  store,
		stored: *stored,
		base:   stored.Config().TokenSource(ctx, stored.OAuthToken()),
	}, nil
}

type persistingSource struct {
	ctx    context.Context
	store  Store
	base   oauth2.TokenSource
	mu     sync.Mutex
	stored StoredToken
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.stored.Token {
		return tok, nil
	}

	log := logger.FromContext(p.ctx)
	log.Warn().Msg("OAuth token expired, refreshed")

	updated := p.stored
	updated.Token = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		updated.Expiry = &expiry
	}
	if err := p.store.Save(p.ctx, &updated); err != nil {
		// The refreshed token is still usable for this run.
		log.Error().Err(err).Msg("Failed to persist refreshed OAuth token")
		return tok, nil
	}
	p.stored = updated
	log.Info().Msg("OAuth token refreshed and updated in store")
	return tok, nil
}
