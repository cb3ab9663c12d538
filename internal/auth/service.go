// Package auth implements AuthService from spec.md §4.2: OAuth2
// client_credentials token acquisition against the fixed TDX realm
// endpoint, with single-flight deduplication and a safety-buffer-aware
// token cache of its own; each fetch is one golang.org/x/oauth2/clientcredentials
// Config.Token call, which does not cache.
package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/tra-cli/tra/internal/logging"
	"github.com/tra-cli/tra/internal/model"
)

// nowFn is overridden in tests to control expiry-boundary behavior.
var nowFn = time.Now

// TokenURL is the TDX realm's fixed OAuth2 token endpoint (spec.md §6.1).
const TokenURL = "https://tdx.transportdata.tw/auth/realms/TDXConnect/protocol/openid-connect/token"

// Service issues and caches a bearer token for one credential.
type Service struct {
	cred       model.Credential
	cfg        clientcredentials.Config
	httpClient *http.Client

	group singleflight.Group

	mu    sync.Mutex
	token *model.Token
}

// New builds a Service for cred against the fixed TDX token URL.
// httpClient, if nil, defaults to http.DefaultClient.
func New(cred model.Credential, httpClient *http.Client) *Service {
	return NewWithTokenURL(cred, httpClient, TokenURL)
}

// NewWithTokenURL builds a Service against an arbitrary token URL, used by
// tests (and by any future non-TDX realm) that need to stand in a fake
// OAuth2 server.
func NewWithTokenURL(cred model.Credential, httpClient *http.Client, tokenURL string) *Service {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Service{
		cred:       cred,
		httpClient: httpClient,
		cfg: clientcredentials.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
}

// GetToken returns a currently valid access token, reusing the cached one
// when its expiry still clears the safety buffer (spec.md §4.2), and
// coalescing concurrent refreshes for the same credential into a single
// upstream request via singleflight (spec.md §8 invariant 1).
func (s *Service) GetToken(ctx context.Context) (string, error) {
	if tok := s.cachedToken(); tok != nil {
		return tok.AccessToken, nil
	}

	v, err, _ := s.group.Do(s.cred.ID, func() (interface{}, error) {
		if tok := s.cachedToken(); tok != nil {
			return tok.AccessToken, nil
		}

		logging.Info(ctx, "fetching oauth2 token", map[string]interface{}{
			"credential_id": s.cred.ID,
			"label":         s.cred.Label,
		})

		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
		oauthTok, err := s.cfg.Token(tokenCtx)
		if err != nil {
			return nil, model.Wrap(model.CodeAuthError, "token request failed", err).
				WithContext("credential_id", s.cred.ID)
		}

		tok := &model.Token{
			AccessToken: oauthTok.AccessToken,
			ExpiresAt:   oauthTok.Expiry.UnixMilli(),
		}
		s.mu.Lock()
		s.token = tok
		s.mu.Unlock()

		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ClearCache discards the cached token, forcing the next GetToken call to
// fetch a fresh one.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

func (s *Service) cachedToken() *model.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil
	}
	if !s.token.Valid(nowMs()) {
		return nil
	}
	return s.token
}

func nowMs() int64 {
	return nowFn().UnixMilli()
}
