// Package auth holds the delegated-authorization session for access to a
// restricted inventory layer. The portal runs unauthenticated against public
// layers; the session only comes into play when the feature service rejects
// anonymous queries.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jvkenny/CLFleadservice/internal/observability"
)

// State enumerates the session lifecycle. Transitions:
//
//	SignedOut → Authorizing (BeginLogin)
//	Authorizing → SignedIn (CompleteCallback success) | SignedOut (failure)
//	SignedIn → Refreshing → SignedIn (Refresh success) | SignedOut (rejection)
//	any → SignedOut (Logout)
type State int

const (
	SignedOut State = iota
	Authorizing
	SignedIn
	Refreshing
)

func (s State) String() string {
	switch s {
	case Authorizing:
		return "authorizing"
	case SignedIn:
		return "signed_in"
	case Refreshing:
		return "refreshing"
	default:
		return "signed_out"
	}
}

var (
	// ErrNoClientID means login was attempted without a configured client ID.
	ErrNoClientID = errors.New("auth: no client id configured")

	// ErrHandshakeLost means a callback arrived with no stored verifier for
	// its state parameter (expired, replayed, or forged).
	ErrHandshakeLost = errors.New("auth: no pending handshake for state")

	// ErrReauthRequired means the provider rejected the refresh token; the
	// session has been signed out and the user must log in again.
	ErrReauthRequired = errors.New("auth: refresh rejected, sign in required")

	// ErrNoRefreshToken means Refresh was called while no refresh token is held.
	ErrNoRefreshToken = errors.New("auth: no refresh token held")
)

// Credential is the bearer token set held while signed in. The zero value
// means signed out.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// valid reports whether the credential may be sent upstream: token and expiry
// both present, expiry strictly in the future. Expiry is a hard cutoff.
func (c Credential) valid(now time.Time) bool {
	return c.AccessToken != "" && !c.ExpiresAt.IsZero() && now.Before(c.ExpiresAt)
}

// Config describes the identity provider endpoints and client registration.
type Config struct {
	ClientID    string
	ProviderURL string // base URL; /authorize and /token are appended
	RedirectURL string
	Timeout     time.Duration
	VerifierTTL time.Duration // how long a pending handshake survives
}

// Session is the process-wide authorization state. It is constructed once in
// main and injected everywhere a token is needed; tests build their own.
type Session struct {
	cfg        Config
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu      sync.Mutex
	state   State
	cred    Credential
	pending map[string]pendingLogin
}

// pendingLogin binds a redirect round trip to the party that initiated it.
type pendingLogin struct {
	verifier  string
	returnTo  string
	expiresAt time.Time
}

// NewSession creates a signed-out session.
func NewSession(cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.VerifierTTL <= 0 {
		cfg.VerifierTTL = 5 * time.Minute
	}
	return &Session{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		pending:    make(map[string]pendingLogin),
	}
}

// BeginLogin starts a PKCE handshake and returns the provider authorize URL
// the user agent should be redirected to. returnTo is the in-app location to
// restore after the callback completes.
func (s *Session) BeginLogin(returnTo string) (string, error) {
	if s.cfg.ClientID == "" {
		return "", ErrNoClientID
	}

	verifier, err := newVerifier()
	if err != nil {
		return "", err
	}
	state := uuid.NewString()
	if returnTo == "" {
		returnTo = "/"
	}

	s.mu.Lock()
	s.pruneLocked()
	s.pending[state] = pendingLogin{
		verifier:  verifier,
		returnTo:  returnTo,
		expiresAt: s.clock.Now().Add(s.cfg.VerifierTTL),
	}
	if s.state == SignedOut {
		s.state = Authorizing
	}
	s.mu.Unlock()

	q := url.Values{}
	q.Set("client_id", s.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", s.cfg.RedirectURL)
	q.Set("state", state)
	q.Set("code_challenge", challengeS256(verifier))
	q.Set("code_challenge_method", "S256")

	return s.cfg.ProviderURL + "/authorize?" + q.Encode(), nil
}

// CompleteCallback exchanges an authorization code for a token pair and
// returns the location to restore. The stored verifier is consumed whether or
// not the exchange succeeds; a failed exchange leaves the credential
// untouched.
func (s *Session) CompleteCallback(ctx context.Context, state, code string) (string, error) {
	s.mu.Lock()
	p, ok := s.pending[state]
	delete(s.pending, state)
	if ok && s.clock.Now().After(p.expiresAt) {
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return "", ErrHandshakeLost
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", s.cfg.ClientID)
	form.Set("code", code)
	form.Set("code_verifier", p.verifier)
	form.Set("redirect_uri", s.cfg.RedirectURL)

	tok, err := s.postToken(ctx, form)
	if err != nil {
		s.mu.Lock()
		if s.state == Authorizing && len(s.pending) == 0 {
			s.state = SignedOut
		}
		s.mu.Unlock()
		s.metrics.TokenExchanges.WithLabelValues("error").Inc()
		return "", fmt.Errorf("exchange code: %w", err)
	}

	s.mu.Lock()
	s.cred = Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    s.clock.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	s.state = SignedIn
	s.mu.Unlock()

	s.metrics.TokenExchanges.WithLabelValues("success").Inc()
	s.metrics.SignedIn.Set(1)
	s.logger.Info("signed in", "expires_in", tok.ExpiresIn)
	return p.returnTo, nil
}

// IsAuthenticated reports whether a valid, unexpired credential is held.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred.valid(s.clock.Now())
}

// AccessToken returns the bearer token while authenticated. Token and expiry
// are read together under the lock; callers never see a token that was
// already expired at read time. An absent token means "proceed
// unauthenticated".
func (s *Session) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cred.valid(s.clock.Now()) {
		return "", false
	}
	return s.cred.AccessToken, true
}

// refreshLeeway is how close to expiry FreshToken refreshes proactively,
// so a token cannot lapse between the check and the upstream request.
const refreshLeeway = 30 * time.Second

// FreshToken returns a token with at least refreshLeeway of life left,
// refreshing once if needed. Query paths use this; a false return means
// proceed unauthenticated.
func (s *Session) FreshToken(ctx context.Context) (string, bool) {
	s.mu.Lock()
	now := s.clock.Now()
	if s.cred.valid(now) && now.Add(refreshLeeway).Before(s.cred.ExpiresAt) {
		tok := s.cred.AccessToken
		s.mu.Unlock()
		return tok, true
	}
	hasRefresh := s.cred.RefreshToken != ""
	s.mu.Unlock()

	if !hasRefresh {
		return "", false
	}
	if err := s.Refresh(ctx); err != nil {
		return "", false
	}
	return s.AccessToken()
}

// Refresh performs a single refresh attempt. Provider rejection forces a full
// sign-out and returns ErrReauthRequired; a transport failure keeps the
// current credential so a later attempt can retry. Success updates the access
// token and expiry only, leaving the refresh token untouched.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.cred.RefreshToken == "" {
		s.mu.Unlock()
		return ErrNoRefreshToken
	}
	refreshToken := s.cred.RefreshToken
	prevState := s.state
	s.state = Refreshing
	s.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", s.cfg.ClientID)
	form.Set("refresh_token", refreshToken)

	tok, err := s.postToken(ctx, form)
	switch {
	case err == nil:
		s.mu.Lock()
		s.cred.AccessToken = tok.AccessToken
		s.cred.ExpiresAt = s.clock.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		s.state = SignedIn
		s.mu.Unlock()
		s.metrics.TokenRefreshes.WithLabelValues("success").Inc()
		return nil

	case errors.As(err, new(*providerError)):
		// The provider saw the request and said no: the refresh token is
		// dead. Sign out fully; the user must authenticate again.
		s.metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		s.logger.Warn("refresh token rejected", "error", err)
		s.Logout()
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)

	default:
		s.mu.Lock()
		s.state = prevState
		s.mu.Unlock()
		s.metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh token: %w", err)
	}
}

// Logout clears the credential and any pending handshakes. Idempotent.
func (s *Session) Logout() {
	s.mu.Lock()
	s.cred = Credential{}
	s.pending = make(map[string]pendingLogin)
	s.state = SignedOut
	s.mu.Unlock()
	s.metrics.SignedIn.Set(0)
}

// CurrentState returns the session state for the status endpoint.
func (s *Session) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// pruneLocked drops expired pending handshakes. Caller holds the lock.
func (s *Session) pruneLocked() {
	now := s.clock.Now()
	for state, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, state)
		}
	}
}

// tokenResponse is the provider token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	Description  string `json:"error_description"`
}

// providerError marks a definitive rejection from the token endpoint, as
// opposed to a transport failure.
type providerError struct {
	status int
	code   string
	desc   string
}

func (e *providerError) Error() string {
	msg := e.code
	if msg == "" {
		msg = fmt.Sprintf("status %d", e.status)
	}
	if e.desc != "" {
		msg += ": " + e.desc
	}
	return "provider: " + msg
}

func (s *Session) postToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.ProviderURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("read response: %w", err)
	}

	var tok tokenResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(body, &tok)
		return tokenResponse{}, &providerError{status: resp.StatusCode, code: tok.Error, desc: tok.Description}
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return tokenResponse{}, fmt.Errorf("decode response: %w", err)
	}
	// Some providers report errors in a 200 body.
	if tok.Error != "" {
		return tokenResponse{}, &providerError{status: resp.StatusCode, code: tok.Error, desc: tok.Description}
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, errors.New("token endpoint returned no access token")
	}
	return tok, nil
}
