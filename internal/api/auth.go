package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/quillnotes/quillsync/internal/tokenfile"
)

// OAuth2 client registered for the quillsync CLI (public client).
const defaultClientID = "quillsync-cli"

var defaultScopes = []string{"offline_access", "notes.readwrite"}

// DeviceAuth holds the device code response fields that the CLI displays
// to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// OAuthConfig builds the oauth2.Config for the given server base URL. The
// note server hosts its own authorization endpoints under /oauth.
func OAuthConfig(serverURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: defaultClientID,
		Scopes:   defaultScopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: serverURL + "/oauth/device/code",
			TokenURL:      serverURL + "/oauth/token",
		},
	}
}

// Login performs the device code OAuth2 flow:
//  1. Requests a device code from the server
//  2. Calls display so the CLI can show the user code and verification URL
//  3. Polls until the user authorizes (blocking, respects ctx cancellation)
//  4. Saves the token to disk at tokenPath
//  5. Returns a TokenSource for use with Client
func Login(
	ctx context.Context,
	serverURL, tokenPath string,
	display func(DeviceAuth),
	logger *slog.Logger,
) (TokenSource, error) {
	cfg := OAuthConfig(serverURL)

	logger.Info("starting device code auth flow",
		slog.String("path", tokenPath),
	)

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("api: device auth request failed: %w", err)
	}

	logger.Info("device code received, waiting for user authorization")

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
	})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("api: device code authorization failed: %w", err)
	}

	logger.Info("user authorized, saving token",
		slog.Time("expiry", tok.Expiry),
	)

	if saveErr := tokenfile.Save(tokenPath, tok, nil); saveErr != nil {
		return nil, fmt.Errorf("api: saving token: %w", saveErr)
	}

	return newFileTokenSource(cfg, tok, tokenPath, logger), nil
}

// TokenSourceFromPath loads a saved token from disk and returns a
// TokenSource that refreshes silently and persists refreshed tokens.
func TokenSourceFromPath(serverURL, tokenPath string, logger *slog.Logger) (TokenSource, error) {
	tok, _, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, fmt.Errorf("api: no saved credentials at %s - run 'quillsync login'", tokenPath)
	}

	return newFileTokenSource(OAuthConfig(serverURL), tok, tokenPath, logger), nil
}

// fileTokenSource adapts oauth2 token refresh to the TokenSource interface,
// persisting refreshed tokens back to the token file so a new refresh token
// issued by the server is never lost.
type fileTokenSource struct {
	cfg    *oauth2.Config
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	tok *oauth2.Token
}

func newFileTokenSource(cfg *oauth2.Config, tok *oauth2.Token, path string, logger *slog.Logger) *fileTokenSource {
	if logger == nil {
		logger = slog.Default()
	}

	return &fileTokenSource{cfg: cfg, path: path, logger: logger, tok: tok}
}

// Token returns the current access token, refreshing it first if expired.
func (s *fileTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok.Valid() {
		return s.tok.AccessToken, nil
	}

	return s.refreshLocked(ctx)
}

// Refresh forces a new access token regardless of expiry. Called by the
// client after a 401 - the server may have revoked a token that still looks
// valid locally.
func (s *fileTokenSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Expire the cached token so the oauth2 source performs a real refresh.
	s.tok.Expiry = time.Now().Add(-time.Minute)

	return s.refreshLocked(ctx)
}

// refreshLocked exchanges the refresh token for a new access token and
// persists the result. Caller must hold mu.
func (s *fileTokenSource) refreshLocked(ctx context.Context) (string, error) {
	fresh, err := s.cfg.TokenSource(ctx, s.tok).Token()
	if err != nil {
		return "", fmt.Errorf("api: refreshing token: %w", err)
	}

	s.tok = fresh

	if saveErr := tokenfile.Save(s.path, fresh, nil); saveErr != nil {
		// A failed save is not fatal for this request - the refreshed token
		// is still usable in memory. Warn so the user can fix permissions.
		s.logger.Warn("could not persist refreshed token",
			slog.String("path", s.path),
			slog.String("error", saveErr.Error()),
		)
	}

	s.logger.Debug("token refreshed",
		slog.Time("expiry", fresh.Expiry),
	)

	return fresh.AccessToken, nil
}
