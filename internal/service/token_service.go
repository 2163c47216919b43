package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	config "github.com/schedulehq/publisher/configs"
	"github.com/schedulehq/publisher/internal/models"
	"github.com/schedulehq/publisher/internal/publisher"
	"github.com/schedulehq/publisher/internal/repository"
	"github.com/schedulehq/publisher/pkg/utils"
)

// refreshWindow is how close to expiry a token must be before a refresh is
// attempted. Anything further out is used as-is, with no network call.
const refreshWindow = 2 * time.Minute

type TokenService interface {
	// EnsureFreshToken returns a usable plaintext access token for the
	// account, refreshing and persisting it when it is about to expire.
	// An irrecoverable refresh failure deactivates the account.
	EnsureFreshToken(ctx context.Context, acc *models.SocialAccount) (string, error)
}

type tokenEndpoints struct {
	twitter   string
	linkedin  string
	facebook  string
	instagram string
}

type tokenService struct {
	cfg       config.Config
	sa        repository.SocialAccountRepository
	client    *http.Client
	endpoints tokenEndpoints
	now       func() time.Time
}

func NewTokenService(cfg config.Config, sa repository.SocialAccountRepository) TokenService {
	return &tokenService{
		cfg:    cfg,
		sa:     sa,
		client: &http.Client{Timeout: 30 * time.Second},
		endpoints: tokenEndpoints{
			twitter:   "https://api.x.com/2/oauth2/token",
			linkedin:  "https://www.linkedin.com/oauth/v2/accessToken",
			facebook:  "https://graph.facebook.com/v18.0/oauth/access_token",
			instagram: "https://graph.instagram.com/refresh_access_token",
		},
		now: time.Now,
	}
}

func (s *tokenService) EnsureFreshToken(ctx context.Context, acc *models.SocialAccount) (string, error) {
	key := []byte(s.cfg.SecretKey)
	accessToken := utils.Decrypt(acc.AccessToken, key)

	if acc.TokenExpiresAt == nil || acc.TokenExpiresAt.After(s.now().Add(refreshWindow)) || acc.RefreshToken == "" {
		return accessToken, nil
	}

	refreshToken := utils.Decrypt(acc.RefreshToken, key)

	newAccess, newRefresh, expiresAt, err := s.refresh(ctx, acc, accessToken, refreshToken)
	if err != nil {
		slog.Error("REFRESH_FAILURE",
			"account_id", acc.ID,
			"provider", acc.Provider,
			"error", err.Error())
		if derr := s.sa.Deactivate(ctx, acc.ID); derr != nil {
			slog.Info(derr.Error())
		}
		acc.IsActive = false
		return "", publisher.Auth(acc.Provider, "token refresh failed: %v", err)
	}

	encryptedAccess, err := utils.Encrypt([]byte(newAccess), key)
	if err != nil {
		return "", err
	}
	var encryptedRefresh string
	if newRefresh != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(newRefresh), key)
		if err != nil {
			return "", err
		}
	}

	if err := s.sa.SetToken(ctx, acc.ID, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
		return "", err
	}

	slog.Info("REFRESH_SUCCESS", "account_id", acc.ID, "provider", acc.Provider)
	acc.AccessToken = encryptedAccess
	if encryptedRefresh != "" {
		acc.RefreshToken = encryptedRefresh
	}
	acc.TokenExpiresAt = expiresAt

	return newAccess, nil
}

func (s *tokenService) refresh(ctx context.Context, acc *models.SocialAccount, accessToken, refreshToken string) (string, string, *time.Time, error) {
	switch acc.Provider {
	case models.ProviderTwitter:
		return s.refreshOAuth2(ctx, s.cfg.TwitterClientID, s.cfg.TwitterClientSecret, s.endpoints.twitter, refreshToken)
	case models.ProviderLinkedin:
		return s.refreshOAuth2(ctx, s.cfg.LinkedinClientID, s.cfg.LinkedinClientSecret, s.endpoints.linkedin, refreshToken)
	case models.ProviderMastodon:
		return s.refreshOAuth2(ctx, s.cfg.MastodonClientID, s.cfg.MastodonClientSecret, s.mastodonTokenURL(acc), refreshToken)
	case models.ProviderFacebook:
		return s.refreshFacebook(ctx, refreshToken)
	case models.ProviderInstagram:
		return s.refreshInstagram(ctx, refreshToken)
	case models.ProviderBluesky:
		return s.refreshBluesky(ctx, acc, refreshToken)
	default:
		return "", "", nil, fmt.Errorf("unsupported provider %s", acc.Provider)
	}
}

func (s *tokenService) refreshOAuth2(ctx context.Context, clientID, clientSecret, tokenURL, refreshToken string) (string, string, *time.Time, error) {
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", "", nil, err
	}

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		expiresAt = &expiry
	}
	return token.AccessToken, token.RefreshToken, expiresAt, nil
}

func (s *tokenService) mastodonTokenURL(acc *models.SocialAccount) string {
	instance := s.cfg.MastodonInstanceURL
	if ms := acc.Meta.Mastodon; ms != nil && ms.InstanceURL != "" {
		instance = ms.InstanceURL
	}
	return strings.TrimRight(instance, "/") + "/oauth/token"
}

// refreshFacebook exchanges the stored long-lived token for a fresh one.
// Facebook has no refresh tokens; the long-lived token itself is rotated.
func (s *tokenService) refreshFacebook(ctx context.Context, exchangeToken string) (string, string, *time.Time, error) {
	endpoint := fmt.Sprintf("%s?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		s.endpoints.facebook,
		url.QueryEscape(s.cfg.FacebookAppID),
		url.QueryEscape(s.cfg.FacebookAppSecret),
		url.QueryEscape(exchangeToken))
	return s.refreshGraph(ctx, endpoint)
}

func (s *tokenService) refreshInstagram(ctx context.Context, refreshToken string) (string, string, *time.Time, error) {
	endpoint := fmt.Sprintf("%s?grant_type=ig_refresh_token&access_token=%s",
		s.endpoints.instagram, url.QueryEscape(refreshToken))
	return s.refreshGraph(ctx, endpoint)
}

func (s *tokenService) refreshGraph(ctx context.Context, endpoint string) (string, string, *time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", nil, fmt.Errorf("token refresh returned status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", "", nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", "", nil, fmt.Errorf("no access token in refresh response")
	}

	var expiresAt *time.Time
	if result.ExpiresIn > 0 {
		expiry := s.now().Add(time.Duration(result.ExpiresIn) * time.Second)
		expiresAt = &expiry
	}
	// The Graph APIs rotate the long-lived token itself; keep it in both slots.
	return result.AccessToken, result.AccessToken, expiresAt, nil
}

func (s *tokenService) refreshBluesky(ctx context.Context, acc *models.SocialAccount, refreshJWT string) (string, string, *time.Time, error) {
	serviceURL := s.cfg.BlueskyServiceURL
	if bs := acc.Meta.Bluesky; bs != nil && bs.ServiceURL != "" {
		serviceURL = bs.ServiceURL
	}
	endpoint := strings.TrimRight(serviceURL, "/") + "/xrpc/com.atproto.server.refreshSession"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+refreshJWT)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", nil, fmt.Errorf("refreshSession returned status %d: %s", resp.StatusCode, body)
	}

	var session struct {
		AccessJWT  string `json:"accessJwt"`
		RefreshJWT string `json:"refreshJwt"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return "", "", nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if session.AccessJWT == "" {
		return "", "", nil, fmt.Errorf("no access JWT in refresh response")
	}

	// Access JWTs are short-lived; the PDS does not report the exact TTL.
	expiry := s.now().Add(2 * time.Hour)
	return session.AccessJWT, session.RefreshJWT, &expiry, nil
}
