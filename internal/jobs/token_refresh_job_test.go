package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/schedulehq/publisher/internal/models"
)

type stubAccountRepo struct {
	expiring []*models.SocialAccount
}

func (s *stubAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return nil, nil
}

func (s *stubAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (s *stubAccountRepo) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	return s.expiring, nil
}

func (s *stubAccountRepo) SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	return nil
}

func (s *stubAccountRepo) UpdateMeta(ctx context.Context, id int64, meta models.AccountMeta) error {
	return nil
}

func (s *stubAccountRepo) Deactivate(ctx context.Context, id int64) error {
	return nil
}

func (s *stubAccountRepo) Remove(ctx context.Context, id int64) error {
	return nil
}

type countingTokenService struct {
	mu        sync.Mutex
	refreshed []int64
	errFor    map[int64]error
}

func (c *countingTokenService) EnsureFreshToken(ctx context.Context, acc *models.SocialAccount) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshed = append(c.refreshed, acc.ID)
	return "token", c.errFor[acc.ID]
}

func TestRefreshTokensSweepsAllExpiringAccounts(t *testing.T) {
	var accounts []*models.SocialAccount
	for i := int64(1); i <= 25; i++ {
		accounts = append(accounts, &models.SocialAccount{ID: i, Provider: models.ProviderTwitter})
	}
	repo := &stubAccountRepo{expiring: accounts}
	tokens := &countingTokenService{}

	NewTokenRefreshJob(repo, tokens).RefreshTokens()

	assert.Len(t, tokens.refreshed, 25)
}

func TestRefreshTokensContinuesPastFailures(t *testing.T) {
	repo := &stubAccountRepo{expiring: []*models.SocialAccount{
		{ID: 1, Provider: models.ProviderTwitter},
		{ID: 2, Provider: models.ProviderFacebook},
		{ID: 3, Provider: models.ProviderMastodon},
	}}
	tokens := &countingTokenService{errFor: map[int64]error{
		2: context.DeadlineExceeded,
	}}

	NewTokenRefreshJob(repo, tokens).RefreshTokens()

	assert.Len(t, tokens.refreshed, 3)
}
