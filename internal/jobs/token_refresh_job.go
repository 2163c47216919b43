package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/schedulehq/publisher/internal/models"
	"github.com/schedulehq/publisher/internal/repository"
	"github.com/schedulehq/publisher/internal/service"
)

// TokenRefreshJob proactively refreshes tokens expiring soon so publish
// attempts rarely hit the refresh path on the critical path.
type TokenRefreshJob struct {
	sr     repository.SocialAccountRepository
	tokens service.TokenService
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, tokens service.TokenService) *TokenRefreshJob {
	return &TokenRefreshJob{sr: sr, tokens: tokens}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := j.sr.ListExpiring(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := j.tokens.EnsureFreshToken(ctx, acc); err != nil {
				slog.Info("unable to refresh token",
					"account_id", acc.ID,
					"provider", acc.Provider,
					"error", err.Error())
			}
		}(acc)
	}

	wg.Wait()
}
