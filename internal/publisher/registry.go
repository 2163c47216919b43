package publisher

import (
	"net/http"

	config "github.com/schedulehq/publisher/configs"
	"github.com/schedulehq/publisher/internal/models"
	"github.com/schedulehq/publisher/internal/repository"
)

// NewRegistry wires one adapter per supported provider. Passing a nil
// client gives every adapter the default 60s-timeout client.
func NewRegistry(cfg config.Config, media MediaFetcher, accounts repository.SocialAccountRepository, client *http.Client) Registry {
	return Registry{
		models.ProviderFacebook:  NewFacebookPublisher(media, accounts, client),
		models.ProviderInstagram: NewInstagramPublisher(accounts, client),
		models.ProviderTwitter:   NewTwitterPublisher(media, client),
		models.ProviderLinkedin:  NewLinkedinPublisher(media, client),
		models.ProviderBluesky:   NewBlueskyPublisher(media, cfg.BlueskyServiceURL, cfg.BlueskyAuthScheme, client),
		models.ProviderMastodon:  NewMastodonPublisher(media, cfg.MastodonInstanceURL, client),
	}
}
