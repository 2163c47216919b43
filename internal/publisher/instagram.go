package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/schedulehq/publisher/internal/models"
	"github.com/schedulehq/publisher/internal/repository"
)

// InstagramPublisher posts through the Graph API container/publish protocol.
// Video containers are processed asynchronously and must be polled before
// the publish call.
type InstagramPublisher struct {
	client       *http.Client
	accounts     repository.SocialAccountRepository
	graphBase    string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewInstagramPublisher(accounts repository.SocialAccountRepository, client *http.Client) *InstagramPublisher {
	return &InstagramPublisher{
		client:       defaultHTTPClient(client),
		accounts:     accounts,
		graphBase:    facebookGraphBase,
		pollInterval: 3 * time.Second,
		pollTimeout:  120 * time.Second,
	}
}

func (p *InstagramPublisher) Publish(ctx context.Context, accessToken string, req Request) (*Result, error) {
	businessID, err := p.resolveBusinessAccount(ctx, accessToken, req.Account)
	if err != nil {
		return nil, err
	}

	var creationID string
	switch {
	case req.Content.Video != "":
		creationID, err = p.createVideoContainer(ctx, businessID, accessToken, req.Content.Video, req.Content.Caption)
		if err == nil {
			err = p.waitForContainer(ctx, creationID, accessToken)
		}
	case len(req.Content.Images) > 0:
		creationID, err = p.createImageContainer(ctx, businessID, accessToken, req.Content.Images[0], req.Content.Caption)
	default:
		return nil, Config(models.ProviderInstagram, "Instagram posts require an image or video")
	}
	if err != nil {
		return nil, err
	}

	return p.publishContainer(ctx, businessID, accessToken, creationID)
}

func (p *InstagramPublisher) resolveBusinessAccount(ctx context.Context, accessToken string, acc *models.SocialAccount) (string, error) {
	if fb := acc.Meta.Facebook; fb != nil {
		if fb.InstagramAccountID != "" {
			return fb.InstagramAccountID, nil
		}
		if fb.BusinessAccountID != "" {
			return fb.BusinessAccountID, nil
		}
	}

	endpoint := fmt.Sprintf("%s/me/accounts?fields=instagram_business_account&access_token=%s",
		p.graphBase, url.QueryEscape(accessToken))
	res, err := getRequest(ctx, p.client, endpoint, nil)
	if err != nil {
		return "", Transient(models.ProviderInstagram, "failed to look up Instagram business account: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Instagram business account lookup failed (status %d)", res.Status))
		return "", fromStatus(models.ProviderInstagram, res.Status, msg)
	}

	var pages struct {
		Data []struct {
			InstagramBusinessAccount struct {
				ID string `json:"id"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	decodeJSON(res.Body, &pages)

	for _, page := range pages.Data {
		if id := page.InstagramBusinessAccount.ID; id != "" {
			meta := acc.Meta
			if meta.Facebook == nil {
				meta.Facebook = &models.FacebookMeta{}
			}
			meta.Facebook.InstagramAccountID = id
			if err := p.accounts.UpdateMeta(ctx, acc.ID, meta); err != nil {
				slog.Info(err.Error())
			}
			acc.Meta = meta
			return id, nil
		}
	}

	return "", Config(models.ProviderInstagram, "No Instagram business account is linked to this Facebook account. Connect an Instagram business or creator account.")
}

func (p *InstagramPublisher) createImageContainer(ctx context.Context, businessID, accessToken, imageURL, caption string) (string, error) {
	payload := map[string]interface{}{
		"image_url":    imageURL,
		"caption":      caption,
		"access_token": accessToken,
	}
	return p.createContainer(ctx, businessID, payload)
}

func (p *InstagramPublisher) createVideoContainer(ctx context.Context, businessID, accessToken, videoURL, caption string) (string, error) {
	payload := map[string]interface{}{
		"media_type":   "REELS",
		"video_url":    videoURL,
		"caption":      caption,
		"access_token": accessToken,
	}
	return p.createContainer(ctx, businessID, payload)
}

func (p *InstagramPublisher) createContainer(ctx context.Context, businessID string, payload map[string]interface{}) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media", p.graphBase, businessID)
	res, err := postJSON(ctx, p.client, endpoint, payload, nil)
	if err != nil {
		return "", Transient(models.ProviderInstagram, "Instagram container creation failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Instagram container creation failed (status %d)", res.Status))
		return "", fromStatus(models.ProviderInstagram, res.Status, msg)
	}

	var result struct {
		ID string `json:"id"`
	}
	decodeJSON(res.Body, &result)
	if result.ID == "" {
		return "", Permanent(models.ProviderInstagram, "no media container ID returned from Instagram")
	}
	return result.ID, nil
}

// waitForContainer polls the container status until Instagram finishes
// processing or the 120 second budget runs out.
func (p *InstagramPublisher) waitForContainer(ctx context.Context, creationID, accessToken string) error {
	deadline := time.Now().Add(p.pollTimeout)

	for {
		endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
			p.graphBase, creationID, url.QueryEscape(accessToken))
		res, err := getRequest(ctx, p.client, endpoint, nil)
		if err != nil {
			return Transient(models.ProviderInstagram, "Instagram processing status check failed: %v", err)
		}
		if !res.ok() {
			msg := errorMessage(res.Body, fmt.Sprintf("Instagram processing status check failed (status %d)", res.Status))
			return fromStatus(models.ProviderInstagram, res.Status, msg)
		}

		var status struct {
			StatusCode string `json:"status_code"`
		}
		decodeJSON(res.Body, &status)

		code := strings.ToUpper(status.StatusCode)
		if code != "IN_PROGRESS" && code != "PROCESSING" {
			if code == "ERROR" {
				return Permanent(models.ProviderInstagram, "Instagram failed to process the video")
			}
			return nil
		}

		if time.Now().After(deadline) {
			return Permanent(models.ProviderInstagram, "Instagram video processing timed out after %s", p.pollTimeout)
		}

		select {
		case <-ctx.Done():
			return Transient(models.ProviderInstagram, "Instagram processing poll cancelled: %v", ctx.Err())
		case <-time.After(p.pollInterval):
		}
	}
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, businessID, accessToken, creationID string) (*Result, error) {
	endpoint := fmt.Sprintf("%s/%s/media_publish", p.graphBase, businessID)
	payload := map[string]string{
		"creation_id":  creationID,
		"access_token": accessToken,
	}

	res, err := postJSON(ctx, p.client, endpoint, payload, nil)
	if err != nil {
		return nil, Transient(models.ProviderInstagram, "Instagram publish failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Instagram publish failed (status %d)", res.Status))
		return nil, fromStatus(models.ProviderInstagram, res.Status, msg)
	}

	var result struct {
		ID string `json:"id"`
	}
	decodeJSON(res.Body, &result)

	return &Result{PlatformPostID: result.ID, Raw: res.Body}, nil
}
