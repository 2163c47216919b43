package publisher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/schedulehq/publisher/internal/content"
	"github.com/schedulehq/publisher/internal/models"
)

const linkedinAPIBase = "https://api.linkedin.com/v2"

const (
	linkedinImageRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
	linkedinVideoRecipe = "urn:li:digitalmediaRecipe:feedshare-video"
)

// LinkedinPublisher creates UGC posts. Media goes through the three-step
// assets flow: register an upload, PUT the bytes, reference the asset URN.
type LinkedinPublisher struct {
	client  *http.Client
	media   MediaFetcher
	apiBase string
}

func NewLinkedinPublisher(media MediaFetcher, client *http.Client) *LinkedinPublisher {
	return &LinkedinPublisher{
		client:  defaultHTTPClient(client),
		media:   media,
		apiBase: linkedinAPIBase,
	}
}

func (p *LinkedinPublisher) Publish(ctx context.Context, accessToken string, req Request) (*Result, error) {
	if req.Account.ProviderUserID == "" {
		return nil, Config(models.ProviderLinkedin, "LinkedIn account has no member id; reconnect the account")
	}
	ownerURN := "urn:li:person:" + req.Account.ProviderUserID

	mediaURL := req.Content.Video
	recipe := linkedinVideoRecipe
	category := "VIDEO"
	if mediaURL == "" && len(req.Content.Images) > 0 {
		mediaURL = req.Content.Images[0]
		recipe = linkedinImageRecipe
		category = "IMAGE"
	}

	if mediaURL == "" {
		return p.createPost(ctx, accessToken, ownerURN, req.Content, "NONE", "")
	}

	asset, err := p.uploadAsset(ctx, accessToken, ownerURN, recipe, mediaURL)
	if err != nil {
		return nil, err
	}
	return p.createPost(ctx, accessToken, ownerURN, req.Content, category, asset)
}

func (p *LinkedinPublisher) uploadAsset(ctx context.Context, accessToken, ownerURN, recipe, mediaURL string) (string, error) {
	payload := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{recipe},
			"owner":   ownerURN,
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}

	res, err := postJSON(ctx, p.client, p.apiBase+"/assets?action=registerUpload", payload, p.headers(accessToken))
	if err != nil {
		return "", Transient(models.ProviderLinkedin, "LinkedIn upload registration failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("LinkedIn upload registration failed (status %d)", res.Status))
		return "", fromStatus(models.ProviderLinkedin, res.Status, msg)
	}

	var registration struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	decodeJSON(res.Body, &registration)

	var uploadURL string
	for _, mech := range registration.Value.UploadMechanism {
		if mech.UploadURL != "" {
			uploadURL = mech.UploadURL
			break
		}
	}
	if registration.Value.Asset == "" || uploadURL == "" {
		return "", Permanent(models.ProviderLinkedin, "LinkedIn did not return an upload URL")
	}

	data, mimeType, err := p.media.Fetch(ctx, mediaURL)
	if err != nil {
		return "", Transient(models.ProviderLinkedin, "failed to download media: %v", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	if mimeType != "" {
		headers["Content-Type"] = mimeType
	}
	uploadRes, err := putBytes(ctx, p.client, uploadURL, data, headers)
	if err != nil {
		return "", Transient(models.ProviderLinkedin, "LinkedIn media upload failed: %v", err)
	}
	if !uploadRes.ok() {
		msg := errorMessage(uploadRes.Body, fmt.Sprintf("LinkedIn media upload failed (status %d)", uploadRes.Status))
		return "", fromStatus(models.ProviderLinkedin, uploadRes.Status, msg)
	}

	return registration.Value.Asset, nil
}

func (p *LinkedinPublisher) createPost(ctx context.Context, accessToken, ownerURN string, c content.Content, category, asset string) (*Result, error) {
	shareContent := map[string]interface{}{
		"shareCommentary":    map[string]string{"text": c.Caption},
		"shareMediaCategory": category,
	}
	if asset != "" {
		shareContent["media"] = []map[string]interface{}{{
			"status": "READY",
			"media":  asset,
		}}
	}

	payload := map[string]interface{}{
		"author":         ownerURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	res, err := postJSON(ctx, p.client, p.apiBase+"/ugcPosts", payload, p.headers(accessToken))
	if err != nil {
		return nil, Transient(models.ProviderLinkedin, "LinkedIn post creation failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("LinkedIn post creation failed (status %d)", res.Status))
		return nil, fromStatus(models.ProviderLinkedin, res.Status, msg)
	}

	var result struct {
		ID string `json:"id"`
	}
	decodeJSON(res.Body, &result)

	return &Result{PlatformPostID: result.ID, Raw: res.Body}, nil
}

func (p *LinkedinPublisher) headers(accessToken string) map[string]string {
	return map[string]string{
		"Authorization":             "Bearer " + accessToken,
		"X-Restli-Protocol-Version": "2.0.0",
	}
}
