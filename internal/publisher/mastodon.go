package publisher

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/schedulehq/publisher/internal/models"
)

// MastodonPublisher posts a status to the account's home instance,
// uploading media through the v2 media endpoint first when present.
type MastodonPublisher struct {
	client          *http.Client
	media           MediaFetcher
	defaultInstance string
}

func NewMastodonPublisher(media MediaFetcher, defaultInstance string, client *http.Client) *MastodonPublisher {
	return &MastodonPublisher{
		client:          defaultHTTPClient(client),
		media:           media,
		defaultInstance: defaultInstance,
	}
}

func (p *MastodonPublisher) Publish(ctx context.Context, accessToken string, req Request) (*Result, error) {
	instance := p.instanceURL(req.Account)
	if instance == "" {
		return nil, Config(models.ProviderMastodon, "no Mastodon instance URL configured for this account")
	}

	var mediaIDs []string
	mediaURL := req.Content.Video
	if mediaURL == "" && len(req.Content.Images) > 0 {
		mediaURL = req.Content.Images[0]
	}
	if mediaURL != "" {
		mediaID, err := p.uploadMedia(ctx, instance, accessToken, mediaURL)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	form := url.Values{}
	form.Set("status", req.Content.Caption)
	for _, id := range mediaIDs {
		form.Add("media_ids[]", id)
	}

	res, err := postForm(ctx, p.client, instance+"/api/v1/statuses", form, bearerHeader(accessToken))
	if err != nil {
		return nil, Transient(models.ProviderMastodon, "Mastodon status creation failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Mastodon status creation failed (status %d)", res.Status))
		return nil, fromStatus(models.ProviderMastodon, res.Status, msg)
	}

	var result struct {
		ID string `json:"id"`
	}
	decodeJSON(res.Body, &result)

	return &Result{PlatformPostID: result.ID, Raw: res.Body}, nil
}

func (p *MastodonPublisher) instanceURL(acc *models.SocialAccount) string {
	if ms := acc.Meta.Mastodon; ms != nil && ms.InstanceURL != "" {
		return strings.TrimRight(ms.InstanceURL, "/")
	}
	return strings.TrimRight(p.defaultInstance, "/")
}

func (p *MastodonPublisher) uploadMedia(ctx context.Context, instance, accessToken, mediaURL string) (string, error) {
	data, mimeType, err := p.media.Fetch(ctx, mediaURL)
	if err != nil {
		return "", Transient(models.ProviderMastodon, "failed to download media: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileNameFromURL(mediaURL)))
	if mimeType != "" {
		header.Set("Content-Type", mimeType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", Permanent(models.ProviderMastodon, "failed to build upload form: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", Permanent(models.ProviderMastodon, "failed to build upload form: %v", err)
	}
	if err := writer.Close(); err != nil {
		return "", Permanent(models.ProviderMastodon, "failed to build upload form: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, instance+"/api/v2/media", &body)
	if err != nil {
		return "", Permanent(models.ProviderMastodon, "failed to build upload request: %v", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := doRequest(p.client, httpReq)
	if err != nil {
		return "", Transient(models.ProviderMastodon, "Mastodon media upload failed: %v", err)
	}
	// 202 means the instance is still processing; the id is already usable.
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Mastodon media upload failed (status %d)", res.Status))
		return "", fromStatus(models.ProviderMastodon, res.Status, msg)
	}

	var result struct {
		ID string `json:"id"`
	}
	decodeJSON(res.Body, &result)
	if result.ID == "" {
		return "", Permanent(models.ProviderMastodon, "no media id returned from Mastodon")
	}
	return result.ID, nil
}

func fileNameFromURL(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		return trimmed[i+1:]
	}
	return "media"
}
