package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/schedulehq/publisher/internal/models"
)

const (
	twitterUploadBase = "https://upload.twitter.com/1.1"
	twitterAPIBase    = "https://api.x.com/2"
)

const twitterPermissionGuidance = `Twitter rejected the request. Enable "Read and write" app permissions in the Twitter developer portal and reconnect the account so the tweet.write scope is granted.`

// TwitterPublisher uploads media through the v1.1 media endpoint and
// creates the tweet through the v2 API.
type TwitterPublisher struct {
	client     *http.Client
	media      MediaFetcher
	uploadBase string
	apiBase    string
}

func NewTwitterPublisher(media MediaFetcher, client *http.Client) *TwitterPublisher {
	return &TwitterPublisher{
		client:     defaultHTTPClient(client),
		media:      media,
		uploadBase: twitterUploadBase,
		apiBase:    twitterAPIBase,
	}
}

func (p *TwitterPublisher) Publish(ctx context.Context, accessToken string, req Request) (*Result, error) {
	var mediaIDs []string

	mediaURL := req.Content.Video
	if mediaURL == "" && len(req.Content.Images) > 0 {
		mediaURL = req.Content.Images[0]
	}
	if mediaURL != "" {
		mediaID, err := p.uploadMedia(ctx, accessToken, mediaURL)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	payload := map[string]interface{}{
		"text": req.Content.Caption,
	}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]interface{}{"media_ids": mediaIDs}
	}

	res, err := postJSON(ctx, p.client, p.apiBase+"/tweets", payload, bearerHeader(accessToken))
	if err != nil {
		return nil, Transient(models.ProviderTwitter, "tweet creation failed: %v", err)
	}
	if !res.ok() {
		return nil, p.classifyTweetError(res)
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decodeJSON(res.Body, &result)

	return &Result{PlatformPostID: result.Data.ID, Raw: res.Body}, nil
}

// uploadMedia sends the media bytes as a binary multipart upload first; some
// proxies mangle binary parts, so a base64 form upload is tried as the
// fallback before giving up.
func (p *TwitterPublisher) uploadMedia(ctx context.Context, accessToken, mediaURL string) (string, error) {
	data, _, err := p.media.Fetch(ctx, mediaURL)
	if err != nil {
		return "", Transient(models.ProviderTwitter, "failed to download media: %v", err)
	}

	mediaID, binaryErr := p.uploadBinary(ctx, accessToken, data)
	if binaryErr == nil {
		return mediaID, nil
	}

	mediaID, base64Err := p.uploadBase64(ctx, accessToken, data)
	if base64Err == nil {
		return mediaID, nil
	}

	return "", Permanent(models.ProviderTwitter, "Twitter media upload failed (binary: %v; base64: %v)", binaryErr, base64Err)
}

func (p *TwitterPublisher) uploadBinary(ctx context.Context, accessToken string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadBase+"/media/upload.json", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return p.parseUploadResponse(doRequest(p.client, req))
}

func (p *TwitterPublisher) uploadBase64(ctx context.Context, accessToken string, data []byte) (string, error) {
	form := url.Values{}
	form.Set("media_data", base64.StdEncoding.EncodeToString(data))

	res, err := postForm(ctx, p.client, p.uploadBase+"/media/upload.json", form, bearerHeader(accessToken))
	return p.parseUploadResponse(res, err)
}

func (p *TwitterPublisher) parseUploadResponse(res httpResult, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if !res.ok() {
		return "", fmt.Errorf("%s", errorMessage(res.Body, fmt.Sprintf("media upload failed (status %d)", res.Status)))
	}

	var result struct {
		MediaIDString string `json:"media_id_string"`
	}
	decodeJSON(res.Body, &result)
	if result.MediaIDString == "" {
		return "", fmt.Errorf("no media id returned from Twitter")
	}
	return result.MediaIDString, nil
}

// classifyTweetError maps a missing tweet.write scope and a blanket 403,
// the two failures users actually hit, to actionable reconnect guidance
// instead of the raw provider text.
func (p *TwitterPublisher) classifyTweetError(res httpResult) error {
	msg := errorMessage(res.Body, fmt.Sprintf("tweet creation failed (status %d)", res.Status))
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "tweet.write") || strings.Contains(lower, "scope") {
		return Auth(models.ProviderTwitter, "%s The connected account is missing the tweet.write scope.", twitterPermissionGuidance)
	}
	if res.Status == http.StatusForbidden || strings.Contains(lower, "forbidden") || strings.Contains(lower, "not permitted") {
		return Auth(models.ProviderTwitter, "%s (%s)", twitterPermissionGuidance, msg)
	}

	return fromStatus(models.ProviderTwitter, res.Status, msg)
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
