package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/schedulehq/publisher/internal/models"
)

var blueskyHandlePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)+$`)

// BlueskyPublisher writes post records over AT Protocol XRPC. The repo
// identifier must be a DID or a bare handle; anything else is re-resolved
// through the session endpoint before the write.
type BlueskyPublisher struct {
	client            *http.Client
	media             MediaFetcher
	defaultServiceURL string
	defaultAuthScheme string
}

func NewBlueskyPublisher(media MediaFetcher, serviceURL, authScheme string, client *http.Client) *BlueskyPublisher {
	if serviceURL == "" {
		serviceURL = "https://bsky.social"
	}
	if authScheme == "" {
		authScheme = "Bearer"
	}
	return &BlueskyPublisher{
		client:            defaultHTTPClient(client),
		media:             media,
		defaultServiceURL: serviceURL,
		defaultAuthScheme: authScheme,
	}
}

func (p *BlueskyPublisher) Publish(ctx context.Context, accessToken string, req Request) (*Result, error) {
	serviceURL := p.serviceURL(req.Account)
	headers := p.authHeaders(accessToken, req.Account)

	repo, err := p.resolveRepo(ctx, serviceURL, headers, req.Account)
	if err != nil {
		return nil, err
	}

	record := map[string]interface{}{
		"$type":     "app.bsky.feed.post",
		"text":      truncateGraphemes(req.Content.Caption, blueskyGraphemeLimit),
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}

	if len(req.Content.Images) > 0 {
		embed, err := p.buildImageEmbed(ctx, serviceURL, headers, req.Content.Images)
		if err != nil {
			return nil, err
		}
		record["embed"] = embed
	}

	payload := map[string]interface{}{
		"repo":       repo,
		"collection": "app.bsky.feed.post",
		"record":     record,
	}

	res, err := postJSON(ctx, p.client, serviceURL+"/xrpc/com.atproto.repo.createRecord", payload, headers)
	if err != nil {
		return nil, Transient(models.ProviderBluesky, "Bluesky post creation failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Bluesky post creation failed (status %d)", res.Status))
		return nil, fromStatus(models.ProviderBluesky, res.Status, msg)
	}

	var result struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	decodeJSON(res.Body, &result)

	return &Result{PlatformPostID: result.URI, Raw: res.Body}, nil
}

func (p *BlueskyPublisher) serviceURL(acc *models.SocialAccount) string {
	if bs := acc.Meta.Bluesky; bs != nil && bs.ServiceURL != "" {
		return strings.TrimRight(bs.ServiceURL, "/")
	}
	return strings.TrimRight(p.defaultServiceURL, "/")
}

func (p *BlueskyPublisher) authHeaders(accessToken string, acc *models.SocialAccount) map[string]string {
	scheme := p.defaultAuthScheme
	if bs := acc.Meta.Bluesky; bs != nil && bs.AuthScheme != "" {
		scheme = bs.AuthScheme
	}
	return map[string]string{"Authorization": scheme + " " + accessToken}
}

// resolveRepo picks the identifier the record is written under. Stored
// values that are neither a DID nor a bare handle (old rows kept full
// profile URLs here) are replaced with the session's actual DID.
func (p *BlueskyPublisher) resolveRepo(ctx context.Context, serviceURL string, headers map[string]string, acc *models.SocialAccount) (string, error) {
	var candidate string
	if bs := acc.Meta.Bluesky; bs != nil {
		if bs.DID != "" {
			candidate = bs.DID
		} else if bs.Handle != "" {
			candidate = bs.Handle
		}
	}
	if candidate == "" {
		candidate = acc.ProviderUserID
	}

	if isValidBlueskyRepo(candidate) {
		return candidate, nil
	}

	res, err := getRequest(ctx, p.client, serviceURL+"/xrpc/com.atproto.server.getSession", headers)
	if err != nil {
		return "", Transient(models.ProviderBluesky, "Bluesky session lookup failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Bluesky session lookup failed (status %d)", res.Status))
		return "", fromStatus(models.ProviderBluesky, res.Status, msg)
	}

	var session struct {
		DID    string `json:"did"`
		Handle string `json:"handle"`
	}
	decodeJSON(res.Body, &session)

	switch {
	case session.DID != "":
		return session.DID, nil
	case session.Handle != "":
		return session.Handle, nil
	default:
		return "", Auth(models.ProviderBluesky, "Bluesky session has no DID or handle; reconnect the account")
	}
}

func isValidBlueskyRepo(identifier string) bool {
	if strings.HasPrefix(identifier, "did:") {
		return len(identifier) > len("did:x:")
	}
	return blueskyHandlePattern.MatchString(identifier)
}

func (p *BlueskyPublisher) buildImageEmbed(ctx context.Context, serviceURL string, headers map[string]string, images []string) (map[string]interface{}, error) {
	var embedded []map[string]interface{}
	for _, imageURL := range images {
		blob, err := p.uploadBlob(ctx, serviceURL, headers, imageURL)
		if err != nil {
			return nil, err
		}
		embedded = append(embedded, map[string]interface{}{
			"image": blob,
			"alt":   "",
		})
	}

	return map[string]interface{}{
		"$type":  "app.bsky.embed.images",
		"images": embedded,
	}, nil
}

func (p *BlueskyPublisher) uploadBlob(ctx context.Context, serviceURL string, headers map[string]string, imageURL string) (json.RawMessage, error) {
	data, mimeType, err := p.media.Fetch(ctx, imageURL)
	if err != nil {
		return nil, Transient(models.ProviderBluesky, "failed to download image: %v", err)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, Permanent(models.ProviderBluesky, "failed to build blob upload request: %v", err)
	}
	httpReq.Header.Set("Content-Type", mimeType)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	res, err := doRequest(p.client, httpReq)
	if err != nil {
		return nil, Transient(models.ProviderBluesky, "Bluesky blob upload failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Bluesky blob upload failed (status %d)", res.Status))
		return nil, fromStatus(models.ProviderBluesky, res.Status, msg)
	}

	var upload struct {
		Blob json.RawMessage `json:"blob"`
	}
	decodeJSON(res.Body, &upload)
	if len(upload.Blob) == 0 {
		return nil, Permanent(models.ProviderBluesky, "Bluesky did not return a blob reference")
	}
	return upload.Blob, nil
}
