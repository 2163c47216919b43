package publisher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/schedulehq/publisher/internal/models"
	"github.com/schedulehq/publisher/internal/repository"
)

const facebookGraphBase = "https://graph.facebook.com/v18.0"

// FacebookPublisher posts to a Facebook page. Page posts require a
// page-scoped token, which is resolved from cached account metadata or the
// user's page listing and cached back for the next attempt.
type FacebookPublisher struct {
	client    *http.Client
	media     MediaFetcher
	accounts  repository.SocialAccountRepository
	graphBase string
}

func NewFacebookPublisher(media MediaFetcher, accounts repository.SocialAccountRepository, client *http.Client) *FacebookPublisher {
	return &FacebookPublisher{
		client:    defaultHTTPClient(client),
		media:     media,
		accounts:  accounts,
		graphBase: facebookGraphBase,
	}
}

func (p *FacebookPublisher) Publish(ctx context.Context, accessToken string, req Request) (*Result, error) {
	pageID, pageToken, err := p.resolvePage(ctx, accessToken, req.Account)
	if err != nil {
		return nil, err
	}

	switch {
	case req.Content.Video != "":
		return p.publishVideo(ctx, pageID, pageToken, req)
	case len(req.Content.Images) > 0:
		return p.publishPhoto(ctx, pageID, pageToken, req.Content.Images[0], req.Content.Caption)
	default:
		return p.publishFeed(ctx, pageID, pageToken, req.Content.Caption)
	}
}

func (p *FacebookPublisher) resolvePage(ctx context.Context, userToken string, acc *models.SocialAccount) (string, string, error) {
	fb := acc.Meta.Facebook
	if fb != nil && fb.PageID != "" && fb.PageAccessToken != "" {
		return fb.PageID, fb.PageAccessToken, nil
	}

	endpoint := fmt.Sprintf("%s/me/accounts?access_token=%s", p.graphBase, url.QueryEscape(userToken))
	res, err := getRequest(ctx, p.client, endpoint, nil)
	if err != nil {
		return "", "", Transient(models.ProviderFacebook, "failed to list Facebook pages: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Facebook pages lookup failed (status %d)", res.Status))
		return "", "", fromStatus(models.ProviderFacebook, res.Status, msg)
	}

	var pages struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	decodeJSON(res.Body, &pages)

	if len(pages.Data) == 0 {
		return "", "", Config(models.ProviderFacebook, "No Facebook pages available for this account. Connect a Facebook page and reconnect the account.")
	}

	selected := pages.Data[0]
	if fb != nil && fb.PreferredPageID != "" {
		for _, page := range pages.Data {
			if page.ID == fb.PreferredPageID {
				selected = page
				break
			}
		}
	}
	if selected.AccessToken == "" {
		return "", "", Config(models.ProviderFacebook, "Facebook page %s has no page access token. Reconnect the account with the pages_manage_posts permission.", selected.ID)
	}

	meta := acc.Meta
	if meta.Facebook == nil {
		meta.Facebook = &models.FacebookMeta{}
	}
	meta.Facebook.PageID = selected.ID
	meta.Facebook.PageName = selected.Name
	meta.Facebook.PageAccessToken = selected.AccessToken
	if err := p.accounts.UpdateMeta(ctx, acc.ID, meta); err != nil {
		slog.Info(err.Error())
	}
	acc.Meta = meta

	return selected.ID, selected.AccessToken, nil
}

func (p *FacebookPublisher) publishFeed(ctx context.Context, pageID, pageToken, caption string) (*Result, error) {
	data := url.Values{}
	data.Set("message", caption)
	data.Set("access_token", pageToken)

	res, err := postForm(ctx, p.client, fmt.Sprintf("%s/%s/feed", p.graphBase, pageID), data, nil)
	if err != nil {
		return nil, Transient(models.ProviderFacebook, "Facebook feed post failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Facebook feed post failed (status %d)", res.Status))
		return nil, fromStatus(models.ProviderFacebook, res.Status, msg)
	}

	var result struct {
		ID string `json:"id"`
	}
	decodeJSON(res.Body, &result)

	return &Result{PlatformPostID: result.ID, Raw: res.Body}, nil
}

func (p *FacebookPublisher) publishPhoto(ctx context.Context, pageID, pageToken, imageURL, caption string) (*Result, error) {
	data := url.Values{}
	data.Set("url", imageURL)
	data.Set("caption", caption)
	data.Set("access_token", pageToken)

	res, err := postForm(ctx, p.client, fmt.Sprintf("%s/%s/photos", p.graphBase, pageID), data, nil)
	if err != nil {
		return nil, Transient(models.ProviderFacebook, "Facebook photo post failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Facebook photo post failed (status %d)", res.Status))
		return nil, fromStatus(models.ProviderFacebook, res.Status, msg)
	}

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	decodeJSON(res.Body, &result)

	postID := result.PostID
	if postID == "" {
		postID = result.ID
	}
	return &Result{PlatformPostID: postID, Raw: res.Body}, nil
}

// publishVideo runs the Graph API resumable upload protocol: start declares
// the file size and opens a session, transfer sends the chunk windows the
// server asks for, finish attaches the description and (for future
// schedules) the publish time.
func (p *FacebookPublisher) publishVideo(ctx context.Context, pageID, pageToken string, req Request) (*Result, error) {
	buf, _, err := p.media.Fetch(ctx, req.Content.Video)
	if err != nil {
		return nil, Transient(models.ProviderFacebook, "failed to download video: %v", err)
	}

	endpoint := fmt.Sprintf("%s/%s/videos", p.graphBase, pageID)

	startData := url.Values{}
	startData.Set("upload_phase", "start")
	startData.Set("file_size", strconv.Itoa(len(buf)))
	startData.Set("access_token", pageToken)

	res, err := postForm(ctx, p.client, endpoint, startData, nil)
	if err != nil {
		return nil, Transient(models.ProviderFacebook, "Facebook video upload start failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Facebook video upload start failed (status %d)", res.Status))
		return nil, fromStatus(models.ProviderFacebook, res.Status, msg)
	}

	var session struct {
		UploadSessionID string `json:"upload_session_id"`
		VideoID         string `json:"video_id"`
		StartOffset     string `json:"start_offset"`
		EndOffset       string `json:"end_offset"`
	}
	decodeJSON(res.Body, &session)
	if session.UploadSessionID == "" {
		return nil, Permanent(models.ProviderFacebook, "Facebook did not return an upload session id")
	}

	startOffset, endOffset := session.StartOffset, session.EndOffset
	for startOffset != endOffset {
		start, err := strconv.Atoi(startOffset)
		if err != nil {
			return nil, Permanent(models.ProviderFacebook, "invalid start offset %q from Facebook", startOffset)
		}
		end, err := strconv.Atoi(endOffset)
		if err != nil || end > len(buf) || start >= end {
			return nil, Permanent(models.ProviderFacebook, "invalid byte window %q-%q from Facebook", startOffset, endOffset)
		}

		startOffset, endOffset, err = p.transferChunk(ctx, endpoint, pageToken, session.UploadSessionID, startOffset, buf[start:end])
		if err != nil {
			return nil, err
		}
	}

	finishData := url.Values{}
	finishData.Set("upload_phase", "finish")
	finishData.Set("upload_session_id", session.UploadSessionID)
	finishData.Set("description", req.Content.Caption)
	finishData.Set("access_token", pageToken)
	if req.ScheduledFor.After(time.Now()) {
		finishData.Set("published", "false")
		finishData.Set("scheduled_publish_time", strconv.FormatInt(req.ScheduledFor.Unix(), 10))
	}

	res, err = postForm(ctx, p.client, endpoint, finishData, nil)
	if err != nil {
		return nil, Transient(models.ProviderFacebook, "Facebook video upload finish failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Facebook video upload finish failed (status %d)", res.Status))
		return nil, fromStatus(models.ProviderFacebook, res.Status, msg)
	}

	return &Result{PlatformPostID: session.VideoID, Raw: res.Body}, nil
}

func (p *FacebookPublisher) transferChunk(ctx context.Context, endpoint, pageToken, sessionID, startOffset string, chunk []byte) (string, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("upload_phase", "transfer")
	_ = writer.WriteField("upload_session_id", sessionID)
	_ = writer.WriteField("start_offset", startOffset)
	_ = writer.WriteField("access_token", pageToken)

	part, err := writer.CreateFormFile("video_file_chunk", "chunk.bin")
	if err != nil {
		return "", "", Permanent(models.ProviderFacebook, "failed to build upload form: %v", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return "", "", Permanent(models.ProviderFacebook, "failed to build upload form: %v", err)
	}
	if err := writer.Close(); err != nil {
		return "", "", Permanent(models.ProviderFacebook, "failed to build upload form: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", "", Permanent(models.ProviderFacebook, "failed to build upload request: %v", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := doRequest(p.client, httpReq)
	if err != nil {
		return "", "", Transient(models.ProviderFacebook, "Facebook video chunk upload failed: %v", err)
	}
	if !res.ok() {
		msg := errorMessage(res.Body, fmt.Sprintf("Facebook video chunk upload failed (status %d)", res.Status))
		return "", "", fromStatus(models.ProviderFacebook, res.Status, msg)
	}

	var window struct {
		StartOffset string `json:"start_offset"`
		EndOffset   string `json:"end_offset"`
	}
	decodeJSON(res.Body, &window)
	return window.StartOffset, window.EndOffset, nil
}
