package publisher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedulehq/publisher/internal/content"
	"github.com/schedulehq/publisher/internal/models"
)

type fakeAccountRepo struct {
	account     *models.SocialAccount
	updatedMeta *models.AccountMeta
	deactivated []int64
	tokens      []string
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return f.account, nil
}

func (f *fakeAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *fakeAccountRepo) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *fakeAccountRepo) SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	f.tokens = append(f.tokens, accessToken)
	return nil
}

func (f *fakeAccountRepo) UpdateMeta(ctx context.Context, id int64, meta models.AccountMeta) error {
	f.updatedMeta = &meta
	return nil
}

func (f *fakeAccountRepo) Deactivate(ctx context.Context, id int64) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

func (f *fakeAccountRepo) Remove(ctx context.Context, id int64) error {
	return nil
}

func newTestFacebookPublisher(t *testing.T, handler http.Handler, media MediaFetcher, repo *fakeAccountRepo) *FacebookPublisher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewFacebookPublisher(media, repo, srv.Client())
	p.graphBase = srv.URL
	return p
}

func facebookAccount(meta models.AccountMeta) *models.SocialAccount {
	return &models.SocialAccount{
		ID:       7,
		UserID:   1,
		Provider: models.ProviderFacebook,
		IsActive: true,
		Meta:     meta,
	}
}

func TestFacebookFeedPostUsesCachedPage(t *testing.T) {
	repo := &fakeAccountRepo{}

	p := newTestFacebookPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/page-1/feed", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello", r.PostFormValue("message"))
		assert.Equal(t, "page-token", r.PostFormValue("access_token"))
		w.Write([]byte(`{"id":"page-1_99"}`))
	}), &fakeMediaFetcher{}, repo)

	acc := facebookAccount(models.AccountMeta{Facebook: &models.FacebookMeta{
		PageID:          "page-1",
		PageAccessToken: "page-token",
	}})

	res, err := p.Publish(context.Background(), "user-token", Request{
		Account: acc,
		Content: content.Content{Caption: "hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, "page-1_99", res.PlatformPostID)
	assert.Nil(t, repo.updatedMeta, "cached page should not trigger a meta rewrite")
}

func TestFacebookResolvesAndCachesPage(t *testing.T) {
	repo := &fakeAccountRepo{}

	p := newTestFacebookPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/accounts":
			assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
			w.Write([]byte(`{"data":[
				{"id":"page-a","name":"First","access_token":"tok-a"},
				{"id":"page-b","name":"Second","access_token":"tok-b"}
			]}`))
		case "/page-b/photos":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "https://cdn.test/a.png", r.PostFormValue("url"))
			assert.Equal(t, "tok-b", r.PostFormValue("access_token"))
			w.Write([]byte(`{"id":"123","post_id":"page-b_123"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}), &fakeMediaFetcher{}, repo)

	acc := facebookAccount(models.AccountMeta{Facebook: &models.FacebookMeta{
		PreferredPageID: "page-b",
	}})

	res, err := p.Publish(context.Background(), "user-token", Request{
		Account: acc,
		Content: content.Content{Caption: "pic", Images: []string{"https://cdn.test/a.png"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "page-b_123", res.PlatformPostID)

	require.NotNil(t, repo.updatedMeta)
	assert.Equal(t, "page-b", repo.updatedMeta.Facebook.PageID)
	assert.Equal(t, "Second", repo.updatedMeta.Facebook.PageName)
	assert.Equal(t, "tok-b", repo.updatedMeta.Facebook.PageAccessToken)
}

func TestFacebookNoPagesIsConfigError(t *testing.T) {
	repo := &fakeAccountRepo{}

	p := newTestFacebookPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}), &fakeMediaFetcher{}, repo)

	_, err := p.Publish(context.Background(), "user-token", Request{
		Account: facebookAccount(models.AccountMeta{}),
		Content: content.Content{Caption: "hello"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "No Facebook pages available")
	assert.False(t, IsAuth(err), "a missing page must not look like a revoked grant")
	assert.False(t, IsTransient(err))
}

func TestFacebookExpiredTokenOnPageLookup(t *testing.T) {
	repo := &fakeAccountRepo{}

	p := newTestFacebookPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Error validating access token: Session has expired"}}`))
	}), &fakeMediaFetcher{}, repo)

	_, err := p.Publish(context.Background(), "user-token", Request{
		Account: facebookAccount(models.AccountMeta{}),
		Content: content.Content{Caption: "hello"},
	})

	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Contains(t, err.Error(), "Session has expired")
}

// parseUploadForm handles both the urlencoded start/finish phases and the
// multipart transfer phase of the video upload protocol.
func parseUploadForm(t *testing.T, r *http.Request) {
	t.Helper()
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		return
	}
	require.NoError(t, r.ParseForm())
}

func TestFacebookChunkedVideoUpload(t *testing.T) {
	video := make([]byte, 10)
	for i := range video {
		video[i] = byte(i)
	}

	var transfers [][]byte
	finished := false

	p := newTestFacebookPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/page-1/videos", r.URL.Path)
		parseUploadForm(t, r)

		switch r.FormValue("upload_phase") {
		case "start":
			assert.Equal(t, strconv.Itoa(len(video)), r.FormValue("file_size"))
			w.Write([]byte(`{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"6"}`))
		case "transfer":
			assert.Equal(t, "sess-1", r.FormValue("upload_session_id"))
			file, _, err := r.FormFile("video_file_chunk")
			require.NoError(t, err)
			chunk := make([]byte, 16)
			n, _ := file.Read(chunk)
			transfers = append(transfers, chunk[:n])

			if len(transfers) == 1 {
				w.Write([]byte(`{"start_offset":"6","end_offset":"10"}`))
			} else {
				w.Write([]byte(`{"start_offset":"10","end_offset":"10"}`))
			}
		case "finish":
			finished = true
			assert.Equal(t, "sess-1", r.FormValue("upload_session_id"))
			assert.Equal(t, "my clip", r.FormValue("description"))
			w.Write([]byte(`{"success":true}`))
		default:
			t.Fatalf("unexpected phase %q", r.FormValue("upload_phase"))
		}
	}), &fakeMediaFetcher{data: video, mime: "video/mp4"}, &fakeAccountRepo{})

	acc := facebookAccount(models.AccountMeta{Facebook: &models.FacebookMeta{
		PageID:          "page-1",
		PageAccessToken: "page-token",
	}})

	res, err := p.Publish(context.Background(), "user-token", Request{
		Account: acc,
		Content: content.Content{Caption: "my clip", Video: "https://cdn.test/clip.mp4"},
	})

	require.NoError(t, err)
	assert.Equal(t, "vid-1", res.PlatformPostID)
	assert.True(t, finished)
	require.Len(t, transfers, 2)
	assert.Equal(t, video[0:6], transfers[0])
	assert.Equal(t, video[6:10], transfers[1])
}

func TestFacebookFutureScheduleSetsPublishTime(t *testing.T) {
	scheduledFor := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	var gotPublishTime string

	p := newTestFacebookPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parseUploadForm(t, r)
		switch r.FormValue("upload_phase") {
		case "start":
			w.Write([]byte(`{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"4"}`))
		case "transfer":
			w.Write([]byte(`{"start_offset":"4","end_offset":"4"}`))
		case "finish":
			assert.Equal(t, "false", r.FormValue("published"))
			gotPublishTime = r.FormValue("scheduled_publish_time")
			w.Write([]byte(`{"success":true}`))
		}
	}), &fakeMediaFetcher{data: []byte("clip"), mime: "video/mp4"}, &fakeAccountRepo{})

	acc := facebookAccount(models.AccountMeta{Facebook: &models.FacebookMeta{
		PageID:          "page-1",
		PageAccessToken: "page-token",
	}})

	_, err := p.Publish(context.Background(), "user-token", Request{
		Account:      acc,
		Content:      content.Content{Caption: "later", Video: "https://cdn.test/clip.mp4"},
		ScheduledFor: scheduledFor,
	})

	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(scheduledFor.Unix(), 10), gotPublishTime)
}
