package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedulehq/publisher/internal/content"
	"github.com/schedulehq/publisher/internal/models"
)

func newTestInstagramPublisher(t *testing.T, handler http.Handler, repo *fakeAccountRepo) *InstagramPublisher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewInstagramPublisher(repo, srv.Client())
	p.graphBase = srv.URL
	p.pollInterval = time.Millisecond
	p.pollTimeout = 250 * time.Millisecond
	return p
}

func instagramAccount(meta models.AccountMeta) *models.SocialAccount {
	return &models.SocialAccount{
		ID:       8,
		Provider: models.ProviderInstagram,
		IsActive: true,
		Meta:     meta,
	}
}

func TestInstagramImagePost(t *testing.T) {
	p := newTestInstagramPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig-1/media":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "https://cdn.test/a.png", payload["image_url"])
			assert.Equal(t, "sunset", payload["caption"])
			w.Write([]byte(`{"id":"container-1"}`))
		case "/ig-1/media_publish":
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "container-1", payload["creation_id"])
			w.Write([]byte(`{"id":"ig-post-1"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}), &fakeAccountRepo{})

	acc := instagramAccount(models.AccountMeta{Facebook: &models.FacebookMeta{InstagramAccountID: "ig-1"}})

	res, err := p.Publish(context.Background(), "tok-ig", Request{
		Account: acc,
		Content: content.Content{Caption: "sunset", Images: []string{"https://cdn.test/a.png"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "ig-post-1", res.PlatformPostID)
}

func TestInstagramVideoPollsUntilFinished(t *testing.T) {
	statusCalls := 0

	p := newTestInstagramPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig-1/media":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "REELS", payload["media_type"])
			assert.Equal(t, "https://cdn.test/clip.mp4", payload["video_url"])
			w.Write([]byte(`{"id":"container-2"}`))
		case "/container-2":
			statusCalls++
			if statusCalls < 3 {
				w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
				return
			}
			w.Write([]byte(`{"status_code":"FINISHED"}`))
		case "/ig-1/media_publish":
			w.Write([]byte(`{"id":"ig-post-2"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}), &fakeAccountRepo{})

	acc := instagramAccount(models.AccountMeta{Facebook: &models.FacebookMeta{InstagramAccountID: "ig-1"}})

	res, err := p.Publish(context.Background(), "tok-ig", Request{
		Account: acc,
		Content: content.Content{Caption: "reel", Video: "https://cdn.test/clip.mp4"},
	})

	require.NoError(t, err)
	assert.Equal(t, "ig-post-2", res.PlatformPostID)
	assert.Equal(t, 3, statusCalls)
}

func TestInstagramProcessingErrorIsPermanent(t *testing.T) {
	p := newTestInstagramPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig-1/media":
			w.Write([]byte(`{"id":"container-3"}`))
		case "/container-3":
			w.Write([]byte(`{"status_code":"ERROR"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}), &fakeAccountRepo{})

	acc := instagramAccount(models.AccountMeta{Facebook: &models.FacebookMeta{InstagramAccountID: "ig-1"}})

	_, err := p.Publish(context.Background(), "tok-ig", Request{
		Account: acc,
		Content: content.Content{Caption: "reel", Video: "https://cdn.test/clip.mp4"},
	})

	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "failed to process")
}

func TestInstagramProcessingTimesOut(t *testing.T) {
	p := newTestInstagramPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig-1/media":
			w.Write([]byte(`{"id":"container-4"}`))
		case "/container-4":
			w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}), &fakeAccountRepo{})

	acc := instagramAccount(models.AccountMeta{Facebook: &models.FacebookMeta{InstagramAccountID: "ig-1"}})

	_, err := p.Publish(context.Background(), "tok-ig", Request{
		Account: acc,
		Content: content.Content{Caption: "reel", Video: "https://cdn.test/clip.mp4"},
	})

	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestInstagramResolvesBusinessAccountAndCaches(t *testing.T) {
	repo := &fakeAccountRepo{}

	p := newTestInstagramPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/accounts":
			assert.Equal(t, "instagram_business_account", r.URL.Query().Get("fields"))
			w.Write([]byte(`{"data":[{},{"instagram_business_account":{"id":"ig-77"}}]}`))
		case "/ig-77/media":
			w.Write([]byte(`{"id":"container-4"}`))
		case "/ig-77/media_publish":
			w.Write([]byte(`{"id":"ig-post-4"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}), repo)

	acc := instagramAccount(models.AccountMeta{})

	res, err := p.Publish(context.Background(), "tok-ig", Request{
		Account: acc,
		Content: content.Content{Caption: "pic", Images: []string{"https://cdn.test/a.png"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "ig-post-4", res.PlatformPostID)
	require.NotNil(t, repo.updatedMeta)
	assert.Equal(t, "ig-77", repo.updatedMeta.Facebook.InstagramAccountID)
}

func TestInstagramTextOnlyRejected(t *testing.T) {
	p := NewInstagramPublisher(&fakeAccountRepo{}, nil)

	acc := instagramAccount(models.AccountMeta{Facebook: &models.FacebookMeta{InstagramAccountID: "ig-1"}})

	_, err := p.Publish(context.Background(), "tok-ig", Request{
		Account: acc,
		Content: content.Content{Caption: "words only"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "require an image or video")
}

func TestInstagramNoBusinessAccountIsConfigError(t *testing.T) {
	p := newTestInstagramPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{}]}`))
	}), &fakeAccountRepo{})

	_, err := p.Publish(context.Background(), "tok-ig", Request{
		Account: instagramAccount(models.AccountMeta{}),
		Content: content.Content{Caption: "pic", Images: []string{"https://cdn.test/a.png"}},
	})

	require.Error(t, err)
	assert.False(t, IsAuth(err))
	assert.Contains(t, err.Error(), "No Instagram business account")
}
