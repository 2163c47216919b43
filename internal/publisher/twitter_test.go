package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedulehq/publisher/internal/content"
)

type fakeMediaFetcher struct {
	data []byte
	mime string
	err  error
}

func (f *fakeMediaFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	return f.data, f.mime, f.err
}

func newTestTwitterPublisher(t *testing.T, handler http.Handler, media MediaFetcher) (*TwitterPublisher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewTwitterPublisher(media, srv.Client())
	p.uploadBase = srv.URL
	p.apiBase = srv.URL
	return p, srv
}

func TestTwitterPublishTextOnly(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]interface{}

	p, _ := newTestTwitterPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tweets", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"1845"}}`))
	}), &fakeMediaFetcher{})

	res, err := p.Publish(context.Background(), "tok-1", Request{
		Content: content.Content{Caption: "hello world"},
	})

	require.NoError(t, err)
	assert.Equal(t, "1845", res.PlatformPostID)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "hello world", gotPayload["text"])
	assert.NotContains(t, gotPayload, "media")
}

func TestTwitterPublishWithImage(t *testing.T) {
	p, _ := newTestTwitterPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/upload.json":
			require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
			w.Write([]byte(`{"media_id_string":"777"}`))
		case "/tweets":
			var payload struct {
				Media struct {
					MediaIDs []string `json:"media_ids"`
				} `json:"media"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, []string{"777"}, payload.Media.MediaIDs)
			w.Write([]byte(`{"data":{"id":"1846"}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}), &fakeMediaFetcher{data: []byte("png-bytes"), mime: "image/png"})

	res, err := p.Publish(context.Background(), "tok-1", Request{
		Content: content.Content{Caption: "pic", Images: []string{"https://cdn.test/a.png"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "1846", res.PlatformPostID)
}

func TestTwitterUploadFallsBackToBase64(t *testing.T) {
	var uploadCalls int

	p, _ := newTestTwitterPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/upload.json":
			uploadCalls++
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"errors":[{"message":"media type unrecognized"}]}`))
				return
			}
			require.NoError(t, r.ParseForm())
			require.NotEmpty(t, r.PostFormValue("media_data"))
			w.Write([]byte(`{"media_id_string":"888"}`))
		case "/tweets":
			w.Write([]byte(`{"data":{"id":"1847"}}`))
		}
	}), &fakeMediaFetcher{data: []byte("jpeg-bytes"), mime: "image/jpeg"})

	res, err := p.Publish(context.Background(), "tok-1", Request{
		Content: content.Content{Caption: "pic", Images: []string{"https://cdn.test/a.jpg"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "1847", res.PlatformPostID)
	assert.Equal(t, 2, uploadCalls)
}

func TestTwitterForbiddenGetsReconnectGuidance(t *testing.T) {
	p, _ := newTestTwitterPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"title":"Forbidden","detail":"Your client app is not configured with the appropriate oauth1 app permissions for this endpoint."}`))
	}), &fakeMediaFetcher{})

	_, err := p.Publish(context.Background(), "tok-1", Request{
		Content: content.Content{Caption: "hello"},
	})

	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Contains(t, err.Error(), "Read and write")
	assert.Contains(t, err.Error(), "tweet.write")
}

func TestTwitterMissingScopeIsAuthError(t *testing.T) {
	p, _ := newTestTwitterPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"request lacked the tweet.write scope"}`))
	}), &fakeMediaFetcher{})

	_, err := p.Publish(context.Background(), "tok-1", Request{
		Content: content.Content{Caption: "hello"},
	})

	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Contains(t, err.Error(), "tweet.write")
}

func TestTwitterServerErrorIsTransient(t *testing.T) {
	p, _ := newTestTwitterPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"title":"Service Unavailable"}`))
	}), &fakeMediaFetcher{})

	_, err := p.Publish(context.Background(), "tok-1", Request{
		Content: content.Content{Caption: "hello"},
	})

	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
