package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/schedulehq/publisher/internal/content"
	"github.com/schedulehq/publisher/internal/models"
)

// Request is one normalized publish action against one connected account.
type Request struct {
	Account      *models.SocialAccount
	Content      content.Content
	ScheduledFor time.Time
}

// Result is the normalized outcome of a successful publish call.
type Result struct {
	PlatformPostID string
	Raw            json.RawMessage
}

// Publisher translates a Request into one provider's API call sequence.
// Failures are reported as *Error with the Kind set by the adapter.
type Publisher interface {
	Publish(ctx context.Context, accessToken string, req Request) (*Result, error)
}

// MediaFetcher retrieves raw media bytes for adapters that upload binaries
// rather than passing URLs through.
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) (data []byte, mimeType string, err error)
}

// Registry maps each provider to its adapter. The orchestrator dispatches
// through it instead of branching per platform.
type Registry map[models.Provider]Publisher

func (r Registry) Lookup(provider models.Provider) (Publisher, bool) {
	p, ok := r[provider]
	return p, ok
}

func defaultHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 60 * time.Second}
}
