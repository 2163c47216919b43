package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// httpResult carries a raw provider response. Bodies are always read in full
// so callers can both inspect errors and keep the raw payload.
type httpResult struct {
	Status int
	Body   []byte
}

func (r httpResult) ok() bool {
	return r.Status >= 200 && r.Status < 300
}

func doRequest(client *http.Client, req *http.Request) (httpResult, error) {
	resp, err := client.Do(req)
	if err != nil {
		return httpResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpResult{Status: resp.StatusCode}, err
	}
	return httpResult{Status: resp.StatusCode, Body: body}, nil
}

func postForm(ctx context.Context, client *http.Client, endpoint string, data url.Values, headers map[string]string) (httpResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return httpResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, req)
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload interface{}, headers map[string]string) (httpResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return httpResult{}, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return httpResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, req)
}

func getRequest(ctx context.Context, client *http.Client, endpoint string, headers map[string]string) (httpResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return httpResult{}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, req)
}

func putBytes(ctx context.Context, client *http.Client, endpoint string, data []byte, headers map[string]string) (httpResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return httpResult{}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, req)
}

// decodeJSON tolerates empty and non-JSON bodies: v is left zero-valued and
// no error is reported, so callers check the fields they need.
func decodeJSON(body []byte, v interface{}) {
	if len(body) == 0 {
		return
	}
	_ = json.Unmarshal(body, v)
}

// errorMessage digs a provider's own error text out of a response body,
// trying the shapes the supported APIs actually use before giving up and
// using the fallback.
func errorMessage(body []byte, fallback string) string {
	if len(body) == 0 {
		return fallback
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
		Title   string `json:"title"`
		Detail  string `json:"detail"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Error.Message != "":
			return envelope.Error.Message
		case envelope.Message != "":
			return envelope.Message
		case len(envelope.Errors) > 0 && envelope.Errors[0].Message != "":
			return envelope.Errors[0].Message
		case envelope.Detail != "":
			return envelope.Detail
		case envelope.Title != "":
			return envelope.Title
		}
	}

	// Some failures come back as plain text; keep it if it is short enough
	// to be a message rather than a page.
	text := strings.TrimSpace(string(body))
	if text != "" && len(text) <= 300 && !strings.HasPrefix(text, "<") {
		return text
	}
	return fallback
}
