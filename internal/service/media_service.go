package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"

	cfg "github.com/schedulehq/publisher/configs"
)

// MediaService fetches media bytes for adapters that upload binaries. URLs
// under the R2 bucket's public base are read straight from object storage;
// everything else is a plain HTTP download.
type MediaService struct {
	config cfg.Config
	client *http.Client
}

func NewMediaService(config cfg.Config) *MediaService {
	return &MediaService{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (m *MediaService) r2Client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(m.config.R2.AccessKey, m.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", m.config.R2.AccountID))
	}), nil
}

func (m *MediaService) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	base := m.config.R2.PublicBase
	if base != "" && strings.HasPrefix(rawURL, base) {
		key := strings.TrimPrefix(strings.TrimPrefix(rawURL, base), "/")
		return m.fetchFromR2(ctx, key)
	}
	return m.fetchHTTP(ctx, rawURL)
}

func (m *MediaService) fetchFromR2(ctx context.Context, key string) ([]byte, string, error) {
	client, err := m.r2Client(ctx)
	if err != nil {
		return nil, "", err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.config.R2.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, "", err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}

	mimeType := aws.ToString(out.ContentType)
	if mimeType == "" {
		mimeType = sniffType(data)
	}
	return data, mimeType, nil
}

func (m *MediaService) fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download returned status %d for %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = sniffType(data)
	}
	return data, mimeType, nil
}

func sniffType(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}
