package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"echobot/internal/domain"
)

const (
	defaultFetchRetries = 3
	// Discord's upload limit for bots without boosts.
	defaultMaxAttachmentBytes = 25 << 20
)

// retryableError indicates a transient download failure.
type retryableError struct {
	statusCode int
	body       string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.body)
}

// AttachmentFetcherConfig configures an AttachmentFetcher.
type AttachmentFetcherConfig struct {
	Client   *http.Client
	Logger   *slog.Logger
	MaxBytes int64
	Retries  int
	// RetryUnit scales the backoff between attempts. Defaults to one second.
	RetryUnit time.Duration
}

// AttachmentFetcher downloads attachments so they can be uploaded again to
// destination channels.
type AttachmentFetcher struct {
	client    *http.Client
	logger    *slog.Logger
	maxBytes  int64
	retries   int
	retryUnit time.Duration
}

func NewAttachmentFetcher(cfg AttachmentFetcherConfig) *AttachmentFetcher {
	f := &AttachmentFetcher{
		client:    cfg.Client,
		logger:    cfg.Logger,
		maxBytes:  cfg.MaxBytes,
		retries:   cfg.Retries,
		retryUnit: cfg.RetryUnit,
	}
	if f.client == nil {
		f.client = sharedHTTPClient(60 * time.Second)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.maxBytes <= 0 {
		f.maxBytes = defaultMaxAttachmentBytes
	}
	if f.retries < 0 {
		f.retries = 0
	} else if f.retries == 0 {
		f.retries = defaultFetchRetries
	}
	if f.retryUnit <= 0 {
		f.retryUnit = time.Second
	}
	return f
}

// sharedHTTPClient returns a pooled client for attachment downloads.
func sharedHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Fetch downloads a and returns it as a file ready for upload.
func (f *AttachmentFetcher) Fetch(ctx context.Context, a domain.Attachment) (*discordgo.File, error) {
	resp, err := f.doWithRetry(ctx, a.URL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: unexpected status %d", a.Filename, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", a.Filename, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("download %s: larger than %d bytes", a.Filename, f.maxBytes)
	}

	return &discordgo.File{
		Name:        a.Filename,
		ContentType: resp.Header.Get("Content-Type"),
		Reader:      bytes.NewReader(data),
	}, nil
}

// doWithRetry retries network failures, 5xx and 429 with exponential
// backoff.
func (f *AttachmentFetcher) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt, f.retryUnit, 30*f.retryUnit)
			f.logger.Warn("retrying attachment download", "attempt", attempt+1, "backoff", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = &retryableError{statusCode: resp.StatusCode, body: string(body)}
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("download failed after %d retries: %w", f.retries, lastErr)
}
