// Package classifier is the gateway to the external URL classification
// service. It is read-only and performs no retries: callers decide whether
// a failed classification blocks the dependent action.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sitewarden/sitewarden/pkg/types"
)

var (
	// ErrUnavailable means the classifier could not be reached or did not
	// answer with a success status. No verdict was produced.
	ErrUnavailable = errors.New("classifier unavailable")

	// ErrMalformed means the classifier answered but the body could not be
	// parsed into a verdict.
	ErrMalformed = errors.New("malformed classifier response")
)

const maxResponseSize = 1 << 20 // 1 MB

type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// New creates a classifier client. Pass nil for logger to disable logging.
func New(url string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("classifier url is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Classify sends the URL to the classification service and returns its
// verdict.
func (c *Client) Classify(ctx context.Context, url string) (types.Verdict, error) {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return types.Verdict{}, fmt.Errorf("marshal classify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return types.Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Verdict{}, fmt.Errorf("%w: classifier responded %s", ErrUnavailable, resp.Status)
	}

	var out struct {
		Prediction string  `json:"prediction"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return types.Verdict{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if out.Prediction == "" {
		return types.Verdict{}, fmt.Errorf("%w: missing prediction field", ErrMalformed)
	}

	v := types.Verdict{Label: out.Prediction, Confidence: out.Confidence}
	c.logger.Debug("classified url", "url", url, "label", v.Label, "confidence", v.Confidence)
	return v, nil
}
