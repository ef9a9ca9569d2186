// Copyright (C) 2026 Servebolt AS
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// HTTPClient talks to a JSON purge endpoint with bearer-token auth. Every
// call carries a unique request id so purges can be correlated in the
// provider's logs.
type HTTPClient struct {
	endpoint string
	token    string
	hc       *http.Client
	logger   *slog.Logger
}

var _ PurgeClient = (*HTTPClient)(nil)

// NewHTTPClient constructs a purge client for the given endpoint. A zero
// timeout falls back to 30s.
func NewHTTPClient(endpoint, token string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		endpoint: endpoint,
		token:    token,
		hc:       &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type purgeRequest struct {
	RequestID string   `json:"request_id"`
	URLs      []string `json:"urls,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	All       bool     `json:"all,omitempty"`
}

// PurgeURLs invalidates a batch of URLs in one call.
func (c *HTTPClient) PurgeURLs(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	return c.send(ctx, purgeRequest{URLs: urls})
}

// PurgeTags invalidates a batch of cache tags in one call.
func (c *HTTPClient) PurgeTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	return c.send(ctx, purgeRequest{Tags: tags})
}

// PurgeAll invalidates the entire cache.
func (c *HTTPClient) PurgeAll(ctx context.Context) error {
	return c.send(ctx, purgeRequest{All: true})
}

func (c *HTTPClient) send(ctx context.Context, preq purgeRequest) error {
	preq.RequestID = uuid.NewString()

	body, err := json.Marshal(preq)
	if err != nil {
		return fmt.Errorf("marshal purge request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build purge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("purge call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("purge call rejected",
			slog.String("requestID", preq.RequestID),
			slog.Int("status", resp.StatusCode))
		return fmt.Errorf("purge call returned status %d: %s", resp.StatusCode, snippet)
	}

	c.logger.Debug("purge call accepted",
		slog.String("requestID", preq.RequestID),
		slog.Int("urls", len(preq.URLs)),
		slog.Int("tags", len(preq.Tags)),
		slog.Bool("all", preq.All))
	return nil
}
