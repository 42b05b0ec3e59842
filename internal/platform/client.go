// Package platform talks to the analysis platform's REST API, where
// organigram widgets keep their tree under properties.options.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/the-deep/deeptree/internal/tree"
)

// ErrNotFound is returned when the framework or widget does not exist.
var ErrNotFound = errors.New("platform: not found")

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Client communicates with the platform HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Widget is one framework widget. Only organigram widgets carry a tree.
type Widget struct {
	Key        string `json:"key"`
	WidgetID   string `json:"widgetId"`
	Title      string `json:"title"`
	Properties struct {
		Options *tree.Node `json:"options"`
	} `json:"properties"`
}

// Framework is the subset of an analysis framework this service reads.
type Framework struct {
	Title   string   `json:"title"`
	Widgets []Widget `json:"widgets"`
}

// GetFramework fetches an analysis framework.
func (c *Client) GetFramework(ctx context.Context, frameworkID string) (*Framework, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.frameworkURL(frameworkID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	var fw Framework
	if err := c.do(httpReq, "get framework "+frameworkID, &fw); err != nil {
		return nil, err
	}
	return &fw, nil
}

// GetOrganigram returns the tree of the organigram widget widgetKey.
func (c *Client) GetOrganigram(ctx context.Context, frameworkID, widgetKey string) (*tree.Node, string, error) {
	fw, err := c.GetFramework(ctx, frameworkID)
	if err != nil {
		return nil, "", err
	}
	for _, w := range fw.Widgets {
		if w.Key != widgetKey {
			continue
		}
		if w.Properties.Options == nil {
			return nil, "", fmt.Errorf("widget %s of framework %s has no options: %w", widgetKey, frameworkID, ErrNotFound)
		}
		title := w.Title
		if title == "" {
			title = fw.Title
		}
		return w.Properties.Options, title, nil
	}
	return nil, "", fmt.Errorf("widget %s of framework %s: %w", widgetKey, frameworkID, ErrNotFound)
}

// PutOrganigram replaces the options of the organigram widget widgetKey.
func (c *Client) PutOrganigram(ctx context.Context, frameworkID, widgetKey string, root *tree.Node) error {
	payload := map[string]any{"properties": map[string]any{"options": root}}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	u := c.frameworkURL(frameworkID) + "widgets/" + url.PathEscape(widgetKey) + "/"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, "put organigram "+widgetKey, nil)
}

func (c *Client) frameworkURL(frameworkID string) string {
	return c.baseURL + "/analysis-frameworks/" + url.PathEscape(frameworkID) + "/"
}

// do sends the request and decodes a JSON body into out when non-nil.
func (c *Client) do(httpReq *http.Request, op string, out any) error {
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
