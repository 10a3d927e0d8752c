package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	accessTokenHeader = "X-Shopify-Access-Token"
	defaultPageLimit  = "250"
)

// UpstreamError is a non-success response from the platform. Top-level
// fetches treat it as fatal; per-item enrichment fetches recover from it.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded %d: %s", e.Status, e.Body)
}

// Config is the connection info for the commerce platform's admin API.
type Config struct {
	StoreDomain string
	AccessToken string
	APIVersion  string
}

// Client fetches paged collections from the platform. All methods issue
// plain GETs; the caller owns retry and partial-failure policy.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client. httpClient may be nil, in which case a client
// with a 30s timeout is used.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	domain := strings.TrimSuffix(cfg.StoreDomain, "/")
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	version := cfg.APIVersion
	if version == "" {
		version = "2024-07"
	}

	return &Client{
		baseURL: fmt.Sprintf("%s/admin/api/%s", domain, version),
		token:   cfg.AccessToken,
		http:    httpClient,
	}
}

// HTTPClient exposes the underlying http.Client for sibling fetches that
// share its timeout, like the sell-through export download.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// FetchAll retrieves every record of a paged collection, flattened in arrival
// order. It keeps requesting while the upstream hands back a continuation
// token, either as a page_info cursor in the Link response header or as an
// embedded page_info object in the body. Any non-success response aborts the
// whole fetch with an *UpstreamError; there is no automatic retry.
func (c *Client) FetchAll(ctx context.Context, resource string, params url.Values) ([]map[string]any, error) {
	var records []map[string]any

	cursor := ""
	for {
		q := url.Values{}
		if cursor == "" {
			for key, vals := range params {
				for _, v := range vals {
					q.Add(key, v)
				}
			}
		} else {
			// the upstream rejects filter params on cursor requests
			q.Set("page_info", cursor)
		}
		if q.Get("limit") == "" {
			q.Set("limit", defaultPageLimit)
		}

		pageRecords, next, err := c.fetchPage(ctx, resource, q)
		if err != nil {
			return nil, err
		}
		records = append(records, pageRecords...)

		if next == "" {
			return records, nil
		}
		cursor = next
	}
}

func (c *Client) fetchPage(ctx context.Context, resource string, q url.Values) ([]map[string]any, string, error) {
	endpoint := fmt.Sprintf("%s/%s.json?%s", c.baseURL, resource, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request for %s: %w", resource, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(accessTokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request for %s failed: %w", resource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s response: %w", resource, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", fmt.Errorf("failed to decode %s response: %w", resource, err)
	}

	records, err := extractCollection(payload, resource)
	if err != nil {
		return nil, "", err
	}

	next := nextPageInfo(resp.Header.Get("Link"))
	if next == "" {
		next = embeddedCursor(payload)
	}
	return records, next, nil
}

// extractCollection pulls the page's record array out of the response body.
// The array lives under the collection's own name (the last path segment of
// the resource); as a fallback the first array-valued field is used.
func extractCollection(payload map[string]json.RawMessage, resource string) ([]map[string]any, error) {
	key := path.Base(resource)
	if raw, ok := payload[key]; ok {
		return decodeRecords(raw, resource)
	}
	for k, raw := range payload {
		if k == "page_info" {
			continue
		}
		trimmed := strings.TrimSpace(string(raw))
		if strings.HasPrefix(trimmed, "[") {
			return decodeRecords(raw, resource)
		}
	}
	return nil, fmt.Errorf("no record array in %s response", resource)
}

func decodeRecords(raw json.RawMessage, resource string) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s records: %w", resource, err)
	}
	return records, nil
}

var pageInfoPattern = regexp.MustCompile(`page_info=([^&>]+)`)

// nextPageInfo extracts the continuation cursor from a Link header segment
// marked rel="next": the page_info token up to the next '&' or '>'.
func nextPageInfo(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		if m := pageInfoPattern.FindStringSubmatch(part); m != nil {
			return m[1]
		}
	}
	return ""
}

// embeddedCursor reads the body-embedded continuation object some resources
// return instead of a Link header.
func embeddedCursor(payload map[string]json.RawMessage) string {
	raw, ok := payload["page_info"]
	if !ok {
		return ""
	}
	var info struct {
		HasNextPage bool   `json:"has_next_page"`
		EndCursor   string `json:"end_cursor"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return ""
	}
	if !info.HasNextPage {
		return ""
	}
	return info.EndCursor
}
