package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/occupancy.map/internal/httputil"
)

// Client queries a running node's monitor endpoints.
type Client struct {
	http    httputil.HTTPClient
	baseURL string
}

// NewClient returns a client for the node at baseURL, e.g.
// "http://localhost:8082". A nil hc uses http.DefaultClient.
func NewClient(hc httputil.HTTPClient, baseURL string) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/")}
}

// Latest fetches the latest snapshot summary, cost data included when
// withData is set.
func (c *Client) Latest(ctx context.Context, withData bool) (*Summary, error) {
	q := url.Values{}
	if withData {
		q.Set("data", "true")
	}
	var out Summary
	if err := c.get(ctx, "/api/occupancy/latest", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats fetches the stats document, keyed by section name.
func (c *Client) Stats(ctx context.Context) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	if err := c.get(ctx, "/api/occupancy/stats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Probability fetches the fused probability at a map-frame position.
func (c *Client) Probability(ctx context.Context, x, y float64) (p float64, known bool, err error) {
	q := url.Values{}
	q.Set("x", strconv.FormatFloat(x, 'f', -1, 64))
	q.Set("y", strconv.FormatFloat(y, 'f', -1, 64))
	var out struct {
		Known       bool    `json:"known"`
		Probability float64 `json:"probability"`
	}
	if err := c.get(ctx, "/api/occupancy/probability", q, &out); err != nil {
		return 0, false, err
	}
	return out.Probability, out.Known, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, v interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("GET %s: %d: %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
