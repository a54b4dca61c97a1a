package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// Client is an HTTP client for the upstream catalog API (§6).
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new catalog API client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// FetchActiveMarkets fetches active, unclosed markets from the catalog.
// orderBy specifies the field to sort by: "volume24hr", "createdAt", or "endDate".
func (c *Client) FetchActiveMarkets(ctx context.Context, limit, offset int, orderBy string) (*types.CatalogResponse, error) {
	endpoint := fmt.Sprintf("%s/markets", c.baseURL)

	params := url.Values{}
	params.Add("closed", "false")
	params.Add("active", "true")
	params.Add("limit", strconv.Itoa(limit))
	params.Add("offset", strconv.Itoa(offset))
	params.Add("order", orderBy)

	// endDate ascending surfaces markets expiring soonest first; the other
	// sort fields want the biggest/newest markets first.
	if orderBy == "endDate" {
		params.Add("ascending", "true")
	} else {
		params.Add("ascending", "false")
	}

	requestURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "spread-scanner/1.0")

	c.logger.Debug("fetching-markets",
		zap.String("url", requestURL),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// The catalog API returns a direct array, not wrapped in an object.
	var markets []types.Market
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	resp2 := &types.CatalogResponse{
		Data:   markets,
		Count:  len(markets),
		Limit:  limit,
		Offset: offset,
	}

	c.logger.Debug("fetched-markets", zap.Int("count", len(markets)))

	return resp2, nil
}

// FetchMarketsByPrefix searches active markets (sorted by soonest end date)
// for slugs matching prefix, used by the pinned-market watcher (§9).
func (c *Client) FetchMarketsByPrefix(ctx context.Context, prefix string, maxPages int) ([]types.Market, error) {
	const pageSize = 100

	var matches []types.Market

	for page := 0; page < maxPages; page++ {
		resp, err := c.FetchActiveMarkets(ctx, pageSize, page*pageSize, "endDate")
		if err != nil {
			return nil, fmt.Errorf("fetch markets: %w", err)
		}

		for i := range resp.Data {
			if hasPrefix(resp.Data[i].Slug, prefix) {
				matches = append(matches, resp.Data[i])
			}
		}

		if len(resp.Data) < pageSize {
			break
		}
	}

	return matches, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
