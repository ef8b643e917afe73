package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, used here
// for market discovery and slug lookup.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, timeout time.Duration) *GammaClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// DiscoveryFilter narrows the event listing to the recurring windows the
// ladder trades.
type DiscoveryFilter struct {
	TagSlug string // e.g. "15M"
	Needle  string // substring every kept slug must contain
	Limit   int
}

// DiscoverSlugs lists active, open events for the tag ordered by 24h volume
// and returns the slugs that contain the filter's needle.
func (g *GammaClient) DiscoverSlugs(ctx context.Context, f DiscoveryFilter) ([]string, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("active", "true")
	params.Set("archived", "false")
	params.Set("closed", "false")
	params.Set("order", "volume24hr")
	params.Set("ascending", "false")
	params.Set("offset", "0")
	if f.TagSlug != "" {
		params.Set("tag_slug", f.TagSlug)
	}

	body, err := g.doGet(ctx, "/events/pagination?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list events: %w", err)
	}

	var page apiEventPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode events: %w", err)
	}

	seen := make(map[string]struct{}, len(page.Data))
	slugs := make([]string, 0, len(page.Data))
	for _, ev := range page.Data {
		if ev.Slug == "" || !strings.Contains(ev.Slug, f.Needle) {
			continue
		}
		if _, dup := seen[ev.Slug]; dup {
			continue
		}
		seen[ev.Slug] = struct{}{}
		slugs = append(slugs, ev.Slug)
	}
	return slugs, nil
}

// MarketBySlug looks up one market window. The exact slug match wins;
// otherwise the first returned market is used. A market missing token ids,
// start time or condition id yields domain.ErrIncompleteMarket.
func (g *GammaClient) MarketBySlug(ctx context.Context, slug string) (domain.MarketWindow, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	markets, err := decodeMarkets(body)
	if err != nil {
		return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}

	chosen := markets[0]
	for _, m := range markets {
		if m.Slug == slug || m.MarketSlug == slug {
			chosen = m
			break
		}
	}
	w, err := chosen.toMarketWindow()
	if err != nil {
		return w, fmt.Errorf("polymarket/gamma: %w", err)
	}
	return w, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
