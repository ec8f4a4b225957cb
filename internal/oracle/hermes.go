package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHermesURL is the public Pyth Hermes endpoint.
const DefaultHermesURL = "https://hermes.pyth.network"

// HermesClient is the REST client for the Pyth Hermes price service.
type HermesClient struct {
	baseURL    string
	httpClient *http.Client
	maxAge     time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	feeds map[string]string // symbol -> feed id
}

// NewHermesClient creates a Hermes client. Prices published more than
// maxAge ago are rejected; zero disables the check.
func NewHermesClient(baseURL string, timeout, maxAge time.Duration) *HermesClient {
	if baseURL == "" {
		baseURL = DefaultHermesURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HermesClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxAge:     maxAge,
		now:        time.Now,
		feeds:      make(map[string]string),
	}
}

type feedEntry struct {
	ID         string `json:"id"`
	Attributes struct {
		Symbol string `json:"symbol"`
	} `json:"attributes"`
}

type priceEntry struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type latestResponse struct {
	Parsed []struct {
		ID    string     `json:"id"`
		Price priceEntry `json:"price"`
	} `json:"parsed"`
}

// Quote returns the latest aggregate price for symbol. A price or confidence
// of zero is treated as unavailable.
func (c *HermesClient) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, err := c.feedID(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	params := url.Values{}
	params.Add("ids[]", id)
	params.Set("parsed", "true")

	body, err := c.doGet(ctx, "/v2/updates/price/latest?"+params.Encode())
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle/hermes: latest price %s: %w", symbol, err)
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("oracle/hermes: decode latest price: %w", err)
	}
	for _, p := range resp.Parsed {
		if strings.TrimPrefix(p.ID, "0x") == strings.TrimPrefix(id, "0x") {
			return c.parsePrice(symbol, p.Price)
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s missing from response", ErrNoPrice, symbol)
}

func (c *HermesClient) parsePrice(symbol string, p priceEntry) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle/hermes: parse price %q: %w", p.Price, err)
	}
	conf, err := decimal.NewFromString(p.Conf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle/hermes: parse confidence %q: %w", p.Conf, err)
	}
	if price.IsZero() || conf.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	if c.maxAge > 0 {
		age := c.now().Sub(time.Unix(p.PublishTime, 0))
		if age > c.maxAge {
			return decimal.Zero, fmt.Errorf("%w: %s published %s ago", ErrStale, symbol, age.Truncate(time.Second))
		}
	}
	return price.Shift(p.Expo), nil
}

// feedID resolves a symbol like "Crypto.ETH/USD" to its Hermes feed id.
func (c *HermesClient) feedID(ctx context.Context, symbol string) (string, error) {
	c.mu.RLock()
	id, ok := c.feeds[symbol]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	params := url.Values{}
	if class, rest, found := strings.Cut(symbol, "."); found {
		params.Set("asset_type", strings.ToLower(class))
		params.Set("query", rest)
	} else {
		params.Set("query", symbol)
	}

	body, err := c.doGet(ctx, "/v2/price_feeds?"+params.Encode())
	if err != nil {
		return "", fmt.Errorf("oracle/hermes: resolve feed %s: %w", symbol, err)
	}
	var feeds []feedEntry
	if err := json.Unmarshal(body, &feeds); err != nil {
		return "", fmt.Errorf("oracle/hermes: decode feeds: %w", err)
	}
	for _, f := range feeds {
		if strings.EqualFold(f.Attributes.Symbol, symbol) {
			c.mu.Lock()
			c.feeds[symbol] = f.ID
			c.mu.Unlock()
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFeed, symbol)
}

func (c *HermesClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
