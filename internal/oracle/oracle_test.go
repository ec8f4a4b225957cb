package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const ethFeedID = "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"

type hermesServer struct {
	feedCalls  atomic.Int32
	priceCalls atomic.Int32
	price      string
	conf       string
	publish    int64
}

func (h *hermesServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/price_feeds", func(w http.ResponseWriter, r *http.Request) {
		h.feedCalls.Add(1)
		if got := r.URL.Query().Get("asset_type"); got != "crypto" {
			t.Errorf("expected asset_type=crypto, got %q", got)
		}
		if got := r.URL.Query().Get("query"); got != "ETH/USD" {
			t.Errorf("expected query=ETH/USD, got %q", got)
		}
		fmt.Fprintf(w, `[
			{"id":"aaaa","attributes":{"symbol":"Crypto.ETH/USD.RR"}},
			{"id":%q,"attributes":{"symbol":"Crypto.ETH/USD"}}
		]`, ethFeedID)
	})
	mux.HandleFunc("/v2/updates/price/latest", func(w http.ResponseWriter, r *http.Request) {
		h.priceCalls.Add(1)
		if got := r.URL.Query()["ids[]"]; len(got) != 1 || got[0] != ethFeedID {
			t.Errorf("unexpected ids %v", got)
		}
		fmt.Fprintf(w, `{"parsed":[{"id":%q,"price":{"price":%q,"conf":%q,"expo":-8,"publish_time":%d}}]}`,
			ethFeedID, h.price, h.conf, h.publish)
	})
	return mux
}

func newHermes(t *testing.T, h *hermesServer, maxAge time.Duration) *HermesClient {
	t.Helper()
	srv := httptest.NewServer(h.handler(t))
	t.Cleanup(srv.Close)
	c := NewHermesClient(srv.URL, time.Second, maxAge)
	c.now = func() time.Time { return time.Unix(1_700_000_010, 0) }
	return c
}

func TestHermesClient_Quote(t *testing.T) {
	h := &hermesServer{price: "345678000000", conf: "150000000", publish: 1_700_000_000}
	c := newHermes(t, h, time.Minute)

	p, err := c.Quote(context.Background(), "Crypto.ETH/USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(decimal.RequireFromString("3456.78")) {
		t.Errorf("expected 3456.78, got %s", p)
	}

	if _, err := c.Quote(context.Background(), "Crypto.ETH/USD"); err != nil {
		t.Fatalf("second quote: %v", err)
	}
	if n := h.feedCalls.Load(); n != 1 {
		t.Errorf("feed id should be resolved once, resolved %d times", n)
	}
	if n := h.priceCalls.Load(); n != 2 {
		t.Errorf("expected 2 price requests, got %d", n)
	}
}

func TestHermesClient_RejectsUnusablePrices(t *testing.T) {
	tests := []struct {
		name    string
		server  *hermesServer
		wantErr error
	}{
		{"zero price", &hermesServer{price: "0", conf: "1", publish: 1_700_000_000}, ErrNoPrice},
		{"zero confidence", &hermesServer{price: "100", conf: "0", publish: 1_700_000_000}, ErrNoPrice},
		{"stale", &hermesServer{price: "100", conf: "1", publish: 1_699_000_000}, ErrStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newHermes(t, tt.server, time.Minute)
			if _, err := c.Quote(context.Background(), "Crypto.ETH/USD"); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHermesClient_UnknownFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewHermesClient(srv.URL, time.Second, 0)
	if _, err := c.Quote(context.Background(), "Crypto.NOPE/USD"); !errors.Is(err, ErrUnknownFeed) {
		t.Errorf("expected ErrUnknownFeed, got %v", err)
	}
}

func TestHermesClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHermesClient(srv.URL, time.Second, 0)
	if _, err := c.Quote(context.Background(), "Crypto.ETH/USD"); err == nil {
		t.Error("expected an error for a 503 response")
	}
}

type stubQuoter struct {
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubQuoter) Quote(context.Context, string) (decimal.Decimal, error) {
	s.calls++
	return s.price, s.err
}

func TestSource_DegradesToZero(t *testing.T) {
	src := NewSource(&stubQuoter{err: errors.New("timeout")}, nil)
	if p := src.Price(context.Background(), "Crypto.ETH/USD"); !p.IsZero() {
		t.Errorf("expected zero on failure, got %s", p)
	}
}

func TestSource_EmptyFeedSkipsOracle(t *testing.T) {
	q := &stubQuoter{price: decimal.NewFromInt(5)}
	src := NewSource(q, nil)

	if p := src.Price(context.Background(), ""); !p.IsZero() {
		t.Errorf("expected zero for an unconfigured feed, got %s", p)
	}
	if q.calls != 0 {
		t.Errorf("oracle should not be queried, got %d calls", q.calls)
	}
	if p := src.Price(context.Background(), "Crypto.ETH/USD"); !p.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected 5, got %s", p)
	}
}

func TestCachedQuoter_FallsThroughWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	next := &stubQuoter{price: decimal.RequireFromString("1.0234")}
	q := NewCachedQuoter(next, rdb, time.Second)

	p, err := q.Quote(context.Background(), "Crypto.TETH/ETH.RR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(decimal.RequireFromString("1.0234")) {
		t.Errorf("expected 1.0234, got %s", p)
	}
	if next.calls != 1 {
		t.Errorf("expected the wrapped quoter to be called once, got %d", next.calls)
	}

	next.err = errors.New("down")
	if _, err := q.Quote(context.Background(), "Crypto.TETH/ETH.RR"); err == nil {
		t.Error("expected the wrapped error when neither cache nor oracle answer")
	}
}
