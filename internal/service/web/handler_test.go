package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"olxscout/internal/extract"
	"olxscout/internal/search"
	"olxscout/internal/shared/types"
	"olxscout/proxypool"
)

// mockController is a mock implementation of Controller.
type mockController struct {
	lastReq   search.Request
	result    *search.Result
	err       error
	stats     proxypool.Stats
	reloaded  int
	reloadErr error
	resets    int
}

func (m *mockController) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	m.lastReq = req
	return m.result, m.err
}

func (m *mockController) PoolStats() proxypool.Stats { return m.stats }

func (m *mockController) ReloadProxies() (int, error) { return m.reloaded, m.reloadErr }

func (m *mockController) ResetQuarantine() { m.resets++ }

func (m *mockController) Markets() map[string]string {
	return map[string]string{"ro": "OLX Romania", "pl": "OLX Poland"}
}

func newTestServer(t *testing.T, cfg *types.Config, c Controller, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewMux(cfg, c, hub))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleSearch_OK(t *testing.T) {
	price := "120 zł"
	c := &mockController{result: &search.Result{
		RequestID: "req-1",
		Market:    "pl",
		Attempts:  1,
		Listings:  []extract.Listing{{Title: "Krzesło", Price: &price, URL: "https://www.olx.pl/d/oferta/x.html"}},
	}}
	srv := newTestServer(t, types.DefaultConfig(), c, nil)

	resp, err := http.Get(srv.URL + "/api/search?q=krzeslo&market=pl&category=dom-ogrod&city=17935&price_from=10&price_to=500")
	if err != nil {
		t.Fatalf("GET /api/search failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	want := search.Request{
		Query:  "krzeslo",
		Market: "pl",
		Filters: search.Filters{
			Category: "dom-ogrod", City: "17935", PriceFrom: "10", PriceTo: "500",
		},
	}
	if c.lastReq != want {
		t.Errorf("Expected request %+v, got %+v", want, c.lastReq)
	}

	var got search.Result
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got.Listings) != 1 || got.Listings[0].Title != "Krzesło" {
		t.Errorf("Unexpected listings %+v", got.Listings)
	}
}

func TestHandleSearch_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		err         error
		wantStatus  int
		wantBlocked bool
	}{
		{"invalid query", search.ErrInvalidQuery, http.StatusBadRequest, false},
		{"blocked", &search.SearchFailed{Attempts: 3, LastErr: &search.StatusError{Code: http.StatusForbidden}}, http.StatusBadGateway, true},
		{"upstream failure", &search.SearchFailed{Attempts: 2, LastErr: &search.StatusError{Code: http.StatusInternalServerError}}, http.StatusBadGateway, false},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, types.DefaultConfig(), &mockController{err: tc.err}, nil)
			resp, err := http.Get(srv.URL + "/api/search?q=x")
			if err != nil {
				t.Fatalf("GET /api/search failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("Expected status %d, got %d", tc.wantStatus, resp.StatusCode)
			}
			var body errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode error body: %v", err)
			}
			if body.Error == "" {
				t.Error("Expected a non-empty error message")
			}
			if body.Blocked != tc.wantBlocked {
				t.Errorf("Expected blocked=%v, got %v", tc.wantBlocked, body.Blocked)
			}
		})
	}
}

func TestHandleSearch_RateLimited(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.WebConf.SearchRate = 0.001
	cfg.WebConf.SearchBurst = 1
	c := &mockController{result: &search.Result{Market: "pl"}}
	srv := newTestServer(t, cfg, c, nil)

	statuses := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL + "/api/search?q=rower")
		if err != nil {
			t.Fatalf("GET /api/search failed: %v", err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusTooManyRequests {
		t.Errorf("Expected [200 429], got %v", statuses)
	}
}

func TestHandleProxies(t *testing.T) {
	c := &mockController{stats: proxypool.Stats{Total: 3, Quarantined: 1, Available: 2}, reloaded: 3}
	srv := newTestServer(t, types.DefaultConfig(), c, nil)

	resp, err := http.Get(srv.URL + "/api/proxies")
	if err != nil {
		t.Fatalf("GET /api/proxies failed: %v", err)
	}
	var stats proxypool.Stats
	json.NewDecoder(resp.Body).Decode(&stats)
	resp.Body.Close()
	if stats != c.stats {
		t.Errorf("Expected stats %+v, got %+v", c.stats, stats)
	}

	resp, err = http.Post(srv.URL+"/api/proxies/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/proxies/reset failed: %v", err)
	}
	resp.Body.Close()
	if c.resets != 1 {
		t.Errorf("Expected ResetQuarantine to be called once, got %d", c.resets)
	}

	resp, err = http.Get(srv.URL + "/api/proxies/reset")
	if err != nil {
		t.Fatalf("GET /api/proxies/reset failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET on reset, got %d", resp.StatusCode)
	}

	c.reloadErr = errors.New("disk on fire")
	resp, err = http.Post(srv.URL+"/api/proxies/reload", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/proxies/reload failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500 on reload failure, got %d", resp.StatusCode)
	}
}

func TestHandleMarkets_Sorted(t *testing.T) {
	srv := newTestServer(t, types.DefaultConfig(), &mockController{}, nil)
	resp, err := http.Get(srv.URL + "/api/markets")
	if err != nil {
		t.Fatalf("GET /api/markets failed: %v", err)
	}
	defer resp.Body.Close()

	var got []MarketInfo
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode markets: %v", err)
	}
	if len(got) != 2 || got[0].Key != "pl" || got[1].Key != "ro" {
		t.Errorf("Expected markets sorted by key, got %+v", got)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.WebConf.User = "admin"
	cfg.WebConf.Password = "secret"
	srv := newTestServer(t, cfg, &mockController{}, nil)

	resp, err := http.Get(srv.URL + "/api/proxies")
	if err != nil {
		t.Fatalf("GET /api/proxies failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/proxies", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authenticated GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with credentials, got %d", resp.StatusCode)
	}

	// markets stay public
	resp, err = http.Get(srv.URL + "/api/markets")
	if err != nil {
		t.Fatalf("GET /api/markets failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected public markets endpoint, got %d", resp.StatusCode)
	}
}

func TestWebSocket_BroadcastsSearchEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	c := &mockController{
		err:   &search.SearchFailed{Attempts: 2, LastErr: &search.StatusError{Code: http.StatusForbidden}},
		stats: proxypool.Stats{Total: 2, Quarantined: 2},
	}
	srv := newTestServer(t, types.DefaultConfig(), c, hub)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(srv.URL + "/api/search?q=rower&market=pl")
	if err != nil {
		t.Fatalf("GET /api/search failed: %v", err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string      `json:"type"`
		Data SearchEvent `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read websocket message: %v", err)
	}
	if msg.Type != "search_finished" {
		t.Fatalf("Expected 'search_finished', got '%s'", msg.Type)
	}
	if !msg.Data.Blocked || msg.Data.Attempts != 2 || msg.Data.Query != "rower" {
		t.Errorf("Unexpected event %+v", msg.Data)
	}

	var stats struct {
		Type string          `json:"type"`
		Data proxypool.Stats `json:"data"`
	}
	if err := conn.ReadJSON(&stats); err != nil {
		t.Fatalf("Failed to read pool stats message: %v", err)
	}
	if stats.Type != "pool_stats" || stats.Data.Quarantined != 2 {
		t.Errorf("Unexpected pool stats message %+v", stats)
	}
}
