package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"olxscout/internal/search"
	"olxscout/internal/shared/logger"
	"olxscout/proxypool"
)

// Controller defines what the web handler needs from the application.
// This decouples the web package from the app package.
type Controller interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
	PoolStats() proxypool.Stats
	ReloadProxies() (int, error)
	ResetQuarantine()
	Markets() map[string]string
}

// MarketInfo is one entry of GET /api/markets.
type MarketInfo struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Attempts int    `json:"attempts,omitempty"`
	Blocked  bool   `json:"blocked,omitempty"`
}

type Handler struct {
	controller Controller
	hub        *Hub
	limiter    *rate.Limiter // nil 表示不限速
}

func NewHandler(controller Controller, hub *Hub, limiter *rate.Limiter) *Handler {
	return &Handler{
		controller: controller,
		hub:        hub,
		limiter:    limiter,
	}
}

// HandleSearch 处理 GET /api/search 请求
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many searches, slow down"})
		return
	}

	q := r.URL.Query()
	req := search.Request{
		Query:  q.Get("q"),
		Market: q.Get("market"),
		Filters: search.Filters{
			Category:  q.Get("category"),
			City:      q.Get("city"),
			PriceFrom: q.Get("price_from"),
			PriceTo:   q.Get("price_to"),
		},
	}

	res, err := h.controller.Search(r.Context(), req)
	h.publish(req, res, err)

	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		var failed *search.SearchFailed
		if errors.As(err, &failed) {
			writeJSON(w, http.StatusBadGateway, errorResponse{
				Error:    failed.Error(),
				Attempts: failed.Attempts,
				Blocked:  failed.Blocked(),
			})
			return
		}
		logger.Error().Err(err).Msg("Search handler: unexpected error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// publish 把搜索结果和最新的代理池状态推送给 WebSocket 客户端。
func (h *Handler) publish(req search.Request, res *search.Result, err error) {
	if h.hub == nil {
		return
	}
	ev := &SearchEvent{
		Timestamp: time.Now().UTC(),
		Market:    req.Market,
		Query:     strings.TrimSpace(req.Query),
	}
	if res != nil {
		ev.RequestID = res.RequestID
		ev.Market = res.Market
		ev.Listings = len(res.Listings)
		ev.Attempts = res.Attempts
		ev.Direct = res.Direct
	}
	if err != nil {
		ev.Error = err.Error()
		var failed *search.SearchFailed
		if errors.As(err, &failed) {
			ev.Attempts = failed.Attempts
			ev.Blocked = failed.Blocked()
		}
	}
	h.hub.BroadcastSearch(ev)
	h.hub.BroadcastPoolStats(h.controller.PoolStats())
}

// HandleProxies 处理 GET /api/proxies 请求
func (h *Handler) HandleProxies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.PoolStats())
}

// HandleReloadProxies 处理 POST /api/proxies/reload 请求
func (h *Handler) HandleReloadProxies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := h.controller.ReloadProxies()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reload proxies")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	logger.Info().Int("loaded", n).Msg("Proxy list reloaded via API.")

	stats := h.controller.PoolStats()
	if h.hub != nil {
		h.hub.BroadcastPoolStats(stats)
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleResetProxies 处理 POST /api/proxies/reset 请求
func (h *Handler) HandleResetProxies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.controller.ResetQuarantine()

	stats := h.controller.PoolStats()
	if h.hub != nil {
		h.hub.BroadcastPoolStats(stats)
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleMarkets 处理 GET /api/markets 请求
func (h *Handler) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names := h.controller.Markets()
	out := make([]MarketInfo, 0, len(names))
	for key, name := range names {
		out = append(out, MarketInfo{Key: key, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("Failed to write JSON response")
	}
}
