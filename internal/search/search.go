package search

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"olxscout/internal/extract"
	"olxscout/internal/market"
	"olxscout/internal/shared/logger"
	"olxscout/proxypool/model"
)

// ProxySource is the part of the proxy pool the searcher needs.
type ProxySource interface {
	Count() int
	Next() *model.Proxy
	MarkFailed(proxy *model.Proxy)
}

// Parser turns a page into listings for a market.
type Parser interface {
	ParseBytes(html []byte, m *market.Market) ([]extract.Listing, error)
}

// Request 描述一次搜索。
type Request struct {
	Query   string  `json:"query"`
	Filters Filters `json:"filters"`
	Market  string  `json:"market"`
}

// Result carries the listings together with what it took to get them.
type Result struct {
	RequestID string            `json:"request_id"`
	Market    string            `json:"market"`
	URL       string            `json:"url"`
	Attempts  int               `json:"attempts"`
	Direct    bool              `json:"direct"`
	Duration  time.Duration     `json:"duration"`
	Listings  []extract.Listing `json:"listings"`
}

// Searcher 是请求编排器：构造 URL，按代理池顺序逐个尝试，必要时直连回退。
// 同一次搜索内的尝试严格串行，不同搜索之间只共享代理池。
type Searcher struct {
	pool    ProxySource
	fetcher Fetcher
	parser  Parser
	markets *market.Table
}

// NewSearcher wires the orchestrator.
func NewSearcher(pool ProxySource, fetcher Fetcher, parser Parser, markets *market.Table) *Searcher {
	return &Searcher{
		pool:    pool,
		fetcher: fetcher,
		parser:  parser,
		markets: markets,
	}
}

// Search returns the listings for query on the given market.
func (s *Searcher) Search(ctx context.Context, query string, filters Filters, marketKey string) ([]extract.Listing, error) {
	res, err := s.Run(ctx, Request{Query: query, Filters: filters, Market: marketKey})
	if err != nil {
		return nil, err
	}
	return res.Listings, nil
}

// Run 执行一次完整的尝试链。
func (s *Searcher) Run(ctx context.Context, req Request) (*Result, error) {
	query, err := ValidateQuery(req.Query)
	if err != nil {
		return nil, err
	}

	m := s.markets.Get(req.Market)
	res := &Result{
		RequestID: uuid.NewString(),
		Market:    m.Key,
		URL:       BuildURL(query, req.Filters, m),
	}
	l := logger.WithComponent("Search").With().Str("request_id", res.RequestID).Str("market", m.Key).Logger()
	l.Info().Str("query", query).Str("url", res.URL).Msg("Starting search.")
	start := time.Now()

	var lastErr error
	attempts := max(s.pool.Count(), 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &SearchFailed{Attempts: res.Attempts, LastErr: err}
		}

		proxy := s.pool.Next()
		res.Attempts++
		ev := l.Debug().Int("attempt", attempt).Int("of", attempts)
		if proxy != nil {
			ev.Str("proxy_id", proxy.ID).Msg("Fetching via proxy.")
		} else {
			ev.Msg("Fetching via direct connection.")
		}

		listings, err := s.attempt(ctx, res.URL, proxy, m)
		if err == nil {
			res.Listings = listings
			res.Direct = proxy == nil
			res.Duration = time.Since(start)
			l.Info().Int("attempts", res.Attempts).Int("listings", len(listings)).Dur("took", res.Duration).Msg("Search finished.")
			return res, nil
		}

		if !errors.Is(err, ErrEmptyBody) || lastErr == nil {
			lastErr = err
		}
		l.Warn().Int("attempt", attempt).Err(err).Msg("Attempt failed.")

		if shouldQuarantine(err) {
			s.pool.MarkFailed(proxy)
		}
	}

	// 403 说明是目标站点在屏蔽，换代理无济于事，最后直连一次。
	if isStatus(lastErr, http.StatusForbidden) && ctx.Err() == nil {
		l.Warn().Msg("All attempts blocked, trying direct connection.")
		res.Attempts++
		listings, err := s.attempt(ctx, res.URL, nil, m)
		if err == nil {
			res.Listings = listings
			res.Direct = true
			res.Duration = time.Since(start)
			l.Info().Int("attempts", res.Attempts).Int("listings", len(listings)).Dur("took", res.Duration).Msg("Search finished via direct connection.")
			return res, nil
		}
		l.Error().Err(err).Msg("Direct connection also failed.")
	}

	failed := &SearchFailed{Attempts: res.Attempts, LastErr: lastErr}
	l.Error().Err(failed).Msg("Search failed.")
	return nil, failed
}

func (s *Searcher) attempt(ctx context.Context, target string, proxy *model.Proxy, m *market.Market) ([]extract.Listing, error) {
	body, err := s.fetcher.Fetch(ctx, target, proxy)
	if err != nil {
		return nil, err
	}
	return s.parser.ParseBytes(body, m)
}
