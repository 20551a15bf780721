package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"olxscout/internal/market"
	"olxscout/internal/shared/logger"
)

// DefaultMaxResults bounds the number of listings returned per page.
const DefaultMaxResults = 20

// Listing 是从一个广告卡片中提取出的结构化数据。
type Listing struct {
	Title    string  `json:"title"`
	Price    *string `json:"price"` // nil 表示未标价
	Location string  `json:"location"`
	URL      string  `json:"url"`
	ImageURL string  `json:"image_url"`
}

// Engine turns a search-result page into listings.
type Engine struct {
	maxResults int
}

// NewEngine creates an Engine. Values outside 1..DefaultMaxResults use DefaultMaxResults.
func NewEngine(maxResults int) *Engine {
	if maxResults <= 0 || maxResults > DefaultMaxResults {
		maxResults = DefaultMaxResults
	}
	return &Engine{maxResults: maxResults}
}

// ParseBytes is Parse over an in-memory page.
func (e *Engine) ParseBytes(html []byte, m *market.Market) ([]Listing, error) {
	return e.Parse(bytes.NewReader(html), m)
}

// Parse 解析页面并按文档顺序返回广告列表。
// 单个卡片缺少标题或链接时被跳过，不会中断整批解析。
func (e *Engine) Parse(r io.Reader, m *market.Market) ([]Listing, error) {
	l := logger.WithComponent("Extract")

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML document: %w", err)
	}

	prof := profileFor(m.Selectors)
	cards, used := findCards(doc, prof)
	if used == genericCardSelector {
		l.Warn().Str("market", m.Key).Int("cards", cards.Length()).Msg("No profile selector matched, used generic card selector.")
	} else {
		l.Debug().Str("market", m.Key).Str("selector", used).Int("cards", cards.Length()).Msg("Found ad cards.")
	}

	base := m.Base()
	listings := make([]Listing, 0, min(cards.Length(), e.maxResults))
	skipped := 0

	cards.EachWithBreak(func(i int, card *goquery.Selection) bool {
		if len(listings) >= e.maxResults {
			return false
		}

		listing, err := extractCard(card, prof, m, base)
		if err != nil {
			skipped++
			l.Debug().Int("index", i).Err(err).Msg("Skipping ad card.")
			return true
		}
		listings = append(listings, listing)
		return true
	})

	l.Debug().Int("listings", len(listings)).Int("skipped", skipped).Msg("Extraction finished.")
	return listings, nil
}

// findCards walks the profile cascade and stops at the first selector with a match.
func findCards(doc *goquery.Document, prof *profile) (*goquery.Selection, string) {
	for _, selector := range prof.cards {
		if items := doc.Find(selector); items.Length() > 0 {
			return items, selector
		}
	}
	return doc.Find(genericCardSelector), genericCardSelector
}

var (
	errNoTitle = errors.New("card has no title")
	errNoLink  = errors.New("card has no link")
)

func extractCard(card *goquery.Selection, prof *profile, m *market.Market, base *url.URL) (Listing, error) {
	title := firstText(card, prof.title)
	if title == "" {
		return Listing{}, errNoTitle
	}
	link := firstLink(card, base)
	if link == "" {
		return Listing{}, errNoLink
	}

	return Listing{
		Title:    title,
		Price:    NormalizePrice(firstTrimmed(card, prof.price), m),
		Location: NormalizeLocation(firstText(card, prof.location), m),
		URL:      link,
		ImageURL: firstImage(card, base),
	}, nil
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		if text := collapseSpace(card.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstTrimmed 只去掉首尾空白，价格文本内部的空白原样保留。
func firstTrimmed(card *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(card.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstLink(card *goquery.Selection, base *url.URL) string {
	for _, selector := range linkSelectors {
		a := card.Find(selector).First()
		if a.Length() == 0 {
			continue
		}
		if link, ok := resolve(base, a.AttrOr("href", "")); ok {
			return link
		}
	}
	return ""
}

// firstImage 优先使用 src；懒加载占位图 (data:) 时改用 data-src。
func firstImage(card *goquery.Selection, base *url.URL) string {
	for _, selector := range imageSelectors {
		img := card.Find(selector).First()
		if img.Length() == 0 {
			continue
		}
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			src = img.AttrOr("data-src", "")
		}
		if link, ok := resolve(base, src); ok {
			return link
		}
	}
	return ""
}
