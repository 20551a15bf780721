package search

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"olxscout/internal/market"
)

// Filters 是可选的搜索过滤条件，空值表示不过滤。
type Filters struct {
	Category  string `json:"category,omitempty"`
	City      string `json:"city,omitempty"`
	PriceFrom string `json:"price_from,omitempty"`
	PriceTo   string `json:"price_to,omitempty"`
}

const (
	minQueryLen = 2
	maxQueryLen = 100
)

// ValidateQuery trims the query and checks its length in characters.
func ValidateQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if n := utf8.RuneCountInString(q); n < minQueryLen || n > maxQueryLen {
		return "", ErrInvalidQuery
	}
	return q, nil
}

// BuildURL 根据市场的 URL 形态构造搜索地址。
// 路径族在有分类时把分类放进路径；查询参数族把所有过滤条件放进查询串。
// 排序参数总是被追加。
func BuildURL(query string, filters Filters, m *market.Market) string {
	q := escapeComponent(strings.TrimSpace(query))
	target := m.SearchURL + q + "/"
	params := url.Values{}

	category := strings.TrimSpace(filters.Category)
	switch m.Family {
	case market.FamilyPathSegment:
		if category != "" {
			target = m.BaseURL + "/" + m.CategoryPrefix + escapeComponent(category) + "/q-" + q + "/"
		}
	case market.FamilyQueryParam:
		if category != "" {
			params.Add(m.Params.Category, category)
		}
	}

	if v := strings.TrimSpace(filters.PriceFrom); v != "" && m.Params.PriceFrom != "" {
		params.Add(m.Params.PriceFrom, v)
	}
	if v := strings.TrimSpace(filters.PriceTo); v != "" && m.Params.PriceTo != "" {
		params.Add(m.Params.PriceTo, v)
	}
	if v := strings.TrimSpace(filters.City); v != "" && m.Params.City != "" {
		params.Add(m.Params.City, v)
	}
	params.Add(m.Params.Order, m.Params.OrderValue)

	return target + "?" + encode(params, m)
}

// componentUnescaper 还原 encodeURIComponent 不转义的标点。
var componentUnescaper = strings.NewReplacer("+", "%20", "%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*")

// escapeComponent escapes s for a single path segment. Reserved characters such as
// & = + : @ $ are percent-encoded as well.
func escapeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// encode keeps insertion order stable across runs by emitting filters before ordering.
func encode(params url.Values, m *market.Market) string {
	keys := []string{m.Params.Category, m.Params.PriceFrom, m.Params.PriceTo, m.Params.City, m.Params.Order}
	var sb strings.Builder
	for _, k := range keys {
		for _, v := range params[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
		delete(params, k)
	}
	return sb.String()
}
