package extract

import (
	"net/url"
	"regexp"
	"strings"

	"olxscout/internal/market"
)

// currencyMarkers are recognized in addition to the market's own currency.
var currencyMarkers = []string{"PLN", "€", "$", "₴", "Kč", "лв", "lei"}

// numericRun matches the first run starting with a digit, allowing thousands
// separators, regular and non-breaking spaces.
var numericRun = regexp.MustCompile(`\d[\d\s\x{00A0}\x{202F},.]*`)

// NormalizePrice 规范化价格文本。nil 表示未标价。
func NormalizePrice(raw string, m *market.Market) *string {
	price := strings.TrimSpace(raw)
	if price == "" {
		return nil
	}
	for _, phrase := range m.NoPrice {
		if strings.EqualFold(price, phrase) {
			return nil
		}
	}

	if hasCurrency(price, m.Currency) {
		return &price
	}

	if match := numericRun.FindString(price); match != "" {
		number := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(match), ",."))
		formatted := number + " " + m.Currency
		return &formatted
	}
	return &price
}

func hasCurrency(price, currency string) bool {
	if currency != "" && strings.Contains(price, currency) {
		return true
	}
	for _, marker := range currencyMarkers {
		if strings.Contains(price, marker) {
			return true
		}
	}
	return false
}

// NormalizeLocation returns the trimmed location or the market's no-location phrase.
func NormalizeLocation(raw string, m *market.Market) string {
	if loc := collapseSpace(raw); loc != "" {
		return loc
	}
	return m.NoLocation
}

// resolve 将相对链接解析为基于市场 base URL 的绝对地址，只接受 http(s)。
func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
