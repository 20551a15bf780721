package market

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the market used when a request names an unknown market.
const DefaultKey = "pl"

//go:embed markets.yaml
var builtinMarkets []byte

// Family selects how a search URL is shaped for a market.
type Family int

const (
	// FamilyQueryParam passes every filter as a query parameter.
	FamilyQueryParam Family = iota
	// FamilyPathSegment splices the category into the URL path.
	FamilyPathSegment
)

func (f Family) String() string {
	switch f {
	case FamilyPathSegment:
		return "path"
	case FamilyQueryParam:
		return "query"
	default:
		return "unknown"
	}
}

// UnmarshalYAML parses "path" or "query".
func (f *Family) UnmarshalYAML(node *yaml.Node) error {
	switch strings.ToLower(strings.TrimSpace(node.Value)) {
	case "path":
		*f = FamilyPathSegment
	case "query", "":
		*f = FamilyQueryParam
	default:
		return fmt.Errorf("line %d: unknown market family %q", node.Line, node.Value)
	}
	return nil
}

// Params holds the query parameter names a market understands.
type Params struct {
	Category   string `yaml:"category"`
	PriceFrom  string `yaml:"price_from"`
	PriceTo    string `yaml:"price_to"`
	City       string `yaml:"city"`
	Order      string `yaml:"order"`
	OrderValue string `yaml:"order_value"`
}

// Market is one country instance of the site family. Read-only after load.
type Market struct {
	Key            string            `yaml:"-"`
	Name           string            `yaml:"name"`
	BaseURL        string            `yaml:"base_url"`
	SearchURL      string            `yaml:"search_url"`
	Currency       string            `yaml:"currency"`
	Language       string            `yaml:"language"`
	Family         Family            `yaml:"family"`
	CategoryPrefix string            `yaml:"category_prefix"`
	Params         Params            `yaml:"params"`
	Selectors      string            `yaml:"selectors"`
	NoPrice        []string          `yaml:"no_price"`
	NoLocation     string            `yaml:"no_location"`
	Categories     map[string]string `yaml:"categories"`
	Cities         map[string]string `yaml:"cities"`
}

// Base returns the parsed base URL.
func (m *Market) Base() *url.URL {
	u, err := url.Parse(m.BaseURL)
	if err != nil {
		// validated at load time
		return &url.URL{}
	}
	return u
}

// HasCategory reports whether key is a known category for this market.
func (m *Market) HasCategory(key string) bool {
	_, ok := m.Categories[key]
	return ok
}

// HasCity reports whether key is a known city for this market.
func (m *Market) HasCity(key string) bool {
	_, ok := m.Cities[key]
	return ok
}

// Table is the full market catalogue.
type Table struct {
	markets map[string]*Market
}

// Builtin returns the table compiled into the binary.
func Builtin() (*Table, error) {
	return Parse(builtinMarkets)
}

// LoadFile 从 YAML 文件加载市场表。
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markets file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML market table.
func Parse(data []byte) (*Table, error) {
	raw := make(map[string]*Market)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal markets: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("market table is empty")
	}

	for key, m := range raw {
		if m == nil {
			return nil, fmt.Errorf("market %q has no configuration", key)
		}
		m.Key = key
		if err := validate(m); err != nil {
			return nil, fmt.Errorf("market %q: %w", key, err)
		}
	}
	return &Table{markets: raw}, nil
}

func validate(m *Market) error {
	base, err := url.Parse(m.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("invalid base_url %q", m.BaseURL)
	}
	m.BaseURL = strings.TrimRight(m.BaseURL, "/")
	if m.SearchURL == "" {
		return fmt.Errorf("search_url is required")
	}
	if m.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if m.Params.Order == "" || m.Params.OrderValue == "" {
		return fmt.Errorf("params.order and params.order_value are required")
	}
	if m.Params.Category == "" {
		m.Params.Category = "category"
	}
	if m.NoLocation == "" {
		m.NoLocation = "No location"
	}
	return nil
}

// Lookup returns the market for key and whether it exists.
func (t *Table) Lookup(key string) (*Market, bool) {
	m, ok := t.markets[strings.ToLower(strings.TrimSpace(key))]
	return m, ok
}

// Get 返回指定市场，未知的 key 回退到默认市场。
// 如果默认市场也不存在，则返回按 key 排序后的第一个市场。
func (t *Table) Get(key string) *Market {
	if m, ok := t.Lookup(key); ok {
		return m
	}
	if m, ok := t.markets[DefaultKey]; ok {
		return m
	}
	return t.markets[t.Keys()[0]]
}

// Keys returns the market keys in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.markets))
	for k := range t.markets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Names maps market keys to their display names.
func (t *Table) Names() map[string]string {
	names := make(map[string]string, len(t.markets))
	for k, m := range t.markets {
		names[k] = m.Name
	}
	return names
}
