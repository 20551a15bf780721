package search

import (
	"errors"
	"strings"
	"testing"

	"olxscout/internal/market"
)

func mustMarkets(t *testing.T) *market.Table {
	t.Helper()
	table, err := market.Builtin()
	if err != nil {
		t.Fatalf("market.Builtin() returned an error: %v", err)
	}
	return table
}

func TestBuildURL(t *testing.T) {
	table := mustMarkets(t)

	testCases := []struct {
		name    string
		query   string
		filters Filters
		market  string
		want    string
	}{
		{
			name:    "path family puts category in path",
			query:   "chair",
			filters: Filters{Category: "dom-ogrod"},
			market:  "pl",
			want:    "https://www.olx.pl/d/dom-ogrod/q-chair/?search%5Border%5D=created_at%3Adesc",
		},
		{
			name:   "path family without category uses search prefix",
			query:  "rower górski",
			market: "pl",
			want:   "https://www.olx.pl/d/oferty/q-rower%20g%C3%B3rski/?search%5Border%5D=created_at%3Adesc",
		},
		{
			name:   "reserved characters escaped like a uri component",
			query:  "a&b=c+d:e@f$ (x)!",
			market: "pl",
			want:   "https://www.olx.pl/d/oferty/q-a%26b%3Dc%2Bd%3Ae%40f%24%20(x)!/?search%5Border%5D=created_at%3Adesc",
		},
		{
			name:    "pl bracketed price and city params",
			query:   "iphone",
			filters: Filters{PriceFrom: "100", PriceTo: "500", City: "17935"},
			market:  "pl",
			want: "https://www.olx.pl/d/oferty/q-iphone/?search%5Bfilter_float_price%3Afrom%5D=100" +
				"&search%5Bfilter_float_price%3Ato%5D=500&search%5Bcity_id%5D=17935&search%5Border%5D=created_at%3Adesc",
		},
		{
			name:    "cz path family has no prefix",
			query:   "kolo",
			filters: Filters{Category: "sport-hobby"},
			market:  "cz",
			want:    "https://www.olx.cz/sport-hobby/q-kolo/?order=newest",
		},
		{
			name:    "ua path family with flat params",
			query:   "диван",
			filters: Filters{Category: "dom-sad", PriceTo: "3000"},
			market:  "ua",
			want:    "https://www.olx.ua/d/dom-sad/q-%D0%B4%D0%B8%D0%B2%D0%B0%D0%BD/?priceTo=3000&order=newest",
		},
		{
			name:    "query family puts category in query",
			query:   "masina",
			filters: Filters{Category: "autoturisme", PriceFrom: "1000", City: "2"},
			market:  "ro",
			want:    "https://www.olx.ro/anunturi/q-masina/?category=autoturisme&priceFrom=1000&cityId=2&order=newest",
		},
		{
			name:   "query family without filters",
			query:  "telefon",
			market: "bg",
			want:   "https://www.olx.bg/ads/q-telefon/?order=newest",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildURL(tc.query, tc.filters, table.Get(tc.market))
			if got != tc.want {
				t.Errorf("BuildURL() =\n  %s\nwant\n  %s", got, tc.want)
			}
		})
	}
}

func TestBuildURL_CategoryPlacement(t *testing.T) {
	table := mustMarkets(t)

	pl := BuildURL("chair", Filters{Category: "dom-ogrod"}, table.Get("pl"))
	if !strings.Contains(pl, "/dom-ogrod/") || strings.Contains(pl, "category=") {
		t.Errorf("Expected category in path for pl, got %s", pl)
	}

	bg := BuildURL("chair", Filters{Category: "dom-gradina"}, table.Get("bg"))
	if strings.Contains(bg, "/dom-gradina/") || !strings.Contains(bg, "category=dom-gradina") {
		t.Errorf("Expected category as query parameter for bg, got %s", bg)
	}
}

func TestValidateQuery(t *testing.T) {
	if q, err := ValidateQuery("  krzesło  "); err != nil || q != "krzesło" {
		t.Errorf("ValidateQuery() = (%q, %v), want (\"krzesło\", nil)", q, err)
	}
	if _, err := ValidateQuery(" a "); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery for a one-character query, got %v", err)
	}
	if _, err := ValidateQuery(strings.Repeat("ż", 101)); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery for a 101-character query, got %v", err)
	}
	if _, err := ValidateQuery(strings.Repeat("ż", 100)); err != nil {
		t.Errorf("Expected a 100-character query to pass, got %v", err)
	}
}
