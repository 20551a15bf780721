package extract

// 选择器按优先级排列，命中即停止。页面结构不稳定，因此每个字段都保留多个候选。

// genericCardSelector is the last resort when no profile selector matches.
const genericCardSelector = `div[class*="card"], article[class*="card"], div[data-cy*="card"], .wrap`

type profile struct {
	name     string
	cards    []string
	title    []string
	price    []string
	location []string
}

var (
	linkSelectors  = []string{`a[href*="/d/"]`, `a[href*="/oferta/"]`, `a[href*="/oferty/"]`, `a[href]`}
	imageSelectors = []string{`img[src]`, `img[data-src]`}
)

var (
	genericTitle = []string{
		`h2`, `h3`, `h4`, `h5`, `h6`,
		`[data-cy="ad-card-title"]`,
		`.title`, `[class*="title"]`,
		`a[class*="title"]`,
	}
	genericPrice = []string{
		`[data-testid="ad-price"]`,
		`.price`, `[class*="price"]`,
		`p[class*="price"]`, `span[class*="price"]`,
	}
	genericLocation = []string{
		`[data-testid="location-date"]`,
		`.location`, `[class*="location"]`,
		`[data-cy="ad-card-location"]`, `span[class*="location"]`,
	}
)

var profiles = map[string]*profile{
	"pl": {
		name:  "pl",
		cards: []string{`[data-cy="l-card"]`, `.css-1sw7q4x`, `[data-testid="l-card"]`},
		title: []string{
			`h6`, `h4`, `h3`, `[data-cy="ad-card-title"]`,
			`.css-16v5mdi h6`, `.css-u2ayx7 h6`,
			`a[class*="title"]`, `[class*="title"]`,
		},
		price: []string{
			`[data-testid="ad-price"]`, `.css-10b0gli p`, `.css-tyui9s`,
			`[class*="price"]`, `p[class*="price"]`, `.price`,
		},
		location: []string{
			`[data-testid="location-date"]`, `.css-veheph span`,
			`[class*="location"]`, `.location`, `[data-cy="ad-card-location"]`,
		},
	},
	"ua": {
		name:     "ua",
		cards:    []string{`[data-cy="l-card"]`, `.css-1sw7q4x`, `[data-testid="l-card"]`, `.wrap`},
		title:    genericTitle,
		price:    genericPrice,
		location: genericLocation,
	},
	"generic": {
		name: "generic",
		cards: []string{
			`[data-cy="l-card"]`, `.css-1sw7q4x`, `[data-testid="l-card"]`,
			`div[class*="card"]`, `article[class*="card"]`,
		},
		title:    genericTitle,
		price:    genericPrice,
		location: genericLocation,
	},
}

func profileFor(name string) *profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return profiles["generic"]
}
