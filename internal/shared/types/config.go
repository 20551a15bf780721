package types

// CommonConf 包含通用配置
type CommonConf struct {
	DefaultMarket string `ini:"default_market"`
	ProxiesFile   string `ini:"proxies_file"` // 相对路径以配置目录为基准
	MarketsFile   string `ini:"markets_file"` // 为空时使用内置的市场表
}

// FetchConf 控制单次抓取尝试的行为
type FetchConf struct {
	TimeoutSeconds      int    `ini:"timeout_seconds"`
	MaxBodyBytes        int64  `ini:"max_body_bytes"`
	MaxResults          int    `ini:"max_results"`
	ValidateOnStart     bool   `ini:"validate_on_start"`
	ValidateConcurrency int    `ini:"validate_concurrency"`
	ValidateTarget      string `ini:"validate_target"`
}

// WebConf 包含 Web API 的配置，port 为 0 时不启动
type WebConf struct {
	Port        int     `ini:"port"`
	User        string  `ini:"user"`
	Password    string  `ini:"password"`
	SearchRate  float64 `ini:"search_rate"` // 每秒允许的搜索次数，0 表示不限速
	SearchBurst int     `ini:"search_burst"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level   string `ini:"level"`
	NoColor bool   `ini:"no_color"`
}

// Config 是 olxscout 的统一配置结构体
type Config struct {
	CommonConf `ini:"common"`
	FetchConf  `ini:"fetch"`
	WebConf    `ini:"web"`
	LogConf    `ini:"log"`
}

// DefaultConfig returns the configuration used when keys are missing from the ini file.
func DefaultConfig() *Config {
	return &Config{
		CommonConf: CommonConf{
			DefaultMarket: "pl",
			ProxiesFile:   "proxies.txt",
		},
		FetchConf: FetchConf{
			TimeoutSeconds:      10,
			MaxBodyBytes:        5 << 20,
			MaxResults:          20,
			ValidateConcurrency: 5,
			ValidateTarget:      "https://www.olx.pl",
		},
		WebConf: WebConf{
			Port:        0,
			SearchRate:  2,
			SearchBurst: 4,
		},
		LogConf: LogConf{
			Level: "info",
		},
	}
}
