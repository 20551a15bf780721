package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"olxscout/internal/extract"
	"olxscout/internal/market"
	"olxscout/internal/search"
	"olxscout/internal/service/web"
	"olxscout/internal/shared/config"
	"olxscout/internal/shared/logger"
	"olxscout/internal/shared/types"
	"olxscout/proxypool"
	"olxscout/proxypool/storage"
	"olxscout/proxypool/validator"
)

const statsInterval = 5 * time.Second

// AppServer is the application's main struct. It owns the proxy pool and
// the searcher and exposes them to the CLI and the web service.
type AppServer struct {
	cfg       *types.Config
	configDir string

	markets      *market.Table
	pool         *proxypool.Pool
	proxyStorage *storage.FileStorage
	validator    *validator.Validator
	searcher     *search.Searcher

	hub *web.Hub // Hub 实例
	web *web.Server

	waitGroup sync.WaitGroup
	stopOnce  sync.Once
}

// AppServer must implement the web Controller 接口
var _ web.Controller = (*AppServer)(nil)

// New 根据配置组装所有组件。代理列表在这里被首次加载。
func New(cfg *types.Config, configDir string) (*AppServer, error) {
	l := logger.WithComponent("App")

	markets, err := loadMarkets(cfg, configDir)
	if err != nil {
		return nil, err
	}
	if _, ok := markets.Lookup(cfg.CommonConf.DefaultMarket); !ok {
		l.Warn().Str("market", cfg.CommonConf.DefaultMarket).Msg("Configured default market is unknown, falling back.")
	}

	timeout := time.Duration(cfg.FetchConf.TimeoutSeconds) * time.Second
	proxiesPath := config.ResolvePath(configDir, cfg.CommonConf.ProxiesFile)

	s := &AppServer{
		cfg:          cfg,
		configDir:    configDir,
		markets:      markets,
		pool:         proxypool.New(),
		proxyStorage: storage.NewFileStorage(proxiesPath, true),
		validator:    validator.NewValidator(cfg.FetchConf.ValidateTarget, timeout, cfg.FetchConf.ValidateConcurrency),
		hub:          web.NewHub(),
	}

	if _, err := s.pool.LoadStorage(s.proxyStorage); err != nil {
		return nil, fmt.Errorf("failed to load proxies from '%s': %w", proxiesPath, err)
	}

	s.searcher = search.NewSearcher(
		s.pool,
		search.NewHTTPFetcher(timeout, cfg.FetchConf.MaxBodyBytes),
		extract.NewEngine(cfg.FetchConf.MaxResults),
		markets,
	)

	l.Info().
		Int("markets", len(markets.Keys())).
		Int("proxies", s.pool.Len()).
		Str("proxies_file", proxiesPath).
		Msg("Application initialized.")
	return s, nil
}

func loadMarkets(cfg *types.Config, configDir string) (*market.Table, error) {
	if cfg.CommonConf.MarketsFile == "" {
		return market.Builtin()
	}
	path := config.ResolvePath(configDir, cfg.CommonConf.MarketsFile)
	table, err := market.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load markets from '%s': %w", path, err)
	}
	return table, nil
}

// Run 启动 Web 服务和统计推送，阻塞直到 ctx 结束。
func (s *AppServer) Run(ctx context.Context) error {
	logger.Info().Msg("Starting olxscout service...")

	if s.cfg.FetchConf.ValidateOnStart && s.pool.Len() > 0 {
		s.ProbeProxies(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		s.hub.Run(ctx) // 启动 Hub
	}()

	srv, err := web.StartServer(&s.waitGroup, s.cfg, s, s.hub)
	if err != nil {
		cancel()
		s.waitGroup.Wait()
		return err
	}
	s.web = srv

	s.waitGroup.Add(1)
	go s.statsLoop(ctx)

	<-ctx.Done()
	s.Stop()
	s.waitGroup.Wait()
	return nil
}

// Stop shuts the web service down. It is safe to call more than once.
func (s *AppServer) Stop() {
	s.stopOnce.Do(func() {
		if s.web == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.web.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Web server did not shut down cleanly.")
		}
	})
}

// statsLoop 定期向仪表盘推送代理池统计。
func (s *AppServer) statsLoop(ctx context.Context) {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.hub.ClientCount() > 0 {
				s.hub.BroadcastPoolStats(s.pool.Stats())
			}
		case <-ctx.Done():
			return
		}
	}
}

// Search 执行一次搜索。未指定市场时使用配置中的默认市场。
func (s *AppServer) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	if strings.TrimSpace(req.Market) == "" {
		req.Market = s.cfg.CommonConf.DefaultMarket
	}
	return s.searcher.Run(ctx, req)
}

func (s *AppServer) PoolStats() proxypool.Stats {
	return s.pool.Stats()
}

// ReloadProxies 重新读取代理列表文件，替换池内容并清空隔离集合。
func (s *AppServer) ReloadProxies() (int, error) {
	n, err := s.pool.LoadStorage(s.proxyStorage)
	if err != nil {
		return 0, fmt.Errorf("failed to reload proxies from '%s': %w", s.proxyStorage.Path(), err)
	}
	return n, nil
}

func (s *AppServer) ResetQuarantine() {
	s.pool.Reset()
}

func (s *AppServer) Markets() map[string]string {
	return s.markets.Names()
}

// MarketTable returns the loaded market table.
func (s *AppServer) MarketTable() *market.Table {
	return s.markets
}

// ProbeProxies 验证全部代理并隔离不可用的代理。
func (s *AppServer) ProbeProxies(ctx context.Context) []validator.Result {
	return s.pool.Probe(ctx, s.validator)
}

// IniPath returns the conventional config file location inside dir.
func IniPath(dir string) string {
	return filepath.Join(dir, "olxscout.ini")
}
